package geoip

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestNewResolverWithoutPath(t *testing.T) {
	r, err := NewResolver("  ")
	if err != nil || r != nil {
		t.Fatalf("NewResolver(\"\") = %v, %v; want nil, nil", r, err)
	}
	if _, err := r.CountryCode("203.0.113.1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("nil resolver error = %v, want ErrUnavailable", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("nil resolver Close error = %v", err)
	}
}

func TestNewResolverMissingDatabase(t *testing.T) {
	if _, err := NewResolver(filepath.Join(t.TempDir(), "missing.mmdb")); err == nil {
		t.Fatal("expected error for missing database file")
	}
}

func TestParseAddr(t *testing.T) {
	cases := map[string]string{
		"203.0.113.9":          "203.0.113.9",
		" 203.0.113.9:4431 ":   "203.0.113.9",
		"[2001:db8::1]:443":    "2001:db8::1",
		"::ffff:198.51.100.20": "198.51.100.20",
	}
	for in, want := range cases {
		addr, err := parseAddr(in)
		if err != nil {
			t.Fatalf("parseAddr(%q) error: %v", in, err)
		}
		if addr.String() != want {
			t.Fatalf("parseAddr(%q) = %s, want %s", in, addr, want)
		}
	}
	if _, err := parseAddr("not-an-ip"); err == nil {
		t.Fatal("expected error for garbage input")
	}
}

func TestRoutableSkipsLocalAddresses(t *testing.T) {
	for _, ip := range []string{"10.0.0.4", "192.168.1.1", "127.0.0.1", "::1", "fe80::1", "0.0.0.0"} {
		addr, err := parseAddr(ip)
		if err != nil {
			t.Fatalf("parseAddr(%q) error: %v", ip, err)
		}
		if routable(addr) {
			t.Fatalf("%s should not be routable", ip)
		}
	}
	addr, _ := parseAddr("203.0.113.9")
	if !routable(addr) {
		t.Fatal("public address should be routable")
	}
}

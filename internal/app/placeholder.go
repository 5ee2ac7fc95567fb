package app

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"musicgen/internal/storage"
)

// PlaceholderKey is the storage key of the bundled timeout placeholder.
const PlaceholderKey = "placeholders/silence.wav"

const (
	placeholderSampleRate = 8000
	placeholderSeconds    = 2
)

// InstallPlaceholder stores the bundled placeholder unless it is already
// present and returns its public URL. The object is checked after writing.
func InstallPlaceholder(ctx context.Context, store *storage.FileStore) (string, error) {
	if store == nil {
		return "", errors.New("app: placeholder requires a store")
	}
	ok, err := store.Exists(ctx, PlaceholderKey)
	if err != nil {
		return "", fmt.Errorf("app: check placeholder: %w", err)
	}
	if ok {
		return store.URL(PlaceholderKey), nil
	}
	publicURL, err := store.Upload(ctx, silentWAV(placeholderSampleRate, placeholderSeconds), PlaceholderKey)
	if err != nil {
		return "", fmt.Errorf("app: install placeholder: %w", err)
	}
	if ok, err = store.Exists(ctx, PlaceholderKey); err != nil || !ok {
		return "", fmt.Errorf("app: placeholder not readable after install: %v", err)
	}
	return publicURL, nil
}

// silentWAV renders mono 16-bit PCM silence.
func silentWAV(sampleRate, seconds int) []byte {
	const bytesPerSample = 2
	dataLen := uint32(sampleRate * seconds * bytesPerSample)
	buf := bytes.NewBuffer(make([]byte, 0, 44+int(dataLen)))
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, 36+dataLen)
	buf.WriteString("WAVEfmt ")
	_ = binary.Write(buf, binary.LittleEndian, struct {
		ChunkSize     uint32
		Format        uint16
		Channels      uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
	}{16, 1, 1, uint32(sampleRate), uint32(sampleRate * bytesPerSample), bytesPerSample, 16})
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, dataLen)
	buf.Write(make([]byte, dataLen))
	return buf.Bytes()
}

package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestCanTransition(t *testing.T) {
	states := []JobState{JobStatePending, JobStateProcessing, JobStateCompleted, JobStateFailed}
	allowed := map[[2]JobState]bool{
		{JobStatePending, JobStateProcessing}:   true,
		{JobStatePending, JobStateFailed}:       true,
		{JobStateProcessing, JobStateCompleted}: true,
		{JobStateProcessing, JobStateFailed}:    true,
		{JobStateCompleted, JobStateCompleted}:  true,
	}
	for _, from := range states {
		for _, to := range states {
			want := allowed[[2]JobState{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Fatalf("CanTransition(%s, %s) = %t, want %t", from, to, got, want)
			}
		}
	}
}

func TestNoStateReturnsToPending(t *testing.T) {
	for _, from := range []JobState{JobStateProcessing, JobStateCompleted, JobStateFailed} {
		if CanTransition(from, JobStatePending) {
			t.Fatalf("%s must not return to pending", from)
		}
	}
}

func TestJobUpdateApply(t *testing.T) {
	job := &Job{State: JobStateProcessing, ProviderTaskID: "T1", ResultTitle: "keep"}
	JobUpdate{
		State:     Ptr(JobStateCompleted),
		ResultURL: Ptr("https://provider/x.mp3"),
	}.Apply(job)
	if job.State != JobStateCompleted {
		t.Fatalf("state = %s", job.State)
	}
	if job.ResultURL != "https://provider/x.mp3" {
		t.Fatalf("result url = %q", job.ResultURL)
	}
	if job.ProviderTaskID != "T1" || job.ResultTitle != "keep" {
		t.Fatalf("unset fields were modified: %+v", job)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{fmt.Errorf("bad: %w", ErrValidation), false},
		{fmt.Errorf("401: %w", ErrProviderTerminal), false},
		{fmt.Errorf("deadline: %w", ErrProviderTimeout), true},
		{fmt.Errorf("open: %w", ErrServiceUnavailable), true},
		{errors.New("network"), true},
	}
	for _, tc := range cases {
		if got := Retryable(tc.err); got != tc.want {
			t.Fatalf("Retryable(%v) = %t, want %t", tc.err, got, tc.want)
		}
	}
}

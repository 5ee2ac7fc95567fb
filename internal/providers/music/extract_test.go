package music

import (
	"encoding/json"
	"testing"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var root map[string]any
	if err := json.Unmarshal([]byte(raw), &root); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return root
}

func TestExtractTaskIDShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{name: "nested list", raw: `{"data":[{"id":"T1","status":"queued"}]}`, want: "T1", ok: true},
		{name: "clips list", raw: `{"clips":[{"task_id":"T2"}]}`, want: "T2", ok: true},
		{name: "flat object", raw: `{"code":200,"data":{"taskId":"T3"}}`, want: "T3", ok: true},
		{name: "bare identifier", raw: `{"task_id":"T4"}`, want: "T4", ok: true},
		{name: "numeric identifier", raw: `{"id":12345}`, want: "12345", ok: true},
		{name: "list wins over root", raw: `{"id":"root","data":[{"id":"T5"}]}`, want: "T5", ok: true},
		{name: "absent", raw: `{"code":200,"data":{"status":"ok"}}`, ok: false},
		{name: "blank", raw: `{"taskId":"  "}`, ok: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractTaskID(decode(t, tc.raw))
			if ok != tc.ok || got != tc.want {
				t.Fatalf("ExtractTaskID = %q, %v; want %q, %v", got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestInterpretPollShapes(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		status   PollStatus
		audio    string
		duration float64
	}{
		{
			name:     "result list",
			raw:      `{"data":{"status":"SUCCESS","response":{"sunoData":[{"audioUrl":"https://provider/x.mp3","duration":180,"title":"Lullaby","prompt":"la la"}]}}}`,
			status:   PollReady,
			audio:    "https://provider/x.mp3",
			duration: 180,
		},
		{
			name:   "root list of clips",
			raw:    `{"data":[{"id":"T1","audio_url":""},{"id":"T1b","stream_audio_url":"https://provider/s.mp3","duration":"95.5"}]}`,
			status: PollReady, audio: "https://provider/s.mp3", duration: 95.5,
		},
		{
			name:   "direct field",
			raw:    `{"data":{"audio_url":"https://provider/d.mp3","duration_seconds":60}}`,
			status: PollReady, audio: "https://provider/d.mp3", duration: 60,
		},
		{name: "failure status", raw: `{"data":{"status":"GENERATE_AUDIO_FAILED","errorMessage":"content rejected"}}`, status: PollFailed},
		{name: "in progress", raw: `{"data":{"status":"PENDING","response":{"sunoData":[]}}}`, status: PollRunning},
		{name: "lyrics drafted", raw: `{"code":200,"data":{"status":"TEXT_SUCCESS"}}`, status: PollRunning},
		{name: "unknown status", raw: `{"data":{"status":"MYSTERY"}}`, status: PollPending},
		{name: "empty", raw: `{}`, status: PollPending},
		{name: "non-url audio ignored", raw: `{"audio_url":"pending"}`, status: PollPending},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := InterpretPoll(decode(t, tc.raw))
			if res.Status != tc.status {
				t.Fatalf("status = %s, want %s", res.Status, tc.status)
			}
			if res.Track.AudioURL != tc.audio || res.Track.DurationSeconds != tc.duration {
				t.Fatalf("track = %+v", res.Track)
			}
		})
	}
}

func TestInterpretPollFailureReason(t *testing.T) {
	res := InterpretPoll(decode(t, `{"data":{"status":"FAILED"},"msg":"quota"}`))
	if res.Status != PollFailed || res.Reason != "quota" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestInterpretPollResultMetadata(t *testing.T) {
	res := InterpretPoll(decode(t, `{"clips":[{"audio_url":"https://p/a.mp3","lyric":"hello","title":"Hi"}]}`))
	if res.Track.Lyrics != "hello" || res.Track.Title != "Hi" {
		t.Fatalf("metadata not extracted: %+v", res.Track)
	}
}

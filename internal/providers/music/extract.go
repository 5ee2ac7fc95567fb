package music

import (
	"strconv"
	"strings"
)

// Provider responses are decoded into generic maps and probed by ordered
// extractor lists; the first extractor that recognizes the payload wins.

type taskIDExtractor func(root map[string]any) (string, bool)

var taskIDExtractors = []taskIDExtractor{
	taskIDFromResultList,
	taskIDFromObject,
	taskIDFromRoot,
}

var idKeys = []string{"taskId", "task_id", "id"}

// ExtractTaskID returns the task identifier carried by a submit response.
func ExtractTaskID(root map[string]any) (string, bool) {
	for _, extract := range taskIDExtractors {
		if id, ok := extract(root); ok {
			return id, true
		}
	}
	return "", false
}

func taskIDFromResultList(root map[string]any) (string, bool) {
	for _, path := range [][]string{{"data"}, {"clips"}, {"data", "clips"}} {
		items, ok := lookup(root, path...).([]any)
		if !ok {
			continue
		}
		for _, item := range items {
			if obj, ok := item.(map[string]any); ok {
				if id, ok := firstString(obj, idKeys...); ok {
					return id, true
				}
			}
		}
	}
	return "", false
}

func taskIDFromObject(root map[string]any) (string, bool) {
	obj, ok := root["data"].(map[string]any)
	if !ok {
		return "", false
	}
	return firstString(obj, idKeys...)
}

func taskIDFromRoot(root map[string]any) (string, bool) {
	return firstString(root, idKeys...)
}

// PollStatus classifies a poll response.
type PollStatus int

const (
	// PollPending marks a payload no interpreter recognized.
	PollPending PollStatus = iota
	PollReady
	PollFailed
	// PollRunning marks an explicit in-progress status.
	PollRunning
)

func (s PollStatus) String() string {
	switch s {
	case PollReady:
		return "ready"
	case PollFailed:
		return "failed"
	case PollRunning:
		return "running"
	}
	return "pending"
}

// Track is a finished rendition reported by the provider.
type Track struct {
	AudioURL        string
	DurationSeconds float64
	Lyrics          string
	Title           string
}

// PollResult is the interpretation of one poll response.
type PollResult struct {
	Status PollStatus
	Track  Track
	Reason string
}

type pollInterpreter func(root map[string]any) (PollResult, bool)

var pollInterpreters = []pollInterpreter{
	readyFromResultList,
	readyFromAudioField,
	failedFromStatus,
	runningFromStatus,
}

var (
	audioKeys    = []string{"audio_url", "audioUrl", "stream_audio_url", "streamAudioUrl", "source_audio_url"}
	durationKeys = []string{"duration", "duration_seconds", "durationSeconds"}
	lyricsKeys   = []string{"lyric", "lyrics", "prompt"}
	statusKeys   = []string{"status", "state"}
	messageKeys  = []string{"errorMessage", "error_message", "msg", "message", "error"}

	resultListPaths = [][]string{
		{"data", "response", "sunoData"},
		{"data", "response", "data"},
		{"data", "clips"},
		{"data", "data"},
		{"data"},
		{"clips"},
		{"results"},
	}

	failureStatuses = map[string]bool{
		"failed":                true,
		"error":                 true,
		"create_task_failed":    true,
		"generate_audio_failed": true,
		"callback_exception":    true,
		"sensitive_word_error":  true,
	}

	runningStatuses = map[string]bool{
		"pending":       true,
		"queued":        true,
		"submitted":     true,
		"processing":    true,
		"running":       true,
		"generating":    true,
		"streaming":     true,
		"in_progress":   true,
		"text_success":  true,
		"first_success": true,
	}
)

// InterpretPoll classifies a poll response. Payloads no interpreter
// recognizes, empty ones included, are pending.
func InterpretPoll(root map[string]any) PollResult {
	for _, interpret := range pollInterpreters {
		if res, ok := interpret(root); ok {
			return res
		}
	}
	return PollResult{Status: PollPending}
}

func readyFromResultList(root map[string]any) (PollResult, bool) {
	for _, path := range resultListPaths {
		items, ok := lookup(root, path...).([]any)
		if !ok {
			continue
		}
		for _, item := range items {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if track, ok := trackFrom(obj); ok {
				return PollResult{Status: PollReady, Track: track}, true
			}
		}
	}
	return PollResult{}, false
}

func readyFromAudioField(root map[string]any) (PollResult, bool) {
	candidates := []map[string]any{root}
	if obj, ok := root["data"].(map[string]any); ok {
		candidates = append(candidates, obj)
		if resp, ok := obj["response"].(map[string]any); ok {
			candidates = append(candidates, resp)
		}
	}
	for _, obj := range candidates {
		if track, ok := trackFrom(obj); ok {
			return PollResult{Status: PollReady, Track: track}, true
		}
	}
	return PollResult{}, false
}

func failedFromStatus(root map[string]any) (PollResult, bool) {
	candidates := []map[string]any{root}
	if obj, ok := root["data"].(map[string]any); ok {
		candidates = append(candidates, obj)
	}
	for _, obj := range candidates {
		status, ok := firstString(obj, statusKeys...)
		if !ok || !failureStatuses[strings.ToLower(status)] {
			continue
		}
		reason, _ := firstString(obj, messageKeys...)
		if reason == "" {
			reason, _ = firstString(root, messageKeys...)
		}
		if reason == "" {
			reason = status
		}
		return PollResult{Status: PollFailed, Reason: reason}, true
	}
	return PollResult{}, false
}

func runningFromStatus(root map[string]any) (PollResult, bool) {
	candidates := []map[string]any{root}
	if obj, ok := root["data"].(map[string]any); ok {
		candidates = append(candidates, obj)
	}
	for _, obj := range candidates {
		if status, ok := firstString(obj, statusKeys...); ok && runningStatuses[strings.ToLower(status)] {
			return PollResult{Status: PollRunning, Reason: status}, true
		}
	}
	return PollResult{}, false
}

func trackFrom(obj map[string]any) (Track, bool) {
	audio, ok := firstString(obj, audioKeys...)
	if !ok || !strings.HasPrefix(audio, "http") {
		return Track{}, false
	}
	track := Track{AudioURL: audio}
	track.DurationSeconds, _ = firstNumber(obj, durationKeys...)
	track.Lyrics, _ = firstString(obj, lyricsKeys...)
	track.Title, _ = firstString(obj, "title")
	return track, true
}

func lookup(root map[string]any, path ...string) any {
	var cur any = root
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[key]
	}
	return cur
}

func firstString(obj map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		switch v := obj[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s, true
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), true
		}
	}
	return "", false
}

func firstNumber(obj map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		switch v := obj[key].(type) {
		case float64:
			return v, true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

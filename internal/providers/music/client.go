package music

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"musicgen/internal/domain"
	"musicgen/internal/infra"
	"musicgen/internal/resilience"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("music: api key is required")

// ErrNoTaskID is returned when a submit response carries no recognizable task id.
var ErrNoTaskID = errors.New("music: submit response carried no task id")

const maxResponseBytes = 1 << 20

// Options configures the music provider client.
type Options struct {
	APIKey       string
	BaseURL      string
	AudioBaseURL string
	Model        string
	HTTPClient   *http.Client
	Executor     *resilience.Executor
	SubmitPolicy resilience.Policy
	PollDeadline time.Duration
	Logger       *infra.Logger
	// Now and Sleep drive the poll schedule. They default to the wall clock.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
	// OnPolled observes the number of poll attempts a task needed.
	OnPolled func(attempts int)
}

// Client talks to the music synthesis provider: task submission, status
// polling and the direct audio probe. It is safe for concurrent use.
type Client struct {
	apiKey       string
	baseURL      string
	audioBaseURL string
	model        string
	httpClient   *http.Client
	probeClient  *http.Client
	exec         *resilience.Executor
	submitPolicy resilience.Policy
	pollDeadline time.Duration
	logger       *infra.Logger
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
	onPolled     func(attempts int)
}

// SubmitRequest carries the fields sent with a generation task.
type SubmitRequest struct {
	Prompt       string
	StyleTag     string
	Lyrics       string
	Title        string
	Instrumental bool
	VoiceGender  domain.VoiceGender
}

type submitPayload struct {
	Prompt           string `json:"prompt"`
	Tags             string `json:"tags,omitempty"`
	Lyrics           string `json:"lyrics,omitempty"`
	Title            string `json:"title,omitempty"`
	MakeInstrumental int    `json:"make_instrumental"`
	CustomMode       bool   `json:"custom_mode"`
	Model            string `json:"mv"`
	Gender           string `json:"gender,omitempty"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.sunoapi.org/api/v1"
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("music: invalid base url: %w", err)
	}
	audioBaseURL := strings.TrimRight(strings.TrimSpace(opts.AudioBaseURL), "/")
	if audioBaseURL == "" {
		audioBaseURL = "https://cdn1.suno.ai"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "V4_5"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = infra.NewProviderHTTPClient(0, 0)
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	exec := opts.Executor
	if exec == nil {
		exec = resilience.NewExecutor(resilience.Options{Logger: logger})
	}
	policy := opts.SubmitPolicy
	if policy.MaxAttempts <= 0 {
		policy = resilience.DefaultPolicy
	}
	deadline := opts.PollDeadline
	if deadline <= 0 {
		deadline = 3 * time.Minute
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = resilience.SleepContext
	}
	return &Client{
		apiKey:       strings.TrimSpace(opts.APIKey),
		baseURL:      baseURL,
		audioBaseURL: audioBaseURL,
		model:        model,
		httpClient:   httpClient,
		probeClient:  infra.WithoutRedirects(httpClient),
		exec:         exec,
		submitPolicy: policy,
		pollDeadline: deadline,
		logger:       logger,
		now:          now,
		sleep:        sleep,
		onPolled:     opts.OnPolled,
	}, nil
}

// Model returns the configured model version.
func (c *Client) Model() string {
	return c.model
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// Submit normalizes req and creates a provider task, retrying transient
// failures through the executor. It returns the provider task id.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if !c.HasCredentials() {
		return "", fmt.Errorf("%w: %w", domain.ErrProviderTerminal, ErrMissingAPIKey)
	}
	payload := c.buildPayload(req)
	if payload.Prompt == "" && payload.Lyrics == "" {
		return "", fmt.Errorf("%w: music: prompt is empty after normalization", domain.ErrValidation)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("music: encode request: %w", err)
	}
	return resilience.Execute(ctx, c.exec, "music.submit", c.submitPolicy, func(ctx context.Context) (string, error) {
		root, err := c.do(ctx, "music.submit", http.MethodPost, c.baseURL+"/generate", body)
		if err != nil {
			return "", err
		}
		id, ok := ExtractTaskID(root)
		if !ok {
			return "", resilience.Permanent(ErrNoTaskID)
		}
		c.logger.Debug().Str("task_id", id).Str("model", c.model).Msg("music: task submitted")
		return id, nil
	})
}

func (c *Client) buildPayload(req SubmitRequest) submitPayload {
	payload := submitPayload{
		Prompt: NormalizePrompt(req.Prompt),
		Tags:   NormalizeTitle(req.StyleTag),
		Title:  NormalizeTitle(req.Title),
		Model:  c.model,
	}
	if req.Instrumental {
		payload.MakeInstrumental = 1
	} else {
		payload.Lyrics = NormalizeLyrics(req.Lyrics)
		switch req.VoiceGender {
		case domain.VoiceGenderMale, domain.VoiceGenderFemale:
			payload.Gender = string(req.VoiceGender)
		}
	}
	payload.CustomMode = payload.Lyrics != ""
	return payload
}

// PollOnce fetches and interprets the task status a single time.
func (c *Client) PollOnce(ctx context.Context, taskID string) (PollResult, error) {
	endpoint := c.baseURL + "/generate/record-info?taskId=" + url.QueryEscape(taskID)
	root, err := c.do(ctx, "music.poll", http.MethodGet, endpoint, nil)
	if err != nil {
		return PollResult{}, err
	}
	return InterpretPoll(root), nil
}

// ProbeAudio issues a HEAD request against the deterministic audio location
// of taskID. Success and redirect responses both mean the audio exists.
func (c *Client) ProbeAudio(ctx context.Context, taskID string) (string, bool) {
	target := c.audioBaseURL + "/" + url.PathEscape(taskID) + ".mp3"
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return "", false
	}
	resp, err := c.probeClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("task_id", taskID).Msg("music: audio probe failed")
		return "", false
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return target, true
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		if loc, err := resp.Location(); err == nil {
			return loc.String(), true
		}
		return target, true
	}
	return "", false
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body []byte) (map[string]any, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("%s: build request: %w", op, err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: http request: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}
	if resp.StatusCode >= 300 {
		return nil, &resilience.StatusError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}
	root := map[string]any{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return root, nil
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", op, err)
	}
	switch v := decoded.(type) {
	case map[string]any:
		root = v
	case []any:
		root["data"] = v
	case string:
		root["id"] = v
	}
	if code, ok := firstNumber(root, "code"); ok && code != 0 && code != 200 {
		msg, _ := firstString(root, messageKeys...)
		return nil, &resilience.StatusError{Op: op, StatusCode: int(code), Message: msg}
	}
	return root, nil
}

func errorMessage(raw []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		if msg, ok := firstString(obj, messageKeys...); ok {
			return msg
		}
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

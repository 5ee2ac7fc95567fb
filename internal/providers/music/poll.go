package music

import (
	"context"
	"errors"
	"fmt"
	"time"

	"musicgen/internal/domain"
	"musicgen/internal/resilience"
)

var pollPolicy = resilience.Policy{MaxAttempts: 1}

// PollInterval returns the wait before poll attempt n (1 based).
func PollInterval(attempt int) time.Duration {
	switch {
	case attempt <= 3:
		return 2 * time.Second
	case attempt <= 10:
		return 3 * time.Second
	}
	return 5 * time.Second
}

// WaitForAudio polls taskID on the adaptive schedule until the provider
// reports audio, reports a failure, or the deadline measured from submittedAt
// passes. The deadline is checked before each attempt; an in-flight call is
// never interrupted by it. Transient poll errors are logged and polling goes
// on; terminal errors and an open circuit end the loop.
func (c *Client) WaitForAudio(ctx context.Context, taskID string, submittedAt time.Time) (Track, error) {
	deadline := submittedAt.Add(c.pollDeadline)
	log := c.logger.With().Str("task_id", taskID).Logger()
	attempt := 0
	defer func() {
		if c.onPolled != nil {
			c.onPolled(attempt)
		}
	}()
	for {
		next := attempt + 1
		wait := PollInterval(next)
		if remaining := deadline.Sub(c.now()); remaining < wait {
			wait = max(remaining, 0)
		}
		if err := c.sleep(ctx, wait); err != nil {
			return Track{}, err
		}
		if !c.now().Before(deadline) {
			log.Warn().Int("attempt", attempt).Dur("deadline", c.pollDeadline).Msg("music: poll deadline exceeded")
			return Track{}, fmt.Errorf("%w: task %s not ready after %s", domain.ErrProviderTimeout, taskID, c.pollDeadline)
		}
		attempt = next

		res, err := resilience.Execute(ctx, c.exec, "music.poll", pollPolicy, func(ctx context.Context) (PollResult, error) {
			return c.PollOnce(ctx, taskID)
		})
		if err != nil {
			if ctx.Err() != nil {
				return Track{}, ctx.Err()
			}
			if errors.Is(err, domain.ErrProviderTerminal) || errors.Is(err, domain.ErrServiceUnavailable) {
				return Track{}, err
			}
			log.Debug().Err(err).Int("attempt", attempt).Msg("music: poll failed, continuing")
			continue
		}

		switch res.Status {
		case PollReady:
			log.Info().Int("attempt", attempt).Str("audio_url", res.Track.AudioURL).Msg("music: audio ready")
			return res.Track, nil
		case PollFailed:
			return Track{}, fmt.Errorf("%w: music: task %s failed: %s", domain.ErrProviderTerminal, taskID, res.Reason)
		case PollRunning:
			log.Debug().Int("attempt", attempt).Str("status", res.Reason).Msg("music: task still in progress")
			continue
		}

		// The payload said nothing usable; the file may exist anyway.
		if audio, ok := c.ProbeAudio(ctx, taskID); ok {
			log.Info().Int("attempt", attempt).Str("audio_url", audio).Msg("music: audio found by probe")
			return Track{AudioURL: audio}, nil
		}
		log.Debug().Int("attempt", attempt).Msg("music: poll payload not recognized")
	}
}

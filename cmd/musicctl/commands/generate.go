package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"musicgen/internal/domain"
	"musicgen/internal/generation"
)

const (
	flagPrompt         = "prompt"
	flagStyle          = "style"
	flagTitle          = "title"
	flagLyrics         = "lyrics"
	flagInstrumental   = "instrumental"
	flagGenerateLyrics = "generate-lyrics"
	flagVoice          = "voice"
	flagDuration       = "duration"
	flagRequester      = "requester"
	flagMigrationWait  = "migration-wait"
)

func newGenerateCmd() *cobra.Command {
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate a song and wait for the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			req := domain.CreateRequest{}
			req.PromptText, _ = flags.GetString(flagPrompt)
			req.StyleTag, _ = flags.GetString(flagStyle)
			req.Title, _ = flags.GetString(flagTitle)
			req.Lyrics, _ = flags.GetString(flagLyrics)
			req.WantsInstrumental, _ = flags.GetBool(flagInstrumental)
			req.WantsGeneratedLyrics, _ = flags.GetBool(flagGenerateLyrics)
			voice, _ := flags.GetString(flagVoice)
			req.VoiceGender = domain.VoiceGender(voice)
			req.TargetDurationSeconds, _ = flags.GetInt(flagDuration)
			req.RequesterID, _ = flags.GetString(flagRequester)
			req.Locale, _ = flags.GetString(flagLocale)
			migrationWait, _ := flags.GetDuration(flagMigrationWait)

			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			job, err := rt.Engine.CreateJob(cmd.Context(), req)
			if err != nil {
				return err
			}
			if job.State == domain.JobStateCompleted && migrationWait > 0 {
				waitCtx, cancel := context.WithTimeout(cmd.Context(), migrationWait)
				if err := rt.Engine.Wait(waitCtx); err != nil {
					logger.Warn().Err(err).Str("job_id", job.ID).Msg("musicctl: durable migration still running")
				}
				cancel()
			}
			view, err := rt.Engine.GetStatus(context.WithoutCancel(cmd.Context()), job.ID)
			if err != nil {
				view = generation.ViewOf(job)
			}
			if err := printJSON(cmd, view); err != nil {
				return err
			}
			if view.State == domain.JobStateFailed {
				return fmt.Errorf("job %s failed: %s", view.ID, view.ErrorMessage)
			}
			return nil
		},
	}
	flags := generate.Flags()
	flags.String(flagPrompt, "", "What the song is about")
	flags.String(flagStyle, "", "Style tags, e.g. \"lofi, chill\"")
	flags.String(flagTitle, "", "Song title")
	flags.String(flagLyrics, "", "Lyrics to sing")
	flags.Bool(flagInstrumental, false, "Generate without vocals")
	flags.Bool(flagGenerateLyrics, false, "Draft lyrics with the text model first")
	flags.String(flagVoice, string(domain.VoiceGenderAuto), "Voice gender: male, female or auto")
	flags.Int(flagDuration, 0, "Target duration in seconds (10-480)")
	flags.String(flagRequester, "", "Requester id owning the job")
	flags.String(flagLocale, "", "Lyric locale")
	flags.Duration(flagMigrationWait, 2*time.Minute, "How long to wait for the durable copy")
	_ = generate.MarkFlagRequired(flagPrompt)
	return generate
}

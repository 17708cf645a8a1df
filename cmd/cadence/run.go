package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cadencevoice/cadence/pkg/coach/config"
	"github.com/cadencevoice/cadence/pkg/coach/guidance"
	"github.com/cadencevoice/cadence/pkg/coach/live"
	"github.com/cadencevoice/cadence/pkg/coach/persist"
	"github.com/cadencevoice/cadence/pkg/coach/transport"
	"github.com/cadencevoice/cadence/pkg/coach/transport/geminilive"
	"github.com/cadencevoice/cadence/pkg/coach/transport/wsrelay"
)

func newRunCmd() *cobra.Command {
	var (
		planPath  string
		userID    string
		sessionID string
		resume    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a coaching session from an activity plan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogLevel)

			if !resume && planPath == "" {
				return fmt.Errorf("--plan is required unless --resume is set")
			}
			if sessionID == "" {
				sessionID = uuid.NewString()
			}

			var activity guidance.Activity
			if !resume {
				activity, err = config.LoadPlan(planPath)
				if err != nil {
					return err
				}
			}

			store, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			m := live.NewManager(live.Config{
				UserID:               userID,
				SessionID:            sessionID,
				SystemPrompt:         coachSystemPrompt(activity.Name),
				Voice:                cfg.Voice,
				BackoffBase:          cfg.BackoffBase,
				BackoffCap:           cfg.BackoffCap,
				MaxReconnectAttempts: cfg.MaxReconnectAttempts,
				KeepaliveInterval:    cfg.KeepaliveInterval,
				QuietThreshold:       cfg.QuietThreshold,
				ProseCueGap:          cfg.ProseCueGap,
				CountCueGap:          cfg.CountCueGap,
				ResumptionTTL:        cfg.ResumptionTTL,
			}, newDialer(cfg, logger), store, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if resume {
				err = m.ResumeSession(ctx)
			} else {
				if m.CanResume(ctx) {
					logger.Info("previous session was interrupted; rerun with --resume --session to pick it up")
				}
				err = m.Start(ctx, activity)
			}
			if err != nil {
				return err
			}
			logger.Info("session started", "session_id", sessionID, "resume", resume)

			return watchSession(ctx, m, logger)
		},
	}

	cmd.Flags().StringVar(&planPath, "plan", "", "YAML activity plan to run")
	cmd.Flags().StringVar(&userID, "user", "local", "user identifier for persisted state")
	cmd.Flags().StringVar(&sessionID, "session", "", "session identifier (random when empty; reuse to resume)")
	cmd.Flags().BoolVar(&resume, "resume", false, "resume a previously interrupted session from persisted state")
	return cmd
}

// watchSession renders manager events until the activity completes, the
// session fails, or the process is signalled.
func watchSession(ctx context.Context, m *live.Manager, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return m.Stop(stopCtx)
		case ev, ok := <-m.Events():
			if !ok {
				return nil
			}
			switch ev := ev.(type) {
			case live.StateChangedEvent:
				logger.Info("connection", "from", ev.From, "to", ev.To)
			case live.TranscriptEvent:
				fmt.Printf("you: %s\n", ev.Text)
			case live.NoticeEvent:
				logger.Info(ev.Text)
			case live.ProgressEvent:
				logger.Debug("progress",
					"exercise", ev.CurrentExerciseIndex+1,
					"of", ev.TotalExercises,
					"elapsed", ev.ElapsedTime.Round(time.Second))
			case live.TimerEvent:
				logger.Debug("timer", "op", ev.Op, "duration", ev.Duration)
			case live.PlaybackEvent:
				logger.Debug("agent audio", "bytes", len(ev.Data), "start_at", ev.StartAt)
			case live.ToolRenderEvent:
				// Headless host: nothing to draw, fall back to voice.
				m.ReportRenderFailure(ev.ID)
			case live.SelectionEvent:
				logger.Info("plan selected", "option", ev.Label)
			case live.ActivityCompleteEvent:
				logger.Info("activity complete", "elapsed", ev.ElapsedTime.Round(time.Second))
				stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return m.Stop(stopCtx)
			case live.ErrorEvent:
				if ev.Err.IsRetryable() {
					logger.Warn("recoverable session error", "error", ev.Err)
					continue
				}
				return ev.Err
			}
		}
	}
}

// openStore wires the persistence bridge: Postgres with a local SQLite
// fallback when a DSN is configured, SQLite alone otherwise.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (persist.Bridge, error) {
	local, err := persist.NewSQLite(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	if cfg.PostgresDSN == "" {
		return local, nil
	}
	pg, err := persist.NewPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Warn("postgres unavailable, using local store only", "error", err)
		return local, nil
	}
	return persist.NewDual(pg, local, logger), nil
}

func newDialer(cfg config.Config, logger *slog.Logger) transport.Dialer {
	if cfg.Transport == config.TransportRelay {
		return &wsrelay.Dialer{
			URL:          cfg.RelayURL,
			Token:        cfg.RelayToken,
			Logger:       logger,
			PingInterval: cfg.KeepaliveInterval,
		}
	}
	return &geminilive.Dialer{
		APIKey: cfg.GeminiAPIKey,
		Model:  cfg.GeminiModel,
		Logger: logger,
	}
}

func coachSystemPrompt(activityName string) string {
	base := "You are a supportive voice fitness coach. Keep responses short and " +
		"spoken-friendly. Relay the guidance cues you receive verbatim and at a " +
		"steady pace. When the user asks to pause, resume, skip, go back, or " +
		"change pace, acknowledge briefly and continue."
	if activityName == "" {
		return base
	}
	return base + " Today's activity is " + activityName + "."
}

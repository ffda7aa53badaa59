package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/VidbloqHQ/bookish-octo-doodle/internal/archive"
	"github.com/VidbloqHQ/bookish-octo-doodle/internal/config"
	"github.com/VidbloqHQ/bookish-octo-doodle/internal/domain"
	"github.com/VidbloqHQ/bookish-octo-doodle/internal/server"
	"github.com/VidbloqHQ/bookish-octo-doodle/internal/server/handler"
	"github.com/VidbloqHQ/bookish-octo-doodle/internal/server/ws"
)

// App is the running application: wired dependencies plus the configured
// mode.
type App struct {
	cfg     *config.Config
	deps    *Dependencies
	cleanup func()
	logger  *slog.Logger
}

// New wires the application from configuration.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	deps, cleanup, err := Wire(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &App{cfg: cfg, deps: deps, cleanup: cleanup, logger: logger}, nil
}

// Close releases every wired resource.
func (a *App) Close() {
	if a.cleanup != nil {
		a.cleanup()
	}
}

// Run executes the configured mode until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	switch a.cfg.Mode {
	case "archive":
		return a.runArchiver(ctx, true)
	case "serve", "full":
		return a.runServe(ctx)
	default:
		return fmt.Errorf("app: unknown mode %q", a.cfg.Mode)
	}
}

// runServe starts the HTTP API, the WebSocket hub, the notification pump,
// and (in full mode) the background archiver.
func (a *App) runServe(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(a.deps.SignalBus, a.logger)
	g.Go(func() error {
		err := hub.Run(ctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	if a.cfg.Server.Enabled {
		srv := server.NewServer(
			server.Config{
				Port:        a.cfg.Server.Port,
				CORSOrigins: a.cfg.Server.CORSOrigins,
			},
			server.Handlers{
				Health:  handler.NewHealthHandler(),
				Streams: handler.NewStreamHandler(a.deps.Streams, a.logger),
				Markets: handler.NewMarketHandler(a.deps.Betting, a.deps.Resolutions, a.logger),
				Oracle:  handler.NewOracleHandler(a.deps.Resolutions, a.logger),
			},
			hub,
			a.logger,
		)
		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return a.runNotifier(ctx)
	})

	if a.cfg.Mode == "full" && a.cfg.Archive.Enabled {
		g.Go(func() error {
			return a.runArchiveLoop(ctx)
		})
	}

	return g.Wait()
}

// runNotifier forwards terminal engine events from the signal bus to the
// configured notification channels.
func (a *App) runNotifier(ctx context.Context) error {
	for _, channel := range []string{domain.ChannelStreams, domain.ChannelMarkets} {
		msgs, err := a.deps.SignalBus.Subscribe(ctx, channel)
		if err != nil {
			return fmt.Errorf("app: subscribe %s: %w", channel, err)
		}
		go func() {
			for payload := range msgs {
				var ev domain.Event
				if err := json.Unmarshal(payload, &ev); err != nil {
					continue
				}
				switch ev.Kind {
				case domain.EventStreamEnded:
					_ = a.deps.Notifier.Notify(ctx, ev.Kind, "Stream ended",
						fmt.Sprintf("stream %s ended", ev.Stream))
				case domain.EventMarketResolved:
					_ = a.deps.Notifier.Notify(ctx, ev.Kind, "Market resolved",
						fmt.Sprintf("market %s resolved", ev.Market))
				}
			}
		}()
	}
	<-ctx.Done()
	return nil
}

// runArchiveLoop periodically archives settled streams' journals.
func (a *App) runArchiveLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Archive.Interval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.runArchiver(ctx, false); err != nil {
				a.logger.ErrorContext(ctx, "app: archive pass failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// runArchiver makes one archival pass over terminal streams and returns the
// pass's error. Without a blob writer, oneShot makes that an error; otherwise
// the pass is skipped.
func (a *App) runArchiver(ctx context.Context, oneShot bool) error {
	if a.deps.BlobWriter == nil {
		if oneShot {
			return fmt.Errorf("app: archive mode requires s3.enabled")
		}
		return nil
	}
	arch := archive.NewArchiver(
		a.deps.StreamStore, a.deps.AuditStore, a.deps.BlobWriter,
		a.cfg.Archive.Retention.Duration, a.logger,
	)
	return arch.Run(ctx, time.Now())
}

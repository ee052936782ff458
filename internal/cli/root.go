package cli

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/dashdock/dashdock/internal/config"
	"github.com/dashdock/dashdock/internal/extract"
	"github.com/dashdock/dashdock/internal/mirror"
	"github.com/dashdock/dashdock/internal/pipeline"
	"github.com/dashdock/dashdock/internal/registry"
	"github.com/dashdock/dashdock/internal/transfer"
)

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "dashdock",
		Short: "Offline documentation docset manager",
	}
	rootCmd.AddCommand(
		newAvailableCmd(),
		newInstallCmd(),
		newInstalledCmd(),
		newRemoveCmd(),
		newUpdateCmd(),
		newAddFeedCmd(),
		newConfigCmd(),
	)
	return rootCmd.ExecuteContext(ctx)
}

// app bundles the pipeline with its collaborators for one command run and
// fans pipeline events out to any number of subscribers.
type app struct {
	cfg       *config.Config
	reg       *registry.SQLite
	transfers *transfer.Registry
	pipe      *pipeline.Pipeline

	mu   sync.Mutex
	subs []func(pipeline.Event)
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	fs := afero.NewOsFs()
	reg, err := registry.Open(cfg.IndexFile, cfg.DocsetDir, fs)
	if err != nil {
		return nil, err
	}

	transfers := transfer.NewRegistry(cfg.Client(), "")
	pipe := pipeline.New(transfers, extract.New(), reg,
		mirror.New(cfg.Mirrors), cfg.CatalogURL, fs)

	a := &app{
		cfg:       cfg,
		reg:       reg,
		transfers: transfers,
		pipe:      pipe,
	}
	pipe.OnEvent(a.dispatch)
	return a, nil
}

func (a *app) Close() error {
	return a.reg.Close()
}

func (a *app) subscribe(fn func(pipeline.Event)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subs = append(a.subs, fn)
}

func (a *app) dispatch(e pipeline.Event) {
	a.mu.Lock()
	subs := make([]func(pipeline.Event), len(a.subs))
	copy(subs, a.subs)
	a.mu.Unlock()

	for _, fn := range subs {
		fn(e)
	}
}

// loadCatalog fetches the docset catalog and blocks until it is parsed.
func (a *app) loadCatalog(ctx context.Context) error {
	done := make(chan error, 1)
	a.subscribe(func(e pipeline.Event) {
		switch e.Kind {
		case pipeline.EventCatalogLoaded:
			select {
			case done <- nil:
			default:
			}
		case pipeline.EventError:
			if e.Docset == "" {
				select {
				case done <- e.Err:
				default:
				}
			}
		}
	})

	stopSpinner := withSpinner(ctx, "Fetching docset catalog...")
	defer stopSpinner()

	if err := a.pipe.FetchCatalog(); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		a.pipe.StopAll()
		return ctx.Err()
	}
}

// waitSettled blocks until no transfers are active and no docset has work
// in flight. On interruption everything in flight is cancelled.
func (a *app) waitSettled(ctx context.Context) error {
	kick := make(chan struct{}, 1)
	a.subscribe(func(e pipeline.Event) {
		switch e.Kind {
		case pipeline.EventStateChanged, pipeline.EventUpToDate, pipeline.EventDeleteDone:
			select {
			case kick <- struct{}{}:
			default:
			}
		}
	})

	for {
		if err := a.transfers.WaitIdle(ctx); err != nil {
			a.pipe.StopAll()
			return err
		}
		if a.transfers.ActiveCount() == 0 && len(a.pipe.ActiveDocsets()) == 0 {
			return nil
		}
		select {
		case <-kick:
		case <-ctx.Done():
			a.pipe.StopAll()
			return ctx.Err()
		}
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/DaewiLF/MinerIA/internal/api"
	"github.com/DaewiLF/MinerIA/internal/config"
	"github.com/DaewiLF/MinerIA/internal/guard"
	"github.com/DaewiLF/MinerIA/internal/report"
	"github.com/DaewiLF/MinerIA/internal/session"
	"github.com/DaewiLF/MinerIA/internal/storage"
)

// app is the wiring shared by every command.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	session *session.Store
	client  *api.Client
	guard   *guard.Guard
	reports *report.Downloader
	closers []func() error
}

var openApp = func(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	slog.SetDefault(logger)

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	a := newApp(ctx, cfg, store, logger)
	a.closers = append(a.closers, store.Close)
	return a, nil
}

// newApp wires the session, guard and backend clients over an open store
// and waits for the saved session to be restored.
func newApp(ctx context.Context, cfg config.Config, store *storage.Store, logger *slog.Logger) *app {
	sess := session.New(store, logger)
	<-sess.Restore(ctx)

	return &app{
		cfg:     cfg,
		logger:  logger,
		session: sess,
		client:  api.New(cfg.API.BaseURL, sess, cfg.API.Timeout),
		guard:   guard.New(sess),
		reports: report.New(cfg.API.BaseURL, sess, report.Options{
			OutputDir:   cfg.Report.OutputDir,
			VerifyPDF:   cfg.Report.VerifyPDF,
			Concurrency: cfg.Report.Concurrency,
			Timeout:     cfg.API.Timeout,
			Logger:      logger,
		}),
	}
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// require runs the route guard for path and fails unless it is permitted.
func (a *app) require(path string) error {
	d := a.guard.Resolve(path)
	if d.Action == guard.Permit {
		return nil
	}
	if d.Target == guard.PathLogin {
		return errNotLoggedIn
	}
	return fmt.Errorf("%s is not a known destination", path)
}

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	contractioninadapter "laborwatch/internal/modules/contraction/adapter/in"
	contractionoutadapter "laborwatch/internal/modules/contraction/adapter/out"
	"laborwatch/internal/modules/contraction/domain"
	contractionin "laborwatch/internal/modules/contraction/port/in"
	contractionout "laborwatch/internal/modules/contraction/port/out"
	contractionservice "laborwatch/internal/modules/contraction/service"
	contractionusecase "laborwatch/internal/modules/contraction/usecase"
	"laborwatch/internal/platform/clock"
	"laborwatch/internal/platform/config"
	"laborwatch/internal/platform/id"
	"laborwatch/internal/platform/logging"
	uiapp "laborwatch/internal/ui/app"
)

// Mode selects how the process shares state and where it logs.
type Mode int

const (
	// ModeCLI runs one command; timing is shared with other runs through the
	// active timing file.
	ModeCLI Mode = iota
	// ModeTUI owns the terminal, so logs go to a file and timing stays in
	// process.
	ModeTUI
	// ModeServe runs the HTTP server and shares timing with CLI runs.
	ModeServe
)

type Options struct {
	Mode Mode
	// Ephemeral keeps history in memory instead of SQLite.
	Ephemeral bool
	// LogOutput overrides the default log destination.
	LogOutput io.Writer
	// BellOutput receives the terminal bell; defaults to stderr.
	BellOutput io.Writer
}

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	CLI     contractioninadapter.CLIHandler
	Usecase contractionin.Usecase
	Tracker *contractionservice.TrackerService

	closers []func() error
}

func New(cfg config.Config, opts Options) (*App, error) {
	cfg = cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var closers []func() error
	logOut := opts.LogOutput
	if logOut == nil {
		logOut = os.Stderr
		if opts.Mode == ModeTUI {
			f, err := openLogFile(cfg.LogPath())
			if err != nil {
				return nil, err
			}
			logOut = f
			closers = append(closers, f.Close)
		}
	}
	logger, err := logging.New(logOut, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	classifier, err := ClassifierFrom(cfg)
	if err != nil {
		return nil, err
	}
	mode, err := domain.ParseSeriesMode(cfg.Series.Mode)
	if err != nil {
		return nil, err
	}

	var ledger contractionout.Ledger
	if opts.Ephemeral {
		ledger = contractionoutadapter.NewMemoryLedger()
	} else {
		sqliteLedger, err := contractionoutadapter.NewSQLiteLedger(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("new contraction ledger: %w", err)
		}
		ledger = sqliteLedger
		closers = append(closers, sqliteLedger.Close)
	}

	clk := clock.SystemClock{}
	ids := id.UUID{}
	svc := contractionservice.NewTrackerService(
		clk,
		ledger,
		buildNotifier(cfg, opts, ids, logger),
		classifier,
		contractionservice.NewFeed(mode),
		logger,
	)
	if err := svc.Warm(context.Background()); err != nil {
		// history stays readable through the cache; classification starts cold
		logger.Warn("cold start without ledger history", "err", err)
	}

	var activeStore contractionout.ActiveTimingStore
	if opts.Mode != ModeTUI {
		activeStore = contractionoutadapter.NewFileActiveTimingStore(cfg.ActiveTimingPath())
	}
	uc := contractionusecase.NewInteractor(svc, activeStore, contractionoutadapter.NewMarkdownExporter(cfg.DataDir, clk), ids, logger)

	return &App{
		Config:  cfg,
		Logger:  logger,
		CLI:     contractioninadapter.NewCLIHandler(uc),
		Usecase: uc,
		Tracker: svc,
		closers: closers,
	}, nil
}

// Close waits for pending urgent alerts, so a short-lived stop still
// delivers them, then releases storage and log files.
func (a *App) Close() error {
	a.Tracker.WaitAlerts()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ClassifierFrom builds the rolling-window classifier from config.
func ClassifierFrom(cfg config.Config) (domain.Classifier, error) {
	return domain.NewClassifier(domain.Policy{
		Window:           cfg.Classifier.Window,
		UrgentBelow:      cfg.Classifier.UrgentBelow,
		ApproachingBelow: cfg.Classifier.ApproachingBelow,
	})
}

func buildNotifier(cfg config.Config, opts Options, ids id.Generator, logger *slog.Logger) contractionout.AlertNotifier {
	notifiers := contractionoutadapter.MultiNotifier{contractionoutadapter.NewLogNotifier(logger)}
	if cfg.Alerts.Bell && opts.Mode != ModeServe {
		bell := opts.BellOutput
		if bell == nil {
			bell = os.Stderr
		}
		notifiers = append(notifiers, contractionoutadapter.NewBellNotifier(bell))
	}
	if cfg.Alerts.WebhookURL != "" {
		notifiers = append(notifiers, contractionoutadapter.NewWebhookNotifier(cfg.Alerts.WebhookURL, ids))
	}
	return notifiers
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

func RunTUI(app *App) error {
	model := uiapp.NewModel(app.Usecase)
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err := program.Run()
	return err
}

// Serve runs the HTTP API until ctx is cancelled. When configPath exists it is
// watched and classifier or series changes apply without a restart.
func Serve(ctx context.Context, app *App, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hub := contractioninadapter.NewSeriesHub(app.Usecase, app.Logger)
	go hub.Run(ctx)

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			go func() {
				if err := config.Watch(ctx, configPath, app.Logger, func(cfg config.Config) {
					ApplyReload(app, cfg)
				}); err != nil {
					app.Logger.Error("config watch stopped", "err", err)
				}
			}()
		}
	}

	server := &http.Server{
		Addr:              app.Config.HTTP.Addr,
		Handler:           contractioninadapter.NewHTTPHandler(app.Usecase, hub, app.Logger).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		app.Logger.Info("http server listening", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		return server.Shutdown(shutdownCtx)
	}
}

// ApplyReload swaps in the parts of cfg that can change while running.
func ApplyReload(app *App, cfg config.Config) {
	classifier, err := ClassifierFrom(cfg)
	if err != nil {
		app.Logger.Error("reload classifier", "err", err)
		return
	}
	mode, err := domain.ParseSeriesMode(cfg.Series.Mode)
	if err != nil {
		app.Logger.Error("reload series mode", "err", err)
		return
	}
	app.Tracker.SetClassifier(classifier)
	app.Tracker.Feed().SetMode(mode)
	app.Logger.Info("classifier reloaded", "window", cfg.Classifier.Window, "series_mode", string(mode))
}

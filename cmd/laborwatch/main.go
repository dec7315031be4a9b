package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"laborwatch/internal/bootstrap"
	"laborwatch/internal/modules/contraction/dto"
	"laborwatch/internal/platform/config"
	"laborwatch/internal/platform/markdown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	dataDir    string
	ephemeral  bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "laborwatch",
		Short:         "Time contractions and track labor urgency",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default ~/.laborwatch/config.yaml)")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "data directory (overrides config)")
	root.PersistentFlags().BoolVar(&flags.ephemeral, "ephemeral", false, "keep history in memory only")

	root.AddCommand(newStartCmd(flags))
	root.AddCommand(newStopCmd(flags))
	root.AddCommand(newResetCmd(flags))
	root.AddCommand(newStatusCmd(flags))
	root.AddCommand(newHistoryCmd(flags))
	root.AddCommand(newSeriesCmd(flags))
	root.AddCommand(newSummaryCmd(flags))
	root.AddCommand(newExportCmd(flags))
	root.AddCommand(newReportCmd(flags))
	root.AddCommand(newTUICmd(flags))
	root.AddCommand(newServeCmd(flags))
	return root
}

func (f *globalFlags) resolvedConfigPath() string {
	if f.configPath != "" {
		return f.configPath
	}
	return config.DefaultConfigPath()
}

func loadApp(flags *globalFlags, mode bootstrap.Mode) (*bootstrap.App, error) {
	cfg, err := config.Load(flags.resolvedConfigPath())
	if err != nil {
		return nil, err
	}
	if flags.dataDir != "" {
		cfg.DataDir = flags.dataDir
		cfg.DBPath = ""
	}
	return bootstrap.New(cfg, bootstrap.Options{Mode: mode, Ephemeral: flags.ephemeral})
}

// withApp runs fn against a CLI-mode app and closes it afterwards.
func withApp(flags *globalFlags, fn func(ctx context.Context, app *bootstrap.App) error) error {
	app, err := loadApp(flags, bootstrap.ModeCLI)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(context.Background(), app)
}

func newStartCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start timing a contraction",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, func(ctx context.Context, app *bootstrap.App) error {
				out, err := app.CLI.Start(ctx)
				if err != nil {
					return err
				}
				if !out.Started {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "already timing since %s\n", out.StartedAt.Local().Format(time.TimeOnly))
					return nil
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "timing started: %s at=%s\n", out.TimingID, out.StartedAt.Local().Format(time.TimeOnly))
				return nil
			})
		},
	}
}

func newStopCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running contraction and classify",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, func(ctx context.Context, app *bootstrap.App) error {
				out, err := app.CLI.Stop(ctx)
				if err != nil {
					return err
				}
				if !out.Completed {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no contraction is being timed")
					return nil
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "contraction recorded: duration=%s level=%s\n", formatSeconds(out.Event.DurationSec), out.Level)
				if out.StorageError != "" {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: not saved to history: %s\n", out.StorageError)
				}
				if out.Warning != "" {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", out.Warning)
				}
				return nil
			})
		},
	}
}

func newResetCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Discard the running contraction without recording it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, func(ctx context.Context, app *bootstrap.App) error {
				if err := app.CLI.Reset(ctx); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "timer reset")
				return nil
			})
		},
	}
}

func newStatusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show timer state and current urgency",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, func(ctx context.Context, app *bootstrap.App) error {
				out, err := app.CLI.Status(ctx)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "state: %s\nlevel: %s\n", out.State, out.Level)
				if out.State == "timing" {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "elapsed: %s\n", formatSeconds(out.ElapsedSec))
				}
				return nil
			})
		},
	}
}

func newHistoryCmd(flags *globalFlags) *cobra.Command {
	var order string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded contractions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, func(ctx context.Context, app *bootstrap.App) error {
				events, err := app.CLI.History(ctx, order)
				if err != nil && len(events) == 0 {
					return err
				}
				if err != nil {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), events)
				}
				if len(events) == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no contractions recorded")
					return nil
				}
				for _, e := range events {
					ref := fmt.Sprintf("%d", e.ID)
					if !e.Persisted {
						ref = "unsaved"
					}
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", ref, e.StartedAt.Local().Format(time.DateTime), formatSeconds(e.DurationSec), e.Status)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&order, "order", "newest", "newest|oldest")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newSeriesCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "series",
		Short: "Print the live chart series as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, func(ctx context.Context, app *bootstrap.App) error {
				out, err := app.CLI.Series(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), out)
			})
		},
	}
}

func newSummaryCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show rolling statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, func(ctx context.Context, app *bootstrap.App) error {
				out, err := app.CLI.Summary(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), out)
				}
				printSummary(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newExportCmd(flags *globalFlags) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write history to a markdown note",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, func(ctx context.Context, app *bootstrap.App) error {
				out, err := app.CLI.Export(ctx, outPath)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "exported %d contractions to %s\n", out.Records, out.Path)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "output path (default <data-dir>/exports/contractions-<date>.md)")
	return cmd
}

func newReportCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Render history in the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, func(ctx context.Context, app *bootstrap.App) error {
				note, err := app.CLI.Report(ctx)
				if err != nil {
					return err
				}
				renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
				if err != nil {
					return err
				}
				_, body, err := markdown.Split(note)
				if err != nil {
					return err
				}
				rendered, err := renderer.Render(body)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprint(cmd.OutOrStdout(), rendered)
				return nil
			})
		},
	}
}

func newTUICmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Run the contraction timer UI",
		RunE: func(_ *cobra.Command, _ []string) error {
			app, err := loadApp(flags, bootstrap.ModeTUI)
			if err != nil {
				return err
			}
			defer app.Close()
			return bootstrap.RunTUI(app)
		},
	}
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, live series websocket and metrics",
		RunE: func(_ *cobra.Command, _ []string) error {
			app, err := loadApp(flags, bootstrap.ModeServe)
			if err != nil {
				return err
			}
			defer app.Close()
			if addr != "" {
				app.Config.HTTP.Addr = addr
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return bootstrap.Serve(ctx, app, flags.resolvedConfigPath())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func printSummary(w io.Writer, out dto.SummaryOutput) {
	_, _ = fmt.Fprintf(w, "recorded: %d\nlevel: %s\n", out.Count, out.Level)
	if out.Count == 0 {
		return
	}
	if out.Count >= out.Window {
		_, _ = fmt.Fprintf(w, "mean of last %d: %s\n", out.Window, formatSeconds(out.WindowMeanSec))
	}
	_, _ = fmt.Fprintf(w, "mean: %s min: %s max: %s\n", formatSeconds(out.MeanSec), formatSeconds(out.MinSec), formatSeconds(out.MaxSec))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatSeconds(sec float64) string {
	return (time.Duration(sec * float64(time.Second))).Round(time.Second).String()
}

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/panelguard/panelguard/config"
	"github.com/panelguard/panelguard/engine"
	"github.com/panelguard/panelguard/probe/memhost"
)

// DemoReport is the JSON payload of the demo command.
type DemoReport struct {
	Containers []DemoContainer     `json:"containers"`
	Health     engine.HealthReport `json:"health"`
}

// DemoContainer summarizes one demo container after the run.
type DemoContainer struct {
	ID           string `json:"id"`
	ElementCount int    `json:"element_count"`
	LastOutcome  string `json:"last_outcome,omitempty"`
}

// NewDemoCommand creates the demo command.
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		containers int
		updates    int
	)
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted burst of updates against an in-memory host",
		Long: `Run a demo against an in-memory host.

Creates a handful of containers, drives a burst of updates through the full
coordination pipeline (throttling, locking, size monitoring, corruption
checks) and prints the resulting health report. Useful for a first look at
the engine's behavior without wiring a real host.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(rootOpts, cmd, containers, updates)
		},
	}
	cmd.Flags().IntVar(&containers, "containers", 3, "number of demo containers")
	cmd.Flags().IntVar(&updates, "updates", 5, "updates per container")
	return cmd
}

func runDemo(opts *RootOptions, cmd *cobra.Command, containers, updates int) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	host := memhost.New()
	cfg := config.Default()
	cfg.ThrottleInterval = 50 * time.Millisecond

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), demoLogLevel(opts)))
	eng, err := engine.New(host, cfg, engine.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "create engine", err)
	}

	ctx := context.Background()
	entries := make([]engine.BatchEntry, 0, containers)
	for i := 0; i < containers; i++ {
		id := fmt.Sprintf("panel-%d", i)
		host.CreateContainer(id)
		entries = append(entries, engine.BatchEntry{
			ContainerID: id,
			Update:      demoUpdate(host, id, updates),
			Options:     engine.UpdateOptions{BypassThrottle: true},
		})
	}

	formatter.VerboseLog("Running %d updates across %d containers", containers*updates, containers)
	results, err := eng.CoordinateUpdates(ctx, entries, engine.BatchOptions{})
	if err != nil {
		return WrapExitError(ExitFailure, "batch did not complete", err)
	}
	for _, r := range results {
		if r.Err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("update of %s failed", r.ContainerID), r.Err)
		}
	}

	report := DemoReport{Health: eng.PerformHealthCheck()}
	for _, entry := range entries {
		count, err := host.ElementCount(entry.ContainerID)
		if err != nil {
			return WrapExitError(ExitCommandError, "inspect demo container", err)
		}
		report.Containers = append(report.Containers, DemoContainer{
			ID:           entry.ContainerID,
			ElementCount: count,
		})
	}

	if opts.Format == "json" {
		return formatter.Success(report)
	}

	var b strings.Builder
	for _, c := range report.Containers {
		fmt.Fprintf(&b, "%s: %d elements\n", c.ID, c.ElementCount)
	}
	b.WriteString(report.Health.String())
	fmt.Fprintln(cmd.OutOrStdout(), b.String())
	return nil
}

func demoUpdate(host *memhost.Host, id string, updates int) engine.UpdateFunc {
	return func(ctx context.Context, data any) error {
		for i := 0; i < updates; i++ {
			host.Append(id, memhost.Element{
				Tag:  "item",
				Text: fmt.Sprintf("%s update %d", id, i+1),
			})
		}
		return nil
	}
}

func demoLogLevel(opts *RootOptions) *slog.HandlerOptions {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return &slog.HandlerOptions{Level: level}
}

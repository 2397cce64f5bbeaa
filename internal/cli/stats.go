package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/panelguard/panelguard/engine"
	"github.com/panelguard/panelguard/internal/harness"
	"github.com/panelguard/panelguard/perf"
	"github.com/panelguard/panelguard/sizemon"
	"github.com/panelguard/panelguard/throttle"
)

// StatsReport bundles every stats surface after a scenario run.
type StatsReport struct {
	Scenario   string                    `json:"scenario"`
	Pass       bool                      `json:"pass"`
	Errors     []string                  `json:"errors,omitempty"`
	Engine     engine.EngineStatus       `json:"engine"`
	Size       sizemon.Rollup            `json:"size"`
	Throttling map[string]throttle.Stats `json:"throttling"`
	Timing     map[string]perf.OpStats   `json:"timing"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <scenario-file>",
		Short: "Run a scenario and dump engine statistics",
		Long: `Run a YAML scenario and dump the engine's statistics surfaces.

The scenario executes against a fresh in-memory host exactly as the
conformance tests run it. Afterwards the command prints coordination counts,
per-container size bands, throttle counters and operation timings.
Exits non-zero when a scenario assertion fails.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(rootOpts, args[0], cmd)
		},
	}
}

func runStats(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		if ferr := formatter.Error(ErrCodeScenario, err.Error(), nil); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitCommandError, "load scenario", err)
	}
	formatter.VerboseLog("Loaded scenario %q (%d steps)", scenario.Name, len(scenario.Steps))

	result, eng, err := harness.RunWithEngine(scenario)
	if err != nil {
		if ferr := formatter.Error(ErrCodeScenario, err.Error(), nil); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitCommandError, "run scenario", err)
	}

	report := StatsReport{
		Scenario:   scenario.Name,
		Pass:       result.Pass,
		Errors:     result.Errors,
		Engine:     eng.Status(),
		Size:       eng.SizeStats(),
		Throttling: eng.ThrottlingStats(),
		Timing:     eng.TimingStats(),
	}

	if opts.Format == "json" {
		if err := formatter.Success(report); err != nil {
			return err
		}
	} else {
		printStatsText(cmd, report)
	}

	if !result.Pass {
		return NewExitError(ExitFailure, "scenario assertions failed")
	}
	return nil
}

func printStatsText(cmd *cobra.Command, report StatsReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "scenario %s: pass=%v\n", report.Scenario, report.Pass)
	for _, e := range report.Errors {
		fmt.Fprintf(out, "  assertion failed: %s\n", e)
	}
	fmt.Fprintf(out, "engine: active=%d queued=%d errors=%d\n",
		report.Engine.ActiveUpdates, report.Engine.QueuedUpdates, report.Engine.ErrorCount)
	for _, rec := range report.Size.Records {
		fmt.Fprintf(out, "container %s: %d elements (%.0f%% of limit, %s)\n",
			rec.ContainerID, rec.ElementCount, rec.PercentOfLimit, rec.Band)
	}
	for id, st := range report.Throttling {
		fmt.Fprintf(out, "throttle %s: runs=%d coalesced=%d cancels=%d\n",
			id, st.Runs, st.Coalesced, st.Cancels)
	}
	for op, st := range report.Timing {
		fmt.Fprintf(out, "timing %s: count=%d avg=%v trend=%s\n",
			op, st.Count, st.Average, st.Trend)
	}
}

package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/PTX/display"
	"github.com/teranos/PTX/errors"
	"github.com/teranos/PTX/pulse/async"
	"github.com/teranos/PTX/run"
)

// BatchCmd runs a template over every record of a dataset in this process
var BatchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run a template over every record of a dataset",
	Long: `Run a template over every record of a dataset.

The first --bind binding is iterated; every other binding resolves as in a
single run. The batch runs in this process and prints a summary when it
finishes. Use --save to write the results to the configured result sink.
To submit to a running server instead, POST /llm/batch and follow it with
'ptx job watch'.

Examples:
  ptx batch -t greet -b people:person
  ptx batch -t classify -b reviews:review -p structured --schema s.yaml --save reviews-2024`,
	Args: cobra.NoArgs,
	RunE: runBatch,
}

var (
	batchFlags requestFlags
	batchSave  string
)

func init() {
	BatchCmd.Flags().StringVar(&dbPathFlag, "db-path", "", "Custom database path (overrides config)")
	BatchCmd.Flags().StringVar(&batchSave, "save", "", "Save results under this name when the batch completes")
	batchFlags.register(BatchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if batchSave != "" {
		if err := run.ValidateResultName(batchSave); err != nil {
			return err
		}
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	req, err := batchFlags.build(ctx, cmd, s)
	if err != nil {
		return err
	}

	s.services.Pool.Start()
	jobID, err := s.services.Engine.Submit(ctx, req)
	if err != nil {
		return err
	}

	final, err := waitForJob(ctx, s.services.Engine, jobID, !display.ShouldOutputJSON(cmd))
	if err != nil {
		return err
	}
	if final.Status != async.JobStatusCompleted {
		return errors.Newf("batch %s %s: %s", jobID, final.Status, final.Error)
	}

	entries, err := s.services.Engine.Result(jobID)
	if err != nil {
		return err
	}

	var location string
	if batchSave != "" {
		location, err = s.services.Engine.Save(ctx, jobID, batchSave)
		if err != nil {
			return err
		}
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(map[string]any{
			"job_id":  jobID,
			"results": entries,
			"path":    location,
		})
	}

	printBatchSummary(entries)
	if location != "" {
		pterm.Success.Printf("Results saved to %s\n", location)
	}
	return nil
}

// waitForJob follows a job until it is terminal, drawing a progress bar
// when showProgress is set.
func waitForJob(ctx context.Context, engine *run.Engine, jobID string, showProgress bool) (run.JobStatus, error) {
	updates, err := engine.Watch(ctx, jobID)
	if err != nil {
		return run.JobStatus{}, err
	}

	var bar *pterm.ProgressbarPrinter
	var last run.JobStatus
	for status := range updates {
		last = status
		if !showProgress || status.Total == 0 {
			continue
		}
		if bar == nil {
			bar, _ = pterm.DefaultProgressbar.WithTotal(status.Total).WithTitle("Batch " + jobID[:8]).Start()
		}
		if delta := status.Progress - bar.Current; delta > 0 {
			bar.Add(delta)
		}
	}
	if bar != nil {
		_, _ = bar.Stop()
	}

	if !last.Status.Terminal() {
		return last, errors.Wrapf(ctx.Err(), "stopped waiting for job %s", jobID)
	}
	return last, nil
}

func printBatchSummary(entries []run.Entry) {
	failed := 0
	kinds := map[string]int{}
	for _, e := range entries {
		if e.Failed() {
			failed++
			kinds[string(e.ErrorKind)]++
		}
	}

	pterm.Info.Printf("%d records, %d succeeded, %d failed\n", len(entries), len(entries)-failed, failed)
	if failed == 0 {
		return
	}
	rows := pterm.TableData{{"Error kind", "Records"}}
	for kind, n := range kinds {
		rows = append(rows, []string{kind, pterm.Sprint(n)})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

package commands

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/PTX/display"
	"github.com/teranos/PTX/run"
)

// JobCmd inspects batch jobs held by a running server
var JobCmd = &cobra.Command{
	Use:   "job",
	Short: "Inspect and save batch jobs on a running server",
	Long: `Inspect and save batch jobs on a running server.

Jobs live in the server's memory, so these commands talk to its HTTP API.
By default they target http://localhost:<server.port>.

Examples:
  ptx job ls
  ptx job watch 3f2a...
  ptx job save 3f2a... greetings`,
}

var jobStatusFilter string

var jobListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List retained jobs, newest first",
	Args:    cobra.NoArgs,
	RunE:    runJobList,
}

var jobStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a job's status and progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobStatus,
}

var jobResultCmd = &cobra.Command{
	Use:   "result <job-id>",
	Short: "Print a completed job's results as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobResult,
}

var jobSaveCmd = &cobra.Command{
	Use:   "save <job-id> <name>",
	Short: "Save a completed job's results to the server's result sink",
	Args:  cobra.ExactArgs(2),
	RunE:  runJobSave,
}

var jobWatchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Follow a job's progress until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobWatch,
}

func init() {
	JobCmd.PersistentFlags().StringVar(&serverURLFlag, "server", "", "Server URL (default http://localhost:<server.port>)")

	jobListCmd.Flags().StringVar(&jobStatusFilter, "status", "", "Only list jobs in this state (running, completed, failed)")
	JobCmd.AddCommand(jobListCmd)
	JobCmd.AddCommand(jobStatusCmd)
	JobCmd.AddCommand(jobResultCmd)
	JobCmd.AddCommand(jobSaveCmd)
	JobCmd.AddCommand(jobWatchCmd)
}

func statusRow(s run.JobStatus) []string {
	return []string{
		s.JobID,
		string(s.Status),
		pterm.Sprintf("%d/%d (%.0f%%)", s.Progress, s.Total, s.Percent),
		s.UpdatedAt.Local().Format(time.DateTime),
		s.Error,
	}
}

func runJobList(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient(serverURLFlag)
	if err != nil {
		return err
	}
	jobs, err := client.jobs(cmd.Context(), jobStatusFilter)
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(jobs)
	}
	if len(jobs) == 0 {
		pterm.Info.Println("No jobs")
		return nil
	}

	rows := pterm.TableData{{"Job", "Status", "Progress", "Updated", "Error"}}
	for _, j := range jobs {
		rows = append(rows, statusRow(j))
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func runJobStatus(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient(serverURLFlag)
	if err != nil {
		return err
	}
	status, err := client.status(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(status)
	}
	rows := pterm.TableData{{"Job", "Status", "Progress", "Updated", "Error"}, statusRow(status)}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func runJobResult(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient(serverURLFlag)
	if err != nil {
		return err
	}
	entries, err := client.result(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return display.OutputJSON(entries)
}

func runJobSave(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient(serverURLFlag)
	if err != nil {
		return err
	}
	path, err := client.save(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(map[string]string{"path": path})
	}
	pterm.Success.Printf("Results saved to %s\n", path)
	return nil
}

func runJobWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := newAPIClient(serverURLFlag)
	if err != nil {
		return err
	}

	jsonOut := display.ShouldOutputJSON(cmd)
	var bar *pterm.ProgressbarPrinter
	var last run.JobStatus
	err = client.watch(ctx, args[0], func(s run.JobStatus) {
		last = s
		if jsonOut {
			_ = display.OutputJSON(s)
			return
		}
		if s.Total == 0 {
			return
		}
		if bar == nil {
			bar, _ = pterm.DefaultProgressbar.WithTotal(s.Total).WithTitle("Job " + s.JobID).Start()
		}
		if delta := s.Progress - bar.Current; delta > 0 {
			bar.Add(delta)
		}
	})
	if bar != nil {
		_, _ = bar.Stop()
	}
	if err != nil {
		return err
	}

	if !jsonOut {
		switch {
		case last.Error != "":
			pterm.Error.Printf("Job %s %s: %s\n", last.JobID, last.Status, last.Error)
		default:
			pterm.Success.Printf("Job %s %s\n", last.JobID, last.Status)
		}
	}
	return nil
}

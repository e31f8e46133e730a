package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/PTX/display"
	"github.com/teranos/PTX/errors"
	"github.com/teranos/PTX/run"
)

// RunCmd runs a template once
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Render a template, call the model and parse the reply once",
	Long: `Render a template, call the model and parse the reply once.

Record bindings take record 0 of their dataset. The result is printed even
when a step fails; the command then exits non-zero.

Examples:
  ptx run --text 'Say hi to {{ person.name }}' --bind people:person
  ptx run -t classify -b reviews:review -p structured --schema sentiment.yaml
  ptx run -t extract -b pages:page -p python --transform parse.py`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var runFlags requestFlags

func init() {
	RunCmd.Flags().StringVar(&dbPathFlag, "db-path", "", "Custom database path (overrides config)")
	runFlags.register(RunCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	req, err := runFlags.build(ctx, cmd, s)
	if err != nil {
		return err
	}

	result := s.services.Executor.Execute(ctx, req, nil)
	if err := printResult(cmd, result); err != nil {
		return err
	}
	if result.Failed() {
		return errors.Newf("run failed [%s]", result.ErrorKind)
	}
	return nil
}

func printResult(cmd *cobra.Command, result run.Result) error {
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(result)
	}

	out := cmd.OutOrStdout()
	pterm.DefaultSection.WithWriter(out).Println("Raw response")
	fmt.Fprintln(out, result.RawResponse)

	if result.Failed() {
		pterm.Error.Printf("%s: %s\n", result.ErrorKind, result.Error)
		return nil
	}

	if s, ok := result.ParsedResponse.(string); ok && s == result.RawResponse {
		return nil
	}
	pterm.DefaultSection.WithWriter(out).Println("Parsed response")
	data, err := display.MarshalJSON(result.ParsedResponse)
	if err != nil {
		return errors.Wrap(err, "failed to encode parsed response")
	}
	fmt.Fprintln(out, string(data))
	return nil
}

package commands

import (
	"context"
	"os"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/PTX/datasets"
	"github.com/teranos/PTX/display"
	"github.com/teranos/PTX/errors"
)

// DatasetCmd manages datasets
var DatasetCmd = &cobra.Command{
	Use:     "dataset",
	Aliases: []string{"ds"},
	Short:   "Manage datasets",
	Long: `Manage datasets.

Datasets are .jsonl (one JSON value per line), .json (an array or a single
object) or .txt (one text record) files. They are referenced by id or name.`,
}

var datasetListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List datasets",
	Args:    cobra.NoArgs,
	RunE:    runDatasetList,
}

var datasetUploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Store a local file as a dataset",
	Args:  cobra.ExactArgs(1),
	RunE:  runDatasetUpload,
}

var datasetImportCmd = &cobra.Command{
	Use:   "import <url>",
	Short: "Download a dataset over HTTP(S)",
	Args:  cobra.ExactArgs(1),
	RunE:  runDatasetImport,
}

var datasetShowCmd = &cobra.Command{
	Use:   "show <dataset>",
	Short: "Show a dataset's metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runDatasetShow,
}

var datasetRecordCmd = &cobra.Command{
	Use:   "record <dataset> <index>",
	Short: "Print one record of a dataset",
	Args:  cobra.ExactArgs(2),
	RunE:  runDatasetRecord,
}

var datasetRemoveCmd = &cobra.Command{
	Use:     "rm <dataset>",
	Aliases: []string{"delete"},
	Short:   "Delete a dataset",
	Args:    cobra.ExactArgs(1),
	RunE:    runDatasetRemove,
}

var (
	datasetName   string
	datasetFormat string
)

func init() {
	DatasetCmd.PersistentFlags().StringVar(&dbPathFlag, "db-path", "", "Custom database path (overrides config)")

	datasetUploadCmd.Flags().StringVar(&datasetName, "name", "", "Dataset name (default: file name without extension)")
	datasetImportCmd.Flags().StringVar(&datasetName, "name", "", "Dataset name (default: derived from the URL)")
	datasetImportCmd.Flags().StringVar(&datasetFormat, "format", "", "Dataset format: jsonl, json, txt (default: derived from the URL)")

	DatasetCmd.AddCommand(datasetListCmd)
	DatasetCmd.AddCommand(datasetUploadCmd)
	DatasetCmd.AddCommand(datasetImportCmd)
	DatasetCmd.AddCommand(datasetShowCmd)
	DatasetCmd.AddCommand(datasetRecordCmd)
	DatasetCmd.AddCommand(datasetRemoveCmd)
}

// resolveDataset finds a dataset id by id, then by name
func resolveDataset(ctx context.Context, store *datasets.Store, ref string) (string, error) {
	if _, err := store.Get(ctx, ref); err == nil {
		return ref, nil
	} else if !errors.Is(err, errors.ErrDatasetNotFound) {
		return "", err
	}

	metas, err := store.List(ctx)
	if err != nil {
		return "", err
	}
	for _, m := range metas {
		if m.Name == ref {
			return m.ID, nil
		}
	}
	return "", errors.Wrapf(errors.ErrDatasetNotFound, "dataset %q", ref)
}

func printDatasetMeta(cmd *cobra.Command, m *datasets.Meta) error {
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(m)
	}
	records := "?"
	if m.NumRecords != nil {
		records = strconv.Itoa(*m.NumRecords)
	}
	rows := pterm.TableData{
		{"ID", m.ID},
		{"Name", m.Name},
		{"Format", string(m.Format)},
		{"Records", records},
	}
	if m.SourceURL != "" {
		rows = append(rows, []string{"Source", m.SourceURL})
	}
	return pterm.DefaultTable.WithData(rows).Render()
}

func runDatasetList(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	metas, err := s.services.Datasets.List(cmd.Context())
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(metas)
	}
	if len(metas) == 0 {
		pterm.Info.Println("No datasets yet. Add one with: ptx dataset upload <file>")
		return nil
	}

	rows := pterm.TableData{{"ID", "Name", "Format", "Records"}}
	for _, m := range metas {
		records := "?"
		if m.NumRecords != nil {
			records = strconv.Itoa(*m.NumRecords)
		}
		rows = append(rows, []string{m.ID, m.Name, string(m.Format), records})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func runDatasetUpload(cmd *cobra.Command, args []string) error {
	name, format, err := datasets.SplitFilename(args[0])
	if err != nil {
		return err
	}
	if datasetName != "" {
		name = datasetName
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", args[0])
	}

	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	meta, err := s.services.Datasets.Put(cmd.Context(), data, name, format)
	if err != nil {
		return err
	}
	if !display.ShouldOutputJSON(cmd) {
		pterm.Success.Printf("Stored dataset %s\n", meta.Name)
	}
	return printDatasetMeta(cmd, meta)
}

func runDatasetImport(cmd *cobra.Command, args []string) error {
	var format datasets.Format
	if datasetFormat != "" {
		f, err := datasets.ParseFormat(datasetFormat)
		if err != nil {
			return err
		}
		format = f
	}

	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	spinner, _ := pterm.DefaultSpinner.Start("Downloading " + args[0])
	meta, err := s.services.Importer.Import(cmd.Context(), args[0], datasetName, format)
	if err != nil {
		spinner.Fail("Import failed")
		return err
	}
	spinner.Success("Imported dataset " + meta.Name)
	return printDatasetMeta(cmd, meta)
}

func runDatasetShow(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := resolveDataset(cmd.Context(), s.services.Datasets, args[0])
	if err != nil {
		return err
	}
	ds, err := s.services.Datasets.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	return printDatasetMeta(cmd, &ds.Meta)
}

func runDatasetRecord(cmd *cobra.Command, args []string) error {
	index, err := strconv.Atoi(args[1])
	if err != nil {
		return errors.NewInvalidInputf("record index must be an integer, got %q", args[1])
	}

	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := resolveDataset(cmd.Context(), s.services.Datasets, args[0])
	if err != nil {
		return err
	}
	record, err := s.services.Datasets.GetRecord(cmd.Context(), id, index)
	if err != nil {
		return err
	}
	return display.OutputJSON(record)
}

func runDatasetRemove(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := resolveDataset(cmd.Context(), s.services.Datasets, args[0])
	if err != nil {
		return err
	}
	if err := s.services.Datasets.Delete(cmd.Context(), id); err != nil {
		return err
	}
	pterm.Success.Printf("Deleted dataset %s\n", args[0])
	return nil
}

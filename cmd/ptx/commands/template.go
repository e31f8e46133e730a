package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/PTX/display"
	"github.com/teranos/PTX/errors"
	"github.com/teranos/PTX/run/render"
	"github.com/teranos/PTX/templates"
)

// TemplateCmd manages stored prompt templates
var TemplateCmd = &cobra.Command{
	Use:     "template",
	Aliases: []string{"tpl"},
	Short:   "Manage prompt templates",
	Long: `Manage prompt templates.

Templates are referenced by id or by name. A template may start with YAML
(---) or TOML (+++) frontmatter declaring model defaults:

  ---
  model: gpt-4o-mini
  temperature: 0.2
  ---
  Summarize {{ article.text }}`,
}

var templateListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List templates",
	Args:    cobra.NoArgs,
	RunE:    runTemplateList,
}

var templateShowCmd = &cobra.Command{
	Use:   "show <template>",
	Short: "Print a template's source",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateShow,
}

var templateCreateCmd = &cobra.Command{
	Use:   "create <name> [file|-]",
	Short: "Create a template from a file, stdin, or your editor",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runTemplateCreate,
}

var templateEditCmd = &cobra.Command{
	Use:   "edit <template>",
	Short: "Edit a template in $EDITOR",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateEdit,
}

var templateRenameCmd = &cobra.Command{
	Use:   "rename <template> <new-name>",
	Short: "Rename a template",
	Args:  cobra.ExactArgs(2),
	RunE:  runTemplateRename,
}

var templateRemoveCmd = &cobra.Command{
	Use:     "rm <template>",
	Aliases: []string{"delete"},
	Short:   "Delete a template",
	Args:    cobra.ExactArgs(1),
	RunE:    runTemplateRemove,
}

var templateCheckCmd = &cobra.Command{
	Use:   "check <template|file>",
	Short: "Check frontmatter and template syntax without calling a model",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateCheck,
}

func init() {
	TemplateCmd.PersistentFlags().StringVar(&dbPathFlag, "db-path", "", "Custom database path (overrides config)")

	TemplateCmd.AddCommand(templateListCmd)
	TemplateCmd.AddCommand(templateShowCmd)
	TemplateCmd.AddCommand(templateCreateCmd)
	TemplateCmd.AddCommand(templateEditCmd)
	TemplateCmd.AddCommand(templateRenameCmd)
	TemplateCmd.AddCommand(templateRemoveCmd)
	TemplateCmd.AddCommand(templateCheckCmd)
}

// resolveTemplate finds a template by id, then by name
func resolveTemplate(ctx context.Context, store *templates.Store, ref string) (*templates.Template, error) {
	t, err := store.Get(ctx, ref)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, errors.ErrTemplateNotFound) {
		return nil, err
	}
	return store.FindByName(ctx, ref)
}

func runTemplateList(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	metas, err := s.services.Templates.List(cmd.Context())
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(metas)
	}
	if len(metas) == 0 {
		pterm.Info.Println("No templates yet. Create one with: ptx template create <name> <file>")
		return nil
	}

	rows := pterm.TableData{{"ID", "Name"}}
	for _, m := range metas {
		rows = append(rows, []string{m.ID, m.Name})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func runTemplateShow(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	t, err := resolveTemplate(cmd.Context(), s.services.Templates, args[0])
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(t)
	}
	fmt.Fprint(cmd.OutOrStdout(), t.Content)
	return nil
}

func runTemplateCreate(cmd *cobra.Command, args []string) error {
	name := args[0]
	if err := templates.ValidateName(name); err != nil {
		return err
	}

	var content string
	var err error
	switch {
	case len(args) == 2:
		content, err = readSource(cmd.InOrStdin(), args[1])
	default:
		content, err = editInEditor("")
	}
	if err != nil {
		return err
	}

	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	t, err := s.services.Templates.Create(cmd.Context(), name, content)
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(t)
	}
	pterm.Success.Printf("Created template %s (%s)\n", t.Name, t.ID)
	return nil
}

func runTemplateEdit(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	t, err := resolveTemplate(cmd.Context(), s.services.Templates, args[0])
	if err != nil {
		return err
	}

	content, err := editInEditor(t.Content)
	if err != nil {
		return err
	}
	if content == t.Content {
		pterm.Info.Println("No changes")
		return nil
	}

	if _, err := s.services.Templates.Update(cmd.Context(), t.ID, templates.Update{Content: &content}); err != nil {
		return err
	}
	pterm.Success.Printf("Updated template %s\n", t.Name)
	return nil
}

func runTemplateRename(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	t, err := resolveTemplate(cmd.Context(), s.services.Templates, args[0])
	if err != nil {
		return err
	}
	if err := s.services.Templates.Rename(cmd.Context(), t.ID, args[1]); err != nil {
		return err
	}
	pterm.Success.Printf("Renamed %s to %s\n", t.Name, args[1])
	return nil
}

func runTemplateRemove(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	t, err := resolveTemplate(cmd.Context(), s.services.Templates, args[0])
	if err != nil {
		return err
	}
	if err := s.services.Templates.Delete(cmd.Context(), t.ID); err != nil {
		return err
	}
	pterm.Success.Printf("Deleted template %s\n", t.Name)
	return nil
}

func runTemplateCheck(cmd *cobra.Command, args []string) error {
	content, err := templateContent(cmd, args[0])
	if err != nil {
		return err
	}

	doc, err := templates.ParseFrontmatter(content)
	if err != nil {
		return err
	}
	if err := render.New().Check(doc.Body); err != nil {
		return err
	}

	pterm.Success.Println("Template is valid")
	if doc.Metadata.Model != "" || doc.Metadata.Provider != "" {
		pterm.Info.Printf("Frontmatter model: %s %s\n", doc.Metadata.Provider, doc.Metadata.Model)
	}
	if len(doc.Metadata.Variables) > 0 {
		pterm.Info.Printf("Expects variables: %s\n", strings.Join(doc.Metadata.Variables, ", "))
	}
	return nil
}

// templateContent reads ref as a file when one exists, otherwise looks it up
// in the store.
func templateContent(cmd *cobra.Command, ref string) (string, error) {
	if ref == "-" {
		return readSource(cmd.InOrStdin(), ref)
	}
	if _, err := os.Stat(ref); err == nil {
		return readSource(cmd.InOrStdin(), ref)
	}

	s, err := openSession(cmd.Context())
	if err != nil {
		return "", err
	}
	defer s.Close()

	t, err := resolveTemplate(cmd.Context(), s.services.Templates, ref)
	if err != nil {
		return "", err
	}
	return t.Content, nil
}

// readSource reads path, or stdin for "-"
func readSource(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", errors.Wrap(err, "failed to read stdin")
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read %s", path)
	}
	return string(data), nil
}

// editorCommand splits $VISUAL or $EDITOR into argv, defaulting to vi
func editorCommand() ([]string, error) {
	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}
	argv, err := shellquote.Split(editor)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse editor command %q", editor)
	}
	if len(argv) == 0 {
		return nil, errors.New("editor command is empty")
	}
	return argv, nil
}

// editInEditor opens initial in the user's editor and returns the saved text
func editInEditor(initial string) (string, error) {
	argv, err := editorCommand()
	if err != nil {
		return "", err
	}

	f, err := os.CreateTemp("", "ptx-template-*.j2")
	if err != nil {
		return "", errors.Wrap(err, "failed to create temp file")
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(initial); err != nil {
		f.Close()
		return "", errors.Wrap(err, "failed to write temp file")
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrap(err, "failed to write temp file")
	}

	editor := exec.Command(argv[0], append(argv[1:], path)...)
	editor.Stdin = os.Stdin
	editor.Stdout = os.Stdout
	editor.Stderr = os.Stderr
	if err := editor.Run(); err != nil {
		return "", errors.Wrapf(err, "editor %s failed", argv[0])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, "failed to read edited template")
	}
	return string(data), nil
}

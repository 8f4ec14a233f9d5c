package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/mdbgen/internal/catalog"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	DBPath string
}

// ExportResult reports one catalog export.
type ExportResult struct {
	DocumentID string `json:"document_id"`
	Database   string `json:"database"`
	Inserted   bool   `json:"inserted"`
	Containers int    `json:"containers"`
	Commands   int    `json:"commands"`
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export <definitions> --db <catalog.sqlite>",
		Short: "Export resolved layouts to a SQLite catalog",
		Long: `Resolve the definitions and store every system, type, parameter and
layout in a SQLite catalog. Exports are keyed by document id, so running
the command twice on unchanged definitions leaves the catalog unchanged.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DBPath, "db", "", "path to SQLite catalog (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runExport(opts *ExportOptions, path string, cmd *cobra.Command) error {
	s, err := newSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	m, _, err := s.resolve(path)
	if err != nil {
		return reportFailure(s.formatter, err)
	}

	c, err := catalog.Open(opts.DBPath)
	if err != nil {
		_ = s.formatter.Error(ErrCodeCatalog, fmt.Sprintf("opening catalog: %v", err), nil)
		return WrapExitError(ExitCommandError, ErrCodeCatalog, err)
	}
	defer c.Close()

	id, inserted, err := c.WriteModel(cmd.Context(), m)
	if err != nil {
		_ = s.formatter.Error(ErrCodeCatalog, err.Error(), nil)
		return WrapExitError(ExitCommandError, ErrCodeCatalog, err)
	}
	s.log.Debug("exported model", "document_id", id, "inserted", inserted, "db", opts.DBPath)

	tree := m.Tree()
	result := ExportResult{
		DocumentID: id,
		Database:   opts.DBPath,
		Inserted:   inserted,
		Containers: tree.NumContainers(),
		Commands:   tree.NumCommands(),
	}
	if s.formatter.Format == "json" {
		return s.formatter.Success(result)
	}
	if inserted {
		fmt.Fprintf(s.formatter.Writer, "✓ Exported %s: %d container(s), %d command(s) to %s\n",
			id, result.Containers, result.Commands, opts.DBPath)
	} else {
		fmt.Fprintf(s.formatter.Writer, "✓ %s already in %s\n", id, opts.DBPath)
	}
	return nil
}

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/mdbgen/internal/config"
	"github.com/roach88/mdbgen/internal/document"
	"github.com/roach88/mdbgen/internal/layout"
	"github.com/roach88/mdbgen/internal/xtce"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	To     string // document format, overrides the config file
	Output string // output file path
}

// CompileSummary describes a written document.
type CompileSummary struct {
	DocumentID string `json:"document_id"`
	Format     string `json:"format"`
	Output     string `json:"output"`
	Bytes      int    `json:"bytes"`
	Systems    int    `json:"systems"`
	Parameters int    `json:"parameters"`
	Containers int    `json:"containers"`
	Commands   int    `json:"commands"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <definitions>",
		Short: "Compile definitions to an XTCE, JSON or CBOR document",
		Long: `Load mission database definitions, resolve every container and command
layout, and write the resulting document.

Without --output the document is written to stdout. With --output a
summary is reported instead, in the --format of the CLI.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.To, "to", "", "document format (xtce|json|cbor), default from config")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	s, err := newSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	if opts.To != "" {
		s.cfg.Format = opts.To
	}
	if opts.Output != "" {
		s.cfg.Output = opts.Output
	}
	if err := s.cfg.Validate(); err != nil {
		_ = s.formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, ErrCodeConfig, err)
	}

	m, _, err := s.resolve(path)
	if err != nil {
		return reportFailure(s.formatter, err)
	}

	root := document.Build(m)
	id := document.ID(root).String()
	data, err := render(root, s.cfg)
	if err != nil {
		_ = s.formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, ErrCodeGeneric, err)
	}
	s.formatter.VerboseLog("Rendered %s document %s (%d bytes)", s.cfg.Format, id, len(data))

	if s.cfg.Output == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}

	if err := os.WriteFile(s.cfg.Output, data, 0o644); err != nil {
		_ = s.formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		return WrapExitError(ExitCommandError, ErrCodeWriteFailed, err)
	}

	tree := m.Tree()
	return outputCompileSuccess(s.formatter, CompileSummary{
		DocumentID: id,
		Format:     s.cfg.Format,
		Output:     s.cfg.Output,
		Bytes:      len(data),
		Systems:    tree.NumSystems(),
		Parameters: tree.NumParameters(),
		Containers: tree.NumContainers(),
		Commands:   tree.NumCommands(),
	}, m)
}

// render produces the document bytes in the configured format.
func render(root *document.Node, cfg config.Config) ([]byte, error) {
	switch cfg.Format {
	case config.FormatXTCE:
		schemaLocation := cfg.SchemaLocation
		if schemaLocation == "" {
			schemaLocation = xtce.DefaultSchemaLocation
		}
		return xtce.Render(root, xtce.Options{
			Indent:         cfg.Indent,
			TopComment:     cfg.TopComment,
			SchemaLocation: schemaLocation,
			Version:        document.ID(root).String(),
		})
	case config.FormatJSON:
		return document.Render(root, document.JSON, document.Options{Indent: cfg.Indent})
	case config.FormatCBOR:
		return document.Render(root, document.CBOR, document.Options{})
	default:
		return nil, fmt.Errorf("unsupported format %q", cfg.Format)
	}
}

// outputCompileSuccess outputs a summary of the written document.
func outputCompileSuccess(formatter *OutputFormatter, summary CompileSummary, m *layout.Model) error {
	if formatter.Format == "json" {
		return formatter.Success(summary)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d container(s), %d command(s)\n\n",
		summary.Containers, summary.Commands)
	fmt.Fprintf(formatter.Writer, "Document: %s\n", summary.DocumentID)
	fmt.Fprintf(formatter.Writer, "Levels:   %d\n", len(m.Levels()))
	fmt.Fprintf(formatter.Writer, "Wrote %s (%d bytes) to %s\n", summary.Format, summary.Bytes, summary.Output)
	return nil
}

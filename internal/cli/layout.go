package cli

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/mdbgen/internal/layout"
	"github.com/roach88/mdbgen/internal/mdb"
)

// LayoutOptions holds flags for the layout command.
type LayoutOptions struct {
	*RootOptions
	Command bool // look the name up among commands only
}

// LayoutReport is the resolved entry table of one container or command.
type LayoutReport struct {
	Kind          string     `json:"kind"`
	QualifiedName string     `json:"qualified_name"`
	Abstract      bool       `json:"abstract"`
	SizeBits      int64      `json:"size_bits"`
	Dynamic       bool       `json:"dynamic"`
	Chain         []string   `json:"chain"`
	Entries       []EntryRow `json:"entries"`
	Required      []string   `json:"required_arguments,omitempty"`
}

// EntryRow is one placement of a LayoutReport.
type EntryRow struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Origin   string `json:"origin"`
	StartBit int64  `json:"start_bit"`
	SizeBits int64  `json:"size_bits"`
	Dynamic  bool   `json:"dynamic,omitempty"`
	Value    string `json:"value,omitempty"`
}

// NewLayoutCommand creates the layout command.
func NewLayoutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LayoutOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "layout <definitions> <qualified-name>",
		Short: "Print the resolved entry table of a container or command",
		Long: `Resolve the definitions and print every entry of one container or
command, inherited entries included, with its start bit, size, declaring
level and constant value.

Containers are searched first. Use --command when a command shares the
container's name.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLayout(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Command, "command", false, "look up a command rather than a container")

	return cmd
}

func runLayout(opts *LayoutOptions, path, name string, cmd *cobra.Command) error {
	s, err := newSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	m, _, err := s.resolve(path)
	if err != nil {
		return reportFailure(s.formatter, err)
	}

	report, ok := findLayout(m, name, opts.Command)
	if !ok {
		msg := fmt.Sprintf("no container or command named %s", name)
		if opts.Command {
			msg = fmt.Sprintf("no command named %s", name)
		}
		_ = s.formatter.Error(ErrCodeNotFound, msg, nil)
		return NewExitError(ExitCommandError, ErrCodeNotFound+": "+msg)
	}
	return outputLayout(s.formatter, report)
}

// findLayout looks name up from the root system, so both absolute and
// root-relative names work.
func findLayout(m *layout.Model, name string, commandOnly bool) (LayoutReport, bool) {
	tree := m.Tree()
	if !commandOnly {
		if id, ok := tree.LookupContainer(tree.Root(), name); ok {
			return newReport("container", tree, &m.Container(id).Layout), true
		}
	}
	id, ok := tree.LookupCommand(tree.Root(), name)
	if !ok {
		return LayoutReport{}, false
	}
	l := m.Command(id)
	report := newReport("command", tree, &l.Layout)
	report.Required = l.RequiredArguments()
	return report, true
}

func newReport(kind string, tree *mdb.Tree, l *layout.Layout) LayoutReport {
	report := LayoutReport{
		Kind:          kind,
		QualifiedName: l.QualifiedName,
		Abstract:      l.Abstract,
		SizeBits:      l.SizeBits,
		Dynamic:       l.Dynamic,
		Chain:         l.Chain,
		Entries:       make([]EntryRow, 0, len(l.Placements)),
	}
	for _, p := range l.Placements {
		row := EntryRow{
			Name:     p.Name,
			Kind:     p.Kind.String(),
			Origin:   p.Owner,
			StartBit: p.StartBit,
			SizeBits: p.SizeBits,
			Dynamic:  p.Dynamic,
		}
		switch {
		case p.Kind == mdb.FixedValueEntryKind:
			row.Value = "0x" + hex.EncodeToString(p.Value)
		case p.Assigned.IsSet():
			row.Value = tree.FormatValue(p.Type, p.Assigned)
		}
		report.Entries = append(report.Entries, row)
	}
	return report
}

func outputLayout(formatter *OutputFormatter, r LayoutReport) error {
	if formatter.Format == "json" {
		return formatter.Success(r)
	}

	size := strconv.FormatInt(r.SizeBits, 10) + " bits"
	if r.Dynamic {
		size = "dynamic"
	}
	header := fmt.Sprintf("%s %s (%s", r.Kind, r.QualifiedName, size)
	if r.Abstract {
		header += ", abstract"
	}
	fmt.Fprintln(formatter.Writer, header+")")
	fmt.Fprintf(formatter.Writer, "chain: %s\n\n", strings.Join(r.Chain, " -> "))

	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tSIZE\tNAME\tKIND\tORIGIN\tVALUE")
	for _, e := range r.Entries {
		size := strconv.FormatInt(e.SizeBits, 10)
		if e.Dynamic {
			size = "dyn"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", e.StartBit, size, e.Name, e.Kind, e.Origin, e.Value)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(r.Required) > 0 {
		fmt.Fprintf(formatter.Writer, "\nrequired arguments: %s\n", strings.Join(r.Required, ", "))
	}
	return nil
}

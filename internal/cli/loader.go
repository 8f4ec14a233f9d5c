package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"cuelang.org/go/cue/token"
	"github.com/spf13/cobra"

	"github.com/roach88/mdbgen/internal/config"
	"github.com/roach88/mdbgen/internal/layout"
	"github.com/roach88/mdbgen/internal/loader"
)

// Error codes. E0xx and E1xx come from the loader; E2xx are layout
// resolution failures.
const (
	ErrCodeGeneric     = loader.ErrCodeGeneric
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeConfig      = "E008" // Configuration file or environment invalid
	ErrCodeCatalog     = "E009" // Catalog database error
	ErrCodeNotFound    = loader.ErrCodeNotFound

	ErrCodeResolution       = "E200" // Other resolution error
	ErrCodeOverlap          = "E201" // Entries overlap
	ErrCodeDangling         = "E202" // Location or length refers to a later entry
	ErrCodeDynamicPlacement = "E203" // Entry follows a dynamic entry
	ErrCodeOffset           = "E204" // Entry starts before bit 0
	ErrCodeUnassigned       = "E205" // Abstract argument never bound
	ErrCodeSizeMismatch     = "E206" // Declared size smaller than computed
	ErrCodeUnresolved       = "E207" // Satellite reference does not resolve
	ErrCodeReferenceCycle   = "E208" // Container includes itself
	ErrCodeLengthEntry      = "E209" // Array length entry is not an integer

	ErrCodeWarning = "E301" // Warning promoted by --strict
)

// Issue is one reported problem with a definition set.
type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

func (i Issue) position() string {
	if i.File == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d:%d", i.File, i.Line, i.Column)
}

// session is the state shared by the commands that read definitions.
type session struct {
	cfg       config.Config
	log       *slog.Logger
	formatter *OutputFormatter
}

func newSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	s := &session{
		formatter: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
			Verbose:   opts.Verbose,
		},
		log: newLogger(cmd.ErrOrStderr(), opts.Verbose),
	}
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		_ = s.formatter.Error(ErrCodeConfig, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, ErrCodeConfig, err)
	}
	s.cfg = cfg
	return s, nil
}

// newLogger builds the library logger: debug records with --verbose,
// info otherwise, always on stderr.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// resolve loads the definitions at path and resolves their layouts.
func (s *session) resolve(path string) (*layout.Model, *loader.Result, error) {
	res, err := loader.Load(path, loader.WithLogger(s.log))
	if err != nil {
		return nil, nil, err
	}
	s.formatter.VerboseLog("Loaded %d file(s) from %s", len(res.Files), path)

	m, err := layout.Resolve(res.Tree,
		layout.WithLogger(s.log),
		layout.WithParallelism(s.cfg.Workers()))
	if err != nil {
		return nil, res, err
	}
	return m, res, nil
}

// classify turns a load or resolution error into a reported issue.
func classify(err error) Issue {
	var loadErr *loader.LoadError
	if errors.As(err, &loadErr) {
		issue := Issue{Code: loadErr.Code, Message: loadErr.Message}
		setPosition(&issue, loadErr.Pos)
		return issue
	}
	if errors.Is(err, layout.ErrResolution) {
		return Issue{Code: resolutionCode(err), Message: err.Error()}
	}
	return Issue{Code: ErrCodeGeneric, Message: err.Error()}
}

func setPosition(issue *Issue, pos token.Pos) {
	if pos.IsValid() {
		issue.File = pos.Filename()
		issue.Line = pos.Line()
		issue.Column = pos.Column()
	}
}

func resolutionCode(err error) string {
	var (
		offset     *layout.OffsetError
		mismatch   *layout.SizeMismatchError
		unresolved *layout.UnresolvedReferenceError
		cycle      *layout.ReferenceCycleError
	)
	switch {
	case layout.IsOverlap(err):
		return ErrCodeOverlap
	case layout.IsDanglingReference(err):
		return ErrCodeDangling
	case layout.IsDynamicPlacement(err):
		return ErrCodeDynamicPlacement
	case errors.As(err, &offset):
		return ErrCodeOffset
	case layout.IsUnassignedArgument(err):
		return ErrCodeUnassigned
	case errors.As(err, &mismatch):
		return ErrCodeSizeMismatch
	case errors.As(err, &unresolved):
		return ErrCodeUnresolved
	case errors.As(err, &cycle):
		return ErrCodeReferenceCycle
	case layout.IsLengthEntry(err):
		return ErrCodeLengthEntry
	default:
		return ErrCodeResolution
	}
}

// isDefinitionError reports whether the issue lies in the definitions
// themselves rather than in reaching them.
func isDefinitionError(code string) bool {
	switch code {
	case loader.ErrCodeGeneric, loader.ErrCodeScanError, loader.ErrCodeNoFiles,
		loader.ErrCodeNotFound:
		return false
	}
	return true
}

// reportFailure writes a load or resolution failure and returns the
// matching exit error: 1 for broken definitions, 2 when they could not
// be read at all.
func reportFailure(f *OutputFormatter, err error) error {
	issue := classify(err)
	details := map[string]any(nil)
	if issue.File != "" {
		details = map[string]any{"file": issue.File, "line": issue.Line, "column": issue.Column}
	}
	if f.Format != "json" && issue.File != "" {
		fmt.Fprintln(f.Writer, issue.position())
	}
	_ = f.Error(issue.Code, issue.Message, details)

	code := ExitCommandError
	if isDefinitionError(issue.Code) {
		code = ExitFailure
	}
	return WrapExitError(code, issue.Code, err)
}

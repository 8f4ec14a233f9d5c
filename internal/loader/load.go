// Package loader builds a system tree from mission database definitions
// written in CUE or YAML.
//
// A definition file holds one root under space_system:
//
//	space_system: SC: {
//		types: u8: {kind: "integer", encoding: "uint8_t"}
//		parameters: vbat: type: "u8"
//		containers: HK: entries: [{parameter: "vbat"}]
//		systems: EPS: {...}
//	}
//
// Inputs are checked against an embedded CUE schema before any node is
// created. Nodes are added in dependency order: systems, headers, types,
// parameters, containers, commands, then algorithms.
package loader

import (
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/encoding/yaml"

	"github.com/roach88/mdbgen/internal/mdb"
)

//go:embed schema.cue
var schemaSource string

// Option configures Load and Build.
type Option func(*options)

type options struct {
	log *slog.Logger
}

// WithLogger sets the logger for debug output. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// Result is a loaded tree and the files it came from.
type Result struct {
	Tree  *mdb.Tree
	Files []string
}

// Load reads definitions from path: a directory holding one CUE package,
// a single .cue file, or a .yaml/.yml file.
func Load(path string, opts ...Option) (*Result, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("definitions not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing definitions: %v", err)}
	}

	ctx := cuecontext.New()
	var (
		value cue.Value
		files []string
	)
	switch {
	case info.IsDir():
		files, err = FindFiles(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
		}
		if len(files) == 0 {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
		}
		instances := load.Instances([]string{"."}, &load.Config{Dir: path})
		if len(instances) == 0 {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
		}
		inst := instances[0]
		if inst.Err != nil {
			return nil, formatCUEError(ErrCodeLoadFailed, inst.Err)
		}
		value = ctx.BuildInstance(inst)

	case isYAML(path):
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading %s: %v", path, err)}
		}
		file, err := yaml.Extract(path, data)
		if err != nil {
			return nil, formatCUEError(ErrCodeLoadFailed, err)
		}
		value = ctx.BuildFile(file)
		files = []string{path}

	case filepath.Ext(path) == ".cue":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading %s: %v", path, err)}
		}
		value = ctx.CompileBytes(data, cue.Filename(path))
		files = []string{path}

	default:
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("unsupported definition file %s", path)}
	}

	if err := value.Err(); err != nil {
		return nil, formatCUEError(ErrCodeBuildFailed, err)
	}
	tree, err := Build(value, opts...)
	if err != nil {
		return nil, err
	}
	return &Result{Tree: tree, Files: files}, nil
}

// FindFiles walks dir and returns all .cue file paths.
func FindFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func isYAML(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".yaml" || ext == ".yml"
}

// Build validates v against the definition schema and constructs the
// tree it describes. The first error stops construction.
func Build(v cue.Value, opts ...Option) (*mdb.Tree, error) {
	o := options{log: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	schema := v.Context().CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError(ErrCodeGeneric, err)
	}
	checked := schema.LookupPath(cue.ParsePath("#File")).Unify(v)
	if err := checked.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(ErrCodeSchema, err)
	}

	top := field{v: v}
	roots, ok := top.lookup("space_system")
	if !ok {
		return nil, &LoadError{Code: ErrCodeSchema, Message: "space_system is required", Pos: v.Pos()}
	}
	var (
		rootName string
		rootDef  field
		count    int
	)
	err := top.each("space_system", func(name string, c field) error {
		rootName, rootDef = name, field{v: c.v, path: name}
		count++
		return nil
	})
	if err != nil {
		return nil, err
	}
	if count != 1 {
		return nil, roots.errorf(ErrCodeSchema, "exactly one root system is required, found %d", count)
	}

	spec, err := systemSpec(rootName, rootDef)
	if err != nil {
		return nil, err
	}
	tree, err := mdb.New(spec)
	if err != nil {
		return nil, rootDef.wrap(err)
	}

	b := &builder{tree: tree, log: o.log}
	steps := []func() error{
		func() error { return b.addSystems(tree.Root(), rootDef) },
		b.addHeaders,
		b.addTypes,
		b.addParameters,
		b.addContainers,
		b.addCommands,
		b.addAlgorithms,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}

	o.log.Debug("loaded definitions",
		"systems", tree.NumSystems(),
		"types", tree.NumTypes(),
		"parameters", tree.NumParameters(),
		"containers", tree.NumContainers(),
		"commands", tree.NumCommands(),
		"algorithms", tree.NumAlgorithms())
	return tree, nil
}

// Package headers adds reusable packet headers to a system tree: the
// CCSDS space packet primary header and the CubeSat Space Protocol 1.x
// header. Both are added as abstract containers and abstract commands
// that mission packets inherit from.
package headers

import (
	"fmt"

	"github.com/roach88/mdbgen/internal/mdb"
)

// adder registers nodes at one system and keeps the first error so
// callers can chain calls and check once.
type adder struct {
	tree *mdb.Tree
	sys  mdb.SystemID
	err  error
}

func (a *adder) typ(name string, def mdb.TypeDef) mdb.TypeID {
	if a.err != nil {
		return 0
	}
	id, err := a.tree.AddType(a.sys, mdb.TypeSpec{Name: name, Def: def})
	a.err = err
	return id
}

func (a *adder) param(spec mdb.ParameterSpec) mdb.ParameterID {
	if a.err != nil {
		return 0
	}
	id, err := a.tree.AddParameter(a.sys, spec)
	a.err = err
	return id
}

func (a *adder) container(spec mdb.ContainerSpec) mdb.ContainerID {
	if a.err != nil {
		return 0
	}
	id, err := a.tree.AddContainer(a.sys, spec)
	a.err = err
	return id
}

func (a *adder) command(spec mdb.CommandSpec) mdb.CommandID {
	if a.err != nil {
		return 0
	}
	id, err := a.tree.AddCommand(a.sys, spec)
	a.err = err
	return id
}

func (a *adder) result(header string) error {
	if a.err != nil {
		return fmt.Errorf("headers: add %s: %w", header, a.err)
	}
	return nil
}

func unsigned(bits uint32) mdb.IntegerType {
	return mdb.IntegerType{Encoding: mdb.UnsignedEncoding(bits)}
}

func flag(zero, one string) mdb.BooleanType {
	return mdb.BooleanType{Encoding: mdb.UnsignedEncoding(1), ZeroLabel: zero, OneLabel: one}
}

package layout

import (
	"fmt"
	"strings"

	"github.com/roach88/mdbgen/internal/mdb"
)

// checkReferences resolves the string references of satellite nodes:
// restriction criteria, verifiers, transmission constraints, algorithms
// and time references. They take no part in bit layout but must name
// existing nodes.
func checkReferences(tree *mdb.Tree) error {
	for i := 1; i <= tree.NumTypes(); i++ {
		dt := tree.Type(mdb.TypeID(i))
		if def, ok := dt.Def.(mdb.AbsoluteTimeType); ok && def.Reference != "" {
			if !parameterExists(tree, dt.System, def.Reference) {
				return unresolved(dt.QualifiedName, "reference", "parameter", def.Reference)
			}
		}
	}

	for i := 1; i <= tree.NumContainers(); i++ {
		c := tree.Container(mdb.ContainerID(i))
		if err := checkComparisons(tree, c.System, c.QualifiedName, "restriction", c.Restriction); err != nil {
			return err
		}
	}

	for i := 1; i <= tree.NumCommands(); i++ {
		c := tree.Command(mdb.CommandID(i))
		for j, v := range c.Verifiers {
			field := fmt.Sprintf("verifiers[%d]", j)
			if v.Container != "" {
				if _, ok := tree.LookupContainer(c.System, v.Container); !ok {
					return unresolved(c.QualifiedName, field+".container", "container", v.Container)
				}
			}
			if v.Algorithm != "" {
				if _, ok := tree.LookupAlgorithm(c.System, v.Algorithm); !ok {
					return unresolved(c.QualifiedName, field+".algorithm", "algorithm", v.Algorithm)
				}
			}
			if err := checkComparisons(tree, c.System, c.QualifiedName, field+".expression", v.Expression); err != nil {
				return err
			}
		}
		for j, tc := range c.Constraints {
			field := fmt.Sprintf("constraints[%d].expression", j)
			if err := checkComparisons(tree, c.System, c.QualifiedName, field, tc.Expression); err != nil {
				return err
			}
		}
	}

	for i := 1; i <= tree.NumAlgorithms(); i++ {
		a := tree.Algorithm(mdb.AlgorithmID(i))
		for j, in := range a.Inputs {
			if !parameterExists(tree, a.System, in.Parameter) {
				return unresolved(a.QualifiedName, fmt.Sprintf("inputs[%d]", j), "parameter", in.Parameter)
			}
		}
		for j, out := range a.Outputs {
			if !parameterExists(tree, a.System, out.Parameter) {
				return unresolved(a.QualifiedName, fmt.Sprintf("outputs[%d]", j), "parameter", out.Parameter)
			}
		}
		for j, tr := range a.Triggers {
			field := fmt.Sprintf("triggers[%d]", j)
			if tr.Parameter != "" && !parameterExists(tree, a.System, tr.Parameter) {
				return unresolved(a.QualifiedName, field, "parameter", tr.Parameter)
			}
			if tr.Container != "" {
				if _, ok := tree.LookupContainer(a.System, tr.Container); !ok {
					return unresolved(a.QualifiedName, field, "container", tr.Container)
				}
			}
		}
	}
	return nil
}

func checkComparisons(tree *mdb.Tree, sys mdb.SystemID, from, field string, comparisons []mdb.Comparison) error {
	for i, c := range comparisons {
		if !parameterExists(tree, sys, c.Parameter) {
			return unresolved(from, fmt.Sprintf("%s[%d]", field, i), "parameter", c.Parameter)
		}
	}
	return nil
}

// parameterExists resolves a parameter reference, optionally followed by
// a ".member" path into aggregate members.
func parameterExists(tree *mdb.Tree, sys mdb.SystemID, ref string) bool {
	if _, ok := tree.LookupParameter(sys, ref); ok {
		return true
	}
	slash := strings.LastIndex(ref, mdb.Separator)
	dot := strings.Index(ref[slash+1:], ".")
	if dot < 0 {
		return false
	}
	dot += slash + 1
	id, ok := tree.LookupParameter(sys, ref[:dot])
	if !ok {
		return false
	}
	typ := tree.Parameter(id).Type
	for _, name := range strings.Split(ref[dot+1:], ".") {
		agg, ok := tree.Type(typ).Def.(mdb.AggregateType)
		if !ok {
			return false
		}
		found := false
		for _, m := range agg.Members {
			if m.Name == name {
				typ, found = m.Type, true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func unresolved(from, field, kind, ref string) error {
	return &UnresolvedReferenceError{From: from, Field: field, Kind: kind, Reference: ref}
}

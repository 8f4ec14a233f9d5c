package mdb

import (
	"fmt"
	"time"
)

// AlgorithmInput binds a parameter to an input variable.
type AlgorithmInput struct {
	Parameter string
	Name      string
	Mandatory bool
}

// AlgorithmOutput binds an output variable to a parameter.
type AlgorithmOutput struct {
	Parameter string
	Name      string
}

// Trigger starts an algorithm run. Exactly one field is set.
type Trigger struct {
	Parameter string
	Container string
	Period    time.Duration
}

// Algorithm is a custom algorithm run by the ground system.
type Algorithm struct {
	ID               AlgorithmID
	System           SystemID
	Name             string
	QualifiedName    string
	Language         string
	Text             string
	Inputs           []AlgorithmInput
	Outputs          []AlgorithmOutput
	Triggers         []Trigger
	ShortDescription string
	LongDescription  string
}

// AlgorithmSpec is the input to Tree.AddAlgorithm.
type AlgorithmSpec struct {
	Name             string
	Language         string
	Text             string
	Inputs           []AlgorithmInput
	Outputs          []AlgorithmOutput
	Triggers         []Trigger
	ShortDescription string
	LongDescription  string
}

func (s AlgorithmSpec) validate(qname string) error {
	fail := func(field, format string, args ...any) error {
		return &TypeError{QualifiedName: qname, Field: field, Message: fmt.Sprintf(format, args...)}
	}
	if s.Language == "" {
		return fail("language", "language is required")
	}
	if s.Text == "" {
		return fail("text", "algorithm text is required")
	}
	for i, in := range s.Inputs {
		if in.Parameter == "" {
			return fail(fmt.Sprintf("inputs[%d]", i), "input needs a parameter reference")
		}
	}
	for i, out := range s.Outputs {
		if out.Parameter == "" {
			return fail(fmt.Sprintf("outputs[%d]", i), "output needs a parameter reference")
		}
	}
	for i, tr := range s.Triggers {
		set := 0
		if tr.Parameter != "" {
			set++
		}
		if tr.Container != "" {
			set++
		}
		if tr.Period > 0 {
			set++
		}
		if set != 1 || tr.Period < 0 {
			return fail(fmt.Sprintf("triggers[%d]", i), "exactly one of parameter, container or a positive period is required")
		}
	}
	return nil
}

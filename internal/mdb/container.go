package mdb

import (
	"fmt"
	"time"
)

// Operator is a comparison operator used by restriction criteria,
// verifier expressions and transmission constraints.
type Operator string

const (
	Equal          Operator = "=="
	NotEqual       Operator = "!="
	Less           Operator = "<"
	LessOrEqual    Operator = "<="
	Greater        Operator = ">"
	GreaterOrEqual Operator = ">="
)

// Comparison tests a parameter against a literal. Parameter is a
// reference resolved against the declaring system: an absolute qualified
// name, or a name relative to that system. A ".member" suffix selects an
// aggregate member.
type Comparison struct {
	Parameter  string
	Operator   Operator
	Value      string
	Calibrated bool
}

func (c Comparison) validate(owner, field string) error {
	if c.Parameter == "" {
		return &TypeError{QualifiedName: owner, Field: field, Message: "comparison needs a parameter reference"}
	}
	switch c.Operator {
	case Equal, NotEqual, Less, LessOrEqual, Greater, GreaterOrEqual:
	case "":
		return &TypeError{QualifiedName: owner, Field: field, Message: "comparison needs an operator"}
	default:
		return &TypeError{QualifiedName: owner, Field: field, Message: fmt.Sprintf("unknown operator %q", c.Operator)}
	}
	return nil
}

// Container describes the structure of a telemetry packet.
type Container struct {
	ID               ContainerID
	System           SystemID
	Name             string
	QualifiedName    string
	Base             ContainerID
	Abstract         bool
	Entries          []Entry
	Restriction      []Comparison // ANDed, applies to the base relation
	Bits             int64        // declared size override, 0 for none
	Rate             time.Duration
	ArchivePartition bool
	ShortDescription string
	LongDescription  string
	Aliases          []Alias
}

// ContainerSpec is the input to Tree.AddContainer.
type ContainerSpec struct {
	Name             string
	Base             ContainerID
	Abstract         bool
	Entries          []Entry
	Restriction      []Comparison
	Bits             int64
	Rate             time.Duration
	ArchivePartition bool
	ShortDescription string
	LongDescription  string
	Aliases          []Alias
}

// Significance is the consequence level of issuing a command.
type Significance string

const (
	SignificanceNone Significance = ""
	Normal           Significance = "normal"
	Vital            Significance = "vital"
	Critical         Significance = "critical"
	Forbidden        Significance = "forbidden"
)

// Assignment fixes the value of an argument declared by an ancestor.
type Assignment struct {
	Argument string
	Value    Value
}

// VerifierStage is the lifecycle step a verifier checks.
type VerifierStage string

const (
	TransferredToRange VerifierStage = "transferred_to_range"
	SentFromRange      VerifierStage = "sent_from_range"
	Received           VerifierStage = "received"
	Accepted           VerifierStage = "accepted"
	Queued             VerifierStage = "queued"
	Execution          VerifierStage = "execution"
	Complete           VerifierStage = "complete"
	Failed             VerifierStage = "failed"
)

// Termination is the command outcome a verifier result implies.
type Termination string

const (
	TerminationNone    Termination = ""
	TerminationSuccess Termination = "success"
	TerminationFail    Termination = "fail"
)

// Verifier checks one stage of a command's lifecycle. Exactly one of
// Container, Expression or Algorithm is set.
type Verifier struct {
	Stage      VerifierStage
	Container  string
	Expression []Comparison
	Algorithm  string
	Delay      time.Duration
	Timeout    time.Duration
	OnSuccess  Termination
	OnFail     Termination
	OnTimeout  Termination
}

// TransmissionConstraint holds a command back until all comparisons
// are true or Timeout expires.
type TransmissionConstraint struct {
	Expression  []Comparison
	Timeout     time.Duration
	Suspendable bool
}

// Command describes the structure of a telecommand packet.
type Command struct {
	ID               CommandID
	System           SystemID
	Name             string
	QualifiedName    string
	Base             CommandID
	Abstract         bool
	Arguments        []Argument
	Assignments      []Assignment
	Entries          []Entry
	Significance     Significance
	WarningMessage   string
	Verifiers        []Verifier
	Constraints      []TransmissionConstraint
	ShortDescription string
	LongDescription  string
	Aliases          []Alias
}

// Argument returns the argument declared by this command (not its
// ancestors).
func (c *Command) Argument(name string) (Argument, bool) {
	for _, a := range c.Arguments {
		if a.Name == name {
			return a, true
		}
	}
	return Argument{}, false
}

// CommandSpec is the input to Tree.AddCommand. When Entries is nil the
// command places each of its own arguments in declaration order.
type CommandSpec struct {
	Name             string
	Base             CommandID
	Abstract         bool
	Arguments        []Argument
	Assignments      []Assignment
	Entries          []Entry
	Significance     Significance
	WarningMessage   string
	Verifiers        []Verifier
	Constraints      []TransmissionConstraint
	ShortDescription string
	LongDescription  string
	Aliases          []Alias
}

func validateVerifier(owner string, i int, v Verifier) error {
	field := fmt.Sprintf("verifiers[%d]", i)
	fail := func(format string, args ...any) error {
		return &TypeError{QualifiedName: owner, Field: field, Message: fmt.Sprintf(format, args...)}
	}
	switch v.Stage {
	case TransferredToRange, SentFromRange, Received, Accepted, Queued, Execution, Complete, Failed:
	default:
		return fail("unknown stage %q", v.Stage)
	}
	checks := 0
	if v.Container != "" {
		checks++
	}
	if len(v.Expression) > 0 {
		checks++
	}
	if v.Algorithm != "" {
		checks++
	}
	if checks != 1 {
		return fail("exactly one of container, expression or algorithm is required")
	}
	for j, c := range v.Expression {
		if err := c.validate(owner, fmt.Sprintf("%s.expression[%d]", field, j)); err != nil {
			return err
		}
	}
	if v.Timeout < 0 || v.Delay < 0 {
		return fail("timeout and delay cannot be negative")
	}
	for _, term := range []Termination{v.OnSuccess, v.OnFail, v.OnTimeout} {
		switch term {
		case TerminationNone, TerminationSuccess, TerminationFail:
		default:
			return fail("unknown termination %q", term)
		}
	}
	return nil
}

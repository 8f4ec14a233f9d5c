package mdb

// DataSource tags where a parameter value comes from.
type DataSource string

const (
	Telemetered DataSource = "telemetered"
	Derived     DataSource = "derived"
	Constant    DataSource = "constant"
	Local       DataSource = "local"
	Ground      DataSource = "ground"
)

func (d DataSource) valid() bool {
	switch d {
	case Telemetered, Derived, Constant, Local, Ground:
		return true
	}
	return false
}

// Alias is an alternative name in another naming scheme.
type Alias struct {
	Namespace string
	Name      string
}

// AncillaryDatum is a free-form key/value annotation.
type AncillaryDatum struct {
	Name  string
	Value string
}

// Parameter is a telemetry slot owned by a system.
type Parameter struct {
	ID               ParameterID
	System           SystemID
	Name             string
	QualifiedName    string
	Type             TypeID
	DataSource       DataSource
	Persistent       bool
	Initial          Value
	ShortDescription string
	LongDescription  string
	Aliases          []Alias
	Ancillary        []AncillaryDatum
}

// ParameterSpec is the input to Tree.AddParameter. DataSource defaults
// to Telemetered and Persistent defaults to true unless Volatile is set.
type ParameterSpec struct {
	Name             string
	Type             TypeID
	DataSource       DataSource
	Volatile         bool
	Initial          Value
	ShortDescription string
	LongDescription  string
	Aliases          []Alias
	Ancillary        []AncillaryDatum
}

// Argument is a command slot. Arguments are owned by the command that
// declares them and are addressed by name within its inheritance chain.
type Argument struct {
	Name             string
	Type             TypeID
	Default          Value
	ShortDescription string
	LongDescription  string
}

package xtce

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/roach88/mdbgen/internal/document"
)

// Namespace is the XTCE 1.2 target namespace.
const Namespace = "http://www.omg.org/spec/XTCE/20180204"

// DefaultSchemaLocation points at the published XTCE 1.2 schema.
const DefaultSchemaLocation = Namespace + " https://www.omg.org/spec/XTCE/20180204/SpaceSystem.xsd"

// Options tunes the XML output.
type Options struct {
	Indent         string // defaults to two spaces
	TopComment     string // emitted before the root element when set
	SchemaLocation string // xsi:schemaLocation of the root element
	Version        string // Header version of the root system
}

// Render writes root, a space_system node, as an XTCE document.
func Render(root *document.Node, opts Options) ([]byte, error) {
	if root == nil || root.Kind != document.KindSpaceSystem {
		return nil, fmt.Errorf("xtce: root must be a %s node", document.KindSpaceSystem)
	}
	indent := opts.Indent
	if indent == "" {
		indent = "  "
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	w := &writer{enc: xml.NewEncoder(&buf)}
	w.enc.Indent("", indent)
	if opts.TopComment != "" {
		w.token(xml.Comment(" " + opts.TopComment + " "))
	}

	rootAttrs := []string{"xmlns:xtce", Namespace}
	if opts.SchemaLocation != "" {
		rootAttrs = append(rootAttrs,
			"xmlns:xsi", "http://www.w3.org/2001/XMLSchema-instance",
			"xsi:schemaLocation", opts.SchemaLocation)
	}
	w.spaceSystem(root, rootAttrs, opts.Version)
	if w.err != nil {
		return nil, fmt.Errorf("xtce: %w", w.err)
	}
	if err := w.enc.Flush(); err != nil {
		return nil, fmt.Errorf("xtce: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// writer emits elements and remembers the first encoder error.
type writer struct {
	enc *xml.Encoder
	err error
}

func (w *writer) token(t xml.Token) {
	if w.err == nil {
		w.err = w.enc.EncodeToken(t)
	}
}

// start opens an element. attrs are key/value pairs; empty values are
// skipped.
func (w *writer) start(name string, attrs ...string) {
	se := xml.StartElement{Name: xml.Name{Local: "xtce:" + name}}
	for i := 0; i+1 < len(attrs); i += 2 {
		if attrs[i+1] != "" {
			se.Attr = append(se.Attr, xml.Attr{Name: xml.Name{Local: attrs[i]}, Value: attrs[i+1]})
		}
	}
	w.token(se)
}

func (w *writer) end(name string) {
	w.token(xml.EndElement{Name: xml.Name{Local: "xtce:" + name}})
}

func (w *writer) empty(name string, attrs ...string) {
	w.start(name, attrs...)
	w.end(name)
}

func (w *writer) text(name, value string, attrs ...string) {
	w.start(name, attrs...)
	w.token(xml.CharData(value))
	w.end(name)
}

func attr(n *document.Node, key string) string {
	v, _ := n.Attr(key)
	return v
}

func boolAttr(n *document.Node, key string) string {
	if _, ok := n.Attr(key); ok {
		return "true"
	}
	return ""
}

// ============================================================
// Space systems
// ============================================================

func (w *writer) spaceSystem(n *document.Node, extra []string, version string) {
	attrs := append(extra, "name", attr(n, "name"), "shortDescription", attr(n, "short_description"))
	w.start("SpaceSystem", attrs...)
	if version != "" {
		w.empty("Header", "version", version, "validationStatus", "Unknown")
	}
	w.describe(n)

	types := n.Child(document.KindTypes)
	params := n.Child(document.KindParameters)
	containers := n.Child(document.KindContainers)
	commands := n.Child(document.KindCommands)
	algorithms := n.Child(document.KindAlgorithms)

	if types != nil || params != nil || containers != nil || algorithms != nil {
		w.start("TelemetryMetaData")
		if types != nil {
			w.start("ParameterTypeSet")
			for _, t := range types.Children {
				w.dataType(t, "Parameter")
			}
			w.end("ParameterTypeSet")
		}
		if params != nil {
			w.start("ParameterSet")
			for _, p := range params.Children {
				w.parameter(p)
			}
			w.end("ParameterSet")
		}
		if containers != nil {
			w.start("ContainerSet")
			for _, c := range containers.Children {
				w.container(c)
			}
			w.end("ContainerSet")
		}
		if algorithms != nil {
			w.start("AlgorithmSet")
			for _, a := range algorithms.Children {
				w.algorithm(a)
			}
			w.end("AlgorithmSet")
		}
		w.end("TelemetryMetaData")
	}

	if commands != nil {
		w.start("CommandMetaData")
		if types != nil {
			w.start("ArgumentTypeSet")
			for _, t := range types.Children {
				w.dataType(t, "Argument")
			}
			w.end("ArgumentTypeSet")
		}
		w.start("MetaCommandSet")
		for _, c := range commands.Children {
			w.command(c)
		}
		w.end("MetaCommandSet")
		w.end("CommandMetaData")
	}

	for _, child := range n.ChildrenOf(document.KindSpaceSystem) {
		w.spaceSystem(child, nil, "")
	}
	w.end("SpaceSystem")
}

func (w *writer) describe(n *document.Node) {
	if ld := n.Child(document.KindLongDescription); ld != nil {
		w.text("LongDescription", ld.Text)
	}
	if aliases := n.ChildrenOf(document.KindAlias); len(aliases) > 0 {
		w.start("AliasSet")
		for _, a := range aliases {
			w.empty("Alias", "nameSpace", attr(a, "namespace"), "alias", attr(a, "alias"))
		}
		w.end("AliasSet")
	}
}

// ============================================================
// Types
// ============================================================

var typeElements = map[string]string{
	"integer":       "Integer",
	"float":         "Float",
	"boolean":       "Boolean",
	"enumerated":    "Enumerated",
	"string":        "String",
	"binary":        "Binary",
	"absolute_time": "AbsoluteTime",
	"aggregate":     "Aggregate",
	"array":         "Array",
}

// dataType renders a type node into a ParameterTypeSet or
// ArgumentTypeSet; role is "Parameter" or "Argument".
func (w *writer) dataType(n *document.Node, role string) {
	kind := attr(n, "kind")
	name := typeElements[kind] + role + "Type"
	attrs := []string{"name", attr(n, "name"), "shortDescription", attr(n, "short_description")}
	switch kind {
	case "integer":
		signed := "false"
		if boolAttr(n, "signed") != "" {
			signed = "true"
		}
		attrs = append(attrs, "signed", signed, "sizeInBits", attr(n, "size_bits"))
	case "float":
		attrs = append(attrs, "sizeInBits", attr(n, "bits"))
	case "boolean":
		attrs = append(attrs, "zeroStringValue", attr(n, "zero_label"), "oneStringValue", attr(n, "one_label"))
	case "array":
		attrs = append(attrs, "arrayTypeRef", attr(n, "element"))
	}
	w.start(name, attrs...)
	w.describe(n)

	if units := attr(n, "units"); units != "" {
		w.start("UnitSet")
		w.text("Unit", units)
		w.end("UnitSet")
	}

	enc := n.Child(document.KindEncoding)
	switch kind {
	case "absolute_time":
		w.start("Encoding", "offset", attr(n, "offset"), "scale", attr(n, "scale"))
		w.encoding(enc)
		w.end("Encoding")
		w.start("ReferenceTime")
		if ref := attr(n, "reference"); ref != "" {
			w.empty("OffsetFrom", "parameterRef", ref)
		} else {
			w.text("Epoch", attr(n, "epoch"))
		}
		w.end("ReferenceTime")
	case "aggregate":
		w.start("MemberList")
		for _, m := range n.ChildrenOf(document.KindMember) {
			w.empty("Member", "name", attr(m, "name"), "typeRef", attr(m, "type"), "shortDescription", attr(m, "short_description"))
		}
		w.end("MemberList")
	case "array":
		w.start("DimensionList")
		w.start("Dimension")
		w.start("StartingIndex")
		w.text("FixedValue", "0")
		w.end("StartingIndex")
		w.start("EndingIndex")
		if entry := attr(n, "length_entry"); entry != "" {
			w.start("DynamicValue")
			w.empty("ParameterInstanceRef", "parameterRef", entry)
			w.empty("LinearAdjustment", "intercept", "-1")
			w.end("DynamicValue")
		} else {
			length, _ := strconv.ParseInt(attr(n, "length"), 10, 64)
			w.text("FixedValue", strconv.FormatInt(length-1, 10))
		}
		w.end("EndingIndex")
		w.end("Dimension")
		w.end("DimensionList")
	default:
		if enc != nil {
			w.encoding(enc)
		}
	}

	switch kind {
	case "enumerated":
		w.start("EnumerationList")
		for _, c := range n.ChildrenOf(document.KindChoice) {
			w.empty("Enumeration", "value", attr(c, "value"), "label", attr(c, "label"), "shortDescription", attr(c, "description"))
		}
		w.end("EnumerationList")
	case "integer", "float":
		if r := n.Child(document.KindRange); r != nil {
			w.validRange(r)
		}
	}
	w.end(name)
}

func (w *writer) validRange(r *document.Node) {
	minKey, maxKey := "minInclusive", "maxInclusive"
	if boolAttr(r, "min_exclusive") != "" {
		minKey = "minExclusive"
	}
	if boolAttr(r, "max_exclusive") != "" {
		maxKey = "maxExclusive"
	}
	w.empty("ValidRange", minKey, attr(r, "min"), maxKey, attr(r, "max"))
}

var integerSchemes = map[string]string{
	"unsigned":        "unsigned",
	"twos_complement": "twosComplement",
	"sign_magnitude":  "signMagnitude",
	"ones_complement": "onesComplement",
}

var byteOrders = map[string]string{
	"big_endian":    "mostSignificantByteFirst",
	"little_endian": "leastSignificantByteFirst",
}

func (w *writer) encoding(n *document.Node) {
	bits := attr(n, "bits")
	order := byteOrders[attr(n, "byte_order")]
	switch attr(n, "kind") {
	case "unsigned", "signed":
		scheme := "unsigned"
		if attr(n, "kind") == "signed" {
			scheme = integerSchemes[attr(n, "scheme")]
		}
		w.start("IntegerDataEncoding", "sizeInBits", bits, "encoding", scheme, "byteOrder", order)
		w.calibrator(n.Child(document.KindCalibrator))
		w.end("IntegerDataEncoding")
	case "ieee754", "milstd1750a":
		scheme := "IEEE754_1985"
		if attr(n, "kind") == "milstd1750a" {
			scheme = "MILSTD_1750A"
		}
		w.start("FloatDataEncoding", "sizeInBits", bits, "encoding", scheme, "byteOrder", order)
		w.calibrator(n.Child(document.KindCalibrator))
		w.end("FloatDataEncoding")
	case "string":
		w.start("StringDataEncoding", "encoding", attr(n, "charset"))
		if bits != "" {
			w.start("SizeInBits")
			w.start("Fixed")
			w.text("FixedValue", bits)
			w.end("Fixed")
			w.end("SizeInBits")
		} else {
			w.start("Variable", "maxSizeInBits", attr(n, "max_bits"))
			w.variableSize(n)
			w.end("Variable")
		}
		w.end("StringDataEncoding")
	case "binary":
		w.start("BinaryDataEncoding")
		w.start("SizeInBits")
		if bits != "" {
			w.text("FixedValue", bits)
		} else {
			w.start("Variable", "maxSizeInBits", attr(n, "max_bits"))
			w.variableSize(n)
			w.end("Variable")
		}
		w.end("SizeInBits")
		w.end("BinaryDataEncoding")
	}
}

func (w *writer) variableSize(n *document.Node) {
	if t := attr(n, "terminator"); t != "" {
		w.text("TerminationChar", t[2:])
		return
	}
	w.empty("LeadingSize", "sizeInBitsOfSizeTag", attr(n, "length_bits"))
}

func (w *writer) calibrator(n *document.Node) {
	if n == nil {
		return
	}
	switch attr(n, "kind") {
	case "polynomial":
		w.start("DefaultCalibrator")
		w.start("PolynomialCalibrator")
		for _, t := range n.ChildrenOf(document.KindTerm) {
			w.empty("Term", "coefficient", attr(t, "coefficient"), "exponent", attr(t, "exponent"))
		}
		w.end("PolynomialCalibrator")
		w.end("DefaultCalibrator")
	case "spline":
		w.start("DefaultCalibrator")
		w.start("SplineCalibrator", "order", attr(n, "order"))
		for _, p := range n.ChildrenOf(document.KindPoint) {
			w.empty("SplinePoint", "raw", attr(p, "raw"), "calibrated", attr(p, "calibrated"))
		}
		w.end("SplineCalibrator")
		w.end("DefaultCalibrator")
	case "lookup":
		// A lookup table is a step spline over its raw values.
		w.start("DefaultCalibrator")
		w.start("SplineCalibrator", "order", "0")
		for _, p := range n.ChildrenOf(document.KindPair) {
			w.empty("SplinePoint", "raw", attr(p, "raw"), "calibrated", attr(p, "value"))
		}
		w.end("SplineCalibrator")
		w.end("DefaultCalibrator")
	case "custom":
		w.token(xml.Comment(fmt.Sprintf(" custom %s calibrator is not representable in XTCE ", attr(n, "language"))))
	}
}

// ============================================================
// Parameters and containers
// ============================================================

func (w *writer) parameter(n *document.Node) {
	w.start("Parameter",
		"name", attr(n, "name"),
		"parameterTypeRef", attr(n, "type"),
		"shortDescription", attr(n, "short_description"),
		"initialValue", attr(n, "initial"))
	w.describe(n)
	if anc := n.ChildrenOf(document.KindAncillary); len(anc) > 0 {
		w.start("AncillaryDataSet")
		for _, a := range anc {
			w.text("AncillaryData", attr(a, "value"), "name", attr(a, "name"))
		}
		w.end("AncillaryDataSet")
	}
	w.empty("ParameterProperties", "dataSource", attr(n, "data_source"), "persistence", attr(n, "persistent"))
	w.end("Parameter")
}

func (w *writer) container(n *document.Node) {
	w.start("SequenceContainer",
		"name", attr(n, "name"),
		"abstract", boolAttr(n, "abstract"),
		"shortDescription", attr(n, "short_description"))
	w.describe(n)
	if rate := attr(n, "rate"); rate != "" {
		if s, err := strconv.ParseFloat(rate, 64); err == nil && s > 0 {
			w.empty("DefaultRateInStream", "basis", "perSecond", "minimumValue", strconv.FormatFloat(1/s, 'g', -1, 64))
		}
	}
	w.entryList(n)
	if base := attr(n, "base"); base != "" {
		w.start("BaseContainer", "containerRef", base)
		if r := n.Child(document.KindRestriction); r != nil {
			w.start("RestrictionCriteria")
			w.comparisons(r)
			w.end("RestrictionCriteria")
		}
		w.end("BaseContainer")
	}
	w.end("SequenceContainer")
}

func (w *writer) entryList(n *document.Node) {
	w.start("EntryList")
	for _, e := range n.ChildrenOf(document.KindEntry) {
		var name string
		var attrs []string
		switch attr(e, "kind") {
		case "parameter":
			name, attrs = "ParameterRefEntry", []string{"parameterRef", attr(e, "parameter")}
		case "container":
			name, attrs = "ContainerRefEntry", []string{"containerRef", attr(e, "container")}
		case "argument":
			name, attrs = "ArgumentRefEntry", []string{"argumentRef", attr(e, "argument")}
		case "fixed":
			name, attrs = "FixedValueEntry", []string{"name", attr(e, "name"), "binaryValue", attr(e, "value"), "sizeInBits", attr(e, "size_bits")}
		default:
			continue
		}
		w.start(name, attrs...)
		w.location(e)
		w.end(name)
	}
	w.end("EntryList")
}

// location renders the entry location. XTCE has no named-entry anchor,
// so such entries use their resolved absolute position.
func (w *writer) location(e *document.Node) {
	ref, offset := attr(e, "reference"), attr(e, "offset_bits")
	switch ref {
	case "previous_entry":
		if offset == "" {
			return
		}
		w.start("LocationInContainerInBits", "referenceLocation", "previousEntry")
	case "container_start":
		if offset == "" {
			offset = "0"
		}
		w.start("LocationInContainerInBits", "referenceLocation", "containerStart")
	default:
		offset = attr(e, "start_bit")
		w.start("LocationInContainerInBits", "referenceLocation", "containerStart")
	}
	w.text("FixedValue", offset)
	w.end("LocationInContainerInBits")
}

func (w *writer) comparisons(n *document.Node) {
	cs := n.ChildrenOf(document.KindComparison)
	if len(cs) == 0 {
		return
	}
	w.start("ComparisonList")
	for _, c := range cs {
		calibrated := "false"
		if boolAttr(c, "calibrated") != "" {
			calibrated = "true"
		}
		w.empty("Comparison",
			"parameterRef", attr(c, "parameter"),
			"comparisonOperator", attr(c, "operator"),
			"value", attr(c, "value"),
			"useCalibratedValue", calibrated)
	}
	w.end("ComparisonList")
}

// ============================================================
// Commands and algorithms
// ============================================================

func (w *writer) command(n *document.Node) {
	w.start("MetaCommand",
		"name", attr(n, "name"),
		"abstract", boolAttr(n, "abstract"),
		"shortDescription", attr(n, "short_description"))
	w.describe(n)

	if base := attr(n, "base"); base != "" {
		w.start("BaseMetaCommand", "metaCommandRef", base)
		if as := n.ChildrenOf(document.KindAssignment); len(as) > 0 {
			w.start("ArgumentAssignmentList")
			for _, a := range as {
				w.empty("ArgumentAssignment", "argumentName", attr(a, "argument"), "argumentValue", attr(a, "value"))
			}
			w.end("ArgumentAssignmentList")
		}
		w.end("BaseMetaCommand")
	}

	if args := n.ChildrenOf(document.KindArgument); len(args) > 0 {
		w.start("ArgumentList")
		for _, a := range args {
			w.start("Argument",
				"name", attr(a, "name"),
				"argumentTypeRef", attr(a, "type"),
				"shortDescription", attr(a, "short_description"),
				"initialValue", attr(a, "default"))
			w.describe(a)
			w.end("Argument")
		}
		w.end("ArgumentList")
	}

	w.start("CommandContainer", "name", attr(n, "name"))
	w.entryList(n)
	w.end("CommandContainer")

	if tcs := n.ChildrenOf(document.KindConstraint); len(tcs) > 0 {
		w.start("TransmissionConstraintList")
		for _, tc := range tcs {
			w.start("TransmissionConstraint", "timeOut", duration(attr(tc, "timeout")), "suspendable", boolAttr(tc, "suspendable"))
			w.comparisons(tc)
			w.end("TransmissionConstraint")
		}
		w.end("TransmissionConstraintList")
	}

	if sig := attr(n, "significance"); sig != "" {
		w.empty("DefaultSignificance", "consequenceLevel", sig, "reasonForWarning", attr(n, "warning_message"))
	}

	if vs := n.ChildrenOf(document.KindVerifier); len(vs) > 0 {
		w.start("VerifierSet")
		for _, v := range vs {
			w.verifier(v)
		}
		w.end("VerifierSet")
	}
	w.end("MetaCommand")
}

var verifierElements = map[string]string{
	"transferred_to_range": "TransferredToRangeVerifier",
	"sent_from_range":      "SentFromRangeVerifier",
	"received":             "ReceivedVerifier",
	"accepted":             "AcceptedVerifier",
	"queued":               "QueuedVerifier",
	"execution":            "ExecutionVerifier",
	"complete":             "CompleteVerifier",
	"failed":               "FailedVerifier",
}

func (w *writer) verifier(v *document.Node) {
	name := verifierElements[attr(v, "stage")]
	w.start(name)
	switch {
	case attr(v, "container") != "":
		w.empty("ContainerRef", "containerRef", attr(v, "container"))
	case attr(v, "algorithm") != "":
		w.empty("CustomAlgorithm", "name", attr(v, "algorithm"))
	default:
		w.comparisons(v)
	}
	start, stop := attr(v, "delay"), attr(v, "timeout")
	if start == "" {
		start = "0"
	}
	if stop != "" {
		w.empty("CheckWindow",
			"timeToStartChecking", duration(start),
			"timeToStopChecking", duration(stop),
			"timeWindowIsRelativeTo", "timeLastVerifierPassed")
	}
	w.end(name)
}

func (w *writer) algorithm(n *document.Node) {
	w.start("CustomAlgorithm", "name", attr(n, "name"), "shortDescription", attr(n, "short_description"))
	w.describe(n)
	if text := n.Child(document.KindText); text != nil {
		w.text("AlgorithmText", text.Text, "language", attr(n, "language"))
	}
	if ins := n.ChildrenOf(document.KindInput); len(ins) > 0 {
		w.start("InputSet")
		for _, in := range ins {
			w.empty("InputParameterInstanceRef", "parameterRef", attr(in, "parameter"), "inputName", attr(in, "name"))
		}
		w.end("InputSet")
	}
	if outs := n.ChildrenOf(document.KindOutput); len(outs) > 0 {
		w.start("OutputSet")
		for _, out := range outs {
			w.empty("OutputParameterRef", "parameterRef", attr(out, "parameter"), "outputName", attr(out, "name"))
		}
		w.end("OutputSet")
	}
	if trs := n.ChildrenOf(document.KindTrigger); len(trs) > 0 {
		w.start("TriggerSet")
		for _, tr := range trs {
			switch {
			case attr(tr, "parameter") != "":
				w.empty("OnParameterUpdateTrigger", "parameterRef", attr(tr, "parameter"))
			case attr(tr, "container") != "":
				w.empty("OnContainerUpdateTrigger", "containerRef", attr(tr, "container"))
			default:
				w.empty("OnPeriodicRateTrigger", "fireRateInSeconds", attr(tr, "period"))
			}
		}
		w.end("TriggerSet")
	}
	w.end("CustomAlgorithm")
}

// duration renders seconds as an xs:duration.
func duration(seconds string) string {
	if seconds == "" {
		return ""
	}
	return "PT" + seconds + "S"
}

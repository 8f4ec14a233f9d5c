package headers

import (
	"github.com/roach88/mdbgen/internal/mdb"
)

const cspDescription = `CSP Header 1.x

The port range is divided into three adjustable segments. Ports 0 to 7
are used for general services such as ping and buffer status, and are
implemented by the CSP service handler. The ports from 8 to 47 are used
for subsystem specific services. All remaining ports, from 48 to 63, are
ephemeral ports used for outgoing connections. The bits from 28 to 31
are used for marking packets with HMAC, XTEA encryption, RDP header and
CRC32 checksum.`

// CSP holds the nodes added by AddCSP.
type CSP struct {
	Container mdb.ContainerID
	Command   mdb.CommandID

	Priority    mdb.ParameterID
	Source      mdb.ParameterID
	Destination mdb.ParameterID
	DestPort    mdb.ParameterID
	SourcePort  mdb.ParameterID
	HMAC        mdb.ParameterID
	XTEA        mdb.ParameterID
	RDP         mdb.ParameterID
	CRC         mdb.ParameterID
}

// CSPOption configures AddCSP.
type CSPOption func(*cspConfig)

type cspConfig struct {
	prefix string
}

// WithPrefix changes the "csp_" prefix of every generated name.
func WithPrefix(prefix string) CSPOption {
	return func(c *cspConfig) { c.prefix = prefix }
}

// AddCSP adds the 32 bit CubeSat Space Protocol 1.x header to sys as an
// abstract container and an abstract command, both named csp_message.
//
// When ids is non-empty, source and destination are enumerations over
// the given node addresses; otherwise they are plain 5 bit integers.
// The command fixes the source port to 32 and the reserved bits to zero.
func AddCSP(tree *mdb.Tree, sys mdb.SystemID, ids []mdb.Choice, opts ...CSPOption) (*CSP, error) {
	cfg := cspConfig{prefix: "csp_"}
	for _, opt := range opts {
		opt(&cfg)
	}
	p := cfg.prefix
	a := &adder{tree: tree, sys: sys}

	priority := a.typ(p+"pri", mdb.EnumeratedType{
		Encoding: mdb.UnsignedEncoding(2),
		Choices: []mdb.Choice{
			{Value: 0, Label: "CRITICAL"},
			{Value: 1, Label: "HIGH"},
			{Value: 2, Label: "NORMAL"},
			{Value: 3, Label: "LOW"},
		},
	})
	var node mdb.TypeID
	if len(ids) > 0 {
		node = a.typ(p+"node", mdb.EnumeratedType{Encoding: mdb.UnsignedEncoding(5), Choices: ids})
	} else {
		node = a.typ(p+"node", unsigned(5))
	}
	port := a.typ(p+"port", unsigned(6))
	bit := a.typ(p+"flag", flag("", ""))

	h := &CSP{
		Priority:    a.param(mdb.ParameterSpec{Name: p + "pri", Type: priority, ShortDescription: "Message priority"}),
		Source:      a.param(mdb.ParameterSpec{Name: p + "src", Type: node, ShortDescription: "Source"}),
		Destination: a.param(mdb.ParameterSpec{Name: p + "dst", Type: node, ShortDescription: "Destination"}),
		DestPort:    a.param(mdb.ParameterSpec{Name: p + "dport", Type: port, ShortDescription: "Destination port"}),
		SourcePort:  a.param(mdb.ParameterSpec{Name: p + "sport", Type: port, ShortDescription: "Source port"}),
		HMAC:        a.param(mdb.ParameterSpec{Name: p + "hmac", Type: bit, ShortDescription: "Use HMAC verification"}),
		XTEA:        a.param(mdb.ParameterSpec{Name: p + "xtea", Type: bit, ShortDescription: "Use XTEA encryption"}),
		RDP:         a.param(mdb.ParameterSpec{Name: p + "rdp", Type: bit, ShortDescription: "Use RDP protocol"}),
		CRC:         a.param(mdb.ParameterSpec{Name: p + "crc", Type: bit, ShortDescription: "Use CRC32 checksum"}),
	}

	h.Container = a.container(mdb.ContainerSpec{
		Name:             p + "message",
		Abstract:         true,
		Bits:             32,
		ShortDescription: "CubeSat Space Protocol (CSP) header 1.x",
		LongDescription:  cspDescription,
		Entries: []mdb.Entry{
			mdb.ParameterEntry(h.Priority),
			mdb.ParameterEntry(h.Source),
			mdb.ParameterEntry(h.Destination),
			mdb.ParameterEntry(h.DestPort),
			mdb.ParameterEntry(h.SourcePort),
			mdb.ParameterEntry(h.HMAC).At(mdb.AfterPrevious(4)),
			mdb.ParameterEntry(h.XTEA),
			mdb.ParameterEntry(h.RDP),
			mdb.ParameterEntry(h.CRC),
		},
	})

	sport := mdb.FixedValueEntry(p+"sport", []byte{0x20}, 6)
	sport.ShortDescription = "Ephemeral port for outgoing connection"

	h.Command = a.command(mdb.CommandSpec{
		Name:             p + "message",
		Abstract:         true,
		ShortDescription: "CubeSat Space Protocol (CSP) header 1.x",
		LongDescription:  cspDescription,
		Arguments: []mdb.Argument{
			{Name: p + "pri", Type: priority, Default: mdb.String("NORMAL"), ShortDescription: "Message priority"},
			{Name: p + "src", Type: node, ShortDescription: "Source"},
			{Name: p + "dst", Type: node, ShortDescription: "Destination"},
			{Name: p + "dport", Type: port, ShortDescription: "Destination port"},
			{Name: p + "hmac", Type: bit, Default: mdb.Bool(false), ShortDescription: "Use HMAC verification"},
			{Name: p + "xtea", Type: bit, Default: mdb.Bool(false), ShortDescription: "Use XTEA encryption"},
			{Name: p + "rdp", Type: bit, Default: mdb.Bool(false), ShortDescription: "Use RDP protocol"},
			{Name: p + "crc", Type: bit, Default: mdb.Bool(false), ShortDescription: "Use CRC32 checksum"},
		},
		Entries: []mdb.Entry{
			mdb.ArgumentEntry(p + "pri"),
			mdb.ArgumentEntry(p + "src"),
			mdb.ArgumentEntry(p + "dst"),
			mdb.ArgumentEntry(p + "dport"),
			sport,
			mdb.FixedValueEntry(p+"reserved", []byte{0x00}, 4),
			mdb.ArgumentEntry(p + "hmac"),
			mdb.ArgumentEntry(p + "xtea"),
			mdb.ArgumentEntry(p + "rdp"),
			mdb.ArgumentEntry(p + "crc"),
		},
	})
	if err := a.result("CSP header"); err != nil {
		return nil, err
	}
	return h, nil
}

package headers

import (
	"github.com/roach88/mdbgen/internal/mdb"
)

const ccsdsDescription = `Represents a Space Packet as defined in CCSDS 133.0-B-1

The first 6 bytes of a Space Packet are known as the "Primary Header".`

// CCSDS holds the nodes added by AddCCSDS. The member fields are
// parameter references usable in restriction criteria, for example
// "/SC/ccsds_packet_id.apid".
type CCSDS struct {
	Container      mdb.ContainerID
	Command        mdb.CommandID
	PacketID       mdb.ParameterID
	PacketSequence mdb.ParameterID
	PacketLength   mdb.ParameterID

	Version         string
	Type            string
	SecondaryHeader string
	APID            string
}

// AddCCSDS adds the CCSDS 133.0-B-1 primary header to sys: an abstract
// 48 bit container named ccsds_space_packet and an abstract command of
// the same name. The command fixes version, type, group flags, sequence
// count and length, and leaves ccsds_secondary_header and ccsds_apid to
// be assigned by derived commands.
func AddCCSDS(tree *mdb.Tree, sys mdb.SystemID) (*CCSDS, error) {
	a := &adder{tree: tree, sys: sys}

	version := a.typ("ccsds_version", unsigned(3))
	packetType := a.typ("ccsds_type", mdb.EnumeratedType{
		Encoding: mdb.UnsignedEncoding(1),
		Choices:  []mdb.Choice{{Value: 0, Label: "TM"}, {Value: 1, Label: "TC"}},
	})
	secondary := a.typ("ccsds_secondary_header", flag("Not Present", "Present"))
	apid := a.typ("ccsds_apid", unsigned(11))
	packetID := a.typ("ccsds_packet_id", mdb.AggregateType{Members: []mdb.Member{
		{Name: "version", Type: version},
		{Name: "type", Type: packetType},
		{Name: "secondary_header", Type: secondary},
		{Name: "apid", Type: apid},
	}})

	groupFlags := a.typ("ccsds_group_flags", mdb.EnumeratedType{
		Encoding: mdb.UnsignedEncoding(2),
		Choices: []mdb.Choice{
			{Value: 0, Label: "Continuation"},
			{Value: 1, Label: "First"},
			{Value: 2, Label: "Last"},
			{Value: 3, Label: "Standalone"},
		},
	})
	count := a.typ("ccsds_source_sequence_count", unsigned(14))
	sequence := a.typ("ccsds_packet_sequence", mdb.AggregateType{Members: []mdb.Member{
		{Name: "group_flags", Type: groupFlags},
		{Name: "source_sequence_count", Type: count},
	}})
	length := a.typ("ccsds_packet_length", mdb.IntegerType{Encoding: mdb.UnsignedEncoding(16), Units: "Octets"})

	h := &CCSDS{
		PacketID: a.param(mdb.ParameterSpec{
			Name: "ccsds_packet_id", Type: packetID,
			ShortDescription: "First word of the primary CCSDS header",
		}),
		PacketSequence: a.param(mdb.ParameterSpec{
			Name: "ccsds_packet_sequence", Type: sequence,
			ShortDescription: "Second word of the primary CCSDS header",
		}),
		PacketLength: a.param(mdb.ParameterSpec{Name: "ccsds_packet_length", Type: length}),
	}

	h.Container = a.container(mdb.ContainerSpec{
		Name:             "ccsds_space_packet",
		Abstract:         true,
		Bits:             48,
		ShortDescription: "CCSDS 133.0-B-1 Space Packet",
		LongDescription:  ccsdsDescription,
		Entries: []mdb.Entry{
			mdb.ParameterEntry(h.PacketID),
			mdb.ParameterEntry(h.PacketSequence),
			mdb.ParameterEntry(h.PacketLength),
		},
	})

	sequenceCount := mdb.FixedValueEntry("ccsds_source_sequence_count", []byte{0x00, 0x00}, 14)
	sequenceCount.ShortDescription = "Value set by the ground system during link post-processing"
	packetLength := mdb.FixedValueEntry("ccsds_packet_length", []byte{0x00, 0x00}, 16)
	packetLength.ShortDescription = "Value set by the ground system during link post-processing"

	h.Command = a.command(mdb.CommandSpec{
		Name:             "ccsds_space_packet",
		Abstract:         true,
		ShortDescription: "CCSDS 133.0-B-1 Space Packet",
		LongDescription:  ccsdsDescription,
		Arguments: []mdb.Argument{
			{Name: "ccsds_secondary_header", Type: secondary},
			{Name: "ccsds_apid", Type: apid},
		},
		Entries: []mdb.Entry{
			mdb.FixedValueEntry("ccsds_version", []byte{0x00}, 3),
			mdb.FixedValueEntry("ccsds_type", []byte{0x01}, 1),
			mdb.ArgumentEntry("ccsds_secondary_header"),
			mdb.ArgumentEntry("ccsds_apid"),
			// Always standalone.
			mdb.FixedValueEntry("ccsds_group_flags", []byte{0x03}, 2),
			sequenceCount,
			packetLength,
		},
	})
	if err := a.result("CCSDS header"); err != nil {
		return nil, err
	}

	id := tree.Parameter(h.PacketID).QualifiedName
	h.Version = id + ".version"
	h.Type = id + ".type"
	h.SecondaryHeader = id + ".secondary_header"
	h.APID = id + ".apid"
	return h, nil
}

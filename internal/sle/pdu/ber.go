package pdu

import (
	"fmt"

	ber "github.com/go-asn1-ber/asn1-ber"

	"firestige.xyz/sle/internal/core"
)

// Children must be complete before they are appended: AppendChild copies
// the child's encoding into the parent at call time.

func ctxNull(tag ber.Tag, desc string) *ber.Packet {
	return ber.Encode(ber.ClassContext, ber.TypePrimitive, tag, nil, desc)
}

func ctxInt(tag ber.Tag, v int64, desc string) *ber.Packet {
	return ber.NewInteger(ber.ClassContext, ber.TypePrimitive, tag, v, desc)
}

func ctxOctets(tag ber.Tag, b []byte, desc string) *ber.Packet {
	p := ber.Encode(ber.ClassContext, ber.TypePrimitive, tag, nil, desc)
	p.Value = b
	p.Data.Write(b)
	return p
}

func ctxConstructed(tag ber.Tag, desc string, children ...*ber.Packet) *ber.Packet {
	p := ber.Encode(ber.ClassContext, ber.TypeConstructed, tag, nil, desc)
	for _, c := range children {
		p.AppendChild(c)
	}
	return p
}

func sequence(desc string, children ...*ber.Packet) *ber.Packet {
	p := ber.NewSequence(desc)
	for _, c := range children {
		p.AppendChild(c)
	}
	return p
}

func set(desc string, children ...*ber.Packet) *ber.Packet {
	p := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSet, nil, desc)
	for _, c := range children {
		p.AppendChild(c)
	}
	return p
}

func integer(v int64, desc string) *ber.Packet {
	return ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, v, desc)
}

func octets(b []byte, desc string) *ber.Packet {
	p := ber.Encode(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, nil, desc)
	p.Value = b
	p.Data.Write(b)
	return p
}

func visible(s, desc string) *ber.Packet {
	return ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagVisibleString, s, desc)
}

func oid(dotted, desc string) *ber.Packet {
	return ber.NewOID(ber.ClassUniversal, ber.TypePrimitive, ber.TagObjectIdentifier, dotted, desc)
}

func decodeOID(b []byte) ([]int, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty object identifier", core.ErrMalformedPDU)
	}
	var arcs []int
	v := 0
	for i, c := range b {
		v = v<<7 | int(c&0x7F)
		if c&0x80 != 0 {
			if i == len(b)-1 {
				return nil, fmt.Errorf("%w: truncated object identifier", core.ErrMalformedPDU)
			}
			continue
		}
		if arcs == nil {
			first := v / 40
			if first > 2 {
				first = 2
			}
			arcs = append(arcs, first, v-first*40)
		} else {
			arcs = append(arcs, v)
		}
		v = 0
	}
	return arcs, nil
}

// content returns the value octets of a primitive packet.
func content(p *ber.Packet) []byte {
	if p.Data != nil && p.Data.Len() > 0 {
		return p.Data.Bytes()
	}
	return p.ByteValue
}

func isContext(p *ber.Packet, tag ber.Tag) bool {
	return p.ClassType == ber.ClassContext && p.Tag == tag
}

func readInt(p *ber.Packet, field string) (int64, error) {
	if p.TagType != ber.TypePrimitive {
		return 0, fmt.Errorf("%w: %s is not a primitive integer", core.ErrMalformedPDU, field)
	}
	v, err := ber.ParseInt64(content(p))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", core.ErrMalformedPDU, field, err)
	}
	return v, nil
}

func child(p *ber.Packet, i int, field string) (*ber.Packet, error) {
	if i >= len(p.Children) {
		return nil, fmt.Errorf("%w: missing %s", core.ErrMalformedPDU, field)
	}
	return p.Children[i], nil
}

func childInt(p *ber.Packet, i int, field string) (int64, error) {
	c, err := child(p, i, field)
	if err != nil {
		return 0, err
	}
	return readInt(c, field)
}

func readCredentials(p *ber.Packet) (Credentials, error) {
	switch {
	case isContext(p, 0):
		return Unused(), nil
	case isContext(p, 1):
		return Used(content(p)), nil
	}
	return Credentials{}, fmt.Errorf("%w: credentials tag [%d]", core.ErrMalformedPDU, p.Tag)
}

func credentialsPacket(c Credentials) *ber.Packet {
	if c.IsUsed() {
		return ctxOctets(1, c.value, "used")
	}
	return ctxNull(0, "unused")
}

package pdu

import (
	"fmt"
	"strings"

	ber "github.com/go-asn1-ber/asn1-ber"

	"firestige.xyz/sle/internal/core"
)

// serviceInstanceOIDs maps the SII attribute names to their object identifiers
// (CCSDS 911.2 annex, sagr/spack/rsl-fg/rcf and friends).
var serviceInstanceOIDs = map[string]string{
	"sagr":   "1.3.112.4.3.1.2.52",
	"spack":  "1.3.112.4.3.1.2.53",
	"fsl-fg": "1.3.112.4.3.1.2.14",
	"rsl-fg": "1.3.112.4.3.1.2.38",
	"cltu":   "1.3.112.4.3.1.2.7",
	"fsp":    "1.3.112.4.3.1.2.10",
	"raf":    "1.3.112.4.3.1.2.22",
	"rcf":    "1.3.112.4.3.1.2.46",
	"rcfsh":  "1.3.112.4.3.1.2.44",
	"rocf":   "1.3.112.4.3.1.2.49",
	"rsp":    "1.3.112.4.3.1.2.40",
	"tcf":    "1.3.112.4.3.1.2.12",
	"tcva":   "1.3.112.4.3.1.2.16",
}

// ServiceInstanceAttribute is one "name=value" element of a service
// instance identifier.
type ServiceInstanceAttribute struct {
	Name  string
	Value string
}

// ServiceInstanceID is the ordered list of SII attributes.
type ServiceInstanceID []ServiceInstanceAttribute

// ParseServiceInstanceID parses the dotted SII form, for example
// "sagr=1.spack=VST-PASS0001.rsl-fg=1.rcf=onlt1".
func ParseServiceInstanceID(s string) (ServiceInstanceID, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty service instance identifier", core.ErrValidation)
	}
	var sii ServiceInstanceID
	for _, part := range strings.Split(s, ".") {
		name, value, ok := strings.Cut(part, "=")
		if !ok || name == "" || value == "" {
			return nil, fmt.Errorf("%w: malformed service instance attribute %q", core.ErrValidation, part)
		}
		if _, known := serviceInstanceOIDs[name]; !known {
			return nil, fmt.Errorf("%w: unknown service instance attribute %q", core.ErrValidation, name)
		}
		sii = append(sii, ServiceInstanceAttribute{Name: name, Value: value})
	}
	return sii, nil
}

func (s ServiceInstanceID) String() string {
	parts := make([]string, len(s))
	for i, a := range s {
		parts[i] = a.Name + "=" + a.Value
	}
	return strings.Join(parts, ".")
}

// packet encodes SEQUENCE OF SET OF SEQUENCE { identifier OID, siAttributeValue VisibleString }.
func (s ServiceInstanceID) packet() *ber.Packet {
	outer := ber.NewSequence("serviceInstanceIdentifier")
	for _, a := range s {
		attr := sequence(a.Name,
			oid(serviceInstanceOIDs[a.Name], "identifier"),
			visible(a.Value, "siAttributeValue"),
		)
		outer.AppendChild(set("serviceInstanceAttribute", attr))
	}
	return outer
}

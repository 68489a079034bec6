// Package ccsds implements the CCSDS time code and transfer frame formats
// used by the SLE return services.
package ccsds

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Epoch is the CCSDS day segmented time code epoch.
var Epoch = time.Date(1958, time.January, 1, 0, 0, 0, 0, time.UTC)

// CDSLength is the size of a CCSDS day segmented time value
// (16-bit day, 32-bit millisecond of day, 16-bit microsecond of millisecond).
const CDSLength = 8

// CDSPicoLength is the size of the picosecond resolution variant.
const CDSPicoLength = 10

const day = 24 * time.Hour

// CDS is a CCSDS day segmented time code in network byte order.
type CDS [CDSLength]byte

// Days returns the day segment.
func (c CDS) Days() uint16 { return binary.BigEndian.Uint16(c[0:2]) }

// MillisOfDay returns the millisecond-of-day segment.
func (c CDS) MillisOfDay() uint32 { return binary.BigEndian.Uint32(c[2:6]) }

// MicrosOfMilli returns the microsecond-of-millisecond segment.
func (c CDS) MicrosOfMilli() uint16 { return binary.BigEndian.Uint16(c[6:8]) }

// Time converts the code back to a UTC time.
func (c CDS) Time() time.Time {
	return Epoch.Add(time.Duration(c.Days())*day +
		time.Duration(c.MillisOfDay())*time.Millisecond +
		time.Duration(c.MicrosOfMilli())*time.Microsecond)
}

func (c CDS) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Days(), c.MillisOfDay(), c.MicrosOfMilli())
}

// EncodeDays encodes t with day resolution only: the millisecond and
// microsecond segments are always zero. t must not be before Epoch.
func EncodeDays(t time.Time) CDS {
	var c CDS
	days := int64(t.Sub(Epoch) / day)
	binary.BigEndian.PutUint16(c[0:2], uint16(days))
	return c
}

// EncodeCDS encodes t with microsecond resolution. t must not be before Epoch.
func EncodeCDS(t time.Time) CDS {
	var c CDS
	since := t.Sub(Epoch)
	days := since / day
	rem := since - days*day
	ms := rem / time.Millisecond
	us := (rem - ms*time.Millisecond) / time.Microsecond
	binary.BigEndian.PutUint16(c[0:2], uint16(days))
	binary.BigEndian.PutUint32(c[2:6], uint32(ms))
	binary.BigEndian.PutUint16(c[6:8], uint16(us))
	return c
}

// DecodeCDS decodes an 8-byte CDS value or a 10-byte CDS value whose
// sub-millisecond segment counts picoseconds.
func DecodeCDS(b []byte) (time.Time, error) {
	switch len(b) {
	case CDSLength:
		var c CDS
		copy(c[:], b)
		return c.Time(), nil
	case CDSPicoLength:
		days := binary.BigEndian.Uint16(b[0:2])
		ms := binary.BigEndian.Uint32(b[2:6])
		pico := binary.BigEndian.Uint32(b[6:10])
		// nanosecond resolution is all time.Time keeps
		return Epoch.Add(time.Duration(days)*day +
			time.Duration(ms)*time.Millisecond +
			time.Duration(pico/1000)*time.Nanosecond), nil
	default:
		return time.Time{}, fmt.Errorf("ccsds: invalid CDS length %d", len(b))
	}
}

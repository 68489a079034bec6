// Package isp1 implements the ISP1 simple authentication credentials.
package isp1

import (
	"bytes"
	"crypto/sha1"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	ber "github.com/go-asn1-ber/asn1-ber"

	"firestige.xyz/sle/pkg/ccsds"
)

// ProtectedLength is the length of the SHA-1 digest in the credentials.
const ProtectedLength = sha1.Size

var (
	ErrMalformed = errors.New("isp1: malformed credentials")
	ErrMismatch  = errors.New("isp1: credentials do not match")
)

// Credentials is the decoded ISP1Credentials sequence.
type Credentials struct {
	Time      ccsds.CDS
	Random    int32
	Protected []byte
}

// Generator produces ISP1 credentials for one local identity.
type Generator struct {
	Username string
	Password []byte

	// Now and Random default to the wall clock and math/rand.
	Now    func() time.Time
	Random func() int32
}

// NewGenerator returns a generator for username/password.
func NewGenerator(username string, password []byte) *Generator {
	return &Generator{Username: username, Password: password}
}

// Make returns the DER encoding of fresh credentials.
func (g *Generator) Make() []byte {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	random := func() int32 { return rand.Int32() }
	if g.Random != nil {
		random = g.Random
	}

	t := ccsds.EncodeCDS(now().UTC())
	r := random()
	return encode(Credentials{
		Time:      t,
		Random:    r,
		Protected: protect(t, r, g.Username, g.Password),
	})
}

func protect(t ccsds.CDS, random int32, username string, password []byte) []byte {
	hi := ber.NewSequence("HashInput")
	hi.AppendChild(octets(t[:], "time"))
	hi.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, int64(random), "randomNumber"))
	hi.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagVisibleString, username, "userName"))
	hi.AppendChild(octets(password, "passWord"))
	sum := sha1.Sum(hi.Bytes())
	return sum[:]
}

func encode(c Credentials) []byte {
	seq := ber.NewSequence("ISP1Credentials")
	seq.AppendChild(octets(c.Time[:], "time"))
	seq.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, int64(c.Random), "randomNumber"))
	seq.AppendChild(octets(c.Protected, "theProtected"))
	return seq.Bytes()
}

func octets(b []byte, desc string) *ber.Packet {
	p := ber.Encode(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, nil, desc)
	p.Value = b
	p.Data.Write(b)
	return p
}

// Decode parses encoded ISP1 credentials.
func Decode(b []byte) (Credentials, error) {
	var c Credentials
	pkt, err := ber.DecodePacketErr(b)
	if err != nil {
		return c, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if pkt.Tag != ber.TagSequence || len(pkt.Children) != 3 {
		return c, ErrMalformed
	}
	ts := pkt.Children[0].ByteValue
	if len(ts) != ccsds.CDSLength {
		return c, fmt.Errorf("%w: time is %d bytes", ErrMalformed, len(ts))
	}
	copy(c.Time[:], ts)

	r, ok := pkt.Children[1].Value.(int64)
	if !ok {
		return c, fmt.Errorf("%w: random number", ErrMalformed)
	}
	c.Random = int32(r)
	c.Protected = bytes.Clone(pkt.Children[2].ByteValue)
	if len(c.Protected) != ProtectedLength {
		return c, fmt.Errorf("%w: protected is %d bytes", ErrMalformed, len(c.Protected))
	}
	return c, nil
}

// Verify checks encoded peer credentials against username/password and
// returns the credential time.
func Verify(b []byte, username string, password []byte) (time.Time, error) {
	c, err := Decode(b)
	if err != nil {
		return time.Time{}, err
	}
	if !bytes.Equal(c.Protected, protect(c.Time, c.Random, username, password)) {
		return time.Time{}, ErrMismatch
	}
	return c.Time.Time(), nil
}

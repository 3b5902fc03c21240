// Package framer implements the Payload Framer (C2): the 4-byte tag/ESI
// prefix glued to every DataPDU payload before it's handed to the Frame
// Codec collaborator (§4.2).
package framer

import (
	"encoding/binary"
	"fmt"
)

// HeaderLen is the fixed prefix size: BE16(tag) || BE16(esi).
const HeaderLen = 4

// Frame is one decoded DataPDU: the 16-bit wire tag identifying the
// transfer, the 16-bit wire ESI, and the symbol payload that followed them.
type Frame struct {
	Tag     uint16
	ESI     uint16
	Payload []byte
}

// Marshal prepends the tag/ESI header to payload, producing the bytes that
// get handed to the Frame Codec's Serialize step.
func Marshal(tag, esi uint16, payload []byte) []byte {
	out := make([]byte, HeaderLen+len(payload))
	binary.BigEndian.PutUint16(out[0:2], tag)
	binary.BigEndian.PutUint16(out[2:4], esi)
	copy(out[HeaderLen:], payload)
	return out
}

// Unmarshal splits a DataPDU payload into its Frame. Payloads shorter than
// HeaderLen are rejected with an error (§4.2).
func Unmarshal(buf []byte) (Frame, error) {
	if len(buf) < HeaderLen {
		return Frame{}, fmt.Errorf("framer: payload length %d shorter than header %d", len(buf), HeaderLen)
	}
	f := Frame{
		Tag: binary.BigEndian.Uint16(buf[0:2]),
		ESI: binary.BigEndian.Uint16(buf[2:4]),
	}
	f.Payload = append([]byte(nil), buf[HeaderLen:]...)
	return f, nil
}

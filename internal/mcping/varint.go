// Package mcping implements the Minecraft server list ping (protocol 47).
package mcping

import (
	"errors"
	"io"
)

const maxVarIntBytes = 5

var ErrVarIntTooBig = errors.New("varint too big")

// AppendVarInt appends v in the 7-bit little-endian group encoding used by the protocol.
func AppendVarInt(buf []byte, v int32) []byte {
	u := uint32(v)
	for {
		if u&^0x7F == 0 {
			return append(buf, byte(u))
		}
		buf = append(buf, byte(u&0x7F|0x80))
		u >>= 7
	}
}

// ReadVarInt reads one varint. More than five bytes is an error.
func ReadVarInt(r io.ByteReader) (int32, error) {
	var result uint32
	for i := 0; i < maxVarIntBytes; i++ {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && i > 0 {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
		result |= uint32(b&0x7F) << (7 * uint(i))
		if b&0x80 == 0 {
			return int32(result), nil
		}
	}
	return 0, ErrVarIntTooBig
}

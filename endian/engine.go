// Package endian provides the byte order used by the lvbits container format.
//
// The container carries its two leading dimensions and the quality parameter as
// multi-byte numbers. Decoding them in the host's native order makes containers
// non-portable between machines of different endianness, so the format pins one
// explicit order: big-endian (network byte order). ContainerEngine returns it.
//
// The EndianEngine interface combines binary.ByteOrder and binary.AppendByteOrder,
// so the same value can both read fixed offsets and append to a growing buffer:
//
//	engine := endian.ContainerEngine()
//	buf = engine.AppendUint16(buf, height)
//	height = engine.Uint16(buf[0:2])
//
// All functions in this package are safe for concurrent use. The returned engines
// are immutable and stateless.
package endian

import (
	"encoding/binary"
	"unsafe"
)

// EndianEngine combines ByteOrder and AppendByteOrder interfaces from encoding/binary.
//
// It is satisfied by binary.LittleEndian and binary.BigEndian.
type EndianEngine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// ContainerEngine returns the byte order of the lvbits container wire format.
func ContainerEngine() EndianEngine {
	return binary.BigEndian
}

// CheckEndianness uses a fixed integer value to determine the host's byte order.
func CheckEndianness() binary.ByteOrder {
	// 0x0100 is 256. On a little-endian host the low byte (0x00) comes first.
	var i uint16 = 0x0100
	b := (*[2]byte)(unsafe.Pointer(&i))

	if b[0] == 0x01 {
		return binary.BigEndian
	}

	return binary.LittleEndian
}

// Name returns a human-readable name for a byte order.
func Name(order binary.ByteOrder) string {
	switch order {
	case binary.BigEndian:
		return "big-endian"
	case binary.LittleEndian:
		return "little-endian"
	default:
		return order.String()
	}
}

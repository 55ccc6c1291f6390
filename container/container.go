package container

import (
	"fmt"

	"github.com/arloliu/lvbits/errs"
)

// Container is one compression result: a fixed header followed by the opaque
// entropy-coded payload produced by the codec.
//
// A Container is immutable once constructed. Parse copies the payload out of the
// caller's buffer, so later changes to that buffer are not observed.
type Container struct {
	Header

	// Payload is the opaque codec payload, at least one byte.
	Payload []byte
}

// New builds a Container after validating every field.
func New(height, width int, quality float32, shape []byte, payload []byte) (Container, error) {
	if height <= 0 || width <= 0 || height > MaxDimension || width > MaxDimension {
		return Container{}, fmt.Errorf("%w: height and width must be in [1, %d], got %dx%d",
			errs.ErrInvalidDimension, MaxDimension, height, width)
	}

	sm, err := NewShapeMetadata(shape)
	if err != nil {
		return Container{}, err
	}

	if len(payload) == 0 {
		return Container{}, fmt.Errorf("%w: container requires at least 1 payload byte", errs.ErrEmptyPayload)
	}

	h := Header{
		Height:  uint16(height),
		Width:   uint16(width),
		Quality: quality,
		Shape:   sm,
	}
	if err := h.Validate(); err != nil {
		return Container{}, err
	}

	p := make([]byte, len(payload))
	copy(p, payload)

	return Container{Header: h, Payload: p}, nil
}

// Encode validates the fields and returns the serialized container.
//
// Fails with ErrInvalidDimension if height or width is 0 or exceeds 65535,
// ErrInvalidQuality if quality is NaN or infinite, ErrInvalidShapeMetadata if shape
// is not exactly 6 bytes, and ErrEmptyPayload if payload is empty.
func Encode(height, width int, quality float32, shape []byte, payload []byte) ([]byte, error) {
	c, err := New(height, width, quality, shape, payload)
	if err != nil {
		return nil, err
	}

	return c.Bytes(), nil
}

// Parse validates and parses a container of unknown provenance.
//
// See ParseHeader for the validation sequence. The returned payload is a copy.
func Parse(data []byte) (Container, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return Container{}, err
	}

	payload := make([]byte, len(data)-PayloadOffset)
	copy(payload, data[PayloadOffset:])

	return Container{Header: h, Payload: payload}, nil
}

// Size returns the serialized length of the container.
func (c Container) Size() int {
	return HeaderSize + len(c.Payload)
}

// Bytes serializes the container into a new byte slice.
func (c Container) Bytes() []byte {
	b := make([]byte, 0, c.Size())
	b = c.Header.AppendTo(b)

	return append(b, c.Payload...)
}

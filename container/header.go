package container

import (
	"encoding/hex"
	"fmt"
	"math"

	"github.com/arloliu/lvbits/endian"
	"github.com/arloliu/lvbits/errs"
)

// ShapeMetadata is the opaque shape descriptor the codec needs to rebuild its
// internal tensor layout. The container never interprets it.
type ShapeMetadata [ShapeMetadataSize]byte

// NewShapeMetadata copies b into a ShapeMetadata.
//
// Returns ErrInvalidShapeMetadata if b is not exactly ShapeMetadataSize bytes.
func NewShapeMetadata(b []byte) (ShapeMetadata, error) {
	var shape ShapeMetadata
	if len(b) != ShapeMetadataSize {
		return shape, fmt.Errorf("%w: expected %d bytes, got %d", errs.ErrInvalidShapeMetadata, ShapeMetadataSize, len(b))
	}
	copy(shape[:], b)

	return shape, nil
}

// String returns the shape block as lowercase hex.
func (s ShapeMetadata) String() string {
	return hex.EncodeToString(s[:])
}

// ParseShapeMetadata decodes a 12-character hex string into a ShapeMetadata.
func ParseShapeMetadata(s string) (ShapeMetadata, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ShapeMetadata{}, fmt.Errorf("%w: %v", errs.ErrInvalidShapeMetadata, err)
	}

	return NewShapeMetadata(b)
}

// Header represents the fixed 14-byte section at the start of a container.
type Header struct {
	// Height is the image height in pixels. byte offset 0-1
	Height uint16
	// Width is the image width in pixels. byte offset 2-3
	Width uint16
	// Quality is the codec rate-distortion parameter used for the payload. byte offset 4-7
	Quality float32
	// Shape is the opaque codec shape descriptor. byte offset 8-13
	Shape ShapeMetadata
}

// Validate checks the header fields against the encoding contract.
func (h Header) Validate() error {
	if h.Height == 0 || h.Width == 0 {
		return fmt.Errorf("%w: height and width must be in [1, %d], got %dx%d",
			errs.ErrInvalidDimension, MaxDimension, h.Height, h.Width)
	}

	q := float64(h.Quality)
	if math.IsNaN(q) || math.IsInf(q, 0) {
		return fmt.Errorf("%w: quality must be finite, got %v", errs.ErrInvalidQuality, h.Quality)
	}

	return nil
}

// Pixels returns Height * Width.
func (h Header) Pixels() int {
	return int(h.Height) * int(h.Width)
}

// AppendTo appends the serialized header to dst.
func (h Header) AppendTo(dst []byte) []byte {
	engine := endian.ContainerEngine()

	dst = engine.AppendUint16(dst, h.Height)
	dst = engine.AppendUint16(dst, h.Width)
	dst = engine.AppendUint32(dst, math.Float32bits(h.Quality))

	return append(dst, h.Shape[:]...)
}

// Bytes serializes the header into a new HeaderSize byte slice.
func (h Header) Bytes() []byte {
	return h.AppendTo(make([]byte, 0, HeaderSize))
}

// ParseHeader parses and validates the fixed header of a container.
//
// The validation sequence short-circuits on the first failure:
//  1. at least 4 bytes for the dimensions, else ErrTooSmall
//  2. height and width in [1, MaxSanityDimension], else ErrInvalidDimension
//  3. at least MinContainerSize bytes, else ErrTooSmall
//
// The payload is not inspected; malformed payloads surface when the codec decodes them.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < DimensionsSize {
		return Header{}, fmt.Errorf("%w: file is too small to be a valid container, minimum %d bytes for header, got %d",
			errs.ErrTooSmall, DimensionsSize, len(data))
	}

	engine := endian.ContainerEngine()
	height := engine.Uint16(data[HeightOffset:WidthOffset])
	width := engine.Uint16(data[WidthOffset:QualityOffset])

	if err := checkSanityDimensions(int(height), int(width)); err != nil {
		return Header{}, err
	}

	if len(data) < MinContainerSize {
		return Header{}, fmt.Errorf("%w: missing compression data, minimum %d bytes, got %d",
			errs.ErrTooSmall, MinContainerSize, len(data))
	}

	h := Header{
		Height:  height,
		Width:   width,
		Quality: math.Float32frombits(engine.Uint32(data[QualityOffset:ShapeOffset])),
	}
	copy(h.Shape[:], data[ShapeOffset:PayloadOffset])

	return h, nil
}

func checkSanityDimensions(height, width int) error {
	if height <= 0 || width <= 0 || height > MaxSanityDimension || width > MaxSanityDimension {
		return fmt.Errorf("%w: invalid dimensions in header %dx%d, expected values in [1, %d]",
			errs.ErrInvalidDimension, height, width, MaxSanityDimension)
	}

	return nil
}

package container

import "math"

// Field sizes of the fixed header, in bytes.
const (
	DimensionsSize    = 4 // height (2) + width (2)
	QualitySize       = 4 // float32 quality parameter
	ShapeMetadataSize = 6 // opaque codec shape descriptor
)

// Byte offsets of each field in the container.
const (
	HeightOffset  = 0
	WidthOffset   = 2
	QualityOffset = DimensionsSize
	ShapeOffset   = QualityOffset + QualitySize
	PayloadOffset = ShapeOffset + ShapeMetadataSize
)

// Size limits of the container and its fields.
const (
	HeaderSize       = PayloadOffset  // fixed header size, 14 bytes
	MinContainerSize = HeaderSize + 1 // header plus at least one payload byte
	MaxDimension     = math.MaxUint16 // structural maximum of a 16-bit dimension field

	// MaxSanityDimension is the permissive bound Parse applies to decoded dimensions.
	// It is looser than MaxDimension to tolerate legacy producers; a 16-bit field
	// can never exceed it, so the check only matters if the field ever widens.
	MaxSanityDimension = 100000
)

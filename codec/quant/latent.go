package quant

import (
	"fmt"
	"image"
	"math"

	"github.com/arloliu/lvbits/container"
	"github.com/arloliu/lvbits/endian"
	"github.com/arloliu/lvbits/errs"
)

const (
	// DefaultQuality is used when the caller does not provide a quality.
	DefaultQuality float32 = 2.0
	// Channels is the number of sample planes in a latent.
	Channels = 3

	stepScale = 16
	minStep   = 1
	maxStep   = 128
)

// Shape describes the latent layout recorded in the container's shape block.
type Shape struct {
	Height   int
	Width    int
	Channels int
	Step     int
}

// Metadata packs the shape into the 6-byte container block.
func (s Shape) Metadata() container.ShapeMetadata {
	var m container.ShapeMetadata
	engine := endian.ContainerEngine()
	engine.PutUint16(m[0:2], uint16(s.Height))
	engine.PutUint16(m[2:4], uint16(s.Width))
	m[4] = byte(s.Channels)
	m[5] = byte(s.Step)

	return m
}

// SampleCount returns the number of latent samples the shape describes.
func (s Shape) SampleCount() int {
	return s.Height * s.Width * s.Channels
}

// ParseShape unpacks and validates a shape block.
func ParseShape(m container.ShapeMetadata) (Shape, error) {
	engine := endian.ContainerEngine()
	s := Shape{
		Height:   int(engine.Uint16(m[0:2])),
		Width:    int(engine.Uint16(m[2:4])),
		Channels: int(m[4]),
		Step:     int(m[5]),
	}

	switch {
	case s.Height == 0 || s.Width == 0:
		return Shape{}, fmt.Errorf("%w: shape %s has zero dimension", errs.ErrCorruptPayload, m)
	case s.Channels != Channels:
		return Shape{}, fmt.Errorf("%w: shape %s has %d channels, expected %d", errs.ErrCorruptPayload, m, s.Channels, Channels)
	case s.Step < minStep || s.Step > maxStep:
		return Shape{}, fmt.Errorf("%w: shape %s has step %d outside [%d, %d]", errs.ErrCorruptPayload, m, s.Step, minStep, maxStep)
	}

	return s, nil
}

// StepForQuality maps a quality parameter to a quantization step.
func StepForQuality(q float32) (int, error) {
	f := float64(q)
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, fmt.Errorf("quality must be finite and positive, got %v", q)
	}

	step := math.Round(stepScale / f)

	return int(max(minStep, min(maxStep, step))), nil
}

// quantize converts an opaque NRGBA image into planar, row-delta coded samples.
func quantize(img *image.NRGBA, step int) []byte {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, w*h*Channels)

	for c := 0; c < Channels; c++ {
		plane := out[c*w*h : (c+1)*w*h]
		for y := 0; y < h; y++ {
			row := img.Pix[y*img.Stride:]
			var prev byte
			for x := 0; x < w; x++ {
				q := row[x*4+c] / byte(step)
				plane[y*w+x] = q - prev
				prev = q
			}
		}
	}

	return out
}

// dequantize rebuilds an opaque NRGBA image from samples produced by quantize.
func dequantize(samples []byte, s Shape) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, s.Width, s.Height))
	w, h := s.Width, s.Height
	half := s.Step / 2

	for c := 0; c < Channels; c++ {
		plane := samples[c*w*h : (c+1)*w*h]
		for y := 0; y < h; y++ {
			row := img.Pix[y*img.Stride:]
			var q byte
			for x := 0; x < w; x++ {
				q += plane[y*w+x]
				v := int(q)*s.Step + half
				row[x*4+c] = byte(min(v, 255))
			}
		}
	}

	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}

	return img
}

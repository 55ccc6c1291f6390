package quant

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/arloliu/lvbits/codec"
	"github.com/arloliu/lvbits/compress"
	"github.com/arloliu/lvbits/container"
	"github.com/arloliu/lvbits/errs"
	"github.com/arloliu/lvbits/format"
	"github.com/arloliu/lvbits/internal/imageutil"
	"github.com/arloliu/lvbits/internal/pool"
)

// Model names registered in the default codec registry.
const (
	NameZstd = "quant-zstd"
	NameS2   = "quant-s2"
	NameLZ4  = "quant-lz4"
	NameNone = "quant-none"
)

var modelCompression = map[string]format.CompressionType{
	NameZstd: format.CompressionZstd,
	NameS2:   format.CompressionS2,
	NameLZ4:  format.CompressionLZ4,
	NameNone: format.CompressionNone,
}

func init() {
	for name := range modelCompression {
		codec.Register(name, Load)
	}
}

// Model is the reference codec handle.
type Model struct {
	name        string
	compression format.CompressionType
	codec       compress.Codec

	mu       sync.RWMutex
	device   format.Device
	prepared bool
}

var (
	_ codec.Model           = (*Model)(nil)
	_ codec.Preparer        = (*Model)(nil)
	_ codec.ConcurrentModel = (*Model)(nil)
)

// Load is the codec.Loader for every quant model name.
func Load(_ context.Context, cfg codec.LoadConfig) (codec.Model, error) {
	return New(cfg.Name)
}

// New creates an unprepared model for one of the registered names.
func New(name string) (*Model, error) {
	ct, ok := modelCompression[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a quant model", errs.ErrModelNotFound, name)
	}

	c, err := compress.CreateCodec(ct, "latent")
	if err != nil {
		return nil, err
	}

	return &Model{name: name, compression: ct, codec: c}, nil
}

// Name returns the model name.
func (m *Model) Name() string {
	return m.name
}

// Device returns the device the model was prepared for.
func (m *Model) Device() format.Device {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.device
}

// Prepare records the device and enables compression.
//
// Samples are always processed on the CPU; the device is recorded so callers can
// report it.
func (m *Model) Prepare(_ context.Context, opts codec.PrepareOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.device = opts.Device
	m.prepared = opts.Inference && opts.Compression

	return nil
}

// ConcurrentInference reports true: the model holds no per-call state.
func (m *Model) ConcurrentInference() bool {
	return true
}

func (m *Model) isPrepared() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.prepared
}

// CompressFile implements codec.Model.
func (m *Model) CompressFile(ctx context.Context, srcImage, dstPayload string, quality *float32) (codec.EncodeResult, error) {
	if !m.isPrepared() {
		return codec.EncodeResult{}, fmt.Errorf("%s: %w: compression mode not enabled", m.name, errs.ErrModelNotPrepared)
	}
	if err := ctx.Err(); err != nil {
		return codec.EncodeResult{}, err
	}

	q := DefaultQuality
	if quality != nil {
		q = *quality
	}
	step, err := StepForQuality(q)
	if err != nil {
		return codec.EncodeResult{}, fmt.Errorf("%s: %w", m.name, err)
	}

	data, err := os.ReadFile(srcImage)
	if err != nil {
		return codec.EncodeResult{}, fmt.Errorf("%s: read image: %w", m.name, err)
	}
	img, _, err := imageutil.Decode(data)
	if err != nil {
		return codec.EncodeResult{}, fmt.Errorf("%s: %w", m.name, err)
	}
	rgb, _ := imageutil.Normalize(img)

	b := rgb.Bounds()
	if b.Dx() > container.MaxDimension || b.Dy() > container.MaxDimension {
		return codec.EncodeResult{}, fmt.Errorf("%s: image %dx%d exceeds %d pixels per side",
			m.name, b.Dx(), b.Dy(), container.MaxDimension)
	}

	shape := Shape{Height: b.Dy(), Width: b.Dx(), Channels: Channels, Step: step}
	payload, err := m.encodePayload(quantize(rgb, step))
	if err != nil {
		return codec.EncodeResult{}, fmt.Errorf("%s: %w", m.name, err)
	}

	if err := os.WriteFile(dstPayload, payload, 0o600); err != nil {
		return codec.EncodeResult{}, fmt.Errorf("%s: write payload: %w", m.name, err)
	}

	return codec.EncodeResult{Shape: shape.Metadata(), Quality: q}, nil
}

// DecompressFile implements codec.Model.
func (m *Model) DecompressFile(ctx context.Context, srcPayload string, shape container.ShapeMetadata, dstImage string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s, err := ParseShape(shape)
	if err != nil {
		return err
	}

	payload, err := os.ReadFile(srcPayload)
	if err != nil {
		return fmt.Errorf("%s: read payload: %w", m.name, err)
	}

	samples, err := decodePayload(payload, s.SampleCount())
	if err != nil {
		return err
	}

	buf := pool.GetStagingBuffer()
	defer pool.PutStagingBuffer(buf)

	if err := imageutil.EncodePNG(buf, dequantize(samples, s)); err != nil {
		return fmt.Errorf("%s: encode image: %w", m.name, err)
	}

	if err := os.WriteFile(dstImage, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("%s: write image: %w", m.name, err)
	}

	return nil
}

func (m *Model) encodePayload(samples []byte) ([]byte, error) {
	tag := m.compression
	packed, err := m.codec.Compress(samples)
	if err != nil {
		return nil, err
	}

	// LZ4 reports incompressible blocks as empty output
	if len(packed) == 0 {
		tag = format.CompressionNone
		packed = samples
	}

	payload := make([]byte, 0, len(packed)+1)
	payload = append(payload, byte(tag))

	return append(payload, packed...), nil
}

func decodePayload(payload []byte, expected int) ([]byte, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("%w: payload of %d bytes is too short", errs.ErrCorruptPayload, len(payload))
	}

	tag := format.CompressionType(payload[0])
	c, err := compress.GetCodec(tag)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrCorruptPayload, err)
	}

	samples, err := c.Decompress(payload[1:])
	if err != nil {
		return nil, fmt.Errorf("%w: %s stage: %v", errs.ErrCorruptPayload, tag, err)
	}

	if len(samples) != expected {
		return nil, fmt.Errorf("%w: expected %d samples, got %d", errs.ErrCorruptPayload, expected, len(samples))
	}

	return samples, nil
}

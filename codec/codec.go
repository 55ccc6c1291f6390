// Package codec defines the contract between lvbits and the external learned
// image codec.
//
// The codec is a black box. lvbits only needs it to compress an image file into a
// raw payload plus a 6-byte shape descriptor, and to reverse that. The interface is
// file-oriented because learned codecs commonly expose file-based entry points;
// package staging provides the transient files.
//
// Implementations are registered by name in a Registry and loaded once per process
// by package session.
package codec

import (
	"context"

	"github.com/arloliu/lvbits/container"
	"github.com/arloliu/lvbits/format"
)

// EncodeResult is what a model reports after compressing an image.
type EncodeResult struct {
	// Shape is the descriptor the model needs to decode the payload.
	Shape container.ShapeMetadata
	// Quality is the quality parameter actually used. It is always concrete, even
	// when the caller passed nil and the model applied its default.
	Quality float32
}

// Model is a loaded codec handle.
type Model interface {
	// Name returns the model name used to load it.
	Name() string

	// CompressFile reads the image at srcImage and writes the raw payload to dstPayload.
	// A nil quality selects the model's default.
	CompressFile(ctx context.Context, srcImage, dstPayload string, quality *float32) (EncodeResult, error)

	// DecompressFile reads the payload at srcPayload and writes the reconstructed
	// image to dstImage in a format image.Decode understands.
	DecompressFile(ctx context.Context, srcPayload string, shape container.ShapeMetadata, dstImage string) error
}

// PrepareOptions describes the runtime state a loaded model is put into.
type PrepareOptions struct {
	Device      format.Device
	Inference   bool // disable training-only behavior
	Compression bool // enable the entropy coder
}

// Preparer is implemented by models that must be bound to a device and switched
// into inference and compression mode before use.
type Preparer interface {
	Prepare(ctx context.Context, opts PrepareOptions) error
}

// ConcurrentModel is implemented by models that can report whether concurrent
// calls on one handle are safe. Models that do not implement it are serialized.
type ConcurrentModel interface {
	ConcurrentInference() bool
}

// LoadConfig identifies the model to load.
type LoadConfig struct {
	// Name selects a registered loader.
	Name string
	// Device is the execution device the model will be bound to.
	Device format.Device
	// Params carries loader-specific settings.
	Params map[string]string
}

// Loader loads a model. Loading may be expensive (weights, device init).
type Loader func(ctx context.Context, cfg LoadConfig) (Model, error)

// SupportsConcurrency reports whether m advertises safe concurrent inference.
func SupportsConcurrency(m Model) bool {
	cm, ok := m.(ConcurrentModel)
	return ok && cm.ConcurrentInference()
}

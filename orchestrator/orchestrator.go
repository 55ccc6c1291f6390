// Package orchestrator runs the compress and decompress request paths: input
// validation, image normalization, scoped staging, the codec session and container
// framing.
package orchestrator

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/arloliu/lvbits/container"
	"github.com/arloliu/lvbits/errs"
	"github.com/arloliu/lvbits/internal/imageutil"
	"github.com/arloliu/lvbits/internal/options"
	"github.com/arloliu/lvbits/internal/pool"
	"github.com/arloliu/lvbits/session"
	"github.com/arloliu/lvbits/staging"
)

// Codec is the part of session.Session the orchestrator uses. Implementations
// report progress through session.HooksFrom(ctx).
type Codec interface {
	Encode(ctx context.Context, scope *staging.Scope, img image.Image, quality *float32) (*session.Encoded, error)
	Decode(ctx context.Context, scope *staging.Scope, payload []byte, shape container.ShapeMetadata) (*session.Decoded, error)
}

var _ Codec = (*session.Session)(nil)

// Option configures an Orchestrator.
type Option = options.Option[*Orchestrator]

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return options.NoError(func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	})
}

// Orchestrator handles compress and decompress requests.
type Orchestrator struct {
	codec  Codec
	stager *staging.Stager
	logger *slog.Logger
}

// New creates an Orchestrator.
func New(c Codec, stager *staging.Stager, opts ...Option) (*Orchestrator, error) {
	if c == nil || stager == nil {
		return nil, fmt.Errorf("%w: orchestrator requires a codec and a stager", errs.ErrInvalidConfig)
	}

	o := &Orchestrator{codec: c, stager: stager, logger: slog.Default()}
	if err := options.Apply(o, opts...); err != nil {
		return nil, err
	}

	return o, nil
}

// CompressionResult is the outcome of a successful CompressRequest.
type CompressionResult struct {
	Container []byte
	Header    container.Header

	OriginalSize     int     // bytes submitted by the client
	CompressedSize   int     // len(Container)
	CompressionRatio float64 // OriginalSize / CompressedSize
	BitsPerPixel     float64 // CompressedSize*8 / (Width*Height)

	Width   int
	Height  int
	Quality float32

	Input imageutil.Info
	Trace *Trace
}

// DecompressionResult is the outcome of a successful DecompressRequest.
type DecompressionResult struct {
	Image  image.Image
	PNG    []byte
	Header container.Header

	// Width and Height come from the container header.
	Width          int
	Height         int
	CompressedSize int
	Warnings       []string

	Trace *Trace
}

// CompressRequest compresses an uploaded image into a container.
//
// A nil quality lets the codec choose. Validation failures are reported before any
// staging or codec work happens.
func (o *Orchestrator) CompressRequest(ctx context.Context, imageBytes []byte, quality *float32) (*CompressionResult, error) {
	tr := newTrace("compress")
	tr.to(StateValidating)

	if quality != nil {
		q := float64(*quality)
		if math.IsNaN(q) || math.IsInf(q, 0) || q <= 0 {
			return nil, o.fail(tr, fmt.Errorf("%w: quality must be finite and positive, got %v", errs.ErrInvalidQuality, *quality))
		}
	}

	img, info, err := imageutil.Decode(imageBytes)
	if err != nil {
		return nil, o.fail(tr, err)
	}

	rgb, normalized := imageutil.Normalize(img)
	info.Normalized = normalized
	if normalized {
		o.logger.Debug("normalized input image", "request", tr.ID, "format", info.Format, "mode", info.ColorModel)
	}

	w, h := rgb.Bounds().Dx(), rgb.Bounds().Dy()
	if w == 0 || h == 0 || w > container.MaxDimension || h > container.MaxDimension {
		return nil, o.fail(tr, fmt.Errorf("%w: image is %dx%d, each side must be in [1, %d]",
			errs.ErrInvalidDimension, w, h, container.MaxDimension))
	}

	scope := o.stager.NewScope()
	defer o.closeScope(tr, scope)

	enc, err := o.codec.Encode(tr.hooks(ctx), scope, rgb, quality)
	if err != nil {
		return nil, o.fail(tr, err)
	}

	c, err := container.New(h, w, enc.Quality, enc.Shape[:], enc.Payload)
	if err != nil {
		return nil, o.fail(tr, fmt.Errorf("%w: codec output cannot be framed: %v", errs.ErrCodecEncode, err))
	}
	data := c.Bytes()

	tr.to(StateSucceeded)
	res := &CompressionResult{
		Container:        data,
		Header:           c.Header,
		OriginalSize:     len(imageBytes),
		CompressedSize:   len(data),
		CompressionRatio: float64(len(imageBytes)) / float64(len(data)),
		BitsPerPixel:     float64(len(data)*8) / float64(w*h),
		Width:            w,
		Height:           h,
		Quality:          enc.Quality,
		Input:            info,
		Trace:            tr,
	}

	o.logger.Debug("compress request done",
		"request", tr.ID,
		"trace", tr.String(),
		"size", res.CompressedSize,
		"ratio", res.CompressionRatio,
		"bpp", res.BitsPerPixel,
	)

	return res, nil
}

// DecompressRequest reconstructs the image carried by a container.
//
// Container validation errors are returned unchanged. A reconstructed image whose
// size differs from the header is returned with a warning.
func (o *Orchestrator) DecompressRequest(ctx context.Context, containerBytes []byte) (*DecompressionResult, error) {
	tr := newTrace("decompress")
	tr.to(StateValidating)

	c, err := container.Parse(containerBytes)
	if err != nil {
		return nil, o.fail(tr, err)
	}

	scope := o.stager.NewScope()
	defer o.closeScope(tr, scope)

	dec, err := o.codec.Decode(tr.hooks(ctx), scope, c.Payload, c.Shape)
	if err != nil {
		return nil, o.fail(tr, err)
	}

	var warnings []string
	b := dec.Image.Bounds()
	if b.Dx() != int(c.Width) || b.Dy() != int(c.Height) {
		msg := fmt.Sprintf("reconstructed image is %dx%d but container header says %dx%d",
			b.Dx(), b.Dy(), c.Width, c.Height)
		warnings = append(warnings, msg)
		o.logger.Warn("dimension mismatch", "request", tr.ID, "detail", msg)
	}

	pngData := dec.Data
	if dec.Format != "png" {
		buf := pool.GetStagingBuffer()
		err := imageutil.EncodePNG(buf, dec.Image)
		pngData = buf.Clone()
		pool.PutStagingBuffer(buf)
		if err != nil {
			return nil, o.fail(tr, fmt.Errorf("%w: re-encode %s output: %v", errs.ErrCodecDecode, dec.Format, err))
		}
	}

	tr.to(StateSucceeded)
	o.logger.Debug("decompress request done", "request", tr.ID, "trace", tr.String(), "warnings", len(warnings))

	return &DecompressionResult{
		Image:          dec.Image,
		PNG:            pngData,
		Header:         c.Header,
		Width:          int(c.Width),
		Height:         int(c.Height),
		CompressedSize: len(containerBytes),
		Warnings:       warnings,
		Trace:          tr,
	}, nil
}

func (o *Orchestrator) fail(tr *Trace, err error) error {
	tr.fail(err)

	level := slog.LevelWarn
	if tr.Failure == FailureValidation || tr.Failure == FailureCanceled {
		level = slog.LevelDebug
	}
	o.logger.Log(context.Background(), level, tr.Op+" request failed",
		"request", tr.ID,
		"trace", tr.String(),
		"error", err,
	)

	return err
}

func (o *Orchestrator) closeScope(tr *Trace, scope *staging.Scope) {
	if err := scope.Close(); err != nil {
		o.logger.Warn("failed to release staging artifacts", "request", tr.ID, "error", err)
	}
}

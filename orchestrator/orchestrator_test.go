package orchestrator

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/arloliu/lvbits/codec"
	"github.com/arloliu/lvbits/codec/quant"
	"github.com/arloliu/lvbits/container"
	"github.com/arloliu/lvbits/errs"
	"github.com/arloliu/lvbits/format"
	"github.com/arloliu/lvbits/session"
	"github.com/arloliu/lvbits/staging"
	"github.com/stretchr/testify/require"
)

// stubCodec records invocations and holds staging artifacts like the real session.
type stubCodec struct {
	encodes atomic.Int32
	decodes atomic.Int32

	encoded   *session.Encoded
	decoded   *session.Decoded
	encodeErr error
	decodeErr error
}

func (s *stubCodec) Encode(ctx context.Context, scope *staging.Scope, _ image.Image, _ *float32) (*session.Encoded, error) {
	s.encodes.Add(1)
	if _, err := scope.Acquire(staging.KindImage); err != nil {
		return nil, err
	}
	hooks := session.HooksFrom(ctx)
	hooks.Staged()
	hooks.Invoked()
	if s.encodeErr != nil {
		return nil, s.encodeErr
	}

	return s.encoded, nil
}

func (s *stubCodec) Decode(ctx context.Context, scope *staging.Scope, _ []byte, _ container.ShapeMetadata) (*session.Decoded, error) {
	s.decodes.Add(1)
	if _, err := scope.Acquire(staging.KindPayload); err != nil {
		return nil, err
	}
	hooks := session.HooksFrom(ctx)
	hooks.Staged()
	hooks.Invoked()
	if s.decodeErr != nil {
		return nil, s.decodeErr
	}

	return s.decoded, nil
}

func newStager(t *testing.T) *staging.Stager {
	t.Helper()
	s, err := staging.NewStager(staging.WithDir(filepath.Join(t.TempDir(), "staging")))
	require.NoError(t, err)

	return s
}

func newOrchestrator(t *testing.T, c Codec) (*Orchestrator, *staging.Stager) {
	t.Helper()
	stager := newStager(t)
	o, err := New(c, stager)
	require.NoError(t, err)

	return o, stager
}

func newReferenceOrchestrator(t *testing.T) (*Orchestrator, *staging.Stager) {
	t.Helper()
	s, err := session.New(codec.Load, codec.LoadConfig{Name: quant.NameZstd, Device: format.DeviceCPU})
	require.NoError(t, err)

	return newOrchestrator(t, s)
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	return buf.Bytes()
}

func rgbImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: byte(x * 7), G: byte(y * 5), B: byte(x ^ y), A: 0xff})
		}
	}

	return img
}

func qp(q float32) *float32 { return &q }

// withDeclaredSize returns a copy of a PNG whose IHDR chunk claims w x h pixels.
func withDeclaredSize(data []byte, w, h uint32) []byte {
	out := bytes.Clone(data)
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))

	return out
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(nil, newStager(t))
	require.ErrorIs(t, err, errs.ErrInvalidConfig)

	_, err = New(&stubCodec{}, nil)
	require.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func TestCompressDecompress_RoundTrip(t *testing.T) {
	o, stager := newReferenceOrchestrator(t)
	input := pngBytes(t, rgbImage(48, 31))

	res, err := o.CompressRequest(context.Background(), input, nil)
	require.NoError(t, err)
	require.Equal(t, 48, res.Width)
	require.Equal(t, 31, res.Height)
	require.Equal(t, quant.DefaultQuality, res.Quality)
	require.Equal(t, len(res.Container), res.CompressedSize)
	require.Equal(t, len(input), res.OriginalSize)
	require.InDelta(t, float64(len(input))/float64(len(res.Container)), res.CompressionRatio, 1e-9)
	require.InDelta(t, float64(len(res.Container)*8)/float64(48*31), res.BitsPerPixel, 1e-9)
	require.Equal(t, StateSucceeded, res.Trace.State())
	require.Equal(t, 0, stager.Active())

	dec, err := o.DecompressRequest(context.Background(), res.Container)
	require.NoError(t, err)
	require.Equal(t, 48, dec.Width)
	require.Equal(t, 31, dec.Height)
	require.Equal(t, image.Rect(0, 0, 48, 31), dec.Image.Bounds())
	require.Empty(t, dec.Warnings)
	require.Equal(t, 0, stager.Active())

	decoded, err := png.Decode(bytes.NewReader(dec.PNG))
	require.NoError(t, err)
	require.Equal(t, dec.Image.Bounds(), decoded.Bounds())
}

func TestCompress_NormalizesColorModes(t *testing.T) {
	o, stager := newReferenceOrchestrator(t)

	gray := image.NewGray(image.Rect(0, 0, 9, 4))
	for i := range gray.Pix {
		gray.Pix[i] = byte(i * 3)
	}

	translucent := image.NewNRGBA(image.Rect(0, 0, 6, 6))
	for i := range translucent.Pix {
		translucent.Pix[i] = 0x40
	}

	var gifBuf bytes.Buffer
	require.NoError(t, gif.Encode(&gifBuf, rgbImage(10, 10), nil))

	var jpgBuf bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpgBuf, rgbImage(16, 8), nil))

	tests := []struct {
		name       string
		data       []byte
		w, h       int
		normalized bool
	}{
		{"grayscale png", pngBytes(t, gray), 9, 4, true},
		{"alpha png", pngBytes(t, translucent), 6, 6, true},
		{"paletted gif", gifBuf.Bytes(), 10, 10, true},
		{"jpeg", jpgBuf.Bytes(), 16, 8, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := o.CompressRequest(context.Background(), tt.data, qp(4))
			require.NoError(t, err)
			require.Equal(t, tt.w, res.Width)
			require.Equal(t, tt.h, res.Height)
			require.Equal(t, tt.normalized, res.Input.Normalized)
			require.Equal(t, float32(4), res.Quality)
			require.Equal(t, 0, stager.Active())
		})
	}
}

func TestCompress_ValidationNeverInvokesCodec(t *testing.T) {
	stub := &stubCodec{}
	o, stager := newOrchestrator(t, stub)
	valid := pngBytes(t, rgbImage(2, 2))

	tests := []struct {
		name    string
		data    []byte
		quality *float32
		want    error
	}{
		{"empty body", nil, nil, errs.ErrInvalidImage},
		{"not an image", []byte("hello, world"), nil, errs.ErrInvalidImage},
		{"truncated png", valid[:20], nil, errs.ErrInvalidImage},
		{"nan quality", valid, qp(float32(math.NaN())), errs.ErrInvalidQuality},
		{"inf quality", valid, qp(float32(math.Inf(-1))), errs.ErrInvalidQuality},
		{"zero quality", valid, qp(0), errs.ErrInvalidQuality},
		{"declared width over limit", withDeclaredSize(valid, 70000, 2), nil, errs.ErrInvalidDimension},
		{"declared pixel count over limit", withDeclaredSize(valid, 40000, 40000), nil, errs.ErrInvalidImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.CompressRequest(context.Background(), tt.data, tt.quality)
			require.ErrorIs(t, err, tt.want)
			require.True(t, errs.IsValidation(err))
		})
	}

	require.Equal(t, int32(0), stub.encodes.Load())
	require.Equal(t, 0, stager.Active())
}

func TestCompress_CodecFailureReleasesStaging(t *testing.T) {
	stub := &stubCodec{encodeErr: errors.Join(errs.ErrCodecEncode, errors.New("oom"))}
	o, stager := newOrchestrator(t, stub)

	_, err := o.CompressRequest(context.Background(), pngBytes(t, rgbImage(3, 3)), nil)
	require.ErrorIs(t, err, errs.ErrCodecEncode)
	require.Equal(t, int32(1), stub.encodes.Load())
	require.Equal(t, 0, stager.Active())
}

func TestTrace_RecordsStagedOnlyAfterStaging(t *testing.T) {
	o, stager := newReferenceOrchestrator(t)
	input := pngBytes(t, rgbImage(4, 4))

	res, err := o.CompressRequest(context.Background(), input, nil)
	require.NoError(t, err)
	require.Equal(t, "received>validating>staged>codec_invoked>succeeded", res.Trace.String())

	// without its directory the stager cannot create artifacts
	require.NoError(t, os.RemoveAll(stager.Dir()))

	_, err = o.CompressRequest(context.Background(), input, nil)
	require.ErrorIs(t, err, errs.ErrStaging)

	_, err = o.DecompressRequest(context.Background(), res.Container)
	require.ErrorIs(t, err, errs.ErrStaging)
}

// loggedOrchestrator returns an orchestrator whose log records land in the returned buffer.
func loggedOrchestrator(t *testing.T, c Codec) (*Orchestrator, *staging.Stager, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	stager := newStager(t)
	o, err := New(c, stager, WithLogger(logger))
	require.NoError(t, err)

	return o, stager, &logs
}

func TestTrace_FailurePaths(t *testing.T) {
	tests := []struct {
		name      string
		codec     *stubCodec
		removeDir bool
		wantErr   error
		wantTrace string
	}{
		{
			name:      "staging",
			codec:     &stubCodec{},
			removeDir: true,
			wantErr:   errs.ErrStaging,
			wantTrace: "received>validating>failed(staging)",
		},
		{
			name:      "codec",
			codec:     &stubCodec{encodeErr: fmt.Errorf("%w: boom", errs.ErrCodecEncode)},
			wantErr:   errs.ErrCodecEncode,
			wantTrace: "received>validating>staged>codec_invoked>failed(codec)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, stager, logs := loggedOrchestrator(t, tt.codec)
			if tt.removeDir {
				require.NoError(t, os.RemoveAll(stager.Dir()))
			}

			_, err := o.CompressRequest(context.Background(), pngBytes(t, rgbImage(3, 3)), nil)
			require.ErrorIs(t, err, tt.wantErr)
			require.Contains(t, logs.String(), tt.wantTrace)
		})
	}
}

func TestCompress_UnframeableCodecOutput(t *testing.T) {
	stub := &stubCodec{encoded: &session.Encoded{Payload: []byte{1}, Quality: float32(math.NaN())}}
	o, stager := newOrchestrator(t, stub)

	_, err := o.CompressRequest(context.Background(), pngBytes(t, rgbImage(3, 3)), nil)
	require.ErrorIs(t, err, errs.ErrCodecEncode)
	require.False(t, errs.IsValidation(err))
	require.Equal(t, 0, stager.Active())
}

func TestCompress_Metrics(t *testing.T) {
	stub := &stubCodec{encoded: &session.Encoded{Payload: []byte{0xAB}, Quality: 0.5}}
	o, _ := newOrchestrator(t, stub)
	input := pngBytes(t, rgbImage(2, 2))

	res, err := o.CompressRequest(context.Background(), input, qp(0.5))
	require.NoError(t, err)
	require.Equal(t, container.MinContainerSize, res.CompressedSize)
	require.InDelta(t, 30.0, res.BitsPerPixel, 1e-9)
	require.InDelta(t, float64(len(input))/15, res.CompressionRatio, 1e-9)
	require.Equal(t, []byte{0x00, 0x02, 0x00, 0x02, 0x3F, 0x00, 0x00, 0x00}, res.Container[:8])
	require.Equal(t, "received>validating>staged>codec_invoked>succeeded", res.Trace.String())
}

func TestDecompress_ContainerErrorsVerbatim(t *testing.T) {
	stub := &stubCodec{}
	o, stager := newOrchestrator(t, stub)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"three bytes", []byte{1, 2, 3}, errs.ErrTooSmall},
		{"zero height", append([]byte{0, 0, 0, 2}, make([]byte, 11)...), errs.ErrInvalidDimension},
		{"header only", append([]byte{0, 2, 0, 2}, make([]byte, 10)...), errs.ErrTooSmall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.DecompressRequest(context.Background(), tt.data)
			require.ErrorIs(t, err, tt.want)
		})
	}

	require.Equal(t, int32(0), stub.decodes.Load())
	require.Equal(t, 0, stager.Active())
}

func scenarioContainer() []byte {
	data := []byte{0x00, 0x02, 0x00, 0x02, 0x3F, 0x00, 0x00, 0x00}
	data = append(data, make([]byte, 6)...)

	return append(data, 0xAB)
}

func TestDecompress_DimensionMismatchWarns(t *testing.T) {
	stub := &stubCodec{decoded: &session.Decoded{
		Image:  rgbImage(3, 3),
		Data:   pngBytes(t, rgbImage(3, 3)),
		Format: "png",
	}}
	o, stager := newOrchestrator(t, stub)

	res, err := o.DecompressRequest(context.Background(), scenarioContainer())
	require.NoError(t, err)
	require.Equal(t, 2, res.Width)
	require.Equal(t, 2, res.Height)
	require.Len(t, res.Warnings, 1)
	require.Contains(t, res.Warnings[0], "3x3")
	require.Equal(t, 15, res.CompressedSize)
	require.Equal(t, float32(0.5), res.Header.Quality)
	require.Equal(t, 0, stager.Active())
}

func TestDecompress_ReencodesNonPNGOutput(t *testing.T) {
	stub := &stubCodec{decoded: &session.Decoded{
		Image:  rgbImage(2, 2),
		Data:   []byte("bmp bytes"),
		Format: "bmp",
	}}
	o, _ := newOrchestrator(t, stub)

	res, err := o.DecompressRequest(context.Background(), scenarioContainer())
	require.NoError(t, err)
	require.Empty(t, res.Warnings)

	_, name, err := image.Decode(bytes.NewReader(res.PNG))
	require.NoError(t, err)
	require.Equal(t, "png", name)
}

func TestDecompress_CodecFailure(t *testing.T) {
	stub := &stubCodec{decodeErr: errors.Join(errs.ErrCodecDecode, errs.ErrCorruptPayload)}
	o, stager := newOrchestrator(t, stub)

	_, err := o.DecompressRequest(context.Background(), scenarioContainer())
	require.ErrorIs(t, err, errs.ErrCodecDecode)
	require.Equal(t, FailureCodec, FailureKind(err))
	require.Equal(t, 0, stager.Active())
}

func TestFailureKind(t *testing.T) {
	require.Equal(t, "", FailureKind(nil))
	require.Equal(t, FailureValidation, FailureKind(errs.ErrTooSmall))
	require.Equal(t, FailureCodecUnavailable, FailureKind(errs.ErrCodecUnavailable))
	require.Equal(t, FailureCodec, FailureKind(errs.ErrCodecEncode))
	require.Equal(t, FailureStaging, FailureKind(errs.ErrStaging))
	require.Equal(t, FailureCanceled, FailureKind(context.Canceled))
	require.Equal(t, FailureCanceled, FailureKind(fmt.Errorf("%w: %w", errs.ErrCodecEncode, context.DeadlineExceeded)))
	require.Equal(t, FailureCodec, FailureKind(fmt.Errorf("%w: %w", errs.ErrCodecDecode, errs.ErrInvalidShapeMetadata)))
	require.Equal(t, FailureInternal, FailureKind(errors.New("x")))
}

func TestTrace(t *testing.T) {
	tr := newTrace("compress")
	tr.to(StateValidating)
	tr.fail(errs.ErrInvalidImage)

	require.Equal(t, StateFailed, tr.State())
	require.Equal(t, "received>validating>failed(validation)", tr.String())
	require.Greater(t, newTrace("x").ID, tr.ID)
	require.Equal(t, "unknown", RequestState(99).String())
}

package lvbits

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/lvbits/codec"
	"github.com/arloliu/lvbits/codec/quant"
	"github.com/arloliu/lvbits/errs"
	"github.com/arloliu/lvbits/format"
	"github.com/arloliu/lvbits/session"
)

// TestPack_TwoByTwoScenario checks the smallest valid container byte for byte.
func TestPack_TwoByTwoScenario(t *testing.T) {
	data, err := Pack(2, 2, 0.5, make([]byte, 6), []byte{0xAB})
	require.NoError(t, err)

	want := []byte{0x00, 0x02, 0x00, 0x02, 0x3F, 0x00, 0x00, 0x00, 0, 0, 0, 0, 0, 0, 0xAB}
	require.Equal(t, want, data)

	c, err := Unpack(data)
	require.NoError(t, err)
	require.Equal(t, uint16(2), c.Height)
	require.Equal(t, uint16(2), c.Width)
	require.Equal(t, float32(0.5), c.Quality)
	require.Equal(t, []byte{0xAB}, c.Payload)
	require.InDelta(t, 30.0, float64(len(data)*8)/float64(c.Pixels()), 1e-9)
}

// TestUnpack_Errors verifies container validation passes through the facade
func TestUnpack_Errors(t *testing.T) {
	_, err := Unpack([]byte{0, 2, 0})
	require.ErrorIs(t, err, errs.ErrTooSmall)

	_, err = Pack(0, 2, 1, make([]byte, 6), []byte{1})
	require.ErrorIs(t, err, errs.ErrInvalidDimension)
}

// TestNewService_RoundTrip runs the full pipeline with the reference codec
func TestNewService_RoundTrip(t *testing.T) {
	svc, err := NewService(
		codec.LoadConfig{Name: quant.NameS2, Device: format.DeviceCPU},
		WithStagingDir(filepath.Join(t.TempDir(), "staging")),
	)
	require.NoError(t, err)
	require.Equal(t, session.StateUninitialized, svc.Session.State())

	img := image.NewNRGBA(image.Rect(0, 0, 30, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 30; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: byte(x * 8), G: byte(y * 12), B: 64, A: 0xff})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	res, err := svc.CompressRequest(context.Background(), buf.Bytes(), nil)
	require.NoError(t, err)
	require.Equal(t, 30, res.Width)
	require.Equal(t, 20, res.Height)

	out, err := svc.DecompressRequest(context.Background(), res.Container)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 30, 20), out.Image.Bounds())
	require.Equal(t, 0, svc.Stager.Active())
	require.Equal(t, session.StateReady, svc.Session.State())
}

// TestNewService_UnknownModel reports the load failure on first use
func TestNewService_UnknownModel(t *testing.T) {
	svc, err := NewService(
		codec.LoadConfig{Name: "qarv_base"},
		WithStagingDir(filepath.Join(t.TempDir(), "staging")),
		WithRegistry(codec.NewRegistry()),
	)
	require.NoError(t, err)

	_, err = svc.CompressRequest(context.Background(), pngPixel(t), nil)
	require.ErrorIs(t, err, errs.ErrCodecUnavailable)
	require.ErrorIs(t, err, errs.ErrModelNotFound)
}

func pngPixel(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1))))

	return buf.Bytes()
}

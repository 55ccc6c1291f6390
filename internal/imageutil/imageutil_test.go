package imageutil

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/arloliu/lvbits/errs"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	return buf.Bytes()
}

func TestDecode_PNG(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 5, 3))
	img, info, err := Decode(encodePNG(t, src))

	require.NoError(t, err)
	require.Equal(t, "png", info.Format)
	require.Equal(t, 5, info.Width)
	require.Equal(t, 3, info.Height)
	require.Equal(t, image.Rect(0, 0, 5, 3), img.Bounds())
}

func TestDecode_JPEG(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 16, 8))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, src, nil))

	_, info, err := Decode(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, "jpeg", info.Format)
	require.Equal(t, "ycbcr", info.ColorModel)
}

func TestDecode_Invalid(t *testing.T) {
	_, _, err := Decode(nil)
	require.ErrorIs(t, err, errs.ErrInvalidImage)

	_, _, err = Decode([]byte("definitely not an image"))
	require.ErrorIs(t, err, errs.ErrInvalidImage)
}

// pngDeclaring returns a 1x1 PNG whose IHDR chunk claims w x h pixels.
func pngDeclaring(t *testing.T, w, h uint32) []byte {
	t.Helper()
	data := encodePNG(t, image.NewNRGBA(image.Rect(0, 0, 1, 1)))

	// signature (8), length (4), "IHDR" (4), width (4), height (4), ... crc at 29
	binary.BigEndian.PutUint32(data[16:20], w)
	binary.BigEndian.PutUint32(data[20:24], h)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))

	return data
}

func TestDecode_OversizedHeaderRejectedBeforeDecoding(t *testing.T) {
	tests := []struct {
		name    string
		w, h    uint32
		wantErr error
	}{
		{"wide", 70000, 10, errs.ErrInvalidDimension},
		{"tall", 10, 1 << 20, errs.ErrInvalidDimension},
		{"pixel budget", 40000, 40000, errs.ErrInvalidImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, _, err := Decode(pngDeclaring(t, tt.w, tt.h))
			require.ErrorIs(t, err, tt.wantErr)
			require.Nil(t, img)
		})
	}
}

func TestDecode_HeaderWithinLimitsStillDecodes(t *testing.T) {
	// the header passes the size check, the truncated pixel data does not
	_, _, err := Decode(pngDeclaring(t, 2, 2))
	require.ErrorIs(t, err, errs.ErrInvalidImage)

	_, _, err = Decode(pngDeclaring(t, 1, 1))
	require.NoError(t, err)
}

func TestNormalize_DropsAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 0})
	src.SetNRGBA(1, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 128})

	dst, changed := Normalize(src)
	require.True(t, changed)
	require.True(t, dst.Opaque())
	require.Equal(t, color.NRGBA{R: 10, G: 20, B: 30, A: 0xff}, dst.NRGBAAt(0, 0))
	require.Equal(t, color.NRGBA{R: 200, G: 100, B: 50, A: 0xff}, dst.NRGBAAt(1, 0))
}

func TestNormalize_Paletted(t *testing.T) {
	palette := color.Palette{color.RGBA{R: 255, A: 255}, color.RGBA{G: 255, A: 255}}
	src := image.NewPaletted(image.Rect(0, 0, 2, 2), palette)
	src.SetColorIndex(1, 1, 1)

	dst, changed := Normalize(src)
	require.True(t, changed)
	require.Equal(t, color.NRGBA{R: 255, A: 0xff}, dst.NRGBAAt(0, 0))
	require.Equal(t, color.NRGBA{G: 255, A: 0xff}, dst.NRGBAAt(1, 1))
}

func TestNormalize_Gray(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 1, 1))
	src.SetGray(0, 0, color.Gray{Y: 77})

	dst, changed := Normalize(src)
	require.True(t, changed)
	require.Equal(t, color.NRGBA{R: 77, G: 77, B: 77, A: 0xff}, dst.NRGBAAt(0, 0))
}

func TestNormalize_OpaqueNRGBAUnchanged(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 3))
	for i := 3; i < len(src.Pix); i += 4 {
		src.Pix[i] = 0xff
	}

	dst, changed := Normalize(src)
	require.False(t, changed)
	require.Same(t, src, dst)
}

func TestNormalize_OffsetBounds(t *testing.T) {
	src := image.NewNRGBA(image.Rect(5, 5, 8, 7))
	src.SetNRGBA(5, 5, color.NRGBA{R: 1, G: 2, B: 3, A: 0xff})

	dst, changed := Normalize(src)
	require.True(t, changed)
	require.Equal(t, image.Rect(0, 0, 3, 2), dst.Bounds())
	require.Equal(t, color.NRGBA{R: 1, G: 2, B: 3, A: 0xff}, dst.NRGBAAt(0, 0))
}

func TestEncodePNG_RoundTrip(t *testing.T) {
	src, _ := Normalize(image.NewGray(image.Rect(0, 0, 4, 4)))

	var buf bytes.Buffer
	require.NoError(t, EncodePNG(&buf, src))

	img, info, err := Decode(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, "png", info.Format)
	require.Equal(t, src.Bounds(), img.Bounds())
}

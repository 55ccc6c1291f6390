// Package imageutil decodes uploaded images and normalizes them to the opaque
// 3-channel form the codec expects.
package imageutil

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	"image/png"
	"io"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/arloliu/lvbits/container"
	"github.com/arloliu/lvbits/errs"
)

// Info describes a decoded image before normalization.
type Info struct {
	Format     string // registered format name, e.g. "png"
	ColorModel string // source color mode, e.g. "rgba", "paletted"
	Width      int
	Height     int
	Normalized bool // true if the color mode was collapsed to opaque RGB
}

// MaxPixels bounds the decoded size of an image, so a small upload cannot declare
// a bitmap that takes gigabytes to allocate.
const MaxPixels = 89478485

// Decode decodes image bytes in any registered format.
//
// The header is checked before any pixel is decoded. Returns ErrInvalidDimension if
// a side exceeds container.MaxDimension, and ErrInvalidImage if the bytes are empty,
// not a decodable image, or larger than MaxPixels.
func Decode(data []byte) (image.Image, Info, error) {
	if len(data) == 0 {
		return nil, Info{}, fmt.Errorf("%w: empty image data", errs.ErrInvalidImage)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, Info{}, fmt.Errorf("%w: %v", errs.ErrInvalidImage, err)
	}
	if err := checkSize(cfg.Width, cfg.Height); err != nil {
		return nil, Info{}, err
	}

	img, name, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, Info{}, fmt.Errorf("%w: %v", errs.ErrInvalidImage, err)
	}

	b := img.Bounds()
	info := Info{
		Format:     name,
		ColorModel: ColorModeName(img),
		Width:      b.Dx(),
		Height:     b.Dy(),
	}

	return img, info, nil
}

func checkSize(w, h int) error {
	if w > container.MaxDimension || h > container.MaxDimension {
		return fmt.Errorf("%w: image is %dx%d, each side must be at most %d",
			errs.ErrInvalidDimension, w, h, container.MaxDimension)
	}
	if int64(w)*int64(h) > MaxPixels {
		return fmt.Errorf("%w: image is %dx%d, more than %d pixels", errs.ErrInvalidImage, w, h, MaxPixels)
	}

	return nil
}

// ColorModeName returns a short name for the color mode of img.
func ColorModeName(img image.Image) string {
	switch img.(type) {
	case *image.RGBA:
		return "rgba"
	case *image.NRGBA:
		return "nrgba"
	case *image.RGBA64, *image.NRGBA64:
		return "rgba64"
	case *image.Paletted:
		return "paletted"
	case *image.Gray, *image.Gray16:
		return "gray"
	case *image.YCbCr:
		return "ycbcr"
	case *image.CMYK:
		return "cmyk"
	default:
		return "other"
	}
}

// IsOpaqueRGB reports whether img is already in the normalized form: an *image.NRGBA
// anchored at the origin with every alpha value at 0xff.
func IsOpaqueRGB(img image.Image) bool {
	n, ok := img.(*image.NRGBA)
	if !ok || n.Rect.Min != (image.Point{}) {
		return false
	}

	return n.Opaque()
}

// Normalize converts img to an opaque, origin-anchored *image.NRGBA.
//
// Alpha, palette, grayscale and YCbCr modes are collapsed to plain RGB. Alpha is
// discarded rather than composited, so a transparent pixel keeps its color
// channels. The bool result reports whether any conversion happened.
func Normalize(img image.Image) (*image.NRGBA, bool) {
	if IsOpaqueRGB(img) {
		return img.(*image.NRGBA), false
	}

	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	switch src := img.(type) {
	case *image.NRGBA:
		for y := 0; y < b.Dy(); y++ {
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+4*b.Dx()], src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):])
		}
	default:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				i := dst.PixOffset(x, y)
				dst.Pix[i+0] = c.R
				dst.Pix[i+1] = c.G
				dst.Pix[i+2] = c.B
			}
		}
	}

	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}

	return dst, true
}

var pngEncoder = png.Encoder{CompressionLevel: png.BestSpeed}

// EncodePNG writes img to w as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	return pngEncoder.Encode(w, img)
}

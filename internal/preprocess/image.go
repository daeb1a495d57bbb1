package preprocess

import (
	"bytes"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrDecode marks uploads that could not be decoded as an image.
var ErrDecode = errors.New("cannot decode image")

// ErrTooManyPixels marks images whose declared dimensions exceed the decode cap.
var ErrTooManyPixels = errors.Wrap(ErrDecode, "image exceeds pixel limit")

// Tensor is a dense float32 array in row-major order.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Batch returns the tensor with a leading batch dimension of 1. Data is shared.
func (t *Tensor) Batch() *Tensor {
	shape := make([]int64, 0, len(t.Shape)+1)
	shape = append(shape, 1)
	shape = append(shape, t.Shape...)
	return &Tensor{Shape: shape, Data: t.Data}
}

// Decode decodes raw upload bytes. The format is sniffed from the content.
// The header is read first and images with more than maxPixels pixels are
// refused before any pixel data is allocated.
func Decode(data []byte, maxPixels int64) (image.Image, string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", errors.Wrapf(ErrDecode, "%v", err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > maxPixels {
		return nil, "", errors.Wrapf(ErrTooManyPixels, "%dx%d (%d pixels, max %d)", cfg.Width, cfg.Height, pixels, maxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", errors.Wrapf(ErrDecode, "%v", err)
	}
	return img, format, nil
}

// Prepare resizes img to exactly width x height and returns its RGB pixels
// as a (height, width, 3) tensor of values in [0, 255]. The alpha channel is
// discarded before resizing; stored color values are kept as they are, even
// where a pixel is fully transparent.
func Prepare(img image.Image, width, height int) *Tensor {
	resized := resize.Resize(uint(width), uint(height), opaque(img), resize.Bicubic)

	bounds := resized.Bounds()
	data := make([]float32, 0, width*height*3)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(resized.At(x, y)).(color.NRGBA)
			data = append(data, float32(c.R), float32(c.G), float32(c.B))
		}
	}

	return &Tensor{
		Shape: []int64{int64(height), int64(width), 3},
		Data:  data,
	}
}

// opaque returns img with every alpha value forced to 255. Images that
// already report themselves opaque are returned unchanged.
func opaque(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}

	b := img.Bounds()
	out := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var c color.NRGBA
			switch px := img.At(x, y).(type) {
			case color.NRGBA64:
				c = color.NRGBA{R: uint8(px.R >> 8), G: uint8(px.G >> 8), B: uint8(px.B >> 8)}
			default:
				c = color.NRGBAModel.Convert(px).(color.NRGBA)
			}
			c.A = 0xff
			out.SetNRGBA(x, y, c)
		}
	}
	return out
}

// Package imageproc turns uploaded image bytes into the float tensor the
// classifier consumes.
package imageproc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"
)

// DefaultSize is the spatial resolution the emotion model was trained on.
const DefaultSize = 64

// Channels is the number of color channels fed to the model.
const Channels = 3

// DefaultMaxPixels caps the decoded pixel count. Compressed formats can
// declare dimensions far larger than the upload itself.
const DefaultMaxPixels = 40_000_000

var (
	// ErrDecode is returned for input that is not a readable image.
	ErrDecode = errors.New("image decode failed")
	// ErrTooManyPixels is returned alongside ErrDecode when the declared
	// dimensions exceed the pixel limit.
	ErrTooManyPixels = errors.New("image dimensions exceed pixel limit")
)

// Layout is the memory order of the tensor.
type Layout int

const (
	// NHWC is channels-last, the Keras default.
	NHWC Layout = iota
	// NCHW is channels-first, the PyTorch default.
	NCHW
)

// ParseLayout maps the metadata spelling to a Layout. Empty means NHWC.
func ParseLayout(s string) (Layout, error) {
	switch s {
	case "", "nhwc", "NHWC":
		return NHWC, nil
	case "nchw", "NCHW":
		return NCHW, nil
	}
	return NHWC, fmt.Errorf("unknown tensor layout %q", s)
}

func (l Layout) String() string {
	if l == NCHW {
		return "nchw"
	}
	return "nhwc"
}

// Tensor is a batch of one normalized image.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Normalizer resizes and rescales decoded images.
type Normalizer struct {
	Size   int
	Layout Layout
	// MaxPixels limits width*height of accepted images. Zero means
	// DefaultMaxPixels.
	MaxPixels int
}

// NewNormalizer returns a Normalizer producing size×size tensors.
func NewNormalizer(size int, layout Layout) Normalizer {
	if size <= 0 {
		size = DefaultSize
	}
	return Normalizer{Size: size, Layout: layout, MaxPixels: DefaultMaxPixels}
}

// Shape returns the tensor shape including the batch dimension.
func (n Normalizer) Shape() []int64 {
	s := int64(n.Size)
	if n.Layout == NCHW {
		return []int64{1, Channels, s, s}
	}
	return []int64{1, s, s, Channels}
}

// TensorLen returns the flat element count of one tensor.
func (n Normalizer) TensorLen() int {
	return n.Size * n.Size * Channels
}

// Decode reads any registered image format and applies EXIF orientation.
// It returns the detected format name. Images larger than DefaultMaxPixels
// are rejected.
func Decode(data []byte) (image.Image, string, error) {
	return DecodeLimit(data, DefaultMaxPixels)
}

// DecodeLimit is Decode with an explicit pixel limit. The header is checked
// before any pixel buffer is allocated.
func DecodeLimit(data []byte, maxPixels int) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty input", ErrDecode)
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		// extended or animated WebP containers need libwebp
		wcfg, werr := webp.DecodeConfig(bytes.NewReader(data))
		if werr != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
		}
		if err := checkPixels(wcfg, "webp", maxPixels); err != nil {
			return nil, "", err
		}
		img, werr := webp.Decode(bytes.NewReader(data))
		if werr != nil {
			return nil, "", fmt.Errorf("%w: webp: %v", ErrDecode, werr)
		}
		return checkBounds(img, "webp")
	}
	if err := checkPixels(cfg, format, maxPixels); err != nil {
		return nil, "", err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", ErrDecode, format, err)
	}
	return checkBounds(img, format)
}

func checkPixels(cfg image.Config, format string, maxPixels int) error {
	if cfg.Width < 0 || cfg.Height < 0 || int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return fmt.Errorf("%w: %w: %s %dx%d, limit %d pixels",
			ErrDecode, ErrTooManyPixels, format, cfg.Width, cfg.Height, maxPixels)
	}
	return nil
}

func checkBounds(img image.Image, format string) (image.Image, string, error) {
	if img.Bounds().Empty() {
		return nil, "", fmt.Errorf("%w: %s image has no pixels", ErrDecode, format)
	}
	return img, format, nil
}

// Normalize resizes img to Size×Size and scales every channel from [0,255]
// to [0,1]. Alpha is dropped and grayscale is replicated across channels.
func (n Normalizer) Normalize(img image.Image) Tensor {
	size := uint(n.Size)
	resized := resize.Resize(size, size, img, resize.Bicubic)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height
	data := make([]float32, Channels*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.NRGBAModel.Convert(resized.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			r := float32(c.R) / 255.0
			g := float32(c.G) / 255.0
			b := float32(c.B) / 255.0

			pixel := y*width + x
			if n.Layout == NCHW {
				data[pixel] = r
				data[plane+pixel] = g
				data[2*plane+pixel] = b
			} else {
				data[pixel*Channels] = r
				data[pixel*Channels+1] = g
				data[pixel*Channels+2] = b
			}
		}
	}

	return Tensor{Shape: n.Shape(), Data: data}
}

// FromBytes decodes and normalizes one uploaded image.
func (n Normalizer) FromBytes(data []byte) (Tensor, string, error) {
	img, format, err := DecodeLimit(data, n.MaxPixels)
	if err != nil {
		return Tensor{}, "", err
	}
	return n.Normalize(img), format, nil
}

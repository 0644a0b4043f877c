package imageproc

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestImage creates a gradient test image
func createTestImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r := uint8((x * 255) / width)
			g := uint8((y * 255) / height)
			img.Set(x, y, color.RGBA{r, g, 128, 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	data := encodePNG(t, createTestImage(120, 90))

	img, format, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 120, img.Bounds().Dx())
	assert.Equal(t, 90, img.Bounds().Dy())

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, createTestImage(50, 40), &jpeg.Options{Quality: 90}))
	_, format, err = Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for name, data := range map[string][]byte{
		"empty":     nil,
		"text":      []byte("definitely not an image"),
		"truncated": encodePNG(t, createTestImage(32, 32))[:40],
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := Decode(data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDecode))
		})
	}
}

// grayPNG hand-assembles an 8-bit grayscale PNG that declares width×height
// but carries only a few compressed scanlines, so the file stays tiny.
func grayPNG(t *testing.T, width, height uint32) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	writeChunk := func(kind string, data []byte) {
		binary.Write(&buf, binary.BigEndian, uint32(len(data)))
		crc := crc32.NewIEEE()
		crc.Write([]byte(kind))
		crc.Write(data)
		buf.WriteString(kind)
		buf.Write(data)
		binary.Write(&buf, binary.BigEndian, crc.Sum32())
	}

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], width)
	binary.BigEndian.PutUint32(ihdr[4:8], height)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 0 // grayscale
	writeChunk("IHDR", ihdr)

	var idat bytes.Buffer
	zw := zlib.NewWriter(&idat)
	_, err := zw.Write(make([]byte, 4*(int(width)+1)))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	writeChunk("IDAT", idat.Bytes())
	writeChunk("IEND", nil)
	return buf.Bytes()
}

func TestDecodeRejectsOversizedDimensions(t *testing.T) {
	data := grayPNG(t, 12000, 12000)
	require.Less(t, len(data), 1<<20)

	_, _, err := Decode(data)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecode))
	assert.True(t, errors.Is(err, ErrTooManyPixels))
	assert.Contains(t, err.Error(), "12000x12000")
}

func TestDecodeLimit(t *testing.T) {
	data := encodePNG(t, createTestImage(40, 30))

	_, _, err := DecodeLimit(data, 40*30-1)
	assert.True(t, errors.Is(err, ErrTooManyPixels))

	img, _, err := DecodeLimit(data, 40*30)
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dx())

	n := NewNormalizer(8, NHWC)
	assert.Equal(t, DefaultMaxPixels, n.MaxPixels)
	n.MaxPixels = 100
	_, _, err = n.FromBytes(data)
	assert.True(t, errors.Is(err, ErrDecode))
	assert.True(t, errors.Is(err, ErrTooManyPixels))
}

func TestNormalizeShapeAndRange(t *testing.T) {
	n := NewNormalizer(DefaultSize, NHWC)
	tensor := n.Normalize(createTestImage(300, 200))

	assert.Equal(t, []int64{1, 64, 64, 3}, tensor.Shape)
	require.Len(t, tensor.Data, 64*64*3)
	assert.Equal(t, n.TensorLen(), len(tensor.Data))
	for i, v := range tensor.Data {
		if v < 0 || v > 1 {
			t.Fatalf("value %d out of range: %f", i, v)
		}
	}
}

func TestNormalizeSolidColor(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.Set(x, y, color.RGBA{255, 0, 51, 255})
		}
	}

	nhwc := NewNormalizer(4, NHWC).Normalize(img)
	assert.InDelta(t, 1.0, nhwc.Data[0], 1e-6)
	assert.InDelta(t, 0.0, nhwc.Data[1], 1e-6)
	assert.InDelta(t, 0.2, nhwc.Data[2], 1e-6)

	nchw := NewNormalizer(4, NCHW).Normalize(img)
	assert.Equal(t, []int64{1, 3, 4, 4}, nchw.Shape)
	assert.InDelta(t, 1.0, nchw.Data[0], 1e-6)
	assert.InDelta(t, 0.0, nchw.Data[16], 1e-6)
	assert.InDelta(t, 0.2, nchw.Data[32], 1e-6)
}

func TestNormalizeGrayscale(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 20, 20))
	for i := range img.Pix {
		img.Pix[i] = 102
	}

	tensor := NewNormalizer(8, NHWC).Normalize(img)
	require.Len(t, tensor.Data, 8*8*3)
	for i := 0; i < len(tensor.Data); i += 3 {
		assert.InDelta(t, 0.4, tensor.Data[i], 1e-6)
		assert.Equal(t, tensor.Data[i], tensor.Data[i+1])
		assert.Equal(t, tensor.Data[i], tensor.Data[i+2])
	}
}

func TestFromBytes(t *testing.T) {
	n := NewNormalizer(0, NHWC)
	assert.Equal(t, DefaultSize, n.Size)

	tensor, format, err := n.FromBytes(encodePNG(t, createTestImage(64, 64)))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Len(t, tensor.Data, n.TensorLen())

	_, _, err = n.FromBytes([]byte{0xff, 0xd8, 0x00})
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestParseLayout(t *testing.T) {
	l, err := ParseLayout("")
	require.NoError(t, err)
	assert.Equal(t, NHWC, l)

	l, err = ParseLayout("nchw")
	require.NoError(t, err)
	assert.Equal(t, NCHW, l)
	assert.Equal(t, "nchw", l.String())

	_, err = ParseLayout("hwc")
	assert.Error(t, err)
}

func BenchmarkNormalize(b *testing.B) {
	n := NewNormalizer(DefaultSize, NHWC)
	img := createTestImage(640, 480)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		n.Normalize(img)
	}
}

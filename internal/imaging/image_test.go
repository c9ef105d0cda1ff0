package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func solidImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func TestDecode_PNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solidImage(10, 8)))

	img, err := Decode(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, 10, img.Bounds().Dx())
	require.Equal(t, 8, img.Bounds().Dy())
}

func TestDecode_Garbage(t *testing.T) {
	_, err := Decode([]byte("definitely not an image"))
	require.Error(t, err)
}

func TestDownscale(t *testing.T) {
	tests := []struct {
		name          string
		w, h, maxSize int
		wantW, wantH  int
	}{
		{"already small", 100, 50, 200, 100, 50},
		{"landscape", 400, 200, 100, 100, 50},
		{"portrait", 200, 400, 100, 50, 100},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := Downscale(solidImage(tc.w, tc.h), tc.maxSize)
			require.Equal(t, tc.wantW, out.Bounds().Dx())
			require.Equal(t, tc.wantH, out.Bounds().Dy())
		})
	}
}

func TestExpandBox(t *testing.T) {
	bounds := image.Rect(0, 0, 200, 200)

	t.Run("margin inside bounds", func(t *testing.T) {
		got := ExpandBox(image.Rect(50, 50, 150, 150), 0.2, bounds)
		require.Equal(t, image.Rect(30, 30, 170, 170), got)
	})

	t.Run("clamped at edges", func(t *testing.T) {
		got := ExpandBox(image.Rect(0, 10, 100, 110), 0.2, bounds)
		require.Equal(t, image.Rect(0, 0, 120, 130), got)
	})
}

func TestCrop(t *testing.T) {
	src := solidImage(50, 50)
	out := Crop(src, image.Rect(10, 20, 30, 50))
	require.Equal(t, image.Rect(0, 0, 20, 30), out.Bounds())
	require.Equal(t, src.At(10, 20), out.At(0, 0))

	clipped := Crop(src, image.Rect(40, 40, 80, 80))
	require.Equal(t, image.Rect(0, 0, 10, 10), clipped.Bounds())
}

func TestEncodeJPEG_RoundTrip(t *testing.T) {
	data, err := EncodeJPEG(solidImage(16, 16))
	require.NoError(t, err)
	require.Equal(t, []byte{0xFF, 0xD8}, data[:2])

	img, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, 16, img.Bounds().Dx())
}

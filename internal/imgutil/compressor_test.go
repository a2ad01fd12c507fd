package imgutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func lineArt() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 30, 40))
	for x := 0; x < 30; x++ {
		for y := 0; y < 40; y++ {
			c := color.Gray{Y: 255}
			if x == y {
				c = color.Gray{Y: 0}
			}
			img.SetGray(x, y, c)
		}
	}
	return img
}

func TestCompressToJPEG(t *testing.T) {
	t.Run("png becomes jpeg", func(t *testing.T) {
		got, err := CompressToJPEG(encodePNG(t, lineArt()), 75)
		require.NoError(t, err)

		_, format, err := image.Decode(bytes.NewReader(got))
		require.NoError(t, err)
		assert.Equal(t, "jpeg", format)
	})

	t.Run("transparency is flattened to white", func(t *testing.T) {
		img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
		got, err := CompressToJPEG(encodePNG(t, img), 100)
		require.NoError(t, err)

		decoded, err := jpeg.Decode(bytes.NewReader(got))
		require.NoError(t, err)
		r, g, b, _ := decoded.At(4, 4).RGBA()
		assert.Greater(t, r>>8, uint32(240))
		assert.Greater(t, g>>8, uint32(240))
		assert.Greater(t, b>>8, uint32(240))
	})

	t.Run("invalid data", func(t *testing.T) {
		_, err := CompressToJPEG([]byte("this is not an image"), 75)
		assert.Error(t, err)
	})
}

func TestFormat(t *testing.T) {
	format, err := Format(encodePNG(t, lineArt()))
	require.NoError(t, err)
	assert.Equal(t, "png", format)

	_, err = Format([]byte("nope"))
	assert.Error(t, err)
}

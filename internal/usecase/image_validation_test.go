package usecase

import (
	"bytes"
	"image"
	"image/jpeg"
	"testing"

	"github.com/DRSN-tech/search-assistant/pkg/e"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateImage(t *testing.T) {
	pngData := pngImage(t)

	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, image.NewGray(image.Rect(0, 0, 2, 2)), nil))

	t.Run("png", func(t *testing.T) {
		assert.NoError(t, ValidateImage(&ProductImage{Data: pngData, MimeType: "image/png"}))
	})

	t.Run("jpeg", func(t *testing.T) {
		assert.NoError(t, ValidateImage(&ProductImage{Data: jpg.Bytes(), MimeType: "image/jpeg"}))
	})

	t.Run("untyped upload takes detected type", func(t *testing.T) {
		img := &ProductImage{Data: pngData, MimeType: "application/octet-stream"}
		require.NoError(t, ValidateImage(img))
		assert.Equal(t, "image/png", img.MimeType)
	})

	t.Run("declared type mismatch", func(t *testing.T) {
		err := ValidateImage(&ProductImage{Data: pngData, MimeType: "image/jpeg"})
		assert.ErrorIs(t, err, e.ErrInvalidImage)
	})

	t.Run("unsupported type", func(t *testing.T) {
		err := ValidateImage(&ProductImage{Data: pngData, MimeType: "image/gif"})
		assert.ErrorIs(t, err, e.ErrUnsupportedMediaType)
	})

	t.Run("garbage", func(t *testing.T) {
		err := ValidateImage(&ProductImage{Data: []byte("hello"), MimeType: "image/png"})
		assert.ErrorIs(t, err, e.ErrInvalidImage)
	})

	t.Run("empty", func(t *testing.T) {
		assert.ErrorIs(t, ValidateImage(&ProductImage{}), e.ErrNoImages)
	})

	t.Run("too large", func(t *testing.T) {
		err := ValidateImage(&ProductImage{Data: make([]byte, MaxImageSize+1), MimeType: "image/png"})
		assert.ErrorIs(t, err, e.ErrFileTooLarge)
	})
}

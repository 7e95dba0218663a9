package usecase

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/DRSN-tech/search-assistant/pkg/e"
	_ "golang.org/x/image/webp"
)

// MaxImageSize — предельный размер одного изображения.
const MaxImageSize = 15 << 20

var allowedImageTypes = map[string]string{
	"image/jpeg": "jpeg",
	"image/jpg":  "jpeg",
	"image/png":  "png",
	"image/webp": "webp",
}

// ValidateImage проверяет MIME-тип, размер и то, что заголовок изображения декодируется.
func ValidateImage(img *ProductImage) error {
	if img == nil || len(img.Data) == 0 {
		return e.ErrNoImages
	}
	if int64(len(img.Data)) > MaxImageSize {
		return fmt.Errorf("%w: %s", e.ErrFileTooLarge, img.Name)
	}

	want, ok := allowedImageTypes[img.MimeType]
	if !ok && !untypedUpload(img.MimeType) {
		return fmt.Errorf("%w: %s", e.ErrUnsupportedMediaType, img.MimeType)
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		return fmt.Errorf("%w: %v", e.ErrInvalidImage, err)
	}
	if !ok {
		// тип не указан клиентом, берём определённый по содержимому
		img.MimeType = "image/" + format
		return nil
	}
	if format != want {
		return fmt.Errorf("%w: declared %s, got %s", e.ErrInvalidImage, img.MimeType, format)
	}

	return nil
}

func untypedUpload(mime string) bool {
	return mime == "" || mime == "application/octet-stream"
}

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/DRSN-tech/search-assistant/internal/usecase"
	"github.com/DRSN-tech/search-assistant/pkg/e"
	"github.com/jimlawless/whereami"
)

const messageNoImage = "No image uploaded"

type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ImageErrorResponse — ответ поиска по изображению без файла.
type ImageErrorResponse struct {
	Error string `json:"error"`
}

type ProductMetadata struct {
	Title       string
	Description string
	Price       string
}

func NewErrorResponse(code int, message string) *ErrorResponse {
	return &ErrorResponse{
		Code:    code,
		Message: message,
	}
}

// ToHTTPResponse сопоставляет ошибку со статусом. Внутренние причины наружу не попадают.
func ToHTTPResponse(err error) (int, string) {
	switch {
	case errors.Is(err, e.ErrStatusBadRequest):
		return http.StatusBadRequest, e.ErrStatusBadRequest.Error()
	case errors.Is(err, e.ErrEmptyQuery):
		return http.StatusBadRequest, e.ErrEmptyQuery.Error()
	case errors.Is(err, e.ErrExpectedMultipart):
		return http.StatusBadRequest, e.ErrExpectedMultipart.Error()
	case errors.Is(err, e.ErrMissingFields):
		return http.StatusBadRequest, e.ErrMissingFields.Error()
	case errors.Is(err, e.ErrProductTitleRequired):
		return http.StatusBadRequest, e.ErrProductTitleRequired.Error()
	case errors.Is(err, e.ErrInvalidPrice):
		return http.StatusBadRequest, e.ErrInvalidPrice.Error()
	case errors.Is(err, e.ErrPricePrecision):
		return http.StatusBadRequest, e.ErrPricePrecision.Error()
	case errors.Is(err, e.ErrTooManyImages):
		return http.StatusBadRequest, e.ErrTooManyImages.Error()
	case errors.Is(err, e.ErrNoImages):
		return http.StatusBadRequest, e.ErrNoImages.Error()
	case errors.Is(err, e.ErrInvalidImage):
		return http.StatusBadRequest, e.ErrInvalidImage.Error()
	case errors.Is(err, e.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, e.ErrFileTooLarge.Error()
	case errors.Is(err, e.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType, e.ErrUnsupportedMediaType.Error()
	case errors.Is(err, e.ErrDuplicateEvent):
		return http.StatusConflict, e.ErrDuplicateEvent.Error()
	case errors.Is(err, e.ErrRetrievalFailed):
		return http.StatusInternalServerError, e.ErrNoResultsFound.Error()
	default:
		return http.StatusInternalServerError, e.ErrInternalServerError.Error()
	}
}

func WriteError(w http.ResponseWriter, err error) {
	code, msg := ToHTTPResponse(err)
	WriteSuccess(w, code, NewErrorResponse(code, msg))
}

func WriteSuccess(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func ensureMultipartForm(r *http.Request, maxMemory int64) error {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return e.Wrap(whereami.WhereAmI(), e.ErrExpectedMultipart)
	}
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return e.Wrap(whereami.WhereAmI(), e.ErrFileTooLarge)
		}
		return e.Wrap(err.Error(), e.ErrStatusBadRequest)
	}

	return nil
}

func parseProductForm(r *http.Request) (*ProductMetadata, error) {
	title := strings.TrimSpace(r.FormValue("title"))
	description := strings.TrimSpace(r.FormValue("description"))
	price := strings.TrimSpace(r.FormValue("price"))

	if title == "" || price == "" {
		return nil, e.Wrap(fmt.Sprintf("title: %q, price: %q", title, price), e.ErrMissingFields)
	}

	return &ProductMetadata{
		Title:       title,
		Description: description,
		Price:       price,
	}, nil
}

func parseImages(files []*multipart.FileHeader, maxFileSize int64) ([]usecase.ProductImage, error) {
	if len(files) == 0 {
		return nil, e.ErrNoImages
	}
	if len(files) > usecase.MaxProductImages {
		return nil, e.ErrTooManyImages
	}

	images := make([]usecase.ProductImage, 0, len(files))
	for _, fh := range files {
		img, err := readImage(fh, maxFileSize)
		if err != nil {
			return nil, err
		}
		images = append(images, *img)
	}
	return images, nil
}

// readImage читает файл из формы. MIME определяется по содержимому, а не по заголовку клиента.
func readImage(fh *multipart.FileHeader, maxSize int64) (*usecase.ProductImage, error) {
	if fh.Size > maxSize {
		return nil, e.Wrap(fh.Filename, e.ErrFileTooLarge)
	}

	src, err := fh.Open()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxSize+1))
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	if int64(len(data)) > maxSize {
		return nil, e.Wrap(fh.Filename, e.ErrFileTooLarge)
	}

	mimeType := http.DetectContentType(data[:min(len(data), 512)])
	return usecase.NewProductImage(data, mimeType, int64(len(data)), fh.Filename), nil
}

package usecase

import (
	"time"

	"github.com/DRSN-tech/search-assistant/internal/domain"
)

// SEARCH USECASE

// SearchMode показывает, каким путём получен результат поиска.
type SearchMode string

const (
	ModeExact   SearchMode = "exact"
	ModeSimilar SearchMode = "similar"
)

const (
	MessageExact   = "Here is some exact match of the product"
	MessageSimilar = "Here is some similar product of the product"
)

// ProductView — товар в ответе пользователю.
type ProductView = domain.ProductView

// TextSearchReq — запрос текстового поиска.
type TextSearchReq struct {
	Query string
}

// TextSearchRes — результат текстового поиска.
type TextSearchRes struct {
	Mode    SearchMode
	Message string
	Data    []ProductView
}

// ImageSearchReq — запрос поиска по изображению.
type ImageSearchReq struct {
	Image ProductImage
}

// ImageSearchRes — похожие товары в порядке возрастания расстояния.
type ImageSearchRes struct {
	SimilarImages []ProductView
}

// ProductImage представляет изображение, загруженное через multipart/form-data.
type ProductImage struct {
	Data     []byte // байты изображения
	MimeType string // Content-Type из multipart (image/jpeg)
	Size     int64  // фактический размер в байтах
	Name     string // оригинальное имя файла (для логов)
}

// PRODUCT USECASE

// RegisterProductReq — запрос на регистрацию нового товара.
type RegisterProductReq struct {
	Title       string
	Description string
	Price       string
	Images      []ProductImage
}

// RegisterProductRes — зарегистрированный товар и событие outbox.
type RegisterProductRes struct {
	ProductID int64
	ImageURLs []string
	EventID   string
}

// MAINTENANCE USECASE

// BackfillRes — итог заполнения пропущенных цен и эмбеддингов.
type BackfillRes struct {
	PricesUpdated      int64
	EmbeddingsComputed int
}

// INFRASTRUCTURE

// UploadImagesReq — запрос на загрузку изображений товара.
type UploadImagesReq struct {
	Name   string
	Images []ProductImage
}

// UploadImagesRes — ключи загруженных объектов и их публичные ссылки, в порядке запроса.
type UploadImagesRes struct {
	ImagesKeys []string
	URLs       []string
}

// StagedImage — временно сохранённое изображение запроса.
type StagedImage struct {
	Key string
	URL string
}

type WriteRawMessageReq struct {
	ProductID int64
	EventType string
	Payload   []byte
}

// OUTBOX

type OutboxStatus string

const (
	Pending    OutboxStatus = "pending"
	Processing OutboxStatus = "processing"
	Processed  OutboxStatus = "processed"
)

const EventProductRegistered = "product.registered"

// OutboxEvent — событие, которое публикуется в Kafka после коммита.
type OutboxEvent struct {
	ID          int64
	EventID     string
	EventType   string
	ProductID   int64
	Payload     []byte
	Status      OutboxStatus
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// MAPPERS

func NewTextSearchRes(mode SearchMode, data []ProductView) *TextSearchRes {
	msg := MessageSimilar
	if mode == ModeExact {
		msg = MessageExact
	}
	if data == nil {
		data = []ProductView{}
	}

	return &TextSearchRes{
		Mode:    mode,
		Message: msg,
		Data:    data,
	}
}

func NewImageSearchRes(data []ProductView) *ImageSearchRes {
	if data == nil {
		data = []ProductView{}
	}

	return &ImageSearchRes{SimilarImages: data}
}

func NewProductImage(data []byte, mimeType string, size int64, name string) *ProductImage {
	return &ProductImage{
		Data:     data,
		MimeType: mimeType,
		Size:     size,
		Name:     name,
	}
}

func NewRegisterProductReq(title, description, price string, images []ProductImage) *RegisterProductReq {
	return &RegisterProductReq{
		Title:       title,
		Description: description,
		Price:       price,
		Images:      images,
	}
}

func NewUploadImagesReq(name string, images []ProductImage) *UploadImagesReq {
	return &UploadImagesReq{
		Name:   name,
		Images: images,
	}
}

func NewUploadImagesRes(imagesKeys, urls []string) *UploadImagesRes {
	return &UploadImagesRes{
		ImagesKeys: imagesKeys,
		URLs:       urls,
	}
}

func NewWriteRawMessageReq(productID int64, eventType string, payload []byte) *WriteRawMessageReq {
	return &WriteRawMessageReq{
		ProductID: productID,
		EventType: eventType,
		Payload:   payload,
	}
}

func NewOutboxEvent(eventID, eventType string, productID int64, payload []byte) *OutboxEvent {
	return &OutboxEvent{
		EventID:   eventID,
		EventType: eventType,
		ProductID: productID,
		Payload:   payload,
		Status:    Pending,
		CreatedAt: time.Now().UTC(),
	}
}

package domain

// Image описывает изображение, которое хранится в S3.
type Image struct {
	ID        string // uuid
	Bucket    string
	ObjectKey string
	Data      []byte
	Size      int64
	MimeType  string
}

func NewImage(id, bucket, objectKey string, data []byte, size int64, mimeType string) *Image {
	return &Image{
		ID:        id,
		Bucket:    bucket,
		ObjectKey: objectKey,
		Data:      data,
		Size:      size,
		MimeType:  mimeType,
	}
}

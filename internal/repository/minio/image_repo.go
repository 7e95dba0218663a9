package minio

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/DRSN-tech/search-assistant/internal/cfg"
	"github.com/DRSN-tech/search-assistant/internal/domain"
	"github.com/DRSN-tech/search-assistant/pkg/e"
	"github.com/jimlawless/whereami"
	"github.com/minio/minio-go/v7"
)

// ImageRepo реализует репозиторий изображений поверх MinIO.
type ImageRepo struct {
	mc  *minio.Client
	cfg *cfg.MinIOCfg
}

func NewImageRepo(mc *minio.Client, cfg *cfg.MinIOCfg) *ImageRepo {
	return &ImageRepo{
		mc:  mc,
		cfg: cfg,
	}
}

// Upload загружает изображение в MinIO и возвращает ключ объекта.
func (i *ImageRepo) Upload(ctx context.Context, image *domain.Image) (string, error) {
	reader := bytes.NewReader(image.Data)

	info, err := i.mc.PutObject(ctx, i.cfg.BucketName, image.ObjectKey, reader, image.Size, minio.PutObjectOptions{
		ContentType: image.MimeType,
	})
	if err != nil {
		return "", e.Wrap(whereami.WhereAmI(), err)
	}

	return info.Key, nil
}

// Delete удаляет объект из MinIO по указанному ключу.
func (i *ImageRepo) Delete(ctx context.Context, key string) error {
	if err := i.mc.RemoveObject(ctx, i.cfg.BucketName, key, minio.RemoveObjectOptions{}); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// PresignGet возвращает временную ссылку на чтение объекта.
func (i *ImageRepo) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := i.mc.PresignedGetObject(ctx, i.cfg.BucketName, key, ttl, nil)
	if err != nil {
		return "", e.Wrap(whereami.WhereAmI(), err)
	}

	return u.String(), nil
}

// ObjectURL возвращает постоянную ссылку на объект товара.
func (i *ImageRepo) ObjectURL(key string) string {
	base := i.cfg.PublicBaseURL
	if base == "" {
		scheme := "http"
		if i.cfg.MinioUseSSL {
			scheme = "https"
		}
		base = scheme + "://" + i.cfg.MinioEndpoint
	}

	return strings.TrimRight(base, "/") + "/" + i.cfg.BucketName + "/" + key
}

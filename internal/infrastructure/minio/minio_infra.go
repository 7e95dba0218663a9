package minio

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/DRSN-tech/search-assistant/internal/cfg"
	"github.com/DRSN-tech/search-assistant/internal/domain"
	"github.com/DRSN-tech/search-assistant/internal/infrastructure"
	"github.com/DRSN-tech/search-assistant/internal/usecase"
	"github.com/DRSN-tech/search-assistant/pkg/e"
	"github.com/DRSN-tech/search-assistant/pkg/logger"
	"github.com/DRSN-tech/search-assistant/pkg/retry"

	"github.com/google/uuid"
)

const (
	productPrefix      = "products"
	stagingPrefix      = "tmp/query"
	cleanupTimeout     = 30 * time.Second
	cleanupAttempts    = 3
	cleanupBaseBackoff = time.Second
)

// MinioInfrastructure управляет загрузкой, временным хранением и очисткой изображений в MinIO.
type MinioInfrastructure struct {
	minioRepo         usecase.ImageRepository
	cfg               *cfg.MinIOCfg
	logger            logger.Logger
	shutdownCtx       context.Context
	wg                sync.WaitGroup
	uploadImagesLimit int
}

func NewMinioInfrastructure(minioRepo usecase.ImageRepository, cfg *cfg.MinIOCfg, logger logger.Logger, shutdownCtx context.Context) *MinioInfrastructure {
	limit := cfg.UploadImagesLimit
	if limit <= 0 {
		limit = 1
	}

	return &MinioInfrastructure{
		minioRepo:         minioRepo,
		cfg:               cfg,
		logger:            logger,
		shutdownCtx:       shutdownCtx,
		uploadImagesLimit: limit,
	}
}

type uploaded struct {
	idx int
	key string
}

// UploadImages загружает изображения товара параллельно с ограничением одновременных операций.
// Ключи и ссылки возвращаются в порядке запроса. При ошибке остальные загрузки отменяются,
// а уже загруженные файлы удаляются в фоне.
func (m *MinioInfrastructure) UploadImages(ctx context.Context, req *usecase.UploadImagesReq) (*usecase.UploadImagesRes, error) {
	const op = "MinioInfrastructure.UploadImages"
	// Отмена остальных загрузок при первой ошибке
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resCh := make(chan uploaded, len(req.Images))
	errCh := make(chan error, len(req.Images))
	sem := make(chan struct{}, m.uploadImagesLimit)
	folder := slug(req.Name)

	var uploadWg sync.WaitGroup
	for idx, image := range req.Images {
		uploadWg.Add(1)
		go func() {
			defer uploadWg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
			defer func() { <-sem }()

			imageID := uuid.NewString()
			ext, err := infrastructure.GetExtensionFromMIME(image.MimeType)
			if err != nil {
				errCh <- fmt.Errorf("invalid mime type %s for %s: %w", image.MimeType, image.Name, err)
				return
			}
			objKey := fmt.Sprintf("%s/%s/%s.%s", productPrefix, folder, imageID, ext)
			newImage := domain.NewImage(imageID, m.cfg.BucketName, objKey, image.Data, int64(len(image.Data)), image.MimeType)

			key, err := m.minioRepo.Upload(ctx, newImage)
			if err != nil {
				errCh <- fmt.Errorf("upload %s failed: %w", image.Name, err)
				return
			}

			resCh <- uploaded{idx: idx, key: key}
		}()
	}

	go func() {
		uploadWg.Wait()
		close(errCh)
		close(resCh)
	}()

	keys := make([]string, len(req.Images))
	var done []string
	ok := false
	defer func() {
		if !ok && len(done) > 0 {
			m.CleanupImages(done)
		}
	}()

	for completed := 0; completed < len(req.Images); {
		select {
		case res, open := <-resCh:
			if open {
				keys[res.idx] = res.key
				done = append(done, res.key)
				completed++
			}
		case err, open := <-errCh:
			if open {
				cancel()
				// дожидаемся завершения горутин, чтобы не потерять ключи уже загруженных файлов
				for res := range resCh {
					done = append(done, res.key)
				}
				return nil, e.Wrap(op, err)
			}
		case <-ctx.Done():
			return nil, e.Wrap(op, ctx.Err())
		}
	}

	ok = true
	urls := make([]string, len(keys))
	for i, key := range keys {
		urls[i] = m.minioRepo.ObjectURL(key)
	}

	return usecase.NewUploadImagesRes(keys, urls), nil
}

// Stage сохраняет изображение запроса под временным ключом и возвращает presigned-ссылку на него.
// Вызывающий обязан удалить объект через CleanupImages.
func (m *MinioInfrastructure) Stage(ctx context.Context, image *usecase.ProductImage) (*usecase.StagedImage, error) {
	const op = "MinioInfrastructure.Stage"

	ext, err := infrastructure.GetExtensionFromMIME(image.MimeType)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	imageID := uuid.NewString()
	objKey := fmt.Sprintf("%s/%s.%s", stagingPrefix, imageID, ext)
	key, err := m.minioRepo.Upload(ctx, domain.NewImage(imageID, m.cfg.BucketName, objKey, image.Data, int64(len(image.Data)), image.MimeType))
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	url, err := m.minioRepo.PresignGet(ctx, key, m.cfg.PresignTTL)
	if err != nil {
		m.CleanupImages([]string{key})
		return nil, e.Wrap(op, err)
	}

	return &usecase.StagedImage{Key: key, URL: url}, nil
}

// CleanupImages запускает фоновую очистку указанных ключей MinIO
func (m *MinioInfrastructure) CleanupImages(keys []string) {
	if len(keys) == 0 {
		return
	}
	m.wg.Add(1)
	go m.cleanupUploadedKeys(keys)
}

// cleanupUploadedKeys удаляет указанные объекты из MinIO с экспоненциальной задержкой и jitter.
func (m *MinioInfrastructure) cleanupUploadedKeys(keys []string) {
	defer m.wg.Done() // сигнализируем завершение компенсации
	const op = "MinioInfrastructure.cleanupUploadedKeys"
	m.logger.Debugf("%s: cleaning up %d keys", op, len(keys))

	// Создаём контекст с таймаутом на основе shutdownCtx
	ctx, cancel := context.WithTimeout(m.shutdownCtx, cleanupTimeout)
	defer cancel()

	for _, key := range keys {
		for attempt := 0; attempt < cleanupAttempts; attempt++ {
			err := m.minioRepo.Delete(ctx, key)
			if err == nil {
				break // Успешно удалено
			}

			// Проверяем, не отменён ли контекст
			if ctx.Err() != nil {
				m.logger.Warnf("cleanup interrupted by shutdown, key=%v", key)
				return
			}

			if attempt == cleanupAttempts-1 {
				m.logger.Errorf(err, "%s: giving up on key=%v", op, key)
				break
			}

			sleepTime := retry.Jitter(retry.Backoff(cleanupBaseBackoff, cleanupTimeout, attempt), retry.DefaultJitter)
			select {
			case <-time.After(sleepTime):
			case <-ctx.Done():
				m.logger.Warnf("cleanup interrupted by shutdown during backoff, key=%v", key)
				return
			}
		}
	}
}

// WaitForCleanup ожидает завершения всех фоновых задач очистки с учётом таймаута завершения приложения.
func (m *MinioInfrastructure) WaitForCleanup(shutdownTimeoutCtx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-shutdownTimeoutCtx.Done():
		return fmt.Errorf("minio cleanup timeout during shutdown: %w", shutdownTimeoutCtx.Err())
	}
}

// slug превращает название товара в безопасный префикс ключа.
func slug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}

	if b.Len() == 0 {
		return "product"
	}
	return b.String()
}

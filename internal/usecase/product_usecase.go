package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/DRSN-tech/search-assistant/internal/domain"
	"github.com/DRSN-tech/search-assistant/pkg/e"
	"github.com/DRSN-tech/search-assistant/pkg/logger"
	"github.com/DRSN-tech/search-assistant/pkg/tr"
	transaction "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// MaxProductImages — предельное число изображений одного товара.
const MaxProductImages = 10

// ProductUseCase регистрирует товары: изображения, эмбеддинги, запись в каталог и событие outbox.
type ProductUseCase struct {
	productRepo   ProductRepository
	outboxRepo    OutboxRepository
	dbPool        transaction.Transactional
	textEmbedder  TextEmbedder
	imageEmbedder ImageEmbedder
	imagesInfra   ImagesInfra
	imageIndex    ImageIndex // nil, если Qdrant не настроен
	logger        logger.Logger
}

func NewProductUC(
	productRepo ProductRepository,
	outboxRepo OutboxRepository,
	dbPool transaction.Transactional,
	textEmbedder TextEmbedder,
	imageEmbedder ImageEmbedder,
	imagesInfra ImagesInfra,
	imageIndex ImageIndex,
	logger logger.Logger,
) *ProductUseCase {
	return &ProductUseCase{
		productRepo:   productRepo,
		outboxRepo:    outboxRepo,
		dbPool:        dbPool,
		textEmbedder:  textEmbedder,
		imageEmbedder: imageEmbedder,
		imagesInfra:   imagesInfra,
		imageIndex:    imageIndex,
		logger:        logger,
	}
}

// RegisterNewProduct сохраняет товар вместе с эмбеддингами и событием outbox в одной транзакции.
// При любой ошибке транзакция откатывается, а загруженные изображения удаляются в фоне.
func (p *ProductUseCase) RegisterNewProduct(ctx context.Context, req *RegisterProductReq) (*RegisterProductRes, error) {
	const op = "ProductUseCase.RegisterNewProduct"

	price, err := p.validateProduct(req)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	product := domain.NewProduct(strings.TrimSpace(req.Title), strings.TrimSpace(req.Description), price)

	// Эмбеддинги считаются до загрузки, чтобы не оставлять объекты при отказе провайдера
	product.TextEmbedding, err = p.textEmbedder.EmbedOne(ctx, product.EmbeddingText())
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	first := req.Images[0]
	product.ImageEmbedding, err = p.imageEmbedder.EmbedImage(ctx, domain.ImageSource{Data: first.Data, MimeType: first.MimeType})
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	var imagesRes *UploadImagesRes
	if p.imagesInfra != nil {
		imagesRes, err = p.imagesInfra.UploadImages(ctx, NewUploadImagesReq(product.Title, req.Images))
		if err != nil {
			return nil, e.Wrap(op, err)
		}
		if len(imagesRes.URLs) > 0 {
			product.ImageURL = &imagesRes.URLs[0]
		}
		if len(imagesRes.URLs) > 1 {
			product.ImageURL2 = &imagesRes.URLs[1]
		}
	}

	ctx, tx, err := transaction.NewTransaction(ctx, pgx.TxOptions{}, p.dbPool)
	if err != nil {
		p.cleanup(imagesRes)
		return nil, e.Wrap(op, err)
	}
	// Если произошла ошибка, транзакция откатывается, а загруженные изображения удаляются
	defer func() {
		if err != nil {
			if tx.IsActive() {
				if rbErr := tx.Rollback(ctx); rbErr != nil {
					p.logger.Warnf("%s: rollback failed: %v", op, rbErr)
				}
			}
			p.cleanup(imagesRes)
		}
	}()

	pgxTx, ok := tx.Transaction().(pgx.Tx)
	if !ok {
		err = e.ErrTransactionNotFound
		return nil, e.Wrap(op, err)
	}
	ctx = tr.WithTx(ctx, pgxTx)

	product, err = p.productRepo.Create(ctx, product)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	event, err := p.newRegisteredEvent(product, imagesRes)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	event, err = p.outboxRepo.Create(ctx, event)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, e.Wrap(op, err)
	}

	p.mirrorImageVector(ctx, product)

	res := &RegisterProductRes{ProductID: product.ID, EventID: event.EventID}
	if imagesRes != nil {
		res.ImageURLs = imagesRes.URLs
	}

	p.logger.Infof("product registered: id=%d title=%q images=%d", product.ID, product.Title, len(req.Images))
	return res, nil
}

// mirrorImageVector копирует эмбеддинг изображения в Qdrant. Ошибка не отменяет регистрацию:
// каталог остаётся источником истины.
func (p *ProductUseCase) mirrorImageVector(ctx context.Context, product *domain.Product) {
	if p.imageIndex == nil || product.ImageEmbedding == nil {
		return
	}

	imageURL := ""
	if product.ImageURL != nil {
		imageURL = *product.ImageURL
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := p.imageIndex.Upsert(ctx, domain.NewQdrantPoint(product.ID, product.ImageEmbedding, imageURL)); err != nil {
		p.logger.Warnf("failed to mirror image vector of product %d: %v", product.ID, err)
	}
}

// newRegisteredEvent формирует событие product.registered в виде protobuf Struct.
func (p *ProductUseCase) newRegisteredEvent(product *domain.Product, imagesRes *UploadImagesRes) (*OutboxEvent, error) {
	eventID := uuid.NewString()

	images := make([]any, 0)
	if imagesRes != nil {
		for _, key := range imagesRes.ImagesKeys {
			images = append(images, key)
		}
	}

	price := ""
	if product.Price.Valid {
		price = product.Price.Decimal.StringFixed(2)
	}

	payload, err := structpb.NewStruct(map[string]any{
		"event_id":        eventID,
		"event_type":      EventProductRegistered,
		"event_timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"product_id":      float64(product.ID),
		"title":           product.Title,
		"price":           price,
		"image_keys":      images,
	})
	if err != nil {
		return nil, err
	}

	data, err := proto.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return NewOutboxEvent(eventID, EventProductRegistered, product.ID, data), nil
}

func (p *ProductUseCase) cleanup(imagesRes *UploadImagesRes) {
	if p.imagesInfra == nil || imagesRes == nil || len(imagesRes.ImagesKeys) == 0 {
		return
	}

	p.logger.Warnf("Cleaning up orphaned images after registration failure, keys: %v", imagesRes.ImagesKeys)
	p.imagesInfra.CleanupImages(imagesRes.ImagesKeys)
}

// validateProduct проверяет входные данные и разбирает цену.
func (p *ProductUseCase) validateProduct(req *RegisterProductReq) (decimal.Decimal, error) {
	if strings.TrimSpace(req.Title) == "" {
		return decimal.Zero, e.ErrProductTitleRequired
	}

	price, err := ParsePrice(req.Price)
	if err != nil {
		return decimal.Zero, err
	}

	if len(req.Images) == 0 {
		return decimal.Zero, e.ErrNoImages
	}
	if len(req.Images) > MaxProductImages {
		return decimal.Zero, fmt.Errorf("%w: max %d", e.ErrTooManyImages, MaxProductImages)
	}

	for i := range req.Images {
		if err := ValidateImage(&req.Images[i]); err != nil {
			return decimal.Zero, err
		}
	}

	return price, nil
}

// ParsePrice разбирает неотрицательную цену с не более чем двумя знаками после точки.
func ParsePrice(raw string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", e.ErrInvalidPrice, raw)
	}
	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: must not be negative", e.ErrInvalidPrice)
	}
	if !price.Equal(price.Round(2)) {
		return decimal.Zero, e.ErrPricePrecision
	}

	return price, nil
}

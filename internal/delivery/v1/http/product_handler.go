package http

import (
	"net/http"

	"github.com/DRSN-tech/search-assistant/internal/usecase"
	"github.com/DRSN-tech/search-assistant/pkg/e"
	"github.com/DRSN-tech/search-assistant/pkg/logger"
	"github.com/go-chi/chi/v5/middleware"
)

type RegisterProductResponse struct {
	ProductID int64    `json:"product_id"`
	ImageURLs []string `json:"image_urls"`
	EventID   string   `json:"event_id"`
}

type ProductHandler struct {
	productUsecase usecase.ProductUC
	maxImageSize   int64
	logger         logger.Logger
}

func NewProductHandler(productUsecase usecase.ProductUC, maxImageSize int64, logger logger.Logger) *ProductHandler {
	if maxImageSize <= 0 {
		maxImageSize = usecase.MaxImageSize
	}
	return &ProductHandler{productUsecase: productUsecase, maxImageSize: maxImageSize, logger: logger}
}

// registerNewProduct
//
//	@Summary		Регистрация нового товара
//	@Description	Создает товар в каталоге с изображениями и эмбеддингами
//	@Tags			products
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			title		formData	string	true	"Название товара"
//	@Param			description	formData	string	false	"Описание"
//	@Param			price		formData	number	true	"Цена"
//	@Param			images		formData	file	true	"Изображения товара"
//	@Success		201			{object}	RegisterProductResponse	"Успешное создание"
//	@Failure		400			{object}	ErrorResponse			"Ошибка валидации"
//	@Router			/products [post]
func (p *ProductHandler) registerNewProduct(w http.ResponseWriter, r *http.Request) {
	const maxMemory = 32 << 20
	log := p.logger.With("request_id", middleware.GetReqID(r.Context()))

	maxTotalRequestSize := int64(usecase.MaxProductImages)*p.maxImageSize + maxMemory
	r.Body = http.MaxBytesReader(w, r.Body, maxTotalRequestSize)

	if err := ensureMultipartForm(r, maxMemory); err != nil {
		log.Warnf("%d %s: %s", http.StatusBadRequest, e.ErrStatusBadRequest.Error(), r.Header.Get("Content-Type"))
		WriteError(w, err)
		return
	}

	prMeta, err := parseProductForm(r)
	if err != nil {
		log.Warnf("%d %s: %s", http.StatusBadRequest, e.ErrStatusBadRequest.Error(), err.Error())
		WriteError(w, err)
		return
	}

	images, err := parseImages(r.MultipartForm.File["images"], p.maxImageSize)
	if err != nil {
		log.Warnf("%d %s: %s", http.StatusBadRequest, e.ErrStatusBadRequest.Error(), err.Error())
		WriteError(w, err)
		return
	}

	res, err := p.productUsecase.RegisterNewProduct(r.Context(),
		usecase.NewRegisterProductReq(prMeta.Title, prMeta.Description, prMeta.Price, images))
	if err != nil {
		log.Warnf("%s", err.Error())
		WriteError(w, err)
		return
	}

	WriteSuccess(w, http.StatusCreated, RegisterProductResponse{
		ProductID: res.ProductID,
		ImageURLs: res.ImageURLs,
		EventID:   res.EventID,
	})
}

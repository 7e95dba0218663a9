package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/DRSN-tech/search-assistant/internal/usecase"
	"github.com/DRSN-tech/search-assistant/pkg/e"
	"github.com/DRSN-tech/search-assistant/pkg/logger"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	maxSearchBodySize = 1 << 20
	imageFormMemory   = 16 << 20
)

type TextSearchRequest struct {
	Search string `json:"search"`
}

type TextSearchResponse struct {
	Message string                `json:"message"`
	Data    []usecase.ProductView `json:"data"`
}

type ImageSearchResponse struct {
	SimilarImages []usecase.ProductView `json:"similarImages"`
}

type SearchHandler struct {
	searchUsecase usecase.SearchUC
	maxImageSize  int64
	logger        logger.Logger
}

func NewSearchHandler(searchUsecase usecase.SearchUC, maxImageSize int64, logger logger.Logger) *SearchHandler {
	if maxImageSize <= 0 {
		maxImageSize = usecase.MaxImageSize
	}
	return &SearchHandler{searchUsecase: searchUsecase, maxImageSize: maxImageSize, logger: logger}
}

// textSearch
//
//	@Summary		Текстовый поиск товаров
//	@Description	Пытается найти точное совпадение через сгенерированный SQL, иначе возвращает похожие товары
//	@Tags			search
//	@Accept			json
//	@Produce		json
//	@Param			request	body		TextSearchRequest	true	"Поисковый запрос"
//	@Success		200		{object}	TextSearchResponse
//	@Failure		400		{object}	ErrorResponse	"Пустой запрос"
//	@Failure		500		{object}	ErrorResponse	"Ничего не найдено"
//	@Router			/search/text [post]
func (s *SearchHandler) textSearch(w http.ResponseWriter, r *http.Request) {
	log := s.logger.With("request_id", middleware.GetReqID(r.Context()))
	r.Body = http.MaxBytesReader(w, r.Body, maxSearchBodySize)

	var req TextSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warnf("%d %s: %v", http.StatusBadRequest, e.ErrStatusBadRequest.Error(), err)
		WriteError(w, e.Wrap(err.Error(), e.ErrStatusBadRequest))
		return
	}

	res, err := s.searchUsecase.SearchByText(r.Context(), &usecase.TextSearchReq{Query: req.Search})
	if err != nil {
		log.Warnf("text search failed: %v", err)
		WriteError(w, err)
		return
	}

	log.Infof("text search answered: mode=%s results=%d", res.Mode, len(res.Data))
	WriteSuccess(w, http.StatusOK, TextSearchResponse{Message: res.Message, Data: res.Data})
}

// imageSearch
//
//	@Summary		Поиск похожих товаров по изображению
//	@Description	Возвращает товары с ближайшими эмбеддингами изображений
//	@Tags			search
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			image	formData	file	true	"Изображение запроса"
//	@Success		200		{object}	ImageSearchResponse
//	@Failure		400		{object}	ImageErrorResponse	"Нет изображения"
//	@Failure		500		{object}	ErrorResponse		"Ничего не найдено"
//	@Router			/search/image [post]
func (s *SearchHandler) imageSearch(w http.ResponseWriter, r *http.Request) {
	log := s.logger.With("request_id", middleware.GetReqID(r.Context()))
	r.Body = http.MaxBytesReader(w, r.Body, s.maxImageSize+imageFormMemory)

	if err := ensureMultipartForm(r, imageFormMemory); err != nil {
		if errors.Is(err, e.ErrExpectedMultipart) {
			WriteSuccess(w, http.StatusBadRequest, ImageErrorResponse{Error: messageNoImage})
			return
		}
		log.Warnf("%d %s: %v", http.StatusBadRequest, e.ErrStatusBadRequest.Error(), err)
		WriteError(w, err)
		return
	}

	files := r.MultipartForm.File["image"]
	if len(files) == 0 {
		WriteSuccess(w, http.StatusBadRequest, ImageErrorResponse{Error: messageNoImage})
		return
	}

	img, err := readImage(files[0], s.maxImageSize)
	if err != nil {
		log.Warnf("%d %s: %v", http.StatusBadRequest, e.ErrStatusBadRequest.Error(), err)
		WriteError(w, err)
		return
	}

	res, err := s.searchUsecase.SearchByImage(r.Context(), &usecase.ImageSearchReq{Image: *img})
	if err != nil {
		log.Warnf("image search failed: %v", err)
		WriteError(w, err)
		return
	}

	log.Infof("image search answered: results=%d", len(res.SimilarImages))
	WriteSuccess(w, http.StatusOK, ImageSearchResponse{SimilarImages: res.SimilarImages})
}

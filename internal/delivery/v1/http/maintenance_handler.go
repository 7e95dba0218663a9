package http

import (
	"net/http"
	"strconv"

	"github.com/DRSN-tech/search-assistant/internal/usecase"
	"github.com/DRSN-tech/search-assistant/pkg/e"
	"github.com/DRSN-tech/search-assistant/pkg/logger"
)

type BackfillResponse struct {
	PricesUpdated      int64 `json:"prices_updated"`
	EmbeddingsComputed int   `json:"embeddings_computed"`
}

type MaintenanceHandler struct {
	maintenanceUsecase usecase.MaintenanceUC
	logger             logger.Logger
}

func NewMaintenanceHandler(maintenanceUsecase usecase.MaintenanceUC, logger logger.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{maintenanceUsecase: maintenanceUsecase, logger: logger}
}

// backfill
//
//	@Summary		Заполнение пропущенных цен и эмбеддингов
//	@Tags			maintenance
//	@Produce		json
//	@Param			batch	query		int	false	"Размер пачки эмбеддингов"
//	@Success		200		{object}	BackfillResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/maintenance/backfill [post]
func (m *MaintenanceHandler) backfill(w http.ResponseWriter, r *http.Request) {
	batch := usecase.DefaultBackfillBatch
	if raw := r.URL.Query().Get("batch"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			WriteError(w, e.Wrap("batch", e.ErrStatusBadRequest))
			return
		}
		batch = n
	}

	res, err := m.maintenanceUsecase.Backfill(r.Context(), batch)
	if err != nil {
		m.logger.Errorf(err, "backfill failed")
		WriteError(w, err)
		return
	}

	WriteSuccess(w, http.StatusOK, BackfillResponse{
		PricesUpdated:      res.PricesUpdated,
		EmbeddingsComputed: res.EmbeddingsComputed,
	})
}

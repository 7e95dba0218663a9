package http

import (
	"context"
	"net/http"
	"time"

	_ "github.com/DRSN-tech/search-assistant/docs" // Импорт сгенерированных файлов
	"github.com/DRSN-tech/search-assistant/internal/usecase"
	"github.com/DRSN-tech/search-assistant/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger/v2"
)

const healthTimeout = 2 * time.Second

// Pinger проверяет доступность каталога для /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Router struct {
	router *chi.Mux
	logger logger.Logger
}

func NewRouter(router *chi.Mux, logger logger.Logger) *Router {
	return &Router{router: router, logger: logger}
}

func (r *Router) Init(searchUC usecase.SearchUC, prUC usecase.ProductUC, mtUC usecase.MaintenanceUC, db Pinger, maxImageSize int64) {
	r.router.Use(middleware.RequestID)
	r.router.Use(middleware.RealIP)
	r.router.Use(r.requestLogger)
	r.router.Use(middleware.Recoverer)

	r.router.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"), // ссылка на JSON
	))
	r.router.Get("/healthz", healthHandler(db))

	searchHandler := NewSearchHandler(searchUC, maxImageSize, r.logger)
	// legacy пути без версии
	r.router.Post("/text-search", searchHandler.textSearch)
	r.router.Post("/image-search", searchHandler.imageSearch)

	r.router.Route("/api/v1", func(v1 chi.Router) {
		registerSearchRoutes(v1, searchHandler)
		registerProductRoutes(v1, NewProductHandler(prUC, maxImageSize, r.logger))
		registerMaintenanceRoutes(v1, NewMaintenanceHandler(mtUC, r.logger))
	})
}

func registerSearchRoutes(router chi.Router, h *SearchHandler) {
	router.Route("/search", func(sr chi.Router) {
		sr.Post("/text", h.textSearch)
		sr.Post("/image", h.imageSearch)
	})
}

func registerProductRoutes(router chi.Router, prHandler *ProductHandler) {
	router.Route("/products", func(pr chi.Router) {
		pr.Post("/", prHandler.registerNewProduct)
	})
}

func registerMaintenanceRoutes(router chi.Router, h *MaintenanceHandler) {
	router.Post("/maintenance/backfill", h.backfill)
}

func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		if db != nil {
			if err := db.Ping(ctx); err != nil {
				WriteSuccess(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		WriteSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// requestLogger пишет метод, путь, статус и длительность каждого запроса.
func (r *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)

		r.logger.With("request_id", middleware.GetReqID(req.Context())).
			Debugf("%s %s -> %d in %v", req.Method, req.URL.Path, ww.Status(), time.Since(start))
	})
}

package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/DRSN-tech/search-assistant/internal/domain"
	"github.com/DRSN-tech/search-assistant/pkg/e"
	"github.com/DRSN-tech/search-assistant/pkg/logger"
)

// Причины, с которыми логируются переходы и отказы поиска.
const (
	causeUnplannable        = "unplannable"
	causePlannerUnavailable = "planner_unavailable"
	causeQueryExecution     = "query_execution"
	causeQueryRejected      = "query_rejected"
	causeSchemaUnavailable  = "schema_unavailable"
	causeStoreUnavailable   = "store_unavailable"
	causeEmbeddingFailure   = "embedding_failure"
	causeVectorSearch       = "vector_search"
	causeStagingFailed      = "staging_failed"
)

// SearchOptions — параметры гибридного поиска.
type SearchOptions struct {
	TopK              int
	TextMetric        domain.Metric
	ImageMetric       domain.Metric
	StoreQueryTimeout time.Duration
	QueryGuard        bool
	PriceFilter       bool
}

// SearchUseCase реализует гибридный поиск: точный запрос через планировщик,
// при неудаче поиск по сходству эмбеддингов.
type SearchUseCase struct {
	store         CatalogStore
	planner       QueryPlanner
	textEmbedder  TextEmbedder
	imageEmbedder ImageEmbedder
	imagesInfra   ImagesInfra // nil: изображение отправляется провайдеру inline
	imageIndex    ImageIndex  // nil: поиск изображений идёт через pgvector
	opts          SearchOptions
	logger        logger.Logger
}

func NewSearchUC(
	store CatalogStore,
	planner QueryPlanner,
	textEmbedder TextEmbedder,
	imageEmbedder ImageEmbedder,
	imagesInfra ImagesInfra,
	imageIndex ImageIndex,
	opts SearchOptions,
	logger logger.Logger,
) *SearchUseCase {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.TextMetric == "" {
		opts.TextMetric = domain.MetricCosine
	}
	if opts.ImageMetric == "" {
		opts.ImageMetric = domain.MetricL2
	}

	return &SearchUseCase{
		store:         store,
		planner:       planner,
		textEmbedder:  textEmbedder,
		imageEmbedder: imageEmbedder,
		imagesInfra:   imagesInfra,
		imageIndex:    imageIndex,
		opts:          opts,
		logger:        logger,
	}
}

// SearchByText ищет товары по тексту. Сначала пробует точный запрос, затем поиск по сходству.
// Сессия каталога освобождается ровно один раз на любом пути выхода.
func (s *SearchUseCase) SearchByText(ctx context.Context, req *TextSearchReq) (*TextSearchRes, error) {
	const op = "SearchUseCase.SearchByText"

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, e.Wrap(op, e.ErrEmptyQuery)
	}
	log := s.logger.With("query", query)

	sess, err := s.acquire(ctx)
	if err != nil {
		log.With("cause", causeStoreUnavailable).Errorf(err, "%s: failed to acquire catalog session", op)
		return nil, e.Wrap(op, retrievalError(e.ErrStoreUnavailable, err))
	}
	defer sess.Release()

	if rows, ok := s.tryExact(ctx, sess, query, log); ok {
		log.Infof("%s: exact match, %d rows", op, len(rows))
		return NewTextSearchRes(ModeExact, rows), nil
	}

	data, err := s.vectorFallback(ctx, sess, query, log)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	log.Infof("%s: similarity fallback, %d candidates", op, len(data))
	return NewTextSearchRes(ModeSimilar, data), nil
}

// tryExact строит и выполняет точный запрос. false означает переход к поиску по сходству.
func (s *SearchUseCase) tryExact(ctx context.Context, sess CatalogSession, query string, log logger.Logger) ([]ProductView, bool) {
	const op = "SearchUseCase.tryExact"

	schemaCtx, cancelSchema := s.storeCtx(ctx)
	schema, err := sess.Schema(schemaCtx)
	cancelSchema()
	if err != nil {
		log.With("cause", causeSchemaUnavailable).Warnf("%s: schema read failed: %v", op, err)
		return nil, false
	}

	plan, err := s.planner.Plan(ctx, query, schema)
	if err != nil {
		log.With("cause", causePlannerUnavailable).Warnf("%s: %v", op, e.Join(e.ErrPlannerUnavailable, err))
		return nil, false
	}

	var sql string
	switch p := plan.(type) {
	case domain.Unplannable:
		log.With("cause", causeUnplannable).Infof("%s: planner declined: %s", op, p.Reason)
		return nil, false
	case domain.StructuredQuery:
		sql = p.SQL
	default:
		log.With("cause", causeUnplannable).Warnf("%s: unexpected planner result %T", op, plan)
		return nil, false
	}

	if s.opts.QueryGuard {
		if err := GuardQuery(sql); err != nil {
			log.With("cause", causeQueryRejected, "sql", sql).Warnf("%s: %v", op, err)
			return nil, false
		}
	}

	execCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	rows, err := sess.Execute(execCtx, sql)
	if err != nil {
		log.With("cause", causeQueryExecution, "sql", sql).Warnf("%s: %v", op, e.Join(e.ErrQueryExecution, err))
		return nil, false
	}

	if len(rows) == 0 {
		log.Debugf("%s: generated query returned no rows", op)
		return nil, false
	}

	return rows, true
}

// vectorFallback ищет ближайшие по текстовому эмбеддингу товары.
func (s *SearchUseCase) vectorFallback(ctx context.Context, sess CatalogSession, query string, log logger.Logger) ([]ProductView, error) {
	const op = "SearchUseCase.vectorFallback"

	text := query
	var priceRange *domain.PriceRange
	if s.opts.PriceFilter {
		priceRange, text = ParsePriceRange(query)
		if text == "" {
			text = query
		}
	}

	vector, err := s.textEmbedder.EmbedOne(ctx, text)
	if err != nil {
		log.With("cause", causeEmbeddingFailure).Errorf(err, "%s: text embedding failed", op)
		return nil, retrievalError(e.ErrEmbeddingFailure, err)
	}

	nearestCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	candidates, err := sess.Nearest(nearestCtx, domain.VectorQuery{
		Column:     domain.TextEmbeddingColumn,
		Vector:     vector,
		Metric:     s.opts.TextMetric,
		K:          s.opts.TopK,
		PriceRange: priceRange,
	})
	if err != nil {
		log.With("cause", causeVectorSearch).Errorf(err, "%s: text similarity search failed", op)
		return nil, retrievalError(e.ErrVectorSearch, err)
	}

	return Views(RerankByDistance(candidates)), nil
}

// SearchByImage ищет товары, похожие на загруженное изображение.
func (s *SearchUseCase) SearchByImage(ctx context.Context, req *ImageSearchReq) (*ImageSearchRes, error) {
	const op = "SearchUseCase.SearchByImage"

	if err := ValidateImage(&req.Image); err != nil {
		return nil, e.Wrap(op, err)
	}
	log := s.logger.With("image", req.Image.Name, "size", req.Image.Size)

	source := domain.ImageSource{Data: req.Image.Data, MimeType: req.Image.MimeType}
	if s.imagesInfra != nil {
		staged, err := s.imagesInfra.Stage(ctx, &req.Image)
		if err != nil {
			log.With("cause", causeStagingFailed).Warnf("%s: staging failed, sending image inline: %v", op, err)
		} else {
			defer s.imagesInfra.CleanupImages([]string{staged.Key})
			source = domain.ImageSource{URL: staged.URL, MimeType: req.Image.MimeType}
		}
	}

	vector, err := s.imageEmbedder.EmbedImage(ctx, source)
	if err != nil {
		log.With("cause", causeEmbeddingFailure).Errorf(err, "%s: image embedding failed", op)
		return nil, e.Wrap(op, retrievalError(e.ErrEmbeddingFailure, err))
	}

	sess, err := s.acquire(ctx)
	if err != nil {
		log.With("cause", causeStoreUnavailable).Errorf(err, "%s: failed to acquire catalog session", op)
		return nil, e.Wrap(op, retrievalError(e.ErrStoreUnavailable, err))
	}
	defer sess.Release()

	var candidates []domain.ScoredProduct
	if s.imageIndex != nil {
		candidates, err = s.searchImageIndex(ctx, sess, vector)
	} else {
		nearestCtx, cancel := s.storeCtx(ctx)
		candidates, err = sess.Nearest(nearestCtx, domain.VectorQuery{
			Column: domain.ImageEmbeddingColumn,
			Vector: vector,
			Metric: s.opts.ImageMetric,
			K:      s.opts.TopK,
		})
		cancel()
	}
	if err != nil {
		log.With("cause", causeVectorSearch).Errorf(err, "%s: image similarity search failed", op)
		return nil, e.Wrap(op, retrievalError(e.ErrVectorSearch, err))
	}

	data := Views(RerankByDistance(candidates))
	log.Infof("%s: %d similar products", op, len(data))

	return NewImageSearchRes(data), nil
}

// searchImageIndex ищет в Qdrant и дочитывает товары из каталога в порядке индекса.
// Точки без товара в каталоге пропускаются.
func (s *SearchUseCase) searchImageIndex(ctx context.Context, sess CatalogSession, vector domain.Vector) ([]domain.ScoredProduct, error) {
	points, err := s.imageIndex.Search(ctx, vector, s.opts.TopK)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(points))
	for _, p := range points {
		ids = append(ids, p.ProductID)
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	products, err := sess.ProductsByIDs(storeCtx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]domain.ScoredProduct, 0, len(points))
	for _, p := range points {
		view, ok := products[p.ProductID]
		if !ok {
			s.logger.Warnf("image index point %d has no catalog product", p.ProductID)
			continue
		}
		distance := p.Distance
		result = append(result, domain.ScoredProduct{ProductID: p.ProductID, Product: view, Distance: &distance})
	}

	return result, nil
}

// storeCtx ограничивает один запрос к каталогу таймаутом StoreQueryTimeout.
func (s *SearchUseCase) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.StoreQueryTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, s.opts.StoreQueryTimeout)
}

// acquire берёт сессию каталога, ожидая свободное соединение не дольше StoreQueryTimeout.
func (s *SearchUseCase) acquire(ctx context.Context) (CatalogSession, error) {
	acquireCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	return s.store.Acquire(acquireCtx)
}

// retrievalError помечает терминальную ошибку поиска общей и конкретной категорией.
func retrievalError(sentinel, cause error) error {
	return fmt.Errorf("%w: %w: %w", e.ErrRetrievalFailed, sentinel, cause)
}

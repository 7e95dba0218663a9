package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DRSN-tech/search-assistant/internal/domain"
	"github.com/DRSN-tech/search-assistant/pkg/e"
	"github.com/DRSN-tech/search-assistant/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const textDim = 1024

type searchFixture struct {
	sess          *fakeSession
	store         *fakeStore
	planner       *fakePlanner
	textEmbedder  *fakeTextEmbedder
	imageEmbedder *fakeImageEmbedder
	images        *fakeImagesInfra
	index         *fakeImageIndex
	opts          SearchOptions
}

func newSearchFixture() *searchFixture {
	sess := &fakeSession{
		schema: domain.SchemaSnapshot{{Table: "products", Column: "title", DataType: "text"}},
	}
	return &searchFixture{
		sess:          sess,
		store:         &fakeStore{sess: sess},
		planner:       &fakePlanner{},
		textEmbedder:  &fakeTextEmbedder{dim: textDim},
		imageEmbedder: &fakeImageEmbedder{dim: 512},
		opts: SearchOptions{
			TopK:              5,
			TextMetric:        domain.MetricCosine,
			ImageMetric:       domain.MetricL2,
			StoreQueryTimeout: time.Second,
			QueryGuard:        true,
		},
	}
}

func (f *searchFixture) uc() *SearchUseCase {
	var images ImagesInfra
	if f.images != nil {
		images = f.images
	}
	var index ImageIndex
	if f.index != nil {
		index = f.index
	}
	return NewSearchUC(f.store, f.planner, f.textEmbedder, f.imageEmbedder, images, index, f.opts, logger.NewNop())
}

func TestSearchByText_ExactMatch(t *testing.T) {
	f := newSearchFixture()
	f.planner.result = domain.StructuredQuery{SQL: "SELECT * FROM products WHERE title ILIKE '%umbrella%' LIMIT 5"}
	f.sess.rows = []ProductView{view("Umbrella")}

	res, err := f.uc().SearchByText(context.Background(), &TextSearchReq{Query: "give me umbrella"})
	require.NoError(t, err)

	assert.Equal(t, ModeExact, res.Mode)
	assert.Equal(t, MessageExact, res.Message)
	assert.Equal(t, []ProductView{view("Umbrella")}, res.Data)
	assert.Empty(t, f.textEmbedder.texts, "exact match must not embed the query")
	assert.Empty(t, f.sess.queries)
	assert.Equal(t, 1, f.sess.releases)
}

func TestSearchByText_EmptyExactResultFallsBack(t *testing.T) {
	f := newSearchFixture()
	f.planner.result = domain.StructuredQuery{SQL: "SELECT * FROM products WHERE title ILIKE '%zzz%'"}
	f.sess.nearest = []domain.ScoredProduct{scored(1, "Raincoat", 0.2), scored(2, "Umbrella", 0.1)}

	res, err := f.uc().SearchByText(context.Background(), &TextSearchReq{Query: "zzz"})
	require.NoError(t, err)

	assert.Equal(t, ModeSimilar, res.Mode)
	assert.Equal(t, MessageSimilar, res.Message)
	require.Len(t, f.sess.execSQL, 1)
	require.Len(t, f.sess.queries, 1)
	assert.Equal(t, domain.TextEmbeddingColumn, f.sess.queries[0].Column)
	assert.Equal(t, domain.MetricCosine, f.sess.queries[0].Metric)
	assert.Equal(t, 5, f.sess.queries[0].K)
	assert.Equal(t, []string{"zzz"}, f.textEmbedder.texts)
	assert.Equal(t, 1, f.sess.releases)
}

func TestSearchByText_UnplannableSkipsExecution(t *testing.T) {
	f := newSearchFixture()
	f.planner.result = domain.Unplannable{Reason: "not a product query"}
	f.sess.nearest = []domain.ScoredProduct{scored(1, "Hat", 0.3)}

	res, err := f.uc().SearchByText(context.Background(), &TextSearchReq{Query: "hello there"})
	require.NoError(t, err)

	assert.Empty(t, f.sess.execSQL)
	assert.Equal(t, ModeSimilar, res.Mode)
	assert.Equal(t, []ProductView{view("Hat")}, res.Data)
	assert.Equal(t, 1, f.sess.releases)
}

func TestSearchByText_PlannerOutageFallsBack(t *testing.T) {
	f := newSearchFixture()
	f.planner.err = errors.New("dial tcp: connection refused")

	res, err := f.uc().SearchByText(context.Background(), &TextSearchReq{Query: "umbrella"})
	require.NoError(t, err)

	assert.Equal(t, ModeSimilar, res.Mode)
	assert.Empty(t, f.sess.execSQL)
	assert.Equal(t, 1, f.sess.releases)
}

func TestSearchByText_ExecutionErrorFallsBack(t *testing.T) {
	f := newSearchFixture()
	f.planner.result = domain.StructuredQuery{SQL: "SELECT * FROM nonexistent"}
	f.sess.execErr = errors.New(`relation "nonexistent" does not exist`)
	f.sess.nearest = []domain.ScoredProduct{scored(4, "Shoes", 0.5)}

	res, err := f.uc().SearchByText(context.Background(), &TextSearchReq{Query: "shoes"})
	require.NoError(t, err)

	assert.Equal(t, ModeSimilar, res.Mode)
	assert.Equal(t, []ProductView{view("Shoes")}, res.Data)
	assert.Equal(t, 1, f.sess.releases)
}

func TestSearchByText_GuardRejectsWrites(t *testing.T) {
	f := newSearchFixture()
	f.planner.result = domain.StructuredQuery{SQL: "DELETE FROM products"}

	res, err := f.uc().SearchByText(context.Background(), &TextSearchReq{Query: "delete everything"})
	require.NoError(t, err)

	assert.Empty(t, f.sess.execSQL)
	assert.Equal(t, ModeSimilar, res.Mode)
}

func TestSearchByText_GuardDisabledExecutesAsIs(t *testing.T) {
	f := newSearchFixture()
	f.opts.QueryGuard = false
	f.planner.result = domain.StructuredQuery{SQL: "SELECT 1; SELECT 2"}
	f.sess.rows = []ProductView{view("One")}

	res, err := f.uc().SearchByText(context.Background(), &TextSearchReq{Query: "one"})
	require.NoError(t, err)

	assert.Equal(t, []string{"SELECT 1; SELECT 2"}, f.sess.execSQL)
	assert.Equal(t, ModeExact, res.Mode)
}

func TestSearchByText_SimilarResultsAscendingDistance(t *testing.T) {
	f := newSearchFixture()
	f.planner.result = domain.Unplannable{Reason: "x"}
	f.sess.nearest = []domain.ScoredProduct{
		scored(1, "c", 0.9),
		scored(2, "a", 0.1),
		scored(3, "b", 0.5),
		scored(4, "b2", 0.5),
	}

	res, err := f.uc().SearchByText(context.Background(), &TextSearchReq{Query: "x"})
	require.NoError(t, err)

	titles := make([]string, 0, len(res.Data))
	for _, v := range res.Data {
		titles = append(titles, v.Title)
	}
	assert.Equal(t, []string{"a", "b", "b2", "c"}, titles)
}

func TestSearchByText_EmptyCatalogIsValid(t *testing.T) {
	f := newSearchFixture()
	f.planner.result = domain.Unplannable{Reason: "x"}

	res, err := f.uc().SearchByText(context.Background(), &TextSearchReq{Query: "anything"})
	require.NoError(t, err)

	assert.Equal(t, ModeSimilar, res.Mode)
	assert.NotNil(t, res.Data)
	assert.Empty(t, res.Data)
}

func TestSearchByText_TerminalFailures(t *testing.T) {
	cases := []struct {
		name     string
		setup    func(f *searchFixture)
		sentinel error
		released int
	}{
		{
			name:     "store unavailable",
			setup:    func(f *searchFixture) { f.store.err = errors.New("pool closed") },
			sentinel: e.ErrStoreUnavailable,
			released: 0,
		},
		{
			name: "embedding failure",
			setup: func(f *searchFixture) {
				f.planner.result = domain.Unplannable{Reason: "x"}
				f.textEmbedder.err = errors.New("provider down")
			},
			sentinel: e.ErrEmbeddingFailure,
			released: 1,
		},
		{
			name: "vector search failure",
			setup: func(f *searchFixture) {
				f.planner.result = domain.StructuredQuery{SQL: "SELECT * FROM products"}
				f.sess.nearestErr = errors.New("different vector dimensions")
			},
			sentinel: e.ErrVectorSearch,
			released: 1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newSearchFixture()
			tc.setup(f)

			res, err := f.uc().SearchByText(context.Background(), &TextSearchReq{Query: "umbrella"})
			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, e.ErrRetrievalFailed)
			assert.ErrorIs(t, err, tc.sentinel)
			assert.Equal(t, tc.released, f.sess.releases)
		})
	}
}

func TestSearchByText_EmptyQuery(t *testing.T) {
	f := newSearchFixture()

	_, err := f.uc().SearchByText(context.Background(), &TextSearchReq{Query: "   "})
	assert.ErrorIs(t, err, e.ErrEmptyQuery)
	assert.Zero(t, f.store.acquired)
}

func TestSearchByText_PriceFilter(t *testing.T) {
	f := newSearchFixture()
	f.opts.PriceFilter = true
	f.planner.result = domain.Unplannable{Reason: "x"}

	_, err := f.uc().SearchByText(context.Background(), &TextSearchReq{Query: "shoes less than 50 dollars"})
	require.NoError(t, err)

	require.Len(t, f.sess.queries, 1)
	pr := f.sess.queries[0].PriceRange
	require.NotNil(t, pr)
	require.NotNil(t, pr.Max)
	assert.Equal(t, "50", pr.Max.String())
	assert.Nil(t, pr.Min)
	assert.Equal(t, []string{"shoes"}, f.textEmbedder.texts)
}

func TestSearchByImage_StagesAndCleansUp(t *testing.T) {
	f := newSearchFixture()
	f.images = &fakeImagesInfra{}
	f.sess.nearest = []domain.ScoredProduct{scored(2, "far", 2.5), scored(1, "near", 0.5)}

	res, err := f.uc().SearchByImage(context.Background(), &ImageSearchReq{
		Image: ProductImage{Data: pngImage(t), MimeType: "image/png", Name: "q.png"},
	})
	require.NoError(t, err)

	require.Len(t, f.imageEmbedder.sources, 1)
	assert.Equal(t, "http://minio/presigned/tmp/q.png", f.imageEmbedder.sources[0].URL)
	assert.Equal(t, [][]string{{"tmp/q.png"}}, f.images.cleaned)

	require.Len(t, f.sess.queries, 1)
	assert.Equal(t, domain.ImageEmbeddingColumn, f.sess.queries[0].Column)
	assert.Equal(t, domain.MetricL2, f.sess.queries[0].Metric)
	assert.Equal(t, []ProductView{view("near"), view("far")}, res.SimilarImages)
	assert.Equal(t, 1, f.sess.releases)
}

func TestSearchByImage_CleansUpOnEmbeddingFailure(t *testing.T) {
	f := newSearchFixture()
	f.images = &fakeImagesInfra{}
	f.imageEmbedder.err = errors.New("timeout")

	_, err := f.uc().SearchByImage(context.Background(), &ImageSearchReq{
		Image: ProductImage{Data: pngImage(t), MimeType: "image/png", Name: "q.png"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, e.ErrRetrievalFailed)
	assert.ErrorIs(t, err, e.ErrEmbeddingFailure)
	assert.Equal(t, [][]string{{"tmp/q.png"}}, f.images.cleaned)
	assert.Zero(t, f.store.acquired)
}

func TestSearchByImage_InlineWithoutStager(t *testing.T) {
	f := newSearchFixture()
	data := pngImage(t)

	_, err := f.uc().SearchByImage(context.Background(), &ImageSearchReq{
		Image: ProductImage{Data: data, MimeType: "image/png", Name: "q.png"},
	})
	require.NoError(t, err)

	require.Len(t, f.imageEmbedder.sources, 1)
	assert.Empty(t, f.imageEmbedder.sources[0].URL)
	assert.Equal(t, data, f.imageEmbedder.sources[0].Data)
}

func TestSearchByImage_StagingFailureFallsBackToInline(t *testing.T) {
	f := newSearchFixture()
	f.images = &fakeImagesInfra{stageErr: errors.New("minio down")}

	_, err := f.uc().SearchByImage(context.Background(), &ImageSearchReq{
		Image: ProductImage{Data: pngImage(t), MimeType: "image/png", Name: "q.png"},
	})
	require.NoError(t, err)

	require.Len(t, f.imageEmbedder.sources, 1)
	assert.NotEmpty(t, f.imageEmbedder.sources[0].Data)
	assert.Empty(t, f.images.cleaned)
}

func TestSearchByImage_InvalidImage(t *testing.T) {
	f := newSearchFixture()

	_, err := f.uc().SearchByImage(context.Background(), &ImageSearchReq{
		Image: ProductImage{Data: []byte("not an image"), MimeType: "image/png", Name: "q.png"},
	})
	assert.ErrorIs(t, err, e.ErrInvalidImage)
	assert.Empty(t, f.imageEmbedder.sources)
}

func TestSearchByImage_ImageIndexHydratesInIndexOrder(t *testing.T) {
	f := newSearchFixture()
	f.index = &fakeImageIndex{points: []domain.ScoredPoint{
		{ProductID: 7, Distance: 0.1},
		{ProductID: 99, Distance: 0.2},
		{ProductID: 3, Distance: 0.4},
	}}
	f.sess.byID = map[int64]ProductView{3: view("three"), 7: view("seven")}

	res, err := f.uc().SearchByImage(context.Background(), &ImageSearchReq{
		Image: ProductImage{Data: pngImage(t), MimeType: "image/png", Name: "q.png"},
	})
	require.NoError(t, err)

	assert.Equal(t, []ProductView{view("seven"), view("three")}, res.SimilarImages)
	assert.Empty(t, f.sess.queries)
	assert.Equal(t, 1, f.sess.releases)
}

func TestSearchByText_StoreTimeoutBoundsNearest(t *testing.T) {
	f := newSearchFixture()
	f.opts.StoreQueryTimeout = 50 * time.Millisecond
	f.planner.result = domain.Unplannable{Reason: "gibberish"}
	f.sess.blockNearest = true

	start := time.Now()
	res, err := f.uc().SearchByText(context.Background(), &TextSearchReq{Query: "qwxyz123"})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, err, e.ErrRetrievalFailed)
	assert.ErrorIs(t, err, e.ErrVectorSearch)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, f.sess.releases)
}

func TestSearchByText_SchemaTimeoutFallsBack(t *testing.T) {
	f := newSearchFixture()
	f.opts.StoreQueryTimeout = 50 * time.Millisecond
	f.sess.blockSchema = true
	f.sess.nearest = []domain.ScoredProduct{scored(1, "umbrella", 0.1)}

	res, err := f.uc().SearchByText(context.Background(), &TextSearchReq{Query: "umbrella"})
	require.NoError(t, err)
	assert.Equal(t, []ProductView{view("umbrella")}, res.Data)
	assert.Zero(t, f.planner.calls)
}

func TestSearchByImage_StoreTimeoutBoundsNearest(t *testing.T) {
	f := newSearchFixture()
	f.opts.StoreQueryTimeout = 50 * time.Millisecond
	f.sess.blockNearest = true

	start := time.Now()
	_, err := f.uc().SearchByImage(context.Background(), &ImageSearchReq{
		Image: ProductImage{Data: pngImage(t), MimeType: "image/png", Name: "q.png"},
	})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, err, e.ErrVectorSearch)
	assert.Equal(t, 1, f.sess.releases)
}

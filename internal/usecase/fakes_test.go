package usecase

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/DRSN-tech/search-assistant/internal/domain"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	mu sync.Mutex

	schema      domain.SchemaSnapshot
	schemaErr   error
	blockSchema bool

	rows    []ProductView
	execErr error
	execSQL []string

	nearest      []domain.ScoredProduct
	nearestErr   error
	blockNearest bool
	queries      []domain.VectorQuery

	byID map[int64]ProductView

	releases int
}

func (s *fakeSession) Schema(ctx context.Context) (domain.SchemaSnapshot, error) {
	if s.blockSchema {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.schema, s.schemaErr
}

func (s *fakeSession) Execute(ctx context.Context, query string) ([]ProductView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execSQL = append(s.execSQL, query)
	return s.rows, s.execErr
}

func (s *fakeSession) Nearest(ctx context.Context, q domain.VectorQuery) ([]domain.ScoredProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	if s.blockNearest {
		s.mu.Unlock()
		<-ctx.Done()
		s.mu.Lock()
		return nil, ctx.Err()
	}
	out := make([]domain.ScoredProduct, len(s.nearest))
	copy(out, s.nearest)
	return out, s.nearestErr
}

func (s *fakeSession) ProductsByIDs(ctx context.Context, ids []int64) (map[int64]ProductView, error) {
	res := make(map[int64]ProductView)
	for _, id := range ids {
		if v, ok := s.byID[id]; ok {
			res[id] = v
		}
	}
	return res, nil
}

func (s *fakeSession) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases++
}

type fakeStore struct {
	sess     *fakeSession
	err      error
	acquired int
}

func (f *fakeStore) Acquire(ctx context.Context) (CatalogSession, error) {
	f.acquired++
	if f.err != nil {
		return nil, f.err
	}
	return f.sess, nil
}

type fakePlanner struct {
	result domain.PlannerResult
	err    error
	calls  int
}

func (f *fakePlanner) Plan(ctx context.Context, q string, schema domain.SchemaSnapshot) (domain.PlannerResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeTextEmbedder struct {
	dim   int
	err   error
	texts []string
}

func (f *fakeTextEmbedder) EmbedOne(ctx context.Context, text string) (domain.Vector, error) {
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return make(domain.Vector, f.dim), nil
}

func (f *fakeTextEmbedder) EmbedMany(ctx context.Context, texts []string) ([]domain.Vector, error) {
	f.texts = append(f.texts, texts...)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Vector, len(texts))
	for i := range out {
		out[i] = make(domain.Vector, f.dim)
	}
	return out, nil
}

func (f *fakeTextEmbedder) Dimension() int { return f.dim }

type fakeImageEmbedder struct {
	dim     int
	err     error
	sources []domain.ImageSource
}

func (f *fakeImageEmbedder) EmbedImage(ctx context.Context, src domain.ImageSource) (domain.Vector, error) {
	f.sources = append(f.sources, src)
	if f.err != nil {
		return nil, f.err
	}
	return make(domain.Vector, f.dim), nil
}

func (f *fakeImageEmbedder) Dimension() int { return f.dim }

type fakeImagesInfra struct {
	mu        sync.Mutex
	stageErr  error
	uploadErr error
	staged    []string
	cleaned   [][]string
	uploaded  int
}

func (f *fakeImagesInfra) UploadImages(ctx context.Context, req *UploadImagesReq) (*UploadImagesRes, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	keys := make([]string, len(req.Images))
	urls := make([]string, len(req.Images))
	for i := range req.Images {
		keys[i] = req.Name + "/" + req.Images[i].Name
		urls[i] = "http://minio/products/" + keys[i]
	}
	f.uploaded += len(req.Images)
	return NewUploadImagesRes(keys, urls), nil
}

func (f *fakeImagesInfra) Stage(ctx context.Context, img *ProductImage) (*StagedImage, error) {
	if f.stageErr != nil {
		return nil, f.stageErr
	}
	key := "tmp/" + img.Name
	f.staged = append(f.staged, key)
	return &StagedImage{Key: key, URL: "http://minio/presigned/" + key}, nil
}

func (f *fakeImagesInfra) CleanupImages(keys []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleaned = append(f.cleaned, keys)
}

type fakeImageIndex struct {
	points   []domain.ScoredPoint
	err      error
	upserted []*domain.QdrantPoint
}

func (f *fakeImageIndex) Upsert(ctx context.Context, point *domain.QdrantPoint) error {
	f.upserted = append(f.upserted, point)
	return f.err
}

func (f *fakeImageIndex) Search(ctx context.Context, vector domain.Vector, k int) ([]domain.ScoredPoint, error) {
	return f.points, f.err
}

func ptr[T any](v T) *T { return &v }

func view(title string) ProductView {
	return ProductView{Title: title, Description: title + " description", Price: ptr("10.00")}
}

func scored(id int64, title string, distance float64) domain.ScoredProduct {
	return domain.ScoredProduct{ProductID: id, Product: view(title), Distance: ptr(distance)}
}

func pngImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

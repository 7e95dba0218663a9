package embedder

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/DRSN-tech/search-assistant/internal/cfg"
	"github.com/DRSN-tech/search-assistant/internal/domain"
	"github.com/DRSN-tech/search-assistant/internal/infrastructure"
	"github.com/DRSN-tech/search-assistant/pkg/e"
	"github.com/DRSN-tech/search-assistant/pkg/logger"
	"github.com/DRSN-tech/search-assistant/pkg/retry"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// Provider вызывает OpenAI-совместимый embeddings API (по умолчанию Jina jina-clip-v2).
// Один экземпляр обслуживает одну модель и одну размерность.
type Provider struct {
	client      openai.Client
	model       string
	dim         int
	objectInput bool
	policy      retry.Policy
	logger      logger.Logger
}

// textInput и imageInput — формат входа Jina для мультимодальных моделей.
type textInput struct {
	Text string `json:"text"`
}

type imageInput struct {
	Image string `json:"image"`
}

func newProvider(cfg *cfg.EmbeddingCfg, model string, dim int, logger logger.Logger, opts ...option.RequestOption) *Provider {
	clientOpts := append([]option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(0),
	}, opts...)

	return &Provider{
		client:      openai.NewClient(clientOpts...),
		model:       model,
		dim:         dim,
		objectInput: cfg.ObjectInput,
		policy:      retry.NewPolicy(cfg.MaxRetries, cfg.Timeout),
		logger:      logger,
	}
}

// NewTextProvider создаёт провайдер текстовых эмбеддингов.
func NewTextProvider(cfg *cfg.EmbeddingCfg, logger logger.Logger, opts ...option.RequestOption) *Provider {
	return newProvider(cfg, cfg.TextModel, cfg.TextDimensions, logger, opts...)
}

// NewImageProvider создаёт провайдер эмбеддингов изображений.
func NewImageProvider(cfg *cfg.EmbeddingCfg, logger logger.Logger, opts ...option.RequestOption) *Provider {
	return newProvider(cfg, cfg.ImageModel, cfg.ImageDimensions, logger, opts...)
}

func (p *Provider) Dimension() int { return p.dim }

// Model возвращает имя модели, используется в ключах кэша.
func (p *Provider) Model() string { return p.model }

// Normalize приводит текст к виду, в котором он отправляется провайдеру.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// EmbedOne возвращает эмбеддинг одного текста.
func (p *Provider) EmbedOne(ctx context.Context, text string) (domain.Vector, error) {
	vectors, err := p.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

// EmbedMany отправляет все тексты одним запросом и возвращает векторы в порядке входа.
func (p *Provider) EmbedMany(ctx context.Context, texts []string) ([]domain.Vector, error) {
	const op = "Provider.EmbedMany"

	if len(texts) == 0 {
		return nil, nil
	}

	normalized := make([]string, len(texts))
	for i, t := range texts {
		normalized[i] = Normalize(t)
	}

	var extra []option.RequestOption
	if p.objectInput {
		objects := make([]textInput, len(normalized))
		for i, t := range normalized {
			objects[i] = textInput{Text: t}
		}
		extra = append(extra, option.WithJSONSet("input", objects))
	}

	vectors, err := p.embed(ctx, op, normalized, extra...)
	if err != nil {
		return nil, err
	}

	return vectors, nil
}

// EmbedImage возвращает эмбеддинг изображения по URL или по байтам (data URI).
func (p *Provider) EmbedImage(ctx context.Context, src domain.ImageSource) (domain.Vector, error) {
	const op = "Provider.EmbedImage"

	ref := src.URL
	if ref == "" {
		if len(src.Data) == 0 {
			return nil, e.Wrap(op, e.Join(e.ErrEmbeddingFailure, e.ErrNoImages))
		}
		ref = DataURI(src.MimeType, src.Data)
	}

	vectors, err := p.embed(ctx, op, []string{ref}, option.WithJSONSet("input", []imageInput{{Image: ref}}))
	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

// embed выполняет запрос с повторами и проверяет каждый вектор.
func (p *Provider) embed(ctx context.Context, op string, input []string, extra ...option.RequestOption) ([]domain.Vector, error) {
	params := openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: input},
		Model:          openai.EmbeddingModel(p.model),
		Dimensions:     openai.Int(int64(p.dim)),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}

	var resp *openai.CreateEmbeddingResponse
	err := retry.Do(ctx, p.policy, p.logger, op, func(ctx context.Context) error {
		var err error
		resp, err = p.client.Embeddings.New(ctx, params, extra...)
		if err != nil {
			return infrastructure.ClassifyAPIError(err)
		}
		return nil
	})
	if err != nil {
		return nil, e.Wrap(op, e.Join(e.ErrEmbeddingFailure, err))
	}

	vectors, err := p.collect(resp, len(input))
	if err != nil {
		return nil, e.Wrap(op, e.Join(e.ErrEmbeddingFailure, err))
	}

	return vectors, nil
}

// collect раскладывает ответ по index и проверяет количество, размерность и конечность.
func (p *Provider) collect(resp *openai.CreateEmbeddingResponse, want int) ([]domain.Vector, error) {
	if resp == nil || len(resp.Data) != want {
		got := 0
		if resp != nil {
			got = len(resp.Data)
		}
		return nil, fmt.Errorf("%w: got %d, want %d", e.ErrEmbeddingCountInvalid, got, want)
	}

	vectors := make([]domain.Vector, want)
	for _, item := range resp.Data {
		idx := int(item.Index)
		if idx < 0 || idx >= want || vectors[idx] != nil {
			return nil, fmt.Errorf("%w: unexpected index %d", e.ErrEmbeddingCountInvalid, item.Index)
		}

		v, err := domain.VectorFromFloat64(item.Embedding)
		if err != nil {
			return nil, err
		}
		if err := v.Validate(p.dim); err != nil {
			return nil, err
		}

		vectors[idx] = v
	}

	return vectors, nil
}

// DataURI кодирует байты изображения в data URI.
func DataURI(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

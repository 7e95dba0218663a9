package llm

import (
	"context"
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

const (
	errorMarker      = "ERROR:"
	noResponseReason = "no response generated"
	defaultRowLimit  = 5
)

// Planner переводит запрос пользователя в SQL через OpenAI-совместимый chat completions API.
type Planner struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int64
	rowLimit    int
	policy      retry.Policy
	logger      logger.Logger
}

func NewPlanner(cfg *cfg.LLMCfg, logger logger.Logger, opts ...option.RequestOption) *Planner {
	clientOpts := append([]option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(0),
	}, opts...)

	return &Planner{
		client:      openai.NewClient(clientOpts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		rowLimit:    defaultRowLimit,
		policy:      retry.NewPolicy(cfg.MaxRetries, cfg.Timeout),
		logger:      logger,
	}
}

// Plan возвращает StructuredQuery или Unplannable. Ошибка означает, что планировщик недоступен.
func (p *Planner) Plan(ctx context.Context, userQuery string, schema domain.SchemaSnapshot) (domain.PlannerResult, error) {
	const op = "Planner.Plan"

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt(schema, p.rowLimit)),
			openai.UserMessage(userQuery),
		},
		Temperature: openai.Float(p.temperature),
		MaxTokens:   openai.Int(p.maxTokens),
	}

	var content string
	err := retry.Do(ctx, p.policy, p.logger, op, func(ctx context.Context) error {
		resp, err := p.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return infrastructure.ClassifyAPIError(err)
		}

		content = ""
		if len(resp.Choices) > 0 {
			content = resp.Choices[0].Message.Content
		}
		return nil
	})
	if err != nil {
		return nil, e.Wrap(op, e.Join(e.ErrPlannerUnavailable, err))
	}

	result := ParseCompletion(content)
	if sq, ok := result.(domain.StructuredQuery); ok {
		p.logger.Debugf("%s: generated query: %s", op, sq.SQL)
	}

	return result, nil
}

// ParseCompletion разбирает ответ модели. Маркер "ERROR:" (с учётом регистра) превращается
// в Unplannable, обрамление markdown-блоком кода снимается.
func ParseCompletion(content string) domain.PlannerResult {
	text := stripCodeFence(strings.TrimSpace(content))
	if text == "" {
		return domain.Unplannable{Reason: noResponseReason}
	}

	if strings.HasPrefix(text, errorMarker) {
		reason := strings.TrimSpace(text[len(errorMarker):])
		if reason == "" {
			reason = "query cannot be converted to SQL"
		}
		return domain.Unplannable{Reason: reason}
	}

	return domain.StructuredQuery{SQL: text}
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		// первая строка — язык блока (sql, postgresql)
		if lang := strings.TrimSpace(text[:nl]); !strings.ContainsAny(lang, " \t") {
			text = text[nl+1:]
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	return strings.TrimSpace(text)
}

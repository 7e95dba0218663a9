package e

import "fmt"

var (
	// Внутренние ошибки с транзакциями
	ErrTransactionNotFound = fmt.Errorf("transaction not found")

	// Ошибки поискового ядра
	ErrRetrievalFailed    = fmt.Errorf("retrieval failed")
	ErrEmbeddingFailure   = fmt.Errorf("embedding failure")
	ErrPlannerUnavailable = fmt.Errorf("query planner unavailable")
	ErrQueryExecution     = fmt.Errorf("query execution failed")
	ErrQueryRejected      = fmt.Errorf("generated query rejected")
	ErrStoreUnavailable   = fmt.Errorf("catalog store unavailable")
	ErrVectorSearch       = fmt.Errorf("vector search failed")

	// Внутренние ошибки с векторами
	ErrEmptyVectors          = fmt.Errorf("empty vectors")
	ErrVectorDimension       = fmt.Errorf("vector dimension mismatch")
	ErrVectorNotFinite       = fmt.Errorf("vector contains non-finite value")
	ErrEmbeddingCountInvalid = fmt.Errorf("embedding count mismatch")
	ErrSessionReleased       = fmt.Errorf("catalog session already released")

	// 400 Bad Request
	ErrStatusBadRequest     = fmt.Errorf("bad request")
	ErrEmptyQuery           = fmt.Errorf("search query is required")
	ErrExpectedMultipart    = fmt.Errorf("expected multipart/form-data")
	ErrMissingFields        = fmt.Errorf("missing required fields")
	ErrInvalidPrice         = fmt.Errorf("invalid price")
	ErrPricePrecision       = fmt.Errorf("price must have at most 2 decimal places")
	ErrProductTitleRequired = fmt.Errorf("product title is required")
	ErrNoImages             = fmt.Errorf("no images provided")
	ErrTooManyImages        = fmt.Errorf("too many images")
	ErrFileTooLarge         = fmt.Errorf("file too large")
	ErrUnsupportedMediaType = fmt.Errorf("unsupported media type")
	ErrInvalidImage         = fmt.Errorf("image cannot be decoded")
	ErrIncorrectEnvVariable = fmt.Errorf("incorrect environment variable")

	// 404 / 409
	ErrProductNotFound = fmt.Errorf("product not found")
	ErrDuplicateEvent  = fmt.Errorf("outbox event already exists")

	// 500 / 503
	ErrInternalServerError = fmt.Errorf("internal server error")
	ErrNoResultsFound      = fmt.Errorf("no results found")
)

// Wrap оборачивает ошибку
func Wrap(msg string, err error) error {
	return fmt.Errorf("%s: %w", msg, err)
}

// Join оборачивает ошибку причиной и категорией так, чтобы errors.Is срабатывал для обеих.
func Join(category error, cause error) error {
	return fmt.Errorf("%w: %w", category, cause)
}

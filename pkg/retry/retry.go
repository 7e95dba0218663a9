package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DRSN-tech/search-assistant/pkg/logger"
)

// Policy описывает ограниченную политику повторов вокруг одного внешнего вызова.
type Policy struct {
	MaxRetries int           // количество повторов после первой попытки
	Timeout    time.Duration // таймаут одной попытки, 0 — без таймаута
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Jitter     float64
}

// NewPolicy создаёт политику с задержками по умолчанию (200ms..5s, джиттер 50%).
func NewPolicy(maxRetries int, timeout time.Duration) Policy {
	const (
		defaultBaseDelay = 200 * time.Millisecond
		defaultMaxDelay  = 5 * time.Second
	)

	if maxRetries < 0 {
		maxRetries = 0
	}

	return Policy{
		MaxRetries: maxRetries,
		Timeout:    timeout,
		BaseDelay:  defaultBaseDelay,
		MaxDelay:   defaultMaxDelay,
		Jitter:     DefaultJitter,
	}
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent помечает ошибку как неповторяемую: Do вернёт её сразу.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent сообщает, помечена ли ошибка как неповторяемая.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do выполняет fn с таймаутом на каждую попытку и повторяет её при временных ошибках.
// Таймаут попытки считается временной ошибкой; отмена родительского контекста — нет.
func Do(ctx context.Context, p Policy, log logger.Logger, name string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = runAttempt(ctx, p.Timeout, fn)
		if lastErr == nil {
			return nil
		}

		if IsPermanent(lastErr) {
			return lastErr
		}

		if ctx.Err() != nil {
			return lastErr
		}

		if attempt == p.MaxRetries {
			break
		}

		sleep := Jitter(Backoff(p.BaseDelay, p.MaxDelay, attempt), p.Jitter)
		if log != nil {
			log.Warnf("%s failed, retrying in %v (attempt %d/%d): %v", name, sleep, attempt+1, p.MaxRetries, lastErr)
		}

		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return lastErr
		}
	}

	return fmt.Errorf("%s: all %d attempts failed: %w", name, p.MaxRetries+1, lastErr)
}

func runAttempt(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return fn(attemptCtx)
}

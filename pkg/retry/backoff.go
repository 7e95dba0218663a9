// Package retry реализует ограниченные повторы внешних вызовов с экспоненциальной задержкой и джиттером.
package retry

import (
	"math/rand"
	"sync"
	"time"
)

// DefaultJitter — стандартный коэффициент джиттера (50%)
const DefaultJitter = 0.5

var (
	globalRand = rand.New(rand.NewSource(time.Now().UnixNano()))
	randMutex  sync.Mutex
)

// Jitter возвращает продолжительность с применённым джиттером.
// Результат находится в диапазоне [d, d*(1+jitterFactor)].
func Jitter(d time.Duration, jitterFactor float64) time.Duration {
	randMutex.Lock()
	j := globalRand.Float64() * jitterFactor * float64(d)
	randMutex.Unlock()
	return d + time.Duration(j)
}

// JitterWithRand — то же, что Jitter, но с заданным генератором (детерминированно в тестах).
func JitterWithRand(d time.Duration, jitterFactor float64, rng *rand.Rand) time.Duration {
	return d + time.Duration(rng.Float64()*jitterFactor*float64(d))
}

// Backoff вычисляет задержку перед попыткой attempt (нумерация с нуля) без джиттера:
// base * 2^attempt, но не больше max.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	backoff := base
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff > max {
			return max
		}
	}
	if backoff > max {
		return max
	}
	return backoff
}

// ExponentialBackoff — Backoff с джиттером.
func ExponentialBackoff(base, max time.Duration, attempt int, jitterFactor float64) time.Duration {
	return Jitter(Backoff(base, max, attempt), jitterFactor)
}

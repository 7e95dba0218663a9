package domain

import (
	"fmt"
	"math"

	"github.com/DRSN-tech/search-assistant/pkg/e"
)

// Vector — эмбеддинг фиксированной размерности.
type Vector []float32

// Validate проверяет размерность и конечность всех компонент.
func (v Vector) Validate(dim int) error {
	if len(v) == 0 {
		return e.ErrEmptyVectors
	}
	if len(v) != dim {
		return fmt.Errorf("%w: got %d, want %d", e.ErrVectorDimension, len(v), dim)
	}
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: index %d", e.ErrVectorNotFinite, i)
		}
	}

	return nil
}

// VectorFromFloat64 переводит ответ провайдера в float32, отклоняя значения вне диапазона float32.
func VectorFromFloat64(src []float64) (Vector, error) {
	v := make(Vector, len(src))
	for i, x := range src {
		if math.IsNaN(x) || math.IsInf(x, 0) || math.Abs(x) > math.MaxFloat32 {
			return nil, fmt.Errorf("%w: index %d", e.ErrVectorNotFinite, i)
		}
		v[i] = float32(x)
	}

	return v, nil
}

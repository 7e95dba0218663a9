package usecase

import (
	"slices"

	"github.com/DRSN-tech/search-assistant/internal/domain"
)

// RerankByDistance упорядочивает кандидатов по возрастанию расстояния.
// Сортировка стабильная, кандидаты без расстояния идут последними.
func RerankByDistance(candidates []domain.ScoredProduct) []domain.ScoredProduct {
	slices.SortStableFunc(candidates, func(a, b domain.ScoredProduct) int {
		switch {
		case a.Distance == nil && b.Distance == nil:
			return 0
		case a.Distance == nil:
			return 1
		case b.Distance == nil:
			return -1
		case *a.Distance < *b.Distance:
			return -1
		case *a.Distance > *b.Distance:
			return 1
		}
		return 0
	})

	return candidates
}

// Views возвращает проекции кандидатов в текущем порядке.
func Views(candidates []domain.ScoredProduct) []ProductView {
	views := make([]ProductView, 0, len(candidates))
	for _, c := range candidates {
		views = append(views, c.Product)
	}

	return views
}

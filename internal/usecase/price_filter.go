package usecase

import (
	"regexp"
	"strings"

	"github.com/DRSN-tech/search-assistant/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	maxPricePattern = regexp.MustCompile(`(?i)\b(?:less than|cheaper than|under|below)\s+\$?(\d+(?:\.\d+)?)\s*(?:dollars?|usd|\$)?`)
	minPricePattern = regexp.MustCompile(`(?i)\b(?:more than|greater than|over|above)\s+\$?(\d+(?:\.\d+)?)\s*(?:dollars?|usd|\$)?`)
	spaces          = regexp.MustCompile(`\s+`)
)

// ParsePriceRange вытаскивает из запроса границы цены ("less than 50 dollars", "more than 20")
// и возвращает запрос без этих фраз. nil, если фраз нет.
func ParsePriceRange(query string) (*domain.PriceRange, string) {
	var r domain.PriceRange
	rest := query

	if m := maxPricePattern.FindStringSubmatch(rest); m != nil {
		if v, err := decimal.NewFromString(m[1]); err == nil {
			r.Max = &v
			rest = strings.Replace(rest, m[0], " ", 1)
		}
	}
	if m := minPricePattern.FindStringSubmatch(rest); m != nil {
		if v, err := decimal.NewFromString(m[1]); err == nil {
			r.Min = &v
			rest = strings.Replace(rest, m[0], " ", 1)
		}
	}

	if r.IsEmpty() {
		return nil, query
	}

	return &r, strings.TrimSpace(spaces.ReplaceAllString(rest, " "))
}

package usecase

import (
	"fmt"
	"strings"

	"github.com/DRSN-tech/search-assistant/pkg/e"
)

// GuardQuery пропускает только одиночный SELECT/WITH без комментариев.
// Один завершающий ';' допускается.
func GuardQuery(query string) error {
	q := strings.TrimSpace(query)
	q = strings.TrimSpace(strings.TrimSuffix(q, ";"))
	if q == "" {
		return fmt.Errorf("%w: empty statement", e.ErrQueryRejected)
	}

	if strings.Contains(q, ";") {
		return fmt.Errorf("%w: multiple statements", e.ErrQueryRejected)
	}
	if strings.Contains(q, "--") || strings.Contains(q, "/*") {
		return fmt.Errorf("%w: comments are not allowed", e.ErrQueryRejected)
	}

	first := strings.ToUpper(strings.Fields(q)[0])
	if first != "SELECT" && first != "WITH" {
		return fmt.Errorf("%w: statement %s is not allowed", e.ErrQueryRejected, first)
	}

	return nil
}

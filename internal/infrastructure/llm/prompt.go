package llm

import (
	"fmt"

	"github.com/DRSN-tech/search-assistant/internal/domain"
)

const systemPromptTemplate = `You are a SQL generator for a product catalog. Convert the user's request into a PostgreSQL query.
Database schema:
%s

Rules:
- ONLY output valid SQL. No explanations, no markdown, no code blocks.
- If the user asks "show me X" or "give me X", use: SELECT * FROM products WHERE title ILIKE '%%X%%' OR description ILIKE '%%X%%'
- Fix wrong or misspelled words first, then build the query.
- Example: "give me umbrella" -> SELECT * FROM products WHERE title ILIKE '%%umbrella%%' OR description ILIKE '%%umbrella%%' LIMIT %d
- Show only %d results.
- Use LIKE or ILIKE for text matching.
- If the input cannot be converted to SQL, respond with "ERROR: " followed by the reason.`

// SystemPrompt собирает системное сообщение со схемой каталога.
func SystemPrompt(schema domain.SchemaSnapshot, limit int) string {
	return fmt.Sprintf(systemPromptTemplate, schema.String(), limit, limit)
}

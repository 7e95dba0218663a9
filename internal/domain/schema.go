package domain

import "strings"

// SchemaColumn описывает одну колонку каталога.
type SchemaColumn struct {
	Table    string
	Column   string
	DataType string
}

// SchemaSnapshot — снимок схемы public, читается заново на каждый запрос планировщика.
type SchemaSnapshot []SchemaColumn

// String форматирует схему строками "table - column: type".
func (s SchemaSnapshot) String() string {
	var b strings.Builder
	for i, c := range s {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(c.Table)
		b.WriteString(" - ")
		b.WriteString(c.Column)
		b.WriteString(": ")
		b.WriteString(c.DataType)
	}

	return b.String()
}

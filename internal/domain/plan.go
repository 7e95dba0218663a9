package domain

// PlannerResult — результат планировщика: либо StructuredQuery, либо Unplannable.
type PlannerResult interface {
	plannerResult()
}

// StructuredQuery — исполняемый запрос, сгенерированный моделью.
type StructuredQuery struct {
	SQL string
}

// Unplannable — модель отказалась переводить запрос в SQL.
type Unplannable struct {
	Reason string
}

func (StructuredQuery) plannerResult() {}
func (Unplannable) plannerResult()     {}

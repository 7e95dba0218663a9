package converter

// EmbeddingRedisModel — запись эмбеддинга в кэше.
type EmbeddingRedisModel struct {
	Dim    int       `json:"dim"`
	Vector []float32 `json:"vector"`
}

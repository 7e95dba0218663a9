package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DRSN-tech/search-assistant/pkg/e"
	"github.com/DRSN-tech/search-assistant/pkg/logger"
	"github.com/jimlawless/whereami"
	"github.com/joho/godotenv"
)

type Config struct {
	LogMode   string
	Http      *HTTPConfig
	Grpc      *GRPCConfig
	Db        *PGDBCfg
	LLM       *LLMCfg
	Embedding *EmbeddingCfg
	Search    *SearchCfg
	Minio     *MinIOCfg
	Qdrant    *QdrantCfg
	Redis     *RedisCfg
	Kafka     *KafkaCfg
}

type HTTPConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type GRPCConfig struct {
	Port        string
	NetworkMode string
}

type PGDBCfg struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

// LLMCfg — настройки OpenAI-совместимого chat completions API (по умолчанию Groq).
type LLMCfg struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int64
	Timeout     time.Duration
	MaxRetries  int
}

// EmbeddingCfg — настройки OpenAI-совместимого embeddings API (по умолчанию Jina).
type EmbeddingCfg struct {
	BaseURL         string
	APIKey          string
	TextModel       string
	TextDimensions  int
	ImageModel      string
	ImageDimensions int
	ObjectInput     bool // отправлять вход как {"text": ...}/{"image": ...} (формат Jina)
	Timeout         time.Duration
	MaxRetries      int
	CacheTTL        time.Duration
}

// SearchCfg — параметры гибридного поиска.
type SearchCfg struct {
	TopK               int
	TextMetric         string
	ImageMetric        string
	StoreQueryTimeout  time.Duration
	QueryGuard         bool
	PriceFilterEnabled bool
	ImageIndexBackend  string // pgvector | qdrant
	MaxImageSize       int64
}

type MinIOCfg struct {
	MinioEndpoint     string // Адрес конечной точки Minio
	BucketName        string // Название конкретного бакета в Minio
	MinioRootUser     string // Имя пользователя для доступа к Minio
	MinioRootPassword string // Пароль для доступа к Minio
	MinioUseSSL       bool
	UploadImagesLimit int           // Лимит на макс кол-во одновременно загружаемых в S3 фото
	PresignTTL        time.Duration // Время жизни presigned-ссылки на временное изображение
	PublicBaseURL     string        // Базовый URL для ссылок на изображения товаров
}

type QdrantCfg struct {
	Port                 int
	Host                 string
	ApiKey               string
	QdrantCollectionName string // имя коллекции в Qdrant
	UseTLS               bool
	VectorSize           uint64
}

type RedisCfg struct {
	Addr        string
	Password    string
	User        string
	DB          int
	MaxRetries  int
	DialTimeout time.Duration
	Timeout     time.Duration
}

type KafkaCfg struct {
	Topic             string
	Brokers           []string
	NetworkMode       string
	Partitions        int
	ReplicationFactor int
}

// Enabled сообщает, настроен ли MinIO.
func (c *MinIOCfg) Enabled() bool { return c != nil && c.MinioEndpoint != "" && c.BucketName != "" }

// Enabled сообщает, настроен ли Redis.
func (c *RedisCfg) Enabled() bool { return c != nil && c.Addr != "" }

// Enabled сообщает, настроена ли Kafka.
func (c *KafkaCfg) Enabled() bool { return c != nil && len(c.Brokers) > 0 && c.Topic != "" }

// Enabled сообщает, настроен ли Qdrant.
func (c *QdrantCfg) Enabled() bool { return c != nil && c.Host != "" }

// Load безопасно загружает конфигурацию и возвращает ошибку в случае неудачи.
// Перед чтением переменных окружения подхватывается .env, если он есть.
func Load(log logger.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("failed to read .env: %v", err)
	}

	db, err := loadPGDBCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	http, err := loadHTTPConfig(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	llm, err := loadLLMCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	embedding, err := loadEmbeddingCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	search, err := loadSearchCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	minio, err := loadMinIOCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	qdrant, err := loadQdrantCfg(log, embedding.ImageDimensions)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	redis, err := loadRedisCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	kafka, err := loadKafkaCfg()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	if search.ImageIndexBackend == ImageIndexQdrant && !qdrant.Enabled() {
		return nil, fmt.Errorf("IMAGE_INDEX_BACKEND=qdrant requires QDRANT_HOST")
	}

	return &Config{
		LogMode:   getEnvOrDefault("LOG_MODE", "dev"),
		Http:      http,
		Grpc:      loadGRPCConfig(),
		Db:        db,
		LLM:       llm,
		Embedding: embedding,
		Search:    search,
		Minio:     minio,
		Qdrant:    qdrant,
		Redis:     redis,
		Kafka:     kafka,
	}, nil
}

// MaxImageSizeLimit — верхняя граница MAX_IMAGE_SIZE, совпадает с usecase.MaxImageSize.
const MaxImageSizeLimit = 15 << 20

const (
	ImageIndexPgvector = "pgvector"
	ImageIndexQdrant   = "qdrant"
)

func loadHTTPConfig(log logger.Logger) (*HTTPConfig, error) {
	const (
		defaultPort         = "8080"
		defaultReadTimeout  = 15 * time.Second
		defaultWriteTimeout = 60 * time.Second
		defaultIdleTimeout  = 60 * time.Second
	)

	readTimeout, err := parseDurationEnv("HTTP_READ_TIMEOUT", defaultReadTimeout)
	if err != nil {
		log.Errorf(err, "invalid HTTP_READ_TIMEOUT")
		return nil, err
	}

	writeTimeout, err := parseDurationEnv("HTTP_WRITE_TIMEOUT", defaultWriteTimeout)
	if err != nil {
		log.Errorf(err, "invalid HTTP_WRITE_TIMEOUT")
		return nil, err
	}

	idleTimeout, err := parseDurationEnv("KEEP_ALIVE", defaultIdleTimeout)
	if err != nil {
		log.Errorf(err, "invalid KEEP_ALIVE")
		return nil, err
	}

	return &HTTPConfig{
		Port:         getEnvOrDefault("HTTP_PORT", defaultPort),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}, nil
}

func loadGRPCConfig() *GRPCConfig {
	const (
		defaultPort        = "8091"
		defaultNetworkMode = "tcp"
	)

	return &GRPCConfig{
		Port:        getEnvOrDefault("GRPC_PORT", defaultPort),
		NetworkMode: getEnvOrDefault("GRPC_NETWORK_MODE", defaultNetworkMode),
	}
}

func loadPGDBCfg(log logger.Logger) (*PGDBCfg, error) {
	const (
		defaultHost     = "localhost"
		defaultPort     = "5432"
		defaultSSLMode  = "disable"
		defaultMaxConns = 10
	)

	user := getEnv("POSTGRES_USER")
	if user == "" {
		err := fmt.Errorf("POSTGRES_USER is required")
		log.Errorf(err, "missing POSTGRES_USER")
		return nil, err
	}

	password := getEnv("POSTGRES_PASSWORD")
	if password == "" {
		err := fmt.Errorf("POSTGRES_PASSWORD is required")
		log.Errorf(err, "missing POSTGRES_PASSWORD")
		return nil, err
	}

	dbName := getEnv("POSTGRES_DB")
	if dbName == "" {
		err := fmt.Errorf("POSTGRES_DB is required")
		log.Errorf(err, "missing POSTGRES_DB")
		return nil, err
	}

	maxConns, err := parseIntEnv("POSTGRES_MAX_CONNS", defaultMaxConns)
	if err != nil {
		log.Errorf(err, "invalid POSTGRES_MAX_CONNS")
		return nil, err
	}

	return &PGDBCfg{
		Host:     getEnvOrDefault("POSTGRES_HOST", defaultHost),
		Port:     getEnvOrDefault("POSTGRES_PORT", defaultPort),
		User:     user,
		Password: password,
		DBName:   dbName,
		SSLMode:  getEnvOrDefault("SSL_MODE", defaultSSLMode),
		MaxConns: int32(maxConns),
	}, nil
}

func loadLLMCfg(log logger.Logger) (*LLMCfg, error) {
	const (
		defaultBaseURL     = "https://api.groq.com/openai/v1"
		defaultModel       = "llama-3.3-70b-versatile"
		defaultTemperature = 0.1
		defaultMaxTokens   = 500
		defaultTimeout     = 20 * time.Second
		defaultMaxRetries  = 2
	)

	apiKey := getEnv("LLM_API_KEY")
	if apiKey == "" {
		err := fmt.Errorf("LLM_API_KEY is required")
		log.Errorf(err, "missing LLM_API_KEY")
		return nil, err
	}

	temperature, err := parseFloatEnv("LLM_TEMPERATURE", defaultTemperature)
	if err != nil {
		log.Errorf(err, "invalid LLM_TEMPERATURE")
		return nil, err
	}

	maxTokens, err := parseIntEnv("LLM_MAX_TOKENS", defaultMaxTokens)
	if err != nil {
		log.Errorf(err, "invalid LLM_MAX_TOKENS")
		return nil, err
	}

	timeout, err := parseDurationEnv("LLM_TIMEOUT", defaultTimeout)
	if err != nil {
		log.Errorf(err, "invalid LLM_TIMEOUT")
		return nil, err
	}

	maxRetries, err := parseIntEnv("LLM_MAX_RETRIES", defaultMaxRetries)
	if err != nil {
		log.Errorf(err, "invalid LLM_MAX_RETRIES")
		return nil, err
	}

	return &LLMCfg{
		BaseURL:     getEnvOrDefault("LLM_BASE_URL", defaultBaseURL),
		APIKey:      apiKey,
		Model:       getEnvOrDefault("LLM_MODEL", defaultModel),
		Temperature: temperature,
		MaxTokens:   int64(maxTokens),
		Timeout:     timeout,
		MaxRetries:  maxRetries,
	}, nil
}

func loadEmbeddingCfg(log logger.Logger) (*EmbeddingCfg, error) {
	const (
		defaultBaseURL         = "https://api.jina.ai/v1"
		defaultModel           = "jina-clip-v2"
		defaultTextDimensions  = 1024
		defaultImageDimensions = 512
		defaultObjectInput     = true
		defaultTimeout         = 15 * time.Second
		defaultMaxRetries      = 2
		defaultCacheTTL        = 24 * time.Hour
	)

	apiKey := getEnv("EMBEDDING_API_KEY")
	if apiKey == "" {
		err := fmt.Errorf("EMBEDDING_API_KEY is required")
		log.Errorf(err, "missing EMBEDDING_API_KEY")
		return nil, err
	}

	textDims, err := parseIntEnv("TEXT_EMBEDDING_DIMENSIONS", defaultTextDimensions)
	if err != nil || textDims <= 0 {
		err = fmt.Errorf("invalid TEXT_EMBEDDING_DIMENSIONS: %w", e.ErrIncorrectEnvVariable)
		log.Errorf(err, "invalid TEXT_EMBEDDING_DIMENSIONS")
		return nil, err
	}

	imageDims, err := parseIntEnv("IMAGE_EMBEDDING_DIMENSIONS", defaultImageDimensions)
	if err != nil || imageDims <= 0 {
		err = fmt.Errorf("invalid IMAGE_EMBEDDING_DIMENSIONS: %w", e.ErrIncorrectEnvVariable)
		log.Errorf(err, "invalid IMAGE_EMBEDDING_DIMENSIONS")
		return nil, err
	}

	objectInput, err := strconv.ParseBool(getEnvOrDefault("EMBEDDING_OBJECT_INPUT", strconv.FormatBool(defaultObjectInput)))
	if err != nil {
		log.Errorf(err, "invalid EMBEDDING_OBJECT_INPUT")
		return nil, err
	}

	timeout, err := parseDurationEnv("EMBEDDING_TIMEOUT", defaultTimeout)
	if err != nil {
		log.Errorf(err, "invalid EMBEDDING_TIMEOUT")
		return nil, err
	}

	maxRetries, err := parseIntEnv("EMBEDDING_MAX_RETRIES", defaultMaxRetries)
	if err != nil {
		log.Errorf(err, "invalid EMBEDDING_MAX_RETRIES")
		return nil, err
	}

	cacheTTL, err := parseDurationEnv("EMBEDDING_CACHE_TTL", defaultCacheTTL)
	if err != nil {
		log.Errorf(err, "invalid EMBEDDING_CACHE_TTL")
		return nil, err
	}

	return &EmbeddingCfg{
		BaseURL:         getEnvOrDefault("EMBEDDING_BASE_URL", defaultBaseURL),
		APIKey:          apiKey,
		TextModel:       getEnvOrDefault("TEXT_EMBEDDING_MODEL", defaultModel),
		TextDimensions:  textDims,
		ImageModel:      getEnvOrDefault("IMAGE_EMBEDDING_MODEL", defaultModel),
		ImageDimensions: imageDims,
		ObjectInput:     objectInput,
		Timeout:         timeout,
		MaxRetries:      maxRetries,
		CacheTTL:        cacheTTL,
	}, nil
}

func loadSearchCfg(log logger.Logger) (*SearchCfg, error) {
	const (
		defaultTopK              = 5
		defaultTextMetric        = "cosine"
		defaultImageMetric       = "l2"
		defaultStoreQueryTimeout = 5 * time.Second
		defaultQueryGuard        = true
		defaultPriceFilter       = false
		defaultMaxImageSize      = MaxImageSizeLimit
	)

	topK, err := parseIntEnv("SEARCH_TOP_K", defaultTopK)
	if err != nil || topK <= 0 {
		err = fmt.Errorf("invalid SEARCH_TOP_K: %w", e.ErrIncorrectEnvVariable)
		log.Errorf(err, "invalid SEARCH_TOP_K")
		return nil, err
	}

	storeTimeout, err := parseDurationEnv("STORE_QUERY_TIMEOUT", defaultStoreQueryTimeout)
	if err != nil {
		log.Errorf(err, "invalid STORE_QUERY_TIMEOUT")
		return nil, err
	}

	guard, err := strconv.ParseBool(getEnvOrDefault("PLANNER_QUERY_GUARD", strconv.FormatBool(defaultQueryGuard)))
	if err != nil {
		log.Errorf(err, "invalid PLANNER_QUERY_GUARD")
		return nil, err
	}

	priceFilter, err := strconv.ParseBool(getEnvOrDefault("PRICE_FILTER_ENABLED", strconv.FormatBool(defaultPriceFilter)))
	if err != nil {
		log.Errorf(err, "invalid PRICE_FILTER_ENABLED")
		return nil, err
	}

	maxImageSize, err := parseIntEnv("MAX_IMAGE_SIZE", defaultMaxImageSize)
	if err != nil || maxImageSize <= 0 || maxImageSize > MaxImageSizeLimit {
		err = fmt.Errorf("MAX_IMAGE_SIZE must be in (0, %d]: %w", MaxImageSizeLimit, e.ErrIncorrectEnvVariable)
		log.Errorf(err, "invalid MAX_IMAGE_SIZE")
		return nil, err
	}

	backend := strings.ToLower(getEnvOrDefault("IMAGE_INDEX_BACKEND", ImageIndexPgvector))
	if backend != ImageIndexPgvector && backend != ImageIndexQdrant {
		err := fmt.Errorf("unknown IMAGE_INDEX_BACKEND %q: %w", backend, e.ErrIncorrectEnvVariable)
		log.Errorf(err, "invalid IMAGE_INDEX_BACKEND")
		return nil, err
	}

	return &SearchCfg{
		TopK:               topK,
		TextMetric:         strings.ToLower(getEnvOrDefault("TEXT_SEARCH_METRIC", defaultTextMetric)),
		ImageMetric:        strings.ToLower(getEnvOrDefault("IMAGE_SEARCH_METRIC", defaultImageMetric)),
		StoreQueryTimeout:  storeTimeout,
		QueryGuard:         guard,
		PriceFilterEnabled: priceFilter,
		ImageIndexBackend:  backend,
		MaxImageSize:       int64(maxImageSize),
	}, nil
}

func loadMinIOCfg(log logger.Logger) (*MinIOCfg, error) {
	const (
		defaultUseSSL            = false
		defaultUploadImagesLimit = 10
		defaultPresignTTL        = 5 * time.Minute
	)

	useSSL, err := strconv.ParseBool(getEnvOrDefault("MINIO_USE_SSL", strconv.FormatBool(defaultUseSSL)))
	if err != nil {
		log.Errorf(err, "invalid MINIO_USE_SSL")
		return nil, err
	}

	presignTTL, err := parseDurationEnv("PRESIGN_TTL", defaultPresignTTL)
	if err != nil {
		log.Errorf(err, "invalid PRESIGN_TTL")
		return nil, err
	}

	return &MinIOCfg{
		MinioEndpoint:     getEnv("MINIO_ENDPOINT"),
		BucketName:        getEnv("BUCKET_NAME"),
		MinioRootUser:     getEnv("MINIO_ROOT_USER"),
		MinioRootPassword: getEnv("MINIO_ROOT_PASSWORD"),
		MinioUseSSL:       useSSL,
		UploadImagesLimit: defaultUploadImagesLimit,
		PresignTTL:        presignTTL,
		PublicBaseURL:     strings.TrimRight(getEnv("MINIO_PUBLIC_BASE_URL"), "/"),
	}, nil
}

func loadQdrantCfg(log logger.Logger, imageDimensions int) (*QdrantCfg, error) {
	const (
		defaultQdrantGRPCPort = "6334"
		defaultUseTLS         = false
		defaultCollection     = "product_images"
	)

	port, err := strconv.Atoi(getEnvOrDefault("QDRANT_GRPC_PORT", defaultQdrantGRPCPort))
	if err != nil {
		log.Errorf(err, "invalid QDRANT_GRPC_PORT")
		return nil, err
	}

	useTLS, err := strconv.ParseBool(getEnvOrDefault("QDRANT_USE_TLS", strconv.FormatBool(defaultUseTLS)))
	if err != nil {
		log.Errorf(err, "invalid QDRANT_USE_TLS")
		return nil, err
	}

	return &QdrantCfg{
		Host:                 getEnv("QDRANT_HOST"),
		Port:                 port,
		ApiKey:               getEnv("QDRANT__SERVICE__API_KEY"),
		QdrantCollectionName: getEnvOrDefault("COLLECTION_NAME", defaultCollection),
		UseTLS:               useTLS,
		VectorSize:           uint64(imageDimensions),
	}, nil
}

func loadRedisCfg(log logger.Logger) (*RedisCfg, error) {
	const (
		defaultDB           = 0
		defaultMaxRetries   = 3
		defaultDialTimeout  = 5 * time.Second
		defaultReadTimeout  = 3 * time.Second
		defaultWriteTimeout = 3 * time.Second
	)

	db, err := parseIntEnv("REDIS_DB_ID", defaultDB)
	if err != nil {
		log.Errorf(err, "invalid REDIS_DB_ID")
		return nil, err
	}

	maxRetries, err := parseIntEnv("MAX_RETRIES", defaultMaxRetries)
	if err != nil {
		log.Errorf(err, "invalid MAX_RETRIES")
		return nil, err
	}

	dialTimeout, err := parseDurationEnv("DIAL_TIMEOUT", defaultDialTimeout)
	if err != nil {
		log.Errorf(err, "invalid DIAL_TIMEOUT")
		return nil, err
	}

	readTimeout, err := parseDurationEnv("READ_TIMEOUT", defaultReadTimeout)
	if err != nil {
		log.Errorf(err, "invalid READ_TIMEOUT")
		return nil, err
	}

	writeTimeout, err := parseDurationEnv("WRITE_TIMEOUT", defaultWriteTimeout)
	if err != nil {
		log.Errorf(err, "invalid WRITE_TIMEOUT")
		return nil, err
	}

	timeout := readTimeout
	if writeTimeout > timeout {
		timeout = writeTimeout
	}

	return &RedisCfg{
		Addr:        getEnv("REDIS_ADDR"),
		Password:    getEnv("REDIS_PASSWORD"),
		User:        getEnv("REDIS_USER"),
		DB:          db,
		MaxRetries:  maxRetries,
		DialTimeout: dialTimeout,
		Timeout:     timeout,
	}, nil
}

func loadKafkaCfg() (*KafkaCfg, error) {
	const (
		defaultPartitions        = 3
		defaultReplicationFactor = 1
		defaultNetworkMode       = "tcp"
		defaultTopic             = "product-events"
	)

	var brokers []string
	if brokerStr := getEnv("KAFKA_BROKERS"); brokerStr != "" {
		for _, b := range strings.Split(brokerStr, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	partitions, err := parseIntEnv("KAFKA_PARTITIONS", defaultPartitions)
	if err != nil {
		return nil, e.Wrap("KAFKA_PARTITIONS", err)
	}

	replicationFactor, err := parseIntEnv("REPLICATION_FACTOR", defaultReplicationFactor)
	if err != nil {
		return nil, e.Wrap("REPLICATION_FACTOR", err)
	}

	return &KafkaCfg{
		Brokers:           brokers,
		Topic:             getEnvOrDefault("KAFKA_TOPIC", defaultTopic),
		Partitions:        partitions,
		ReplicationFactor: replicationFactor,
		NetworkMode:       getEnvOrDefault("KAFKA_NETWORK_MODE", defaultNetworkMode),
	}, nil
}

// getEnv возвращает значение переменной окружения.
// Возвращает пустую строку, если переменная не задана.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// parseDurationEnv считывает длительность или возвращает значение по умолчанию.
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	if v := os.Getenv(key); v != "" {
		return time.ParseDuration(v)
	}

	return defaultValue, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}

	intValue, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue, e.ErrIncorrectEnvVariable
	}

	return intValue, nil
}

func parseFloatEnv(key string, defaultValue float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultValue, e.ErrIncorrectEnvVariable
	}

	return f, nil
}

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AppInfo holds basic application metadata.
type AppInfo struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// LoggerConfig controls the log level.
type LoggerConfig struct {
	Level string `yaml:"level"`
}

// GatewayConfig configures the hosted multi-model gateway provider. It speaks
// the OpenAI chat-completion shape with native structured tool calling.
type GatewayConfig struct {
	BaseURL string `yaml:"baseURL"`
	APIKey  string `yaml:"apiKey"`
	Model   string `yaml:"model"`
}

// SelfHostedConfig configures the self-hosted provider (an Ollama server).
// It has no native tool calling; tools are negotiated via a prompt protocol.
type SelfHostedConfig struct {
	BaseURL string `yaml:"baseURL"`
	Model   string `yaml:"model"`
}

// WorkflowConfig configures the workflow-execution gateway, which runs a named
// remote workflow over JSON-RPC instead of a raw completion.
type WorkflowConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"apiKey"`
	Workflow string `yaml:"workflow"`
}

// ProvidersConfig groups the three completion provider variants. The active
// variant for a turn is chosen by the caller through the agent configuration,
// not here.
type ProvidersConfig struct {
	Gateway    GatewayConfig    `yaml:"gateway"`
	SelfHosted SelfHostedConfig `yaml:"selfHosted"`
	Workflow   WorkflowConfig   `yaml:"workflow"`
}

// OpenAIEmbeddingConfig configures the OpenAI embedding backend.
type OpenAIEmbeddingConfig struct {
	BaseURL string `yaml:"baseURL"`
	APIKey  string `yaml:"apiKey"`
	Model   string `yaml:"model"`
}

// GoogleEmbeddingConfig configures the Google embedding backend.
type GoogleEmbeddingConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider  string                `yaml:"provider"` // "openai" or "google"
	BatchSize int                   `yaml:"batchSize"`
	Dimension int                   `yaml:"dimension"`
	RateLimit float64               `yaml:"rateLimit"` // batches per second, 0 disables pacing
	OpenAI    OpenAIEmbeddingConfig `yaml:"openai"`
	Google    GoogleEmbeddingConfig `yaml:"google"`
}

// ChunkerConfig controls the sliding-window chunker.
type ChunkerConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// RetrievalConfig bounds the context assembled per turn.
type RetrievalConfig struct {
	MemoryLimit int `yaml:"memoryLimit"` // combined cap on memory entries
	ChunkLimit  int `yaml:"chunkLimit"`  // cap on document chunks
}

// UncertaintyConfig holds the hedging-phrase heuristic. The phrase list is
// configuration, not code: it is a heuristic and is expected to be tuned.
type UncertaintyConfig struct {
	Enabled bool     `yaml:"enabled"`
	Phrases []string `yaml:"phrases"`
}

// SearchToolConfig configures the web search provider.
type SearchToolConfig struct {
	BaseURL    string `yaml:"baseURL"`
	MaxResults int    `yaml:"maxResults"`
}

// RepositoryToolConfig configures the repository operations tool.
type RepositoryToolConfig struct {
	// AllowedRepos are glob patterns ("org/*") the tool is willing to touch.
	AllowedRepos []string `yaml:"allowedRepos"`
	Token        string   `yaml:"token"`
}

// DeploymentToolConfig configures the deployment operations tool.
type DeploymentToolConfig struct {
	BaseURL string `yaml:"baseURL"`
	Token   string `yaml:"token"`
}

// ToolsConfig groups the tool backends.
type ToolsConfig struct {
	Search     SearchToolConfig     `yaml:"search"`
	Repository RepositoryToolConfig `yaml:"repository"`
	Deployment DeploymentToolConfig `yaml:"deployment"`
}

// MySQLConfig holds the relational store connection settings.
type MySQLConfig struct {
	Address         string `yaml:"address"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	Database        string `yaml:"database"`
	MaxOpenConns    int    `yaml:"maxOpenConns"`
	MaxIdleConns    int    `yaml:"maxIdleConns"`
	ConnMaxLifetime int    `yaml:"connMaxLifetime"` // seconds
}

// MilvusConfig holds the vector store connection settings.
type MilvusConfig struct {
	Address    string `yaml:"address"`
	Collection string `yaml:"collection"`
	Dimension  int    `yaml:"dimension"`
}

// RedisConfig holds the conversation-history cache settings.
type RedisConfig struct {
	Address    string `yaml:"address"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	HistoryCap int    `yaml:"historyCap"` // messages kept per conversation
}

// MinIOConfig holds the upload object-storage settings.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Secure    bool   `yaml:"secure"`
}

// MongoConfig holds the ingestion-report store settings.
type MongoConfig struct {
	Address    string `yaml:"address"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// KafkaConfig holds the bulk-ingestion queue settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"groupID"`
}

// DatabaseConfigs groups every backing store.
type DatabaseConfigs struct {
	MySQL  MySQLConfig  `yaml:"mysql"`
	Milvus MilvusConfig `yaml:"milvus"`
	Redis  RedisConfig  `yaml:"redis"`
	MinIO  MinIOConfig  `yaml:"minio"`
	Mongo  MongoConfig  `yaml:"mongo"`
	Kafka  KafkaConfig  `yaml:"kafka"`
}

// RateConfig is a pair of per-million-token prices.
type RateConfig struct {
	InputPerMillion  float64 `yaml:"inputPerMillion"`
	OutputPerMillion float64 `yaml:"outputPerMillion"`
}

// UsageConfig holds the default rate and per-user overrides.
type UsageConfig struct {
	Default RateConfig            `yaml:"default"`
	Users   map[string]RateConfig `yaml:"users"`
}

// CircuitBreakerConfig controls the breaker on outbound tool HTTP calls.
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"` // e.g. "30s"
}

// MiddlewareConfig groups cross-cutting middleware settings.
type MiddlewareConfig struct {
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// ServerConfig holds the API listen address.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// AgentDefaults selects the provider variant and prompt the HTTP API
// serves turns with.
type AgentDefaults struct {
	Provider     string  `yaml:"provider"` // gateway, selfhosted or workflow
	Model        string  `yaml:"model"`
	SystemPrompt string  `yaml:"systemPrompt"`
	Temperature  float32 `yaml:"temperature"`
}

// AppConfig is the root of the YAML configuration file.
type AppConfig struct {
	App         AppInfo           `yaml:"app"`
	Server      ServerConfig      `yaml:"server"`
	Logger      LoggerConfig      `yaml:"logger"`
	Agent       AgentDefaults     `yaml:"agent"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Uncertainty UncertaintyConfig `yaml:"uncertainty"`
	Tools       ToolsConfig       `yaml:"tools"`
	Databases   DatabaseConfigs   `yaml:"databases"`
	Usage       UsageConfig       `yaml:"usage"`
	Middleware  MiddlewareConfig  `yaml:"middleware"`
}

// LoadConfig reads and parses the YAML configuration file at path.
func LoadConfig(path string) (*AppConfig, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(yamlFile, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Chunker.Size == 0 {
		c.Chunker.Size = 1400
	}
	if c.Chunker.Overlap == 0 {
		c.Chunker.Overlap = 200
	}
	if c.Embedding.BatchSize == 0 {
		c.Embedding.BatchSize = 32
	}
	if c.Retrieval.MemoryLimit == 0 {
		c.Retrieval.MemoryLimit = 40
	}
	if c.Retrieval.ChunkLimit == 0 {
		c.Retrieval.ChunkLimit = 6
	}
	if c.Tools.Search.MaxResults == 0 {
		c.Tools.Search.MaxResults = 5
	}
	if c.Databases.Redis.HistoryCap == 0 {
		c.Databases.Redis.HistoryCap = 50
	}
	if len(c.Uncertainty.Phrases) == 0 {
		c.Uncertainty.Phrases = DefaultUncertaintyPhrases()
	}
	if c.Agent.Provider == "" {
		c.Agent.Provider = "gateway"
	}
	if c.Agent.SystemPrompt == "" {
		c.Agent.SystemPrompt = "You are a helpful personal assistant."
	}
	if c.Agent.Temperature == 0 {
		c.Agent.Temperature = 0.7
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
}

// DefaultUncertaintyPhrases returns the built-in hedging phrases used when the
// config file does not provide its own list.
func DefaultUncertaintyPhrases() []string {
	return []string{
		"i don't know",
		"i do not know",
		"i'm not sure",
		"i am not sure",
		"as of my last update",
		"as of my knowledge cutoff",
		"my training data",
		"i don't have access to real-time",
		"i cannot browse",
		"let me search",
		"i'll look up",
		"i would need to search",
	}
}

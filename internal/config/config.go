package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP listener and its middleware.
type ServerConfig struct {
	Addr                string   `yaml:"addr"`
	CORSOrigins         []string `yaml:"cors_origins"`
	ShutdownTimeoutSecs int      `yaml:"shutdown_timeout_secs"`
	RateRPS             float64  `yaml:"rate_rps"`
	RateBurst           int      `yaml:"rate_burst"`
	MaxUploadMB         int      `yaml:"max_upload_mb"`
	LogLevel            string   `yaml:"log_level"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbedderConfig selects and configures the embedding oracle.
type EmbedderConfig struct {
	Type      string                `yaml:"type"`
	Dimension int                   `yaml:"dimension"`
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// VectorStoreConfig selects and configures the similarity index.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	TopK   int           `yaml:"top_k"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// LLMConfig selects the language generation oracle.
type LLMConfig struct {
	Provider    string `yaml:"provider"`
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// SpeechConfig selects the speech-to-text collaborator.
type SpeechConfig struct {
	Type        string `yaml:"type"`
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Language    string `yaml:"language"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// PaymentConfig configures the eSewa gateway and the payment ledger.
type PaymentConfig struct {
	MerchantCode string `yaml:"merchant_code"`
	PaymentURL   string `yaml:"payment_url"`
	VerifyURL    string `yaml:"verify_url"`
	SuccessURL   string `yaml:"success_url"`
	FailureURL   string `yaml:"failure_url"`
	TimeoutSecs  int    `yaml:"timeout_secs"`
	LedgerPath   string `yaml:"ledger_path"`
}

// DiscountConfig bounds the bargaining state machine.
type DiscountConfig struct {
	Baseline int `yaml:"baseline"`
	Max      int `yaml:"max"`
	Step     int `yaml:"step"`
}

// HistoryConfig controls conversation history persistence and retention.
type HistoryConfig struct {
	Path       string `yaml:"path"`
	MaxTurns   int    `yaml:"max_turns"`
	MaxTokens  int    `yaml:"max_tokens"`
	Autosave   bool   `yaml:"autosave"`
	Tokenizer  string `yaml:"tokenizer"`
	MaxSummary int    `yaml:"max_summary_sentences"`
}

// CatalogConfig points at the catalog image folder.
type CatalogConfig struct {
	ImageDir string `yaml:"image_dir"`
}

// NotifyConfig sizes the per-observer notification queue.
type NotifyConfig struct {
	Buffer int `yaml:"buffer"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	LLM         LLMConfig         `yaml:"llm"`
	Speech      SpeechConfig      `yaml:"speech"`
	Payment     PaymentConfig     `yaml:"payment"`
	Discount    DiscountConfig    `yaml:"discount"`
	History     HistoryConfig     `yaml:"history"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	Notify      NotifyConfig      `yaml:"notify"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/shopassist/config.yaml.
// If neither exists, it writes defaults to ~/.config/shopassist/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv overrides config values from the environment.
// QDRANT_URL switches the similarity index to Qdrant at that URL.
func ApplyEnv(cfg *AppConfig) {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("QDRANT_URL"); v != "" {
		cfg.VectorStore.Type = "qdrant"
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		cfg.VectorStore.Qdrant.URL = v
	}
	if v := os.Getenv("DISCOUNT_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Discount.Max = n
		}
	}
	applyConfigDefaults(cfg)
}

// Validate reports configuration that cannot produce a working service.
func (c *AppConfig) Validate() error {
	if c.LLM.Provider != "mock" && os.Getenv(c.LLM.APIKeyEnv) == "" {
		return fmt.Errorf("%s environment variable not set", c.LLM.APIKeyEnv)
	}
	if c.Discount.Baseline > c.Discount.Max {
		return fmt.Errorf("discount baseline %d exceeds max %d", c.Discount.Baseline, c.Discount.Max)
	}
	if c.VectorStore.Type == "qdrant" && (c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.URL == "") {
		return errors.New("qdrant url missing")
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "shopassist", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Server:      ServerConfig{Addr: ":8000", CORSOrigins: []string{"http://localhost:3000"}},
		Embedder:    EmbedderConfig{Type: "hashing"},
		VectorStore: VectorStoreConfig{Type: "memory"},
		LLM:         LLMConfig{Provider: "gemini"},
		Speech:      SpeechConfig{Type: "google"},
		History:     HistoryConfig{Path: "chat_history.json", Tokenizer: "tiktoken"},
		Catalog:     CatalogConfig{ImageDir: "./images"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Server.ShutdownTimeoutSecs == 0 {
		cfg.Server.ShutdownTimeoutSecs = 15
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = 10
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 32
	}
	if cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 512
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}
	if cfg.VectorStore.TopK == 0 {
		cfg.VectorStore.TopK = 3
	}
	if q := cfg.VectorStore.Qdrant; q != nil {
		if q.Collection == "" {
			q.Collection = "image_vectors"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 15
		}
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "gemini"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "API_KEY"
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 60
	}
	if cfg.Speech.APIKeyEnv == "" {
		cfg.Speech.APIKeyEnv = "API_KEY"
	}
	if cfg.Speech.Language == "" {
		cfg.Speech.Language = "en-US"
	}
	if cfg.Speech.TimeoutSecs == 0 {
		cfg.Speech.TimeoutSecs = 30
	}
	if cfg.Payment.MerchantCode == "" {
		cfg.Payment.MerchantCode = "EPAYTEST"
	}
	if cfg.Payment.PaymentURL == "" {
		cfg.Payment.PaymentURL = "https://uat.esewa.com.np/epay/main"
	}
	if cfg.Payment.VerifyURL == "" {
		cfg.Payment.VerifyURL = "https://uat.esewa.com.np/epay/transrec"
	}
	if cfg.Payment.SuccessURL == "" {
		cfg.Payment.SuccessURL = "http://localhost:3000/payment-success"
	}
	if cfg.Payment.FailureURL == "" {
		cfg.Payment.FailureURL = "http://localhost:3000/payment-failure"
	}
	if cfg.Payment.TimeoutSecs == 0 {
		cfg.Payment.TimeoutSecs = 15
	}
	if cfg.Discount.Baseline == 0 {
		cfg.Discount.Baseline = 10
	}
	if cfg.Discount.Max == 0 {
		cfg.Discount.Max = 20
	}
	if cfg.Discount.Step == 0 {
		cfg.Discount.Step = 2
	}
	if cfg.History.MaxTurns == 0 {
		cfg.History.MaxTurns = 200
	}
	if cfg.History.MaxTokens == 0 {
		cfg.History.MaxTokens = 8000
	}
	if cfg.History.MaxSummary == 0 {
		cfg.History.MaxSummary = 3
	}
	if cfg.Catalog.ImageDir == "" {
		cfg.Catalog.ImageDir = "./images"
	}
	if cfg.Notify.Buffer == 0 {
		cfg.Notify.Buffer = 32
	}
}

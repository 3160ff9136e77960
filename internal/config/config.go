package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Audio storage backends.
const (
	AudioBackendR2     = "r2"
	AudioBackendGCS    = "gcs"
	AudioBackendMemory = "memory"
)

// Language analysis providers.
const (
	LanguageProviderGemini    = "gemini"
	LanguageProviderVertex    = "vertex"
	LanguageProviderOpenAI    = "openai"
	LanguageProviderAzure     = "azure"
	LanguageProviderHeuristic = "heuristic"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Host     string `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	HTTPPort int    `envconfig:"SERVER_HTTP_PORT" default:"8080"`
	GRPCPort int    `envconfig:"SERVER_GRPC_PORT" default:"9090"`

	Environment string `envconfig:"SERVER_ENV" default:"development"`

	// Timeouts
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	IdleTimeout     time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// Auth
	JWTSecret string `envconfig:"JWT_SECRET"`

	// Assessment
	SessionIdleTimeout time.Duration `envconfig:"ASSESSMENT_IDLE_TIMEOUT" default:"10m"`
	SweepInterval      time.Duration `envconfig:"ASSESSMENT_SWEEP_INTERVAL" default:"1m"`
	SubmissionLockTTL  time.Duration `envconfig:"ASSESSMENT_LOCK_TTL" default:"60s"`
	MaxAudioBytes      int64         `envconfig:"ASSESSMENT_MAX_AUDIO_BYTES" default:"20971520"`
	ContentFile        string        `envconfig:"ASSESSMENT_CONTENT_FILE"`

	// Language analysis
	LanguageProvider string        `envconfig:"LANGUAGE_PROVIDER" default:"heuristic"`
	LanguageTimeout  time.Duration `envconfig:"LANGUAGE_TIMEOUT" default:"20s"`

	// Gemini / Vertex AI
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`
	GeminiModel  string `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`
	GCPProjectID string `envconfig:"GCP_PROJECT_ID"`
	GCPLocation  string `envconfig:"GCP_LOCATION" default:"asia-southeast1"`

	// OpenAI
	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel  string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`

	// Azure OpenAI chat
	AzureChatEndpoint   string `envconfig:"AZURE_CHAT_ENDPOINT"`
	AzureChatKey        string `envconfig:"AZURE_CHAT_KEY"`
	AzureChatDeployment string `envconfig:"AZURE_CHAT_DEPLOYMENT"`
	AzureChatAPIVersion string `envconfig:"AZURE_CHAT_API_VERSION" default:"2024-08-01-preview"`

	// Azure AI Speech
	AzureAISpeechKey    string `envconfig:"AZURE_AI_SPEECH_KEY"`
	AzureServiceRegion  string `envconfig:"AZURE_SERVICE_REGION"`
	AzureSpeechLanguage string `envconfig:"AZURE_SPEECH_LANGUAGE" default:"en-US"`

	// Redis
	RedisURL string `envconfig:"REDIS_URL"`

	// Database
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Audio storage
	AudioStorageBackend string `envconfig:"AUDIO_STORAGE_BACKEND" default:"memory"`

	// Cloudflare R2
	CloudflareAccessKeyID string `envconfig:"CLOUDFLARE_ACCESS_KEY_ID"`
	CloudflareSecretKey   string `envconfig:"CLOUDFLARE_SECRET_ACCESS_KEY"`
	CloudflareR2Endpoint  string `envconfig:"CLOUDFLARE_R2_ENDPOINT"`
	CloudflarePublicURL   string `envconfig:"CLOUDFLARE_PUBLIC_URL"`
	CloudflareBucketName  string `envconfig:"CLOUDFLARE_BUCKET_NAME"`

	// Google Cloud Storage
	GCSBucketName string `envconfig:"GCS_BUCKET_NAME"`
	GCSPublicURL  string `envconfig:"GCS_PUBLIC_URL"`

	// Pub/Sub
	PubSubTopic string `envconfig:"PUBSUB_TOPIC"`

	// Metrics
	MetricsEnabled bool `envconfig:"METRICS_ENABLED" default:"true"`

	// CORS
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	CORSAllowedMethods []string `envconfig:"CORS_ALLOWED_METHODS" default:"GET,POST,PUT,DELETE,OPTIONS"`
	CORSAllowedHeaders []string `envconfig:"CORS_ALLOWED_HEADERS" default:"Accept,Authorization,Content-Type,X-Request-ID"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks option combinations that envconfig cannot express.
func (c *Config) Validate() error {
	c.AudioStorageBackend = strings.ToLower(c.AudioStorageBackend)
	c.LanguageProvider = strings.ToLower(c.LanguageProvider)

	switch c.AudioStorageBackend {
	case AudioBackendMemory:
	case AudioBackendR2:
		if c.CloudflareBucketName == "" || c.CloudflareR2Endpoint == "" {
			return fmt.Errorf("r2 audio storage requires CLOUDFLARE_BUCKET_NAME and CLOUDFLARE_R2_ENDPOINT")
		}
	case AudioBackendGCS:
		if c.GCSBucketName == "" {
			return fmt.Errorf("gcs audio storage requires GCS_BUCKET_NAME")
		}
	default:
		return fmt.Errorf("unknown AUDIO_STORAGE_BACKEND %q", c.AudioStorageBackend)
	}

	switch c.LanguageProvider {
	case LanguageProviderHeuristic:
	case LanguageProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("gemini language provider requires GEMINI_API_KEY")
		}
	case LanguageProviderVertex:
		if c.GCPProjectID == "" {
			return fmt.Errorf("vertex language provider requires GCP_PROJECT_ID")
		}
	case LanguageProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("openai language provider requires OPENAI_API_KEY")
		}
	case LanguageProviderAzure:
		if c.AzureChatEndpoint == "" || c.AzureChatKey == "" || c.AzureChatDeployment == "" {
			return fmt.Errorf("azure language provider requires AZURE_CHAT_ENDPOINT, AZURE_CHAT_KEY and AZURE_CHAT_DEPLOYMENT")
		}
	default:
		return fmt.Errorf("unknown LANGUAGE_PROVIDER %q", c.LanguageProvider)
	}

	if c.SessionIdleTimeout <= 0 || c.SweepInterval <= 0 {
		return fmt.Errorf("ASSESSMENT_IDLE_TIMEOUT and ASSESSMENT_SWEEP_INTERVAL must be positive")
	}
	if c.IsProduction() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	return nil
}

// HTTPAddress returns the HTTP server address.
func (c *Config) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// GRPCAddress returns the gRPC server address.
func (c *Config) GRPCAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

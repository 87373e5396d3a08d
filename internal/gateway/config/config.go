package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port      string
	Env       string
	LLM       LLMConfig
	GitHub    GitHubConfig
	Cache     CacheConfig
	Pipeline  PipelineConfig
	Trace     TraceConfig
	RateLimit RateLimitConfig
}

type LLMConfig struct {
	Provider string // "ollama" (default) or "gemini"
	BaseURL  string
	Model    string
	RPS      float64
	Burst    int
}

type GitHubConfig struct {
	APIURL string
	Token  string
}

type CacheConfig struct {
	Size int
}

type PipelineConfig struct {
	PhaseTimeout time.Duration
}

type TraceConfig struct {
	Dir         string
	PostgresDSN string
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	port := flag.String("port", ":8080", "server port")
	flag.Parse()

	if envPort := os.Getenv("PORT"); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			*port = envPort
		} else {
			*port = ":" + envPort
		}
	}

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}

	return &Config{
		Port:      *port,
		Env:       env,
		LLM:       loadLLMConfig(),
		GitHub:    loadGitHubConfig(),
		Cache:     CacheConfig{Size: envInt("METADATA_CACHE_SIZE", 100)},
		Pipeline:  PipelineConfig{PhaseTimeout: envDuration("PHASE_TIMEOUT", 5*time.Minute)},
		Trace:     loadTraceConfig(),
		RateLimit: RateLimitConfig{RequestsPerMinute: envInt("RATE_LIMIT_RPM", 0)},
	}, nil
}

func loadLLMConfig() LLMConfig {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv("LLM_PROVIDER")))
	if provider == "" {
		provider = "ollama"
	}
	model := strings.TrimSpace(os.Getenv("MODEL"))
	if model == "" {
		if provider == "gemini" {
			model = "gemini-2.0-flash"
		} else {
			model = "deepseek-r1"
		}
	}
	return LLMConfig{
		Provider: provider,
		BaseURL: firstNonEmpty(
			strings.TrimSpace(os.Getenv("OLLAMA_BASE_URL")),
			strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
			"http://localhost:11434",
		),
		Model:    model,
		RPS:      envFloat("LLM_RPS", 0),
		Burst:    envInt("LLM_BURST", 0),
	}
}

func loadGitHubConfig() GitHubConfig {
	return GitHubConfig{
		APIURL: firstNonEmpty(strings.TrimSpace(os.Getenv("GITHUB_API_URL")), "https://api.github.com"),
		Token:  strings.TrimSpace(os.Getenv("GITHUB_TOKEN")),
	}
}

func loadTraceConfig() TraceConfig {
	return TraceConfig{
		Dir:         firstNonEmpty(strings.TrimSpace(os.Getenv("RUN_TRACE_DIR")), "tmp/run_logs"),
		PostgresDSN: strings.TrimSpace(os.Getenv("RUN_TRACE_PG_DSN")),
	}
}

func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

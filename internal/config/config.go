package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed tuning.yaml
var tuningYAML []byte

type Config struct {
	Library  LibraryConfig
	Gallery  GalleryConfig
	Face     FaceConfig
	OpenAI   OpenAIConfig
	Gemini   GeminiConfig
	Database DatabaseConfig
	Web      WebConfig
	Tuning   TuningConfig
}

type LibraryConfig struct {
	Root string // filesystem root of the media library
}

type GalleryConfig struct {
	DatabaseURL string // MariaDB/MySQL DSN of an existing gallery database (e.g., gallery:gallery@tcp(mariadb:3306)/gallery)
}

type FaceConfig struct {
	CascadePath string // path to the pigo facefinder cascade file
}

type OpenAIConfig struct {
	Token string
}

type GeminiConfig struct {
	APIKey string
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL; empty selects the in-memory store
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the face HNSW index (optional, if empty index is rebuilt on startup)
}

type WebConfig struct {
	Addr string // listen address for the API server (default :8080)
}

type TuningConfig struct {
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
}

type ThresholdsConfig struct {
	DuplicateSimilarity  float64 `yaml:"duplicate_similarity"`
	SamePersonSimilarity float64 `yaml:"same_person_similarity"`
	FaceMinScore         float64 `yaml:"face_min_score"`
}

type PipelineConfig struct {
	BatchSize    int `yaml:"batch_size"`
	MaxDimension int `yaml:"max_dimension"`
	BatchDelayMs int `yaml:"batch_delay_ms"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a float in (0, 1].
// Returns the default value if the env var is unset, empty, or out of range.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && f <= 1 {
		return f
	}
	return defaultVal
}

// envPositiveFloat reads an environment variable and parses it as a positive
// float. Returns the default value if the env var is unset, empty, or invalid.
func envPositiveFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func Load() *Config {
	var tuning TuningConfig
	if err := yaml.Unmarshal(tuningYAML, &tuning); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded tuning.yaml: " + err.Error())
	}

	tuning.Thresholds.DuplicateSimilarity = envFloat("DUPLICATE_SIMILARITY", tuning.Thresholds.DuplicateSimilarity)
	tuning.Thresholds.SamePersonSimilarity = envFloat("SAME_PERSON_SIMILARITY", tuning.Thresholds.SamePersonSimilarity)
	tuning.Thresholds.FaceMinScore = envPositiveFloat("FACE_MIN_SCORE", tuning.Thresholds.FaceMinScore)
	tuning.Pipeline.BatchSize = envInt("PIPELINE_BATCH_SIZE", tuning.Pipeline.BatchSize)
	tuning.Pipeline.MaxDimension = envInt("PIPELINE_MAX_DIMENSION", tuning.Pipeline.MaxDimension)
	tuning.Pipeline.BatchDelayMs = envInt("PIPELINE_BATCH_DELAY_MS", tuning.Pipeline.BatchDelayMs)

	return &Config{
		Library: LibraryConfig{
			Root: os.Getenv("LIBRARY_ROOT"),
		},
		Gallery: GalleryConfig{
			DatabaseURL: os.Getenv("GALLERY_DATABASE_URL"),
		},
		Face: FaceConfig{
			CascadePath: os.Getenv("FACE_CASCADE_PATH"),
		},
		OpenAI: OpenAIConfig{
			Token: os.Getenv("OPENAI_TOKEN"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
		},
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Web: WebConfig{
			Addr: envDefault("WEB_ADDR", ":8080"),
		},
		Tuning: tuning,
	}
}

func envDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath   string     `env:"DB_PATH" envDefault:"data/motionquiz.db"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`

	// Empty RedisURL runs a single instance with no bridge or sensor cache.
	RedisURL   string `env:"REDIS_URL"`
	AMQPURL    string `env:"AMQP_URL"`
	JWTSecret  string `env:"JWT_SECRET,required,notEmpty"`
	InstanceID string `env:"INSTANCE_ID"`

	Countdown         time.Duration `env:"COUNTDOWN" envDefault:"3s"`
	ResultsInterval   time.Duration `env:"RESULTS_INTERVAL" envDefault:"5s"`
	FinishedRetention time.Duration `env:"FINISHED_RETENTION" envDefault:"10m"`

	SendQueueSize    int           `env:"SEND_QUEUE_SIZE" envDefault:"64"`
	SmoothingFactor  int           `env:"SMOOTHING_FACTOR" envDefault:"10"`
	CorrectThreshold float64       `env:"CORRECT_THRESHOLD" envDefault:"70"`
	VoiceThreshold   float64       `env:"VOICE_THRESHOLD" envDefault:"0.7"`
	SensorCacheTTL   time.Duration `env:"SENSOR_CACHE_TTL" envDefault:"5m"`
}

// Load reads an optional .env file, then the environment. Variables already
// set in the environment win over the file.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.CorrectThreshold < 0 || cfg.CorrectThreshold > 100 {
		return nil, fmt.Errorf("CORRECT_THRESHOLD must be within [0,100], got %v", cfg.CorrectThreshold)
	}
	if cfg.VoiceThreshold < 0 || cfg.VoiceThreshold > 1 {
		return nil, fmt.Errorf("VOICE_THRESHOLD must be within [0,1], got %v", cfg.VoiceThreshold)
	}
	return &cfg, nil
}

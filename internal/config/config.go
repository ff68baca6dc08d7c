package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"goqem/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Runtime    RuntimeConfig
	Generation GenerationConfig
	Training   TrainingConfig
	Paths      PathConfig
}

// RuntimeConfig holds process-level settings
type RuntimeConfig struct {
	Seed     uint64
	Device   string
	LogLevel string
}

// GenerationConfig holds dataset generation settings
type GenerationConfig struct {
	Workers   int
	ChunkSize int
	// TargetQubit -1 keeps the circuit's own target
	TargetQubit int
	// NoiseProb -1 keeps the circuit's own noise channel
	NoiseProb float64
	// Distribution is "gaussian" or "uniform"
	Distribution string
	// ObservableKind is "hermitian" or "psd"
	ObservableKind string
}

// TrainingConfig holds adversarial training and pretraining settings
type TrainingConfig struct {
	BatchSize         int
	Epochs            int
	LR                float64
	SurrogateLR       float64
	NumMitigates      int
	LogEvery          int
	Prefetch          int
	RandomFraction    float64
	InitialBestMetric float64
	HiddenSizes       []int
}

// PathConfig holds file system locations
type PathConfig struct {
	LogDir         string
	CheckpointFile string
	SurrogateFile  string
	HistoryFile    string
	// DatasetStore is a directory for gob datasets or a sqlite3:// / postgres:// DSN
	DatasetStore   string
}

// SupportedDevice is the only compute device this build can place tensors on
const SupportedDevice = "cpu"

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config, err := FromEnv()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

// FromEnv reads configuration from environment variables without validating it, so callers can
// apply overrides first
func FromEnv() (*Config, error) {
	hidden, err := parseIntList(getEnvOrDefault("QEM_HIDDEN", "64,64"))
	if err != nil {
		return nil, errors.Wrap(errors.ConfigInvalid(err.Error()), "failed to parse QEM_HIDDEN")
	}

	config := &Config{
		Runtime: RuntimeConfig{
			Seed:     getEnvUint64OrDefault("QEM_SEED", 1),
			Device:   getEnvOrDefault("QEM_DEVICE", SupportedDevice),
			LogLevel: getEnvOrDefault("QEM_LOG_LEVEL", "info"),
		},
		Generation: GenerationConfig{
			Workers:        getEnvIntOrDefault("QEM_WORKERS", 8),
			ChunkSize:      getEnvIntOrDefault("QEM_CHUNK_SIZE", 1000),
			TargetQubit:    getEnvIntOrDefault("QEM_TARGET_QUBIT", -1),
			NoiseProb:      getEnvFloatOrDefault("QEM_NOISE_PROB", -1),
			Distribution:   getEnvOrDefault("QEM_DISTRIBUTION", "gaussian"),
			ObservableKind: getEnvOrDefault("QEM_OBSERVABLE_KIND", "hermitian"),
		},
		Training: TrainingConfig{
			BatchSize:         getEnvIntOrDefault("QEM_BATCH_SIZE", 128),
			Epochs:            getEnvIntOrDefault("QEM_EPOCHS", 200),
			LR:                getEnvFloatOrDefault("QEM_LR", 1e-3),
			SurrogateLR:       getEnvFloatOrDefault("QEM_SURROGATE_LR", 1e-6),
			NumMitigates:      getEnvIntOrDefault("QEM_NUM_MITIGATES", 0),
			LogEvery:          getEnvIntOrDefault("QEM_LOG_EVERY", 1000),
			Prefetch:          getEnvIntOrDefault("QEM_PREFETCH", 2),
			RandomFraction:    getEnvFloatOrDefault("QEM_RANDOM_FRACTION", 0.5),
			InitialBestMetric: getEnvFloatOrDefault("QEM_INITIAL_BEST", 1.0),
			HiddenSizes:       hidden,
		},
		Paths: PathConfig{
			LogDir:         getEnvOrDefault("QEM_LOGDIR", "./runs"),
			CheckpointFile: getEnvOrDefault("QEM_CHECKPOINT", "gan_model.gob"),
			SurrogateFile:  getEnvOrDefault("QEM_SURROGATE_WEIGHTS", "surrogate.gob"),
			HistoryFile:    getEnvOrDefault("QEM_HISTORY_FILE", "history.xlsx"),
			DatasetStore:   getEnvOrDefault("QEM_DATASET_STORE", ""),
		},
	}
	return config, nil
}

// Validate checks every field
func (c *Config) Validate() error {
	if !strings.EqualFold(c.Runtime.Device, SupportedDevice) {
		return errors.ConfigInvalid(fmt.Sprintf("unsupported device %q: only %q is available", c.Runtime.Device, SupportedDevice))
	}
	g := c.Generation
	if g.Workers < 1 {
		return errors.ConfigInvalid("workers must be at least 1")
	}
	if g.ChunkSize < 1 {
		return errors.ConfigInvalid("chunk size must be at least 1")
	}
	if g.TargetQubit < -1 {
		return errors.ConfigInvalid("target qubit must be non-negative, or -1 to use the circuit's")
	}
	if g.NoiseProb > 1 {
		return errors.ConfigInvalid("noise probability must be at most 1")
	}
	switch g.Distribution {
	case "gaussian", "uniform":
	default:
		return errors.ConfigInvalid(fmt.Sprintf("unknown distribution %q", g.Distribution))
	}
	switch g.ObservableKind {
	case "hermitian", "psd":
	default:
		return errors.ConfigInvalid(fmt.Sprintf("unknown observable kind %q", g.ObservableKind))
	}

	t := c.Training
	if t.BatchSize < 2 {
		return errors.ConfigInvalid("batch size must be at least 2")
	}
	if t.Epochs < 1 {
		return errors.ConfigInvalid("epochs must be at least 1")
	}
	if t.LR <= 0 || t.SurrogateLR <= 0 {
		return errors.ConfigInvalid("learning rates must be positive")
	}
	if t.NumMitigates < 0 {
		return errors.ConfigInvalid("num mitigates must be non-negative")
	}
	if t.LogEvery < 1 {
		return errors.ConfigInvalid("log interval must be at least 1")
	}
	if t.Prefetch < 0 {
		return errors.ConfigInvalid("prefetch must be non-negative")
	}
	if t.RandomFraction < 0 || t.RandomFraction > 1 {
		return errors.ConfigInvalid("random fraction must lie in [0, 1]")
	}
	if len(t.HiddenSizes) == 0 {
		return errors.ConfigInvalid("at least one hidden layer is required")
	}
	for _, h := range t.HiddenSizes {
		if h < 1 {
			return errors.ConfigInvalid("hidden layer sizes must be positive")
		}
	}
	if c.Paths.LogDir == "" {
		return errors.ConfigInvalid("log directory is required")
	}
	return nil
}

// NoiseOverride reports the injected depolarizing probability, if any
func (g GenerationConfig) NoiseOverride() (float64, bool) {
	if g.NoiseProb < 0 {
		return 0, false
	}
	return g.NoiseProb, true
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvUint64OrDefault(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseUint(value, 10, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// ParseIntList parses a comma separated list such as "64,64"
func ParseIntList(raw string) ([]int, error) {
	return parseIntList(raw)
}

func parseIntList(raw string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", part)
		}
		out = append(out, v)
	}
	return out, nil
}

package config

// Config holds all application configuration, grouped by concern.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database" validate:"required"`
	Matchmaker MatchmakerConfig `mapstructure:"matchmaker" validate:"required"`
}

// ServerConfig contains server-related settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains database and transaction-retry settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`

	// MaxRetries bounds the serializable-transaction retry loop, first
	// attempt included.
	MaxRetries int `mapstructure:"max_retries" validate:"required,gt=0,lte=50"`

	// RetryBaseDelayMS is the backoff base in milliseconds.
	RetryBaseDelayMS int `mapstructure:"retry_base_delay_ms" validate:"required,gt=0"`

	MaxOpenConns int `mapstructure:"max_open_conns" validate:"required,gt=0"`
	MaxIdleConns int `mapstructure:"max_idle_conns" validate:"gte=0"`
}

// MatchmakerConfig contains the candidate-sampling sizes and score weights.
type MatchmakerConfig struct {
	// SamplePool is the number of users drawn at random before filtering.
	SamplePool int `mapstructure:"sample_pool" validate:"required,gt=0"`

	// ReturnCount caps the number of ranked candidates returned.
	ReturnCount int `mapstructure:"return_count" validate:"required,gt=0"`

	LevelWeight     float64 `mapstructure:"level_weight" validate:"gte=0"`
	InterestsWeight float64 `mapstructure:"interests_weight" validate:"gte=0"`
	ScheduleWeight  float64 `mapstructure:"schedule_weight" validate:"gte=0"`
}

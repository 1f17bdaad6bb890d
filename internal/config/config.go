package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Auth      AuthConfig      `mapstructure:"auth"      validate:"required"`
	Task      TaskConfig      `mapstructure:"task"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	LLM       LLMConfig       `mapstructure:"llm"       validate:"required"`
	Game      GameConfig      `mapstructure:"game"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// CacheConfig contains settings for the session cache backend.
// When Addr is empty the in-process memory cache is used instead of Redis.
type CacheConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
}

// TaskConfig contains settings for the background task runtime.
type TaskConfig struct {
	// WorkerCount bounds the worker pool used for blocking work.
	WorkerCount int `mapstructure:"worker_count" validate:"gte=0"`

	// ShutdownGraceSeconds is how long Shutdown waits for active tasks
	// to finish before abandoning them.
	ShutdownGraceSeconds int `mapstructure:"shutdown_grace_seconds" validate:"gte=0"`

	// CleanupMaxAgeMinutes is the retention window for terminal tasks.
	CleanupMaxAgeMinutes int `mapstructure:"cleanup_max_age_minutes" validate:"gte=0"`
}

// SchedulerConfig contains settings for the durable job scheduler.
type SchedulerConfig struct {
	// TickSeconds is the interval at which the scheduler scans for due jobs.
	TickSeconds int `mapstructure:"tick_seconds" validate:"gte=0"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey      string `mapstructure:"gemini_api_key"      validate:"required"`
	ModelName         string `mapstructure:"model_name"          validate:"required"`
	MaxRetries        int    `mapstructure:"max_retries"         validate:"gte=0"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds" validate:"gte=0"`
}

// GameConfig contains settings for the game session engine.
type GameConfig struct {
	// SessionIdleMinutes is the idle threshold used by the session reap sweep.
	SessionIdleMinutes int `mapstructure:"session_idle_minutes" validate:"gte=0"`

	// DefaultTargetScore is used when a freshly generated subtask does not
	// specify its own target.
	DefaultTargetScore int `mapstructure:"default_target_score" validate:"gte=0"`

	// DefaultMaxRounds is used when a freshly generated subtask does not
	// specify its own round limit.
	DefaultMaxRounds int `mapstructure:"default_max_rounds" validate:"gte=0"`
}

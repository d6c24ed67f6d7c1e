// =============================================================================
// 📦 ConvoFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// 引擎默认值
const (
	DefaultMaxCycles         = 10
	DefaultTurnTimeout       = 300 * time.Second
	DefaultSilenceMinLength  = 20
	DefaultMaxToolIterations = 8
	DefaultStartupDeadline   = 2 * time.Second
	DefaultGracePeriod       = 2 * time.Second
	DefaultHealthInterval    = 10 * time.Second
	DefaultToolCallTimeout   = 30 * time.Second
	DefaultCancellationGrace = 500 * time.Millisecond
	DefaultEventQueueSize    = 64
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Engine:    DefaultEngineConfig(),
		Archive:   DefaultArchiveConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
	}
}

// DefaultEngineConfig 返回默认引擎参数
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxToolIterations: DefaultMaxToolIterations,
		StartupDeadline:   DefaultStartupDeadline,
		GracePeriod:       DefaultGracePeriod,
		HealthInterval:    DefaultHealthInterval,
		ToolCallTimeout:   DefaultToolCallTimeout,
		CancellationGrace: DefaultCancellationGrace,
		EventQueueSize:    DefaultEventQueueSize,
	}
}

// DefaultArchiveConfig 返回默认归档配置（关闭）
func DefaultArchiveConfig() ArchiveConfig {
	return ArchiveConfig{
		Enabled: false,
		Backend: "sqlite",
		DSN:     "convoflow.db",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{"stdout"},
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "convoflow",
		SampleRate:   1.0,
	}
}

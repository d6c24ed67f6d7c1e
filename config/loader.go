// =============================================================================
// 📦 ConvoFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("convoflow.yaml").
//	    WithEnvPrefix("CONVOFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// YAML 中的 ${NAME} 在解析前用进程环境变量替换。
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 convoflow 的完整配置结构
type Config struct {
	// Server 命令面 HTTP 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Agents 以 agent id 为键的参与者配置（至少两个）
	Agents map[string]AgentConfig `yaml:"agents" env:"-"`

	// Conversation 单场景形式（legacy）
	Conversation *ScenarioConfig `yaml:"conversation,omitempty" env:"-"`

	// Conversations 多场景形式；与单场景同时出现时优先
	Conversations []ScenarioConfig `yaml:"conversations,omitempty" env:"-"`

	// ToolServers 全局工具服务器
	ToolServers ToolServersConfig `yaml:"tool_servers" env:"-"`

	// Initialization 会话初始化配置
	Initialization InitializationConfig `yaml:"initialization" env:"INIT"`

	// Engine 编排引擎调优参数
	Engine EngineConfig `yaml:"engine" env:"ENGINE"`

	// Archive 会话归档配置
	Archive ArchiveConfig `yaml:"archive" env:"ARCHIVE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// 最大并发连接数（0 表示不限制）
	MaxConns int `yaml:"max_conns" env:"MAX_CONNS"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// Auth 命令面鉴权
	Auth AuthConfig `yaml:"auth" env:"AUTH"`
	// RateLimit 每秒请求数（0 表示不限制）
	RateLimit float64 `yaml:"rate_limit" env:"RATE_LIMIT"`
}

// AuthConfig JWT 鉴权配置
type AuthConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// HS256 共享密钥
	Secret string `yaml:"secret" env:"SECRET"`
	// 令牌有效期
	TokenTTL time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
}

// ModelConfig 模型端点配置
type ModelConfig struct {
	// Provider 目前支持 ollama
	Provider string `yaml:"provider"`
	// 端点 URL（http:// 或 https://）
	URL string `yaml:"url"`
	// 模型名（如 llama2、mistral:7b）
	ModelName string `yaml:"model_name"`
	// 模型参数（temperature、top_p 等，原样透传）
	Parameters map[string]any `yaml:"parameters,omitempty"`
	// 是否启用思考区过滤
	Thinking bool `yaml:"thinking"`
	// 单次请求超时
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// AgentConfig 单个 Agent 配置
type AgentConfig struct {
	// 显示名称
	Name string `yaml:"name"`
	// 人格设定（系统提示词素材）
	Persona string `yaml:"persona"`
	// 模型端点
	Model ModelConfig `yaml:"model"`
	// Agent 专属工具服务器（启动时命名为 {agent-id}_{name}）
	ToolServers []ToolServerDef `yaml:"tool_servers,omitempty"`
	// 透传给模板渲染的元数据
	Metadata map[string]any `yaml:"metadata,omitempty"`
}

// ToolServerDef 工具服务器启动定义
type ToolServerDef struct {
	// 唯一名称（[a-zA-Z0-9_-]+）
	Name string `yaml:"name"`
	// 启动命令
	Command string `yaml:"command"`
	// 命令参数
	Args []string `yaml:"args,omitempty"`
	// 环境变量
	Env map[string]string `yaml:"env,omitempty"`
}

// ToolServersConfig 全局工具服务器集合
type ToolServersConfig struct {
	// 对所有 Agent 可见的服务器
	Global []ToolServerDef `yaml:"global,omitempty"`
}

// TerminationConfig 终止条件
type TerminationConfig struct {
	// 关键字触发（大小写不敏感的子串匹配）
	KeywordTriggers []string `yaml:"keyword_triggers,omitempty"`
	// 静默检测：连续 N 个完整 cycle 无实质内容则终止（0 表示关闭）
	SilenceThreshold int `yaml:"silence_threshold,omitempty"`
	// 实质内容的最小修剪长度
	SilenceMinLength int `yaml:"silence_min_length,omitempty"`
}

// ScenarioConfig 场景配置
type ScenarioConfig struct {
	// 场景名（单场景形式可留空）
	Name string `yaml:"name,omitempty"`
	// 对话目标（仅透传给模板）
	Goal string `yaml:"goal,omitempty"`
	// 行文简洁度提示（仅透传给模板）
	Brevity string `yaml:"brevity,omitempty"`
	// 起始 Agent id
	StartingAgent string `yaml:"starting_agent"`
	// 最大 cycle 数
	MaxCycles int `yaml:"max_cycles"`
	// 单轮超时
	TurnTimeout time.Duration `yaml:"turn_timeout,omitempty"`
	// 参与 Agent 子集（为空表示全部）
	AgentsInvolved []string `yaml:"agents_involved,omitempty"`
	// 终止条件
	Termination TerminationConfig `yaml:"termination,omitempty"`
	// 场景级开场消息（覆盖全局 initialization.first_message）
	FirstMessage string `yaml:"first_message,omitempty"`
	// 场景级系统提示词模板（覆盖全局）
	SystemPromptTemplate string `yaml:"system_prompt_template,omitempty"`
}

// InitializationConfig 初始化配置
type InitializationConfig struct {
	// 系统提示词模板（text/template 语法；为空时使用默认模板）
	SystemPromptTemplate string `yaml:"system_prompt_template,omitempty" env:"SYSTEM_PROMPT_TEMPLATE"`
	// 全局开场消息
	FirstMessage string `yaml:"first_message" env:"FIRST_MESSAGE"`
}

// EngineConfig 编排引擎调优参数
type EngineConfig struct {
	// 单轮工具调用循环上限
	MaxToolIterations int `yaml:"max_tool_iterations" env:"MAX_TOOL_ITERATIONS"`
	// 工具服务器握手超时
	StartupDeadline time.Duration `yaml:"startup_deadline" env:"STARTUP_DEADLINE"`
	// 工具服务器优雅停止宽限期
	GracePeriod time.Duration `yaml:"grace_period" env:"GRACE_PERIOD"`
	// 健康探测间隔
	HealthInterval time.Duration `yaml:"health_interval" env:"HEALTH_INTERVAL"`
	// 单次工具调用超时
	ToolCallTimeout time.Duration `yaml:"tool_call_timeout" env:"TOOL_CALL_TIMEOUT"`
	// stop 后取消传播宽限期
	CancellationGrace time.Duration `yaml:"cancellation_grace" env:"CANCELLATION_GRACE"`
	// 每个订阅者的事件队列长度（满时丢弃最旧事件）
	EventQueueSize int `yaml:"event_queue_size" env:"EVENT_QUEUE_SIZE"`
}

// ArchiveConfig 会话归档配置
type ArchiveConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 后端: sqlite, mysql, postgres, redis, mongo
	Backend string `yaml:"backend" env:"BACKEND"`
	// 关系型后端 DSN / sqlite 文件路径
	DSN string `yaml:"dsn" env:"DSN"`
	// Redis 地址
	RedisAddr string `yaml:"redis_addr" env:"REDIS_ADDR"`
	// Redis 密码
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	// Redis 数据库编号
	RedisDB int `yaml:"redis_db" env:"REDIS_DB"`
	// Mongo 连接 URI
	MongoURI string `yaml:"mongo_uri" env:"MONGO_URI"`
	// Mongo 数据库名
	MongoDatabase string `yaml:"mongo_database" env:"MONGO_DATABASE"`
	// 归档记录保留时长（仅 redis 后端，0 表示永久）
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP gRPC 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "CONVOFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置，${NAME} 先用环境变量展开
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// expandEnvVars 替换 ${NAME} 占位符；未定义的变量替换为空串
func expandEnvVars(s string) string {
	return os.Expand(s, func(name string) string {
		return os.Getenv(name)
	})
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

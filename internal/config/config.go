package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Workflow   WorkflowConfig   `mapstructure:"workflow"`
	Calculator CalculatorConfig `mapstructure:"calculator"`
	Redis      RedisConfig      `mapstructure:"redis"`
	RabbitMQ   RabbitMQConfig   `mapstructure:"rabbitmq"`
	Batch      BatchConfig      `mapstructure:"batch"`
	Notifier   NotifierConfig   `mapstructure:"notifier"`

	// Source is the config file that was read, empty when none was found.
	Source string `mapstructure:"-"`
}

type ServerConfig struct {
	Port         int             `mapstructure:"port"`
	ReadTimeout  time.Duration   `mapstructure:"readTimeout"`
	WriteTimeout time.Duration   `mapstructure:"writeTimeout"`
	IdleTimeout  time.Duration   `mapstructure:"idleTimeout"`
	RateLimit    RateLimitConfig `mapstructure:"rateLimit"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

type LoggerConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type MetricsConfig struct {
	Path string `mapstructure:"path"`
}

type WorkflowConfig struct {
	ApprovalDelay time.Duration `mapstructure:"approvalDelay"`
	PlanDelay     time.Duration `mapstructure:"planDelay"`
	MinTermYears  float64       `mapstructure:"minTermYears"`
	MaxTermYears  float64       `mapstructure:"maxTermYears"`
	SessionTTL    time.Duration `mapstructure:"sessionTTL"`
}

type CalculatorConfig struct {
	// URL of the remote calculation service. Empty runs the engine in-process.
	URL                string        `mapstructure:"url"`
	Timeout            time.Duration `mapstructure:"timeout"`
	Port               int           `mapstructure:"port"`
	FixedAnnualRate    string        `mapstructure:"fixedAnnualRate"`
	InitialAnnualRate  string        `mapstructure:"initialAnnualRate"`
	VariableAnnualRate string        `mapstructure:"variableAnnualRate"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RabbitMQConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	ExchangeName string `mapstructure:"exchangeName"`
}

type BatchConfig struct {
	SessionSweepSchedule    string        `mapstructure:"sessionSweepSchedule"`
	PaymentReminderSchedule string        `mapstructure:"paymentReminderSchedule"`
	ReminderWindowDays      int           `mapstructure:"reminderWindowDays"`
	JobTimeout              time.Duration `mapstructure:"jobTimeout"`
}

// NotifierConfig drives cmd/notifier, which consumes lifecycle events from
// the RabbitMQ exchange.
type NotifierConfig struct {
	Port        int    `mapstructure:"port"`
	QueueName   string `mapstructure:"queueName"`
	ConsumerTag string `mapstructure:"consumerTag"`
}

func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables.")
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("Config file not found, using defaults and environment variables.")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.Source = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 15*time.Second)
	v.SetDefault("server.writeTimeout", 15*time.Second)
	v.SetDefault("server.idleTimeout", 60*time.Second)
	v.SetDefault("server.rateLimit.enabled", true)
	v.SetDefault("server.rateLimit.rps", 10)
	v.SetDefault("server.rateLimit.burst", 20)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("workflow.approvalDelay", 3*time.Second)
	v.SetDefault("workflow.planDelay", 1500*time.Millisecond)
	v.SetDefault("workflow.minTermYears", 1)
	v.SetDefault("workflow.maxTermYears", 10)
	v.SetDefault("workflow.sessionTTL", 30*time.Minute)
	v.SetDefault("calculator.url", "")
	v.SetDefault("calculator.timeout", 10*time.Second)
	v.SetDefault("calculator.port", 5000)
	v.SetDefault("calculator.fixedAnnualRate", "0.15")
	v.SetDefault("calculator.initialAnnualRate", "0.12")
	v.SetDefault("calculator.variableAnnualRate", "0.18")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("rabbitmq.host", "")
	v.SetDefault("rabbitmq.port", 5672)
	v.SetDefault("rabbitmq.exchangeName", "loan-simulator")
	v.SetDefault("batch.sessionSweepSchedule", "*/5 * * * *")
	v.SetDefault("batch.paymentReminderSchedule", "0 9 * * *")
	v.SetDefault("batch.reminderWindowDays", 3)
	v.SetDefault("batch.jobTimeout", 5*time.Minute)
	v.SetDefault("notifier.port", 8090)
	v.SetDefault("notifier.queueName", "loan-simulator.notifications")
	v.SetDefault("notifier.consumerTag", "loan-notifier")
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be positive")
	}
	if c.Workflow.MinTermYears <= 0 || c.Workflow.MaxTermYears < c.Workflow.MinTermYears {
		return fmt.Errorf("workflow term range [%v, %v] is invalid", c.Workflow.MinTermYears, c.Workflow.MaxTermYears)
	}
	if c.Workflow.ApprovalDelay < 0 || c.Workflow.PlanDelay < 0 {
		return fmt.Errorf("workflow delays must not be negative")
	}
	if c.Calculator.Timeout <= 0 {
		return fmt.Errorf("calculator.timeout must be positive")
	}
	return nil
}

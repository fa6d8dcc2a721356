package feed_gateway_config

import (
	"time"

	"github.com/pulseboard/feedsync/internal/alert"
	"github.com/pulseboard/feedsync/internal/feed"
	"github.com/pulseboard/feedsync/internal/obs"
	kafkax "github.com/pulseboard/feedsync/internal/repository/kafka"
	pginfra "github.com/pulseboard/feedsync/internal/repository/postgres"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

type KafkaIn struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

func (k *KafkaIn) AsConsumerConfig() *kafkax.ConsumerConfig {
	return &kafkax.ConsumerConfig{
		Brokers: k.Brokers,
		Topic:   k.Topic,
		GroupID: k.GroupID,
	}
}

type KafkaOut struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type Feed struct {
	Window         int           `mapstructure:"window"`
	ResolveTimeout time.Duration `mapstructure:"resolve_timeout"`
	EventBuffer    int           `mapstructure:"event_buffer"`
}

func (f *Feed) AsEngineConfig() feed.Config {
	return feed.Config{
		Window:         f.Window,
		ResolveTimeout: f.ResolveTimeout,
		EventBuffer:    f.EventBuffer,
	}
}

type Outbox struct {
	Workers       int           `mapstructure:"workers"`
	BatchSize     int           `mapstructure:"batch_size"`
	WaitTime      time.Duration `mapstructure:"wait_time"`
	InProgressTTL time.Duration `mapstructure:"in_progress_ttl"`
}

type SMTP struct {
	Enable     bool          `mapstructure:"enable"`
	Addr       string        `mapstructure:"addr"`
	From       string        `mapstructure:"from"`
	To         string        `mapstructure:"to"`
	User       string        `mapstructure:"user"`
	Password   string        `mapstructure:"password"`
	UseTLS     bool          `mapstructure:"use_tls"`
	Timeout    time.Duration `mapstructure:"timeout"`
	SubjPrefix string        `mapstructure:"subj_prefix"`
}

func (s *SMTP) AsAlertConfig() alert.Config {
	return alert.Config{
		Addr:       s.Addr,
		From:       s.From,
		To:         s.To,
		User:       s.User,
		Password:   s.Password,
		UseTLS:     s.UseTLS,
		Timeout:    s.Timeout,
		SubjPrefix: s.SubjPrefix,
	}
}

type Auth struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

func (oc *OTEL) AsOTELConfig() *obs.OTELConfig {
	return &obs.OTELConfig{
		Enable:      oc.Enable,
		Endpoint:    oc.OTLPEndpoint,
		ServiceName: oc.ServiceName,
		SampleRatio: oc.SampleRatio,
	}
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type Config struct {
	App    App            `mapstructure:"app"`
	Server Server         `mapstructure:"server"`
	DB     pginfra.Config `mapstructure:"db"`
	In     KafkaIn        `mapstructure:"kafka_in"`
	Out    KafkaOut       `mapstructure:"kafka_out"`
	Feed   Feed           `mapstructure:"feed"`
	Outbox Outbox         `mapstructure:"outbox"`
	SMTP   SMTP           `mapstructure:"smtp"`
	Auth   Auth           `mapstructure:"auth"`
	OTEL   OTEL           `mapstructure:"otel"`
	Log    Log            `mapstructure:"log"`
}

func (c *Config) AsLoggerConfig() obs.LogConfig {
	return obs.LogConfig{
		Level:  c.Log.Level,
		Pretty: c.Log.Pretty,
		App:    "feedsync/feed-gateway",
		Env:    c.App.Env,
		Ver:    c.App.Version,
	}
}

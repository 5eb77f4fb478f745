// Package config загружает конфигурацию сервиса call tracker из файла
// и переменных окружения с префиксом CALLTRACKER_.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Режимы передачи DTMF
const (
	DtmfModeInfo    = "info"
	DtmfModeRFC4733 = "rfc4733"
)

// EnvPrefix префикс переменных окружения
const EnvPrefix = "CALLTRACKER"

// Config конфигурация сервиса
type Config struct {
	SIP     SIPConfig     `mapstructure:"sip"`
	Video   VideoConfig   `mapstructure:"video"`
	Events  EventsConfig  `mapstructure:"events"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
}

// SIPConfig настройки SIP адаптера
type SIPConfig struct {
	Network         string `mapstructure:"network"`
	ListenAddr      string `mapstructure:"listen_addr"`
	Hostname        string `mapstructure:"hostname"`
	UserAgent       string `mapstructure:"user_agent"`
	MediaHost       string `mapstructure:"media_host"`
	AudioPort       int    `mapstructure:"audio_port"`
	VideoPort       int    `mapstructure:"video_port"`
	DtmfMode        string `mapstructure:"dtmf_mode"`
	DtmfPayloadType uint8  `mapstructure:"dtmf_payload_type"`
}

// VideoConfig возможности локальной камеры, сообщаемые видео сессией
type VideoConfig struct {
	CameraWidth   int     `mapstructure:"camera_width"`
	CameraHeight  int     `mapstructure:"camera_height"`
	ZoomSupported bool    `mapstructure:"zoom_supported"`
	MaxZoom       float32 `mapstructure:"max_zoom"`
}

// EventsConfig настройки websocket потока событий
type EventsConfig struct {
	ListenAddr   string `mapstructure:"listen_addr"`
	Path         string `mapstructure:"path"`
	ClientBuffer int    `mapstructure:"client_buffer"`
}

// MetricsConfig настройки Prometheus метрик
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

// LogConfig настройки логирования
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		SIP: SIPConfig{
			Network:         "udp",
			ListenAddr:      "0.0.0.0:5060",
			Hostname:        "localhost",
			UserAgent:       "CallTracker/1.0",
			MediaHost:       "127.0.0.1",
			AudioPort:       10000,
			VideoPort:       10002,
			DtmfMode:        DtmfModeInfo,
			DtmfPayloadType: 101,
		},
		Video: VideoConfig{
			CameraWidth:  1280,
			CameraHeight: 720,
			MaxZoom:      1,
		},
		Events: EventsConfig{
			ListenAddr:   "127.0.0.1:8080",
			Path:         "/events",
			ClientBuffer: 64,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "calltracker",
			Path:      "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("sip.network", d.SIP.Network)
	v.SetDefault("sip.listen_addr", d.SIP.ListenAddr)
	v.SetDefault("sip.hostname", d.SIP.Hostname)
	v.SetDefault("sip.user_agent", d.SIP.UserAgent)
	v.SetDefault("sip.media_host", d.SIP.MediaHost)
	v.SetDefault("sip.audio_port", d.SIP.AudioPort)
	v.SetDefault("sip.video_port", d.SIP.VideoPort)
	v.SetDefault("sip.dtmf_mode", d.SIP.DtmfMode)
	v.SetDefault("sip.dtmf_payload_type", d.SIP.DtmfPayloadType)

	v.SetDefault("video.camera_width", d.Video.CameraWidth)
	v.SetDefault("video.camera_height", d.Video.CameraHeight)
	v.SetDefault("video.zoom_supported", d.Video.ZoomSupported)
	v.SetDefault("video.max_zoom", d.Video.MaxZoom)

	v.SetDefault("events.listen_addr", d.Events.ListenAddr)
	v.SetDefault("events.path", d.Events.Path)
	v.SetDefault("events.client_buffer", d.Events.ClientBuffer)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Load читает конфигурацию. path может быть пустым: тогда используется
// CALLTRACKER_CONFIG или config.* в текущей директории, если он есть.
// Переменные окружения (CALLTRACKER_SIP_LISTEN_ADDR и т.п.) имеют приоритет над файлом.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("calltracker")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// явно указанный файл обязан существовать
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	switch c.SIP.Network {
	case "udp", "tcp":
	default:
		return fmt.Errorf("sip.network должен быть udp или tcp, получено %q", c.SIP.Network)
	}

	if _, _, err := net.SplitHostPort(c.SIP.ListenAddr); err != nil {
		return fmt.Errorf("sip.listen_addr некорректен: %w", err)
	}

	if c.SIP.Hostname == "" {
		return fmt.Errorf("sip.hostname не может быть пустым")
	}

	if c.SIP.AudioPort <= 0 || c.SIP.AudioPort > 65535 || c.SIP.AudioPort%2 != 0 {
		return fmt.Errorf("sip.audio_port должен быть четным портом, получено %d", c.SIP.AudioPort)
	}

	if c.SIP.VideoPort <= 0 || c.SIP.VideoPort > 65535 || c.SIP.VideoPort%2 != 0 {
		return fmt.Errorf("sip.video_port должен быть четным портом, получено %d", c.SIP.VideoPort)
	}

	if c.SIP.AudioPort == c.SIP.VideoPort {
		return fmt.Errorf("sip.audio_port и sip.video_port должны различаться")
	}

	switch c.SIP.DtmfMode {
	case DtmfModeInfo, DtmfModeRFC4733:
	default:
		return fmt.Errorf("sip.dtmf_mode должен быть %s или %s, получено %q",
			DtmfModeInfo, DtmfModeRFC4733, c.SIP.DtmfMode)
	}

	// динамический диапазон RTP payload type
	if c.SIP.DtmfPayloadType < 96 || c.SIP.DtmfPayloadType > 127 {
		return fmt.Errorf("sip.dtmf_payload_type должен быть в диапазоне 96-127")
	}

	if c.Video.CameraWidth <= 0 || c.Video.CameraHeight <= 0 {
		return fmt.Errorf("video.camera_width и video.camera_height должны быть больше 0")
	}

	if _, _, err := net.SplitHostPort(c.Events.ListenAddr); err != nil {
		return fmt.Errorf("events.listen_addr некорректен: %w", err)
	}

	if !strings.HasPrefix(c.Events.Path, "/") {
		return fmt.Errorf("events.path должен начинаться с /")
	}

	if c.Events.ClientBuffer <= 0 {
		return fmt.Errorf("events.client_buffer должен быть больше 0")
	}

	if c.Metrics.Enabled {
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("metrics.path должен начинаться с /")
		}
		if c.Metrics.Path == c.Events.Path {
			return fmt.Errorf("metrics.path и events.path должны различаться")
		}
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format должен быть text или json, получено %q", c.Log.Format)
	}

	return nil
}

// ParseLevel разбирает уровень логирования
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level некорректен: %q", level)
	}
	return l, nil
}

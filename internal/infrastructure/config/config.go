package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Addr        string
	LogLevel    string
	DevMode     bool
	InsecureTLS bool
	// Inference service endpoints
	ServiceWSURL   string
	ServiceHTTPURL string

	// Per-frame settings sent with every frame
	Quality       string
	Background    string
	EdgeSmoothing float64
	Tier          string

	// Capture source; an empty SourceImage selects the built-in test pattern
	CaptureWidth  int
	CaptureHeight int
	CaptureFPS    int
	SourceImage   string

	RefreshHz         int
	MaxSendFPS        float64
	InFlightTimeout   time.Duration
	ReconnectDelay    time.Duration
	ReconnectMaxDelay time.Duration
	// 0 retries forever
	ReconnectMaxAttempts int
	Keepalive            time.Duration

	TelemetryWindow int
	ScoreWindow     int

	RecordingFPS       int
	SegmentInterval    time.Duration
	RecordingsMax      int
	RecordingsMaxBytes int64
	RecordingsDir      string
	// CatalogDB enables the persistent sqlite catalog
	CatalogDB string

	DownloadDir       string
	CompressDownloads bool
	ActivityMax       int

	// Optional MQTT telemetry export
	MQTTBroker   string
	MQTTTopic    string
	MQTTClientID string

	Autostart       bool
	CORSAllowOrigin string
}

var defaults = map[string]any{
	"addr":                   ":9092",
	"log_level":              "info",
	"dev_mode":               false,
	"insecure_tls":           false,
	"service_ws_url":         "ws://localhost:8000/ws",
	"service_http_url":       "http://localhost:8000",
	"quality":                "medium",
	"background":             "none",
	"edge_smoothing":         0.5,
	"tier":                   "",
	"capture_width":          640,
	"capture_height":         480,
	"capture_fps":            30,
	"source_image":           "",
	"refresh_hz":             60,
	"max_send_fps":           0.0,
	"inflight_timeout_ms":    2000,
	"reconnect_delay_ms":     3000,
	"reconnect_max_delay_ms": 30000,
	"reconnect_max_attempts": 8,
	"keepalive_ms":           15000,
	"telemetry_window":       20,
	"score_window":           10,
	"recording_fps":          30,
	"segment_interval_ms":    1000,
	"recordings_max":         10,
	"recordings_max_bytes":   int64(512 << 20),
	"recordings_dir":         "recordings",
	"catalog_db":             "",
	"download_dir":           "downloads",
	"compress_downloads":     false,
	"activity_max":           200,
	"mqtt_broker":            "",
	"mqtt_topic":             "bgstream/telemetry",
	"mqtt_client_id":         "bgstream",
	"autostart":              false,
	"cors_allow_origin":      "*",
}

// New returns a viper instance with defaults, environment binding and, when
// file is set, the YAML/JSON/TOML config file read in.
func New(file string) (*viper.Viper, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()
	if file == "" {
		return v, nil
	}
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", file, err)
	}
	return v, nil
}

// FromEnv reads configuration from the environment only.
func FromEnv() Config {
	v, _ := New("")
	return Load(v)
}

func Load(v *viper.Viper) Config {
	cfg := Config{
		Addr:                 v.GetString("addr"),
		LogLevel:             strings.ToLower(v.GetString("log_level")),
		DevMode:              v.GetBool("dev_mode"),
		InsecureTLS:          v.GetBool("insecure_tls"),
		ServiceWSURL:         v.GetString("service_ws_url"),
		ServiceHTTPURL:       strings.TrimRight(v.GetString("service_http_url"), "/"),
		Quality:              strings.ToLower(v.GetString("quality")),
		Background:           v.GetString("background"),
		EdgeSmoothing:        v.GetFloat64("edge_smoothing"),
		Tier:                 v.GetString("tier"),
		CaptureWidth:         v.GetInt("capture_width"),
		CaptureHeight:        v.GetInt("capture_height"),
		CaptureFPS:           v.GetInt("capture_fps"),
		SourceImage:          v.GetString("source_image"),
		RefreshHz:            v.GetInt("refresh_hz"),
		MaxSendFPS:           v.GetFloat64("max_send_fps"),
		InFlightTimeout:      ms(v, "inflight_timeout_ms"),
		ReconnectDelay:       ms(v, "reconnect_delay_ms"),
		ReconnectMaxDelay:    ms(v, "reconnect_max_delay_ms"),
		ReconnectMaxAttempts: v.GetInt("reconnect_max_attempts"),
		Keepalive:            ms(v, "keepalive_ms"),
		TelemetryWindow:      v.GetInt("telemetry_window"),
		ScoreWindow:          v.GetInt("score_window"),
		RecordingFPS:         v.GetInt("recording_fps"),
		SegmentInterval:      ms(v, "segment_interval_ms"),
		RecordingsMax:        v.GetInt("recordings_max"),
		RecordingsMaxBytes:   v.GetInt64("recordings_max_bytes"),
		RecordingsDir:        v.GetString("recordings_dir"),
		CatalogDB:            v.GetString("catalog_db"),
		DownloadDir:          v.GetString("download_dir"),
		CompressDownloads:    v.GetBool("compress_downloads"),
		ActivityMax:          v.GetInt("activity_max"),
		MQTTBroker:           v.GetString("mqtt_broker"),
		MQTTTopic:            v.GetString("mqtt_topic"),
		MQTTClientID:         v.GetString("mqtt_client_id"),
		Autostart:            v.GetBool("autostart"),
		CORSAllowOrigin:      v.GetString("cors_allow_origin"),
	}
	if cfg.RefreshHz <= 0 {
		cfg.RefreshHz = 60
	}
	return cfg
}

func ms(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt64(key)) * time.Millisecond
}

// RefreshInterval is the capture tick derived from RefreshHz.
func (c Config) RefreshInterval() time.Duration {
	return time.Second / time.Duration(c.RefreshHz)
}

// Package config loads the run-control core's configuration via
// spf13/viper, matching the teacher's CLI configuration idiom: defaults
// registered up front, overridable by config file, environment variable,
// or flag, in that precedence order.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/desktopai/runcontrol/internal/executor"
)

// Config is every option the core consumes, ambient and domain alike.
type Config struct {
	ActionExecutorMode  executor.Mode
	ExecutorBridgeTimeout time.Duration
	ExecutorRetryCount  int
	ExecutorRetryDelay  time.Duration
	RunAgentLogCap      int

	BroadcastMaxConnections int
	BroadcastSendTimeout    time.Duration

	HTTPAddr         string
	LogLevel         string
	LogColor         bool
	DataDir          string
	BrowserCDPEndpoint string
	ShutdownGrace    time.Duration
	MetricsAddr      string
}

// Load reads configuration from (in ascending precedence) defaults, an
// optional config file named runcontrol.{yaml,json,toml} on the search
// path, environment variables prefixed RUNCONTROL_, and finally v's
// already-bound flags, if any were bound by the caller before Load runs.
func Load(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.New()
	}

	v.SetDefault("action_executor_mode", string(executor.ModeAuto))
	v.SetDefault("executor_bridge_timeout_ms", 15000)
	v.SetDefault("executor_retry_count", 3)
	v.SetDefault("executor_retry_delay_ms", 500)
	v.SetDefault("run_agent_log_cap", 200)
	v.SetDefault("broadcast_max_connections", 256)
	v.SetDefault("broadcast_send_timeout_ms", 5000)
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_color", true)
	v.SetDefault("data_dir", "./data")
	v.SetDefault("browser_cdp_endpoint", "")
	v.SetDefault("shutdown_grace_ms", 10000)
	v.SetDefault("metrics_addr", "")

	v.SetConfigName("runcontrol")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME")
	v.SetEnvPrefix("runcontrol")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	return Config{
		ActionExecutorMode:    executor.Mode(v.GetString("action_executor_mode")),
		ExecutorBridgeTimeout: millis(v, "executor_bridge_timeout_ms"),
		ExecutorRetryCount:    v.GetInt("executor_retry_count"),
		ExecutorRetryDelay:    millis(v, "executor_retry_delay_ms"),
		RunAgentLogCap:        v.GetInt("run_agent_log_cap"),

		BroadcastMaxConnections: v.GetInt("broadcast_max_connections"),
		BroadcastSendTimeout:    millis(v, "broadcast_send_timeout_ms"),

		HTTPAddr:           v.GetString("http_addr"),
		LogLevel:           v.GetString("log_level"),
		LogColor:           v.GetBool("log_color"),
		DataDir:            v.GetString("data_dir"),
		BrowserCDPEndpoint: v.GetString("browser_cdp_endpoint"),
		ShutdownGrace:      millis(v, "shutdown_grace_ms"),
		MetricsAddr:        v.GetString("metrics_addr"),
	}, nil
}

// millis reads key as a plain integer count of milliseconds. viper's
// GetDuration treats a bare integer as nanoseconds, not the unit these
// _ms-suffixed keys document, so every duration option is read this way
// instead.
func millis(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt(key)) * time.Millisecond
}

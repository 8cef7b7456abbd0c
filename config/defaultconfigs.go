package config

import "time"

var DefaultConfig Config

func init() {
	DefaultConfig = Config{
		Server: ServerConfig{
			Addr:               ":8080",
			MaxConcurrentGames: 1000,
			SessionTimeout:     Duration(30 * time.Minute),
			CleanupInterval:    Duration(time.Minute),
			MonitorInterval:    Duration(10 * time.Second),
			AllowedOrigins:     []string{"http://localhost:3000"},
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

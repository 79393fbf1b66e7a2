package config

import (
	"github.com/squadscrape/squadpanel/internal/execution/supervisor"
	"github.com/squadscrape/squadpanel/internal/execution/validation"
	"github.com/squadscrape/squadpanel/internal/server"
	"github.com/squadscrape/squadpanel/util/conf"
)

// EnvPrefix is the prefix of all environment variables read by the app.
const EnvPrefix = "SQUADPANEL_"

type AuthConfig struct {
	// Key is the api key clients have to send in the api-key header.
	// Authorization is disabled if empty.
	Key string `conf:"key"`
}

type Config struct {
	// LogLevel is the log level for the application
	LogLevel string `conf:"log_level"`

	// LogFormat is the log format for the application
	LogFormat string `conf:"log_format"`

	// Panel is the configuration of the slots and their workers
	Panel supervisor.Config `conf:"panel"`

	// Http is the configuration of the control API server
	Http server.HttpConfig `conf:"http"`

	// Auth is the authorization config of the control API
	Auth AuthConfig `conf:"auth"`
}

var DefaultConfig = conf.DefaultConfig{
	"log_level":        "info",
	"log_format":       "production",
	"panel.source_url": validation.DefaultSourceURL,
	"http.host":        "localhost",
	"http.port":        8080,
}

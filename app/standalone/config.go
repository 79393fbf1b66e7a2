package standalone

import "github.com/squadscrape/squadpanel/internal/server"

type Config struct {
	// Http represents the configuration for the HTTP server.
	Http server.HttpConfig `conf:"http"`
}

package standalone

import (
	"go.uber.org/fx"

	"github.com/squadscrape/squadpanel/handler"
	"github.com/squadscrape/squadpanel/internal/server"
	"github.com/squadscrape/squadpanel/util/logging"
)

func Module(config Config) fx.Option {
	return fx.Module(
		"serve",
		// rename logger for module
		logging.DecorateLogger("serve"),
		// provide handlers
		handler.Module(),
		// provide server
		server.Module(config.Http),
	)
}

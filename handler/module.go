package handler

import "go.uber.org/fx"

func Module() fx.Option {
	return fx.Module("handler",
		fx.Provide(NewSlotHandler),
		fx.Provide(NewEventsHandler),
		fx.Provide(NewListRoute),
		fx.Provide(NewStartRoute),
		fx.Provide(NewCancelRoute),
		fx.Provide(NewEventsRoute),
		fx.Provide(NewHealthRoute),
	)
}

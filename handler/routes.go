package handler

import (
	"net/http"

	"github.com/squadscrape/squadpanel/internal/server"
)

func NewListRoute(handler *SlotHandler) server.HttpHandlerResult {
	return server.AsHttpHandler("GET /slots", http.HandlerFunc(handler.List))
}

func NewStartRoute(handler *SlotHandler) server.HttpHandlerResult {
	return server.AsHttpHandler("POST /slots/{slot}/start", http.HandlerFunc(handler.Start))
}

func NewCancelRoute(handler *SlotHandler) server.HttpHandlerResult {
	return server.AsHttpHandler("POST /slots/{slot}/cancel", http.HandlerFunc(handler.Cancel))
}

func NewEventsRoute(handler *EventsHandler) server.HttpHandlerResult {
	return server.AsHttpHandler("GET /events", handler)
}

func NewHealthRoute() server.HttpHandlerResult {
	return server.AsHttpHandler("GET /health", http.HandlerFunc(HealthHandler))
}

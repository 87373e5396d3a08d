package server

import (
	"net/http"

	"diagramgen/internal/gateway/handler"
	"diagramgen/internal/gateway/handler/rpc"
	"diagramgen/internal/gateway/middleware"
)

func NewMux(
	apiHandler *handler.Handler,
	diagramHandler *rpc.DiagramHandler,
	limiter *middleware.RateLimiter,
) http.Handler {
	mux := http.NewServeMux()

	// HTTP API
	mux.HandleFunc("/generate/cost", apiHandler.HandleCost)
	mux.HandleFunc("/generate/stream", apiHandler.HandleStream)
	mux.HandleFunc("/generate/ws", apiHandler.HandleWS)

	// RPC
	mux.Handle(diagramHandler.Routes())

	// Debug
	mux.HandleFunc("/debug/run-logs", apiHandler.HandleRunLogs)

	return middleware.CORS(limiter.Middleware(mux))
}

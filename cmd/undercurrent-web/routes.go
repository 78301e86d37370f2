package main

import (
	"net/http"

	"github.com/ameliahart/undercurrent"
)

// newRouter sets up all routes using Go 1.22+ enhanced routing. Every
// route under /api except login and healthz requires a bearer token.
func newRouter(engine *undercurrent.Engine, secret []byte) http.Handler {
	mux := http.NewServeMux()

	h := &handlers{engine: engine, secret: secret}

	mux.HandleFunc("POST /api/login", h.handleLogin)
	mux.HandleFunc("GET /api/healthz", h.handleHealthz)

	mux.Handle("GET /api/entries", h.auth(h.handleEntryList))
	mux.Handle("POST /api/entries", h.auth(h.handleEntryCreate))
	mux.Handle("GET /api/entries/{entryID}", h.auth(h.handleEntryGet))
	mux.Handle("PUT /api/entries/{entryID}", h.auth(h.handleEntryUpdate))
	mux.Handle("DELETE /api/entries/{entryID}", h.auth(h.handleEntryDelete))

	mux.Handle("GET /api/themes", h.auth(h.handleThemeList))
	mux.Handle("DELETE /api/themes/{themeID}", h.auth(h.handleThemeDelete))

	mux.Handle("POST /api/insights/run", h.auth(h.handleInsightsRun))
	mux.Handle("GET /api/insights/status", h.auth(h.handleInsightsStatus))
	mux.Handle("GET /api/insights/history", h.auth(h.handleInsightsHistory))

	return mux
}

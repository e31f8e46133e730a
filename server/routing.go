package server

import (
	"net/http"
	"strings"
)

// routes builds the mux. Method-qualified patterns give 405 for free.
func (s *PTXServer) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.HandleRoot)
	mux.HandleFunc("GET /health", s.HandleHealth)
	mux.Handle("GET /metrics", MetricsHandler(s.services.Registry))

	mux.HandleFunc("GET /templates", s.HandleListTemplates)
	mux.HandleFunc("POST /templates", s.HandleCreateTemplate)
	mux.HandleFunc("GET /templates/{id}", s.HandleGetTemplate)
	mux.HandleFunc("PUT /templates/{id}", s.HandleUpdateTemplate)
	mux.HandleFunc("DELETE /templates/{id}", s.HandleDeleteTemplate)

	mux.HandleFunc("GET /datasets", s.HandleListDatasets)
	mux.HandleFunc("POST /datasets", s.HandleUploadDataset)
	mux.HandleFunc("POST /datasets/import", s.HandleImportDataset)
	mux.HandleFunc("GET /datasets/{id}", s.HandleGetDataset)
	mux.HandleFunc("DELETE /datasets/{id}", s.HandleDeleteDataset)
	mux.HandleFunc("GET /datasets/{id}/records/{idx}", s.HandleGetRecord)

	mux.HandleFunc("POST /llm/run", s.HandleRun)
	mux.HandleFunc("POST /llm/batch", s.HandleBatch)
	mux.HandleFunc("GET /jobs", s.HandleListJobs)
	mux.HandleFunc("GET /jobs/{id}/status", s.HandleJobStatus)
	mux.HandleFunc("GET /jobs/{id}/result", s.HandleJobResult)
	mux.HandleFunc("POST /jobs/save", s.HandleSaveResults)
	mux.HandleFunc("GET /ws/jobs/{id}", s.HandleJobWebSocket)

	return s.metrics.Middleware(s.corsMiddleware(mux))
}

// corsMiddleware adds CORS headers for allowed origins and answers preflights
func (s *PTXServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.checkOrigin(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkOrigin allows requests without an Origin header and origins that
// start with a configured allowed origin, so any port matches.
func (s *PTXServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(s.allowedOrigins) == 0 {
		return strings.HasPrefix(origin, "http://localhost") ||
			strings.HasPrefix(origin, "https://localhost")
	}
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	return false
}

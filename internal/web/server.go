package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/meridianyield/rotor/internal/automation"
	"github.com/meridianyield/rotor/internal/logger"
	"github.com/meridianyield/rotor/internal/state"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer exposes the read-only reporting API plus a manual cycle trigger.
type WebServer struct {
	router    *mux.Router
	port      string
	automator *automation.Automator
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, automator *automation.Automator) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:    mux.NewRouter(),
		port:      port,
		automator: automator,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/records", ws.handleGetRecords).Methods("GET")
	api.HandleFunc("/records/latest", ws.handleGetLatestRecord).Methods("GET")
	api.HandleFunc("/records/summary", ws.handleGetRecordSummary).Methods("GET")
	api.HandleFunc("/records/{id:[0-9]+}", ws.handleGetRecord).Methods("GET")
	api.HandleFunc("/pools/ranked", ws.handleGetRankedPools).Methods("GET")
	api.HandleFunc("/automation/run", ws.handleRunCycle).Methods("POST")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth reports database health and the outcome of the latest cycle.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbHealthy := true
	if err := state.TestDBConnection(); err != nil {
		dbHealthy = false
	}

	currentCycle, err := state.GetCurrentCycleNumber()
	if err != nil {
		currentCycle = 0
	}

	var cycleInfo map[string]interface{}
	latest, err := state.GetLatestRecord()
	if err == nil && latest != nil {
		cycleInfo = map[string]interface{}{
			"current_cycle":      currentCycle,
			"last_cycle_time":    latest.Timestamp,
			"last_cycle_success": latest.Success,
			"last_decision":      latest.Decision,
		}
	} else {
		cycleInfo = map[string]interface{}{
			"current_cycle":      currentCycle,
			"last_cycle_time":    nil,
			"last_cycle_success": false,
			"last_decision":      nil,
		}
	}

	status := "OK"
	statusCode := http.StatusOK
	if !dbHealthy {
		status = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, statusCode, map[string]interface{}{
		"status":           status,
		"timestamp":        time.Now().UTC().Format(time.RFC3339Nano),
		"database_healthy": dbHealthy,
		"cycle_info":       cycleInfo,
	})
}

// handleGetRecords returns recent automation records
func (ws *WebServer) handleGetRecords(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	records, err := state.GetRecentRecords(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent records")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve records")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
		"limit":   limit,
	})
}

// handleGetLatestRecord returns the most recent automation record
func (ws *WebServer) handleGetLatestRecord(w http.ResponseWriter, r *http.Request) {
	record, err := state.GetLatestRecord()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get latest record")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve latest record")
		return
	}
	if record == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "No records found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, record)
}

// handleGetRecord returns a specific automation record by ID
func (ws *WebServer) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid record ID")
		return
	}

	record, err := state.GetRecordByID(id)
	if err != nil {
		webLogger.Error().Err(err).Int64("recordId", id).Msg("Failed to get record")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve record")
		return
	}
	if record == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Record not found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, record)
}

// handleGetRecordSummary returns aggregate cycle statistics
func (ws *WebServer) handleGetRecordSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := state.GetRecordSummary()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get record summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve summary")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, summary)
}

// handleGetRankedPools returns the ranking from the most recent cycle
func (ws *WebServer) handleGetRankedPools(w http.ResponseWriter, r *http.Request) {
	ranked := ws.automator.LatestRanked()

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"pools":     ranked,
		"count":     len(ranked),
		"timestamp": time.Now().UTC(),
	})
}

// handleRunCycle triggers an automation cycle out of schedule. The cycle
// runs in the background; only its start is reported here.
func (ws *WebServer) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	err := ws.automator.StartCycleAsync(ctx)
	if err == automation.ErrCycleInProgress {
		cancel()
		ws.writeErrorResponse(w, http.StatusConflict, "An automation cycle is already running")
		return
	}
	// Release the context once the background cycle can no longer need it.
	time.AfterFunc(10*time.Minute, cancel)

	ws.writeJSONResponse(w, http.StatusAccepted, map[string]interface{}{
		"message":   "Automation cycle triggered",
		"timestamp": time.Now().UTC(),
	})
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	ws.writeJSONResponse(w, statusCode, map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

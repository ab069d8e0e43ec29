package httpapi

import "time"

// modelsTimeout bounds the backend call behind GET /models.
var modelsTimeout = 10 * time.Second

// SetModelsTimeout sets the GET /models backend timeout. Non-positive restores the default.
func SetModelsTimeout(d time.Duration) {
	if d <= 0 {
		d = 10 * time.Second
	}
	modelsTimeout = d
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}

package types

// StatusResponse summarizes the bot's runtime state for GET /status.
type StatusResponse struct {
	// Model used for /infer.
	// example: tusharhero/rationalai
	ActiveModel string `json:"active_model" example:"tusharhero/rationalai"`
	// Delivery mode, buffered or streaming.
	// example: streaming
	Mode string `json:"mode" example:"streaming"`
	// Fragments per periodic edit in streaming mode.
	// example: 5
	ChunkSize int `json:"chunk_size" example:"5"`
	// Commands currently being handled.
	// example: 2
	Inflight int64 `json:"inflight" example:"2"`
	// Background model pulls still running.
	// example: 0
	PullsInProgress int64 `json:"pulls_in_progress" example:"0"`
	// Telegram updates received since start.
	// example: 128
	UpdatesTotal int64 `json:"updates_total" example:"128"`
	// Whether the poller has reached Telegram at least once.
	// example: true
	Polling bool `json:"polling" example:"true"`
	// Seconds since the process started.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server wall clock as a Unix timestamp.
	// example: 1760000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1760000000"`
	// Build version.
	// example: v1.0.0
	Version string `json:"version" example:"v1.0.0"`
}

// ModelsResponse lists the models installed on the inference backend for GET /models.
type ModelsResponse struct {
	// Installed model names.
	Models []string `json:"models"`
	// The currently active model, which may be absent from Models.
	// example: tusharhero/rationalai
	Active string `json:"active" example:"tusharhero/rationalai"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: inference backend unavailable
	Error string `json:"error" example:"inference backend unavailable"`
	// HTTP status code.
	// example: 502
	Code int `json:"code" example:"502"`
}

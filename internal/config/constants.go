package config

import (
	"time"

	"github.com/c2h5oh/datasize"
)

// Application constants
const (
	AppName    = "tabtweak"
	AppVersion = "1.0.0"

	DefaultPort      = 8080
	DefaultLogLevel  = "info"
	DefaultRateLimit = 100 // requests per second
	DefaultBurstSize = 50

	WebSocketPingPeriod = 30 * time.Second
	WebSocketPongWait   = 60 * time.Second

	DataCacheDuration       = 15 * time.Minute
	DefaultOperationTimeout = 30 * time.Minute

	DefaultMaxInputSize = 512 * datasize.MB
	DefaultCacheSize    = 128 * datasize.MB
)

// API paths
const (
	APIBasePath       = "/api"
	HealthEndpoint    = "/healthz"
	MetricsEndpoint   = "/metrics"
	WebSocketEndpoint = "/ws"
)

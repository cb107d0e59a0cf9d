// Package timeouts defines shared timeout constants used across services.
// Centralizing these values prevents drift between service boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// ReadHeader limits how long the API server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long a server waits for in-flight requests during
// graceful shutdown.
const Shutdown = 5 * time.Second

// TelegramRequest caps a single outbound Telegram Bot API call made while
// handling an update.
const TelegramRequest = 10 * time.Second

// StoreRequest caps a single storage call made on behalf of one update or
// HTTP request.
const StoreRequest = 5 * time.Second

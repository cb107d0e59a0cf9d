// Package rest exposes the read-only referral progress HTTP API.
package rest

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/earnpro/referralpro/internal/platform/errors"
	"github.com/earnpro/referralpro/internal/services/referral/domain"
	"github.com/earnpro/referralpro/internal/services/referral/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type progressEngine interface {
	ResolveReferralCode(ctx context.Context, code string) (storage.User, error)
	Progress(ctx context.Context, userID int64) (domain.Progress, error)
}

// Handler serves the progress and health endpoints.
type Handler struct {
	engine         progressEngine
	allowedOrigins map[string]bool
}

// NewHandler creates the api HTTP handler with CORS and tracing wired in.
// Origins are matched exactly against the allowlist.
func NewHandler(engine progressEngine, allowedOrigins []string) http.Handler {
	h := &Handler{
		engine:         engine,
		allowedOrigins: make(map[string]bool, len(allowedOrigins)),
	}
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			h.allowedOrigins[origin] = true
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/referral/progress", h.handleProgress)
	mux.HandleFunc("/api/health", h.handleHealth)
	return otelhttp.NewHandler(h.cors(mux), "referral-api")
}

type progressPayload struct {
	ActiveReferrals int     `json:"active_referrals"`
	TotalReferrals  int     `json:"total_referrals"`
	Target          *int    `json:"target"`
	Remaining       int     `json:"remaining"`
	TargetReached   bool    `json:"target_reached"`
	ProgressPercent float64 `json:"progress_percentage"`
}

type progressResponse struct {
	OK       bool            `json:"ok"`
	UserID   int64           `json:"user_id"`
	Progress progressPayload `json:"progress"`
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}
	if h == nil || h.engine == nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	query := r.URL.Query()
	rawUserID := strings.TrimSpace(query.Get("user_id"))
	code := strings.TrimSpace(query.Get("referral_code"))
	if rawUserID == "" && code == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "user_id or referral_code is required"})
		return
	}

	var userID int64
	if code != "" {
		user, err := h.engine.ResolveReferralCode(r.Context(), code)
		if err != nil {
			writeError(w, err)
			return
		}
		userID = user.UserID
	} else {
		parsed, err := strconv.ParseInt(rawUserID, 10, 64)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "user_id must be a positive integer"})
			return
		}
		userID = parsed
	}

	progress, err := h.engine.Progress(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progressResponse{
		OK:       true,
		UserID:   userID,
		Progress: toPayload(progress),
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// cors enforces the exact-match origin allowlist and answers preflights.
func (h *Handler) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && h.allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func toPayload(progress domain.Progress) progressPayload {
	payload := progressPayload{
		ActiveReferrals: progress.ActiveReferrals,
		TotalReferrals:  progress.TotalReferrals,
		Remaining:       progress.Remaining,
		TargetReached:   progress.TargetReached,
		ProgressPercent: progress.Percent,
	}
	if progress.TargetSet {
		target := progress.Target
		payload.Target = &target
	}
	return payload
}

// writeError maps domain error codes to HTTP statuses. Internal detail is
// logged, never sent to the caller.
func writeError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	status := code.HTTPStatus()
	message := "internal error"
	switch status {
	case http.StatusNotFound:
		message = "unknown user or referral code"
	case http.StatusServiceUnavailable:
		message = "service unavailable"
	default:
		log.Printf("progress request failed: %v", err)
	}
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("encode response: %v", err)
	}
}

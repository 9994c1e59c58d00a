package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"unicode"

	"github.com/brojonat/vialytics/service/analytics"
	"github.com/brojonat/vialytics/service/chat"
	"github.com/brojonat/vialytics/service/db"
	"github.com/brojonat/vialytics/service/prices"
	"github.com/brojonat/vialytics/service/solana"
	"github.com/brojonat/vialytics/service/temporal"
	"github.com/google/uuid"
)

const (
	maxRequestBodySize = 1 << 20
	maxAddressLength   = 100 // Solana addresses are at most 44 chars
)

// handleGetAnalytics returns a wallet's analytics, computing and caching them
// when no cached copy exists or refresh=true is passed.
// GET /api/v1/analytics/{address}?refresh=true
func handleGetAnalytics(store Store, analyzer *analytics.Analyzer, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		ctx := r.Context()

		if r.URL.Query().Get("refresh") != "true" {
			cached, err := store.GetAnalytics(ctx, address)
			switch {
			case err == nil:
				w.Header().Set("Last-Modified", cached.UpdatedAt.UTC().Format(http.TimeFormat))
				writeRawJSON(w, cached.Data, http.StatusOK)
				return
			case !errors.Is(err, db.ErrNotFound):
				logger.ErrorContext(ctx, "failed to read cached analytics", "wallet", address, "error", err)
				writeError(w, "internal server error", http.StatusInternalServerError)
				return
			}
		}

		result, err := analyzer.Analyze(ctx, store, address)
		if err != nil {
			logger.ErrorContext(ctx, "failed to compute analytics", "wallet", address, "error", err)
			writeError(w, "failed to compute analytics", http.StatusInternalServerError)
			return
		}

		data, err := json.Marshal(result)
		if err != nil {
			logger.ErrorContext(ctx, "failed to marshal analytics", "wallet", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if err := store.SaveAnalytics(ctx, address, data); err != nil {
			logger.WarnContext(ctx, "failed to cache analytics", "wallet", address, "error", err)
		}

		logger.DebugContext(ctx, "analytics computed", "wallet", address, "bytes", len(data))
		writeRawJSON(w, data, http.StatusOK)
	})
}

// handleStartJob creates an index job and hands it to the workflow engine.
// POST /api/v1/analytics/{address}/jobs
func handleStartJob(store Store, jobs temporal.JobStarter, maxPages int, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		ctx := r.Context()

		job, err := store.CreateJob(ctx, uuid.NewString(), address)
		if err != nil {
			logger.ErrorContext(ctx, "failed to create job", "wallet", address, "error", err)
			writeError(w, "failed to create job", http.StatusInternalServerError)
			return
		}

		input := temporal.IndexWalletInput{JobID: job.ID, WalletAddress: address, MaxPages: maxPages}
		if err := jobs.StartIndexJob(ctx, input); err != nil {
			logger.ErrorContext(ctx, "failed to start index job", "job_id", job.ID, "wallet", address, "error", err)
			msg := fmt.Sprintf("failed to start: %v", err)
			if _, uerr := store.UpdateJob(ctx, db.UpdateJobParams{ID: job.ID, Status: db.JobFailed, Error: &msg}); uerr != nil {
				logger.ErrorContext(ctx, "failed to mark job failed", "job_id", job.ID, "error", uerr)
			}
			writeError(w, "failed to start index job", http.StatusServiceUnavailable)
			return
		}

		logger.InfoContext(ctx, "index job started", "job_id", job.ID, "wallet", address)
		writeJSON(w, job, http.StatusAccepted)
	})
}

// handleGetJob returns an index job's status record.
// GET /api/v1/jobs/{id}
func handleGetJob(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, err := uuid.Parse(id); err != nil {
			writeError(w, "invalid job id", http.StatusBadRequest)
			return
		}

		job, err := store.GetJob(r.Context(), id)
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, "job not found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to get job", "job_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, job, http.StatusOK)
	})
}

// handleEnrichment returns third-party enrichment for a wallet.
// GET /api/v1/enrichment/{address}?cache=false
func handleEnrichment(enricher Enricher, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		useCache := r.URL.Query().Get("cache") != "false"

		enrichment, err := enricher.Enrichment(r.Context(), address, useCache)
		if err != nil {
			logger.ErrorContext(r.Context(), "enrichment failed", "wallet", address, "error", err)
			writeError(w, "enrichment unavailable", http.StatusBadGateway)
			return
		}
		writeJSON(w, enrichment, http.StatusOK)
	})
}

type chatRequest struct {
	Address string `json:"address"`
	Message string `json:"message"`
}

// handleChat answers a question about a wallet.
// POST /api/v1/chat
func handleChat(c Chatter, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			if strings.Contains(err.Error(), "http: request body too large") {
				writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}
		if err := validateAddress(req.Address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		resp, err := c.Ask(r.Context(), req.Address, req.Message)
		if errors.Is(err, chat.ErrEmptyMessage) {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err != nil {
			logger.ErrorContext(r.Context(), "chat failed", "wallet", req.Address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, resp, http.StatusOK)
	})
}

type priceResponse struct {
	Mint      string  `json:"mint"`
	Currency  string  `json:"currency"`
	Price     float64 `json:"price"`
	Formatted string  `json:"formatted"`
}

// handleGetPrice returns the oracle's unit price for a mint.
// GET /api/v1/prices/{mint}?currency=USD
func handleGetPrice(oracle prices.Oracle, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mint := r.PathValue("mint")
		if err := validateAddress(mint); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		currency := strings.ToUpper(r.URL.Query().Get("currency"))
		if currency == "" {
			currency = prices.DefaultCurrency
		}

		price := oracle.Price(r.Context(), mint, currency)
		logger.DebugContext(r.Context(), "price looked up", "mint", mint, "currency", currency, "price", price)
		writeJSON(w, priceResponse{
			Mint:      mint,
			Currency:  currency,
			Price:     price,
			Formatted: prices.FormatAmount(price, currency),
		}, http.StatusOK)
	})
}

type labelResponse struct {
	Address string `json:"address"`
	Label   string `json:"label"`
	Known   bool   `json:"known"`
}

// handleGetLabel names an address.
// GET /api/v1/labels/{address}
func handleGetLabel(labels Labeler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, labelResponse{
			Address: address,
			Label:   labels.Label(address),
			Known:   labels.IsKnown(address),
		}, http.StatusOK)
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeRawJSON writes an already encoded JSON document.
func writeRawJSON(w http.ResponseWriter, data []byte, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, map[string]string{"error": message}, statusCode)
}

// validateAddress rejects anything that is not a plausible base58 public key.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}
	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}
	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
	}
	if err := solana.ValidateAddress(address); err != nil {
		return errorf("invalid address format: must be a base58 Solana public key")
	}
	return nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...any) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}

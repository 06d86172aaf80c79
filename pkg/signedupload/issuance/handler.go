package issuance

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/tendant/signed-upload/pkg/signedupload"
	"github.com/tendant/signed-upload/pkg/signedupload/auth"
)

const defaultMaxBodyBytes = 64 << 10

// Headers browsers send to the endpoint
var allowedHeaders = []string{"Authorization", "Content-Type", "X-Client-Info", "Apikey"}

// ErrorResponse is the JSON body of every non-200 response
type ErrorResponse struct {
	Error   signedupload.Kind `json:"error"`
	Details string            `json:"details,omitempty"`
	Missing *Missing          `json:"missing,omitempty"`
}

// Handler serves the credential issuance endpoint
type Handler struct {
	svc            *Service
	verifier       auth.Verifier
	logger         *slog.Logger
	metrics        *Metrics
	allowedOrigins []string
	maxBodyBytes   int64
}

// HandlerOption configures a Handler
type HandlerOption func(*Handler)

// WithLogger sets the logger (slog.Default() otherwise)
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithMetrics records outcomes on m
func WithMetrics(m *Metrics) HandlerOption {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithAllowedOrigins restricts CORS origins (default "*")
func WithAllowedOrigins(origins ...string) HandlerOption {
	return func(h *Handler) {
		if len(origins) > 0 {
			h.allowedOrigins = origins
		}
	}
}

// WithMaxBodyBytes caps the request body size
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// NewHandler creates the issuance HTTP handler
func NewHandler(svc *Service, verifier auth.Verifier, opts ...HandlerOption) *Handler {
	h := &Handler{
		svc:            svc,
		verifier:       verifier,
		logger:         slog.Default(),
		allowedOrigins: []string{"*"},
		maxBodyBytes:   defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the router for the issuance endpoint
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.CORS())
	r.Use(h.recoverer)

	r.Options("/", h.Preflight)
	r.Options("/*", h.Preflight)
	r.Post("/", h.IssueCredential)
	return r
}

// CORS returns the middleware the issuance routes use. Processes serving other routes next to
// the handler apply it to them too.
func (h *Handler) CORS() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: h.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: allowedHeaders,
		MaxAge:         300,
	})
}

// Preflight answers OPTIONS requests that the CORS middleware let through
func (h *Handler) Preflight(w http.ResponseWriter, r *http.Request) {
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		w.Header().Set("Access-Control-Allow-Origin", h.allowedOrigins[0])
	}
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "authorization, content-type, x-client-info, apikey")
	w.WriteHeader(http.StatusOK)
}

// IssueCredential authenticates the caller and returns a signed credential bundle
func (h *Handler) IssueCredential(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	token, err := auth.BearerToken(r)
	if err != nil {
		h.logger.Info("Credential request without usable bearer token", "err", err)
		h.writeError(w, r, start, OutcomeUnauthenticated, http.StatusUnauthorized, ErrorResponse{
			Error:   signedupload.KindUnauthenticated,
			Details: "missing or malformed Authorization header",
		})
		return
	}

	identity, err := h.verifier.VerifyToken(ctx, token)
	if err != nil {
		if errors.Is(err, auth.ErrProviderUnavailable) {
			h.logger.Error("Identity provider unavailable", "err", err)
			h.writeError(w, r, start, OutcomeInternal, http.StatusInternalServerError, ErrorResponse{
				Error:   signedupload.KindInternal,
				Details: "identity provider unavailable",
			})
			return
		}
		h.logger.Info("Bearer token rejected", "err", err)
		h.writeError(w, r, start, OutcomeUnauthenticated, http.StatusUnauthorized, ErrorResponse{
			Error:   signedupload.KindUnauthenticated,
			Details: "invalid or expired token",
		})
		return
	}

	req, err := h.decodeRequest(w, r)
	if err != nil {
		h.logger.Info("Failed to decode credential request", "subject", identity.SubjectID, "err", err)
		h.writeError(w, r, start, OutcomeMalformed, http.StatusBadRequest, ErrorResponse{
			Error:   signedupload.KindMalformedRequest,
			Details: "request body must be a JSON object",
		})
		return
	}

	if req.TestMode {
		if !h.svc.TestModeAllowed() {
			h.writeError(w, r, start, OutcomeMalformed, http.StatusBadRequest, ErrorResponse{
				Error:   signedupload.KindMalformedRequest,
				Details: "test_mode is disabled in this environment",
			})
			return
		}
		h.logger.Info("Credential test mode probe", "subject", identity.SubjectID)
		h.metrics.Observe(OutcomeTestMode, time.Since(start))
		render.JSON(w, r, h.svc.Diagnose())
		return
	}

	bundle, err := h.svc.Issue(ctx, identity, req)
	if err != nil {
		h.handleIssueError(w, r, start, identity, err)
		return
	}

	h.logger.Info("Upload credential issued",
		"subject", identity.SubjectID,
		"folder", bundle.Folder,
		"timestamp", bundle.Timestamp,
		"public_id_set", bundle.PublicID != "",
	)
	h.metrics.Observe(OutcomeIssued, time.Since(start))
	render.JSON(w, r, bundle)
}

func (h *Handler) handleIssueError(w http.ResponseWriter, r *http.Request, start time.Time, identity auth.Identity, err error) {
	switch signedupload.KindOf(err) {
	case signedupload.KindConfiguration:
		missing := h.svc.Missing()
		h.logger.Error("Upload signing is not configured",
			"cloud_name_missing", missing.CloudName,
			"api_key_missing", missing.APIKey,
			"api_secret_missing", missing.APISecret,
		)
		h.writeError(w, r, start, OutcomeConfiguration, http.StatusInternalServerError, ErrorResponse{
			Error:   signedupload.KindConfiguration,
			Details: "upload signing is not configured on the server",
			Missing: &missing,
		})
	case signedupload.KindMalformedRequest:
		var e *signedupload.Error
		errors.As(err, &e)
		h.writeError(w, r, start, OutcomeMalformed, http.StatusBadRequest, ErrorResponse{
			Error:   signedupload.KindMalformedRequest,
			Details: e.Message,
		})
	case signedupload.KindUnauthenticated:
		h.writeError(w, r, start, OutcomeUnauthenticated, http.StatusUnauthorized, ErrorResponse{
			Error:   signedupload.KindUnauthenticated,
			Details: "invalid or expired token",
		})
	default:
		h.logger.Error("Failed to issue upload credential", "subject", identity.SubjectID, "err", err)
		h.writeError(w, r, start, OutcomeInternal, http.StatusInternalServerError, ErrorResponse{
			Error:   signedupload.KindInternal,
			Details: "internal error",
		})
	}
}

// decodeRequest accepts an empty body or a JSON object
func (h *Handler) decodeRequest(w http.ResponseWriter, r *http.Request) (IssueRequest, error) {
	var req IssueRequest
	if r.Body == nil {
		return req, nil
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		return req, err
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return req, nil
	}

	if err := json.Unmarshal(body, &req); err != nil {
		return req, err
	}
	return req, nil
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, start time.Time, outcome string, status int, resp ErrorResponse) {
	h.metrics.Observe(outcome, time.Since(start))
	render.Status(r, status)
	render.JSON(w, r, resp)
}

// recoverer turns panics into a generic InternalError response
func (h *Handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.logger.Error("Panic while issuing credential", "panic", rec)
				h.writeError(w, r, start, OutcomeInternal, http.StatusInternalServerError, ErrorResponse{
					Error:   signedupload.KindInternal,
					Details: "internal error",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

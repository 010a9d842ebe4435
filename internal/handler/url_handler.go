package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/sniplink/sniplink/internal/errors"
	"github.com/sniplink/sniplink/internal/logger"
	"github.com/sniplink/sniplink/internal/model"
	"github.com/sniplink/sniplink/internal/service"
)

// URLHandler handles HTTP requests for URL operations
type URLHandler struct {
	service *service.URLService
	log     *logger.Logger
}

// NewURLHandler creates a new handler instance
func NewURLHandler(svc *service.URLService, log *logger.Logger) *URLHandler {
	return &URLHandler{
		service: svc,
		log:     log,
	}
}

// ============ HANDLERS ============

// HandleShorten creates a new short URL
// POST /api/shorten
func (h *URLHandler) HandleShorten(w http.ResponseWriter, r *http.Request) {
	var req model.ShortenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.InvalidJSON(err.Error()).WriteJSON(w)
		return
	}

	resp, err := h.service.Shorten(r.Context(), req)
	if err != nil {
		h.writeError(w, "shorten", req.URL, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleRedirect redirects to the original URL
// GET /{shortCode}
func (h *URLHandler) HandleRedirect(w http.ResponseWriter, r *http.Request) {
	shortCode := r.PathValue("shortCode")

	originalURL, err := h.service.Resolve(r.Context(), shortCode)
	if err != nil {
		h.writeError(w, "redirect", shortCode, err)
		return
	}

	// 302 rather than 301: a permanent redirect would let browsers skip
	// the service entirely and the click counter with it.
	http.Redirect(w, r, originalURL, http.StatusFound)
}

// HandleClicks returns the click counter for a short URL
// GET /api/clicks/{shortCode}
func (h *URLHandler) HandleClicks(w http.ResponseWriter, r *http.Request) {
	shortCode := r.PathValue("shortCode")

	resp, err := h.service.GetClicks(r.Context(), shortCode)
	if err != nil {
		h.writeError(w, "clicks", shortCode, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleUnshorten resolves a short code without counting a click
// GET /api/unshorten/{shortCode}
func (h *URLHandler) HandleUnshorten(w http.ResponseWriter, r *http.Request) {
	shortCode := r.PathValue("shortCode")

	resp, err := h.service.Unshorten(r.Context(), shortCode)
	if err != nil {
		h.writeError(w, "unshorten", shortCode, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleQRCode returns a PNG QR code for the short URL
// GET /api/qr/{shortCode}
func (h *URLHandler) HandleQRCode(w http.ResponseWriter, r *http.Request) {
	shortCode := r.PathValue("shortCode")

	png, err := h.service.QRCode(r.Context(), shortCode)
	if err != nil {
		h.writeError(w, "qr", shortCode, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// HandleHealth returns service health status
// GET /health
func (h *URLHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "healthy"}`))
}

// ============ ROUTER SETUP ============

// SetupRoutes configures all HTTP routes
func (h *URLHandler) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/shorten", h.HandleShorten)
	mux.HandleFunc("GET /api/clicks/{shortCode}", h.HandleClicks)
	mux.HandleFunc("GET /api/unshorten/{shortCode}", h.HandleUnshorten)
	mux.HandleFunc("GET /api/qr/{shortCode}", h.HandleQRCode)
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Single-segment catch-all for redirects; specific routes above win
	mux.HandleFunc("GET /{shortCode}", h.HandleRedirect)

	return mux
}

// ============ HELPERS ============

// writeError normalizes an error at the request boundary: AppErrors go
// out as-is, everything else is logged with operation context and
// surfaced as a generic internal error.
func (h *URLHandler) writeError(w http.ResponseWriter, op, subject string, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		appErr.WriteJSON(w)
		return
	}

	h.log.Error("request failed", "op", op, "subject", subject, "error", err.Error())
	apperrors.Internal().WriteJSON(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

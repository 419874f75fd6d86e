package lawgen

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lexforge/lexforge/modules/billing"
	"github.com/lexforge/lexforge/pkg/logger"
)

// RouterConfig wires the lawgen HTTP surface.
type RouterConfig struct {
	Service *Service

	// CurrentUser resolves the authenticated user id from the request.
	CurrentUser func(r *http.Request) (uuid.UUID, bool)

	Logger *slog.Logger
}

// Router mounts the law endpoints.
func Router(cfg RouterConfig) chi.Router {
	if cfg.Service == nil {
		panic("lawgen: RouterConfig.Service is required")
	}
	if cfg.CurrentUser == nil {
		panic("lawgen: RouterConfig.CurrentUser is required")
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDiscard()
	}

	h := &httpHandler{svc: cfg.Service, currentUser: cfg.CurrentUser, log: log}

	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/generate", h.generate)
	r.Get("/search", h.search)
	r.Get("/attempts", h.attempts)
	r.Get("/constitution", h.constitution)
	r.Post("/constitution", h.generateConstitution)
	r.Get("/{lawID}", h.get)
	r.Post("/{lawID}/favorite", h.favorite)
	return r
}

type httpHandler struct {
	svc         *Service
	currentUser func(r *http.Request) (uuid.UUID, bool)
	log         *slog.Logger
}

func (h *httpHandler) generate(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	law, err := h.svc.GenerateLaw(r.Context(), userID, req.Prompt)
	switch {
	case errors.Is(err, ErrEmptyPrompt):
		writeError(w, http.StatusBadRequest, "prompt is required")
	case writeInsufficientCredits(w, err):
	case errors.Is(err, ErrGenerationFailed):
		// Charged but undelivered; the attempt record has the details.
		writeError(w, http.StatusBadGateway, "law generation failed")
	case err != nil:
		h.serverError(w, r, err)
	default:
		writeJSON(w, http.StatusCreated, law)
	}
}

func (h *httpHandler) generateConstitution(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req ConstitutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	constitution, err := h.svc.GenerateConstitution(r.Context(), userID, req)
	switch {
	case writeInsufficientCredits(w, err):
	case errors.Is(err, ErrGenerationFailed):
		writeError(w, http.StatusBadGateway, "constitution generation failed")
	case err != nil:
		h.serverError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, constitution)
	}
}

func (h *httpHandler) constitution(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	constitution, err := h.svc.GetConstitution(r.Context(), userID)
	switch {
	case errors.Is(err, ErrConstitutionNotFound):
		writeError(w, http.StatusNotFound, "constitution not found")
	case err != nil:
		h.serverError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, constitution)
	}
}

func (h *httpHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	laws, err := h.svc.ListLaws(r.Context(), userID, limit, offset)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"laws": laws})
}

func (h *httpHandler) search(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	laws, err := h.svc.SearchLaws(r.Context(), userID, r.URL.Query().Get("q"), limit)
	switch {
	case errors.Is(err, ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "query parameter q is required")
	case writeInsufficientCredits(w, err):
	case err != nil:
		h.serverError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"laws": laws})
	}
}

func (h *httpHandler) get(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	lawID, err := uuid.Parse(chi.URLParam(r, "lawID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "law not found")
		return
	}

	law, err := h.svc.GetLaw(r.Context(), userID, lawID)
	switch {
	case errors.Is(err, ErrLawNotFound):
		writeError(w, http.StatusNotFound, "law not found")
	case err != nil:
		h.serverError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, law)
	}
}

func (h *httpHandler) favorite(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	lawID, err := uuid.Parse(chi.URLParam(r, "lawID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "law not found")
		return
	}

	law, err := h.svc.ToggleFavorite(r.Context(), userID, lawID)
	switch {
	case errors.Is(err, ErrLawNotFound):
		writeError(w, http.StatusNotFound, "law not found")
	case err != nil:
		h.serverError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, law)
	}
}

func (h *httpHandler) attempts(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	attempts, err := h.svc.RecentAttempts(r.Context(), userID, limit)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": attempts})
}

func (h *httpHandler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.log.Error("lawgen request failed",
		slog.String("path", r.URL.Path),
		logger.Error(err),
		logger.Component("lawgen"),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// writeInsufficientCredits answers 402 with the shortfall when err is a
// credit-balance failure; reports whether it handled the error.
func writeInsufficientCredits(w http.ResponseWriter, err error) bool {
	ice, ok := billing.IsInsufficientCredits(err)
	if !ok {
		return false
	}
	writeJSON(w, http.StatusPaymentRequired, map[string]any{
		"error":     "insufficient credits",
		"required":  ice.Required,
		"available": ice.Available,
	})
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

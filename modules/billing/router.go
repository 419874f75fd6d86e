package billing

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lexforge/lexforge/pkg/logger"
)

// Stripe caps webhook payloads well below this; larger bodies are abuse.
const maxWebhookBody = 1 << 16

// RouterConfig wires the billing HTTP surface.
type RouterConfig struct {
	Service *Service

	// CurrentUser resolves the authenticated user from the request. All
	// routes except the webhook require it.
	CurrentUser func(r *http.Request) (User, bool)

	// Redirect targets handed to the payment provider's hosted pages.
	CheckoutSuccessURL string
	CheckoutCancelURL  string
	PortalReturnURL    string

	Logger *slog.Logger
}

// Router mounts the billing endpoints.
func Router(cfg RouterConfig) chi.Router {
	if cfg.Service == nil {
		panic("billing: RouterConfig.Service is required")
	}
	if cfg.CurrentUser == nil {
		panic("billing: RouterConfig.CurrentUser is required")
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDiscard()
	}

	h := &httpHandler{svc: cfg.Service, cfg: cfg, log: log}

	r := chi.NewRouter()
	r.Get("/dashboard", h.dashboard)
	r.Post("/checkout", h.checkout)
	r.Get("/portal", h.portal)
	r.Post("/cancel", h.cancel)
	r.Post("/credits/use", h.useCredits)
	r.Post("/webhook", h.webhook)
	return r
}

type httpHandler struct {
	svc *Service
	cfg RouterConfig
	log *slog.Logger
}

func (h *httpHandler) dashboard(w http.ResponseWriter, r *http.Request) {
	user, ok := h.cfg.CurrentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	dash, err := h.svc.GetDashboard(r.Context(), userID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	plan := struct {
		Name        string  `json:"name,omitempty"`
		DisplayName string  `json:"display_name,omitempty"`
		Credits     int64   `json:"credits_per_month,omitempty"`
		Remaining   int64   `json:"credits_remaining"`
		UsagePct    float64 `json:"usage_percentage"`
	}{
		Remaining: dash.Subscription.RemainingCredits(dash.Plan),
		UsagePct:  dash.Subscription.UsagePercentage(dash.Plan),
	}
	if dash.Plan != nil {
		plan.Name = dash.Plan.Name
		plan.DisplayName = dash.Plan.DisplayName
		plan.Credits = dash.Plan.CreditsPerMonth
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          dash.Subscription.Status,
		"plan":            plan,
		"plans":           dash.Plans,
		"recent_usage":    dash.RecentUsage,
		"billing_history": dash.RecentInvoices,
	})
}

func (h *httpHandler) checkout(w http.ResponseWriter, r *http.Request) {
	user, ok := h.cfg.CurrentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req struct {
		Plan string `json:"plan"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Plan == "" {
		writeError(w, http.StatusBadRequest, "plan is required")
		return
	}

	url, err := h.svc.Checkout(r.Context(), user, req.Plan, h.cfg.CheckoutSuccessURL, h.cfg.CheckoutCancelURL)
	switch {
	case errors.Is(err, ErrPlanNotFound), errors.Is(err, ErrPlanInactive):
		writeError(w, http.StatusNotFound, "unknown or inactive plan")
	case errors.Is(err, ErrGatewayUnavailable):
		writeError(w, http.StatusBadGateway, "payment provider unavailable, try again")
	case err != nil:
		h.serverError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"checkout_url": url})
	}
}

func (h *httpHandler) portal(w http.ResponseWriter, r *http.Request) {
	user, ok := h.cfg.CurrentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	url, err := h.svc.PortalLink(r.Context(), user, h.cfg.PortalReturnURL)
	switch {
	case errors.Is(err, ErrGatewayUnavailable):
		writeError(w, http.StatusBadGateway, "payment provider unavailable, try again")
	case err != nil:
		h.serverError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"portal_url": url})
	}
}

func (h *httpHandler) cancel(w http.ResponseWriter, r *http.Request) {
	user, ok := h.cfg.CurrentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	err = h.svc.Cancel(r.Context(), userID)
	switch {
	case errors.Is(err, ErrSubscriptionNotFound), errors.Is(err, ErrNoProviderSub):
		writeError(w, http.StatusNotFound, "no active subscription to cancel")
	case errors.Is(err, ErrGatewayUnavailable):
		writeError(w, http.StatusBadGateway, "payment provider unavailable, try again")
	case err != nil:
		h.serverError(w, r, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *httpHandler) useCredits(w http.ResponseWriter, r *http.Request) {
	user, ok := h.cfg.CurrentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req struct {
		Amount      int64  `json:"amount"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be a positive integer")
		return
	}
	if req.Description == "" {
		req.Description = "Credit usage"
	}

	remaining, err := h.svc.UseCredits(r.Context(), userID, req.Amount, req.Description)
	if ice, ok := IsInsufficientCredits(err); ok {
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"error":     "insufficient credits",
			"required":  ice.Required,
			"available": ice.Available,
		})
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"credits_remaining": remaining})
}

// webhook receives signed provider events. Unsigned payloads never reach
// the reconciler; reconciliation misses answer 5xx so the provider
// retries with backoff until the race resolves.
func (h *httpHandler) webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable payload")
		return
	}

	err = h.svc.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, ErrWebhookSignature):
		// Stripe only distinguishes 2xx from everything else; 400 keeps
		// signature failures out of the retry queue alongside other
		// rejected payloads.
		writeError(w, http.StatusBadRequest, "invalid signature")
	case errors.Is(err, ErrMalformedEvent):
		writeError(w, http.StatusBadRequest, "malformed event")
	default:
		// Unknown customer, unmapped price, storage failure: report
		// failure so the provider redelivers.
		h.log.Error("webhook processing failed", logger.Error(err), logger.Component("billing"))
		writeError(w, http.StatusInternalServerError, "event not processed")
	}
}

func (h *httpHandler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.log.Error("billing request failed",
		slog.String("path", r.URL.Path),
		logger.Error(err),
		logger.Component("billing"),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

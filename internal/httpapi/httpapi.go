// Package httpapi exposes the synchronization service over HTTP: the open
// machine-to-machine sync and webhook routes, plus a small bearer-protected
// admin surface for inspecting the audit trail and the pending queue.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"caminhocerto/syncserver/internal/cache"
	"caminhocerto/syncserver/internal/domain"
	"caminhocerto/syncserver/internal/evolution"
	"caminhocerto/syncserver/internal/peer"
	syncsvc "caminhocerto/syncserver/internal/sync"
)

type API struct {
	service       *syncsvc.Service
	auth          *AuthManager
	webhooks      *evolution.Router
	messenger     *evolution.Client
	linx          *peer.Client
	products      cache.ProductListingCache
	productTTL    time.Duration
	countryCode   string
	groupID       string
	allowedOrigin string
	loginLimiter  *attemptLimiter
	logger        *zap.Logger
}

type Options struct {
	Service       *syncsvc.Service
	Auth          *AuthManager
	Webhooks      *evolution.Router
	Messenger     *evolution.Client
	Linx          *peer.Client
	Products      cache.ProductListingCache
	ProductTTL    time.Duration
	CountryCode   string
	GroupID       string
	AllowedOrigin string
	Logger        *zap.Logger
}

func New(opts Options) *API {
	if opts.Products == nil {
		opts.Products = cache.NoopProductListingCache{}
	}
	if opts.ProductTTL <= 0 {
		opts.ProductTTL = time.Minute
	}
	if opts.CountryCode == "" {
		opts.CountryCode = "55"
	}
	return &API{
		service:       opts.Service,
		auth:          opts.Auth,
		webhooks:      opts.Webhooks,
		messenger:     opts.Messenger,
		linx:          opts.Linx,
		products:      opts.Products,
		productTTL:    opts.ProductTTL,
		countryCode:   opts.CountryCode,
		groupID:       opts.GroupID,
		allowedOrigin: opts.AllowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		logger:        opts.Logger,
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", a.handleHealth)

	mux.HandleFunc("/sync/linx-sale", a.handleLinxSale)
	mux.HandleFunc("/sync/queue-sale", a.handleQueueSale)
	mux.HandleFunc("/sync/linx-products", a.handleLinxProducts)
	mux.HandleFunc("/sync/status", a.handleSyncStatus)

	mux.HandleFunc("/api/webhooks/evolution", a.handleWebhook)
	mux.HandleFunc("/api/webhooks/evolution/test", a.handleWebhookProbe)
	mux.HandleFunc("/evolution/send-report", a.handleSendReport)
	mux.HandleFunc("/evolution/send-clock-notification", a.handleClockNotification)

	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/sync/audit", a.requireAuth(a.handleAuditRecords, "admin"))
	mux.HandleFunc("/api/v1/sync/pending", a.requireAuth(a.handlePendingSales, "admin"))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			a.writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			a.writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			a.writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r)
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleLinxSale ingests a sale that happened on the Linx side and reduces
// local stock. Per-item problems are reported in the per-item results; only
// a payload without items fails the request as a whole.
func (a *API) handleLinxSale(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}

	var payload domain.LinxSalePayload
	if err := decodeJSON(r, &payload); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "invalid sale payload: " + err.Error(),
		})
		return
	}

	results, err := a.service.IngestLinxSale(r.Context(), payload)
	if err != nil {
		// Shape validation failures surface the same way as decode
		// failures: a 500 with the error detail.
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, domain.LinxSaleResponse{
		Success: true,
		Message: "sale processed",
		Results: results,
	})
}

// handleQueueSale delivers a locally-created sale to Linx, falling back to
// the durable queue. Both outcomes are a success from the caller's point of
// view: the sale is either delivered or safely queued.
func (a *API) handleQueueSale(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}

	var sale json.RawMessage
	if err := decodeJSON(r, &sale); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "invalid sale payload: " + err.Error(),
		})
		return
	}

	delivered, err := a.service.QueueSale(r.Context(), sale)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	message := "sale queued for delivery"
	if delivered {
		message = "sale delivered"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"delivered": delivered,
		"message":   message,
	})
}

// handleLinxProducts proxies the Linx product listing, with a short-lived
// cache in front so poll-happy clients do not hammer the peer.
func (a *API) handleLinxProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	if cached, ok, err := a.products.Get(r.Context()); err == nil && ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(cached)
		return
	} else if err != nil {
		a.logger.Warn("product listing cache read failed", zap.Error(err))
	}

	listing, err := a.linx.ListProducts(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	if err := a.products.Set(r.Context(), listing, a.productTTL); err != nil {
		a.logger.Warn("product listing cache write failed", zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(listing)
}

func (a *API) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	pending, err := a.service.PendingCount(r.Context())
	if err != nil {
		a.logger.Warn("failed to count pending sales", zap.Error(err))
		pending = -1
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "online",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"linx_url":  a.linx.BaseURL(),
		"pending":   pending,
	})
}

// handleWebhook receives Evolution API events. The response is always HTTP
// 200: a non-2xx answer makes the provider retry deliveries this service
// already chose how to handle.
func (a *API) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}

	var envelope domain.WebhookEnvelope
	if err := decodeJSON(r, &envelope); err != nil {
		a.logger.Warn("malformed webhook payload", zap.Error(err))
		writeJSON(w, http.StatusOK, domain.WebhookAck{
			Success: false,
			Error:   "malformed payload",
		})
		return
	}

	if err := a.webhooks.Dispatch(r.Context(), envelope); err != nil {
		a.logger.Warn("webhook handler failed",
			zap.String("event", envelope.Event),
			zap.String("instance", envelope.Instance),
			zap.Error(err))
		writeJSON(w, http.StatusOK, domain.WebhookAck{
			Success:  false,
			Event:    envelope.Event,
			Instance: envelope.Instance,
			Error:    err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, domain.WebhookAck{
		Success:  true,
		Message:  "event received",
		Event:    envelope.Event,
		Instance: envelope.Instance,
	})
}

func (a *API) handleWebhookProbe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "webhook endpoint reachable",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleSendReport formats and sends a shift-closing summary over WhatsApp.
// The report goes to the employee's number when given, otherwise to the
// configured store group.
func (a *API) handleSendReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}

	var req domain.ShiftReportRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	recipient := evolution.NormalizeNumber(req.WhatsAppNumber, a.countryCode)
	if recipient == "" {
		recipient = a.groupID
	}
	if recipient == "" {
		a.writeError(w, http.StatusBadRequest, errors.New("no whatsapp number or group configured"))
		return
	}

	result, err := a.messenger.SendText(r.Context(), recipient, evolution.FormatShiftReport(req))
	if err != nil {
		a.logger.Error("failed to send shift report", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, domain.SendMessageResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, domain.SendMessageResponse{
		Success:   true,
		Message:   "report sent",
		MessageID: result.MessageID,
	})
}

func (a *API) handleClockNotification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}

	var req domain.ClockNotificationRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	recipient := evolution.NormalizeNumber(req.WhatsAppNumber, a.countryCode)
	if recipient == "" {
		a.writeError(w, http.StatusBadRequest, errors.New("whatsapp_number is required"))
		return
	}

	text, err := evolution.FormatClockNotification(req)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := a.messenger.SendText(r.Context(), recipient, text)
	if err != nil {
		a.logger.Error("failed to send clock notification", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, domain.SendMessageResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, domain.SendMessageResponse{
		Success:   true,
		Message:   "notification sent",
		MessageID: result.MessageID,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		a.writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		a.writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleAuditRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	records, err := a.service.ListSyncRecords(r.Context(), limit)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (a *API) handlePendingSales(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	pending, err := a.service.ListPendingSales(r.Context(), limit)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}

	items := make([]map[string]any, 0, len(pending))
	for _, item := range pending {
		items = append(items, map[string]any{
			"id":            item.ID,
			"attempts":      item.Attempts,
			"max_attempts":  item.MaxAttempts,
			"next_retry_at": item.NextRetryAt.UTC().Format(time.RFC3339),
			"created_at":    item.CreatedAt.UTC().Format(time.RFC3339),
			"state":         syncsvc.StateOf(item),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": items})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if a.allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Vary", "Origin")
		}

		if r.Method == http.MethodPost && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		a.logger.Debug("request handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(startedAt)))
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func (a *API) writeMethodNotAllowed(w http.ResponseWriter) {
	a.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	// 5xx details stay in the log; the response carries a generic message.
	// 4xx responses are caller-facing so the original message is returned.
	msg := err.Error()
	if status >= 500 {
		a.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	appcart "github.com/Zhima-Mochi/freshcut/internal/application/cart"
	appcheckout "github.com/Zhima-Mochi/freshcut/internal/application/checkout"
	apporder "github.com/Zhima-Mochi/freshcut/internal/application/order"
	domcart "github.com/Zhima-Mochi/freshcut/internal/domain/cart"
	"github.com/Zhima-Mochi/freshcut/internal/domain/catalog"
	domcheckout "github.com/Zhima-Mochi/freshcut/internal/domain/checkout"
	domorder "github.com/Zhima-Mochi/freshcut/internal/domain/order"
	dompay "github.com/Zhima-Mochi/freshcut/internal/domain/payment"
	"github.com/Zhima-Mochi/freshcut/internal/domain/transaction"
	"github.com/Zhima-Mochi/freshcut/internal/observability"
	"github.com/Zhima-Mochi/freshcut/internal/observability/logctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	headerSessionID      = "X-Session-ID"
	headerCustomerID     = "X-Customer-ID"
)

// PaymentSessions is the server side of the hosted payment widget.
type PaymentSessions interface {
	Options(orderID string) (dompay.Options, bool)
	DeliverSuccess(ctx context.Context, orderID string, resp dompay.Response) error
	DeliverDismiss(ctx context.Context, orderID string) error
}

// ReceiptSource serves stored billing artifacts by object name.
type ReceiptSource interface {
	Object(name string) ([]byte, bool)
}

// CacheInvalidator drops cached product reads after an admin edit.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, id string) error
}

// Deps are the collaborators the HTTP surface dispatches into. Sessions,
// Receipts, Cache and Health are optional.
type Deps struct {
	Carts    *appcart.Service
	Checkout *appcheckout.Service
	Ledger   *apporder.Ledger
	Catalog  catalog.Repository
	Cache    CacheInvalidator
	Sessions PaymentSessions
	Receipts ReceiptSource
	Health   func(context.Context) error
}

type Handler struct {
	deps Deps
	log  observability.Logger
	tel  observability.Observability
}

func NewHandler(deps Deps, logger observability.Logger, tel observability.Observability) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = tel.Logger()
	}
	return &Handler{
		deps: deps,
		log:  baseLogger.With(observability.F("component", componentHTTPHandler)),
		tel:  tel,
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// Trace → ObservabilityMiddleware (request logger, metrics) → Access log → Handler
	h.muxHandle(mux, http.MethodGet, "/health", h.handleHealth)

	h.muxHandle(mux, http.MethodGet, "/cart", h.handleGetCart)
	h.muxHandle(mux, http.MethodPost, "/cart/lines", h.handleAddLine)
	h.muxHandle(mux, http.MethodPatch, "/cart/lines", h.handleSetQuantity)
	h.muxHandle(mux, http.MethodDelete, "/cart/lines", h.handleRemoveLine)
	h.muxHandle(mux, http.MethodPost, "/cart/attach", h.handleAttachCart)

	h.muxHandle(mux, http.MethodPost, "/checkout", h.handleStartCheckout)
	h.muxHandle(mux, http.MethodGet, "/checkout/{id}", h.handleCheckoutOptions)
	h.muxHandle(mux, http.MethodPost, "/checkout/{id}/payment", h.handlePayment)
	h.muxHandle(mux, http.MethodPost, "/checkout/{id}/dismiss", h.handleDismiss)
	h.muxHandle(mux, http.MethodPost, "/webhooks/payment", h.handlePaymentWebhook)

	h.muxHandle(mux, http.MethodGet, "/orders/{id}/confirmation", h.handleConfirmation)
	h.muxHandle(mux, http.MethodGet, "/receipts/{name}", h.handleReceipt)

	h.muxHandle(mux, http.MethodGet, "/admin/orders", h.handleListOrders)
	h.muxHandle(mux, http.MethodPatch, "/admin/orders/{id}/fulfilled", h.handleSetFulfilled)
	h.muxHandle(mux, http.MethodPost, "/admin/orders/{id}/cancel", h.handleCancelOrder)
	h.muxHandle(mux, http.MethodGet, "/admin/transactions", h.handleListTransactions)
	h.muxHandle(mux, http.MethodPost, "/admin/products", h.handleUpsertProduct)

	return mux
}

func (h *Handler) muxHandle(mux *http.ServeMux, method, route string, handler http.HandlerFunc) {
	pattern := method + " " + route
	wrapped := h.withTrace(
		ObservabilityMiddleware(
			h.log,
			func(r *http.Request) string { return r.Header.Get(headerRequestID) },
			func(r *http.Request) string { return r.Header.Get(headerSessionID) },
			h.tel,
		)(h.withAccessLog(handler)),
	)
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		// Stable route template for low-cardinality labels
		wrapped.ServeHTTP(w, r.WithContext(contextWithRoute(r.Context(), pattern)))
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.deps.Health != nil {
		if err := h.deps.Health(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// withAccessLog writes a single access log after the handler completes.
// It relies on the request-scoped logger already injected by ObservabilityMiddleware.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		logctx.FromOr(r.Context(), h.log).Info("http_access",
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withTrace creates a server span for the request using OTel and W3C propagation.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracer := otel.Tracer("freshcut.http")
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		route := routeFromContext(parentCtx)
		spanName := route
		if spanName == "unknown" {
			spanName = r.Method + " " + r.URL.Path
		}
		template := route
		if idx := strings.Index(template, " "); idx >= 0 {
			template = template[idx+1:]
		}
		if template == "unknown" || template == "" {
			template = r.URL.Path
		}

		ctxWithSpan, span := tracer.Start(parentCtx,
			spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", template),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
			),
		)
		defer span.End()

		next.ServeHTTP(w, r.WithContext(ctxWithSpan))
	})
}

func ownerFrom(r *http.Request) appcart.Owner {
	return appcart.Owner{
		SessionID:  r.Header.Get(headerSessionID),
		CustomerID: r.Header.Get(headerCustomerID),
	}
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return domcheckout.Validation("malformed request body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeDomainError(w http.ResponseWriter, err error) {
	var recon *domcheckout.ReconciliationError
	if errors.As(err, &recon) {
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error":    err.Error(),
			"order_id": recon.OrderID,
		})
		return
	}
	switch {
	case errors.Is(err, domcheckout.ErrValidation),
		errors.Is(err, catalog.ErrInvalidProduct):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domcheckout.ErrUnverifiedPayment):
		writeError(w, http.StatusUnauthorized, err)
	case errors.Is(err, domcheckout.ErrPaymentFailure):
		writeError(w, http.StatusPaymentRequired, err)
	case errors.Is(err, domorder.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, transaction.ErrNotFound),
		errors.Is(err, domcart.ErrLineNotFound),
		errors.Is(err, dompay.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domorder.ErrInvalidStateTransition),
		errors.Is(err, domorder.ErrConflict),
		errors.Is(err, domorder.ErrFulfillBeforePaid),
		errors.Is(err, domcheckout.ErrInventoryConflict):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, domcheckout.ErrPersistence):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

type routeKey struct{}

// contextWithRoute stores the stable route template in the context so downstream
// metrics/logging can rely on low-cardinality values.
func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}

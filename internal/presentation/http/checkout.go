package httppresentation

import (
	"errors"
	"net/http"
	"path"
	"strings"

	domorder "github.com/Zhima-Mochi/freshcut/internal/domain/order"
	dompay "github.com/Zhima-Mochi/freshcut/internal/domain/payment"
	"github.com/Zhima-Mochi/freshcut/internal/observability"
	"github.com/Zhima-Mochi/freshcut/internal/observability/logctx"
)

type startCheckoutRequest struct {
	Customer domorder.Customer `json:"customer"`
}

type startCheckoutResponse struct {
	OrderID string         `json:"order_id"`
	Number  int64          `json:"number"`
	Total   int64          `json:"total"`
	Payment dompay.Options `json:"payment"`
}

type paymentResponse struct {
	OrderID      string          `json:"order_id"`
	Status       domorder.Status `json:"status"`
	PaymentRef   string          `json:"payment_ref"`
	AlreadyPaid  bool            `json:"already_paid"`
	InventoryErr string          `json:"inventory_error,omitempty"`
}

type webhookRequest struct {
	OrderID string          `json:"order_id"`
	Payment dompay.Response `json:"payment"`
}

type confirmationResponse struct {
	Order       orderView `json:"order"`
	ArtifactRef string    `json:"billing_artifact_ref"`
	Generating  bool      `json:"generating"`
	ShareLink   string    `json:"share_link,omitempty"`
}

func (h *Handler) handleStartCheckout(w http.ResponseWriter, r *http.Request) {
	var req startCheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	started, err := h.deps.Checkout.Start(r.Context(), ownerFrom(r), req.Customer)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, startCheckoutResponse{
		OrderID: started.OrderID,
		Number:  started.Number,
		Total:   started.Total,
		Payment: started.Options,
	})
}

// handleCheckoutOptions lets a reloaded page reopen the widget of a pending order.
func (h *Handler) handleCheckoutOptions(w http.ResponseWriter, r *http.Request) {
	if h.deps.Sessions == nil {
		writeDomainError(w, dompay.ErrSessionNotFound)
		return
	}
	opts, ok := h.deps.Sessions.Options(r.PathValue("id"))
	if !ok {
		writeDomainError(w, dompay.ErrSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

// handlePayment is the browser-side success callback of the widget.
func (h *Handler) handlePayment(w http.ResponseWriter, r *http.Request) {
	var resp dompay.Response
	if err := decodeJSON(r, &resp); err != nil {
		writeDomainError(w, err)
		return
	}
	orderID := r.PathValue("id")
	res, err := h.deps.Checkout.CompletePayment(r.Context(), ownerFrom(r), orderID, resp)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	body := paymentResponse{
		OrderID:     res.Order.ID,
		Status:      res.Order.Status,
		PaymentRef:  res.Order.PaymentRef,
		AlreadyPaid: res.AlreadyPaid,
	}
	if res.InventoryErr != nil {
		body.InventoryErr = res.InventoryErr.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) handleDismiss(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")
	var err error
	if h.deps.Sessions != nil {
		err = h.deps.Sessions.DeliverDismiss(r.Context(), orderID)
	}
	if h.deps.Sessions == nil || errors.Is(err, dompay.ErrSessionNotFound) {
		err = h.deps.Checkout.Dismiss(r.Context(), orderID)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePaymentWebhook receives the provider's server-to-server success report
// and runs it through the open widget session. The outcome is logged by the
// checkout use case; the provider only needs an acknowledgement.
func (h *Handler) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	if h.deps.Sessions == nil {
		writeDomainError(w, dompay.ErrSessionNotFound)
		return
	}
	if err := h.deps.Sessions.DeliverSuccess(r.Context(), req.OrderID, req.Payment); err != nil {
		logctx.FromOr(r.Context(), h.log).Warn("payment_webhook_unmatched",
			observability.F("order_id", req.OrderID),
			observability.F("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleConfirmation(w http.ResponseWriter, r *http.Request) {
	view, err := h.deps.Checkout.Confirmation(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmationResponse{
		Order:       toOrderView(view.Order),
		ArtifactRef: view.ArtifactRef,
		Generating:  view.Generating,
		ShareLink:   view.ShareLink,
	})
}

func (h *Handler) handleReceipt(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if h.deps.Receipts == nil || name != path.Base(name) || strings.HasPrefix(name, ".") {
		http.NotFound(w, r)
		return
	}
	body, ok := h.deps.Receipts.Object(name)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

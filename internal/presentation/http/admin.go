package httppresentation

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Zhima-Mochi/freshcut/internal/domain/cart"
	"github.com/Zhima-Mochi/freshcut/internal/domain/catalog"
	domcheckout "github.com/Zhima-Mochi/freshcut/internal/domain/checkout"
	domorder "github.com/Zhima-Mochi/freshcut/internal/domain/order"
	"github.com/Zhima-Mochi/freshcut/internal/domain/transaction"
	"github.com/Zhima-Mochi/freshcut/internal/observability"
	"github.com/Zhima-Mochi/freshcut/internal/observability/logctx"
	"github.com/shopspring/decimal"
)

type orderView struct {
	ID                 string            `json:"id"`
	Number             int64             `json:"number"`
	Status             domorder.Status   `json:"status"`
	Fulfilled          bool              `json:"fulfilled"`
	Customer           domorder.Customer `json:"customer"`
	Lines              []cart.Line       `json:"lines"`
	Total              int64             `json:"total"`
	PaymentRef         string            `json:"payment_ref,omitempty"`
	BillingArtifactRef string            `json:"billing_artifact_ref,omitempty"`
	CancelReason       string            `json:"cancel_reason,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

func toOrderView(o *domorder.Order) orderView {
	return orderView{
		ID:                 o.ID,
		Number:             o.Number,
		Status:             o.Status,
		Fulfilled:          o.Fulfilled,
		Customer:           o.Customer,
		Lines:              o.Lines,
		Total:              o.Total(),
		PaymentRef:         o.PaymentRef,
		BillingArtifactRef: o.BillingArtifactRef,
		CancelReason:       o.CancelReason,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
}

type transactionView struct {
	ID         string             `json:"id"`
	OrderID    string             `json:"order_id"`
	PaymentRef string             `json:"payment_ref"`
	Amount     int64              `json:"amount"`
	Currency   string             `json:"currency"`
	Status     transaction.Status `json:"status"`
	Customer   domorder.Customer  `json:"customer"`
	CreatedAt  time.Time          `json:"created_at"`
}

type setFulfilledRequest struct {
	Fulfilled bool `json:"fulfilled"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type productRequest struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Category         string          `json:"category"`
	PricePerKilogram int64           `json:"price_per_kg"`
	StockKilograms   decimal.Decimal `json:"stock_kg"`
	ImageRef         string          `json:"image_ref"`
}

type productResponse struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Category         string          `json:"category"`
	PricePerKilogram int64           `json:"price_per_kg"`
	StockKilograms   decimal.Decimal `json:"stock_kg"`
	ImageRef         string          `json:"image_ref,omitempty"`
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domorder.Filter{Status: domorder.Status(q.Get("status"))}
	if raw := q.Get("fulfilled"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeDomainError(w, domcheckout.Validation("fulfilled must be true or false"))
			return
		}
		f.Fulfilled = &v
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	f.Limit = limit

	orders, err := h.deps.Ledger.List(r.Context(), f)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]orderView, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderView(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleSetFulfilled(w http.ResponseWriter, r *http.Request) {
	var req setFulfilledRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	o, err := h.deps.Ledger.SetFulfilled(r.Context(), r.PathValue("id"), req.Fulfilled)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(o))
}

func (h *Handler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "cancelled by admin"
	}
	o, err := h.deps.Ledger.Cancel(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(o))
}

func (h *Handler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	txs, err := h.deps.Ledger.ListTransactions(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]transactionView, 0, len(txs))
	for _, tx := range txs {
		out = append(out, transactionView{
			ID:         tx.ID,
			OrderID:    tx.OrderID,
			PaymentRef: tx.PaymentRef,
			Amount:     tx.Amount,
			Currency:   tx.Currency,
			Status:     tx.Status,
			Customer:   tx.Customer,
			CreatedAt:  tx.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleUpsertProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	p, err := catalog.New(req.ID, req.Name, req.Category, req.PricePerKilogram, req.StockKilograms, req.ImageRef)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.deps.Catalog.Upsert(r.Context(), p); err != nil {
		writeDomainError(w, err)
		return
	}
	if h.deps.Cache != nil {
		if err := h.deps.Cache.Invalidate(r.Context(), p.ID); err != nil {
			logctx.FromOr(r.Context(), h.log).Warn("product_cache_invalidate_failed",
				observability.F("product_id", p.ID),
				observability.F("error", err.Error()),
			)
		}
	}
	writeJSON(w, http.StatusOK, productResponse{
		ID:               p.ID,
		Name:             p.Name,
		Category:         p.Category,
		PricePerKilogram: p.PricePerKilogram,
		StockKilograms:   p.StockKilograms,
		ImageRef:         p.ImageRef,
	})
}

func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domcheckout.Validation("limit must be a non-negative integer")
	}
	return n, nil
}

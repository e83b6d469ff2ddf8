package httppresentation

import (
	"encoding/json"
	"net/http"
	"strings"

	domcart "github.com/Zhima-Mochi/freshcut/internal/domain/cart"
	domcheckout "github.com/Zhima-Mochi/freshcut/internal/domain/checkout"
	"github.com/Zhima-Mochi/freshcut/internal/domain/pricing"
)

type cartResponse struct {
	SessionID  string         `json:"session_id,omitempty"`
	CustomerID string         `json:"customer_id,omitempty"`
	Lines      []domcart.Line `json:"lines"`
	Total      int64          `json:"total"`
}

func toCartResponse(c *domcart.Cart) cartResponse {
	lines := c.Snapshot()
	if lines == nil {
		lines = []domcart.Line{}
	}
	return cartResponse{
		SessionID:  c.SessionID,
		CustomerID: c.CustomerID,
		Lines:      lines,
		Total:      c.Total(),
	}
}

// weightInput accepts what a weight field holds in a browser form: a JSON
// number or the raw text the customer typed.
type weightInput string

func (w *weightInput) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*w = weightInput(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*w = weightInput(n.String())
	return nil
}

func (w weightInput) grams() int { return pricing.ParseWeight(string(w)) }

type addLineRequest struct {
	ProductID string      `json:"product_id"`
	Weight    weightInput `json:"weight"`
}

type lineRequest struct {
	ProductID   string `json:"product_id"`
	WeightGrams int    `json:"weight_grams"`
	Quantity    int    `json:"quantity"`
}

type attachRequest struct {
	SessionID  string `json:"session_id"`
	CustomerID string `json:"customer_id"`
}

func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.deps.Carts.Get(r.Context(), ownerFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *Handler) handleAddLine(w http.ResponseWriter, r *http.Request) {
	var req addLineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		writeDomainError(w, domcheckout.Validation("product_id is required"))
		return
	}
	c, err := h.deps.Carts.AddLine(r.Context(), ownerFrom(r), req.ProductID, req.Weight.grams())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *Handler) handleSetQuantity(w http.ResponseWriter, r *http.Request) {
	var req lineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	c, err := h.deps.Carts.SetQuantity(r.Context(), ownerFrom(r), req.ProductID, req.WeightGrams, req.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *Handler) handleRemoveLine(w http.ResponseWriter, r *http.Request) {
	var req lineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	c, err := h.deps.Carts.RemoveLine(r.Context(), ownerFrom(r), req.ProductID, req.WeightGrams)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

// handleAttachCart runs at sign-in: the anonymous cart joins the customer's.
func (h *Handler) handleAttachCart(w http.ResponseWriter, r *http.Request) {
	var req attachRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	if req.SessionID == "" {
		req.SessionID = r.Header.Get(headerSessionID)
	}
	if req.CustomerID == "" {
		req.CustomerID = r.Header.Get(headerCustomerID)
	}
	c, err := h.deps.Carts.Attach(r.Context(), req.SessionID, req.CustomerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

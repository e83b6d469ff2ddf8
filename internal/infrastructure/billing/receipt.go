// Package billing renders receipts and stores them.
package billing

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/Zhima-Mochi/freshcut/internal/domain/cart"
	"github.com/Zhima-Mochi/freshcut/internal/domain/order"
	"github.com/Zhima-Mochi/freshcut/internal/domain/pricing"
)

//go:embed templates/receipt.html.tmpl
var templates embed.FS

const contentTypeHTML = "text/html; charset=utf-8"

// Shop is printed in the receipt header.
type Shop struct {
	Name     string
	Phone    string
	Currency string
}

// HTMLRenderer renders an order as a self-contained HTML receipt. Output
// depends only on the order and the shop, so re-rendering is stable.
type HTMLRenderer struct {
	shop Shop
	tmpl *template.Template
}

func NewHTMLRenderer(shop Shop) (*HTMLRenderer, error) {
	tmpl, err := template.New("receipt.html.tmpl").Funcs(template.FuncMap{
		"kg":       func(grams int) string { return pricing.Kilograms(grams).StringFixed(3) },
		"subtotal": func(l cart.Line) int64 { return l.Subtotal() },
		"date":     func(t time.Time) string { return t.UTC().Format("02 Jan 2006 15:04 MST") },
	}).ParseFS(templates, "templates/receipt.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("billing: parse receipt template: %w", err)
	}
	return &HTMLRenderer{shop: shop, tmpl: tmpl}, nil
}

type receiptView struct {
	Shop  Shop
	Order *order.Order
	Total int64
}

func (r *HTMLRenderer) Render(o *order.Order) ([]byte, string, error) {
	if o == nil {
		return nil, "", fmt.Errorf("billing: nil order")
	}
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, receiptView{Shop: r.shop, Order: o, Total: o.Total()}); err != nil {
		return nil, "", fmt.Errorf("billing: render receipt %s: %w", o.ID, err)
	}
	return buf.Bytes(), contentTypeHTML, nil
}

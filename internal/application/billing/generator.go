// Package billing produces the receipt of a paid order.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/freshcut/internal/application"
	dombilling "github.com/Zhima-Mochi/freshcut/internal/domain/billing"
	"github.com/Zhima-Mochi/freshcut/internal/domain/checkout"
	domorder "github.com/Zhima-Mochi/freshcut/internal/domain/order"
	"github.com/Zhima-Mochi/freshcut/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	billingService  = "billing-generator"
	useCaseGenerate = "billing.generate"
	storagePeer     = "artifact_storage"
)

var ErrOrderNotPaid = errors.New("billing: order is not paid")

// Orders is the slice of the order ledger the generator needs.
type Orders interface {
	Get(ctx context.Context, orderID string) (*domorder.Order, error)
	AttachBillingArtifact(ctx context.Context, orderID, ref string) error
}

type Generator struct {
	orders   Orders
	renderer dombilling.Renderer
	storage  dombilling.Storage
	probe    application.Probe

	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewGenerator(orders Orders, renderer dombilling.Renderer, storage dombilling.Storage, tel observability.Observability) *Generator {
	if tel == nil {
		tel = observability.Nop()
	}
	m := tel.Metrics()
	return &Generator{
		orders:       orders,
		renderer:     renderer,
		storage:      storage,
		probe:        application.NewProbe(tel, billingService),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
	}
}

// Generate renders and uploads the receipt of a paid order and records its
// reference on the order. An order that already has one is left alone.
func (g *Generator) Generate(ctx context.Context, orderID string) (ref string, err error) {
	ctx, run := g.probe.Start(ctx, useCaseGenerate, "GenerateBillingArtifact",
		attribute.String("order.id", orderID),
	)
	defer func() { run.End(err) }()

	o, err := g.orders.Get(ctx, orderID)
	if err != nil {
		run.Fail("ORDER_LOOKUP_FAILED")
		return "", fmt.Errorf("%w: %w", checkout.ErrArtifactGeneration, err)
	}
	if o.Status != domorder.StatusPaid {
		run.Fail("ORDER_NOT_PAID")
		return "", fmt.Errorf("%w: %w: status %s", checkout.ErrArtifactGeneration, ErrOrderNotPaid, o.Status)
	}
	if o.BillingArtifactRef != "" {
		run.Status("ALREADY_GENERATED")
		return o.BillingArtifactRef, nil
	}

	body, contentType, err := g.renderer.Render(o)
	if err != nil {
		run.Fail("RENDER_FAILED")
		return "", fmt.Errorf("%w: %w", checkout.ErrArtifactGeneration, err)
	}
	run.Field("artifact_bytes", len(body))

	ref, err = g.upload(ctx, dombilling.ArtifactName(o), body, contentType)
	if err != nil {
		run.Fail("UPLOAD_FAILED")
		return "", fmt.Errorf("%w: %w", checkout.ErrArtifactGeneration, err)
	}

	if err := g.orders.AttachBillingArtifact(ctx, orderID, ref); err != nil {
		run.Fail("ATTACH_FAILED")
		return "", fmt.Errorf("%w: %w", checkout.ErrArtifactGeneration, err)
	}
	run.Field("artifact_ref", ref)
	return ref, nil
}

func (g *Generator) upload(ctx context.Context, name string, body []byte, contentType string) (string, error) {
	start := time.Now()
	ref, err := g.storage.Upload(ctx, name, body, contentType)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	g.extCounter.Add(1,
		observability.L("peer", storagePeer),
		observability.L("endpoint", "upload"),
		observability.L("outcome", outcome),
	)
	g.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", storagePeer),
		observability.L("endpoint", "upload"),
	)
	return ref, err
}

// Package cart serves cart edits for anonymous sessions and identified customers.
package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Zhima-Mochi/freshcut/internal/application"
	domcart "github.com/Zhima-Mochi/freshcut/internal/domain/cart"
	"github.com/Zhima-Mochi/freshcut/internal/domain/catalog"
	"github.com/Zhima-Mochi/freshcut/internal/domain/checkout"

	"go.opentelemetry.io/otel/attribute"
)

const (
	cartService       = "cart-service"
	useCaseCartAdd    = "cart.add_line"
	useCaseCartSetQty = "cart.set_quantity"
	useCaseCartRemove = "cart.remove_line"
	useCaseCartAttach = "cart.attach"
)

// Owner identifies whose cart is addressed. CustomerID wins when both are set.
type Owner struct {
	SessionID  string
	CustomerID string
}

func (o Owner) key() (string, error) {
	if id := strings.TrimSpace(o.CustomerID); id != "" {
		return domcart.CustomerKey(id), nil
	}
	if id := strings.TrimSpace(o.SessionID); id != "" {
		return domcart.SessionKey(id), nil
	}
	return "", checkout.Validation("session or customer id is required")
}

type Service struct {
	store   domcart.Store
	catalog catalog.Reader
	timeout time.Duration
	probe   application.Probe
}

func NewService(store domcart.Store, products catalog.Reader, storeTimeout time.Duration, probe application.Probe) *Service {
	return &Service{
		store:   store,
		catalog: products,
		timeout: storeTimeout,
		probe:   probe,
	}
}

// Get returns the owner's cart, or an empty one.
func (s *Service) Get(ctx context.Context, owner Owner) (*domcart.Cart, error) {
	key, err := owner.key()
	if err != nil {
		return nil, err
	}
	return s.load(ctx, key, owner)
}

func (s *Service) AddLine(ctx context.Context, owner Owner, productID string, weightGrams int) (c *domcart.Cart, err error) {
	ctx, run := s.probe.Start(ctx, useCaseCartAdd, "CartAddLine",
		attribute.String("product.id", productID),
		attribute.Int("cart.weight_grams", weightGrams),
	)
	defer func() { run.End(err) }()

	key, err := owner.key()
	if err != nil {
		run.Fail("OWNER_REQUIRED")
		return nil, err
	}
	if strings.TrimSpace(productID) == "" {
		run.Fail("PRODUCT_ID_REQUIRED")
		return nil, checkout.Validation("product id is required")
	}

	product, err := s.getProduct(ctx, productID)
	if err != nil {
		run.Fail("PRODUCT_LOOKUP_FAILED")
		return nil, err
	}

	var line domcart.Line
	c, err = s.update(ctx, key, owner, func(c *domcart.Cart) (err error) {
		line, err = c.AddOrMerge(product, weightGrams)
		return err
	})
	if err != nil {
		run.Fail(failStatus(err, "CART_ADD_FAILED"))
		return nil, err
	}
	run.Field("quantity", line.Quantity)
	return c, nil
}

func (s *Service) SetQuantity(ctx context.Context, owner Owner, productID string, weightGrams, quantity int) (c *domcart.Cart, err error) {
	ctx, run := s.probe.Start(ctx, useCaseCartSetQty, "CartSetQuantity",
		attribute.String("product.id", productID),
		attribute.Int("cart.quantity", quantity),
	)
	defer func() { run.End(err) }()

	key, err := owner.key()
	if err != nil {
		run.Fail("OWNER_REQUIRED")
		return nil, err
	}
	c, err = s.update(ctx, key, owner, func(c *domcart.Cart) error {
		return c.SetQuantity(productID, weightGrams, quantity)
	})
	if err != nil {
		run.Fail(failStatus(err, "LINE_NOT_FOUND"))
		return nil, err
	}
	return c, nil
}

func (s *Service) RemoveLine(ctx context.Context, owner Owner, productID string, weightGrams int) (c *domcart.Cart, err error) {
	ctx, run := s.probe.Start(ctx, useCaseCartRemove, "CartRemoveLine",
		attribute.String("product.id", productID),
	)
	defer func() { run.End(err) }()

	key, err := owner.key()
	if err != nil {
		run.Fail("OWNER_REQUIRED")
		return nil, err
	}
	c, err = s.update(ctx, key, owner, func(c *domcart.Cart) error {
		return c.Remove(productID, weightGrams)
	})
	if err != nil {
		run.Fail(failStatus(err, "LINE_NOT_FOUND"))
		return nil, err
	}
	return c, nil
}

// Clear drops the owner's cart, typically after an order was placed from it.
func (s *Service) Clear(ctx context.Context, owner Owner) error {
	key, err := owner.key()
	if err != nil {
		return err
	}
	ctx, cancel := application.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("%w: %w", checkout.ErrPersistence, err)
	}
	return nil
}

// Attach merges the session cart into the customer's cart and drops the session cart.
func (s *Service) Attach(ctx context.Context, sessionID, customerID string) (c *domcart.Cart, err error) {
	ctx, run := s.probe.Start(ctx, useCaseCartAttach, "CartAttach")
	defer func() { run.End(err) }()

	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(customerID) == "" {
		run.Fail("OWNER_REQUIRED")
		return nil, checkout.Validation("session and customer id are required")
	}
	sessionKey := domcart.SessionKey(sessionID)
	customerKey := domcart.CustomerKey(customerID)

	session, err := s.load(ctx, sessionKey, Owner{SessionID: sessionID})
	if err != nil {
		run.Fail("CART_LOAD_FAILED")
		return nil, err
	}
	c, err = s.update(ctx, customerKey, Owner{SessionID: sessionID, CustomerID: customerID}, func(c *domcart.Cart) error {
		c.Merge(session)
		c.SessionID = sessionID
		return nil
	})
	if err != nil {
		run.Fail("CART_SAVE_FAILED")
		return nil, err
	}
	if err := s.store.Delete(ctx, sessionKey); err != nil {
		run.Status("SESSION_CART_DELETE_FAILED")
		run.Logger().Warn("session_cart_delete_failed", application.ErrField(err))
	}
	run.Field("lines", len(c.Lines))
	return c, nil
}

func (s *Service) getProduct(ctx context.Context, id string) (*catalog.Product, error) {
	ctx, cancel := application.WithTimeout(ctx, s.timeout)
	defer cancel()
	p, err := s.catalog.Get(ctx, id)
	switch {
	case err == nil:
		return p, nil
	case errors.Is(err, catalog.ErrNotFound):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: %w", checkout.ErrPersistence, err)
	}
}

func (s *Service) load(ctx context.Context, key string, owner Owner) (*domcart.Cart, error) {
	ctx, cancel := application.WithTimeout(ctx, s.timeout)
	defer cancel()
	c, err := s.store.Load(ctx, key)
	switch {
	case err == nil:
		return c, nil
	case errors.Is(err, domcart.ErrCartNotFound):
		return &domcart.Cart{SessionID: owner.SessionID, CustomerID: owner.CustomerID}, nil
	default:
		return nil, fmt.Errorf("%w: %w", checkout.ErrPersistence, err)
	}
}

// update applies edit through the store's atomic Update so concurrent edits of
// one cart never overwrite each other. Errors from edit come back unwrapped.
func (s *Service) update(ctx context.Context, key string, owner Owner, edit func(*domcart.Cart) error) (*domcart.Cart, error) {
	ctx, cancel := application.WithTimeout(ctx, s.timeout)
	defer cancel()
	var editErr error
	c, err := s.store.Update(ctx, key, func(c *domcart.Cart) error {
		if c.SessionID == "" && c.CustomerID == "" {
			c.SessionID, c.CustomerID = owner.SessionID, owner.CustomerID
		}
		editErr = edit(c)
		return editErr
	})
	if editErr != nil {
		return nil, editErr
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", checkout.ErrPersistence, err)
	}
	return c, nil
}

func failStatus(err error, editStatus string) string {
	if errors.Is(err, checkout.ErrPersistence) {
		return "CART_UPDATE_FAILED"
	}
	return editStatus
}

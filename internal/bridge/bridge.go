// Package bridge keeps local orders and Garan24 orders in step.
//
// Provider to local: push notifications confirm a finished checkout and
// mark the local order paid. Local to provider: status transitions and
// item edits activate, cancel, update or refund the provider order, each
// gated by the gateway's push_* settings and by idempotency meta flags.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"garan24-bridge/internal/config"
	"garan24-bridge/internal/country"
	"garan24-bridge/internal/events"
	"garan24-bridge/internal/garan24"
	"garan24-bridge/internal/model"
	"garan24-bridge/internal/store"
	"garan24-bridge/internal/telemetry"
	"garan24-bridge/internal/translator"
)

// Claimer provides the short-lived atomic markers used to drop duplicate
// push notifications. session.Store implements it.
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Deps are the collaborators of a Bridge.
type Deps struct {
	Store    store.OrderStore
	Claims   Claimer
	Garan24  garan24.Factory
	Settings *config.GatewaySettings
	Events   events.Publisher
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger
}

// Bridge runs the order flows between the local store and Garan24.
type Bridge struct {
	store    store.OrderStore
	claims   Claimer
	garan24  garan24.Factory
	settings *config.GatewaySettings
	events   events.Publisher
	metrics  *telemetry.Metrics
	logger   *slog.Logger

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// New creates a Bridge. Events and Metrics may be nil.
func New(d Deps) *Bridge {
	pub := d.Events
	if pub == nil {
		pub = events.Nop{}
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		store:    d.Store,
		claims:   d.Claims,
		garan24:  d.Garan24,
		settings: d.Settings,
		events:   pub,
		metrics:  d.Metrics,
		logger:   logger,
		Now:      time.Now,
	}
}

func (b *Bridge) now() time.Time {
	if b.Now == nil {
		return time.Now()
	}
	return b.Now()
}

// Store returns the order store the bridge writes to.
func (b *Bridge) Store() store.OrderStore {
	return b.store
}

// Settings returns the gateway settings.
func (b *Bridge) Settings() *config.GatewaySettings {
	return b.settings
}

// translation returns translator options for an order's API.
func (b *Bridge) translation(api string) translator.Options {
	opts := translator.Options{
		API:        translator.Legacy,
		ExactRates: b.settings.ExactRates,
	}
	if api == model.APIRest {
		opts.API = translator.Rest
	}
	if fee := b.settings.Invoice.InvoiceFee; fee != nil {
		opts.InvoiceFeeName = fee.Name
	}
	return opts
}

// orderCountry is the purchase country of an order.
func orderCountry(o *model.Order) string {
	if c := o.MetaValue(model.MetaProviderCountry); c != "" {
		return country.Normalize(c)
	}
	return country.Normalize(o.Billing.Country)
}

// provider resolves the gateway settings and credentials for an order.
// A nil MethodSettings means the order was not paid with Garan24.
func (b *Bridge) provider(o *model.Order) (*config.MethodSettings, garan24.Credentials, error) {
	ms := b.settings.Method(o.PaymentMethod)
	if ms == nil {
		return nil, garan24.Credentials{}, nil
	}
	c := orderCountry(o)
	eid, secret, ok := ms.Credentials(c)
	if !ok {
		return ms, garan24.Credentials{}, model.NewValidationError("country", fmt.Sprintf("no Garan24 credentials for %q", c))
	}
	return ms, garan24.Credentials{EID: eid, Secret: secret}, nil
}

func (b *Bridge) rest(ms *config.MethodSettings, creds garan24.Credentials, o *model.Order) garan24.RestAPI {
	return b.garan24.Rest(creds, orderCountry(o), ms.TestMode)
}

func (b *Bridge) legacy(ms *config.MethodSettings, creds garan24.Credentials) garan24.LegacyAPI {
	return b.garan24.Legacy(creds, ms.TestMode)
}

// note writes an order note. Failing to write one is logged, not returned.
func (b *Bridge) note(ctx context.Context, id int64, format string, args ...any) {
	content := fmt.Sprintf(format, args...)
	if err := b.store.AddNote(ctx, id, content); err != nil {
		b.logger.ErrorContext(ctx, "failed to add order note",
			slog.Int64("order_id", id),
			slog.String("note", content),
			slog.String("error", err.Error()),
		)
	}
}

// fail notes and logs a failed provider call and returns err.
func (b *Bridge) fail(ctx context.Context, o *model.Order, action, prefix string, err error) error {
	b.note(ctx, o.ID, "%s %s", prefix, garan24.NoteFor(err))
	b.logger.ErrorContext(ctx, "garan24 "+action+" failed",
		slog.Int64("order_id", o.ID),
		slog.String("api", o.MetaValue(model.MetaAPI)),
		slog.String("error", err.Error()),
	)
	b.metrics.Action(ctx, action, o.MetaValue(model.MetaAPI), telemetry.OutcomeError)
	return err
}

func (b *Bridge) publish(ctx context.Context, e events.OrderEvent) {
	if err := b.events.Publish(ctx, e.Key(), e); err != nil {
		b.logger.WarnContext(ctx, "failed to publish order event",
			slog.String("type", e.Type),
			slog.Int64("order_id", e.OrderID),
			slog.String("error", err.Error()),
		)
	}
}

// PaymentComplete marks an order paid and records the provider's
// transaction reference. Orders that are already paid are left alone.
func (b *Bridge) PaymentComplete(ctx context.Context, o *model.Order, transactionID string) error {
	if o.Status.Paid() {
		return nil
	}
	prev := o.Status
	now := b.now()
	o.Status = model.StatusProcessing
	o.PaidAt = &now
	if transactionID != "" {
		if o.Meta == nil {
			o.Meta = make(map[string]string)
		}
		o.Meta[model.MetaTransactionID] = transactionID
	}
	if err := b.store.Save(ctx, o); err != nil {
		return fmt.Errorf("saving paid order: %w", err)
	}

	e := events.NewOrderEvent(events.TypeOrderConfirmed, o)
	e.Previous = prev
	e.Reference = transactionID
	e.Amount = o.Total
	b.publish(ctx, e)
	return nil
}

// SetStatus moves an order to a new status and runs the provider hooks:
// completed activates, cancelled cancels. Hook failures are written to
// the order notes and do not undo the status change.
func (b *Bridge) SetStatus(ctx context.Context, id int64, to model.Status) (*model.Order, error) {
	if !to.Manual() {
		return nil, model.NewValidationError("status", fmt.Sprintf("%q cannot be set", to))
	}
	o, err := b.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status == to {
		return o, nil
	}
	if !model.CanTransition(o.Status, to) {
		return nil, model.NewConflictError(fmt.Sprintf("order %d cannot move from %s to %s", id, o.Status, to))
	}

	prev := o.Status
	if err := b.setStatus(ctx, o, to); err != nil {
		return nil, err
	}

	switch to {
	case model.StatusCompleted:
		if err := b.Activate(ctx, id); err != nil {
			b.logger.WarnContext(ctx, "activation hook failed", slog.Int64("order_id", id), slog.String("error", err.Error()))
		}
	case model.StatusCancelled:
		if err := b.Cancel(ctx, id); err != nil {
			b.logger.WarnContext(ctx, "cancellation hook failed", slog.Int64("order_id", id), slog.String("error", err.Error()))
		}
	}

	b.logger.InfoContext(ctx, "order status changed",
		slog.Int64("order_id", id),
		slog.String("from", string(prev)),
		slog.String("to", string(to)),
	)
	return b.store.Get(ctx, id)
}

// setStatus saves a status change without hooks.
func (b *Bridge) setStatus(ctx context.Context, o *model.Order, to model.Status) error {
	prev := o.Status
	o.Status = to
	if err := b.store.Save(ctx, o); err != nil {
		return err
	}
	b.note(ctx, o.ID, "Order status changed from %s to %s.", statusLabel(prev), statusLabel(to))

	e := events.NewOrderEvent(events.TypeOrderStatus, o)
	e.Previous = prev
	b.publish(ctx, e)
	return nil
}

func statusLabel(s model.Status) string {
	if s == model.StatusIncomplete {
		return "Incomplete Garan24 Checkout"
	}
	label := strings.ReplaceAll(string(s), "-", " ")
	if label == "" {
		return ""
	}
	return strings.ToUpper(label[:1]) + label[1:]
}

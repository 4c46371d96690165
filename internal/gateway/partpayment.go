package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"garan24-bridge/internal/config"
	"garan24-bridge/internal/country"
	"garan24-bridge/internal/garan24"
	"garan24-bridge/internal/model"
)

// PClassTTL is how long fetched part payment campaigns are reused.
const PClassTTL = time.Hour

// PartPayment is the Garan24 part payment gateway. It is only offered
// when Garan24 has at least one campaign for the customer's country.
type PartPayment struct {
	kpm

	mu       sync.Mutex
	pclasses map[string]pclassEntry

	// Now is the clock for the campaign cache. Defaults to time.Now.
	Now func() time.Time
}

type pclassEntry struct {
	fetched time.Time
	list    []garan24.PClass
}

// NewPartPayment creates the part payment gateway.
func NewPartPayment(d Deps) *PartPayment {
	g := &PartPayment{
		kpm: kpm{
			id:     model.MethodPartPayment,
			method: func() *config.MethodSettings { return &d.Bridge.Settings().PartPayment },
			deps:   d,
			logger: d.logger(),
		},
		pclasses: make(map[string]pclassEntry),
		Now:      time.Now,
	}
	g.offered = g.offers
	return g
}

// IsAvailable reports whether part payment can be offered.
func (g *PartPayment) IsAvailable(ctx context.Context, a Availability) bool {
	if !g.available(a) {
		return false
	}
	return len(g.PClasses(ctx, a.Country)) > 0
}

// PClasses returns the campaigns for a country. Fetch failures are logged
// and yield none.
func (g *PartPayment) PClasses(ctx context.Context, c string) []garan24.PClass {
	c = country.Normalize(c)
	now := g.Now()

	g.mu.Lock()
	e, ok := g.pclasses[c]
	g.mu.Unlock()
	if ok && now.Sub(e.fetched) < PClassTTL {
		return e.list
	}

	info, known := country.Lookup(c, "")
	legacy, hasCreds := g.legacy(c)
	if !known || !hasCreds {
		return nil
	}
	all, err := legacy.FetchPClasses(ctx, c, info.KPMLang, info.Currency)
	if err != nil {
		g.logger.WarnContext(ctx, "failed to fetch pclasses",
			slog.String("country", c),
			slog.String("error", err.Error()),
		)
		return nil
	}
	var list []garan24.PClass
	for _, p := range all {
		if p.Country == "" || country.Normalize(p.Country) == c {
			list = append(list, p)
		}
	}

	g.mu.Lock()
	g.pclasses[c] = pclassEntry{fetched: now, list: list}
	g.mu.Unlock()
	return list
}

// Eligible returns the campaigns a cart total qualifies for.
func (g *PartPayment) Eligible(ctx context.Context, c string, total int64) []garan24.PClass {
	var out []garan24.PClass
	for _, p := range g.PClasses(ctx, c) {
		if p.Eligible(total) {
			out = append(out, p)
		}
	}
	return out
}

func (g *PartPayment) offers(ctx context.Context, c string, total int64, pclass int) bool {
	for _, p := range g.Eligible(ctx, c, total) {
		if p.ID == pclass {
			return true
		}
	}
	return false
}

// Plan is a campaign as shown on the checkout payment plan selector.
type Plan struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
	MonthlyCost int64  `json:"monthly_cost"`
}

// Plans returns the campaigns offered for a cart total with the monthly
// cost of each.
func (g *PartPayment) Plans(ctx context.Context, c string, total int64) []Plan {
	var out []Plan
	for _, p := range g.Eligible(ctx, c, total) {
		out = append(out, Plan{ID: p.ID, Description: p.Description, MonthlyCost: p.MonthlyCost(total)})
	}
	return out
}

var _ Gateway = (*PartPayment)(nil)

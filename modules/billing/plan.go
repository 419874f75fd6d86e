package billing

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Plan describes a subscription tier. Name is the stable internal
// identifier; StripePriceID maps the plan to the provider's price object
// and is the key used during webhook reconciliation.
type Plan struct {
	Name            string          `yaml:"name"`
	DisplayName     string          `yaml:"display_name"`
	StripePriceID   string          `yaml:"stripe_price_id"`
	MonthlyPrice    decimal.Decimal `yaml:"monthly_price"`
	CreditsPerMonth int64           `yaml:"credits_per_month"`
	Active          bool            `yaml:"active"`
}

func (p Plan) validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: plan name is required", ErrInvalidPlan)
	}
	if p.StripePriceID == "" {
		return fmt.Errorf("%w: plan %s has no stripe price id", ErrInvalidPlan, p.Name)
	}
	if p.CreditsPerMonth < 0 {
		return fmt.Errorf("%w: plan %s has negative credit allotment", ErrInvalidPlan, p.Name)
	}
	return nil
}

// Catalog is a read-only registry of subscription plans. Administrative
// create/update happens through external configuration, not through this
// interface.
type Catalog interface {
	// ActivePlans returns active plans ordered by monthly price ascending.
	ActivePlans(ctx context.Context) ([]Plan, error)

	// PlanByPriceID resolves a plan from the provider's price reference.
	// Returns ErrPlanNotFound for unmapped references.
	PlanByPriceID(ctx context.Context, priceID string) (Plan, error)

	// PlanByName resolves a plan by its internal name.
	// Returns ErrPlanNotFound for unknown names.
	PlanByName(ctx context.Context, name string) (Plan, error)
}

type memCatalog struct {
	mu    sync.RWMutex
	plans []Plan
}

// NewCatalog returns an in-memory Catalog over a copy of the given plans.
// Returns an error if no plans are provided or any plan is misconfigured,
// so a broken catalog fails startup instead of checkout.
func NewCatalog(plans ...Plan) (Catalog, error) {
	if len(plans) == 0 {
		return nil, ErrEmptyCatalog
	}

	cp := make([]Plan, len(plans))
	copy(cp, plans)

	seen := make(map[string]struct{}, len(cp))
	for _, p := range cp {
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate plan name %s", ErrInvalidPlan, p.Name)
		}
		seen[p.Name] = struct{}{}
	}

	sort.Slice(cp, func(i, j int) bool {
		return cp[i].MonthlyPrice.LessThan(cp[j].MonthlyPrice)
	})

	return &memCatalog{plans: cp}, nil
}

// MustCatalog is NewCatalog that panics on error; for hardcoded plan sets.
func MustCatalog(plans ...Plan) Catalog {
	c, err := NewCatalog(plans...)
	if err != nil {
		panic(err)
	}
	return c
}

// LoadCatalogFile builds a Catalog from a YAML file with a top-level
// "plans" list.
func LoadCatalogFile(path string) (Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("billing: read plan catalog: %w", err)
	}

	var doc struct {
		Plans []Plan `yaml:"plans"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("billing: parse plan catalog: %w", err)
	}

	return NewCatalog(doc.Plans...)
}

func (c *memCatalog) ActivePlans(ctx context.Context) ([]Plan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		if p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *memCatalog) PlanByPriceID(ctx context.Context, priceID string) (Plan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, p := range c.plans {
		if p.StripePriceID == priceID {
			return p, nil
		}
	}
	return Plan{}, ErrPlanNotFound
}

func (c *memCatalog) PlanByName(ctx context.Context, name string) (Plan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, p := range c.plans {
		if p.Name == name {
			return p, nil
		}
	}
	return Plan{}, ErrPlanNotFound
}

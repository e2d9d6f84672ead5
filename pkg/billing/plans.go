package billing

import "strings"

// Plan describes one DevHub pricing tier.
type Plan struct {
	// Name is the display name ("Free", "Basic", "Pro").
	Name string

	// PriceID is the external provider price id. Empty for the free plan.
	PriceID string

	// MaxProjects is the project limit for the plan. 0 means unlimited.
	MaxProjects int

	// Weight orders plans by priority. Should a user somehow carry several
	// prices, the highest weight wins.
	Weight int
}

// Catalog resolves external price ids to plans. Unknown price ids resolve to
// the free plan.
type Catalog struct {
	byPrice map[string]Plan
	free    Plan
}

// NewCatalog builds a catalog from the free plan and the paid plans. Paid
// plans without an explicit weight are assigned descending weights in the
// order given, mirroring how the pricing page lists them.
func NewCatalog(free Plan, paid ...Plan) *Catalog {
	byPrice := make(map[string]Plan, len(paid))
	weight := 100
	for _, p := range paid {
		if p.PriceID == "" {
			continue
		}
		if p.Weight == 0 {
			p.Weight = weight
		}
		weight -= 10
		byPrice[strings.ToLower(strings.TrimSpace(p.PriceID))] = p
	}
	return &Catalog{byPrice: byPrice, free: free}
}

// ByPriceID maps an external price id to a plan. Lookup is case-insensitive;
// unknown or empty ids fall back to the free plan.
func (c *Catalog) ByPriceID(priceID string) Plan {
	if priceID == "" {
		return c.free
	}
	if p, ok := c.byPrice[strings.ToLower(strings.TrimSpace(priceID))]; ok {
		return p
	}
	return c.free
}

// PriceIDFor returns the price id for a plan name, if the catalog knows it.
func (c *Catalog) PriceIDFor(name string) (string, bool) {
	for _, p := range c.byPrice {
		if strings.EqualFold(p.Name, name) {
			return p.PriceID, true
		}
	}
	return "", false
}

// Known reports whether the price id belongs to a configured paid plan.
func (c *Catalog) Known(priceID string) bool {
	_, ok := c.byPrice[strings.ToLower(strings.TrimSpace(priceID))]
	return ok
}

// Free returns the free plan.
func (c *Catalog) Free() Plan { return c.free }

package billing

import "testing"

func testCatalog() *Catalog {
	return NewCatalog(
		Plan{Name: "Free", MaxProjects: 3},
		Plan{Name: "Pro", PriceID: "price_pro", MaxProjects: 50},
		Plan{Name: "Team", PriceID: "price_team", MaxProjects: 500},
	)
}

func TestCatalog_ByPriceID(t *testing.T) {
	c := testCatalog()

	if got := c.ByPriceID("price_pro"); got.Name != "Pro" {
		t.Errorf("Expected Pro plan, got %q", got.Name)
	}
	if got := c.ByPriceID("PRICE_PRO"); got.Name != "Pro" {
		t.Errorf("Expected case-insensitive lookup, got %q", got.Name)
	}
	if got := c.ByPriceID("  price_team "); got.Name != "Team" {
		t.Errorf("Expected trimmed lookup, got %q", got.Name)
	}
	if got := c.ByPriceID("price_unknown"); got.Name != "Free" {
		t.Errorf("Expected unknown price to fall back to free plan, got %q", got.Name)
	}
	if got := c.ByPriceID(""); got.Name != "Free" {
		t.Errorf("Expected empty price to fall back to free plan, got %q", got.Name)
	}
}

func TestCatalog_Weights(t *testing.T) {
	c := testCatalog()

	pro := c.ByPriceID("price_pro")
	team := c.ByPriceID("price_team")
	if pro.Weight <= team.Weight {
		t.Errorf("Expected listing order to assign descending weights: pro=%d team=%d", pro.Weight, team.Weight)
	}

	// Explicit weights win over the assigned ones.
	custom := NewCatalog(
		Plan{Name: "Free"},
		Plan{Name: "Pro", PriceID: "price_pro", Weight: 5},
	)
	if got := custom.ByPriceID("price_pro").Weight; got != 5 {
		t.Errorf("Expected explicit weight 5, got %d", got)
	}
}

func TestCatalog_PriceIDFor(t *testing.T) {
	c := testCatalog()

	if id, ok := c.PriceIDFor("pro"); !ok || id != "price_pro" {
		t.Errorf("Expected price_pro, got %q (ok=%v)", id, ok)
	}
	if _, ok := c.PriceIDFor("enterprise"); ok {
		t.Error("Expected unknown plan name to report ok=false")
	}
}

func TestCatalog_Known(t *testing.T) {
	c := testCatalog()

	if !c.Known("price_pro") {
		t.Error("Expected price_pro to be known")
	}
	if c.Known("price_unknown") {
		t.Error("Expected price_unknown to be unknown")
	}
	if c.Known("") {
		t.Error("Expected empty price id to be unknown")
	}
}

func TestCatalog_Free(t *testing.T) {
	c := testCatalog()
	if got := c.Free(); got.Name != "Free" || got.MaxProjects != 3 {
		t.Errorf("Unexpected free plan: %+v", got)
	}
}

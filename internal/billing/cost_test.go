package billing

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dban0001/llmgateway/internal/catalog"
)

// perToken converts a per-million-token price string to the per-token rate
// the catalog stores.
func perToken(t *testing.T, perMillion string) decimal.Decimal {
	t.Helper()
	return decimal.RequireFromString(perMillion).Div(decimal.NewFromInt(1_000_000))
}

func TestCompute(t *testing.T) {
	calc := NewCalculator(catalog.New())

	// gpt-4o-mini on openai: $0.15 in, $0.60 out, $0.075 cached per 1M.
	cost := calc.Compute("gpt-4o-mini", "openai", 1000, 500, 0, false)

	wantIn := perToken(t, "0.15").Mul(decimal.NewFromInt(1000))
	wantOut := perToken(t, "0.60").Mul(decimal.NewFromInt(500))
	if !cost.InputCost.Equal(wantIn) {
		t.Fatalf("input cost = %s, want %s", cost.InputCost, wantIn)
	}
	if !cost.OutputCost.Equal(wantOut) {
		t.Fatalf("output cost = %s, want %s", cost.OutputCost, wantOut)
	}
	if !cost.TotalCost.Equal(wantIn.Add(wantOut)) {
		t.Fatalf("total = %s", cost.TotalCost)
	}
	if cost.Estimated {
		t.Fatal("estimated must be false when counts were reported")
	}
}

func TestCompute_CachedTokensBilledSeparately(t *testing.T) {
	calc := NewCalculator(catalog.New())

	cost := calc.Compute("gpt-4o-mini", "openai", 1000, 0, 400, false)

	// 600 tokens at the input rate, 400 at the cached rate.
	wantIn := perToken(t, "0.15").Mul(decimal.NewFromInt(600))
	wantCached := perToken(t, "0.075").Mul(decimal.NewFromInt(400))
	if !cost.InputCost.Equal(wantIn) {
		t.Fatalf("input cost = %s, want %s", cost.InputCost, wantIn)
	}
	if !cost.CachedInputCost.Equal(wantCached) {
		t.Fatalf("cached cost = %s, want %s", cost.CachedInputCost, wantCached)
	}
}

func TestCompute_CachedExceedingPromptClampsToZero(t *testing.T) {
	calc := NewCalculator(catalog.New())

	cost := calc.Compute("gpt-4o-mini", "openai", 100, 0, 150, false)
	if !cost.InputCost.IsZero() {
		t.Fatalf("input cost = %s, want 0", cost.InputCost)
	}
}

func TestCompute_UnknownModelIsFree(t *testing.T) {
	calc := NewCalculator(catalog.New())

	cost := calc.Compute("no-such-model", "openai", 1000, 1000, 0, true)
	if !cost.TotalCost.IsZero() {
		t.Fatalf("total = %s, want 0", cost.TotalCost)
	}
	if !cost.Estimated {
		t.Fatal("estimated flag must pass through")
	}
}

func TestTopUpFees_Domestic(t *testing.T) {
	fb := TopUpFees(decimal.NewFromInt(100), "pro", "US")

	wantFees := decimal.RequireFromString("3.20") // 100*0.029 + 0.30
	if !fb.TotalFees.Equal(wantFees) {
		t.Fatalf("fees = %s, want %s", fb.TotalFees, wantFees)
	}
	if !fb.TotalAmount.Equal(decimal.RequireFromString("103.20")) {
		t.Fatalf("total = %s", fb.TotalAmount)
	}
}

func TestTopUpFees_International(t *testing.T) {
	fb := TopUpFees(decimal.NewFromInt(100), "pro", "NO")

	wantFees := decimal.RequireFromString("4.70") // 100*0.044 + 0.30
	if !fb.TotalFees.Equal(wantFees) {
		t.Fatalf("fees = %s, want %s", fb.TotalFees, wantFees)
	}
}

func TestTopUpFees_UnknownCountryTreatedAsDomestic(t *testing.T) {
	fb := TopUpFees(decimal.NewFromInt(50), "pro", "")
	wantFees := decimal.RequireFromString("1.75") // 50*0.029 + 0.30, rounded
	if !fb.TotalFees.Equal(wantFees) {
		t.Fatalf("fees = %s, want %s", fb.TotalFees, wantFees)
	}
}

func TestTopUpFees_EnterpriseWaived(t *testing.T) {
	fb := TopUpFees(decimal.NewFromInt(100), PlanEnterprise, "NO")
	if !fb.TotalFees.IsZero() || !fb.TotalAmount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("enterprise breakdown = %+v", fb)
	}
}

// Package billing computes per-request costs from catalog prices and the
// processing fees applied to automatic credit top-ups.
package billing

import (
	"github.com/shopspring/decimal"

	"github.com/dban0001/llmgateway/internal/catalog"
)

// Cost is the per-bucket price breakdown of one request.
type Cost struct {
	InputCost       decimal.Decimal
	OutputCost      decimal.Decimal
	CachedInputCost decimal.Decimal
	RequestCost     decimal.Decimal
	TotalCost       decimal.Decimal
	// Estimated is set when any token count was imputed by the tokenizer
	// rather than reported by upstream.
	Estimated bool
}

// Calculator prices token usage against the catalog.
type Calculator struct {
	cat *catalog.Catalog
}

func NewCalculator(cat *catalog.Catalog) *Calculator {
	return &Calculator{cat: cat}
}

// Compute prices a request. Cached tokens are billed at the cached-input
// rate and subtracted from the prompt before applying the input rate.
// Tiered models price by prompt size.
func (c *Calculator) Compute(modelID, providerID string, promptTokens, completionTokens, cachedTokens int, estimated bool) Cost {
	out := Cost{Estimated: estimated}

	price := c.cat.PriceFor(modelID, providerID, promptTokens)
	if price == nil {
		return out
	}

	billablePrompt := promptTokens - cachedTokens
	if billablePrompt < 0 {
		billablePrompt = 0
	}

	out.InputCost = price.InputPrice.Mul(decimal.NewFromInt(int64(billablePrompt)))
	out.OutputCost = price.OutputPrice.Mul(decimal.NewFromInt(int64(completionTokens)))
	if cachedTokens > 0 {
		out.CachedInputCost = price.CachedInputPrice.Mul(decimal.NewFromInt(int64(cachedTokens)))
	}
	if pm := c.cat.Mapping(modelID, providerID); pm != nil {
		out.RequestCost = pm.RequestPrice
	}

	out.TotalCost = out.InputCost.
		Add(out.OutputCost).
		Add(out.CachedInputCost).
		Add(out.RequestCost)
	return out
}

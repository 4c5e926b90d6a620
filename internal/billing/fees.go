package billing

import "github.com/shopspring/decimal"

// FeeBreakdown splits a top-up charge into the credited base and the
// processing fees passed through to the customer.
type FeeBreakdown struct {
	BaseAmount  decimal.Decimal
	TotalFees   decimal.Decimal
	TotalAmount decimal.Decimal
}

// Card processing rates. International cards carry a surcharge, and
// enterprise plans absorb fees on the platform side.
var (
	domesticRate      = decimal.RequireFromString("0.029")
	internationalRate = decimal.RequireFromString("0.044")
	fixedFee          = decimal.RequireFromString("0.30")
)

const domesticCountry = "US"

// PlanEnterprise is the plan tier whose top-ups are charged at face value.
const PlanEnterprise = "enterprise"

// TopUpFees computes the charge for topping up baseAmount of credits given
// the org's plan and the stored card's issuing country.
func TopUpFees(baseAmount decimal.Decimal, plan, cardCountry string) FeeBreakdown {
	out := FeeBreakdown{BaseAmount: baseAmount}
	if plan == PlanEnterprise {
		out.TotalAmount = baseAmount
		return out
	}

	rate := domesticRate
	if cardCountry != "" && cardCountry != domesticCountry {
		rate = internationalRate
	}
	out.TotalFees = baseAmount.Mul(rate).Add(fixedFee).Round(2)
	out.TotalAmount = baseAmount.Add(out.TotalFees)
	return out
}

// Package compensation converts declared net fees into gross and withholding
// amounts, and computes the agency's per-booking fee total. Pure functions,
// no I/O.
package compensation

import "github.com/shopspring/decimal"

// netShare is the fraction of gross retained by a performer on occasional
// performance income: gross = net / 0.8, withholding = gross * 0.2.
var netShare = decimal.RequireFromString("0.8")

// Breakdown is the per-line compensation split.
type Breakdown struct {
	Net         decimal.Decimal
	Gross       decimal.Decimal
	Withholding decimal.Decimal
}

// FromNet computes the gross fee and withholding tax for a declared net fee.
// businessInvoicing selects the no-withholding regime. Every monetary output
// is rounded to 2 decimals, half up, immediately after computation; callers
// aggregating breakdowns round again at the total level so the figures match
// what the authority expects.
func FromNet(net decimal.Decimal, businessInvoicing bool) Breakdown {
	net = net.Round(2)

	if businessInvoicing {
		return Breakdown{
			Net:         net,
			Gross:       net,
			Withholding: decimal.Zero.Round(2),
		}
	}

	gross := net.Div(netShare).Round(2)
	return Breakdown{
		Net:         net,
		Gross:       gross,
		Withholding: gross.Sub(net).Round(2),
	}
}

// Totals aggregates per-line breakdowns, rounding each total to 2 decimals.
func Totals(lines []Breakdown) Breakdown {
	var net, gross, withholding decimal.Decimal
	for _, line := range lines {
		net = net.Add(line.Net)
		gross = gross.Add(line.Gross)
		withholding = withholding.Add(line.Withholding)
	}
	return Breakdown{
		Net:         net.Round(2),
		Gross:       gross.Round(2),
		Withholding: withholding.Round(2),
	}
}

// AgencyFeeTotal is the client's fixed per-booking fee multiplied by the
// number of performer assignment rows.
func AgencyFeeTotal(feePerBooking decimal.Decimal, assignments int) decimal.Decimal {
	if assignments <= 0 {
		return decimal.Zero.Round(2)
	}
	return feePerBooking.Mul(decimal.NewFromInt(int64(assignments))).Round(2)
}

// Package occupation groups a filing's performer assignments into the
// wire-format occupation units, one per distinct (start, end) date pair.
package occupation

import (
	"time"

	filingdomain "github.com/palcoscenico/agibilita/internal/filing/domain"
	"github.com/shopspring/decimal"
)

// Group is one occupation unit: a distinct date range and its assignments.
type Group struct {
	Start       time.Time
	End         time.Time
	Assignments []filingdomain.PerformerAssignment
}

// Days returns the inclusive day count of the range, never below 1.
func (g Group) Days() int {
	days := int(g.End.Sub(g.Start).Hours()/24) + 1
	if days < 1 {
		return 1
	}
	return days
}

type groupKey struct {
	start string
	end   string
}

// Build partitions assignments by their exact (start, end) pair. Partially
// overlapping ranges stay separate. Group order is insertion order of first
// occurrence, so repeated calls on identical input produce identical
// documents.
func Build(assignments []filingdomain.PerformerAssignment) []Group {
	var groups []Group
	index := make(map[groupKey]int)

	for _, a := range assignments {
		key := groupKey{
			start: a.StartDate.Format("2006-01-02"),
			end:   a.EndDate.Format("2006-01-02"),
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Start: a.StartDate, End: a.EndDate})
		}
		groups[i].Assignments = append(groups[i].Assignments, a)
	}

	return groups
}

// DailyPay derives a performer's per-day pay on the wire format from the
// authoritative gross total. It is never stored.
func DailyPay(gross decimal.Decimal, days int) decimal.Decimal {
	if days < 1 {
		days = 1
	}
	return gross.Div(decimal.NewFromInt(int64(days))).Round(2)
}

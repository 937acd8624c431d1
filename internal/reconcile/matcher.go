// Package reconcile matches authority result documents back to the local
// filing they answer. Results carry no local identifiers, so matching works
// on the booking date of the result's period, the workers' fiscal codes and,
// when available, the venue municipality code.
package reconcile

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/palcoscenico/agibilita/internal/inpsxml"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MatchedBy audit values recorded alongside each reconciliation.
const (
	MatchedByFull     = "date+fiscalcode+municipality"
	MatchedByFallback = "date+fiscalcode"
)

var ErrNoMatch = errors.New("no_matching_filing")

// Match is a resolved reconciliation: which filing the result belongs to and
// which rule found it.
type Match struct {
	FilingID  snowflake.ID
	MatchedBy string
}

type MatcherParam struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Matcher struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewMatcher(p MatcherParam) *Matcher {
	return &Matcher{
		db:  p.DB,
		log: p.Log.Named("reconcile.matcher"),
	}
}

// Resolve finds the filing a result document answers. The booking date is
// the start of the result's period; a filing is a candidate when that date
// falls within its event range, so multi-period filings whose aggregate
// bounds span several days still match a single-period result. The primary
// rule additionally requires at least one worker fiscal code and the venue
// municipality code to agree; when the municipality yields nothing the
// fallback drops it and matches on date and fiscal codes alone. Only
// filings without a recorded authority submission id are candidates, so a
// resubmitted event cannot re-claim its own completed predecessor. Ties are
// broken deterministically by creation order.
func (m *Matcher) Resolve(ctx context.Context, result *inpsxml.Result) (*Match, error) {
	codes := result.FiscalCodes()
	if len(codes) == 0 {
		return nil, ErrNoMatch
	}

	if result.MunicipalityCode != "" {
		id, err := m.query(ctx, result, codes, true)
		if err != nil {
			return nil, err
		}
		if id != nil {
			m.log.Debug("result matched",
				zap.String("filing_id", id.String()),
				zap.String("matched_by", MatchedByFull),
			)
			return &Match{FilingID: *id, MatchedBy: MatchedByFull}, nil
		}
	}

	id, err := m.query(ctx, result, codes, false)
	if err != nil {
		return nil, err
	}
	if id == nil {
		return nil, ErrNoMatch
	}
	m.log.Debug("result matched",
		zap.String("filing_id", id.String()),
		zap.String("matched_by", MatchedByFallback),
	)
	return &Match{FilingID: *id, MatchedBy: MatchedByFallback}, nil
}

func (m *Matcher) query(ctx context.Context, result *inpsxml.Result, codes []string, withMunicipality bool) (*snowflake.ID, error) {
	sql := `
		SELECT f.id
		FROM filings f
		JOIN performer_assignments pa ON pa.filing_id = f.id
		JOIN performers p ON p.id = pa.performer_id`
	args := []interface{}{}

	if withMunicipality {
		sql += `
		JOIN venues v ON v.id = f.venue_id`
	}

	sql += `
		WHERE f.event_start <= ?
		  AND f.event_end >= ?
		  AND f.inps_filing_id IS NULL
		  AND UPPER(p.fiscal_code) IN (?)`
	args = append(args, result.PeriodStart, result.PeriodStart, codes)

	if withMunicipality {
		sql += `
		  AND v.municipality_code = ?`
		args = append(args, result.MunicipalityCode)
	}

	sql += `
		GROUP BY f.id, f.created_at
		ORDER BY f.created_at, f.id
		LIMIT 1`

	var ids []snowflake.ID
	if err := m.db.WithContext(ctx).Raw(sql, args...).Scan(&ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return &ids[0], nil
}

var Module = fx.Module("reconcile.matcher",
	fx.Provide(NewMatcher),
)

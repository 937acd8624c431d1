package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	GetVenue(ctx context.Context, id snowflake.ID) (*Venue, error)
	GetClient(ctx context.Context, id snowflake.ID) (*Client, error)
	GetPerformers(ctx context.Context, ids []snowflake.ID) (map[snowflake.ID]Performer, error)

	// LegalRepresentativePredicate returns the fiscal-code predicate used to
	// flag a client's legal representative on the wire format.
	LegalRepresentativePredicate(ctx context.Context, clientID *snowflake.ID) func(fiscalCode string) bool

	// BackfillEnrollment records an authority enrollment number for the
	// performer with the given fiscal code when none is known yet.
	BackfillEnrollment(ctx context.Context, fiscalCode, enrollmentNumber string) error
}

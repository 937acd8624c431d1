package pdf

import (
	"context"
	"io"
)

type Provider interface {
	GenerateFilingSummary(ctx context.Context, data SummaryData) (io.Reader, error)
}

type NoOpProvider struct{}

func (p *NoOpProvider) GenerateFilingSummary(ctx context.Context, data SummaryData) (io.Reader, error) {
	return nil, nil
}

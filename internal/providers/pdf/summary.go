package pdf

import (
	"bytes"
	"context"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// SummaryData is the client-facing recap of one processed filing.
type SummaryData struct {
	AgencyName string
	FilingCode string
	VenueName  string
	ClientName string
	EventDates string
	Outcome    string

	Lines []SummaryLine

	TotalNet         string
	TotalGross       string
	TotalWithholding string
	AgencyFee        string
	InvoiceAmount    string
}

// SummaryLine is one performer row on the recap.
type SummaryLine struct {
	PerformerName string
	Qualification string
	Dates         string
	Net           string
	Gross         string
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateFilingSummary(ctx context.Context, data SummaryData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, data.AgencyName, props.Text{
			Size:  16,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)
	m.AddRow(10,
		text.NewCol(12, "Filing summary "+data.FilingCode, props.Text{
			Size:  12,
			Style: fontstyle.Bold,
		}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New("Venue: "+data.VenueName, props.Text{Top: 0}),
			text.New("Client: "+data.ClientName, props.Text{Top: 5}),
			text.New("Event dates: "+data.EventDates, props.Text{Top: 10}),
			text.New("Outcome: "+data.Outcome, props.Text{Top: 15}),
		),
		col.New(6),
	)

	m.AddRow(4, line.NewCol(12))

	m.AddRow(8,
		text.NewCol(4, "Performer", props.Text{Style: fontstyle.Bold}),
		text.NewCol(3, "Qualification", props.Text{Style: fontstyle.Bold}),
		text.NewCol(2, "Dates", props.Text{Style: fontstyle.Bold}),
		text.NewCol(1, "Net", props.Text{Style: fontstyle.Bold, Align: align.Right}),
		text.NewCol(2, "Gross", props.Text{Style: fontstyle.Bold, Align: align.Right}),
	)
	for _, item := range data.Lines {
		m.AddRow(6,
			text.NewCol(4, item.PerformerName),
			text.NewCol(3, item.Qualification),
			text.NewCol(2, item.Dates),
			text.NewCol(1, item.Net, props.Text{Align: align.Right}),
			text.NewCol(2, item.Gross, props.Text{Align: align.Right}),
		)
	}

	m.AddRow(4, line.NewCol(12))

	m.AddRow(30,
		col.New(7),
		col.New(5).Add(
			text.New("Total net: "+data.TotalNet, props.Text{Top: 0, Align: align.Right}),
			text.New("Total withholding: "+data.TotalWithholding, props.Text{Top: 5, Align: align.Right}),
			text.New("Total gross: "+data.TotalGross, props.Text{Top: 10, Align: align.Right}),
			text.New("Agency fee: "+data.AgencyFee, props.Text{Top: 15, Align: align.Right}),
			text.New("Invoice amount: "+data.InvoiceAmount, props.Text{Top: 20, Align: align.Right, Style: fontstyle.Bold}),
		),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(doc.GetBytes()), nil
}

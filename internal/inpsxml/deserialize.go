package inpsxml

import (
	"encoding/xml"
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedDocument is returned when a result document is missing its
// root, its occupation block, or its period block.
var ErrMalformedDocument = errors.New("malformed_document")

// Result is the typed view of one authority result document. It is built
// once at the deserialization boundary; nothing downstream touches raw XML.
type Result struct {
	Outcome      string
	ErrorText    *string
	FilingID     *int64
	OccupationID *int64
	PeriodID     *int64
	Hash         string

	MunicipalityCode string
	PeriodStart      time.Time
	PeriodEnd        time.Time

	Workers []Worker
}

// Worker is one flattened worker entry from the result document.
type Worker struct {
	FiscalCode       string
	WorkerID         *int64
	EnrollmentNumber string
}

// FiscalCodes returns the distinct fiscal codes of the worker list.
func (r *Result) FiscalCodes() []string {
	seen := make(map[string]bool, len(r.Workers))
	codes := make([]string, 0, len(r.Workers))
	for _, w := range r.Workers {
		code := strings.ToUpper(strings.TrimSpace(w.FiscalCode))
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, code)
	}
	return codes
}

// OK reports whether the authority accepted the filing.
func (r *Result) OK() bool { return r.Outcome == "OK" }

type resultEnvelope struct {
	Filings []resultFiling `xml:"agibilita"`
}

type resultFiling struct {
	Outcome     string             `xml:"esito"`
	ErrorText   string             `xml:"descrizioneErrore"`
	FilingID    string             `xml:"identificativoAgibilita"`
	Hash        string             `xml:"hash"`
	Occupations []resultOccupation `xml:"occupazioni>occupazione"`
}

type resultOccupation struct {
	OccupationID     string         `xml:"identificativoOccupazione"`
	MunicipalityCode string         `xml:"codiceComune"`
	Periods          []resultPeriod `xml:"periodi>periodo"`
}

type resultPeriod struct {
	PeriodID string         `xml:"identificativoPeriodo"`
	Start    string         `xml:"dataInizio"`
	End      string         `xml:"dataFine"`
	Workers  []resultWorker `xml:"lavoratori>lavoratore"`
}

type resultWorker struct {
	FiscalCode       string `xml:"codiceFiscale"`
	WorkerID         string `xml:"identificativoLavoratore"`
	EnrollmentNumber string `xml:"matricola"`
}

// Deserialize parses a result document into a Result. The source format
// emits a single element for a one-worker period and a repeated element for
// many; decoding into a slice normalizes both shapes.
func Deserialize(doc []byte) (*Result, error) {
	var envelope resultEnvelope
	if err := xml.Unmarshal(doc, &envelope); err != nil {
		return nil, ErrMalformedDocument
	}
	if len(envelope.Filings) == 0 {
		return nil, ErrMalformedDocument
	}

	filing := envelope.Filings[0]
	if len(filing.Occupations) == 0 {
		return nil, ErrMalformedDocument
	}
	occ := filing.Occupations[0]
	if len(occ.Periods) == 0 {
		return nil, ErrMalformedDocument
	}
	period := occ.Periods[0]

	start, err := time.Parse(dateLayout, strings.TrimSpace(period.Start))
	if err != nil {
		return nil, ErrMalformedDocument
	}
	end, err := time.Parse(dateLayout, strings.TrimSpace(period.End))
	if err != nil {
		end = start
	}

	result := &Result{
		Outcome:          strings.ToUpper(strings.TrimSpace(filing.Outcome)),
		ErrorText:        optionalText(filing.ErrorText),
		FilingID:         optionalInt(filing.FilingID),
		OccupationID:     optionalInt(occ.OccupationID),
		PeriodID:         optionalInt(period.PeriodID),
		Hash:             strings.TrimSpace(filing.Hash),
		MunicipalityCode: strings.TrimSpace(occ.MunicipalityCode),
		PeriodStart:      start,
		PeriodEnd:        end,
	}

	for _, o := range filing.Occupations {
		for _, p := range o.Periods {
			for _, w := range p.Workers {
				result.Workers = append(result.Workers, Worker{
					FiscalCode:       strings.ToUpper(strings.TrimSpace(w.FiscalCode)),
					WorkerID:         optionalInt(w.WorkerID),
					EnrollmentNumber: strings.TrimSpace(w.EnrollmentNumber),
				})
			}
		}
	}

	return result, nil
}

func optionalText(raw string) *string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	return &raw
}

func optionalInt(raw string) *int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &parsed
}

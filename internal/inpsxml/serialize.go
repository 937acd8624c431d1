// Package inpsxml serializes filings into the authority's submission schema
// and parses the authority's result documents. The serializer writes text
// directly rather than going through a generic tree encoder: the receiving
// portal is sensitive to exact element structure and whitespace.
package inpsxml

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	directorydomain "github.com/palcoscenico/agibilita/internal/directory/domain"
	filingdomain "github.com/palcoscenico/agibilita/internal/filing/domain"
	"github.com/palcoscenico/agibilita/internal/occupation"
	"github.com/shopspring/decimal"
)

const (
	requestTypeNew       = "N"
	requestTypeAmendment = "V"

	dateLayout = "2006-01-02"
)

// CompanyInfo carries the company identifiers emitted in the document head.
type CompanyInfo struct {
	Name               string
	FiscalCode         string
	RegistrationNumber string
	LegalAddress       string
}

// SerializeInput is everything needed to render one submission document.
type SerializeInput struct {
	Filing filingdomain.Filing

	// Venue is nil when the event takes place abroad.
	Venue *directorydomain.Venue

	Groups     []occupation.Group
	Performers map[snowflake.ID]directorydomain.Performer

	// Agency supplies fallback company identifiers when the venue carries
	// none of its own.
	Agency CompanyInfo

	// IsLegalRepresentative is the fiscal-code predicate supplied by the
	// client-data collaborator.
	IsLegalRepresentative func(fiscalCode string) bool
}

var ErrNoGroups = errors.New("no_occupation_groups")

// Serialize renders the submission document. Prior authority identifiers are
// echoed back only on an amendment, and only on the first occupation group:
// the portal's amendment schema has no slot for per-group identifiers beyond
// the first, so multi-group amendments are a documented limitation.
func Serialize(in SerializeInput) ([]byte, error) {
	if len(in.Groups) == 0 {
		return nil, ErrNoGroups
	}

	var b bytes.Buffer
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	b.WriteString("<richiestaAgibilita>\n")
	b.WriteString("  <agibilita>\n")

	requestType := requestTypeNew
	if in.Filing.IsAmendment() {
		requestType = requestTypeAmendment
		writeElement(&b, 2, "identificativoAgibilita", fmt.Sprintf("%d", *in.Filing.INPSFilingID))
	}
	writeElement(&b, 2, "tipoRichiesta", requestType)

	writeCompany(&b, in)
	writeVenue(&b, in.Venue)

	if strings.TrimSpace(in.Filing.Notes) != "" {
		writeElement(&b, 2, "note", in.Filing.Notes)
	}

	b.WriteString("    <occupazioni>\n")
	for i, group := range in.Groups {
		writeGroup(&b, in, group, i == 0)
	}
	b.WriteString("    </occupazioni>\n")

	b.WriteString("  </agibilita>\n")
	b.WriteString("</richiestaAgibilita>\n")

	return b.Bytes(), nil
}

func writeCompany(b *bytes.Buffer, in SerializeInput) {
	company := in.Agency
	if in.Venue != nil {
		if in.Venue.CompanyFiscalCode != "" {
			company.FiscalCode = in.Venue.CompanyFiscalCode
		}
		if in.Venue.CompanyRegistrationNumber != "" {
			company.RegistrationNumber = in.Venue.CompanyRegistrationNumber
		}
		if in.Venue.CompanyLegalAddress != "" {
			company.LegalAddress = in.Venue.CompanyLegalAddress
		}
	}

	b.WriteString("    <azienda>\n")
	writeElement(b, 3, "denominazione", company.Name)
	writeElement(b, 3, "codiceFiscale", company.FiscalCode)
	writeElement(b, 3, "matricola", company.RegistrationNumber)
	writeElement(b, 3, "sedeLegale", company.LegalAddress)
	b.WriteString("    </azienda>\n")
}

func writeVenue(b *bytes.Buffer, venue *directorydomain.Venue) {
	if venue == nil {
		// Event abroad: the schema still requires the block, empty.
		b.WriteString("    <luogo estero=\"SI\"/>\n")
		return
	}

	b.WriteString("    <luogo>\n")
	writeElement(b, 3, "descrizione", venue.Name)
	writeElement(b, 3, "indirizzo", venueAddress(venue))
	writeElement(b, 3, "codiceComune", venue.MunicipalityCode)
	b.WriteString("    </luogo>\n")
}

func venueAddress(v *directorydomain.Venue) string {
	parts := []string{}
	for _, p := range []string{v.Address, v.PostalCode, v.City, v.Province} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, strings.TrimSpace(p))
		}
	}
	return strings.Join(parts, ", ")
}

func writeGroup(b *bytes.Buffer, in SerializeInput, group occupation.Group, first bool) {
	b.WriteString("      <occupazione>\n")

	if first && in.Filing.IsAmendment() && in.Filing.INPSOccupationID != nil {
		writeElement(b, 4, "identificativoOccupazione", fmt.Sprintf("%d", *in.Filing.INPSOccupationID))
	}
	if in.Venue != nil {
		writeElement(b, 4, "codiceComune", in.Venue.MunicipalityCode)
	}

	b.WriteString("        <periodi>\n")
	b.WriteString("          <periodo>\n")
	if first && in.Filing.IsAmendment() && in.Filing.INPSPeriodID != nil {
		writeElement(b, 6, "identificativoPeriodo", fmt.Sprintf("%d", *in.Filing.INPSPeriodID))
	}
	writeElement(b, 6, "dataInizio", group.Start.Format(dateLayout))
	writeElement(b, 6, "dataFine", group.End.Format(dateLayout))

	b.WriteString("            <lavoratori>\n")
	days := group.Days()
	for _, a := range group.Assignments {
		writeWorker(b, in, a, days)
	}
	b.WriteString("            </lavoratori>\n")

	b.WriteString("          </periodo>\n")
	b.WriteString("        </periodi>\n")
	b.WriteString("      </occupazione>\n")
}

func writeWorker(b *bytes.Buffer, in SerializeInput, a filingdomain.PerformerAssignment, days int) {
	performer := in.Performers[a.PerformerID]

	legalRep := "NO"
	if in.IsLegalRepresentative != nil && in.IsLegalRepresentative(performer.FiscalCode) {
		legalRep = "SI"
	}

	b.WriteString("              <lavoratore>\n")
	writeElement(b, 8, "codiceFiscale", performer.FiscalCode)
	if performer.INPSEnrollmentNumber != "" {
		writeElement(b, 8, "matricola", performer.INPSEnrollmentNumber)
	}
	writeElement(b, 8, "qualifica", QualificationCode(a.Qualification))
	writeElement(b, 8, "legaleRappresentante", legalRep)
	writeElement(b, 8, "giornate", fmt.Sprintf("%d", days))
	writeElement(b, 8, "retribuzioneGiornaliera", FormatAmount(occupation.DailyPay(a.Gross, days)))
	b.WriteString("              </lavoratore>\n")
}

// FormatAmount renders a monetary value with the receiving system's locale
// convention: fixed 2 decimals, comma separator.
func FormatAmount(amount decimal.Decimal) string {
	return strings.Replace(amount.StringFixed(2), ".", ",", 1)
}

// FormatDate renders a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func writeElement(b *bytes.Buffer, indentLevel int, name, value string) {
	for i := 0; i < indentLevel; i++ {
		b.WriteString("  ")
	}
	b.WriteString("<")
	b.WriteString(name)
	b.WriteString(">")
	b.WriteString(escapeXML(value))
	b.WriteString("</")
	b.WriteString(name)
	b.WriteString(">\n")
}

func escapeXML(s string) string {
	var b bytes.Buffer
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&apos;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

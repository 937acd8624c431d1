package inpsxml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleResult = `<?xml version="1.0" encoding="UTF-8"?>
<elencoAgibilita>
  <agibilita>
    <esito>OK</esito>
    <identificativoAgibilita>443267</identificativoAgibilita>
    <hash>a1b2c3d4</hash>
    <occupazioni>
      <occupazione>
        <identificativoOccupazione>512001</identificativoOccupazione>
        <codiceComune>A944</codiceComune>
        <periodi>
          <periodo>
            <identificativoPeriodo>612001</identificativoPeriodo>
            <dataInizio>2026-03-01</dataInizio>
            <dataFine>2026-03-01</dataFine>
            <lavoratori>
              <lavoratore>
                <codiceFiscale>RSSMRA80A41A944X</codiceFiscale>
                <identificativoLavoratore>712001</identificativoLavoratore>
                <matricola>9900112233</matricola>
              </lavoratore>
              <lavoratore>
                <codiceFiscale>VRDLGI85C15F205Z</codiceFiscale>
              </lavoratore>
            </lavoratori>
          </periodo>
        </periodi>
      </occupazione>
    </occupazioni>
  </agibilita>
</elencoAgibilita>`

func TestDeserialize_FullResult(t *testing.T) {
	result, err := Deserialize([]byte(sampleResult))
	require.NoError(t, err)

	assert.Equal(t, "OK", result.Outcome)
	assert.True(t, result.OK())
	assert.Nil(t, result.ErrorText)
	require.NotNil(t, result.FilingID)
	assert.Equal(t, int64(443267), *result.FilingID)
	require.NotNil(t, result.OccupationID)
	assert.Equal(t, int64(512001), *result.OccupationID)
	require.NotNil(t, result.PeriodID)
	assert.Equal(t, int64(612001), *result.PeriodID)
	assert.Equal(t, "a1b2c3d4", result.Hash)
	assert.Equal(t, "A944", result.MunicipalityCode)
	assert.Equal(t, "2026-03-01", result.PeriodStart.Format("2006-01-02"))

	require.Len(t, result.Workers, 2)
	assert.Equal(t, "RSSMRA80A41A944X", result.Workers[0].FiscalCode)
	require.NotNil(t, result.Workers[0].WorkerID)
	assert.Equal(t, int64(712001), *result.Workers[0].WorkerID)
	assert.Equal(t, "9900112233", result.Workers[0].EnrollmentNumber)
	assert.Nil(t, result.Workers[1].WorkerID)
}

func TestDeserialize_SingleWorkerElement(t *testing.T) {
	doc := `<risposta><agibilita><esito>OK</esito><occupazioni><occupazione>
	<codiceComune>A944</codiceComune>
	<periodi><periodo><dataInizio>2026-03-01</dataInizio><dataFine>2026-03-02</dataFine>
	<lavoratori><lavoratore><codiceFiscale>RSSMRA80A41A944X</codiceFiscale></lavoratore></lavoratori>
	</periodo></periodi></occupazione></occupazioni></agibilita></risposta>`

	result, err := Deserialize([]byte(doc))
	require.NoError(t, err)
	assert.Len(t, result.Workers, 1)
}

func TestDeserialize_FailureOutcome(t *testing.T) {
	doc := `<risposta><agibilita>
	<esito>KO</esito>
	<descrizioneErrore>codice fiscale non valido</descrizioneErrore>
	<occupazioni><occupazione><codiceComune>A944</codiceComune>
	<periodi><periodo><dataInizio>2026-03-01</dataInizio><dataFine>2026-03-01</dataFine></periodo></periodi>
	</occupazione></occupazioni></agibilita></risposta>`

	result, err := Deserialize([]byte(doc))
	require.NoError(t, err)

	assert.False(t, result.OK())
	require.NotNil(t, result.ErrorText)
	assert.Equal(t, "codice fiscale non valido", *result.ErrorText)
	assert.Nil(t, result.FilingID)
}

func TestDeserialize_Malformed(t *testing.T) {
	cases := map[string]string{
		"not xml":            "this is not xml <",
		"no filing":          `<risposta></risposta>`,
		"no occupation":      `<risposta><agibilita><esito>OK</esito></agibilita></risposta>`,
		"no period":          `<risposta><agibilita><occupazioni><occupazione></occupazione></occupazioni></agibilita></risposta>`,
		"unparseable period": `<risposta><agibilita><occupazioni><occupazione><periodi><periodo><dataInizio>01/03/2026</dataInizio></periodo></periodi></occupazione></occupazioni></agibilita></risposta>`,
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Deserialize([]byte(doc))
			assert.ErrorIs(t, err, ErrMalformedDocument)
		})
	}
}

func TestDeserialize_MissingEndDateFallsBackToStart(t *testing.T) {
	doc := `<risposta><agibilita><occupazioni><occupazione>
	<periodi><periodo><dataInizio>2026-03-01</dataInizio></periodo></periodi>
	</occupazione></occupazioni></agibilita></risposta>`

	result, err := Deserialize([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, result.PeriodStart, result.PeriodEnd)
}

func TestFiscalCodes_Dedupes(t *testing.T) {
	result := &Result{Workers: []Worker{
		{FiscalCode: "RSSMRA80A41A944X"},
		{FiscalCode: "rssmra80a41a944x"},
		{FiscalCode: "VRDLGI85C15F205Z"},
		{FiscalCode: ""},
	}}

	assert.Equal(t, []string{"RSSMRA80A41A944X", "VRDLGI85C15F205Z"}, result.FiscalCodes())
}

func TestRoundTrip_SubmissionFieldsSurviveParsing(t *testing.T) {
	doc, err := Serialize(testInput())
	require.NoError(t, err)

	result, err := Deserialize(doc)
	require.NoError(t, err)

	assert.Equal(t, "A944", result.MunicipalityCode)
	assert.Equal(t, "2026-03-01", result.PeriodStart.Format("2006-01-02"))
	assert.Equal(t, "2026-03-01", result.PeriodEnd.Format("2006-01-02"))
	require.Len(t, result.Workers, 1)
	assert.Equal(t, "RSSMRA80A41A944X", result.Workers[0].FiscalCode)
}

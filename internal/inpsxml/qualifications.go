package inpsxml

import "strings"

// DefaultQualificationCode is used when a qualification label has no table
// entry. Unknown labels never reject a document; an operator corrects the
// code on the portal afterwards.
const DefaultQualificationCode = "032"

// qualificationCodes maps normalized qualification labels to the fixed
// 3-digit codes of the authority's schema.
var qualificationCodes = map[string]string{
	"attore":                "011",
	"regista":               "012",
	"mimo":                  "013",
	"presentatore":          "014",
	"cantante":              "021",
	"corista":               "022",
	"musicista":             "030",
	"orchestrale":           "031",
	"concertista":           "032",
	"direttore d'orchestra": "033",
	"ballerino":             "052",
	"coreografo":            "053",
	"dj":                    "091",
	"animatore":             "092",
	"tecnico del suono":     "117",
	"tecnico luci":          "118",
	"scenografo":            "121",
	"truccatore":            "122",
}

// QualificationCode resolves a free-text qualification label to its 3-digit
// code. Lookup is case-insensitive and whitespace-normalized; unmatched
// labels degrade to DefaultQualificationCode.
func QualificationCode(label string) string {
	if code, ok := qualificationCodes[normalizeLabel(label)]; ok {
		return code
	}
	return DefaultQualificationCode
}

func normalizeLabel(label string) string {
	return strings.Join(strings.Fields(strings.ToLower(label)), " ")
}

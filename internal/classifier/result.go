package classifier

import (
	"strings"
	"time"

	"github.com/regwatch/regwatch/internal/regwatch"
)

// Result is the outcome of decoding one inference response. It is one of Ok,
// SchemaError or ParseError.
type Result interface {
	// Kind is a short label for logs and metrics.
	Kind() string
	sealed()
}

// Classification holds the eight validated fields.
type Classification struct {
	Headline      string
	ImpactSummary string
	FocusArea     string
	Authority     string
	ImpactLevel   regwatch.ImpactLevel
	Urgency       regwatch.Urgency
	Sector        regwatch.Sector
	KeyDates      []string
}

// Update builds the record to persist for url, stamped with fetchedAt.
func (c Classification) Update(url string, fetchedAt time.Time) regwatch.RegulatoryUpdate {
	return regwatch.RegulatoryUpdate{
		URL:           url,
		Headline:      c.Headline,
		ImpactSummary: c.ImpactSummary,
		FocusArea:     c.FocusArea,
		Authority:     c.Authority,
		ImpactLevel:   c.ImpactLevel,
		Urgency:       c.Urgency,
		Sector:        c.Sector,
		KeyDates:      append([]string(nil), c.KeyDates...),
		FetchedAt:     fetchedAt,
	}
}

// Ok carries a fully validated classification.
type Ok struct {
	Classification Classification
}

// SchemaError reports required fields that were absent or held unusable values.
type SchemaError struct {
	Missing []string
	Invalid []string
}

// ParseError reports output with no JSON object, or one that does not decode.
type ParseError struct {
	Reason string
	Raw    string
}

func (Ok) Kind() string          { return "ok" }
func (SchemaError) Kind() string { return "schema_error" }
func (ParseError) Kind() string  { return "parse_error" }

func (Ok) sealed()          {}
func (SchemaError) sealed() {}
func (ParseError) sealed()  {}

func (e SchemaError) String() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid: "+strings.Join(e.Invalid, ", "))
	}
	return strings.Join(parts, "; ")
}

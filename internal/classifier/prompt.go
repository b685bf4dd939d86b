package classifier

import (
	"fmt"
	"strings"

	"github.com/regwatch/regwatch/internal/regwatch"
)

// systemPrompt is the fixed instruction sent with every inference call.
var systemPrompt = func() string {
	sectors := make([]string, len(regwatch.Sectors))
	for i, s := range regwatch.Sectors {
		sectors[i] = string(s)
	}
	return fmt.Sprintf(`You are a regulatory analyst for financial services firms.
Read the publication supplied by the user and respond with a single JSON object and nothing else.
The object must contain exactly these keys:
  "headline":    a plain one-line headline,
  "impact":      two or three sentences on what firms must do differently,
  "area":        the regulatory topic (for example "Capital", "Consumer Duty", "AML"),
  "authority":   the issuing regulator or body,
  "impactLevel": one of "Significant", "Moderate", "Informational",
  "urgency":     one of "High", "Medium", "Low",
  "sector":      one of %s,
  "keyDates":    a list of "YYYY-MM-DD: event" strings, or an empty list.
Do not add commentary before or after the JSON.`, quoteList(sectors))
}()

func quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return strings.Join(quoted, ", ")
}

func userPrompt(text string) string {
	return "Publication text:\n\n" + text
}

// Package matching scores regulatory updates against watch lists and persists
// the qualifying match records.
package matching

import (
	"math"
	"regexp"
	"strings"

	"github.com/regwatch/regwatch/internal/regwatch"
)

// Dimension weights. Only configured dimensions take part in the average.
const (
	KeywordWeight   = 0.5
	AuthorityWeight = 0.25
	SectorWeight    = 0.25

	// keywordSaturation is how many keyword hits earn the full keyword component.
	keywordSaturation = 3
)

// Score is the outcome of evaluating one watch list against one update.
type Score struct {
	Value   float64
	Reasons []string
}

// Qualifies reports whether s should be stored for a watch list with threshold.
// A zero score never qualifies.
func (s Score) Qualifies(threshold float64) bool {
	return s.Value > 0 && s.Value >= threshold
}

// Evaluate scores wl against u. It is pure and deterministic.
func Evaluate(wl regwatch.WatchList, u regwatch.RegulatoryUpdate) Score {
	var (
		total, weight float64
		reasons       []string
	)

	if keywords := clean(wl.Keywords); len(keywords) > 0 {
		text := strings.Join([]string{u.Headline, u.ImpactSummary, u.FocusArea}, "\n")
		matched := 0
		for _, kw := range keywords {
			if containsWord(text, kw) {
				matched++
				reasons = append(reasons, "keyword: "+kw)
			}
		}
		denom := min(len(keywords), keywordSaturation)
		total += KeywordWeight * math.Min(1, float64(matched)/float64(denom))
		weight += KeywordWeight
	}

	if authorities := clean(wl.Authorities); len(authorities) > 0 {
		got := strings.TrimSpace(u.Authority)
		component := 0.0
		for _, a := range authorities {
			// The configured authority must appear as whole words in the update's.
			if got != "" && containsWord(got, a) {
				component = 1
				reasons = append(reasons, "authority: "+a)
			}
		}
		total += AuthorityWeight * component
		weight += AuthorityWeight
	}

	if sectors := clean(wl.Sectors); len(sectors) > 0 {
		component := 0.0
		for _, s := range sectors {
			if strings.EqualFold(s, string(u.Sector)) {
				component = 1
				reasons = append(reasons, "sector: "+s)
				break
			}
		}
		total += SectorWeight * component
		weight += SectorWeight
	}

	if weight == 0 || total == 0 {
		return Score{}
	}
	value := math.Min(1, total/weight)
	return Score{Value: math.Round(value*1e4) / 1e4, Reasons: reasons}
}

// clean trims entries and drops blanks and case-insensitive duplicates.
func clean(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

func containsWord(text, word string) bool {
	re, err := regexp.Compile(`(?i)(^|[^\p{L}\p{N}_])` + regexp.QuoteMeta(word) + `($|[^\p{L}\p{N}_])`)
	if err != nil {
		return false
	}
	return re.MatchString(text)
}

package classifier

import (
	"encoding/json"
	"strings"

	"github.com/regwatch/regwatch/internal/regwatch"
)

// Required keys, in prompt order.
const (
	FieldHeadline    = "headline"
	FieldImpact      = "impact"
	FieldArea        = "area"
	FieldAuthority   = "authority"
	FieldImpactLevel = "impactLevel"
	FieldUrgency     = "urgency"
	FieldSector      = "sector"
	FieldKeyDates    = "keyDates"
)

// RequiredFields lists every key the model must return.
var RequiredFields = []string{
	FieldHeadline, FieldImpact, FieldArea, FieldAuthority,
	FieldImpactLevel, FieldUrgency, FieldSector, FieldKeyDates,
}

// FindJSONSpan returns the first balanced {...} span in raw. Braces inside
// JSON strings do not count.
func FindJSONSpan(raw string) (string, bool) {
	for start := strings.IndexByte(raw, '{'); start >= 0; {
		if end, ok := balancedEnd(raw, start); ok {
			return raw[start : end+1], true
		}
		next := strings.IndexByte(raw[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func balancedEnd(s string, start int) (int, bool) {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// Decode turns raw model output into a Result.
func Decode(raw string) Result {
	span, ok := FindJSONSpan(raw)
	if !ok {
		return ParseError{Reason: "no JSON object in model output", Raw: raw}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(span), &fields); err != nil {
		return ParseError{Reason: "decode JSON: " + err.Error(), Raw: span}
	}

	var (
		out     Classification
		missing []string
		invalid []string
	)
	present := func(key string) (json.RawMessage, bool) {
		v, ok := fields[key]
		if !ok || strings.TrimSpace(string(v)) == "null" {
			missing = append(missing, key)
			return nil, false
		}
		return v, true
	}
	text := func(key string, dst *string) {
		v, ok := present(key)
		if !ok {
			return
		}
		var s string
		if json.Unmarshal(v, &s) != nil || strings.TrimSpace(s) == "" {
			invalid = append(invalid, key)
			return
		}
		*dst = strings.TrimSpace(s)
	}

	text(FieldHeadline, &out.Headline)
	text(FieldImpact, &out.ImpactSummary)
	text(FieldArea, &out.FocusArea)
	text(FieldAuthority, &out.Authority)

	var level, urgency, sector string
	text(FieldImpactLevel, &level)
	text(FieldUrgency, &urgency)
	text(FieldSector, &sector)
	if level != "" {
		if out.ImpactLevel, ok = regwatch.ParseImpactLevel(level); !ok {
			invalid = append(invalid, FieldImpactLevel)
		}
	}
	if urgency != "" {
		if out.Urgency, ok = regwatch.ParseUrgency(urgency); !ok {
			invalid = append(invalid, FieldUrgency)
		}
	}
	if sector != "" {
		if out.Sector, ok = regwatch.ParseSector(sector); !ok {
			invalid = append(invalid, FieldSector)
		}
	}

	if v, ok := present(FieldKeyDates); ok {
		dates, ok := decodeKeyDates(v)
		if !ok {
			invalid = append(invalid, FieldKeyDates)
		}
		out.KeyDates = dates
	}

	if len(missing) > 0 || len(invalid) > 0 {
		return SchemaError{Missing: missing, Invalid: invalid}
	}
	return Ok{Classification: out}
}

// decodeKeyDates accepts a single string or a list of strings.
func decodeKeyDates(v json.RawMessage) ([]string, bool) {
	var one string
	if err := json.Unmarshal(v, &one); err == nil {
		one = strings.TrimSpace(one)
		if one == "" {
			return []string{}, true
		}
		return []string{one}, true
	}
	var many []string
	if err := json.Unmarshal(v, &many); err != nil {
		return nil, false
	}
	out := make([]string, 0, len(many))
	for _, d := range many {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out, true
}

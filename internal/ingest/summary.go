package ingest

import "time"

// Outcome labels the fate of one candidate item.
type Outcome string

// Item outcomes.
const (
	OutcomeStored                Outcome = "stored"
	OutcomeDuplicate             Outcome = "duplicate"
	OutcomeClassifierUnavailable Outcome = "classifier_unavailable"
	OutcomeExtractionFailed      Outcome = "extraction_failed"
	OutcomeSchemaRejected        Outcome = "schema_rejected"
	OutcomeParseFailed           Outcome = "parse_failed"
	OutcomeInferenceFailed       Outcome = "inference_failed"
	OutcomePersistenceFailed     Outcome = "persistence_failed"
)

// Counter says which aggregate counter an outcome feeds.
func (o Outcome) Counter() string {
	switch o {
	case OutcomeStored:
		return "processed"
	case OutcomeDuplicate, OutcomeClassifierUnavailable:
		return "skipped"
	default:
		return "failed"
	}
}

// ItemOutcome records what happened to one candidate.
type ItemOutcome struct {
	SourceName string  `json:"source_name"`
	URL        string  `json:"url"`
	Outcome    Outcome `json:"outcome"`
	Detail     string  `json:"detail,omitempty"`
	UpdateID   string  `json:"update_id,omitempty"`
	Matches    int     `json:"matches,omitempty"`
}

// Counters aggregates outcomes. They are reported, never used for control flow.
type Counters struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

func (c *Counters) add(o Outcome) {
	switch o.Counter() {
	case "processed":
		c.Processed++
	case "skipped":
		c.Skipped++
	default:
		c.Failed++
	}
}

// SourceSummary aggregates one source's candidates.
type SourceSummary struct {
	Name       string `json:"name"`
	Candidates int    `json:"candidates"`
	Counters
	// Error is set when the source was unavailable or only partly collected.
	Error string `json:"error,omitempty"`
}

// RunSummary is returned by one ingestion run.
type RunSummary struct {
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Sources    []SourceSummary `json:"sources"`
	Totals     Counters        `json:"totals"`
	Outcomes   []ItemOutcome   `json:"outcomes"`
}

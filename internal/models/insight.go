package models

import "time"

// Severity captures issue impact levels.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Fact is one key/value piece of evidence backing an observation or issue,
// e.g. {"packet_loss", "2%→8%"}. Facts carry the literal before/after values
// a detector used so the call is reproducible.
type Fact struct {
	Key   string
	Value string
}

// TrendObservation is the output of a single trend detector: a rule fired
// over a window of history records. Observations are ephemeral; they are
// recomputed each correlation pass and never persisted.
type TrendObservation struct {
	RuleID         string
	Window         time.Duration
	ConfidenceBase float64
	Summary        string
	Evidence       []Fact

	// Cause is the structured payload the correlation engine wraps into the
	// emitted issue.
	Cause RootCause
}

// CorrelatedIssue is a synthesized root-cause diagnosis combining trend
// evidence with the newest snapshot. Issues are recomputed every pass and
// handed to the insight renderer; nothing here is persisted.
type CorrelatedIssue struct {
	CorrelationID string
	RuleID        string
	RootCause     RootCause
	Severity      Severity
	Summary       string
	Details       string
	Evidence      []Fact
	Remediation   []string
	Citations     []string

	// Confidence is the rule's base confidence plus the historian
	// confirmation boost when a trend detector fired, capped at 1.0.
	Confidence float64

	FirstSeen time.Time
	LastSeen  time.Time
}

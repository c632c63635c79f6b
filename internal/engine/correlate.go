// Package engine correlates stored health history with the newest snapshot
// into root-cause issues. Each pass is stateless: rules load their window,
// run their detector, and the firing ones are merged, boosted, and sorted.
package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/opsward/trend-engine/internal/detect"
	"github.com/opsward/trend-engine/internal/metrics"
	"github.com/opsward/trend-engine/internal/models"
	"github.com/opsward/trend-engine/internal/utils"
)

// historyBoost is added to a detector's base confidence when the history
// confirms a sustained pattern, distinguishing "has been happening" from
// "is true right now".
const historyBoost = 0.1

// HistoryReader is the store surface the correlator needs.
type HistoryReader interface {
	LoadRecent(maxAge time.Duration) ([]models.HistoryRecord, error)
	LastRecord() (models.HistoryRecord, bool, error)
}

// Correlator runs the detector table against stored history and produces
// correlated issues for the insight renderer.
type Correlator struct {
	store     HistoryReader
	pack      *RulePack
	logger    *slog.Logger
	latencies *utils.TimingWindow
	passes    int
}

// NewCorrelator wires a correlator to its history source and rule pack.
func NewCorrelator(store HistoryReader, pack *RulePack, logger *slog.Logger) *Correlator {
	if pack == nil {
		pack = DefaultRulePack()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{
		store:     store,
		pack:      pack,
		logger:    logger,
		latencies: utils.NewTimingWindow(256),
	}
}

// Run executes one correlation pass. Rules are independent: a window that
// fails to load only silences its own rule, and the pass always returns
// whatever issues the remaining rules produced, sorted by confidence
// descending then rule id.
func (c *Correlator) Run() []models.CorrelatedIssue {
	start := time.Now()
	c.passes++

	var issues []models.CorrelatedIssue
	fired := make(map[string]bool)
	loadFailed := false

	for _, det := range detect.All() {
		records, err := c.store.LoadRecent(det.Window)
		if err != nil {
			c.logger.Warn("history unavailable for rule, skipping",
				"rule", det.RuleID, "error", err)
			loadFailed = true
			continue
		}
		if len(records) == 0 {
			continue
		}

		obs := det.Run(records)
		if obs == nil {
			continue
		}

		issue := c.buildTrendIssue(obs, records)
		issues = append(issues, issue)
		fired[det.RuleID] = true
		metrics.IncRuleFiring(det.RuleID)
	}

	issues = append(issues, c.currentStateIssues(fired)...)

	sort.Slice(issues, func(i, j int) bool {
		if issues[i].Confidence != issues[j].Confidence {
			return issues[i].Confidence > issues[j].Confidence
		}
		return issues[i].RuleID < issues[j].RuleID
	})

	outcome := metrics.OutcomeSuccess
	if loadFailed {
		outcome = metrics.OutcomeError
	}
	metrics.ObserveCorrelationPass(outcome)

	c.latencies.Record(time.Since(start))
	if c.passes%20 == 0 {
		c.logger.Info("correlation pass latency",
			"p95", c.latencies.Percentile(95), "passes", c.passes)
	}

	return issues
}

// buildTrendIssue wraps a trend observation into an issue. The detector's
// base confidence gets the history confirmation boost because the pattern
// was observed across the window, not inferred from one snapshot.
func (c *Correlator) buildTrendIssue(obs *models.TrendObservation, records []models.HistoryRecord) models.CorrelatedIssue {
	setting := c.pack.Setting(obs.RuleID)

	confidence := obs.ConfidenceBase + historyBoost
	if confidence > 1.0 {
		confidence = 1.0
	}

	first := records[0]
	last := records[len(records)-1]

	return models.CorrelatedIssue{
		CorrelationID: uuid.NewString(),
		RuleID:        obs.RuleID,
		RootCause:     obs.Cause,
		Severity:      escalate(setting.Severity, obs.Cause, last),
		Summary:       obs.Summary,
		Details: fmt.Sprintf("pattern confirmed across %d checks between %s and %s",
			len(records),
			first.TimestampUTC.Format(time.RFC3339),
			last.TimestampUTC.Format(time.RFC3339)),
		Evidence:    obs.Evidence,
		Remediation: setting.Remediation,
		Citations:   setting.Citations,
		Confidence:  confidence,
		FirstSeen:   first.TimestampUTC,
		LastSeen:    last.TimestampUTC,
	}
}

// currentStateIssues covers resource pressure visible in the newest snapshot
// when the trend detector stayed silent (too few samples, or pressure began
// recently). These issues carry the pack's base confidence with no history
// boost: a single snapshot earns no confirmation.
func (c *Correlator) currentStateIssues(fired map[string]bool) []models.CorrelatedIssue {
	last, ok, err := c.store.LastRecord()
	if err != nil {
		c.logger.Warn("latest record unavailable, skipping snapshot rules", "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	var issues []models.CorrelatedIssue
	if last.HighMemoryFlag && !fired[detect.RuleMemoryPressure] {
		issues = append(issues, c.snapshotIssue(detect.RuleMemoryPressure,
			"memory pressure high in latest check",
			models.SustainedMemoryPressure{FlaggedChecks: 1, TotalChecks: 1}, last))
	}
	if last.HighCPUFlag && !fired[detect.RuleCPUPressure] {
		issues = append(issues, c.snapshotIssue(detect.RuleCPUPressure,
			"CPU pressure high in latest check",
			models.SustainedCPUPressure{FlaggedChecks: 1, TotalChecks: 1}, last))
	}

	for _, issue := range issues {
		metrics.IncRuleFiring(issue.RuleID)
	}
	return issues
}

func (c *Correlator) snapshotIssue(ruleID, summary string, cause models.RootCause, last models.HistoryRecord) models.CorrelatedIssue {
	setting := c.pack.Setting(ruleID)
	return models.CorrelatedIssue{
		CorrelationID: uuid.NewString(),
		RuleID:        ruleID,
		RootCause:     cause,
		Severity:      setting.Severity,
		Summary:       summary,
		Details:       "single-snapshot observation, no sustained trend yet",
		Evidence: []models.Fact{
			{Key: "observed_at", Value: last.TimestampUTC.Format(time.RFC3339)},
		},
		Remediation: setting.Remediation,
		Citations:   setting.Citations,
		Confidence:  setting.BaseConfidence,
		FirstSeen:   last.TimestampUTC,
		LastSeen:    last.TimestampUTC,
	}
}

// escalate upgrades severity when the newest evidence is past the point of
// "watch this": a nearly full disk, a service count collapse after a kernel
// change, or connectivity bad enough to break interactive use.
func escalate(base models.Severity, cause models.RootCause, last models.HistoryRecord) models.Severity {
	switch rc := cause.(type) {
	case models.DiskGrowth:
		if rc.ToPct >= 90 {
			return models.SeverityCritical
		}
	case models.KernelRegression:
		if last.FailedServicesCount > 3 {
			return models.SeverityCritical
		}
	case models.NetworkDegradation:
		if rc.PacketLossPct > 20 || rc.LatencyMS > 500 {
			return models.SeverityCritical
		}
	}
	return base
}

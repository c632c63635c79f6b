// Package detect holds the trend detectors: pure functions over a window of
// history records that either return an observation or nothing. Thresholds
// are deliberately conservative; a missed detection is cheaper than a false
// alarm on someone's workstation.
package detect

import (
	"fmt"
	"time"

	"github.com/opsward/trend-engine/internal/models"
	"github.com/opsward/trend-engine/internal/utils"
)

// Rule identifiers, stable across config and metrics.
const (
	RuleServiceFlapping    = "SVC-001"
	RuleDiskGrowth         = "DISK-002"
	RuleMemoryPressure     = "RES-001"
	RuleCPUPressure        = "RES-002"
	RuleKernelRegression   = "SYS-001"
	RuleNetworkDegradation = "NET-003"
)

const (
	hourWindow = time.Hour
	dayWindow  = 24 * time.Hour
)

// Detector pairs a rule with the history window it needs and its pure check
// function. Run returns nil when the rule does not fire; that is the normal
// "nothing to report" path, not an error.
type Detector struct {
	RuleID string
	Window time.Duration
	Run    func(records []models.HistoryRecord) *models.TrendObservation
}

// All returns the full detector table in rule-id order.
func All() []Detector {
	return []Detector{
		{RuleID: RuleDiskGrowth, Window: dayWindow, Run: DiskGrowth},
		{RuleID: RuleNetworkDegradation, Window: hourWindow, Run: NetworkDegradation},
		{RuleID: RuleMemoryPressure, Window: hourWindow, Run: MemoryPressure},
		{RuleID: RuleCPUPressure, Window: hourWindow, Run: CPUPressure},
		{RuleID: RuleServiceFlapping, Window: hourWindow, Run: ServiceFlapping},
		{RuleID: RuleKernelRegression, Window: dayWindow, Run: KernelRegression},
	}
}

// ServiceFlapping fires when failed_services_count crosses zero at least
// three times in the window: a unit cycling between failed and recovered.
// Needs four samples; three alternating records are not enough signal.
func ServiceFlapping(records []models.HistoryRecord) *models.TrendObservation {
	if len(records) < 4 {
		return nil
	}

	transitions := 0
	for i := 1; i < len(records); i++ {
		prevFailed := records[i-1].FailedServicesCount > 0
		curFailed := records[i].FailedServicesCount > 0
		if prevFailed != curFailed {
			transitions++
		}
	}
	if transitions < 3 {
		return nil
	}

	window := hourWindow
	return &models.TrendObservation{
		RuleID:         RuleServiceFlapping,
		Window:         window,
		ConfidenceBase: clampConfidence(0.7 + 0.05*float64(transitions)),
		Summary: fmt.Sprintf("services flapping: %d failed-state transitions over %s",
			transitions, utils.FormatWindow(window)),
		Evidence: []models.Fact{
			{Key: "transitions", Value: fmt.Sprintf("%d", transitions)},
			{Key: "failed_services", Value: fmt.Sprintf("%d→%d",
				records[0].FailedServicesCount, records[len(records)-1].FailedServicesCount)},
		},
		Cause: models.ServiceFlapping{
			Transitions:   transitions,
			WindowMinutes: int(window.Minutes()),
		},
	}
}

// DiskGrowth fires when root filesystem usage climbed at least 15 points
// across the window, ended in high territory, and the climb was mostly
// monotonic (70% of consecutive pairs non-decreasing) rather than churn.
func DiskGrowth(records []models.HistoryRecord) *models.TrendObservation {
	if len(records) < 3 {
		return nil
	}

	first := records[0].DiskRootUsagePct
	last := records[len(records)-1].DiskRootUsagePct
	growth := last - first
	if growth < 15 || last < 80 {
		return nil
	}

	nonDecreasing := 0
	for i := 1; i < len(records); i++ {
		if records[i].DiskRootUsagePct >= records[i-1].DiskRootUsagePct {
			nonDecreasing++
		}
	}
	pairs := len(records) - 1
	if nonDecreasing*10 < pairs*7 {
		return nil
	}

	window := dayWindow
	return &models.TrendObservation{
		RuleID:         RuleDiskGrowth,
		Window:         window,
		ConfidenceBase: clampConfidence(0.7 + 0.01*float64(growth)),
		Summary: fmt.Sprintf("root filesystem usage climbing: %d%%→%d%% over %s",
			first, last, utils.FormatWindow(window)),
		Evidence: []models.Fact{
			{Key: "usage", Value: fmt.Sprintf("%d%%→%d%%", first, last)},
			{Key: "nondecreasing_pairs", Value: fmt.Sprintf("%d/%d", nonDecreasing, pairs)},
		},
		Cause: models.DiskGrowth{
			Mountpoint: "/",
			FromPct:    first,
			ToPct:      last,
		},
	}
}

// MemoryPressure fires when at least 60% of checks in the window carried the
// sustained-high-memory flag. A single spike never clears the bar.
func MemoryPressure(records []models.HistoryRecord) *models.TrendObservation {
	return resourcePressure(records, RuleMemoryPressure, "memory",
		func(rec models.HistoryRecord) bool { return rec.HighMemoryFlag },
		func(flagged, total int) models.RootCause {
			return models.SustainedMemoryPressure{FlaggedChecks: flagged, TotalChecks: total}
		})
}

// CPUPressure is the CPU twin of MemoryPressure.
func CPUPressure(records []models.HistoryRecord) *models.TrendObservation {
	return resourcePressure(records, RuleCPUPressure, "CPU",
		func(rec models.HistoryRecord) bool { return rec.HighCPUFlag },
		func(flagged, total int) models.RootCause {
			return models.SustainedCPUPressure{FlaggedChecks: flagged, TotalChecks: total}
		})
}

func resourcePressure(records []models.HistoryRecord, ruleID, resource string,
	flagged func(models.HistoryRecord) bool,
	cause func(flagged, total int) models.RootCause) *models.TrendObservation {

	if len(records) < 3 {
		return nil
	}

	count := 0
	for _, rec := range records {
		if flagged(rec) {
			count++
		}
	}
	// Integer form of count/len >= 0.6 so 59% never rounds its way in.
	if count*10 < len(records)*6 {
		return nil
	}

	share := float64(count) / float64(len(records))
	window := hourWindow
	return &models.TrendObservation{
		RuleID:         ruleID,
		Window:         window,
		ConfidenceBase: clampConfidence(0.7 + (share-0.6)/0.4*0.25),
		Summary: fmt.Sprintf("sustained %s pressure: %d of %d checks high over %s",
			resource, count, len(records), utils.FormatWindow(window)),
		Evidence: []models.Fact{
			{Key: "flagged_checks", Value: fmt.Sprintf("%d/%d", count, len(records))},
		},
		Cause: cause(count, len(records)),
	}
}

// KernelRegression fires when service health degraded after a kernel change:
// the average failed-service count after the change record exceeds the
// average before it by more than one full service. The change record itself
// sits on neither side of the comparison.
func KernelRegression(records []models.HistoryRecord) *models.TrendObservation {
	if len(records) < 4 {
		return nil
	}

	changeIdx := -1
	for i, rec := range records {
		if rec.KernelChanged {
			changeIdx = i
			break
		}
	}
	if changeIdx <= 0 || changeIdx >= len(records)-1 {
		return nil
	}

	before := avgFailed(records[:changeIdx])
	after := avgFailed(records[changeIdx+1:])
	delta := after - before
	if delta <= 1.0 {
		return nil
	}

	oldVersion := records[changeIdx-1].KernelVersion
	newVersion := records[changeIdx].KernelVersion
	symptoms := fmt.Sprintf("failed services avg %.1f→%.1f", before, after)

	window := dayWindow
	return &models.TrendObservation{
		RuleID:         RuleKernelRegression,
		Window:         window,
		ConfidenceBase: clampConfidence(0.7 + 0.05*delta),
		Summary: fmt.Sprintf("service health degraded after kernel change %s→%s (%s)",
			oldVersion, newVersion, symptoms),
		Evidence: []models.Fact{
			{Key: "kernel", Value: fmt.Sprintf("%s→%s", oldVersion, newVersion)},
			{Key: "failed_services_avg", Value: fmt.Sprintf("%.1f→%.1f", before, after)},
			{Key: "degraded_services_last", Value: fmt.Sprintf("%d",
				records[len(records)-1].DegradedServicesCount)},
		},
		Cause: models.KernelRegression{
			OldVersion:          oldVersion,
			NewVersion:          newVersion,
			DegradationSymptoms: symptoms,
		},
	}
}

// NetworkDegradation fires when connectivity is bad now and got that way
// across the window: packet loss above 5% that grew by three or more points,
// or latency above 100ms that grew by 50ms or more.
func NetworkDegradation(records []models.HistoryRecord) *models.TrendObservation {
	if len(records) < 3 {
		return nil
	}

	first := records[0]
	last := records[len(records)-1]

	lossNow := last.NetworkPacketLossPct
	lossGrowth := lossNow - first.NetworkPacketLossPct
	lossBad := lossNow > 5 && lossGrowth >= 3

	latencyNow := last.NetworkLatencyMS
	latencyGrowth := latencyNow - first.NetworkLatencyMS
	latencyBad := latencyNow > 100 && latencyGrowth >= 50

	if !lossBad && !latencyBad {
		return nil
	}

	base := 0.7
	switch {
	case lossBad && latencyBad:
		base = 0.85
	case lossBad:
		base = 0.75
	}

	window := hourWindow
	return &models.TrendObservation{
		RuleID:         RuleNetworkDegradation,
		Window:         window,
		ConfidenceBase: clampConfidence(base),
		Summary: fmt.Sprintf("network degrading: loss %d%%→%d%%, latency %dms→%dms over %s",
			first.NetworkPacketLossPct, lossNow,
			first.NetworkLatencyMS, latencyNow, utils.FormatWindow(window)),
		Evidence: []models.Fact{
			{Key: "packet_loss", Value: fmt.Sprintf("%d%%→%d%%", first.NetworkPacketLossPct, lossNow)},
			{Key: "latency", Value: fmt.Sprintf("%dms→%dms", first.NetworkLatencyMS, latencyNow)},
		},
		Cause: models.NetworkDegradation{
			PacketLossPct: lossNow,
			LatencyMS:     latencyNow,
		},
	}
}

func avgFailed(records []models.HistoryRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	sum := 0
	for _, rec := range records {
		sum += rec.FailedServicesCount
	}
	return float64(sum) / float64(len(records))
}

// clampConfidence keeps detector base confidence inside the conservative
// band: detections always start meaningfully above coin-flip and leave room
// for the historian boost below certainty.
func clampConfidence(v float64) float64 {
	if v < 0.7 {
		return 0.7
	}
	if v > 0.95 {
		return 0.95
	}
	return v
}

package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsward/trend-engine/internal/models"
)

func seq(n int, build func(i int, rec *models.HistoryRecord)) []models.HistoryRecord {
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	records := make([]models.HistoryRecord, n)
	for i := range records {
		rec := models.NewHistoryRecord()
		rec.TimestampUTC = base.Add(time.Duration(i) * 5 * time.Minute)
		build(i, &rec)
		records[i] = rec
	}
	return records
}

func failedCounts(counts ...int) []models.HistoryRecord {
	return seq(len(counts), func(i int, rec *models.HistoryRecord) {
		rec.FailedServicesCount = counts[i]
	})
}

func diskUsage(pcts ...int) []models.HistoryRecord {
	return seq(len(pcts), func(i int, rec *models.HistoryRecord) {
		rec.DiskRootUsagePct = pcts[i]
	})
}

func TestServiceFlappingFires(t *testing.T) {
	obs := ServiceFlapping(failedCounts(0, 1, 0, 1))
	require.NotNil(t, obs)
	assert.Equal(t, RuleServiceFlapping, obs.RuleID)
	assert.Contains(t, obs.Summary, "3 failed-state transitions")
	assert.InDelta(t, 0.85, obs.ConfidenceBase, 1e-9)

	cause, ok := obs.Cause.(models.ServiceFlapping)
	require.True(t, ok)
	assert.Equal(t, 3, cause.Transitions)
	assert.Equal(t, 60, cause.WindowMinutes)
}

func TestServiceFlappingMinimumSamples(t *testing.T) {
	// Three alternating records show two transitions at most, but even a
	// pathological three-record window must stay silent.
	assert.Nil(t, ServiceFlapping(failedCounts(1, 0, 1)))
}

func TestServiceFlappingStableFailureIsNotFlapping(t *testing.T) {
	// A service that failed once and stayed failed transitions exactly once.
	assert.Nil(t, ServiceFlapping(failedCounts(0, 2, 2, 2, 2)))
}

func TestDiskGrowthScenario(t *testing.T) {
	obs := DiskGrowth(diskUsage(65, 72, 78, 83))
	require.NotNil(t, obs)
	assert.Contains(t, obs.Summary, "65%→83%")
	assert.InDelta(t, 0.88, obs.ConfidenceBase, 1e-9)

	cause, ok := obs.Cause.(models.DiskGrowth)
	require.True(t, ok)
	assert.Equal(t, "/", cause.Mountpoint)
	assert.Equal(t, 65, cause.FromPct)
	assert.Equal(t, 83, cause.ToPct)
}

func TestDiskGrowthBoundary(t *testing.T) {
	// 14 points of growth stays silent, 15 fires.
	assert.Nil(t, DiskGrowth(diskUsage(68, 75, 82)))
	assert.NotNil(t, DiskGrowth(diskUsage(67, 75, 82)))
}

func TestDiskGrowthMustEndHigh(t *testing.T) {
	assert.Nil(t, DiskGrowth(diskUsage(50, 60, 70)))
	// Ending at exactly 80 is high enough.
	assert.NotNil(t, DiskGrowth(diskUsage(60, 70, 80)))
}

func TestDiskGrowthRejectsChurn(t *testing.T) {
	// Same endpoints, but usage bounces around: under 70% of pairs
	// non-decreasing.
	assert.Nil(t, DiskGrowth(diskUsage(65, 80, 70, 85, 75, 83)))
}

func flaggedMemory(total, flagged int) []models.HistoryRecord {
	return seq(total, func(i int, rec *models.HistoryRecord) {
		rec.HighMemoryFlag = i < flagged
	})
}

func TestMemoryPressureBoundary(t *testing.T) {
	assert.Nil(t, MemoryPressure(flaggedMemory(100, 59)))

	obs := MemoryPressure(flaggedMemory(100, 60))
	require.NotNil(t, obs)
	assert.Equal(t, RuleMemoryPressure, obs.RuleID)
	assert.InDelta(t, 0.7, obs.ConfidenceBase, 1e-9)

	cause, ok := obs.Cause.(models.SustainedMemoryPressure)
	require.True(t, ok)
	assert.Equal(t, 60, cause.FlaggedChecks)
	assert.Equal(t, 100, cause.TotalChecks)
}

func TestMemoryPressureFullWindowConfidence(t *testing.T) {
	obs := MemoryPressure(flaggedMemory(10, 10))
	require.NotNil(t, obs)
	assert.InDelta(t, 0.95, obs.ConfidenceBase, 1e-9)
}

func TestCPUPressureTransientSpikeDoesNotFire(t *testing.T) {
	records := seq(10, func(i int, rec *models.HistoryRecord) {
		rec.HighCPUFlag = i >= 4 && i < 7
	})
	assert.Nil(t, CPUPressure(records))
}

func TestCPUPressureFires(t *testing.T) {
	records := seq(10, func(i int, rec *models.HistoryRecord) {
		rec.HighCPUFlag = i >= 2
	})
	obs := CPUPressure(records)
	require.NotNil(t, obs)
	assert.Equal(t, RuleCPUPressure, obs.RuleID)

	cause, ok := obs.Cause.(models.SustainedCPUPressure)
	require.True(t, ok)
	assert.Equal(t, 8, cause.FlaggedChecks)
}

func kernelScenario(beforeFailed, afterFailed []int) []models.HistoryRecord {
	n := len(beforeFailed) + 1 + len(afterFailed)
	return seq(n, func(i int, rec *models.HistoryRecord) {
		switch {
		case i < len(beforeFailed):
			rec.KernelVersion = "6.8.0-1"
			rec.FailedServicesCount = beforeFailed[i]
		case i == len(beforeFailed):
			rec.KernelVersion = "6.9.0-1"
			rec.KernelChanged = true
		default:
			rec.KernelVersion = "6.9.0-1"
			rec.FailedServicesCount = afterFailed[i-len(beforeFailed)-1]
		}
	})
}

func TestKernelRegressionScenario(t *testing.T) {
	obs := KernelRegression(kernelScenario([]int{0, 0, 1, 0, 0}, []int{2, 2, 2, 2, 2}))
	require.NotNil(t, obs)
	assert.Contains(t, obs.Summary, "6.8.0-1→6.9.0-1")

	cause, ok := obs.Cause.(models.KernelRegression)
	require.True(t, ok)
	assert.Equal(t, "6.8.0-1", cause.OldVersion)
	assert.Equal(t, "6.9.0-1", cause.NewVersion)
	assert.Contains(t, cause.DegradationSymptoms, "0.2→2.0")
}

func TestKernelRegressionNeedsRealDelta(t *testing.T) {
	// Average climbs by exactly 1.0: not enough.
	assert.Nil(t, KernelRegression(kernelScenario([]int{0, 0}, []int{1, 1})))
	// 1.5 clears the bar.
	assert.NotNil(t, KernelRegression(kernelScenario([]int{0, 0}, []int{1, 2})))
}

func TestKernelRegressionNeedsBothSides(t *testing.T) {
	// Change on the last record: nothing after it to judge.
	records := kernelScenario([]int{0, 0, 0}, nil)
	assert.Nil(t, KernelRegression(records))

	// No kernel change at all.
	assert.Nil(t, KernelRegression(failedCounts(0, 0, 3, 3, 3)))
}

func networkSeq(loss, latency [2]int, n int) []models.HistoryRecord {
	return seq(n, func(i int, rec *models.HistoryRecord) {
		if i == 0 {
			rec.NetworkPacketLossPct = loss[0]
			rec.NetworkLatencyMS = latency[0]
		} else {
			rec.NetworkPacketLossPct = loss[1]
			rec.NetworkLatencyMS = latency[1]
		}
	})
}

func TestNetworkDegradationLoss(t *testing.T) {
	obs := NetworkDegradation(networkSeq([2]int{2, 8}, [2]int{30, 95}, 4))
	require.NotNil(t, obs)
	assert.Contains(t, obs.Summary, "loss 2%→8%")
	assert.Contains(t, obs.Summary, "latency 30ms→95ms")
	// Latency never crossed 100ms, so only the loss branch fired.
	assert.InDelta(t, 0.75, obs.ConfidenceBase, 1e-9)
}

func TestNetworkDegradationLatency(t *testing.T) {
	obs := NetworkDegradation(networkSeq([2]int{0, 0}, [2]int{40, 160}, 3))
	require.NotNil(t, obs)
	assert.InDelta(t, 0.7, obs.ConfidenceBase, 1e-9)

	cause, ok := obs.Cause.(models.NetworkDegradation)
	require.True(t, ok)
	assert.Equal(t, 160, cause.LatencyMS)
}

func TestNetworkDegradationBothSignals(t *testing.T) {
	obs := NetworkDegradation(networkSeq([2]int{2, 9}, [2]int{40, 200}, 3))
	require.NotNil(t, obs)
	assert.InDelta(t, 0.85, obs.ConfidenceBase, 1e-9)
}

func TestNetworkDegradationNeedsGrowth(t *testing.T) {
	// Loss is bad now but was nearly as bad at the window start.
	assert.Nil(t, NetworkDegradation(networkSeq([2]int{7, 8}, [2]int{30, 40}, 3)))
	// High but flat latency is a baseline, not a trend.
	assert.Nil(t, NetworkDegradation(networkSeq([2]int{0, 0}, [2]int{150, 170}, 3)))
}

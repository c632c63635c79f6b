package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsward/trend-engine/internal/detect"
	"github.com/opsward/trend-engine/internal/models"
)

type fakeStore struct {
	records []models.HistoryRecord
	loadErr error
	lastErr error
}

func (f *fakeStore) LoadRecent(time.Duration) ([]models.HistoryRecord, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.records, nil
}

func (f *fakeStore) LastRecord() (models.HistoryRecord, bool, error) {
	if f.lastErr != nil {
		return models.HistoryRecord{}, false, f.lastErr
	}
	if len(f.records) == 0 {
		return models.HistoryRecord{}, false, nil
	}
	return f.records[len(f.records)-1], true, nil
}

func seq(n int, build func(i int, rec *models.HistoryRecord)) []models.HistoryRecord {
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	records := make([]models.HistoryRecord, n)
	for i := range records {
		rec := models.NewHistoryRecord()
		rec.TimestampUTC = base.Add(time.Duration(i) * time.Hour)
		build(i, &rec)
		records[i] = rec
	}
	return records
}

func TestRunBoostsTrendConfidence(t *testing.T) {
	store := &fakeStore{records: seq(4, func(i int, rec *models.HistoryRecord) {
		rec.DiskRootUsagePct = []int{65, 72, 78, 83}[i]
	})}
	c := NewCorrelator(store, nil, nil)

	issues := c.Run()
	require.Len(t, issues, 1)

	issue := issues[0]
	assert.Equal(t, detect.RuleDiskGrowth, issue.RuleID)
	// Detector base 0.88 plus the history confirmation boost.
	assert.InDelta(t, 0.98, issue.Confidence, 1e-9)
	assert.Equal(t, models.SeverityWarning, issue.Severity)
	assert.NotEmpty(t, issue.CorrelationID)
	assert.NotEmpty(t, issue.Remediation)
	assert.Equal(t, store.records[0].TimestampUTC, issue.FirstSeen)
	assert.Equal(t, store.records[3].TimestampUTC, issue.LastSeen)
}

func TestRunCapsConfidenceAtOne(t *testing.T) {
	store := &fakeStore{records: seq(10, func(i int, rec *models.HistoryRecord) {
		rec.HighMemoryFlag = true
	})}
	c := NewCorrelator(store, nil, nil)

	issues := c.Run()
	require.Len(t, issues, 1)
	assert.Equal(t, detect.RuleMemoryPressure, issues[0].RuleID)
	assert.InDelta(t, 1.0, issues[0].Confidence, 1e-9)
}

func TestCurrentStateFallbackHasNoBoost(t *testing.T) {
	// Two records are below every detector's sample floor, but the newest
	// snapshot still shows CPU pressure.
	store := &fakeStore{records: seq(2, func(i int, rec *models.HistoryRecord) {
		rec.HighCPUFlag = true
	})}
	c := NewCorrelator(store, nil, nil)

	issues := c.Run()
	require.Len(t, issues, 1)

	issue := issues[0]
	assert.Equal(t, detect.RuleCPUPressure, issue.RuleID)
	assert.InDelta(t, 0.7, issue.Confidence, 1e-9, "snapshot issues carry base confidence only")
	assert.Contains(t, issue.Details, "single-snapshot")
	assert.Equal(t, issue.FirstSeen, issue.LastSeen)
}

func TestTrendFiringSuppressesSnapshotDuplicate(t *testing.T) {
	store := &fakeStore{records: seq(10, func(i int, rec *models.HistoryRecord) {
		rec.HighCPUFlag = true
	})}
	c := NewCorrelator(store, nil, nil)

	issues := c.Run()
	require.Len(t, issues, 1, "trend and snapshot paths must not both emit for one rule")
	assert.Equal(t, detect.RuleCPUPressure, issues[0].RuleID)
}

func TestRunDegradesOnLoadError(t *testing.T) {
	store := &fakeStore{
		loadErr: errors.New("permission denied"),
		lastErr: errors.New("permission denied"),
	}
	c := NewCorrelator(store, nil, nil)

	assert.Empty(t, c.Run(), "storage outage degrades to no insights, never panics")
}

func TestRunSortsByConfidenceThenRule(t *testing.T) {
	store := &fakeStore{records: seq(10, func(i int, rec *models.HistoryRecord) {
		rec.DiskRootUsagePct = 65 + i*2 // 65 → 83, monotonic
		rec.HighMemoryFlag = i < 6      // exactly 60%
	})}
	c := NewCorrelator(store, nil, nil)

	issues := c.Run()
	require.Len(t, issues, 2)
	assert.Equal(t, detect.RuleDiskGrowth, issues[0].RuleID)
	assert.Equal(t, detect.RuleMemoryPressure, issues[1].RuleID)
	assert.Greater(t, issues[0].Confidence, issues[1].Confidence)
}

func TestSeverityEscalation(t *testing.T) {
	t.Run("disk nearly full", func(t *testing.T) {
		store := &fakeStore{records: seq(3, func(i int, rec *models.HistoryRecord) {
			rec.DiskRootUsagePct = []int{70, 82, 92}[i]
		})}
		issues := NewCorrelator(store, nil, nil).Run()
		require.Len(t, issues, 1)
		assert.Equal(t, models.SeverityCritical, issues[0].Severity)
	})

	t.Run("heavy packet loss", func(t *testing.T) {
		store := &fakeStore{records: seq(3, func(i int, rec *models.HistoryRecord) {
			rec.NetworkPacketLossPct = []int{2, 10, 25}[i]
		})}
		issues := NewCorrelator(store, nil, nil).Run()
		require.Len(t, issues, 1)
		assert.Equal(t, detect.RuleNetworkDegradation, issues[0].RuleID)
		assert.Equal(t, models.SeverityCritical, issues[0].Severity)
	})
}

func TestRunEmptyHistory(t *testing.T) {
	c := NewCorrelator(&fakeStore{}, nil, nil)
	assert.Empty(t, c.Run())
}

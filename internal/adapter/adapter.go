// Package adapter flattens rich health reports from the collector pipeline
// into the compact records the history store persists.
package adapter

import (
	"github.com/opsward/trend-engine/internal/models"
	"github.com/opsward/trend-engine/internal/store"
)

// Utilization levels treated as "high" when the pipeline supplies only an
// instantaneous reading and no sustained-pressure judgement.
const (
	cpuHighUtilizationPct    = 80.0
	memoryHighUtilizationPct = 85.0
)

// HealthReport is the adapter-facing view of one health-check cycle.
// Sub-structs are optional: a nil section means the collector could not
// produce that probe this cycle, and the record keeps conservative zero
// values for it.
type HealthReport struct {
	KernelVersion string
	Hostname      string
	BootID        string

	Disk     *DiskStatus
	Services *ServiceStatus
	CPU      *ResourceStatus
	Memory   *ResourceStatus
	Network  *NetworkStatus

	DeviceHotplug bool
}

// DiskStatus carries filesystem usage from the collector.
type DiskStatus struct {
	RootUsagePct int
	OtherMounts  []MountUsage
}

// MountUsage is usage of a single non-root mountpoint.
type MountUsage struct {
	Mountpoint string
	UsagePct   int
}

// ServiceStatus carries unit-state counts.
type ServiceStatus struct {
	Failed   int
	Degraded int
}

// ResourceStatus carries CPU or memory pressure. SustainedHigh is the
// pipeline's own judgement over its sampling window; when absent, the
// instantaneous utilization is compared against the package thresholds.
type ResourceStatus struct {
	SustainedHigh  *bool
	UtilizationPct float64
}

// NetworkStatus carries connectivity probe results.
type NetworkStatus struct {
	PacketLossPct int
	LatencyMS     int
}

// Compact converts a report into a history record. It is pure and
// infallible: missing sections become zero values and out-of-range
// percentages are clamped. KernelChanged is set only when prev carries a
// different non-empty kernel version, so the very first record of a fresh
// history never reports a change.
func Compact(report HealthReport, prev *models.HistoryRecord) models.HistoryRecord {
	rec := models.NewHistoryRecord()
	rec.KernelVersion = report.KernelVersion
	rec.Hostname = report.Hostname
	rec.BootID = report.BootID
	rec.DeviceHotplugFlag = report.DeviceHotplug

	if report.Disk != nil {
		rec.DiskRootUsagePct = clampPct(report.Disk.RootUsagePct)
		for _, mount := range report.Disk.OtherMounts {
			if pct := clampPct(mount.UsagePct); pct > rec.DiskOtherMaxUsagePct {
				rec.DiskOtherMaxUsagePct = pct
			}
		}
	}

	if report.Services != nil {
		rec.FailedServicesCount = nonNegative(report.Services.Failed)
		rec.DegradedServicesCount = nonNegative(report.Services.Degraded)
	}

	if report.CPU != nil {
		rec.HighCPUFlag = resourceHigh(report.CPU, cpuHighUtilizationPct)
	}
	if report.Memory != nil {
		rec.HighMemoryFlag = resourceHigh(report.Memory, memoryHighUtilizationPct)
	}

	if report.Network != nil {
		rec.NetworkPacketLossPct = clampPct(report.Network.PacketLossPct)
		rec.NetworkLatencyMS = nonNegative(report.Network.LatencyMS)
	}

	if prev != nil && prev.KernelVersion != "" && report.KernelVersion != "" &&
		prev.KernelVersion != report.KernelVersion {
		rec.KernelChanged = true
	}

	return rec
}

// Build compacts a report against the newest stored record and appends the
// result. A failure reading the previous record degrades to "no previous
// snapshot" rather than losing the new one; only the append itself can fail.
func Build(s *store.Store, report HealthReport) (models.HistoryRecord, error) {
	var prev *models.HistoryRecord
	if last, ok, err := s.LastRecord(); err == nil && ok {
		prev = &last
	}

	rec := Compact(report, prev)
	if err := s.Append(rec); err != nil {
		return rec, err
	}
	return rec, nil
}

func resourceHigh(res *ResourceStatus, threshold float64) bool {
	if res.SustainedHigh != nil {
		return *res.SustainedHigh
	}
	return res.UtilizationPct > threshold
}

func clampPct(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

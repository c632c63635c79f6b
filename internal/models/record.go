package models

import "time"

// SchemaVersion is stamped on every record written to disk. Readers skip
// records carrying a newer version instead of failing the parse.
const SchemaVersion = 1

// HistoryRecord is one compact snapshot of system health, appended to the
// history file once per health-check cycle. Records are immutable once
// written; the store only appends and evicts.
//
// Fields are kept small and correlation-focused on purpose: the full health
// report lives in the collector, this is only what the trend rules need.
type HistoryRecord struct {
	SchemaVersion int       `json:"schema_version"`
	TimestampUTC  time.Time `json:"timestamp_utc"`

	KernelVersion string `json:"kernel_version"`
	Hostname      string `json:"hostname"`
	BootID        string `json:"boot_id"`

	// Disk usage, 0-100.
	DiskRootUsagePct     int `json:"disk_root_usage_pct"`
	DiskOtherMaxUsagePct int `json:"disk_other_max_usage_pct"`

	FailedServicesCount   int `json:"failed_services_count"`
	DegradedServicesCount int `json:"degraded_services_count"`

	// Sustained-high flags as judged by the health pipeline, not
	// instantaneous readings.
	HighCPUFlag    bool `json:"high_cpu_flag"`
	HighMemoryFlag bool `json:"high_memory_flag"`

	NetworkPacketLossPct int `json:"network_packet_loss_pct"`
	NetworkLatencyMS     int `json:"network_latency_ms"`

	// KernelChanged is set only on the record immediately after a kernel
	// version change was observed.
	KernelChanged     bool `json:"kernel_changed"`
	DeviceHotplugFlag bool `json:"device_hotplug_flag"`
}

// NewHistoryRecord returns a record stamped with the current schema version
// and timestamp; all health fields start at their conservative defaults.
func NewHistoryRecord() HistoryRecord {
	return HistoryRecord{
		SchemaVersion: SchemaVersion,
		TimestampUTC:  time.Now().UTC(),
	}
}

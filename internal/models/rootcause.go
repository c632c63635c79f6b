package models

// RootCauseKind identifies a variant of the closed root-cause set.
type RootCauseKind string

const (
	KindServiceFlapping         RootCauseKind = "service_flapping"
	KindDiskGrowth              RootCauseKind = "disk_growth"
	KindSustainedCPUPressure    RootCauseKind = "sustained_cpu_pressure"
	KindSustainedMemoryPressure RootCauseKind = "sustained_memory_pressure"
	KindKernelRegression        RootCauseKind = "kernel_regression"
	KindNetworkDegradation      RootCauseKind = "network_degradation"
)

// RootCause is a closed sum type: the rule table is exhaustive by design, and
// adding a rule means adding a variant here, not subclassing elsewhere.
type RootCause interface {
	Kind() RootCauseKind
}

// ServiceFlapping reports services oscillating between failed and healthy.
type ServiceFlapping struct {
	Transitions   int
	WindowMinutes int
}

func (ServiceFlapping) Kind() RootCauseKind { return KindServiceFlapping }

// DiskGrowth reports steady growth of root-filesystem usage into high
// territory.
type DiskGrowth struct {
	Mountpoint string
	FromPct    int
	ToPct      int
}

func (DiskGrowth) Kind() RootCauseKind { return KindDiskGrowth }

// SustainedCPUPressure reports high CPU across most checks in the window.
type SustainedCPUPressure struct {
	FlaggedChecks int
	TotalChecks   int
}

func (SustainedCPUPressure) Kind() RootCauseKind { return KindSustainedCPUPressure }

// SustainedMemoryPressure reports high memory across most checks in the window.
type SustainedMemoryPressure struct {
	FlaggedChecks int
	TotalChecks   int
}

func (SustainedMemoryPressure) Kind() RootCauseKind { return KindSustainedMemoryPressure }

// KernelRegression reports health degradation following a kernel upgrade.
type KernelRegression struct {
	OldVersion          string
	NewVersion          string
	DegradationSymptoms string
}

func (KernelRegression) Kind() RootCauseKind { return KindKernelRegression }

// NetworkDegradation reports rising packet loss and/or latency.
type NetworkDegradation struct {
	PacketLossPct int
	LatencyMS     int
}

func (NetworkDegradation) Kind() RootCauseKind { return KindNetworkDegradation }

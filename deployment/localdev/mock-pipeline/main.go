// mock-pipeline plays the role of the health-check pipeline for local
// development: it appends a synthetic, slowly degrading health report to the
// history store every few seconds so the correlator has trends to chew on.
package main

import (
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opsward/trend-engine/internal/adapter"
	"github.com/opsward/trend-engine/internal/store"
)

func main() {
	var (
		dir      string
		interval time.Duration
	)
	flag.StringVar(&dir, "dir", "./localdev-state", "history store directory")
	flag.DurationVar(&interval, "interval", 5*time.Second, "append cadence")
	flag.Parse()

	history, err := store.Open(dir)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	diskPct := 60
	lossPct := 1
	latencyMS := 25
	kernel := "6.8.0-41-generic"
	cycle := 0

	log.Printf("mock pipeline appending to %s every %s", dir, interval)
	for {
		select {
		case <-sigCh:
			log.Println("mock pipeline stopped")
			return
		case <-ticker.C:
			cycle++

			// Disk creeps upward, network degrades slowly, a kernel
			// "upgrade" lands partway through the run.
			if diskPct < 95 && cycle%2 == 0 {
				diskPct++
			}
			if lossPct < 12 && cycle%5 == 0 {
				lossPct++
			}
			if latencyMS < 200 && cycle%3 == 0 {
				latencyMS += 5
			}
			if cycle == 40 {
				kernel = "6.9.0-1-generic"
			}

			failed := 0
			if cycle > 40 && rand.Intn(3) == 0 {
				failed = 1 + rand.Intn(3)
			}

			report := adapter.HealthReport{
				KernelVersion: kernel,
				Hostname:      "localdev",
				BootID:        "mock-boot-0001",
				Disk: &adapter.DiskStatus{
					RootUsagePct: diskPct,
					OtherMounts: []adapter.MountUsage{
						{Mountpoint: "/home", UsagePct: 40 + rand.Intn(5)},
					},
				},
				Services: &adapter.ServiceStatus{Failed: failed},
				CPU:      &adapter.ResourceStatus{UtilizationPct: 30 + float64(rand.Intn(60))},
				Memory:   &adapter.ResourceStatus{UtilizationPct: 50 + float64(rand.Intn(45))},
				Network: &adapter.NetworkStatus{
					PacketLossPct: lossPct,
					LatencyMS:     latencyMS + rand.Intn(10),
				},
			}

			rec, err := adapter.Build(history, report)
			if err != nil {
				log.Printf("append failed: %v", err)
				continue
			}
			log.Printf("appended record: disk=%d%% loss=%d%% latency=%dms failed=%d kernel_changed=%v",
				rec.DiskRootUsagePct, rec.NetworkPacketLossPct, rec.NetworkLatencyMS,
				rec.FailedServicesCount, rec.KernelChanged)
		}
	}
}

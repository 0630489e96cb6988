package observability

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/r3e-network/flowrt/infrastructure/logging"
)

// HostSampler periodically samples process/host CPU and memory usage into
// Prometheus gauges, used by /metrics alongside the request/actor/saga
// collectors in infrastructure/metrics.
type HostSampler struct {
	cpuPercent *prometheus.GaugeVec
	memPercent prometheus.Gauge
	memUsedMB  prometheus.Gauge
	log        *logging.Logger
}

// NewHostSampler registers the host gauges against reg.
func NewHostSampler(reg prometheus.Registerer, log *logging.Logger) *HostSampler {
	h := &HostSampler{
		cpuPercent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "host_cpu_percent",
			Help: "Per-core CPU utilization percentage",
		}, []string{"core"}),
		memPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "host_memory_used_percent",
			Help: "Host memory utilization percentage",
		}),
		memUsedMB: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "host_memory_used_megabytes",
			Help: "Host memory used in megabytes",
		}),
		log: log,
	}
	if reg != nil {
		reg.MustRegister(h.cpuPercent, h.memPercent, h.memUsedMB)
	}
	return h
}

// Run samples host resources every interval until ctx is canceled.
func (h *HostSampler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sample(ctx)
		}
	}
}

func (h *HostSampler) sample(ctx context.Context) {
	if percents, err := cpu.PercentWithContext(ctx, 0, true); err == nil {
		for i, p := range percents {
			h.cpuPercent.WithLabelValues(strconv.Itoa(i)).Set(p)
		}
	} else if h.log != nil {
		h.log.Warn(ctx, "host sampler: cpu read failed", map[string]any{"error": err.Error()})
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		h.memPercent.Set(vm.UsedPercent)
		h.memUsedMB.Set(float64(vm.Used) / (1024 * 1024))
	} else if h.log != nil {
		h.log.Warn(ctx, "host sampler: memory read failed", map[string]any{"error": err.Error()})
	}
}

package observability

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"
)

// ProcessProbe reports this process's CPU and memory usage.
type ProcessProbe struct {
	mu     sync.Mutex
	proc   *process.Process
	logger *zerolog.Logger
	warned bool
}

func NewProcessProbe(logger *zerolog.Logger) (*ProcessProbe, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	// prime the CPU counter; the first reading is relative to this call
	_, _ = p.Percent(0)
	return &ProcessProbe{proc: p, logger: logger}, nil
}

// Usage returns CPU percent since the previous call and resident memory percent.
// Failed readings are reported as zero.
func (p *ProcessProbe) Usage() (float64, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cpu, err := p.proc.Percent(0)
	if err != nil {
		p.warnOnce(err)
		cpu = 0
	}
	mem, err := p.proc.MemoryPercent()
	if err != nil {
		p.warnOnce(err)
		mem = 0
	}
	return cpu, float64(mem)
}

func (p *ProcessProbe) warnOnce(err error) {
	if p.warned || p.logger == nil {
		return
	}
	p.warned = true
	p.logger.Warn().Err(err).Msg("probe: resource usage unavailable")
}

package supervisor

import (
	"github.com/shirou/gopsutil/v4/process"
)

// resourceUsage holds live process metrics for a running worker.
type resourceUsage struct {
	cpuPercent float64
	memoryRSS  uint64
	threads    int32
}

// collectResources samples CPU, memory and thread usage for pid. Best
// effort: a dead or inaccessible process yields a zero value and false.
func collectResources(pid int) (resourceUsage, bool) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return resourceUsage{}, false
	}

	var usage resourceUsage
	if cpu, err := proc.CPUPercent(); err == nil {
		usage.cpuPercent = cpu
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		usage.memoryRSS = mem.RSS
	}
	if threads, err := proc.NumThreads(); err == nil {
		usage.threads = threads
	}
	return usage, true
}

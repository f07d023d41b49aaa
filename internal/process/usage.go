package process

import (
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Usage is a point-in-time resource sample of the backend.
type Usage struct {
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
	VMSBytes   uint64  `json:"vms_bytes"`
	NumThreads int32   `json:"num_threads"`
}

// Sample reads the current resource usage of pid.
func Sample(pid int) (Usage, error) {
	proc, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return Usage{}, err
	}
	var u Usage
	if u.CPUPercent, err = proc.CPUPercent(); err != nil {
		return Usage{}, err
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return Usage{}, err
	}
	u.RSSBytes = mem.RSS
	u.VMSBytes = mem.VMS
	// thread count is unavailable on some platforms; keep the rest of the sample
	if n, err := proc.NumThreads(); err == nil {
		u.NumThreads = n
	}
	return u, nil
}

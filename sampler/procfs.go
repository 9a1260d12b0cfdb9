package sampler

import (
	"fmt"
	"time"

	"github.com/prometheus/procfs"
	"github.com/prometheus/procfs/blockdevice"

	"github.com/brokerbench/brokerbench/model"
)

// ProcCollector reads host counters from /proc. When a broker process PID
// is known it additionally scopes memory to that process; otherwise samples
// are host-level only. Rates are derived from counter deltas, so the first
// sample of a series carries zero rates.
type ProcCollector struct {
	fs    procfs.FS
	block blockdevice.FS
	pid   int

	prev struct {
		valid      bool
		at         time.Time
		cpuBusy    float64
		cpuTotal   float64
		diskRead   uint64
		diskWrite  uint64
		netRx      uint64
		netTx      uint64
	}
}

// NewProcCollector builds a collector over the default /proc mount. pid is
// the broker process to scope memory to, or 0 for host-level only.
func NewProcCollector(pid int) (*ProcCollector, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("procfs unavailable: %w", err)
	}
	block, err := blockdevice.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("procfs unavailable: %w", err)
	}
	return &ProcCollector{fs: fs, block: block, pid: pid}, nil
}

// Collect reads the current counters. Individual counter families that
// cannot be read degrade to zero values rather than failing the sample.
func (c *ProcCollector) Collect() (model.ResourceSample, error) {
	sample := model.ResourceSample{Timestamp: time.Now()}

	cpuBusy, cpuTotal, cpuOK := c.readCPU()
	diskRead, diskWrite, diskOK := c.readDisk()
	netRx, netTx, netOK := c.readNet()
	c.readMemory(&sample)

	if c.prev.valid {
		elapsed := sample.Timestamp.Sub(c.prev.at).Seconds()
		if cpuOK {
			if dTotal := cpuTotal - c.prev.cpuTotal; dTotal > 0 {
				sample.CPU = (cpuBusy - c.prev.cpuBusy) / dTotal
			}
		}
		if elapsed > 0 {
			if diskOK {
				sample.DiskReadBytes = float64(diskRead-c.prev.diskRead) / elapsed
				sample.DiskWriteBytes = float64(diskWrite-c.prev.diskWrite) / elapsed
			}
			if netOK {
				sample.NetRxBytes = float64(netRx-c.prev.netRx) / elapsed
				sample.NetTxBytes = float64(netTx-c.prev.netTx) / elapsed
			}
		}
	}

	c.prev.valid = true
	c.prev.at = sample.Timestamp
	if cpuOK {
		c.prev.cpuBusy, c.prev.cpuTotal = cpuBusy, cpuTotal
	}
	if diskOK {
		c.prev.diskRead, c.prev.diskWrite = diskRead, diskWrite
	}
	if netOK {
		c.prev.netRx, c.prev.netTx = netRx, netTx
	}
	return sample, nil
}

func (c *ProcCollector) readCPU() (busy, total float64, ok bool) {
	stat, err := c.fs.Stat()
	if err != nil {
		return 0, 0, false
	}
	cpu := stat.CPUTotal
	idle := cpu.Idle + cpu.Iowait
	busy = cpu.User + cpu.Nice + cpu.System + cpu.IRQ + cpu.SoftIRQ + cpu.Steal
	return busy, busy + idle, true
}

func (c *ProcCollector) readMemory(sample *model.ResourceSample) {
	if c.pid > 0 {
		if proc, err := c.fs.Proc(c.pid); err == nil {
			if status, err := proc.NewStatus(); err == nil {
				sample.MemoryBytes = status.VmRSS
				sample.Container = true
				return
			}
		}
		// Process went away or is unreadable; fall back to host memory.
	}
	meminfo, err := c.fs.Meminfo()
	if err != nil || meminfo.MemTotal == nil || meminfo.MemAvailable == nil {
		return
	}
	sample.MemoryBytes = (*meminfo.MemTotal - *meminfo.MemAvailable) * 1024
}

func (c *ProcCollector) readDisk() (read, write uint64, ok bool) {
	stats, err := c.block.ProcDiskstats()
	if err != nil {
		return 0, 0, false
	}
	for _, d := range stats {
		// Sectors are 512 bytes regardless of the device's block size.
		read += d.ReadSectors * 512
		write += d.WriteSectors * 512
	}
	return read, write, true
}

func (c *ProcCollector) readNet() (rx, tx uint64, ok bool) {
	netdev, err := c.fs.NetDev()
	if err != nil {
		return 0, 0, false
	}
	total := netdev.Total()
	return total.RxBytes, total.TxBytes, true
}

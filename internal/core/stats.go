package core

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Stats tracks process-lifetime counters. Increment-only and atomic;
// peak is a running maximum sampled at each connect.
type Stats struct {
	startedAt   time.Time
	messages    atomic.Uint64
	connections atomic.Uint64
	peak        atomic.Uint64
}

func NewStats() *Stats {
	return &Stats{startedAt: time.Now()}
}

// MessageBroadcast records one admitted chat message.
func (s *Stats) MessageBroadcast() {
	s.messages.Add(1)
}

// ConnectionOpened records an accepted connection and samples the peak
// against the given live count.
func (s *Stats) ConnectionOpened(live int) {
	s.connections.Add(1)
	for {
		cur := s.peak.Load()
		if uint64(live) <= cur || s.peak.CompareAndSwap(cur, uint64(live)) {
			return
		}
	}
}

func (s *Stats) MessagesSent() uint64 {
	return s.messages.Load()
}

func (s *Stats) ConnectionsTotal() uint64 {
	return s.connections.Load()
}

func (s *Stats) PeakUsers() uint64 {
	return s.peak.Load()
}

func (s *Stats) UptimeSeconds() int64 {
	return int64(time.Since(s.startedAt).Seconds())
}

// MemoryMB samples the process resident set on demand. It is only read
// when a status request arrives, never polled.
func (s *Stats) MemoryMB() float64 {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	info, err := p.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return float64(info.RSS) / 1024.0 / 1024.0
}

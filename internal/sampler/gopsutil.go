package sampler

import (
	"context"
	"time"

	"github.com/netpulse/netpulse/pkg/common"
	gopsnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// hostStat is one read of the host-wide NIC counters.
type hostStat struct {
	BytesOut   uint64
	BytesIn    uint64
	PacketsOut uint64
	PacketsIn  uint64
}

// SystemSampler approximates per-process network counters from what the
// OS exposes portably: host-wide NIC counters plus each process's open
// sockets. True per-process byte accounting needs kernel hooks, so the
// host delta between passes is attributed to network-active processes
// by their share of open connections, and the running per-identity
// totals are reported as cumulative counters. Integer apportioning only
// ever rounds down, so attributed totals never exceed the host's.
//
// The sampler is owned by the collector's run loop; Snapshot is not
// safe for concurrent use.
type SystemSampler struct {
	timeout time.Duration
	clock   Clock

	readHost  func(ctx context.Context) (hostStat, error)
	listProcs func(ctx context.Context) (map[Identity]int, error)

	lastHost hostStat
	primed   bool
	totals   map[Identity]Counters
}

func NewSystemSampler(timeout time.Duration, clock Clock) *SystemSampler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if clock == nil {
		clock = time.Now
	}
	return &SystemSampler{
		timeout:   timeout,
		clock:     clock,
		readHost:  readHostCounters,
		listProcs: listNetworkProcesses,
		totals:    make(map[Identity]Counters),
	}
}

// Snapshot enumerates network-active processes, attributes the host
// counter delta since the previous pass across them, and returns the
// accumulated per-identity counters. A failed or timed-out pass leaves
// the sampler state untouched.
func (s *SystemSampler) Snapshot(ctx context.Context) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	procs, err := s.listProcs(ctx)
	if err != nil {
		return nil, common.TransientError(err, "enumerate processes")
	}
	host, err := s.readHost(ctx)
	if err != nil {
		return nil, common.TransientError(err, "read host counters")
	}

	var delta hostStat
	if s.primed {
		delta = hostStat{
			BytesOut:   counterDiff(s.lastHost.BytesOut, host.BytesOut),
			BytesIn:    counterDiff(s.lastHost.BytesIn, host.BytesIn),
			PacketsOut: counterDiff(s.lastHost.PacketsOut, host.PacketsOut),
			PacketsIn:  counterDiff(s.lastHost.PacketsIn, host.PacketsIn),
		}
	}
	s.lastHost = host
	s.primed = true

	// Identities with no sockets left are dropped; if they return they
	// start from a fresh baseline.
	for id := range s.totals {
		if _, ok := procs[id]; !ok {
			delete(s.totals, id)
		}
	}

	var totalConns int
	for _, conns := range procs {
		totalConns += conns
	}

	snap := &Snapshot{
		TakenAt: s.clock().UTC().Truncate(time.Second),
		Procs:   make(map[Identity]Counters, len(procs)),
	}
	for id, conns := range procs {
		t := s.totals[id]
		if totalConns > 0 {
			share := uint64(conns)
			total := uint64(totalConns)
			t.BytesOut += Cumulative(delta.BytesOut * share / total)
			t.BytesIn += Cumulative(delta.BytesIn * share / total)
			t.PacketsOut += Cumulative(delta.PacketsOut * share / total)
			t.PacketsIn += Cumulative(delta.PacketsIn * share / total)
		}
		t.Connections = conns
		s.totals[id] = t
		snap.Procs[id] = t
	}

	if len(snap.Procs) == 0 {
		zap.L().Debug("sampler pass found no processes with open sockets")
	}
	return snap, nil
}

// counterDiff returns the non-negative difference of two host counter
// reads; a decrease means the NIC counter reset.
func counterDiff(prev, cur uint64) uint64 {
	if cur < prev {
		return 0
	}
	return cur - prev
}

// readHostCounters sums traffic across all NICs.
func readHostCounters(ctx context.Context) (hostStat, error) {
	stats, err := gopsnet.IOCountersWithContext(ctx, false)
	if err != nil {
		return hostStat{}, err
	}
	var out hostStat
	for _, st := range stats {
		out.BytesOut += st.BytesSent
		out.BytesIn += st.BytesRecv
		out.PacketsOut += st.PacketsSent
		out.PacketsIn += st.PacketsRecv
	}
	return out, nil
}

// listNetworkProcesses returns the open-connection count per process
// identity. Processes that vanish mid-enumeration or expose no sockets
// are skipped.
func listNetworkProcesses(ctx context.Context) (map[Identity]int, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[Identity]int)
	for _, p := range procs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		conns, err := p.ConnectionsWithContext(ctx)
		if err != nil || len(conns) == 0 {
			continue
		}
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		out[Identity{ProcessName: name}] += len(conns)
	}
	return out, nil
}

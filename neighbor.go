package heymac

import (
	"sort"
	"sync"
	"time"
)

// NeighborEntry tracks one observed neighbor.
type NeighborEntry struct {
	LinkAddr            LinkAddress
	Caps                uint16
	Status              uint16
	LastHeard           time.Time
	LastRssi            int8
	LastSnr             float32
	AdvertisedNeighbors map[LinkAddress]struct{}
}

// hearsUs reports whether this entry's advertised neighbor set contains self.
func (e *NeighborEntry) hearsUs(self LinkAddress) bool {
	_, ok := e.AdvertisedNeighbors[self]
	return ok
}

// NeighborTable maps LinkAddress to NeighborEntry. An entry exists iff
// at least one valid frame was received from that address; Update is
// idempotent. The table carries its own lock, independent of the LNK
// machine's single-threaded dispatch, since Lnk.NeighborCount exposes it
// to callers on other goroutines.
type NeighborTable struct {
	self          LinkAddress
	staleInterval time.Duration
	log           Logger

	mu    sync.Mutex
	ngbrs map[LinkAddress]*NeighborEntry
}

// DefaultStaleFactor is the multiple of the beacon period used as the
// silence interval after which a neighbor is pruned.
const DefaultStaleFactor = 4

// NewNeighborTable creates an empty table for the node at self.
func NewNeighborTable(self LinkAddress, staleInterval time.Duration, log Logger) *NeighborTable {
	if log == nil {
		log = discardLogger{}
	}
	return &NeighborTable{
		self:          self,
		staleInterval: staleInterval,
		log:           log,
		ngbrs:         make(map[LinkAddress]*NeighborEntry),
	}
}

// ProcessFrame updates the sender's entry (creating it if absent): it
// stamps the last-heard time, RSSI, and SNR, and, if the frame carries a
// CsmaBeacon command, replaces the advertised-neighbors set and
// capabilities/status.
func (t *NeighborTable) ProcessFrame(frame *Frame, cmd Command) {
	sender, ok := frame.GetSender()
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	e, exists := t.ngbrs[sender]
	if !exists {
		e = &NeighborEntry{
			LinkAddr:            sender,
			AdvertisedNeighbors: make(map[LinkAddress]struct{}),
		}
		t.ngbrs[sender] = e
		t.log.Infof("neighbor table: new neighbor %s", sender)
	}

	if frame.RxMeta != nil {
		e.LastHeard = frame.RxMeta.RxTime
		e.LastRssi = frame.RxMeta.Rssi
		e.LastSnr = frame.RxMeta.Snr
	} else {
		e.LastHeard = time.Now()
	}

	if bcn, ok := cmd.(*CmdCsmaBeacon); ok {
		e.Caps = bcn.Caps
		e.Status = bcn.Status
		fresh := make(map[LinkAddress]struct{}, len(bcn.Ngbrs))
		for _, a := range bcn.Ngbrs {
			fresh[a] = struct{}{}
		}
		e.AdvertisedNeighbors = fresh
	}
}

// NgbrHearsMe reports whether any neighbor's advertised-neighbors set
// includes this node's own link address.
func (t *NeighborTable) NgbrHearsMe() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.ngbrs {
		if e.hearsUs(t.self) {
			return true
		}
	}
	return false
}

// GetNgbrsLnkAddrs returns the current neighbor link addresses, in a
// stable (sorted) order, for inclusion in an outbound beacon.
func (t *NeighborTable) GetNgbrsLnkAddrs() []LinkAddress {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]LinkAddress, 0, len(t.ngbrs))
	for a := range t.ngbrs {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		for k := 0; k < LnkAddrSize; k++ {
			if out[i][k] != out[j][k] {
				return out[i][k] < out[j][k]
			}
		}
		return false
	})
	return out
}

// Update prunes entries silent for longer than the stale interval. It is
// called periodically from the linking state.
func (t *NeighborTable) Update() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	for addr, e := range t.ngbrs {
		if now.Sub(e.LastHeard) > t.staleInterval {
			delete(t.ngbrs, addr)
			t.log.Infof("neighbor table: pruning stale neighbor %s", addr)
		}
	}
}

// Len reports the current neighbor count, used by the metrics gauge.
func (t *NeighborTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ngbrs)
}

// Get returns a copy of the entry for addr, if known.
func (t *NeighborTable) Get(addr LinkAddress) (NeighborEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.ngbrs[addr]
	if !ok {
		return NeighborEntry{}, false
	}
	cp := *e
	cp.AdvertisedNeighbors = make(map[LinkAddress]struct{}, len(e.AdvertisedNeighbors))
	for a := range e.AdvertisedNeighbors {
		cp.AdvertisedNeighbors[a] = struct{}{}
	}
	return cp, true
}

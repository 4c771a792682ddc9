package heymac

import (
	"fmt"
	"sync"
	"time"
)

// Signal names the kind of event delivered to a Machine.
type Signal int

// Core signals. Dialog machines and the LNK machine share this type but
// each interprets only the subset relevant to it.
const (
	SigEntry Signal = iota
	SigExit
	SigAlways
	SigBeaconTimeout
	SigLinkUpdateTimeout
	SigRxFromPhy
	SigFrame
	SigDialogTimeout
)

// Event is a signal plus an optional payload.
type Event struct {
	Signal Signal
	Value  interface{}
}

// State is one node of a hierarchical state machine: it handles an event
// and reports whether it was handled, optionally naming the state to
// transition into. An unhandled signal is delegated to Parent() before
// being discarded.
type State interface {
	Name() string
	Handle(m *Machine, evt Event) (next State, handled bool)
	Parent() State
}

// Machine runs one hierarchical state machine to completion of each event
// before processing the next. Each Machine owns one goroutine and one
// FIFO/LIFO event queue; no two machines' handlers run concurrently with
// each other's internal state because each only ever touches its own
// fields.
type Machine struct {
	Name     string
	Priority int
	Log      Logger

	mu       sync.Mutex
	queue    []Event
	current  State
	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// ValidatePriority rejects priorities that are not strictly positive.
// Numerically lower is higher priority.
func ValidatePriority(p int) error {
	if p <= 0 {
		return fmt.Errorf("heymac: priority must be strictly positive, got %d", p)
	}
	return nil
}

// NewMachine creates a Machine that will begin in initial once Run starts.
func NewMachine(name string, priority int, initial State, log Logger) *Machine {
	if log == nil {
		log = discardLogger{}
	}
	return &Machine{
		Name:     name,
		Priority: priority,
		Log:      log,
		current:  initial,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// PostFifo appends evt to the tail of the queue — normal delivery order.
func (m *Machine) PostFifo(evt Event) {
	m.mu.Lock()
	m.queue = append(m.queue, evt)
	m.mu.Unlock()
	m.nudge()
}

// PostLifo pushes evt to the head of the queue, so it is delivered before
// any previously-queued FIFO signal.
func (m *Machine) PostLifo(evt Event) {
	m.mu.Lock()
	m.queue = append([]Event{evt}, m.queue...)
	m.mu.Unlock()
	m.nudge()
}

func (m *Machine) nudge() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Machine) popEvent() (Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return Event{}, false
	}
	evt := m.queue[0]
	m.queue = m.queue[1:]
	return evt, true
}

// Run starts the machine's dispatch loop: it enters the initial state,
// then blocks processing events until Stop is called. Run is meant to be
// launched with `go m.Run()`.
func (m *Machine) Run() {
	m.dispatch(Event{Signal: SigEntry})
	for {
		select {
		case <-m.done:
			return
		case <-m.wake:
		}
		for {
			evt, ok := m.popEvent()
			if !ok {
				break
			}
			m.dispatch(evt)
		}
	}
}

// Stop halts the machine's dispatch loop. It does not run exit handlers;
// callers that need a clean teardown should post a Leave/reset event
// first. Stop is idempotent: a dialog stopping itself may race with the
// manager tearing every dialog down.
func (m *Machine) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

// Dispatch delivers evt synchronously to the current state, bypassing the
// queue. Only safe when the caller is the sole goroutine driving this
// machine — tests that never call Run use it; anything sending to a
// running machine must PostFifo instead.
func (m *Machine) Dispatch(evt Event) {
	m.dispatch(evt)
}

// Current returns the machine's current leaf state.
func (m *Machine) Current() State {
	return m.current
}

func (m *Machine) dispatch(evt Event) {
	cur := m.current
	for cur != nil {
		next, handled := cur.Handle(m, evt)
		if handled {
			if next != nil {
				m.transition(next)
			}
			return
		}
		cur = cur.Parent()
	}
	m.Log.Debugf("%s: signal %d unhandled by any state", m.Name, evt.Signal)
}

func (m *Machine) transition(next State) {
	curChain := ancestors(m.current)
	nextChain := ancestors(next)
	lca := findLCA(curChain, nextChain)

	for _, s := range curChain {
		if s == lca {
			break
		}
		s.Handle(m, Event{Signal: SigExit})
	}

	var entryChain []State
	for _, s := range nextChain {
		if s == lca {
			break
		}
		entryChain = append(entryChain, s)
	}
	for i, j := 0, len(entryChain)-1; i < j; i, j = i+1, j-1 {
		entryChain[i], entryChain[j] = entryChain[j], entryChain[i]
	}
	for _, s := range entryChain {
		s.Handle(m, Event{Signal: SigEntry})
	}
	m.current = next
}

func ancestors(s State) []State {
	var chain []State
	for s != nil {
		chain = append(chain, s)
		s = s.Parent()
	}
	return chain
}

func findLCA(a, b []State) State {
	set := make(map[State]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		if set[s] {
			return s
		}
	}
	return nil
}

// TimerEvent is a one-shot or periodic timer that posts its signal to a
// Machine via FIFO when it fires. Every state's exit handler must Disarm
// the timer it armed on entry.
type TimerEvent struct {
	signal Signal

	mu    sync.Mutex
	timer *time.Timer
	stop  chan struct{}
}

// NewTimerEvent creates a timer that will post sig when it fires.
func NewTimerEvent(sig Signal) *TimerEvent {
	return &TimerEvent{signal: sig}
}

// PostIn arms a one-shot timer that fires after d.
func (t *TimerEvent) PostIn(m *Machine, d time.Duration) {
	t.Disarm()
	timer := time.AfterFunc(d, func() {
		m.PostFifo(Event{Signal: t.signal})
	})
	t.mu.Lock()
	t.timer = timer
	t.mu.Unlock()
}

// PostEvery arms a periodic timer that fires every d until disarmed.
func (t *TimerEvent) PostEvery(m *Machine, d time.Duration) {
	t.Disarm()
	stop := make(chan struct{})
	t.mu.Lock()
	t.stop = stop
	t.mu.Unlock()
	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.PostFifo(Event{Signal: t.signal})
			}
		}
	}()
}

// Disarm cancels any pending one-shot or periodic firing.
func (t *TimerEvent) Disarm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

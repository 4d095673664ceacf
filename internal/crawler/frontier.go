package crawler

import "sync"

// EntryState is the lifecycle state of a frontier entry.
// Transitions are pending -> in-flight -> done|failed, plus an explicit
// in-flight -> pending when a retry is admitted.
type EntryState int

const (
	// StatePending means the URL waits to be processed.
	StatePending EntryState = iota
	// StateInFlight means a pipeline owns the URL.
	StateInFlight
	// StateDone means the URL was rendered.
	StateDone
	// StateFailed means the URL could not be rendered.
	StateFailed
)

// String returns the state name.
func (s EntryState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInFlight:
		return "in-flight"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Entry is a snapshot of one URL known to the frontier.
type Entry struct {
	Key   string
	URL   string
	Depth int
	State EntryState

	// Attempts counts how many times the entry was taken.
	Attempts int
}

// FrontierStats are the frontier counters at one point in time.
type FrontierStats struct {
	// Discovered is the number of distinct keys ever admitted. It never decreases.
	Discovered int
	Pending    int
	InFlight   int
	Done       int
	Failed     int

	// Dropped counts new keys refused because the entry cap was reached.
	Dropped int
}

// Frontier is the deduplicating work set of a crawl. Every operation is
// atomic with respect to the others, so concurrent pipelines may enqueue
// while the coordinator takes work. At most one entry exists per key.
//
// Pending entries are handed out breadth-first: FIFO within a depth,
// lower depths first.
type Frontier struct {
	mu sync.Mutex

	entries map[string]*Entry

	// levels holds pending entries queued per depth.
	levels [][]*Entry

	// head is the lowest depth that may still hold pending entries.
	head int

	maxEntries  int
	maxAttempts int
	stats       FrontierStats
}

// FrontierOption configures a Frontier.
type FrontierOption func(*Frontier)

// WithMaxEntries caps the number of distinct keys admitted. 0 means no cap.
func WithMaxEntries(n int) FrontierOption {
	return func(f *Frontier) {
		f.maxEntries = n
	}
}

// WithMaxAttempts sets how many times an entry may be taken in total.
// Values below 1 mean a single attempt, i.e. no retries.
func WithMaxAttempts(n int) FrontierOption {
	return func(f *Frontier) {
		f.maxAttempts = n
	}
}

// NewFrontier creates an empty Frontier.
func NewFrontier(opts ...FrontierOption) *Frontier {
	f := &Frontier{
		entries:     make(map[string]*Entry),
		maxAttempts: 1,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.maxAttempts < 1 {
		f.maxAttempts = 1
	}
	return f
}

// Enqueue admits key as a pending entry if it has never been seen.
// It reports whether a new entry was created. Re-discovering a key, in
// any state, is a no-op.
func (f *Frontier) Enqueue(key, rawURL string, depth int) bool {
	if depth < 0 {
		depth = 0
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.entries[key]; ok {
		return false
	}
	if f.maxEntries > 0 && len(f.entries) >= f.maxEntries {
		f.stats.Dropped++
		return false
	}

	e := &Entry{Key: key, URL: rawURL, Depth: depth, State: StatePending}
	f.entries[key] = e
	f.push(e)
	f.stats.Discovered++
	f.stats.Pending++
	return true
}

// TakeNext moves the next pending entry to in-flight and returns a copy.
// It returns false when nothing is pending.
func (f *Frontier) TakeNext() (Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for f.head < len(f.levels) {
		queue := f.levels[f.head]
		if len(queue) == 0 {
			f.levels[f.head] = nil
			f.head++
			continue
		}
		e := queue[0]
		queue[0] = nil
		f.levels[f.head] = queue[1:]

		e.State = StateInFlight
		e.Attempts++
		f.stats.Pending--
		f.stats.InFlight++
		return *e, true
	}
	return Entry{}, false
}

// MarkDone moves an in-flight entry to done. It reports whether the
// state changed; terminal, pending and unknown entries are left as they are.
func (f *Frontier) MarkDone(key string) bool {
	return f.finish(key, StateDone)
}

// MarkFailed moves an in-flight entry to failed. It reports whether the
// state changed; terminal, pending and unknown entries are left as they are.
func (f *Frontier) MarkFailed(key string) bool {
	return f.finish(key, StateFailed)
}

func (f *Frontier) finish(key string, state EntryState) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.entries[key]
	if !ok || e.State != StateInFlight {
		return false
	}
	e.State = state
	f.stats.InFlight--
	if state == StateDone {
		f.stats.Done++
	} else {
		f.stats.Failed++
	}
	return true
}

// Retry returns an in-flight entry to pending if it has attempts left.
// It reports whether the entry was re-admitted; when it returns false the
// caller still owns the in-flight entry and must finish it.
func (f *Frontier) Retry(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.entries[key]
	if !ok || e.State != StateInFlight || e.Attempts >= f.maxAttempts {
		return false
	}
	e.State = StatePending
	f.stats.InFlight--
	f.stats.Pending++
	f.push(e)
	return true
}

// push appends e to the queue of its depth. Callers hold mu.
func (f *Frontier) push(e *Entry) {
	for len(f.levels) <= e.Depth {
		f.levels = append(f.levels, nil)
	}
	f.levels[e.Depth] = append(f.levels[e.Depth], e)
	if e.Depth < f.head {
		f.head = e.Depth
	}
}

// IsExhausted reports whether no entry is pending or in flight.
func (f *Frontier) IsExhausted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats.Pending == 0 && f.stats.InFlight == 0
}

// Stats returns the current counters.
func (f *Frontier) Stats() FrontierStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

// Get returns a copy of the entry for key.
func (f *Frontier) Get(key string) (Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

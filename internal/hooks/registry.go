package hooks

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Registry owns hook entries keyed by event (universal) or event:tool
// (scoped), drives sequential priority-ordered execution, and tracks
// per-key aggregate statistics.
//
// There is deliberately no process-wide default registry; the host adapter
// constructs one explicitly and passes it down.
type Registry struct {
	mu      sync.RWMutex
	entries map[string][]*HookEntry

	// continueOnFailure keeps the chain going past non-blocking failures.
	// Blocking PreToolUse results always stop it regardless.
	continueOnFailure bool

	// collectMetrics gates the per-key aggregates.
	collectMetrics bool

	statsMu sync.Mutex
	stats   map[string]*ExecutionStats
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries:           make(map[string][]*HookEntry),
		continueOnFailure: true,
		collectMetrics:    true,
		stats:             make(map[string]*ExecutionStats),
	}
}

// SetContinueOnFailure controls whether non-blocking failures stop the
// chain. Default true.
func (r *Registry) SetContinueOnFailure(v bool) {
	r.mu.Lock()
	r.continueOnFailure = v
	r.mu.Unlock()
}

// SetCollectMetrics toggles statistics aggregation. Default true.
func (r *Registry) SetCollectMetrics(v bool) {
	r.mu.Lock()
	r.collectMetrics = v
	r.mu.Unlock()
}

// Register inserts an entry into its key's list, keeping the list sorted
// by priority descending. Equal priorities keep registration order: the
// new entry goes before the first strictly-lower priority, so earlier
// registrations with the same priority stay ahead of it.
//
// Duplicate names are not checked here; per-name uniqueness belongs to the
// plugin manager one layer up.
func (r *Registry) Register(entry *HookEntry) error {
	if entry == nil {
		return validationErrorf("nil entry")
	}
	if !entry.Event.IsValid() {
		return validationErrorf("invalid event %q", entry.Event)
	}
	if entry.Handler == nil {
		return validationErrorf("entry %q has no handler", entry.Name)
	}
	if entry.Tool != "" && !entry.Event.RequiresMatcher() {
		return validationErrorf("event %s does not support tool scoping", entry.Event)
	}

	key := registryKey(entry.Event, entry.Tool)

	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.entries[key]
	idx := sort.Search(len(list), func(i int) bool {
		return list[i].Priority < entry.Priority
	})
	list = append(list, nil)
	copy(list[idx+1:], list[idx:])
	list[idx] = entry
	r.entries[key] = list
	return nil
}

// Hooks returns the entries applicable to (event, tool): universal entries
// for the event plus entries scoped to exactly that tool, merged in
// priority order with ties kept insertion-stable. The returned slice is a
// snapshot; registry mutations after the call do not affect it.
func (r *Registry) Hooks(event HookEvent, tool ToolName) []*HookEntry {
	r.mu.RLock()
	universal := r.entries[registryKey(event, "")]
	var scoped []*HookEntry
	if tool != "" {
		scoped = r.entries[registryKey(event, tool)]
	}

	merged := make([]*HookEntry, 0, len(universal)+len(scoped))
	merged = append(merged, universal...)
	merged = append(merged, scoped...)
	r.mu.RUnlock()

	// Both inputs are already priority-sorted; a stable sort of the
	// concatenation preserves each list's internal registration order.
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Priority > merged[j].Priority
	})
	return merged
}

// Execute runs every applicable enabled entry for the context, strictly
// sequentially, each bounded by its own timeout. Handler errors never
// escape: they are normalized into failure Results. A blocking result on a
// PreToolUse chain stops the loop; no later entry runs.
//
// The entry list is snapshotted up front, so a hot-reload swap mid-chain
// cannot corrupt the iteration.
func (r *Registry) Execute(ctx context.Context, ec *ExecutionContext) ([]Result, error) {
	if err := ec.Validate(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	continueOnFailure := r.continueOnFailure
	collect := r.collectMetrics
	r.mu.RUnlock()

	entries := r.Hooks(ec.Event, ec.ToolName)
	results := make([]Result, 0, len(entries))

	for _, entry := range entries {
		if !entry.Enabled {
			continue
		}

		result, _ := Run(ctx, entry.Handler, ec, RunOptions{Timeout: entry.timeout()})
		if collect {
			r.recordStats(entry, ec.Event, result)
		}
		results = append(results, result)

		if result.Blocking(ec.Event) {
			break
		}
		if !result.Success && !continueOnFailure {
			break
		}
	}
	return results, nil
}

// ExecuteAndCombine runs Execute and folds the chain into one verdict.
func (r *Registry) ExecuteAndCombine(ctx context.Context, ec *ExecutionContext) (Result, error) {
	results, err := r.Execute(ctx, ec)
	if err != nil {
		return Result{}, err
	}
	return Combine(ec.Event, results), nil
}

// Unregister removes every entry under (event, tool). It returns the
// number of entries removed.
func (r *Registry) Unregister(event HookEvent, tool ToolName) int {
	key := registryKey(event, tool)

	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries[key])
	delete(r.entries, key)
	return n
}

// UnregisterNamed removes entries with the given name across all keys,
// returning how many were dropped. Hot reload uses this to retire a
// plugin's hooks before re-registering the replacement.
func (r *Registry) UnregisterNamed(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, list := range r.entries {
		kept := list[:0]
		for _, e := range list {
			if e.Name == name {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(r.entries, key)
		} else {
			r.entries[key] = kept
		}
	}
	return removed
}

// Clear wipes all entries and statistics.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.entries = make(map[string][]*HookEntry)
	r.mu.Unlock()

	r.statsMu.Lock()
	r.stats = make(map[string]*ExecutionStats)
	r.statsMu.Unlock()
}

// Len returns the total number of registered entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, list := range r.entries {
		n += len(list)
	}
	return n
}

// Stats returns aggregate rows matching the filters. Empty filters match
// everything. Rows are copies; mutating them does not touch the registry.
func (r *Registry) Stats(event HookEvent, tool ToolName) []ExecutionStats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()

	var rows []ExecutionStats
	for key, s := range r.stats {
		if event != "" && !strings.HasPrefix(key, string(event)) {
			continue
		}
		if tool != "" && !strings.HasSuffix(key, ":"+string(tool)) {
			continue
		}
		rows = append(rows, *s)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows
}

// recordStats updates the aggregate row for the entry's key. Created
// lazily on first execution; the whole read-modify-write happens under
// one lock so concurrent chains interleave safely.
func (r *Registry) recordStats(entry *HookEntry, event HookEvent, result Result) {
	key := registryKey(entry.Event, entry.Tool)

	r.statsMu.Lock()
	defer r.statsMu.Unlock()

	s, ok := r.stats[key]
	if !ok {
		s = &ExecutionStats{Key: key}
		r.stats[key] = s
	}
	s.record(event, result)
}

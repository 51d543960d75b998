package facts

import (
	"sort"
	"strings"
	"sync"

	"mercator-hq/triage/pkg/budget"
)

// Context is the ambient, read-only view rules have of the artifact and the
// run: claimed metadata, size, cumulative resource usage and how many
// probes failed or parsed partially. Only the engine updates it.
type Context struct {
	mu sync.RWMutex

	claimed        map[string]string
	size           int64
	usage          budget.Usage
	boundsExceeded bool
	probeErrors    int
	partialParses  int
}

// NewContext creates a context for an artifact of the given size.
func NewContext(size int64, claimed map[string]string) *Context {
	c := &Context{
		claimed: make(map[string]string, len(claimed)),
		size:    size,
	}
	for k, v := range claimed {
		c.claimed[k] = v
	}
	return c
}

// Lookup resolves a context field such as "size", "bounds_exceeded" or
// "claimed.extension". Unknown fields and absent claims are not found.
func (c *Context) Lookup(field string) (Value, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if key, ok := strings.CutPrefix(field, "claimed."); ok {
		v, found := c.claimed[key]
		if !found {
			return Value{}, false
		}
		return Label(v), true
	}

	switch field {
	case "size":
		return Number(float64(c.size)), true
	case "bounds_exceeded":
		return Bool(c.boundsExceeded), true
	case "bytes_read":
		return Number(float64(c.usage.BytesRead)), true
	case "bytes_scanned":
		return Number(float64(c.usage.BytesScanned)), true
	case "depth":
		return Number(float64(c.usage.Depth)), true
	case "members":
		return Number(float64(c.usage.Members)), true
	case "probe_errors":
		return Number(float64(c.probeErrors)), true
	case "partial_parses":
		return Number(float64(c.partialParses)), true
	}
	return Value{}, false
}

// Size returns the artifact size in bytes.
func (c *Context) Size() int64 {
	return c.size
}

// Claimed returns a copy of the claimed metadata.
func (c *Context) Claimed() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]string, len(c.claimed))
	for k, v := range c.claimed {
		out[k] = v
	}
	return out
}

// ClaimedKeys returns the claimed metadata keys, sorted.
func (c *Context) ClaimedKeys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.claimed))
	for k := range c.claimed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AddUsage folds a finished stage's consumption into the run total.
func (c *Context) AddUsage(u budget.Usage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.usage = c.usage.Merge(u)
}

// Usage returns the cumulative consumption of the run.
func (c *Context) Usage() budget.Usage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.usage
}

// MarkBoundsExceeded sets the bounds_exceeded flag. It never clears.
func (c *Context) MarkBoundsExceeded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.boundsExceeded = true
}

// BoundsExceeded reports whether any stage exhausted a bound.
func (c *Context) BoundsExceeded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.boundsExceeded
}

// NoteProbeError counts a probe that failed or was unavailable.
func (c *Context) NoteProbeError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probeErrors++
}

// NotePartialParse counts a probe that returned a partial result.
func (c *Context) NotePartialParse() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partialParses++
}

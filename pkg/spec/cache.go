package spec

import (
	"sync"

	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/canonicalize"
)

// BundleCache is a bounded, concurrent, per-key-construction memoisation of
// compiled bundles: at most one compile per content hash is ever in
// flight, and a successful compile is served to every waiter.
type BundleCache struct {
	compiler *Compiler
	maxSize  int

	mu      sync.Mutex
	inFlight map[string]*entry
	order    []string // insertion order, for bounded eviction
	done     map[string]*Bundle
}

type entry struct {
	wg       sync.WaitGroup
	bundle   *Bundle
	violation []Violation
}

// NewBundleCache creates a cache bounded to maxSize compiled bundles.
// maxSize <= 0 means unbounded.
func NewBundleCache(compiler *Compiler, maxSize int) *BundleCache {
	return &BundleCache{
		compiler: compiler,
		maxSize:  maxSize,
		inFlight: make(map[string]*entry),
		done:     make(map[string]*Bundle),
	}
}

// Compile returns the cached bundle for s's content hash, compiling it
// exactly once even under concurrent callers requesting the same spec.
func (c *BundleCache) Compile(s AgentSpec) (*Bundle, []Violation) {
	key, err := canonicalize.Hash(s)
	if err != nil {
		return nil, []Violation{{Path: "", Code: "internal", Message: err.Error()}}
	}

	c.mu.Lock()
	if b, ok := c.done[key]; ok {
		c.mu.Unlock()
		return b, nil
	}
	if e, ok := c.inFlight[key]; ok {
		c.mu.Unlock()
		e.wg.Wait()
		return e.bundle, e.violation
	}

	e := &entry{}
	e.wg.Add(1)
	c.inFlight[key] = e
	c.mu.Unlock()

	bundle, violations := c.compiler.Compile(s)

	c.mu.Lock()
	delete(c.inFlight, key)
	if len(violations) == 0 {
		c.done[key] = bundle
		c.order = append(c.order, key)
		c.evictLocked()
	}
	c.mu.Unlock()

	e.bundle = bundle
	e.violation = violations
	e.wg.Done()
	return bundle, violations
}

// evictLocked drops the oldest entries once the cache exceeds maxSize.
// Caller must hold c.mu.
func (c *BundleCache) evictLocked() {
	if c.maxSize <= 0 {
		return
	}
	for len(c.order) > c.maxSize {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.done, oldest)
	}
}

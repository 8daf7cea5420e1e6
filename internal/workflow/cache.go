package workflow

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// GraphCache memoizes one DependencyGraph per workflow version. Published
// workflow templates are immutable, so entries are added and never evicted
// or replaced. If templates ever become mutable after publication this cache
// will serve stale graphs.
//
// Concurrent first loads of the same unseen version collapse into a single
// store round-trip via singleflight; loads of distinct versions never
// serialize against each other, and already-cached versions are served from
// the read lock alone.
type GraphCache struct {
	templates TemplateStore
	edges     EdgeStore

	mu     sync.RWMutex
	graphs map[string]*DependencyGraph

	group singleflight.Group

	// onLoad, when set, is invoked once per store load (not per Get). Used
	// to feed the cache-load metric.
	onLoad func(workflowVersion string)
}

// NewGraphCache creates an empty cache over the given template and edge
// stores.
func NewGraphCache(templates TemplateStore, edges EdgeStore) *GraphCache {
	return &GraphCache{
		templates: templates,
		edges:     edges,
		graphs:    make(map[string]*DependencyGraph),
	}
}

// OnLoad registers a callback fired after every successful store load.
// Must be called before the cache is shared between goroutines.
func (c *GraphCache) OnLoad(fn func(workflowVersion string)) { c.onLoad = fn }

// Get returns the dependency graph of the given workflow version, loading
// and validating it on first use.
func (c *GraphCache) Get(ctx context.Context, workflowVersion string) (*DependencyGraph, error) {
	c.mu.RLock()
	g, ok := c.graphs[workflowVersion]
	c.mu.RUnlock()
	if ok {
		return g, nil
	}

	v, err, _ := c.group.Do(workflowVersion, func() (any, error) {
		// Another caller may have populated the entry between the read
		// check and the singleflight slot.
		c.mu.RLock()
		g, ok := c.graphs[workflowVersion]
		c.mu.RUnlock()
		if ok {
			return g, nil
		}

		g, err := c.load(ctx, workflowVersion)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.graphs[workflowVersion] = g
		c.mu.Unlock()

		if c.onLoad != nil {
			c.onLoad(workflowVersion)
		}
		return g, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*DependencyGraph), nil
}

func (c *GraphCache) load(ctx context.Context, workflowVersion string) (*DependencyGraph, error) {
	stages, err := c.templates.ListStages(ctx, workflowVersion)
	if err != nil {
		return nil, fmt.Errorf("load stage templates for version %s: %w", workflowVersion, err)
	}
	edges, err := c.edges.ListEdges(ctx, workflowVersion)
	if err != nil {
		return nil, fmt.Errorf("load dependency edges for version %s: %w", workflowVersion, err)
	}
	return BuildDependencyGraph(workflowVersion, stages, edges)
}

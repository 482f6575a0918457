// Package opcache provides a typed catalog of remote operations with
// result caching, in-flight de-duplication and tag-based invalidation.
package opcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	apperrors "resumind/internal/errors"
)

// State is the lifecycle of a cached query result.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateSuccess
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type entry struct {
	state State
	data  any
	err   error
	tags  []string
}

// Cache stores query results keyed by operation name and serialized
// arguments. Identical concurrent queries share one delegated call via
// singleflight; settled results, including errors, are served from cache
// until a tag invalidation removes them.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	byTag   map[string]map[string]struct{}
	group   singleflight.Group
	logger  *apperrors.Logger
	hooks   Hooks
}

// Hooks observes cache activity. Callbacks run outside the cache lock
// and must be safe for concurrent use.
type Hooks struct {
	OnHit        func(op string)
	OnInvalidate func(tags []string)
}

// SetHooks installs activity callbacks. Safe to call while the cache is
// in use.
func (c *Cache) SetHooks(h Hooks) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = h
}

func (c *Cache) notifyHit(op string) {
	c.mu.Lock()
	h := c.hooks.OnHit
	c.mu.Unlock()
	if h != nil {
		h(op)
	}
}

// NewCache creates an empty operation cache.
func NewCache(logger *apperrors.Logger) *Cache {
	return &Cache{
		entries: make(map[string]*entry),
		byTag:   make(map[string]map[string]struct{}),
		logger:  logger,
	}
}

// cacheKey builds the entry key from the operation name and its argument.
func cacheKey(op string, arg any) string {
	data, err := json.Marshal(arg)
	if err != nil {
		// Arguments are plain structs and strings; a marshal failure
		// still needs a stable key.
		data = []byte(fmt.Sprintf("%+v", arg))
	}
	return op + "\x1f" + string(data)
}

// StateOf reports the cached state for an operation and argument pair.
func (c *Cache) StateOf(op string, arg any) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cacheKey(op, arg)]
	if !ok {
		return StateIdle
	}
	return e.state
}

// Invalidate drops every cached entry registered under any of the tags.
func (c *Cache) Invalidate(tags ...string) {
	c.mu.Lock()
	for _, tag := range tags {
		for key := range c.byTag[tag] {
			delete(c.entries, key)
		}
		delete(c.byTag, tag)
	}
	onInvalidate := c.hooks.OnInvalidate
	c.mu.Unlock()
	if onInvalidate != nil && len(tags) > 0 {
		onInvalidate(tags)
	}
	if c.logger != nil {
		c.logger.Debug("Cache invalidated", "tags", tags)
	}
}

// Reset drops every cached entry.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.byTag = make(map[string]map[string]struct{})
}

func (c *Cache) lookup(key string) (*entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.state == StateLoading {
		return nil, false
	}
	return e, true
}

func (c *Cache) markLoading(key string, tags []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry{state: StateLoading, tags: tags}
	for _, tag := range tags {
		if c.byTag[tag] == nil {
			c.byTag[tag] = make(map[string]struct{})
		}
		c.byTag[tag][key] = struct{}{}
	}
}

func (c *Cache) settle(key string, tags []string, data any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := &entry{data: data, err: err, tags: tags}
	if err != nil {
		e.state = StateError
	} else {
		e.state = StateSuccess
	}
	c.entries[key] = e
}

// RunQuery executes a cacheable read operation. A settled result for the
// same operation and argument is returned without a new delegated call;
// concurrent identical calls are collapsed into one fetch.
func RunQuery[Arg, Out any](ctx context.Context, c *Cache, op string, arg Arg, tags []string, fetch func(context.Context, Arg) (Out, error)) (Out, error) {
	key := cacheKey(op, arg)

	if e, ok := c.lookup(key); ok {
		c.notifyHit(op)
		if e.err != nil {
			var zero Out
			return zero, e.err
		}
		return e.data.(Out), nil
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check under the group: another flight may have settled the
		// entry between lookup and Do.
		if e, ok := c.lookup(key); ok {
			return e.data, e.err
		}

		c.markLoading(key, tags)
		out, err := fetch(ctx, arg)
		c.settle(key, tags, out, err)
		return out, err
	})
	if err != nil {
		var zero Out
		return zero, err
	}
	return result.(Out), nil
}

// RunMutation executes a write operation. Mutations are never cached; on
// success the listed tags are invalidated and onSuccess, when set, runs
// before the result is returned.
func RunMutation[Arg, Out any](ctx context.Context, c *Cache, op string, arg Arg, invalidates []string, onSuccess func(context.Context), fn func(context.Context, Arg) (Out, error)) (Out, error) {
	out, err := fn(ctx, arg)
	if err != nil {
		var zero Out
		return zero, err
	}
	if len(invalidates) > 0 {
		c.Invalidate(invalidates...)
	}
	if onSuccess != nil {
		onSuccess(ctx)
	}
	return out, nil
}

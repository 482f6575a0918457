package capability

import (
	"context"
	"path"
	"sort"
	"sync"

	"resumind/internal/types"
)

// memoryKV is an in-process key-value backend. Pattern matching in List
// follows glob rules, so "resume:*" selects every record key.
type memoryKV struct {
	mu   sync.RWMutex
	data map[string]string
}

func newMemoryKV() *memoryKV {
	return &memoryKV{data: make(map[string]string)}
}

func (m *memoryKV) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryKV) Set(ctx context.Context, key, value string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return true, nil
}

func (m *memoryKV) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *memoryKV) List(ctx context.Context, pattern string, returnValues bool) ([]types.KVEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.KVEntry
	for k, v := range m.data {
		matched, err := path.Match(pattern, k)
		if err != nil {
			return nil, err
		}
		if !matched {
			continue
		}
		entry := types.KVEntry{Key: k}
		if returnValues {
			entry.Value = v
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memoryKV) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.data = make(map[string]string)
	m.mu.Unlock()
	return nil
}

var _ KeyValueStore = (*memoryKV)(nil)

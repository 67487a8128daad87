// Package emit renders merged struct layouts as target source code.
package emit

import (
	"sort"
	"sync"

	"spikegen/internal/codegen"
)

// Naming holds the prefixes that turn a buffer key into a symbol name.
type Naming struct {
	ArrayPrefix  string
	ScalarPrefix string
}

func DefaultNaming() Naming {
	return Naming{ArrayPrefix: "d_", ScalarPrefix: "d_"}
}

// Symbol joins a buffer key into <prefix><name><group>.
func (n Naming) Symbol(k codegen.BufferKey) string {
	switch k.Space {
	case codegen.SpaceArray:
		return n.ArrayPrefix + k.Name + k.Group
	case codegen.SpaceScalar:
		return n.ScalarPrefix + k.Name + k.Group
	}
	return k.Name + k.Group
}

// Buffer is one distinct buffer referenced by emitted structs.
type Buffer struct {
	Handle int
	Key    codegen.BufferKey
	Symbol string
}

// BufferTable deduplicates buffer keys across every emitted struct and hands
// out dense handles in first-seen order. It is safe for concurrent use.
type BufferTable struct {
	naming Naming

	mu      sync.Mutex
	handles map[codegen.BufferKey]int
	keys    []codegen.BufferKey
}

func NewBufferTable(naming Naming) *BufferTable {
	return &BufferTable{naming: naming, handles: make(map[codegen.BufferKey]int)}
}

// Handle returns the handle of k, registering it if it is new.
func (t *BufferTable) Handle(k codegen.BufferKey) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok := t.handles[k]; ok {
		return h
	}
	h := len(t.keys)
	t.handles[k] = h
	t.keys = append(t.keys, k)
	return h
}

// Register records every buffer the fields refer to.
func (t *BufferTable) Register(fields []codegen.Field) {
	for _, f := range fields {
		for _, v := range f.Values {
			if k, ok := v.Key(); ok {
				t.Handle(k)
			}
		}
	}
}

func (t *BufferTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.keys)
}

// Buffers lists the registered buffers sorted by symbol name.
func (t *BufferTable) Buffers() []Buffer {
	t.mu.Lock()
	out := make([]Buffer, len(t.keys))
	for i, k := range t.keys {
		out[i] = Buffer{Handle: i, Key: k, Symbol: t.naming.Symbol(k)}
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

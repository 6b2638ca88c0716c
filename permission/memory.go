package permission

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
)

// Memory caches arbitration decisions for the life of the process. It has two
// tiers: a tool-level map consulted first, and a parameter-level map keyed by
// tool name plus a structural hash of the inputs. Nothing here is ever
// written to disk.
type Memory struct {
	mu         sync.RWMutex
	toolAlways map[string]bool
	byParams   map[string]Decision
}

// NewMemory creates an empty decision memory.
func NewMemory() *Memory {
	return &Memory{
		toolAlways: make(map[string]bool),
		byParams:   make(map[string]Decision),
	}
}

// Lookup consults the cache. The tool-level tier takes precedence over the
// parameter-level tier.
func (m *Memory) Lookup(req Request) (Decision, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if allow, ok := m.toolAlways[req.ToolName]; ok {
		return Decision{Allow: allow}, true
	}
	if d, ok := m.byParams[paramKey(req)]; ok {
		return d, true
	}
	return Decision{}, false
}

// Record stores a resolved human decision. Every decision lands in the
// parameter tier; Always additionally promotes it to the tool tier.
func (m *Memory) Record(req Request, d Decision) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.byParams[paramKey(req)] = d
	if d.Always {
		m.toolAlways[req.ToolName] = d.Allow
	}
}

// SeedAllowed marks tools as always allowed, skipping any prompt. Used for
// config- and policy-declared trusted tools.
func (m *Memory) SeedAllowed(tools []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tools {
		m.toolAlways[t] = true
	}
}

// SeedDenied marks tools as always denied.
func (m *Memory) SeedDenied(tools []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tools {
		m.toolAlways[t] = false
	}
}

// paramKey builds the parameter-tier key: tool name plus a structural hash of
// the inputs. Hash collisions are an accepted approximation.
func paramKey(req Request) string {
	return req.ToolName + ":" + hashInputs(req.Inputs)
}

// hashInputs computes an fnv64a hash over the canonical JSON form of the
// inputs. encoding/json emits map keys in sorted order, so structurally equal
// inputs hash equal regardless of insertion order.
func hashInputs(inputs map[string]any) string {
	h := fnv.New64a()
	data, err := json.Marshal(inputs)
	if err != nil {
		data = fmt.Append(nil, inputs)
	}
	h.Write(data)
	return strconv.FormatUint(h.Sum64(), 16)
}

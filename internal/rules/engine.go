package rules

import (
	"fmt"
	"sync"

	"github.com/solatis/editcheck/internal/types"
)

// Engine compiles rule trees against one Library and caches the results.
// Rule trees are immutable once loaded, so the cache is keyed by node identity.
type Engine struct {
	lib *Library

	mu    sync.RWMutex
	cache map[*types.Node]*CompiledPredicate
}

// NewEngine creates an engine bound to lib.
func NewEngine(lib *Library) *Engine {
	return &Engine{lib: lib, cache: make(map[*types.Node]*CompiledPredicate)}
}

// Library returns the capability registry the engine compiles against.
func (e *Engine) Library() *Library {
	return e.lib
}

// Compile returns the cached predicate for rule, compiling it on first use.
func (e *Engine) Compile(rule *types.Node) (*CompiledPredicate, error) {
	e.mu.RLock()
	p, ok := e.cache[rule]
	e.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := Compile(rule, e.lib)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if cached, ok := e.cache[rule]; ok {
		return cached, nil
	}
	e.cache[rule] = p
	return p, nil
}

// CompileEdit compiles an edit's rule, tagging failures with the edit id.
func (e *Engine) CompileEdit(edit *types.Edit) (*CompiledPredicate, error) {
	p, err := e.Compile(edit.Rule)
	if err != nil {
		return nil, &types.RuleSpecError{EditID: edit.ID, Err: fmt.Errorf("compile: %w", err)}
	}
	return p, nil
}

// Len reports the number of cached predicates.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

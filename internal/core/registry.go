package core

import (
	"fmt"
	"sync"
)

// edge is one outgoing conversion from a node in the Registry's
// adjacency list, retained in declaration order so that both
// select-first-match and BFS tie-breaking are deterministic.
type edge struct {
	to   string
	conv Conversion
}

// Registry is the Type & Conversion Registry: a directed graph whose
// nodes are declared file types and whose edges are conversion
// programs. It is safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	types map[string]FileType
	// order preserves type-declaration order, used nowhere for
	// correctness but kept so Enumerate-style debugging is stable.
	order []string
	adj   map[string][]edge
	// pairs maps an ordered (from,to) name pair to the index of its
	// edge in adj[from], so redeclaring a pair overwrites in place
	// per the documented last-declared-wins policy.
	pairs map[[2]string]int
}

// NewRegistry constructs an empty Type & Conversion Registry.
func NewRegistry() *Registry {
	return &Registry{
		types: make(map[string]FileType),
		adj:   make(map[string][]edge),
		pairs: make(map[[2]string]int),
	}
}

// DeclareType registers a new file type by name. Redeclaring the same
// name is a no-op (the identity is the name itself).
func (r *Registry) DeclareType(name string) (FileType, error) {
	if name == "" {
		return FileType{}, fmt.Errorf("core: empty type name: %w", ErrUnknownType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if ft, ok := r.types[name]; ok {
		return ft, nil
	}
	ft := FileType{Name: name}
	r.types[name] = ft
	r.order = append(r.order, name)
	return ft, nil
}

// LookupType returns the declared FileType for name, or ErrUndeclaredType.
func (r *Registry) LookupType(name string) (FileType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ft, ok := r.types[name]
	if !ok {
		return FileType{}, ErrUndeclaredType
	}
	return ft, nil
}

// InferType infers a declared FileType from a filename's extension.
func (r *Registry) InferType(path string) (FileType, error) {
	ext, ok := extensionType(path)
	if !ok {
		return FileType{}, ErrUndeclaredType
	}
	return r.LookupType(ext)
}

// DeclareConversion registers a conversion edge from "from" to "to"
// with the given argv. Both endpoint types must already be declared.
// A second declaration of the same (from, to) pair replaces the first
// (last-declared-wins), per the documented registry policy.
func (r *Registry) DeclareConversion(from, to string, argv []string) (Conversion, error) {
	if len(argv) == 0 {
		return Conversion{}, fmt.Errorf("core: empty conversion argv")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	fromType, ok := r.types[from]
	if !ok {
		return Conversion{}, fmt.Errorf("core: conversion source %q: %w", from, ErrUndeclaredType)
	}
	toType, ok := r.types[to]
	if !ok {
		return Conversion{}, fmt.Errorf("core: conversion target %q: %w", to, ErrUndeclaredType)
	}

	conv := Conversion{From: fromType, To: toType, Argv: append([]string(nil), argv...)}
	key := [2]string{from, to}
	if idx, exists := r.pairs[key]; exists {
		r.adj[from][idx] = edge{to: to, conv: conv}
		return conv, nil
	}
	r.adj[from] = append(r.adj[from], edge{to: to, conv: conv})
	r.pairs[key] = len(r.adj[from]) - 1
	return conv, nil
}

// FindPath returns the shortest ordered sequence of conversions from
// "from" to "to" by breadth-first search, with ties broken by edge
// insertion (declaration) order. Returns an empty, non-nil slice (and
// no error) when from == to. Returns ErrNoPath if no path exists.
func (r *Registry) FindPath(from, to string) ([]Conversion, error) {
	if from == to {
		return []Conversion{}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	type frame struct {
		node string
		path []Conversion
	}

	visited := map[string]bool{from: true}
	queue := []frame{{node: from, path: nil}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, e := range r.adj[cur.node] {
			if visited[e.to] {
				continue
			}
			nextPath := make([]Conversion, len(cur.path), len(cur.path)+1)
			copy(nextPath, cur.path)
			nextPath = append(nextPath, e.conv)

			if e.to == to {
				return nextPath, nil
			}
			visited[e.to] = true
			queue = append(queue, frame{node: e.to, path: nextPath})
		}
	}

	return nil, ErrNoPath
}

// Package dag provides the dependency graph behind the task registry.
// It supports cycle detection, topological ordering and execution levels.
package dag

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// CycleError reports a dependency cycle. Path starts and ends with the same task.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected: %s", strings.Join(e.Path, " -> "))
}

// Graph is a directed graph of task names. An edge dep -> task means
// task depends on dep and must run after it.
type Graph struct {
	nodes      map[string]struct{}
	deps       map[string][]string // task -> dependencies, in declaration order
	dependents map[string][]string // dependency -> tasks depending on it
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:      make(map[string]struct{}),
		deps:       make(map[string][]string),
		dependents: make(map[string][]string),
	}
}

// AddTask adds a node. Adding an existing node is a no-op.
func (g *Graph) AddTask(name string) {
	if _, ok := g.nodes[name]; ok {
		return
	}
	g.nodes[name] = struct{}{}
	g.deps[name] = []string{}
	g.dependents[name] = []string{}
}

// HasTask reports whether name is a node of the graph.
func (g *Graph) HasTask(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// AddDependency records that task depends on dep. Both nodes must exist.
func (g *Graph) AddDependency(task, dep string) error {
	if !g.HasTask(task) {
		return fmt.Errorf("task %q does not exist", task)
	}
	if !g.HasTask(dep) {
		return fmt.Errorf("dependency %q does not exist", dep)
	}
	if task == dep {
		return &CycleError{Path: []string{task, task}}
	}

	if !slices.Contains(g.deps[task], dep) {
		g.deps[task] = append(g.deps[task], dep)
	}
	if !slices.Contains(g.dependents[dep], task) {
		g.dependents[dep] = append(g.dependents[dep], task)
	}
	return nil
}

// Dependencies returns the direct dependencies of a task in the order they were added.
func (g *Graph) Dependencies(name string) []string {
	return g.deps[name]
}

// Dependents returns the tasks that directly depend on name.
func (g *Graph) Dependents(name string) []string {
	return g.dependents[name]
}

// Tasks returns all node names sorted.
func (g *Graph) Tasks() []string {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of tasks.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// EdgeCount returns the number of dependency edges.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, deps := range g.deps {
		count += len(deps)
	}
	return count
}

// FindCycle returns a cycle path if the graph has one, nil otherwise.
// Traversal is in sorted order so the reported cycle is stable.
func (g *Graph) FindCycle() []string {
	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[string]int, len(g.nodes))
	var stack []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		state[name] = inProgress
		stack = append(stack, name)

		for _, dep := range g.deps[name] {
			switch state[dep] {
			case inProgress:
				start := slices.Index(stack, dep)
				cycle = append(slices.Clone(stack[start:]), dep)
				return true
			case unvisited:
				if visit(dep) {
					return true
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[name] = done
		return false
	}

	for _, name := range g.Tasks() {
		if state[name] == unvisited && visit(name) {
			return cycle
		}
	}
	return nil
}

// Order returns all tasks with dependencies before dependents.
func (g *Graph) Order() ([]string, error) {
	if cycle := g.FindCycle(); cycle != nil {
		return nil, &CycleError{Path: cycle}
	}

	visited := make(map[string]bool, len(g.nodes))
	order := make([]string, 0, len(g.nodes))

	var visit func(name string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		for _, dep := range g.deps[name] {
			visit(dep)
		}
		order = append(order, name)
	}

	for _, name := range g.Tasks() {
		visit(name)
	}
	return order, nil
}

// Levels groups tasks by execution level. Level 0 has no dependencies; tasks
// at level N only depend on tasks at lower levels.
func (g *Graph) Levels() ([][]string, error) {
	if cycle := g.FindCycle(); cycle != nil {
		return nil, &CycleError{Path: cycle}
	}

	assigned := make(map[string]int, len(g.nodes))
	var levelOf func(name string) int
	levelOf = func(name string) int {
		if level, ok := assigned[name]; ok {
			return level
		}
		level := 0
		for _, dep := range g.deps[name] {
			level = max(level, levelOf(dep)+1)
		}
		assigned[name] = level
		return level
	}

	var levels [][]string
	for _, name := range g.Tasks() {
		level := levelOf(name)
		for len(levels) <= level {
			levels = append(levels, nil)
		}
		levels[level] = append(levels[level], name)
	}
	return levels, nil
}

// Closure returns name and everything it transitively depends on, sorted.
// Unknown names yield an empty result.
func (g *Graph) Closure(name string) []string {
	if !g.HasTask(name) {
		return nil
	}
	seen := map[string]bool{}
	var mark func(n string)
	mark = func(n string) {
		if seen[n] {
			return
		}
		seen[n] = true
		for _, dep := range g.deps[n] {
			mark(dep)
		}
	}
	mark(name)

	result := make([]string, 0, len(seen))
	for n := range seen {
		result = append(result, n)
	}
	sort.Strings(result)
	return result
}

// Subgraph returns a new graph restricted to the given tasks and the edges between them.
func (g *Graph) Subgraph(names []string) *Graph {
	sub := NewGraph()
	keep := make(map[string]bool, len(names))
	for _, name := range names {
		if g.HasTask(name) {
			keep[name] = true
			sub.AddTask(name)
		}
	}
	for _, name := range names {
		for _, dep := range g.deps[name] {
			if keep[name] && keep[dep] {
				_ = sub.AddDependency(name, dep)
			}
		}
	}
	return sub
}

package operations

import (
	"fmt"
	"sync"
)

// Registry manages registered operation steps
type Registry struct {
	mu    sync.RWMutex
	steps map[string]Step
	order []string
}

// NewRegistry creates a new step registry
func NewRegistry() *Registry {
	return &Registry{
		steps: make(map[string]Step),
		order: make([]string, 0),
	}
}

// Register adds a step to the registry
func (r *Registry) Register(step Step) error {
	if step == nil {
		return fmt.Errorf("cannot register nil step")
	}
	id := step.ID()
	if id == "" {
		return fmt.Errorf("step ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.steps[id]; exists {
		return fmt.Errorf("step with ID %s already registered", id)
	}
	r.steps[id] = step
	r.order = append(r.order, id)
	return nil
}

// Get retrieves a step by ID
func (r *Registry) Get(id string) (Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	step, exists := r.steps[id]
	if !exists {
		return nil, fmt.Errorf("step with ID %s not found", id)
	}
	return step, nil
}

// ListIDs returns all registered step IDs in registration order
func (r *Registry) ListIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// Count returns the number of registered steps
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.steps)
}

// GetDependencyOrder returns steps ordered by dependencies. Steps that
// become ready together keep registration order.
func (r *Registry) GetDependencyOrder() ([]Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dependents := make(map[string][]string, len(r.steps))
	inDegree := make(map[string]int, len(r.steps))
	for id, step := range r.steps {
		for _, dep := range step.GetDependencies() {
			if _, exists := r.steps[dep]; !exists {
				return nil, fmt.Errorf("step %s depends on non-existent step %s", id, dep)
			}
			dependents[dep] = append(dependents[dep], id)
			inDegree[id]++
		}
	}

	position := make(map[string]int, len(r.order))
	for i, id := range r.order {
		position[id] = i
	}

	// Kahn's algorithm over registration order
	ready := make([]bool, len(r.order))
	for i, id := range r.order {
		ready[i] = inDegree[id] == 0
	}
	done := make([]bool, len(r.order))

	ordered := make([]Step, 0, len(r.steps))
	for len(ordered) < len(r.order) {
		next := -1
		for i := range r.order {
			if ready[i] && !done[i] {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, fmt.Errorf("dependency cycle detected")
		}
		done[next] = true
		id := r.order[next]
		ordered = append(ordered, r.steps[id])
		for _, dependent := range dependents[id] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready[position[dependent]] = true
			}
		}
	}
	return ordered, nil
}

// GetDependents returns the IDs of steps that depend on stepID
func (r *Registry) GetDependents(stepID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var dependents []string
	for _, id := range r.order {
		for _, dep := range r.steps[id].GetDependencies() {
			if dep == stepID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	return dependents
}

// Package schedule drives a batch of work items through generation exactly
// once, respecting the partial order implied by their dependencies, and
// tolerates individual failures without starving the rest of the graph.
package schedule

import (
	"fmt"
	"strings"

	"github.com/gammazero/toposort"

	"github.com/epartner/engine/internal/domain"
)

// Batch is a validated, fixed set of work items. Construction rejects
// duplicate IDs, unknown dependency references, self-dependencies, and
// cycles, so only genuine runtime prerequisite failures can stall a run.
type Batch struct {
	items []*domain.WorkItem
	index map[string]*domain.WorkItem
	order []string // Valid topological order of item IDs
}

// NewBatch validates the items and returns a runnable batch.
func NewBatch(items []*domain.WorkItem) (*Batch, error) {
	index := make(map[string]*domain.WorkItem, len(items))
	for _, item := range items {
		if item.ID == "" {
			return nil, fmt.Errorf("work item %q has no ID", item.Name)
		}
		if _, exists := index[item.ID]; exists {
			return nil, fmt.Errorf("duplicate work item ID %q", item.ID)
		}
		index[item.ID] = item
	}

	for _, item := range items {
		for _, depID := range item.DependsOn {
			if depID == item.ID {
				return nil, fmt.Errorf("work item %q depends on itself", item.ID)
			}
			if _, exists := index[depID]; !exists {
				return nil, fmt.Errorf("work item %q depends on unknown item %q", item.ID, depID)
			}
		}
	}

	order, err := sortItems(items)
	if err != nil {
		return nil, err
	}

	return &Batch{items: items, index: index, order: order}, nil
}

// sortItems runs a topological sort over the dependency edges, rejecting
// cycles eagerly at construction time.
func sortItems(items []*domain.WorkItem) ([]string, error) {
	var edges []toposort.Edge
	for _, item := range items {
		if len(item.DependsOn) == 0 {
			edges = append(edges, toposort.Edge{nil, item.ID})
			continue
		}
		for _, depID := range item.DependsOn {
			edges = append(edges, toposort.Edge{depID, item.ID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("dependency cycle: %w", err)
	}

	order := make([]string, 0, len(items))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}
	if len(order) != len(items) {
		return nil, fmt.Errorf("topological sort covered %d of %d items", len(order), len(items))
	}
	return order, nil
}

// Items returns the batch's work items in declaration order.
func (b *Batch) Items() []*domain.WorkItem {
	return b.items
}

// Item returns the work item with the given ID.
func (b *Batch) Item(id string) (*domain.WorkItem, bool) {
	item, ok := b.index[id]
	return item, ok
}

// Processable returns the not-started items whose prerequisites are all in
// the completed set, in declaration order.
func (b *Batch) Processable(completed map[string]bool) []*domain.WorkItem {
	var ready []*domain.WorkItem
	for _, item := range b.items {
		if item.Status != domain.ItemNotStarted {
			continue
		}
		ok := true
		for _, depID := range item.DependsOn {
			if !completed[depID] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, item)
		}
	}
	return ready
}

// remaining returns IDs of items that are neither completed nor failed.
func (b *Batch) remaining() []string {
	var stuck []string
	for _, item := range b.items {
		if item.Status == domain.ItemNotStarted || item.Status == domain.ItemInProgress {
			stuck = append(stuck, item.ID)
		}
	}
	return stuck
}

// StallError reports that the scheduler can make no further progress though
// not every item has completed. Carries the IDs of the stuck items; callers
// distinguish a failed prerequisite from anything else by inspecting item
// statuses.
type StallError struct {
	Stuck []string
}

func (e *StallError) Error() string {
	return fmt.Sprintf("dependency run stalled: cannot proceed with %s", strings.Join(e.Stuck, ", "))
}

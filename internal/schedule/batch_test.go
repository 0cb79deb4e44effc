package schedule

import (
	"strings"
	"testing"

	"github.com/epartner/engine/internal/domain"
)

func items(specs ...[2]any) []*domain.WorkItem {
	var out []*domain.WorkItem
	for _, s := range specs {
		out = append(out, &domain.WorkItem{ID: s[0].(string), Name: s[0].(string), DependsOn: s[1].([]string)})
	}
	return out
}

func TestNewBatchValidation(t *testing.T) {
	tests := []struct {
		name        string
		items       []*domain.WorkItem
		wantErr     bool
		errContains string
	}{
		{
			name:    "linear chain",
			items:   items([2]any{"a", []string{}}, [2]any{"b", []string{"a"}}, [2]any{"c", []string{"b"}}),
			wantErr: false,
		},
		{
			name:    "diamond",
			items:   items([2]any{"a", []string{}}, [2]any{"b", []string{"a"}}, [2]any{"c", []string{"a"}}, [2]any{"d", []string{"b", "c"}}),
			wantErr: false,
		},
		{
			name:        "two cycle",
			items:       items([2]any{"a", []string{"b"}}, [2]any{"b", []string{"a"}}),
			wantErr:     true,
			errContains: "cycle",
		},
		{
			name:        "transitive cycle",
			items:       items([2]any{"a", []string{"c"}}, [2]any{"b", []string{"a"}}, [2]any{"c", []string{"b"}}),
			wantErr:     true,
			errContains: "cycle",
		},
		{
			name:        "self dependency is a configuration error",
			items:       items([2]any{"a", []string{"a"}}),
			wantErr:     true,
			errContains: "depends on itself",
		},
		{
			name:        "unknown dependency",
			items:       items([2]any{"a", []string{"ghost"}}),
			wantErr:     true,
			errContains: "unknown",
		},
		{
			name:        "duplicate ID",
			items:       items([2]any{"a", []string{}}, [2]any{"a", []string{}}),
			wantErr:     true,
			errContains: "duplicate",
		},
		{
			name:    "disconnected components",
			items:   items([2]any{"a", []string{}}, [2]any{"b", []string{"a"}}, [2]any{"x", []string{}}, [2]any{"y", []string{"x"}}),
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBatch(tt.items)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewBatch() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.errContains)
			}
		})
	}
}

func TestBatchProcessable(t *testing.T) {
	batch, err := NewBatch(items(
		[2]any{"a", []string{}},
		[2]any{"b", []string{}},
		[2]any{"c", []string{"a"}},
		[2]any{"d", []string{"a", "b"}},
	))
	if err != nil {
		t.Fatalf("NewBatch() error = %v", err)
	}

	ready := batch.Processable(map[string]bool{})
	if got := ids(ready); !equal(got, []string{"a", "b"}) {
		t.Errorf("initial processable = %v, want [a b]", got)
	}

	a, _ := batch.Item("a")
	a.Status = domain.ItemCompleted
	ready = batch.Processable(map[string]bool{"a": true})
	if got := ids(ready); !equal(got, []string{"b", "c"}) {
		t.Errorf("after a: processable = %v, want [b c]", got)
	}

	b, _ := batch.Item("b")
	b.Status = domain.ItemFailed
	ready = batch.Processable(map[string]bool{"a": true})
	// d's prerequisite b failed, so only c remains processable.
	if got := ids(ready); !equal(got, []string{"c"}) {
		t.Errorf("after b failed: processable = %v, want [c]", got)
	}
}

func ids(items []*domain.WorkItem) []string {
	var out []string
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

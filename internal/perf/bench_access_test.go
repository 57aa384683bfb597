package perf

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/opsboard/opsboard/internal/areas"
	"github.com/opsboard/opsboard/internal/roles"
)

// buildTree generates a balanced tree, fanout children per node, depth levels
// deep, in path order.
func buildTree(fanout, depth int) []areas.Area {
	var out []areas.Area
	var nextID int64
	var walk func(parent *areas.Area, level int)
	walk = func(parent *areas.Area, level int) {
		if level > depth {
			return
		}
		for i := 1; i <= fanout; i++ {
			nextID++
			path, lvl, _ := areas.ChildPath(parent, fmt.Sprintf("N%02d", i))
			a := areas.Area{ID: nextID, Name: path, Path: path, Level: lvl, Active: true}
			if parent != nil {
				pid := parent.ID
				a.ParentID = &pid
			}
			out = append(out, a)
			walk(&a, level+1)
		}
	}
	walk(nil, 1)
	areas.SortByPath(out)
	return out
}

func directorOf(tree []areas.Area, path string) areas.Profile {
	for _, a := range tree {
		if a.Path == path {
			return areas.Profile{UserID: 1, Role: roles.Director, Active: true, Assignments: []areas.Assignment{
				{UserID: 1, AreaID: a.ID, Active: true, Area: a},
			}}
		}
	}
	return areas.Profile{}
}

func TestAccessibleLatencyTargets(t *testing.T) {
	tree := buildTree(6, 4) // 1554 areas
	profile := directorOf(tree, "N01")

	samples := make([]time.Duration, 0, 40)
	var n int
	for i := 0; i < 40; i++ {
		start := time.Now()
		n = len(areas.Accessible(profile, tree, areas.Edit))
		samples = append(samples, time.Since(start))
	}
	if n != 259 {
		t.Fatalf("unexpected editable count: %d", n)
	}
	if p95 := percentile95(samples); p95 > 50*time.Millisecond {
		t.Fatalf("editable areas latency regression: p95=%s", p95)
	}
}

func BenchmarkAccessibleEdit(b *testing.B) {
	tree := buildTree(6, 4)
	profile := directorOf(tree, "N03")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = areas.Accessible(profile, tree, areas.Edit)
	}
}

func BenchmarkCheckTree(b *testing.B) {
	tree := buildTree(6, 4)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if v := areas.CheckTree(tree); len(v) != 0 {
			b.Fatalf("unexpected violations: %v", v)
		}
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

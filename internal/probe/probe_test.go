package probe

import "testing"

func TestCounterMonotonic(t *testing.T) {
	c := NewCounter()
	var names []string
	for i := 0; i < 5; i++ {
		var p Probe
		p, c = NewLine(c, "/rtl/a.v", i+1, DetailStmt)
		names = append(names, p.Name)
	}
	seen := make(map[string]bool)
	for i, n := range names {
		if seen[n] {
			t.Fatalf("duplicate probe name %s", n)
		}
		seen[n] = true
		if i > 0 && n <= names[i-1] {
			t.Errorf("probe name %s does not follow %s in increasing order", n, names[i-1])
		}
	}
}

func TestNewLineAndBranchPrefixes(t *testing.T) {
	c := NewCounter()
	lp, c := NewLine(c, "/rtl/a.v", 10, DetailStmt)
	bp, _ := NewBranch(c, "/rtl/a.v", 11, DetailIfTrue)

	if lp.Kind != KindLine {
		t.Errorf("expected line kind, got %s", lp.Kind)
	}
	if bp.Kind != KindBranch {
		t.Errorf("expected branch kind, got %s", bp.Kind)
	}
	if lp.Name[:len(lineProbePrefix)] != lineProbePrefix {
		t.Errorf("line probe name %q missing prefix %q", lp.Name, lineProbePrefix)
	}
	if bp.Name[:len(branchProbePrefix)] != branchProbePrefix {
		t.Errorf("branch probe name %q missing prefix %q", bp.Name, branchProbePrefix)
	}
}

func TestReserveDisjointRanges(t *testing.T) {
	base := NewCounter()
	aStart, next := base.Reserve(10)
	bStart, _ := next.Reserve(10)

	if aStart.Value() != 1 {
		t.Fatalf("expected first reserved range to start at 1, got %d", aStart.Value())
	}
	if bStart.Value() != 11 {
		t.Fatalf("expected second reserved range to start at 11, got %d", bStart.Value())
	}

	// Exhausting the first file's counter within its reserved range must
	// never collide with ids handed out from the second file's range.
	c := aStart
	var used []int
	for i := 0; i < 10; i++ {
		var id int
		id, c = c.next()
		used = append(used, id)
	}
	for _, id := range used {
		if id >= bStart.Value() {
			t.Fatalf("id %d from file A's range collides with file B's range starting at %d", id, bStart.Value())
		}
	}
}

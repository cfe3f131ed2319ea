package models

import "testing"

func TestBox_Area(t *testing.T) {
	if got := (Box{X: 10, Y: 10, Width: 4, Height: 5}).Area(); got != 20 {
		t.Errorf("Area = %d, want 20", got)
	}
	if got := (Box{Width: 0, Height: 5}).Area(); got != 0 {
		t.Errorf("degenerate box area = %d, want 0", got)
	}
	if got := (Box{Width: -3, Height: 5}).Area(); got != 0 {
		t.Errorf("negative box area = %d, want 0", got)
	}
}

func TestBox_Intersect(t *testing.T) {
	a := Box{X: 0, Y: 0, Width: 10, Height: 10}
	b := Box{X: 5, Y: 5, Width: 10, Height: 10}

	got := a.Intersect(b)
	want := Box{X: 5, Y: 5, Width: 5, Height: 5}
	if got != want {
		t.Errorf("Intersect = %+v, want %+v", got, want)
	}

	// Intersection is symmetric.
	if b.Intersect(a) != want {
		t.Errorf("Intersect not symmetric: %+v", b.Intersect(a))
	}

	// Disjoint and merely touching boxes do not overlap.
	if (Box{X: 100, Y: 100, Width: 5, Height: 5}).Intersect(a).Area() != 0 {
		t.Error("disjoint boxes should not intersect")
	}
	if (Box{X: 10, Y: 0, Width: 5, Height: 5}).Intersect(a).Area() != 0 {
		t.Error("edge-adjacent boxes should not intersect")
	}
}

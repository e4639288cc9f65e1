package grid

import (
	"testing"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		lengths []int
		lower   []int
		wantErr bool
	}{
		{"zero based", []int{2, 3}, nil, false},
		{"shifted", []int{2, 3}, []int{-1, 5}, false},
		{"empty dimension", []int{0, 3}, nil, false},
		{"no dimensions", nil, nil, true},
		{"bound count mismatch", []int{2, 3}, []int{1}, true},
		{"negative length", []int{2, -1}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New[int](tt.lengths, tt.lower)
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestGrid_Indexing(t *testing.T) {
	g, err := New[int]([]int{2, 3}, []int{1, -1})
	if err != nil {
		t.Fatalf("Failed to create grid: %v", err)
	}

	if g.Rank() != 2 || g.Len() != 6 {
		t.Fatalf("Expected rank 2 with 6 cells, got rank %d with %d cells", g.Rank(), g.Len())
	}

	for i := 1; i <= 2; i++ {
		for j := -1; j <= 1; j++ {
			g.Set(i*10+j, i, j)
		}
	}
	if got := g.At(2, 1); got != 21 {
		t.Errorf("Expected 21, got %d", got)
	}
	if got := g.At(1, -1); got != 9 {
		t.Errorf("Expected 9, got %d", got)
	}

	// Row-major layout
	if g.data[0] != 9 || g.data[5] != 21 {
		t.Errorf("Unexpected layout: %v", g.data)
	}
}

func TestGrid_OutOfRangePanics(t *testing.T) {
	g, _ := New[string]([]int{2}, []int{5})

	defer func() {
		if recover() == nil {
			t.Error("Expected panic for index below lower bound")
		}
	}()
	g.At(4)
}

func TestGrid_Like(t *testing.T) {
	g, _ := New[*int]([]int{2, 2}, []int{3, 4})
	v := 1
	g.Set(&v, 3, 4)

	like, ok := g.Like().(*Grid[*int])
	if !ok {
		t.Fatalf("Expected *Grid[*int], got %T", g.Like())
	}
	if like.LowerBound(0) != 3 || like.LowerBound(1) != 4 || like.Length(1) != 2 {
		t.Errorf("Expected same shape, got bounds %v lengths %v", like.lower, like.lengths)
	}
	if like.At(3, 4) != nil {
		t.Error("Expected zero-filled grid")
	}

	// Shapes are not shared
	like.lengths[0] = 99
	if g.Length(0) != 2 {
		t.Error("Expected Like to copy shape slices")
	}
}

func TestGrid_Elem(t *testing.T) {
	g, _ := New[int]([]int{3}, []int{-1})
	g.Elem([]int{0}).SetInt(7)

	if got := g.At(0); got != 7 {
		t.Errorf("Expected Elem to be settable, got %d", got)
	}
}

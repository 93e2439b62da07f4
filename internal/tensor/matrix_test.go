package tensor

import (
	"errors"
	"testing"
)

func TestNarrowCopiesColumns(t *testing.T) {
	m, err := FromData(2, 4, []float32{
		0, 1, 2, 3,
		4, 5, 6, 7,
	})
	if err != nil {
		t.Fatalf("FromData error: %v", err)
	}

	out, err := m.Narrow(1, 2)
	if err != nil {
		t.Fatalf("Narrow error: %v", err)
	}
	if out.Rows != 2 || out.Cols != 2 {
		t.Fatalf("unexpected shape %dx%d", out.Rows, out.Cols)
	}
	want := []float32{1, 2, 5, 6}
	for i, v := range want {
		if out.Data[i] != v {
			t.Fatalf("value %d: want %v, got %v", i, v, out.Data[i])
		}
	}

	out.Set(0, 0, 42)
	if m.At(0, 1) != 1 {
		t.Fatalf("narrow must not alias the source matrix")
	}
}

func TestNarrowOutOfRange(t *testing.T) {
	m := New(1, 3)
	if _, err := m.Narrow(2, 2); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}
}

func TestFromDataRejectsBadLength(t *testing.T) {
	if _, err := FromData(2, 2, []float32{1, 2, 3}); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}
}

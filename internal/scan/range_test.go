package scan

import "testing"

func TestSplitRangeExact(t *testing.T) {
	ranges, err := SplitRange(0, 99, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []BlockRange{{From: 0, To: 49}, {From: 50, To: 99}}
	if len(ranges) != len(want) {
		t.Fatalf("got %d ranges, want %d", len(ranges), len(want))
	}
	for i, r := range ranges {
		if r != want[i] {
			t.Fatalf("range %d: got %+v, want %+v", i, r, want[i])
		}
	}
}

func TestSplitRangeRemainder(t *testing.T) {
	ranges, err := SplitRange(10, 25, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []BlockRange{{From: 10, To: 19}, {From: 20, To: 25}}
	if len(ranges) != len(want) {
		t.Fatalf("got %d ranges, want %d", len(ranges), len(want))
	}
	for i, r := range ranges {
		if r != want[i] {
			t.Fatalf("range %d: got %+v, want %+v", i, r, want[i])
		}
	}
}

func TestSplitRangeSingleBlock(t *testing.T) {
	ranges, err := SplitRange(7, 7, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ranges) != 1 || ranges[0] != (BlockRange{From: 7, To: 7}) {
		t.Fatalf("got %+v, want single range 7-7", ranges)
	}
}

func TestSplitRangeRejectsZeroChunk(t *testing.T) {
	if _, err := SplitRange(0, 10, 0); err == nil {
		t.Fatalf("expected error for zero chunk size")
	}
}

func TestSplitRangeRejectsInvertedRange(t *testing.T) {
	if _, err := SplitRange(10, 9, 100); err == nil {
		t.Fatalf("expected error for to < from")
	}
}

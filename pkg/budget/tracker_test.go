package budget

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var testBounds = Bounds{MaxReadBytes: 100, MaxScanBytes: 200, MaxDepth: 3, MaxMembers: 10}

func TestTracker_Charge(t *testing.T) {
	tests := []struct {
		name         string
		charges      []Usage
		wantUsage    Usage
		wantExceeded []Resource
	}{
		{
			name:      "within bounds",
			charges:   []Usage{{BytesRead: 40}, {BytesRead: 60, Members: 10}},
			wantUsage: Usage{BytesRead: 100, Members: 10},
		},
		{
			name:         "bytes accumulate past the ceiling",
			charges:      []Usage{{BytesScanned: 150}, {BytesScanned: 51}},
			wantUsage:    Usage{BytesScanned: 201},
			wantExceeded: []Resource{BytesScanned},
		},
		{
			name:      "depth is a high-water mark",
			charges:   []Usage{{Depth: 2}, {Depth: 1}, {Depth: 3}},
			wantUsage: Usage{Depth: 3},
		},
		{
			name:         "depth past the ceiling",
			charges:      []Usage{{Depth: 2}, {Depth: 4}},
			wantUsage:    Usage{Depth: 4},
			wantExceeded: []Resource{Depth},
		},
		{
			name:         "several resources exhausted",
			charges:      []Usage{{Members: 11, BytesRead: 101}},
			wantUsage:    Usage{Members: 11, BytesRead: 101},
			wantExceeded: []Resource{BytesRead, Members},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTracker(testBounds)
			for _, c := range tt.charges {
				_ = tracker.ChargeUsage(c)
			}
			if diff := cmp.Diff(tt.wantUsage, tracker.Usage()); diff != "" {
				t.Errorf("usage mismatch (-want +got):\n%s", diff)
			}
			got := tracker.Exceeded()
			if len(got) == 0 {
				got = nil
			}
			if diff := cmp.Diff(tt.wantExceeded, got); diff != "" {
				t.Errorf("exceeded mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTracker_ChargeReturnsBoundExceededError(t *testing.T) {
	tracker := NewTracker(testBounds)

	if err := tracker.Charge(BytesScanned, 200); err != nil {
		t.Fatalf("Charge at the ceiling failed: %v", err)
	}

	err := tracker.Charge(BytesScanned, 1)
	if !errors.Is(err, ErrBoundExceeded) {
		t.Fatalf("Charge past the ceiling = %v, want ErrBoundExceeded", err)
	}
	var bee *BoundExceededError
	if !errors.As(err, &bee) {
		t.Fatalf("error %T is not *BoundExceededError", err)
	}
	if bee.Resource != BytesScanned || bee.Limit != 200 || bee.Used != 201 {
		t.Errorf("BoundExceededError = %+v", bee)
	}
	if tracker.Remaining(BytesScanned) != 0 {
		t.Errorf("Remaining() = %d after exhaustion, want 0", tracker.Remaining(BytesScanned))
	}
}

func TestTracker_InvalidCharges(t *testing.T) {
	tracker := NewTracker(testBounds)

	if err := tracker.Charge(BytesRead, -1); !errors.Is(err, ErrInvalidCharge) {
		t.Errorf("negative charge = %v, want ErrInvalidCharge", err)
	}
	if err := tracker.Charge("cpu", 1); !errors.Is(err, ErrInvalidCharge) {
		t.Errorf("unknown resource = %v, want ErrInvalidCharge", err)
	}
	if tracker.AnyExceeded() {
		t.Error("invalid charges marked a resource exhausted")
	}
}

func TestTracker_Allowance(t *testing.T) {
	tracker := NewTracker(testBounds)
	_ = tracker.Charge(BytesRead, 30)
	_ = tracker.Charge(Members, 4)
	_ = tracker.Charge(Depth, 2)

	want := Usage{BytesRead: 70, BytesScanned: 200, Depth: 3, Members: 6}
	if diff := cmp.Diff(want, tracker.Allowance()); diff != "" {
		t.Errorf("allowance mismatch (-want +got):\n%s", diff)
	}

	_ = tracker.Exhaust(BytesScanned)
	if tracker.Allowance().BytesScanned != 0 {
		t.Error("Exhaust did not zero the allowance")
	}
	if diff := cmp.Diff([]Resource{BytesScanned}, tracker.Status().Exceeded); diff != "" {
		t.Errorf("status exceeded mismatch (-want +got):\n%s", diff)
	}
}

func TestUsage_Merge(t *testing.T) {
	a := Usage{BytesRead: 1, BytesScanned: 2, Depth: 5, Members: 3}
	b := Usage{BytesRead: 10, BytesScanned: 20, Depth: 2, Members: 30}
	want := Usage{BytesRead: 11, BytesScanned: 22, Depth: 5, Members: 33}
	if diff := cmp.Diff(want, a.Merge(b)); diff != "" {
		t.Errorf("Merge mismatch (-want +got):\n%s", diff)
	}
}

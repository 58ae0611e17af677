package zipqueue

import (
	"errors"
	"testing"
)

func TestNew_Interleaves(t *testing.T) {
	q := New(
		Range{Name: "a", Start: 100, End: 103},
		Range{Name: "b", Start: 200, End: 203},
	)

	want := []string{"00100", "00200", "00101", "00201", "00102", "00202"}
	got := q.Zips()
	if len(got) != len(want) {
		t.Fatalf("Len() = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Zips()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNew_ContainsEveryZipOnce(t *testing.T) {
	tests := []struct {
		name   string
		ranges []Range
	}{
		{
			name:   "equal lengths",
			ranges: []Range{{Start: 10, End: 20}, {Start: 50, End: 60}},
		},
		{
			name:   "differing lengths",
			ranges: []Range{{Start: 10, End: 13}, {Start: 50, End: 60}, {Start: 90, End: 95}},
		},
		{
			name:   "default metros",
			ranges: DefaultRanges(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New(tt.ranges...)

			total := 0
			for _, r := range tt.ranges {
				total += r.Len()
				for z := r.Start; z < r.End; z++ {
					if _, ok := q.IndexOf(FormatZip(z)); !ok {
						t.Errorf("zip %s missing from queue", FormatZip(z))
					}
				}
			}
			if q.Len() != total {
				t.Errorf("Len() = %d, want %d", q.Len(), total)
			}

			seen := make(map[string]bool, q.Len())
			for _, z := range q.Zips() {
				if seen[z] {
					t.Errorf("zip %s appears twice", z)
				}
				seen[z] = true
			}
		})
	}
}

func TestNew_OverlappingRanges(t *testing.T) {
	q := New(Range{Start: 1, End: 5}, Range{Start: 3, End: 7})
	if q.Len() != 6 {
		t.Errorf("Len() = %d, want 6", q.Len())
	}
}

func TestGet_WrapsAround(t *testing.T) {
	q := New(DefaultRanges()...)
	n := q.Len()

	for _, k := range []int{0, 1, 7, n - 1} {
		if q.Get(n+k) != q.Get(k) {
			t.Errorf("Get(%d) = %q, want Get(%d) = %q", n+k, q.Get(n+k), k, q.Get(k))
		}
		if q.Get(3*n+k) != q.Get(k) {
			t.Errorf("Get(%d) != Get(%d)", 3*n+k, k)
		}
	}

	if q.Get(-1) != q.Get(n-1) {
		t.Errorf("Get(-1) = %q, want last element %q", q.Get(-1), q.Get(n-1))
	}
	if q.Get(-n) != q.Get(0) {
		t.Errorf("Get(-n) = %q, want first element %q", q.Get(-n), q.Get(0))
	}
}

func TestGet_EmptyQueue(t *testing.T) {
	q := New()
	if got := q.Get(5); got != "" {
		t.Errorf("Get on empty queue = %q, want empty string", got)
	}
}

func TestPickNext(t *testing.T) {
	q := New(Range{Start: 1, End: 3}, Range{Start: 7, End: 9})
	// order: 00001 00007 00002 00008

	tests := []struct {
		last string
		want string
	}{
		{"00001", "00007"},
		{"00007", "00002"},
		{"00008", "00001"},
	}

	for _, tt := range tests {
		t.Run(tt.last, func(t *testing.T) {
			got, err := q.PickNext(tt.last)
			if err != nil {
				t.Fatalf("PickNext(%q) error = %v", tt.last, err)
			}
			if got != tt.want {
				t.Errorf("PickNext(%q) = %q, want %q", tt.last, got, tt.want)
			}
		})
	}
}

func TestPickNext_NotInQueue(t *testing.T) {
	q := New(DefaultRanges()...)

	_, err := q.PickNext("99999")
	if !errors.Is(err, ErrNotInQueue) {
		t.Errorf("PickNext(unknown) error = %v, want ErrNotInQueue", err)
	}
}

func TestPickNext_VisitsAllBeforeRevisit(t *testing.T) {
	q := New(Range{Start: 100, End: 140}, Range{Start: 500, End: 517})
	start := q.Get(0)

	seen := map[string]bool{start: true}
	cur := start
	for i := 1; i < q.Len(); i++ {
		next, err := q.PickNext(cur)
		if err != nil {
			t.Fatalf("PickNext(%q) error = %v", cur, err)
		}
		if seen[next] {
			t.Fatalf("revisited %q after %d steps", next, i)
		}
		seen[next] = true
		cur = next
	}

	back, err := q.PickNext(cur)
	if err != nil {
		t.Fatalf("PickNext(%q) error = %v", cur, err)
	}
	if back != start {
		t.Errorf("cycle returned to %q, want %q", back, start)
	}
}

func TestFormatZip(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{1907, "01907"},
		{90001, "90001"},
		{7, "00007"},
	}
	for _, tt := range tests {
		if got := FormatZip(tt.in); got != tt.want {
			t.Errorf("FormatZip(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseRanges(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []Range
		wantErr bool
	}{
		{
			name: "two metros",
			raw:  "LA:90001-90510, Boston:1907-2305",
			want: []Range{{Name: "LA", Start: 90001, End: 90510}, {Name: "Boston", Start: 1907, End: 2305}},
		},
		{name: "empty", raw: " ", wantErr: true},
		{name: "missing name", raw: "90001-90510", wantErr: true},
		{name: "missing dash", raw: "LA:90001", wantErr: true},
		{name: "inverted", raw: "LA:90510-90001", wantErr: true},
		{name: "not a number", raw: "LA:abc-90001", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRanges(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseRanges(%q) expected error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRanges(%q) error = %v", tt.raw, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d ranges, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("range[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

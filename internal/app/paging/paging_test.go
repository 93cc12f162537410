package paging

import "testing"

func TestLimits_Normalize(t *testing.T) {
	t.Parallel()

	l := Limits{Default: 10, Max: 100}
	cases := []struct {
		name string
		in   Request
		want Request
	}{
		{"defaults", Request{}, Request{Page: 1, PageSize: 10}},
		{"negative page", Request{Page: -3, PageSize: 5}, Request{Page: 1, PageSize: 5}},
		{"clamped size", Request{Page: 2, PageSize: 1000}, Request{Page: 2, PageSize: 100}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := l.Normalize(tc.in); got != tc.want {
				t.Fatalf("Normalize(%+v)=%+v want %+v", tc.in, got, tc.want)
			}
		})
	}

	if got := (Limits{}).Normalize(Request{}); got.PageSize != DefaultPageSize {
		t.Fatalf("zero limits page size=%d want %d", got.PageSize, DefaultPageSize)
	}
}

func TestRequest_ExistsAndLinks(t *testing.T) {
	t.Parallel()

	r := Request{Page: 3, PageSize: 5}
	if r.Offset() != 10 {
		t.Fatalf("offset=%d want 10", r.Offset())
	}
	if !r.Exists(12) {
		t.Fatalf("page 3 of 12 items should exist")
	}
	if (Request{Page: 4, PageSize: 5}).Exists(12) {
		t.Fatalf("page 4 of 12 items should not exist")
	}
	if !(Request{Page: 1, PageSize: 5}).Exists(0) {
		t.Fatalf("page 1 always exists")
	}

	p := Page[int]{Count: 12, Page: 3, PageSize: 5}
	if p.HasNext() || !p.HasPrevious() {
		t.Fatalf("last page: next=%v prev=%v", p.HasNext(), p.HasPrevious())
	}
	p.Page = 1
	if !p.HasNext() || p.HasPrevious() {
		t.Fatalf("first page: next=%v prev=%v", p.HasNext(), p.HasPrevious())
	}
}

func TestSlice(t *testing.T) {
	t.Parallel()
	items := []int{1, 2, 3, 4, 5, 6, 7}

	p, ok := Slice(items, Request{Page: 3, PageSize: 3})
	if !ok || p.Count != 7 || len(p.Items) != 1 || p.Items[0] != 7 || p.HasNext() || !p.HasPrevious() {
		t.Fatalf("page 3: %+v ok=%v", p, ok)
	}
	if _, ok := Slice(items, Request{Page: 4, PageSize: 3}); ok {
		t.Fatalf("page 4 should not exist")
	}
	p, ok = Slice([]int{}, Request{Page: 1, PageSize: 3})
	if !ok || p.Count != 0 || len(p.Items) != 0 {
		t.Fatalf("empty first page: %+v ok=%v", p, ok)
	}
}

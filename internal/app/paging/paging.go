// Package paging implements page-number pagination shared by the list use-cases.
package paging

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Request is a caller's page selection. Zero values pick the defaults.
type Request struct {
	Page     int
	PageSize int
}

// Limits bounds page sizes. Zero values fall back to DefaultPageSize and MaxPageSize.
type Limits struct {
	Default int
	Max     int
}

// Normalize clamps r into a valid request: page >= 1, 1 <= page size <= max.
func (l Limits) Normalize(r Request) Request {
	def, maxSize := l.Default, l.Max
	if maxSize <= 0 {
		maxSize = MaxPageSize
	}
	if def <= 0 {
		def = DefaultPageSize
	}
	def = min(def, maxSize)

	out := r
	if out.Page < 1 {
		out.Page = 1
	}
	switch {
	case out.PageSize <= 0:
		out.PageSize = def
	case out.PageSize > maxSize:
		out.PageSize = maxSize
	}
	return out
}

func (r Request) Offset() int { return (r.Page - 1) * r.PageSize }

// Exists reports whether the page can be served for count items. Page 1 always exists.
func (r Request) Exists(count int) bool {
	return r.Page == 1 || r.Offset() < count
}

// Page is one slice of a larger result set.
type Page[T any] struct {
	Count    int
	Page     int
	PageSize int
	Items    []T
}

func (p Page[T]) HasNext() bool     { return p.Page*p.PageSize < p.Count }
func (p Page[T]) HasPrevious() bool { return p.Page > 1 }

// Slice pages an in-memory list. ok is false when the page does not exist.
func Slice[T any](items []T, r Request) (page Page[T], ok bool) {
	if !r.Exists(len(items)) {
		return Page[T]{}, false
	}
	lo := min(r.Offset(), len(items))
	hi := min(lo+r.PageSize, len(items))
	return Page[T]{Count: len(items), Page: r.Page, PageSize: r.PageSize, Items: items[lo:hi]}, true
}

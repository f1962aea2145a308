package tgui

import "fmt"

// Page is one window over a list. Index is 0-based.
type Page[T any] struct {
	Items []T
	Index int
	Count int
	// Offset is the position of Items[0] in the full list.
	Offset int
	Total  int
}

// Paginate returns page index of items with the given size.
// Out of range indexes are clamped to the last page.
func Paginate[T any](items []T, index, size int) Page[T] {
	if size <= 0 {
		size = 10
	}
	total := len(items)
	count := max(1, (total+size-1)/size)
	index = min(max(index, 0), count-1)

	start := min(index*size, total)
	end := min(start+size, total)
	return Page[T]{Items: items[start:end], Index: index, Count: count, Offset: start, Total: total}
}

func (p Page[T]) HasNext() bool { return p.Index+1 < p.Count }

// Label renders "page 2/3 • 21–40 of 55".
func (p Page[T]) Label() string {
	if p.Total == 0 {
		return "page 1/1"
	}
	return fmt.Sprintf("page %d/%d • %d–%d of %d", p.Index+1, p.Count, p.Offset+1, p.Offset+len(p.Items), p.Total)
}

package listing

// Page describes one slice of a paginated view.
type Page struct {
	Number int
	Size   int
	Total  int
	Pages  int
}

func (p Page) HasPrev() bool { return p.Number > 1 }
func (p Page) HasNext() bool { return p.Number < p.Pages }
func (p Page) Prev() int     { return p.Number - 1 }
func (p Page) Next() int     { return p.Number + 1 }

// Paginate returns page number (1-based, clamped into range) of items.
func Paginate[T any](items []T, number, size int) ([]T, Page) {
	if size <= 0 {
		size = len(items)
		if size == 0 {
			size = 1
		}
	}
	total := len(items)
	pages := (total + size - 1) / size
	if pages == 0 {
		pages = 1
	}
	number = min(max(number, 1), pages)

	start := min((number-1)*size, total)
	end := min(start+size, total)
	return items[start:end], Page{Number: number, Size: size, Total: total, Pages: pages}
}

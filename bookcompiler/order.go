package bookcompiler

import "fmt"

// ResolveOrder returns a new slice in canonical order: the front cover, the
// content pages in their original relative order, then the back cover if one
// exists. The input slice is not modified.
func ResolveOrder(pages []Page) ([]Page, error) {
	var (
		front, back *Page
		content     []Page
	)
	for i := range pages {
		p := pages[i]
		switch p.Category {
		case FrontCover:
			if front != nil {
				return nil, fmt.Errorf("%w: front covers %q and %q", ErrDuplicateCover, front.ID, p.ID)
			}
			front = &p
		case BackCover:
			if back != nil {
				return nil, fmt.Errorf("%w: back covers %q and %q", ErrDuplicateCover, back.ID, p.ID)
			}
			back = &p
		case Content:
			content = append(content, p)
		default:
			return nil, fmt.Errorf("%w: page %q has unknown category %d", ErrInvalidPage, p.ID, int(p.Category))
		}
	}
	if front == nil {
		return nil, ErrMissingCover
	}

	ordered := make([]Page, 0, len(pages))
	ordered = append(ordered, *front)
	ordered = append(ordered, content...)
	if back != nil {
		ordered = append(ordered, *back)
	}
	return ordered, nil
}

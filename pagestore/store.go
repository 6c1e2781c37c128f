// Package pagestore holds the editable page collection that feeds the book
// compiler. It enforces the editing rules the compiler does not check: a
// content page needs text before another page can follow it, and image
// intake is limited to JPEG and PNG.
package pagestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/opd-ai/picturebook/bookcompiler"
)

const (
	FrontCoverLabel = "Front Cover"
	BackCoverLabel  = "Back Cover"
)

var (
	ErrTextRequired = errors.New("pagestore: content page needs text before another page can be added")
	ErrNotFound     = errors.New("pagestore: page not found")
)

// Store is a concurrency-safe, ordered page collection.
type Store struct {
	mu    sync.RWMutex
	pages []bookcompiler.Page
}

// New returns a store holding only the front cover.
func New() *Store {
	return &Store{
		pages: []bookcompiler.Page{{
			ID:       uuid.NewString(),
			Category: bookcompiler.FrontCover,
			Label:    FrontCoverLabel,
		}},
	}
}

// Pages returns a copy of the collection in editing order.
func (s *Store) Pages() []bookcompiler.Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]bookcompiler.Page, len(s.pages))
	copy(out, s.pages)
	return out
}

// Len returns the number of pages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages)
}

// Get returns the page with the given id.
func (s *Store) Get(id string) (bookcompiler.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return bookcompiler.Page{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.pages[i], nil
}

// AddContentPage appends a content page ahead of the back cover and returns
// it. It fails with ErrTextRequired while the last content page has no text.
func (s *Store) AddContentPage() (bookcompiler.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAppend(); err != nil {
		return bookcompiler.Page{}, err
	}

	page := bookcompiler.Page{
		ID:       uuid.NewString(),
		Category: bookcompiler.Content,
		Label:    fmt.Sprintf("Page %d", s.countLocked(bookcompiler.Content)+1),
	}
	if back := s.indexOfCategory(bookcompiler.BackCover); back >= 0 {
		s.pages = append(s.pages, bookcompiler.Page{})
		copy(s.pages[back+1:], s.pages[back:])
		s.pages[back] = page
	} else {
		s.pages = append(s.pages, page)
	}
	return page, nil
}

// AddBackCover appends the back cover. A collection holds at most one.
func (s *Store) AddBackCover() (bookcompiler.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOfCategory(bookcompiler.BackCover) >= 0 {
		return bookcompiler.Page{}, fmt.Errorf("%w: back cover already present", bookcompiler.ErrDuplicateCover)
	}
	if err := s.checkAppend(); err != nil {
		return bookcompiler.Page{}, err
	}
	page := bookcompiler.Page{
		ID:       uuid.NewString(),
		Category: bookcompiler.BackCover,
		Label:    BackCoverLabel,
	}
	s.pages = append(s.pages, page)
	return page, nil
}

// Remove deletes a content page or the back cover. The front cover stays.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if s.pages[i].Category == bookcompiler.FrontCover {
		return fmt.Errorf("%w: front cover cannot be removed", bookcompiler.ErrMissingCover)
	}
	s.pages = append(s.pages[:i], s.pages[i+1:]...)
	return nil
}

// SetText replaces the overlay text of a page.
func (s *Store) SetText(id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.pages[i].Text = text
	return nil
}

// SetImage attaches an image reference to a page. contentType is the type
// of the uploaded file and must be image/jpeg or image/png. An empty ref
// clears the image.
func (s *Store) SetImage(id, ref, contentType string) error {
	ref = strings.TrimSpace(ref)
	if ref != "" {
		if err := ValidateImageType(contentType); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.pages[i].ImageRef = ref
	return nil
}

// ValidateImageType accepts only JPEG and PNG uploads.
func ValidateImageType(contentType string) error {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return fmt.Errorf("%w: %q", bookcompiler.ErrUnsupportedFormat, contentType)
	}
	switch mediaType {
	case "image/jpeg", "image/png":
		return nil
	}
	return fmt.Errorf("%w: %s, please upload a JPEG or PNG image", bookcompiler.ErrUnsupportedFormat, mediaType)
}

// Save writes the collection as JSON.
func (s *Store) Save(w io.Writer) error {
	pages := s.Pages()
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(pages); err != nil {
		return fmt.Errorf("error encoding pages: %w", err)
	}
	return nil
}

// Load reads a collection written by Save. An empty input yields New().
func Load(r io.Reader) (*Store, error) {
	var pages []bookcompiler.Page
	if err := json.NewDecoder(r).Decode(&pages); err != nil {
		if errors.Is(err, io.EOF) {
			return New(), nil
		}
		return nil, fmt.Errorf("error decoding pages: %w", err)
	}
	if err := validate(pages); err != nil {
		return nil, err
	}
	return &Store{pages: pages}, nil
}

// LoadFile opens path with Load. A missing or empty file yields New().
func LoadFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(), nil
		}
		return nil, fmt.Errorf("error opening page file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// SaveFile writes the collection to path, replacing any previous content.
func (s *Store) SaveFile(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("error opening page file for writing: %w", err)
	}
	if err := s.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func validate(pages []bookcompiler.Page) error {
	seen := make(map[string]bool, len(pages))
	for i, p := range pages {
		if p.ID == "" {
			return fmt.Errorf("%w: page %d has no id", bookcompiler.ErrInvalidPage, i)
		}
		if seen[p.ID] {
			return fmt.Errorf("%w: duplicate id %q", bookcompiler.ErrInvalidPage, p.ID)
		}
		seen[p.ID] = true
	}
	_, err := bookcompiler.ResolveOrder(pages)
	return err
}

func (s *Store) checkAppend() error {
	for i := len(s.pages) - 1; i >= 0; i-- {
		if s.pages[i].Category != bookcompiler.Content {
			continue
		}
		if strings.TrimSpace(s.pages[i].Text) == "" {
			return fmt.Errorf("%w: %s", ErrTextRequired, s.pages[i].Label)
		}
		return nil
	}
	return nil
}

func (s *Store) countLocked(c bookcompiler.Category) int {
	n := 0
	for _, p := range s.pages {
		if p.Category == c {
			n++
		}
	}
	return n
}

func (s *Store) indexOf(id string) int {
	for i, p := range s.pages {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) indexOfCategory(c bookcompiler.Category) int {
	for i, p := range s.pages {
		if p.Category == c {
			return i
		}
	}
	return -1
}

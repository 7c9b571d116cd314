package mention

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/telecarehq/chatsync/internal/models"
)

type Searcher interface {
	SearchDirectory(ctx context.Context, search string, page, limit int) ([]models.DirectoryUser, models.PaginationMeta, error)
}

// Directory accumulates candidate users for the mention dropdown. A
// repeated query appends subsequent pages; a fresh query resets to page
// 1 and replaces the candidate list. Fetch failures leave the current
// candidates untouched.
type Directory struct {
	searcher Searcher
	limit    int

	mu    sync.Mutex
	query string
	meta  models.PaginationMeta
	users []models.DirectoryUser
}

const defaultDirectoryLimit = 10

func NewDirectory(searcher Searcher, limit int) *Directory {
	if limit <= 0 {
		limit = defaultDirectoryLimit
	}
	return &Directory{searcher: searcher, limit: limit}
}

// Search loads page 1 for query, replacing any previous candidates.
func (d *Directory) Search(ctx context.Context, query string) ([]models.DirectoryUser, error) {
	users, meta, err := d.searcher.SearchDirectory(ctx, query, 1, d.limit)
	if err != nil {
		return nil, fmt.Errorf("directory search: %w", err)
	}

	d.mu.Lock()
	d.query = query
	d.meta = meta
	d.users = append([]models.DirectoryUser(nil), users...)
	snapshot := append([]models.DirectoryUser(nil), d.users...)
	d.mu.Unlock()

	return snapshot, nil
}

// LoadMore fetches the next page for the current query and appends it,
// used when the suggestion list is scrolled near its end. It is a no-op
// when every page is already loaded.
func (d *Directory) LoadMore(ctx context.Context) error {
	d.mu.Lock()
	query := d.query
	nextPage := d.meta.Page + 1
	hasMore := d.meta.Page < d.meta.TotalPages
	d.mu.Unlock()

	if !hasMore {
		return nil
	}

	users, meta, err := d.searcher.SearchDirectory(ctx, query, nextPage, d.limit)
	if err != nil {
		return fmt.Errorf("directory load more: %w", err)
	}

	d.mu.Lock()
	// The query may have changed while the page was in flight; only the
	// matching query may extend the list.
	if d.query == query {
		d.meta = meta
		d.users = append(d.users, users...)
	}
	d.mu.Unlock()
	return nil
}

func (d *Directory) HasMore() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.meta.Page < d.meta.TotalPages
}

func (d *Directory) Users() []models.DirectoryUser {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.DirectoryUser(nil), d.users...)
}

// Match finds the directory entry whose full name equals candidate,
// ignoring case.
func (d *Directory) Match(candidate string) (models.DirectoryUser, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, user := range d.users {
		if strings.EqualFold(user.FullName(), strings.TrimSpace(candidate)) {
			return user, true
		}
	}
	return models.DirectoryUser{}, false
}

// IsComplete reports whether candidate already names a directory entry
// exactly; completeness suppresses further queries and the dropdown.
func (d *Directory) IsComplete(candidate string) bool {
	_, ok := d.Match(candidate)
	return ok
}

// Package paginator walks a query page by page using limit and offset, with
// the total taken from the table's _aggregate root.
package paginator

import (
	"context"
	"errors"
	"sync"

	"github.com/TheColorRed/hasura-query-builder/internal/cursor"
	"github.com/TheColorRed/hasura-query-builder/internal/model"
	"github.com/TheColorRed/hasura-query-builder/internal/result"
)

// DefaultPerPage is used when no page size is given.
const DefaultPerPage = 10

// ErrNoPages is returned by navigation when no row matches the query.
var ErrNoPages = errors.New("query has no pages")

// Source runs the queries a paginator needs. *client.Client implements it.
type Source interface {
	Get(ctx context.Context, q *model.Query) ([]result.Row, error)
	Count(ctx context.Context, q *model.Query) (int, error)
}

// Page is one page of results.
type Page struct {
	Rows        []result.Row
	Total       int
	TotalPages  int
	PerPage     int
	Current     int
	IsFirstPage bool
	IsLastPage  bool
	// Token resumes at this page with Resume.
	Token       string
}

// Paginator is safe for concurrent use; navigation calls are serialized.
type Paginator struct {
	src     Source
	base    *model.Query
	perPage int

	mu      sync.Mutex
	counted bool
	total   int
	current int
}

// New paginates a copy of q. Later changes to q do not affect the
// paginator.
func New(src Source, q *model.Query, perPage int) *Paginator {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	return &Paginator{src: src, base: q.Clone(), perPage: perPage, current: 1}
}

// Resume starts a paginator at the page recorded in token.
func Resume(src Source, q *model.Query, token string) (*Paginator, error) {
	tok, err := cursor.DecodePage(token, q.Table().Name())
	if err != nil {
		return nil, err
	}
	p := New(src, q, tok.PerPage)
	p.current = tok.Page
	return p, nil
}

// First loads page one.
func (p *Paginator) First(ctx context.Context) (*Page, error) {
	return p.move(ctx, func(int) int { return 1 })
}

// Last loads the final page.
func (p *Paginator) Last(ctx context.Context) (*Page, error) {
	return p.move(ctx, func(pages int) int { return pages })
}

// Next loads the page after the current one. On the last page it reloads
// the last page.
func (p *Paginator) Next(ctx context.Context) (*Page, error) {
	return p.move(ctx, func(int) int { return p.current + 1 })
}

// Previous loads the page before the current one. On the first page it
// reloads the first page.
func (p *Paginator) Previous(ctx context.Context) (*Page, error) {
	return p.move(ctx, func(int) int { return p.current - 1 })
}

// Page loads page n, clamped to the available pages.
func (p *Paginator) Page(ctx context.Context, n int) (*Page, error) {
	return p.move(ctx, func(int) int { return n })
}

// Current loads the page the paginator is on.
func (p *Paginator) Current(ctx context.Context) (*Page, error) {
	return p.move(ctx, func(int) int { return p.current })
}

// Refresh drops the cached total so the next navigation counts again.
func (p *Paginator) Refresh() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counted = false
}

func (p *Paginator) move(ctx context.Context, target func(pages int) int) (*Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.counted {
		total, err := p.src.Count(ctx, p.base)
		if err != nil {
			return nil, err
		}
		p.total = total
		p.counted = true
	}
	pages := p.totalPages()
	if pages == 0 {
		return nil, ErrNoPages
	}

	n := min(max(target(pages), 1), pages)
	rows, err := p.src.Get(ctx, p.base.Clone().Limit(p.perPage, (n-1)*p.perPage))
	if err != nil {
		return nil, err
	}
	p.current = n
	return &Page{
		Rows:        rows,
		Total:       p.total,
		TotalPages:  pages,
		PerPage:     p.perPage,
		Current:     n,
		IsFirstPage: n == 1,
		IsLastPage:  n == pages,
		Token:       cursor.EncodePage(cursor.PageToken{Table: p.base.Table().Name(), Page: n, PerPage: p.perPage}),
	}, nil
}

func (p *Paginator) totalPages() int {
	return (p.total + p.perPage - 1) / p.perPage
}

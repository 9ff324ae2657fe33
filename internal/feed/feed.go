// Package feed builds ordered, paginated views over posts.
package feed

import (
	"database/sql"

	"microblog/internal/models"
)

// PageSize is fixed for every feed.
const PageSize = 10

type scopeKind int

const (
	scopeAll scopeKind = iota
	scopeGroup
	scopeAuthor
	scopeFollowing
)

// Scope selects which posts a feed request includes.
type Scope struct {
	kind     scopeKind
	slug     string
	username string
	viewerID int
}

// All covers every post.
func All() Scope { return Scope{kind: scopeAll} }

// InGroup covers posts assigned to the group with the given slug.
func InGroup(slug string) Scope { return Scope{kind: scopeGroup, slug: slug} }

// ByAuthor covers posts written by the user with the given username.
func ByAuthor(username string) Scope { return Scope{kind: scopeAuthor, username: username} }

// Following covers posts by authors the viewer follows.
func Following(viewerID int) Scope { return Scope{kind: scopeFollowing, viewerID: viewerID} }

// Page is one page of a feed. TotalCount is the size of the whole scope, so
// for an author scope it is the author's total post count. Group and Author
// are the resolved entities for their scopes and nil otherwise.
type Page struct {
	Items      []models.Post
	Number     int
	TotalPages int
	TotalCount int
	HasNext    bool
	HasPrev    bool
	Group      *models.Group
	Author     *models.User
}

func (p Page) PrevNumber() int { return p.Number - 1 }
func (p Page) NextNumber() int { return p.Number + 1 }

// Compose resolves the scope and returns the requested page. Page numbers
// below 1 clamp to 1 and numbers past the end clamp to the last page; an
// empty scope still yields page 1 of 1. Unknown slugs and usernames fail
// with models.ErrNotFound.
func Compose(db *sql.DB, scope Scope, page int) (Page, error) {
	var out Page
	var count int
	var err error
	switch scope.kind {
	case scopeGroup:
		out.Group, err = models.GetGroupBySlug(db, scope.slug)
		if err != nil {
			return out, err
		}
		count, err = models.CountPostsByGroup(db, out.Group.ID)
	case scopeAuthor:
		out.Author, err = models.GetUserByUsername(db, scope.username)
		if err != nil {
			return out, err
		}
		count, err = models.CountPostsByAuthor(db, out.Author.ID)
	case scopeFollowing:
		count, err = models.CountPostsByFollowed(db, scope.viewerID)
	default:
		count, err = models.CountPosts(db)
	}
	if err != nil {
		return out, err
	}

	out.TotalCount = count
	out.TotalPages = (count + PageSize - 1) / PageSize
	if out.TotalPages == 0 {
		out.TotalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > out.TotalPages {
		page = out.TotalPages
	}
	out.Number = page
	out.HasPrev = page > 1
	out.HasNext = page < out.TotalPages

	offset := (page - 1) * PageSize
	switch scope.kind {
	case scopeGroup:
		out.Items, err = models.ListPostsByGroup(db, out.Group.ID, PageSize, offset)
	case scopeAuthor:
		out.Items, err = models.ListPostsByAuthor(db, out.Author.ID, PageSize, offset)
	case scopeFollowing:
		out.Items, err = models.ListPostsByFollowed(db, scope.viewerID, PageSize, offset)
	default:
		out.Items, err = models.ListPosts(db, PageSize, offset)
	}
	return out, err
}

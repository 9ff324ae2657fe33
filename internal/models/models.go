package models

import (
	"errors"
	"time"
)

// Error taxonomy shared by the query layer and the services built on it.
// The rendering layer maps these onto HTTP responses.
var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrDuplicateUsername = errors.New("username already exists")
	ErrDuplicateSlug     = errors.New("slug already exists")
)

// ValidationError reports a rejected field so forms can re-render with a
// message next to the offending input.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

type User struct {
	ID           int
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

type Session struct {
	ID        string
	UserID    int
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

type Group struct {
	ID          int
	Title       string
	Slug        string
	Description string
}

// Post is a row from posts joined with its author and, when set, its group.
// GroupID is nil for ungrouped posts and for posts whose group was deleted.
type Post struct {
	ID         int
	Text       string
	AuthorID   int
	Author     string
	GroupID    *int
	GroupSlug  string
	GroupTitle string
	ImageRef   string
	CreatedAt  time.Time
}

// InGroup reports whether the post is assigned to the given group. Safe on
// a nil post so templates can call it while rendering the blank create form.
func (p *Post) InGroup(id int) bool {
	return p != nil && p.GroupID != nil && *p.GroupID == id
}

type Comment struct {
	ID        int
	PostID    int
	AuthorID  int
	Author    string
	Text      string
	CreatedAt time.Time
}

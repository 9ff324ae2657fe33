package posts

import (
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"microblog/internal/db"
	"microblog/internal/feed"
	"microblog/internal/models"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db open: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func seedUser(t *testing.T, database *sql.DB, username string) int {
	t.Helper()
	id, err := models.CreateUser(database, username, "hash")
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return id
}

func TestCreateValidation(t *testing.T) {
	database := openTestDB(t)
	author := seedUser(t, database, "alice")

	var ve *models.ValidationError
	if _, err := Create(database, author, "   ", nil, ""); !errors.As(err, &ve) || ve.Field != "text" {
		t.Fatalf("empty text error = %v, want text validation error", err)
	}

	missing := 99
	if _, err := Create(database, author, "hello", &missing, ""); !errors.As(err, &ve) || ve.Field != "group" {
		t.Fatalf("missing group error = %v, want group validation error", err)
	}
}

func TestCreateAppearsFirstInFeed(t *testing.T) {
	database := openTestDB(t)
	author := seedUser(t, database, "alice")
	if _, err := Create(database, author, "older", nil, ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	post, err := Create(database, author, "newest", nil, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if post.AuthorID != author || post.Text != "newest" {
		t.Fatalf("created post = %+v", post)
	}

	page, err := feed.Compose(database, feed.All(), 1)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if len(page.Items) == 0 || page.Items[0].ID != post.ID {
		t.Fatalf("new post not first in feed: %+v", page.Items)
	}
}

func TestEditKeepsAuthorAndCreatedAt(t *testing.T) {
	database := openTestDB(t)
	author := seedUser(t, database, "alice")
	gid, err := models.CreateGroup(database, "Cats", "cats", "")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	post, err := Create(database, author, "first draft", nil, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	edited, err := Edit(database, author, post.ID, "second draft", &gid, "")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if edited.Text != "second draft" {
		t.Fatalf("text = %q", edited.Text)
	}
	if edited.AuthorID != author {
		t.Fatalf("author changed: %d -> %d", author, edited.AuthorID)
	}
	if !edited.CreatedAt.Equal(post.CreatedAt) {
		t.Fatalf("created_at changed: %v -> %v", post.CreatedAt, edited.CreatedAt)
	}
	if edited.GroupID == nil || *edited.GroupID != gid {
		t.Fatalf("group not set: %+v", edited.GroupID)
	}
}

func TestEditByNonAuthorForbidden(t *testing.T) {
	database := openTestDB(t)
	alice := seedUser(t, database, "alice")
	bob := seedUser(t, database, "bob")
	post, err := Create(database, alice, "original", nil, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := Edit(database, bob, post.ID, "hijacked", nil, ""); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("edit error = %v, want ErrForbidden", err)
	}
	unchanged, err := models.GetPost(database, post.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if unchanged.Text != "original" {
		t.Fatalf("post changed by forbidden edit: %q", unchanged.Text)
	}
}

func TestEditNotFound(t *testing.T) {
	database := openTestDB(t)
	alice := seedUser(t, database, "alice")
	if _, err := Edit(database, alice, 999, "text", nil, ""); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("edit error = %v, want ErrNotFound", err)
	}
}

func TestDetailAuthorPostCount(t *testing.T) {
	database := openTestDB(t)
	alice := seedUser(t, database, "alice")
	bob := seedUser(t, database, "bob")
	var first *models.Post
	for i := 0; i < 3; i++ {
		p, err := Create(database, alice, "by alice", nil, "")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if first == nil {
			first = p
		}
	}
	if _, err := Create(database, bob, "by bob", nil, ""); err != nil {
		t.Fatalf("create: %v", err)
	}

	detail, err := GetDetail(database, first.ID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	// the detail view surfaces the author's total post count, not comments
	if detail.AuthorPostCount != 3 {
		t.Fatalf("author post count = %d, want 3", detail.AuthorPostCount)
	}

	if _, err := GetDetail(database, 999); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("detail error = %v, want ErrNotFound", err)
	}
}

func TestCommentsNewestFirst(t *testing.T) {
	database := openTestDB(t)
	alice := seedUser(t, database, "alice")
	post, err := Create(database, alice, "a post", nil, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := AddComment(database, post.ID, alice, "first"); err != nil {
		t.Fatalf("comment: %v", err)
	}
	if err := AddComment(database, post.ID, alice, "second"); err != nil {
		t.Fatalf("comment: %v", err)
	}

	detail, err := GetDetail(database, post.ID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if len(detail.Comments) != 2 {
		t.Fatalf("comments = %d, want 2", len(detail.Comments))
	}
	if detail.Comments[0].Text != "second" {
		t.Fatalf("newest comment = %q, want %q", detail.Comments[0].Text, "second")
	}
}

func TestAddCommentValidation(t *testing.T) {
	database := openTestDB(t)
	alice := seedUser(t, database, "alice")
	post, err := Create(database, alice, "a post", nil, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var ve *models.ValidationError
	if err := AddComment(database, post.ID, alice, "  "); !errors.As(err, &ve) {
		t.Fatalf("empty comment error = %v, want validation error", err)
	}
	if err := AddComment(database, post.ID, alice, strings.Repeat("a", MaxCommentLen+1)); !errors.As(err, &ve) {
		t.Fatalf("long comment error = %v, want validation error", err)
	}
	if err := AddComment(database, post.ID, alice, strings.Repeat("a", MaxCommentLen)); err != nil {
		t.Fatalf("max-length comment rejected: %v", err)
	}
	if err := AddComment(database, 999, alice, "hi"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("comment on missing post error = %v, want ErrNotFound", err)
	}
}

func TestDeleteCascadesComments(t *testing.T) {
	database := openTestDB(t)
	alice := seedUser(t, database, "alice")
	bob := seedUser(t, database, "bob")
	post, err := Create(database, alice, "doomed", nil, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := AddComment(database, post.ID, bob, "a comment"); err != nil {
		t.Fatalf("comment: %v", err)
	}

	if err := Delete(database, bob, post.ID); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("delete by non-author error = %v, want ErrForbidden", err)
	}
	if err := Delete(database, alice, post.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := models.GetPost(database, post.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("post survived delete: %v", err)
	}
	comments, err := models.ListComments(database, post.ID)
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if len(comments) != 0 {
		t.Fatalf("comments survived post delete: %+v", comments)
	}
	page, err := feed.Compose(database, feed.All(), 1)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if len(page.Items) != 0 {
		t.Fatalf("deleted post still in feed: %+v", page.Items)
	}
}

func TestGroupDeleteNullifiesPosts(t *testing.T) {
	database := openTestDB(t)
	alice := seedUser(t, database, "alice")
	gid, err := models.CreateGroup(database, "Cats", "cats", "")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	post, err := Create(database, alice, "grouped", &gid, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := models.DeleteGroup(database, gid); err != nil {
		t.Fatalf("delete group: %v", err)
	}
	got, err := models.GetPost(database, post.ID)
	if err != nil {
		t.Fatalf("get after group delete: %v", err)
	}
	if got.GroupID != nil {
		t.Fatalf("group_id = %v, want nil after group delete", *got.GroupID)
	}
	page, err := feed.Compose(database, feed.All(), 1)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != post.ID {
		t.Fatalf("post missing from all-posts feed: %+v", page.Items)
	}
}

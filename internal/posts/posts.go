// Package posts applies create, edit and comment rules on top of the store.
package posts

import (
	"database/sql"
	"errors"
	"strings"
	"unicode/utf8"

	"microblog/internal/models"
)

// MaxCommentLen is the comment length limit in characters.
const MaxCommentLen = 200

// Create validates and inserts a new post on behalf of authorID.
func Create(db *sql.DB, authorID int, text string, groupID *int, imageRef string) (*models.Post, error) {
	if err := validate(db, text, groupID); err != nil {
		return nil, err
	}
	id, err := models.InsertPost(db, authorID, strings.TrimSpace(text), groupID, imageRef)
	if err != nil {
		return nil, err
	}
	return models.GetPost(db, id)
}

// Edit updates a post's text, group and image. Only the author may edit;
// authorship and created_at never change.
func Edit(db *sql.DB, editorID, postID int, text string, groupID *int, imageRef string) (*models.Post, error) {
	post, err := models.GetPost(db, postID)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != editorID {
		return nil, models.ErrForbidden
	}
	if err := validate(db, text, groupID); err != nil {
		return nil, err
	}
	if imageRef == "" {
		imageRef = post.ImageRef
	}
	if err := models.UpdatePost(db, postID, strings.TrimSpace(text), groupID, imageRef); err != nil {
		return nil, err
	}
	return models.GetPost(db, postID)
}

// Delete removes a post and, through the store's cascade, its comments.
// Only the author may delete.
func Delete(db *sql.DB, editorID, postID int) error {
	post, err := models.GetPost(db, postID)
	if err != nil {
		return err
	}
	if post.AuthorID != editorID {
		return models.ErrForbidden
	}
	return models.DeletePost(db, postID)
}

// Detail is everything the single-post view shows. AuthorPostCount is the
// total number of posts by this post's author, not a comment count.
type Detail struct {
	Post            *models.Post
	AuthorPostCount int
	Comments        []models.Comment
}

func GetDetail(db *sql.DB, postID int) (*Detail, error) {
	post, err := models.GetPost(db, postID)
	if err != nil {
		return nil, err
	}
	count, err := models.CountPostsByAuthor(db, post.AuthorID)
	if err != nil {
		return nil, err
	}
	comments, err := models.ListComments(db, postID)
	if err != nil {
		return nil, err
	}
	return &Detail{Post: post, AuthorPostCount: count, Comments: comments}, nil
}

// AddComment attaches an immutable comment to an existing post.
func AddComment(db *sql.DB, postID, authorID int, text string) error {
	if _, err := models.GetPost(db, postID); err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return &models.ValidationError{Field: "text", Msg: "comment text is required"}
	}
	if utf8.RuneCountInString(text) > MaxCommentLen {
		return &models.ValidationError{Field: "text", Msg: "comment is too long"}
	}
	_, err := models.InsertComment(db, postID, authorID, text)
	return err
}

func validate(db *sql.DB, text string, groupID *int) error {
	if strings.TrimSpace(text) == "" {
		return &models.ValidationError{Field: "text", Msg: "post text is required"}
	}
	if groupID != nil {
		if _, err := models.GetGroupByID(db, *groupID); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return &models.ValidationError{Field: "group", Msg: "group does not exist"}
			}
			return err
		}
	}
	return nil
}

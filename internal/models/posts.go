package models

import (
	"database/sql"
	"errors"
)

// Posts are always read joined with their author and group so feeds can
// render without per-row lookups. Ordering is newest first; id breaks ties
// because sqlite timestamps are second-granular.
const postSelect = `
SELECT p.id, p.text, p.author_id, u.username, p.group_id, g.slug, g.title, p.image_ref, p.created_at
FROM posts p
JOIN users u ON u.id = p.author_id
LEFT JOIN groups g ON g.id = p.group_id`

const postOrder = ` ORDER BY p.created_at DESC, p.id DESC`

func InsertPost(db *sql.DB, authorID int, text string, groupID *int, imageRef string) (int, error) {
	var group any
	if groupID != nil {
		group = *groupID
	}
	var image any
	if imageRef != "" {
		image = imageRef
	}
	res, err := db.Exec(`INSERT INTO posts (text, author_id, group_id, image_ref) VALUES (?, ?, ?, ?)`,
		text, authorID, group, image)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return int(id), err
}

// UpdatePost rewrites the mutable columns. author_id and created_at are
// deliberately not part of the statement.
func UpdatePost(db *sql.DB, id int, text string, groupID *int, imageRef string) error {
	var group any
	if groupID != nil {
		group = *groupID
	}
	var image any
	if imageRef != "" {
		image = imageRef
	}
	_, err := db.Exec(`UPDATE posts SET text = ?, group_id = ?, image_ref = ? WHERE id = ?`,
		text, group, image, id)
	return err
}

// DeletePost removes the post; its comments go with it via the cascade rule.
func DeletePost(db *sql.DB, id int) error {
	_, err := db.Exec(`DELETE FROM posts WHERE id = ?`, id)
	return err
}

func GetPost(db *sql.DB, id int) (*Post, error) {
	row := db.QueryRow(postSelect+` WHERE p.id = ?`, id)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func ListPosts(db *sql.DB, limit, offset int) ([]Post, error) {
	return listPosts(db, "", limit, offset)
}

func ListPostsByGroup(db *sql.DB, groupID, limit, offset int) ([]Post, error) {
	return listPosts(db, `p.group_id = ?`, limit, offset, groupID)
}

func ListPostsByAuthor(db *sql.DB, authorID, limit, offset int) ([]Post, error) {
	return listPosts(db, `p.author_id = ?`, limit, offset, authorID)
}

func ListPostsByFollowed(db *sql.DB, viewerID, limit, offset int) ([]Post, error) {
	return listPosts(db, `p.author_id IN (SELECT author_id FROM follows WHERE user_id = ?)`, limit, offset, viewerID)
}

func CountPosts(db *sql.DB) (int, error) {
	return countPosts(db, "")
}

func CountPostsByGroup(db *sql.DB, groupID int) (int, error) {
	return countPosts(db, `group_id = ?`, groupID)
}

func CountPostsByAuthor(db *sql.DB, authorID int) (int, error) {
	return countPosts(db, `author_id = ?`, authorID)
}

func CountPostsByFollowed(db *sql.DB, viewerID int) (int, error) {
	return countPosts(db, `author_id IN (SELECT author_id FROM follows WHERE user_id = ?)`, viewerID)
}

func listPosts(db *sql.DB, where string, limit, offset int, args ...any) ([]Post, error) {
	q := postSelect
	if where != "" {
		q += ` WHERE ` + where
	}
	q += postOrder + ` LIMIT ? OFFSET ?`
	args = append(args, limit, offset)
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var posts []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func countPosts(db *sql.DB, where string, args ...any) (int, error) {
	q := `SELECT COUNT(*) FROM posts`
	if where != "" {
		q += ` WHERE ` + where
	}
	var n int
	err := db.QueryRow(q, args...).Scan(&n)
	return n, err
}

func scanPost(row interface{ Scan(...any) error }) (Post, error) {
	var p Post
	var groupID sql.NullInt64
	var slug, title, image sql.NullString
	err := row.Scan(&p.ID, &p.Text, &p.AuthorID, &p.Author, &groupID, &slug, &title, &image, &p.CreatedAt)
	if err != nil {
		return p, err
	}
	if groupID.Valid {
		id := int(groupID.Int64)
		p.GroupID = &id
		p.GroupSlug = slug.String
		p.GroupTitle = title.String
	}
	p.ImageRef = image.String
	return p, nil
}

func InsertComment(db *sql.DB, postID, authorID int, text string) (int, error) {
	res, err := db.Exec(`INSERT INTO comments (post_id, author_id, text) VALUES (?, ?, ?)`, postID, authorID, text)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return int(id), err
}

func ListComments(db *sql.DB, postID int) ([]Comment, error) {
	rows, err := db.Query(`SELECT c.id, c.post_id, c.author_id, u.username, c.text, c.created_at
		FROM comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.post_id = ?
		ORDER BY c.created_at DESC, c.id DESC`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cs []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Author, &c.Text, &c.CreatedAt); err != nil {
			return nil, err
		}
		cs = append(cs, c)
	}
	return cs, rows.Err()
}

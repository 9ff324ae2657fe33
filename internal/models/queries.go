package models

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

func CreateUser(db *sql.DB, username, passwordHash string) (int, error) {
	res, err := db.Exec(`INSERT INTO users (username, password_hash) VALUES (?, ?)`, username, passwordHash)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.username") {
			return 0, ErrDuplicateUsername
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	return int(id), err
}

func GetUserByID(db *sql.DB, id int) (*User, error) {
	row := db.QueryRow(`SELECT id, username, password_hash, created_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func GetUserByUsername(db *sql.DB, username string) (*User, error) {
	row := db.QueryRow(`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// DeleteUser removes the user; posts, comments and follow edges in both
// directions go with it via the schema's cascade rules.
func DeleteUser(db *sql.DB, id int) error {
	_, err := db.Exec(`DELETE FROM users WHERE id = ?`, id)
	return err
}

func CreateSession(db *sql.DB, userID int, sessionID string, expires time.Time) error {
	// revoke existing
	_, err := db.Exec(`UPDATE sessions SET revoked_at = CURRENT_TIMESTAMP WHERE user_id = ? AND revoked_at IS NULL`, userID)
	if err != nil {
		return err
	}
	_, err = db.Exec(`INSERT INTO sessions (id, user_id, expires_at) VALUES (?, ?, ?)`, sessionID, userID, expires)
	return err
}

func GetSession(db *sql.DB, id string) (*Session, error) {
	row := db.QueryRow(`SELECT id, user_id, created_at, expires_at, revoked_at FROM sessions WHERE id = ?`, id)
	var s Session
	var revoked sql.NullTime
	err := row.Scan(&s.ID, &s.UserID, &s.CreatedAt, &s.ExpiresAt, &revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if revoked.Valid {
		s.RevokedAt = &revoked.Time
	}
	return &s, nil
}

func RevokeSession(db *sql.DB, id string) error {
	_, err := db.Exec(`UPDATE sessions SET revoked_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	return err
}

// Groups are managed administratively; the request path only reads them.

func CreateGroup(db *sql.DB, title, slug, description string) (int, error) {
	res, err := db.Exec(`INSERT INTO groups (title, slug, description) VALUES (?, ?, ?)`, title, slug, description)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: groups.slug") {
			return 0, ErrDuplicateSlug
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	return int(id), err
}

func GetGroupByID(db *sql.DB, id int) (*Group, error) {
	row := db.QueryRow(`SELECT id, title, slug, description FROM groups WHERE id = ?`, id)
	return scanGroup(row)
}

func GetGroupBySlug(db *sql.DB, slug string) (*Group, error) {
	row := db.QueryRow(`SELECT id, title, slug, description FROM groups WHERE slug = ?`, slug)
	return scanGroup(row)
}

func scanGroup(row *sql.Row) (*Group, error) {
	var g Group
	err := row.Scan(&g.ID, &g.Title, &g.Slug, &g.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func ListGroups(db *sql.DB) ([]Group, error) {
	rows, err := db.Query(`SELECT id, title, slug, description FROM groups ORDER BY title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Title, &g.Slug, &g.Description); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// DeleteGroup removes the group; its posts survive with group_id set to NULL.
func DeleteGroup(db *sql.DB, id int) error {
	_, err := db.Exec(`DELETE FROM groups WHERE id = ?`, id)
	return err
}

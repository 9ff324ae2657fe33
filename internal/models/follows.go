package models

import "database/sql"

// InsertFollow records a follow edge. The composite primary key plus
// ON CONFLICT DO NOTHING makes a redundant follow a no-op.
func InsertFollow(db *sql.DB, userID, authorID int) error {
	_, err := db.Exec(`INSERT INTO follows (user_id, author_id) VALUES (?, ?)
		ON CONFLICT(user_id, author_id) DO NOTHING`, userID, authorID)
	return err
}

func DeleteFollow(db *sql.DB, userID, authorID int) error {
	_, err := db.Exec(`DELETE FROM follows WHERE user_id = ? AND author_id = ?`, userID, authorID)
	return err
}

func FollowExists(db *sql.DB, userID, authorID int) (bool, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM follows WHERE user_id = ? AND author_id = ?`, userID, authorID).Scan(&n)
	return n > 0, err
}

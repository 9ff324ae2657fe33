// Package follow manages follow edges between users.
package follow

import (
	"database/sql"

	"microblog/internal/models"
)

// Follow makes userID follow the user named targetUsername. Following
// someone already followed is a no-op; following yourself is rejected.
func Follow(db *sql.DB, userID int, targetUsername string) error {
	target, err := models.GetUserByUsername(db, targetUsername)
	if err != nil {
		return err
	}
	if target.ID == userID {
		return &models.ValidationError{Field: "author", Msg: "cannot follow yourself"}
	}
	return models.InsertFollow(db, userID, target.ID)
}

// Unfollow removes the edge if present; absent edges are a no-op.
func Unfollow(db *sql.DB, userID int, targetUsername string) error {
	target, err := models.GetUserByUsername(db, targetUsername)
	if err != nil {
		return err
	}
	return models.DeleteFollow(db, userID, target.ID)
}

func IsFollowing(db *sql.DB, userID, authorID int) (bool, error) {
	return models.FollowExists(db, userID, authorID)
}

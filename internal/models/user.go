package models

import (
	"strconv"

	"gorm.io/gorm"
)

/** --------------------ENTITIES-------------------- */
// User is the read side of the account directory owned by the CRUD layer.
// The realtime service only resolves ids to display names.
type User struct {
	gorm.Model
	Username    string `gorm:"uniqueIndex;not null" json:"username"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar,omitempty"`
}

// Name returns the name shown next to a user's messages.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.Username != "" {
		return u.Username
	}
	return "user-" + strconv.FormatUint(uint64(u.ID), 10)
}

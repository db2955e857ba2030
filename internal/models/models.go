package models

import "time"

// Upload is the ownership record of a single uploaded file
type Upload struct {
	// Path is relative to the configured upload root and is the upload's identity
	Path       string    `json:"path"`
	ContentKey string    `json:"content_key"`
	Owner      string    `json:"owner"`
	AddedAt    time.Time `json:"added_at"`
}

// PostUpload is a post's reference to an upload it embeds
type PostUpload struct {
	PostID string `json:"pid"`
	Path   string `json:"path"`
}

// User is the subset of a user row the upload service reads
type User struct {
	ID   string `json:"uid"`
	Role string `json:"role"`
}

// Roles that may delete any user's uploads
const (
	RoleAdmin           = "admin"
	RoleGlobalModerator = "global_moderator"
)

// IsPrivileged reports whether the role grants admin or moderator rights
func (u *User) IsPrivileged() bool {
	return u.Role == RoleAdmin || u.Role == RoleGlobalModerator
}

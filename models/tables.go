package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

type User struct {
	ID              int        `gorm:"primary_key;autoIncrement" json:"id"`
	Username        string     `gorm:"size:80;uniqueIndex;not null" json:"username"`
	PasswordHash    string     `gorm:"not null" json:"-"` // json:"-" prevents password from being exposed in API
	Role            string     `gorm:"size:16;not null;default:'member'" json:"role"`
	CreatedAt       time.Time  `json:"created_at"`
	LastLogin       *time.Time `json:"last_login,omitempty"`
	LoginAttempts   int        `gorm:"not null;default:0" json:"-"`
	LockedUntil     *time.Time `json:"-"`
	PasswordChanged bool       `gorm:"not null;default:false" json:"-"` // false while the bootstrap password is still in use
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

type Post struct {
	ID          uint          `gorm:"primary_key" json:"id"`
	Content     string        `gorm:"type:text;not null" json:"content"`
	AuthorID    int           `gorm:"not null;index" json:"author_id"`
	Author      User          `gorm:"foreignKey:AuthorID" json:"-"`
	CreatedAt   time.Time     `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	IsPublic    bool          `gorm:"not null;index" json:"is_public"`
	Previews    []LinkPreview `gorm:"foreignKey:PostID" json:"previews"`
	Attachments Attachments   `gorm:"type:text" json:"attachments"` // upload is disabled, always empty for new posts
	Comments    []Comment     `gorm:"foreignKey:PostID" json:"-"`
}

// LinkPreview is one URL preview of a post, kept in the order the URLs
// appear in the post content.
type LinkPreview struct {
	ID          uint   `gorm:"primary_key" json:"-"`
	PostID      uint   `gorm:"not null;index" json:"-"`
	Position    int    `gorm:"not null" json:"-"`
	URL         string `gorm:"type:text;not null" json:"url"`
	Title       string `gorm:"type:text" json:"title,omitempty"`
	Description string `gorm:"type:text" json:"description,omitempty"`
	Image       string `gorm:"type:text" json:"image,omitempty"`
}

type Comment struct {
	ID        uint      `gorm:"primary_key" json:"id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	AuthorID  int       `gorm:"not null;index" json:"author_id"`
	Author    User      `gorm:"foreignKey:AuthorID" json:"-"`
	PostID    uint      `gorm:"not null;index" json:"post_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// Attachments is stored as JSON text. NULL, empty and malformed values
// read back as an empty list.
type Attachments []Attachment

func (a Attachments) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]Attachment(a))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (a *Attachments) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	}

	var list []Attachment
	if len(raw) == 0 || json.Unmarshal(raw, &list) != nil {
		list = nil
	}
	*a = list
	return nil
}

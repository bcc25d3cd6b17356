package audit

import (
	"log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	OutcomeSuccess     = "success"
	OutcomeUnknownUser = "unknown_user"
	OutcomeLocked      = "locked"
	OutcomeBadPassword = "bad_password"
)

// LoginEvent is one login attempt.
type LoginEvent struct {
	ID        uint      `gorm:"primary_key;autoIncrement"`
	UserID    *int      `gorm:"index"` // nil when the username does not exist
	Username  string    `gorm:"size:80;not null;index"`
	Outcome   string    `gorm:"size:16;not null"`
	IP        string    `gorm:"size:64;not null"`
	Browser   *string   `gorm:"size:32"`
	CreatedAt time.Time `gorm:"index"`
}

// AuditModule records login attempts. A nil module records nothing.
type AuditModule struct {
	db *gorm.DB
}

func NewAuditModule(db *gorm.DB) *AuditModule {
	if db == nil {
		log.Println("audit DB is nil, login audit will be disabled")
		return nil
	}

	if err := db.AutoMigrate(&LoginEvent{}); err != nil {
		log.Printf("Error migrating login_events table: %v", err)
		return nil
	}

	return &AuditModule{db: db}
}

// RecordLogin stores the attempt. Failures are logged and otherwise ignored.
func (a *AuditModule) RecordLogin(c *gin.Context, userID *int, username, outcome string) {
	if a == nil || a.db == nil {
		return
	}

	event := LoginEvent{
		UserID:   userID,
		Username: username,
		Outcome:  outcome,
		IP:       c.ClientIP(), // proxy headers count only from trusted proxies
		Browser:  extractBrowser(c.Request.UserAgent()),
	}

	if err := a.db.Create(&event).Error; err != nil {
		log.Printf("Error saving login event: %v", err)
	}
}

// Recent returns the newest login events first.
func (a *AuditModule) Recent(limit int) []LoginEvent {
	if a == nil || a.db == nil {
		return []LoginEvent{}
	}

	var events []LoginEvent
	if err := a.db.Order("created_at DESC, id DESC").Limit(limit).Find(&events).Error; err != nil {
		log.Printf("Error loading login events: %v", err)
		return []LoginEvent{}
	}
	return events
}

// extractBrowser maps a User-Agent to a browser family. Order matters:
// Edge and Opera also announce Chrome, Chrome also announces Safari.
func extractBrowser(userAgent string) *string {
	if userAgent == "" {
		return nil
	}

	ua := strings.ToLower(userAgent)
	var browser string

	switch {
	case strings.Contains(ua, "edg"):
		browser = "Edge"
	case strings.Contains(ua, "opr") || strings.Contains(ua, "opera"):
		browser = "Opera"
	case strings.Contains(ua, "chrome"):
		browser = "Chrome"
	case strings.Contains(ua, "safari"):
		browser = "Safari"
	case strings.Contains(ua, "firefox"):
		browser = "Firefox"
	case strings.Contains(ua, "msie") || strings.Contains(ua, "trident"):
		browser = "Internet Explorer"
	default:
		browser = "Other"
	}

	return &browser
}

package common

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/YuHyungmin1226/flask-sns-app/models"
)

const (
	sessionUserKey = "user_id"
	contextUserKey = "current_user"
)

type Flash struct {
	Kind    string
	Message string
}

// LoadUser resolves the session user id into a *models.User on the context.
// A stale id (deleted user) clears the session.
func LoadUser(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID := session.Get(sessionUserKey)
		if userID == nil {
			c.Next()
			return
		}

		var user models.User
		if err := db.First(&user, userID).Error; err != nil {
			if err != gorm.ErrRecordNotFound {
				log.Printf("[%s] load session user %v: %v", RequestID(c), userID, err)
			}
			session.Delete(sessionUserKey)
			session.Save()
			c.Next()
			return
		}

		c.Set(contextUserKey, &user)
		c.Next()
	}
}

// RequireAuth redirects anonymous requests to the login page.
func RequireAuth(c *gin.Context) {
	if CurrentUser(c) == nil {
		AddFlash(c, "info", "Please log in to continue.")
		c.Redirect(http.StatusFound, "/login")
		c.Abort()
		return
	}
	c.Next()
}

func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(contextUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

func Login(c *gin.Context, user *models.User) error {
	session := sessions.Default(c)
	session.Set(sessionUserKey, user.ID)
	c.Set(contextUserKey, user)
	return session.Save()
}

func Logout(c *gin.Context) error {
	session := sessions.Default(c)
	session.Clear()
	return session.Save()
}

func AddFlash(c *gin.Context, kind, message string) {
	session := sessions.Default(c)
	session.AddFlash(kind + "|" + message)
	if err := session.Save(); err != nil {
		log.Printf("[%s] save flash: %v", RequestID(c), err)
	}
}

// Flashes pops the pending flash messages.
func Flashes(c *gin.Context) []Flash {
	session := sessions.Default(c)
	raw := session.Flashes()
	if len(raw) == 0 {
		return nil
	}
	session.Save()

	flashes := make([]Flash, 0, len(raw))
	for _, r := range raw {
		s, ok := r.(string)
		if !ok {
			continue
		}
		kind, msg, found := strings.Cut(s, "|")
		if !found {
			kind, msg = "info", s
		}
		flashes = append(flashes, Flash{Kind: kind, Message: msg})
	}
	return flashes
}

// Render adds the current user and pending flashes to the view data.
func Render(c *gin.Context, status int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	data["currentUser"] = CurrentUser(c)
	data["flashes"] = Flashes(c)
	c.HTML(status, name, data)
}

// RenderError renders the shared error page.
func RenderError(c *gin.Context, status int, message string) {
	Render(c, status, "error.html", gin.H{"error": message})
}

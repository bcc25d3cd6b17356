package admin

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/YuHyungmin1226/flask-sns-app/audit"
	"github.com/YuHyungmin1226/flask-sns-app/common"
	"github.com/YuHyungmin1226/flask-sns-app/feed"
	"github.com/YuHyungmin1226/flask-sns-app/models"
)

const recentLoginEvents = 20

var ErrReservedAdmin = errors.New("the reserved admin account cannot be deleted")

type AdminModule struct {
	db            *gorm.DB
	audit         *audit.AuditModule
	reservedAdmin string
}

func NewAdminModule(db *gorm.DB, auditModule *audit.AuditModule) *AdminModule {
	return &AdminModule{
		db:            db,
		audit:         auditModule,
		reservedAdmin: common.ReservedAdminName,
	}
}

func (a *AdminModule) RegisterRoutes(router *gin.Engine) {
	adminGroup := router.Group("/admin")
	adminGroup.Use(common.RequireAuth, a.requireAdmin)
	{
		adminGroup.GET("", a.index)
		adminGroup.POST("/user/:id/delete", a.deleteUserPost)
	}
}

// requireAdmin lets through users holding the admin role.
func (a *AdminModule) requireAdmin(c *gin.Context) {
	if !common.CurrentUser(c).IsAdmin() {
		common.AddFlash(c, "error", "Administrator privileges are required.")
		c.Redirect(http.StatusFound, "/")
		c.Abort()
		return
	}
	c.Next()
}

func (a *AdminModule) index(c *gin.Context) {
	var users []models.User
	if err := a.db.Order("id ASC").Find(&users).Error; err != nil {
		log.Printf("[%s] list users: %v", common.RequestID(c), err)
		common.RenderError(c, http.StatusInternalServerError, "Could not load users.")
		return
	}

	var posts []models.Post
	if err := a.db.Preload("Author").Order("created_at DESC, id DESC").Find(&posts).Error; err != nil {
		log.Printf("[%s] list posts: %v", common.RequestID(c), err)
		common.RenderError(c, http.StatusInternalServerError, "Could not load posts.")
		return
	}

	common.Render(c, http.StatusOK, "admin.html", gin.H{
		"title":         "Admin",
		"users":         users,
		"posts":         posts,
		"loginEvents":   a.audit.Recent(recentLoginEvents),
		"reservedAdmin": a.reservedAdmin,
	})
}

// deleteUser removes a user with their posts (and everything those own)
// and their comments on other posts.
func (a *AdminModule) deleteUser(userID int) error {
	return a.db.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, userID).Error; err != nil {
			return err
		}
		if user.Username == a.reservedAdmin {
			return ErrReservedAdmin
		}

		var postIDs []uint
		if err := tx.Model(&models.Post{}).Where("author_id = ?", user.ID).Pluck("id", &postIDs).Error; err != nil {
			return fmt.Errorf("list posts: %w", err)
		}
		for _, id := range postIDs {
			if err := feed.DeletePostTree(tx, id); err != nil {
				return err
			}
		}

		if err := tx.Where("author_id = ?", user.ID).Delete(&models.Comment{}).Error; err != nil {
			return fmt.Errorf("delete comments: %w", err)
		}
		if err := tx.Delete(&user).Error; err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
}

func (a *AdminModule) deleteUserPost(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		common.RenderError(c, http.StatusNotFound, "User not found.")
		return
	}

	err = a.deleteUser(userID)
	switch {
	case err == nil:
		common.AddFlash(c, "success", "The user has been deleted.")
	case errors.Is(err, ErrReservedAdmin):
		common.AddFlash(c, "error", "The administrator account cannot be deleted.")
	case errors.Is(err, gorm.ErrRecordNotFound):
		common.RenderError(c, http.StatusNotFound, "User not found.")
		return
	default:
		log.Printf("[%s] delete user %d: %v", common.RequestID(c), userID, err)
		common.RenderError(c, http.StatusInternalServerError, "Could not delete the user.")
		return
	}

	c.Redirect(http.StatusFound, "/admin")
}

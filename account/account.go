package account

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/YuHyungmin1226/flask-sns-app/audit"
	"github.com/YuHyungmin1226/flask-sns-app/common"
)

type AccountModule struct {
	db    *gorm.DB
	guard *Guard
	audit *audit.AuditModule
}

func NewAccountModule(db *gorm.DB, guard *Guard, auditModule *audit.AuditModule) *AccountModule {
	return &AccountModule{
		db:    db,
		guard: guard,
		audit: auditModule,
	}
}

func (a *AccountModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/login", a.loginPage)
	router.POST("/login", a.loginPost)
	router.GET("/register", a.registerPage)
	router.POST("/register", a.registerPost)
	router.GET("/logout", common.RequireAuth, a.logout)
	router.GET("/change_password", common.RequireAuth, a.changePasswordPage)
	router.POST("/change_password", common.RequireAuth, a.changePasswordPost)
}

func (a *AccountModule) loginPage(c *gin.Context) {
	if common.CurrentUser(c) != nil {
		c.Redirect(http.StatusFound, "/")
		return
	}

	common.Render(c, http.StatusOK, "login.html", gin.H{})
}

func (a *AccountModule) loginPost(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")

	user, err := a.guard.Authenticate(username, password)

	var userID *int
	if user != nil {
		userID = &user.ID
	}

	var locked *LockedError
	var wrong *PasswordError
	switch {
	case err == nil:
		a.audit.RecordLogin(c, userID, username, audit.OutcomeSuccess)
	case errors.Is(err, ErrUnknownUser):
		a.audit.RecordLogin(c, nil, username, audit.OutcomeUnknownUser)
		a.loginFailed(c, username, "This username does not exist.")
		return
	case errors.As(err, &locked):
		a.audit.RecordLogin(c, userID, username, audit.OutcomeLocked)
		a.loginFailed(c, username, "Too many failed attempts. The account is locked, please try again later.")
		return
	case errors.As(err, &wrong):
		a.audit.RecordLogin(c, userID, username, audit.OutcomeBadPassword)
		a.loginFailed(c, username, fmt.Sprintf("Incorrect password. (%d attempts left)", wrong.Remaining))
		return
	default:
		log.Printf("[%s] login %q: %v", common.RequestID(c), username, err)
		common.RenderError(c, http.StatusInternalServerError, "Could not sign you in, please try again.")
		return
	}

	if err := common.Login(c, user); err != nil {
		log.Printf("[%s] save session: %v", common.RequestID(c), err)
		common.RenderError(c, http.StatusInternalServerError, "Could not sign you in, please try again.")
		return
	}

	if a.guard.MustChangePassword(user, password) {
		common.AddFlash(c, "warning", "For your security, please change the default password.")
		c.Redirect(http.StatusFound, "/change_password")
		return
	}

	common.AddFlash(c, "success", "Logged in.")
	c.Redirect(http.StatusFound, "/")
}

func (a *AccountModule) loginFailed(c *gin.Context, username, message string) {
	common.Render(c, http.StatusUnauthorized, "login.html", gin.H{
		"error":    message,
		"username": username,
	})
}

func (a *AccountModule) registerPage(c *gin.Context) {
	if common.CurrentUser(c) != nil {
		c.Redirect(http.StatusFound, "/")
		return
	}

	common.Render(c, http.StatusOK, "register.html", gin.H{})
}

func (a *AccountModule) registerPost(c *gin.Context) {
	username := c.PostForm("username")

	_, err := Register(a.db, username, c.PostForm("password"), c.PostForm("confirm_password"))
	if err != nil {
		status := http.StatusBadRequest
		message := err.Error()
		switch {
		case errors.Is(err, ErrEmptyUsername):
			message = "Please enter a username."
		case errors.Is(err, ErrPasswordMismatch):
			message = "Passwords do not match."
		case errors.Is(err, ErrPasswordTooShort):
			message = fmt.Sprintf("Passwords must be at least %d characters.", MinPasswordLength)
		case errors.Is(err, ErrUsernameTaken):
			message = "This username is already taken."
		default:
			log.Printf("[%s] register %q: %v", common.RequestID(c), username, err)
			status = http.StatusInternalServerError
			message = "Could not create the account."
		}

		common.Render(c, status, "register.html", gin.H{
			"error":    message,
			"username": username,
		})
		return
	}

	common.AddFlash(c, "success", "Registration complete, you can log in now.")
	c.Redirect(http.StatusFound, "/login")
}

func (a *AccountModule) changePasswordPage(c *gin.Context) {
	common.Render(c, http.StatusOK, "change_password.html", gin.H{})
}

func (a *AccountModule) changePasswordPost(c *gin.Context) {
	user := common.CurrentUser(c)

	err := ChangePassword(a.db, user,
		c.PostForm("current_password"),
		c.PostForm("new_password"),
		c.PostForm("confirm_password"),
	)
	if err != nil {
		status := http.StatusBadRequest
		message := err.Error()
		switch {
		case errors.Is(err, ErrWrongPassword):
			message = "The current password is incorrect."
		case errors.Is(err, ErrPasswordMismatch):
			message = "The new passwords do not match."
		case errors.Is(err, ErrPasswordTooShort):
			message = fmt.Sprintf("Passwords must be at least %d characters.", MinPasswordLength)
		default:
			log.Printf("[%s] change password for %d: %v", common.RequestID(c), user.ID, err)
			status = http.StatusInternalServerError
			message = "Could not change the password."
		}

		common.Render(c, status, "change_password.html", gin.H{"error": message})
		return
	}

	common.AddFlash(c, "success", "Your password has been changed.")
	c.Redirect(http.StatusFound, "/")
}

func (a *AccountModule) logout(c *gin.Context) {
	if err := common.Logout(c); err != nil {
		log.Printf("[%s] clear session: %v", common.RequestID(c), err)
	}

	common.AddFlash(c, "info", "You have been logged out.")
	c.Redirect(http.StatusFound, "/login")
}

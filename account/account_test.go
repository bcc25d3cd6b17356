package account

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/YuHyungmin1226/flask-sns-app/audit"
	"github.com/YuHyungmin1226/flask-sns-app/common"
	"github.com/YuHyungmin1226/flask-sns-app/models"
	"github.com/YuHyungmin1226/flask-sns-app/web"
)

func setupTestRouter(db *gorm.DB, auditModule *audit.AuditModule) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	store := cookie.NewStore([]byte("secret"))
	router.Use(sessions.Sessions("test-session", store))
	router.Use(common.LoadUser(db))
	router.SetHTMLTemplate(web.Templates(time.UTC))

	accountModule := NewAccountModule(db, NewGuard(db, "admin123"), auditModule)
	accountModule.RegisterRoutes(router)

	router.GET("/", func(c *gin.Context) {
		if common.CurrentUser(c) == nil {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, "hello "+common.CurrentUser(c).Username)
	})
	return router
}

func doRequest(router *gin.Engine, method, path string, form url.Values, cookies []*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req, _ = http.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req, _ = http.NewRequest(method, path, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func login(router *gin.Engine, username, password string) *httptest.ResponseRecorder {
	return doRequest(router, "POST", "/login", url.Values{
		"username": {username},
		"password": {password},
	}, nil)
}

func TestLoginHandler_Success(t *testing.T) {
	db := setupTestDB()
	router := setupTestRouter(db, nil)
	createTestUser(db, "alice", "correct-horse")

	w := login(router, "alice", "correct-horse")

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))

	w = doRequest(router, "GET", "/", nil, w.Result().Cookies())
	assert.Equal(t, "hello alice", w.Body.String())
}

func TestLoginHandler_DefaultAdminPasswordForcesChange(t *testing.T) {
	db := setupTestDB()
	router := setupTestRouter(db, nil)
	createTestUser(db, "admin", "admin123")

	w := login(router, "admin", "admin123")

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/change_password", w.Header().Get("Location"))
}

func TestLoginHandler_MemberRegisteredWithDefaultPasswordMustChangeIt(t *testing.T) {
	db := setupTestDB()
	router := setupTestRouter(db, nil)

	w := doRequest(router, "POST", "/register", url.Values{
		"username":         {"bob"},
		"password":         {"admin123"},
		"confirm_password": {"admin123"},
	}, nil)
	require.Equal(t, http.StatusFound, w.Code)

	w = login(router, "bob", "admin123")

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/change_password", w.Header().Get("Location"))
}

func TestLoginHandler_Failures(t *testing.T) {
	db := setupTestDB()
	router := setupTestRouter(db, nil)
	createTestUser(db, "alice", "correct-horse")

	w := login(router, "nobody", "whatever")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "This username does not exist.")

	w = login(router, "alice", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "(4 attempts left)")
	assert.Empty(t, w.Result().Cookies())

	for i := 0; i < MaxLoginAttempts-1; i++ {
		w = login(router, "alice", "wrong")
	}
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "The account is locked")

	w = login(router, "alice", "correct-horse")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "The account is locked")
}

func TestLoginHandler_RecordsAudit(t *testing.T) {
	db := setupTestDB()
	auditModule := audit.NewAuditModule(db)
	router := setupTestRouter(db, auditModule)
	createTestUser(db, "alice", "correct-horse")

	login(router, "alice", "wrong")
	login(router, "alice", "correct-horse")
	login(router, "ghost", "x")

	events := auditModule.Recent(10)
	require.Len(t, events, 3)
	assert.Equal(t, audit.OutcomeUnknownUser, events[0].Outcome)
	assert.Equal(t, audit.OutcomeSuccess, events[1].Outcome)
	assert.Equal(t, audit.OutcomeBadPassword, events[2].Outcome)
}

func TestLoginPage_RedirectsWhenLoggedIn(t *testing.T) {
	db := setupTestDB()
	router := setupTestRouter(db, nil)
	createTestUser(db, "alice", "correct-horse")
	cookies := login(router, "alice", "correct-horse").Result().Cookies()

	w := doRequest(router, "GET", "/login", nil, cookies)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}

func TestRegisterHandler(t *testing.T) {
	db := setupTestDB()
	router := setupTestRouter(db, nil)

	w := doRequest(router, "POST", "/register", url.Values{
		"username":         {"bob"},
		"password":         {"hunter22"},
		"confirm_password": {"hunter22"},
	}, nil)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	w = login(router, "bob", "hunter22")
	assert.Equal(t, "/", w.Header().Get("Location"))
}

func TestRegisterHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		form     url.Values
		expected string
	}{
		{
			name:     "duplicate",
			form:     url.Values{"username": {"alice"}, "password": {"hunter22"}, "confirm_password": {"hunter22"}},
			expected: "This username is already taken.",
		},
		{
			name:     "mismatch",
			form:     url.Values{"username": {"bob"}, "password": {"hunter22"}, "confirm_password": {"hunter23"}},
			expected: "Passwords do not match.",
		},
		{
			name:     "too short",
			form:     url.Values{"username": {"bob"}, "password": {"abc"}, "confirm_password": {"abc"}},
			expected: "Passwords must be at least 6 characters.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setupTestDB()
			router := setupTestRouter(db, nil)
			alice := createTestUser(db, "alice", "correct-horse")

			w := doRequest(router, "POST", "/register", tt.form, nil)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.expected)

			var count int64
			db.Model(&models.User{}).Count(&count)
			assert.Equal(t, int64(1), count)
			assert.Equal(t, alice.PasswordHash, reload(t, db, alice.ID).PasswordHash)
		})
	}
}

func TestChangePasswordHandler(t *testing.T) {
	db := setupTestDB()
	router := setupTestRouter(db, nil)
	admin := createTestUser(db, "admin", "admin123")
	cookies := login(router, "admin", "admin123").Result().Cookies()

	w := doRequest(router, "POST", "/change_password", url.Values{
		"current_password": {"admin123"},
		"new_password":     {"s3cure-pass"},
		"confirm_password": {"s3cure-pass"},
	}, cookies)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
	assert.True(t, reload(t, db, admin.ID).PasswordChanged)

	assert.Equal(t, http.StatusUnauthorized, login(router, "admin", "admin123").Code)
	assert.Equal(t, "/", login(router, "admin", "s3cure-pass").Header().Get("Location"))
}

func TestChangePasswordHandler_WrongCurrent(t *testing.T) {
	db := setupTestDB()
	router := setupTestRouter(db, nil)
	user := createTestUser(db, "alice", "correct-horse")
	cookies := login(router, "alice", "correct-horse").Result().Cookies()

	w := doRequest(router, "POST", "/change_password", url.Values{
		"current_password": {"nope"},
		"new_password":     {"s3cure-pass"},
		"confirm_password": {"s3cure-pass"},
	}, cookies)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "The current password is incorrect.")
	assert.Equal(t, user.PasswordHash, reload(t, db, user.ID).PasswordHash)
}

func TestChangePasswordHandler_RequiresLogin(t *testing.T) {
	db := setupTestDB()
	router := setupTestRouter(db, nil)

	w := doRequest(router, "GET", "/change_password", nil, nil)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestLogoutHandler(t *testing.T) {
	db := setupTestDB()
	router := setupTestRouter(db, nil)
	createTestUser(db, "alice", "correct-horse")
	cookies := login(router, "alice", "correct-horse").Result().Cookies()

	w := doRequest(router, "GET", "/logout", nil, cookies)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	w = doRequest(router, "GET", "/", nil, w.Result().Cookies())
	assert.Equal(t, "anonymous", w.Body.String())
}

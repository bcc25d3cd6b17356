package site

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/YuHyungmin1226/flask-sns-app/cache"
	"github.com/YuHyungmin1226/flask-sns-app/common"
	"github.com/YuHyungmin1226/flask-sns-app/models"
)

const pingMessage = "SNS is running!"

// PostSummary is the public shape of a post in /api/posts.
type PostSummary struct {
	ID           uint   `json:"id"`
	Content      string `json:"content"`
	Author       string `json:"author"`
	CreatedAt    string `json:"created_at"`
	CommentCount int64  `json:"comment_count"`
}

type SiteModule struct {
	db          *gorm.DB
	loc         *time.Location
	corsOrigins []string
	now         func() time.Time
}

func NewSiteModule(db *gorm.DB, loc *time.Location, corsOrigins []string) *SiteModule {
	if loc == nil {
		loc = time.UTC
	}
	return &SiteModule{
		db:          db,
		loc:         loc,
		corsOrigins: corsOrigins,
		now:         time.Now,
	}
}

func (s *SiteModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/ping", s.ping)

	api := router.Group("/api")
	api.Use(s.cors(), cache.ETag())
	{
		api.GET("/posts", s.listPosts)
		// preflight is answered by the cors middleware
		api.OPTIONS("/posts", func(*gin.Context) {})
	}
}

func (s *SiteModule) cors() gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "If-None-Match"},
		ExposeHeaders: []string{"Content-Length", "ETag"},
		MaxAge:        12 * time.Hour,
	}
	if len(s.corsOrigins) == 0 || (len(s.corsOrigins) == 1 && s.corsOrigins[0] == "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = s.corsOrigins
	}
	return cors.New(config)
}

func (s *SiteModule) ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": s.now().In(s.loc).Format(time.RFC3339),
		"message":   pingMessage,
	})
}

// publicSummaries lists public posts newest first with their comment counts,
// in one query whatever the number of posts.
func (s *SiteModule) publicSummaries() ([]PostSummary, error) {
	var rows []struct {
		ID           uint
		Content      string
		Author       string
		CreatedAt    time.Time
		CommentCount int64
	}
	err := s.db.Model(&models.Post{}).
		Select("posts.id, posts.content, COALESCE(users.username, '') AS author, posts.created_at, " +
			"(SELECT COUNT(*) FROM comments WHERE comments.post_id = posts.id) AS comment_count").
		Joins("LEFT JOIN users ON users.id = posts.author_id").
		Where("posts.is_public = ?", true).
		Order("posts.created_at DESC, posts.id DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]PostSummary, 0, len(rows))
	for _, r := range rows {
		summaries = append(summaries, PostSummary{
			ID:           r.ID,
			Content:      r.Content,
			Author:       r.Author,
			CreatedAt:    r.CreatedAt.In(s.loc).Format(time.RFC3339),
			CommentCount: r.CommentCount,
		})
	}
	return summaries, nil
}

func (s *SiteModule) listPosts(c *gin.Context) {
	summaries, err := s.publicSummaries()
	if err != nil {
		log.Printf("[%s] api posts: %v", common.RequestID(c), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load posts"})
		return
	}

	c.JSON(http.StatusOK, summaries)
}

package feed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/YuHyungmin1226/flask-sns-app/common"
	"github.com/YuHyungmin1226/flask-sns-app/events"
	"github.com/YuHyungmin1226/flask-sns-app/models"
	"github.com/YuHyungmin1226/flask-sns-app/preview"
)

var (
	ErrEmptyContent = errors.New("content is empty")
	ErrNotOwner     = errors.New("not the author of this post")
	ErrForbidden    = errors.New("post is private")
)

type FeedModule struct {
	db        *gorm.DB
	enricher  *preview.Enricher
	publisher events.Publisher
}

func NewFeedModule(db *gorm.DB, enricher *preview.Enricher, publisher events.Publisher) *FeedModule {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &FeedModule{
		db:        db,
		enricher:  enricher,
		publisher: publisher,
	}
}

func (f *FeedModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/", f.index)
	router.GET("/profile", common.RequireAuth, f.profile)

	postGroup := router.Group("/post")
	{
		postGroup.GET("/new", common.RequireAuth, f.newPost)
		postGroup.POST("/new", common.RequireAuth, f.savePost)
		postGroup.GET("/:id", f.viewPost)
		postGroup.POST("/:id/comment", common.RequireAuth, f.addComment)
		postGroup.POST("/:id/delete", common.RequireAuth, f.deletePost)
	}
}

// createPost stores a post together with the previews of the URLs in its
// content. Preview failures never prevent the post from being created.
func (f *FeedModule) createPost(ctx context.Context, author *models.User, content string, isPublic bool) (*models.Post, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}

	found := f.enricher.Enrich(ctx, content)
	previews := make([]models.LinkPreview, 0, len(found))
	for i, p := range found {
		previews = append(previews, models.LinkPreview{
			Position:    i,
			URL:         p.URL,
			Title:       p.Title,
			Description: p.Description,
			Image:       p.Image,
		})
	}

	post := models.Post{
		Content:     content,
		AuthorID:    author.ID,
		IsPublic:    isPublic,
		Previews:    previews,
		Attachments: models.Attachments{},
	}
	if err := f.db.Create(&post).Error; err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}

	if err := f.publisher.PostCreated(&post); err != nil {
		log.Printf("publish post %d: %v", post.ID, err)
	}
	return &post, nil
}

func (f *FeedModule) getPost(id uint) (*models.Post, error) {
	var post models.Post
	err := f.db.
		Preload("Author").
		Preload("Previews", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("Comments.Author").
		First(&post, id).Error
	return &post, err
}

// canView reports whether viewer may read post; private posts are visible
// to their author only.
func canView(post *models.Post, viewer *models.User) bool {
	if post.IsPublic {
		return true
	}
	return viewer != nil && viewer.ID == post.AuthorID
}

func (f *FeedModule) listPosts(scope func(*gorm.DB) *gorm.DB) ([]models.Post, error) {
	var posts []models.Post
	err := f.db.Scopes(scope).
		Preload("Author").
		Preload("Previews", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Comments").
		Order("created_at DESC, id DESC").
		Find(&posts).Error
	return posts, err
}

func (f *FeedModule) publicPosts() ([]models.Post, error) {
	return f.listPosts(func(db *gorm.DB) *gorm.DB {
		return db.Where("is_public = ?", true)
	})
}

func (f *FeedModule) postsByAuthor(userID int) ([]models.Post, error) {
	return f.listPosts(func(db *gorm.DB) *gorm.DB {
		return db.Where("author_id = ?", userID)
	})
}

// removePost deletes a post with its comments and previews.
func (f *FeedModule) removePost(postID uint, user *models.User) error {
	return f.db.Transaction(func(tx *gorm.DB) error {
		var post models.Post
		if err := tx.First(&post, postID).Error; err != nil {
			return err
		}
		if post.AuthorID != user.ID {
			return ErrNotOwner
		}
		return DeletePostTree(tx, post.ID)
	})
}

// DeletePostTree removes a post and everything it owns. Callers run it
// inside a transaction.
func DeletePostTree(tx *gorm.DB, postID uint) error {
	if err := tx.Where("post_id = ?", postID).Delete(&models.Comment{}).Error; err != nil {
		return fmt.Errorf("delete comments: %w", err)
	}
	if err := tx.Where("post_id = ?", postID).Delete(&models.LinkPreview{}).Error; err != nil {
		return fmt.Errorf("delete previews: %w", err)
	}
	if err := tx.Delete(&models.Post{}, postID).Error; err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}

func (f *FeedModule) createComment(postID uint, user *models.User, content string) (*models.Comment, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}

	var post models.Post
	if err := f.db.First(&post, postID).Error; err != nil {
		return nil, err
	}
	if !canView(&post, user) {
		return nil, ErrForbidden
	}

	comment := models.Comment{
		Content:  content,
		AuthorID: user.ID,
		PostID:   post.ID,
	}
	if err := f.db.Create(&comment).Error; err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	return &comment, nil
}

func (f *FeedModule) index(c *gin.Context) {
	if common.CurrentUser(c) == nil {
		c.Redirect(http.StatusFound, "/login")
		return
	}

	posts, err := f.publicPosts()
	if err != nil {
		log.Printf("[%s] list public posts: %v", common.RequestID(c), err)
		common.RenderError(c, http.StatusInternalServerError, "Could not load posts.")
		return
	}

	common.Render(c, http.StatusOK, "index.html", gin.H{
		"posts": posts,
	})
}

func (f *FeedModule) profile(c *gin.Context) {
	user := common.CurrentUser(c)

	posts, err := f.postsByAuthor(user.ID)
	if err != nil {
		log.Printf("[%s] list posts of %d: %v", common.RequestID(c), user.ID, err)
		common.RenderError(c, http.StatusInternalServerError, "Could not load posts.")
		return
	}

	common.Render(c, http.StatusOK, "profile.html", gin.H{
		"title": user.Username,
		"posts": posts,
	})
}

func (f *FeedModule) newPost(c *gin.Context) {
	common.Render(c, http.StatusOK, "new_post.html", gin.H{
		"isPublic": true,
	})
}

func (f *FeedModule) savePost(c *gin.Context) {
	user := common.CurrentUser(c)
	content := c.PostForm("content")
	isPublic := c.PostForm("is_public") == "on"

	_, err := f.createPost(c.Request.Context(), user, content, isPublic)
	if err != nil {
		if errors.Is(err, ErrEmptyContent) {
			common.Render(c, http.StatusBadRequest, "new_post.html", gin.H{
				"error":    "Please write something first.",
				"content":  content,
				"isPublic": isPublic,
			})
			return
		}
		log.Printf("[%s] save post: %v", common.RequestID(c), err)
		common.RenderError(c, http.StatusInternalServerError, "Could not save the post.")
		return
	}

	common.AddFlash(c, "success", "Your post has been published.")
	c.Redirect(http.StatusFound, "/")
}

func (f *FeedModule) viewPost(c *gin.Context) {
	id, ok := postID(c)
	if !ok {
		return
	}

	post, err := f.getPost(id)
	if err != nil {
		f.lookupFailed(c, err)
		return
	}

	if !canView(post, common.CurrentUser(c)) {
		common.AddFlash(c, "error", "You do not have permission to view this post.")
		c.Redirect(http.StatusFound, "/")
		return
	}

	common.Render(c, http.StatusOK, "view_post.html", gin.H{
		"post": post,
	})
}

func (f *FeedModule) addComment(c *gin.Context) {
	id, ok := postID(c)
	if !ok {
		return
	}

	_, err := f.createComment(id, common.CurrentUser(c), c.PostForm("content"))
	switch {
	case err == nil:
		common.AddFlash(c, "success", "Comment added.")
	case errors.Is(err, ErrEmptyContent):
		common.AddFlash(c, "error", "Please enter a comment.")
	case errors.Is(err, ErrForbidden):
		common.AddFlash(c, "error", "You do not have permission to view this post.")
		c.Redirect(http.StatusFound, "/")
		return
	default:
		f.lookupFailed(c, err)
		return
	}

	c.Redirect(http.StatusFound, fmt.Sprintf("/post/%d", id))
}

func (f *FeedModule) deletePost(c *gin.Context) {
	id, ok := postID(c)
	if !ok {
		return
	}

	err := f.removePost(id, common.CurrentUser(c))
	switch {
	case err == nil:
		common.AddFlash(c, "success", "The post has been deleted.")
	case errors.Is(err, ErrNotOwner):
		common.AddFlash(c, "error", "You can only delete your own posts.")
	default:
		f.lookupFailed(c, err)
		return
	}

	c.Redirect(http.StatusFound, "/")
}

func (f *FeedModule) lookupFailed(c *gin.Context, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		common.RenderError(c, http.StatusNotFound, "Post not found.")
		return
	}
	log.Printf("[%s] post lookup: %v", common.RequestID(c), err)
	common.RenderError(c, http.StatusInternalServerError, "Something went wrong.")
}

func postID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.RenderError(c, http.StatusNotFound, "Post not found.")
		return 0, false
	}
	return uint(id), true
}

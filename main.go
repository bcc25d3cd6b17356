package main

import (
	"log"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/YuHyungmin1226/flask-sns-app/account"
	"github.com/YuHyungmin1226/flask-sns-app/admin"
	"github.com/YuHyungmin1226/flask-sns-app/audit"
	"github.com/YuHyungmin1226/flask-sns-app/common"
	"github.com/YuHyungmin1226/flask-sns-app/database"
	"github.com/YuHyungmin1226/flask-sns-app/events"
	"github.com/YuHyungmin1226/flask-sns-app/feed"
	"github.com/YuHyungmin1226/flask-sns-app/preview"
	"github.com/YuHyungmin1226/flask-sns-app/site"
	"github.com/YuHyungmin1226/flask-sns-app/web"
)

func main() {
	cfg := common.LoadConfig()
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	db, err := common.ConnectDb(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}

	if err := database.RunMigrations(db); err != nil {
		log.Fatal("Failed to run migrations: ", err)
	}

	if _, err := database.EnsureAdmin(db, common.ReservedAdminName, cfg.AdminPassword); err != nil {
		log.Printf("Could not create the admin account: %v", err)
	}

	router := gin.New()
	// with no TRUSTED_PROXIES, forwarding headers are ignored
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Fatal("Invalid TRUSTED_PROXIES: ", err)
	}
	router.Use(gin.Logger(), gin.Recovery(), common.RequestIDMiddleware())

	store := cookie.NewStore([]byte(cfg.SecretKey))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   false,
	})
	router.Use(sessions.Sessions("sns-session", store))
	router.Use(common.LoadUser(db))

	router.SetHTMLTemplate(web.Templates(cfg.Location()))

	auditModule := audit.NewAuditModule(db)

	accountModule := account.NewAccountModule(db, account.NewGuard(db, cfg.AdminPassword), auditModule)
	accountModule.RegisterRoutes(router)

	publisher := events.Connect(cfg.NatsURL)
	defer publisher.Close()

	enricher := preview.NewEnricher(preview.NewHTTPFetcher(cfg.PreviewTimeout))
	feedModule := feed.NewFeedModule(db, enricher, publisher)
	feedModule.RegisterRoutes(router)

	adminModule := admin.NewAdminModule(db, auditModule)
	adminModule.RegisterRoutes(router)

	siteModule := site.NewSiteModule(db, cfg.Location(), cfg.CorsOrigins)
	siteModule.RegisterRoutes(router)

	log.Printf("Starting server on port %s...", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server: ", err)
	}
}

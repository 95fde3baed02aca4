package api

import (
	"fmt"
	"net/http"
	"time"

	"lagerverwaltung/server/internal/config"
	"lagerverwaltung/server/internal/services"
	"lagerverwaltung/server/internal/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Dependencies are the services the HTTP layer is built from.
type Dependencies struct {
	Config   *config.Config
	Logger   *zap.Logger
	Cache    *utils.RedisClient
	Hub      *Hub
	Settings *services.SettingsService
	Pricing  *services.PricingService
	Articles *services.ArticleService
	Stock    *services.StockService
	Orders   *services.OrderService
	Labels   *services.LabelService
	Importer *services.ImportService
	Exporter *services.ExportService
	Backups  *services.BackupService
	Cleanup  *services.CleanupService
	Users    *services.UserService
	Messages *services.MessageService
	Activity *services.ActivityService
}

// NewRouter builds the gin engine with all routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	cfg := deps.Config
	if cfg.Environment != "development" && gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	tmpl, err := loadTemplates()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	r := gin.New()
	r.SetHTMLTemplate(tmpl)
	r.MaxMultipartMemory = int64(cfg.UploadMaxMB) << 20

	// Health check answers before sessions and auth
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "lagerverwaltung",
			"clients": deps.Hub.ClientsCount(),
		})
	})

	r.Use(gin.Recovery())
	r.Use(RequestLogger(deps.Logger))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders:   []string{"Content-Length", "Content-Disposition", "X-Request-ID"},
		MaxAge:          12 * time.Hour,
	}))

	store := cookie.NewStore([]byte(cfg.SecretKey))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int((7 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   cfg.Environment == "production",
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))

	auth := NewAuthMiddleware(deps.Settings, deps.Users, deps.Logger)
	r.Use(auth.LoadUser())
	r.NoRoute(notFound)

	authController := NewAuthController(deps.Users, deps.Settings, deps.Activity, NewLoginLimiter(deps.Cache, deps.Logger), deps.Logger)
	articleController := NewArticleController(deps.Articles, deps.Stock, deps.Activity)
	orderController := NewOrderController(deps.Orders, deps.Articles, deps.Labels, deps.Activity)
	transferController := NewTransferController(deps.Importer, deps.Exporter, deps.Backups, deps.Activity, deps.Logger, cfg.UploadMaxMB)
	settingsController := NewSettingsController(deps.Settings, deps.Pricing, deps.Cleanup, deps.Stock, deps.Users, deps.Activity)
	userController := NewUserController(deps.Users, deps.Activity)
	messageController := NewMessageController(deps.Messages, deps.Users)

	// Login and profile picker
	r.GET("/login", authController.LoginForm)
	r.POST("/login", authController.Login)
	r.GET("/logout", authController.Logout)
	r.GET("/profiles", authController.Profiles)
	r.POST("/profiles/:id", authController.SelectProfile)

	loggedIn := r.Group("/", auth.RequireLogin())
	{
		loggedIn.GET("/", articleController.Index)
		loggedIn.GET("/article/:id/history", articleController.History)
		loggedIn.GET("/export/articles", transferController.ExportArticlesCSV)
		loggedIn.GET("/export/articles.xlsx", transferController.ExportArticlesXLSX)
		loggedIn.GET("/export/movements", transferController.ExportMovements)
	}

	staff := r.Group("/", auth.RequireStaff())
	{
		staff.GET("/article/new", articleController.New)
		staff.POST("/article/new", articleController.Create)
		staff.GET("/article/:id/edit", articleController.Edit)
		staff.POST("/article/:id/edit", articleController.Update)
		staff.GET("/article/:id/delete", articleController.Delete)
		staff.GET("/movement/:id/new", articleController.NewMovement)
		staff.POST("/movement/:id/new", articleController.CreateMovement)
		staff.GET("/inventory", articleController.Inventory)
		staff.POST("/inventory", articleController.SaveInventory)
		staff.GET("/import", transferController.ImportForm)
		staff.POST("/import", transferController.Import)
		staff.GET("/order/:id/label", orderController.Label) // alias of /orders/:id/label
	}

	orders := r.Group("/orders", auth.RequireStaff())
	{
		orders.GET("", orderController.List)
		orders.GET("/dashboard", orderController.Dashboard)
		orders.GET("/new", orderController.New)
		orders.POST("/new", orderController.Create)
		orders.GET("/:id", orderController.Detail)
		orders.GET("/:id/edit", orderController.Edit)
		orders.POST("/:id/edit", orderController.Update)
		orders.POST("/:id/delete", orderController.Delete)
		orders.GET("/:id/label", orderController.Label)
	}

	admin := r.Group("/", auth.RequireAdmin())
	{
		admin.GET("/backup", transferController.Backup)
		admin.POST("/backup/restore", transferController.Restore)
		admin.GET("/settings", settingsController.Show)
		admin.POST("/settings", settingsController.Save)
		admin.POST("/settings/categories", settingsController.SaveCategory)
		admin.POST("/settings/categories/:id/delete", settingsController.DeleteCategory)
		admin.POST("/settings/categories/:id/apply", settingsController.ApplyCategory)
		admin.POST("/settings/endings", settingsController.SaveEnding)
		admin.POST("/settings/endings/:id/delete", settingsController.DeleteEnding)
		admin.POST("/settings/cleanup", settingsController.Cleanup)
		admin.GET("/activity", userController.Activity)
	}

	// User administration only exists with user management enabled
	users := r.Group("/users", auth.RequireUser(), auth.RequireAdmin())
	{
		users.GET("", userController.List)
		users.GET("/new", userController.New)
		users.POST("/new", userController.Create)
		users.GET("/:id/edit", userController.Edit)
		users.POST("/:id/edit", userController.Update)
		users.POST("/:id/delete", userController.Delete)
	}

	account := r.Group("/", auth.RequireUser())
	{
		account.GET("/profile", userController.Profile)
		account.POST("/profile", userController.SaveProfile)
		account.GET("/messages", messageController.Inbox)
		account.GET("/messages/ws", deps.Hub.ServeWS)
		account.GET("/messages/:user_id", messageController.Conversation)
		account.POST("/messages/:user_id", messageController.Send)
	}

	return r, nil
}

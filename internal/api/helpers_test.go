package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"lagerverwaltung/server/internal/config"
	"lagerverwaltung/server/internal/database"
	"lagerverwaltung/server/internal/models"
	"lagerverwaltung/server/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testApp struct {
	t       *testing.T
	db      *gorm.DB
	deps    Dependencies
	router  *gin.Engine
	cookies map[string]*http.Cookie
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Connect(fmt.Sprintf("file:api_%s?mode=memory&cache=shared", name), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	t.Cleanup(func() { _ = database.Close(db) })

	logger := zap.NewNop()
	cfg := &config.Config{SecretKey: "test-secret", Environment: "test", UploadMaxMB: 4}
	settings := services.NewSettingsService(db, nil, logger, false)
	pricing := services.NewPricingService(db)
	messages := services.NewMessageService(db, logger)
	hub := NewHub(logger)
	messages.SetNotifier(hub)

	deps := Dependencies{
		Config:   cfg,
		Logger:   logger,
		Hub:      hub,
		Settings: settings,
		Pricing:  pricing,
		Articles: services.NewArticleService(db, pricing, logger),
		Stock:    services.NewStockService(db, logger),
		Orders:   services.NewOrderService(db, logger),
		Labels:   services.NewLabelService(settings),
		Importer: services.NewImportService(db, pricing, settings, logger),
		Exporter: services.NewExportService(db),
		Backups:  services.NewBackupService(db, logger),
		Cleanup:  services.NewCleanupService(db, logger),
		Users:    services.NewUserService(db, logger),
		Messages: messages,
		Activity: services.NewActivityService(db, logger),
	}
	router, err := NewRouter(deps)
	require.NoError(t, err)
	return &testApp{t: t, db: db, deps: deps, router: router, cookies: make(map[string]*http.Cookie)}
}

// enableUsers switches user management on and creates admin/admin.
func (a *testApp) enableUsers() {
	a.t.Helper()
	ctx := context.Background()
	require.NoError(a.t, a.deps.Settings.SetBool(ctx, services.SettingUserManagement, true))
	_, err := a.deps.Users.EnsureAdmin(ctx)
	require.NoError(a.t, err)
}

func (a *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	for _, c := range a.cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	for _, c := range w.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(a.cookies, c.Name)
			continue
		}
		a.cookies[c.Name] = c
	}
	return w
}

func (a *testApp) get(path string) *httptest.ResponseRecorder {
	return a.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (a *testApp) post(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return a.do(req)
}

func (a *testApp) upload(path, filename string, content []byte) *httptest.ResponseRecorder {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(a.t, err)
	_, err = io.Copy(part, bytes.NewReader(content))
	require.NoError(a.t, err)
	require.NoError(a.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return a.do(req)
}

// follow requests the redirect target of w and returns the rendered page.
func (a *testApp) follow(w *httptest.ResponseRecorder) string {
	a.t.Helper()
	require.Equal(a.t, http.StatusFound, w.Code, w.Body.String())
	return a.get(w.Header().Get("Location")).Body.String()
}

func (a *testApp) login(username, password string) {
	a.t.Helper()
	w := a.post("/login", url.Values{"username": {username}, "password": {password}})
	require.Equal(a.t, http.StatusFound, w.Code)
	require.Equal(a.t, "/", w.Header().Get("Location"))
}

func (a *testApp) seedArticle(sku string, stock, minimum int) *models.Article {
	a.t.Helper()
	article, err := a.deps.Articles.Create(context.Background(), services.ArticleInput{
		Name:         "Artikel " + sku,
		SKU:          sku,
		Stock:        stock,
		MinimumStock: &minimum,
	})
	require.NoError(a.t, err)
	return article
}

func (a *testApp) stockOf(id uint) int {
	a.t.Helper()
	var article models.Article
	require.NoError(a.t, a.db.First(&article, id).Error)
	return article.Stock
}

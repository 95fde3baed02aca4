package api

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"lagerverwaltung/server/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

//go:embed templates/*.html
var templatesFS embed.FS

var berlin = loadLocation("Europe/Berlin")

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

var templateFuncs = template.FuncMap{
	"formatTime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.In(berlin).Format("02.01.2006 15:04")
	},
	"formatDate": func(t time.Time) string {
		return t.In(berlin).Format("02.01.2006")
	},
	"formatPrice": func(v float64) string {
		return strings.Replace(fmt.Sprintf("%.2f €", v), ".", ",", 1)
	},
	"formatDecimal": func(d decimal.Decimal) string {
		return strings.Replace(d.StringFixed(2), ".", ",", 1) + " €"
	},
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
	"derefUint": func(v *uint) string {
		if v == nil {
			return ""
		}
		return fmt.Sprint(*v)
	},
	"lines": func(s *string) []string {
		if s == nil {
			return nil
		}
		return strings.Split(*s, "\n")
	},
	"address": func(s *string) [2]string {
		street, cityZip := services.SplitAddress(s)
		return [2]string{street, cityZip}
	},
	"same": func(a, b interface{}) bool {
		return fmt.Sprint(a) == fmt.Sprint(b)
	},
}

// loadTemplates parses the embedded page templates. Every page is its own
// file; layout.html defines the shared header and footer.
func loadTemplates() (*template.Template, error) {
	return template.New("").Funcs(templateFuncs).ParseFS(templatesFS, "templates/*.html")
}

// render executes a page with the data every page needs.
func render(c *gin.Context, status int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	data["CurrentUser"] = currentUser(c)
	data["UserManagement"] = userManagementEnabled(c)
	data["Flashes"] = popFlashes(c)
	data["Path"] = c.Request.URL.Path
	c.HTML(status, name, data)
}

func notFound(c *gin.Context) {
	render(c, http.StatusNotFound, "error.html", gin.H{"Title": "Nicht gefunden", "Message": "Die angeforderte Seite existiert nicht."})
}

func serverError(c *gin.Context, err error) {
	_ = c.Error(err)
	render(c, http.StatusInternalServerError, "error.html", gin.H{"Title": "Fehler", "Message": "Interner Fehler, bitte später erneut versuchen."})
}

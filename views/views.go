// Package views renders the portal's HTML pages from embedded templates.
package views

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sort"
	"time"

	"github.com/upb/realm-portal/keycloak"
	"github.com/upb/realm-portal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

const (
	pageLogin = "login.html"
	pageHome  = "home.html"
	pageAdmin = "admin.html"
)

// Page carries the fields the shared layout reads
type Page struct {
	Title   string
	User    keycloak.Claims
	IsAdmin bool
}

// LoginPage is the data for the login form
type LoginPage struct {
	Page
	Error    string
	Username string
}

// ClaimRow is one rendered token claim
type ClaimRow struct {
	Name  string
	Value string
}

// UserPage is the data for pages shown to an authenticated user
type UserPage struct {
	Page
	DisplayName string
	Email       string
	Roles       []string
	ExpiresAt   time.Time
	Claims      []ClaimRow
}

// AdminPage is the data for the admin dashboard
type AdminPage struct {
	UserPage
	AdminRole    string
	AuditEnabled bool
	Events       []*models.AuthEvent
}

// Renderer executes the page templates
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer parses every page together with the shared layout
func NewRenderer() (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template)}
	for _, name := range []string{pageLogin, pageHome, pageAdmin} {
		tmpl, err := template.New(name).ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.pages[name] = tmpl
	}
	return r, nil
}

// Login renders the login form with the given status code
func (r *Renderer) Login(w http.ResponseWriter, status int, page LoginPage) error {
	if page.Title == "" {
		page.Title = "Login"
	}
	return r.render(w, status, pageLogin, page)
}

func (r *Renderer) Home(w http.ResponseWriter, page UserPage) error {
	return r.render(w, http.StatusOK, pageHome, page)
}

func (r *Renderer) Admin(w http.ResponseWriter, page AdminPage) error {
	return r.render(w, http.StatusOK, pageAdmin, page)
}

// render executes into a buffer first so a template error never leaves a half-written page
func (r *Renderer) render(w http.ResponseWriter, status int, name string, data interface{}) error {
	tmpl, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("execute template %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// NewUserPage builds page data from verified claims
func NewUserPage(title string, claims keycloak.Claims, adminRole string) UserPage {
	display := claims.Name()
	if display == "" {
		display = claims.Username()
	}
	if display == "" {
		display = claims.Subject()
	}

	return UserPage{
		Page: Page{
			Title:   title,
			User:    claims,
			IsAdmin: claims.HasRole(adminRole),
		},
		DisplayName: display,
		Email:       claims.Email(),
		Roles:       claims.Roles(),
		ExpiresAt:   claims.ExpiresAt().UTC(),
		Claims:      claimRows(claims),
	}
}

func claimRows(claims keycloak.Claims) []ClaimRow {
	names := make([]string, 0, len(claims))
	for name := range claims {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]ClaimRow, 0, len(names))
	for _, name := range names {
		rows = append(rows, ClaimRow{Name: name, Value: formatClaim(claims[name])})
	}
	return rows
}

func formatClaim(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// Static serves the embedded assets; mount it behind http.StripPrefix("/static/", ...)
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}

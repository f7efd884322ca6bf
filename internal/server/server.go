package server

import (
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/testkube/quality-dashboard/internal/charts"
	"github.com/testkube/quality-dashboard/internal/database"
	"github.com/testkube/quality-dashboard/internal/dashboard"
)

//go:embed templates/*.html
var templateFS embed.FS

const maxWindowDays = 365

type Options struct {
	WindowDays int
	Location   *time.Location
	Logger     *logrus.Entry
	// Now overrides the clock, for tests.
	Now func() time.Time
}

type Server struct {
	db         database.Database
	charts     *charts.Generator
	templates  map[string]*template.Template
	windowDays int
	location   *time.Location
	now        func() time.Time
	log        *logrus.Entry
}

func NewServer(db database.Database, opts Options) *Server {
	if opts.WindowDays <= 0 || opts.WindowDays > maxWindowDays {
		opts.WindowDays = dashboard.DefaultWindowDays
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}

	// Each page is parsed together with the layout.
	templates := make(map[string]*template.Template)
	for _, page := range []string{"dashboard.html"} {
		templates[page] = template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/"+page))
	}

	return &Server{
		db:         db,
		charts:     charts.NewGenerator(),
		templates:  templates,
		windowDays: opts.WindowDays,
		location:   opts.Location,
		now:        opts.Now,
		log:        opts.Logger.WithField("component", "server"),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/", s.handleDashboard)

	// Charts
	r.Get("/charts/trend", s.handleTrendChart)
	r.Get("/charts/pass-rate", s.handlePassRateChart)
	r.Get("/charts/suites", s.handleSuiteChart)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/dashboard", s.handleDashboardAPI)
		r.Get("/failure-analysis", s.handleFailureAnalysisAPI)
		r.Post("/classify", s.handleClassifyAPI)

		r.Get("/results", s.handleListResultsAPI)
		r.Post("/results", s.handleIngestAPI)
		r.Get("/results/{id}", s.handleGetResultAPI)
		r.Get("/results/{id}/analysis", s.handleResultAnalysisAPI)

		r.Get("/tests/{historyId}/metrics", s.handleTestMetricsAPI)
		r.Get("/suites/{name}", s.handleSuiteAPI)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("Handled request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) render(w http.ResponseWriter, page string, data interface{}) {
	t, ok := s.templates[page]
	if !ok {
		s.log.WithField("page", page).Error("Template not found")
		http.Error(w, "Page not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(w, "layout", data); err != nil {
		s.log.WithError(err).WithField("page", page).Error("Template error")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

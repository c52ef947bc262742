package httpserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	appaudit "github.com/bryanwahyu/adguardian/internal/application/audit"
	domai "github.com/bryanwahyu/adguardian/internal/domain/ai"
	domain "github.com/bryanwahyu/adguardian/internal/domain/audit"
	"github.com/bryanwahyu/adguardian/internal/infra/ai/prompt"
	"github.com/bryanwahyu/adguardian/internal/middleware"
)

const maxNameRunes = 100

// Options carries the HTTP-level settings; zero values disable the matching feature.
type Options struct {
	// APIKeys maps API key to tenant.
	APIKeys           map[string]string
	RequestsPerMinute int
	AllowedOrigins    []string
	MaxBodyBytes      int64
	Metrics           *middleware.Metrics
	Health            map[string]middleware.HealthChecker
	Logger            logrus.FieldLogger
}

type Router struct {
	svc *appaudit.Service
	log logrus.FieldLogger
}

// errBadRequest marks malformed input caught at the API boundary.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func NewRouter(svc *appaudit.Service, opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	r := &Router{svc: svc, log: log}
	mux := chi.NewRouter()

	mux.Use(chimw.Recoverer)
	mux.Use(middleware.Logging(log))
	if opts.Metrics != nil {
		mux.Use(opts.Metrics.Middleware)
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition", "Retry-After"},
		MaxAge:         300,
	}))

	mux.Get("/health", middleware.LivenessHandler)
	mux.Get("/healthz", middleware.HealthHandler(opts.Health))
	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics.Handler())
	}

	mux.Route("/v1", func(v1 chi.Router) {
		v1.Use(middleware.BodyLimit(opts.MaxBodyBytes))
		v1.Get("/regulations", r.wrap(r.handleRegulations))

		v1.Route("/{tenant}", func(rt chi.Router) {
			rt.Use(middleware.APIKeyAuth(opts.APIKeys))
			rt.Use(middleware.RequireValidTenant)
			rt.Use(middleware.RateLimitMiddleware(middleware.NewRateLimiter(opts.RequestsPerMinute)))

			rt.Post("/sessions", r.wrap(r.handleOpenSession))
			rt.Route("/sessions/{sid}", func(st chi.Router) {
				st.Post("/analyze", r.wrap(r.handleAnalyze))
				st.Post("/reaudit", r.wrap(r.handleReaudit))
				st.Get("/chat", r.wrap(r.handleTranscript))
				st.Post("/chat", r.wrap(r.handleChat))
				st.Post("/history/{id}/load", r.wrap(r.handleLoadHistory))
				st.Get("/discovery", r.wrap(r.handleDiscovery))
			})

			rt.Get("/history", r.wrap(r.handleHistory))
			rt.Delete("/history", r.wrap(r.handleClearHistory))
			rt.Get("/history/{id}", r.wrap(r.handleHistoryItem))
			rt.Get("/history/{id}/complaint.pdf", r.wrap(r.handleComplaintPDF))
			rt.Delete("/history/{id}", r.wrap(r.handleDeleteHistory))

			rt.Get("/complainees", r.wrap(r.handleLibrary))
			rt.Post("/complainees", r.wrap(r.handleAddComplainee))
			rt.Delete("/complainees/{id}", r.wrap(r.handleDeleteComplainee))
		})
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		status := statusFor(err)
		if status >= 500 {
			r.log.WithError(err).WithField("path", req.URL.Path).Error("request failed")
		}
		_ = writeJSON(w, status, map[string]string{"error": err.Error()})
	}
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	var mbe *http.MaxBytesError
	switch {
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, appaudit.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest),
		errors.Is(err, domain.ErrEmptyRequest),
		errors.Is(err, domain.ErrTooManyImages),
		errors.Is(err, domain.ErrInvalidMode),
		errors.Is(err, domain.ErrEmptyName),
		errors.Is(err, domain.ErrEmptyMessage),
		errors.Is(err, appaudit.ErrInvalidSettings),
		errors.Is(err, appaudit.ErrNothingToReaudit),
		errors.Is(err, appaudit.ErrNoAnchor),
		errors.Is(err, appaudit.ErrUnknownCategory),
		errors.Is(err, prompt.ErrBadImage):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrComplaineeExists):
		return http.StatusConflict
	case errors.Is(err, appaudit.ErrReportsDisabled):
		return http.StatusNotImplemented
	case errors.Is(err, domai.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	}
	switch domai.KindOf(err) {
	case domai.KindAuth:
		return http.StatusUnauthorized
	case domai.KindNetwork:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func decode(req *http.Request, v any) error {
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return err
		}
		return badRequest("invalid json body: %v", err)
	}
	return nil
}

// idParam returns a validated uuid path parameter.
func idParam(req *http.Request, name string) (string, error) {
	id := chi.URLParam(req, name)
	if err := middleware.ValidateID(id); err != nil {
		return "", badRequest("%s: %v", name, err)
	}
	return id, nil
}

//
// ==== REFERENCE ====
//

// GET /v1/regulations
func (r *Router) handleRegulations(w http.ResponseWriter, req *http.Request) error {
	cats, err := appaudit.Regulations()
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, cats)
}

//
// ==== SESSIONS ====
//

// POST /v1/{tenant}/sessions
// Body: {"provider"?, "apiKey"?, "baseUrl"?, "model"?}; an empty body uses server defaults.
func (r *Router) handleOpenSession(w http.ResponseWriter, req *http.Request) error {
	var body domai.Settings
	if req.ContentLength != 0 {
		if err := decode(req, &body); err != nil {
			return err
		}
	}
	if body.BaseURL != "" {
		if err := validateBaseURL(body.BaseURL); err != nil {
			return err
		}
	}
	view, err := r.svc.OpenSession(chi.URLParam(req, "tenant"), body)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, view)
}

// POST /v1/{tenant}/sessions/{sid}/analyze
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	sid, err := idParam(req, "sid")
	if err != nil {
		return err
	}
	var body domain.AnalysisRequest
	if err := decode(req, &body); err != nil {
		return err
	}
	body.Text = middleware.SanitizeString(body.Text)
	if body.SourceURL != "" {
		if err := middleware.ValidateURL(body.SourceURL); err != nil {
			return badRequest("sourceUrl: %v", err)
		}
	}
	out, err := r.svc.Analyze(req.Context(), chi.URLParam(req, "tenant"), sid, body)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, out)
}

// POST /v1/{tenant}/sessions/{sid}/reaudit
func (r *Router) handleReaudit(w http.ResponseWriter, req *http.Request) error {
	sid, err := idParam(req, "sid")
	if err != nil {
		return err
	}
	out, err := r.svc.Reaudit(req.Context(), chi.URLParam(req, "tenant"), sid)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, out)
}

// GET /v1/{tenant}/sessions/{sid}/chat
func (r *Router) handleTranscript(w http.ResponseWriter, req *http.Request) error {
	sid, err := idParam(req, "sid")
	if err != nil {
		return err
	}
	msgs, err := r.svc.Transcript(chi.URLParam(req, "tenant"), sid)
	if err != nil {
		return err
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	return writeJSON(w, http.StatusOK, msgs)
}

// POST /v1/{tenant}/sessions/{sid}/chat
// Body: {"text": "..."}
func (r *Router) handleChat(w http.ResponseWriter, req *http.Request) error {
	sid, err := idParam(req, "sid")
	if err != nil {
		return err
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := decode(req, &body); err != nil {
		return err
	}
	reply, err := r.svc.Chat(req.Context(), chi.URLParam(req, "tenant"), sid, middleware.SanitizeString(body.Text))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, reply)
}

// POST /v1/{tenant}/sessions/{sid}/history/{id}/load
func (r *Router) handleLoadHistory(w http.ResponseWriter, req *http.Request) error {
	sid, err := idParam(req, "sid")
	if err != nil {
		return err
	}
	id, err := idParam(req, "id")
	if err != nil {
		return err
	}
	item, err := r.svc.LoadHistory(req.Context(), chi.URLParam(req, "tenant"), sid, id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, item)
}

// GET /v1/{tenant}/sessions/{sid}/discovery?category=MEDICAL
func (r *Router) handleDiscovery(w http.ResponseWriter, req *http.Request) error {
	sid, err := idParam(req, "sid")
	if err != nil {
		return err
	}
	items, err := r.svc.Discover(req.Context(), chi.URLParam(req, "tenant"), sid, req.URL.Query().Get("category"))
	if err != nil {
		return err
	}
	if items == nil {
		items = []domain.DiscoveryItem{}
	}
	return writeJSON(w, http.StatusOK, items)
}

//
// ==== HISTORY ====
//

// GET /v1/{tenant}/history
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	list, err := r.svc.History(req.Context(), chi.URLParam(req, "tenant"))
	if err != nil {
		return err
	}
	if list == nil {
		list = []*domain.HistoryItem{}
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/{tenant}/history/{id}
func (r *Router) handleHistoryItem(w http.ResponseWriter, req *http.Request) error {
	id, err := idParam(req, "id")
	if err != nil {
		return err
	}
	item, err := r.svc.HistoryItem(req.Context(), chi.URLParam(req, "tenant"), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, item)
}

// GET /v1/{tenant}/history/{id}/complaint.pdf
func (r *Router) handleComplaintPDF(w http.ResponseWriter, req *http.Request) error {
	id, err := idParam(req, "id")
	if err != nil {
		return err
	}
	pdf, _, err := r.svc.ComplaintPDF(req.Context(), chi.URLParam(req, "tenant"), id)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="complaint-%s.pdf"`, id))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	_, err = w.Write(pdf)
	return err
}

// DELETE /v1/{tenant}/history/{id}
func (r *Router) handleDeleteHistory(w http.ResponseWriter, req *http.Request) error {
	id, err := idParam(req, "id")
	if err != nil {
		return err
	}
	if err := r.svc.DeleteHistory(req.Context(), chi.URLParam(req, "tenant"), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// DELETE /v1/{tenant}/history
func (r *Router) handleClearHistory(w http.ResponseWriter, req *http.Request) error {
	if err := r.svc.ClearHistory(req.Context(), chi.URLParam(req, "tenant")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

//
// ==== LIBRARY ====
//

// GET /v1/{tenant}/complainees
func (r *Router) handleLibrary(w http.ResponseWriter, req *http.Request) error {
	list, err := r.svc.Library(req.Context(), chi.URLParam(req, "tenant"))
	if err != nil {
		return err
	}
	if list == nil {
		list = []*domain.Complainee{}
	}
	return writeJSON(w, http.StatusOK, list)
}

// POST /v1/{tenant}/complainees
// Body: {"name": "...", "note"?: "..."}
func (r *Router) handleAddComplainee(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Name string `json:"name"`
		Note string `json:"note"`
	}
	if err := decode(req, &body); err != nil {
		return err
	}
	name := middleware.SanitizeString(body.Name)
	if err := middleware.ValidateNameLength(name, maxNameRunes); err != nil {
		return badRequest("%v", err)
	}
	c, err := r.svc.AddComplainee(req.Context(), chi.URLParam(req, "tenant"), name, middleware.SanitizeString(body.Note))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, c)
}

// DELETE /v1/{tenant}/complainees/{id}
func (r *Router) handleDeleteComplainee(w http.ResponseWriter, req *http.Request) error {
	id, err := idParam(req, "id")
	if err != nil {
		return err
	}
	if err := r.svc.DeleteComplainee(req.Context(), chi.URLParam(req, "tenant"), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// validateBaseURL checks shape only; private hosts are allowed for model gateways.
func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return badRequest("baseUrl must be an absolute http(s) url")
	}
	return nil
}

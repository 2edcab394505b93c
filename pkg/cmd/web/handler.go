package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/igolaizola/goatmusic/pkg/filestore"
	"github.com/igolaizola/goatmusic/pkg/metrics"
	"github.com/igolaizola/goatmusic/pkg/musicapi"
	"github.com/igolaizola/goatmusic/pkg/qr"
	"github.com/igolaizola/goatmusic/pkg/song"
	"github.com/igolaizola/goatmusic/pkg/storage"
	"github.com/igolaizola/goatmusic/pkg/survey"
)

const defaultFilename = "track.mp3"

var unsafeFilename = regexp.MustCompile(`[^\w.-]`)

type Server struct {
	songs       *song.Service
	surveys     *survey.Service
	tasks       *storage.Store
	archive     *filestore.Store
	metrics     *metrics.Metrics
	client      *http.Client
	publicURL   string
	credentials map[string]string
	static      string
	timeout     time.Duration
	debug       bool
}

type ServerConfig struct {
	Songs       *song.Service
	Surveys     *survey.Service
	Tasks       *storage.Store
	Archive     *filestore.Store
	Metrics     *metrics.Metrics
	Client      *http.Client
	PublicURL   string
	Credentials map[string]string
	Static      string
	Timeout     time.Duration
	Debug       bool
}

func NewServer(cfg *ServerConfig) *Server {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &Server{
		songs:       cfg.Songs,
		surveys:     cfg.Surveys,
		tasks:       cfg.Tasks,
		archive:     cfg.Archive,
		metrics:     cfg.Metrics,
		client:      client,
		publicURL:   strings.TrimRight(cfg.PublicURL, "/"),
		credentials: cfg.Credentials,
		static:      cfg.Static,
		timeout:     timeout,
		debug:       cfg.Debug,
	}
}

// Router returns the http handler with every route mounted.
func (s *Server) Router() http.Handler {
	mux := chi.NewRouter()

	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)
	mux.Use(s.observe)
	if s.debug {
		mux.Use(middleware.Logger)
	}

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", s.metrics.Handler())

	mux.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.timeout))
		r.Post("/api/generate-song", s.generateSong)
		r.Get("/api/get-task", s.getTask)
		r.Get("/api/qr", s.qr)
		if s.surveys != nil {
			r.Post("/api/surveys", s.createSurvey)
		}
	})

	// Downloads stream for as long as the upstream takes.
	mux.Get("/api/download", s.download)
	if s.archive != nil {
		mux.Get("/api/archive/{taskId}", s.archived)
	}

	mux.Group(func(r chi.Router) {
		if len(s.credentials) > 0 {
			r.Use(middleware.BasicAuth("private", s.credentials))
		}
		if s.surveys != nil {
			r.Get("/api/surveys", s.listSurveys)
			r.Get("/api/surveys/count", s.countSurveys)
			r.Get("/api/surveys/export.csv", s.exportSurveys)
			r.Get("/api/surveys/{id}", s.getSurvey)
			r.Delete("/api/surveys/{id}", s.deleteSurvey)
		}
		if s.tasks != nil {
			r.Get("/api/tasks", s.listTasks)
		}
	})

	if s.static != "" {
		mux.Get("/*", http.FileServer(http.Dir(s.static)).ServeHTTP)
	}
	return mux
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveHTTP(r.Method, route, status, time.Since(start))
	})
}

func (s *Server) log(format string, args ...interface{}) {
	if s.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("web: couldn't encode response:", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, &errorResponse{Error: msg})
}

// generateBody mirrors song.Request with pointers so required fields can be
// told apart from empty ones.
type generateBody struct {
	Mode         *string `json:"mode"`
	Model        string  `json:"model"`
	ThemePrompt  string  `json:"themePrompt"`
	Lyrics       string  `json:"lyrics"`
	Style        *string `json:"style"`
	Title        *string `json:"title"`
	NegativeTags string  `json:"negativeTags"`
}

func (b *generateBody) request() (*song.Request, error) {
	var missing []string
	if b.Mode == nil {
		missing = append(missing, "mode")
	}
	if b.Style == nil {
		missing = append(missing, "style")
	}
	if b.Title == nil {
		missing = append(missing, "title")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%s requerido", strings.Join(missing, ", "))
	}
	return &song.Request{
		Mode:         song.Mode(*b.Mode),
		Model:        musicapi.Model(b.Model),
		ThemePrompt:  b.ThemePrompt,
		Lyrics:       b.Lyrics,
		Style:        *b.Style,
		Title:        *b.Title,
		NegativeTags: b.NegativeTags,
	}, nil
}

func (s *Server) generateSong(w http.ResponseWriter, r *http.Request) {
	if !s.songs.Configured() {
		writeError(w, http.StatusInternalServerError, song.ErrConfiguration.Error())
		return
	}
	var body generateBody
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("cuerpo inválido: %v", err))
		return
	}
	req, err := body.request()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	taskID, err := s.songs.Generate(r.Context(), req)
	switch {
	case song.IsClientError(err):
		writeError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), song.ErrValidation.Error()+": "))
		return
	case err != nil:
		log.Println("web: couldn't generate song:", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"taskId": taskID})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("taskId")
	if id == "" {
		writeError(w, http.StatusBadRequest, "taskId requerido")
		return
	}
	v, err := s.songs.Task(r.Context(), id)
	var serr *musicapi.StatusError
	switch {
	case song.IsClientError(err):
		writeError(w, http.StatusBadRequest, "taskId requerido")
		return
	case errors.As(err, &serr):
		writeError(w, serr.Code, serr.Message)
		return
	case err != nil:
		log.Println("web: couldn't get task:", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// SanitizeFilename replaces every character outside [A-Za-z0-9_.-] with an
// underscore.
func SanitizeFilename(name string) string {
	if name == "" {
		name = defaultFilename
	}
	return unsafeFilename.ReplaceAllString(name, "_")
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	src := q.Get("src")
	filename := SanitizeFilename(q.Get("filename"))
	if src == "" {
		http.Error(w, "Missing 'src' query param", http.StatusBadRequest)
		return
	}
	u, err := url.Parse(src)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		http.Error(w, "Invalid 'src' query param", http.StatusBadRequest)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, src, nil)
	if err != nil {
		http.Error(w, "Invalid 'src' query param", http.StatusBadRequest)
		return
	}
	resp, err := s.client.Do(req)
	if err != nil {
		log.Println("web: couldn't download", src, err)
		http.Error(w, "Upstream error (0)", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		http.Error(w, fmt.Sprintf("Upstream error (%d)", resp.StatusCode), http.StatusBadGateway)
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	h.Set("Cache-Control", "no-store")
	h.Set("Access-Control-Expose-Headers", "Content-Disposition")
	if resp.ContentLength > 0 {
		h.Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)
	n, err := io.Copy(w, resp.Body)
	s.metrics.Downloaded(n)
	if err != nil {
		s.log("web: download of %s interrupted after %d bytes: %v", filename, n, err)
	}
}

// archived serves a track copied to the file store. Remote stores redirect to
// a presigned url.
func (s *Server) archived(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskId")
	u, err := s.archive.URL(r.Context(), id)
	if err != nil {
		s.log("web: archived track %s not found: %v", id, err)
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		http.Redirect(w, r, u, http.StatusFound)
		return
	}
	filename := SanitizeFilename(r.URL.Query().Get("filename"))
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
	if err := s.archive.GetMP3(r.Context(), w, id); err != nil {
		log.Println("web: couldn't serve archived track:", err)
	}
}

// downloadURL returns the absolute url of the download endpoint for src.
func (s *Server) downloadURL(r *http.Request, src, filename string) string {
	base := s.publicURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	q := url.Values{}
	q.Set("src", src)
	q.Set("filename", filename)
	return base + "/api/download?" + q.Encode()
}

func (s *Server) qr(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	src := q.Get("src")
	if src == "" {
		writeError(w, http.StatusBadRequest, "Missing 'src' query param")
		return
	}
	filename := q.Get("filename")
	if filename == "" {
		filename = Slugify(q.Get("title")) + ".mp3"
	}
	size, _ := strconv.Atoi(q.Get("size"))
	if size > 2048 {
		size = 2048
	}
	b, err := qr.PNG(s.downloadURL(r, src, filename), size)
	if err != nil {
		log.Println("web: couldn't render qr:", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(b)
}

func (s *Server) createSurvey(w http.ResponseWriter, r *http.Request) {
	var f survey.Form
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&f); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("cuerpo inválido: %v", err))
		return
	}
	rec, err := s.surveys.Create(r.Context(), &f)
	var fe survey.FieldErrors
	switch {
	case errors.As(err, &fe):
		writeJSON(w, http.StatusBadRequest, &errorResponse{
			Error:  "Por favor corrige los errores del formulario",
			Fields: fe,
		})
		return
	case err != nil:
		log.Println("web: couldn't create survey:", err)
		writeError(w, http.StatusInternalServerError, "No se pudo guardar la encuesta. Por favor, intenta nuevamente.")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": rec.ID})
}

func (s *Server) listSurveys(w http.ResponseWriter, r *http.Request) {
	page, size := pageParams(r)
	records, err := s.surveys.List(r.Context(), page, size)
	if err != nil {
		log.Println("web: couldn't list surveys:", err)
		writeError(w, http.StatusInternalServerError, "No se pudieron cargar las encuestas. Por favor, intenta nuevamente.")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func pageParams(r *http.Request) (int, int) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	size, err := strconv.Atoi(r.URL.Query().Get("size"))
	if err != nil || size < 1 {
		size = 100
	}
	if size > 1000 {
		size = 1000
	}
	return page, size
}

type taskItem struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"createdAt"`
	Model          string    `json:"model"`
	Style          string    `json:"style"`
	Title          string    `json:"title"`
	Status         string    `json:"status"`
	AudioURL       string    `json:"audioUrl,omitempty"`
	StreamAudioURL string    `json:"streamAudioUrl,omitempty"`
	ImageURL       string    `json:"imageUrl,omitempty"`
	Duration       float64   `json:"duration,omitempty"`
	Archived       bool      `json:"archived"`
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	page, size := pageParams(r)
	var filters []storage.Filter
	if status := r.URL.Query().Get("status"); status != "" {
		filters = append(filters, storage.Where("status = ?", status))
	}
	tasks, err := s.tasks.ListTasks(r.Context(), page, size, filters...)
	if err != nil {
		log.Println("web: couldn't list tasks:", err)
		writeError(w, http.StatusInternalServerError, "couldn't list tasks")
		return
	}
	items := make([]*taskItem, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, &taskItem{
			ID:             t.ID,
			CreatedAt:      t.CreatedAt,
			Model:          t.Model,
			Style:          t.Style,
			Title:          t.Title,
			Status:         t.Status,
			AudioURL:       t.AudioURL,
			StreamAudioURL: t.StreamAudioURL,
			ImageURL:       t.ImageURL,
			Duration:       t.Duration,
			Archived:       t.Archived,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) getSurvey(w http.ResponseWriter, r *http.Request) {
	rec, err := s.surveys.Get(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "Encuesta no encontrada")
		return
	case err != nil:
		log.Println("web: couldn't get survey:", err)
		writeError(w, http.StatusInternalServerError, "No se pudo obtener la encuesta.")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) deleteSurvey(w http.ResponseWriter, r *http.Request) {
	err := s.surveys.Delete(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "Encuesta no encontrada")
		return
	case err != nil:
		log.Println("web: couldn't delete survey:", err)
		writeError(w, http.StatusInternalServerError, "No se pudo eliminar la encuesta.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) countSurveys(w http.ResponseWriter, r *http.Request) {
	n, err := s.surveys.Count(r.Context())
	if err != nil {
		log.Println("web: couldn't count surveys:", err)
		writeError(w, http.StatusInternalServerError, "No se pudo obtener el conteo de encuestas.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

func (s *Server) exportSurveys(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", survey.Filename(time.Now())))
	if err := s.surveys.Export(r.Context(), w); err != nil {
		log.Println("web: couldn't export surveys:", err)
		http.Error(w, "No se pudieron exportar las encuestas.", http.StatusInternalServerError)
	}
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/simp-lee/republish/reader"
	"github.com/simp-lee/republish/sched"
)

// Server exposes a reader.Handler over HTTP. Every handler call is made on
// the handler's loop.
type Server struct {
	router  chi.Router
	handler *reader.Handler
	loop    *sched.Loop
	log     *slog.Logger
}

// New creates and configures the HTTP server.
func New(h *reader.Handler, loop *sched.Loop, log *slog.Logger) *Server {
	s := &Server{handler: h, loop: loop, log: log}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/book", s.handleBook)
		r.Get("/spread", s.handleSpread)
		r.Post("/next", s.handleTurn(s.handler.NextPage))
		r.Post("/prev", s.handleTurn(s.handler.PrevPage))
		// Section names are archive paths and may contain slashes.
		r.Post("/sections/*", s.handleGoToSection)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type sectionInfo struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Title string `json:"title"`
	State string `json:"state"`
	Pages int    `json:"pages,omitempty"`
}

type bookInfo struct {
	Title      string        `json:"title"`
	Author     string        `json:"author,omitempty"`
	Language   string        `json:"language,omitempty"`
	TotalPages int           `json:"total_pages,omitempty"`
	Sections   []sectionInfo `json:"sections"`
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	var info bookInfo
	err := s.onLoop(r.Context(), func() {
		b := s.handler.Book()
		info = bookInfo{Title: b.Title, Author: b.Author, Language: b.Language}
		info.TotalPages, _ = s.handler.TotalPages()
		for _, sec := range s.handler.Sections() {
			pages, _ := sec.PageCount()
			info.Sections = append(info.Sections, sectionInfo{
				Index: sec.Index(),
				Name:  sec.Name(),
				Title: sec.Title(),
				State: sec.State().String(),
				Pages: pages,
			})
		}
	})
	if err != nil {
		loopError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type pageInfo struct {
	Index int    `json:"index"`
	Blank bool   `json:"blank,omitempty"`
	HTML  string `json:"html"`
}

type spreadInfo struct {
	Section    int         `json:"section"`
	Chapter    string      `json:"chapter"`
	State      string      `json:"state"`
	PageNumber int         `json:"page_number,omitempty"`
	TotalPages int         `json:"total_pages,omitempty"`
	Style      string      `json:"style,omitempty"`
	Slots      []*pageInfo `json:"slots"`
}

// spread snapshots the handler. It must run on the loop.
func (s *Server) spread() spreadInfo {
	h := s.handler
	info := spreadInfo{
		Section: h.Current(),
		Chapter: h.Chapter(),
		State:   h.State().String(),
	}
	info.PageNumber, _ = h.PageNumber()
	info.TotalPages, _ = h.TotalPages()
	if secs := h.Sections(); len(secs) > 0 {
		info.Style = secs[h.Current()].Style()
	}
	for _, p := range h.Slots() {
		if p == nil {
			info.Slots = append(info.Slots, nil)
			continue
		}
		info.Slots = append(info.Slots, &pageInfo{Index: p.Index(), Blank: p.Blank(), HTML: p.HTML()})
	}
	return info
}

func (s *Server) handleSpread(w http.ResponseWriter, r *http.Request) {
	var info spreadInfo
	if err := s.onLoop(r.Context(), func() { info = s.spread() }); err != nil {
		loopError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleTurn starts a page turn. A turn that needs a section to load
// completes in the background; the response then reports state "turning".
func (s *Server) handleTurn(turn func()) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var info spreadInfo
		err := s.onLoop(r.Context(), func() {
			turn()
			info = s.spread()
		})
		if err != nil {
			loopError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

func (s *Server) handleGoToSection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	var info spreadInfo
	var goErr error
	err := s.onLoop(r.Context(), func() {
		goErr = s.handler.GoToSection(name)
		info = s.spread()
	})
	if err != nil {
		loopError(w, err)
		return
	}
	switch {
	case errors.Is(goErr, reader.ErrUnknownSection):
		jsonError(w, "unknown section: "+name, http.StatusNotFound)
	case errors.Is(goErr, reader.ErrBusy):
		jsonError(w, goErr.Error(), http.StatusConflict)
	case goErr != nil:
		jsonError(w, goErr.Error(), http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, info)
	}
}

func (s *Server) onLoop(ctx context.Context, fn func()) error {
	return s.loop.Do(ctx, fn)
}

func loopError(w http.ResponseWriter, err error) {
	if errors.Is(err, sched.ErrClosed) {
		jsonError(w, "reader is shutting down", http.StatusServiceUnavailable)
		return
	}
	jsonError(w, err.Error(), http.StatusServiceUnavailable)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

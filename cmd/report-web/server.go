package main

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fpang/litter-report/internal/app"
	"github.com/fpang/litter-report/internal/camera"
	"github.com/fpang/litter-report/internal/geo"
	"github.com/fpang/litter-report/internal/media"
	"github.com/fpang/litter-report/internal/report"
	"github.com/fpang/litter-report/internal/steps"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// server exposes one Engine over HTTP. position receives fixes from the
// browser's geolocation API; it may be nil.
type server struct {
	engine   *app.Engine
	position *geo.PushSource
}

func newServer(engine *app.Engine, position *geo.PushSource) *server {
	return &server{engine: engine, position: position}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(withLogging, withCORS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Post("/advance", s.handleAdvance)
		r.Post("/retreat", s.handleRetreat)
		r.Post("/jump/{step}", s.handleJump)
		r.Post("/restart", s.handleRestart)

		r.Post("/camera/start", s.handleCameraStart)
		r.Post("/camera/stop", s.handleCameraStop)
		r.Post("/photo/capture", s.handleCapture)
		r.Post("/photo/upload", s.handleUpload)
		r.Post("/photo/pick", s.handlePick)
		r.Get("/photo/preview", s.handlePreview)

		r.Post("/position", s.handlePositionPush)
		r.Post("/position/deny", s.handlePositionDeny)
		r.Get("/region", s.handleRegion)
		r.Post("/location/current", s.handleLocationCurrent)
		r.Get("/location/search", s.handleLocationSearch)
		r.Post("/location/select", s.handleLocationSelect)
		r.Post("/location/pick", s.handleLocationPick)
		r.Post("/location/photo", s.handleLocationPhoto)

		r.Put("/contact", s.handleContact)
		r.Put("/comment", s.handleComment)
		r.Post("/submit", s.handleSubmit)
	})
	return r
}

// --- Workflow ---

// GET /api/state
func (s *server) handleState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.State())
}

// POST /api/advance
func (s *server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	s.respondMove(w, s.engine.Advance(), "current step is not complete")
}

// POST /api/retreat
func (s *server) handleRetreat(w http.ResponseWriter, r *http.Request) {
	s.respondMove(w, s.engine.Retreat(), "already at the first step")
}

// POST /api/jump/{step}  (index or step id)
func (s *server) handleJump(w http.ResponseWriter, r *http.Request) {
	param := chi.URLParam(r, "step")
	i, err := strconv.Atoi(param)
	if err != nil {
		i = s.engine.StepIndex(steps.ID(param))
	}
	if i < 0 {
		httpError(w, http.StatusBadRequest, "unknown step")
		return
	}
	s.respondMove(w, s.engine.JumpTo(i), "only the current or earlier steps can be opened")
}

func (s *server) respondMove(w http.ResponseWriter, moved bool, refusal string) {
	if !moved {
		httpError(w, http.StatusConflict, refusal)
		return
	}
	respondJSON(w, http.StatusOK, s.engine.View())
}

// POST /api/restart
func (s *server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Restart(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s.engine.View())
}

// --- Photo ---

// POST /api/camera/start  {"facing": "environment"|"user"}
func (s *server) handleCameraStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Facing camera.Facing `json:"facing"`
	}
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	if req.Facing == camera.FacingAny {
		req.Facing = camera.FacingEnvironment
	}
	if err := s.engine.StartCamera(r.Context(), req.Facing); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"active": true})
}

// POST /api/camera/stop
func (s *server) handleCameraStop(w http.ResponseWriter, r *http.Request) {
	s.engine.StopCamera()
	respondJSON(w, http.StatusOK, map[string]bool{"active": false})
}

// POST /api/photo/capture
func (s *server) handleCapture(w http.ResponseWriter, r *http.Request) {
	photo, err := s.engine.CapturePhoto(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, photo)
}

// POST /api/photo/upload (multipart, field "file")
func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, media.MaxImportSize+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		httpError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	photo, err := s.engine.UploadPhoto(r.Context(), header.Filename, file)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, photo)
}

// POST /api/photo/pick
func (s *server) handlePick(w http.ResponseWriter, r *http.Request) {
	photo, err := s.engine.PickPhoto(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, photo)
}

// GET /api/photo/preview
func (s *server) handlePreview(w http.ResponseWriter, r *http.Request) {
	data, mimeType, err := s.engine.Preview(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

// --- Location ---

// POST /api/position  {"lat": 53.2, "lon": 6.5}
func (s *server) handlePositionPush(w http.ResponseWriter, r *http.Request) {
	if s.position == nil {
		httpError(w, http.StatusNotFound, "device position is not enabled")
		return
	}
	var p report.Position
	if !decodeJSON(w, r, &p) {
		return
	}
	s.position.Push(p)
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/position/deny
func (s *server) handlePositionDeny(w http.ResponseWriter, r *http.Request) {
	if s.position == nil {
		httpError(w, http.StatusNotFound, "device position is not enabled")
		return
	}
	s.position.Deny()
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/region
func (s *server) handleRegion(w http.ResponseWriter, r *http.Request) {
	region := s.engine.Region()
	if region == nil {
		httpError(w, http.StatusNotFound, "no region configured")
		return
	}
	respondJSON(w, http.StatusOK, region)
}

// POST /api/location/current
func (s *server) handleLocationCurrent(w http.ResponseWriter, r *http.Request) {
	s.respondLocation(w, r)(s.engine.UseCurrentPosition(r.Context()))
}

// GET /api/location/search?q=...
func (s *server) handleLocationSearch(w http.ResponseWriter, r *http.Request) {
	candidates, err := s.engine.SearchAddress(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if candidates == nil {
		candidates = []geo.Candidate{}
	}
	respondJSON(w, http.StatusOK, candidates)
}

// POST /api/location/select  {"address": "...", "lat": 53.2, "lon": 6.5}
func (s *server) handleLocationSelect(w http.ResponseWriter, r *http.Request) {
	var c geo.Candidate
	if !decodeJSON(w, r, &c) {
		return
	}
	s.respondLocation(w, r)(s.engine.SelectCandidate(r.Context(), c))
}

// POST /api/location/pick  {"lat": 53.2, "lon": 6.5}
func (s *server) handleLocationPick(w http.ResponseWriter, r *http.Request) {
	var p report.Position
	if !decodeJSON(w, r, &p) {
		return
	}
	s.respondLocation(w, r)(s.engine.PickOnMap(r.Context(), p.Latitude, p.Longitude))
}

// POST /api/location/photo
func (s *server) handleLocationPhoto(w http.ResponseWriter, r *http.Request) {
	s.respondLocation(w, r)(s.engine.UsePhotoPosition(r.Context()))
}

func (s *server) respondLocation(w http.ResponseWriter, r *http.Request) func(report.Location, error) {
	return func(loc report.Location, err error) {
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, loc)
	}
}

// --- Contact, comment, submit ---

// PUT /api/contact  {"name": "...", "email": "..."} or null for anonymous
func (s *server) handleContact(w http.ResponseWriter, r *http.Request) {
	var c *report.Contact
	if !decodeJSON(w, r, &c) {
		return
	}
	if c != nil && c.IsEmpty() {
		c = nil
	}
	if err := s.engine.SetContact(r.Context(), c); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s.engine.Draft())
}

// PUT /api/comment  {"comment": "..."}
func (s *server) handleComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Comment string `json:"comment"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.engine.SetComment(r.Context(), req.Comment); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s.engine.Draft())
}

// POST /api/submit
func (s *server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	d, err := s.engine.Submit(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	log.Info().Str("draft", d.ID).Str("submission", d.SubmissionID).Msg("Report submitted")
	respondJSON(w, http.StatusOK, s.engine.View())
}

// --- Middleware ---

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if strings.HasPrefix(r.URL.Path, "/api/") {
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("duration", time.Since(start)).
				Msg("API request")
		}
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only local frontends talk to this server.
		origin := r.Header.Get("Origin")
		if origin != "" && (strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:")) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

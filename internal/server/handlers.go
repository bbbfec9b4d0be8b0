package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hakim/bughunter/internal/discovery"
	"github.com/hakim/bughunter/internal/models"
	"github.com/hakim/bughunter/internal/pipeline"
	"github.com/hakim/bughunter/internal/storage"
)

// streamRequest is the scan trigger, read from the query string on GET and
// from the JSON body on POST
type streamRequest struct {
	Domain      string `form:"domain" json:"domain"`
	VerifyHTTP  *bool  `form:"verify" json:"verifyHttp"`
	UseCT       *bool  `form:"ct" json:"ct"`
	Concurrency int    `form:"concurrency" json:"concurrency"`
	Preset      string `form:"preset" json:"preset"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// bindStream reads the trigger and turns it into a pipeline request.
// On failure the response has been written and ok is false.
func (s *Server) bindStream(c *gin.Context) (req pipeline.Request, ok bool) {
	var in streamRequest
	var err error
	if c.Request.Method == http.MethodPost {
		err = c.ShouldBindJSON(&in)
	} else {
		err = c.ShouldBindQuery(&in)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return req, false
	}

	if strings.TrimSpace(in.Domain) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing domain parameter"})
		return req, false
	}

	domain, err := s.deps.Runner.Validate(in.Domain)
	if err != nil {
		c.JSON(validationStatus(err), gin.H{"error": err.Error()})
		return req, false
	}

	req = s.deps.Runner.DefaultRequest(domain)
	if in.Preset != "" {
		preset, err := pipeline.GetPreset(in.Preset)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return req, false
		}
		preset.Apply(&req)
	}
	if in.VerifyHTTP != nil {
		req.VerifyHTTP = *in.VerifyHTTP
	}
	if in.UseCT != nil {
		req.UseCT = *in.UseCT
	}
	if in.Concurrency != 0 {
		req.Concurrency = in.Concurrency
	}
	return req, true
}

// handleStream runs a scan and pushes its events as server-sent events
func (s *Server) handleStream(c *gin.Context) {
	req, ok := s.bindStream(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	emitter := &sseEmitter{c: c}
	session, err := s.deps.Runner.Run(c.Request.Context(), req, emitter)
	if err != nil && !errors.Is(err, pipeline.ErrClientGone) {
		s.logger.Debug("stream ended with error", "domain", req.Domain, "error", err)
	}
	if session != nil {
		s.logger.Debug("stream closed", "session", session.ID, "status", session.Status)
	}
}

// sseEmitter writes events on an open text/event-stream response
type sseEmitter struct {
	c *gin.Context
}

func (e *sseEmitter) Emit(event models.Event) error {
	ctx := e.c.Request.Context()
	if err := ctx.Err(); err != nil {
		return pipeline.ErrClientGone
	}
	e.c.SSEvent(string(event.Type), event.Data)
	e.c.Writer.Flush()
	if ctx.Err() != nil {
		return pipeline.ErrClientGone
	}
	return nil
}

func (s *Server) handleListSessions(c *gin.Context) {
	if s.deps.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store not configured"})
		return
	}
	sessions, err := s.deps.Store.List(strings.ToLower(c.Query("domain")))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sessions == nil {
		sessions = []*models.ScanSession{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
}

func (s *Server) handleGetSession(c *gin.Context) {
	if s.deps.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store not configured"})
		return
	}
	session, err := s.deps.Store.Get(c.Param("id"))
	if err != nil {
		c.JSON(storeStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, session)
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	if s.deps.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store not configured"})
		return
	}
	id := c.Param("id")
	if _, err := s.deps.Store.Get(id); err != nil {
		c.JSON(storeStatus(err), gin.H{"error": err.Error()})
		return
	}
	if err := s.deps.Store.Delete(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDNSLookup(c *gin.Context) {
	if s.deps.Lookup == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "dns lookup not configured"})
		return
	}

	var body struct {
		Domain string `json:"domain"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.Domain) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Domain is required"})
		return
	}

	domain, err := s.deps.Runner.Validate(body.Domain)
	if err != nil {
		c.JSON(validationStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, s.deps.Lookup.Lookup(c.Request.Context(), domain))
}

// validationStatus maps a Runner.Validate error to an HTTP status
func validationStatus(err error) int {
	var vErr *discovery.ValidationError
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrOutOfScope):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func storeStatus(err error) int {
	if errors.Is(err, storage.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

package web

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/doeshing/oncomn/internal/domain"
)

// generate handles POST /api/generate and runs the generation to completion.
// Closing the connection cancels it.
func (s *Server) generate(c *gin.Context) {
	var body GenerateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": ErrorBody{Code: "invalid_request", Message: err.Error()}})
		return
	}

	req := body.toDomain()
	req.Context = c.Request.Context()
	req.ConsumerID = "http-" + s.newID()

	resp, err := s.generator.Run(req)
	if err != nil {
		_ = c.Error(err)
		if resp.SessionID == "" {
			c.JSON(statusFor(err), gin.H{"error": newErrorBody(err)})
			return
		}
		payload := newGenerateResponse(resp)
		payload.Error = newErrorBody(err)
		c.JSON(statusFor(err), payload)
		return
	}

	c.JSON(http.StatusOK, newGenerateResponse(resp))
}

func (s *Server) listProjects(c *gin.Context) {
	limit := domain.DefaultProjectListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": ErrorBody{Code: "invalid_request", Message: "limit must be a non-negative integer"}})
			return
		}
		limit = parsed
	}

	projects, err := s.projects.List(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}

	summaries := make([]ProjectSummary, 0, len(projects))
	for _, p := range projects {
		summaries = append(summaries, newProjectSummary(p))
	}
	c.JSON(http.StatusOK, gin.H{"projects": summaries})
}

func (s *Server) createProject(c *gin.Context) {
	var body CreateProjectRequest
	// An empty body creates a project with a generated name.
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": ErrorBody{Code: "invalid_request", Message: err.Error()}})
		return
	}

	project := domain.NewProject(s.newID(), body.Name, time.Now().UTC())
	if err := s.projects.Create(c.Request.Context(), project); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

func (s *Server) getProject(c *gin.Context) {
	project, err := s.projects.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (s *Server) deleteProject(c *gin.Context) {
	if err := s.projects.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// previewProject serves the composed HTML document of a project.
func (s *Server) previewProject(c *gin.Context) {
	project, err := s.projects.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(project.Code.PreviewDocument()))
}

func (s *Server) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(statusFor(err), gin.H{"error": newErrorBody(err)})
}

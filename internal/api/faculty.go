package api

import (
	"bytes"
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"attendsync/internal/attendance"
	"attendsync/internal/auth"
	"attendsync/internal/classes"
	"attendsync/internal/metrics"
	"attendsync/internal/report"
	"attendsync/internal/selection"
	"attendsync/internal/validate"
)

type classListResponse struct {
	Classes  []attendance.Class `json:"classes"`
	Groups   []classes.Group    `json:"groups"`
	Selected *attendance.Class  `json:"selected"`
}

// facultyClasses lists the caller's classes and drops a persisted
// selection that no longer refers to one of them.
func (s *Server) facultyClasses(ctx context.Context, id auth.Identity) (classListResponse, error) {
	list, err := s.Registry.ListForCreator(ctx, id.Email)
	if err != nil {
		return classListResponse{}, err
	}
	resp := classListResponse{Classes: list, Groups: classes.GroupByProgram(list)}
	if resp.Classes == nil {
		resp.Classes = []attendance.Class{}
	}
	if s.Selections == nil {
		return resp, nil
	}
	sel, err := selection.Open(ctx, s.Selections, id.Email)
	if err != nil {
		return classListResponse{}, err
	}
	if cleared, err := sel.Reconcile(ctx, list); err != nil {
		return classListResponse{}, err
	} else if cleared {
		s.log.Debug().Str("email", id.Email).Msg("stale class selection cleared")
	}
	if v, ok := sel.Value(); ok {
		resp.Selected = &v
	}
	return resp, nil
}

func (s *Server) listClasses(c *gin.Context) {
	resp, err := s.facultyClasses(c.Request.Context(), identity(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) createClass(c *gin.Context) {
	var in classes.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		s.writeError(c, attendance.Invalid("please fill all class details"))
		return
	}
	id := identity(c)
	cls, err := s.Registry.Create(c.Request.Context(), in, classes.Creator{Name: id.Name, Email: id.Email})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"class": cls})
}

func (s *Server) deleteClass(c *gin.Context) {
	id := identity(c)
	classID := c.Param("id")
	if err := s.Registry.Delete(c.Request.Context(), classID, id.Email); err != nil {
		s.writeError(c, err)
		return
	}
	if s.Selections != nil {
		if sel, err := selection.Open(c.Request.Context(), s.Selections, id.Email); err == nil {
			if v, ok := sel.Value(); ok && v.ID == classID {
				if err := sel.Set(c.Request.Context(), nil); err != nil {
					s.log.Warn().Err(err).Str("class_id", classID).Msg("clear selection after delete failed")
				}
			}
		}
	}
	c.Status(http.StatusNoContent)
}

// ownedClass loads the :id class and checks the caller created it.
func (s *Server) ownedClass(c *gin.Context) (attendance.Class, bool) {
	cls, err := s.Registry.Get(c.Request.Context(), c.Param("id"), identity(c).Email)
	if err != nil {
		s.writeError(c, err)
		return attendance.Class{}, false
	}
	return cls, true
}

func (s *Server) classRoster(c *gin.Context) {
	cls, ok := s.ownedClass(c)
	if !ok {
		return
	}
	students, err := s.Rosters.Roster(c.Request.Context(), cls.Descriptor())
	if err != nil {
		s.writeError(c, err)
		return
	}
	if students == nil {
		students = []attendance.Student{}
	}
	c.JSON(http.StatusOK, gin.H{"class": cls, "students": students})
}

type submitRequest struct {
	Records map[string]string `json:"records"`
}

func (s *Server) submitSession(c *gin.Context) {
	cls, ok := s.ownedClass(c)
	if !ok {
		return
	}
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, attendance.Invalid("invalid attendance payload"))
		return
	}
	ctx := c.Request.Context()
	students, err := s.Rosters.Roster(ctx, cls.Descriptor())
	if err != nil {
		s.writeError(c, err)
		return
	}
	sess, err := s.Recorder.Submit(ctx, cls, students, req.Records, identity(c).Name)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": sess})
}

func (s *Server) sessionSheet(c *gin.Context) {
	cls, ok := s.ownedClass(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	key := c.Param("key")
	sess, err := s.Store.GetSession(ctx, cls.ID, key)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if s.Sheets != nil && c.Query("fresh") == "" {
		if url, err := s.Sheets.SheetURL(ctx, cls.ID, key); err != nil {
			s.log.Warn().Err(err).Str("class_id", cls.ID).Msg("sheet cache lookup failed")
		} else if url != "" {
			c.Redirect(http.StatusFound, url)
			return
		}
	}
	students, err := s.Rosters.Roster(ctx, cls.Descriptor())
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.sendDocument(c, report.AttendanceSheet(cls, sess, students), "pdf")
}

type analysisResponse struct {
	Class   attendance.Class    `json:"class"`
	Start   string              `json:"start"`
	End     string              `json:"end"`
	Results []attendance.Result `json:"results"`
}

// analyze tallies the roster of cls over [start, end].
func (s *Server) analyze(ctx context.Context, cls attendance.Class, start, end string) (analysisResponse, attendance.Window, error) {
	w, err := attendance.NewWindow(start, end, s.Location)
	if err != nil {
		return analysisResponse{}, attendance.Window{}, err
	}
	timer := prometheus.NewTimer(metrics.AggregateDuration)
	students, err := s.Rosters.Roster(ctx, cls.Descriptor())
	if err != nil {
		return analysisResponse{}, w, err
	}
	sessions, err := s.Store.SessionsInRange(ctx, cls.ID, w.StartMillis(), w.EndMillis())
	if err != nil {
		return analysisResponse{}, w, err
	}
	results := attendance.Analyze(students, sessions, w)
	timer.ObserveDuration()
	if results == nil {
		results = []attendance.Result{}
	}
	return analysisResponse{Class: cls, Start: w.StartDate(), End: w.EndDate(), Results: results}, w, nil
}

func (s *Server) analysis(c *gin.Context) {
	cls, ok := s.ownedClass(c)
	if !ok {
		return
	}
	resp, w, err := s.analyze(c.Request.Context(), cls, c.Query("start"), c.Query("end"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	switch format := c.DefaultQuery("format", "json"); format {
	case "json":
		c.JSON(http.StatusOK, resp)
	case "pdf", "csv":
		if len(resp.Results) == 0 {
			s.writeError(c, attendance.Invalid("no analysis data to export"))
			return
		}
		s.sendDocument(c, report.Analysis(cls, w, resp.Results), format)
	default:
		s.writeError(c, attendance.Invalid("format must be json, pdf or csv"))
	}
}

// sendDocument renders doc into memory first so a render failure still
// produces a clean error response.
func (s *Server) sendDocument(c *gin.Context, doc report.Document, format string) {
	var (
		buf         bytes.Buffer
		err         error
		name        = doc.Filename
		contentType = "application/pdf"
	)
	if format == "csv" {
		err = doc.CSV(&buf)
		name = doc.CSVFilename()
		contentType = "text/csv; charset=utf-8"
	} else {
		err = doc.PDF(&buf)
	}
	if err != nil {
		s.log.Error().Err(err).Str("file", name).Msg("render report failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "could not generate report"})
		return
	}
	c.Header("Content-Disposition", report.ContentDisposition(name))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

func (s *Server) getSelection(c *gin.Context) {
	resp, err := s.facultyClasses(c.Request.Context(), identity(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"selected": resp.Selected})
}

type selectRequest struct {
	ClassID string `json:"classId" validate:"required"`
}

func (s *Server) putSelection(c *gin.Context) {
	if s.Selections == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, gin.H{"error": "selection storage is not configured"})
		return
	}
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, attendance.Invalid("classId is required"))
		return
	}
	if err := validate.Struct(req); err != nil {
		s.writeError(c, err)
		return
	}
	ctx := c.Request.Context()
	id := identity(c)
	cls, err := s.Registry.Get(ctx, req.ClassID, id.Email)
	if err != nil {
		s.writeError(c, err)
		return
	}
	sel, err := selection.Open(ctx, s.Selections, id.Email)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if err := sel.Set(ctx, &cls); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"selected": cls})
}

func (s *Server) clearSelection(c *gin.Context) {
	if s.Selections == nil {
		c.Status(http.StatusNoContent)
		return
	}
	ctx := c.Request.Context()
	sel, err := selection.Open(ctx, s.Selections, identity(c).Email)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if err := sel.Set(ctx, nil); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

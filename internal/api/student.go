package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"attendsync/internal/attendance"
	"attendsync/internal/report"
)

func (s *Server) currentStudent(c *gin.Context) (attendance.Student, bool) {
	st, err := s.Store.GetStudent(c.Request.Context(), identity(c).UID)
	if err != nil {
		if errors.Is(err, attendance.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Student record not found. Please contact admin or register."})
			return attendance.Student{}, false
		}
		s.writeError(c, err)
		return attendance.Student{}, false
	}
	return st, true
}

func (s *Server) me(c *gin.Context) {
	st, ok := s.currentStudent(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"student": st})
}

// uploadPhoto accepts a multipart "photo" file of type image/*.
func (s *Server) uploadPhoto(c *gin.Context) {
	st, ok := s.currentStudent(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.MaxUploadBytes+64<<10)
	file, header, err := c.Request.FormFile("photo")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(c, s.tooLarge())
			return
		}
		s.writeError(c, attendance.Invalid("photo file is required"))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		s.writeError(c, attendance.Invalid("please select an image file", attendance.FieldError{Field: "photo", Error: "must be an image"}))
		return
	}
	if header.Size > s.MaxUploadBytes {
		s.writeError(c, s.tooLarge())
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, s.MaxUploadBytes+1))
	if err != nil {
		s.writeError(c, fmt.Errorf("read photo: %w", err))
		return
	}
	if int64(len(data)) > s.MaxUploadBytes {
		s.writeError(c, s.tooLarge())
		return
	}

	ctx := c.Request.Context()
	var image string
	if s.Uploader != nil {
		res, err := s.Uploader.UploadImage(ctx, "students/"+st.ID, header.Filename, data)
		if err != nil {
			s.log.Error().Err(err).Str("student_id", st.ID).Msg("photo upload failed")
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
			return
		}
		image = res.SecureURL
	} else {
		image = "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
	}
	if err := s.Store.UpdateStudentImage(ctx, st.ID, image); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profileImage": image})
}

func (s *Server) tooLarge() error {
	return fmt.Errorf("%w: maximum is %d KB", errTooLarge, s.MaxUploadBytes/1024)
}

type dashboard struct {
	Student attendance.Student   `json:"student"`
	Classes []attendance.History `json:"classes"`
}

// studentDashboard builds a history per enrolled class.
func (s *Server) studentDashboard(ctx context.Context, st attendance.Student) (dashboard, error) {
	list, err := s.Registry.ListForStudent(ctx, st)
	if err != nil {
		return dashboard{}, err
	}
	d := dashboard{Student: st, Classes: make([]attendance.History, 0, len(list))}
	for _, cls := range list {
		sessions, err := s.Store.Sessions(ctx, cls.ID)
		if err != nil {
			return dashboard{}, fmt.Errorf("load sessions of %s: %w", cls.ID, err)
		}
		h := attendance.StudentHistory(cls, st.ID, sessions)
		if h.Marks == nil {
			h.Marks = []attendance.Mark{}
		}
		d.Classes = append(d.Classes, h)
	}
	return d, nil
}

func (s *Server) myAttendance(c *gin.Context) {
	st, ok := s.currentStudent(c)
	if !ok {
		return
	}
	d, err := s.studentDashboard(c.Request.Context(), st)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) classReport(c *gin.Context) {
	st, ok := s.currentStudent(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	cls, err := s.Store.GetClass(ctx, c.Param("classId"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if cls.Program != st.Program || cls.Branch != st.Branch || cls.Year != st.Year {
		s.writeError(c, attendance.ErrForbidden)
		return
	}
	sessions, err := s.Store.Sessions(ctx, cls.ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	h := attendance.StudentHistory(cls, st.ID, sessions)
	if len(h.Marks) == 0 {
		s.writeError(c, attendance.Invalid("no attendance records for this class"))
		return
	}
	s.sendDocument(c, report.StudentClassReport(st, h), "pdf")
}

func (s *Server) combinedReport(c *gin.Context) {
	st, ok := s.currentStudent(c)
	if !ok {
		return
	}
	d, err := s.studentDashboard(c.Request.Context(), st)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if len(d.Classes) == 0 {
		s.writeError(c, attendance.Invalid("not enrolled in any classes"))
		return
	}
	s.sendDocument(c, report.CombinedReport(st, d.Classes), "pdf")
}

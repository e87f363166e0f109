package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"attendsync/internal/attendance"
	"attendsync/internal/auth"
	"attendsync/internal/classes"
	"attendsync/internal/validate"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type sessionResponse struct {
	Identity auth.Identity `json:"identity"`
	auth.TokenPair
	ExpiresAt int64 `json:"expires_at"`
}

func newSessionResponse(id auth.Identity, t auth.TokenPair) sessionResponse {
	return sessionResponse{Identity: id, TokenPair: t, ExpiresAt: t.AccessExp.Unix()}
}

// loginKey charges login attempts to the email being tried, falling back
// to the client address.
func loginKey(c *gin.Context) string {
	if c.Request.Body == nil {
		return clientIPKey(c)
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 64<<10))
	if err != nil {
		return clientIPKey(c)
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))
	var body struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(raw, &body) != nil || strings.TrimSpace(body.Email) == "" {
		return clientIPKey(c)
	}
	return "email:" + strings.ToLower(strings.TrimSpace(body.Email))
}

func clientIPKey(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

func (s *Server) login(role auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.writeError(c, attendance.Invalid("please enter email and password"))
			return
		}
		if err := validate.Struct(req); err != nil {
			s.writeError(c, err)
			return
		}
		id, tokens, err := s.Gate.SignIn(c.Request.Context(), req.Email, req.Password, role)
		if err != nil {
			if role == auth.RoleStudent && errors.Is(err, attendance.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Student record not found. Please contact admin or register."})
				return
			}
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, newSessionResponse(id, tokens))
	}
}

type registerRequest struct {
	Name          string `json:"name" validate:"required"`
	DOB           string `json:"dob" validate:"required"`
	InstituteID   string `json:"instituteID" validate:"required"`
	ContactNumber string `json:"contactNumber" validate:"required"`
	Email         string `json:"email" validate:"required,email"`
	Password      string `json:"password" validate:"required,min=6"`
	Program       string `json:"program" validate:"required"`
	Branch        string `json:"branch"`
	Year          string `json:"year" validate:"required"`
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, attendance.Invalid("invalid registration payload"))
		return
	}
	req.Program = strings.TrimSpace(req.Program)
	req.Branch = classes.NormalizeBranch(req.Program, strings.TrimSpace(req.Branch))
	if err := validate.Struct(req); err != nil {
		s.writeError(c, err)
		return
	}
	if err := checkCohort(req.Program, req.Branch, req.Year); err != nil {
		s.writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	uid, err := s.Gate.Register(ctx, req.Email, req.Password)
	if err != nil {
		s.writeError(c, err)
		return
	}
	st := attendance.Student{
		ID:            uid,
		Name:          strings.TrimSpace(req.Name),
		Program:       req.Program,
		Branch:        req.Branch,
		Year:          req.Year,
		InstituteID:   strings.TrimSpace(req.InstituteID),
		Email:         strings.ToLower(strings.TrimSpace(req.Email)),
		ContactNumber: strings.TrimSpace(req.ContactNumber),
		DOB:           req.DOB,
		CreatedAt:     time.Now().UnixMilli(),
	}
	if err := s.Store.PutStudent(ctx, st); err != nil {
		s.log.Error().Err(err).Str("student_id", uid).Msg("student record not saved; credential left for re-registration")
		s.writeError(c, err)
		return
	}
	s.log.Info().Str("student_id", uid).Str("program", st.Program).Msg("student registered")
	c.JSON(http.StatusCreated, gin.H{"student": st})
}

// checkCohort verifies a program/branch/year against the catalog.
func checkCohort(program, branch, year string) error {
	p, ok := classes.LookupProgram(program)
	if !ok {
		return attendance.Invalid("unknown program", attendance.FieldError{Field: "program", Error: "not offered"})
	}
	if branch == "" {
		return attendance.Invalid("please select a branch", attendance.FieldError{Field: "branch", Error: "required"})
	}
	for _, b := range p.Branches {
		if b == branch {
			for _, y := range p.Years {
				if y == year {
					return nil
				}
			}
			return attendance.Invalid("unknown year", attendance.FieldError{Field: "year", Error: "not offered for " + p.Name})
		}
	}
	return attendance.Invalid("unknown branch", attendance.FieldError{Field: "branch", Error: "not offered for " + p.Name})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (s *Server) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || validate.Struct(req) != nil {
		s.writeError(c, attendance.Invalid("refresh_token is required"))
		return
	}
	id, tokens, err := s.Gate.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(id, tokens))
}

func (s *Server) logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = c.ShouldBindJSON(&req)
	if err := s.Gate.SignOut(c.Request.Context(), req.RefreshToken, identity(c)); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) firebaseExchange(c *gin.Context) {
	if s.Verifier == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, gin.H{"error": "external sign-in is not configured"})
		return
	}
	var req struct {
		IDToken string `json:"id_token" validate:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || validate.Struct(req) != nil {
		s.writeError(c, attendance.Invalid("id_token is required"))
		return
	}
	ctx := c.Request.Context()
	uid, email, err := s.Verifier.Verify(ctx, req.IDToken)
	if err != nil {
		s.log.Warn().Err(err).Msg("id token rejected")
		s.writeError(c, attendance.ErrInvalidCredentials)
		return
	}
	id, tokens, err := s.Gate.Exchange(ctx, uid, email)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(id, tokens))
}

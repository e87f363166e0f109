// Package api exposes the attendance system over HTTP and websockets.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"attendsync/internal/attendance"
	"attendsync/internal/auth"
	"attendsync/internal/classes"
	"attendsync/internal/cloudinary"
	"attendsync/internal/httpmiddleware"
	"attendsync/internal/live"
	"attendsync/internal/logging"
	"attendsync/internal/roster"
	"attendsync/internal/selection"
)

// ImageUploader stores profile photos and returns their public URL.
type ImageUploader interface {
	UploadImage(ctx context.Context, publicID, filename string, data []byte) (*cloudinary.UploadResult, error)
}

// SheetCache looks up pre-rendered attendance sheets.
type SheetCache interface {
	SheetURL(ctx context.Context, classID, sessionKey string) (string, error)
}

// Deps are the collaborators of the HTTP API. Verifier, Uploader and
// Sheets are optional.
type Deps struct {
	Store      attendance.Store
	Gate       *auth.Gate
	Verifier   auth.IDTokenVerifier
	Registry   *classes.Registry
	Rosters    *roster.Resolver
	Recorder   *attendance.Recorder
	Selections selection.Backend
	Hub        live.Hub
	Uploader   ImageUploader
	Sheets     SheetCache

	Location         *time.Location
	MaxUploadBytes   int64
	RateLimitPerMin  int
	LoginLimitPerMin int
	// Health probes reported by /healthz, keyed by dependency name.
	Health map[string]func(ctx context.Context) bool
	Logger zerolog.Logger
}

// Server holds the handlers.
type Server struct {
	Deps
	log zerolog.Logger
}

// NewServer creates the handler set and registers the sign-out listener
// that clears a faculty member's persisted selection.
func NewServer(d Deps) *Server {
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 1 << 20
	}
	s := &Server{Deps: d, log: d.Logger.With().Str("component", "api").Logger()}
	d.Gate.OnStateChange(s.onAuthChange)
	return s
}

func (s *Server) onAuthChange(ch auth.StateChange) {
	if ch.SignedIn || ch.Identity.Role != auth.RoleFaculty || s.Selections == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Selections.Clear(ctx, ch.Identity.Email); err != nil {
		s.log.Error().Err(err).Str("email", ch.Identity.Email).Msg("clear selection on sign-out failed")
	}
}

// NewRouter builds the gin engine with every route.
func NewRouter(d Deps) *gin.Engine {
	return NewServer(d).Routes()
}

// Routes wires middleware and handlers.
func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.GinMiddleware(s.Logger, "/healthz", "/metrics"))
	r.Use(httpmiddleware.CORS())
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(s.RateLimitPerMin, s.RateLimitPerMin).Middleware(httpmiddleware.ByIP))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.healthz)

	login := httpmiddleware.NewTokenBucket(s.LoginLimitPerMin, s.LoginLimitPerMin).Middleware(loginKey)

	v1 := r.Group("/v1")
	v1.GET("/catalog", s.catalog)
	v1.POST("/auth/faculty/login", login, s.login(auth.RoleFaculty))
	v1.POST("/auth/student/login", login, s.login(auth.RoleStudent))
	v1.POST("/auth/student/register", login, s.register)
	v1.POST("/auth/refresh", s.refresh)
	v1.POST("/auth/firebase", login, s.firebaseExchange)

	authed := v1.Group("", auth.Authenticate(s.Gate))
	authed.POST("/auth/logout", s.logout)

	faculty := authed.Group("", auth.RequireRole(auth.RoleFaculty))
	faculty.GET("/classes", s.listClasses)
	faculty.POST("/classes", s.createClass)
	faculty.DELETE("/classes/:id", s.deleteClass)
	faculty.GET("/classes/:id/roster", s.classRoster)
	faculty.POST("/classes/:id/sessions", s.submitSession)
	faculty.GET("/classes/:id/sessions/:key/sheet", s.sessionSheet)
	faculty.GET("/classes/:id/analysis", s.analysis)
	faculty.GET("/selection", s.getSelection)
	faculty.PUT("/selection", s.putSelection)
	faculty.DELETE("/selection", s.clearSelection)
	faculty.GET("/live/classes", s.liveClasses)
	faculty.GET("/live/classes/:id/analysis", s.liveAnalysis)

	student := authed.Group("", auth.RequireRole(auth.RoleStudent))
	student.GET("/me", s.me)
	student.PUT("/me/photo", s.uploadPhoto)
	student.GET("/me/attendance", s.myAttendance)
	student.GET("/me/attendance/report", s.combinedReport)
	student.GET("/me/attendance/:classId/report", s.classReport)
	student.GET("/live/me/attendance", s.liveMyAttendance)

	return r
}

func (s *Server) healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, probe := range s.Health {
		ok := probe(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

func (s *Server) catalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"programs": classes.Catalog})
}

// identity returns the caller set by auth.Authenticate.
func identity(c *gin.Context) auth.Identity {
	id, _ := auth.IdentityFrom(c)
	return id
}

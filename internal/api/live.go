package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"attendsync/internal/attendance"
	"attendsync/internal/live"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Bearer tokens gate the feed; browsers from any origin may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// errFeedClosed ends a feed after its final message.
var errFeedClosed = errors.New("feed closed")

// stream upgrades c and pushes a fresh snapshot from compute on connect and
// after every event on topics. Only this goroutine writes to the socket.
func (s *Server) stream(c *gin.Context, topics []string, compute func(ctx context.Context) (interface{}, error)) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wake, unsubscribe := live.Signal(s.Hub, topics...)
	defer unsubscribe()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(msg wsMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(msg)
	}
	push := func() error {
		data, err := compute(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			msg := "could not load data"
			if errors.Is(err, attendance.ErrNotFound) {
				msg = "this class no longer exists"
			} else if attendance.IsValidation(err) {
				msg = err.Error()
			} else {
				s.log.Error().Err(err).Msg("live snapshot failed")
			}
			_ = send(wsMessage{Event: "ERROR", Data: gin.H{"message": msg}})
			return errFeedClosed
		}
		return send(wsMessage{Event: "SNAPSHOT", Data: data})
	}

	if err := push(); err != nil {
		return
	}
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-wake:
			if err := push(); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// liveClasses streams the caller's class list with its selection.
func (s *Server) liveClasses(c *gin.Context) {
	id := identity(c)
	s.stream(c, []string{live.FacultyClassesTopic(id.Email)}, func(ctx context.Context) (interface{}, error) {
		return s.facultyClasses(ctx, id)
	})
}

// liveAnalysis recomputes a class analysis whenever a session is recorded.
func (s *Server) liveAnalysis(c *gin.Context) {
	cls, ok := s.ownedClass(c)
	if !ok {
		return
	}
	if _, err := attendance.NewWindow(c.Query("start"), c.Query("end"), s.Location); err != nil {
		s.writeError(c, err)
		return
	}
	email := identity(c).Email
	start, end := c.Query("start"), c.Query("end")
	s.stream(c, []string{live.ClassSessionsTopic(cls.ID)}, func(ctx context.Context) (interface{}, error) {
		current, err := s.Registry.Get(ctx, cls.ID, email)
		if err != nil {
			return nil, err
		}
		resp, _, err := s.analyze(ctx, current, start, end)
		return resp, err
	})
}

// liveMyAttendance streams the caller's dashboard. Topics are the classes
// enrolled at connect time.
func (s *Server) liveMyAttendance(c *gin.Context) {
	st, ok := s.currentStudent(c)
	if !ok {
		return
	}
	list, err := s.Registry.ListForStudent(c.Request.Context(), st)
	if err != nil {
		s.writeError(c, err)
		return
	}
	topics := make([]string, 0, len(list))
	for _, cls := range list {
		topics = append(topics, live.ClassSessionsTopic(cls.ID))
	}
	s.stream(c, topics, func(ctx context.Context) (interface{}, error) {
		return s.studentDashboard(ctx, st)
	})
}

package attendance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"attendsync/internal/metrics"
)

// Notifier is told about writes so live views and background jobs can react.
// Implementations must not block for long; failures are theirs to log.
type Notifier interface {
	SessionRecorded(ctx context.Context, s Session)
}

type nopNotifier struct{}

func (nopNotifier) SessionRecorded(context.Context, Session) {}

// Recorder writes attendance sessions.
type Recorder struct {
	sessions SessionStore
	notify   Notifier
	loc      *time.Location
	now      func() time.Time
	log      zerolog.Logger
}

// NewRecorder creates a recorder. loc controls the human-readable time stored
// alongside each session.
func NewRecorder(sessions SessionStore, notify Notifier, loc *time.Location, logger zerolog.Logger) *Recorder {
	if notify == nil {
		notify = nopNotifier{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &Recorder{
		sessions: sessions,
		notify:   notify,
		loc:      loc,
		now:      time.Now,
		log:      logger.With().Str("component", "recorder").Logger(),
	}
}

// SessionKey builds the per-class key for a session taken at t.
func SessionKey(t time.Time) string {
	return t.UTC().Format(dateLayout) + "_" + strconv.FormatInt(t.UnixMilli(), 10)
}

// Submit records one session for class. Every roster student gets an entry;
// students the caller left out are marked present. The write is a single
// call and is not retried.
func (r *Recorder) Submit(ctx context.Context, class Class, roster []Student, statuses map[string]string, markedBy string) (Session, error) {
	if class.ID == "" {
		return Session{}, Invalid("class id is missing")
	}
	if len(roster) == 0 {
		return Session{}, Invalid("cannot submit attendance: no students in this class")
	}

	onRoster := make(map[string]struct{}, len(roster))
	for _, s := range roster {
		onRoster[s.ID] = struct{}{}
	}

	var fields []FieldError
	records := make(map[string]string, len(roster))
	for id, raw := range statuses {
		if _, ok := onRoster[id]; !ok {
			fields = append(fields, FieldError{Field: id, Error: "not on class roster"})
			continue
		}
		status, ok := NormalizeStatus(raw)
		if !ok {
			fields = append(fields, FieldError{Field: id, Error: fmt.Sprintf("unknown status %q", raw)})
			continue
		}
		records[id] = string(status)
	}
	if len(fields) > 0 {
		return Session{}, Invalid("invalid attendance records", fields...)
	}
	for _, s := range roster {
		if _, ok := records[s.ID]; !ok {
			records[s.ID] = string(StatusPresent)
		}
	}

	now := r.now()
	sess := Session{
		ClassID:   class.ID,
		Key:       SessionKey(now),
		Date:      now.UTC().Format(dateLayout),
		Time:      now.In(r.loc).Format("15:04"),
		Timestamp: now.UnixMilli(),
		ClassName: class.ClassName,
		MarkedBy:  markedBy,
		Records:   records,
	}
	if err := r.sessions.PutSession(ctx, sess); err != nil {
		r.log.Error().Err(err).Str("class_id", class.ID).Msg("submit attendance failed")
		return Session{}, fmt.Errorf("record session: %w", err)
	}

	metrics.SessionsRecorded.Inc()
	r.log.Info().Str("class_id", class.ID).Str("session", sess.Key).Int("students", len(records)).Msg("attendance recorded")
	r.notify.SessionRecorded(ctx, sess)
	return sess, nil
}

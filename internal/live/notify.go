package live

import (
	"context"

	"github.com/rs/zerolog"

	"attendsync/internal/attendance"
	"attendsync/internal/queue"
)

// Notifier publishes store writes to the hub and hands follow-up work to
// the job queue. Failures are logged and never returned: the write they
// follow has already succeeded.
type Notifier struct {
	hub  Hub
	jobs queue.Queue
	log  zerolog.Logger
}

// NewNotifier creates a notifier. jobs may be nil.
func NewNotifier(hub Hub, jobs queue.Queue, logger zerolog.Logger) *Notifier {
	return &Notifier{hub: hub, jobs: jobs, log: logger.With().Str("component", "notifier").Logger()}
}

// SessionRecorded announces s on its class topic and queues its sheet.
func (n *Notifier) SessionRecorded(ctx context.Context, s attendance.Session) {
	err := n.hub.Publish(ctx, Event{Topic: ClassSessionsTopic(s.ClassID), Kind: "session.recorded", ID: s.Key})
	if err != nil {
		n.log.Error().Err(err).Str("class_id", s.ClassID).Msg("publish session event failed")
	}
	if n.jobs == nil {
		return
	}
	msg, err := queue.NewSheetJob(queue.SheetJob{ClassID: s.ClassID, SessionKey: s.Key})
	if err != nil {
		n.log.Error().Err(err).Msg("encode sheet job failed")
		return
	}
	if err := n.jobs.Publish(ctx, msg); err != nil {
		n.log.Error().Err(err).Str("class_id", s.ClassID).Msg("queue publish failed")
	}
}

// ClassesChanged announces a class list change for ownerEmail. Deletions
// also go to the class's session topic so open analyses notice.
func (n *Notifier) ClassesChanged(ctx context.Context, ownerEmail, kind, classID string) {
	if err := n.hub.Publish(ctx, Event{Topic: FacultyClassesTopic(ownerEmail), Kind: kind, ID: classID}); err != nil {
		n.log.Error().Err(err).Str("email", ownerEmail).Msg("publish class event failed")
	}
	if kind == "class.deleted" {
		if err := n.hub.Publish(ctx, Event{Topic: ClassSessionsTopic(classID), Kind: kind, ID: classID}); err != nil {
			n.log.Error().Err(err).Str("class_id", classID).Msg("publish class event failed")
		}
	}
}

// Package worker pre-renders attendance sheets off the request path.
package worker

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"attendsync/internal/attendance"
	"attendsync/internal/cloudinary"
	"attendsync/internal/queue"
	"attendsync/internal/report"
	"attendsync/internal/roster"
)

// Uploader stores a rendered document and returns its location.
type Uploader interface {
	UploadDocument(ctx context.Context, publicID, filename string, data []byte) (*cloudinary.UploadResult, error)
}

// Cache remembers where a session's sheet was uploaded.
type Cache interface {
	SetSheetURL(ctx context.Context, classID, sessionKey, url string, ttl time.Duration) error
}

// Config wires a Worker. Uploader and Cache may be nil.
type Config struct {
	Store    attendance.Store
	Rosters  *roster.Resolver
	Uploader Uploader
	Cache    Cache
	CacheTTL time.Duration
	Logger   zerolog.Logger
}

// Worker consumes queue messages one at a time.
type Worker struct {
	cfg Config
	log zerolog.Logger
}

// New creates a worker.
func New(cfg Config) *Worker {
	return &Worker{cfg: cfg, log: cfg.Logger.With().Str("component", "worker").Logger()}
}

// Run consumes q until ctx is done. Failed jobs are logged and dropped.
func (w *Worker) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	w.log.Info().Msg("worker started, waiting for messages")
	for msg := range messages {
		if err := w.Handle(ctx, msg); err != nil {
			w.log.Error().Err(err).Str("type", msg.Type).Msg("job failed")
		}
	}
	return nil
}

// Handle processes a single message. Unknown types are ignored.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) error {
	if msg.Type != queue.TypeSheetRender {
		w.log.Debug().Str("type", msg.Type).Msg("skipping unknown job")
		return nil
	}
	job, err := queue.DecodeSheetJob(msg)
	if err != nil {
		return fmt.Errorf("decode sheet job: %w", err)
	}
	_, err = w.RenderSheet(ctx, job)
	return err
}

// RenderSheet renders the sheet of one session and, when an uploader is
// configured, uploads it and caches the URL. It returns the PDF bytes.
func (w *Worker) RenderSheet(ctx context.Context, job queue.SheetJob) ([]byte, error) {
	cls, err := w.cfg.Store.GetClass(ctx, job.ClassID)
	if err != nil {
		return nil, fmt.Errorf("load class %s: %w", job.ClassID, err)
	}
	sess, err := w.cfg.Store.GetSession(ctx, job.ClassID, job.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", job.SessionKey, err)
	}
	students, err := w.cfg.Rosters.Roster(ctx, cls.Descriptor())
	if err != nil {
		return nil, err
	}
	doc := report.AttendanceSheet(cls, sess, students)
	var buf bytes.Buffer
	if err := doc.PDF(&buf); err != nil {
		return nil, fmt.Errorf("render sheet: %w", err)
	}
	log := w.log.With().Str("class_id", cls.ID).Str("session", sess.Key).Logger()
	if w.cfg.Uploader == nil {
		log.Debug().Int("bytes", buf.Len()).Msg("sheet rendered, no uploader")
		return buf.Bytes(), nil
	}

	res, err := w.cfg.Uploader.UploadDocument(ctx, "sheets/"+cls.ID+"/"+sess.Key, doc.Filename, buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("upload sheet: %w", err)
	}
	if w.cfg.Cache != nil {
		if err := w.cfg.Cache.SetSheetURL(ctx, cls.ID, sess.Key, res.SecureURL, w.cfg.CacheTTL); err != nil {
			log.Warn().Err(err).Msg("cache sheet url failed")
		}
	}
	log.Info().Str("url", res.SecureURL).Msg("sheet uploaded")
	return buf.Bytes(), nil
}

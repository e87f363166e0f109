package classes

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"attendsync/internal/attendance"
	"attendsync/internal/metrics"
	"attendsync/internal/validate"
)

// Input is the user-supplied part of a new class.
type Input struct {
	Program   string `json:"program" validate:"required"`
	Branch    string `json:"branch" validate:"required"`
	Year      string `json:"year" validate:"required"`
	ClassName string `json:"className" validate:"required"`
}

// Creator is the faculty account creating a class.
type Creator struct {
	Name  string
	Email string
}

// Notifier is told about class list changes for a faculty account.
type Notifier interface {
	ClassesChanged(ctx context.Context, ownerEmail, kind, classID string)
}

type nopNotifier struct{}

func (nopNotifier) ClassesChanged(context.Context, string, string, string) {}

// Registry creates, deletes and lists classes.
type Registry struct {
	classes  attendance.ClassStore
	sessions attendance.SessionStore
	notify   Notifier
	now      func() time.Time
	log      zerolog.Logger
}

// NewRegistry creates a registry.
func NewRegistry(classes attendance.ClassStore, sessions attendance.SessionStore, notify Notifier, logger zerolog.Logger) *Registry {
	if notify == nil {
		notify = nopNotifier{}
	}
	return &Registry{
		classes:  classes,
		sessions: sessions,
		notify:   notify,
		now:      time.Now,
		log:      logger.With().Str("component", "classes").Logger(),
	}
}

// Create validates in and appends a new class owned by creator.
func (r *Registry) Create(ctx context.Context, in Input, creator Creator) (attendance.Class, error) {
	in.Program = strings.TrimSpace(in.Program)
	in.Year = strings.TrimSpace(in.Year)
	in.ClassName = strings.TrimSpace(in.ClassName)
	in.Branch = NormalizeBranch(in.Program, strings.TrimSpace(in.Branch))
	if err := validate.Struct(in); err != nil {
		return attendance.Class{}, err
	}
	if creator.Email == "" {
		return attendance.Class{}, attendance.Invalid("creator email is missing")
	}
	p, ok := LookupProgram(in.Program)
	if !ok {
		return attendance.Class{}, attendance.Invalid("unknown program", attendance.FieldError{Field: "program", Error: "not offered"})
	}
	if !p.hasBranch(in.Branch) {
		return attendance.Class{}, attendance.Invalid("unknown branch", attendance.FieldError{Field: "branch", Error: "not offered for " + p.Name})
	}
	if !p.hasYear(in.Year) {
		return attendance.Class{}, attendance.Invalid("unknown year", attendance.FieldError{Field: "year", Error: "not offered for " + p.Name})
	}

	c, err := r.classes.CreateClass(ctx, attendance.Class{
		Program:        in.Program,
		Branch:         in.Branch,
		Year:           in.Year,
		ClassName:      in.ClassName,
		CreatedBy:      creator.Name,
		CreatedByEmail: creator.Email,
		Timestamp:      r.now().UnixMilli(),
	})
	if err != nil {
		metrics.ClassEvents.WithLabelValues("create", "error").Inc()
		r.log.Error().Err(err).Str("class", in.ClassName).Msg("create class failed")
		return attendance.Class{}, fmt.Errorf("create class: %w", err)
	}
	metrics.ClassEvents.WithLabelValues("create", "ok").Inc()
	r.log.Info().Str("class_id", c.ID).Str("class", c.ClassName).Msg("class created")
	r.notify.ClassesChanged(ctx, c.CreatedByEmail, "class.created", c.ID)
	return c, nil
}

// Get returns a class owned by ownerEmail.
func (r *Registry) Get(ctx context.Context, classID, ownerEmail string) (attendance.Class, error) {
	c, err := r.classes.GetClass(ctx, classID)
	if err != nil {
		return attendance.Class{}, err
	}
	if !strings.EqualFold(c.CreatedByEmail, ownerEmail) {
		return attendance.Class{}, attendance.ErrForbidden
	}
	return c, nil
}

// Delete removes the class record and, as a separate call, its sessions.
// Both calls are always attempted and neither is rolled back when the
// other fails, so a partial failure can leave orphaned sessions or
// sessions without a class.
func (r *Registry) Delete(ctx context.Context, classID, requesterEmail string) error {
	c, err := r.Get(ctx, classID, requesterEmail)
	if err != nil {
		return err
	}

	var errs []error
	if err := r.classes.DeleteClass(ctx, classID); err != nil {
		r.log.Error().Err(err).Str("class_id", classID).Msg("delete class record failed")
		errs = append(errs, fmt.Errorf("delete class: %w", err))
	} else {
		r.log.Info().Str("class_id", classID).Str("class", c.ClassName).Msg("class deleted")
	}
	if err := r.sessions.DeleteSessions(ctx, classID); err != nil {
		r.log.Error().Err(err).Str("class_id", classID).Msg("delete attendance records failed")
		errs = append(errs, fmt.Errorf("delete sessions: %w", err))
	} else {
		r.log.Info().Str("class_id", classID).Msg("attendance records deleted")
	}

	if len(errs) > 0 {
		metrics.ClassEvents.WithLabelValues("delete", "partial").Inc()
	} else {
		metrics.ClassEvents.WithLabelValues("delete", "ok").Inc()
	}
	r.notify.ClassesChanged(ctx, c.CreatedByEmail, "class.deleted", classID)
	return errors.Join(errs...)
}

// ListForCreator returns the classes created by email, oldest first.
func (r *Registry) ListForCreator(ctx context.Context, email string) ([]attendance.Class, error) {
	list, err := r.classes.ClassesByCreator(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	sortClasses(list)
	return list, nil
}

// ListForStudent returns the classes taught to s's cohort.
func (r *Registry) ListForStudent(ctx context.Context, s attendance.Student) ([]attendance.Class, error) {
	list, err := r.classes.ClassesByProgram(ctx, s.Program)
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	out := list[:0]
	for _, c := range list {
		if c.Branch == s.Branch && c.Year == s.Year {
			out = append(out, c)
		}
	}
	sortClasses(out)
	return out, nil
}

// Group is the classes of one program.
type Group struct {
	Program string             `json:"program"`
	Classes []attendance.Class `json:"classes"`
}

// GroupByProgram groups classes by program in first-seen order.
func GroupByProgram(list []attendance.Class) []Group {
	var groups []Group
	index := make(map[string]int)
	for _, c := range list {
		p := c.Program
		if p == "" {
			p = "Unknown Program"
		}
		i, ok := index[p]
		if !ok {
			i = len(groups)
			index[p] = i
			groups = append(groups, Group{Program: p})
		}
		groups[i].Classes = append(groups[i].Classes, c)
	}
	return groups
}

func sortClasses(list []attendance.Class) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Timestamp != list[j].Timestamp {
			return list[i].Timestamp < list[j].Timestamp
		}
		return list[i].ID < list[j].ID
	})
}

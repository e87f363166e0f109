package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"attendsync/internal/attendance"
	"attendsync/internal/auth"
)

// Memory is an in-process store for development and tests. Each table has
// its own lock, mirroring independent paths in a hosted document store.
type Memory struct {
	students    table[attendance.Student]
	classes     table[attendance.Class]
	credentials table[auth.Credential]

	sessionsMu sync.RWMutex
	sessions   map[string]map[string]attendance.Session

	tokensMu sync.Mutex
	tokens   map[string]refreshToken
}

type table[T any] struct {
	mu sync.RWMutex
	t  map[string]T
}

type refreshToken struct {
	subject   string
	expiresAt time.Time
	revoked   bool
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		students:    table[attendance.Student]{t: make(map[string]attendance.Student)},
		classes:     table[attendance.Class]{t: make(map[string]attendance.Class)},
		credentials: table[auth.Credential]{t: make(map[string]auth.Credential)},
		sessions:    make(map[string]map[string]attendance.Session),
		tokens:      make(map[string]refreshToken),
	}
}

func (t *table[T]) get(key string) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.t[key]
	return v, ok
}

func (t *table[T]) put(key string, v T) {
	t.mu.Lock()
	t.t[key] = v
	t.mu.Unlock()
}

func (t *table[T]) filter(keep func(T) bool) []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []T
	for _, v := range t.t {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

// PutStudent writes s at its id.
func (m *Memory) PutStudent(_ context.Context, s attendance.Student) error {
	if s.ID == "" {
		return attendance.Invalid("student id is required")
	}
	m.students.put(s.ID, s)
	return nil
}

// GetStudent returns the student with id.
func (m *Memory) GetStudent(_ context.Context, id string) (attendance.Student, error) {
	s, ok := m.students.get(id)
	if !ok {
		return attendance.Student{}, attendance.ErrNotFound
	}
	return s, nil
}

// StudentByEmail returns the first student with email.
func (m *Memory) StudentByEmail(_ context.Context, email string) (attendance.Student, error) {
	found := m.students.filter(func(s attendance.Student) bool { return strings.EqualFold(s.Email, email) })
	if len(found) == 0 {
		return attendance.Student{}, attendance.ErrNotFound
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ID < found[j].ID })
	return found[0], nil
}

// StudentsByProgram returns students whose program equals program.
func (m *Memory) StudentsByProgram(_ context.Context, program string) ([]attendance.Student, error) {
	out := m.students.filter(func(s attendance.Student) bool { return s.Program == program })
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateStudentImage sets the profile image of student id.
func (m *Memory) UpdateStudentImage(_ context.Context, id, image string) error {
	m.students.mu.Lock()
	defer m.students.mu.Unlock()
	s, ok := m.students.t[id]
	if !ok {
		return attendance.ErrNotFound
	}
	s.ProfileImage = image
	m.students.t[id] = s
	return nil
}

// CreateClass stores c under a new random key.
func (m *Memory) CreateClass(_ context.Context, c attendance.Class) (attendance.Class, error) {
	c.ID = uuid.NewString()
	m.classes.put(c.ID, c)
	return c, nil
}

// GetClass returns class id.
func (m *Memory) GetClass(_ context.Context, id string) (attendance.Class, error) {
	c, ok := m.classes.get(id)
	if !ok {
		return attendance.Class{}, attendance.ErrNotFound
	}
	return c, nil
}

// DeleteClass removes class id. Deleting a missing class is not an error.
func (m *Memory) DeleteClass(_ context.Context, id string) error {
	m.classes.mu.Lock()
	delete(m.classes.t, id)
	m.classes.mu.Unlock()
	return nil
}

// ClassesByCreator returns classes whose createdByEmail equals email.
func (m *Memory) ClassesByCreator(_ context.Context, email string) ([]attendance.Class, error) {
	return m.classes.filter(func(c attendance.Class) bool { return c.CreatedByEmail == email }), nil
}

// ClassesByProgram returns classes whose program equals program.
func (m *Memory) ClassesByProgram(_ context.Context, program string) ([]attendance.Class, error) {
	return m.classes.filter(func(c attendance.Class) bool { return c.Program == program }), nil
}

// PutSession writes s under its class and key. Sessions are append-only:
// an existing key returns attendance.ErrConflict.
func (m *Memory) PutSession(_ context.Context, s attendance.Session) error {
	if s.ClassID == "" || s.Key == "" {
		return attendance.Invalid("session class and key are required")
	}
	m.sessionsMu.Lock()
	defer m.sessionsMu.Unlock()
	if m.sessions[s.ClassID] == nil {
		m.sessions[s.ClassID] = make(map[string]attendance.Session)
	}
	if _, ok := m.sessions[s.ClassID][s.Key]; ok {
		return fmt.Errorf("session %s/%s: %w", s.ClassID, s.Key, attendance.ErrConflict)
	}
	m.sessions[s.ClassID][s.Key] = copySession(s)
	return nil
}

// GetSession returns one session.
func (m *Memory) GetSession(_ context.Context, classID, key string) (attendance.Session, error) {
	m.sessionsMu.RLock()
	defer m.sessionsMu.RUnlock()
	s, ok := m.sessions[classID][key]
	if !ok {
		return attendance.Session{}, attendance.ErrNotFound
	}
	return copySession(s), nil
}

// SessionsInRange returns sessions with from <= timestamp <= to, oldest first.
func (m *Memory) SessionsInRange(_ context.Context, classID string, from, to int64) ([]attendance.Session, error) {
	return m.sessionsWhere(classID, func(s attendance.Session) bool {
		return s.Timestamp >= from && s.Timestamp <= to
	}), nil
}

// Sessions returns every session of classID, oldest first.
func (m *Memory) Sessions(_ context.Context, classID string) ([]attendance.Session, error) {
	return m.sessionsWhere(classID, func(attendance.Session) bool { return true }), nil
}

// DeleteSessions removes every session of classID.
func (m *Memory) DeleteSessions(_ context.Context, classID string) error {
	m.sessionsMu.Lock()
	delete(m.sessions, classID)
	m.sessionsMu.Unlock()
	return nil
}

func (m *Memory) sessionsWhere(classID string, keep func(attendance.Session) bool) []attendance.Session {
	m.sessionsMu.RLock()
	defer m.sessionsMu.RUnlock()
	var out []attendance.Session
	for _, s := range m.sessions[classID] {
		if keep(s) {
			out = append(out, copySession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func copySession(s attendance.Session) attendance.Session {
	rec := make(map[string]string, len(s.Records))
	for k, v := range s.Records {
		rec[k] = v
	}
	s.Records = rec
	return s
}

// PutCredential stores c keyed by its normalized email.
func (m *Memory) PutCredential(_ context.Context, c auth.Credential) error {
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	m.credentials.put(c.Email, c)
	return nil
}

// CredentialByEmail returns the credential for email.
func (m *Memory) CredentialByEmail(_ context.Context, email string) (auth.Credential, error) {
	c, ok := m.credentials.get(strings.ToLower(strings.TrimSpace(email)))
	if !ok {
		return auth.Credential{}, attendance.ErrNotFound
	}
	return c, nil
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (m *Memory) SaveRefreshToken(_ context.Context, subject, token string, expiresAt time.Time) error {
	m.tokensMu.Lock()
	m.tokens[token] = refreshToken{subject: subject, expiresAt: expiresAt}
	m.tokensMu.Unlock()
	return nil
}

// RevokeRefreshToken marks a token revoked.
func (m *Memory) RevokeRefreshToken(_ context.Context, token string) error {
	m.tokensMu.Lock()
	defer m.tokensMu.Unlock()
	if t, ok := m.tokens[token]; ok {
		t.revoked = true
		m.tokens[token] = t
	}
	return nil
}

// RefreshTokenActive reports whether token was issued, is unrevoked and unexpired.
func (m *Memory) RefreshTokenActive(_ context.Context, token string) (bool, error) {
	m.tokensMu.Lock()
	defer m.tokensMu.Unlock()
	t, ok := m.tokens[token]
	return ok && !t.revoked && time.Now().Before(t.expiresAt), nil
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"attendsync/internal/attendance"
	"attendsync/internal/metrics"
)

// Role separates faculty from student accounts.
type Role string

const (
	RoleFaculty Role = "faculty"
	RoleStudent Role = "student"
)

// Identity is a signed-in account.
type Identity struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

// Credential is a stored password hash for an email.
type Credential struct {
	UID   string
	Email string
	Hash  []byte
}

// CredentialStore persists password hashes keyed by normalized email.
type CredentialStore interface {
	PutCredential(ctx context.Context, c Credential) error
	// CredentialByEmail returns attendance.ErrNotFound when no credential exists.
	CredentialByEmail(ctx context.Context, email string) (Credential, error)
}

// TokenStore tracks issued refresh tokens for rotation and sign-out.
type TokenStore interface {
	SaveRefreshToken(ctx context.Context, subject, token string, expiresAt time.Time) error
	RevokeRefreshToken(ctx context.Context, token string) error
	RefreshTokenActive(ctx context.Context, token string) (bool, error)
}

// StateChange is delivered to listeners on sign-in and sign-out.
type StateChange struct {
	Identity Identity
	SignedIn bool
}

// Gate wraps credential checks, the faculty allow-list and token issue.
type Gate struct {
	creds    CredentialStore
	tokens   TokenStore
	students attendance.StudentStore
	allow    AllowList
	signer   Signer
	log      zerolog.Logger

	mu        sync.Mutex
	nextID    int
	listeners map[int]func(StateChange)
}

// NewGate creates a gate.
func NewGate(creds CredentialStore, tokens TokenStore, students attendance.StudentStore, allow AllowList, signer Signer, logger zerolog.Logger) *Gate {
	return &Gate{
		creds:     creds,
		tokens:    tokens,
		students:  students,
		allow:     allow,
		signer:    signer,
		log:       logger.With().Str("component", "auth").Logger(),
		listeners: make(map[int]func(StateChange)),
	}
}

// AllowList returns the configured faculty allow-list.
func (g *Gate) AllowList() AllowList { return g.allow }

// Signer returns the token signer.
func (g *Gate) Signer() Signer { return g.signer }

// OnStateChange registers fn for sign-in/sign-out notifications and returns
// a func that removes it.
func (g *Gate) OnStateChange(fn func(StateChange)) func() {
	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.listeners[id] = fn
	g.mu.Unlock()
	return func() {
		g.mu.Lock()
		delete(g.listeners, id)
		g.mu.Unlock()
	}
}

func (g *Gate) emit(ch StateChange) {
	g.mu.Lock()
	fns := make([]func(StateChange), 0, len(g.listeners))
	for _, fn := range g.listeners {
		fns = append(fns, fn)
	}
	g.mu.Unlock()
	for _, fn := range fns {
		fn(ch)
	}
}

// SignIn checks email/password for role and issues tokens.
func (g *Gate) SignIn(ctx context.Context, email, password string, role Role) (Identity, TokenPair, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Identity{}, TokenPair{}, attendance.Invalid("email and password are required")
	}

	cred, err := g.creds.CredentialByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, attendance.ErrNotFound) {
			metrics.SignIns.WithLabelValues(string(role), "bad_credentials").Inc()
			return Identity{}, TokenPair{}, attendance.ErrInvalidCredentials
		}
		return Identity{}, TokenPair{}, fmt.Errorf("load credential: %w", err)
	}
	if bcrypt.CompareHashAndPassword(cred.Hash, []byte(password)) != nil {
		metrics.SignIns.WithLabelValues(string(role), "bad_credentials").Inc()
		return Identity{}, TokenPair{}, attendance.ErrInvalidCredentials
	}

	id, err := g.resolve(ctx, cred.UID, email, role)
	if err != nil {
		metrics.SignIns.WithLabelValues(string(role), "denied").Inc()
		return Identity{}, TokenPair{}, err
	}
	return g.start(ctx, id)
}

// Exchange signs in an email already verified by an external identity
// provider. Allow-listed emails become faculty; otherwise a student record
// must exist.
func (g *Gate) Exchange(ctx context.Context, uid, email string) (Identity, TokenPair, error) {
	email = normalizeEmail(email)
	role := RoleStudent
	if _, ok := g.allow.Lookup(email); ok {
		role = RoleFaculty
	}
	id, err := g.resolve(ctx, uid, email, role)
	if err != nil {
		metrics.SignIns.WithLabelValues(string(role), "denied").Inc()
		return Identity{}, TokenPair{}, err
	}
	return g.start(ctx, id)
}

func (g *Gate) resolve(ctx context.Context, uid, email string, role Role) (Identity, error) {
	switch role {
	case RoleFaculty:
		f, ok := g.allow.Lookup(email)
		if !ok {
			g.log.Warn().Str("email", email).Msg("unauthorized faculty sign-in attempt")
			return Identity{}, attendance.ErrAccessDenied
		}
		name := f.Name
		if name == "" {
			name = "Faculty"
		}
		return Identity{UID: uid, Email: email, Name: name, Role: RoleFaculty}, nil
	case RoleStudent:
		s, err := g.students.StudentByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, attendance.ErrNotFound) {
				return Identity{}, fmt.Errorf("student record not found: %w", attendance.ErrNotFound)
			}
			return Identity{}, fmt.Errorf("load student: %w", err)
		}
		return Identity{UID: s.ID, Email: email, Name: s.Name, Role: RoleStudent}, nil
	default:
		return Identity{}, attendance.Invalid("unknown role")
	}
}

func (g *Gate) start(ctx context.Context, id Identity) (Identity, TokenPair, error) {
	tokens, err := g.signer.Issue(id)
	if err != nil {
		return Identity{}, TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}
	if err := g.tokens.SaveRefreshToken(ctx, id.UID, tokens.RefreshToken, tokens.RefreshExp); err != nil {
		return Identity{}, TokenPair{}, fmt.Errorf("save refresh token: %w", err)
	}
	metrics.SignIns.WithLabelValues(string(id.Role), "ok").Inc()
	g.log.Info().Str("email", id.Email).Str("role", string(id.Role)).Msg("signed in")
	g.emit(StateChange{Identity: id, SignedIn: true})
	return id, tokens, nil
}

// Refresh rotates a refresh token. The old token is revoked.
func (g *Gate) Refresh(ctx context.Context, refreshToken string) (Identity, TokenPair, error) {
	claims, err := g.signer.Parse(refreshToken)
	if err != nil || claims.Type != tokenRefresh {
		return Identity{}, TokenPair{}, attendance.ErrInvalidCredentials
	}
	active, err := g.tokens.RefreshTokenActive(ctx, refreshToken)
	if err != nil {
		return Identity{}, TokenPair{}, fmt.Errorf("check refresh token: %w", err)
	}
	if !active {
		return Identity{}, TokenPair{}, attendance.ErrInvalidCredentials
	}
	id, err := g.Authorize(claims)
	if err != nil {
		return Identity{}, TokenPair{}, err
	}
	if err := g.tokens.RevokeRefreshToken(ctx, refreshToken); err != nil {
		return Identity{}, TokenPair{}, fmt.Errorf("revoke refresh token: %w", err)
	}
	tokens, err := g.signer.Issue(id)
	if err != nil {
		return Identity{}, TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}
	if err := g.tokens.SaveRefreshToken(ctx, id.UID, tokens.RefreshToken, tokens.RefreshExp); err != nil {
		return Identity{}, TokenPair{}, fmt.Errorf("save refresh token: %w", err)
	}
	return id, tokens, nil
}

// SignOut revokes refreshToken (when given) and notifies listeners.
func (g *Gate) SignOut(ctx context.Context, refreshToken string, id Identity) error {
	if refreshToken != "" {
		if err := g.tokens.RevokeRefreshToken(ctx, refreshToken); err != nil {
			g.log.Error().Err(err).Str("email", id.Email).Msg("revoke on sign-out failed")
			return fmt.Errorf("revoke refresh token: %w", err)
		}
	}
	g.log.Info().Str("email", id.Email).Msg("signed out")
	g.emit(StateChange{Identity: id, SignedIn: false})
	return nil
}

// Authorize turns verified claims into an identity, re-checking the
// allow-list for faculty so removals take effect before token expiry.
func (g *Gate) Authorize(c Claims) (Identity, error) {
	id := c.identity()
	if id.Role == RoleFaculty {
		f, ok := g.allow.Lookup(id.Email)
		if !ok {
			return Identity{}, attendance.ErrAccessDenied
		}
		if f.Name != "" {
			id.Name = f.Name
		}
	}
	if id.Role != RoleFaculty && id.Role != RoleStudent {
		return Identity{}, attendance.ErrForbidden
	}
	return id, nil
}

// Register creates a credential for a new student account and returns its
// uid. Allow-listed faculty emails are refused. A credential left without a
// student record is taken over, keeping its uid.
func (g *Gate) Register(ctx context.Context, email, password string) (string, error) {
	email = normalizeEmail(email)
	if _, ok := g.allow.Lookup(email); ok {
		g.log.Warn().Str("email", email).Msg("student registration with faculty email refused")
		return "", fmt.Errorf("email %s is reserved for faculty: %w", email, attendance.ErrConflict)
	}
	uid := uuid.NewString()
	cred, err := g.creds.CredentialByEmail(ctx, email)
	switch {
	case err == nil:
		if _, err := g.students.StudentByEmail(ctx, email); err == nil {
			return "", fmt.Errorf("email %s: %w", email, attendance.ErrConflict)
		} else if !errors.Is(err, attendance.ErrNotFound) {
			return "", fmt.Errorf("load student: %w", err)
		}
		g.log.Warn().Str("email", email).Msg("reclaiming credential without student record")
		uid = cred.UID
	case !errors.Is(err, attendance.ErrNotFound):
		return "", fmt.Errorf("load credential: %w", err)
	}
	if err := g.putPassword(ctx, uid, email, password); err != nil {
		return "", err
	}
	return uid, nil
}

// SetPassword creates or replaces the credential for email, keeping its uid.
func (g *Gate) SetPassword(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	uid := uuid.NewString()
	if cred, err := g.creds.CredentialByEmail(ctx, email); err == nil {
		uid = cred.UID
	} else if !errors.Is(err, attendance.ErrNotFound) {
		return fmt.Errorf("load credential: %w", err)
	}
	return g.putPassword(ctx, uid, email, password)
}

func (g *Gate) putPassword(ctx context.Context, uid, email, password string) error {
	if len(password) < 6 {
		return attendance.Invalid("password must be at least 6 characters",
			attendance.FieldError{Field: "password", Error: "min 6 characters"})
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return g.creds.PutCredential(ctx, Credential{UID: uid, Email: email, Hash: hash})
}

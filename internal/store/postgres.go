package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"attendsync/internal/attendance"
	"attendsync/internal/auth"
)

// Postgres persists attendance data in Postgres.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a store on db.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// uniqueViolation is the SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

const studentColumns = `id, name, program, branch, year, institute_id, email, contact_number, dob, profile_image, created_at`

func scanStudent(row interface{ Scan(...any) error }) (attendance.Student, error) {
	var s attendance.Student
	err := row.Scan(&s.ID, &s.Name, &s.Program, &s.Branch, &s.Year, &s.InstituteID, &s.Email, &s.ContactNumber, &s.DOB, &s.ProfileImage, &s.CreatedAt)
	return s, err
}

// PutStudent writes s at its id, replacing any existing row.
func (p *Postgres) PutStudent(ctx context.Context, s attendance.Student) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO students (`+studentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, program = EXCLUDED.program, branch = EXCLUDED.branch,
			year = EXCLUDED.year, institute_id = EXCLUDED.institute_id, email = EXCLUDED.email,
			contact_number = EXCLUDED.contact_number, dob = EXCLUDED.dob,
			profile_image = EXCLUDED.profile_image, created_at = EXCLUDED.created_at
	`, s.ID, s.Name, s.Program, s.Branch, s.Year, s.InstituteID, s.Email, s.ContactNumber, s.DOB, s.ProfileImage, s.CreatedAt)
	return err
}

// GetStudent returns a single student by id.
func (p *Postgres) GetStudent(ctx context.Context, id string) (attendance.Student, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id)
	s, err := scanStudent(row)
	return s, notFound(err)
}

// StudentByEmail returns the student registered with email.
func (p *Postgres) StudentByEmail(ctx context.Context, email string) (attendance.Student, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+studentColumns+` FROM students WHERE lower(email) = lower($1) ORDER BY id LIMIT 1
	`, email)
	s, err := scanStudent(row)
	return s, notFound(err)
}

// StudentsByProgram returns students of program.
func (p *Postgres) StudentsByProgram(ctx context.Context, program string) ([]attendance.Student, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+studentColumns+` FROM students WHERE program = $1 ORDER BY id`, program)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []attendance.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// UpdateStudentImage sets the profile image of student id.
func (p *Postgres) UpdateStudentImage(ctx context.Context, id, image string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE students SET profile_image = $2 WHERE id = $1`, id, image)
	if err != nil {
		return err
	}
	return requireRow(res)
}

const classColumns = `id, program, branch, year, class_name, created_by, created_by_email, created_at`

func scanClass(row interface{ Scan(...any) error }) (attendance.Class, error) {
	var c attendance.Class
	err := row.Scan(&c.ID, &c.Program, &c.Branch, &c.Year, &c.ClassName, &c.CreatedBy, &c.CreatedByEmail, &c.Timestamp)
	return c, err
}

// CreateClass inserts c under a generated id.
func (p *Postgres) CreateClass(ctx context.Context, c attendance.Class) (attendance.Class, error) {
	c.ID = uuid.NewString()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO classes (`+classColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, c.ID, c.Program, c.Branch, c.Year, c.ClassName, c.CreatedBy, c.CreatedByEmail, c.Timestamp)
	if err != nil {
		return attendance.Class{}, err
	}
	return c, nil
}

// GetClass returns a single class by id.
func (p *Postgres) GetClass(ctx context.Context, id string) (attendance.Class, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+classColumns+` FROM classes WHERE id = $1`, id)
	c, err := scanClass(row)
	return c, notFound(err)
}

// DeleteClass removes the class row only.
func (p *Postgres) DeleteClass(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM classes WHERE id = $1`, id)
	return err
}

// ClassesByCreator returns classes created by email.
func (p *Postgres) ClassesByCreator(ctx context.Context, email string) ([]attendance.Class, error) {
	return p.listClasses(ctx, `created_by_email`, email)
}

// ClassesByProgram returns classes of program.
func (p *Postgres) ClassesByProgram(ctx context.Context, program string) ([]attendance.Class, error) {
	return p.listClasses(ctx, `program`, program)
}

func (p *Postgres) listClasses(ctx context.Context, column, value string) ([]attendance.Class, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+classColumns+` FROM classes WHERE `+column+` = $1 ORDER BY created_at, id`, value)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []attendance.Class
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

const sessionColumns = `class_id, session_key, session_date, session_time, ts, class_name, marked_by, records`

func scanSession(row interface{ Scan(...any) error }) (attendance.Session, error) {
	var (
		s   attendance.Session
		raw []byte
	)
	if err := row.Scan(&s.ClassID, &s.Key, &s.Date, &s.Time, &s.Timestamp, &s.ClassName, &s.MarkedBy, &raw); err != nil {
		return attendance.Session{}, err
	}
	if err := json.Unmarshal(raw, &s.Records); err != nil {
		return attendance.Session{}, fmt.Errorf("decode records of %s/%s: %w", s.ClassID, s.Key, err)
	}
	return s, nil
}

// PutSession writes s in a single statement.
func (p *Postgres) PutSession(ctx context.Context, s attendance.Session) error {
	raw, err := json.Marshal(s.Records)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO attendance_sessions (`+sessionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, s.ClassID, s.Key, s.Date, s.Time, s.Timestamp, s.ClassName, s.MarkedBy, raw)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("session %s/%s: %w", s.ClassID, s.Key, attendance.ErrConflict)
	}
	return err
}

// GetSession returns one session.
func (p *Postgres) GetSession(ctx context.Context, classID, key string) (attendance.Session, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM attendance_sessions WHERE class_id = $1 AND session_key = $2
	`, classID, key)
	s, err := scanSession(row)
	return s, notFound(err)
}

// SessionsInRange returns sessions of classID with from <= ts <= to.
func (p *Postgres) SessionsInRange(ctx context.Context, classID string, from, to int64) ([]attendance.Session, error) {
	return p.listSessions(ctx, ` AND ts BETWEEN $2 AND $3`, classID, from, to)
}

// Sessions returns every session of classID.
func (p *Postgres) Sessions(ctx context.Context, classID string) ([]attendance.Session, error) {
	return p.listSessions(ctx, "", classID)
}

func (p *Postgres) listSessions(ctx context.Context, extra string, args ...any) ([]attendance.Session, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM attendance_sessions
		WHERE class_id = $1`+extra+`
		ORDER BY ts, session_key
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []attendance.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// DeleteSessions removes every session of classID.
func (p *Postgres) DeleteSessions(ctx context.Context, classID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM attendance_sessions WHERE class_id = $1`, classID)
	return err
}

// PutCredential upserts a credential.
func (p *Postgres) PutCredential(ctx context.Context, c auth.Credential) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO credentials (email, uid, password_hash)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET password_hash = EXCLUDED.password_hash
	`, strings.ToLower(strings.TrimSpace(c.Email)), c.UID, c.Hash)
	return err
}

// CredentialByEmail returns the credential for email.
func (p *Postgres) CredentialByEmail(ctx context.Context, email string) (auth.Credential, error) {
	var c auth.Credential
	err := p.db.QueryRowContext(ctx, `
		SELECT email, uid, password_hash FROM credentials WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(email))).Scan(&c.Email, &c.UID, &c.Hash)
	return c, notFound(err)
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (p *Postgres) SaveRefreshToken(ctx context.Context, subject, token string, expiresAt time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token, subject, expires_at)
		VALUES ($1, $2, $3)
	`, token, subject, expiresAt)
	return err
}

// RevokeRefreshToken marks a token revoked.
func (p *Postgres) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := p.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE token = $1`, token)
	return err
}

// RefreshTokenActive reports whether token is known, unrevoked and unexpired.
func (p *Postgres) RefreshTokenActive(ctx context.Context, token string) (bool, error) {
	var active bool
	err := p.db.QueryRowContext(ctx, `
		SELECT NOT revoked AND expires_at > NOW() FROM refresh_tokens WHERE token = $1
	`, token).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return active, err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return attendance.ErrNotFound
	}
	return err
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return attendance.ErrNotFound
	}
	return nil
}

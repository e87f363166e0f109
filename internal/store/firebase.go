package store

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"google.golang.org/api/option"

	"attendsync/internal/attendance"
	"attendsync/internal/auth"
)

// NewFirebaseApp initializes a Firebase app bound to databaseURL. An empty
// credentialsFile falls back to application default credentials.
func NewFirebaseApp(ctx context.Context, databaseURL, credentialsFile string) (*firebase.App, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{DatabaseURL: databaseURL}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	return app, nil
}

// Firebase stores attendance data in the Firebase Realtime Database using
// the paths classes/, students/, attendance/{classId}/{key}.
type Firebase struct {
	client *db.Client
}

// NewFirebase opens the Realtime Database of app.
func NewFirebase(ctx context.Context, app *firebase.App) (*Firebase, error) {
	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase database: %w", err)
	}
	return &Firebase{client: client}, nil
}

type fbClass struct {
	Program        string `json:"program"`
	Branch         string `json:"branch"`
	Year           string `json:"year"`
	ClassName      string `json:"className"`
	CreatedBy      string `json:"createdBy"`
	CreatedByEmail string `json:"createdByEmail"`
	Timestamp      int64  `json:"timestamp"`
}

func (c fbClass) class(id string) attendance.Class {
	return attendance.Class{
		ID: id, Program: c.Program, Branch: c.Branch, Year: c.Year, ClassName: c.ClassName,
		CreatedBy: c.CreatedBy, CreatedByEmail: c.CreatedByEmail, Timestamp: c.Timestamp,
	}
}

type fbSession struct {
	Date      string            `json:"date"`
	Time      string            `json:"time"`
	Timestamp int64             `json:"timestamp"`
	ClassName string            `json:"className"`
	MarkedBy  string            `json:"markedBy"`
	Records   map[string]string `json:"records"`
}

func (s fbSession) session(classID, key string) attendance.Session {
	return attendance.Session{
		ClassID: classID, Key: key, Date: s.Date, Time: s.Time, Timestamp: s.Timestamp,
		ClassName: s.ClassName, MarkedBy: s.MarkedBy, Records: s.Records,
	}
}

type fbRefreshToken struct {
	Subject   string `json:"subject"`
	ExpiresAt int64  `json:"expiresAt"`
	Revoked   bool   `json:"revoked"`
}

// PutStudent writes s at students/{id}.
func (f *Firebase) PutStudent(ctx context.Context, s attendance.Student) error {
	if s.ID == "" {
		return attendance.Invalid("student id is required")
	}
	return f.client.NewRef("students").Child(s.ID).Set(ctx, s)
}

// GetStudent reads students/{id}.
func (f *Firebase) GetStudent(ctx context.Context, id string) (attendance.Student, error) {
	var s *attendance.Student
	if err := f.client.NewRef("students").Child(id).Get(ctx, &s); err != nil {
		return attendance.Student{}, err
	}
	if s == nil {
		return attendance.Student{}, attendance.ErrNotFound
	}
	s.ID = id
	return *s, nil
}

// StudentByEmail queries students ordered by email.
func (f *Firebase) StudentByEmail(ctx context.Context, email string) (attendance.Student, error) {
	found, err := f.queryStudents(ctx, "email", email)
	if err != nil {
		return attendance.Student{}, err
	}
	if len(found) == 0 {
		return attendance.Student{}, attendance.ErrNotFound
	}
	return found[0], nil
}

// StudentsByProgram queries students by program.
func (f *Firebase) StudentsByProgram(ctx context.Context, program string) ([]attendance.Student, error) {
	return f.queryStudents(ctx, "program", program)
}

func (f *Firebase) queryStudents(ctx context.Context, child, value string) ([]attendance.Student, error) {
	var raw map[string]attendance.Student
	if err := f.client.NewRef("students").OrderByChild(child).EqualTo(value).Get(ctx, &raw); err != nil {
		return nil, fmt.Errorf("query students by %s: %w", child, err)
	}
	out := make([]attendance.Student, 0, len(raw))
	for id, s := range raw {
		s.ID = id
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateStudentImage patches profileImage of students/{id}.
func (f *Firebase) UpdateStudentImage(ctx context.Context, id, image string) error {
	if _, err := f.GetStudent(ctx, id); err != nil {
		return err
	}
	return f.client.NewRef("students").Child(id).Update(ctx, map[string]interface{}{"profileImage": image})
}

// CreateClass pushes c under classes/ and returns it with the generated key.
func (f *Firebase) CreateClass(ctx context.Context, c attendance.Class) (attendance.Class, error) {
	ref, err := f.client.NewRef("classes").Push(ctx, fbClass{
		Program: c.Program, Branch: c.Branch, Year: c.Year, ClassName: c.ClassName,
		CreatedBy: c.CreatedBy, CreatedByEmail: c.CreatedByEmail, Timestamp: c.Timestamp,
	})
	if err != nil {
		return attendance.Class{}, err
	}
	c.ID = ref.Key
	return c, nil
}

// GetClass reads classes/{id}.
func (f *Firebase) GetClass(ctx context.Context, id string) (attendance.Class, error) {
	var c *fbClass
	if err := f.client.NewRef("classes").Child(id).Get(ctx, &c); err != nil {
		return attendance.Class{}, err
	}
	if c == nil {
		return attendance.Class{}, attendance.ErrNotFound
	}
	return c.class(id), nil
}

// DeleteClass removes classes/{id}.
func (f *Firebase) DeleteClass(ctx context.Context, id string) error {
	return f.client.NewRef("classes").Child(id).Delete(ctx)
}

// ClassesByCreator queries classes by createdByEmail.
func (f *Firebase) ClassesByCreator(ctx context.Context, email string) ([]attendance.Class, error) {
	return f.queryClasses(ctx, "createdByEmail", email)
}

// ClassesByProgram queries classes by program.
func (f *Firebase) ClassesByProgram(ctx context.Context, program string) ([]attendance.Class, error) {
	return f.queryClasses(ctx, "program", program)
}

func (f *Firebase) queryClasses(ctx context.Context, child, value string) ([]attendance.Class, error) {
	var raw map[string]fbClass
	if err := f.client.NewRef("classes").OrderByChild(child).EqualTo(value).Get(ctx, &raw); err != nil {
		return nil, fmt.Errorf("query classes by %s: %w", child, err)
	}
	out := make([]attendance.Class, 0, len(raw))
	for id, c := range raw {
		out = append(out, c.class(id))
	}
	return out, nil
}

// PutSession writes s at attendance/{classId}/{key}.
func (f *Firebase) PutSession(ctx context.Context, s attendance.Session) error {
	if s.ClassID == "" || s.Key == "" {
		return attendance.Invalid("session class and key are required")
	}
	return f.sessions(s.ClassID).Child(s.Key).Set(ctx, fbSession{
		Date: s.Date, Time: s.Time, Timestamp: s.Timestamp,
		ClassName: s.ClassName, MarkedBy: s.MarkedBy, Records: s.Records,
	})
}

// GetSession reads attendance/{classId}/{key}.
func (f *Firebase) GetSession(ctx context.Context, classID, key string) (attendance.Session, error) {
	var s *fbSession
	if err := f.sessions(classID).Child(key).Get(ctx, &s); err != nil {
		return attendance.Session{}, err
	}
	if s == nil {
		return attendance.Session{}, attendance.ErrNotFound
	}
	return s.session(classID, key), nil
}

// SessionsInRange queries sessions ordered by timestamp between from and to.
func (f *Firebase) SessionsInRange(ctx context.Context, classID string, from, to int64) ([]attendance.Session, error) {
	var raw map[string]fbSession
	q := f.sessions(classID).OrderByChild("timestamp").StartAt(from).EndAt(to)
	if err := q.Get(ctx, &raw); err != nil {
		return nil, fmt.Errorf("query sessions of %s: %w", classID, err)
	}
	return sortedSessions(classID, raw), nil
}

// Sessions reads every session of classID.
func (f *Firebase) Sessions(ctx context.Context, classID string) ([]attendance.Session, error) {
	var raw map[string]fbSession
	if err := f.sessions(classID).Get(ctx, &raw); err != nil {
		return nil, err
	}
	return sortedSessions(classID, raw), nil
}

// DeleteSessions removes attendance/{classId}.
func (f *Firebase) DeleteSessions(ctx context.Context, classID string) error {
	return f.sessions(classID).Delete(ctx)
}

func (f *Firebase) sessions(classID string) *db.Ref {
	return f.client.NewRef("attendance").Child(classID)
}

func sortedSessions(classID string, raw map[string]fbSession) []attendance.Session {
	out := make([]attendance.Session, 0, len(raw))
	for key, s := range raw {
		out = append(out, s.session(classID, key))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Database keys may not contain '.', so emails and tokens are encoded.
func emailKey(email string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strings.ToLower(strings.TrimSpace(email))))
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// PutCredential writes credentials/{emailKey}.
func (f *Firebase) PutCredential(ctx context.Context, c auth.Credential) error {
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	return f.client.NewRef("credentials").Child(emailKey(c.Email)).Set(ctx, c)
}

// CredentialByEmail reads credentials/{emailKey}.
func (f *Firebase) CredentialByEmail(ctx context.Context, email string) (auth.Credential, error) {
	var c *auth.Credential
	if err := f.client.NewRef("credentials").Child(emailKey(email)).Get(ctx, &c); err != nil {
		return auth.Credential{}, err
	}
	if c == nil {
		return auth.Credential{}, attendance.ErrNotFound
	}
	return *c, nil
}

// SaveRefreshToken writes refresh_tokens/{sha256(token)}.
func (f *Firebase) SaveRefreshToken(ctx context.Context, subject, token string, expiresAt time.Time) error {
	return f.client.NewRef("refresh_tokens").Child(tokenKey(token)).Set(ctx, fbRefreshToken{
		Subject: subject, ExpiresAt: expiresAt.UnixMilli(),
	})
}

// RevokeRefreshToken flags a stored token as revoked.
func (f *Firebase) RevokeRefreshToken(ctx context.Context, token string) error {
	return f.client.NewRef("refresh_tokens").Child(tokenKey(token)).Update(ctx, map[string]interface{}{"revoked": true})
}

// RefreshTokenActive reports whether token is stored, unrevoked and unexpired.
func (f *Firebase) RefreshTokenActive(ctx context.Context, token string) (bool, error) {
	var t *fbRefreshToken
	if err := f.client.NewRef("refresh_tokens").Child(tokenKey(token)).Get(ctx, &t); err != nil {
		return false, err
	}
	if t == nil {
		return false, nil
	}
	return !t.Revoked && time.Now().UnixMilli() < t.ExpiresAt, nil
}

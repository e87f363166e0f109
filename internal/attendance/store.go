package attendance

import "context"

// StudentStore reads and writes student records. Lookups other than by id
// use a single indexed equality predicate; anything finer is filtered by
// the caller.
type StudentStore interface {
	PutStudent(ctx context.Context, s Student) error
	GetStudent(ctx context.Context, id string) (Student, error)
	StudentByEmail(ctx context.Context, email string) (Student, error)
	StudentsByProgram(ctx context.Context, program string) ([]Student, error)
	UpdateStudentImage(ctx context.Context, id, image string) error
}

// ClassStore reads and writes class records.
type ClassStore interface {
	// CreateClass appends c under a store-generated key and returns it with ID set.
	CreateClass(ctx context.Context, c Class) (Class, error)
	GetClass(ctx context.Context, id string) (Class, error)
	DeleteClass(ctx context.Context, id string) error
	ClassesByCreator(ctx context.Context, email string) ([]Class, error)
	ClassesByProgram(ctx context.Context, program string) ([]Class, error)
}

// SessionStore reads and writes attendance sessions, grouped per class.
type SessionStore interface {
	PutSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, classID, key string) (Session, error)
	// SessionsInRange returns sessions whose timestamp lies in [from, to], both inclusive.
	SessionsInRange(ctx context.Context, classID string, from, to int64) ([]Session, error)
	Sessions(ctx context.Context, classID string) ([]Session, error)
	DeleteSessions(ctx context.Context, classID string) error
}

// Store is the full document store used by the service.
type Store interface {
	StudentStore
	ClassStore
	SessionStore
}

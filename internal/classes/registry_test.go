package classes

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendsync/internal/attendance"
	"attendsync/internal/store"
)

var owner = Creator{Name: "Dr. Rao", Email: "rao@uni.edu"}

type changes struct{ kinds []string }

func (c *changes) ClassesChanged(_ context.Context, _, kind, _ string) { c.kinds = append(c.kinds, kind) }

// failingSessions makes the session delete fail while everything else works.
type failingSessions struct {
	*store.Memory
	err error
}

func (f failingSessions) DeleteSessions(context.Context, string) error { return f.err }

func newRegistry(t *testing.T) (*Registry, *store.Memory, *changes) {
	t.Helper()
	m := store.NewMemory()
	ch := &changes{}
	return NewRegistry(m, m, ch, zerolog.Nop()), m, ch
}

func TestCreate(t *testing.T) {
	r, _, ch := newRegistry(t)

	c, err := r.Create(context.Background(), Input{Program: "B.Tech", Branch: "CSE", Year: "2nd Year", ClassName: " Networks "}, owner)
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "Networks", c.ClassName)
	assert.Equal(t, "rao@uni.edu", c.CreatedByEmail)
	assert.Equal(t, "Dr. Rao", c.CreatedBy)
	assert.NotZero(t, c.Timestamp)
	assert.Equal(t, []string{"class.created"}, ch.kinds)
}

func TestCreateForcesSingleBranch(t *testing.T) {
	r, _, _ := newRegistry(t)

	c, err := r.Create(context.Background(), Input{Program: "MCA", Branch: "CSE", Year: "1st Year", ClassName: "DBMS"}, owner)
	require.NoError(t, err)
	assert.Equal(t, "CS", c.Branch)

	c, err = r.Create(context.Background(), Input{Program: "MCA", Year: "1st Year", ClassName: "OS"}, owner)
	require.NoError(t, err)
	assert.Equal(t, "CS", c.Branch, "branch may be omitted for MCA")
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name string
		in   Input
	}{
		{name: "missing name", in: Input{Program: "B.Tech", Branch: "CSE", Year: "1st Year"}},
		{name: "blank name", in: Input{Program: "B.Tech", Branch: "CSE", Year: "1st Year", ClassName: "   "}},
		{name: "missing branch", in: Input{Program: "B.Tech", Year: "1st Year", ClassName: "X"}},
		{name: "unknown program", in: Input{Program: "PhD", Branch: "CSE", Year: "1st Year", ClassName: "X"}},
		{name: "branch not offered", in: Input{Program: "M.Tech", Branch: "AIML", Year: "1st Year", ClassName: "X"}},
		{name: "year not offered", in: Input{Program: "MCA", Branch: "CS", Year: "4th Year", ClassName: "X"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, m, ch := newRegistry(t)
			_, err := r.Create(context.Background(), tt.in, owner)
			require.Error(t, err)
			assert.True(t, attendance.IsValidation(err))
			list, _ := m.ClassesByCreator(context.Background(), owner.Email)
			assert.Empty(t, list)
			assert.Empty(t, ch.kinds)
		})
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	r, m, ch := newRegistry(t)
	c, err := r.Create(ctx, Input{Program: "B.Tech", Branch: "CSE", Year: "1st Year", ClassName: "Maths"}, owner)
	require.NoError(t, err)
	require.NoError(t, m.PutSession(ctx, attendance.Session{ClassID: c.ID, Key: "k1", Timestamp: 1, Records: map[string]string{"s": "present"}}))

	require.NoError(t, r.Delete(ctx, c.ID, "RAO@uni.edu"))

	_, err = m.GetClass(ctx, c.ID)
	assert.ErrorIs(t, err, attendance.ErrNotFound)
	sessions, err := m.Sessions(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.Equal(t, []string{"class.created", "class.deleted"}, ch.kinds)
}

func TestDeleteNotOwner(t *testing.T) {
	ctx := context.Background()
	r, m, _ := newRegistry(t)
	c, err := r.Create(ctx, Input{Program: "B.Tech", Branch: "CSE", Year: "1st Year", ClassName: "Maths"}, owner)
	require.NoError(t, err)

	err = r.Delete(ctx, c.ID, "someone@uni.edu")
	assert.ErrorIs(t, err, attendance.ErrForbidden)
	_, err = m.GetClass(ctx, c.ID)
	assert.NoError(t, err)
}

func TestDeleteLeavesOrphanedSessions(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	boom := errors.New("permission denied")
	r := NewRegistry(m, failingSessions{Memory: m, err: boom}, nil, zerolog.Nop())

	c, err := r.Create(ctx, Input{Program: "B.Tech", Branch: "CSE", Year: "1st Year", ClassName: "Maths"}, owner)
	require.NoError(t, err)
	require.NoError(t, m.PutSession(ctx, attendance.Session{ClassID: c.ID, Key: "k1", Timestamp: 1, Records: map[string]string{"s": "present"}}))

	err = r.Delete(ctx, c.ID, owner.Email)
	require.ErrorIs(t, err, boom)

	_, err = m.GetClass(ctx, c.ID)
	assert.ErrorIs(t, err, attendance.ErrNotFound, "class record is gone")
	sessions, err := m.Sessions(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, sessions, 1, "sessions remain orphaned")
}

func TestListForStudent(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newRegistry(t)
	for _, in := range []Input{
		{Program: "B.Tech", Branch: "CSE", Year: "2nd Year", ClassName: "A"},
		{Program: "B.Tech", Branch: "ECE", Year: "2nd Year", ClassName: "B"},
		{Program: "B.Tech", Branch: "CSE", Year: "3rd Year", ClassName: "C"},
		{Program: "M.Tech", Branch: "CSE", Year: "2nd Year", ClassName: "D"},
	} {
		_, err := r.Create(ctx, in, owner)
		require.NoError(t, err)
	}

	got, err := r.ListForStudent(ctx, attendance.Student{Program: "B.Tech", Branch: "CSE", Year: "2nd Year"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].ClassName)
}

func TestGroupByProgram(t *testing.T) {
	groups := GroupByProgram([]attendance.Class{
		{ID: "1", Program: "MCA"},
		{ID: "2", Program: "B.Tech"},
		{ID: "3", Program: ""},
		{ID: "4", Program: "MCA"},
	})
	require.Len(t, groups, 3)
	assert.Equal(t, "MCA", groups[0].Program)
	assert.Len(t, groups[0].Classes, 2)
	assert.Equal(t, "B.Tech", groups[1].Program)
	assert.Equal(t, "Unknown Program", groups[2].Program)
}

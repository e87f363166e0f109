package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendsync/internal/attendance"
	"attendsync/internal/auth"
)

func TestMemoryStudents(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.PutStudent(ctx, attendance.Student{ID: "s2", Name: "Zoe", Program: "MCA", Email: "zoe@uni.edu"}))
	require.NoError(t, m.PutStudent(ctx, attendance.Student{ID: "s1", Name: "Amit", Program: "MCA", Email: "amit@uni.edu"}))
	require.NoError(t, m.PutStudent(ctx, attendance.Student{ID: "s3", Name: "Bo", Program: "MBA"}))
	assert.True(t, attendance.IsValidation(m.PutStudent(ctx, attendance.Student{})))

	s, err := m.StudentByEmail(ctx, "AMIT@uni.edu")
	require.NoError(t, err)
	assert.Equal(t, "s1", s.ID)

	mca, err := m.StudentsByProgram(ctx, "MCA")
	require.NoError(t, err)
	require.Len(t, mca, 2)
	assert.Equal(t, "s1", mca[0].ID)

	require.NoError(t, m.UpdateStudentImage(ctx, "s1", "https://img/s1.png"))
	s, err = m.GetStudent(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "https://img/s1.png", s.ProfileImage)

	assert.ErrorIs(t, m.UpdateStudentImage(ctx, "missing", "x"), attendance.ErrNotFound)
	_, err = m.GetStudent(ctx, "missing")
	assert.ErrorIs(t, err, attendance.ErrNotFound)
}

func TestMemoryClasses(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	c, err := m.CreateClass(ctx, attendance.Class{ClassName: "Maths", Program: "MCA", CreatedByEmail: "rao@uni.edu"})
	require.NoError(t, err)
	require.NotEmpty(t, c.ID)

	mine, err := m.ClassesByCreator(ctx, "rao@uni.edu")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	require.NoError(t, m.DeleteClass(ctx, c.ID))
	require.NoError(t, m.DeleteClass(ctx, c.ID))
	_, err = m.GetClass(ctx, c.ID)
	assert.ErrorIs(t, err, attendance.ErrNotFound)
}

func TestMemorySessions(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, s := range []attendance.Session{
		{ClassID: "c1", Key: "b", Timestamp: 300, Records: map[string]string{"s1": "present"}},
		{ClassID: "c1", Key: "a", Timestamp: 100},
		{ClassID: "c1", Key: "c", Timestamp: 200},
		{ClassID: "c2", Key: "a", Timestamp: 150},
	} {
		require.NoError(t, m.PutSession(ctx, s))
	}
	err := m.PutSession(ctx, attendance.Session{ClassID: "c1", Key: "b", Timestamp: 999})
	assert.ErrorIs(t, err, attendance.ErrConflict, "sessions are append-only")

	in, err := m.SessionsInRange(ctx, "c1", 100, 200)
	require.NoError(t, err)
	require.Len(t, in, 2)
	assert.Equal(t, "a", in[0].Key)
	assert.Equal(t, "c", in[1].Key)

	got, err := m.GetSession(ctx, "c1", "b")
	require.NoError(t, err)
	got.Records["s1"] = "absent"
	again, _ := m.GetSession(ctx, "c1", "b")
	assert.Equal(t, "present", again.Records["s1"], "returned sessions are copies")

	require.NoError(t, m.DeleteSessions(ctx, "c1"))
	all, err := m.Sessions(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, all)
	other, _ := m.Sessions(ctx, "c2")
	assert.Len(t, other, 1)
}

func TestMemoryTokens(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.PutCredential(ctx, auth.Credential{UID: "u1", Email: " Rao@Uni.edu ", Hash: []byte("h")}))
	c, err := m.CredentialByEmail(ctx, "rao@uni.edu")
	require.NoError(t, err)
	assert.Equal(t, "u1", c.UID)

	require.NoError(t, m.SaveRefreshToken(ctx, "u1", "live", time.Now().Add(time.Hour)))
	require.NoError(t, m.SaveRefreshToken(ctx, "u1", "old", time.Now().Add(-time.Second)))

	ok, _ := m.RefreshTokenActive(ctx, "live")
	assert.True(t, ok)
	ok, _ = m.RefreshTokenActive(ctx, "old")
	assert.False(t, ok, "expired")
	ok, _ = m.RefreshTokenActive(ctx, "never-issued")
	assert.False(t, ok)

	require.NoError(t, m.RevokeRefreshToken(ctx, "live"))
	ok, _ = m.RefreshTokenActive(ctx, "live")
	assert.False(t, ok)
}

func TestFirebaseKeys(t *testing.T) {
	k := emailKey(" Rao@Uni.edu")
	assert.Equal(t, emailKey("rao@uni.edu"), k)
	assert.False(t, strings.ContainsAny(k, ".#$[]/"))
	assert.Len(t, tokenKey("abc"), 64)
}

func TestSortedSessions(t *testing.T) {
	out := sortedSessions("c1", map[string]fbSession{
		"k2": {Timestamp: 5},
		"k1": {Timestamp: 5},
		"k0": {Timestamp: 9},
	})
	require.Len(t, out, 3)
	assert.Equal(t, []string{"k1", "k2", "k0"}, []string{out[0].Key, out[1].Key, out[2].Key})
	assert.Equal(t, "c1", out[0].ClassID)
}

func TestNotFound(t *testing.T) {
	assert.ErrorIs(t, notFound(sql.ErrNoRows), attendance.ErrNotFound)
	assert.Nil(t, notFound(nil))
}

package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func students(ids ...string) []Student {
	out := make([]Student, 0, len(ids))
	for _, id := range ids {
		out = append(out, Student{ID: id, Name: "Student " + id})
	}
	return out
}

func TestAggregate(t *testing.T) {
	roster := students("s1", "s2")

	tests := []struct {
		name     string
		sessions []Session
		want     map[string]Tally
	}{
		{
			name: "no sessions",
			want: map[string]Tally{
				"s1": {Percentage: "0.00"},
				"s2": {Percentage: "0.00"},
			},
		},
		{
			name: "two sessions",
			sessions: []Session{
				{Records: map[string]string{"s1": "present", "s2": "absent"}},
				{Records: map[string]string{"s1": "absent", "s2": "leave"}},
			},
			want: map[string]Tally{
				"s1": {Present: 1, Absent: 1, Total: 2, Percentage: "50.00"},
				"s2": {Absent: 1, Leave: 1, Total: 2, Percentage: "0.00"},
			},
		},
		{
			name: "student missing from a later session",
			sessions: []Session{
				{Records: map[string]string{"s1": "present", "s2": "absent"}},
				{Records: map[string]string{"s1": "leave"}},
			},
			want: map[string]Tally{
				"s1": {Present: 1, Absent: 0, Leave: 1, Total: 2, Percentage: "50.00"},
				"s2": {Present: 0, Absent: 1, Leave: 0, Total: 1, Percentage: "0.00"},
			},
		},
		{
			name: "statuses are normalized",
			sessions: []Session{
				{Records: map[string]string{"s1": "PRESENT ", "s2": " Leave"}},
			},
			want: map[string]Tally{
				"s1": {Present: 1, Total: 1, Percentage: "100.00"},
				"s2": {Leave: 1, Total: 1, Percentage: "0.00"},
			},
		},
		{
			name: "unknown statuses and off-roster ids are skipped",
			sessions: []Session{
				{Records: map[string]string{"s1": "maybe", "s2": "present", "ghost": "present"}},
			},
			want: map[string]Tally{
				"s1": {Percentage: "0.00"},
				"s2": {Present: 1, Total: 1, Percentage: "100.00"},
			},
		},
		{
			name: "missing entries are not counted",
			sessions: []Session{
				{Records: map[string]string{"s1": "present"}},
				{Records: map[string]string{"s1": "present"}},
				{Records: map[string]string{"s1": "absent"}},
			},
			want: map[string]Tally{
				"s1": {Present: 2, Absent: 1, Total: 3, Percentage: "66.67"},
				"s2": {Percentage: "0.00"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate(roster, tt.sessions)
			require.Len(t, got, len(roster))
			for i, r := range got {
				assert.Equal(t, roster[i].ID, r.ID, "roster order")
				assert.Equal(t, tt.want[r.ID], r.Tally)
				assert.Equal(t, r.Present+r.Absent+r.Leave, r.Total)
			}
		})
	}
}

func TestAggregateIsIdempotent(t *testing.T) {
	roster := students("a", "b", "c")
	sessions := []Session{
		{Records: map[string]string{"a": "present", "b": "absent", "c": "leave"}},
		{Records: map[string]string{"a": "absent", "b": "absent"}},
	}
	first := Aggregate(roster, sessions)
	second := Aggregate(roster, sessions)
	assert.Equal(t, first, second)
	assert.Equal(t, map[string]string{"a": "present", "b": "absent", "c": "leave"}, sessions[0].Records, "input not mutated")
}

func TestAggregateEmptyRoster(t *testing.T) {
	got := Aggregate(nil, []Session{{Records: map[string]string{"x": "present"}}})
	assert.Empty(t, got)
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, "0.00", Percentage(0, 0))
	assert.Equal(t, "100.00", Percentage(3, 3))
	assert.Equal(t, "33.33", Percentage(1, 3))
	assert.Equal(t, "0.00", Percentage(0, 4))
}

func TestAnalyzeWindowBoundary(t *testing.T) {
	loc := time.UTC
	w, err := NewWindow("2024-03-01", "2024-03-01", loc)
	require.NoError(t, err)

	endOfDay := time.Date(2024, 3, 1, 23, 59, 59, int(999*time.Millisecond), loc).UnixMilli()
	roster := students("s1")
	sessions := []Session{
		{Timestamp: w.StartMillis() - 1, Records: map[string]string{"s1": "absent"}},
		{Timestamp: w.StartMillis(), Records: map[string]string{"s1": "present"}},
		{Timestamp: endOfDay, Records: map[string]string{"s1": "present"}},
		{Timestamp: endOfDay + 1, Records: map[string]string{"s1": "absent"}},
	}

	got := Analyze(roster, sessions, w)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Present)
	assert.Equal(t, 0, got[0].Absent)
	assert.Equal(t, "100.00", got[0].Percentage)
}

func TestStudentHistory(t *testing.T) {
	class := Class{ID: "c1", ClassName: "Networks"}
	sessions := []Session{
		{Date: "2024-03-01", Time: "09:00", MarkedBy: "Dr. A", Timestamp: 100, Records: map[string]string{"s1": "present"}},
		{Date: "2024-03-02", Timestamp: 200, Records: map[string]string{"s1": "maybe"}},
		{Date: "2024-03-03", Time: "09:00", MarkedBy: "Dr. A", Timestamp: 300, Records: map[string]string{"s1": "absent"}},
		{Date: "2024-03-04", Timestamp: 400, Records: map[string]string{"s2": "present"}},
	}

	h := StudentHistory(class, "s1", sessions)

	assert.Equal(t, class, h.Class)
	require.Len(t, h.Marks, 3)
	assert.Equal(t, "2024-03-03", h.Marks[0].Date, "newest first")
	assert.Equal(t, "2024-03-01", h.Marks[2].Date)
	assert.Equal(t, "N/A", h.Marks[1].Time)
	assert.Equal(t, "N/A", h.Marks[1].MarkedBy)
	assert.Equal(t, Tally{Present: 1, Absent: 1, Total: 2, Percentage: "50.00"}, h.Tally)
}

package attendance

import (
	"fmt"
	"sort"
)

// Aggregate tallies statuses for every roster student across sessions.
//
// Only entries whose student id is on the roster and whose status
// normalizes to a known value are counted; everything else is skipped.
// A student missing from a session's records is not counted for it.
// The result has one entry per roster student, in roster order.
func Aggregate(roster []Student, sessions []Session) []Result {
	tallies := make(map[string]*Tally, len(roster))
	for _, s := range roster {
		if s.ID == "" {
			continue
		}
		tallies[s.ID] = &Tally{}
	}

	for _, sess := range sessions {
		for studentID, raw := range sess.Records {
			t, ok := tallies[studentID]
			if !ok {
				continue
			}
			status, ok := NormalizeStatus(raw)
			if !ok {
				continue
			}
			t.add(status)
		}
	}

	results := make([]Result, 0, len(roster))
	for _, s := range roster {
		t, ok := tallies[s.ID]
		if !ok {
			continue
		}
		results = append(results, Result{Student: s, Tally: t.finish()})
	}
	return results
}

// Analyze restricts sessions to w and aggregates the rest.
func Analyze(roster []Student, sessions []Session, w Window) []Result {
	in := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		if w.Contains(s.Timestamp) {
			in = append(in, s)
		}
	}
	return Aggregate(roster, in)
}

func (t *Tally) add(s Status) {
	switch s {
	case StatusPresent:
		t.Present++
	case StatusAbsent:
		t.Absent++
	case StatusLeave:
		t.Leave++
	}
}

func (t Tally) finish() Tally {
	t.Total = t.Present + t.Absent + t.Leave
	t.Percentage = Percentage(t.Present, t.Total)
	return t
}

// Percentage formats present/total*100 with two decimals, "0.00" for an empty total.
func Percentage(present, total int) string {
	if total == 0 {
		return "0.00"
	}
	return fmt.Sprintf("%.2f", float64(present)/float64(total)*100)
}

// Mark is one line of a student's attendance history.
type Mark struct {
	Date      string `json:"date"`
	Time      string `json:"time"`
	MarkedBy  string `json:"markedBy"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// History is a student's standing in a single class.
type History struct {
	Class Class  `json:"class"`
	Tally Tally  `json:"stats"`
	Marks []Mark `json:"records"`
}

// StudentHistory tallies one student's marks across the sessions of a class.
// Marks are returned newest first; unknown statuses are listed but not counted.
func StudentHistory(class Class, studentID string, sessions []Session) History {
	var (
		t     Tally
		marks []Mark
	)
	for _, sess := range sessions {
		raw, ok := sess.Records[studentID]
		if !ok || raw == "" {
			continue
		}
		marks = append(marks, Mark{
			Date:      orNA(sess.Date),
			Time:      orNA(sess.Time),
			MarkedBy:  orNA(sess.MarkedBy),
			Status:    raw,
			Timestamp: sess.Timestamp,
		})
		if status, ok := NormalizeStatus(raw); ok {
			t.add(status)
		}
	}
	sort.SliceStable(marks, func(i, j int) bool { return marks[i].Timestamp > marks[j].Timestamp })
	return History{Class: class, Tally: t.finish(), Marks: marks}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

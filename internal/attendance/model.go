package attendance

import "strings"

// Status is a single attendance mark for one student in one session.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLeave   Status = "leave"
)

// Valid reports whether s is one of the recognised statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLeave:
		return true
	default:
		return false
	}
}

// NormalizeStatus trims and lowercases a raw status value. The second
// return is false when the result is not a recognised status.
func NormalizeStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	return s, s.Valid()
}

// Student is a registered student account.
type Student struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Program       string `json:"program"`
	Branch        string `json:"branch"`
	Year          string `json:"year"`
	InstituteID   string `json:"instituteID"`
	Email         string `json:"email"`
	ContactNumber string `json:"contactNumber"`
	DOB           string `json:"dob"`
	ProfileImage  string `json:"profileImage,omitempty"`
	CreatedAt     int64  `json:"createdAt"`
}

// Descriptor identifies the cohort a class is taught to.
type Descriptor struct {
	Program string `json:"program"`
	Branch  string `json:"branch"`
	Year    string `json:"year"`
}

// Class is a faculty-owned course offering.
type Class struct {
	ID             string `json:"id"`
	Program        string `json:"program"`
	Branch         string `json:"branch"`
	Year           string `json:"year"`
	ClassName      string `json:"className"`
	CreatedBy      string `json:"createdBy"`
	CreatedByEmail string `json:"createdByEmail"`
	Timestamp      int64  `json:"timestamp"`
}

// Descriptor returns the cohort the class is taught to.
func (c Class) Descriptor() Descriptor {
	return Descriptor{Program: c.Program, Branch: c.Branch, Year: c.Year}
}

// Session is one immutable attendance sheet for a class. Records maps
// student id to the raw status string as stored.
type Session struct {
	ClassID   string            `json:"classId"`
	Key       string            `json:"key"`
	Date      string            `json:"date"`
	Time      string            `json:"time"`
	Timestamp int64             `json:"timestamp"`
	ClassName string            `json:"className"`
	MarkedBy  string            `json:"markedBy"`
	Records   map[string]string `json:"records"`
}

// Tally counts statuses for one student.
type Tally struct {
	Present    int    `json:"present"`
	Absent     int    `json:"absent"`
	Leave      int    `json:"leave"`
	Total      int    `json:"total"`
	Percentage string `json:"percentage"`
}

// Result is a roster entry with its tally.
type Result struct {
	Student
	Tally
}

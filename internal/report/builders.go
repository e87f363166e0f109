package report

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"attendsync/internal/attendance"
)

var titleCase = cases.Title(language.Und)

// AttendanceSheet is the sheet printed after a session is submitted. Rows
// follow roster order; students without a mark show N/A.
func AttendanceSheet(class attendance.Class, sess attendance.Session, roster []attendance.Student) Document {
	rows := make([][]string, 0, len(roster))
	for i, s := range roster {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			s.Name,
			na(s.InstituteID),
			na(s.Email),
			na(s.ContactNumber),
			strings.ToUpper(na(sess.Records[s.ID])),
		})
	}
	return Document{
		Filename: filename(class.ClassName, "Attendance", sess.Date),
		Title:    "Attendance Report - " + class.ClassName,
		Header: []Line{
			{Value: fmt.Sprintf("Program: %s | Branch: %s | Year: %s", class.Program, class.Branch, class.Year)},
			{Label: "Date", Value: sess.Date},
			{Label: "Time", Value: na(sess.Time)},
			{Label: "Marked By", Value: na(sess.MarkedBy)},
		},
		Columns: []Column{
			{Title: "#", Width: 0.5, Align: "C"},
			{Title: "Name", Width: 2.5},
			{Title: "Institute ID", Width: 1.5},
			{Title: "Email", Width: 3},
			{Title: "Contact", Width: 1.5},
			{Title: "Status", Width: 1.2, Align: "C"},
		},
		Rows: rows,
	}
}

// Analysis is the per-student tally of a class over a date window.
func Analysis(class attendance.Class, w attendance.Window, results []attendance.Result) Document {
	rows := make([][]string, 0, len(results))
	for i, r := range results {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			r.Name,
			na(r.InstituteID),
			strconv.Itoa(r.Present),
			strconv.Itoa(r.Absent),
			strconv.Itoa(r.Leave),
			strconv.Itoa(r.Total),
			r.Percentage + "%",
		})
	}
	return Document{
		Filename: filename(class.ClassName, "Analysis", w.StartDate()+"_to_"+w.EndDate()),
		Title:    "Attendance Analysis - " + class.ClassName,
		Header: []Line{
			{Value: fmt.Sprintf("Report from %s to %s", w.StartDate(), w.EndDate())},
		},
		Columns: []Column{
			{Title: "#", Width: 0.5, Align: "C"},
			{Title: "Name", Width: 3},
			{Title: "Institute ID", Width: 1.6},
			{Title: "Present", Width: 1, Align: "C"},
			{Title: "Absent", Width: 1, Align: "C"},
			{Title: "Leave", Width: 1, Align: "C"},
			{Title: "Total", Width: 1, Align: "C"},
			{Title: "Percentage", Width: 1.3, Align: "C"},
		},
		Rows: rows,
	}
}

// StudentClassReport lists one student's marks in a class, newest first.
func StudentClassReport(student attendance.Student, h attendance.History) Document {
	rows := make([][]string, 0, len(h.Marks))
	for i, m := range h.Marks {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			m.Date,
			m.Time,
			titleCase.String(m.Status),
			m.MarkedBy,
		})
	}
	return Document{
		Filename: student.Name + "_" + h.Class.ClassName + "_Attendance.pdf",
		Title:    "Attendance Report for " + h.Class.ClassName,
		Header: []Line{
			{Label: "Student", Value: student.Name},
			{Label: "Institute ID", Value: na(student.InstituteID)},
			{Label: "Total Present", Value: strconv.Itoa(h.Tally.Present)},
			{Label: "Total Absent", Value: strconv.Itoa(h.Tally.Absent)},
			{Label: "Total On Leave", Value: strconv.Itoa(h.Tally.Leave)},
			{Label: "Total Classes Marked", Value: strconv.Itoa(h.Tally.Total)},
			{Label: "Overall Percentage", Value: h.Tally.Percentage + "%"},
		},
		Columns: []Column{
			{Title: "#", Width: 0.5, Align: "C"},
			{Title: "Date", Width: 1.5},
			{Title: "Time", Width: 1},
			{Title: "Status", Width: 1.2},
			{Title: "Marked By", Width: 2.5},
		},
		Rows: rows,
	}
}

// CombinedReport summarizes a student's standing across all enrolled classes.
func CombinedReport(student attendance.Student, histories []attendance.History) Document {
	rows := make([][]string, 0, len(histories))
	for _, h := range histories {
		t := h.Tally
		if t.Percentage == "" {
			t.Percentage = attendance.Percentage(t.Present, t.Total)
		}
		rows = append(rows, []string{
			h.Class.ClassName,
			strconv.Itoa(t.Present),
			strconv.Itoa(t.Absent),
			strconv.Itoa(t.Leave),
			strconv.Itoa(t.Total),
			t.Percentage + "%",
		})
	}
	return Document{
		Filename: student.Name + "_Combined_Attendance_Report.pdf",
		Title:    "Combined Attendance Report",
		Header: []Line{
			{Label: "Student", Value: student.Name},
			{Label: "Institute ID", Value: na(student.InstituteID)},
		},
		Columns: []Column{
			{Title: "Subject", Width: 3},
			{Title: "Present", Width: 1, Align: "C"},
			{Title: "Absent", Width: 1, Align: "C"},
			{Title: "Leave", Width: 1, Align: "C"},
			{Title: "Total Classes", Width: 1.4, Align: "C"},
			{Title: "Percentage", Width: 1.3, Align: "C"},
		},
		Rows: rows,
	}
}

func filename(className, kind, suffix string) string {
	return className + "_" + kind + "_" + suffix + ".pdf"
}

// ContentDisposition builds an attachment header value for name.
func ContentDisposition(name string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == '"', r == '\\', r == '/':
			return '_'
		}
		return r
	}, name)
	return `attachment; filename="` + clean + `"`
}

func na(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

package roster

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"attendsync/internal/attendance"
)

// Resolve returns the students of d, sorted by name. Matching is exact
// string equality on program, branch and year; students without a name
// sort as the empty string.
func Resolve(students []attendance.Student, d attendance.Descriptor) []attendance.Student {
	out := make([]attendance.Student, 0, len(students))
	for _, s := range students {
		if s.Program == d.Program && s.Branch == d.Branch && s.Year == d.Year {
			out = append(out, s)
		}
	}
	// collate.Collator is not safe for concurrent use.
	col := collate.New(language.Und)
	sort.SliceStable(out, func(i, j int) bool {
		return col.CompareString(out[i].Name, out[j].Name) < 0
	})
	return out
}

// Resolver loads rosters from the store.
type Resolver struct {
	students attendance.StudentStore
}

// NewResolver creates a resolver.
func NewResolver(students attendance.StudentStore) *Resolver {
	return &Resolver{students: students}
}

// Roster fetches students by program and narrows them to d.
func (r *Resolver) Roster(ctx context.Context, d attendance.Descriptor) ([]attendance.Student, error) {
	if d.Program == "" || d.Branch == "" || d.Year == "" {
		return nil, attendance.Invalid("class is missing program, branch or year")
	}
	all, err := r.students.StudentsByProgram(ctx, d.Program)
	if err != nil {
		return nil, fmt.Errorf("load students for %s: %w", d.Program, err)
	}
	return Resolve(all, d), nil
}

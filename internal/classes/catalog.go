package classes

// Program lists the branches and years a program offers.
type Program struct {
	Name     string   `json:"name"`
	Branches []string `json:"branches"`
	Years    []string `json:"years"`
}

// SingleBranchProgram has exactly one branch, which is always forced.
const (
	SingleBranchProgram = "MCA"
	SingleBranch        = "CS"
)

// Catalog is the set of programs classes and students may belong to.
var Catalog = []Program{
	{
		Name:     "B.Tech",
		Branches: []string{"CSE", "ECE", "ME", "BIOTECH", "MFE", "CIVIL", "EE", "AIML", "IT"},
		Years:    []string{"1st Year", "2nd Year", "3rd Year", "4th Year"},
	},
	{
		Name:     SingleBranchProgram,
		Branches: []string{SingleBranch},
		Years:    []string{"1st Year", "2nd Year"},
	},
	{
		Name:     "M.Tech",
		Branches: []string{"CSE", "ECE", "ME", "CIVIL"},
		Years:    []string{"1st Year", "2nd Year"},
	},
}

// LookupProgram finds a program by exact name.
func LookupProgram(name string) (Program, bool) {
	for _, p := range Catalog {
		if p.Name == name {
			return p, true
		}
	}
	return Program{}, false
}

// NormalizeBranch forces the branch of the single-branch program.
func NormalizeBranch(program, branch string) string {
	if program == SingleBranchProgram {
		return SingleBranch
	}
	return branch
}

func (p Program) hasBranch(b string) bool { return contains(p.Branches, b) }
func (p Program) hasYear(y string) bool   { return contains(p.Years, y) }

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

package directory

import (
	"sort"
	"strings"
)

// Employee is a staff directory record. Only ID, Name and Email are
// guaranteed by the directory service.
type Employee struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department,omitempty"`
	Role       string `json:"role,omitempty"`
	Location   string `json:"location,omitempty"`
	Status     string `json:"status,omitempty"`
	Mobile     string `json:"mobile,omitempty"`
}

// Criteria narrows the employee picker. Empty fields match everything.
type Criteria struct {
	Query      string
	Department string
	Status     string
}

// Filter returns the employees matching c in their original order. Query is a
// case-insensitive substring of name, email or role.
func Filter(employees []Employee, c Criteria) []Employee {
	q := strings.ToLower(strings.TrimSpace(c.Query))

	out := make([]Employee, 0, len(employees))
	for _, e := range employees {
		if q != "" &&
			!strings.Contains(strings.ToLower(e.Name), q) &&
			!strings.Contains(strings.ToLower(e.Email), q) &&
			!strings.Contains(strings.ToLower(e.Role), q) {
			continue
		}
		if c.Department != "" && !strings.EqualFold(e.Department, c.Department) {
			continue
		}
		if c.Status != "" && !strings.EqualFold(e.Status, c.Status) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Departments returns the distinct non-empty departments, sorted.
func Departments(employees []Employee) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range employees {
		if e.Department == "" {
			continue
		}
		if _, ok := seen[e.Department]; ok {
			continue
		}
		seen[e.Department] = struct{}{}
		out = append(out, e.Department)
	}
	sort.Strings(out)
	return out
}

// Resolve maps recipient names to employees. Names without a directory entry
// are returned in missing, in input order.
func Resolve(employees []Employee, names []string) (found []Employee, missing []string) {
	byName := make(map[string]Employee, len(employees))
	for _, e := range employees {
		byName[e.Name] = e
	}
	for _, name := range names {
		if e, ok := byName[name]; ok {
			found = append(found, e)
			continue
		}
		missing = append(missing, name)
	}
	return found, missing
}

package directory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var staff = []Employee{
	{ID: "1", Name: "Alice Jones", Email: "alice@example.com", Department: "Operations", Role: "Shift Lead", Status: "active"},
	{ID: "2", Name: "Bob Smith", Email: "bob@example.com", Department: "Finance", Role: "Analyst", Status: "active"},
	{ID: "3", Name: "Carol White", Email: "carol@example.com", Department: "Operations", Role: "Engineer", Status: "on-leave"},
	{ID: "4", Name: "Dan Brown", Email: "dan@example.com"},
}

func names(es []Employee) []string {
	out := make([]string, 0, len(es))
	for _, e := range es {
		out = append(out, e.Name)
	}
	return out
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name     string
		criteria Criteria
		expected []string
	}{
		{"empty criteria keeps all", Criteria{}, []string{"Alice Jones", "Bob Smith", "Carol White", "Dan Brown"}},
		{"name query", Criteria{Query: "bob"}, []string{"Bob Smith"}},
		{"email query", Criteria{Query: "CAROL@"}, []string{"Carol White"}},
		{"role query", Criteria{Query: "lead"}, []string{"Alice Jones"}},
		{"department", Criteria{Department: "operations"}, []string{"Alice Jones", "Carol White"}},
		{"status", Criteria{Status: "on-leave"}, []string{"Carol White"}},
		{"combined", Criteria{Query: "e", Department: "Operations", Status: "active"}, []string{"Alice Jones"}},
		{"no match", Criteria{Query: "zzz"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, names(Filter(staff, tt.criteria)))
		})
	}
}

func TestDepartments(t *testing.T) {
	assert.Equal(t, []string{"Finance", "Operations"}, Departments(staff))
	assert.Empty(t, Departments(nil))
}

func TestResolve(t *testing.T) {
	found, missing := Resolve(staff, []string{"Carol White", "Nobody", "Alice Jones"})

	assert.Equal(t, []string{"Carol White", "Alice Jones"}, names(found))
	assert.Equal(t, []string{"Nobody"}, missing)
}

package subcategory

// Registry holds the valid department and club names.
type Registry struct {
	Departments []string `json:"departments"`
	Clubs       []string `json:"clubs"`
}

// Fallback is used whenever the backend list cannot be fetched.
// Callers receive a copy so the package-level lists never change.
func Fallback() Registry {
	return Registry{
		Departments: []string{"CSE", "ECE", "MECH", "CIVIL", "EEE", "MBA", "MCA"},
		Clubs:       []string{"IEEE", "Coding Club", "Debate Society", "Music Club", "Drama Club", "Photography Club", "Sports Club"},
	}
}

// For returns the names registered for a category ("department" or "club").
// Any other category has no subcategories.
func (r Registry) For(category string) []string {
	switch category {
	case "department":
		return r.Departments
	case "club":
		return r.Clubs
	}
	return nil
}

// Contains reports whether name is registered under category.
func (r Registry) Contains(category, name string) bool {
	for _, n := range r.For(category) {
		if n == name {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the registry holds no names at all.
func (r Registry) IsEmpty() bool {
	return len(r.Departments) == 0 && len(r.Clubs) == 0
}

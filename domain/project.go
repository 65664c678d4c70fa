package domain

// Project is a named, colored label for organizing tasks across periods.
// Tasks reference projects by ID only; deleting a project leaves its tasks
// in place.
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
}

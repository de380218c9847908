package models

// Customer is the parent entity a project belongs to.
type Customer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
}

// FileTagOutput marks deliverable artifacts.
const FileTagOutput = "output"

// ProjectFile is one entry of GET /projects/{id}/files.
type ProjectFile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Tag  string `json:"tag"`
	URL  string `json:"url,omitempty"`
}

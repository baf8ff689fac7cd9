package types

// Paper is the normalized record every research source produces.
// Source-specific fields (arXiv categories, PubMed journal) are optional.
type Paper struct {
	Title     string   `json:"title"`
	Authors   []string `json:"authors"`
	Abstract  string   `json:"abstract"`
	URL       string   `json:"url"`
	Published string   `json:"published,omitempty"`
	Year      string   `json:"year,omitempty"`
	Journal   string   `json:"journal,omitempty"`
	Source    string   `json:"source"`
	KeyPoints []string `json:"key_points,omitempty"`
}

package types

// Platform identifies the social network behind a source URL
type Platform string

const (
	PlatformX         Platform = "X"
	PlatformInstagram Platform = "Instagram"
	PlatformFacebook  Platform = "Facebook"
	PlatformUnknown   Platform = "Unknown"
)

// Source is one feed to collect from, loaded from the source workbook
type Source struct {
	Category string `json:"category"`
	Group    string `json:"group"`
	Name     string `json:"name"`
	URL      string `json:"url"`
}

// RawPost is a single post pulled from a rendered feed. PostedAt is the
// platform's ISO-8601 timestamp, or empty when the page did not expose one.
// Text is whitespace-collapsed and capped; it is never raw page HTML.
type RawPost struct {
	SourceName     string   `json:"source_name"`
	SourceCategory string   `json:"source_category"`
	SourceGroup    string   `json:"source_group"`
	Platform       Platform `json:"platform"`
	PostURL        string   `json:"post_url"`
	PostedAt       string   `json:"posted_at"`
	Text           string   `json:"text"`
}

// SourceResult pairs a source with the posts collected for it in one run.
// Result order always matches the input source order.
type SourceResult struct {
	Source Source    `json:"source"`
	Posts  []RawPost `json:"posts"`
}

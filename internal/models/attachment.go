package models

// Attachment kinds.
const (
	AttachmentInline = "inline"
	AttachmentURL    = "url"
)

// Attachment is either inline content stored under a path or a link.
type Attachment struct {
	Kind    string `json:"kind"`
	Path    string `json:"path,omitempty"`
	Content string `json:"content,omitempty"`
	URL     string `json:"url,omitempty"`
}

package models

import "time"

// Section is a structural unit extracted from an uploaded document by the
// external parser (heading plus the text under it).
type Section struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Level   int    `json:"level,omitempty"`
}

// Table is a tabular block extracted from an uploaded document.
type Table struct {
	Caption string     `json:"caption,omitempty"`
	Rows    [][]string `json:"rows"`
}

// File is a parsed document attached to a session. Parsing happens upstream;
// the backend stores the plain text and the extracted structure.
type File struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"sessionId"`
	OriginalName  string    `json:"originalName"`
	MimeType      string    `json:"mimeType,omitempty"`
	Size          int64     `json:"size"`
	PlainText     string    `json:"plainText"`
	Sections      []Section `json:"sections,omitempty"`
	Tables        []Table   `json:"tables,omitempty"`
	TokenEstimate int       `json:"tokenEstimate"`
	Position      int       `json:"position"`
	CreatedAt     time.Time `json:"createdAt"`
}

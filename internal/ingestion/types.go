// Package ingestion defines the request and response bodies of the document
// API.
package ingestion

import "time"

// DocumentRequest is the JSON body accepted by POST /api/documents.
type DocumentRequest struct {
	Content string `json:"content"`
}

// DocumentResponse is returned once a document and its vectors are committed.
type DocumentResponse struct {
	DocID int64 `json:"docId"`
}

// DocumentView is the stored form of a document returned by
// GET /api/documents/{id}.
type DocumentView struct {
	DocID     int64     `json:"docId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

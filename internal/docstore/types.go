package docstore

import (
	"context"
	"errors"
	"time"
)

var ErrDocumentNotFound = errors.New("document not found")

// Document is one uploaded document with its extracted text.
type Document struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageRecord is one chat turn persisted against a document.
type MessageRecord struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	SessionID  string    `json:"session_id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists documents and their chat history.
type Store interface {
	SaveDocument(ctx context.Context, doc Document) error
	GetDocument(ctx context.Context, id string) (Document, error)
	ListDocuments(ctx context.Context, limit int) ([]Document, error)
	SaveMessage(ctx context.Context, rec MessageRecord) error
	RecentMessages(ctx context.Context, documentID string, limit int) ([]MessageRecord, error)
	Close()
}

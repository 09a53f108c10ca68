package docstore

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestInMemoryDocumentRoundTrip(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	doc := Document{Name: "essay.txt", Text: "Some extracted text."}
	doc.ID = "doc-1"
	if err := s.SaveDocument(ctx, doc); err != nil {
		t.Fatalf("SaveDocument error: %v", err)
	}

	got, err := s.GetDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetDocument error: %v", err)
	}
	if got.Text != doc.Text || got.Name != doc.Name {
		t.Fatalf("GetDocument = %+v, want %+v", got, doc)
	}
	if got.CreatedAt.IsZero() {
		t.Fatalf("expected CreatedAt to be stamped")
	}

	if _, err := s.GetDocument(ctx, "missing"); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("GetDocument(missing) = %v, want ErrDocumentNotFound", err)
	}
}

func TestInMemoryRecentMessagesOrderAndLimit(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	for _, content := range []string{"first", "second", "third"} {
		if err := s.SaveMessage(ctx, MessageRecord{DocumentID: "doc-1", Role: "user", Content: content}); err != nil {
			t.Fatalf("SaveMessage error: %v", err)
		}
	}

	recent, err := s.RecentMessages(ctx, "doc-1", 2)
	if err != nil {
		t.Fatalf("RecentMessages error: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("len = %d, want 2", len(recent))
	}
	if recent[0].Content != "second" || recent[1].Content != "third" {
		t.Fatalf("recent = [%s %s], want chronological tail [second third]", recent[0].Content, recent[1].Content)
	}
}

func TestPlainTextExtractor(t *testing.T) {
	e := NewPlainTextExtractor()
	ctx := context.Background()

	text, err := e.ExtractText(ctx, "notes.txt", strings.NewReader("  hello world  "))
	if err != nil {
		t.Fatalf("ExtractText error: %v", err)
	}
	if text != "hello world" {
		t.Fatalf("text = %q, want trimmed content", text)
	}

	if _, err := e.ExtractText(ctx, "slides.pdf", strings.NewReader("%PDF-1.4")); err == nil {
		t.Fatalf("expected unsupported-format error for pdf upload")
	}
	if _, err := e.ExtractText(ctx, "empty.txt", strings.NewReader("   ")); err == nil {
		t.Fatalf("expected error for empty document")
	}
	if _, err := e.ExtractText(ctx, "bin.txt", strings.NewReader("\xff\xfe\x00")); err == nil {
		t.Fatalf("expected error for non-UTF-8 payload")
	}
}

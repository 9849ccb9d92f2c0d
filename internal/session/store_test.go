package session

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/quill-labs/quill/internal/llm"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, "what is WAL mode")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	msgs := []llm.Message{
		{Role: llm.RoleUser, Content: "what is WAL mode"},
		{Role: llm.RoleAssistant, Content: "write-ahead logging"},
	}
	for _, m := range msgs {
		if err := s.Append(ctx, id, m); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := s.History(ctx, id)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("history has %d messages", len(got))
	}
	if got[0].Role != llm.RoleUser || got[1].Content != "write-ahead logging" {
		t.Errorf("history = %+v", got)
	}
}

func TestAppendUnknownSession(t *testing.T) {
	s := openTestStore(t)
	err := s.Append(context.Background(), "nope", llm.Message{Role: llm.RoleUser, Content: "x"})
	if err == nil {
		t.Fatal("expected error for unknown session")
	}
}

func TestTitleTruncated(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	long := strings.Repeat("a", 200)
	id, err := s.Create(ctx, long)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	sessions, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != id {
		t.Fatalf("sessions = %+v", sessions)
	}
	if len(sessions[0].Title) != 80 {
		t.Errorf("title length = %d", len(sessions[0].Title))
	}
}

func TestListCountsMessages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, _ := s.Create(ctx, "first")
	b, _ := s.Create(ctx, "second")
	s.Append(ctx, a, llm.Message{Role: llm.RoleUser, Content: "1"})
	s.Append(ctx, b, llm.Message{Role: llm.RoleUser, Content: "1"})
	s.Append(ctx, b, llm.Message{Role: llm.RoleAssistant, Content: "2"})

	sessions, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions", len(sessions))
	}
	counts := map[string]int{}
	for _, sess := range sessions {
		counts[sess.ID] = sess.Messages
	}
	if counts[a] != 1 || counts[b] != 2 {
		t.Errorf("counts = %v", counts)
	}
}

func TestDeleteCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, _ := s.Create(ctx, "doomed")
	s.Append(ctx, id, llm.Message{Role: llm.RoleUser, Content: "x"})

	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	msgs, err := s.History(ctx, id)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("messages survived delete: %+v", msgs)
	}
	if err := s.Delete(ctx, id); err == nil {
		t.Error("second delete should fail")
	}
}

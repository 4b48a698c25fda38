package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"samaquiz-service/internal/domain"
)

func TestSessionStoreVersionCheck(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	session := domain.QuizSession{ID: "s1", Code: "abc", Status: domain.StatusReady, Version: 1}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("create: %v", err)
	}

	next := session
	next.Status = domain.StatusActive
	next.Version = 2
	if err := store.UpdateSession(ctx, next, 1); err != nil {
		t.Fatalf("update: %v", err)
	}

	stale := session
	stale.Status = domain.StatusCanceled
	stale.Version = 2
	if err := store.UpdateSession(ctx, stale, 1); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusActive {
		t.Fatalf("expected active, got %s", got.Status)
	}
}

func TestSessionStoreCodes(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	if err := store.CreateSession(ctx, domain.QuizSession{ID: "s1", Code: "abc", Version: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.CreateSession(ctx, domain.QuizSession{ID: "s2", Code: "abc", Version: 1}); !errors.Is(err, domain.ErrCodeTaken) {
		t.Fatalf("expected code taken, got %v", err)
	}
	if err := store.CreateSession(ctx, domain.QuizSession{ID: "s2", Code: "def", Version: 1}); err != nil {
		t.Fatalf("create s2: %v", err)
	}

	renamed := domain.QuizSession{ID: "s2", Code: "abc", Version: 2}
	if err := store.UpdateSession(ctx, renamed, 1); !errors.Is(err, domain.ErrCodeTaken) {
		t.Fatalf("expected code taken on rename, got %v", err)
	}
	renamed.Code = "xyz"
	if err := store.UpdateSession(ctx, renamed, 1); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, err := store.GetSessionByCode(ctx, "def"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected old code released, got %v", err)
	}
	if got, err := store.GetSessionByCode(ctx, "xyz"); err != nil || got.ID != "s2" {
		t.Fatalf("expected s2 by new code, got %+v %v", got, err)
	}
}

func TestSessionStoreLeaders(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	if err := store.CreateSession(ctx, domain.QuizSession{ID: "s1", Code: "abc", Version: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}

	base := time.Now()
	for i, name := range []string{"alice", "bob", "carol"} {
		p := domain.Participant{ID: name, SessionID: "s1", Name: name, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := store.CreateParticipant(ctx, p); err != nil {
			t.Fatalf("participant: %v", err)
		}
	}

	responses := []domain.QuizResponse{
		{ID: "r1", SessionID: "s1", ParticipantID: "alice", QuestionID: "q1", IsCorrect: true, Points: 1},
		{ID: "r2", SessionID: "s1", ParticipantID: "bob", QuestionID: "q1", IsCorrect: true, Points: 1},
		{ID: "r3", SessionID: "s1", ParticipantID: "bob", QuestionID: "q2", IsCorrect: true, Points: 3},
		{ID: "r4", SessionID: "s1", ParticipantID: "carol", QuestionID: "q1", IsCorrect: false},
	}
	for _, r := range responses {
		if err := store.CreateResponse(ctx, r); err != nil {
			t.Fatalf("response %s: %v", r.ID, err)
		}
	}
	dup := domain.QuizResponse{ID: "r5", SessionID: "s1", ParticipantID: "alice", QuestionID: "q1"}
	if err := store.CreateResponse(ctx, dup); !errors.Is(err, domain.ErrDuplicateResponse) {
		t.Fatalf("expected duplicate, got %v", err)
	}

	count, err := store.CountResponses(ctx, "s1", "q1")
	if err != nil || count != 3 {
		t.Fatalf("expected 3 responses for q1, got %d %v", count, err)
	}

	leaders, err := store.Leaders(ctx, "s1")
	if err != nil {
		t.Fatalf("leaders: %v", err)
	}
	want := []struct {
		id     string
		points int
	}{{"bob", 4}, {"alice", 1}, {"carol", 0}}
	if len(leaders) != len(want) {
		t.Fatalf("expected %d leaders, got %+v", len(want), leaders)
	}
	for i, w := range want {
		if leaders[i].ParticipantID != w.id || leaders[i].Points != w.points {
			t.Fatalf("leader %d: expected %s/%d, got %+v", i, w.id, w.points, leaders[i])
		}
	}
}

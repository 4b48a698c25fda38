package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"samaquiz-service/internal/app"
	"samaquiz-service/internal/domain"
)

func TestSubmitResponseScores(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	session := f.session(t, "score")
	alice := f.join(t, session.ID, "Alice")
	bob := f.join(t, session.ID, "Bob")
	f.activate(t, session.ID)
	f.events.reset()

	result, err := f.service.SubmitResponse(ctx, app.ResponseInput{ParticipantID: alice, QuestionID: "q1", AnswerID: "q1-a2"})
	if err != nil {
		t.Fatalf("alice answer: %v", err)
	}
	if !result.IsCorrect || result.QuestionResponseCount != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	result, err = f.service.SubmitResponse(ctx, app.ResponseInput{ParticipantID: bob, QuestionID: "q1", AnswerID: "q1-a1", SessionID: session.ID})
	if err != nil {
		t.Fatalf("bob answer: %v", err)
	}
	if result.IsCorrect || result.QuestionResponseCount != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !sameKinds(f.events.kinds(), domain.EventResponse, domain.EventResponse) {
		t.Fatalf("unexpected events: %v", f.events.kinds())
	}
	if last := f.events.events[1]; last.Count != 2 || last.QuestionID != "q1" {
		t.Fatalf("unexpected response event: %+v", last)
	}

	idx := 1
	if _, err := f.service.UpdateSession(ctx, session.ID, app.SessionPatch{QuestionIndex: &idx}, owner); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if _, err := f.service.SubmitResponse(ctx, app.ResponseInput{ParticipantID: bob, QuestionID: "q2", AnswerID: "q2-a1"}); err != nil {
		t.Fatalf("bob q2: %v", err)
	}

	leaders, err := f.service.Leaders(ctx, session.ID, owner)
	if err != nil {
		t.Fatalf("leaders: %v", err)
	}
	if len(leaders) != 2 || leaders[0].ParticipantID != bob || leaders[0].Points != 3 || leaders[1].Points != 0 {
		t.Fatalf("unexpected leaders: %+v", leaders)
	}
}

func TestZeroPointAnswerAddsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	session := f.session(t, "zero")
	alice := f.join(t, session.ID, "Alice")
	f.activate(t, session.ID)

	// q1-a2 is correct but worth 0 points.
	result, err := f.service.SubmitResponse(ctx, app.ResponseInput{ParticipantID: alice, QuestionID: "q1", AnswerID: "q1-a2"})
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if !result.IsCorrect {
		t.Fatalf("expected correct answer")
	}
	leaders, err := f.service.Leaders(ctx, session.ID, owner)
	if err != nil {
		t.Fatalf("leaders: %v", err)
	}
	if len(leaders) != 1 || leaders[0].Points != 0 {
		t.Fatalf("expected total equal to answer points 0, got %+v", leaders)
	}
}

func TestSubmitResponseRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	session := f.session(t, "reject")
	alice := f.join(t, session.ID, "Alice")

	if _, err := f.service.SubmitResponse(ctx, app.ResponseInput{ParticipantID: alice, QuestionID: "q1", AnswerID: "q1-a2"}); !domain.IsCode(err, domain.CodeInvalidQuestion) {
		t.Fatalf("expected InvalidQuestion before start, got %v", err)
	}
	f.activate(t, session.ID)

	cases := []struct {
		name string
		in   app.ResponseInput
		code domain.ErrorCode
	}{
		{"missing fields", app.ResponseInput{ParticipantID: alice}, domain.CodeInvalidFormData},
		{"not current question", app.ResponseInput{ParticipantID: alice, QuestionID: "q2", AnswerID: "q2-a1"}, domain.CodeInvalidQuestion},
		{"foreign answer", app.ResponseInput{ParticipantID: alice, QuestionID: "q1", AnswerID: "q2-a1"}, domain.CodeInvalidAnswer},
		{"other session", app.ResponseInput{ParticipantID: alice, QuestionID: "q1", AnswerID: "q1-a2", SessionID: "other"}, domain.CodeInvalidQuestion},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.service.SubmitResponse(ctx, tc.in); !domain.IsCode(err, tc.code) {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}

	if _, err := f.service.SubmitResponse(ctx, app.ResponseInput{ParticipantID: "ghost", QuestionID: "q1", AnswerID: "q1-a2"}); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected participant not found, got %v", err)
	}

	if _, err := f.service.SubmitResponse(ctx, app.ResponseInput{ParticipantID: alice, QuestionID: "q1", AnswerID: "q1-a2"}); err != nil {
		t.Fatalf("first answer: %v", err)
	}
	if _, err := f.service.SubmitResponse(ctx, app.ResponseInput{ParticipantID: alice, QuestionID: "q1", AnswerID: "q1-a1"}); !domain.IsCode(err, domain.CodeDuplicateResponse) {
		t.Fatalf("expected DuplicateResponse, got %v", err)
	}
}

func TestSubmitResponseAfterDeadline(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	session := f.session(t, "late")
	alice := f.join(t, session.ID, "Alice")
	f.activate(t, session.ID)

	f.clock.Advance(time.Duration(domain.DefaultQuestionDuration) * time.Millisecond)
	_, err := f.service.SubmitResponse(ctx, app.ResponseInput{ParticipantID: alice, QuestionID: "q1", AnswerID: "q1-a2"})
	if !domain.IsCode(err, domain.CodeQuestionOver) {
		t.Fatalf("expected QuestionOver at the deadline, got %v", err)
	}
}

func TestConcurrentResponsesCountEachOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	session := f.session(t, "rush")
	const n = 10
	ids := make([]string, n)
	for i := range ids {
		ids[i] = f.join(t, session.ID, "player-"+string(rune('a'+i)))
	}
	f.activate(t, session.ID)

	var wg sync.WaitGroup
	counts := make(chan int, n)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			result, err := f.service.SubmitResponse(ctx, app.ResponseInput{ParticipantID: id, QuestionID: "q1", AnswerID: "q1-a2"})
			if err != nil {
				t.Errorf("answer: %v", err)
				return
			}
			counts <- result.QuestionResponseCount
		}(id)
	}
	wg.Wait()
	close(counts)

	seen := make(map[int]bool)
	for c := range counts {
		if seen[c] {
			t.Fatalf("response count %d reported twice", c)
		}
		seen[c] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d distinct counts, got %v", n, seen)
	}
}

func TestLeadersRequireOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	session := f.session(t, "board")

	if _, err := f.service.Leaders(ctx, session.ID, nobody); !domain.IsCode(err, domain.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	leaders, err := f.service.Leaders(ctx, session.ID, admin)
	if err != nil {
		t.Fatalf("admin leaders: %v", err)
	}
	if len(leaders) != 0 {
		t.Fatalf("expected empty leaderboard, got %+v", leaders)
	}
}

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/windfall/engapp_service/internal/assessment"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newSession(id, user string, status assessment.Status, created time.Time) *assessment.Session {
	return &assessment.Session{
		ID:        id,
		UserID:    user,
		Status:    status,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestMemory_GetUser(t *testing.T) {
	ctx := context.Background()

	strict := NewMemoryAssessmentRepository()
	if _, err := strict.GetUser(ctx, "u1"); err != ErrNotFound {
		t.Fatalf("GetUser(unknown) err = %v, want ErrNotFound", err)
	}

	lenient := NewMemoryAssessmentRepository(WithAutoProvisionedUsers())
	u, err := lenient.GetUser(ctx, "u1")
	if err != nil || u.ID != "u1" {
		t.Fatalf("GetUser(auto) = %+v, %v", u, err)
	}
}

func TestMemory_SessionsAreCopied(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAssessmentRepository()

	s := newSession("s1", "u1", assessment.StatusInProgress, t0)
	if err := repo.CreateSession(ctx, s); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := repo.CreateSession(ctx, s); err != ErrAlreadyExists {
		t.Fatalf("duplicate CreateSession err = %v", err)
	}

	s.Status = assessment.StatusCompleted
	got, err := repo.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != assessment.StatusInProgress {
		t.Error("caller mutation leaked into the store")
	}
}

func TestMemory_SavePhase(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAssessmentRepository()
	repo.PutSession(newSession("live", "u1", assessment.StatusInProgress, t0))
	repo.PutSession(newSession("gone", "u1", assessment.StatusAbandoned, t0))

	s := newSession("live", "u1", assessment.StatusInProgress, t0)
	s.Phase1 = &assessment.Phase1Result{AccuracyScore: 82, WordCount: 12}
	s.Phase3 = &assessment.Phase3Result{GrammarScore: 99}
	s.UpdatedAt = t0.Add(time.Minute)

	if err := repo.SavePhase(ctx, s, assessment.Phase1); err != nil {
		t.Fatalf("SavePhase: %v", err)
	}
	got, _ := repo.GetSession(ctx, "live")
	if got.Phase1 == nil || got.Phase1.AccuracyScore != 82 {
		t.Errorf("phase1 = %+v", got.Phase1)
	}
	if got.Phase3 != nil {
		t.Error("SavePhase wrote a phase it was not asked to")
	}
	if !got.UpdatedAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("updated_at = %s", got.UpdatedAt)
	}

	s.ID = "gone"
	if err := repo.SavePhase(ctx, s, assessment.Phase1); err != ErrNotInProgress {
		t.Errorf("SavePhase(abandoned) err = %v, want ErrNotInProgress", err)
	}
	s.ID = "missing"
	if err := repo.SavePhase(ctx, s, assessment.Phase1); err != ErrNotFound {
		t.Errorf("SavePhase(missing) err = %v, want ErrNotFound", err)
	}
}

func TestMemory_LatestCompleted(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAssessmentRepository()

	repo.PutSession(newSession("old", "u1", assessment.StatusCompleted, t0))
	repo.PutSession(newSession("new", "u1", assessment.StatusCompleted, t0.Add(48*time.Hour)))
	repo.PutSession(newSession("open", "u1", assessment.StatusInProgress, t0.Add(72*time.Hour)))
	repo.PutSession(newSession("other", "u2", assessment.StatusCompleted, t0.Add(96*time.Hour)))

	tests := []struct {
		user, exclude, want string
	}{
		{"u1", "", "new"},
		{"u1", "new", "old"},
		{"u2", "", "other"},
		{"u3", "", ""},
	}
	for _, tt := range tests {
		got, err := repo.LatestCompleted(ctx, tt.user, tt.exclude)
		if err != nil {
			t.Fatalf("LatestCompleted: %v", err)
		}
		id := ""
		if got != nil {
			id = got.ID
		}
		if id != tt.want {
			t.Errorf("LatestCompleted(%s, exclude %q) = %q, want %q", tt.user, tt.exclude, id, tt.want)
		}
	}
}

func TestMemory_Complete(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAssessmentRepository()
	repo.PutUser(&User{ID: "u1"})
	repo.PutSession(newSession("s1", "u1", assessment.StatusInProgress, t0))

	s, _ := repo.GetSession(ctx, "s1")
	s.TalkStyle = assessment.TalkStyleDriver
	report := assessment.Aggregate(s, nil, t0.Add(time.Hour))

	if err := repo.Complete(ctx, "u1", &assessment.Phase4Result{WordCount: 12, ComprehensionScore: 65}, report); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	got, _ := repo.GetSession(ctx, "s1")
	if got.Status != assessment.StatusCompleted || got.OverallScore == nil {
		t.Fatalf("session = %+v", got)
	}
	if got.Phase4 == nil || got.Phase4.ComprehensionScore != 65 {
		t.Errorf("phase4 = %+v, want the final payload stored with the report", got.Phase4)
	}
	u, _ := repo.GetUser(ctx, "u1")
	if u.OverallLevel != report.OverallLevel || u.TalkStyle != assessment.TalkStyleDriver || u.LevelUpdatedAt == nil {
		t.Errorf("user = %+v", u)
	}

	if err := repo.Complete(ctx, "u1", nil, report); err != ErrNotInProgress {
		t.Errorf("second Complete err = %v, want ErrNotInProgress", err)
	}
}

func TestMemory_CompleteMissingUserLeavesSessionOpen(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAssessmentRepository()
	repo.PutSession(newSession("s1", "ghost", assessment.StatusInProgress, t0))

	s, _ := repo.GetSession(ctx, "s1")
	if err := repo.Complete(ctx, "ghost", &assessment.Phase4Result{WordCount: 9}, assessment.Aggregate(s, nil, t0)); err != ErrNotFound {
		t.Fatalf("Complete err = %v, want ErrNotFound", err)
	}
	got, _ := repo.GetSession(ctx, "s1")
	if got.Status != assessment.StatusInProgress {
		t.Errorf("status = %s, want IN_PROGRESS", got.Status)
	}
	if got.Phase4 != nil {
		t.Errorf("phase4 = %+v, want nothing written by the failed commit", got.Phase4)
	}
}

func TestMemory_AbandonIdle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAssessmentRepository()

	repo.PutSession(newSession("stale", "u1", assessment.StatusInProgress, t0))
	repo.PutSession(newSession("fresh", "u2", assessment.StatusInProgress, t0.Add(20*time.Minute)))
	repo.PutSession(newSession("done", "u3", assessment.StatusCompleted, t0))

	// phase writes do not extend the session's lifetime
	busy := newSession("busy", "u4", assessment.StatusInProgress, t0)
	busy.UpdatedAt = t0.Add(9 * time.Minute)
	repo.PutSession(busy)

	got, err := repo.AbandonIdle(ctx, t0.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("AbandonIdle: %v", err)
	}
	ids := make(map[string]string, len(got))
	for _, a := range got {
		ids[a.ID] = a.UserID
	}
	if len(got) != 2 || ids["stale"] != "u1" || ids["busy"] != "u4" {
		t.Fatalf("abandoned = %+v", got)
	}

	stale, _ := repo.GetSession(ctx, "stale")
	if stale.Status != assessment.StatusAbandoned {
		t.Errorf("stale status = %s", stale.Status)
	}
	fresh, _ := repo.GetSession(ctx, "fresh")
	if fresh.Status != assessment.StatusInProgress {
		t.Errorf("fresh status = %s", fresh.Status)
	}

	again, _ := repo.AbandonIdle(ctx, t0.Add(10*time.Minute))
	if len(again) != 0 {
		t.Errorf("second sweep abandoned %d sessions", len(again))
	}
}

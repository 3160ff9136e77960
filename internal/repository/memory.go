package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/windfall/engapp_service/internal/assessment"
)

// MemoryAssessmentRepository implements AssessmentRepository in process.
// It backs local development and tests.
type MemoryAssessmentRepository struct {
	// commit serializes Complete so the session and user updates are seen
	// together.
	commit sync.Mutex

	users         *InMemoryRepository[*User]
	sessions      *InMemoryRepository[*assessment.Session]
	autoProvision bool
}

// MemoryOption configures a MemoryAssessmentRepository.
type MemoryOption func(*MemoryAssessmentRepository)

// WithAutoProvisionedUsers makes GetUser create unknown users on first use.
func WithAutoProvisionedUsers() MemoryOption {
	return func(r *MemoryAssessmentRepository) {
		r.autoProvision = true
	}
}

// NewMemoryAssessmentRepository creates an empty repository.
func NewMemoryAssessmentRepository(opts ...MemoryOption) *MemoryAssessmentRepository {
	r := &MemoryAssessmentRepository{
		users:    NewInMemoryRepository(cloneUser),
		sessions: NewInMemoryRepository((*assessment.Session).Clone),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PutUser seeds a user.
func (r *MemoryAssessmentRepository) PutUser(u *User) {
	r.users.Put(context.Background(), u)
}

// PutSession seeds a session in any state.
func (r *MemoryAssessmentRepository) PutSession(s *assessment.Session) {
	r.sessions.Put(context.Background(), s)
}

// GetUser retrieves a user by ID.
func (r *MemoryAssessmentRepository) GetUser(ctx context.Context, id string) (*User, error) {
	u, err := r.users.GetByID(ctx, id)
	if err == ErrNotFound && r.autoProvision && id != "" {
		now := time.Now().UTC()
		u = &User{ID: id, CreatedAt: now, UpdatedAt: now}
		if err := r.users.Create(ctx, u); err != nil && err != ErrAlreadyExists {
			return nil, err
		}
		return r.users.GetByID(ctx, id)
	}
	return u, err
}

// CreateSession inserts a new session.
func (r *MemoryAssessmentRepository) CreateSession(ctx context.Context, s *assessment.Session) error {
	return r.sessions.Create(ctx, s)
}

// GetSession retrieves a session by ID.
func (r *MemoryAssessmentRepository) GetSession(ctx context.Context, id string) (*assessment.Session, error) {
	return r.sessions.GetByID(ctx, id)
}

// LatestCompleted returns the most recent completed session of a user.
func (r *MemoryAssessmentRepository) LatestCompleted(ctx context.Context, userID, excludeID string) (*assessment.Session, error) {
	completed := r.sessions.Find(ctx, func(s *assessment.Session) bool {
		return s.UserID == userID && s.ID != excludeID && s.Status == assessment.StatusCompleted
	})
	if len(completed) == 0 {
		return nil, nil
	}
	sort.Slice(completed, func(i, j int) bool {
		return completed[i].CreatedAt.After(completed[j].CreatedAt)
	})
	return completed[0], nil
}

// SavePhase writes one phase payload if the session is still in progress.
func (r *MemoryAssessmentRepository) SavePhase(ctx context.Context, s *assessment.Session, phase assessment.Phase) error {
	src := s.Clone()
	return r.sessions.Mutate(ctx, s.ID, func(stored *assessment.Session) error {
		if stored.Status != assessment.StatusInProgress {
			return ErrNotInProgress
		}
		switch phase {
		case assessment.Phase1:
			stored.Phase1 = src.Phase1
		case assessment.Phase2:
			stored.Phase2 = src.Phase2
		case assessment.Phase3:
			stored.Phase3 = src.Phase3
		case assessment.Phase4:
			stored.Phase4 = src.Phase4
		}
		if src.TalkStyle != "" {
			stored.TalkStyle = src.TalkStyle
		}
		stored.UpdatedAt = src.UpdatedAt
		return nil
	})
}

// Complete applies the report to the session and user together.
func (r *MemoryAssessmentRepository) Complete(ctx context.Context, userID string, final *assessment.Phase4Result, report *assessment.Report) error {
	r.commit.Lock()
	defer r.commit.Unlock()

	if _, err := r.users.GetByID(ctx, userID); err != nil {
		return err
	}

	if err := r.sessions.Mutate(ctx, report.SessionID, func(stored *assessment.Session) error {
		if stored.Status != assessment.StatusInProgress {
			return ErrNotInProgress
		}
		if final != nil {
			p4 := *final
			stored.Phase4 = &p4
		}
		report.Apply(stored)
		return nil
	}); err != nil {
		return err
	}

	return r.users.Mutate(ctx, userID, func(u *User) error {
		u.applyReport(report)
		return nil
	})
}

// AbandonIdle marks stale IN_PROGRESS sessions as ABANDONED.
func (r *MemoryAssessmentRepository) AbandonIdle(ctx context.Context, cutoff time.Time) ([]AbandonedSession, error) {
	now := time.Now().UTC()
	changed := r.sessions.MutateAll(ctx, func(s *assessment.Session) bool {
		if s.Status != assessment.StatusInProgress || !s.CreatedAt.Before(cutoff) {
			return false
		}
		s.Status = assessment.StatusAbandoned
		s.UpdatedAt = now
		return true
	})

	out := make([]AbandonedSession, 0, len(changed))
	for _, s := range changed {
		out = append(out, AbandonedSession{ID: s.ID, UserID: s.UserID})
	}
	return out, nil
}

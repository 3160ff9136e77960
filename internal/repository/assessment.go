package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/windfall/engapp_service/internal/assessment"
	"github.com/windfall/engapp_service/internal/client"
)

// AbandonedSession identifies a session closed by the idle sweep.
type AbandonedSession struct {
	ID     string
	UserID string
}

// AssessmentRepository defines data access for assessment sessions and the
// user profile fields they update.
type AssessmentRepository interface {
	GetUser(ctx context.Context, id string) (*User, error)
	CreateSession(ctx context.Context, s *assessment.Session) error
	GetSession(ctx context.Context, id string) (*assessment.Session, error)
	// LatestCompleted returns the user's most recent completed session other
	// than excludeID, or nil.
	LatestCompleted(ctx context.Context, userID, excludeID string) (*assessment.Session, error)
	// SavePhase writes the payload of phase from s. It fails with
	// ErrNotInProgress unless the stored session is IN_PROGRESS.
	SavePhase(ctx context.Context, s *assessment.Session, phase assessment.Phase) error
	// Complete stores the report, and final when non-nil, on the session and
	// updates the user row in one transaction. It fails with ErrNotInProgress
	// unless the session is IN_PROGRESS, and with ErrNotFound if the user row
	// is missing.
	Complete(ctx context.Context, userID string, final *assessment.Phase4Result, report *assessment.Report) error
	// AbandonIdle marks IN_PROGRESS sessions created before cutoff as
	// ABANDONED, however recently they were written to.
	AbandonIdle(ctx context.Context, cutoff time.Time) ([]AbandonedSession, error)
}

// PostgresAssessmentRepository implements AssessmentRepository with PostgreSQL.
type PostgresAssessmentRepository struct {
	db *client.PostgresClient
}

// NewPostgresAssessmentRepository creates a new PostgresAssessmentRepository.
func NewPostgresAssessmentRepository(db *client.PostgresClient) *PostgresAssessmentRepository {
	return &PostgresAssessmentRepository{db: db}
}

const sessionColumns = `
	id::text, user_id::text, status,
	phase1_data, phase2_data, phase3_data, phase4_data,
	talk_style, overall_level, overall_score, confidence,
	skill_breakdown, weakness_map, improvement_delta, personalized_plan,
	completed_at, created_at, updated_at`

func (r *PostgresAssessmentRepository) ready() error {
	if r.db == nil || r.db.Pool == nil {
		return fmt.Errorf("database not configured")
	}
	return nil
}

// GetUser retrieves a user by ID.
func (r *PostgresAssessmentRepository) GetUser(ctx context.Context, id string) (*User, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	query := `
		SELECT id::text, email, display_name, overall_level, talk_style, level_updated_at, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var (
		u            User
		level, style *string
	)
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&level,
		&style,
		&u.LevelUpdatedAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if level != nil {
		u.OverallLevel = assessment.Level(*level)
	}
	if style != nil {
		u.TalkStyle = assessment.TalkStyle(*style)
	}
	return &u, nil
}

// CreateSession inserts a new IN_PROGRESS session.
func (r *PostgresAssessmentRepository) CreateSession(ctx context.Context, s *assessment.Session) error {
	if err := r.ready(); err != nil {
		return err
	}

	query := `
		INSERT INTO assessment_sessions (id, user_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`

	if _, err := r.db.Pool.Exec(ctx, query, s.ID, s.UserID, string(s.Status), s.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create assessment session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (r *PostgresAssessmentRepository) GetSession(ctx context.Context, id string) (*assessment.Session, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	query := `SELECT ` + sessionColumns + ` FROM assessment_sessions WHERE id = $1`
	s, err := scanSession(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get assessment session: %w", err)
	}
	return s, nil
}

// LatestCompleted returns the most recent completed session of a user.
func (r *PostgresAssessmentRepository) LatestCompleted(ctx context.Context, userID, excludeID string) (*assessment.Session, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(userID); err != nil {
		return nil, nil
	}

	query := `SELECT ` + sessionColumns + `
		FROM assessment_sessions
		WHERE user_id = $1 AND status = 'COMPLETED' AND id::text <> $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	s, err := scanSession(r.db.Pool.QueryRow(ctx, query, userID, excludeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest completed session: %w", err)
	}
	return s, nil
}

// SavePhase writes one phase payload with a conditional update.
func (r *PostgresAssessmentRepository) SavePhase(ctx context.Context, s *assessment.Session, phase assessment.Phase) error {
	if err := r.ready(); err != nil {
		return err
	}

	var (
		column string
		data   []byte
		err    error
	)
	switch phase {
	case assessment.Phase1:
		column = "phase1_data"
		data, err = jsonArg(s.Phase1)
	case assessment.Phase2:
		column = "phase2_data"
		data, err = jsonArg(s.Phase2)
	case assessment.Phase3:
		column = "phase3_data"
		data, err = jsonArg(s.Phase3)
	case assessment.Phase4:
		column = "phase4_data"
		data, err = jsonArg(s.Phase4)
	default:
		return fmt.Errorf("unknown phase %q", phase)
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", column, err)
	}

	query := `
		UPDATE assessment_sessions
		SET ` + column + ` = $2,
		    talk_style = COALESCE($3, talk_style),
		    updated_at = $4
		WHERE id = $1 AND status = 'IN_PROGRESS'
	`
	tag, err := r.db.Pool.Exec(ctx, query, s.ID, data, nullableText(string(s.TalkStyle)), s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotInProgress
	}
	return nil
}

// Complete commits the final report and the user profile atomically.
func (r *PostgresAssessmentRepository) Complete(ctx context.Context, userID string, final *assessment.Phase4Result, report *assessment.Report) error {
	if err := r.ready(); err != nil {
		return err
	}

	phase4, err := jsonArg(final)
	if err != nil {
		return fmt.Errorf("failed to encode phase4_data: %w", err)
	}

	breakdown, err := json.Marshal(report.SkillBreakdown)
	if err != nil {
		return fmt.Errorf("failed to encode skill breakdown: %w", err)
	}
	weaknesses, err := json.Marshal(report.WeaknessMap)
	if err != nil {
		return fmt.Errorf("failed to encode weakness map: %w", err)
	}
	delta, err := jsonArg(report.ImprovementDelta)
	if err != nil {
		return fmt.Errorf("failed to encode improvement delta: %w", err)
	}
	plan, err := json.Marshal(report.PersonalizedPlan)
	if err != nil {
		return fmt.Errorf("failed to encode personalized plan: %w", err)
	}

	return pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE assessment_sessions
			SET status = 'COMPLETED',
			    overall_level = $2,
			    overall_score = $3,
			    confidence = $4,
			    skill_breakdown = $5,
			    weakness_map = $6,
			    improvement_delta = $7,
			    personalized_plan = $8,
			    completed_at = $9,
			    updated_at = $9,
			    phase4_data = COALESCE($10::jsonb, phase4_data)
			WHERE id = $1 AND status = 'IN_PROGRESS'
		`,
			report.SessionID,
			string(report.OverallLevel),
			report.OverallScore,
			report.Confidence,
			breakdown,
			weaknesses,
			delta,
			plan,
			report.CompletedAt,
			phase4,
		)
		if err != nil {
			return fmt.Errorf("failed to complete session: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotInProgress
		}

		tag, err = tx.Exec(ctx, `
			UPDATE users
			SET overall_level = $2,
			    talk_style = COALESCE($3, talk_style),
			    level_updated_at = $4,
			    updated_at = $4
			WHERE id = $1
		`,
			userID,
			string(report.OverallLevel),
			nullableText(string(report.TalkStyle)),
			report.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update user level: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return ErrNotFound
		}
		return nil
	})
}

// AbandonIdle closes stale sessions in a single conditional update.
func (r *PostgresAssessmentRepository) AbandonIdle(ctx context.Context, cutoff time.Time) ([]AbandonedSession, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}

	rows, err := r.db.Pool.Query(ctx, `
		UPDATE assessment_sessions
		SET status = 'ABANDONED', updated_at = now()
		WHERE status = 'IN_PROGRESS' AND created_at < $1
		RETURNING id::text, user_id::text
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to abandon idle sessions: %w", err)
	}

	abandoned, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (AbandonedSession, error) {
		var a AbandonedSession
		err := row.Scan(&a.ID, &a.UserID)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read abandoned sessions: %w", err)
	}
	return abandoned, nil
}

func scanSession(row pgx.Row) (*assessment.Session, error) {
	var (
		s                                      assessment.Session
		status                                 string
		p1, p2, p3, p4                         []byte
		breakdown, weaknesses, delta, planData []byte
		talkStyle, level                       *string
	)

	err := row.Scan(
		&s.ID, &s.UserID, &status,
		&p1, &p2, &p3, &p4,
		&talkStyle, &level, &s.OverallScore, &s.Confidence,
		&breakdown, &weaknesses, &delta, &planData,
		&s.CompletedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Status = assessment.Status(status)
	if talkStyle != nil {
		s.TalkStyle = assessment.TalkStyle(*talkStyle)
	}
	if level != nil {
		s.OverallLevel = assessment.Level(*level)
	}

	decoders := []struct {
		data []byte
		dst  any
	}{
		{p1, &s.Phase1},
		{p2, &s.Phase2},
		{p3, &s.Phase3},
		{p4, &s.Phase4},
		{breakdown, &s.SkillBreakdown},
		{weaknesses, &s.WeaknessMap},
		{delta, &s.ImprovementDelta},
		{planData, &s.PersonalizedPlan},
	}
	for _, d := range decoders {
		if len(d.data) == 0 {
			continue
		}
		if err := json.Unmarshal(d.data, d.dst); err != nil {
			return nil, fmt.Errorf("failed to decode session %s: %w", s.ID, err)
		}
	}
	return &s, nil
}

// jsonArg encodes v for a JSONB parameter; nil becomes SQL NULL.
func jsonArg[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

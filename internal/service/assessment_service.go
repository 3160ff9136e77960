package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/windfall/engapp_service/internal/assessment"
	"github.com/windfall/engapp_service/internal/errors"
	"github.com/windfall/engapp_service/internal/observe"
	"github.com/windfall/engapp_service/internal/repository"
)

// AssessmentDeps are the collaborators of AssessmentService. Repo, Speech,
// Language and Audio are required.
type AssessmentDeps struct {
	Repo     repository.AssessmentRepository
	Content  *assessment.Content
	Speech   SpeechAnalyzer
	Language LanguageAnalyzer
	Audio    AudioStore
	Locker   SessionLocker
	Notifier Notifier
	Metrics  *observe.Metrics

	// LanguageProvider labels fallback metrics.
	LanguageProvider string
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// AssessmentService runs the placement assessment: the cooldown gate, the
// four phase state machine and the final scoring commit.
type AssessmentService struct {
	repo             repository.AssessmentRepository
	content          *assessment.Content
	speech           SpeechAnalyzer
	language         LanguageAnalyzer
	audio            AudioStore
	locker           SessionLocker
	notifier         Notifier
	metrics          *observe.Metrics
	languageProvider string
	now              func() time.Time
	log              zerolog.Logger
}

// NewAssessmentService creates a new AssessmentService.
func NewAssessmentService(deps AssessmentDeps, log zerolog.Logger) *AssessmentService {
	s := &AssessmentService{
		repo:             deps.Repo,
		content:          deps.Content,
		speech:           deps.Speech,
		language:         deps.Language,
		audio:            deps.Audio,
		locker:           deps.Locker,
		notifier:         deps.Notifier,
		metrics:          deps.Metrics,
		languageProvider: deps.LanguageProvider,
		now:              deps.Clock,
		log:              log,
	}
	if s.content == nil {
		s.content = assessment.DefaultContent()
	}
	if s.locker == nil {
		s.locker = NewLocalLocker()
	}
	if s.notifier == nil {
		s.notifier = NopNotifier{}
	}
	if s.metrics == nil {
		s.metrics = observe.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// SubmitPhaseInput is one recording submitted for a phase.
type SubmitPhaseInput struct {
	SessionID string
	UserID    string
	Phase     string
	Audio     []byte
	// Attempt selects the Phase 2 recording (1 or 2). Other phases use it
	// only to name the stored object; zero means 1.
	Attempt int
}

// PhaseResult tells the client what to do next.
type PhaseResult struct {
	SessionID    string               `json:"session_id"`
	Phase        assessment.Phase     `json:"phase"`
	NextPhase    assessment.Phase     `json:"next_phase,omitempty"`
	Retry        bool                 `json:"retry,omitempty"`
	Hint         string               `json:"hint,omitempty"`
	NextSentence *assessment.Sentence `json:"next_sentence,omitempty"`
	ImageURL     string               `json:"image_url,omitempty"`
	ImageLevel   assessment.Level     `json:"image_level,omitempty"`
	Question     string               `json:"question,omitempty"`
	Completed    bool                 `json:"completed,omitempty"`
	Report       *assessment.Report   `json:"report,omitempty"`
}

// CanStartAssessment applies the cooldown gate to the user's latest
// completed assessment.
func (s *AssessmentService) CanStartAssessment(ctx context.Context, userID string) (assessment.Eligibility, error) {
	latest, err := s.repo.LatestCompleted(ctx, userID, "")
	if err != nil {
		return assessment.Eligibility{}, errors.InternalWrap("failed to load latest assessment", err)
	}
	return assessment.CheckCooldown(latest, s.now()), nil
}

// StartAssessment opens a new session unless the user is cooling down.
func (s *AssessmentService) StartAssessment(ctx context.Context, userID string) (*assessment.Session, error) {
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("user")
		}
		return nil, errors.InternalWrap("failed to load user", err)
	}

	eligibility, err := s.CanStartAssessment(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !eligibility.Allowed {
		s.metrics.CooldownRejections.Add(ctx, 1)
		s.log.Info().
			Str("user_id", userID).
			Time("next_available_at", *eligibility.NextAvailableAt).
			Msg("Assessment start rejected by cooldown")
		return nil, errors.Cooldown(*eligibility.NextAvailableAt)
	}

	now := s.now().UTC()
	session := &assessment.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    assessment.StatusInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, errors.InternalWrap("failed to create assessment session", err)
	}

	s.metrics.AssessmentsStarted.Add(ctx, 1)
	s.log.Info().
		Str("session_id", session.ID).
		Str("user_id", userID).
		Msg("Assessment started")

	return session, nil
}

// SubmitPhase scores one recording and advances the session.
func (s *AssessmentService) SubmitPhase(ctx context.Context, in SubmitPhaseInput) (result *PhaseResult, err error) {
	phase, ok := assessment.ParsePhase(in.Phase)
	if !ok {
		return nil, errors.InvalidPhase(in.Phase)
	}

	defer func() {
		outcome := "advanced"
		switch {
		case err != nil:
			outcome = "error"
		case result.Retry:
			outcome = "retry"
		}
		s.metrics.RecordPhaseSubmission(ctx, string(phase), outcome)
	}()

	attempt := in.Attempt
	if attempt == 0 {
		attempt = 1
	}
	if phase == assessment.Phase2 && attempt != 1 && attempt != 2 {
		return nil, errors.Validation("attempt must be 1 or 2 for PHASE_2")
	}
	if attempt < 1 {
		return nil, errors.Validation("attempt must be positive")
	}
	if len(in.Audio) == 0 {
		return nil, errors.Validation("audio is required")
	}

	release, ok, err := s.locker.Acquire(ctx, in.SessionID)
	if err != nil {
		return nil, errors.Storage("failed to lock assessment session", err)
	}
	if !ok {
		return nil, errors.Conflict("another submission for this session is in progress")
	}
	defer release()

	session, err := s.repo.GetSession(ctx, in.SessionID)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.InvalidSessionState("assessment session not found")
		}
		return nil, errors.InternalWrap("failed to load assessment session", err)
	}
	if session.UserID != in.UserID {
		return nil, errors.Forbidden("assessment session belongs to another user")
	}
	if session.Status != assessment.StatusInProgress {
		return nil, errors.InvalidSessionState(fmt.Sprintf("assessment session is %s", session.Status))
	}

	log := s.log.With().
		Str("session_id", session.ID).
		Str("user_id", session.UserID).
		Str("phase", string(phase)).
		Int("attempt", attempt).
		Logger()

	audioURL, err := s.audio.Upload(ctx, AudioKey(session.ID, phase, attempt), in.Audio, "audio/wav")
	if err != nil {
		return nil, errors.Storage("failed to store recording", err)
	}

	switch phase {
	case assessment.Phase1:
		result, err = s.submitPhase1(ctx, session, in.Audio, audioURL)
	case assessment.Phase2:
		result, err = s.submitPhase2(ctx, session, in.Audio, audioURL, attempt)
	case assessment.Phase3:
		result, err = s.submitPhase3(ctx, session, in.Audio, audioURL, log)
	case assessment.Phase4:
		result, err = s.submitPhase4(ctx, session, in.Audio, audioURL)
	}
	if err != nil {
		log.Error().Err(err).Msg("Phase submission failed")
		return nil, err
	}
	result.SessionID = session.ID
	result.Phase = phase

	if result.Retry {
		log.Info().Str("hint", result.Hint).Msg("Recording rejected, asking for retry")
		return result, nil
	}

	// the final payload is written by the completion commit
	if phase == assessment.Phase4 {
		report, err := s.complete(ctx, session, session.Phase4)
		if err != nil {
			return nil, err
		}
		result.Completed = true
		result.Report = report
		return result, nil
	}

	if err := s.savePhase(ctx, session, phase); err != nil {
		return nil, err
	}
	log.Info().Str("next_phase", string(result.NextPhase)).Msg("Phase recorded")

	_ = s.notifier.Notify(ctx, Event{
		Type:       EventPhaseAdvanced,
		SessionID:  session.ID,
		UserID:     session.UserID,
		Phase:      phase,
		NextPhase:  result.NextPhase,
		OccurredAt: s.now().UTC(),
	})
	return result, nil
}

func (s *AssessmentService) submitPhase1(ctx context.Context, session *assessment.Session, audioData []byte, audioURL string) (*PhaseResult, error) {
	speech, err := s.analyze(ctx, audioData, audioURL, "")
	if err != nil {
		return nil, err
	}

	if hint, retry := assessment.RetryHint(speech.WordCount, speech.SNR, s.content.Hints); retry {
		return &PhaseResult{NextPhase: assessment.Phase1, Retry: true, Hint: hint}, nil
	}

	session.Phase1 = &assessment.Phase1Result{
		AccuracyScore: speech.AccuracyScore,
		FluencyScore:  speech.FluencyScore,
		ProsodyScore:  speech.ProsodyScore,
		WordCount:     speech.WordCount,
		AudioURL:      audioURL,
	}

	sentence := s.content.Sentence(assessment.LevelB1)
	return &PhaseResult{NextPhase: assessment.Phase2, NextSentence: &sentence}, nil
}

func (s *AssessmentService) submitPhase2(ctx context.Context, session *assessment.Session, audioData []byte, audioURL string, attempt int) (*PhaseResult, error) {
	p2 := session.Phase2
	if p2 == nil {
		p2 = &assessment.Phase2Result{}
	}

	reference := s.content.Sentence(assessment.LevelB1)
	if attempt == 2 && p2.AdaptiveSentence != nil && p2.AdaptiveSentence.Text != "" {
		reference = *p2.AdaptiveSentence
	}

	speech, err := s.analyze(ctx, audioData, audioURL, reference.Text)
	if err != nil {
		return nil, err
	}
	rec := &assessment.SpeechAttempt{
		ReferenceText: reference.Text,
		AccuracyScore: speech.AccuracyScore,
		FluencyScore:  speech.FluencyScore,
		ProsodyScore:  speech.ProsodyScore,
		WordCount:     speech.WordCount,
		Transcript:    speech.Transcript,
		AudioURL:      audioURL,
	}

	if attempt == 1 {
		p2.Attempt1 = rec
		next := s.content.Sentence(assessment.AdaptiveSentenceLevel(rec.AccuracyScore))
		p2.AdaptiveSentence = &next
		session.Phase2 = p2
		return &PhaseResult{NextPhase: assessment.Phase2, NextSentence: &next}, nil
	}

	p2.Attempt2 = rec
	p2.Finalize()
	session.Phase2 = p2

	image := s.content.Image(assessment.ImageLevelFor(p2.PronunciationScore()))
	return &PhaseResult{
		NextPhase:  assessment.Phase3,
		ImageURL:   image.URL,
		ImageLevel: image.Level,
	}, nil
}

func (s *AssessmentService) submitPhase3(ctx context.Context, session *assessment.Session, audioData []byte, audioURL string, log zerolog.Logger) (*PhaseResult, error) {
	image := s.content.Image(assessment.ImageLevelFor(session.Phase2.PronunciationScore()))

	speech, err := s.analyze(ctx, audioData, audioURL, "")
	if err != nil {
		return nil, err
	}

	fallback := false
	lang, err := s.language.Analyze(ctx, speech.Transcript, image)
	if err != nil {
		log.Warn().Err(err).Msg("Language analysis failed, using heuristic estimate")
		s.metrics.RecordLanguageFallback(ctx, s.languageProvider)
		lang = assessment.FallbackLanguage(speech.Transcript)
		fallback = true
	}

	session.Phase3 = &assessment.Phase3Result{
		GrammarScore:   lang.GrammarScore,
		VocabularyCEFR: lang.VocabularyCEFR,
		TalkStyle:      lang.TalkStyle,
		Transcript:     speech.Transcript,
		AudioURL:       audioURL,
		ImageLevel:     image.Level,
		Fallback:       fallback,
	}
	session.TalkStyle = lang.TalkStyle

	return &PhaseResult{NextPhase: assessment.Phase4, Question: s.content.Question}, nil
}

func (s *AssessmentService) submitPhase4(ctx context.Context, session *assessment.Session, audioData []byte, audioURL string) (*PhaseResult, error) {
	speech, err := s.analyze(ctx, audioData, audioURL, "")
	if err != nil {
		return nil, err
	}

	session.Phase4 = &assessment.Phase4Result{
		WordCount:          speech.WordCount,
		ComprehensionScore: assessment.ComprehensionScore(speech.WordCount),
		Transcript:         speech.Transcript,
		AudioURL:           audioURL,
	}
	return &PhaseResult{}, nil
}

func (s *AssessmentService) analyze(ctx context.Context, audioData []byte, audioURL, reference string) (*SpeechResult, error) {
	res, err := s.speech.Analyze(ctx, audioData, audioURL, reference)
	if err != nil {
		if appErr, ok := errors.As(err); ok {
			return nil, appErr
		}
		return nil, errors.Upstream("speech analysis failed", err)
	}
	return res, nil
}

func (s *AssessmentService) savePhase(ctx context.Context, session *assessment.Session, phase assessment.Phase) error {
	session.UpdatedAt = s.now().UTC()
	if err := s.repo.SavePhase(ctx, session, phase); err != nil {
		switch {
		case stderrors.Is(err, repository.ErrNotInProgress):
			return errors.InvalidSessionState("assessment session is no longer in progress")
		case stderrors.Is(err, repository.ErrNotFound):
			return errors.InvalidSessionState("assessment session not found")
		}
		return errors.InternalWrap("failed to save phase result", err)
	}
	return nil
}

// CalculateFinalLevel scores a session whose final phase is recorded and
// commits the outcome. Calling it again on a completed session returns the
// stored report.
func (s *AssessmentService) CalculateFinalLevel(ctx context.Context, sessionID string) (*assessment.Report, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("assessment session")
		}
		return nil, errors.InternalWrap("failed to load assessment session", err)
	}
	return s.complete(ctx, session, nil)
}

// complete aggregates and commits the session. final is the PHASE_4 payload
// to store with the report, or nil when it is already persisted.
func (s *AssessmentService) complete(ctx context.Context, session *assessment.Session, final *assessment.Phase4Result) (*assessment.Report, error) {
	switch session.Status {
	case assessment.StatusCompleted:
		return session.Report(), nil
	case assessment.StatusInProgress:
	default:
		return nil, errors.InvalidSessionState(fmt.Sprintf("assessment session is %s", session.Status))
	}
	if session.Phase4 == nil {
		return nil, errors.InvalidSessionState("assessment session has not finished PHASE_4")
	}

	previous, err := s.repo.LatestCompleted(ctx, session.UserID, session.ID)
	if err != nil {
		return nil, errors.InternalWrap("failed to load previous assessment", err)
	}

	report := assessment.Aggregate(session, previous, s.now().UTC())
	if err := s.repo.Complete(ctx, session.UserID, final, report); err != nil {
		switch {
		case stderrors.Is(err, repository.ErrNotInProgress):
			return s.storedReport(ctx, session.ID)
		case stderrors.Is(err, repository.ErrNotFound):
			return nil, errors.NotFound("user")
		}
		return nil, errors.InternalWrap("failed to commit assessment result", err)
	}

	s.metrics.RecordCompletion(ctx, string(report.OverallLevel))
	s.log.Info().
		Str("session_id", session.ID).
		Str("user_id", session.UserID).
		Str("level", string(report.OverallLevel)).
		Float64("score", report.OverallScore).
		Float64("confidence", report.Confidence).
		Msg("Assessment completed")

	score := report.OverallScore
	_ = s.notifier.Notify(ctx, Event{
		Type:       EventAssessmentCompleted,
		SessionID:  session.ID,
		UserID:     session.UserID,
		Phase:      assessment.Phase4,
		Level:      report.OverallLevel,
		Score:      &score,
		OccurredAt: report.CompletedAt,
	})
	return report, nil
}

// storedReport resolves a lost completion race: another caller committed
// first, or the sweeper closed the session.
func (s *AssessmentService) storedReport(ctx context.Context, sessionID string) (*assessment.Report, error) {
	current, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, errors.InternalWrap("failed to reload assessment session", err)
	}
	if report := current.Report(); report != nil {
		return report, nil
	}
	return nil, errors.InvalidSessionState(fmt.Sprintf("assessment session is %s", current.Status))
}

// GetResults returns the full session record. Sessions of other users are
// reported as not found.
func (s *AssessmentService) GetResults(ctx context.Context, sessionID, userID string) (*assessment.Session, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("assessment session")
		}
		return nil, errors.InternalWrap("failed to load assessment session", err)
	}
	if userID != "" && session.UserID != userID {
		return nil, errors.NotFound("assessment session")
	}
	return session, nil
}

// GetDashboardData summarizes the user's latest completed assessment.
func (s *AssessmentService) GetDashboardData(ctx context.Context, userID string) (assessment.Dashboard, error) {
	latest, err := s.repo.LatestCompleted(ctx, userID, "")
	if err != nil {
		return assessment.Dashboard{}, errors.InternalWrap("failed to load latest assessment", err)
	}
	return assessment.BuildDashboard(latest), nil
}

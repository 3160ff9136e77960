package service

import (
	"context"
	stderrors "errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/windfall/engapp_service/internal/assessment"
	"github.com/windfall/engapp_service/internal/errors"
	"github.com/windfall/engapp_service/internal/logger"
	"github.com/windfall/engapp_service/internal/repository"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// fakeSpeech answers with queued results in call order.
type fakeSpeech struct {
	mu         sync.Mutex
	results    []*SpeechResult
	err        error
	references []string
}

func (f *fakeSpeech) Analyze(_ context.Context, _ []byte, _ string, referenceText string) (*SpeechResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.references = append(f.references, referenceText)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) == 0 {
		return &SpeechResult{}, nil
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r, nil
}

type fakeLanguage struct {
	result assessment.LanguageResult
	err    error
}

func (f fakeLanguage) Analyze(context.Context, string, assessment.Image) (assessment.LanguageResult, error) {
	return f.result, f.err
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(_ context.Context, ev Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, ev := range n.events {
		out[i] = ev.Type
	}
	return out
}

type testEnv struct {
	svc      *AssessmentService
	repo     *repository.MemoryAssessmentRepository
	speech   *fakeSpeech
	audio    *InMemoryAudioStore
	locker   *LocalLocker
	notifier *recordingNotifier
	now      time.Time
}

func newTestEnv(t *testing.T, lang LanguageAnalyzer) *testEnv {
	t.Helper()

	env := &testEnv{
		repo:     repository.NewMemoryAssessmentRepository(),
		speech:   &fakeSpeech{},
		audio:    NewInMemoryAudioStore("https://audio.test"),
		locker:   NewLocalLocker(),
		notifier: &recordingNotifier{},
		now:      testNow,
	}
	env.repo.PutUser(&repository.User{ID: "user-1", CreatedAt: testNow})
	env.repo.PutUser(&repository.User{ID: "user-2", CreatedAt: testNow})

	if lang == nil {
		lang = fakeLanguage{result: assessment.LanguageResult{
			GrammarScore:   72,
			VocabularyCEFR: assessment.LevelB2,
			TalkStyle:      assessment.TalkStyleDriver,
		}}
	}

	env.svc = NewAssessmentService(AssessmentDeps{
		Repo:             env.repo,
		Speech:           env.speech,
		Language:         lang,
		Audio:            env.audio,
		Locker:           env.locker,
		Notifier:         env.notifier,
		LanguageProvider: "fake",
		Clock:            func() time.Time { return env.now },
	}, logger.NewNop())
	return env
}

func (e *testEnv) start(t *testing.T, userID string) *assessment.Session {
	t.Helper()
	s, err := e.svc.StartAssessment(context.Background(), userID)
	if err != nil {
		t.Fatalf("StartAssessment: %v", err)
	}
	return s
}

func (e *testEnv) submit(t *testing.T, sessionID, phase string, attempt int) *PhaseResult {
	t.Helper()
	res, err := e.svc.SubmitPhase(context.Background(), SubmitPhaseInput{
		SessionID: sessionID,
		UserID:    "user-1",
		Phase:     phase,
		Audio:     []byte("RIFF"),
		Attempt:   attempt,
	})
	if err != nil {
		t.Fatalf("SubmitPhase(%s, %d): %v", phase, attempt, err)
	}
	return res
}

func ptr(v float64) *float64 { return &v }

func assertCode(t *testing.T, err error, want errors.ErrorCode) {
	t.Helper()
	appErr, ok := errors.As(err)
	if !ok {
		t.Fatalf("error = %v, want AppError %s", err, want)
	}
	if appErr.Code != want {
		t.Fatalf("code = %s, want %s (%v)", appErr.Code, want, err)
	}
}

func TestSubmitPhase_FullFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	env.speech.results = []*SpeechResult{
		{AccuracyScore: 85, FluencyScore: 80, WordCount: 12, SNR: ptr(30), Transcript: "hello there"},
		{AccuracyScore: 80, FluencyScore: 70, WordCount: 14},
		{AccuracyScore: 70, FluencyScore: 60, WordCount: 16, ProsodyScore: ptr(66)},
		{WordCount: 40, Transcript: "a long description"},
		{WordCount: 20, Transcript: "practising every day"},
	}
	content := assessment.DefaultContent()

	s := env.start(t, "user-1")

	r1 := env.submit(t, s.ID, "PHASE_1", 0)
	if r1.Retry || r1.NextPhase != assessment.Phase2 {
		t.Fatalf("phase 1 result = %+v", r1)
	}
	if r1.NextSentence == nil || r1.NextSentence.Level != assessment.LevelB1 {
		t.Fatalf("phase 1 next sentence = %+v", r1.NextSentence)
	}

	r2 := env.submit(t, s.ID, "PHASE_2", 1)
	if r2.NextPhase != assessment.Phase2 || r2.NextSentence.Level != assessment.LevelC1 {
		t.Fatalf("phase 2 attempt 1 result = %+v", r2)
	}

	r3 := env.submit(t, s.ID, "PHASE_2", 2)
	if r3.NextPhase != assessment.Phase3 || r3.ImageLevel != assessment.LevelB1 {
		t.Fatalf("phase 2 attempt 2 result = %+v", r3)
	}
	if r3.ImageURL != content.Image(assessment.LevelB1).URL {
		t.Errorf("image url = %s", r3.ImageURL)
	}

	r4 := env.submit(t, s.ID, "PHASE_3", 0)
	if r4.NextPhase != assessment.Phase4 || r4.Question != content.Question {
		t.Fatalf("phase 3 result = %+v", r4)
	}

	r5 := env.submit(t, s.ID, "PHASE_4", 0)
	if !r5.Completed || r5.Report == nil {
		t.Fatalf("phase 4 result = %+v", r5)
	}

	wantRefs := []string{
		"",
		content.Sentence(assessment.LevelB1).Text,
		content.Sentence(assessment.LevelC1).Text,
		"",
		"",
	}
	for i, want := range wantRefs {
		if env.speech.references[i] != want {
			t.Errorf("reference[%d] = %q, want %q", i, env.speech.references[i], want)
		}
	}

	// .2*75 + .2*65 + .25*72 + .2*80 + .15*80
	report := r5.Report
	if math.Abs(report.OverallScore-74) > 1e-9 {
		t.Errorf("overall = %v, want 74", report.OverallScore)
	}
	if report.OverallLevel != assessment.LevelB2 {
		t.Errorf("level = %s, want B2", report.OverallLevel)
	}
	if !report.NextAssessmentAvailableAt.Equal(testNow.Add(7 * 24 * time.Hour)) {
		t.Errorf("next available = %v", report.NextAssessmentAvailableAt)
	}
	if report.ImprovementDelta != nil {
		t.Errorf("first assessment has delta %+v", report.ImprovementDelta)
	}

	stored, err := env.repo.GetSession(context.Background(), s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != assessment.StatusCompleted || stored.TalkStyle != assessment.TalkStyleDriver {
		t.Errorf("stored session status=%s talk=%s", stored.Status, stored.TalkStyle)
	}
	if stored.Phase2.Attempt2.ReferenceText != content.Sentence(assessment.LevelC1).Text {
		t.Errorf("attempt 2 reference = %q", stored.Phase2.Attempt2.ReferenceText)
	}
	if _, ok := env.audio.Get(AudioKey(s.ID, assessment.Phase2, 2)); !ok {
		t.Error("phase 2 attempt 2 recording not stored")
	}

	user, _ := env.repo.GetUser(context.Background(), "user-1")
	if user.OverallLevel != assessment.LevelB2 || user.TalkStyle != assessment.TalkStyleDriver {
		t.Errorf("user = %+v", user)
	}
	if user.LevelUpdatedAt == nil || !user.LevelUpdatedAt.Equal(testNow) {
		t.Errorf("level updated at = %v", user.LevelUpdatedAt)
	}

	again, err := env.svc.CalculateFinalLevel(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("CalculateFinalLevel: %v", err)
	}
	if again.OverallScore != report.OverallScore || !again.CompletedAt.Equal(report.CompletedAt) {
		t.Errorf("repeated aggregation = %+v, want stored report", again)
	}

	want := []string{EventPhaseAdvanced, EventPhaseAdvanced, EventPhaseAdvanced, EventPhaseAdvanced, EventAssessmentCompleted}
	got := env.notifier.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	_, err = env.svc.SubmitPhase(context.Background(), SubmitPhaseInput{
		SessionID: s.ID, UserID: "user-1", Phase: "PHASE_4", Audio: []byte("x"),
	})
	assertCode(t, err, errors.ErrInvalidSessionState)
}

func TestSubmitPhase_Phase1Retry(t *testing.T) {
	hints := assessment.DefaultContent().Hints

	tests := []struct {
		name   string
		speech *SpeechResult
		hint   string
	}{
		{"silence", &SpeechResult{WordCount: 0, SNR: ptr(2)}, hints.NoSpeech},
		{"noise", &SpeechResult{WordCount: 9, SNR: ptr(5)}, hints.Noisy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.speech.results = []*SpeechResult{tt.speech}
			s := env.start(t, "user-1")

			res := env.submit(t, s.ID, "PHASE_1", 1)
			if !res.Retry || res.Hint != tt.hint || res.NextPhase != assessment.Phase1 {
				t.Fatalf("result = %+v", res)
			}

			stored, _ := env.repo.GetSession(context.Background(), s.ID)
			if stored.Phase1 != nil {
				t.Error("phase 1 persisted on retry")
			}
			if len(env.notifier.types()) != 0 {
				t.Errorf("events on retry: %v", env.notifier.types())
			}
		})
	}
}

func TestSubmitPhase_Phase1UnknownSNRAdvances(t *testing.T) {
	env := newTestEnv(t, nil)
	env.speech.results = []*SpeechResult{{WordCount: 5}}
	s := env.start(t, "user-1")

	if res := env.submit(t, s.ID, "PHASE_1", 1); res.Retry {
		t.Fatalf("result = %+v", res)
	}
}

func TestSubmitPhase_AdaptiveThreshold(t *testing.T) {
	tests := []struct {
		accuracy float64
		want     assessment.Level
	}{
		{70, assessment.LevelC1},
		{69.9, assessment.LevelA2},
	}
	for _, tt := range tests {
		env := newTestEnv(t, nil)
		env.speech.results = []*SpeechResult{{AccuracyScore: tt.accuracy, WordCount: 10}}
		s := env.start(t, "user-1")

		res := env.submit(t, s.ID, "PHASE_2", 1)
		if res.NextSentence.Level != tt.want {
			t.Errorf("accuracy %v: sentence level = %s, want %s", tt.accuracy, res.NextSentence.Level, tt.want)
		}
	}
}

func TestSubmitPhase_Phase2SecondAttemptWithoutFirst(t *testing.T) {
	env := newTestEnv(t, nil)
	env.speech.results = []*SpeechResult{{AccuracyScore: 90, FluencyScore: 90, WordCount: 10}}
	s := env.start(t, "user-1")

	res := env.submit(t, s.ID, "PHASE_2", 2)
	// missing attempt 1 counts as zero: (0+90)/2 = 45 < 50
	if res.ImageLevel != assessment.LevelA2 {
		t.Errorf("image level = %s, want A2", res.ImageLevel)
	}
	if env.speech.references[0] != assessment.DefaultContent().Sentence(assessment.LevelB1).Text {
		t.Errorf("reference = %q, want B1 fallback", env.speech.references[0])
	}
}

func TestSubmitPhase_Phase2EmptyAdaptiveSentenceUsesB1(t *testing.T) {
	env := newTestEnv(t, nil)
	env.repo.PutSession(&assessment.Session{
		ID:     "s1",
		UserID: "user-1",
		Status: assessment.StatusInProgress,
		Phase2: &assessment.Phase2Result{
			AdaptiveSentence: &assessment.Sentence{Level: assessment.LevelC1},
		},
		CreatedAt: testNow,
		UpdatedAt: testNow,
	})

	env.submit(t, "s1", "PHASE_2", 2)
	if env.speech.references[0] != assessment.DefaultContent().Sentence(assessment.LevelB1).Text {
		t.Errorf("reference = %q, want B1 fallback", env.speech.references[0])
	}
}

func TestSubmitPhase_LanguageFallback(t *testing.T) {
	env := newTestEnv(t, fakeLanguage{err: stderrors.New("provider down")})
	env.speech.results = []*SpeechResult{{
		WordCount:  25,
		Transcript: "one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen sixteen seventeen eighteen nineteen twenty twentyone twentytwo",
	}}
	s := env.start(t, "user-1")

	res := env.submit(t, s.ID, "PHASE_3", 0)
	if res.NextPhase != assessment.Phase4 {
		t.Fatalf("result = %+v", res)
	}

	stored, _ := env.repo.GetSession(context.Background(), s.ID)
	p3 := stored.Phase3
	if !p3.Fallback || p3.GrammarScore != 70 || p3.VocabularyCEFR != assessment.LevelB1 || p3.TalkStyle != assessment.TalkStylePassenger {
		t.Errorf("phase 3 = %+v", p3)
	}
	if p3.ImageLevel != assessment.LevelA2 {
		t.Errorf("image level without phase 2 = %s, want A2", p3.ImageLevel)
	}
}

func TestSubmitPhase_Errors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(env *testEnv, sessionID string) SubmitPhaseInput
		want  errors.ErrorCode
	}{
		{
			name: "unknown phase",
			setup: func(_ *testEnv, id string) SubmitPhaseInput {
				return SubmitPhaseInput{SessionID: id, UserID: "user-1", Phase: "PHASE_5", Audio: []byte("x")}
			},
			want: errors.ErrInvalidPhase,
		},
		{
			name: "bad phase 2 attempt",
			setup: func(_ *testEnv, id string) SubmitPhaseInput {
				return SubmitPhaseInput{SessionID: id, UserID: "user-1", Phase: "PHASE_2", Audio: []byte("x"), Attempt: 3}
			},
			want: errors.ErrValidation,
		},
		{
			name: "missing audio",
			setup: func(_ *testEnv, id string) SubmitPhaseInput {
				return SubmitPhaseInput{SessionID: id, UserID: "user-1", Phase: "PHASE_1"}
			},
			want: errors.ErrValidation,
		},
		{
			name: "unknown session",
			setup: func(_ *testEnv, _ string) SubmitPhaseInput {
				return SubmitPhaseInput{SessionID: "missing", UserID: "user-1", Phase: "PHASE_1", Audio: []byte("x")}
			},
			want: errors.ErrInvalidSessionState,
		},
		{
			name: "other user",
			setup: func(_ *testEnv, id string) SubmitPhaseInput {
				return SubmitPhaseInput{SessionID: id, UserID: "user-2", Phase: "PHASE_1", Audio: []byte("x")}
			},
			want: errors.ErrForbidden,
		},
		{
			name: "abandoned session",
			setup: func(env *testEnv, id string) SubmitPhaseInput {
				if _, err := env.repo.AbandonIdle(context.Background(), time.Now().Add(time.Hour)); err != nil {
					panic(err)
				}
				return SubmitPhaseInput{SessionID: id, UserID: "user-1", Phase: "PHASE_1", Audio: []byte("x")}
			},
			want: errors.ErrInvalidSessionState,
		},
		{
			name: "concurrent submission",
			setup: func(env *testEnv, id string) SubmitPhaseInput {
				env.locker.Acquire(context.Background(), id)
				return SubmitPhaseInput{SessionID: id, UserID: "user-1", Phase: "PHASE_1", Audio: []byte("x")}
			},
			want: errors.ErrConflict,
		},
		{
			name: "speech provider failure",
			setup: func(env *testEnv, id string) SubmitPhaseInput {
				env.speech.err = stderrors.New("timeout")
				return SubmitPhaseInput{SessionID: id, UserID: "user-1", Phase: "PHASE_1", Audio: []byte("x")}
			},
			want: errors.ErrUpstreamService,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			s := env.start(t, "user-1")

			_, err := env.svc.SubmitPhase(context.Background(), tt.setup(env, s.ID))
			assertCode(t, err, tt.want)

			stored, _ := env.repo.GetSession(context.Background(), s.ID)
			if stored.Phase1 != nil || stored.Phase2 != nil {
				t.Error("failed submission mutated the session")
			}
		})
	}
}

func TestStartAssessment_Cooldown(t *testing.T) {
	tests := []struct {
		name        string
		completedAt time.Time
		allowed     bool
	}{
		{"two days ago", testNow.Add(-48 * time.Hour), false},
		{"just under a week", testNow.Add(-7*24*time.Hour + time.Second), false},
		{"exactly a week", testNow.Add(-7 * 24 * time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			completed := tt.completedAt
			env.repo.PutSession(&assessment.Session{
				ID:          "prev",
				UserID:      "user-1",
				Status:      assessment.StatusCompleted,
				CompletedAt: &completed,
				CreatedAt:   completed.Add(-time.Hour),
			})

			eligibility, err := env.svc.CanStartAssessment(context.Background(), "user-1")
			if err != nil {
				t.Fatal(err)
			}
			if eligibility.Allowed != tt.allowed {
				t.Fatalf("allowed = %v, want %v", eligibility.Allowed, tt.allowed)
			}

			_, err = env.svc.StartAssessment(context.Background(), "user-1")
			if tt.allowed {
				if err != nil {
					t.Fatalf("StartAssessment: %v", err)
				}
				return
			}
			assertCode(t, err, errors.ErrCooldownActive)
			appErr, _ := errors.As(err)
			want := completed.Add(7 * 24 * time.Hour).Format(time.RFC3339Nano)
			if appErr.Details["next_available_at"] != want {
				t.Errorf("next_available_at = %v, want %s", appErr.Details["next_available_at"], want)
			}
		})
	}
}

func TestStartAssessment_UnknownUser(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.svc.StartAssessment(context.Background(), "ghost")
	assertCode(t, err, errors.ErrNotFound)
}

func TestCalculateFinalLevel_ImprovementDelta(t *testing.T) {
	env := newTestEnv(t, nil)
	prevAt := testNow.Add(-30 * 24 * time.Hour)
	prevScore := 60.0
	env.repo.PutSession(&assessment.Session{
		ID:           "prev",
		UserID:       "user-1",
		Status:       assessment.StatusCompleted,
		OverallScore: &prevScore,
		CompletedAt:  &prevAt,
		CreatedAt:    prevAt,
		SkillBreakdown: &assessment.SkillBreakdown{
			Pronunciation: assessment.PronunciationSkills{PhonemeAccuracy: 50},
		},
	})

	final := 70.0
	env.repo.PutSession(&assessment.Session{
		ID:     "current",
		UserID: "user-1",
		Status: assessment.StatusInProgress,
		Phase2: &assessment.Phase2Result{
			FinalPronunciationScore: &final,
			FinalFluencyScore:       &final,
		},
		Phase3:    &assessment.Phase3Result{GrammarScore: 70, VocabularyCEFR: assessment.LevelB1},
		Phase4:    &assessment.Phase4Result{ComprehensionScore: 80},
		CreatedAt: testNow,
		UpdatedAt: testNow,
	})

	report, err := env.svc.CalculateFinalLevel(context.Background(), "current")
	if err != nil {
		t.Fatalf("CalculateFinalLevel: %v", err)
	}
	// .2*70 + .2*70 + .25*70 + .2*60 + .15*80 = 69.5
	if report.ImprovementDelta == nil {
		t.Fatal("missing improvement delta")
	}
	if report.ImprovementDelta.Overall != 10 {
		t.Errorf("overall delta = %d, want 10", report.ImprovementDelta.Overall)
	}
	if report.ImprovementDelta.Pronunciation != 20 {
		t.Errorf("pronunciation delta = %d, want 20", report.ImprovementDelta.Pronunciation)
	}
}

func TestCalculateFinalLevel_States(t *testing.T) {
	env := newTestEnv(t, nil)
	env.repo.PutSession(&assessment.Session{ID: "gone", UserID: "user-1", Status: assessment.StatusAbandoned})

	_, err := env.svc.CalculateFinalLevel(context.Background(), "gone")
	assertCode(t, err, errors.ErrInvalidSessionState)

	_, err = env.svc.CalculateFinalLevel(context.Background(), "missing")
	assertCode(t, err, errors.ErrNotFound)
}

func TestCalculateFinalLevel_RequiresPhase4(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.start(t, "user-1")

	_, err := env.svc.CalculateFinalLevel(context.Background(), s.ID)
	assertCode(t, err, errors.ErrInvalidSessionState)

	got, _ := env.repo.GetSession(context.Background(), s.ID)
	if got.Status != assessment.StatusInProgress || got.OverallScore != nil {
		t.Errorf("session = %+v, want untouched", got)
	}
	u, _ := env.repo.GetUser(context.Background(), "user-1")
	if u.OverallLevel != "" {
		t.Errorf("user level = %s, want unset", u.OverallLevel)
	}
	elig, err := env.svc.CanStartAssessment(context.Background(), "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if !elig.Allowed {
		t.Error("cooldown started by a refused completion")
	}
}

func TestSubmitPhase_Phase4FailedCommitStoresNothing(t *testing.T) {
	env := newTestEnv(t, nil)
	final := 70.0
	// no user row, so the completion commit fails
	env.repo.PutSession(&assessment.Session{
		ID:     "orphan",
		UserID: "ghost",
		Status: assessment.StatusInProgress,
		Phase2: &assessment.Phase2Result{
			FinalPronunciationScore: &final,
			FinalFluencyScore:       &final,
		},
		Phase3:    &assessment.Phase3Result{GrammarScore: 70, VocabularyCEFR: assessment.LevelB1},
		CreatedAt: testNow,
		UpdatedAt: testNow,
	})
	env.speech.results = []*SpeechResult{{WordCount: 20, Transcript: "a long enough answer"}}

	_, err := env.svc.SubmitPhase(context.Background(), SubmitPhaseInput{
		SessionID: "orphan",
		UserID:    "ghost",
		Phase:     "PHASE_4",
		Audio:     []byte("RIFF"),
	})
	assertCode(t, err, errors.ErrNotFound)

	got, _ := env.repo.GetSession(context.Background(), "orphan")
	if got.Status != assessment.StatusInProgress || got.Phase4 != nil {
		t.Errorf("session = %+v, want IN_PROGRESS without phase 4 data", got)
	}
}

func TestGetResults(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.start(t, "user-1")

	got, err := env.svc.GetResults(context.Background(), s.ID, "user-1")
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	if got.ID != s.ID || got.Status != assessment.StatusInProgress {
		t.Errorf("session = %+v", got)
	}

	_, err = env.svc.GetResults(context.Background(), s.ID, "user-2")
	assertCode(t, err, errors.ErrNotFound)

	_, err = env.svc.GetResults(context.Background(), "missing", "user-1")
	assertCode(t, err, errors.ErrNotFound)
}

func TestGetDashboardData(t *testing.T) {
	env := newTestEnv(t, nil)

	d, err := env.svc.GetDashboardData(context.Background(), "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if d.State != assessment.DashboardOnboarding {
		t.Errorf("state = %s, want ONBOARDING", d.State)
	}

	completed := testNow.Add(-24 * time.Hour)
	score := 80.0
	env.repo.PutSession(&assessment.Session{
		ID:           "done",
		UserID:       "user-1",
		Status:       assessment.StatusCompleted,
		OverallLevel: assessment.LevelC1,
		OverallScore: &score,
		CompletedAt:  &completed,
		CreatedAt:    completed,
	})

	d, err = env.svc.GetDashboardData(context.Background(), "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if d.State != assessment.DashboardReady || d.CurrentLevel != assessment.LevelC1 {
		t.Errorf("dashboard = %+v", d)
	}
	if d.NextAssessmentAvailableAt == nil || !d.NextAssessmentAvailableAt.Equal(completed.Add(7*24*time.Hour)) {
		t.Errorf("next available = %v", d.NextAssessmentAvailableAt)
	}
}

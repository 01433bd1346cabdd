// Package memory is the in-process backend: it serves unit tests and the
// no-postgres dev mode of the server with the same repository surface the
// postgres store implements.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"quiz-progression-service/internal/app"
	"quiz-progression-service/internal/domain"
)

// Store implements every app repository interface over mutex-guarded maps.
type Store struct {
	mu sync.RWMutex

	quizzes  map[string]domain.Quiz
	attempts map[string]*domain.Attempt
	answers  map[string][]domain.AnswerRecord

	entries map[string]*domain.LeaderboardEntry

	progress     map[string]*domain.UserProgress
	levels       []domain.LevelDefinition
	tiers        []domain.TierDefinition
	levelHistory map[string][]domain.UserLevelHistory
	tierHistory  map[string][]domain.UserTierHistory

	badges     []domain.Badge
	userBadges map[string]map[int64]domain.UserBadge

	notifications []domain.Notification

	friendCounts  map[string]int
	challengeWins map[string]int
	reviewCounts  map[string]int

	nextID int64
}

func NewStore() *Store {
	return &Store{
		quizzes:       make(map[string]domain.Quiz),
		attempts:      make(map[string]*domain.Attempt),
		answers:       make(map[string][]domain.AnswerRecord),
		entries:       make(map[string]*domain.LeaderboardEntry),
		progress:      make(map[string]*domain.UserProgress),
		levelHistory:  make(map[string][]domain.UserLevelHistory),
		tierHistory:   make(map[string][]domain.UserTierHistory),
		userBadges:    make(map[string]map[int64]domain.UserBadge),
		friendCounts:  make(map[string]int),
		challengeWins: make(map[string]int),
		reviewCounts:  make(map[string]int),
	}
}

func (s *Store) nextIDLocked() int64 {
	s.nextID++
	return s.nextID
}

func entryKey(quizID, userID string) string { return quizID + "|" + userID }

// ---- seeding ----

// SeedQuiz registers quiz content; the store then acts as a QuizLoader too.
func (s *Store) SeedQuiz(quiz domain.Quiz) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[quiz.ID] = quiz
}

// SeedAttempt registers an open attempt.
func (s *Store) SeedAttempt(attempt domain.Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := attempt
	s.attempts[attempt.ID] = &copied
}

// SeedLevels replaces the level catalog.
func (s *Store) SeedLevels(levels []domain.LevelDefinition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels = append([]domain.LevelDefinition(nil), levels...)
}

// SeedTiers replaces the tier catalog.
func (s *Store) SeedTiers(tiers []domain.TierDefinition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers = append([]domain.TierDefinition(nil), tiers...)
}

// SeedBadges replaces the badge catalog, assigning ids when absent.
func (s *Store) SeedBadges(badges []domain.Badge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.badges = nil
	for _, b := range badges {
		if b.ID == 0 {
			b.ID = s.nextIDLocked()
		}
		s.badges = append(s.badges, b)
	}
}

// SetSocialCounts seeds the externally-owned aggregate facts.
func (s *Store) SetSocialCounts(userID string, friends, challengeWins, reviews int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.friendCounts[userID] = friends
	s.challengeWins[userID] = challengeWins
	s.reviewCounts[userID] = reviews
}

// LoadQuiz implements QuizLoader.
func (s *Store) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if quiz, ok := s.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

// ---- app.AttemptRepository ----

func (s *Store) GetAttempt(_ context.Context, id string) (*domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[id]
	if !ok {
		return nil, domain.ErrAttemptNotFound
	}
	copied := *attempt
	return &copied, nil
}

func (s *Store) ListAnswers(_ context.Context, attemptID string) ([]domain.AnswerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := append([]domain.AnswerRecord(nil), s.answers[attemptID]...)
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}

func (s *Store) InsertAnswers(_ context.Context, records []domain.AnswerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range records {
		if s.hasAnswerLocked(record.AttemptID, record.QuestionID) {
			continue
		}
		record.ID = s.nextIDLocked()
		s.answers[record.AttemptID] = append(s.answers[record.AttemptID], record)
	}
	return nil
}

func (s *Store) hasAnswerLocked(attemptID, questionID string) bool {
	for _, existing := range s.answers[attemptID] {
		if existing.QuestionID == questionID {
			return true
		}
	}
	return false
}

func (s *Store) FinalizeAttempt(_ context.Context, attempt *domain.Attempt, answers []domain.AnswerRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.attempts[attempt.ID]
	if !ok {
		return false, domain.ErrAttemptNotFound
	}
	if stored.CompletedAt != nil {
		return false, nil
	}
	for _, scored := range answers {
		for i, existing := range s.answers[attempt.ID] {
			if existing.QuestionID == scored.QuestionID && existing.ID == scored.ID {
				s.answers[attempt.ID][i] = scored
				break
			}
		}
	}
	copied := *attempt
	s.attempts[attempt.ID] = &copied
	return true, nil
}

// ---- app.LeaderboardRepository ----

func (s *Store) GetEntry(_ context.Context, quizID, userID string) (*domain.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[entryKey(quizID, userID)]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	copied := *entry
	return &copied, nil
}

func (s *Store) CreateEntry(_ context.Context, entry *domain.LeaderboardEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = s.nextIDLocked()
	copied := *entry
	s.entries[entryKey(entry.QuizID, entry.UserID)] = &copied
	return nil
}

func (s *Store) UpdateEntry(_ context.Context, entry *domain.LeaderboardEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *entry
	s.entries[entryKey(entry.QuizID, entry.UserID)] = &copied
	return nil
}

func (s *Store) ListTop(_ context.Context, quizID string, limit int) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var entries []domain.LeaderboardEntry
	for _, entry := range s.entries {
		if entry.QuizID == quizID {
			entries = append(entries, *entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].BestPoints != entries[j].BestPoints {
			return entries[i].BestPoints > entries[j].BestPoints
		}
		if entries[i].AverageResponseTime != entries[j].AverageResponseTime {
			return entries[i].AverageResponseTime < entries[j].AverageResponseTime
		}
		return entries[i].UserID < entries[j].UserID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// ---- app.ProgressionRepository ----

func (s *Store) GetProgress(_ context.Context, userID string) (*domain.UserProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	progress, ok := s.progress[userID]
	if !ok {
		return nil, domain.ErrProgressNotFound
	}
	copied := *progress
	return &copied, nil
}

// SaveProgress persists the streak and tier fields. TotalPoints stays
// whatever the row already holds; only AddPoints writes points, so a stale
// read here cannot undo a concurrent credit.
func (s *Store) SaveProgress(_ context.Context, progress *domain.UserProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *progress
	if existing, ok := s.progress[progress.UserID]; ok {
		copied.TotalPoints = existing.TotalPoints
	}
	copied.UpdatedAt = time.Now()
	s.progress[progress.UserID] = &copied
	return nil
}

func (s *Store) AddPoints(_ context.Context, userID string, delta int) (*domain.UserProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	progress, ok := s.progress[userID]
	if !ok {
		progress = &domain.UserProgress{UserID: userID}
		s.progress[userID] = progress
	}
	progress.TotalPoints += delta
	progress.UpdatedAt = time.Now()
	copied := *progress
	return &copied, nil
}

func (s *Store) ListLevels(_ context.Context) ([]domain.LevelDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.LevelDefinition(nil), s.levels...), nil
}

func (s *Store) ListTiers(_ context.Context) ([]domain.TierDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.TierDefinition(nil), s.tiers...), nil
}

func (s *Store) LatestLevel(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.levelHistory[userID]
	if len(history) == 0 {
		return 0, nil
	}
	return history[len(history)-1].Level, nil
}

func (s *Store) AppendLevelHistory(_ context.Context, entry *domain.UserLevelHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = s.nextIDLocked()
	s.levelHistory[entry.UserID] = append(s.levelHistory[entry.UserID], *entry)
	return nil
}

func (s *Store) LatestTier(_ context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.tierHistory[userID]
	if len(history) == 0 {
		return 0, nil
	}
	return history[len(history)-1].TierID, nil
}

func (s *Store) AppendTierHistory(_ context.Context, entry *domain.UserTierHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = s.nextIDLocked()
	s.tierHistory[entry.UserID] = append(s.tierHistory[entry.UserID], *entry)
	return nil
}

// ---- app.NotificationRepository ----

func (s *Store) Create(_ context.Context, notification *domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	notification.ID = s.nextIDLocked()
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now()
	}
	s.notifications = append(s.notifications, *notification)
	return nil
}

func (s *Store) ExistsRecent(_ context.Context, userID, kind, reference string, since time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, n := range s.notifications {
		if n.UserID == userID && n.Kind == kind && n.Reference == reference && !n.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

// Notifications returns a copy of everything emitted so far; test helper.
func (s *Store) Notifications() []domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Notification(nil), s.notifications...)
}

// ---- app.BadgeRepository ----

func (s *Store) ListCatalog(_ context.Context) ([]domain.Badge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Badge(nil), s.badges...), nil
}

func (s *Store) EarnedBadgeIDs(_ context.Context, userID string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []int64
	for id := range s.userBadges[userID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) Award(_ context.Context, badge *domain.UserBadge) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owned, ok := s.userBadges[badge.UserID]
	if !ok {
		owned = make(map[int64]domain.UserBadge)
		s.userBadges[badge.UserID] = owned
	}
	if _, exists := owned[badge.BadgeID]; exists {
		return false, nil
	}
	badge.ID = s.nextIDLocked()
	owned[badge.BadgeID] = *badge
	return true, nil
}

// compile-time interface checks
var (
	_ app.AttemptRepository      = (*Store)(nil)
	_ app.LeaderboardRepository  = (*Store)(nil)
	_ app.ProgressionRepository  = (*Store)(nil)
	_ app.NotificationRepository = (*Store)(nil)
	_ app.BadgeRepository        = (*Store)(nil)
	_ app.BadgeFactsRepository   = (*Store)(nil)
	_ QuizLoader                 = (*Store)(nil)
)

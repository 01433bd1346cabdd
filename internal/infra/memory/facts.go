package memory

import (
	"context"
	"sort"
	"time"

	"quiz-progression-service/internal/app"
	"quiz-progression-service/internal/domain"
)

// Badge-fact queries over the in-memory data. Each mirrors one aggregate the
// postgres store answers with a single query.

func (s *Store) CountCompletedAttempts(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, a := range s.attempts {
		if a.UserID == userID && a.CompletedAt != nil && !a.IsPracticeMode {
			count++
		}
	}
	return count, nil
}

func (s *Store) HasPerfectScore(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.attempts {
		if a.UserID == userID && a.CompletedAt != nil && a.Score >= 100 {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CurrentStreak(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if progress, ok := s.progress[userID]; ok {
		return progress.CurrentStreak, nil
	}
	return 0, nil
}

func (s *Store) FriendCount(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.friendCounts[userID], nil
}

func (s *Store) ChallengeWins(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.challengeWins[userID], nil
}

func (s *Store) ReviewCount(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reviewCounts[userID], nil
}

func (s *Store) FastestCorrectAnswerSeconds(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fastest := -1
	for _, a := range s.attempts {
		if a.UserID != userID || a.CompletedAt == nil {
			continue
		}
		for _, record := range s.answers[a.ID] {
			if record.IsCorrect && (fastest < 0 || record.TimeSpent < fastest) {
				fastest = record.TimeSpent
			}
		}
	}
	return fastest, nil
}

func (s *Store) AttemptsBySport(_ context.Context, userID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, a := range s.attempts {
		if a.UserID != userID || a.CompletedAt == nil {
			continue
		}
		if quiz, ok := s.quizzes[a.QuizID]; ok && quiz.Sport != "" {
			counts[quiz.Sport]++
		}
	}
	return counts, nil
}

func (s *Store) CorrectByTopic(_ context.Context, userID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, a := range s.attempts {
		if a.UserID != userID || a.CompletedAt == nil {
			continue
		}
		quiz, ok := s.quizzes[a.QuizID]
		if !ok {
			continue
		}
		for _, record := range s.answers[a.ID] {
			if !record.IsCorrect {
				continue
			}
			if question, ok := quiz.QuestionByID(record.QuestionID); ok && question.Topic != "" {
				counts[question.Topic]++
			}
		}
	}
	return counts, nil
}

func (s *Store) AttemptsByHour(_ context.Context, userID string) (map[int]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[int]int)
	for _, a := range s.attempts {
		if a.UserID == userID && a.CompletedAt != nil {
			counts[a.CompletedAt.Local().Hour()]++
		}
	}
	return counts, nil
}

func (s *Store) WeekendAttempts(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, a := range s.attempts {
		if a.UserID != userID || a.CompletedAt == nil {
			continue
		}
		switch a.CompletedAt.Local().Weekday() {
		case time.Sunday, time.Saturday:
			count++
		}
	}
	return count, nil
}

func (s *Store) RecentPassedAttempts(_ context.Context, userID string, limit int) ([]app.AttemptAnswers, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var passed []*domain.Attempt
	for _, a := range s.attempts {
		if a.UserID == userID && a.CompletedAt != nil && a.Passed && !a.IsPracticeMode {
			passed = append(passed, a)
		}
	}
	sort.Slice(passed, func(i, j int) bool {
		return passed[i].CompletedAt.After(*passed[j].CompletedAt)
	})
	if len(passed) > limit {
		passed = passed[:limit]
	}

	result := make([]app.AttemptAnswers, 0, len(passed))
	for _, a := range passed {
		records := append([]domain.AnswerRecord(nil), s.answers[a.ID]...)
		sort.Slice(records, func(i, j int) bool {
			if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
				return records[i].CreatedAt.Before(records[j].CreatedAt)
			}
			return records[i].ID < records[j].ID
		})
		result = append(result, app.AttemptAnswers{Attempt: *a, Answers: records})
	}
	return result, nil
}

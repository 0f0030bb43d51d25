package inmemdb

import (
	"github.com/trezcool/sauti/core/feedback"
)

type feedbackRepository struct {
	db *feedbackTable
}

func NewFeedbackRepository(db *DB) feedback.Repository {
	return &feedbackRepository{db: db.feedback}
}

// clone copies an item so callers never alias the stored thread slice.
func clone(fb feedback.Feedback) feedback.Feedback {
	thread := make([]feedback.Comment, len(fb.Thread))
	copy(thread, fb.Thread)
	fb.Thread = thread
	return fb
}

func (repo *feedbackRepository) CreateFeedback(fb feedback.Feedback) (feedback.Feedback, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored := clone(fb)
	repo.db.table[fb.ID] = &stored
	return clone(stored), nil
}

func (repo *feedbackRepository) QueryAllFeedback() ([]feedback.Feedback, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	fbs := make([]feedback.Feedback, 0, len(repo.db.table))
	for _, fb := range repo.db.table {
		fbs = append(fbs, clone(*fb))
	}
	return fbs, nil
}

func (repo *feedbackRepository) QueryFeedbackByAuthorID(authorID string) ([]feedback.Feedback, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	fbs := make([]feedback.Feedback, 0)
	for _, fb := range repo.db.table {
		if fb.AuthorID == authorID {
			fbs = append(fbs, clone(*fb))
		}
	}
	return fbs, nil
}

func (repo *feedbackRepository) GetFeedbackByID(id string) (feedback.Feedback, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if fb, ok := repo.db.table[id]; ok {
		return clone(*fb), nil
	}
	return feedback.Feedback{}, feedback.ErrNotFound
}

func (repo *feedbackRepository) UpdateFeedbackStatus(id string, status feedback.Status) (feedback.Feedback, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	fb, ok := repo.db.table[id]
	if !ok {
		return feedback.Feedback{}, feedback.ErrNotFound
	}
	fb.Status = status
	return clone(*fb), nil
}

func (repo *feedbackRepository) AppendComment(id string, comment feedback.Comment) (feedback.Feedback, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	fb, ok := repo.db.table[id]
	if !ok {
		return feedback.Feedback{}, feedback.ErrNotFound
	}
	fb.Thread = append(fb.Thread, comment)
	return clone(*fb), nil
}

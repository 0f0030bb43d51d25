package sqlxrepos

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/sauti/core/feedback"
)

type feedbackRow struct {
	ID          string    `db:"id"`
	AuthorID    string    `db:"author_id"`
	IsAnonymous bool      `db:"is_anonymous"`
	Content     string    `db:"content"`
	Rating      int       `db:"rating"`
	Category    string    `db:"category"`
	Status      string    `db:"status"`
	Thread      []byte    `db:"thread"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r feedbackRow) toFeedback() (feedback.Feedback, error) {
	thread := make([]feedback.Comment, 0)
	if len(r.Thread) > 0 {
		if err := json.Unmarshal(r.Thread, &thread); err != nil {
			return feedback.Feedback{}, errors.Wrap(err, "decoding thread")
		}
	}
	return feedback.Feedback{
		ID:          r.ID,
		AuthorID:    r.AuthorID,
		IsAnonymous: r.IsAnonymous,
		Content:     r.Content,
		Rating:      r.Rating,
		Category:    feedback.Category(r.Category),
		Status:      feedback.Status(r.Status),
		Thread:      thread,
		CreatedAt:   r.CreatedAt.UTC(),
	}, nil
}

type feedbackRepository struct {
	db *sqlx.DB
}

func NewFeedbackRepository(db *sqlx.DB) feedback.Repository {
	return &feedbackRepository{db: db}
}

func (repo *feedbackRepository) CreateFeedback(fb feedback.Feedback) (feedback.Feedback, error) {
	thread, err := json.Marshal(fb.Thread)
	if err != nil {
		return feedback.Feedback{}, errors.Wrap(err, "encoding thread")
	}
	_, err = repo.db.Exec(
		`INSERT INTO feedback (id, author_id, is_anonymous, content, rating, category, status, thread, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		fb.ID, fb.AuthorID, fb.IsAnonymous, fb.Content, fb.Rating, string(fb.Category), string(fb.Status), thread, fb.CreatedAt,
	)
	if err != nil {
		return feedback.Feedback{}, errors.Wrap(err, "inserting feedback")
	}
	return fb, nil
}

func (repo *feedbackRepository) QueryAllFeedback() ([]feedback.Feedback, error) {
	return repo.selectFeedback(`SELECT * FROM feedback`)
}

func (repo *feedbackRepository) QueryFeedbackByAuthorID(authorID string) ([]feedback.Feedback, error) {
	return repo.selectFeedback(`SELECT * FROM feedback WHERE author_id = $1`, authorID)
}

func (repo *feedbackRepository) GetFeedbackByID(id string) (feedback.Feedback, error) {
	var row feedbackRow
	if err := repo.db.Get(&row, `SELECT * FROM feedback WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return feedback.Feedback{}, feedback.ErrNotFound
		}
		return feedback.Feedback{}, errors.Wrap(err, "getting feedback by id")
	}
	return row.toFeedback()
}

func (repo *feedbackRepository) UpdateFeedbackStatus(id string, status feedback.Status) (feedback.Feedback, error) {
	var row feedbackRow
	err := repo.db.Get(&row, `UPDATE feedback SET status = $1 WHERE id = $2 RETURNING *`, string(status), id)
	if err != nil {
		if err == sql.ErrNoRows {
			return feedback.Feedback{}, feedback.ErrNotFound
		}
		return feedback.Feedback{}, errors.Wrap(err, "updating feedback status")
	}
	return row.toFeedback()
}

func (repo *feedbackRepository) AppendComment(id string, comment feedback.Comment) (feedback.Feedback, error) {
	data, err := json.Marshal(comment)
	if err != nil {
		return feedback.Feedback{}, errors.Wrap(err, "encoding comment")
	}

	var row feedbackRow
	// the append happens DB-side so concurrent replies never lose entries
	err = repo.db.Get(&row, `UPDATE feedback SET thread = thread || $1::jsonb WHERE id = $2 RETURNING *`, data, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return feedback.Feedback{}, feedback.ErrNotFound
		}
		return feedback.Feedback{}, errors.Wrap(err, "appending comment")
	}
	return row.toFeedback()
}

func (repo *feedbackRepository) selectFeedback(query string, args ...interface{}) ([]feedback.Feedback, error) {
	var rows []feedbackRow
	if err := repo.db.Select(&rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying feedback")
	}
	fbs := make([]feedback.Feedback, 0, len(rows))
	for _, row := range rows {
		fb, err := row.toFeedback()
		if err != nil {
			return nil, err
		}
		fbs = append(fbs, fb)
	}
	return fbs, nil
}

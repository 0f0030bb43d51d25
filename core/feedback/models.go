package feedback

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/sauti/core"
	"github.com/trezcool/sauti/core/auth"
)

// Statuses. The set is closed; an admin may move an item to any of the three
// values at any time, there is no terminal state.
type Status string

const (
	StatusOpen       Status = "open" // assigned at creation
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
)

var AllStatuses = []Status{StatusOpen, StatusInProgress, StatusResolved}

func (s Status) IsValid() bool {
	for _, st := range AllStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// Categories
type Category string

const (
	CategoryFacilities Category = "Facilities"
	CategoryCourses    Category = "Courses"
	CategoryCampusLife Category = "Campus Life"
	CategoryFaculty    Category = "Faculty"
	CategoryOther      Category = "Other"
)

var AllCategories = []Category{
	CategoryFacilities,
	CategoryCourses,
	CategoryCampusLife,
	CategoryFaculty,
	CategoryOther,
}

func (c Category) IsValid() bool {
	for _, cat := range AllCategories {
		if c == cat {
			return true
		}
	}
	return false
}

// Comment is an entry in a feedback item's reply thread.
type Comment struct {
	AuthorID   string    `json:"author_id"`
	AuthorRole auth.Role `json:"author_role"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"` // UTC
}

// Feedback is a single student-submitted piece of feedback. All fields except
// Status and Thread are immutable after creation; Thread is append-only.
// AuthorID is never serialized: identity display fields only ever leave the
// core through AdminView.
type Feedback struct {
	ID          string    `json:"id"`
	AuthorID    string    `json:"-"`
	IsAnonymous bool      `json:"is_anonymous"`
	Content     string    `json:"content"`
	Rating      int       `json:"rating"` // 1-5
	Category    Category  `json:"category"`
	Status      Status    `json:"status"`
	Thread      []Comment `json:"thread"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

// NewFeedback contains information needed to submit a feedback item.
type NewFeedback struct {
	Content     string   `json:"content" validate:"required"`
	Rating      int      `json:"rating" validate:"required,min=1,max=5"`
	Category    Category `json:"category" validate:"required,feedbackcategory"`
	IsAnonymous bool     `json:"is_anonymous"`
}

func (nf *NewFeedback) Validate(validate *validator.Validate) error {
	nf.Content = core.CleanString(nf.Content)
	return validate.Struct(nf)
}

// StatusUpdate is an explicit administrative status selection.
type StatusUpdate struct {
	Status Status `json:"status" validate:"required,feedbackstatus"`
}

func (su *StatusUpdate) Validate(validate *validator.Validate) error {
	return validate.Struct(su)
}

// NewReply contains an administrator's reply to a feedback thread.
type NewReply struct {
	Content string `json:"content" validate:"required"`
}

func (nr *NewReply) Validate(validate *validator.Validate) error {
	nr.Content = core.CleanString(nr.Content)
	return validate.Struct(nr)
}

// AdminView decorates a feedback item with the submitting student's display
// identity for admin consumption. Anonymous items are redacted unless the
// deployment explicitly opts in (Config.AdminSeesAnonymousIdentity).
type AdminView struct {
	Feedback     Feedback `json:"feedback"`
	StudentName  string   `json:"student_name"`
	StudentEmail string   `json:"student_email"`
}

// AnalyticsEntry is one group key and its member count.
type AnalyticsEntry struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Analytics holds grouped counts over the store's current contents.
// Keys with zero current items are omitted, not reported as zero.
type Analytics struct {
	StatusCounts   []AnalyticsEntry `json:"status_counts"`
	CategoryCounts []AnalyticsEntry `json:"category_counts"`
}

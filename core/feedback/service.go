package feedback

import (
	"fmt"
	"net/mail"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/sauti/core"
	"github.com/trezcool/sauti/core/auth"
	"github.com/trezcool/sauti/core/user"
)

var (
	// errors
	ErrNotFound = errors.New("feedback not found")
)

const (
	anonymousName = "Anonymous"
	unknownName   = "Unknown User"
)

type (
	Repository interface {
		CreateFeedback(fb Feedback) (Feedback, error)
		QueryAllFeedback() ([]Feedback, error)
		QueryFeedbackByAuthorID(authorID string) ([]Feedback, error)
		GetFeedbackByID(id string) (Feedback, error)
		// UpdateFeedbackStatus atomically sets the item's status; no other
		// field is touched.
		UpdateFeedbackStatus(id string, status Status) (Feedback, error)
		// AppendComment atomically appends to the item's thread; insertion
		// order is chronological order.
		AppendComment(id string, comment Comment) (Feedback, error)
	}

	Service struct {
		repo     Repository
		usrRepo  user.Repository
		mailSvc  core.EmailService
		validate *validator.Validate
		conf     *core.Config
		logger   core.Logger
	}
)

func NewService(
	repo Repository,
	usrRepo user.Repository,
	mailSvc core.EmailService,
	validate *validator.Validate,
	conf *core.Config,
	logger core.Logger,
) *Service {
	return &Service{
		repo:     repo,
		usrRepo:  usrRepo,
		mailSvc:  mailSvc,
		validate: validate,
		conf:     conf,
		logger:   logger,
	}
}

// Submit creates a feedback item owned by the calling student. Invalid input
// is rejected with every violated constraint reported at once; nothing is
// stored on failure.
func (svc *Service) Submit(p auth.Principal, nf NewFeedback) (Feedback, error) {
	if err := auth.Authorize(p, auth.ActionSubmitFeedback); err != nil {
		return Feedback{}, err
	}
	if err := nf.Validate(svc.validate); err != nil {
		return Feedback{}, err
	}

	fb := Feedback{
		ID:          uuid.New().String(),
		AuthorID:    p.ID,
		IsAnonymous: nf.IsAnonymous,
		Content:     nf.Content,
		Rating:      nf.Rating,
		Category:    nf.Category,
		Status:      StatusOpen,
		Thread:      []Comment{},
		CreatedAt:   time.Now().UTC(),
	}
	return svc.repo.CreateFeedback(fb)
}

// ListOwn returns the calling student's own feedback, newest first
// (ties broken by ID). Other students' items are never included.
func (svc *Service) ListOwn(p auth.Principal) ([]Feedback, error) {
	if err := auth.Authorize(p, auth.ActionViewOwnFeedback); err != nil {
		return nil, err
	}

	fbs, err := svc.repo.QueryFeedbackByAuthorID(p.ID)
	if err != nil {
		return nil, err
	}
	sort.Slice(fbs, func(i, j int) bool {
		if fbs[i].CreatedAt.Equal(fbs[j].CreatedAt) {
			return fbs[i].ID < fbs[j].ID
		}
		return fbs[i].CreatedAt.After(fbs[j].CreatedAt)
	})
	return fbs, nil
}

// ListAll returns every feedback item projected for admin consumption.
func (svc *Service) ListAll(p auth.Principal) ([]AdminView, error) {
	if err := auth.Authorize(p, auth.ActionViewAllFeedback); err != nil {
		return nil, err
	}

	fbs, err := svc.repo.QueryAllFeedback()
	if err != nil {
		return nil, err
	}
	views := make([]AdminView, 0, len(fbs))
	for _, fb := range fbs {
		views = append(views, svc.adminView(fb))
	}
	return views, nil
}

// GetByID returns a single feedback item projected for admin consumption.
func (svc *Service) GetByID(p auth.Principal, id string) (AdminView, error) {
	if err := auth.Authorize(p, auth.ActionViewFeedbackDetail); err != nil {
		return AdminView{}, err
	}

	fb, err := svc.repo.GetFeedbackByID(id)
	if err != nil {
		return AdminView{}, err
	}
	return svc.adminView(fb), nil
}

// ChangeStatus records an explicit administrative status selection. Any of
// the three statuses may be selected from any current status; the item's
// status is the only field mutated.
func (svc *Service) ChangeStatus(p auth.Principal, id string, su StatusUpdate) (Feedback, error) {
	if err := auth.Authorize(p, auth.ActionChangeStatus); err != nil {
		return Feedback{}, err
	}
	if err := su.Validate(svc.validate); err != nil {
		return Feedback{}, err
	}
	return svc.repo.UpdateFeedbackStatus(id, su.Status)
}

// PostReply appends an administrator reply to the item's thread and notifies
// the submitting student. It does not change the item's status.
func (svc *Service) PostReply(p auth.Principal, id string, nr NewReply) (Feedback, error) {
	if err := auth.Authorize(p, auth.ActionPostReply); err != nil {
		return Feedback{}, err
	}
	if err := nr.Validate(svc.validate); err != nil {
		return Feedback{}, err
	}

	comment := Comment{
		AuthorID:   p.ID,
		AuthorRole: auth.RoleAdmin,
		Content:    nr.Content,
		CreatedAt:  time.Now().UTC(),
	}
	fb, err := svc.repo.AppendComment(id, comment)
	if err != nil {
		return Feedback{}, err
	}
	svc.sendReplyMail(fb)
	return fb, nil
}

// Aggregate computes one count per status and category value present in the
// store. Values with zero current items are omitted.
func (svc *Service) Aggregate(p auth.Principal) (Analytics, error) {
	if err := auth.Authorize(p, auth.ActionViewAnalytics); err != nil {
		return Analytics{}, err
	}

	fbs, err := svc.repo.QueryAllFeedback()
	if err != nil {
		return Analytics{}, err
	}

	statusCounts := make(map[Status]int, len(AllStatuses))
	categoryCounts := make(map[Category]int, len(AllCategories))
	for _, fb := range fbs {
		statusCounts[fb.Status]++
		categoryCounts[fb.Category]++
	}

	agg := Analytics{
		StatusCounts:   make([]AnalyticsEntry, 0, len(statusCounts)),
		CategoryCounts: make([]AnalyticsEntry, 0, len(categoryCounts)),
	}
	for _, st := range AllStatuses {
		if n := statusCounts[st]; n > 0 {
			agg.StatusCounts = append(agg.StatusCounts, AnalyticsEntry{Key: string(st), Count: n})
		}
	}
	for _, cat := range AllCategories {
		if n := categoryCounts[cat]; n > 0 {
			agg.CategoryCounts = append(agg.CategoryCounts, AnalyticsEntry{Key: string(cat), Count: n})
		}
	}
	return agg, nil
}

// adminView shapes a feedback item for admin transport, withholding the
// student identity on anonymous items unless the deployment opted in.
func (svc *Service) adminView(fb Feedback) AdminView {
	if fb.IsAnonymous && !svc.conf.AdminSeesAnonymousIdentity {
		return AdminView{Feedback: fb, StudentName: anonymousName, StudentEmail: ""}
	}

	usr, err := svc.usrRepo.GetUserByID(fb.AuthorID)
	if err != nil {
		return AdminView{Feedback: fb, StudentName: unknownName, StudentEmail: ""}
	}
	return AdminView{Feedback: fb, StudentName: usr.Name, StudentEmail: usr.Email}
}

func (svc *Service) sendReplyMail(fb Feedback) {
	usr, err := svc.usrRepo.GetUserByID(fb.AuthorID)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("reply notification skipped: %v", err), err)
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject: "Your feedback has a new reply",
		BodyStr: fmt.Sprintf(
			"Hi %s,\n\nAn administrator replied to your %q feedback. Sign in at %s to read it.",
			usr.Name, fb.Category, svc.conf.FrontendBaseURL,
		),
	})
}

package feedback_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/sauti/core"
	"github.com/trezcool/sauti/core/auth"
	"github.com/trezcool/sauti/core/feedback"
	"github.com/trezcool/sauti/core/user"
	emailsvc "github.com/trezcool/sauti/services/email"
	inmemdb "github.com/trezcool/sauti/storage/database/inmem"
	testutil "github.com/trezcool/sauti/tests"
)

type testEnv struct {
	svc     *feedback.Service
	fbRepo  feedback.Repository
	usrRepo user.Repository
	conf    *core.Config

	student  auth.Principal
	student2 auth.Principal
	admin    auth.Principal
}

func setup(t *testing.T) *testEnv {
	conf := testutil.NewConfig()
	return setupWithConfig(t, conf)
}

func setupWithConfig(t *testing.T, conf *core.Config) *testEnv {
	db := inmemdb.Open()
	fbRepo := inmemdb.NewFeedbackRepository(db)
	usrRepo := inmemdb.NewUserRepository(db)

	validate, _ := testutil.NewValidator()
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	svc := feedback.NewService(fbRepo, usrRepo, mailSvc, validate, conf, testutil.NopLogger{})

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero@test.cd", "", auth.RoleStudent)
	student2 := testutil.CreateUser(t, usrRepo, "King", "king@test.cd", "", auth.RoleStudent)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@test.cd", "", auth.RoleAdmin)

	return &testEnv{
		svc:      svc,
		fbRepo:   fbRepo,
		usrRepo:  usrRepo,
		conf:     conf,
		student:  student.Principal(),
		student2: student2.Principal(),
		admin:    admin.Principal(),
	}
}

func validSubmission() feedback.NewFeedback {
	return feedback.NewFeedback{
		Content:  "Library closes too early",
		Rating:   4,
		Category: feedback.CategoryFacilities,
	}
}

// fieldErrs maps violated field name -> failed tag.
func fieldErrs(t *testing.T, err error) map[string]string {
	t.Helper()
	vErrs, ok := errors.Cause(err).(validator.ValidationErrors)
	if !ok {
		t.Fatalf("expected validator.ValidationErrors; got %T (%v)", err, err)
	}
	flds := make(map[string]string, len(vErrs))
	for _, fe := range vErrs {
		flds[fe.Field()] = fe.Tag()
	}
	return flds
}

func storeSize(t *testing.T, env *testEnv) int {
	t.Helper()
	fbs, err := env.fbRepo.QueryAllFeedback()
	if err != nil {
		t.Fatalf("QueryAllFeedback() failed: %v", err)
	}
	return len(fbs)
}

func TestService_Submit(t *testing.T) {
	env := setup(t)

	fb, err := env.svc.Submit(env.student, validSubmission())
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if fb.ID == "" {
		t.Error("Submit() did not assign an ID")
	}
	if fb.Status != feedback.StatusOpen {
		t.Errorf("Submit() status = %q; want %q", fb.Status, feedback.StatusOpen)
	}
	if len(fb.Thread) != 0 {
		t.Errorf("Submit() thread = %v; want empty", fb.Thread)
	}
	if fb.AuthorID != env.student.ID {
		t.Errorf("Submit() authorID = %q; want %q", fb.AuthorID, env.student.ID)
	}
	if fb.CreatedAt.IsZero() {
		t.Error("Submit() did not set CreatedAt")
	}

	// resubmission of identical feedback creates a new distinct item
	fb2, err := env.svc.Submit(env.student, validSubmission())
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if fb2.ID == fb.ID {
		t.Error("resubmission reused the same ID")
	}
	if got := storeSize(t, env); got != 2 {
		t.Errorf("store size = %d; want 2", got)
	}
}

func TestService_Submit_invalidRating(t *testing.T) {
	for _, rating := range []int{-1, 0, 6, 100} {
		t.Run(fmt.Sprintf("rating=%d", rating), func(t *testing.T) {
			env := setup(t)

			nf := validSubmission()
			nf.Rating = rating
			_, err := env.svc.Submit(env.student, nf)
			if err == nil {
				t.Fatal("Submit() succeeded; want ValidationError")
			}
			if flds := fieldErrs(t, err); flds["rating"] == "" {
				t.Errorf("ValidationError fields = %v; want rating", flds)
			}
			if got := storeSize(t, env); got != 0 {
				t.Errorf("store size = %d; want 0", got)
			}

			// subsequent listOwn returns an empty sequence
			own, err := env.svc.ListOwn(env.student)
			if err != nil {
				t.Fatalf("ListOwn() failed: %v", err)
			}
			if len(own) != 0 {
				t.Errorf("ListOwn() = %v; want empty", own)
			}
		})
	}
}

func TestService_Submit_allViolationsReportedAtOnce(t *testing.T) {
	env := setup(t)

	nf := feedback.NewFeedback{
		Content:  "   ",
		Rating:   0,
		Category: feedback.Category("Parking"),
	}
	_, err := env.svc.Submit(env.student, nf)
	if err == nil {
		t.Fatal("Submit() succeeded; want ValidationError")
	}

	flds := fieldErrs(t, err)
	for _, fld := range []string{"content", "rating", "category"} {
		if flds[fld] == "" {
			t.Errorf("ValidationError fields = %v; missing %q", flds, fld)
		}
	}
	if got := storeSize(t, env); got != 0 {
		t.Errorf("store size = %d; want 0", got)
	}
}

func TestService_Submit_adminDenied(t *testing.T) {
	env := setup(t)

	if _, err := env.svc.Submit(env.admin, validSubmission()); errors.Cause(err) != auth.ErrPermissionDenied {
		t.Errorf("Submit(admin) = %v; want ErrPermissionDenied", err)
	}
}

func TestService_ChangeStatus(t *testing.T) {
	env := setup(t)
	fb, _ := env.svc.Submit(env.student, validSubmission())

	// any state is reachable from any state, including moving backward;
	// the visible status after N calls is the N-th call's argument.
	seq := []feedback.Status{
		feedback.StatusInProgress,
		feedback.StatusResolved,
		feedback.StatusOpen,
		feedback.StatusResolved,
		feedback.StatusResolved,
	}
	for i, st := range seq {
		got, err := env.svc.ChangeStatus(env.admin, fb.ID, feedback.StatusUpdate{Status: st})
		if err != nil {
			t.Fatalf("ChangeStatus(#%d, %q) failed: %v", i, st, err)
		}
		if got.Status != st {
			t.Errorf("ChangeStatus(#%d) status = %q; want %q", i, got.Status, st)
		}
		// status is the only field mutated
		if got.ID != fb.ID || got.Content != fb.Content || got.Rating != fb.Rating ||
			got.Category != fb.Category || len(got.Thread) != 0 || !got.CreatedAt.Equal(fb.CreatedAt) {
			t.Errorf("ChangeStatus(#%d) mutated more than status: %+v", i, got)
		}
	}

	view, err := env.svc.GetByID(env.admin, fb.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if view.Feedback.Status != feedback.StatusResolved {
		t.Errorf("final status = %q; want %q", view.Feedback.Status, feedback.StatusResolved)
	}
}

func TestService_ChangeStatus_errors(t *testing.T) {
	env := setup(t)
	fb, _ := env.svc.Submit(env.student, validSubmission())

	if _, err := env.svc.ChangeStatus(env.admin, fb.ID, feedback.StatusUpdate{Status: "closed"}); err == nil {
		t.Error("ChangeStatus(closed) succeeded; want ValidationError")
	} else if flds := fieldErrs(t, err); flds["status"] == "" {
		t.Errorf("ValidationError fields = %v; want status", flds)
	}

	if _, err := env.svc.ChangeStatus(env.admin, "nope", feedback.StatusUpdate{Status: feedback.StatusResolved}); errors.Cause(err) != feedback.ErrNotFound {
		t.Errorf("ChangeStatus(unknown id) = %v; want ErrNotFound", err)
	}

	if _, err := env.svc.ChangeStatus(env.student, fb.ID, feedback.StatusUpdate{Status: feedback.StatusResolved}); errors.Cause(err) != auth.ErrPermissionDenied {
		t.Errorf("ChangeStatus(student) = %v; want ErrPermissionDenied", err)
	}
}

func TestService_PostReply(t *testing.T) {
	env := setup(t)
	fb, _ := env.svc.Submit(env.student, validSubmission())

	got, err := env.svc.PostReply(env.admin, fb.ID, feedback.NewReply{Content: "We are extending hours"})
	if err != nil {
		t.Fatalf("PostReply() failed: %v", err)
	}
	if len(got.Thread) != 1 {
		t.Fatalf("thread length = %d; want 1", len(got.Thread))
	}
	comment := got.Thread[0]
	if comment.Content != "We are extending hours" {
		t.Errorf("comment content = %q", comment.Content)
	}
	if comment.AuthorID != env.admin.ID || comment.AuthorRole != auth.RoleAdmin {
		t.Errorf("comment author = %q (%s); want admin", comment.AuthorID, comment.AuthorRole)
	}
	if comment.CreatedAt.IsZero() {
		t.Error("comment timestamp not set")
	}
	// replying does not change status
	if got.Status != feedback.StatusOpen {
		t.Errorf("status after reply = %q; want %q", got.Status, feedback.StatusOpen)
	}

	// thread is append-only: insertion order is chronological order
	got, err = env.svc.PostReply(env.admin, fb.ID, feedback.NewReply{Content: "Done"})
	if err != nil {
		t.Fatalf("PostReply() failed: %v", err)
	}
	if len(got.Thread) != 2 || got.Thread[0].Content != "We are extending hours" || got.Thread[1].Content != "Done" {
		t.Errorf("thread = %+v; want both replies in order", got.Thread)
	}
}

func TestService_PostReply_errors(t *testing.T) {
	env := setup(t)
	fb, _ := env.svc.Submit(env.student, validSubmission())

	if _, err := env.svc.PostReply(env.admin, fb.ID, feedback.NewReply{Content: "  "}); err == nil {
		t.Error("PostReply(empty) succeeded; want ValidationError")
	} else if flds := fieldErrs(t, err); flds["content"] == "" {
		t.Errorf("ValidationError fields = %v; want content", flds)
	}

	if _, err := env.svc.PostReply(env.admin, "nope", feedback.NewReply{Content: "hi"}); errors.Cause(err) != feedback.ErrNotFound {
		t.Errorf("PostReply(unknown id) = %v; want ErrNotFound", err)
	}

	if _, err := env.svc.PostReply(env.student, fb.ID, feedback.NewReply{Content: "hi"}); errors.Cause(err) != auth.ErrPermissionDenied {
		t.Errorf("PostReply(student) = %v; want ErrPermissionDenied", err)
	}
}

func TestService_ListOwn(t *testing.T) {
	env := setup(t)

	now := time.Now().UTC()
	fb1 := testutil.CreateFeedback(t, env.fbRepo, env.student.ID, "one", 3, feedback.CategoryCourses, false, now.Add(-2*time.Hour))
	fb2 := testutil.CreateFeedback(t, env.fbRepo, env.student.ID, "two", 4, feedback.CategoryFaculty, false, now.Add(-1*time.Hour))
	fb3 := testutil.CreateFeedback(t, env.fbRepo, env.student.ID, "three", 5, feedback.CategoryOther, true, now)
	testutil.CreateFeedback(t, env.fbRepo, env.student2.ID, "not mine", 1, feedback.CategoryOther, false)

	own, err := env.svc.ListOwn(env.student)
	if err != nil {
		t.Fatalf("ListOwn() failed: %v", err)
	}
	if len(own) != 3 {
		t.Fatalf("ListOwn() returned %d items; want 3", len(own))
	}
	// newest first
	wantOrder := []string{fb3.ID, fb2.ID, fb1.ID}
	for i, fb := range own {
		if fb.ID != wantOrder[i] {
			t.Errorf("ListOwn()[%d] = %q; want %q", i, fb.ID, wantOrder[i])
		}
		if fb.AuthorID != env.student.ID {
			t.Errorf("ListOwn() leaked another student's item: %+v", fb)
		}
	}
}

func TestService_ListOwn_tiesBrokenByID(t *testing.T) {
	env := setup(t)

	tstamp := time.Now().UTC().Truncate(time.Second)
	for _, content := range []string{"a", "b", "c"} {
		testutil.CreateFeedback(t, env.fbRepo, env.student.ID, content, 3, feedback.CategoryOther, false, tstamp)
	}

	own, err := env.svc.ListOwn(env.student)
	if err != nil {
		t.Fatalf("ListOwn() failed: %v", err)
	}
	for i := 1; i < len(own); i++ {
		if own[i-1].ID >= own[i].ID {
			t.Errorf("tie ordering not stable by ID: %q before %q", own[i-1].ID, own[i].ID)
		}
	}
}

func TestService_adminViews_anonymity(t *testing.T) {
	env := setup(t)

	open := testutil.CreateFeedback(t, env.fbRepo, env.student.ID, "signed", 4, feedback.CategoryCourses, false)
	anon := testutil.CreateFeedback(t, env.fbRepo, env.student.ID, "anonymous", 2, feedback.CategoryFaculty, true)
	orphan := testutil.CreateFeedback(t, env.fbRepo, "ghost", "orphan", 1, feedback.CategoryOther, false)

	views, err := env.svc.ListAll(env.admin)
	if err != nil {
		t.Fatalf("ListAll() failed: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("ListAll() returned %d items; want 3", len(views))
	}
	byID := make(map[string]feedback.AdminView, len(views))
	for _, v := range views {
		byID[v.Feedback.ID] = v
	}

	if v := byID[open.ID]; v.StudentName != "Hero" || v.StudentEmail != "hero@test.cd" {
		t.Errorf("signed item identity = %q/%q; want Hero/hero@test.cd", v.StudentName, v.StudentEmail)
	}
	if v := byID[anon.ID]; v.StudentName != "Anonymous" || v.StudentEmail != "" {
		t.Errorf("anonymous item identity = %q/%q; want Anonymous/empty", v.StudentName, v.StudentEmail)
	}
	if v := byID[orphan.ID]; v.StudentName != "Unknown User" || v.StudentEmail != "" {
		t.Errorf("orphan item identity = %q/%q; want Unknown User/empty", v.StudentName, v.StudentEmail)
	}

	view, err := env.svc.GetByID(env.admin, anon.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if view.StudentName != "Anonymous" || view.StudentEmail != "" {
		t.Errorf("GetByID(anon) identity = %q/%q; want Anonymous/empty", view.StudentName, view.StudentEmail)
	}

	if _, err = env.svc.GetByID(env.admin, "nope"); errors.Cause(err) != feedback.ErrNotFound {
		t.Errorf("GetByID(unknown id) = %v; want ErrNotFound", err)
	}
}

func TestService_adminViews_anonymityOverride(t *testing.T) {
	conf := testutil.NewConfig()
	conf.AdminSeesAnonymousIdentity = true
	env := setupWithConfig(t, conf)

	anon := testutil.CreateFeedback(t, env.fbRepo, env.student.ID, "anonymous", 2, feedback.CategoryFaculty, true)

	view, err := env.svc.GetByID(env.admin, anon.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if view.StudentName != "Hero" || view.StudentEmail != "hero@test.cd" {
		t.Errorf("override identity = %q/%q; want Hero/hero@test.cd", view.StudentName, view.StudentEmail)
	}
}

func TestService_Aggregate(t *testing.T) {
	env := setup(t)

	seed := []struct {
		category feedback.Category
		status   feedback.Status
	}{
		{feedback.CategoryFacilities, feedback.StatusOpen},
		{feedback.CategoryFacilities, feedback.StatusInProgress},
		{feedback.CategoryCourses, feedback.StatusOpen},
		{feedback.CategoryCourses, feedback.StatusOpen},
		{feedback.CategoryCampusLife, feedback.StatusResolved},
	}
	for i, s := range seed {
		fb := testutil.CreateFeedback(t, env.fbRepo, env.student.ID, fmt.Sprintf("item %d", i), 3, s.category, false)
		if s.status != feedback.StatusOpen {
			if _, err := env.svc.ChangeStatus(env.admin, fb.ID, feedback.StatusUpdate{Status: s.status}); err != nil {
				t.Fatalf("ChangeStatus() failed: %v", err)
			}
		}
	}

	agg, err := env.svc.Aggregate(env.admin)
	if err != nil {
		t.Fatalf("Aggregate() failed: %v", err)
	}

	assert.ElementsMatch(t, []feedback.AnalyticsEntry{
		{Key: "open", Count: 3},
		{Key: "in_progress", Count: 1},
		{Key: "resolved", Count: 1},
	}, agg.StatusCounts)
	assert.ElementsMatch(t, []feedback.AnalyticsEntry{
		{Key: "Facilities", Count: 2},
		{Key: "Courses", Count: 2},
		{Key: "Campus Life", Count: 1},
	}, agg.CategoryCounts)

	// entries sum to the total item count
	var statusTotal, categoryTotal int
	for _, e := range agg.StatusCounts {
		statusTotal += e.Count
	}
	for _, e := range agg.CategoryCounts {
		categoryTotal += e.Count
	}
	if statusTotal != len(seed) || categoryTotal != len(seed) {
		t.Errorf("totals = %d/%d; want %d", statusTotal, categoryTotal, len(seed))
	}

	// absent groups are omitted, not reported as zero
	for _, e := range agg.CategoryCounts {
		if e.Key == string(feedback.CategoryFaculty) || e.Key == string(feedback.CategoryOther) {
			t.Errorf("absent category %q reported", e.Key)
		}
	}
}

func TestService_Aggregate_empty(t *testing.T) {
	env := setup(t)

	agg, err := env.svc.Aggregate(env.admin)
	if err != nil {
		t.Fatalf("Aggregate() failed: %v", err)
	}
	if len(agg.StatusCounts) != 0 || len(agg.CategoryCounts) != 0 {
		t.Errorf("Aggregate() over empty store = %+v; want no entries", agg)
	}
}

func TestService_studentDeniedAdminOps(t *testing.T) {
	env := setup(t)
	fb, _ := env.svc.Submit(env.student, validSubmission())

	// denial is identical whether or not the target exists
	for _, id := range []string{fb.ID, "does-not-exist"} {
		if _, err := env.svc.ChangeStatus(env.student, id, feedback.StatusUpdate{Status: feedback.StatusResolved}); errors.Cause(err) != auth.ErrPermissionDenied {
			t.Errorf("ChangeStatus(student, %q) = %v; want ErrPermissionDenied", id, err)
		}
		if _, err := env.svc.PostReply(env.student, id, feedback.NewReply{Content: "hi"}); errors.Cause(err) != auth.ErrPermissionDenied {
			t.Errorf("PostReply(student, %q) = %v; want ErrPermissionDenied", id, err)
		}
		if _, err := env.svc.GetByID(env.student, id); errors.Cause(err) != auth.ErrPermissionDenied {
			t.Errorf("GetByID(student, %q) = %v; want ErrPermissionDenied", id, err)
		}
	}
	if _, err := env.svc.ListAll(env.student); errors.Cause(err) != auth.ErrPermissionDenied {
		t.Errorf("ListAll(student) = %v; want ErrPermissionDenied", err)
	}
	if _, err := env.svc.Aggregate(env.student); errors.Cause(err) != auth.ErrPermissionDenied {
		t.Errorf("Aggregate(student) = %v; want ErrPermissionDenied", err)
	}
}

func TestService_triageScenario(t *testing.T) {
	env := setup(t)

	fb, err := env.svc.Submit(env.student, feedback.NewFeedback{
		Content:  "Library closes too early",
		Rating:   4,
		Category: feedback.CategoryFacilities,
	})
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if fb.Status != feedback.StatusOpen || len(fb.Thread) != 0 {
		t.Fatalf("submitted item = %+v; want open with empty thread", fb)
	}

	fb, err = env.svc.ChangeStatus(env.admin, fb.ID, feedback.StatusUpdate{Status: feedback.StatusInProgress})
	if err != nil {
		t.Fatalf("ChangeStatus() failed: %v", err)
	}
	if fb.Status != feedback.StatusInProgress {
		t.Errorf("status = %q; want %q", fb.Status, feedback.StatusInProgress)
	}

	fb, err = env.svc.PostReply(env.admin, fb.ID, feedback.NewReply{Content: "We are extending hours"})
	if err != nil {
		t.Fatalf("PostReply() failed: %v", err)
	}
	if len(fb.Thread) != 1 || fb.Thread[0].Content != "We are extending hours" {
		t.Errorf("thread = %+v; want the posted reply", fb.Thread)
	}

	agg, err := env.svc.Aggregate(env.admin)
	if err != nil {
		t.Fatalf("Aggregate() failed: %v", err)
	}
	assert.Contains(t, agg.StatusCounts, feedback.AnalyticsEntry{Key: "in_progress", Count: 1})
	assert.Contains(t, agg.CategoryCounts, feedback.AnalyticsEntry{Key: "Facilities", Count: 1})
}

func TestService_concurrentMutationsSameItem(t *testing.T) {
	env := setup(t)
	fb, _ := env.svc.Submit(env.student, validSubmission())

	const n = 20
	var wg sync.WaitGroup
	wg.Add(2 * n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			st := feedback.AllStatuses[i%len(feedback.AllStatuses)]
			_, _ = env.svc.ChangeStatus(env.admin, fb.ID, feedback.StatusUpdate{Status: st})
		}()
		go func() {
			defer wg.Done()
			_, _ = env.svc.PostReply(env.admin, fb.ID, feedback.NewReply{Content: fmt.Sprintf("reply %d", i)})
		}()
	}
	wg.Wait()

	view, err := env.svc.GetByID(env.admin, fb.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if len(view.Feedback.Thread) != n {
		t.Errorf("thread length = %d; want %d (no lost appends)", len(view.Feedback.Thread), n)
	}
	if !view.Feedback.Status.IsValid() {
		t.Errorf("status = %q; want a valid status", view.Feedback.Status)
	}
}

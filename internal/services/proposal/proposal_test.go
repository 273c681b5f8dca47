package proposal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/apperr"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/auth"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/db/dbtest"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/models"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/repository"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/services/resume"
)

type fakeDiscarder struct {
	mu        sync.Mutex
	discarded []resume.Ref
}

func (f *fakeDiscarder) Discard(_ context.Context, ref resume.Ref) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discarded = append(f.discarded, ref)
	return nil
}

func (f *fakeDiscarder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.discarded)
}

type fixture struct {
	svc     *Service
	repo    *repository.Repository
	resumes *fakeDiscarder
	client  auth.Claim
	other   auth.Claim
	f1, f2  auth.Claim
	project models.Project
}

func setup(t *testing.T) fixture {
	t.Helper()
	gdb := dbtest.Open(t)
	repo := repository.New(gdb)
	_, client := dbtest.CreateUser(t, gdb, "client", models.RoleClient)
	_, other := dbtest.CreateUser(t, gdb, "other", models.RoleClient)
	_, f1 := dbtest.CreateUser(t, gdb, "f1", models.RoleFreelancer)
	_, f2 := dbtest.CreateUser(t, gdb, "f2", models.RoleFreelancer)

	p := models.Project{ClientID: client.ID, Title: "API", Description: "Build an API", Budget: 2000}
	if err := repo.CreateProject(context.Background(), &p); err != nil {
		t.Fatalf("create project: %v", err)
	}

	resumes := &fakeDiscarder{}
	return fixture{
		svc:     New(repo, resumes, zap.NewNop()),
		repo:    repo,
		resumes: resumes,
		client:  client,
		other:   other,
		f1:      f1,
		f2:      f2,
		project: p,
	}
}

func (f fixture) submit(t *testing.T, who auth.Claim, bid float64) models.Proposal {
	t.Helper()
	p, err := f.svc.Submit(context.Background(), who, SubmitInput{
		ProjectID: f.project.ID.String(),
		BidAmount: bid,
		Resume:    resume.Ref("/uploads/resumes/" + who.Username + ".pdf"),
	})
	if err != nil {
		t.Fatalf("submit as %s: %v", who.Username, err)
	}
	return p
}

func TestAcceptanceScenario(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p1 := f.submit(t, f.f1, 500)
	p2 := f.submit(t, f.f2, 600)
	if p1.Status != models.ProposalPending || p2.Status != models.ProposalPending {
		t.Fatalf("expected pending proposals, got %s and %s", p1.Status, p2.Status)
	}

	project, _ := f.repo.FindProject(ctx, f.project.ID)
	if len(project.ProposalIDs) != 2 || project.ProposalIDs[0] != p1.ID || project.ProposalIDs[1] != p2.ID {
		t.Fatalf("expected proposals [p1 p2], got %v", project.ProposalIDs)
	}

	accepted, err := f.svc.Decide(ctx, f.client, p1.ID.String(), ActionAccept)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != models.ProposalAccepted {
		t.Fatalf("expected accepted, got %s", accepted.Status)
	}

	other, _ := f.repo.FindProposal(ctx, p2.ID)
	if other.Status != models.ProposalRejected {
		t.Fatalf("expected p2 rejected, got %s", other.Status)
	}
	project, _ = f.repo.FindProject(ctx, f.project.ID)
	if project.Status != models.ProjectInProgress {
		t.Fatalf("expected in-progress, got %s", project.Status)
	}
	if project.AssignedFreelancerID == nil || *project.AssignedFreelancerID != f.f1.ID {
		t.Fatalf("expected f1 assigned, got %v", project.AssignedFreelancerID)
	}
	if f.resumes.count() != 0 {
		t.Fatalf("expected no resumes discarded, got %d", f.resumes.count())
	}

	// repeat bid after acceptance is a conflict, not a state error
	_, err = f.svc.Submit(ctx, f.f1, SubmitInput{ProjectID: f.project.ID.String(), BidAmount: 1, Resume: "/uploads/resumes/again.pdf"})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestSecondAcceptanceFails(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p1 := f.submit(t, f.f1, 500)
	p2 := f.submit(t, f.f2, 600)

	if _, err := f.svc.Decide(ctx, f.client, p1.ID.String(), ActionAccept); err != nil {
		t.Fatalf("accept: %v", err)
	}
	_, err := f.svc.Decide(ctx, f.client, p2.ID.String(), ActionAccept)
	if !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if got := apperr.MessageOf(err); got != "project already in-progress" {
		t.Fatalf("expected state in message, got %q", got)
	}

	project, _ := f.repo.FindProject(ctx, f.project.ID)
	if *project.AssignedFreelancerID != f.f1.ID {
		t.Fatalf("expected assignment unchanged, got %s", project.AssignedFreelancerID)
	}
}

func TestConcurrentAcceptanceHasOneWinner(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p1 := f.submit(t, f.f1, 500)
	p2 := f.submit(t, f.f2, 600)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []uuid.UUID{p1.ID, p2.ID} {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			_, errs[i] = f.svc.Decide(ctx, f.client, id.String(), ActionAccept)
		}(i, id)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case !apperr.Is(err, apperr.KindInvalidState):
			t.Fatalf("expected invalid state for the loser, got %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one acceptance, got %d", wins)
	}

	accepted := 0
	for _, id := range []uuid.UUID{p1.ID, p2.ID} {
		pr, _ := f.repo.FindProposal(ctx, id)
		if pr.Status == models.ProposalAccepted {
			accepted++
		}
	}
	if accepted != 1 {
		t.Fatalf("expected one accepted proposal, got %d", accepted)
	}
}

func TestSubmitDiscardsResumeOnEveryRejection(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.submit(t, f.f2, 100)

	closed := models.Project{ClientID: f.client.ID, Title: "x", Description: "y"}
	if err := f.repo.CreateProject(ctx, &closed); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.repo.CancelProject(ctx, closed.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	ref := resume.Ref("/uploads/resumes/cv.pdf")
	cases := []struct {
		name  string
		claim auth.Claim
		in    SubmitInput
		kind  apperr.Kind
	}{
		{"client", f.client, SubmitInput{ProjectID: f.project.ID.String(), BidAmount: 10, Resume: ref}, apperr.KindForbidden},
		{"bad id", f.f1, SubmitInput{ProjectID: "nope", BidAmount: 10, Resume: ref}, apperr.KindNotFound},
		{"zero bid", f.f1, SubmitInput{ProjectID: f.project.ID.String(), BidAmount: 0, Resume: ref}, apperr.KindInvalidInput},
		{"absent project", f.f1, SubmitInput{ProjectID: uuid.NewString(), BidAmount: 10, Resume: ref}, apperr.KindNotFound},
		{"bad id before bid", f.f1, SubmitInput{ProjectID: "nope", BidAmount: 0, Resume: ref}, apperr.KindNotFound},
		{"closed project", f.f1, SubmitInput{ProjectID: closed.ID.String(), BidAmount: 10, Resume: ref}, apperr.KindInvalidState},
		{"duplicate", f.f2, SubmitInput{ProjectID: f.project.ID.String(), BidAmount: 10, Resume: ref}, apperr.KindConflict},
	}
	for i, tc := range cases {
		_, err := f.svc.Submit(ctx, tc.claim, tc.in)
		if !apperr.Is(err, tc.kind) {
			t.Fatalf("%s: expected %s, got %v", tc.name, tc.kind, err)
		}
		if f.resumes.count() != i+1 {
			t.Fatalf("%s: expected resume discarded, got %d discards", tc.name, f.resumes.count())
		}
	}

	// missing resume: nothing to discard
	_, err := f.svc.Submit(ctx, f.f1, SubmitInput{ProjectID: f.project.ID.String(), BidAmount: 10})
	if !apperr.Is(err, apperr.KindInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	project, _ := f.repo.FindProject(ctx, f.project.ID)
	if len(project.ProposalIDs) != 1 {
		t.Fatalf("expected no side effects, got %d proposals", len(project.ProposalIDs))
	}
}

func TestDecideRules(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p1 := f.submit(t, f.f1, 500)

	if _, err := f.svc.Decide(ctx, f.client, p1.ID.String(), "maybe"); !apperr.Is(err, apperr.KindInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := f.svc.Decide(ctx, f.client, uuid.NewString(), ActionAccept); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.svc.Decide(ctx, f.other, p1.ID.String(), ActionAccept); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden for another client, got %v", err)
	}
	if _, err := f.svc.Decide(ctx, f.f1, p1.ID.String(), ActionAccept); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden for freelancer, got %v", err)
	}

	rejected, err := f.svc.Decide(ctx, f.client, p1.ID.String(), ActionReject)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != models.ProposalRejected {
		t.Fatalf("expected rejected, got %s", rejected.Status)
	}
	if _, err := f.svc.Decide(ctx, f.client, p1.ID.String(), ActionReject); !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("expected invalid state on second reject, got %v", err)
	}
	if _, err := f.svc.Decide(ctx, f.client, p1.ID.String(), ActionAccept); !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("expected rejected proposal not acceptable, got %v", err)
	}

	project, _ := f.repo.FindProject(ctx, f.project.ID)
	if project.Status != models.ProjectOpen {
		t.Fatalf("expected project still open, got %s", project.Status)
	}
}

func TestWithdrawAndListMine(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p1 := f.submit(t, f.f1, 500)

	if _, err := f.svc.Withdraw(ctx, f.f2, p1.ID.String()); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	got, err := f.svc.Withdraw(ctx, f.f1, p1.ID.String())
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got.Status != models.ProposalWithdrawn {
		t.Fatalf("expected withdrawn, got %s", got.Status)
	}
	if _, err := f.svc.Withdraw(ctx, f.f1, p1.ID.String()); !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}

	mine, err := f.svc.ListMine(ctx, f.f1)
	if err != nil {
		t.Fatalf("list mine: %v", err)
	}
	if len(mine) != 1 || mine[0].Project == nil || mine[0].Project.Title != "API" {
		t.Fatalf("expected one proposal with project, got %+v", mine)
	}
	if _, err := f.svc.ListMine(ctx, f.client); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden for client, got %v", err)
	}
}

type fakeReconcileStore struct {
	calls    int
	rejected int64
	err      error
}

func (f *fakeReconcileStore) RejectStalePending(context.Context) (int64, error) {
	f.calls++
	return f.rejected, f.err
}

func (f *fakeReconcileStore) LinkOrphanProposals(context.Context, int) (int64, error) {
	return 0, nil
}

func TestReconcilerRunOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p1 := f.submit(t, f.f1, 500)
	f.submit(t, f.f2, 600)

	// interrupted acceptance: (a) and (b) applied, (c) never ran
	if err := f.repo.DB().Model(&models.Proposal{}).Where("id = ?", p1.ID).Update("status", models.ProposalAccepted).Error; err != nil {
		t.Fatalf("force accept: %v", err)
	}
	if err := f.repo.DB().Model(&models.Project{}).Where("id = ?", f.project.ID).
		Updates(map[string]any{"status": models.ProjectInProgress, "assigned_freelancer_id": f.f1.ID}).Error; err != nil {
		t.Fatalf("force start: %v", err)
	}

	rep, err := NewReconciler(f.repo, zap.NewNop()).RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if rep.Rejected != 1 || rep.Linked != 0 {
		t.Fatalf("expected 1 rejected and 0 linked, got %+v", rep)
	}
}

func TestReconcilerRunStopsWithContext(t *testing.T) {
	store := &fakeReconcileStore{err: errors.New("db down")}
	r := NewReconciler(store, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return after cancel")
	}
	if store.calls < 2 {
		t.Fatalf("expected an immediate pass plus ticks, got %d", store.calls)
	}
}

package lifecycle_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/inklift/inklift/internal/cache"
	"github.com/inklift/inklift/internal/lifecycle"
	"github.com/inklift/inklift/internal/models"
	"github.com/inklift/inklift/internal/store"
)

func newTestEngine(t *testing.T, required ...models.CheckType) (*lifecycle.Engine, *store.MemoryStore) {
	t.Helper()
	if required == nil {
		required = []models.CheckType{models.CheckSEO}
	}
	st := store.NewMemoryStore()
	return lifecycle.NewEngine(st, cache.NewLocalLocks(), required), st
}

func createPost(t *testing.T, e *lifecycle.Engine) *models.Post {
	t.Helper()
	post, err := e.CreatePost(context.Background(), "org-1", "How To Grow Tomatoes At Home", "tomatoes", models.PostSettings{Tone: "friendly"})
	if err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}
	return post
}

func attachOutline(t *testing.T, e *lifecycle.Engine, postID string) {
	t.Helper()
	sections := []models.OutlineSection{
		{Level: 1, Title: "Introduction", TargetWords: 150},
		{Level: 2, Title: "Choosing a Variety", TargetWords: 300},
		{Level: 2, Title: "Planting and Care", TargetWords: 400},
	}
	if _, err := e.ReplaceOutline(context.Background(), postID, sections); err != nil {
		t.Fatalf("ReplaceOutline failed: %v", err)
	}
}

func transition(t *testing.T, e *lifecycle.Engine, postID string, target models.Status) *models.Post {
	t.Helper()
	post, err := e.RequestTransition(context.Background(), postID, target, lifecycle.TransitionOptions{})
	if err != nil {
		t.Fatalf("transition to %s failed: %v", target, err)
	}
	return post
}

// advanceToReview walks a fresh draft post to review with an outline
// and a current draft in place.
func advanceToReview(t *testing.T, e *lifecycle.Engine) *models.Post {
	t.Helper()
	post := createPost(t, e)
	transition(t, e, post.ID, models.StatusOutline)
	attachOutline(t, e, post.ID)
	transition(t, e, post.ID, models.StatusWriting)
	if _, err := e.RecordDraft(context.Background(), post.ID, "Tomatoes grow best in the sun. Water them often.", 10, nil); err != nil {
		t.Fatalf("RecordDraft failed: %v", err)
	}
	return transition(t, e, post.ID, models.StatusReview)
}

func TestNewPostStartsInDraft(t *testing.T) {
	e, _ := newTestEngine(t)
	post := createPost(t, e)

	if post.Status != models.StatusDraft {
		t.Errorf("expected new post in %q, got %q", models.StatusDraft, post.Status)
	}
	if !post.Status.Valid() {
		t.Errorf("expected valid status, got %q", post.Status)
	}
}

func TestCanTransition(t *testing.T) {
	legal := []struct{ from, to models.Status }{
		{models.StatusDraft, models.StatusOutline},
		{models.StatusOutline, models.StatusWriting},
		{models.StatusWriting, models.StatusReview},
		{models.StatusReview, models.StatusWriting},
		{models.StatusReview, models.StatusPublished},
		{models.StatusDraft, models.StatusArchived},
		{models.StatusOutline, models.StatusArchived},
		{models.StatusWriting, models.StatusArchived},
		{models.StatusReview, models.StatusArchived},
	}
	for _, tt := range legal {
		if !lifecycle.CanTransition(tt.from, tt.to) {
			t.Errorf("expected %s -> %s to be legal", tt.from, tt.to)
		}
	}

	illegal := []struct{ from, to models.Status }{
		{models.StatusDraft, models.StatusWriting},
		{models.StatusDraft, models.StatusPublished},
		{models.StatusOutline, models.StatusReview},
		{models.StatusWriting, models.StatusPublished},
		{models.StatusPublished, models.StatusDraft},
		{models.StatusPublished, models.StatusArchived},
		{models.StatusArchived, models.StatusDraft},
		{models.StatusArchived, models.StatusPublished},
		{models.StatusDraft, models.StatusDraft},
	}
	for _, tt := range illegal {
		if lifecycle.CanTransition(tt.from, tt.to) {
			t.Errorf("expected %s -> %s to be illegal", tt.from, tt.to)
		}
	}
}

func TestInvalidTransitionReportsStates(t *testing.T) {
	e, st := newTestEngine(t)
	post := createPost(t, e)

	_, err := e.RequestTransition(context.Background(), post.ID, models.StatusPublished, lifecycle.TransitionOptions{})

	var invalid *lifecycle.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if invalid.From != models.StatusDraft || invalid.To != models.StatusPublished {
		t.Errorf("expected error to carry draft -> published, got %s -> %s", invalid.From, invalid.To)
	}

	// Status must be unchanged after a rejected request.
	reloaded, err := st.GetPost(context.Background(), post.ID)
	if err != nil {
		t.Fatalf("GetPost failed: %v", err)
	}
	if reloaded.Status != models.StatusDraft {
		t.Errorf("status changed after invalid transition: %q", reloaded.Status)
	}
}

func TestUnknownTargetStatus(t *testing.T) {
	e, _ := newTestEngine(t)
	post := createPost(t, e)

	_, err := e.RequestTransition(context.Background(), post.ID, models.Status("limbo"), lifecycle.TransitionOptions{})
	if !lifecycle.IsInvalidTransition(err) {
		t.Fatalf("expected InvalidTransition for unknown target, got %v", err)
	}
}

func TestArchivedIsTerminal(t *testing.T) {
	e, _ := newTestEngine(t)
	post := createPost(t, e)
	transition(t, e, post.ID, models.StatusArchived)

	for _, target := range models.Statuses {
		_, err := e.RequestTransition(context.Background(), post.ID, target, lifecycle.TransitionOptions{})
		if !lifecycle.IsInvalidTransition(err) {
			t.Errorf("expected InvalidTransition out of archived to %s, got %v", target, err)
		}
	}
}

func TestOutlineMissingPrecondition(t *testing.T) {
	e, _ := newTestEngine(t)
	post := createPost(t, e)
	transition(t, e, post.ID, models.StatusOutline)

	_, err := e.RequestTransition(context.Background(), post.ID, models.StatusWriting, lifecycle.TransitionOptions{})

	var failed *lifecycle.PreconditionFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected PreconditionFailedError, got %v", err)
	}
	if failed.Reason != "outline missing" {
		t.Errorf("expected reason %q, got %q", "outline missing", failed.Reason)
	}
}

func TestOutlineLocksWhenWritingBegins(t *testing.T) {
	e, st := newTestEngine(t)
	post := createPost(t, e)
	transition(t, e, post.ID, models.StatusOutline)
	attachOutline(t, e, post.ID)

	transition(t, e, post.ID, models.StatusWriting)

	outline, err := st.GetOutline(context.Background(), post.ID)
	if err != nil {
		t.Fatalf("GetOutline failed: %v", err)
	}
	if !outline.Locked {
		t.Fatal("expected outline to be locked after outline -> writing")
	}

	// Structural changes must fail once locked.
	structural := [][]models.OutlineSection{
		// Section removed.
		{
			{Level: 1, Title: "Introduction", TargetWords: 150},
			{Level: 2, Title: "Choosing a Variety", TargetWords: 300},
		},
		// Section reordered.
		{
			{Level: 2, Title: "Choosing a Variety", TargetWords: 300},
			{Level: 1, Title: "Introduction", TargetWords: 150},
			{Level: 2, Title: "Planting and Care", TargetWords: 400},
		},
		// Title changed.
		{
			{Level: 1, Title: "Intro", TargetWords: 150},
			{Level: 2, Title: "Choosing a Variety", TargetWords: 300},
			{Level: 2, Title: "Planting and Care", TargetWords: 400},
		},
		// Section added.
		{
			{Level: 1, Title: "Introduction", TargetWords: 150},
			{Level: 2, Title: "Choosing a Variety", TargetWords: 300},
			{Level: 2, Title: "Planting and Care", TargetWords: 400},
			{Level: 2, Title: "Harvesting", TargetWords: 200},
		},
	}
	for i, sections := range structural {
		_, err := e.ReplaceOutline(context.Background(), post.ID, sections)
		if !lifecycle.IsOutlineLocked(err) {
			t.Errorf("case %d: expected OutlineLocked, got %v", i, err)
		}
	}

	// Body-only replacement stays allowed.
	bodies := []models.OutlineSection{
		{Level: 1, Title: "Introduction", TargetWords: 150, Body: "Why grow your own."},
		{Level: 2, Title: "Choosing a Variety", TargetWords: 300, Body: "Cherry or beefsteak."},
		{Level: 2, Title: "Planting and Care", TargetWords: 400},
	}
	updated, err := e.ReplaceOutline(context.Background(), post.ID, bodies)
	if err != nil {
		t.Fatalf("body-only replace failed: %v", err)
	}
	if !updated.Locked {
		t.Error("expected outline to stay locked after body edit")
	}
	if updated.Sections[0].Body != "Why grow your own." {
		t.Errorf("body edit not applied: %q", updated.Sections[0].Body)
	}

	// Per-section body edits stay allowed too.
	afterEdit, err := e.UpdateSectionBody(context.Background(), post.ID, 2, "Water deeply once a week.")
	if err != nil {
		t.Fatalf("UpdateSectionBody failed: %v", err)
	}
	if afterEdit.Sections[2].Body != "Water deeply once a week." {
		t.Errorf("section body edit not applied: %q", afterEdit.Sections[2].Body)
	}
}

func TestNoCurrentDraftPrecondition(t *testing.T) {
	e, _ := newTestEngine(t)
	post := createPost(t, e)
	transition(t, e, post.ID, models.StatusOutline)
	attachOutline(t, e, post.ID)
	transition(t, e, post.ID, models.StatusWriting)

	_, err := e.RequestTransition(context.Background(), post.ID, models.StatusReview, lifecycle.TransitionOptions{})

	var failed *lifecycle.PreconditionFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected PreconditionFailedError, got %v", err)
	}
	if failed.Reason != "no current draft" {
		t.Errorf("expected reason %q, got %q", "no current draft", failed.Reason)
	}
}

func TestRecordDraftKeepsSingleCurrent(t *testing.T) {
	e, st := newTestEngine(t)
	post := createPost(t, e)

	for i := 0; i < 5; i++ {
		if _, err := e.RecordDraft(context.Background(), post.ID, "draft content", 100+i, nil); err != nil {
			t.Fatalf("RecordDraft %d failed: %v", i+1, err)
		}
	}

	drafts, err := st.ListDrafts(context.Background(), post.ID)
	if err != nil {
		t.Fatalf("ListDrafts failed: %v", err)
	}
	if len(drafts) != 5 {
		t.Fatalf("expected 5 drafts, got %d", len(drafts))
	}

	currentCount := 0
	maxVersion := 0
	var current *models.Draft
	for _, d := range drafts {
		if d.Version > maxVersion {
			maxVersion = d.Version
		}
		if d.IsCurrent {
			currentCount++
			current = d
		}
	}
	if currentCount != 1 {
		t.Fatalf("expected exactly one current draft, got %d", currentCount)
	}
	if current.Version != maxVersion {
		t.Errorf("current draft version %d is not the max %d", current.Version, maxVersion)
	}
	if maxVersion != 5 {
		t.Errorf("expected max version 5, got %d", maxVersion)
	}

	// Recording a draft never changes status by itself.
	reloaded, _ := st.GetPost(context.Background(), post.ID)
	if reloaded.Status != models.StatusDraft {
		t.Errorf("RecordDraft changed status to %q", reloaded.Status)
	}
}

func TestQaGateBlocksFailingCheck(t *testing.T) {
	e, _ := newTestEngine(t)
	post := advanceToReview(t, e)

	if _, err := e.RecordQaResult(context.Background(), post.ID, models.CheckSEO, models.CheckFail, 40, nil); err != nil {
		t.Fatalf("RecordQaResult failed: %v", err)
	}

	_, err := e.RequestTransition(context.Background(), post.ID, models.StatusPublished, lifecycle.TransitionOptions{})
	var failed *lifecycle.PreconditionFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected PreconditionFailedError, got %v", err)
	}
	if !strings.Contains(failed.Reason, "QA failing") {
		t.Errorf("expected a QA failing reason, got %q", failed.Reason)
	}
}

func TestQaGateMissingResultBlocks(t *testing.T) {
	e, _ := newTestEngine(t)
	post := advanceToReview(t, e)

	_, err := e.RequestTransition(context.Background(), post.ID, models.StatusPublished, lifecycle.TransitionOptions{})
	if !lifecycle.IsPreconditionFailed(err) {
		t.Fatalf("expected PreconditionFailed with no QA results recorded, got %v", err)
	}
}

func TestQaGateWarningPasses(t *testing.T) {
	e, _ := newTestEngine(t)
	post := advanceToReview(t, e)

	if _, err := e.RecordQaResult(context.Background(), post.ID, models.CheckSEO, models.CheckWarning, 65, nil); err != nil {
		t.Fatalf("RecordQaResult failed: %v", err)
	}

	updated := transition(t, e, post.ID, models.StatusPublished)
	if updated.Status != models.StatusPublished {
		t.Errorf("expected published, got %q", updated.Status)
	}
}

func TestQaGateOverride(t *testing.T) {
	e, _ := newTestEngine(t)
	post := advanceToReview(t, e)

	if _, err := e.RecordQaResult(context.Background(), post.ID, models.CheckSEO, models.CheckFail, 20, nil); err != nil {
		t.Fatalf("RecordQaResult failed: %v", err)
	}

	updated, err := e.RequestTransition(context.Background(), post.ID, models.StatusPublished, lifecycle.TransitionOptions{Override: true})
	if err != nil {
		t.Fatalf("override publish failed: %v", err)
	}
	if updated.Status != models.StatusPublished {
		t.Errorf("expected published, got %q", updated.Status)
	}
}

func TestNewDraftInvalidatesOldQaResults(t *testing.T) {
	e, _ := newTestEngine(t)
	post := advanceToReview(t, e)
	ctx := context.Background()

	// Draft version 1 fails SEO.
	if _, err := e.RecordQaResult(ctx, post.ID, models.CheckSEO, models.CheckFail, 30, nil); err != nil {
		t.Fatalf("RecordQaResult failed: %v", err)
	}
	if _, err := e.RequestTransition(ctx, post.ID, models.StatusPublished, lifecycle.TransitionOptions{}); !lifecycle.IsPreconditionFailed(err) {
		t.Fatalf("expected PreconditionFailed with failing QA, got %v", err)
	}

	// Draft version 2 invalidates the version 1 results.
	if _, err := e.RecordDraft(ctx, post.ID, "Better content with the keyword worked in.", 8, nil); err != nil {
		t.Fatalf("RecordDraft failed: %v", err)
	}
	if _, err := e.RequestTransition(ctx, post.ID, models.StatusPublished, lifecycle.TransitionOptions{}); !lifecycle.IsPreconditionFailed(err) {
		t.Fatalf("expected PreconditionFailed before version 2 is checked, got %v", err)
	}

	// Fresh pass on version 2 opens the gate.
	if _, err := e.RecordQaResult(ctx, post.ID, models.CheckSEO, models.CheckPass, 92, nil); err != nil {
		t.Fatalf("RecordQaResult failed: %v", err)
	}
	updated, err := e.RequestTransition(ctx, post.ID, models.StatusPublished, lifecycle.TransitionOptions{})
	if err != nil {
		t.Fatalf("publish after re-check failed: %v", err)
	}
	if updated.Status != models.StatusPublished {
		t.Errorf("expected published, got %q", updated.Status)
	}
}

func TestRecordQaResultWithoutDraft(t *testing.T) {
	e, _ := newTestEngine(t)
	post := createPost(t, e)

	_, err := e.RecordQaResult(context.Background(), post.ID, models.CheckSEO, models.CheckPass, 90, nil)
	if !lifecycle.IsPreconditionFailed(err) {
		t.Fatalf("expected PreconditionFailed without a current draft, got %v", err)
	}
}

func TestRecordPublishAttemptRequiresPublished(t *testing.T) {
	e, _ := newTestEngine(t)
	post := advanceToReview(t, e)

	_, err := e.RecordPublishAttempt(context.Background(), post.ID, "site-1")
	if !lifecycle.IsPreconditionFailed(err) {
		t.Fatalf("expected PreconditionFailed for unpublished post, got %v", err)
	}

	if _, err := e.RecordQaResult(context.Background(), post.ID, models.CheckSEO, models.CheckPass, 95, nil); err != nil {
		t.Fatalf("RecordQaResult failed: %v", err)
	}
	transition(t, e, post.ID, models.StatusPublished)

	pub, err := e.RecordPublishAttempt(context.Background(), post.ID, "site-1")
	if err != nil {
		t.Fatalf("RecordPublishAttempt failed: %v", err)
	}
	if pub.Status != models.PublishPending {
		t.Errorf("expected pending publish, got %q", pub.Status)
	}
	if pub.PublishedAt != nil {
		t.Error("expected no published timestamp on a pending attempt")
	}
}

func TestRecordPublishResult(t *testing.T) {
	e, _ := newTestEngine(t)
	post := advanceToReview(t, e)
	ctx := context.Background()

	if _, err := e.RecordQaResult(ctx, post.ID, models.CheckSEO, models.CheckPass, 95, nil); err != nil {
		t.Fatalf("RecordQaResult failed: %v", err)
	}
	transition(t, e, post.ID, models.StatusPublished)

	pub, err := e.RecordPublishAttempt(ctx, post.ID, "site-1")
	if err != nil {
		t.Fatalf("RecordPublishAttempt failed: %v", err)
	}

	// Published status without a valid URL is rejected.
	if _, err := e.RecordPublishResult(ctx, pub.ID, models.PublishPublished, "", ""); err == nil {
		t.Error("expected error for published status without URL")
	}
	if _, err := e.RecordPublishResult(ctx, pub.ID, models.PublishPublished, "not-a-url", ""); err == nil {
		t.Error("expected error for published status with invalid URL")
	}

	done, err := e.RecordPublishResult(ctx, pub.ID, models.PublishPublished, "https://example.com/tomatoes", "")
	if err != nil {
		t.Fatalf("RecordPublishResult failed: %v", err)
	}
	if done.PublishedAt == nil {
		t.Error("expected published timestamp to be set")
	}
	if done.PublishedURL != "https://example.com/tomatoes" {
		t.Errorf("unexpected published URL %q", done.PublishedURL)
	}
}

// staleStore forces a version conflict to exercise the engine's
// concurrent-modification mapping.
type staleStore struct {
	store.Store
}

func (s *staleStore) UpdatePostStatus(ctx context.Context, id string, from models.Status, version int64, to models.Status, lockOutline bool) (*models.Post, error) {
	return nil, store.ErrVersionConflict
}

func TestConcurrentModificationSurfaces(t *testing.T) {
	mem := store.NewMemoryStore()
	e := lifecycle.NewEngine(&staleStore{Store: mem}, cache.NewLocalLocks(), []models.CheckType{models.CheckSEO})

	post, err := e.CreatePost(context.Background(), "org-1", "Racy Post Title For Testing", "", models.PostSettings{})
	if err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	_, err = e.RequestTransition(context.Background(), post.ID, models.StatusOutline, lifecycle.TransitionOptions{})
	if !errors.Is(err, lifecycle.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
}

func TestReviewBackToWriting(t *testing.T) {
	e, _ := newTestEngine(t)
	post := advanceToReview(t, e)

	updated := transition(t, e, post.ID, models.StatusWriting)
	if updated.Status != models.StatusWriting {
		t.Errorf("expected writing after revision request, got %q", updated.Status)
	}
}

// Full walkthrough of the lifecycle edge cases: illegal shortcut,
// missing outline, then lock on writing.
func TestLifecycleScenario(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	post := createPost(t, e)
	transition(t, e, post.ID, models.StatusOutline)

	if _, err := e.RequestTransition(ctx, post.ID, models.StatusReview, lifecycle.TransitionOptions{}); !lifecycle.IsInvalidTransition(err) {
		t.Fatalf("expected InvalidTransition for outline -> review, got %v", err)
	}

	var failed *lifecycle.PreconditionFailedError
	_, err := e.RequestTransition(ctx, post.ID, models.StatusWriting, lifecycle.TransitionOptions{})
	if !errors.As(err, &failed) || failed.Reason != "outline missing" {
		t.Fatalf("expected outline missing precondition, got %v", err)
	}

	attachOutline(t, e, post.ID)
	transition(t, e, post.ID, models.StatusWriting)

	outline, err := st.GetOutline(ctx, post.ID)
	if err != nil {
		t.Fatalf("GetOutline failed: %v", err)
	}
	if !outline.Locked {
		t.Error("expected outline locked after drafting began")
	}
}

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/inklift/inklift/internal/logger"
	"github.com/inklift/inklift/internal/models"
	"github.com/inklift/inklift/internal/store"
)

// Locker serializes operations per post. Conflicting transitions for
// the same post must not interleave; different posts are independent.
type Locker interface {
	WithPostLock(ctx context.Context, postID string, fn func(ctx context.Context) error) error
}

// TransitionOptions modifies a transition request. Override bypasses
// the QA gate on review -> published and nothing else.
type TransitionOptions struct {
	Override bool
}

// guard checks the precondition attached to a table entry. A nil
// return means the transition may proceed.
type guard func(ctx context.Context, e *Engine, post *models.Post, opts TransitionOptions) error

// transitions is the legal-transition table. A missing (from, to)
// pair is an InvalidTransition; archived has no outgoing entries.
var transitions = map[models.Status]map[models.Status]guard{
	models.StatusDraft: {
		models.StatusOutline:  nil,
		models.StatusArchived: nil,
	},
	models.StatusOutline: {
		models.StatusWriting:  guardOutlinePresent,
		models.StatusArchived: nil,
	},
	models.StatusWriting: {
		models.StatusReview:   guardCurrentDraft,
		models.StatusArchived: nil,
	},
	models.StatusReview: {
		models.StatusWriting:   nil,
		models.StatusPublished: guardQaGate,
		models.StatusArchived:  nil,
	},
}

// CanTransition reports whether the (from, to) pair exists in the
// transition table, ignoring guard preconditions.
func CanTransition(from, to models.Status) bool {
	targets, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

// Engine owns the post status state machine. It is stateless between
// calls: all state lives in the records loaded from the store, and the
// locker serializes conflicting operations per post.
type Engine struct {
	store    store.Store
	locks    Locker
	required []models.CheckType
}

// NewEngine builds an engine gating publish on the given required
// check types.
func NewEngine(st store.Store, locks Locker, required []models.CheckType) *Engine {
	return &Engine{
		store:    st,
		locks:    locks,
		required: required,
	}
}

// CreatePost registers a new post in the initial draft state.
func (e *Engine) CreatePost(ctx context.Context, orgID, title, targetKeyword string, settings models.PostSettings) (*models.Post, error) {
	now := time.Now().UTC()
	post := &models.Post{
		ID:            uuid.NewString(),
		OrgID:         orgID,
		Title:         title,
		Status:        models.StatusDraft,
		TargetKeyword: targetKeyword,
		Settings:      settings,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.store.CreatePost(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// RequestTransition validates and applies a status change. The target
// is explicit; the engine never infers it. On a successful
// outline -> writing transition the post's outline is locked in the
// same store transaction.
func (e *Engine) RequestTransition(ctx context.Context, postID string, target models.Status, opts TransitionOptions) (*models.Post, error) {
	var updated *models.Post

	err := e.locks.WithPostLock(ctx, postID, func(ctx context.Context) error {
		post, err := e.store.GetPost(ctx, postID)
		if err != nil {
			return err
		}

		if !target.Valid() {
			return &InvalidTransitionError{From: post.Status, To: target}
		}

		g, ok := transitions[post.Status][target]
		if !ok {
			return &InvalidTransitionError{From: post.Status, To: target}
		}

		if g != nil {
			if err := g(ctx, e, post, opts); err != nil {
				return err
			}
		}

		lockOutline := post.Status == models.StatusOutline && target == models.StatusWriting

		updated, err = e.store.UpdatePostStatus(ctx, post.ID, post.Status, post.Version, target, lockOutline)
		if errors.Is(err, store.ErrVersionConflict) {
			return ErrConcurrentModification
		}
		if err != nil {
			return err
		}

		logger.Get().Info().
			Str("post_id", post.ID).
			Str("from", post.Status.String()).
			Str("to", target.String()).
			Bool("override", opts.Override).
			Msg("Post transitioned")

		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ReplaceOutline creates or replaces a post's outline. Once the
// outline is locked only section bodies may change; any structural
// difference (count, order, level, title, target words, keywords)
// fails with OutlineLocked.
func (e *Engine) ReplaceOutline(ctx context.Context, postID string, sections []models.OutlineSection) (*models.Outline, error) {
	var saved *models.Outline

	err := e.locks.WithPostLock(ctx, postID, func(ctx context.Context) error {
		if _, err := e.store.GetPost(ctx, postID); err != nil {
			return err
		}

		existing, err := e.store.GetOutline(ctx, postID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		outline := &models.Outline{
			PostID:   postID,
			Sections: sections,
		}
		for _, s := range sections {
			outline.TotalWords += s.TargetWords
		}

		if existing != nil && existing.Locked {
			if structuralChange(existing.Sections, sections) {
				return &OutlineLockedError{PostID: postID}
			}
			outline.Locked = true
			outline.CreatedAt = existing.CreatedAt
		} else if existing != nil {
			outline.CreatedAt = existing.CreatedAt
		}

		if err := e.store.SaveOutline(ctx, outline); err != nil {
			return err
		}
		saved = outline
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// UpdateSectionBody edits one section's body content. Permitted even
// after the outline is locked.
func (e *Engine) UpdateSectionBody(ctx context.Context, postID string, index int, body string) (*models.Outline, error) {
	var saved *models.Outline

	err := e.locks.WithPostLock(ctx, postID, func(ctx context.Context) error {
		outline, err := e.store.GetOutline(ctx, postID)
		if err != nil {
			return err
		}
		if index < 0 || index >= len(outline.Sections) {
			return fmt.Errorf("section index %d out of range (outline has %d sections)", index, len(outline.Sections))
		}
		outline.Sections[index].Body = body
		if err := e.store.SaveOutline(ctx, outline); err != nil {
			return err
		}
		saved = outline
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// RecordDraft creates the next draft version and makes it current.
// The previous current draft's flag flips off atomically with the new
// one's flip on. The post's status is unchanged; moving to review is a
// separate explicit transition.
func (e *Engine) RecordDraft(ctx context.Context, postID, content string, wordCount int, citations []models.Citation) (*models.Draft, error) {
	var draft *models.Draft

	err := e.locks.WithPostLock(ctx, postID, func(ctx context.Context) error {
		if _, err := e.store.GetPost(ctx, postID); err != nil {
			return err
		}
		var err error
		draft, err = e.store.CreateDraft(ctx, postID, content, wordCount, citations)
		if err != nil {
			return err
		}

		logger.Get().Info().
			Str("post_id", postID).
			Int("version", draft.Version).
			Int("word_count", wordCount).
			Msg("Draft recorded")

		return nil
	})
	if err != nil {
		return nil, err
	}
	return draft, nil
}

// RecordQaResult upserts the latest result for a check type against
// the current draft version. Results tied to earlier draft versions
// stop counting for the publish gate as soon as a newer draft exists.
func (e *Engine) RecordQaResult(ctx context.Context, postID string, checkType models.CheckType, status models.CheckStatus, score float64, issues []models.QaIssue) (*models.QaCheck, error) {
	if !checkType.Valid() {
		return nil, fmt.Errorf("unknown check type %q", checkType)
	}
	if !status.Valid() {
		return nil, fmt.Errorf("unknown check status %q", status)
	}

	var check *models.QaCheck

	err := e.locks.WithPostLock(ctx, postID, func(ctx context.Context) error {
		post, err := e.store.GetPost(ctx, postID)
		if err != nil {
			return err
		}

		draft, err := e.store.GetCurrentDraft(ctx, postID)
		if errors.Is(err, store.ErrNotFound) {
			return &PreconditionFailedError{From: post.Status, To: post.Status, Reason: "no current draft"}
		}
		if err != nil {
			return err
		}

		check = &models.QaCheck{
			PostID:       postID,
			DraftVersion: draft.Version,
			Type:         checkType,
			Status:       status,
			Score:        score,
			Issues:       issues,
			CheckedAt:    time.Now().UTC(),
		}
		return e.store.UpsertQaCheck(ctx, check)
	})
	if err != nil {
		return nil, err
	}
	return check, nil
}

// RecordPublishAttempt accepts a publishing attempt for a post that
// has already transitioned to published. The external publishing
// worker advances the record via RecordPublishResult.
func (e *Engine) RecordPublishAttempt(ctx context.Context, postID, siteID string) (*models.Publish, error) {
	var pub *models.Publish

	err := e.locks.WithPostLock(ctx, postID, func(ctx context.Context) error {
		post, err := e.store.GetPost(ctx, postID)
		if err != nil {
			return err
		}
		if post.Status != models.StatusPublished {
			return &PreconditionFailedError{
				From:   post.Status,
				To:     models.StatusPublished,
				Reason: "post is not published",
			}
		}

		now := time.Now().UTC()
		pub = &models.Publish{
			ID:        uuid.NewString(),
			PostID:    postID,
			SiteID:    siteID,
			Status:    models.PublishPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return e.store.CreatePublish(ctx, pub)
	})
	if err != nil {
		return nil, err
	}
	return pub, nil
}

// RecordPublishResult applies the outcome reported by the publishing
// worker. PublishedAt is set only when the status is published and
// the URL is a valid absolute http(s) URL.
func (e *Engine) RecordPublishResult(ctx context.Context, publishID string, status models.PublishStatus, publishedURL, errMsg string) (*models.Publish, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown publish status %q", status)
	}

	pub, err := e.store.GetPublish(ctx, publishID)
	if err != nil {
		return nil, err
	}

	pub.Status = status
	pub.Error = errMsg
	pub.UpdatedAt = time.Now().UTC()

	if status == models.PublishPublished {
		if !validPublishedURL(publishedURL) {
			return nil, fmt.Errorf("published status requires a valid URL, got %q", publishedURL)
		}
		pub.PublishedURL = publishedURL
		now := pub.UpdatedAt
		pub.PublishedAt = &now
	}

	if err := e.store.UpdatePublish(ctx, pub); err != nil {
		return nil, err
	}
	return pub, nil
}

// QaGateStatus returns the gate evaluation for the current draft:
// which required checks block publishing and why.
func (e *Engine) QaGateStatus(ctx context.Context, postID string) (blocking []string, err error) {
	draft, err := e.store.GetCurrentDraft(ctx, postID)
	if errors.Is(err, store.ErrNotFound) {
		return []string{"no current draft"}, nil
	}
	if err != nil {
		return nil, err
	}

	checks, err := e.store.ListQaChecks(ctx, postID, draft.Version)
	if err != nil {
		return nil, err
	}

	latest := make(map[models.CheckType]*models.QaCheck, len(checks))
	for _, c := range checks {
		latest[c.Type] = c
	}

	for _, required := range e.required {
		c, ok := latest[required]
		switch {
		case !ok:
			blocking = append(blocking, fmt.Sprintf("%s: missing", required))
		case !c.Status.Gating():
			blocking = append(blocking, fmt.Sprintf("%s: %s", required, c.Status))
		}
	}
	return blocking, nil
}

func guardOutlinePresent(ctx context.Context, e *Engine, post *models.Post, _ TransitionOptions) error {
	outline, err := e.store.GetOutline(ctx, post.ID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && outline.Empty()) {
		return &PreconditionFailedError{From: post.Status, To: models.StatusWriting, Reason: "outline missing"}
	}
	return err
}

func guardCurrentDraft(ctx context.Context, e *Engine, post *models.Post, _ TransitionOptions) error {
	_, err := e.store.GetCurrentDraft(ctx, post.ID)
	if errors.Is(err, store.ErrNotFound) {
		return &PreconditionFailedError{From: post.Status, To: models.StatusReview, Reason: "no current draft"}
	}
	return err
}

func guardQaGate(ctx context.Context, e *Engine, post *models.Post, opts TransitionOptions) error {
	if opts.Override {
		logger.Get().Warn().
			Str("post_id", post.ID).
			Msg("QA gate overridden for publish")
		return nil
	}

	blocking, err := e.QaGateStatus(ctx, post.ID)
	if err != nil {
		return err
	}
	if len(blocking) > 0 {
		return &PreconditionFailedError{
			From:   post.Status,
			To:     models.StatusPublished,
			Reason: fmt.Sprintf("QA failing (%v)", blocking),
		}
	}
	return nil
}

// structuralChange reports whether the replacement sections differ
// from the existing ones in anything other than body content.
func structuralChange(existing, replacement []models.OutlineSection) bool {
	if len(existing) != len(replacement) {
		return true
	}
	for i := range existing {
		if !existing[i].SameStructure(replacement[i]) {
			return true
		}
	}
	return false
}

func validPublishedURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

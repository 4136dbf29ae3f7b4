package api

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/inklift/inklift/internal/archive"
	"github.com/inklift/inklift/internal/cache"
	"github.com/inklift/inklift/internal/config"
	"github.com/inklift/inklift/internal/lifecycle"
	"github.com/inklift/inklift/internal/logger"
	"github.com/inklift/inklift/internal/middleware"
	"github.com/inklift/inklift/internal/models"
	"github.com/inklift/inklift/internal/notify"
	"github.com/inklift/inklift/internal/qa"
	"github.com/inklift/inklift/internal/store"
)

type Handlers struct {
	config    *config.Config
	engine    *lifecycle.Engine
	store     store.Store
	checker   *qa.Checker
	notifier  *notify.Notifier
	exporter  *archive.Exporter
	locks     cache.Locks
	validator *middleware.Validator
}

// NewHandlers wires the HTTP surface. exporter may be nil when R2 is
// not configured.
func NewHandlers(cfg *config.Config, engine *lifecycle.Engine, st store.Store, checker *qa.Checker, notifier *notify.Notifier, exporter *archive.Exporter, locks cache.Locks) *Handlers {
	return &Handlers{
		config:    cfg,
		engine:    engine,
		store:     st,
		checker:   checker,
		notifier:  notifier,
		exporter:  exporter,
		locks:     locks,
		validator: middleware.NewValidator(),
	}
}

type createPostRequest struct {
	Title         string              `json:"title" validate:"required,min=1,max=300"`
	TargetKeyword string              `json:"target_keyword" validate:"max=200"`
	Settings      models.PostSettings `json:"settings"`
}

type transitionRequest struct {
	Target   models.Status `json:"target" validate:"required"`
	Override bool          `json:"override"`
}

type outlineSectionRequest struct {
	Level       int      `json:"level" validate:"required,min=1,max=3"`
	Title       string   `json:"title" validate:"required"`
	TargetWords int      `json:"target_words" validate:"min=0"`
	Body        string   `json:"body"`
	Keywords    []string `json:"keywords"`
}

type outlineRequest struct {
	Sections []outlineSectionRequest `json:"sections" validate:"required,min=1,dive"`
}

type sectionBodyRequest struct {
	Body string `json:"body" validate:"required"`
}

type draftRequest struct {
	Content   string            `json:"content" validate:"required"`
	WordCount int               `json:"word_count" validate:"min=0"`
	Citations []models.Citation `json:"citations"`
}

type qaResultRequest struct {
	CheckType models.CheckType   `json:"check_type" validate:"required"`
	Status    models.CheckStatus `json:"status" validate:"required"`
	Score     float64            `json:"score" validate:"min=0,max=100"`
	Issues    []models.QaIssue   `json:"issues"`
}

type publishRequest struct {
	SiteID   string `json:"site_id" validate:"required"`
	Override bool   `json:"override"`
}

type publishResultRequest struct {
	Status       models.PublishStatus `json:"status" validate:"required"`
	PublishedURL string               `json:"published_url"`
	Error        string               `json:"error"`
}

// HealthCheck handles the /health endpoint
func (h *Handlers) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": "1.0.0",
		"time":    time.Now().Format(time.RFC3339),
	})
}

// CreatePost handles POST /api/v1/posts
func (h *Handlers) CreatePost(c *fiber.Ctx) error {
	var req createPostRequest
	if !h.validator.ParseAndValidate(c, &req) {
		return nil
	}

	post, err := h.engine.CreatePost(c.Context(), middleware.OrgID(c), req.Title, req.TargetKeyword, req.Settings)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// ListPosts handles GET /api/v1/posts
func (h *Handlers) ListPosts(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}

	pageSize, _ := strconv.Atoi(c.Query("page_size", "20"))
	switch {
	case pageSize > 100:
		pageSize = 100
	case pageSize <= 0:
		pageSize = 20
	}

	posts, err := h.store.ListPosts(c.Context(), middleware.OrgID(c), page, pageSize)
	if err != nil {
		return h.respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"page":      page,
		"page_size": pageSize,
		"total":     len(posts),
		"items":     posts,
	})
}

// GetPost handles GET /api/v1/posts/:id
func (h *Handlers) GetPost(c *fiber.Ctx) error {
	post, ok := h.loadOrgPost(c)
	if !ok {
		return nil
	}
	return c.JSON(post)
}

// RequestTransition handles POST /api/v1/posts/:id/transition
func (h *Handlers) RequestTransition(c *fiber.Ctx) error {
	post, ok := h.loadOrgPost(c)
	if !ok {
		return nil
	}

	var req transitionRequest
	if !h.validator.ParseAndValidate(c, &req) {
		return nil
	}

	from := post.Status
	updated, err := h.engine.RequestTransition(c.Context(), post.ID, req.Target, lifecycle.TransitionOptions{
		Override: req.Override,
	})
	if err != nil {
		return h.respondError(c, err)
	}

	h.notifier.PostTransitioned(updated, from)

	if updated.Status == models.StatusArchived && h.exporter != nil {
		go h.exportArchive(updated.ID)
	}

	return c.JSON(updated)
}

// PutOutline handles PUT /api/v1/posts/:id/outline
func (h *Handlers) PutOutline(c *fiber.Ctx) error {
	post, ok := h.loadOrgPost(c)
	if !ok {
		return nil
	}

	var req outlineRequest
	if !h.validator.ParseAndValidate(c, &req) {
		return nil
	}

	sections := make([]models.OutlineSection, len(req.Sections))
	for i, s := range req.Sections {
		sections[i] = models.OutlineSection{
			Level:       s.Level,
			Title:       s.Title,
			TargetWords: s.TargetWords,
			Body:        s.Body,
			Keywords:    s.Keywords,
		}
	}

	outline, err := h.engine.ReplaceOutline(c.Context(), post.ID, sections)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(outline)
}

// GetOutline handles GET /api/v1/posts/:id/outline
func (h *Handlers) GetOutline(c *fiber.Ctx) error {
	post, ok := h.loadOrgPost(c)
	if !ok {
		return nil
	}

	outline, err := h.store.GetOutline(c.Context(), post.ID)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(outline)
}

// PatchSection handles PATCH /api/v1/posts/:id/outline/sections/:index
func (h *Handlers) PatchSection(c *fiber.Ctx) error {
	post, ok := h.loadOrgPost(c)
	if !ok {
		return nil
	}

	index, err := strconv.Atoi(c.Params("index"))
	if err != nil || index < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid section index",
		})
	}

	var req sectionBodyRequest
	if !h.validator.ParseAndValidate(c, &req) {
		return nil
	}

	outline, err := h.engine.UpdateSectionBody(c.Context(), post.ID, index, req.Body)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(outline)
}

// RecordDraft handles POST /api/v1/posts/:id/draft
func (h *Handlers) RecordDraft(c *fiber.Ctx) error {
	post, ok := h.loadOrgPost(c)
	if !ok {
		return nil
	}

	var req draftRequest
	if !h.validator.ParseAndValidate(c, &req) {
		return nil
	}

	wordCount := req.WordCount
	if wordCount == 0 {
		wordCount = qa.CountWords(req.Content)
	}

	draft, err := h.engine.RecordDraft(c.Context(), post.ID, req.Content, wordCount, req.Citations)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(draft)
}

// ListDrafts handles GET /api/v1/posts/:id/drafts
func (h *Handlers) ListDrafts(c *fiber.Ctx) error {
	post, ok := h.loadOrgPost(c)
	if !ok {
		return nil
	}

	drafts, err := h.store.ListDrafts(c.Context(), post.ID)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{"items": drafts, "total": len(drafts)})
}

// RunQa handles POST /api/v1/posts/:id/qa. It computes the checks the
// service can run itself and records each result.
func (h *Handlers) RunQa(c *fiber.Ctx) error {
	post, ok := h.loadOrgPost(c)
	if !ok {
		return nil
	}

	draft, err := h.store.GetCurrentDraft(c.Context(), post.ID)
	if err != nil {
		return h.respondError(c, err)
	}

	results := h.checker.Run(post, draft)
	recorded := make([]*models.QaCheck, 0, len(results))
	for _, r := range results {
		check, err := h.engine.RecordQaResult(c.Context(), post.ID, r.Type, r.Status, r.Score, r.Issues)
		if err != nil {
			return h.respondError(c, err)
		}
		recorded = append(recorded, check)
	}

	blocking, err := h.engine.QaGateStatus(c.Context(), post.ID)
	if err != nil {
		return h.respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"checks":   recorded,
		"blocking": blocking,
	})
}

// ReportQaResult handles POST /api/v1/posts/:id/qa/results, the
// report-back path for external QA workers.
func (h *Handlers) ReportQaResult(c *fiber.Ctx) error {
	post, ok := h.loadOrgPost(c)
	if !ok {
		return nil
	}

	var req qaResultRequest
	if !h.validator.ParseAndValidate(c, &req) {
		return nil
	}

	check, err := h.engine.RecordQaResult(c.Context(), post.ID, req.CheckType, req.Status, req.Score, req.Issues)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(check)
}

// GetQaStatus handles GET /api/v1/posts/:id/qa
func (h *Handlers) GetQaStatus(c *fiber.Ctx) error {
	post, ok := h.loadOrgPost(c)
	if !ok {
		return nil
	}

	draft, err := h.store.GetCurrentDraft(c.Context(), post.ID)
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(fiber.Map{"checks": []*models.QaCheck{}, "blocking": []string{"no current draft"}})
	}
	if err != nil {
		return h.respondError(c, err)
	}

	checks, err := h.store.ListQaChecks(c.Context(), post.ID, draft.Version)
	if err != nil {
		return h.respondError(c, err)
	}

	blocking, err := h.engine.QaGateStatus(c.Context(), post.ID)
	if err != nil {
		return h.respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"draft_version": draft.Version,
		"checks":        checks,
		"blocking":      blocking,
	})
}

// PublishPost handles POST /api/v1/posts/:id/publish. Publishing is
// two legal steps: the review -> published transition, then the
// publish attempt record the external worker picks up.
func (h *Handlers) PublishPost(c *fiber.Ctx) error {
	post, ok := h.loadOrgPost(c)
	if !ok {
		return nil
	}

	var req publishRequest
	if !h.validator.ParseAndValidate(c, &req) {
		return nil
	}

	from := post.Status
	updated, err := h.engine.RequestTransition(c.Context(), post.ID, models.StatusPublished, lifecycle.TransitionOptions{
		Override: req.Override,
	})
	if err != nil {
		return h.respondError(c, err)
	}
	h.notifier.PostTransitioned(updated, from)

	pub, err := h.engine.RecordPublishAttempt(c.Context(), post.ID, req.SiteID)
	if err != nil {
		return h.respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"post":    updated,
		"publish": pub,
	})
}

// ListPublishes handles GET /api/v1/posts/:id/publishes
func (h *Handlers) ListPublishes(c *fiber.Ctx) error {
	post, ok := h.loadOrgPost(c)
	if !ok {
		return nil
	}

	pubs, err := h.store.ListPublishes(c.Context(), post.ID)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{"items": pubs, "total": len(pubs)})
}

// ReportPublishResult handles POST /api/v1/publishes/:id/result, the
// report-back path for the external publishing worker.
func (h *Handlers) ReportPublishResult(c *fiber.Ctx) error {
	var req publishResultRequest
	if !h.validator.ParseAndValidate(c, &req) {
		return nil
	}

	pub, err := h.engine.RecordPublishResult(c.Context(), c.Params("id"), req.Status, req.PublishedURL, req.Error)
	if err != nil {
		return h.respondError(c, err)
	}

	h.notifier.PublishUpdated(pub)
	return c.JSON(pub)
}

// DeletePost handles DELETE /api/v1/admin/posts/:id. Physical removal
// is an administrative override; normal flow archives instead.
func (h *Handlers) DeletePost(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.store.DeletePost(c.Context(), id); err != nil {
		return h.respondError(c, err)
	}

	logger.Get().Info().Str("post_id", id).Msg("Post deleted by admin")
	return c.JSON(fiber.Map{
		"status":  "deleted",
		"message": "Post deleted",
	})
}

// ClearLocks handles POST /api/v1/admin/locks/clear
func (h *Handlers) ClearLocks(c *fiber.Ctx) error {
	redisLocks, ok := h.locks.(*cache.RedisLocks)
	if !ok {
		return c.JSON(fiber.Map{"cleared": 0})
	}

	cleared, err := redisLocks.ClearLocks(c.Context())
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{"cleared": cleared})
}

// loadOrgPost fetches the post and enforces the tenant boundary. A
// post in another org is reported as not found.
func (h *Handlers) loadOrgPost(c *fiber.Ctx) (*models.Post, bool) {
	post, err := h.store.GetPost(c.Context(), c.Params("id"))
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	if orgID := middleware.OrgID(c); orgID != "" && post.OrgID != orgID {
		c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Post not found"})
		return nil, false
	}
	return post, true
}

// respondError maps engine and store errors onto status codes:
// conflict for invalid transitions, failed preconditions and lost
// races, locked for structural outline edits.
func (h *Handlers) respondError(c *fiber.Ctx, err error) error {
	switch {
	case lifecycle.IsInvalidTransition(err), lifecycle.IsPreconditionFailed(err):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, lifecycle.ErrConcurrentModification):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
			"retry": true,
		})
	case lifecycle.IsOutlineLocked(err):
		return c.Status(fiber.StatusLocked).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
	default:
		logger.Get().Error().
			Err(err).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Msg("Unhandled error")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
}

// exportArchive snapshots an archived post to object storage in the
// background.
func (h *Handlers) exportArchive(postID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	log := logger.Get()

	post, err := h.store.GetPost(ctx, postID)
	if err != nil {
		log.Error().Err(err).Str("post_id", postID).Msg("Archive export: failed to load post")
		return
	}

	bundle := &archive.Bundle{Post: post}

	if outline, err := h.store.GetOutline(ctx, postID); err == nil {
		bundle.Outline = outline
	}
	if drafts, err := h.store.ListDrafts(ctx, postID); err == nil {
		bundle.Drafts = drafts
	}
	if draft, err := h.store.GetCurrentDraft(ctx, postID); err == nil {
		if checks, err := h.store.ListQaChecks(ctx, postID, draft.Version); err == nil {
			bundle.QaChecks = checks
		}
	}
	if pubs, err := h.store.ListPublishes(ctx, postID); err == nil {
		bundle.Publishes = pubs
	}

	key, err := h.exporter.Export(ctx, bundle)
	if err != nil {
		log.Error().Err(err).Str("post_id", postID).Msg("Archive export failed")
		return
	}

	log.Info().Str("post_id", postID).Str("key", key).Msg("Archived post exported")
}

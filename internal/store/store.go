package store

import (
	"context"
	"errors"

	"github.com/inklift/inklift/internal/models"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrVersionConflict is returned when an optimistic status write loses
// a race: the post's version no longer matches the one read.
var ErrVersionConflict = errors.New("post version conflict")

// Store persists lifecycle entities. Each method is transactionally
// consistent on its own; cross-record invariants (draft currency flip,
// status-plus-outline-lock) are enforced inside a single transaction.
type Store interface {
	CreatePost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, id string) (*models.Post, error)
	ListPosts(ctx context.Context, orgID string, page, pageSize int) ([]*models.Post, error)
	// UpdatePostStatus advances the post from the given status and
	// version to the target status. It fails with ErrVersionConflict
	// when the stored version differs. When lockOutline is set the
	// post's outline lock flag is raised in the same transaction.
	UpdatePostStatus(ctx context.Context, id string, from models.Status, version int64, to models.Status, lockOutline bool) (*models.Post, error)
	DeletePost(ctx context.Context, id string) error

	SaveOutline(ctx context.Context, outline *models.Outline) error
	// GetOutline returns ErrNotFound when the post has no outline.
	GetOutline(ctx context.Context, postID string) (*models.Outline, error)

	// CreateDraft allocates the next draft version, marks it current
	// and clears the previous current flag atomically. The post's
	// word count follows the new current draft.
	CreateDraft(ctx context.Context, postID, content string, wordCount int, citations []models.Citation) (*models.Draft, error)
	GetCurrentDraft(ctx context.Context, postID string) (*models.Draft, error)
	ListDrafts(ctx context.Context, postID string) ([]*models.Draft, error)

	// UpsertQaCheck replaces the latest result for the check's
	// (post, draft version, type) key.
	UpsertQaCheck(ctx context.Context, check *models.QaCheck) error
	ListQaChecks(ctx context.Context, postID string, draftVersion int) ([]*models.QaCheck, error)

	CreatePublish(ctx context.Context, pub *models.Publish) error
	GetPublish(ctx context.Context, id string) (*models.Publish, error)
	UpdatePublish(ctx context.Context, pub *models.Publish) error
	ListPublishes(ctx context.Context, postID string) ([]*models.Publish, error)
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inklift/inklift/internal/models"
)

// PostgresStore persists lifecycle entities in Postgres via pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
	sb   sq.StatementBuilderType
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects a pool and verifies it with a ping.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	return &PostgresStore{
		pool: pool,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) CreatePost(ctx context.Context, post *models.Post) error {
	settings, err := json.Marshal(post.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	query, args, err := s.sb.Insert("posts").
		Columns("id", "org_id", "title", "slug", "status", "target_keyword",
			"word_count", "seo_score", "settings", "version", "created_at", "updated_at").
		Values(post.ID, post.OrgID, post.Title, post.Slug, post.Status, post.TargetKeyword,
			post.WordCount, post.SeoScore, settings, post.Version, post.CreatedAt, post.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert post: %w", err)
	}

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

const postColumns = "id, org_id, title, slug, status, target_keyword, word_count, seo_score, settings, version, created_at, updated_at"

func scanPost(row pgx.Row) (*models.Post, error) {
	var post models.Post
	var settings []byte
	err := row.Scan(&post.ID, &post.OrgID, &post.Title, &post.Slug, &post.Status,
		&post.TargetKeyword, &post.WordCount, &post.SeoScore, &settings,
		&post.Version, &post.CreatedAt, &post.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan post: %w", err)
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &post.Settings); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	}
	return &post, nil
}

func (s *PostgresStore) GetPost(ctx context.Context, id string) (*models.Post, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+postColumns+" FROM posts WHERE id = $1", id)
	return scanPost(row)
}

func (s *PostgresStore) ListPosts(ctx context.Context, orgID string, page, pageSize int) ([]*models.Post, error) {
	builder := s.sb.Select(postColumns).
		From("posts").
		OrderBy("created_at DESC").
		Limit(uint64(pageSize)).
		Offset(uint64((page - 1) * pageSize))
	if orgID != "" {
		builder = builder.Where(sq.Eq{"org_id": orgID})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list posts: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	posts := []*models.Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (s *PostgresStore) UpdatePostStatus(ctx context.Context, id string, from models.Status, version int64, to models.Status, lockOutline bool) (*models.Post, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `UPDATE posts
        SET status = $1, version = version + 1, updated_at = NOW()
        WHERE id = $2 AND status = $3 AND version = $4
        RETURNING `+postColumns, to, id, from, version)

	post, err := scanPost(row)
	if errors.Is(err, ErrNotFound) {
		// Distinguish a lost race from a missing post.
		var exists bool
		if checkErr := s.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM posts WHERE id = $1)", id).Scan(&exists); checkErr != nil {
			return nil, fmt.Errorf("check post exists: %w", checkErr)
		}
		if exists {
			return nil, ErrVersionConflict
		}
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if lockOutline {
		if _, err := tx.Exec(ctx, "UPDATE outlines SET locked = TRUE, updated_at = NOW() WHERE post_id = $1", id); err != nil {
			return nil, fmt.Errorf("lock outline: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit status update: %w", err)
	}
	return post, nil
}

func (s *PostgresStore) DeletePost(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM posts WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SaveOutline(ctx context.Context, outline *models.Outline) error {
	sections, err := json.Marshal(outline.Sections)
	if err != nil {
		return fmt.Errorf("marshal sections: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx, `INSERT INTO outlines (post_id, sections, total_words, locked, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $5)
        ON CONFLICT (post_id) DO UPDATE
        SET sections = EXCLUDED.sections,
            total_words = EXCLUDED.total_words,
            locked = EXCLUDED.locked,
            updated_at = EXCLUDED.updated_at`,
		outline.PostID, sections, outline.TotalWords, outline.Locked, now)
	if err != nil {
		return fmt.Errorf("upsert outline: %w", err)
	}
	outline.UpdatedAt = now
	return nil
}

func (s *PostgresStore) GetOutline(ctx context.Context, postID string) (*models.Outline, error) {
	var outline models.Outline
	var sections []byte
	err := s.pool.QueryRow(ctx,
		"SELECT post_id, sections, total_words, locked, created_at, updated_at FROM outlines WHERE post_id = $1",
		postID,
	).Scan(&outline.PostID, &sections, &outline.TotalWords, &outline.Locked, &outline.CreatedAt, &outline.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get outline: %w", err)
	}
	if err := json.Unmarshal(sections, &outline.Sections); err != nil {
		return nil, fmt.Errorf("unmarshal sections: %w", err)
	}
	return &outline, nil
}

func (s *PostgresStore) CreateDraft(ctx context.Context, postID, content string, wordCount int, citations []models.Citation) (*models.Draft, error) {
	citationsJSON, err := json.Marshal(citations)
	if err != nil {
		return nil, fmt.Errorf("marshal citations: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Row lock on the post serializes concurrent draft writes.
	var exists string
	err = tx.QueryRow(ctx, "SELECT id FROM posts WHERE id = $1 FOR UPDATE", postID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock post row: %w", err)
	}

	var version int
	if err := tx.QueryRow(ctx,
		"SELECT COALESCE(MAX(version), 0) + 1 FROM drafts WHERE post_id = $1", postID,
	).Scan(&version); err != nil {
		return nil, fmt.Errorf("next draft version: %w", err)
	}

	if _, err := tx.Exec(ctx,
		"UPDATE drafts SET is_current = FALSE WHERE post_id = $1 AND is_current", postID,
	); err != nil {
		return nil, fmt.Errorf("clear current draft: %w", err)
	}

	draft := &models.Draft{
		PostID:    postID,
		Version:   version,
		Content:   content,
		WordCount: wordCount,
		IsCurrent: true,
		Citations: citations,
		CreatedAt: time.Now().UTC(),
	}

	if _, err := tx.Exec(ctx, `INSERT INTO drafts (post_id, version, content, word_count, is_current, citations, created_at)
        VALUES ($1, $2, $3, $4, TRUE, $5, $6)`,
		draft.PostID, draft.Version, draft.Content, draft.WordCount, citationsJSON, draft.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert draft: %w", err)
	}

	if _, err := tx.Exec(ctx,
		"UPDATE posts SET word_count = $1, updated_at = NOW() WHERE id = $2", wordCount, postID,
	); err != nil {
		return nil, fmt.Errorf("update post word count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit draft: %w", err)
	}
	return draft, nil
}

const draftColumns = "post_id, version, content, word_count, is_current, citations, created_at"

func scanDraft(row pgx.Row) (*models.Draft, error) {
	var draft models.Draft
	var citations []byte
	err := row.Scan(&draft.PostID, &draft.Version, &draft.Content,
		&draft.WordCount, &draft.IsCurrent, &citations, &draft.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan draft: %w", err)
	}
	if len(citations) > 0 {
		if err := json.Unmarshal(citations, &draft.Citations); err != nil {
			return nil, fmt.Errorf("unmarshal citations: %w", err)
		}
	}
	return &draft, nil
}

func (s *PostgresStore) GetCurrentDraft(ctx context.Context, postID string) (*models.Draft, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+draftColumns+" FROM drafts WHERE post_id = $1 AND is_current", postID)
	return scanDraft(row)
}

func (s *PostgresStore) ListDrafts(ctx context.Context, postID string) ([]*models.Draft, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+draftColumns+" FROM drafts WHERE post_id = $1 ORDER BY version", postID)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	drafts := []*models.Draft{}
	for rows.Next() {
		draft, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, draft)
	}
	return drafts, rows.Err()
}

func (s *PostgresStore) UpsertQaCheck(ctx context.Context, check *models.QaCheck) error {
	issues, err := json.Marshal(check.Issues)
	if err != nil {
		return fmt.Errorf("marshal issues: %w", err)
	}

	_, err = s.pool.Exec(ctx, `INSERT INTO qa_checks (post_id, draft_version, check_type, status, score, issues, checked_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (post_id, draft_version, check_type) DO UPDATE
        SET status = EXCLUDED.status,
            score = EXCLUDED.score,
            issues = EXCLUDED.issues,
            checked_at = EXCLUDED.checked_at`,
		check.PostID, check.DraftVersion, check.Type, check.Status, check.Score, issues, check.CheckedAt)
	if err != nil {
		return fmt.Errorf("upsert qa check: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListQaChecks(ctx context.Context, postID string, draftVersion int) ([]*models.QaCheck, error) {
	query, args, err := s.sb.Select("post_id", "draft_version", "check_type", "status", "score", "issues", "checked_at").
		From("qa_checks").
		Where(sq.Eq{"post_id": postID, "draft_version": draftVersion}).
		OrderBy("check_type").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list qa checks: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list qa checks: %w", err)
	}
	defer rows.Close()

	checks := []*models.QaCheck{}
	for rows.Next() {
		var check models.QaCheck
		var issues []byte
		if err := rows.Scan(&check.PostID, &check.DraftVersion, &check.Type,
			&check.Status, &check.Score, &issues, &check.CheckedAt); err != nil {
			return nil, fmt.Errorf("scan qa check: %w", err)
		}
		if len(issues) > 0 {
			if err := json.Unmarshal(issues, &check.Issues); err != nil {
				return nil, fmt.Errorf("unmarshal issues: %w", err)
			}
		}
		checks = append(checks, &check)
	}
	return checks, rows.Err()
}

const publishColumns = "id, post_id, site_id, status, published_url, published_at, error, created_at, updated_at"

func scanPublish(row pgx.Row) (*models.Publish, error) {
	var pub models.Publish
	err := row.Scan(&pub.ID, &pub.PostID, &pub.SiteID, &pub.Status,
		&pub.PublishedURL, &pub.PublishedAt, &pub.Error, &pub.CreatedAt, &pub.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan publish: %w", err)
	}
	return &pub, nil
}

func (s *PostgresStore) CreatePublish(ctx context.Context, pub *models.Publish) error {
	query, args, err := s.sb.Insert("publishes").
		Columns("id", "post_id", "site_id", "status", "published_url", "published_at", "error", "created_at", "updated_at").
		Values(pub.ID, pub.PostID, pub.SiteID, pub.Status, pub.PublishedURL, pub.PublishedAt, pub.Error, pub.CreatedAt, pub.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert publish: %w", err)
	}

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert publish: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPublish(ctx context.Context, id string) (*models.Publish, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+publishColumns+" FROM publishes WHERE id = $1", id)
	return scanPublish(row)
}

func (s *PostgresStore) UpdatePublish(ctx context.Context, pub *models.Publish) error {
	query, args, err := s.sb.Update("publishes").
		Set("status", pub.Status).
		Set("published_url", pub.PublishedURL).
		Set("published_at", pub.PublishedAt).
		Set("error", pub.Error).
		Set("updated_at", pub.UpdatedAt).
		Where(sq.Eq{"id": pub.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update publish: %w", err)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update publish: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListPublishes(ctx context.Context, postID string) ([]*models.Publish, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+publishColumns+" FROM publishes WHERE post_id = $1 ORDER BY created_at", postID)
	if err != nil {
		return nil, fmt.Errorf("list publishes: %w", err)
	}
	defer rows.Close()

	pubs := []*models.Publish{}
	for rows.Next() {
		pub, err := scanPublish(rows)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, pub)
	}
	return pubs, rows.Err()
}

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/inklift/inklift/internal/models"
)

// MemoryStore is an in-process Store used in tests and local runs
// without Postgres. A single mutex makes every method transactional.
type MemoryStore struct {
	mu        sync.RWMutex
	posts     map[string]*models.Post
	outlines  map[string]*models.Outline
	drafts    map[string][]*models.Draft
	qaChecks  map[string]*models.QaCheck
	publishes map[string]*models.Publish
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		posts:     make(map[string]*models.Post),
		outlines:  make(map[string]*models.Outline),
		drafts:    make(map[string][]*models.Draft),
		qaChecks:  make(map[string]*models.QaCheck),
		publishes: make(map[string]*models.Publish),
	}
}

func qaKey(postID string, draftVersion int, checkType models.CheckType) string {
	return fmt.Sprintf("%s:%d:%s", postID, draftVersion, checkType)
}

func (m *MemoryStore) CreatePost(ctx context.Context, post *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.posts[post.ID]; exists {
		return fmt.Errorf("post %s already exists", post.ID)
	}
	m.posts[post.ID] = clonePost(post)
	return nil
}

func (m *MemoryStore) GetPost(ctx context.Context, id string) (*models.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	post, ok := m.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePost(post), nil
}

func (m *MemoryStore) ListPosts(ctx context.Context, orgID string, page, pageSize int) ([]*models.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var posts []*models.Post
	for _, p := range m.posts {
		if orgID == "" || p.OrgID == orgID {
			posts = append(posts, clonePost(p))
		}
	}
	sort.Slice(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})

	start := (page - 1) * pageSize
	if start >= len(posts) {
		return []*models.Post{}, nil
	}
	end := start + pageSize
	if end > len(posts) {
		end = len(posts)
	}
	return posts[start:end], nil
}

func (m *MemoryStore) UpdatePostStatus(ctx context.Context, id string, from models.Status, version int64, to models.Status, lockOutline bool) (*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	post, ok := m.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if post.Status != from || post.Version != version {
		return nil, ErrVersionConflict
	}

	post.Status = to
	post.Version++
	post.UpdatedAt = time.Now().UTC()

	if lockOutline {
		if outline, ok := m.outlines[id]; ok {
			outline.Locked = true
			outline.UpdatedAt = post.UpdatedAt
		}
	}
	return clonePost(post), nil
}

func (m *MemoryStore) DeletePost(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.posts[id]; !ok {
		return ErrNotFound
	}
	delete(m.posts, id)
	delete(m.outlines, id)
	delete(m.drafts, id)
	for key, check := range m.qaChecks {
		if check.PostID == id {
			delete(m.qaChecks, key)
		}
	}
	for key, pub := range m.publishes {
		if pub.PostID == id {
			delete(m.publishes, key)
		}
	}
	return nil
}

func (m *MemoryStore) SaveOutline(ctx context.Context, outline *models.Outline) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := cloneOutline(outline)
	now := time.Now().UTC()
	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = now
	}
	saved.UpdatedAt = now
	m.outlines[outline.PostID] = saved

	outline.CreatedAt = saved.CreatedAt
	outline.UpdatedAt = saved.UpdatedAt
	return nil
}

func (m *MemoryStore) GetOutline(ctx context.Context, postID string) (*models.Outline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	outline, ok := m.outlines[postID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOutline(outline), nil
}

func (m *MemoryStore) CreateDraft(ctx context.Context, postID, content string, wordCount int, citations []models.Citation) (*models.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	post, ok := m.posts[postID]
	if !ok {
		return nil, ErrNotFound
	}

	version := 1
	for _, d := range m.drafts[postID] {
		if d.Version >= version {
			version = d.Version + 1
		}
		d.IsCurrent = false
	}

	draft := &models.Draft{
		PostID:    postID,
		Version:   version,
		Content:   content,
		WordCount: wordCount,
		IsCurrent: true,
		Citations: append([]models.Citation(nil), citations...),
		CreatedAt: time.Now().UTC(),
	}
	m.drafts[postID] = append(m.drafts[postID], draft)

	post.WordCount = wordCount
	post.UpdatedAt = draft.CreatedAt

	return cloneDraft(draft), nil
}

func (m *MemoryStore) GetCurrentDraft(ctx context.Context, postID string) (*models.Draft, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, d := range m.drafts[postID] {
		if d.IsCurrent {
			return cloneDraft(d), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListDrafts(ctx context.Context, postID string) ([]*models.Draft, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	drafts := make([]*models.Draft, 0, len(m.drafts[postID]))
	for _, d := range m.drafts[postID] {
		drafts = append(drafts, cloneDraft(d))
	}
	sort.Slice(drafts, func(i, j int) bool {
		return drafts[i].Version < drafts[j].Version
	})
	return drafts, nil
}

func (m *MemoryStore) UpsertQaCheck(ctx context.Context, check *models.QaCheck) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.qaChecks[qaKey(check.PostID, check.DraftVersion, check.Type)] = cloneQaCheck(check)
	return nil
}

func (m *MemoryStore) ListQaChecks(ctx context.Context, postID string, draftVersion int) ([]*models.QaCheck, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var checks []*models.QaCheck
	for _, c := range m.qaChecks {
		if c.PostID == postID && c.DraftVersion == draftVersion {
			checks = append(checks, cloneQaCheck(c))
		}
	}
	sort.Slice(checks, func(i, j int) bool {
		return checks[i].Type < checks[j].Type
	})
	return checks, nil
}

func (m *MemoryStore) CreatePublish(ctx context.Context, pub *models.Publish) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.publishes[pub.ID]; exists {
		return fmt.Errorf("publish %s already exists", pub.ID)
	}
	m.publishes[pub.ID] = clonePublish(pub)
	return nil
}

func (m *MemoryStore) GetPublish(ctx context.Context, id string) (*models.Publish, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pub, ok := m.publishes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePublish(pub), nil
}

func (m *MemoryStore) UpdatePublish(ctx context.Context, pub *models.Publish) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.publishes[pub.ID]; !ok {
		return ErrNotFound
	}
	m.publishes[pub.ID] = clonePublish(pub)
	return nil
}

func (m *MemoryStore) ListPublishes(ctx context.Context, postID string) ([]*models.Publish, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pubs []*models.Publish
	for _, p := range m.publishes {
		if p.PostID == postID {
			pubs = append(pubs, clonePublish(p))
		}
	}
	sort.Slice(pubs, func(i, j int) bool {
		return pubs[i].CreatedAt.Before(pubs[j].CreatedAt)
	})
	return pubs, nil
}

func clonePost(p *models.Post) *models.Post {
	out := *p
	if p.SeoScore != nil {
		score := *p.SeoScore
		out.SeoScore = &score
	}
	return &out
}

func cloneOutline(o *models.Outline) *models.Outline {
	out := *o
	out.Sections = make([]models.OutlineSection, len(o.Sections))
	for i, s := range o.Sections {
		out.Sections[i] = s
		out.Sections[i].Keywords = append([]string(nil), s.Keywords...)
	}
	return &out
}

func cloneDraft(d *models.Draft) *models.Draft {
	out := *d
	out.Citations = append([]models.Citation(nil), d.Citations...)
	return &out
}

func cloneQaCheck(c *models.QaCheck) *models.QaCheck {
	out := *c
	out.Issues = append([]models.QaIssue(nil), c.Issues...)
	return &out
}

func clonePublish(p *models.Publish) *models.Publish {
	out := *p
	if p.PublishedAt != nil {
		at := *p.PublishedAt
		out.PublishedAt = &at
	}
	return &out
}

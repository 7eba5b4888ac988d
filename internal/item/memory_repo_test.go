package item

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/souhyou/server/internal/model"
	"github.com/souhyou/server/internal/repository"
)

// memoryItemRepo はテスト用のインメモリItemRepository。
// パスの一意性・バージョン比較・配下の書き換えをPostgreSQL実装と同じ規則で行う。
type memoryItemRepo struct {
	mu    sync.Mutex
	items map[string]*model.Item
	clock time.Time

	findCalls   int
	updateCalls int
	// beforeUpdate はUpdateのバージョン比較直前に呼ばれる。競合の再現に使う。
	beforeUpdate func(r *memoryItemRepo)
	lastLimit    int
}

func newMemoryItemRepo() *memoryItemRepo {
	return &memoryItemRepo{
		items: make(map[string]*model.Item),
		clock: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *memoryItemRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *memoryItemRepo) FindByID(_ context.Context, ownerID, id string) (*model.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findCalls++
	it, ok := r.items[id]
	if !ok || it.OwnerID != ownerID {
		return nil, nil
	}
	return it.Clone(), nil
}

func (r *memoryItemRepo) FindByPath(_ context.Context, ownerID, path string) (*model.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.items {
		if it.OwnerID == ownerID && it.Path == path {
			return it.Clone(), nil
		}
	}
	return nil, nil
}

func (r *memoryItemRepo) ListChildren(_ context.Context, ownerID string, parentID *string) ([]model.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.Item{}
	for _, it := range r.items {
		if it.OwnerID != ownerID {
			continue
		}
		if (parentID == nil && it.ParentID == nil) || (parentID != nil && it.ParentID != nil && *it.ParentID == *parentID) {
			out = append(out, *it.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *memoryItemRepo) ListRecentMemos(_ context.Context, ownerID string, limit int) ([]model.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastLimit = limit
	out := []model.Item{}
	for _, it := range r.items {
		if it.OwnerID == ownerID && it.IsMemo() {
			out = append(out, *it.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryItemRepo) pathTaken(ownerID, path, exceptID string) bool {
	for _, it := range r.items {
		if it.OwnerID == ownerID && it.Path == path && it.ID != exceptID {
			return true
		}
	}
	return false
}

func (r *memoryItemRepo) Create(_ context.Context, item *model.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pathTaken(item.OwnerID, item.Path, "") {
		return repository.ErrPathExists
	}
	now := r.tick()
	item.Version = 1
	item.CreatedAt = now
	item.UpdatedAt = now
	r.items[item.ID] = item.Clone()
	return nil
}

func (r *memoryItemRepo) Update(_ context.Context, item *model.Item, move *repository.SubtreeMove) error {
	if hook := r.beforeUpdate; hook != nil {
		hook(r)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateCalls++

	stored, ok := r.items[item.ID]
	if !ok || stored.OwnerID != item.OwnerID || stored.Version != item.Version {
		return repository.ErrVersionConflict
	}
	if r.pathTaken(item.OwnerID, item.Path, item.ID) {
		return repository.ErrPathExists
	}

	now := r.tick()
	updated := item.Clone()
	updated.Version = stored.Version + 1
	updated.UpdatedAt = now

	if move != nil {
		rewritten := map[string]*model.Item{}
		for id, it := range r.items {
			pos := indexOf(it.Ancestors, item.ID)
			if it.OwnerID != item.OwnerID || pos < 0 {
				continue
			}
			c := it.Clone()
			newPath, ok := rebasePath(c.Path, move.OldPath, move.NewPath)
			if ok {
				c.Path = newPath
			}
			c.Ancestors = append(append([]string{}, move.NewAncestors...), it.Ancestors[pos:]...)
			c.Depth = len(c.Ancestors)
			c.Version++
			c.UpdatedAt = now
			rewritten[id] = c
		}
		for id, c := range rewritten {
			for otherID, other := range r.items {
				if otherID != id && otherID != item.ID && rewritten[otherID] == nil &&
					other.OwnerID == c.OwnerID && other.Path == c.Path {
					return repository.ErrPathExists
				}
			}
		}
		for id, c := range rewritten {
			r.items[id] = c
		}
	}

	r.items[item.ID] = updated
	item.Version = updated.Version
	item.UpdatedAt = now
	return nil
}

func (r *memoryItemRepo) Delete(_ context.Context, ownerID, id string) (*model.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok || it.OwnerID != ownerID {
		return nil, nil
	}
	delete(r.items, id)
	return it, nil
}

func (r *memoryItemRepo) DeleteDescendants(_ context.Context, ownerID, id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for key, it := range r.items {
		if it.OwnerID == ownerID && indexOf(it.Ancestors, id) >= 0 {
			delete(r.items, key)
			n++
		}
	}
	return n, nil
}

// bump は他のリクエストによる更新を模してバージョンを進める。
func (r *memoryItemRepo) bump(id string, mutate func(it *model.Item)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it := r.items[id]
	mutate(it)
	it.Version++
}

func indexOf(ss []string, s string) int {
	for i, v := range ss {
		if v == s {
			return i
		}
	}
	return -1
}

var _ repository.ItemRepository = (*memoryItemRepo)(nil)

package item

import (
	"context"
	"log/slog"

	"github.com/souhyou/server/internal/model"
	"github.com/souhyou/server/internal/repository"
)

// CascadePolicy はアイテム削除後に配下のアイテムをどう扱うかを決める。
type CascadePolicy interface {
	AfterDelete(ctx context.Context, deleted *model.Item) error
}

// NoCascade は配下のアイテムを残す。残った配下はworkerの孤児掃除で削除される。
type NoCascade struct{}

// AfterDelete は何もしない。
func (NoCascade) AfterDelete(context.Context, *model.Item) error { return nil }

// DescendantCascade はフォルダ削除時に祖先列にそのフォルダを含む全アイテムを削除する。
type DescendantCascade struct {
	Repo repository.ItemRepository
}

// AfterDelete は削除されたフォルダの配下を削除する。
func (c DescendantCascade) AfterDelete(ctx context.Context, deleted *model.Item) error {
	if !deleted.IsFolder() {
		return nil
	}
	n, err := c.Repo.DeleteDescendants(ctx, deleted.OwnerID, deleted.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("配下アイテムを削除",
			"item_id", deleted.ID,
			"descendants", n,
		)
	}
	return nil
}

// NewCascadePolicy は設定値に応じたCascadePolicyを返す。
func NewCascadePolicy(cascade bool, repo repository.ItemRepository) CascadePolicy {
	if cascade {
		return DescendantCascade{Repo: repo}
	}
	return NoCascade{}
}

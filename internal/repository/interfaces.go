// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/souhyou/server/internal/model"
)

var (
	// ErrPathExists は同一オーナー内でパスが重複した場合に返される。
	ErrPathExists = errors.New("item path already exists")
	// ErrVersionConflict は楽観的ロックのバージョンが一致しなかった場合に返される。
	ErrVersionConflict = errors.New("item version conflict")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByUID はFirebaseのUIDでユーザーを取得する。見つからない場合はnilを返す。
	FindByUID(ctx context.Context, uid string) (*model.User, error)

	// Upsert はUIDをキーにユーザーを作成または更新する。
	// 空でないemail・name・photoURLのみ既存の値を上書きする。
	Upsert(ctx context.Context, identity *model.Identity) (*model.User, error)

	// UpdateProfile はプロフィールを更新する。見つからない場合はnilを返す。
	UpdateProfile(ctx context.Context, uid string, update model.ProfileUpdate) (*model.User, error)
}

// SubtreeMove はフォルダの改名・移動時に配下へ反映する変更を表す。
// 配下のアイテムはパスの接頭辞と祖先列の先頭部分が置き換えられる。
type SubtreeMove struct {
	OldPath      string
	NewPath      string
	NewAncestors []string // 移動対象自身の新しい祖先列
}

// ItemRepository はフォルダ・メモの永続化インターフェース。
// 全ての操作はオーナーIDで絞り込まれ、他ユーザーのアイテムは存在しないものとして扱う。
type ItemRepository interface {
	// FindByID は指定IDのアイテムを取得する。見つからない場合や不正なIDの場合はnilを返す。
	FindByID(ctx context.Context, ownerID, id string) (*model.Item, error)

	// FindByPath はパスが完全一致するアイテムを取得する。見つからない場合はnilを返す。
	FindByPath(ctx context.Context, ownerID, path string) (*model.Item, error)

	// ListChildren は親直下のアイテムを種別昇順・作成日時降順で返す。
	// parentIDがnilの場合はルート直下を返す。
	ListChildren(ctx context.Context, ownerID string, parentID *string) ([]model.Item, error)

	// ListRecentMemos はメモを更新日時降順で最大limit件返す。
	ListRecentMemos(ctx context.Context, ownerID string, limit int) ([]model.Item, error)

	// Create はアイテムを作成する。パスが重複する場合はErrPathExistsを返す。
	// 成功時はVersionと作成・更新日時が設定される。
	Create(ctx context.Context, item *model.Item) error

	// Update はitem.Versionが保存済みの値と一致する場合のみ更新する。
	// 一致しない場合はErrVersionConflict、パスが重複する場合はErrPathExistsを返す。
	// moveが指定された場合は配下のアイテムも同一トランザクションで書き換える。
	Update(ctx context.Context, item *model.Item, move *SubtreeMove) error

	// Delete はアイテムを削除して削除前の内容を返す。見つからない場合はnilを返す。
	// 配下のアイテムは削除しない。
	Delete(ctx context.Context, ownerID, id string) (*model.Item, error)

	// DeleteDescendants は祖先に指定IDを含むアイテムを全て削除し、削除件数を返す。
	DeleteDescendants(ctx context.Context, ownerID, id string) (int64, error)
}

package graph

import (
	"context"
	"time"

	"github.com/souhyou/server/internal/item"
	"github.com/souhyou/server/internal/metrics"
	"github.com/souhyou/server/internal/middleware"
	"github.com/souhyou/server/internal/model"
)

// ItemService はアイテム操作のサービスインターフェース。
// item.Serviceが実装する。
type ItemService interface {
	MyItems(ctx context.Context, ownerID string, parentID *string) ([]model.Item, error)
	Item(ctx context.Context, ownerID, id string) (*model.Item, error)
	ItemByPath(ctx context.Context, ownerID, path string) (*model.Item, error)
	MyRecentMemos(ctx context.Context, ownerID string, limit *int) ([]model.Item, error)
	CreateFolder(ctx context.Context, ownerID string, in item.CreateInput) (*model.Item, error)
	CreateMemo(ctx context.Context, ownerID string, in item.CreateInput) (*model.Item, error)
	SetHorseProp(ctx context.Context, ownerID, memoID string, index int, name, mark *string) (*model.Item, error)
	SetHorseFieldValue(ctx context.Context, ownerID, memoID string, index int, label, fieldType string, value interface{}) (*model.Item, error)
	AddFieldToMemo(ctx context.Context, ownerID, memoID, label, fieldType string) (*model.Item, error)
	UpdateItem(ctx context.Context, ownerID string, in item.UpdateInput) (*item.UpdateResult, error)
	DeleteItem(ctx context.Context, ownerID, id string) (*item.DeleteResult, error)
}

// UserService はユーザープロフィールのサービスインターフェース。
// user.Serviceが実装する。
type UserService interface {
	Me(ctx context.Context, uid string) (*model.User, error)
	UpdateMe(ctx context.Context, uid string, update model.ProfileUpdate) (*model.User, error)
}

// Resolver はQuery・Mutationのルートリゾルバー。
type Resolver struct {
	items   ItemService
	users   UserService
	metrics metrics.MetricsCollector
}

// NewResolver はResolverを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewResolver(items ItemService, users UserService, collector metrics.MetricsCollector) *Resolver {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Resolver{
		items:   items,
		users:   users,
		metrics: collector,
	}
}

// requireUserID は認証主体に対応するユーザーIDを返す。
// 未認証はUNAUTHENTICATED、ユーザーが存在しない場合はUSER_NOT_FOUNDを返す。
func (r *Resolver) requireUserID(ctx context.Context) (string, error) {
	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		return "", model.NewUnauthenticatedError()
	}
	user, err := r.users.Me(ctx, identity.UID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", model.NewUserNotFoundError()
	}
	return user.ID, nil
}

// finish は操作の結果をメトリクスに記録し、エラーをGraphQLエラーに変換する。
// リゾルバーの名前付き戻り値errに対してdeferで呼び出す。
func (r *Resolver) finish(ctx context.Context, operation string, start time.Time, errp *error) {
	r.metrics.RecordOperationLatency(operation, time.Since(start))
	if *errp != nil {
		r.metrics.RecordOperation(operation, metrics.OutcomeError)
		*errp = toGraphQLError(ctx, operation, *errp)
		return
	}
	r.metrics.RecordOperation(operation, metrics.OutcomeSuccess)
}

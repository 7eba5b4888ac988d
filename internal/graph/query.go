package graph

import (
	"context"
	"time"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/souhyou/server/internal/middleware"
	"github.com/souhyou/server/internal/model"
)

// Me はログインユーザーを返す。未認証の場合はUNAUTHENTICATED。
func (r *Resolver) Me(ctx context.Context) (res *userResolver, err error) {
	defer r.finish(ctx, "me", time.Now(), &err)

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		return nil, model.NewUnauthenticatedError()
	}
	user, err := r.users.Me(ctx, identity.UID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}
	return &userResolver{user: user}, nil
}

// MyItems は親直下のアイテムを返す。parentIdが未指定の場合はルート直下。
func (r *Resolver) MyItems(ctx context.Context, args struct{ ParentID *graphql.ID }) (res []*itemResolver, err error) {
	defer r.finish(ctx, "myItems", time.Now(), &err)

	ownerID, err := r.requireUserID(ctx)
	if err != nil {
		return nil, err
	}
	items, err := r.items.MyItems(ctx, ownerID, idToString(args.ParentID))
	if err != nil {
		return nil, err
	}
	return newItemResolvers(items), nil
}

// Item はIDでアイテムを返す。見つからない場合はnull。
func (r *Resolver) Item(ctx context.Context, args struct{ ID graphql.ID }) (res *itemResolver, err error) {
	defer r.finish(ctx, "item", time.Now(), &err)

	ownerID, err := r.requireUserID(ctx)
	if err != nil {
		return nil, err
	}
	it, err := r.items.Item(ctx, ownerID, string(args.ID))
	if err != nil {
		return nil, err
	}
	return newItemResolver(it), nil
}

// ItemByPath はパスでアイテムを返す。見つからない場合はnull。
func (r *Resolver) ItemByPath(ctx context.Context, args struct{ Path string }) (res *itemResolver, err error) {
	defer r.finish(ctx, "itemByPath", time.Now(), &err)

	ownerID, err := r.requireUserID(ctx)
	if err != nil {
		return nil, err
	}
	it, err := r.items.ItemByPath(ctx, ownerID, args.Path)
	if err != nil {
		return nil, err
	}
	return newItemResolver(it), nil
}

// MyRecentMemos は更新日時が新しい順にメモを返す。
func (r *Resolver) MyRecentMemos(ctx context.Context, args struct{ Limit *int32 }) (res []*itemResolver, err error) {
	defer r.finish(ctx, "myRecentMemos", time.Now(), &err)

	ownerID, err := r.requireUserID(ctx)
	if err != nil {
		return nil, err
	}
	var limit *int
	if args.Limit != nil {
		n := int(*args.Limit)
		limit = &n
	}
	items, err := r.items.MyRecentMemos(ctx, ownerID, limit)
	if err != nil {
		return nil, err
	}
	return newItemResolvers(items), nil
}

// Health は認証なしで "ok" を返す。
func (r *Resolver) Health() string {
	return "ok"
}

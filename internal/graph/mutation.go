package graph

import (
	"context"
	"time"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/souhyou/server/internal/item"
	"github.com/souhyou/server/internal/middleware"
	"github.com/souhyou/server/internal/model"
)

// --- 入力型 ---

type createFolderInput struct {
	Name     string
	ParentID *graphql.ID
}

type fieldInput struct {
	Label *string
	Type  *string
	Value *JSON
}

type horseInput struct {
	Name           *string
	PredictionMark *string
	Fields         *[]fieldInput
}

type createMemoInput struct {
	Name     string
	ParentID *graphql.ID
	Horses   *[]horseInput
}

type updateItemInput struct {
	ID       graphql.ID
	Name     *string
	ParentID nullID
	Horses   *[]horseInput
}

type updateMeInput struct {
	DisplayName *string
	PhotoURL    *string
}

// toHorseInputs はGraphQLの入力をサービス層の入力に変換する。
func toHorseInputs(in *[]horseInput) []item.HorseInput {
	if in == nil {
		return nil
	}
	out := make([]item.HorseInput, 0, len(*in))
	for _, h := range *in {
		hi := item.HorseInput{
			Name:           h.Name,
			PredictionMark: h.PredictionMark,
		}
		if h.Fields != nil {
			for _, f := range *h.Fields {
				hi.Fields = append(hi.Fields, item.FieldInput{
					Label: f.Label,
					Type:  f.Type,
					Value: jsonValue(f.Value),
				})
			}
		}
		out = append(out, hi)
	}
	return out
}

func jsonValue(j *JSON) interface{} {
	if j == nil {
		return nil
	}
	return j.Value
}

// --- Mutation ---

// CreateFolder はフォルダを作成する。
func (r *Resolver) CreateFolder(ctx context.Context, args struct{ Input createFolderInput }) (res *itemResolver, err error) {
	defer r.finish(ctx, "createFolder", time.Now(), &err)

	ownerID, err := r.requireUserID(ctx)
	if err != nil {
		return nil, err
	}
	it, err := r.items.CreateFolder(ctx, ownerID, item.CreateInput{
		Name:     args.Input.Name,
		ParentID: idToString(args.Input.ParentID),
	})
	if err != nil {
		return nil, err
	}
	r.metrics.RecordItemCreated(string(it.Type))
	return newItemResolver(it), nil
}

// CreateMemo は馬一覧を含むメモを作成する。
func (r *Resolver) CreateMemo(ctx context.Context, args struct{ Input createMemoInput }) (res *itemResolver, err error) {
	defer r.finish(ctx, "createMemo", time.Now(), &err)

	ownerID, err := r.requireUserID(ctx)
	if err != nil {
		return nil, err
	}
	it, err := r.items.CreateMemo(ctx, ownerID, item.CreateInput{
		Name:     args.Input.Name,
		ParentID: idToString(args.Input.ParentID),
		Horses:   toHorseInputs(args.Input.Horses),
	})
	if err != nil {
		return nil, err
	}
	r.metrics.RecordItemCreated(string(it.Type))
	return newItemResolver(it), nil
}

// UpdateItem は名前・親・馬一覧を更新する。
// 見つからない場合はsuccess=falseを返す。
func (r *Resolver) UpdateItem(ctx context.Context, args struct{ Input updateItemInput }) (res *updateItemResult, err error) {
	defer r.finish(ctx, "updateItem", time.Now(), &err)

	ownerID, err := r.requireUserID(ctx)
	if err != nil {
		return nil, err
	}
	in := item.UpdateInput{
		ID:            string(args.Input.ID),
		Name:          args.Input.Name,
		ParentSet:     args.Input.ParentID.Set,
		ParentID:      idToString(args.Input.ParentID.Value),
		Horses:        toHorseInputs(args.Input.Horses),
		ReplaceHorses: args.Input.Horses != nil,
	}
	result, err := r.items.UpdateItem(ctx, ownerID, in)
	if err != nil {
		return nil, err
	}
	return &updateItemResult{success: result.Success, item: newItemResolver(result.Item)}, nil
}

// DeleteItem はアイテムを削除する。
// 見つからない場合はsuccess=falseを返す。
func (r *Resolver) DeleteItem(ctx context.Context, args struct{ ID graphql.ID }) (res *deleteItemResult, err error) {
	defer r.finish(ctx, "deleteItem", time.Now(), &err)

	ownerID, err := r.requireUserID(ctx)
	if err != nil {
		return nil, err
	}
	result, err := r.items.DeleteItem(ctx, ownerID, string(args.ID))
	if err != nil {
		return nil, err
	}
	return &deleteItemResult{
		success:   result.Success,
		deletedID: graphql.ID(result.DeletedID),
		item:      newItemResolver(result.Item),
	}, nil
}

// SetHorseProp は馬の名前・予想印を更新する。
func (r *Resolver) SetHorseProp(ctx context.Context, args struct {
	MemoID         graphql.ID
	Index          int32
	Name           *string
	PredictionMark *string
}) (res *itemResolver, err error) {
	defer r.finish(ctx, "setHorseProp", time.Now(), &err)

	ownerID, err := r.requireUserID(ctx)
	if err != nil {
		return nil, err
	}
	it, err := r.items.SetHorseProp(ctx, ownerID, string(args.MemoID), int(args.Index), args.Name, args.PredictionMark)
	if err != nil {
		return nil, err
	}
	return newItemResolver(it), nil
}

// SetHorseFieldValue は馬の項目値を設定する。
func (r *Resolver) SetHorseFieldValue(ctx context.Context, args struct {
	MemoID graphql.ID
	Index  int32
	Label  string
	Type   string
	Value  *JSON
}) (res *itemResolver, err error) {
	defer r.finish(ctx, "setHorseFieldValue", time.Now(), &err)

	ownerID, err := r.requireUserID(ctx)
	if err != nil {
		return nil, err
	}
	it, err := r.items.SetHorseFieldValue(ctx, ownerID, string(args.MemoID), int(args.Index), args.Label, args.Type, jsonValue(args.Value))
	if err != nil {
		return nil, err
	}
	return newItemResolver(it), nil
}

// AddFieldToMemo はメモの全ての馬に項目を追加する。
func (r *Resolver) AddFieldToMemo(ctx context.Context, args struct {
	MemoID graphql.ID
	Label  string
	Type   string
}) (res *itemResolver, err error) {
	defer r.finish(ctx, "addFieldToMemo", time.Now(), &err)

	ownerID, err := r.requireUserID(ctx)
	if err != nil {
		return nil, err
	}
	it, err := r.items.AddFieldToMemo(ctx, ownerID, string(args.MemoID), args.Label, args.Type)
	if err != nil {
		return nil, err
	}
	return newItemResolver(it), nil
}

// UpdateMe はログインユーザーのプロフィールを更新する。
func (r *Resolver) UpdateMe(ctx context.Context, args struct{ Input updateMeInput }) (res *userResolver, err error) {
	defer r.finish(ctx, "updateMe", time.Now(), &err)

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		return nil, model.NewUnauthenticatedError()
	}
	user, err := r.users.UpdateMe(ctx, identity.UID, model.ProfileUpdate{
		DisplayName: args.Input.DisplayName,
		PhotoURL:    args.Input.PhotoURL,
	})
	if err != nil {
		return nil, err
	}
	return &userResolver{user: user}, nil
}

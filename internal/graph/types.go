package graph

import (
	"time"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/souhyou/server/internal/model"
)

// timeLayout はミリ秒付きのISO 8601形式。
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func idToString(id *graphql.ID) *string {
	if id == nil {
		return nil
	}
	s := string(*id)
	return &s
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// --- Item ---

type itemResolver struct {
	item *model.Item
}

func newItemResolver(it *model.Item) *itemResolver {
	if it == nil {
		return nil
	}
	return &itemResolver{item: it}
}

func newItemResolvers(items []model.Item) []*itemResolver {
	out := make([]*itemResolver, len(items))
	for i := range items {
		out[i] = &itemResolver{item: &items[i]}
	}
	return out
}

func (r *itemResolver) ID() graphql.ID { return graphql.ID(r.item.ID) }
func (r *itemResolver) Type() string   { return string(r.item.Type) }
func (r *itemResolver) Name() string   { return r.item.Name }
func (r *itemResolver) Path() string   { return r.item.Path }
func (r *itemResolver) Depth() int32   { return int32(r.item.Depth) }

func (r *itemResolver) ParentID() *graphql.ID {
	if r.item.ParentID == nil {
		return nil
	}
	id := graphql.ID(*r.item.ParentID)
	return &id
}

func (r *itemResolver) Ancestors() []graphql.ID {
	out := make([]graphql.ID, len(r.item.Ancestors))
	for i, a := range r.item.Ancestors {
		out[i] = graphql.ID(a)
	}
	return out
}

func (r *itemResolver) Horses() []*horseResolver {
	out := make([]*horseResolver, len(r.item.Horses))
	for i := range r.item.Horses {
		out[i] = &horseResolver{horse: &r.item.Horses[i]}
	}
	return out
}

func (r *itemResolver) CreatedAt() string { return formatTime(r.item.CreatedAt) }
func (r *itemResolver) UpdatedAt() string { return formatTime(r.item.UpdatedAt) }

// --- Horse / Field ---

type horseResolver struct {
	horse *model.Horse
}

func (r *horseResolver) Name() string           { return r.horse.Name }
func (r *horseResolver) PredictionMark() string { return string(r.horse.PredictionMark) }

func (r *horseResolver) Fields() []*fieldResolver {
	out := make([]*fieldResolver, len(r.horse.Fields))
	for i := range r.horse.Fields {
		out[i] = &fieldResolver{field: &r.horse.Fields[i]}
	}
	return out
}

type fieldResolver struct {
	field *model.Field
}

func (r *fieldResolver) Label() string { return r.field.Label }
func (r *fieldResolver) Type() string  { return string(r.field.Type) }

func (r *fieldResolver) Value() *JSON {
	if r.field.Value.IsNull() {
		return nil
	}
	return &JSON{Value: r.field.Value.Interface()}
}

// --- User ---

type userResolver struct {
	user *model.User
}

func (r *userResolver) ID() graphql.ID    { return graphql.ID(r.user.ID) }
func (r *userResolver) UID() string       { return r.user.UID }
func (r *userResolver) Email() *string    { return optionalString(r.user.Email) }
func (r *userResolver) Name() *string     { return optionalString(r.user.Name) }
func (r *userResolver) PhotoURL() *string { return optionalString(r.user.PhotoURL) }

func (r *userResolver) CreatedAt() *string {
	if r.user.CreatedAt.IsZero() {
		return nil
	}
	s := formatTime(r.user.CreatedAt)
	return &s
}

func (r *userResolver) UpdatedAt() *string {
	if r.user.UpdatedAt.IsZero() {
		return nil
	}
	s := formatTime(r.user.UpdatedAt)
	return &s
}

// --- 結果型 ---

type updateItemResult struct {
	success bool
	item    *itemResolver
}

func (r *updateItemResult) Success() bool              { return r.success }
func (r *updateItemResult) UpdatedItem() *itemResolver { return r.item }

type deleteItemResult struct {
	success   bool
	deletedID graphql.ID
	item      *itemResolver
}

func (r *deleteItemResult) Success() bool              { return r.success }
func (r *deleteItemResult) DeletedID() graphql.ID      { return r.deletedID }
func (r *deleteItemResult) DeletedItem() *itemResolver { return r.item }

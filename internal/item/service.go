// Package item はフォルダ・メモのツリー管理機能を提供する。
package item

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/souhyou/server/internal/model"
	"github.com/souhyou/server/internal/repository"
	"github.com/souhyou/server/internal/security"
)

// 定数
const (
	defaultRecentLimit = 20
	maxRecentLimit     = 100
	// maxSaveAttempts は楽観的ロック競合時の最大試行回数。
	maxSaveAttempts = 3
)

// Service はアイテムの参照・作成・更新・削除を提供する。
// 全ての操作はオーナーのユーザーIDを受け取り、そのユーザーのアイテムのみを扱う。
type Service struct {
	repo      repository.ItemRepository
	sanitizer security.TextSanitizer
	cascade   CascadePolicy
}

// NewService はServiceの新しいインスタンスを生成する。
// cascadeがnilの場合は配下を削除しない。
func NewService(
	repo repository.ItemRepository,
	sanitizer security.TextSanitizer,
	cascade CascadePolicy,
) *Service {
	if sanitizer == nil {
		sanitizer = security.NopSanitizer{}
	}
	if cascade == nil {
		cascade = NoCascade{}
	}
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		cascade:   cascade,
	}
}

// CreateInput はフォルダ・メモ作成の入力。
type CreateInput struct {
	Name     string
	ParentID *string
	Horses   []HorseInput
}

// UpdateInput はupdateItemの入力。
// ParentSetがtrueでParentIDがnilの場合はルートへ移動する。
// ReplaceHorsesがtrueの場合のみ、メモの馬一覧をHorsesで置き換える。
type UpdateInput struct {
	ID            string
	Name          *string
	ParentID      *string
	ParentSet     bool
	Horses        []HorseInput
	ReplaceHorses bool
}

// UpdateResult はupdateItemの結果。
type UpdateResult struct {
	Success bool
	Item    *model.Item
}

// DeleteResult はdeleteItemの結果。
type DeleteResult struct {
	Success   bool
	DeletedID string
	Item      *model.Item
}

// --- クエリ ---

// MyItems は親直下のアイテム一覧を返す。parentIDがnilまたは空の場合はルート直下。
func (s *Service) MyItems(ctx context.Context, ownerID string, parentID *string) ([]model.Item, error) {
	return s.repo.ListChildren(ctx, ownerID, emptyToNil(parentID))
}

// Item は指定IDのアイテムを返す。見つからない場合や他人のアイテムの場合はnilを返す。
func (s *Service) Item(ctx context.Context, ownerID, id string) (*model.Item, error) {
	return s.repo.FindByID(ctx, ownerID, id)
}

// ItemByPath はパスが完全一致するアイテムを返す。見つからない場合はnilを返す。
func (s *Service) ItemByPath(ctx context.Context, ownerID, path string) (*model.Item, error) {
	return s.repo.FindByPath(ctx, ownerID, path)
}

// MyRecentMemos は更新日時が新しい順にメモを返す。
// limitは未指定で20、1〜100の範囲に丸める。
func (s *Service) MyRecentMemos(ctx context.Context, ownerID string, limit *int) ([]model.Item, error) {
	n := defaultRecentLimit
	if limit != nil {
		n = *limit
	}
	if n < 1 {
		n = 1
	}
	if n > maxRecentLimit {
		n = maxRecentLimit
	}
	return s.repo.ListRecentMemos(ctx, ownerID, n)
}

// --- 作成 ---

// CreateFolder はフォルダを作成する。
func (s *Service) CreateFolder(ctx context.Context, ownerID string, in CreateInput) (*model.Item, error) {
	return s.create(ctx, ownerID, model.ItemTypeFolder, in, []model.Horse{})
}

// CreateMemo はメモを作成する。馬一覧は正規化してから保存する。
func (s *Service) CreateMemo(ctx context.Context, ownerID string, in CreateInput) (*model.Item, error) {
	horses, err := normalizeHorses(in.Horses, s.sanitizer)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, ownerID, model.ItemTypeMemo, in, horses)
}

func (s *Service) create(ctx context.Context, ownerID string, typ model.ItemType, in CreateInput, horses []model.Horse) (*model.Item, error) {
	item := &model.Item{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Type:      typ,
		Name:      strings.TrimSpace(in.Name),
		Ancestors: []string{},
		Horses:    horses,
	}

	var parentPath *string
	if parentID := emptyToNil(in.ParentID); parentID != nil {
		parent, err := s.findParentFolder(ctx, ownerID, *parentID)
		if err != nil {
			return nil, err
		}
		item.ParentID = &parent.ID
		item.Ancestors = append(append([]string{}, parent.Ancestors...), parent.ID)
		item.Depth = parent.Depth + 1
		parentPath = &parent.Path
	}
	item.Path = JoinPath(parentPath, in.Name)

	if err := s.repo.Create(ctx, item); err != nil {
		if errors.Is(err, repository.ErrPathExists) {
			return nil, model.NewPathExistsError(item.Path)
		}
		return nil, fmt.Errorf("アイテムの作成に失敗: %w", err)
	}

	slog.Info("アイテムを作成",
		"item_id", item.ID,
		"owner_id", ownerID,
		"type", string(typ),
		"depth", item.Depth,
	)
	return item, nil
}

// findParentFolder は親として指定されたアイテムを取得し、フォルダであることを検証する。
func (s *Service) findParentFolder(ctx context.Context, ownerID, parentID string) (*model.Item, error) {
	parent, err := s.repo.FindByID(ctx, ownerID, parentID)
	if err != nil {
		return nil, fmt.Errorf("親アイテムの取得に失敗: %w", err)
	}
	if parent == nil {
		return nil, model.NewParentNotFoundError(parentID)
	}
	if !parent.IsFolder() {
		return nil, model.NewParentMustBeFolderError()
	}
	return parent, nil
}

// --- 馬・項目の更新 ---

// SetHorseProp は指定インデックスの馬の名前・予想印を更新する。
// どちらも指定されない場合は内容を変えずに保存する。
func (s *Service) SetHorseProp(ctx context.Context, ownerID, memoID string, index int, name, mark *string) (*model.Item, error) {
	if index < 0 {
		return nil, model.NewIndexOutOfRangeError(index)
	}

	return s.modifyMemo(ctx, ownerID, memoID, func(memo *model.Item) error {
		if index >= len(memo.Horses) {
			return model.NewIndexOutOfRangeError(index)
		}
		horse := &memo.Horses[index]
		if name != nil {
			n, err := NormalizeName(name)
			if err != nil {
				return err
			}
			horse.Name = n
		}
		if mark != nil {
			m, err := NormalizeMark(mark)
			if err != nil {
				return err
			}
			horse.PredictionMark = m
		}
		return nil
	})
}

// SetHorseFieldValue は指定インデックスの馬の項目値を設定する。
// 同じ項目名が既にあれば型の一致を確認して値を上書きし、なければ末尾に追加する。
// 項目名の一意性はこの馬の中でのみ確認する。
func (s *Service) SetHorseFieldValue(ctx context.Context, ownerID, memoID string, index int, label, fieldType string, value interface{}) (*model.Item, error) {
	if index < 0 {
		return nil, model.NewIndexOutOfRangeError(index)
	}

	return s.modifyMemo(ctx, ownerID, memoID, func(memo *model.Item) error {
		if index >= len(memo.Horses) {
			return model.NewIndexOutOfRangeError(index)
		}

		normLabel := strings.TrimSpace(label)
		if normLabel == "" {
			return model.NewFieldLabelRequiredError()
		}
		normType, err := NormalizeFieldType(fieldType)
		if err != nil {
			return err
		}

		horse := &memo.Horses[index]
		existing := -1
		for i := range horse.Fields {
			if horse.Fields[i].Label != normLabel {
				continue
			}
			if horse.Fields[i].Type != normType {
				return model.NewFieldTypeMismatchError(normLabel)
			}
			existing = i
			break
		}

		v, err := normalizeValue(normLabel, normType, value, s.sanitizer)
		if err != nil {
			return err
		}
		if existing >= 0 {
			horse.Fields[existing].Value = v
			return nil
		}
		horse.Fields = append(horse.Fields, model.Field{Label: normLabel, Type: normType, Value: v})
		return nil
	})
}

// AddFieldToMemo はメモの全ての馬に空の項目を追加する。
// いずれかの馬に同じ項目名があればエラーを返す。
func (s *Service) AddFieldToMemo(ctx context.Context, ownerID, memoID, label, fieldType string) (*model.Item, error) {
	normLabel := strings.TrimSpace(label)
	if normLabel == "" {
		return nil, model.NewFieldLabelRequiredError()
	}
	if utf8.RuneCountInString(normLabel) > model.MaxFieldLabelLength {
		return nil, model.NewFieldLabelTooLongError()
	}
	normType, err := NormalizeFieldType(fieldType)
	if err != nil {
		return nil, err
	}

	return s.modifyMemo(ctx, ownerID, memoID, func(memo *model.Item) error {
		for _, h := range memo.Horses {
			for _, f := range h.Fields {
				if f.Label == normLabel {
					return model.NewFieldLabelExistsError(normLabel)
				}
			}
		}
		for i := range memo.Horses {
			memo.Horses[i].Fields = append(memo.Horses[i].Fields, model.Field{
				Label: normLabel,
				Type:  normType,
				Value: model.NullValue(),
			})
		}
		return nil
	})
}

// modifyMemo はメモを読み込んでapplyを適用し、バージョン一致を条件に保存する。
func (s *Service) modifyMemo(ctx context.Context, ownerID, memoID string, apply func(memo *model.Item) error) (*model.Item, error) {
	item, err := s.readModifyWrite(ctx, ownerID, memoID, func(it *model.Item) (*repository.SubtreeMove, error) {
		if !it.IsMemo() {
			return nil, errNotFound
		}
		return nil, apply(it)
	})
	if errors.Is(err, errNotFound) {
		return nil, model.NewMemoNotFoundError(memoID)
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// errNotFound は読み込み対象が存在しないことを内部的に表す。
var errNotFound = errors.New("item not found")

// readModifyWrite は読み込み・変更・条件付き保存を行う。
// 保存時にバージョンが競合した場合は読み込みからやり直し、
// maxSaveAttempts回失敗するとVERSION_CONFLICTを返す。
func (s *Service) readModifyWrite(
	ctx context.Context,
	ownerID, id string,
	apply func(it *model.Item) (*repository.SubtreeMove, error),
) (*model.Item, error) {
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		it, err := s.repo.FindByID(ctx, ownerID, id)
		if err != nil {
			return nil, fmt.Errorf("アイテムの取得に失敗: %w", err)
		}
		if it == nil {
			return nil, errNotFound
		}

		move, err := apply(it)
		if err != nil {
			return nil, err
		}

		err = s.repo.Update(ctx, it, move)
		switch {
		case err == nil:
			return it, nil
		case errors.Is(err, repository.ErrVersionConflict):
			slog.Warn("アイテム更新が競合したため再試行",
				"item_id", id,
				"attempt", attempt,
			)
			continue
		case errors.Is(err, repository.ErrPathExists):
			return nil, model.NewPathExistsError(it.Path)
		default:
			return nil, fmt.Errorf("アイテムの更新に失敗: %w", err)
		}
	}
	return nil, model.NewVersionConflictError()
}

// --- 汎用更新・削除 ---

// UpdateItem は名前・親・馬一覧を部分的に更新する。
// 見つからない場合はエラーではなくSuccess=falseを返す。
// パスが変わる場合は配下のアイテムのパス・祖先列・深さも書き換える。
// 馬一覧はメモの場合のみ正規化して置き換え、フォルダでは入力を無視する。
func (s *Service) UpdateItem(ctx context.Context, ownerID string, in UpdateInput) (*UpdateResult, error) {
	item, err := s.readModifyWrite(ctx, ownerID, in.ID, func(it *model.Item) (*repository.SubtreeMove, error) {
		oldPath := it.Path

		if in.Name != nil {
			it.Name = strings.TrimSpace(*in.Name)
		}

		var parentPath string
		if !in.ParentSet && in.Name != nil && it.ParentID != nil {
			parent, err := s.repo.FindByID(ctx, ownerID, *it.ParentID)
			if err != nil {
				return nil, fmt.Errorf("親アイテムの取得に失敗: %w", err)
			}
			if parent != nil {
				parentPath = parent.Path
			} else {
				// 親が削除済みの孤児はルート直下に付け替える
				it.ParentID = nil
				it.Ancestors = []string{}
				it.Depth = 0
			}
		}

		if in.ParentSet {
			if parentID := emptyToNil(in.ParentID); parentID == nil {
				it.ParentID = nil
				it.Ancestors = []string{}
				it.Depth = 0
				parentPath = ""
			} else {
				parent, err := s.findParentFolder(ctx, ownerID, *parentID)
				if err != nil {
					return nil, err
				}
				if parent.ID == it.ID || contains(parent.Ancestors, it.ID) {
					return nil, model.NewInvalidMoveError()
				}
				it.ParentID = &parent.ID
				it.Ancestors = append(append([]string{}, parent.Ancestors...), parent.ID)
				it.Depth = parent.Depth + 1
				parentPath = parent.Path
			}
		}

		if in.Name != nil || in.ParentSet {
			it.Path = JoinPath(&parentPath, it.Name)
		}

		if in.ReplaceHorses && it.IsMemo() {
			horses, err := normalizeHorses(in.Horses, s.sanitizer)
			if err != nil {
				return nil, err
			}
			it.Horses = horses
		}

		if it.IsFolder() && it.Path != oldPath {
			return &repository.SubtreeMove{
				OldPath:      oldPath,
				NewPath:      it.Path,
				NewAncestors: it.Ancestors,
			}, nil
		}
		return nil, nil
	})
	if errors.Is(err, errNotFound) {
		return &UpdateResult{Success: false}, nil
	}
	if err != nil {
		return nil, err
	}
	return &UpdateResult{Success: true, Item: item}, nil
}

// DeleteItem はアイテムを削除する。
// 見つからない場合はエラーではなくSuccess=falseを返す。
// 配下の扱いはCascadePolicyに従い、ポリシーの失敗は削除結果に影響しない。
func (s *Service) DeleteItem(ctx context.Context, ownerID, id string) (*DeleteResult, error) {
	deleted, err := s.repo.Delete(ctx, ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("アイテムの削除に失敗: %w", err)
	}
	if deleted == nil {
		return &DeleteResult{Success: false, DeletedID: id}, nil
	}

	if err := s.cascade.AfterDelete(ctx, deleted); err != nil {
		slog.Error("配下アイテムの削除に失敗",
			"item_id", deleted.ID,
			"owner_id", ownerID,
			"error", err,
		)
	}

	slog.Info("アイテムを削除",
		"item_id", deleted.ID,
		"owner_id", ownerID,
		"type", string(deleted.Type),
	)
	return &DeleteResult{Success: true, DeletedID: id, Item: deleted}, nil
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

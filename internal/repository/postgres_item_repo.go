package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/souhyou/server/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

const itemColumns = `id, owner_id, type, name, path, parent_id, ancestors, depth, horses, version, created_at, updated_at`

// PostgresItemRepo はPostgreSQLを使用したアイテムリポジトリ。
// 馬の一覧はJSONB、祖先列はUUID配列として保存する。
type PostgresItemRepo struct {
	db *sql.DB
}

// NewPostgresItemRepo はPostgresItemRepoを生成する。
func NewPostgresItemRepo(db *sql.DB) *PostgresItemRepo {
	return &PostgresItemRepo{db: db}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*model.Item, error) {
	item := &model.Item{}
	var parentID sql.NullString
	var ancestors []string
	var horses []byte

	err := row.Scan(
		&item.ID, &item.OwnerID, &item.Type, &item.Name, &item.Path,
		&parentID, pq.Array(&ancestors), &item.Depth, &horses,
		&item.Version, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		item.ParentID = &parentID.String
	}
	item.Ancestors = nonNilStrings(ancestors)
	item.Horses = []model.Horse{}
	if len(horses) > 0 {
		if err := json.Unmarshal(horses, &item.Horses); err != nil {
			return nil, fmt.Errorf("failed to decode horses: %w", err)
		}
	}
	return item, nil
}

// FindByID は指定IDのアイテムを取得する。見つからない場合はnilを返す。
func (r *PostgresItemRepo) FindByID(ctx context.Context, ownerID, id string) (*model.Item, error) {
	if !isUUID(id) {
		return nil, nil
	}
	item, err := scanItem(r.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find item by ID: %w", err)
	}
	return item, nil
}

// FindByPath はパスが完全一致するアイテムを取得する。見つからない場合はnilを返す。
func (r *PostgresItemRepo) FindByPath(ctx context.Context, ownerID, path string) (*model.Item, error) {
	item, err := scanItem(r.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE owner_id = $1 AND path = $2`,
		ownerID, path,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find item by path: %w", err)
	}
	return item, nil
}

// ListChildren は親直下のアイテムを種別昇順・作成日時降順で返す。
func (r *PostgresItemRepo) ListChildren(ctx context.Context, ownerID string, parentID *string) ([]model.Item, error) {
	if parentID == nil {
		return r.queryItems(ctx,
			`SELECT `+itemColumns+` FROM items
			 WHERE owner_id = $1 AND parent_id IS NULL
			 ORDER BY type ASC, created_at DESC`,
			ownerID,
		)
	}
	if !isUUID(*parentID) {
		return []model.Item{}, nil
	}
	return r.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items
		 WHERE owner_id = $1 AND parent_id = $2
		 ORDER BY type ASC, created_at DESC`,
		ownerID, *parentID,
	)
}

// ListRecentMemos はメモを更新日時降順で最大limit件返す。
func (r *PostgresItemRepo) ListRecentMemos(ctx context.Context, ownerID string, limit int) ([]model.Item, error) {
	return r.queryItems(ctx,
		`SELECT `+itemColumns+` FROM items
		 WHERE owner_id = $1 AND type = 'MEMO'
		 ORDER BY updated_at DESC
		 LIMIT $2`,
		ownerID, limit,
	)
}

func (r *PostgresItemRepo) queryItems(ctx context.Context, query string, args ...interface{}) ([]model.Item, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	items := []model.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return items, nil
}

// Create はアイテムを作成する。パスが重複する場合はErrPathExistsを返す。
func (r *PostgresItemRepo) Create(ctx context.Context, item *model.Item) error {
	horses, err := json.Marshal(nonNilHorses(item.Horses))
	if err != nil {
		return fmt.Errorf("failed to encode horses: %w", err)
	}

	err = r.db.QueryRowContext(ctx,
		`INSERT INTO items (id, owner_id, type, name, path, parent_id, ancestors, depth, horses)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::uuid[], $8, $9)
		 RETURNING version, created_at, updated_at`,
		item.ID, item.OwnerID, item.Type, item.Name, item.Path,
		nullableString(item.ParentID), pq.Array(nonNilStrings(item.Ancestors)), item.Depth, string(horses),
	).Scan(&item.Version, &item.CreatedAt, &item.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrPathExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	return nil
}

// Update はバージョンが一致する場合のみアイテムを更新する。
// moveが指定された場合は配下のパス・祖先列・深さを同一トランザクションで書き換える。
func (r *PostgresItemRepo) Update(ctx context.Context, item *model.Item, move *SubtreeMove) error {
	horses, err := json.Marshal(nonNilHorses(item.Horses))
	if err != nil {
		return fmt.Errorf("failed to encode horses: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var version int64
	err = tx.QueryRowContext(ctx,
		`UPDATE items
		 SET name = $3, path = $4, parent_id = $5, ancestors = $6::uuid[], depth = $7,
		     horses = $8, version = version + 1, updated_at = NOW()
		 WHERE id = $1 AND owner_id = $2 AND version = $9
		 RETURNING version, updated_at`,
		item.ID, item.OwnerID, item.Name, item.Path, nullableString(item.ParentID),
		pq.Array(nonNilStrings(item.Ancestors)), item.Depth, string(horses), item.Version,
	).Scan(&version, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrVersionConflict
	}
	if isUniqueViolation(err) {
		return ErrPathExists
	}
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}

	if move != nil {
		// 祖先列は「新しい祖先列 + 自身以降の既存部分」に置き換える
		_, err = tx.ExecContext(ctx,
			`UPDATE items
			 SET path = $3::text || substr(path, char_length($4::text) + 1),
			     ancestors = $5::uuid[] || ancestors[array_position(ancestors, $1::uuid):],
			     depth = cardinality($5::uuid[]) + cardinality(ancestors) - array_position(ancestors, $1::uuid) + 1,
			     version = version + 1,
			     updated_at = NOW()
			 WHERE owner_id = $2 AND ancestors @> ARRAY[$1::uuid]`,
			item.ID, item.OwnerID, move.NewPath, move.OldPath, pq.Array(nonNilStrings(move.NewAncestors)),
		)
		if isUniqueViolation(err) {
			return ErrPathExists
		}
		if err != nil {
			return fmt.Errorf("failed to rewrite descendants: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	item.Version = version
	return nil
}

// Delete はアイテムを削除して削除前の内容を返す。見つからない場合はnilを返す。
func (r *PostgresItemRepo) Delete(ctx context.Context, ownerID, id string) (*model.Item, error) {
	if !isUUID(id) {
		return nil, nil
	}
	item, err := scanItem(r.db.QueryRowContext(ctx,
		`DELETE FROM items WHERE id = $1 AND owner_id = $2 RETURNING `+itemColumns,
		id, ownerID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete item: %w", err)
	}
	return item, nil
}

// DeleteDescendants は祖先に指定IDを含むアイテムを全て削除する。
func (r *PostgresItemRepo) DeleteDescendants(ctx context.Context, ownerID, id string) (int64, error) {
	if !isUUID(id) {
		return 0, nil
	}
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM items WHERE owner_id = $1 AND ancestors @> ARRAY[$2::uuid]`,
		ownerID, id,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete descendants: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nonNilStrings(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

func nonNilHorses(hs []model.Horse) []model.Horse {
	if hs == nil {
		return []model.Horse{}
	}
	return hs
}

// compile-time interface check
var _ ItemRepository = (*PostgresItemRepo)(nil)

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/souhyou/server/internal/model"
)

const userColumns = `id, uid, email, name, photo_url, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(&user.ID, &user.UID, &user.Email, &user.Name, &user.PhotoURL, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// FindByUID はFirebaseのUIDでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByUID(ctx context.Context, uid string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE uid = $1`,
		uid,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by uid: %w", err)
	}
	return user, nil
}

// Upsert はUIDをキーにユーザーを作成または更新する。
// email・名前・アイコンはトークンに値がある場合に上書きし、空の値では既存の値を残す。
func (r *PostgresUserRepo) Upsert(ctx context.Context, identity *model.Identity) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, uid, email, name, photo_url)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (uid) DO UPDATE SET
		     email = CASE WHEN EXCLUDED.email <> '' THEN EXCLUDED.email ELSE users.email END,
		     name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE users.name END,
		     photo_url = CASE WHEN EXCLUDED.photo_url <> '' THEN EXCLUDED.photo_url ELSE users.photo_url END,
		     updated_at = NOW()
		 RETURNING `+userColumns,
		uuid.New().String(), identity.UID, identity.Email, identity.Name, identity.Picture,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return user, nil
}

// UpdateProfile はプロフィールを更新する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, uid string, update model.ProfileUpdate) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`UPDATE users
		 SET name = COALESCE($2, name),
		     photo_url = COALESCE($3, photo_url),
		     updated_at = NOW()
		 WHERE uid = $1
		 RETURNING `+userColumns,
		uid, nullableString(update.DisplayName), nullableString(update.PhotoURL),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user profile: %w", err)
	}
	return user, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)

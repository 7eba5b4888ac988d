package graph

import (
	"context"
	"errors"
	"log/slog"

	"github.com/souhyou/server/internal/model"
)

// Error はGraphQLレスポンスのエラー要素。
// メッセージはエラーコードそのもので、詳細は拡張情報として返す。
type Error struct {
	apiErr *model.APIError
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	return e.apiErr.Code
}

// Extensions はGraphQLエラーの拡張情報を返す。
func (e *Error) Extensions() map[string]interface{} {
	return map[string]interface{}{
		"code":     e.apiErr.Code,
		"category": e.apiErr.Category,
		"detail":   e.apiErr.Message,
		"action":   e.apiErr.Action,
	}
}

// Unwrap は元のAPIErrorを返す。
func (e *Error) Unwrap() error {
	return e.apiErr
}

// toGraphQLError はリゾルバーのエラーをGraphQLエラーに変換する。
// APIError以外は内部エラーとしてログに記録し、詳細を隠す。
func toGraphQLError(ctx context.Context, operation string, err error) error {
	if err == nil {
		return nil
	}
	var gqlErr *Error
	if errors.As(err, &gqlErr) {
		return gqlErr
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return &Error{apiErr: apiErr}
	}

	slog.ErrorContext(ctx, "graphql operation failed",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
	return &Error{apiErr: model.NewInternalError()}
}

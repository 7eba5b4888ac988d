// Package graph はGraphQLスキーマとリゾルバーを提供する。
package graph

import (
	"context"
	_ "embed"
	"log/slog"
	"net/http"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
)

//go:embed schema.graphql
var schemaSDL string

// DefaultMaxDepth はクエリの最大深さのデフォルト値。
const DefaultMaxDepth = 12

// NewSchema はリゾルバーを結びつけたGraphQLスキーマを生成する。
// maxDepthが0以下の場合はDefaultMaxDepthを使用する。
func NewSchema(resolver *Resolver, maxDepth int) (*graphql.Schema, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return graphql.ParseSchema(schemaSDL, resolver,
		graphql.MaxDepth(maxDepth),
		graphql.Logger(panicLogger{}),
	)
}

// NewHandler はPOST /graphql 用のHTTPハンドラーを返す。
func NewHandler(schema *graphql.Schema) http.Handler {
	return &relay.Handler{Schema: schema}
}

// panicLogger はリゾルバー内のpanicをslogに出力する。
type panicLogger struct{}

func (panicLogger) LogPanic(ctx context.Context, value interface{}) {
	slog.ErrorContext(ctx, "graphql resolver panic",
		slog.Any("panic", value),
	)
}

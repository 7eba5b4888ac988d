// Command souhyou はsou-hyou（競馬予想メモ）のGraphQL APIサーバー。
//
// 使い方:
//
//	souhyou [serve|worker|migrate|healthcheck]
package main

import (
	"log/slog"
	"os"

	"github.com/souhyou/server/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		slog.Error("application exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

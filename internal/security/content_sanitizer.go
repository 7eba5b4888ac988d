// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はメモの項目値（SELECT/COMMENT）に含まれるHTMLマークアップを除去し、
// クライアントで描画される値にタグが混入しないようにする。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// TextSanitizer は自由入力テキストのサニタイズ機能のインターフェースを定義する。
type TextSanitizer interface {
	// Sanitize はHTMLマークアップを除去したプレーンテキストを返す。
	// マークアップとして成立しない "<" を含む文章（"x<y" や "斤量 < 57"）は変化しない。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(text string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのStrictPolicyはスレッドセーフなので共有して使う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はマークアップを含む場合のみタグを除去する。
func (s *textSanitizer) Sanitize(text string) string {
	if !strings.Contains(text, "<") || !containsMarkup(text) {
		return text
	}
	return html.UnescapeString(s.policy.Sanitize(text))
}

// voidElements は終了タグを持たない要素。
var voidElements = map[atom.Atom]bool{
	atom.Area: true, atom.Base: true, atom.Br: true, atom.Col: true,
	atom.Embed: true, atom.Hr: true, atom.Img: true, atom.Input: true,
	atom.Link: true, atom.Meta: true, atom.Source: true, atom.Track: true,
	atom.Wbr: true,
}

// containsMarkup はtextが既知のHTML要素として成立するタグを含むかを判定する。
// 開始タグは対応する終了タグがある場合のみ、空要素・自己終了タグ・コメントは単独でマークアップとみなす。
// "if a<b and c>d" のような比較表現は終了タグがないため対象外になる。
func containsMarkup(text string) bool {
	z := html.NewTokenizer(strings.NewReader(text))
	open := make(map[atom.Atom]int)
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return false
		case html.CommentToken:
			return true
		case html.StartTagToken, html.SelfClosingTagToken, html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if a == 0 {
				continue
			}
			switch {
			case tt == html.SelfClosingTagToken || voidElements[a]:
				if tt != html.EndTagToken {
					return true
				}
			case tt == html.StartTagToken:
				open[a]++
			case open[a] > 0:
				return true
			}
		}
	}
}

// NopSanitizer は入力をそのまま返すTextSanitizer。
type NopSanitizer struct{}

// Sanitize は入力をそのまま返す。
func (NopSanitizer) Sanitize(text string) string { return text }

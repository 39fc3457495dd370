// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ProfileSanitizer はIdPから受け取ったプロフィール項目を保存前に無害化する。
// 表示名はbluemondayのStrictPolicyで全タグを除去し、
// アバターURLは絶対URLのhttp/httpsのみを許可する。
package security

import (
	"html"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// maxDisplayNameLength は表示名として保存する最大文字数。
const maxDisplayNameLength = 128

// ProfileSanitizer はプロフィール項目のサニタイズを行う。
// bluemondayのPolicyはスレッドセーフなので共有してよい。
type ProfileSanitizer struct {
	policy *bluemonday.Policy
}

// NewProfileSanitizer はProfileSanitizerを生成する。
func NewProfileSanitizer() *ProfileSanitizer {
	return &ProfileSanitizer{policy: bluemonday.StrictPolicy()}
}

// SanitizeText はテキストからHTMLタグを除去し、前後の空白を取り除く。
// StrictPolicyがエスケープした実体参照は元の文字に戻す（フロントエンドはtextContentで描画する）。
func (s *ProfileSanitizer) SanitizeText(raw string) string {
	cleaned := html.UnescapeString(s.policy.Sanitize(raw))
	cleaned = strings.TrimSpace(cleaned)

	if utf8.RuneCountInString(cleaned) > maxDisplayNameLength {
		runes := []rune(cleaned)
		cleaned = string(runes[:maxDisplayNameLength])
	}
	return cleaned
}

// SanitizeURL はhttp/httpsの絶対URLのみを返す。それ以外は空文字を返す。
func (s *ProfileSanitizer) SanitizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	switch u.Scheme {
	case "http", "https":
		return u.String()
	default:
		return ""
	}
}

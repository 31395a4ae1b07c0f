package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// DescriptionSanitizer は外部APIから受け取った商品説明をサニタイズする。
type DescriptionSanitizer interface {
	// Sanitize は段落・改行・リスト・強調のみを残し、それ以外のタグと属性を除去する。
	// リンクと画像も除去される。
	Sanitize(raw string) string
}

type descriptionSanitizer struct {
	policy *bluemonday.Policy
}

// NewDescriptionSanitizer はDescriptionSanitizerの新しいインスタンスを生成する。
// ポリシーは生成時に1回だけ構築し、以後は並行に使用できる。
func NewDescriptionSanitizer() *descriptionSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"strong", "em", "b", "i",
	)
	return &descriptionSanitizer{policy: p}
}

// Sanitize は前後の空白を取り除いたサニタイズ済みの説明を返す。
func (s *descriptionSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(s.policy.Sanitize(raw))
}

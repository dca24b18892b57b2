package security

import (
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// MailSanitizer はメール本文に埋め込む運用者設定のHTML断片をサニタイズする。
// フォームと画像は許可しない。
type MailSanitizer struct {
	policy *bluemonday.Policy
}

// NewMailSanitizer はMailSanitizerを生成する。
//   - 許可タグ: p, br, strong, em, small, a
//   - aのhrefはhttpsのみ、rel="noreferrer"を付与
func NewMailSanitizer() *MailSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "br", "strong", "em", "small")
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("https")
	p.AllowRelativeURLs(false)
	p.RequireNoReferrerOnLinks(true)
	p.RequireParseableURLs(true)

	return &MailSanitizer{policy: p}
}

// Sanitize はHTML断片をサニタイズする。
func (s *MailSanitizer) Sanitize(fragment string) string {
	return s.policy.Sanitize(fragment)
}

// blockElements は前後に改行を入れる要素。
var blockElements = map[string]bool{
	"p": true, "div": true, "h1": true, "h2": true, "h3": true,
	"tr": true, "table": true, "li": true,
}

// HTMLToText はメールのtext/plainパートをHTML本文から生成する。
// scriptとstyleの中身は捨て、ブロック要素とbrを改行に変換する。
func HTMLToText(src string) string {
	z := html.NewTokenizer(strings.NewReader(src))

	var b strings.Builder
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF 以外の不正入力もそこまでの結果を返す
			return collapseBlankLines(b.String())
		case html.TextToken:
			if skip > 0 {
				continue
			}
			writeText(&b, string(z.Text()))
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			switch {
			case tag == "script" || tag == "style":
				if tt == html.StartTagToken {
					skip++
				}
			case tag == "br":
				b.WriteByte('\n')
			case blockElements[tag]:
				b.WriteString("\n\n")
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			switch {
			case tag == "script" || tag == "style":
				if skip > 0 {
					skip--
				}
			case blockElements[tag]:
				b.WriteString("\n\n")
			}
		}
	}
}

// writeText は連続する空白を1つにまとめて書き込む。
func writeText(b *strings.Builder, raw string) {
	words := strings.Fields(raw)
	if len(words) == 0 {
		if raw != "" {
			writeSpace(b)
		}
		return
	}
	if unicode.IsSpace(rune(raw[0])) {
		writeSpace(b)
	}
	b.WriteString(strings.Join(words, " "))
	if unicode.IsSpace(rune(raw[len(raw)-1])) {
		writeSpace(b)
	}
}

func writeSpace(b *strings.Builder) {
	s := b.String()
	if s == "" || strings.HasSuffix(s, " ") || strings.HasSuffix(s, "\n") {
		return
	}
	b.WriteByte(' ')
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

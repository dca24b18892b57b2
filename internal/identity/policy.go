// Package identity は学内メールアドレスの形式検証と学生属性の導出を行う。
package identity

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/projvault/internal/model"
)

const (
	// DefaultMinAdmissionYear は受け付ける最も古い入学年度。
	DefaultMinAdmissionYear = 2015
	maxStudentSequence      = 999
)

// Identity は検証済みメールアドレスと導出された学生属性を表す。永続化しない値型。
type Identity struct {
	Email           string
	AdmissionYear   int
	StudentSequence int
}

// Policy は学内メールアドレスの検証ポリシー。
type Policy struct {
	domain  string
	tag     string
	minYear int
	pattern *regexp.Regexp
	now     func() time.Time
}

// Option はPolicyの設定オプション。
type Option func(*Policy)

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func WithClock(now func() time.Time) Option {
	return func(p *Policy) {
		p.now = now
	}
}

// WithMinAdmissionYear は受け付ける最小入学年度を変更する。
func WithMinAdmissionYear(year int) Option {
	return func(p *Policy) {
		p.minYear = year
	}
}

// NewPolicy はPolicyを生成する。
// domain は "students." に続く学内ドメイン、tag は学籍番号の学部コード部分。
func NewPolicy(domain, tag string, opts ...Option) *Policy {
	p := &Policy{
		domain:  domain,
		tag:     tag,
		minYear: DefaultMinAdmissionYear,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.pattern = regexp.MustCompile(
		`^(\d{2})-` + regexp.QuoteMeta(tag) + `(\d{3})@students\.` + regexp.QuoteMeta(domain) + `$`,
	)
	return p
}

// Example は受け付けるメールアドレスの形式例を返す。
func (p *Policy) Example() string {
	return fmt.Sprintf("YY-%s001@students.%s", p.tag, p.domain)
}

// Validate はメールアドレスを検証し、入学年度と学生番号を導出する。
// 完全一致のみ受け付ける。前後の空白の除去や大文字小文字の正規化は行わない。
func (p *Policy) Validate(email string) (Identity, error) {
	m := p.pattern.FindStringSubmatch(email)
	if m == nil {
		return Identity{}, model.NewFormatError(
			fmt.Sprintf("Please use your student email address (%s)", p.Example()),
		)
	}

	yy, _ := strconv.Atoi(m[1])
	seq, _ := strconv.Atoi(m[2])
	year := 2000 + yy

	currentYear := p.now().Year()
	if year < p.minYear || year > currentYear {
		return Identity{}, model.NewRangeError(
			fmt.Sprintf("Admission year must be between %d and %d", p.minYear, currentYear),
		)
	}
	if seq < 1 || seq > maxStudentSequence {
		return Identity{}, model.NewRangeError(
			fmt.Sprintf("Student number must be between 001 and %03d", maxStudentSequence),
		)
	}

	return Identity{
		Email:           email,
		AdmissionYear:   year,
		StudentSequence: seq,
	}, nil
}

// Mask はログ出力用にメールアドレスの識別部分を伏せる。
// 形式に合わない値はドメイン部分のみ残す。
func Mask(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return "***"
	}
	local, domain := email[:at], email[at:]
	if len(local) <= 2 {
		return "***" + domain
	}
	return local[:1] + strings.Repeat("*", len(local)-1) + domain
}

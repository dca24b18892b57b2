package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/projvault/internal/security"
)

// MailAPIConfig はメール配信API（Resend互換）の設定。
type MailAPIConfig struct {
	Endpoint    string        // 例: https://api.resend.com/emails
	APIKey      string        // Bearerトークン
	From        string        // 送信元アドレス
	ProductName string        // 件名と本文に表示するサービス名
	FooterHTML  string        // 本文末尾に差し込むHTML断片。サニタイズされる
	Timeout     time.Duration // HTTPクライアントのタイムアウト
	MaxAttempts int           // 429/5xx・通信エラー時を含む送信試行回数
	SendBudget  time.Duration // 再試行を含めた1通あたりの上限時間
}

// MailAPINotifier はHTTPのメール配信APIにパスコードメールを送信するNotifier。
type MailAPINotifier struct {
	config     MailAPIConfig
	client     *http.Client
	footer     template.HTML
	now        func() time.Time
	retryDelay time.Duration
}

// MailAPIOption はMailAPINotifierの設定オプション。
type MailAPIOption func(*MailAPINotifier)

// WithHTTPClient はHTTPクライアントを差し替える。テストでhttptestサーバーに送るために使う。
func WithHTTPClient(c *http.Client) MailAPIOption {
	return func(n *MailAPINotifier) {
		n.client = c
	}
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) MailAPIOption {
	return func(n *MailAPINotifier) {
		n.now = now
	}
}

// WithRetryDelay は再試行の初回遅延を差し替える。
func WithRetryDelay(d time.Duration) MailAPIOption {
	return func(n *MailAPINotifier) {
		n.retryDelay = d
	}
}

// NewMailAPINotifier はMailAPINotifierを生成する。
// 送信先URLはOutboundGuardで検証し、既定のクライアントは内部ネットワークへの接続を拒否する。
func NewMailAPINotifier(cfg MailAPIConfig, guard *security.OutboundGuard, sanitizer *security.MailSanitizer, opts ...MailAPIOption) (*MailAPINotifier, error) {
	if err := guard.ValidateEndpoint(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid mail API endpoint: %w", err)
	}
	if cfg.ProductName == "" {
		cfg.ProductName = "Project Vault"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.SendBudget <= 0 {
		cfg.SendBudget = defaultSendBudget
	}

	n := &MailAPINotifier{
		config:     cfg,
		client:     guard.NewClient(cfg.Timeout),
		footer:     template.HTML(sanitizer.Sanitize(cfg.FooterHTML)),
		now:        time.Now,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

var passcodeMailTemplate = template.Must(template.New("passcode").Parse(`<div style="max-width: 600px; margin: 0 auto; padding: 20px; font-family: Arial, sans-serif;">
<h1 style="color: #1f2937; text-align: center;">{{.ProductName}}</h1>
<div style="background-color: #f3f4f6; padding: 20px; border-radius: 8px; margin: 20px 0;">
<h2 style="color: #374151;">Your Login Code</h2>
<p style="color: #6b7280;">Use this code to complete your login to {{.ProductName}}:</p>
<div style="background-color: white; padding: 15px; text-align: center; font-size: 24px; font-weight: bold; letter-spacing: 2px;">{{.Code}}</div>
<p style="color: #9ca3af; font-size: 14px;">This code will expire in {{.Minutes}} minutes. If you didn't request this code, please ignore this email.</p>
</div>
{{if .Footer}}<div style="color: #6b7280; text-align: center; font-size: 12px;">{{.Footer}}</div>{{end}}
</div>`))

type mailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text"`
}

// SendPasscode はパスコードメールを送信する。2xx以外の応答はエラーとして返す。
// 429/5xxと通信エラーはMaxAttemptsまで指数バックオフで再試行する。
// 再試行を含めた全体はSendBudgetで打ち切る。
func (n *MailAPINotifier) SendPasscode(ctx context.Context, email, code string, expiresAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, n.config.SendBudget)
	defer cancel()

	// 1. 本文を生成
	htmlBody, err := n.render(code, expiresAt)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(mailRequest{
		From:    n.config.From,
		To:      []string{email},
		Subject: fmt.Sprintf("Your %s Login Code", n.config.ProductName),
		HTML:    htmlBody,
		Text:    security.HTMLToText(htmlBody),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal mail request: %w", err)
	}

	// 2. 配信APIへ送信（再試行あり）
	for attempt := 0; ; attempt++ {
		result, err := n.post(ctx, payload)
		if result == deliveryOK {
			return nil
		}
		if result == deliveryPermanent || attempt+1 >= n.config.MaxAttempts {
			return err
		}
		if sleepErr := sleepContext(ctx, retryDelay(n.retryDelay, attempt)); sleepErr != nil {
			return err
		}
	}
}

// post は1回分の送信を行い、結果を分類して返す。
func (n *MailAPINotifier) post(ctx context.Context, payload []byte) (deliveryResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return deliveryPermanent, fmt.Errorf("failed to build mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.config.APIKey)

	resp, err := n.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return deliveryPermanent, fmt.Errorf("failed to send mail: %w", err)
		}
		return deliveryRetry, fmt.Errorf("failed to send mail: %w", err)
	}
	defer resp.Body.Close()

	result := classifyStatus(resp.StatusCode)
	if result != deliveryOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return result, fmt.Errorf("mail API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return deliveryOK, nil
}

func (n *MailAPINotifier) render(code string, expiresAt time.Time) (string, error) {
	minutes := int(math.Ceil(expiresAt.Sub(n.now()).Minutes()))
	if minutes < 1 {
		minutes = 1
	}

	var buf bytes.Buffer
	err := passcodeMailTemplate.Execute(&buf, struct {
		ProductName string
		Code        string
		Minutes     int
		Footer      template.HTML
	}{
		ProductName: n.config.ProductName,
		Code:        code,
		Minutes:     minutes,
		Footer:      n.footer,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render mail body: %w", err)
	}
	return buf.String(), nil
}

// compile-time interface check
var _ Notifier = (*MailAPINotifier)(nil)

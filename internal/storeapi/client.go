// Package storeapi は外部EコマースREST APIのクライアントを提供する。
// カテゴリ・商品・ブランドの取得、認証、カート、ウィッシュリスト、配送先、注文の
// 各エンドポイントを呼び出し、エンドポイントごとのスキーマでレスポンスを検証する。
package storeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL は外部APIのデフォルトのベースURL。
	DefaultBaseURL = "https://ecommerce.routemisr.com/api/v1"
	// tokenHeader はベアラートークンを載せるカスタムヘッダー名。
	tokenHeader = "token"
	// maxResponseSize はレスポンスボディの最大読み取りサイズ（5MB）。
	maxResponseSize = 5 << 20
	userAgent       = "SuperKart/1.0 Storefront"
)

// MetricsRecorder は外部API呼び出しの計測を記録するインターフェース。
type MetricsRecorder interface {
	// RecordUpstreamCall は操作名、HTTPステータス（通信失敗時は0）、所要時間を記録する。
	RecordUpstreamCall(op string, statusCode int, duration time.Duration)
}

// Client は外部EコマースAPIのクライアント。
// 認証が必要な呼び出しではtokenヘッダーにベアラートークンを付与する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	metrics    MetricsRecorder
}

// NewClient はClientの新しいインスタンスを生成する。
// metricsはnilでもよい。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL string, metrics MetricsRecorder) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		metrics:    metrics,
	}
}

// request は1回のAPI呼び出しの内容。
type request struct {
	op     string // メトリクスとログに使う操作名（例: cart.get）
	method string
	path   string
	token  string
	query  url.Values
	body   any
}

// do はリクエストを送信し、2xxレスポンスのボディをoutにデコードする。
// 通信失敗はErrTransport、非2xxは*Error、デコード失敗はErrInvalidResponseとして返す。
// 失敗しても再試行はしない。
func (c *Client) do(ctx context.Context, r request, out any) error {
	start := time.Now()

	reqURL := c.baseURL + "/" + strings.TrimLeft(r.path, "/")
	if len(r.query) > 0 {
		reqURL += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request body: %w", r.op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, reqURL, body)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", r.op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set(tokenHeader, r.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(r.op, 0, time.Since(start))
		c.logger.Error("外部APIの呼び出しに失敗しました",
			slog.String("op", r.op),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%s: %w: %w", r.op, ErrTransport, err)
	}
	defer resp.Body.Close()

	c.record(r.op, resp.StatusCode, time.Since(start))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		c.logger.Error("外部APIレスポンスボディの読み取りに失敗しました",
			slog.String("op", r.op),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%s: %w: %w", r.op, ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{
			Op:         r.op,
			StatusCode: resp.StatusCode,
			Message:    parseErrorMessage(data),
		}
		c.logger.Warn("外部APIがエラーステータスを返しました",
			slog.String("op", r.op),
			slog.Int("http_status", resp.StatusCode),
			slog.String("message", apiErr.Message),
		)
		return apiErr
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Error("外部APIレスポンスのパースに失敗しました",
			slog.String("op", r.op),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%s: %w: %w", r.op, ErrInvalidResponse, err)
	}

	return nil
}

func (c *Client) record(op string, statusCode int, d time.Duration) {
	if c.metrics != nil {
		c.metrics.RecordUpstreamCall(op, statusCode, d)
	}
}

// pathID はパスセグメントとして安全なIDを返す。
func pathID(id string) string {
	return url.PathEscape(id)
}

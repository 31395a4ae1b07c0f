package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/superkart/internal/model"
	"github.com/redis/go-redis/v9"
)

// sessionKeyPrefix はセッションハッシュのキー接頭辞。
const sessionKeyPrefix = "superkart:session:"

// updateIfExists は既存キーのフィールドのみを更新する。
// 存在しないキーにHSETすると有効期限のないハッシュが作られるため、EXISTSと同一スクリプトで実行する。
var updateIfExists = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2], 'updated_at', ARGV[3])
return 1
`)

// RedisSessionRepo はRedisハッシュを使用したセッションリポジトリ。
// 期限切れはRedisのキー有効期限で処理される。
type RedisSessionRepo struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisSessionRepo はRedisSessionRepoを生成する。
func NewRedisSessionRepo(client *redis.Client) *RedisSessionRepo {
	return &RedisSessionRepo{client: client, now: time.Now}
}

// Create はセッションを作成し、ExpiresAtでキーの有効期限を設定する。
func (r *RedisSessionRepo) Create(ctx context.Context, session *model.Session) error {
	key := sessionKey(session.ID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"token", session.Token,
			"buy_now_product_id", session.BuyNowProductID,
			"expires_at", formatTime(session.ExpiresAt),
			"created_at", formatTime(session.CreatedAt),
			"updated_at", formatTime(session.UpdatedAt),
		)
		pipe.ExpireAt(ctx, key, session.ExpiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis create session failed: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。存在しないか期限切れの場合はnilを返す。
func (r *RedisSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	fields, err := r.client.HGetAll(ctx, sessionKey(id)).Result()
	if errors.Is(err, redis.Nil) || (err == nil && len(fields) == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis find session failed: %w", err)
	}

	session := &model.Session{
		ID:              id,
		Token:           fields["token"],
		BuyNowProductID: fields["buy_now_product_id"],
	}
	if session.ExpiresAt, err = parseTime(fields["expires_at"]); err != nil {
		return nil, fmt.Errorf("redis session %s has invalid expires_at: %w", id, err)
	}
	session.CreatedAt, _ = parseTime(fields["created_at"])
	session.UpdatedAt, _ = parseTime(fields["updated_at"])

	if !session.ExpiresAt.After(r.now()) {
		return nil, nil
	}
	return session, nil
}

// UpdateToken はセッションのベアラートークンを更新する。
func (r *RedisSessionRepo) UpdateToken(ctx context.Context, id, token string) error {
	return r.update(ctx, id, "token", token)
}

// UpdateBuyNow は「今すぐ購入」の商品参照を更新する。
func (r *RedisSessionRepo) UpdateBuyNow(ctx context.Context, id, productID string) error {
	return r.update(ctx, id, "buy_now_product_id", productID)
}

func (r *RedisSessionRepo) update(ctx context.Context, id, field, value string) error {
	n, err := updateIfExists.Run(ctx, r.client, []string{sessionKey(id)}, field, value, formatTime(r.now())).Int()
	if err != nil {
		return fmt.Errorf("redis update session %s failed: %w", field, err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *RedisSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete session failed: %w", err)
	}
	return nil
}

// DeleteExpired はRedisのキー有効期限に任せるため何もしない。
func (r *RedisSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// compile-time interface check
var _ SessionRepository = (*RedisSessionRepo)(nil)

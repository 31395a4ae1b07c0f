// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/superkart/internal/model"
)

// ErrSessionNotFound は更新対象のセッションが存在しない（期限切れを含む）ことを表す。
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository はブラウザセッションの永続化インターフェース。
// ベアラートークンと「今すぐ購入」の商品参照はここに保存され、プロセス再起動後も保持される。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。存在しないか期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// UpdateToken はセッションのベアラートークンを更新する。空文字は匿名状態を表す。
	UpdateToken(ctx context.Context, id, token string) error
	// UpdateBuyNow は「今すぐ購入」の商品参照を更新する。空文字で解除する。
	UpdateBuyNow(ctx context.Context, id, productID string) error
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

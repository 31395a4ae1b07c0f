// Package notify はブラウザセッションごとの一時的な通知（トースト）キューを提供する。
// 状態保持コンテナが成功・失敗を通知し、ビュー層がレスポンスごとにDrainして返す。
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/superkart/internal/model"
)

// DefaultCapacity はキューに保持する通知の最大数。
// 超過した場合は古い通知から破棄する。
const DefaultCapacity = 20

// Queue はスレッドセーフな通知キュー。
type Queue struct {
	mu       sync.Mutex
	items    []model.Notification
	capacity int
	now      func() time.Time
}

// NewQueue はQueueを生成する。capacityが0以下の場合はDefaultCapacityを使用する。
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{capacity: capacity, now: time.Now}
}

// Success は成功通知を追加する。
func (q *Queue) Success(message string) { q.push(model.NotificationSuccess, message) }

// Error はエラー通知を追加する。
func (q *Queue) Error(message string) { q.push(model.NotificationError, message) }

// Info は情報通知を追加する。
func (q *Queue) Info(message string) { q.push(model.NotificationInfo, message) }

func (q *Queue) push(level model.NotificationLevel, message string) {
	n := model.Notification{
		ID:        uuid.NewString(),
		Level:     level,
		Message:   message,
		CreatedAt: q.now(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, n)
	if over := len(q.items) - q.capacity; over > 0 {
		q.items = append([]model.Notification(nil), q.items[over:]...)
	}
}

// Drain は保持中の通知を古い順に返し、キューを空にする。
// 通知がない場合は空スライス（nilではない）を返す。
func (q *Queue) Drain() []model.Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	if out == nil {
		out = []model.Notification{}
	}
	q.items = nil
	return out
}

// Len は保持中の通知数を返す。
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

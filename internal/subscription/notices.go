package subscription

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mrz1836/subpass/internal/ledger"
	suberr "github.com/mrz1836/subpass/pkg/errors"
)

// Notice is a dismissible failure notification for a write.
type Notice struct {
	ID        string
	Kind      ledger.WriteKind
	Code      string
	Message   string
	Err       error
	CreatedAt time.Time
}

// noticeBoard holds active notices in arrival order.
type noticeBoard struct {
	mu      sync.Mutex
	notices []Notice
	now     func() time.Time
}

func newNoticeBoard() *noticeBoard {
	return &noticeBoard{now: time.Now}
}

func (b *noticeBoard) push(kind ledger.WriteKind, err error) Notice {
	n := Notice{
		ID:        uuid.NewString(),
		Kind:      kind,
		Code:      suberr.Code(err),
		Message:   suberr.UserMessage(err),
		Err:       err,
		CreatedAt: b.now(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.notices = append(b.notices, n)
	return n
}

func (b *noticeBoard) dismiss(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, n := range b.notices {
		if n.ID == id {
			b.notices = append(b.notices[:i], b.notices[i+1:]...)
			return true
		}
	}
	return false
}

func (b *noticeBoard) list() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Notice, len(b.notices))
	copy(out, b.notices)
	return out
}

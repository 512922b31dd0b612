package ctxengine_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/replypass/replypass/pkg/reply"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// countingSource serves fixed messages and counts fetches.
type countingSource struct {
	msgs  []reply.Message
	err   error
	calls atomic.Int32
}

func (s *countingSource) Messages(context.Context, string) ([]reply.Message, error) {
	s.calls.Add(1)
	return s.msgs, s.err
}

// makeMessages creates n alternating partner/self messages one minute apart.
func makeMessages(n int) []reply.Message {
	msgs := make([]reply.Message, n)
	for i := range msgs {
		speaker := reply.SpeakerPartner
		if i%2 == 1 {
			speaker = reply.SpeakerSelf
		}
		msgs[i] = reply.Message{
			SessionID: "s1",
			Seq:       int64(i + 1),
			Speaker:   speaker,
			Content:   fmt.Sprintf("msg-%d", i),
			SentAt:    t0.Add(time.Duration(i) * time.Minute),
		}
	}
	return msgs
}

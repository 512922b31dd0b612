package store_test

import (
	"testing"

	"github.com/replypass/replypass/internal/store"
	"github.com/replypass/replypass/internal/store/storetest"
)

func TestInMemoryStore(t *testing.T) {
	t.Parallel()
	storetest.Run(t, func(*testing.T) store.Store { return store.NewInMemoryStore() })
}

package memory

import (
	"testing"

	"github.com/capitalize-ai/player-messaging/internal/storage"
	"github.com/capitalize-ai/player-messaging/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return New()
	})
}

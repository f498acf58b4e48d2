package websocket_test

import (
	"github.com/sitetrace/extension/internal/storage"
	"github.com/sitetrace/extension/internal/storage/websocket"
)

// Compile-time interface check.
var _ storage.Backend = (*websocket.Backend)(nil)

package gormstorage_test

import (
	"github.com/sitetrace/extension/internal/storage"
	gormstorage "github.com/sitetrace/extension/internal/storage/gorm"
)

// Compile-time interface check
var _ storage.Backend = (*gormstorage.Backend)(nil)

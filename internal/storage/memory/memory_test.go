package memory

import (
	"testing"

	"kharcha/internal/storage"
	"kharcha/internal/storage/storagetest"
)

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store { return New() })
}

package memory

import (
	"testing"

	"github.com/s3ql/main/internal/metadatatest"
	"github.com/s3ql/main/pkg/metadata"
)

func TestMemoryStoreConformance(t *testing.T) {
	metadatatest.RunConformanceSuite(t, func() metadata.Store {
		return New()
	})
}

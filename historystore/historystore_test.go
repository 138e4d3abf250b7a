package historystore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenWithEmptyDSNReturnsNilStore(t *testing.T) {
	s, err := Open("", nil)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestNilStoreRecordIsANoOp(t *testing.T) {
	var s *Store
	assert.NotPanics(t, func() {
		s.Record(context.Background(), Entry{TraceID: "t1", Query: "q"})
	})
}

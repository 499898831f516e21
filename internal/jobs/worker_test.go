package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/Veraticus/spice-cascade/internal/common"
	"github.com/Veraticus/spice-cascade/internal/indexing"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIndexer struct {
	err   error
	calls []IndexPayload
}

func (s *stubIndexer) IndexTransaction(_ context.Context, tenant, id string) error {
	s.calls = append(s.calls, IndexPayload{Tenant: tenant, TransactionID: id})
	return s.err
}

type stubReindexer struct {
	tenant string
	limit  int
}

func (s *stubReindexer) ReindexAll(_ context.Context, tenant string, opts indexing.ReindexOptions) (indexing.ReindexProgress, error) {
	s.tenant, s.limit = tenant, opts.Limit
	return indexing.ReindexProgress{Status: indexing.StatusCompleted, Indexed: 3}, nil
}

func TestNewIndexTransactionTask(t *testing.T) {
	task, err := NewIndexTransactionTask("acme", "t1")
	require.NoError(t, err)
	assert.Equal(t, TypeIndexTransaction, task.Type())

	var p IndexPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, IndexPayload{Tenant: "acme", TransactionID: "t1"}, p)
	assert.Equal(t, "index:transaction:acme:t1", taskID(p))

	_, err = NewIndexTransactionTask("", "t1")
	assert.Error(t, err)
	_, err = NewReindexTask("", 0)
	assert.Error(t, err)
}

func TestProcessIndexTask(t *testing.T) {
	task, err := NewIndexTransactionTask("acme", "t1")
	require.NoError(t, err)

	tests := []struct {
		name      string
		indexErr  error
		wantErr   bool
		skipRetry bool
	}{
		{name: "indexed"},
		{name: "vanished transaction is dropped", indexErr: fmt.Errorf("transaction t1: %w", common.ErrNotFound), wantErr: true, skipRetry: true},
		{name: "transient failure is retried", indexErr: common.ErrDependencyUnavailable, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := &stubIndexer{err: tt.indexErr}
			err := NewHandlers(idx, nil).ProcessIndexTask(context.Background(), task)

			require.Len(t, idx.calls, 1)
			assert.Equal(t, "t1", idx.calls[0].TransactionID)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.skipRetry, errors.Is(err, asynq.SkipRetry))
		})
	}
}

func TestProcessIndexTask_MalformedPayload(t *testing.T) {
	idx := &stubIndexer{}
	err := NewHandlers(idx, nil).ProcessIndexTask(context.Background(), asynq.NewTask(TypeIndexTransaction, []byte("{")))

	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, idx.calls)
}

func TestProcessReindexTask(t *testing.T) {
	task, err := NewReindexTask("acme", 100)
	require.NoError(t, err)

	re := &stubReindexer{}
	require.NoError(t, NewHandlers(&stubIndexer{}, re).ProcessReindexTask(context.Background(), task))
	assert.Equal(t, "acme", re.tenant)
	assert.Equal(t, 100, re.limit)

	err = NewHandlers(&stubIndexer{}, nil).ProcessReindexTask(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNewServer_RejectsBadURL(t *testing.T) {
	_, err := NewServer(WorkerConfig{RedisURL: "mysql://nope"})
	assert.Error(t, err)

	_, err = NewQueue("not a url", "")
	assert.Error(t, err)
}

// Package jobs moves vector indexing off the request path onto an asynq queue.
package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Task types.
const (
	TypeIndexTransaction = "index:transaction"
	TypeReindex          = "index:reindex"
)

// DefaultQueue is the queue indexing tasks are placed on.
const DefaultQueue = "indexing"

// IndexPayload identifies one completed transaction to index.
type IndexPayload struct {
	Tenant        string `json:"tenant"`
	TransactionID string `json:"transaction_id"`
}

// ReindexPayload requests a full rebuild of a tenant's vectors.
type ReindexPayload struct {
	Tenant string `json:"tenant"`
	Limit  int    `json:"limit,omitempty"`
}

// NewIndexTransactionTask builds an index task.
func NewIndexTransactionTask(tenant, transactionID string) (*asynq.Task, error) {
	if tenant == "" || transactionID == "" {
		return nil, fmt.Errorf("index task needs tenant and transaction id")
	}
	payload, err := json.Marshal(IndexPayload{Tenant: tenant, TransactionID: transactionID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeIndexTransaction, payload), nil
}

// NewReindexTask builds a reindex task.
func NewReindexTask(tenant string, limit int) (*asynq.Task, error) {
	if tenant == "" {
		return nil, fmt.Errorf("reindex task needs a tenant")
	}
	payload, err := json.Marshal(ReindexPayload{Tenant: tenant, Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeReindex, payload), nil
}

// taskID keeps at most one pending index task per transaction.
func taskID(p IndexPayload) string {
	return fmt.Sprintf("%s:%s:%s", TypeIndexTransaction, p.Tenant, p.TransactionID)
}

package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// OperationKind is the mutation a queued operation replays against the remote service
type OperationKind string

const (
	KindInsert OperationKind = "insert"
	KindUpdate OperationKind = "update"
	KindDelete OperationKind = "delete"
)

// Valid reports whether k is one of the known kinds
func (k OperationKind) Valid() bool {
	switch k {
	case KindInsert, KindUpdate, KindDelete:
		return true
	}
	return false
}

// Row is a single record as exchanged with the remote data service
type Row map[string]interface{}

// Clone returns a shallow copy of the row
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Conditions are equality match criteria identifying target rows
type Conditions map[string]interface{}

// Clone returns a shallow copy of the conditions
func (c Conditions) Clone() Conditions {
	if c == nil {
		return nil
	}
	out := make(Conditions, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// QueuedOperation is a mutation deferred while the remote service was unreachable
type QueuedOperation struct {
	ID         string        `json:"id"`
	TableName  string        `json:"tableName"`
	Kind       OperationKind `json:"kind"`
	Payload    Row           `json:"payload,omitempty"`
	Conditions Conditions    `json:"conditions,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
	RetryCount int           `json:"retryCount"`
	LastError  string        `json:"lastError,omitempty"`
}

// NewQueuedOperation creates an operation with a fresh ID.
// Payload is dropped for deletes and conditions are dropped for inserts.
func NewQueuedOperation(table string, kind OperationKind, payload Row, conditions Conditions, now time.Time) (*QueuedOperation, error) {
	if strings.TrimSpace(table) == "" {
		return nil, ErrEmptyTableName
	}
	if !kind.Valid() {
		return nil, ErrInvalidKind
	}

	op := &QueuedOperation{
		ID:        uuid.New().String(),
		TableName: table,
		Kind:      kind,
		Timestamp: now.UTC(),
	}

	switch kind {
	case KindInsert:
		op.Payload = payload.Clone()
	case KindUpdate:
		if len(conditions) == 0 {
			return nil, ErrMissingConditions
		}
		op.Payload = payload.Clone()
		op.Conditions = conditions.Clone()
	case KindDelete:
		if len(conditions) == 0 {
			return nil, ErrMissingConditions
		}
		op.Conditions = conditions.Clone()
	}

	return op, nil
}

// Clone returns a copy that shares no maps with the receiver
func (o QueuedOperation) Clone() QueuedOperation {
	o.Payload = o.Payload.Clone()
	o.Conditions = o.Conditions.Clone()
	return o
}

// CloneOperations copies a queue snapshot
func CloneOperations(ops []QueuedOperation) []QueuedOperation {
	out := make([]QueuedOperation, len(ops))
	for i, op := range ops {
		out[i] = op.Clone()
	}
	return out
}

// OperationError is returned for invalid operations
type OperationError struct {
	Message string
}

func (e OperationError) Error() string {
	return e.Message
}

var (
	ErrEmptyTableName    = OperationError{"table name cannot be empty"}
	ErrInvalidKind       = OperationError{"operation kind must be insert, update or delete"}
	ErrMissingConditions = OperationError{"update and delete require at least one match condition"}
	ErrUnknownTable      = OperationError{"unknown table"}
)

package ledger

import (
	"context"

	"github.com/erp/stockledger/internal/domain/ledger"
)

// TransactionScope provides transactional access to the movement store.
// Everything done inside fn commits or rolls back as one unit, and writers
// are serialized so that movement ids follow commit order.
type TransactionScope interface {
	// ExecuteAppend runs fn in a transaction that can read and append movements
	ExecuteAppend(ctx context.Context, fn func(repos AppendRepositories) error) error
	// ExecuteReversal runs fn in a transaction that can additionally supersede
	// movements. Only the reversal engine uses it.
	ExecuteReversal(ctx context.Context, fn func(repos ReversalRepositories) error) error
}

// AppendRepositories is the store view inside an append transaction
type AppendRepositories interface {
	Movements() ledger.MovementRepository
}

// ReversalRepositories is the store view inside a reversal transaction
type ReversalRepositories interface {
	Movements() ledger.MovementReader
	Reversals() ledger.ReversalWriter
}

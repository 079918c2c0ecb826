package hsms

import (
	"time"
)

// TxResult is the outcome of a Transaction: the reply, or the error that ended it.
type TxResult struct {
	Msg HSMSMessage
	Err error
}

// TimerStopper is a one-shot timer that can be cancelled.
type TimerStopper interface {
	Stop() bool
}

// AfterFunc arms a one-shot timer calling fn after d. The connection supplies an
// implementation running fn on its own event loop.
type AfterFunc func(d time.Duration, fn func()) TimerStopper

// Transaction is an outstanding request waiting for its reply.
type Transaction struct {
	id     uint32
	result chan TxResult
	timer  TimerStopper
	done   bool
}

// ID returns the system bytes of the request.
func (tx *Transaction) ID() uint32 { return tx.id }

// Result delivers exactly one TxResult.
func (tx *Transaction) Result() <-chan TxResult { return tx.result }

func (tx *Transaction) complete(res TxResult) bool {
	if tx.done {
		return false
	}
	tx.done = true
	if tx.timer != nil {
		tx.timer.Stop()
	}
	tx.result <- res

	return true
}

// TransactionTable correlates outstanding requests with their replies by system bytes.
//
// It is owned by one connection and is not safe for concurrent use: every method, and the
// expiry callbacks delivered through AfterFunc, must run on the owner's event loop.
type TransactionTable struct {
	pending   map[uint32]*Transaction
	afterFunc AfterFunc
}

// NewTransactionTable creates an empty table arming deadlines with afterFunc.
func NewTransactionTable(afterFunc AfterFunc) *TransactionTable {
	return &TransactionTable{
		pending:   make(map[uint32]*Transaction),
		afterFunc: afterFunc,
	}
}

// Add registers a transaction for id with the given timeout.
//
// When the timeout fires while the transaction is still pending it is removed, fails with
// timeoutErr, and onExpire (if not nil) is called with it. A non-positive timeout never expires.
//
// Registering an id that is already pending replaces the old entry; the old transaction then
// only ends through its own deadline.
func (t *TransactionTable) Add(id uint32, timeout time.Duration, timeoutErr error, onExpire func(*Transaction)) *Transaction {
	tx := &Transaction{id: id, result: make(chan TxResult, 1)}
	t.pending[id] = tx

	if timeout > 0 {
		tx.timer = t.afterFunc(timeout, func() {
			if t.pending[id] == tx {
				delete(t.pending, id)
			}
			if tx.complete(TxResult{Err: timeoutErr}) && onExpire != nil {
				onExpire(tx)
			}
		})
	}

	return tx
}

// Resolve completes the transaction for msg.ID() with msg. It reports false if no transaction
// with that id is pending.
func (t *TransactionTable) Resolve(msg HSMSMessage) bool {
	tx, ok := t.pending[msg.ID()]
	if !ok {
		return false
	}
	delete(t.pending, msg.ID())

	return tx.complete(TxResult{Msg: msg})
}

// Fail completes the transaction for id with err. It reports false if none is pending.
func (t *TransactionTable) Fail(id uint32, err error) bool {
	tx, ok := t.pending[id]
	if !ok {
		return false
	}
	delete(t.pending, id)

	return tx.complete(TxResult{Err: err})
}

// Remove drops the transaction for id without completing it, e.g. after its request could not
// be written. The waiter is expected to have learned the outcome another way.
func (t *TransactionTable) Remove(id uint32) {
	if tx, ok := t.pending[id]; ok {
		delete(t.pending, id)
		tx.done = true
		if tx.timer != nil {
			tx.timer.Stop()
		}
	}
}

// Has reports whether a transaction for id is pending.
func (t *TransactionTable) Has(id uint32) bool {
	_, ok := t.pending[id]
	return ok
}

// FailAll completes every pending transaction with err and empties the table.
func (t *TransactionTable) FailAll(err error) {
	for id, tx := range t.pending {
		delete(t.pending, id)
		tx.complete(TxResult{Err: err})
	}
}

// Len returns the number of pending transactions.
func (t *TransactionTable) Len() int {
	return len(t.pending)
}

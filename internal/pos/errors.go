package pos

import (
	"errors"
	"fmt"
)

var (
	// ErrEntityNotFound indicates a referenced id does not exist at
	// transaction time.
	ErrEntityNotFound = errors.New("pos: entity not found")
	// ErrInvalidState indicates the operation would violate an invariant.
	ErrInvalidState = errors.New("pos: invalid state")
	// ErrInvalidOperation indicates the operation is not permitted for the
	// entity's variant.
	ErrInvalidOperation = errors.New("pos: operation not permitted")

	// ErrNegativeStock is the invariant violation raised when a mutation
	// would drive stock below zero. It matches ErrInvalidState.
	ErrNegativeStock = fmt.Errorf("%w: stock cannot go negative", ErrInvalidState)
	// ErrOverpayment is raised when a credit payment exceeds the sale's
	// outstanding balance. It matches ErrInvalidState.
	ErrOverpayment = fmt.Errorf("%w: payment exceeds outstanding balance", ErrInvalidState)
)

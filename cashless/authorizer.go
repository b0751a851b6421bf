package cashless

import (
	"context"
	"errors"
)

var (
	// ErrDeclined reports a definitive decline from the payment backend.
	// A declined sale is not retried.
	ErrDeclined = errors.New("cashless: sale declined")

	// ErrAuthorizationFailed reports that every authorization attempt failed.
	ErrAuthorizationFailed = errors.New("cashless: authorization failed")

	// ErrShortPayload reports a VMC command too short for its sub-command.
	ErrShortPayload = errors.New("cashless: payload too short")
)

// Authorizer is the payment backend, typically a POS terminal.
//
// Open and Close bracket one vend session. Amounts are strings with two
// implied decimals and no separator ("1234" is 12.34).
type Authorizer interface {
	Open(ctx context.Context) error
	Close() error

	// RequestSale charges amount and returns the invoice number.
	// It returns an error wrapping ErrDeclined for a definitive decline.
	RequestSale(ctx context.Context, amount string) (invoice string, err error)

	// ProcessVoid reverses the sale identified by invoice.
	ProcessVoid(ctx context.Context, invoice string) error

	// VerifyLastTransaction reports whether the last sale request went
	// through even though the answer was lost.
	VerifyLastTransaction(ctx context.Context) (invoice string, matched bool, err error)
}

// Committer is implemented by backends that settle a sale explicitly once
// the product was dispensed.
type Committer interface {
	Commit(ctx context.Context, invoice string) error
}

// Package ledger provides the funding-source port: the faucet's view of the
// chain it dispenses from. Amounts cross this boundary in whole tokens; the
// concrete client handles base-unit conversion.
package ledger

import "context"

// Client is the funding-source contract used by the disbursement flow.
type Client interface {
	// Address returns the funding wallet address.
	Address() string

	// Balance returns the funding wallet balance in whole tokens.
	Balance(ctx context.Context) (float64, error)

	// Transfer sends the given amount of whole tokens to the recipient and
	// returns the transaction digest.
	Transfer(ctx context.Context, recipient string, amount float64) (string, error)
}

// Package models - core faucet data records.
// This file defines the disbursement audit record. Records are created once per
// faucet attempt by the disbursement service and are immutable afterwards; the
// store exposes no update or delete operations for them.
package models

import (
	"time"

	"github.com/google/uuid"
)

// TransactionStatus is the terminal outcome of a disbursement attempt.
type TransactionStatus string

const (
	TransactionSuccess TransactionStatus = "success"
	TransactionFailed  TransactionStatus = "failed"
)

// CountryUnknown is recorded when the request IP cannot be geolocated.
const CountryUnknown = "Unknown"

// TransactionRecord is the audit record for a single disbursement attempt.
//
// Invariant: exactly one of TxHash and ErrorMessage is set. Success records
// carry the ledger digest, failure records carry the captured error.
type TransactionRecord struct {
	ID               string            `json:"id"`
	WalletAddress    string            `json:"walletAddress"`
	NormalizedAmount float64           `json:"normalizedAmount"`
	TxHash           string            `json:"txHash,omitempty"`
	Status           TransactionStatus `json:"status"`
	ErrorMessage     string            `json:"errorMessage,omitempty"`
	Country          string            `json:"country"`
	IPAddress        string            `json:"ipAddress"`
	UserAgent        string            `json:"userAgent"`
	ResponseTime     int64             `json:"responseTime"` // milliseconds
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// NewRecordID generates a new UUID v4 for use as a TransactionRecord ID.
func NewRecordID() string {
	return uuid.New().String()
}

// Validate checks the record invariants before it is appended to the store.
func (tr *TransactionRecord) Validate() error {
	if tr.WalletAddress == "" {
		return errRequired("walletAddress")
	}
	if tr.IPAddress == "" {
		return errRequired("ipAddress")
	}
	switch tr.Status {
	case TransactionSuccess:
		if tr.TxHash == "" {
			return errRequired("txHash")
		}
		if tr.ErrorMessage != "" {
			return errExclusive()
		}
	case TransactionFailed:
		if tr.ErrorMessage == "" {
			return errRequired("errorMessage")
		}
		if tr.TxHash != "" {
			return errExclusive()
		}
	default:
		return errInvalidStatus(string(tr.Status))
	}
	return nil
}

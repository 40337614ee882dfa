// Package models - API request types and input validation.
//
// Validation Philosophy:
// - Fail fast with clear error messages for invalid input
// - Normalize input data for consistent processing (trimmed, lowercased addresses)
// - Validate at the start of each handler; handlers never see unvalidated data
package models

import (
	"fmt"
	"regexp"
	"strings"
)

// walletAddressPattern matches a 32-byte hex address with 0x prefix.
var walletAddressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)

// IsValidWalletAddress reports whether s is a well-formed wallet address.
func IsValidWalletAddress(s string) bool {
	return walletAddressPattern.MatchString(s)
}

// FaucetRequest represents a request to dispense funds to a wallet.
// WalletAddress comes from the request body; IPAddress and UserAgent are
// derived from the transport by the handler.
type FaucetRequest struct {
	WalletAddress string `json:"walletAddress"`
	IPAddress     string `json:"-"`
	UserAgent     string `json:"-"`
}

// Validate checks that the request carries a well-formed wallet address and a
// resolvable client IP.
func (r *FaucetRequest) Validate() error {
	if strings.TrimSpace(r.WalletAddress) == "" {
		return fmt.Errorf("walletAddress is required")
	}
	if !walletAddressPattern.MatchString(r.WalletAddress) {
		return fmt.Errorf("walletAddress must be a valid address (0x + 64 hex chars)")
	}
	if r.IPAddress == "" {
		return fmt.Errorf("IP address is required")
	}
	return nil
}

// Normalize lowercases the wallet address so quota keys and stored records
// agree on a canonical form.
func (r *FaucetRequest) Normalize() {
	r.WalletAddress = strings.ToLower(strings.TrimSpace(r.WalletAddress))
}

// CreateSystemSettingRequest carries the initial singleton configuration.
type CreateSystemSettingRequest struct {
	FaucetAmount          float64 `json:"faucetAmount"`
	LimitPerIP            int     `json:"limitPerIp"`
	LimitPerWalletAddress int     `json:"limitPerWalletAddress"`
	TTLPerIP              int     `json:"ttlPerIp"`
	TTLPerWalletAddress   int     `json:"ttlPerWalletAddress"`
	FaucetEnabled         *bool   `json:"isFaucetEnabled"`
	RateLimitEnabled      *bool   `json:"isRateLimitEnabled"`
}

// ToSetting converts the request into a SystemSetting. Enable flags default to
// true when omitted.
func (r *CreateSystemSettingRequest) ToSetting() *SystemSetting {
	s := &SystemSetting{
		FaucetAmount:          r.FaucetAmount,
		LimitPerIP:            r.LimitPerIP,
		LimitPerWalletAddress: r.LimitPerWalletAddress,
		TTLPerIP:              r.TTLPerIP,
		TTLPerWalletAddress:   r.TTLPerWalletAddress,
		FaucetEnabled:         true,
		RateLimitEnabled:      true,
	}
	if r.FaucetEnabled != nil {
		s.FaucetEnabled = *r.FaucetEnabled
	}
	if r.RateLimitEnabled != nil {
		s.RateLimitEnabled = *r.RateLimitEnabled
	}
	return s
}

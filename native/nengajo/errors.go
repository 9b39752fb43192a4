package nengajo

import "errors"

var (
	ErrNilState                  = errors.New("nengajo: state not configured")
	ErrNilGatingToken            = errors.New("nengajo: gating token not configured")
	ErrNilCollectibles           = errors.New("nengajo: collectible ledger not configured")
	ErrInvalidWindow             = errors.New("nengajo: open time after close time")
	ErrInvalidFeeSchedule        = errors.New("nengajo: invalid fee schedule")
	ErrInvalidContentRef         = errors.New("nengajo: invalid content reference")
	ErrUnauthorized              = errors.New("nengajo: admins only")
	ErrInvalidMaxSupply          = errors.New("nengajo: max supply must be positive")
	ErrInsufficientGatingBalance = errors.New("nengajo: insufficient gating token")
	ErrNotFound                  = errors.New("nengajo: design not found")
	ErrNotAvailable              = errors.New("nengajo: not available")
	ErrAlreadyClaimed            = errors.New("nengajo: you already have this design")
	ErrMintLimitReached          = errors.New("nengajo: mint limit reached")
	ErrInsufficientMinterBalance = errors.New("nengajo: insufficient gating token balance")
	ErrNotMintable               = errors.New("nengajo: not mintable")
)

var reasons = []struct {
	err    error
	reason string
}{
	{ErrUnauthorized, "unauthorized"},
	{ErrInvalidMaxSupply, "invalid_max_supply"},
	{ErrInvalidContentRef, "invalid_content_ref"},
	{ErrInsufficientGatingBalance, "insufficient_gating_balance"},
	{ErrNotFound, "not_found"},
	{ErrNotAvailable, "not_available"},
	{ErrAlreadyClaimed, "already_claimed"},
	{ErrMintLimitReached, "mint_limit_reached"},
	{ErrInsufficientMinterBalance, "insufficient_minter_balance"},
	{ErrNotMintable, "not_mintable"},
}

// Reason maps a rejection to a stable machine-readable label. Errors outside
// the rejection taxonomy map to "internal".
func Reason(err error) string {
	if err == nil {
		return ""
	}
	for _, entry := range reasons {
		if errors.Is(err, entry.err) {
			return entry.reason
		}
	}
	return "internal"
}

// IsRejection reports whether err belongs to the rejection taxonomy, as opposed
// to a storage or configuration failure.
func IsRejection(err error) bool {
	return err != nil && Reason(err) != "internal"
}

// IsRetryable reports whether the same call may succeed later without the
// caller changing it: minting not open yet, or a gating balance that can still
// be topped up. Claims and exhausted supply are permanent.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNotMintable) ||
		errors.Is(err, ErrInsufficientMinterBalance) ||
		errors.Is(err, ErrInsufficientGatingBalance)
}

package portal

import "errors"

// User-facing status messages.
const (
	MsgSetThresholds = "❌ Set APY & TVL thresholds first!"
	MsgClaimed       = "✅ Reward Claimed!"
	MsgClaimFailed   = "❌ Transaction failed!"
	MsgOutOfBounds   = "❌ Thresholds out of range!"
)

// BalanceError is shown in place of the balance when the query fails.
const BalanceError = "Error!"

// ErrBusy is returned when a claim is attempted while another is outstanding.
var ErrBusy = errors.New("claim already in progress")

// ValidationError is raised before any network call is made.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

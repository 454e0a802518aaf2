package license

// DenialReason says why a verification did not grant access.
type DenialReason string

const (
	ReasonMissingKey     DenialReason = "missing_key"
	ReasonMissingMachine DenialReason = "missing_machine_id"
	ReasonNotFound       DenialReason = "not_found"
	ReasonExpired        DenialReason = "expired"
	ReasonRevoked        DenialReason = "revoked"
	ReasonDeviceMismatch DenialReason = "device_mismatch"
)

func (r DenialReason) Message() string {
	switch r {
	case ReasonMissingKey:
		return "missing key"
	case ReasonMissingMachine:
		return "missing machine id"
	case ReasonNotFound:
		return "key not found"
	case ReasonExpired:
		return "trial expired"
	case ReasonRevoked:
		return "key revoked"
	case ReasonDeviceMismatch:
		return "key already bound to another device"
	default:
		return string(r)
	}
}

type VerificationResult struct {
	Valid    bool
	Reason   DenialReason
	Type     Type
	DaysLeft *int
	Note     string
	// NewlyBound is true when this verification bound the machine.
	NewlyBound bool
}

func Denied(reason DenialReason) *VerificationResult {
	return &VerificationResult{Reason: reason}
}

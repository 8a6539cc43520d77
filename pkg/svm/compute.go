package svm

// Compute unit cost constants.
// These match the Solana/Agave reference implementation.
const (
	CUDefault = uint64(200_000)   // Default CU limit per instruction
	CUMax     = uint64(1_400_000) // Max CU limit per transaction

	// Native program defaults
	CUSystemProgramDefault = uint64(150)
	CUComputeBudgetDefault = uint64(150)
	CUMemoProgramDefault   = uint64(150)
)

// ComputeMeter tracks compute unit consumption for one transaction.
// Execution is single threaded, so the meter is not synchronized.
type ComputeMeter struct {
	remaining uint64
	consumed  uint64
	limit     uint64
}

// NewComputeMeter creates a new compute meter with the specified limit.
// Limits above CUMax are clamped.
func NewComputeMeter(limit uint64) *ComputeMeter {
	if limit > CUMax {
		limit = CUMax
	}
	return &ComputeMeter{
		remaining: limit,
		limit:     limit,
	}
}

// Consume attempts to consume the specified compute units.
// Returns ErrComputeExceeded if insufficient units remain; the meter is
// drained in that case, matching the runtime.
func (cm *ComputeMeter) Consume(cost uint64) error {
	if cm.remaining < cost {
		cm.consumed += cm.remaining
		cm.remaining = 0
		return ErrComputeExceeded
	}
	cm.remaining -= cost
	cm.consumed += cost
	return nil
}

// SetLimit replaces the limit, as requested by a SetComputeUnitLimit instruction.
// Units already consumed stay consumed.
func (cm *ComputeMeter) SetLimit(limit uint64) error {
	if limit == 0 || limit > CUMax {
		return ErrComputeInvalidLimit
	}
	cm.limit = limit
	if cm.consumed >= limit {
		cm.remaining = 0
	} else {
		cm.remaining = limit - cm.consumed
	}
	return nil
}

// Remaining returns the remaining compute units.
func (cm *ComputeMeter) Remaining() uint64 {
	return cm.remaining
}

// Consumed returns the total consumed compute units.
func (cm *ComputeMeter) Consumed() uint64 {
	return cm.consumed
}

// Limit returns the compute unit limit.
func (cm *ComputeMeter) Limit() uint64 {
	return cm.limit
}

// IsExhausted returns true if compute units are exhausted.
func (cm *ComputeMeter) IsExhausted() bool {
	return cm.remaining == 0
}

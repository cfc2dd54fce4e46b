package model

import "github.com/backkem/selink/pkg/link"

// Faults configures injected framing errors. Counters decrement as faults
// fire.
type Faults struct {
	// BusyPolls is the number of GET_RESPONSE polls answered with READY
	// clear.
	BusyPolls int

	// CorruptResponses is the number of response frames delivered with a
	// broken CRC. A RESEND delivers the intact frame.
	CorruptResponses int

	// StatusErrors is the number of requests first answered with
	// ErrorStatus. The real response follows a RESEND.
	StatusErrors int

	// ErrorStatus is StatusCRCErr or StatusGenErr. Default: StatusGenErr.
	ErrorStatus link.Status

	// Alarm raises the ALARM bit in CHIP_STATUS.
	Alarm bool
}

func (f *Faults) errorStatus() link.Status {
	if f.ErrorStatus == 0 {
		return link.StatusGenErr
	}
	return f.ErrorStatus
}

// SetFaults replaces the fault configuration.
func (c *Chip) SetFaults(f Faults) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults = f
}

// Faults returns the remaining fault configuration.
func (c *Chip) Faults() Faults {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.faults
}

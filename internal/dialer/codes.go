// Package dialer is the HTTP client for the external dialer/CRM system:
// disposition submission and callback scheduling.
package dialer

// DispositionCode is the fixed vocabulary the dialer system accepts.
type DispositionCode string

const (
	DispositionQualifiedSale    DispositionCode = "qualified-sale"
	DispositionNotQualified     DispositionCode = "not-qualified-insurance"
	DispositionNotInterested    DispositionCode = "not-interested"
	DispositionNoAnswer         DispositionCode = "no-answer"
	DispositionAnsweringMachine DispositionCode = "answering-machine"
	DispositionDisconnected     DispositionCode = "disconnected"
	DispositionBusy             DispositionCode = "busy"
	DispositionDeadAir          DispositionCode = "dead-air"
)

// Valid reports whether the code belongs to the accepted vocabulary.
func (c DispositionCode) Valid() bool {
	switch c {
	case DispositionQualifiedSale, DispositionNotQualified, DispositionNotInterested,
		DispositionNoAnswer, DispositionAnsweringMachine, DispositionDisconnected,
		DispositionBusy, DispositionDeadAir:
		return true
	}
	return false
}

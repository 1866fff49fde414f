package detect

import (
	"github.com/fyrsmithlabs/dialerd/internal/dialer"
	"github.com/fyrsmithlabs/dialerd/internal/session"
)

// DispositionForStatus maps a detected status to its terminal disposition
// code. Pure and total over the status enum. LIVE_PERSON returns ok=false:
// a live conversation has no terminal code until a qualification verdict
// arrives.
func DispositionForStatus(status session.CallStatus) (dialer.DispositionCode, bool) {
	switch status {
	case session.StatusLivePerson:
		return "", false
	case session.StatusVoicemail:
		return dialer.DispositionAnsweringMachine, true
	case session.StatusDeadAir:
		return dialer.DispositionDeadAir, true
	case session.StatusBusy, session.StatusFastBusy:
		return dialer.DispositionBusy, true
	case session.StatusNoAnswer:
		return dialer.DispositionNoAnswer, true
	case session.StatusDisconnected:
		return dialer.DispositionDisconnected, true
	case session.StatusFaxTone:
		// Fax lines are unreachable for voice; treated as disconnected.
		return dialer.DispositionDisconnected, true
	case session.StatusIVR:
		// An IVR answered; for dialing purposes that is a machine answer.
		return dialer.DispositionAnsweringMachine, true
	default:
		return dialer.DispositionNoAnswer, true
	}
}

// DispositionForQualification maps an external qualification verdict to a
// disposition code. Pure and total.
func DispositionForQualification(result session.QualificationResult) dialer.DispositionCode {
	if result == session.Qualified {
		return dialer.DispositionQualifiedSale
	}
	return dialer.DispositionNotQualified
}

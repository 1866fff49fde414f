package events

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/fyrsmithlabs/dialerd/internal/faults"
)

// pick returns the first path present in the payload. Platforms have shipped
// the same field at several names and nesting depths over time.
func pick(body []byte, paths ...string) gjson.Result {
	for _, p := range paths {
		if r := gjson.GetBytes(body, p); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}

// DecodeCallStatus extracts a call-status event. Only the call id is
// mandatory; everything else degrades to its zero value.
func DecodeCallStatus(body []byte) (CallStatusEvent, error) {
	const op = "events.decode_call_status"
	if !gjson.ValidBytes(body) {
		return CallStatusEvent{}, faults.New(faults.KindValidation, faults.SourceVoicePlatform, op,
			fmt.Errorf("payload is not valid JSON"))
	}

	ev := CallStatusEvent{
		CallID:          pick(body, "callId", "call.id", "message.call.id").String(),
		PhoneNumber:     pick(body, "phoneNumber", "call.customer.number", "message.call.customer.number").String(),
		Phase:           CallPhase(pick(body, "status", "message.status").String()),
		EndReason:       pick(body, "endReason", "endedReason", "message.endedReason").String(),
		DurationSeconds: int(pick(body, "durationSeconds", "message.durationSeconds").Int()),
	}
	if ev.CallID == "" {
		return CallStatusEvent{}, faults.New(faults.KindValidation, faults.SourceVoicePlatform, op,
			fmt.Errorf("missing call id"))
	}
	return ev, nil
}

// DecodeEndOfCall extracts an end-of-call report.
func DecodeEndOfCall(body []byte) (EndOfCallEvent, error) {
	const op = "events.decode_end_of_call"
	if !gjson.ValidBytes(body) {
		return EndOfCallEvent{}, faults.New(faults.KindValidation, faults.SourceVoicePlatform, op,
			fmt.Errorf("payload is not valid JSON"))
	}

	ev := EndOfCallEvent{
		CallID:       pick(body, "callId", "call.id", "message.call.id").String(),
		EndedReason:  pick(body, "endedReason", "endReason", "message.endedReason").String(),
		Transcript:   pick(body, "transcript", "artifact.transcript", "message.artifact.transcript").String(),
		Summary:      pick(body, "summary", "analysis.summary", "message.analysis.summary").String(),
		MessageCount: int(pick(body, "messageCount", "message.messageCount").Int()),
	}
	if ev.CallID == "" {
		return EndOfCallEvent{}, faults.New(faults.KindValidation, faults.SourceVoicePlatform, op,
			fmt.Errorf("missing call id"))
	}
	return ev, nil
}

// DecodeQualification extracts a qualification verdict. Score is clamped to
// the 0-100 range the classifier documents.
func DecodeQualification(body []byte) (QualificationEvent, error) {
	const op = "events.decode_qualification"
	if !gjson.ValidBytes(body) {
		return QualificationEvent{}, faults.New(faults.KindValidation, faults.SourceCRM, op,
			fmt.Errorf("payload is not valid JSON"))
	}

	ev := QualificationEvent{
		CallID: pick(body, "callId", "call.id").String(),
		UserID: pick(body, "userId", "user.id").String(),
		Result: pick(body, "result", "classification.result").String(),
		Score:  int(pick(body, "score", "classification.score").Int()),
		Reason: pick(body, "reason", "classification.reason").String(),
	}
	if ev.Result == "" {
		return QualificationEvent{}, faults.New(faults.KindValidation, faults.SourceCRM, op,
			fmt.Errorf("missing qualification result"))
	}
	if ev.Score < 0 {
		ev.Score = 0
	}
	if ev.Score > 100 {
		ev.Score = 100
	}
	return ev, nil
}

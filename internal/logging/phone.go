package logging

import "go.uber.org/zap"

// Phone returns a zap field with the phone number masked down to its last
// four digits. Lead phone numbers are PII and must not land in logs verbatim.
func Phone(key, number string) zap.Field {
	return zap.String(key, MaskPhone(number))
}

// MaskPhone replaces all but the last four digits of a phone number.
func MaskPhone(number string) string {
	if len(number) <= 4 {
		return number
	}
	masked := make([]byte, len(number))
	keepFrom := len(number) - 4
	for i := 0; i < len(number); i++ {
		c := number[i]
		if i < keepFrom && c >= '0' && c <= '9' {
			masked[i] = '*'
		} else {
			masked[i] = c
		}
	}
	return string(masked)
}

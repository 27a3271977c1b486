package lpa

import (
	"fmt"
	"strings"
)

// ActivationCode is a decoded "LPA:1$<address>$<matchingId>$<oid>$<ccRequired>" string.
type ActivationCode struct {
	Address                  string
	MatchingID               *string
	OID                      *string
	ConfirmationCodeRequired bool
}

// ParseActivationCode decodes an activation code. The "LPA:" prefix is optional.
func ParseActivationCode(s string) (ActivationCode, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 4 && strings.EqualFold(s[:4], "LPA:") {
		s = s[4:]
	}

	parts := strings.Split(s, "$")
	if len(parts) < 2 || len(parts) > 5 || parts[0] != "1" {
		return ActivationCode{}, fmt.Errorf("%w: unsupported format", ErrInvalidActivationCode)
	}

	ac := ActivationCode{Address: parts[1]}
	if ac.Address == "" {
		return ActivationCode{}, fmt.Errorf("%w: empty address", ErrInvalidActivationCode)
	}
	if len(parts) > 2 && parts[2] != "" {
		ac.MatchingID = &parts[2]
	}
	if len(parts) > 3 && parts[3] != "" {
		ac.OID = &parts[3]
	}
	if len(parts) > 4 {
		switch parts[4] {
		case "", "0":
		case "1":
			ac.ConfirmationCodeRequired = true
		default:
			return ActivationCode{}, fmt.Errorf("%w: bad confirmation code flag %q", ErrInvalidActivationCode, parts[4])
		}
	}
	return ac, nil
}

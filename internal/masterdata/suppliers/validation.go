package suppliers

import (
	"fmt"
	"strings"

	"github.com/ttacon/libphonenumber"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// phoneRegion is assumed for numbers written without a country prefix.
const phoneRegion = "ID"

func normalize(in Input) Input {
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)
	in.ContactPerson = strings.TrimSpace(in.ContactPerson)
	return in
}

// normalizePhone returns the E.164 form of raw. Blank stays blank.
func normalizePhone(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	num, err := libphonenumber.Parse(raw, phoneRegion)
	if err != nil || !libphonenumber.IsValidNumber(num) {
		return "", fmt.Errorf("%w: phone %q is not a valid number", shared.ErrInvalidInput, raw)
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}

func (s *Service) validate(in Input) (Input, error) {
	in = normalize(in)
	if err := shared.Validate(in); err != nil {
		return Input{}, err
	}
	phone, err := normalizePhone(in.Phone)
	if err != nil {
		return Input{}, err
	}
	in.Phone = phone
	return in, nil
}

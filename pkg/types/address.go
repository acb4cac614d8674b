package types

import "strings"

// Address is the shipping destination sent with an order.
type Address struct {
	Recipient  string  `json:"recipient" validate:"required"`
	Line1      string  `json:"line1" validate:"required"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city" validate:"required"`
	State      string  `json:"state" validate:"required"`
	PostalCode string  `json:"postal_code" validate:"required"`
	Country    string  `json:"country"`
	Phone      string  `json:"phone,omitempty"`
}

// Missing lists the json names of required fields that are blank.
func (a Address) Missing() []string {
	missing := []string{}
	required := []struct {
		name  string
		value string
	}{
		{"recipient", a.Recipient},
		{"line1", a.Line1},
		{"city", a.City},
		{"state", a.State},
		{"postal_code", a.PostalCode},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	return missing
}

// Complete reports whether every required field is present.
func (a Address) Complete() bool {
	return len(a.Missing()) == 0
}

// Normalized trims whitespace and defaults the country to US.
func (a Address) Normalized() Address {
	out := Address{
		Recipient:  strings.TrimSpace(a.Recipient),
		Line1:      strings.TrimSpace(a.Line1),
		City:       strings.TrimSpace(a.City),
		State:      strings.TrimSpace(a.State),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(a.Country)),
		Phone:      strings.TrimSpace(a.Phone),
	}
	if a.Line2 != nil {
		if line2 := strings.TrimSpace(*a.Line2); line2 != "" {
			out.Line2 = &line2
		}
	}
	if out.Country == "" {
		out.Country = "US"
	}
	return out
}

package domain

import (
	"fmt"
	"strings"
)

const defaultCountry = "US"

type ShippingAddress struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Street    string `json:"street"`
	City      string `json:"city"`
	State     string `json:"state"`
	ZipCode   string `json:"zipCode"`
	Country   string `json:"country"`
	Phone     string `json:"phone,omitempty"`
}

// Normalize fills defaulted fields. Country is the only one.
func (a *ShippingAddress) Normalize() {
	if a.Country == "" {
		a.Country = defaultCountry
	}
}

// Validate checks that every required field is present. Phone and Country are
// optional. No format checks are done on zip codes or phone numbers; the
// storefront backend owns that contract.
func (a ShippingAddress) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"firstName", a.FirstName},
		{"lastName", a.LastName},
		{"street", a.Street},
		{"city", a.City},
		{"state", a.State},
		{"zipCode", a.ZipCode},
	}

	var missing []string
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return &AddressValidationError{Missing: missing}
	}
	return nil
}

// Complete reports whether the address would pass Validate.
func (a ShippingAddress) Complete() bool {
	return a.Validate() == nil
}

type AddressValidationError struct {
	Missing []string
}

func (e *AddressValidationError) Error() string {
	return fmt.Sprintf("shipping address is missing required fields: %s", strings.Join(e.Missing, ", "))
}

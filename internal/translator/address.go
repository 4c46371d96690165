package translator

import (
	"regexp"
	"strings"

	"garan24-bridge/internal/garan24"
	"garan24-bridge/internal/model"
)

var streetPattern = regexp.MustCompile(`^(.+?)\s*(\d+)\s*(.*)$`)

// SplitStreet splits "Hoofdstraat 12 a" into street, house number and
// extension. Addresses without a number come back whole.
func SplitStreet(s string) (street, number, extension string) {
	s = strings.TrimSpace(s)
	m := streetPattern.FindStringSubmatch(s)
	if m == nil {
		return s, "", ""
	}
	return strings.TrimSpace(m[1]), m[2], strings.TrimSpace(m[3])
}

// splitsStreet reports whether KPM wants house numbers separately.
func splitsStreet(country string) bool {
	switch strings.ToUpper(country) {
	case "NL", "DE":
		return true
	}
	return false
}

// KPMAddress converts an order address for the KPM methods. Email and
// phone are taken from billing when the address itself has none.
func KPMAddress(a, billing model.Address) garan24.KPMAddress {
	email, phone := a.Email, a.Phone
	if email == "" {
		email = billing.Email
	}
	if phone == "" {
		phone = billing.Phone
	}
	k := garan24.KPMAddress{
		Email:     email,
		Telno:     phone,
		Cellno:    phone,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Company:   a.Company,
		Street:    a.Address1,
		Zip:       strings.ReplaceAll(a.Postcode, " ", ""),
		City:      a.City,
		Country:   strings.ToUpper(a.Country),
	}
	if splitsStreet(a.Country) {
		k.Street, k.HouseNumber, k.HouseExtension = SplitStreet(a.Address1)
	}
	return k
}

// FromProviderAddress converts an address returned by the checkout. German
// and Austrian checkouts return street name and number separately.
func FromProviderAddress(a *garan24.Address, purchaseCountry string) model.Address {
	if a == nil {
		return model.Address{}
	}
	street := a.StreetAddress
	switch strings.ToUpper(purchaseCountry) {
	case "DE", "AT":
		street = strings.TrimSpace(a.StreetName + " " + a.StreetNumber)
	}
	return model.Address{
		FirstName: a.GivenName,
		LastName:  a.FamilyName,
		Company:   a.Organization,
		Address1:  street,
		Address2:  a.CareOf,
		City:      a.City,
		State:     a.Region,
		Postcode:  a.PostalCode,
		Country:   strings.ToUpper(a.Country),
		Email:     a.Email,
		Phone:     a.Phone,
	}
}

// ProviderAddress converts an order address for a checkout order.
func ProviderAddress(a model.Address) *garan24.Address {
	if a.IsZero() {
		return nil
	}
	return &garan24.Address{
		GivenName:     a.FirstName,
		FamilyName:    a.LastName,
		Organization:  a.Company,
		Email:         a.Email,
		StreetAddress: a.Address1,
		CareOf:        a.Address2,
		PostalCode:    a.Postcode,
		City:          a.City,
		Region:        a.State,
		Phone:         a.Phone,
		Country:       strings.ToUpper(a.Country),
	}
}

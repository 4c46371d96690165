// Package country maps purchase countries to the currency, language and
// locale the Garan24 API expects for them.
package country

import "strings"

// Info describes how orders from one country are sent to Garan24.
type Info struct {
	Code     string // ISO 3166 alpha-2, normalized (NB→NO, SV→SE)
	Currency string
	Language string // checkout language, e.g. "sv-se"
	KPMLang  string // KPM language code, e.g. "SV"
	Rest     bool   // country is served by the REST API
}

var table = map[string]Info{
	"DK": {Code: "DK", Currency: "DKK", Language: "da", KPMLang: "DA"},
	"DE": {Code: "DE", Currency: "EUR", Language: "de-de", KPMLang: "DE"},
	"NL": {Code: "NL", Currency: "EUR", Language: "nl", KPMLang: "NL"},
	"NO": {Code: "NO", Currency: "NOK", Language: "nb-no", KPMLang: "NB"},
	"FI": {Code: "FI", Currency: "EUR", Language: "fi-fi", KPMLang: "FI"},
	"SE": {Code: "SE", Currency: "SEK", Language: "sv-se", KPMLang: "SV"},
	"AT": {Code: "AT", Currency: "EUR", Language: "de-at", KPMLang: "DE"},
	"GB": {Code: "GB", Currency: "GBP", Language: "en-gb", Rest: true},
	"US": {Code: "US", Currency: "USD", Language: "en-us", Rest: true},
}

// Normalize upper-cases a country code and folds the language-style codes
// some shops store (NB, SV) onto their countries.
func Normalize(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	switch code {
	case "NB":
		return "NO"
	case "SV":
		return "SE"
	case "UK":
		return "GB"
	}
	return code
}

// Lookup resolves a country. language is the shop or customer language
// ("sv", "sv_SE"); it only matters for Finland, where Swedish speakers get
// the sv-fi checkout.
func Lookup(code, language string) (Info, bool) {
	info, ok := table[Normalize(code)]
	if !ok {
		return Info{}, false
	}
	if info.Code == "FI" && strings.HasPrefix(strings.ToLower(language), "sv") {
		info.Language = "sv-fi"
	}
	return info, true
}

// Currency returns the currency Garan24 settles in for a country, or "".
func Currency(code string) string {
	return table[Normalize(code)].Currency
}

// IsRest reports whether the country is served by the REST API.
func IsRest(code string) bool {
	return table[Normalize(code)].Rest
}

// Supported lists every country the bridge can send to Garan24.
func Supported() []string {
	return []string{"SE", "NO", "FI", "DK", "DE", "NL", "AT", "GB", "US"}
}

// EuroCountries are the countries that share the EUR checkout.
func EuroCountries() []string {
	return []string{"DE", "FI", "NL", "AT"}
}

// Locale converts a WordPress locale into the Garan24 locale. Unknown
// locales yield "".
func Locale(wpLocale string) string {
	switch wpLocale {
	case "da_DK":
		return "da_dk"
	case "de_DE":
		return "de_de"
	case "no_NO", "nb_NO", "nn_NO":
		return "nb_no"
	case "nl_NL":
		return "nl_nl"
	case "fi_FI", "fi":
		return "fi_fi"
	case "sv_SE":
		return "sv_se"
	case "de_AT":
		return "de_at"
	case "en_GB":
		return "en_gb"
	case "en_US":
		return "en_se"
	default:
		return ""
	}
}

// ForCurrency returns the single country settling in currency. EUR is
// shared by several countries and yields "".
func ForCurrency(currency string) string {
	currency = strings.ToUpper(currency)
	if currency == "EUR" {
		return ""
	}
	for _, code := range Supported() {
		if table[code].Currency == currency {
			return code
		}
	}
	return ""
}

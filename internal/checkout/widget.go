package checkout

import (
	"bytes"
	"embed"
	"html/template"

	"garan24-bridge/internal/country"
	"garan24-bridge/internal/model"
	"garan24-bridge/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type itemView struct {
	Key      string
	Name     string
	Quantity int
	Total    string
}

type rateView struct {
	RateID   string
	Label    string
	Price    string
	Selected bool
}

type amountView struct {
	Name   string
	Amount string
}

// widgetView is the cart as the widget shows it. Amounts include tax.
type widgetView struct {
	Items         []itemView
	Subtotal      string
	ShippingRates []rateView
	Fees          []amountView
	Coupons       []amountView
	Taxes         string
	Total         string
	OrderNote     string
}

func newWidgetView(cart *model.Cart, note string) widgetView {
	cur := cart.Currency
	v := widgetView{
		Subtotal:  model.FormatMoney(cart.Subtotal+cart.SubtotalTax, cur),
		Total:     model.FormatMoney(cart.Total, cur),
		OrderNote: note,
	}
	for _, it := range cart.Items {
		v.Items = append(v.Items, itemView{
			Key:      it.Key,
			Name:     it.Name,
			Quantity: it.Quantity,
			Total:    model.FormatMoney(it.LineTotal+it.LineTax, cur),
		})
	}
	for _, r := range cart.ShippingRates {
		v.ShippingRates = append(v.ShippingRates, rateView{
			RateID:   r.RateID,
			Label:    r.Label,
			Price:    model.FormatMoney(r.Price+r.Tax, cur),
			Selected: r.Selected || r.RateID == cart.ChosenShipping,
		})
	}
	for _, f := range cart.Fees {
		v.Fees = append(v.Fees, amountView{Name: f.Name, Amount: model.FormatMoney(f.Total+f.Tax, cur)})
	}
	for _, cp := range cart.Coupons {
		v.Coupons = append(v.Coupons, amountView{Name: cp.Code, Amount: model.FormatMoney(cp.Discount+cp.DiscountTax, cur)})
	}
	if cart.TotalTax > 0 {
		v.Taxes = model.FormatMoney(cart.TotalTax, cur)
	}
	return v
}

type countryOption struct {
	Code     string
	Selected bool
}

type countryView struct {
	Countries []countryOption
}

func newCountryView(selected string) countryView {
	var v countryView
	for _, code := range country.EuroCountries() {
		v.Countries = append(v.Countries, countryOption{Code: code, Selected: code == selected})
	}
	return v
}

type pageView struct {
	Lang         string
	Nonce        string
	Empty        bool
	CartURL      string
	Errors       []string
	EuroCheckout bool
	Country      countryView
	Widget       widgetView
	Snippet      template.HTML
}

type confirmationView struct {
	OrderID string
	Errors  []string
	Snippet template.HTML
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WidgetHTML renders the cart widget shown next to the checkout iframe.
func WidgetHTML(cart *model.Cart, sess *session.Session) (string, error) {
	return render("widget", newWidgetView(cart, sess.OrderNote))
}

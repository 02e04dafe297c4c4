package payment

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultEndpoint = "https://checkout.wompi.co/p/"
	DefaultCurrency = "COP"
)

var ErrInvalidCheckout = errors.New("invalid checkout parameters")

// Config describes the hosted checkout page.
type Config struct {
	Endpoint    string
	PublicKey   string
	Currency    string
	RedirectURL string
}

// Param is one query parameter of the hosted checkout, in the order the
// provider documents them.
type Param struct {
	Name  string
	Value string
}

// Validate checks the parts of the configuration that do not depend on a
// particular donation.
func (c Config) Validate() error {
	if strings.TrimSpace(c.PublicKey) == "" {
		return fmt.Errorf("%w: public key is not configured", ErrInvalidCheckout)
	}
	if _, err := url.Parse(c.endpoint()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCheckout, err)
	}
	if _, err := url.Parse(c.RedirectURL); err != nil {
		return fmt.Errorf("%w: redirect url: %v", ErrInvalidCheckout, err)
	}
	return nil
}

// Params returns the checkout parameters for a total in whole pesos.
func (c Config) Params(amount int64, reference string) ([]Param, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidCheckout)
	}
	if strings.TrimSpace(reference) == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrInvalidCheckout)
	}
	currency := c.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	params := []Param{
		{"public-key", c.PublicKey},
		{"amount-in-cents", strconv.FormatInt(amount*100, 10)},
		{"currency", currency},
		{"reference", reference},
	}
	if c.RedirectURL != "" {
		redirect, err := url.Parse(c.RedirectURL)
		if err != nil {
			return nil, fmt.Errorf("%w: redirect url: %v", ErrInvalidCheckout, err)
		}
		q := redirect.Query()
		q.Set("reference", reference)
		redirect.RawQuery = q.Encode()
		params = append(params, Param{"redirect-url", redirect.String()})
	}
	return params, nil
}

func (c Config) endpoint() string {
	if c.Endpoint == "" {
		return DefaultEndpoint
	}
	return c.Endpoint
}

// CheckoutURL builds the redirect to the hosted checkout.
func (c Config) CheckoutURL(amount int64, reference string) (string, error) {
	params, err := c.Params(amount, reference)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(c.endpoint())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCheckout, err)
	}
	q := u.Query()
	for _, p := range params {
		q.Set(p.Name, p.Value)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

var formTmpl = template.Must(template.New("checkout").Parse(checkoutHTML))

// RenderForm writes a page with a GET form that submits itself to the
// hosted checkout.
func (c Config) RenderForm(w io.Writer, amount int64, reference string) error {
	params, err := c.Params(amount, reference)
	if err != nil {
		return err
	}
	return formTmpl.Execute(w, struct {
		Action string
		Params []Param
	}{c.endpoint(), params})
}

const checkoutHTML = `<!DOCTYPE html>
<html lang="es">
<head>
<meta charset="utf-8">
<title>Redirigiendo al pago</title>
</head>
<body onload="document.forms[0].submit()">
<form id="checkout" action="{{.Action}}" method="GET">
{{- range .Params}}
<input type="hidden" name="{{.Name}}" value="{{.Value}}">
{{- end}}
<noscript><button type="submit">Dona ahora y regala sonrisas</button></noscript>
</form>
</body>
</html>
`

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sw33tLie/sponsorcards/pkg/whttp"
	"github.com/tidwall/gjson"
)

const (
	CARDS_ENDPOINT    = "/api/v1/card"
	DONATION_ENDPOINT = "/api/v1/donation"
)

var (
	// ErrUnexpectedShape means the backend answered with a body that does not
	// follow the documented schema.
	ErrUnexpectedShape = errors.New("unexpected backend response shape")
	// ErrMissingReference means a donation was accepted without a usable reference.
	ErrMissingReference = errors.New("backend returned no donation reference")
)

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned HTTP %d: %s", e.StatusCode, e.Message)
}

// Card is one entry of the backend card list.
type Card struct {
	ID      string `json:"id,omitempty"`
	Ref     string `json:"ref"`
	Name    string `json:"name"`
	URL     string `json:"url"`
	Donated bool   `json:"donated"`
}

// DonationPayload is the body of POST /api/v1/donation.
type DonationPayload struct {
	Name        string  `json:"name"`
	IDType      string  `json:"id_type"`
	IDNumber    string  `json:"id_number"`
	Email       string  `json:"email"`
	Address     string  `json:"address"`
	Phone       string  `json:"phone"`
	Children    *string `json:"children"`
	PeopleDonor string  `json:"people_donor"`
}

// Donation is what the backend returns for an accepted donation.
type Donation struct {
	Reference string
	ID        string
}

type Client struct {
	baseURL string
	list    *retryablehttp.Client
	submit  *retryablehttp.Client
}

type Option func(*options)

type options struct {
	retries int
	timeout time.Duration
}

// WithRetries sets how many times a card list request is retried.
// Donation submissions are never retried.
func WithRetries(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.retries = n
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func New(baseURL string, opts ...Option) *Client {
	o := options{retries: 3, timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		list:    whttp.NewClient(o.retries, o.timeout),
		submit:  whttp.NewClient(0, o.timeout),
	}
}

// ListCards fetches the authoritative card list.
func (c *Client) ListCards(ctx context.Context) ([]Card, error) {
	res, err := whttp.SendHTTPRequest(ctx, &whttp.WHTTPReq{
		Method: "GET",
		URL:    c.baseURL + CARDS_ENDPOINT,
	}, c.list)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	if !res.IsSuccess() {
		return nil, statusError(res)
	}
	return ParseCardList(res.BodyString)
}

// CreateDonation submits a donation and returns its reference.
func (c *Client) CreateDonation(ctx context.Context, p DonationPayload) (*Donation, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	res, err := whttp.SendHTTPRequest(ctx, &whttp.WHTTPReq{
		Method: "POST",
		URL:    c.baseURL + DONATION_ENDPOINT,
		Body:   body,
	}, c.submit)
	if err != nil {
		return nil, fmt.Errorf("submit donation: %w", err)
	}
	if !res.IsSuccess() {
		return nil, statusError(res)
	}
	return ParseDonation(res.BodyString)
}

// ParseCardList validates and decodes {"data":[{ref,name,url,donated}, ...]}.
func ParseCardList(body string) ([]Card, error) {
	if !gjson.Valid(body) {
		return nil, fmt.Errorf("%w: card list is not valid JSON", ErrUnexpectedShape)
	}
	root := gjson.Parse(body)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: card list is not an object", ErrUnexpectedShape)
	}
	data := root.Get("data")
	if !data.IsArray() {
		return nil, fmt.Errorf("%w: data is not an array", ErrUnexpectedShape)
	}

	elems := data.Array()
	cards := make([]Card, 0, len(elems))
	for i, el := range elems {
		if !el.IsObject() {
			return nil, fmt.Errorf("%w: data[%d] is not an object", ErrUnexpectedShape, i)
		}
		ref := el.Get("ref")
		if ref.Type != gjson.String || strings.TrimSpace(ref.Str) == "" {
			return nil, fmt.Errorf("%w: data[%d].ref must be a non-empty string", ErrUnexpectedShape, i)
		}
		donated := el.Get("donated")
		if donated.Type != gjson.True && donated.Type != gjson.False {
			return nil, fmt.Errorf("%w: data[%d].donated must be a boolean", ErrUnexpectedShape, i)
		}
		for _, f := range []string{"name", "url"} {
			if v := el.Get(f); v.Exists() && v.Type != gjson.String && v.Type != gjson.Null {
				return nil, fmt.Errorf("%w: data[%d].%s must be a string", ErrUnexpectedShape, i, f)
			}
		}
		cards = append(cards, Card{
			ID:      el.Get("id").String(),
			Ref:     ref.Str,
			Name:    el.Get("name").Str,
			URL:     el.Get("url").Str,
			Donated: donated.Bool(),
		})
	}
	return cards, nil
}

// ParseDonation reads {"data":{"reference":"...","id":...}}.
func ParseDonation(body string) (*Donation, error) {
	if !gjson.Valid(body) || !gjson.Parse(body).IsObject() {
		return nil, fmt.Errorf("%w: donation response is not a JSON object", ErrUnexpectedShape)
	}
	ref := gjson.Get(body, "data.reference")
	if ref.Type != gjson.String || strings.TrimSpace(ref.Str) == "" {
		return nil, ErrMissingReference
	}
	return &Donation{
		Reference: strings.TrimSpace(ref.Str),
		ID:        gjson.Get(body, "data.id").String(),
	}, nil
}

func statusError(res *whttp.WHTTPRes) *StatusError {
	e := &StatusError{StatusCode: res.StatusCode}
	if gjson.Valid(res.BodyString) {
		e.Message = gjson.Get(res.BodyString, "message").String()
	}
	if e.Message == "" {
		e.Message = res.HTTPTitle
	}
	return e
}

package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ExtractedData is the structured form of a rental listing. Every field is
// optional; extraction and review fill it progressively.
type ExtractedData struct {
	ListingURL        string         `json:"listing_url,omitempty"`
	Address           string         `json:"address,omitempty"`
	Description       string         `json:"description,omitempty"`
	ImageURLs         []string       `json:"image_urls,omitempty"`
	CommunicationText string         `json:"communication_text,omitempty"`
	HostName          string         `json:"host_name,omitempty"`
	HostEmail         string         `json:"host_email,omitempty"`
	HostPhone         string         `json:"host_phone,omitempty"`
	HostProfile       map[string]any `json:"host_profile,omitempty"`
	PriceDetails      *PriceDetails  `json:"price_details,omitempty"`
	Reviews           []Review       `json:"reviews,omitempty"`
	PropertyType      string         `json:"property_type,omitempty"`
	CheckIn           string         `json:"check_in,omitempty"`
	CheckOut          string         `json:"check_out,omitempty"`
	NumberOfPeople    *int           `json:"number_of_people,omitempty"`
}

// Review is a loosely-typed review record as returned by extraction.
type Review map[string]any

// PriceDetails holds the price breakdown of a listing. Backends that only
// know a free-text price exchange it as a plain JSON string.
type PriceDetails struct {
	Text            string `json:"text,omitempty"`
	BasePrice       string `json:"base_price,omitempty"`
	CleaningFee     string `json:"cleaning_fee,omitempty"`
	ServiceFee      string `json:"service_fee,omitempty"`
	SecurityDeposit string `json:"security_deposit,omitempty"`
	Taxes           string `json:"taxes,omitempty"`
	Discounts       string `json:"discounts,omitempty"`
	PaymentTerms    string `json:"payment_terms,omitempty"`
}

type priceDetailsObject PriceDetails

// IsZero reports whether no price information is present.
func (p *PriceDetails) IsZero() bool {
	return p == nil || *p == PriceDetails{}
}

func (p PriceDetails) onlyText() bool {
	rest := p
	rest.Text = ""
	return rest == PriceDetails{}
}

// MarshalJSON writes a text-only price as a string and anything richer as an object.
func (p PriceDetails) MarshalJSON() ([]byte, error) {
	if p.onlyText() {
		return json.Marshal(p.Text)
	}
	return json.Marshal(priceDetailsObject(p))
}

// UnmarshalJSON accepts either a string or an object.
func (p *PriceDetails) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*p = PriceDetails{Text: text}
		return nil
	}
	var obj priceDetailsObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("price_details: %w", err)
	}
	*p = PriceDetails(obj)
	return nil
}

// Clone returns a deep copy so a submitted snapshot never shares memory with a draft.
func (d ExtractedData) Clone() ExtractedData {
	out := d
	if d.ImageURLs != nil {
		out.ImageURLs = append([]string(nil), d.ImageURLs...)
	}
	if d.PriceDetails != nil {
		p := *d.PriceDetails
		out.PriceDetails = &p
	}
	if d.NumberOfPeople != nil {
		n := *d.NumberOfPeople
		out.NumberOfPeople = &n
	}
	out.HostProfile = cloneMap(d.HostProfile)
	if d.Reviews != nil {
		out.Reviews = make([]Review, len(d.Reviews))
		for i, r := range d.Reviews {
			out.Reviews[i] = Review(cloneMap(r))
		}
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	var out map[string]any
	_ = json.Unmarshal(data, &out)
	return out
}

// IsEmpty reports whether nothing has been extracted yet.
func (d ExtractedData) IsEmpty() bool {
	return d.ListingURL == "" && d.Address == "" && d.Description == "" &&
		len(d.ImageURLs) == 0 && d.CommunicationText == "" && d.HostName == "" &&
		d.HostEmail == "" && d.HostPhone == "" && len(d.HostProfile) == 0 &&
		d.PriceDetails.IsZero() && len(d.Reviews) == 0 && d.PropertyType == "" &&
		d.CheckIn == "" && d.CheckOut == "" && d.NumberOfPeople == nil
}

// MissingEssentials lists the minimum-viable fields that are absent.
func (d ExtractedData) MissingEssentials() []string {
	var missing []string
	if strings.TrimSpace(d.Address) == "" {
		missing = append(missing, "address")
	}
	if strings.TrimSpace(d.Description) == "" {
		missing = append(missing, "description")
	}
	if d.PriceDetails.IsZero() {
		missing = append(missing, "price_details")
	}
	return missing
}

// Validate checks the field-level invariants: image URLs must be valid and
// unique, and the number of people must not be negative.
func (d ExtractedData) Validate() error {
	seen := make(map[string]struct{}, len(d.ImageURLs))
	for _, u := range d.ImageURLs {
		if err := ValidateImageURL(u); err != nil {
			return err
		}
		if _, dup := seen[u]; dup {
			return fmt.Errorf("duplicate image url %q", u)
		}
		seen[u] = struct{}{}
	}
	if d.NumberOfPeople != nil && *d.NumberOfPeople < 0 {
		return errors.New("number_of_people must not be negative")
	}
	return nil
}

// ValidateImageURL requires an absolute http(s) URL with a host.
func ValidateImageURL(raw string) error {
	u, err := url.ParseRequestURI(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid image url %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid image url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid image url %q: missing host", raw)
	}
	return nil
}

// HasImage reports whether u is already in the image list.
func (d ExtractedData) HasImage(u string) bool {
	for _, existing := range d.ImageURLs {
		if existing == u {
			return true
		}
	}
	return false
}

// SetField assigns value to a dotted field path such as "address",
// "price_details.cleaning_fee" or "host_profile.languages". The receiver is
// left untouched when an error is returned.
func (d *ExtractedData) SetField(path string, value any) error {
	path = strings.TrimSpace(path)
	head, rest, nested := strings.Cut(path, ".")

	next := d.Clone()
	switch head {
	case "price_details":
		if !nested {
			text, err := asString(value)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			next.PriceDetails = &PriceDetails{Text: text}
			break
		}
		if next.PriceDetails == nil {
			next.PriceDetails = &PriceDetails{}
		}
		field := priceField(next.PriceDetails, rest)
		if field == nil {
			return fmt.Errorf("unknown field %q", path)
		}
		text, err := asString(value)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		*field = text
	case "host_profile":
		if !nested || rest == "" {
			return fmt.Errorf("%s: a key is required, e.g. host_profile.languages", path)
		}
		if next.HostProfile == nil {
			next.HostProfile = make(map[string]any)
		}
		if value == nil {
			delete(next.HostProfile, rest)
		} else {
			next.HostProfile[rest] = value
		}
	case "number_of_people":
		if nested {
			return fmt.Errorf("unknown field %q", path)
		}
		n, clear, err := asCount(value)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if clear {
			next.NumberOfPeople = nil
		} else {
			next.NumberOfPeople = &n
		}
	default:
		if nested {
			return fmt.Errorf("unknown field %q", path)
		}
		field := stringField(&next, head)
		if field == nil {
			return fmt.Errorf("unknown field %q", path)
		}
		text, err := asString(value)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		*field = text
	}

	*d = next
	return nil
}

func stringField(d *ExtractedData, name string) *string {
	switch name {
	case "listing_url":
		return &d.ListingURL
	case "address":
		return &d.Address
	case "description":
		return &d.Description
	case "communication_text":
		return &d.CommunicationText
	case "host_name":
		return &d.HostName
	case "host_email":
		return &d.HostEmail
	case "host_phone":
		return &d.HostPhone
	case "property_type":
		return &d.PropertyType
	case "check_in":
		return &d.CheckIn
	case "check_out":
		return &d.CheckOut
	}
	return nil
}

func priceField(p *PriceDetails, name string) *string {
	switch name {
	case "text":
		return &p.Text
	case "base_price":
		return &p.BasePrice
	case "cleaning_fee":
		return &p.CleaningFee
	case "service_fee":
		return &p.ServiceFee
	case "security_deposit":
		return &p.SecurityDeposit
	case "taxes":
		return &p.Taxes
	case "discounts":
		return &p.Discounts
	case "payment_terms":
		return &p.PaymentTerms
	}
	return nil
}

func asString(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	case int, int64, float64, bool:
		return fmt.Sprint(v), nil
	}
	return "", fmt.Errorf("expected text, got %T", value)
}

func asCount(value any) (n int, clear bool, err error) {
	switch v := value.(type) {
	case nil:
		return 0, true, nil
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		if v != float64(int(v)) {
			return 0, false, errors.New("must be a whole number")
		}
		n = int(v)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, true, nil
		}
		n, err = strconv.Atoi(s)
		if err != nil {
			return 0, false, errors.New("must be a whole number")
		}
	default:
		return 0, false, fmt.Errorf("expected a number, got %T", value)
	}
	if n < 0 {
		return 0, false, errors.New("must not be negative")
	}
	return n, false, nil
}

package rates

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrFeedFetch = errors.New("feed fetch failed")
	ErrFeedParse = errors.New("feed parse failed")
)

// currencyElement mirrors one <currency> node of the exchange feed
type currencyElement struct {
	NumericCode  string `xml:"r030"`
	Name         string `xml:"txt"`
	Rate         string `xml:"rate"`
	Code         string `xml:"cc"`
	ExchangeDate string `xml:"exchangedate"`
}

// ParseFeed extracts every <currency> element, at any depth, from an XML
// document. Entries without a code are dropped and unreadable rates become 0.
// Only a document that is not well-formed XML fails the whole feed.
func ParseFeed(r io.Reader) ([]Entry, error) {
	dec := xml.NewDecoder(r)
	var (
		entries []Entry
		sawRoot bool
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFeedParse, err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		sawRoot = true
		if start.Name.Local != "currency" {
			continue
		}

		var el currencyElement
		if err := dec.DecodeElement(&el, &start); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFeedParse, err)
		}

		code := strings.TrimSpace(el.Code)
		if code == "" {
			continue
		}
		entries = append(entries, Entry{
			Code:         code,
			Rate:         parseRate(el.Rate),
			NumericCode:  strings.TrimSpace(el.NumericCode),
			Name:         strings.TrimSpace(el.Name),
			ExchangeDate: strings.TrimSpace(el.ExchangeDate),
		})
	}

	if !sawRoot {
		return nil, fmt.Errorf("%w: no root element", ErrFeedParse)
	}
	return entries, nil
}

// BuildFromFeed parses raw feed content into a Table
func BuildFromFeed(base string, r io.Reader) (*Table, error) {
	entries, err := ParseFeed(r)
	if err != nil {
		return nil, err
	}
	return NewTable(base, entries), nil
}

func parseRate(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// SPDX-License-Identifier: MIT

package gflights

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// RawOffer is one result row as scraped, before normalization. Fields hold
// the visible text of the page; missing fields are empty strings, which is
// normal for partial rows (e.g. trains or offers without emission data).
type RawOffer struct {
	DepartureTime  string
	ArrivalTime    string
	Airline        string
	Duration       string
	Stops          string
	Price          string
	Emissions      string
	EmissionsDelta string
}

// Class and aria-label markers of the result page. These track the page's
// obfuscated class names and break when the page is redesigned; the golden
// fixture test pins the currently supported layout.
const (
	classOfferRow       = "pIav2d"
	classAirline        = "sSHqwe"
	classDuration       = "gvkrdb"
	classStopsOuter     = "EfT7Ae"
	classStopsInner     = "ogfYpf"
	classPrice          = "FpEdX"
	classEmissions      = "O7CXue"
	classEmissionsDelta = "N6PNV"

	ariaDeparture = "Departure time"
	ariaArrival   = "Arrival time"
)

// ParseResults extracts the offer rows from a search result page.
// It returns ErrNoResults when the document parses but holds no rows.
func ParseResults(r io.Reader) ([]RawOffer, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var offers []RawOffer
	for _, row := range findAllByClass(doc, classOfferRow) {
		offers = append(offers, parseRow(row))
	}
	if len(offers) == 0 {
		return nil, ErrNoResults
	}
	return offers, nil
}

func parseRow(row *html.Node) RawOffer {
	o := RawOffer{
		DepartureTime:  innerText(findByAriaPrefix(row, "span", ariaDeparture)),
		ArrivalTime:    innerText(findByAriaPrefix(row, "span", ariaArrival)),
		Airline:        innerText(findByClass(row, classAirline)),
		Duration:       innerText(findByClassTag(row, "div", classDuration)),
		Emissions:      innerText(findByClassTag(row, "div", classEmissions)),
		EmissionsDelta: innerText(findByClassTag(row, "div", classEmissionsDelta)),
	}
	if outer := findByClassTag(row, "div", classStopsOuter); outer != nil {
		o.Stops = innerText(findByClassTag(outer, "span", classStopsInner))
	}
	// Price sits in a span nested under the FpEdX div.
	if priceDiv := findByClassTag(row, "div", classPrice); priceDiv != nil {
		o.Price = innerText(findByTag(priceDiv, "span"))
	}
	return o
}

// --- node helpers ---

func hasClass(n *html.Node, class string) bool {
	if n == nil || n.Type != html.ElementNode || class == "" {
		return false
	}
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func walk(n *html.Node, visit func(*html.Node) bool) bool {
	if n == nil {
		return true
	}
	if n.Type == html.ElementNode {
		if !visit(n) {
			return false
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, visit) {
			return false
		}
	}
	return true
}

func findAllByClass(root *html.Node, class string) []*html.Node {
	var out []*html.Node
	walk(root, func(n *html.Node) bool {
		if hasClass(n, class) {
			out = append(out, n)
		}
		return true
	})
	return out
}

func findByClass(root *html.Node, class string) *html.Node {
	if class == "" {
		return root
	}
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if hasClass(n, class) {
			found = n
			return false
		}
		return true
	})
	return found
}

func findByClassTag(root *html.Node, tag, class string) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if n.Data == tag && hasClass(n, class) {
			found = n
			return false
		}
		return true
	})
	return found
}

func findByTag(root *html.Node, tag string) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if n.Data == tag {
			found = n
			return false
		}
		return true
	})
	return found
}

func findByAriaPrefix(root *html.Node, tag, prefix string) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if n.Data == tag && strings.HasPrefix(attrVal(n, "aria-label"), prefix) {
			found = n
			return false
		}
		return true
	})
	return found
}

func innerText(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.TrimSpace(b.String())
}

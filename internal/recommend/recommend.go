// SPDX-License-Identifier: MIT

package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/farewatch/farewatch/internal/flights"
)

// ErrNoMatch is returned when no offer satisfies the preferences.
var ErrNoMatch = errors.New("recommend: no offer matches the preferences")

// Completer is the chat surface the recommender needs. *Client
// implements it.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Recommendation is the outcome of a recommendation request.
type Recommendation struct {
	Offer   flights.Offer `json:"offer"`
	Summary string        `json:"summary"`
	// LLMUsed is false when the model was unavailable and the summary
	// fell back to a locally generated one.
	LLMUsed bool `json:"llm_used"`
}

// Recommender ranks a search's offers against user preferences and asks
// the chat model to phrase the winner.
type Recommender struct {
	chat Completer
}

// New builds a Recommender on top of a chat completer.
func New(chat Completer) *Recommender {
	return &Recommender{chat: chat}
}

const systemPrompt = "You are a travel assistant. You are given exactly one flight " +
	"recommendation chosen by the booking system. Present it to the traveler in a short, " +
	"friendly paragraph. Mention the airline, departure time, duration, stops and price. " +
	"Do not invent flights or prices, and never suggest alternatives."

// Recommend picks the cheapest offer matching the criteria (ties broken
// by earlier departure) and returns it with a phrased summary. notes is
// free-text traveler context the model may address in its phrasing; it
// never influences the selection. A chat failure degrades to a plain
// generated summary instead of failing the request.
func (r *Recommender) Recommend(ctx context.Context, offers []flights.Offer, c flights.Criteria, notes string) (*Recommendation, error) {
	best, ok := flights.Best(offers, c)
	if !ok {
		return nil, ErrNoMatch
	}

	rec := &Recommendation{Offer: best}

	user := describeOffer(best)
	if n := strings.TrimSpace(notes); n != "" {
		user += "\nTraveler notes: " + n
	}
	summary, err := r.chat.Complete(ctx, []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: user},
	})
	if err != nil {
		rec.Summary = fallbackSummary(best)
		return rec, nil
	}

	rec.Summary = summary
	rec.LLMUsed = true
	return rec, nil
}

// describeOffer renders the chosen offer as the user turn of the chat.
func describeOffer(o flights.Offer) string {
	var b strings.Builder
	b.WriteString("Recommended flight:\n")
	fmt.Fprintf(&b, "- Airline: %s\n", o.Airline)
	fmt.Fprintf(&b, "- Departure: %s\n", o.Departure)
	fmt.Fprintf(&b, "- Arrival: %s\n", o.Arrival)
	fmt.Fprintf(&b, "- Duration: %s\n", o.Duration)
	fmt.Fprintf(&b, "- Price: %s\n", priceString(o))
	fmt.Fprintf(&b, "- Stops: %d\n", o.Stops)
	if o.Emissions != "" {
		fmt.Fprintf(&b, "- Emissions: %s\n", o.Emissions)
	}
	return b.String()
}

func fallbackSummary(o flights.Offer) string {
	stops := "nonstop"
	if o.Stops == 1 {
		stops = "1 stop"
	} else if o.Stops > 1 {
		stops = fmt.Sprintf("%d stops", o.Stops)
	}
	return fmt.Sprintf("Best match: %s departing at %s, %s, %s, for %s.",
		o.Airline, o.Departure, o.Duration, stops, priceString(o))
}

func priceString(o flights.Offer) string {
	if o.Currency != "" {
		return fmt.Sprintf("%.2f %s", o.Price, o.Currency)
	}
	return fmt.Sprintf("%.2f", o.Price)
}

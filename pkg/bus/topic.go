package bus

import (
	"fmt"
	"strings"
)

// TopicKind enumerates the closed set of stream topics.
type TopicKind int

const (
	TopicOrderbook TopicKind = iota // orderbook@<pair>
	TopicTrade                      // trade@<pair>
	TopicTicker                     // ticker@<pair>
	TopicTickerAll                  // ticker@all
	TopicOrders                     // orders@<userId>, private
)

// Topic is a parsed channel name.
type Topic struct {
	Kind TopicKind
	// Arg is the pair symbol, or the user id for TopicOrders. Empty for
	// ticker@all.
	Arg string

	raw string
}

func (t Topic) String() string { return t.raw }

// ParseTopic validates a channel name against the closed grammar:
// orderbook@<PAIR>, trade@<PAIR>, ticker@<PAIR>, ticker@all,
// orders@<USERID>. Anything else is an error.
func ParseTopic(s string) (Topic, error) {
	prefix, arg, ok := strings.Cut(s, "@")
	if !ok || arg == "" {
		return Topic{}, fmt.Errorf("malformed topic %q", s)
	}
	t := Topic{Arg: arg, raw: s}
	switch prefix {
	case "orderbook":
		t.Kind = TopicOrderbook
	case "trade":
		t.Kind = TopicTrade
	case "ticker":
		if arg == "all" {
			t.Kind = TopicTickerAll
			t.Arg = ""
		} else {
			t.Kind = TopicTicker
		}
	case "orders":
		t.Kind = TopicOrders
	default:
		return Topic{}, fmt.Errorf("unknown topic %q", s)
	}
	return t, nil
}

// pairScoped reports whether the topic names a trading pair that must
// exist.
func (t Topic) pairScoped() bool {
	switch t.Kind {
	case TopicOrderbook, TopicTrade, TopicTicker:
		return true
	}
	return false
}

func orderbookTopic(pair string) string { return "orderbook@" + pair }
func tradeTopic(pair string) string     { return "trade@" + pair }
func tickerTopic(pair string) string    { return "ticker@" + pair }
func ordersTopic(userID string) string  { return "orders@" + userID }

const tickerAllTopic = "ticker@all"

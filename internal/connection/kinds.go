package connection

import (
	"fmt"
	"strings"
)

// Kind is a real-time feed type.
type Kind int

const (
	KindChart Kind = iota + 1
	KindDOM
	KindQuote
	KindHistogram
	KindSync
)

// kindSpec describes how a Kind is requested, matched and cancelled.
type kindSpec struct {
	name     string
	endpoint string
	category Category

	// cancelEndpoint is empty for subscriptions the server cannot cancel.
	cancelEndpoint string

	// bucket is the field of d holding the feed's elements, matched on
	// keyField. Empty for account sync.
	bucket   string
	keyField string

	// byContract kinds resolve body.symbol to a contract id before
	// subscribing and match on it.
	byContract bool
}

var kindSpecs = map[Kind]kindSpec{
	KindChart: {
		name:           "chart",
		endpoint:       "md/getchart",
		category:       CategoryMarketData,
		cancelEndpoint: "md/cancelchart",
		bucket:         "charts",
		keyField:       "id",
	},
	KindDOM: {
		name:           "dom",
		endpoint:       "md/subscribedom",
		category:       CategoryMarketData,
		cancelEndpoint: "md/unsubscribedom",
		bucket:         "doms",
		keyField:       "contractId",
		byContract:     true,
	},
	KindQuote: {
		name:           "quote",
		endpoint:       "md/subscribequote",
		category:       CategoryMarketData,
		cancelEndpoint: "md/unsubscribequote",
		bucket:         "quotes",
		keyField:       "contractId",
		byContract:     true,
	},
	KindHistogram: {
		name:           "histogram",
		endpoint:       "md/subscribehistogram",
		category:       CategoryMarketData,
		cancelEndpoint: "md/unsubscribehistogram",
		bucket:         "histograms",
		keyField:       "contractId",
		byContract:     true,
	},
	KindSync: {
		name:     "sync",
		endpoint: "user/syncrequest",
		category: CategoryAccount,
	},
}

func (k Kind) spec() (kindSpec, bool) {
	s, ok := kindSpecs[k]
	return s, ok
}

func (k Kind) String() string {
	if s, ok := k.spec(); ok {
		return s.name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Endpoint returns the subscribe endpoint, or "" for an unknown kind.
func (k Kind) Endpoint() string {
	s, _ := k.spec()
	return s.endpoint
}

// Cancellable reports whether the server accepts a cancel for k.
func (k Kind) Cancellable() bool {
	s, _ := k.spec()
	return s.cancelEndpoint != ""
}

// KindForEndpoint returns the Kind subscribed through endpoint.
func KindForEndpoint(endpoint string) (Kind, bool) {
	for k, s := range kindSpecs {
		if strings.EqualFold(s.endpoint, endpoint) {
			return k, true
		}
	}
	return 0, false
}

package services

import (
	"log"

	pubnub "github.com/pubnub/go"

	"studyseat-system/models"
)

// Realtime channel names. Clients re-join these after reconnect; no durable
// subscription state is kept server side.
const (
	ChannelSeats = "seats"
	ChannelAdmin = "admin"
)

// AccountChannel is the private channel for targeted notices such as
// session invalidation.
func AccountChannel(accountID string) string {
	return "account-" + accountID
}

// Notifier fans out state changes to subscribed clients. Delivery is best
// effort: nothing published here is load-bearing, every event is
// recoverable by polling the ledger or the registry.
type Notifier interface {
	Publish(channel string, event models.RealtimeEvent)
}

// PubNubNotifier publishes over PubNub.
type PubNubNotifier struct {
	pn *pubnub.PubNub
}

func NewPubNubNotifier(pn *pubnub.PubNub) *PubNubNotifier {
	return &PubNubNotifier{pn: pn}
}

func (n *PubNubNotifier) Publish(channel string, event models.RealtimeEvent) {
	_, _, err := n.pn.Publish().
		Channel(channel).
		Message(event.Payload()).
		Execute()
	if err != nil {
		// Lost pushes are recovered by the periodic reconciliation poll.
		log.Printf("pubnub publish on %s failed: %v", channel, err)
	}
}

// NopNotifier drops every event, for tooling that runs without PubNub keys.
type NopNotifier struct{}

func (NopNotifier) Publish(string, models.RealtimeEvent) {}

package feepay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	pubnub "github.com/pubnub/go/v7"
	"github.com/shopspring/decimal"
)

type (
	Config struct {
		BaseURL   string `json:"baseUrl" mapstructure:"base_url"`
		KeyID     string `json:"keyId" mapstructure:"key_id"`
		KeySecret string `json:"keySecret" mapstructure:"key_secret"`
		HMACKey   string `json:"hmacKey" mapstructure:"hmac_key"`

		PNSubKey  string `json:"pn_subkey" mapstructure:"pn_subkey"`
		PNUUID    string `json:"pn_uuid" mapstructure:"pn_uuid"`
		PNChannel string `json:"pn_channel" mapstructure:"pn_channel"`
	}

	// FeePay talks to the FeePay backend over HTTP and receives the
	// asynchronous transaction feed over the backend's PubNub channel.
	FeePay struct {
		keySecret string

		pnSubKey   string
		pnUUID     string
		pnChannels []string

		sub *subscribe

		client *Client
	}
)

// Transaction is one settled entry of the FeePay transaction feed.
type Transaction struct {
	OrderID   string          `json:"orderId"`
	PaymentID string          `json:"paymentId"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"createdAt"`
}

// New returns a connected FeePay instance.
func New(ctx context.Context, cfg *Config) (*FeePay, error) {
	client := newClient(ctx, &ClientConfig{
		BaseURL:   cfg.BaseURL,
		KeyID:     cfg.KeyID,
		KeySecret: cfg.KeySecret,
		HMACKey:   cfg.HMACKey,
	})

	// Authenticate with the FeePay backend.
	token, err := client.connect(ctx)
	if err != nil {
		return nil, err
	}
	client.setAccessToken(token)

	go client.notifyAccessTokenExpired(ctx)

	f := &FeePay{
		keySecret:  cfg.KeySecret,
		pnSubKey:   cfg.PNSubKey,
		pnUUID:     cfg.PNUUID,
		pnChannels: []string{cfg.PNChannel},
		client:     client,
	}

	if cfg.PNSubKey != "" {
		pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(f.pnUUID))
		pnCfg.SubscribeKey = f.pnSubKey

		sub, err := f.newSubscription(ctx, pnCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to subscribe to FeePay's transaction channel: %v", err)
		}

		sub.pn.AddListener(sub.lis)
		sub.pn.Subscribe().Channels(f.pnChannels).Execute()
		f.sub = sub
	}

	return f, nil
}

type subscribe struct {
	pn  *pubnub.PubNub
	lis *pubnub.Listener
	ch  chan *Transaction
}

func (f *FeePay) newSubscription(ctx context.Context, pnCfg *pubnub.Config) (*subscribe, error) {
	sub := &subscribe{
		pn:  pubnub.NewPubNub(pnCfg),
		lis: pubnub.NewListener(),
	}

	go sub.processSubscription(ctx)

	return sub, nil
}

func (s *subscribe) processSubscription(ctx context.Context) {
	listener := s.lis
	for {
		select {
		case st := <-listener.Status:
			switch st.Category {
			case pubnub.PNConnectedCategory:
				log.Println("connected to feepay pubnub")

			case pubnub.PNReconnectedCategory:
				log.Println("reconnected to feepay pubnub")

			case pubnub.PNDisconnectedCategory:
				log.Println("disconnected from feepay pubnub")

			default:
				log.Printf("feepay pubnub status category: %v", st.Category)
			}

		case message := <-listener.Message:
			raw, ok := message.Message.(string)
			if !ok {
				continue
			}

			var t Transaction
			dec := json.NewDecoder(strings.NewReader(raw))
			if err := dec.Decode(&t); err != nil {
				log.Printf("feepay: decode transaction: %v", err)
				continue
			}

			if s.ch != nil {
				s.ch <- &t
			}

		case <-ctx.Done():
			log.Println("close feepay subscription")
			return
		}
	}
}

// CreateOrder opens an order on the FeePay backend.
func (f *FeePay) CreateOrder(ctx context.Context, form *FormOrder) (*OrderReply, error) {
	return f.client.createOrder(ctx, form)
}

// CheckPayment fetches the capture state of a payment.
func (f *FeePay) CheckPayment(ctx context.Context, paymentID string) (*PaymentReply, error) {
	return f.client.checkPayment(ctx, paymentID)
}

// Refund returns captured funds.
func (f *FeePay) Refund(ctx context.Context, paymentID string) error {
	return f.client.refundPayment(ctx, paymentID)
}

// KeySecret exposes the checkout signing secret.
func (f *FeePay) KeySecret() string {
	return f.keySecret
}

// SetTranChannel registers the channel the transaction feed is forwarded to.
func (f *FeePay) SetTranChannel(ch chan *Transaction) {
	if f.sub != nil {
		f.sub.ch = ch
	}
}

// Close unsubscribes from the transaction feed.
func (f *FeePay) Close(_ context.Context) error {
	if f.sub != nil {
		f.sub.pn.Unsubscribe().Channels(f.pnChannels).Execute()
	}
	return nil
}

package gateway

import (
	"context"
	"fmt"

	"studyseat-system/internal/gateway/feepay"
)

// Factory creates gateway instances based on provider type.
type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

// CreateGateway creates a gateway instance from the provider type and its
// provider-specific configuration.
func (f *Factory) CreateGateway(ctx context.Context, provider Provider, config any) (PaymentGateway, error) {
	switch provider {
	case ProviderFeePay:
		cfg, ok := config.(*feepay.Config)
		if !ok {
			return nil, fmt.Errorf("invalid FeePay config type, expected *feepay.Config")
		}
		return NewFeePayAdapter(ctx, cfg)

	case ProviderSandbox:
		secret, ok := config.(string)
		if !ok {
			return nil, fmt.Errorf("invalid sandbox config type, expected the signing secret string")
		}
		return NewSandbox(secret), nil

	default:
		return nil, fmt.Errorf("unsupported gateway provider: %s", provider)
	}
}

// GetSupportedProviders returns the list of supported gateway providers.
func (f *Factory) GetSupportedProviders() []Provider {
	return []Provider{
		ProviderFeePay,
		ProviderSandbox,
	}
}

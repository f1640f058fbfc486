// Package payments checks payment references recorded on orders against the payment provider.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/storefront-orders/api/internal/services"
)

// StripeLogger defines the logging contract for Stripe lookups.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeVerifierConfig configures the StripeVerifier. Intents overrides the API client in tests.
type StripeVerifierConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    StripeLogger
	Intents   stripePaymentIntentAPI
}

// StripeVerifier confirms that a PaymentIntent referenced by an order has settled.
type StripeVerifier struct {
	intents stripePaymentIntentAPI
	account string
	logger  StripeLogger
}

var _ services.PaymentVerifier = (*StripeVerifier)(nil)

// NewStripeVerifier constructs a verifier from the given configuration.
func NewStripeVerifier(cfg StripeVerifierConfig) (*StripeVerifier, error) {
	intents := cfg.Intents
	if intents == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		intents = client.New(apiKey, cfg.Backends).PaymentIntents
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &StripeVerifier{
		intents: intents,
		account: strings.TrimSpace(cfg.AccountID),
		logger:  logger,
	}, nil
}

// Supports reports whether ref names a Stripe PaymentIntent.
func (v *StripeVerifier) Supports(ref string) bool {
	return strings.HasPrefix(strings.TrimSpace(ref), "pi_")
}

// Verify looks the intent up. Unknown intents yield services.ErrNotFound.
func (v *StripeVerifier) Verify(ctx context.Context, ref string) (services.PaymentCheck, error) {
	if v == nil {
		return services.PaymentCheck{}, errors.New("stripe: verifier is nil")
	}
	ref = strings.TrimSpace(ref)
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	if v.account != "" {
		params.SetStripeAccount(v.account)
	}

	intent, err := v.intents.Get(ref, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return services.PaymentCheck{}, fmt.Errorf("%w: payment intent %s", services.ErrNotFound, ref)
		}
		return services.PaymentCheck{}, fmt.Errorf("stripe: lookup payment intent: %w", err)
	}
	if intent == nil {
		return services.PaymentCheck{}, fmt.Errorf("stripe: lookup payment intent %s: empty response", ref)
	}

	check := services.PaymentCheck{
		Reference: intent.ID,
		Status:    string(intent.Status),
		Succeeded: intent.Status == stripe.PaymentIntentStatusSucceeded,
		Amount:    intent.Amount,
		Currency:  strings.ToUpper(string(intent.Currency)),
	}
	if charge := intent.LatestCharge; charge != nil && charge.Refunded {
		check.Succeeded = false
		check.Status = "refunded"
	}
	v.logger(ctx, "payments.stripe.intent.checked", map[string]any{
		"paymentIntent": check.Reference,
		"status":        check.Status,
	})
	return check, nil
}

package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v78"

	"github.com/storefront-orders/api/internal/services"
)

type stubIntents struct {
	getFn func(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

func (s stubIntents) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return s.getFn(id, params)
}

func TestStripeVerifierSucceeded(t *testing.T) {
	verifier, err := NewStripeVerifier(StripeVerifierConfig{
		AccountID: "acct_1",
		Intents: stubIntents{getFn: func(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			if params.StripeAccount == nil || *params.StripeAccount != "acct_1" {
				t.Fatalf("expected connected account header")
			}
			return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusSucceeded, Amount: 84000, Currency: "php"}, nil
		}},
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	if !verifier.Supports("pi_123") || verifier.Supports("GC-2231") {
		t.Fatalf("unexpected Supports result")
	}

	check, err := verifier.Verify(context.Background(), "pi_123")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !check.Succeeded || check.Amount != 84000 || check.Currency != "PHP" {
		t.Fatalf("unexpected check: %+v", check)
	}
}

func TestStripeVerifierRefundedIntentIsNotSettled(t *testing.T) {
	verifier, _ := NewStripeVerifier(StripeVerifierConfig{
		Intents: stubIntents{getFn: func(id string, _ *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return &stripe.PaymentIntent{
				ID:           id,
				Status:       stripe.PaymentIntentStatusSucceeded,
				LatestCharge: &stripe.Charge{Refunded: true},
			}, nil
		}},
	})
	check, err := verifier.Verify(context.Background(), "pi_9")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if check.Succeeded || check.Status != "refunded" {
		t.Fatalf("expected refunded intent to be unsettled, got %+v", check)
	}
}

func TestStripeVerifierMissingIntent(t *testing.T) {
	verifier, _ := NewStripeVerifier(StripeVerifierConfig{
		Intents: stubIntents{getFn: func(string, *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return nil, &stripe.Error{Code: stripe.ErrorCodeResourceMissing, Msg: "No such payment_intent"}
		}},
	})
	if _, err := verifier.Verify(context.Background(), "pi_missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNewStripeVerifierRequiresKey(t *testing.T) {
	if _, err := NewStripeVerifier(StripeVerifierConfig{}); err == nil {
		t.Fatalf("expected error without api key")
	}
}

package mailboxer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/full-stack-biz/mailboxer/store"
)

func TestErrorWrapping(t *testing.T) {
	t.Run("service errors match their store counterparts", func(t *testing.T) {
		cases := []struct {
			name     string
			service  error
			storeErr error
		}{
			{"not found", ErrNotFound, store.ErrNotFound},
			{"empty recipients", ErrEmptyRecipients, store.ErrEmptyReceipts},
			{"not connected", ErrNotConnected, store.ErrNotConnected},
			{"already connected", ErrAlreadyConnected, store.ErrAlreadyConnected},
			{"invalid id", ErrInvalidID, store.ErrInvalidID},
			{"invalid participant", ErrInvalidParticipant, store.ErrInvalidIdentity},
			{"filter invalid", ErrFilterInvalid, store.ErrFilterInvalid},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				if !errors.Is(tc.service, tc.storeErr) {
					t.Errorf("errors.Is(%v, %v) = false, want true", tc.service, tc.storeErr)
				}
			})
		}
	})

	t.Run("wrapped errors still match", func(t *testing.T) {
		err := fmt.Errorf("get conversation: %w", store.ErrNotFound)
		if !errors.Is(err, store.ErrNotFound) {
			t.Error("wrapped store error should match")
		}
	})
}

func TestValidationError(t *testing.T) {
	t.Run("without a sentinel", func(t *testing.T) {
		err := &ValidationError{Field: "subject", Message: "too long"}

		if err.Error() == "" {
			t.Error("expected non-empty error message")
		}
		if !errors.Is(err, ErrInvalidMessage) {
			t.Error("ValidationError should unwrap to ErrInvalidMessage")
		}
	})

	t.Run("with a sentinel", func(t *testing.T) {
		err := &ValidationError{Field: "subject", Message: "subject is empty", Err: ErrEmptySubject}

		if !errors.Is(err, ErrInvalidMessage) {
			t.Error("ValidationError should unwrap to ErrInvalidMessage")
		}
		if !errors.Is(err, ErrEmptySubject) {
			t.Error("ValidationError should also unwrap to its sentinel")
		}

		wrapped := fmt.Errorf("send: %w", err)
		var ve *ValidationError
		if !errors.As(wrapped, &ve) {
			t.Fatal("errors.As should find the ValidationError")
		}
		if ve.Field != "subject" {
			t.Errorf("field = %q, want %q", ve.Field, "subject")
		}
	})
}

func TestEventPublishError(t *testing.T) {
	cause := errors.New("broker unavailable")
	err := &EventPublishError{
		Event:     "MessageDelivered",
		PayloadID: "payload-1",
		Err:       cause,
	}

	t.Run("unwraps to the cause", func(t *testing.T) {
		if !errors.Is(err, cause) {
			t.Error("expected errors.Is to match the underlying cause")
		}
	})

	t.Run("IsEventPublishError extracts details", func(t *testing.T) {
		wrapped := fmt.Errorf("deliver: %w", err)
		epe, ok := IsEventPublishError(wrapped)
		if !ok {
			t.Fatal("expected IsEventPublishError to match")
		}
		if epe.PayloadID != "payload-1" {
			t.Errorf("payload ID = %q, want %q", epe.PayloadID, "payload-1")
		}

		if _, ok := IsEventPublishError(errors.New("other")); ok {
			t.Error("unrelated error must not match")
		}
	})
}

func TestIsRetryableError(t *testing.T) {
	t.Run("nil is not retryable", func(t *testing.T) {
		if IsRetryableError(nil) {
			t.Error("nil error should not be retryable")
		}
	})

	t.Run("permanent errors", func(t *testing.T) {
		permanent := []error{
			ErrNotFound,
			ErrUnauthorized,
			ErrEmptySubject,
			ErrEmptyBody,
			ErrInvalidParticipant,
			ErrNotAMessage,
			store.ErrFilterInvalid,
			fmt.Errorf("validate: %w", ErrTooManyRecipients),
		}
		for _, err := range permanent {
			if IsRetryableError(err) {
				t.Errorf("%v should be permanent", err)
			}
		}
	})

	t.Run("retryable errors", func(t *testing.T) {
		retryable := []error{
			ErrNotConnected,
			store.ErrTransactionFailed,
			fmt.Errorf("deliver: %w", store.ErrNotConnected),
			errors.New("connection reset by peer"),
		}
		for _, err := range retryable {
			if !IsRetryableError(err) {
				t.Errorf("%v should be retryable", err)
			}
		}
	})
}

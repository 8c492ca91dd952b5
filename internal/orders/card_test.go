package orders

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/events"
	"storefront/internal/models"
)

type sheetFunc func(ctx context.Context, clientSecret string) (SheetResult, error)

func (f sheetFunc) Present(ctx context.Context, clientSecret string) (SheetResult, error) {
	return f(ctx, clientSecret)
}

// checkedOut creates a card order through the normal checkout and returns
// its id and client secret.
func checkedOut(t *testing.T, f *fixture) (string, string) {
	t.Helper()

	conf, err := f.svc.ConfirmOrder(context.Background(), customer, ConfirmRequest{
		Items:   sampleItems(),
		Address: sampleAddress(),
		Method:  models.CardPayment{},
	})
	require.NoError(t, err)
	return conf.OrderID, conf.ClientSecret
}

func TestConfirmCardPayment_Outcomes(t *testing.T) {
	tests := []struct {
		name          string
		sheet         PaymentSheet
		wantStatus    models.PaymentStatus
		wantErr       error
		wantReason    string
		wantCompleted bool
	}{
		{
			name:          "completed",
			sheet:         ReportedSheet{Status: SheetCompleted},
			wantStatus:    models.PaymentCompleted,
			wantCompleted: true,
		},
		{
			name:       "canceled",
			sheet:      ReportedSheet{Status: SheetCanceled},
			wantStatus: models.PaymentFailed,
			wantReason: "canceled by user",
		},
		{
			name:       "declined",
			sheet:      ReportedSheet{Status: SheetFailed, Message: "Your card was declined."},
			wantStatus: models.PaymentFailed,
			wantReason: "Your card was declined.",
		},
		{
			name:       "sheet error",
			sheet:      ReportedSheet{Status: SheetError, Message: "network unreachable"},
			wantStatus: models.PaymentFailed,
			wantErr:    ErrGatewayUnavailable,
			wantReason: "network unreachable",
		},
		{
			name: "adapter panic",
			sheet: sheetFunc(func(context.Context, string) (SheetResult, error) {
				panic("gateway exploded")
			}),
			wantStatus: models.PaymentFailed,
			wantErr:    ErrGatewayUnavailable,
			wantReason: "payment sheet panic: gateway exploded",
		},
		{
			name: "adapter error",
			sheet: sheetFunc(func(context.Context, string) (SheetResult, error) {
				return SheetResult{}, errors.New("HTTP 503")
			}),
			wantStatus: models.PaymentFailed,
			wantErr:    ErrGatewayUnavailable,
			wantReason: "HTTP 503",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			id, secret := checkedOut(t, f)

			status, err := f.svc.ConfirmCardPayment(context.Background(), customer, id, secret, tt.sheet)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.True(t, IsRetryable(err))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantStatus, status)

			order, err := f.store.Get(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, order.PaymentStatus)
			assert.Equal(t, tt.wantReason, order.Payment.FailureReason)
			if tt.wantCompleted {
				require.NotNil(t, order.PaymentCompletedAt)
				assert.Equal(t, now, *order.PaymentCompletedAt)
				assert.Equal(t, "pi_123", order.Payment.Receipt)
				assert.Contains(t, f.events.published(), events.PaymentCompleted)
			} else {
				assert.Nil(t, order.PaymentCompletedAt)
				assert.Contains(t, f.events.published(), events.PaymentFailed)
			}
		})
	}
}

func TestConfirmCardPayment_WritesAfterCallerCancels(t *testing.T) {
	f := newFixture()
	id, secret := checkedOut(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	sheet := sheetFunc(func(context.Context, string) (SheetResult, error) {
		cancel()
		return SheetResult{Status: SheetCompleted}, nil
	})

	status, err := f.svc.ConfirmCardPayment(ctx, customer, id, secret, sheet)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, status)

	order, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, order.PaymentStatus)
}

func TestConfirmCardPayment_Rejects(t *testing.T) {
	t.Run("secret of another intent", func(t *testing.T) {
		f := newFixture()
		id, _ := checkedOut(t, f)

		_, err := f.svc.ConfirmCardPayment(context.Background(), customer, id, "pi_999_secret_x", ReportedSheet{Status: SheetCompleted})
		assert.ErrorIs(t, err, ErrClientSecretMismatch)

		order, err := f.store.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentPending, order.PaymentStatus)
	})

	t.Run("already settled", func(t *testing.T) {
		f := newFixture()
		id, secret := checkedOut(t, f)

		_, err := f.svc.ConfirmCardPayment(context.Background(), customer, id, secret, ReportedSheet{Status: SheetCompleted})
		require.NoError(t, err)

		status, err := f.svc.ConfirmCardPayment(context.Background(), customer, id, secret, ReportedSheet{Status: SheetCanceled})
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, models.PaymentCompleted, status)
	})

	t.Run("mobile money order", func(t *testing.T) {
		f := newFixture()
		id := f.storedOrder(models.PaymentKindMobileMoney, models.PaymentPending)

		_, err := f.svc.ConfirmCardPayment(context.Background(), customer, id, "pi_1_secret_x", ReportedSheet{Status: SheetCompleted})
		assert.ErrorIs(t, err, ErrInvalidPaymentMethod)
	})

	t.Run("other user", func(t *testing.T) {
		f := newFixture()
		id, secret := checkedOut(t, f)

		_, err := f.svc.ConfirmCardPayment(context.Background(), stranger, id, secret, ReportedSheet{Status: SheetCompleted})
		assert.ErrorIs(t, err, ErrForbidden)
	})
}

func TestParseSheetStatus(t *testing.T) {
	for input, want := range map[string]SheetStatus{
		"completed": SheetCompleted,
		"Canceled":  SheetCanceled,
		"cancelled": SheetCanceled,
		" failed ":  SheetFailed,
		"error":     SheetError,
	} {
		got, err := ParseSheetStatus(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseSheetStatus("maybe")
	assert.Error(t, err)
}

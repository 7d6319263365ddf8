package domain

import "testing"

func TestPayment_Validate(t *testing.T) {
	tests := []struct {
		name    string
		payment Payment
		wantErr bool
	}{
		{
			name:    "valid card payment",
			payment: Payment{ReservationID: "res-1", Method: PaymentMethodCard, AmountMinor: 300},
		},
		{
			name:    "valid yape payment",
			payment: Payment{ReservationID: "res-1", Method: PaymentMethodYape},
		},
		{
			name:    "missing reservation",
			payment: Payment{Method: PaymentMethodCard, AmountMinor: 300},
			wantErr: true,
		},
		{
			name:    "unknown method",
			payment: Payment{ReservationID: "res-1", Method: "cash", AmountMinor: 300},
			wantErr: true,
		},
		{
			name:    "negative amount",
			payment: Payment{ReservationID: "res-1", Method: PaymentMethodCard, AmountMinor: -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.payment.Validate()
			if (len(errs) > 0) != tt.wantErr {
				t.Fatalf("Validate() errors = %v, wantErr %v", errs, tt.wantErr)
			}
		})
	}
}

func TestPaymentStatusValid(t *testing.T) {
	for _, s := range []PaymentStatus{PaymentStatusPending, PaymentStatusSuccess, PaymentStatusFailed} {
		if !s.Valid() {
			t.Fatalf("status %q must be valid", s)
		}
	}
	if PaymentStatus("captured").Valid() {
		t.Fatalf("unknown status must be invalid")
	}
}

func TestMergeMetadata(t *testing.T) {
	base := map[string]any{MetaUserID: "user-1", MetaInitiatedAt: "t0"}
	patch := map[string]any{MetaAuthorizationCode: "AUTH123456", MetaInitiatedAt: "t1"}

	got := MergeMetadata(base, patch)

	if got[MetaUserID] != "user-1" || got[MetaAuthorizationCode] != "AUTH123456" {
		t.Fatalf("unexpected merge result: %v", got)
	}
	if got[MetaInitiatedAt] != "t1" {
		t.Fatalf("patch must win, got %v", got[MetaInitiatedAt])
	}
	if base[MetaAuthorizationCode] != nil {
		t.Fatalf("base must not be mutated")
	}
}

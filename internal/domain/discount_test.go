package domain

import (
	"testing"
	"time"
)

func TestDiscount_Apply(t *testing.T) {
	tests := []struct {
		name         string
		discount     Discount
		subtotal     int64
		wantDiscount int64
		wantTotal    int64
	}{
		{
			name:         "ten percent of 300",
			discount:     Discount{Type: DiscountTypePercentage, Value: 10},
			subtotal:     300,
			wantDiscount: 30,
			wantTotal:    270,
		},
		{
			name:         "fixed bigger than subtotal floors at zero",
			discount:     Discount{Type: DiscountTypeFixed, Value: 50},
			subtotal:     40,
			wantDiscount: 50,
			wantTotal:    0,
		},
		{
			name:         "fixed",
			discount:     Discount{Type: DiscountTypeFixed, Value: 50},
			subtotal:     300,
			wantDiscount: 50,
			wantTotal:    250,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotDiscount, gotTotal := tt.discount.Apply(tt.subtotal)
			if gotDiscount != tt.wantDiscount || gotTotal != tt.wantTotal {
				t.Fatalf("Apply(%d) = (%d, %d), want (%d, %d)",
					tt.subtotal, gotDiscount, gotTotal, tt.wantDiscount, tt.wantTotal)
			}
		})
	}
}

func TestDiscount_Eligible(t *testing.T) {
	today := date("2025-01-10")
	yesterday := today.Add(-24 * time.Hour)
	lateToday := today.Add(20 * time.Hour)

	tests := []struct {
		name   string
		d      Discount
		nights int
		prior  int
		want   bool
	}{
		{name: "active", d: Discount{Active: true}, nights: 1, want: true},
		{name: "inactive", d: Discount{Active: false}, nights: 1, want: false},
		{name: "expired", d: Discount{Active: true, ValidUntil: &yesterday}, nights: 1, want: false},
		{name: "expires today", d: Discount{Active: true, ValidUntil: &lateToday}, nights: 1, want: true},
		{name: "too few nights", d: Discount{Active: true, MinNights: 3}, nights: 2, want: false},
		{name: "first reservation", d: Discount{Active: true, Code: FirstReservationCode}, nights: 1, prior: 0, want: true},
		{name: "not first reservation", d: Discount{Active: true, Code: "primeravez"}, nights: 1, prior: 2, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.d.Eligible(tt.nights, today, tt.prior); got != tt.want {
				t.Fatalf("Eligible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRoomFilter_Match(t *testing.T) {
	room := Room{
		Code:       "101",
		Type:       "double",
		PriceMinor: 15000,
		Capacity:   2,
		Status:     RoomStatusAvailable,
		Amenities:  map[string]bool{"wifi": true, "tv": true, "minibar": false},
	}

	tests := []struct {
		name   string
		filter RoomFilter
		want   bool
	}{
		{name: "empty", filter: RoomFilter{}, want: true},
		{name: "type", filter: RoomFilter{Type: "suite"}, want: false},
		{name: "price range", filter: RoomFilter{MinPriceMinor: 10000, MaxPriceMinor: 20000}, want: true},
		{name: "too cheap", filter: RoomFilter{MaxPriceMinor: 10000}, want: false},
		{name: "amenities", filter: RoomFilter{Amenities: []string{"wifi", "tv"}}, want: true},
		{name: "missing amenity", filter: RoomFilter{Amenities: []string{"minibar"}}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(room); got != tt.want {
				t.Fatalf("Match() = %v, want %v", got, tt.want)
			}
		})
	}

	room.Status = RoomStatusMaintenance
	if (RoomFilter{OnlyAvailable: true}).Match(room) {
		t.Fatalf("room under maintenance must be filtered out")
	}
	if errs := room.Validate(); len(errs) != 0 {
		t.Fatalf("unexpected validation errors: %v", errs)
	}
	if got := room.AmenityList(); len(got) != 2 || got[0] != "tv" || got[1] != "wifi" {
		t.Fatalf("unexpected amenity list: %v", got)
	}
}

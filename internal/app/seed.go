package app

import (
	"context"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
)

// Каталог по умолчанию для in-memory режима; для postgres то же самое
// кладёт миграция 0002_catalog_seed.
var (
	seedRooms = []domain.Room{
		{ID: "room-101", Code: "101", Type: "simple", Description: "Habitación simple", PriceMinor: 12000, Capacity: 1,
			Status: domain.RoomStatusAvailable, Amenities: map[string]bool{"wifi": true, "tv": true}},
		{ID: "room-102", Code: "102", Type: "doble", Description: "Habitación doble", PriceMinor: 18000, Capacity: 2,
			Status: domain.RoomStatusAvailable, Amenities: map[string]bool{"wifi": true, "tv": true, "minibar": true}},
		{ID: "room-201", Code: "201", Type: "suite", Description: "Suite con vista al mar", PriceMinor: 35000, Capacity: 4,
			Status: domain.RoomStatusAvailable, Amenities: map[string]bool{"wifi": true, "tv": true, "minibar": true, "jacuzzi": true}},
	}

	seedServices = []domain.Service{
		{ID: "svc-breakfast", Name: "Desayuno buffet", Description: "Desayuno por persona y noche", PriceMinor: 2500, Icon: "coffee", Active: true},
		{ID: "svc-parking", Name: "Estacionamiento", Description: "Estacionamiento privado por noche", PriceMinor: 1500, Icon: "car", Active: true},
		{ID: "svc-spa", Name: "Spa", Description: "Acceso al spa por día", PriceMinor: 8000, Icon: "spa", Active: true},
		{ID: "svc-airport", Name: "Traslado aeropuerto", Description: "Traslado ida y vuelta", PriceMinor: 6000, Icon: "plane", Active: true},
	}

	seedDiscounts = []domain.Discount{
		{ID: "disc-first", Code: domain.FirstReservationCode, Type: domain.DiscountTypePercentage, Value: 15, Active: true},
		{ID: "disc-long", Code: "LARGAESTADIA", Type: domain.DiscountTypePercentage, Value: 10, MinNights: 3, Active: true},
		{ID: "disc-week", Code: "SEMANA", Type: domain.DiscountTypeFixed, Value: 5000, MinNights: 7, Active: true},
	}
)

func seedCatalog(ctx context.Context, repos Repositories) error {
	for _, r := range seedRooms {
		if err := repos.Rooms.Create(ctx, r); err != nil {
			return err
		}
	}
	for _, s := range seedServices {
		if err := repos.Services.Create(ctx, s); err != nil {
			return err
		}
	}
	for _, d := range seedDiscounts {
		if err := repos.Discounts.Create(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

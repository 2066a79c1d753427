package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adamwilson22/Velaa-Backend/internal/models"
	"github.com/adamwilson22/Velaa-Backend/internal/store"
	"github.com/adamwilson22/Velaa-Backend/internal/utils"
)

// SeedResult lists what SeedFleet created.
type SeedResult struct {
	Clients  []utils.SixID
	Vehicles []utils.SixID
	Skipped  int
}

type seedVehicle struct {
	chassis, brand, model string
	owner                 int
	fee                   float64
	purchaseDay           int
	anchor                *int
}

// SeedFleet creates two demo clients and three rented vehicles. Vehicles whose
// chassis number already exists are skipped.
func SeedFleet(ctx context.Context, stores store.Stores, now time.Time) (*SeedResult, error) {
	res := &SeedResult{}
	for _, c := range []models.Client{
		{Name: "Ali Raza", Phone: "+923001234567", Email: "ali.raza@example.com", Type: models.ClientIndividual, IsActive: true},
		{Name: "Karachi Motors", Phone: "+922134567890", Email: "accounts@karachimotors.example.com", Type: models.ClientDealer, IsActive: true},
	} {
		c := c
		created, err := stores.Clients.Create(ctx, &c)
		if err != nil {
			return nil, fmt.Errorf("failed to seed client %s: %w", c.Name, err)
		}
		res.Clients = append(res.Clients, created.ID)
	}

	anchor := 5
	for _, sv := range []seedVehicle{
		{chassis: "NZE161-0012345", brand: "Toyota", model: "Corolla", owner: 0, fee: 10000, purchaseDay: 12},
		{chassis: "ZRE172-0098765", brand: "Toyota", model: "Fortuner", owner: 1, fee: 15000, purchaseDay: 31},
		{chassis: "GM6-1004567", brand: "Honda", model: "City", owner: 1, fee: 7000, purchaseDay: 3, anchor: &anchor},
	} {
		owner := res.Clients[sv.owner]
		purchase := time.Date(now.Year()-1, time.January, sv.purchaseDay, 0, 0, 0, 0, time.UTC)
		v, err := stores.Vehicles.Create(ctx, &models.Vehicle{
			ChassisNumber:    sv.chassis,
			Brand:            sv.brand,
			Model:            sv.model,
			Year:             now.Year() - 2,
			Owner:            &owner,
			Status:           models.VehicleReserved,
			PurchaseDate:     &purchase,
			IsActive:         true,
			MonthlyFee:       sv.fee,
			BillingAnchorDay: sv.anchor,
		})
		if errors.Is(err, store.ErrDuplicateKey) {
			res.Skipped++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to seed vehicle %s: %w", sv.chassis, err)
		}
		res.Vehicles = append(res.Vehicles, v.ID)
	}
	return res, nil
}

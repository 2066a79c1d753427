package models

import (
	"time"

	"github.com/adamwilson22/Velaa-Backend/internal/utils"
)

type VehicleStatus string

const (
	VehicleAvailable VehicleStatus = "Available"
	VehicleReserved  VehicleStatus = "Reserved"
	VehicleSold      VehicleStatus = "Sold"
)

type Vehicle struct {
	Base          `bson:",inline"`
	ChassisNumber string        `bson:"chassis_number" json:"chassis_number"`
	EngineNumber  string        `bson:"engine_number,omitempty" json:"engine_number,omitempty"`
	Brand         string        `bson:"brand" json:"brand"`
	Model         string        `bson:"model,omitempty" json:"model,omitempty"`
	Year          int           `bson:"year,omitempty" json:"year,omitempty"`
	Color         string        `bson:"color,omitempty" json:"color,omitempty"`
	Owner         *utils.SixID  `bson:"owner,omitempty" json:"owner,omitempty"`
	Status        VehicleStatus `bson:"status" json:"status"`
	PurchaseDate  *time.Time    `bson:"purchase_date,omitempty" json:"purchase_date,omitempty"`
	IsActive      bool          `bson:"is_active" json:"is_active"`
	MonthlyFee    float64       `bson:"monthly_fee" json:"monthly_fee"`
	// BillingAnchorDay overrides the purchase-date day when >= 1.
	BillingAnchorDay *int `bson:"billing_anchor_day,omitempty" json:"billing_anchor_day,omitempty"`

	Timestamps `bson:",inline"`
}

// Summary returns the fields shown next to an invoice.
func (v *Vehicle) Summary(ownerName string) *VehicleSummary {
	return &VehicleSummary{
		ID:            v.ID,
		ChassisNumber: v.ChassisNumber,
		Brand:         v.Brand,
		Model:         v.Model,
		PurchaseDate:  v.PurchaseDate,
		MonthlyFee:    v.MonthlyFee,
		OwnerName:     ownerName,
	}
}

package models

import (
	"time"

	"github.com/adamwilson22/Velaa-Backend/internal/utils"
)

type TransactionType string

const (
	TransactionSale      TransactionType = "Sale"
	TransactionPurchase  TransactionType = "Purchase"
	TransactionService   TransactionType = "Service"
	TransactionRental    TransactionType = "Rental"
	TransactionInsurance TransactionType = "Insurance"
	TransactionOther     TransactionType = "Other"
)

// InvoiceStatus is the document-level state. Paid, Partially Paid and Overdue
// follow PaymentStatus; the rest are only set by explicit operations.
type InvoiceStatus string

const (
	StatusDraft         InvoiceStatus = "Draft"
	StatusSent          InvoiceStatus = "Sent"
	StatusPaid          InvoiceStatus = "Paid"
	StatusPartiallyPaid InvoiceStatus = "Partially Paid"
	StatusOverdue       InvoiceStatus = "Overdue"
	StatusCancelled     InvoiceStatus = "Cancelled"
	StatusRefunded      InvoiceStatus = "Refunded"
)

// Closed reports whether the invoice no longer accepts payments.
func (s InvoiceStatus) Closed() bool {
	return s == StatusCancelled || s == StatusRefunded
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "Pending"
	PaymentPartial PaymentStatus = "Partial"
	PaymentPaid    PaymentStatus = "Paid"
	PaymentOverdue PaymentStatus = "Overdue"
)

type ChargeType string

const (
	ChargeTypeCharge   ChargeType = "Charge"
	ChargeTypeDiscount ChargeType = "Discount"
)

type PaymentMethod string

const (
	MethodCash         PaymentMethod = "Cash"
	MethodBankTransfer PaymentMethod = "Bank Transfer"
	MethodCheque       PaymentMethod = "Cheque"
	MethodUPI          PaymentMethod = "UPI"
	MethodCreditCard   PaymentMethod = "Credit Card"
	MethodDebitCard    PaymentMethod = "Debit Card"
	MethodOther        PaymentMethod = "Other"
)

// PaymentState is the clearing state of a single payment. Only Cleared payments count as paid.
type PaymentState string

const (
	PaymentStatePending   PaymentState = "Pending"
	PaymentStateCleared   PaymentState = "Cleared"
	PaymentStateBounced   PaymentState = "Bounced"
	PaymentStateCancelled PaymentState = "Cancelled"
)

type ReminderType string

const (
	ReminderEmail    ReminderType = "Email"
	ReminderSMS      ReminderType = "SMS"
	ReminderPhone    ReminderType = "Phone"
	ReminderWhatsApp ReminderType = "WhatsApp"
)

type ReminderStatus string

const (
	ReminderSent      ReminderStatus = "Sent"
	ReminderDelivered ReminderStatus = "Delivered"
	ReminderFailed    ReminderStatus = "Failed"
)

// Tax amounts are supplied by the caller; Rate is informational.
type Tax struct {
	Name   string  `bson:"name" json:"name" binding:"required"`
	Rate   float64 `bson:"rate" json:"rate" binding:"gte=0"`
	Amount float64 `bson:"amount" json:"amount" binding:"gte=0"`
}

type AdditionalCharge struct {
	Description string     `bson:"description" json:"description" binding:"required"`
	Amount      float64    `bson:"amount" json:"amount"`
	Type        ChargeType `bson:"type" json:"type" binding:"required,oneof=Charge Discount"`
}

type Payment struct {
	ID              utils.SixID   `bson:"_id" json:"id"`
	PaymentDate     time.Time     `bson:"payment_date" json:"payment_date"`
	Amount          float64       `bson:"amount" json:"amount"`
	PaymentMethod   PaymentMethod `bson:"payment_method" json:"payment_method"`
	ReferenceNumber string        `bson:"reference_number,omitempty" json:"reference_number,omitempty"`
	Notes           string        `bson:"notes,omitempty" json:"notes,omitempty"`
	ReceivedBy      string        `bson:"received_by" json:"received_by"`
	Status          PaymentState  `bson:"status" json:"status"`
}

type Reminder struct {
	SentDate time.Time      `bson:"sent_date" json:"sent_date"`
	Type     ReminderType   `bson:"type" json:"type"`
	Status   ReminderStatus `bson:"status" json:"status"`
	Message  string         `bson:"message,omitempty" json:"message,omitempty"`
	SentBy   string         `bson:"sent_by" json:"sent_by"`
}

// Invoice is a ledger record. At most one Rental invoice exists per
// (vehicle, billing period); derived amounts are rewritten on every save.
type Invoice struct {
	Base          `bson:",inline"`
	InvoiceNumber string          `bson:"invoice_number" json:"invoice_number"`
	InvoiceDate   time.Time       `bson:"invoice_date" json:"invoice_date"`
	DueDate       time.Time       `bson:"due_date" json:"due_date"`
	Client        utils.SixID     `bson:"client" json:"client"`
	Vehicle       utils.SixID     `bson:"vehicle" json:"vehicle"`
	Type          TransactionType `bson:"transaction_type" json:"transaction_type"`

	BillingPeriod  string `bson:"billing_period" json:"billing_period"`
	CycleAnchorDay int    `bson:"cycle_anchor_day" json:"cycle_anchor_day"`

	Currency          string             `bson:"currency,omitempty" json:"currency,omitempty"`
	BaseAmount        float64            `bson:"base_amount" json:"base_amount"`
	Taxes             []Tax              `bson:"taxes" json:"taxes"`
	AdditionalCharges []AdditionalCharge `bson:"additional_charges" json:"additional_charges"`

	// Derived
	TaxAmount      float64 `bson:"tax_amount" json:"tax_amount"`
	DiscountAmount float64 `bson:"discount_amount" json:"discount_amount"`
	TotalAmount    float64 `bson:"total_amount" json:"total_amount"`
	PaidAmount     float64 `bson:"paid_amount" json:"paid_amount"`
	BalanceAmount  float64 `bson:"balance_amount" json:"balance_amount"`

	Payments  []Payment  `bson:"payments" json:"payments"`
	Reminders []Reminder `bson:"reminders" json:"reminders"`

	Status        InvoiceStatus `bson:"status" json:"status"`
	PaymentStatus PaymentStatus `bson:"payment_status" json:"payment_status"`

	Terms     string `bson:"terms,omitempty" json:"terms,omitempty"`
	Notes     string `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedBy string `bson:"created_by" json:"created_by"`
	UpdatedBy string `bson:"updated_by,omitempty" json:"updated_by,omitempty"`

	Timestamps `bson:",inline"`
	Version    int64 `bson:"version" json:"-"`
}

// ClientSummary is the client context attached to listings.
type ClientSummary struct {
	ID    utils.SixID `json:"id"`
	Name  string      `json:"name"`
	Phone string      `json:"phone,omitempty"`
	Email string      `json:"email,omitempty"`
}

// VehicleSummary is the vehicle context attached to listings.
type VehicleSummary struct {
	ID            utils.SixID `json:"id"`
	ChassisNumber string      `json:"chassis_number"`
	Brand         string      `json:"brand"`
	Model         string      `json:"model,omitempty"`
	PurchaseDate  *time.Time  `json:"purchase_date,omitempty"`
	MonthlyFee    float64     `json:"monthly_fee"`
	OwnerName     string      `json:"owner_name,omitempty"`
}

// InvoiceDetails is an invoice as returned to API callers: populated references plus
// read-time virtual fields.
type InvoiceDetails struct {
	*Invoice
	ClientInfo        *ClientSummary  `json:"client_info,omitempty"`
	VehicleInfo       *VehicleSummary `json:"vehicle_info,omitempty"`
	DaysOverdue       int             `json:"days_overdue"`
	IsOverdue         bool            `json:"is_overdue"`
	PaymentPercentage float64         `json:"payment_percentage"`
}

package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/adamwilson22/Velaa-Backend/internal/billing"
	"github.com/adamwilson22/Velaa-Backend/internal/db"
	"github.com/adamwilson22/Velaa-Backend/internal/models"
	"github.com/adamwilson22/Velaa-Backend/internal/utils"
)

// MongoLedgerStore keeps invoices in the billings collection. Idempotent
// creation relies on the unique index built by db.EnsureIndexes.
type MongoLedgerStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewMongoLedgerStore(database *mongo.Database) *MongoLedgerStore {
	return &MongoLedgerStore{
		coll: database.Collection(db.InvoicesCollection),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func naturalKey(vehicle utils.SixID, typ models.TransactionType, period string) bson.M {
	return bson.M{"vehicle": vehicle, "transaction_type": typ, "billing_period": period}
}

func (s *MongoLedgerStore) CreateIfAbsent(ctx context.Context, inv *models.Invoice) (*models.Invoice, bool, error) {
	inv.GenIDIfEmpty()
	inv.Touch(s.now())

	raw, err := bson.Marshal(inv)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode invoice: %w", err)
	}
	var onInsert bson.M
	if err := bson.Unmarshal(raw, &onInsert); err != nil {
		return nil, false, fmt.Errorf("failed to encode invoice: %w", err)
	}
	// Set on every upsert, so they cannot also appear in $setOnInsert.
	delete(onInsert, "updated_by")
	delete(onInsert, "updated_at")

	update := bson.M{
		"$setOnInsert": onInsert,
		"$set":         bson.M{"updated_by": inv.UpdatedBy, "updated_at": inv.UpdatedAt},
	}
	res, err := s.coll.UpdateOne(ctx, naturalKey(inv.Vehicle, inv.Type, inv.BillingPeriod), update, options.Update().SetUpsert(true))
	if err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return nil, false, fmt.Errorf("%w: %v", ErrDuplicateKey, err)
		}
		return nil, false, fmt.Errorf("failed to upsert invoice: %w", err)
	}
	if res.UpsertedCount == 1 {
		return inv, true, nil
	}

	existing, err := s.FindByKey(ctx, inv.Vehicle, inv.Type, inv.BillingPeriod)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *MongoLedgerStore) findOne(ctx context.Context, filter bson.M) (*models.Invoice, error) {
	var inv models.Invoice
	if err := s.coll.FindOne(ctx, filter).Decode(&inv); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find invoice: %w", err)
	}
	return &inv, nil
}

func (s *MongoLedgerStore) FindByID(ctx context.Context, id utils.SixID) (*models.Invoice, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *MongoLedgerStore) FindByKey(ctx context.Context, vehicle utils.SixID, typ models.TransactionType, period string) (*models.Invoice, error) {
	return s.findOne(ctx, naturalKey(vehicle, typ, period))
}

func (s *MongoLedgerStore) StampUpdatedBy(ctx context.Context, id utils.SixID, user string) (*models.Invoice, error) {
	var inv models.Invoice
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"updated_by": user, "updated_at": s.now()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&inv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to stamp invoice %s: %w", id, err)
	}
	return &inv, nil
}

func (s *MongoLedgerStore) Save(ctx context.Context, inv *models.Invoice) error {
	expected := inv.Version
	prevUpdated := inv.UpdatedAt
	inv.Version = expected + 1
	inv.UpdatedAt = s.now()

	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": inv.ID, "version": expected}, inv)
	if err == nil && res.MatchedCount == 1 {
		return nil
	}
	inv.Version = expected
	inv.UpdatedAt = prevUpdated
	if err != nil {
		return fmt.Errorf("failed to save invoice %s: %w", inv.ID, err)
	}

	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": inv.ID})
	if err != nil {
		return fmt.Errorf("failed to check invoice %s: %w", inv.ID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return billing.ErrConcurrentModification
}

func invoiceQuery(f InvoiceFilter) bson.M {
	q := bson.M{}
	if f.Type != "" {
		q["transaction_type"] = f.Type
	}
	if f.BillingPeriod != "" {
		q["billing_period"] = f.BillingPeriod
	}
	if f.Client != nil {
		q["client"] = *f.Client
	}
	if len(f.PaymentStatuses) > 0 {
		q["payment_status"] = bson.M{"$in": f.PaymentStatuses}
	}
	if len(f.ExcludeStatuses) > 0 {
		q["status"] = bson.M{"$nin": f.ExcludeStatuses}
	}
	if f.DueBefore != nil {
		q["due_date"] = bson.M{"$lt": *f.DueBefore}
	}
	if f.InvoiceFrom != nil || f.InvoiceTo != nil {
		r := bson.M{}
		if f.InvoiceFrom != nil {
			r["$gte"] = *f.InvoiceFrom
		}
		if f.InvoiceTo != nil {
			r["$lt"] = *f.InvoiceTo
		}
		q["invoice_date"] = r
	}
	return q
}

func invoiceSort(sort InvoiceSort) bson.D {
	if sort == SortByPeriodDesc {
		return bson.D{{Key: "billing_period", Value: -1}, {Key: "due_date", Value: 1}, {Key: "invoice_number", Value: 1}}
	}
	return bson.D{{Key: "due_date", Value: 1}, {Key: "invoice_number", Value: 1}}
}

func (s *MongoLedgerStore) List(ctx context.Context, filter InvoiceFilter, opts ListOptions) ([]models.Invoice, int64, error) {
	q := invoiceQuery(filter)
	total, err := s.coll.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count invoices: %w", err)
	}

	findOpts := options.Find().SetSort(invoiceSort(opts.Sort))
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}
	cursor, err := s.coll.Find(ctx, q, findOpts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer cursor.Close(ctx)

	invoices := []models.Invoice{}
	if err := cursor.All(ctx, &invoices); err != nil {
		return nil, 0, fmt.Errorf("failed to decode invoices: %w", err)
	}
	return invoices, total, nil
}

func (s *MongoLedgerStore) InvoiceNumbers(ctx context.Context, prefix string) ([]string, error) {
	cursor, err := s.coll.Find(ctx,
		bson.M{"invoice_number": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}},
		options.Find().SetProjection(bson.M{"invoice_number": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan invoice numbers: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		InvoiceNumber string `bson:"invoice_number"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode invoice numbers: %w", err)
	}
	numbers := make([]string, 0, len(rows))
	for _, r := range rows {
		numbers = append(numbers, r.InvoiceNumber)
	}
	return numbers, nil
}

func (s *MongoLedgerStore) Revenue(ctx context.Context, from, to time.Time) (RevenueStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: invoiceQuery(revenueFilter(from, to))}},
		{{Key: "$group", Value: bson.M{
			"_id":            nil,
			"count":          bson.M{"$sum": 1},
			"total_amount":   bson.M{"$sum": "$total_amount"},
			"paid_amount":    bson.M{"$sum": "$paid_amount"},
			"balance_amount": bson.M{"$sum": "$balance_amount"},
		}}},
	}
	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return RevenueStats{}, fmt.Errorf("failed to aggregate revenue: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Count         int64   `bson:"count"`
		TotalAmount   float64 `bson:"total_amount"`
		PaidAmount    float64 `bson:"paid_amount"`
		BalanceAmount float64 `bson:"balance_amount"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return RevenueStats{}, fmt.Errorf("failed to decode revenue: %w", err)
	}
	if len(rows) == 0 {
		return RevenueStats{}, nil
	}
	r := rows[0]
	return RevenueStats{
		Count:         r.Count,
		TotalAmount:   roundMoney(r.TotalAmount),
		PaidAmount:    roundMoney(r.PaidAmount),
		BalanceAmount: roundMoney(r.BalanceAmount),
	}, nil
}

package repo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/LeventeLantos/boleto-reminder/internal/model"
)

const invoicesCollection = "invoices"

type invoiceDoc struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	model.Invoice `bson:",inline"`
}

func (d invoiceDoc) invoice() model.Invoice {
	inv := d.Invoice
	inv.ID = d.ID.Hex()
	return inv
}

type MongoInvoiceRepo struct {
	coll *mongo.Collection
}

// ConnectMongo connects and pings within timeout.
func ConnectMongo(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

func NewMongoInvoiceRepo(db *mongo.Database) *MongoInvoiceRepo {
	return &MongoInvoiceRepo{coll: db.Collection(invoicesCollection)}
}

func (r *MongoInvoiceRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "due_date", Value: 1}},
	})
	return err
}

func (r *MongoInvoiceRepo) Create(ctx context.Context, inv *model.Invoice) error {
	prepareNew(inv, time.Now())

	res, err := r.coll.InsertOne(ctx, invoiceDoc{Invoice: *inv})
	if err != nil {
		return err
	}

	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return errors.New("unexpected inserted id type")
	}
	inv.ID = oid.Hex()
	return nil
}

func (r *MongoInvoiceRepo) Get(ctx context.Context, id string) (model.Invoice, error) {
	oid, err := objectID(id)
	if err != nil {
		return model.Invoice{}, err
	}

	var doc invoiceDoc
	err = r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Invoice{}, ErrNotFound
	}
	if err != nil {
		return model.Invoice{}, err
	}
	return doc.invoice(), nil
}

func (r *MongoInvoiceRepo) List(ctx context.Context, f ListFilter) ([]model.Invoice, error) {
	f = f.normalized()

	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = f.Status
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "due_date", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(f.Limit)).
		SetSkip(int64(f.Offset))

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	return decodeAll(ctx, cur)
}

func (r *MongoInvoiceRepo) MarkPaid(ctx context.Context, id string) (model.Invoice, error) {
	oid, err := objectID(id)
	if err != nil {
		return model.Invoice{}, err
	}

	update := bson.M{"$set": bson.M{
		"status":      model.InvoicePaid,
		"alert_level": model.AlertNormal,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc invoiceDoc
	err = r.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Invoice{}, ErrNotFound
	}
	if err != nil {
		return model.Invoice{}, err
	}
	return doc.invoice(), nil
}

func (r *MongoInvoiceRepo) RecordDelivery(ctx context.Context, id string, rec model.DeliveryRecord) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}

	rec.At = rec.At.UTC()
	set := bson.M{"last_delivery": rec}
	if notifies(rec) {
		set["notified"] = true
		set["last_notified_at"] = rec.At
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoInvoiceRepo) DueForReminder(ctx context.Context, now time.Time, window time.Duration) ([]model.Invoice, error) {
	filter := bson.M{
		"status":   bson.M{"$in": bson.A{model.InvoicePending, model.InvoiceOverdue}},
		"due_date": bson.M{"$lte": now.Add(window).UTC()},
	}
	opts := options.Find().SetSort(bson.D{{Key: "due_date", Value: 1}})

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	return decodeAll(ctx, cur)
}

func (r *MongoInvoiceRepo) UpdateStatus(ctx context.Context, id string, status model.InvoiceStatus, level model.AlertLevel) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"status":      status,
		"alert_level": level,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func decodeAll(ctx context.Context, cur *mongo.Cursor) ([]model.Invoice, error) {
	defer cur.Close(ctx)

	out := []model.Invoice{}
	for cur.Next(ctx) {
		var doc invoiceDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.invoice())
	}
	return out, cur.Err()
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, ErrNotFound
	}
	return oid, nil
}

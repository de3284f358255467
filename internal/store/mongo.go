package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tripwise-backend/internal/settings"
	"tripwise-backend/internal/trip"
	"tripwise-backend/internal/user"
)

const (
	adminConfigCollection = "admin_config"
	tripsCollection       = "trips"
	usersCollection       = "users"
)

// MongoStore keeps admin config revisions, trips and users in MongoDB.
type MongoStore struct {
	client  *mongo.Client
	configs *mongo.Collection
	trips   *mongo.Collection
	users   *mongo.Collection
}

type adminConfigDoc struct {
	Provider    string    `bson:"provider"`
	Model       string    `bson:"model"`
	Credential  string    `bson:"credential"`
	AdminEmails []string  `bson:"admin_emails"`
	UpdatedAt   time.Time `bson:"updated_at"`
	UpdatedBy   string    `bson:"updated_by"`
}

// NewMongoStore connects to uri and makes sure the trip and user indexes
// exist.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	dbh := client.Database(database)
	s := &MongoStore{
		client:  client,
		configs: dbh.Collection(adminConfigCollection),
		trips:   dbh.Collection(tripsCollection),
		users:   dbh.Collection(usersCollection),
	}
	_, err = s.trips.Indexes().CreateMany(connectCtx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "trip_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "trip_id", Value: -1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "trip_id", Value: -1}}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo indexes: %w", err)
	}
	_, err = s.users.Indexes().CreateMany(connectCtx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "user_id", Value: -1}}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo indexes: %w", err)
	}
	return s, nil
}

func (s *MongoStore) LatestAdminConfig(ctx context.Context) (*settings.AdminConfig, error) {
	var doc adminConfigDoc
	opts := options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: -1}})
	err := s.configs.FindOne(ctx, bson.M{}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find admin config: %w", err)
	}
	return &settings.AdminConfig{
		Provider:    doc.Provider,
		Model:       doc.Model,
		Credential:  doc.Credential,
		AdminEmails: doc.AdminEmails,
		UpdatedAt:   doc.UpdatedAt.UTC(),
		UpdatedBy:   doc.UpdatedBy,
	}, nil
}

// SaveAdminConfig inserts a revision, then deletes all others. Pruning
// failures are returned but leave the new revision in effect.
func (s *MongoStore) SaveAdminConfig(ctx context.Context, cfg settings.AdminConfig) error {
	res, err := s.configs.InsertOne(ctx, adminConfigDoc{
		Provider:    cfg.Provider,
		Model:       cfg.Model,
		Credential:  cfg.Credential,
		AdminEmails: cfg.AdminEmails,
		UpdatedAt:   cfg.UpdatedAt,
		UpdatedBy:   cfg.UpdatedBy,
	})
	if err != nil {
		return fmt.Errorf("insert admin config: %w", err)
	}
	if _, err := s.configs.DeleteMany(ctx, bson.M{"_id": bson.M{"$ne": res.InsertedID}}); err != nil {
		return fmt.Errorf("prune admin config: %w", err)
	}
	return nil
}

func (s *MongoStore) InsertTrip(ctx context.Context, rec trip.Record) error {
	_, err := s.trips.InsertOne(ctx, rec)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("trip %s: %w", rec.ID, trip.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert trip: %w", err)
	}
	return nil
}

func (s *MongoStore) ListTrips(ctx context.Context, ownerID string, limit int, cur string) (trip.Page, error) {
	return s.listTrips(ctx, bson.M{"owner_id": ownerID}, limit, cur)
}

func (s *MongoStore) ListAllTrips(ctx context.Context, limit int, cur string) (trip.Page, error) {
	return s.listTrips(ctx, bson.M{}, limit, cur)
}

func (s *MongoStore) listTrips(ctx context.Context, filter bson.M, limit int, cur string) (trip.Page, error) {
	after, err := decodeCursor(cur)
	if err != nil {
		return trip.Page{}, err
	}
	if after != nil {
		filter["$or"] = afterFilter(after, "trip_id")
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "trip_id", Value: -1}}).
		SetLimit(int64(limit + 1))

	c, err := s.trips.Find(ctx, filter, opts)
	if err != nil {
		return trip.Page{}, fmt.Errorf("find trips: %w", err)
	}
	var recs []trip.Record
	if err := c.All(ctx, &recs); err != nil {
		return trip.Page{}, fmt.Errorf("decode trips: %w", err)
	}
	for i := range recs {
		recs[i].CreatedAt = recs[i].CreatedAt.UTC()
	}
	return tripPage(recs, limit), nil
}

// afterFilter matches documents sorting after the cursor on
// (created_at desc, idField desc).
func afterFilter(after *cursor, idField string) bson.A {
	return bson.A{
		bson.M{"created_at": bson.M{"$lt": after.createdAt}},
		bson.M{"created_at": after.createdAt, idField: bson.M{"$lt": after.id}},
	}
}

func (s *MongoStore) CountTrips(ctx context.Context) (int64, error) {
	n, err := s.trips.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count trips: %w", err)
	}
	return n, nil
}

func (s *MongoStore) GetTrip(ctx context.Context, ownerID, id string) (*trip.Record, error) {
	var rec trip.Record
	err := s.trips.FindOne(ctx, bson.M{"trip_id": id, "owner_id": ownerID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, trip.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find trip: %w", err)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}

func (s *MongoStore) DeleteTrip(ctx context.Context, ownerID, id string) error {
	return s.deleteTrip(ctx, bson.M{"trip_id": id, "owner_id": ownerID})
}

func (s *MongoStore) RemoveTrip(ctx context.Context, id string) error {
	return s.deleteTrip(ctx, bson.M{"trip_id": id})
}

func (s *MongoStore) deleteTrip(ctx context.Context, filter bson.M) error {
	res, err := s.trips.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("delete trip: %w", err)
	}
	if res.DeletedCount == 0 {
		return trip.ErrNotFound
	}
	return nil
}

// UpsertUser sets created_at only when the document is inserted.
func (s *MongoStore) UpsertUser(ctx context.Context, u user.User) error {
	update := bson.M{
		"$set": bson.M{
			"email":        u.Email,
			"name":         u.Name,
			"image_url":    u.ImageURL,
			"last_seen_at": u.LastSeenAt,
		},
		"$setOnInsert": bson.M{"created_at": u.CreatedAt},
	}
	_, err := s.users.UpdateOne(ctx, bson.M{"user_id": u.ID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (s *MongoStore) ListUsers(ctx context.Context, limit int, cur string) (user.Page, error) {
	after, err := decodeCursor(cur)
	if err != nil {
		return user.Page{}, err
	}
	filter := bson.M{}
	if after != nil {
		filter["$or"] = afterFilter(after, "user_id")
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "user_id", Value: -1}}).
		SetLimit(int64(limit + 1))

	c, err := s.users.Find(ctx, filter, opts)
	if err != nil {
		return user.Page{}, fmt.Errorf("find users: %w", err)
	}
	var found []user.User
	if err := c.All(ctx, &found); err != nil {
		return user.Page{}, fmt.Errorf("decode users: %w", err)
	}
	for i := range found {
		found[i].CreatedAt = found[i].CreatedAt.UTC()
		found[i].LastSeenAt = found[i].LastSeenAt.UTC()
	}
	return userPage(found, limit), nil
}

func (s *MongoStore) CountUsers(ctx context.Context) (int64, error) {
	n, err := s.users.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (s *MongoStore) DeleteUser(ctx context.Context, id string) error {
	res, err := s.users.DeleteOne(ctx, bson.M{"user_id": id})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error { return s.client.Ping(ctx, nil) }

func (s *MongoStore) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

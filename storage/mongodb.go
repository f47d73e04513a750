package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/blavejr/bookmatch/config"
	"github.com/blavejr/bookmatch/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore is an alternate catalog source: books live in a MongoDB
// collection instead of a file.
type MongoStore struct {
	client     *mongo.Client
	database   *mongo.Database
	collection *mongo.Collection
	config     *config.Config
}

// bookRecord is the stored shape of a book. Position preserves catalog order.
type bookRecord struct {
	ID        string    `bson:"_id"`
	Title     string    `bson:"title"`
	Summary   string    `bson:"summary"`
	Position  int       `bson:"position"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func NewMongoStore(cfg *config.Config) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	database := client.Database(cfg.MongoDatabase)
	collection := database.Collection(cfg.MongoCollection)

	log.Printf("Connected to MongoDB: %s/%s", cfg.MongoDatabase, cfg.MongoCollection)

	return &MongoStore{
		client:     client,
		database:   database,
		collection: collection,
		config:     cfg,
	}, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// LoadBooks returns every stored book in catalog order.
func (s *MongoStore) LoadBooks(ctx context.Context) ([]models.Book, error) {
	opts := options.Find().SetSort(bson.D{{Key: "position", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch books: %w", err)
	}
	defer cursor.Close(ctx)

	var records []bookRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode books: %w", err)
	}

	log.Printf("Loaded %d books from MongoDB", len(records))
	return recordsToBooks(records), nil
}

// ReplaceBooks makes the collection hold exactly books: each one is upserted
// by id and any id not in books is removed.
func (s *MongoStore) ReplaceBooks(ctx context.Context, books []models.Book) error {
	if len(books) == 0 {
		return fmt.Errorf("no books to store")
	}
	log.Printf("Writing %d books to MongoDB...", len(books))
	startTime := time.Now()

	now := time.Now().UTC()
	records := booksToRecords(books, now)
	writes := make([]mongo.WriteModel, len(records))
	ids := make(bson.A, len(records))
	for i, rec := range records {
		writes[i] = mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: "_id", Value: rec.ID}}).
			SetReplacement(rec).
			SetUpsert(true)
		ids[i] = rec.ID
	}

	res, err := s.collection.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true))
	if err != nil {
		return fmt.Errorf("failed to write books: %w", err)
	}

	del, err := s.collection.DeleteMany(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$nin", Value: ids}}}})
	if err != nil {
		return fmt.Errorf("failed to prune books: %w", err)
	}

	log.Printf("Stored books in %v (upserted: %d, modified: %d, removed: %d)",
		time.Since(startTime), res.UpsertedCount, res.ModifiedCount, del.DeletedCount)
	return nil
}

// CountBooks returns the number of stored books.
func (s *MongoStore) CountBooks(ctx context.Context) (int64, error) {
	count, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count books: %w", err)
	}
	return count, nil
}

func booksToRecords(books []models.Book, now time.Time) []bookRecord {
	records := make([]bookRecord, len(books))
	for i, b := range books {
		records[i] = bookRecord{
			ID:        b.ID,
			Title:     b.Title,
			Summary:   b.Summary,
			Position:  i,
			UpdatedAt: now,
		}
	}
	return records
}

func recordsToBooks(records []bookRecord) []models.Book {
	books := make([]models.Book, len(records))
	for i, r := range records {
		books[i] = models.Book{ID: r.ID, Title: r.Title, Summary: r.Summary}
	}
	return books
}

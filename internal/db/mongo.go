package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"content_spider/internal/config"
	"content_spider/internal/logger"
	"content_spider/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoDB struct {
	client *mongo.Client
	posts  *mongo.Collection
	log    logger.Logger
}

func NewMongoDB(ctx context.Context, cfg config.DBConfig, log logger.Logger) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Connection))
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}

	d := &MongoDB{
		client: client,
		posts:  client.Database(cfg.Database).Collection(cfg.Collections.Posts),
		log:    log,
	}
	if err := d.createIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return d, nil
}

func (d *MongoDB) createIndexes(ctx context.Context) error {
	_, err := d.posts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "slug", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create slug index: %w", err)
	}

	_, err = d.posts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "scraped_at", Value: 1}},
	})
	if err != nil {
		d.log.Warn("scraped_at index not created", logger.Error(err))
	}
	return nil
}

// Save upserts rec by slug. It reports true when a new document was created.
func (d *MongoDB) Save(ctx context.Context, rec *models.ContentRecord) (bool, error) {
	if rec.Slug == "" {
		return false, errors.New("record has no slug")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	update, err := postUpdate(rec, time.Now().UTC())
	if err != nil {
		return false, err
	}

	res, err := d.posts.UpdateOne(ctx, bson.M{"slug": rec.Slug}, update, options.Update().SetUpsert(true))
	if err != nil {
		return false, fmt.Errorf("upsert %s: %w", rec.Slug, err)
	}
	return res.UpsertedCount > 0, nil
}

// postUpdate sets every record field, stamps created_at on first insert and
// counts how many runs have seen the post.
func postUpdate(rec *models.ContentRecord, now time.Time) (bson.M, error) {
	data, err := bson.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	var set bson.M
	if err := bson.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	delete(set, "_id")
	set["featured_image"] = rec.FeaturedImage()
	set["updated_at"] = now

	return bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"created_at": now},
		"$inc":         bson.M{"scraped_count": 1},
	}, nil
}

func (d *MongoDB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return d.client.Disconnect(ctx)
}

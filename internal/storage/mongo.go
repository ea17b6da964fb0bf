package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"lyriclab/internal/domain"
)

var _ domain.ProjectStore = (*MongoProjectStore)(nil)

const projectsCollection = "projects"

// mongoProject is the stored document. The aggregate travels as JSON so
// both backends share one codec.
type mongoProject struct {
	ID        string `bson:"_id"`
	Title     string `bson:"title"`
	Status    string `bson:"status"`
	UpdatedAt int64  `bson:"updatedAt"`
	Data      string `bson:"data"`
}

// MongoProjectStore implements domain.ProjectStore on a MongoDB collection.
type MongoProjectStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// OpenMongo connects to uri and pings the server before returning.
func OpenMongo(ctx context.Context, uri, dbName string) (*MongoProjectStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	return &MongoProjectStore{
		client: client,
		coll:   client.Database(dbName).Collection(projectsCollection),
	}, nil
}

func (s *MongoProjectStore) List(ctx context.Context) ([]domain.ProjectSummary, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	cursor, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoProject
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("read projects: %w", err)
	}

	out := make([]domain.ProjectSummary, 0, len(docs))
	for _, d := range docs {
		var p domain.Project
		if err := json.Unmarshal([]byte(d.Data), &p); err != nil {
			log.Printf("[storage] skipping unreadable project %s: %v", d.ID, err)
			continue
		}
		out = append(out, p.Summary())
	}
	return out, nil
}

func (s *MongoProjectStore) Get(ctx context.Context, id string) (*domain.Project, error) {
	var doc mongoProject
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}

	p := &domain.Project{}
	if err := json.Unmarshal([]byte(doc.Data), p); err != nil {
		return nil, fmt.Errorf("decode project %s: %w", id, err)
	}
	return p, nil
}

func (s *MongoProjectStore) Save(ctx context.Context, p *domain.Project) error {
	p.LastModified = time.Now()
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode project: %w", err)
	}

	doc := mongoProject{
		ID:        p.ID,
		Title:     p.Title,
		Status:    string(p.Status),
		UpdatedAt: p.LastModified.UnixNano(),
		Data:      string(data),
	}
	_, err = s.coll.ReplaceOne(ctx, bson.M{"_id": p.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	return nil
}

func (s *MongoProjectStore) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrProjectNotFound
	}
	return nil
}

func (s *MongoProjectStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

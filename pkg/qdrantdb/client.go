package qdrantdb

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"ragstore/pkg/vectorindex"
)

// pointIDNamespace makes point ids deterministic: the same vector id
// always maps to the same UUID, so re-ingesting a source overwrites its
// previous points instead of duplicating them.
var pointIDNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// Client implements vectorindex.Store on qdrant. Each namespace is one
// collection with cosine distance and a fixed vector size.
type Client struct {
	client *qdrant.Client
	logger *zap.Logger
}

func NewClient(host string, port int, logger *zap.Logger) (*Client, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port, // gRPC port
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return &Client{client: client, logger: logger}, nil
}

func (c *Client) EnsureNamespace(ctx context.Context, namespace string, dimension int) error {
	exists, err := c.client.CollectionExists(ctx, namespace)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	err = c.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: namespace,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %q: %w", namespace, err)
	}
	c.logger.Info("created collection",
		zap.String("namespace", namespace),
		zap.Int("dimension", dimension))
	return nil
}

func (c *Client) Upsert(ctx context.Context, namespace string, records []vectorindex.Record) error {
	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, rec := range records {
		id := uuid.NewSHA1(pointIDNamespace, []byte(rec.ID)).String()
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(id),
			Vectors: qdrant.NewVectorsDense(rec.Vector),
			Payload: qdrant.NewValueMap(map[string]any{
				"vector_id":   rec.ID,
				"source_id":   rec.SourceID,
				"chunk_index": rec.ChunkIndex,
				"category":    rec.Category,
				"text":        rec.Text,
			}),
		})
	}

	wait := true
	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: namespace,
		Points:         points,
		Wait:           &wait,
	})
	if err != nil {
		return fmt.Errorf("upsert of %d points failed: %w", len(points), err)
	}
	return nil
}

func (c *Client) Query(ctx context.Context, namespace string, vector []float32, k int) ([]vectorindex.Match, error) {
	exists, err := c.client.CollectionExists(ctx, namespace)
	if err != nil {
		return nil, err
	}
	if !exists {
		// An unused namespace has zero matches; that is not an error.
		return nil, nil
	}

	limit := uint64(k)
	points, err := c.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: namespace,
		Query:          qdrant.NewQueryDense(vector),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	matches := make([]vectorindex.Match, 0, len(points))
	for _, p := range points {
		matches = append(matches, vectorindex.Match{
			Text:     p.Payload["text"].GetStringValue(),
			Score:    p.Score,
			SourceID: p.Payload["source_id"].GetStringValue(),
		})
	}
	return matches, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

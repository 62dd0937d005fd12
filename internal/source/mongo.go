package source

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/dbfleet/dbfleet/internal/config"
)

const mongoConnectTimeout = 10 * time.Second

// mongoFetcher reads node documents from a repository collection, one
// document per node, and groups them the same way as SQL rows.
type mongoFetcher struct {
	src    config.Source
	client *mongo.Client
	coll   *mongo.Collection
}

func newMongoFetcher(ctx context.Context, src config.Source) (*mongoFetcher, error) {
	uri := src.URI()
	if uri == "" {
		return nil, fmt.Errorf("source %q: environment variable %s is empty", src.ID, src.URIEnv)
	}
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(mongoConnectTimeout).
		SetReadPreference(readpref.SecondaryPreferred())

	connectCtx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()
	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("source %q: mongo connect: %w", src.ID, err)
	}
	return &mongoFetcher{
		src:    src,
		client: client,
		coll:   client.Database(src.Database).Collection(src.Collection),
	}, nil
}

func (f *mongoFetcher) Fetch(ctx context.Context) (any, error) {
	cur, err := f.coll.Find(ctx, bson.D{}, options.Find().SetProjection(bson.D{{Key: "_id", Value: 0}}))
	if err != nil {
		return nil, fmt.Errorf("mongo find: %w", err)
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo cursor: %w", err)
	}

	rows := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		rows = append(rows, plainDoc(d))
	}
	return shapeRows(f.src.Engine, f.src.GroupBy, rows), nil
}

func (f *mongoFetcher) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return f.client.Disconnect(ctx)
}

// plainDoc converts a decoded BSON document into plain Go maps, slices and
// scalars so the adapters see the same value types as for JSON payloads.
func plainDoc(d bson.M) map[string]any {
	out := make(map[string]any, len(d))
	for k, v := range d {
		out[k] = plainValue(v)
	}
	return out
}

func plainValue(v any) any {
	switch x := v.(type) {
	case bson.M:
		return plainDoc(x)
	case bson.D:
		out := make(map[string]any, len(x))
		for _, e := range x {
			out[e.Key] = plainValue(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plainValue(e)
		}
		return out
	case primitive.ObjectID:
		return x.Hex()
	case primitive.DateTime:
		return x.Time().UTC().Format(time.RFC3339)
	case primitive.Decimal128:
		return x.String()
	default:
		return v
	}
}

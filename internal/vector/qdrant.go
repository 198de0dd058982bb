package vector

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// recordIDKey holds the caller's record ID in the payload. Qdrant point IDs must be
// UUIDs, so IDs of any other form are mapped to a name-based UUID.
const recordIDKey = "_record_id"

var pointNamespace = uuid.MustParse("6f1d3c1e-5f55-4d6a-9a51-3c7f4a9b2e10")

// keywordFields get a keyword payload index when a collection is created.
var keywordFields = []string{"source_id", "owner_id"}

// QdrantConfig holds connection settings for a Qdrant server.
type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// QdrantIndex stores records as points in Qdrant collections, one collection per index.
// Upsert sends the delete and the insert in one update batch, which Qdrant applies in
// order; a failure partway through is not rolled back.
type QdrantIndex struct {
	client *qdrant.Client
}

// NewQdrantIndex connects to Qdrant over gRPC.
func NewQdrantIndex(cfg QdrantConfig) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &QdrantIndex{client: client}, nil
}

// EnsureIndex creates the collection with cosine distance and keyword indexes on the
// source and owner fields.
func (q *QdrantIndex) EnsureIndex(ctx context.Context, name string, dimension int) error {
	if name == "" {
		return errors.New("empty collection name")
	}
	if dimension <= 0 {
		return fmt.Errorf("dimensions must be positive")
	}
	exists, err := q.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("qdrant collection exists: %w", err)
	}
	if !exists {
		err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			// Another writer may have created it first.
			if exists, _ = q.client.CollectionExists(ctx, name); !exists {
				return fmt.Errorf("qdrant create collection: %w", err)
			}
		} else {
			for _, field := range keywordFields {
				_, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
					CollectionName: name,
					FieldName:      field,
					FieldType:      qdrant.PtrOf(qdrant.FieldType_FieldTypeKeyword),
					Wait:           qdrant.PtrOf(true),
				})
				if err != nil {
					return fmt.Errorf("qdrant create field index %s: %w", field, err)
				}
			}
			return nil
		}
	}
	dim, err := q.dimension(ctx, name)
	if err != nil {
		return err
	}
	if dim != dimension {
		return fmt.Errorf("%w: index %q has dimension %d, requested %d", ErrDimensionMismatch, name, dim, dimension)
	}
	return nil
}

func (q *QdrantIndex) dimension(ctx context.Context, name string) (int, error) {
	info, err := q.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return 0, q.wrap(name, "get collection info", err)
	}
	return int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()), nil
}

// Upsert deletes points matching deleteFilter and upserts records in one update batch.
func (q *QdrantIndex) Upsert(ctx context.Context, name string, records []Record, deleteFilter Filter) error {
	dim, err := q.dimension(ctx, name)
	if err != nil {
		return err
	}
	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		if err := checkDimension(name, dim, r.Vector); err != nil {
			return err
		}
		if !finite(r.Vector) {
			return fmt.Errorf("record %s: vector has non-finite components", r.ID)
		}
		meta := copyMetadata(r.Metadata)
		meta[recordIDKey] = r.ID
		payload, err := qdrant.TryValueMap(meta)
		if err != nil {
			return fmt.Errorf("record %s: %w", r.ID, err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(pointID(r.ID)),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: payload,
		})
	}

	var ops []*qdrant.PointsUpdateOperation
	if f, ok := qdrantFilter(deleteFilter); ok && f != nil {
		ops = append(ops, qdrant.NewPointsUpdateDeletePoints(&qdrant.PointsUpdateOperation_DeletePoints{
			Points: qdrant.NewPointsSelectorFilter(f),
		}))
	}
	if len(points) > 0 {
		ops = append(ops, qdrant.NewPointsUpdateUpsert(&qdrant.PointsUpdateOperation_PointStructList{
			Points: points,
		}))
	}
	if len(ops) == 0 {
		return nil
	}
	_, err = q.client.UpdateBatch(ctx, &qdrant.UpdateBatchPoints{
		CollectionName: name,
		Wait:           qdrant.PtrOf(true),
		Operations:     ops,
	})
	if err != nil {
		return q.wrap(name, "update batch", err)
	}
	return nil
}

// Query returns the topK nearest points matching filter.
func (q *QdrantIndex) Query(ctx context.Context, name string, vector []float32, topKCount int, filter Filter) ([]Result, error) {
	dim, err := q.dimension(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := checkDimension(name, dim, vector); err != nil {
		return nil, err
	}
	f, ok := qdrantFilter(filter)
	if !ok || topKCount <= 0 {
		return nil, nil
	}
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vector...),
		Filter:         f,
		Limit:          qdrant.PtrOf(uint64(topKCount)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, q.wrap(name, "query", err)
	}
	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		meta := payloadToMap(hit.GetPayload())
		id, _ := meta[recordIDKey].(string)
		if id == "" {
			id = hit.GetId().GetUuid()
		}
		delete(meta, recordIDKey)
		results = append(results, Result{ID: id, Score: float64(hit.GetScore()), Metadata: meta})
	}
	return topK(results, topKCount), nil
}

// DeleteByFilter removes points matching filter.
func (q *QdrantIndex) DeleteByFilter(ctx context.Context, name string, filter Filter) error {
	if len(filter) == 0 {
		return ErrEmptyFilter
	}
	f, ok := qdrantFilter(filter)
	if !ok {
		return nil
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: name,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(f),
	})
	if err != nil {
		return q.wrap(name, "delete", err)
	}
	return nil
}

// Count returns the exact number of points matching filter.
func (q *QdrantIndex) Count(ctx context.Context, name string, filter Filter) (int, error) {
	f, ok := qdrantFilter(filter)
	if !ok {
		if _, err := q.dimension(ctx, name); err != nil {
			return 0, err
		}
		return 0, nil
	}
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: name,
		Filter:         f,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, q.wrap(name, "count", err)
	}
	return int(n), nil
}

// Close closes the gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

func (q *QdrantIndex) wrap(name, op string, err error) error {
	if isQdrantNotFound(err) {
		return notFound(name)
	}
	return fmt.Errorf("qdrant %s: %w", op, err)
}

func isQdrantNotFound(err error) bool {
	if status.Code(err) == codes.NotFound {
		return true
	}
	var qe *qdrant.QdrantError
	if errors.As(err, &qe) {
		if s, ok := status.FromError(errors.Unwrap(qe)); ok && s.Code() == codes.NotFound {
			return true
		}
	}
	return strings.Contains(err.Error(), "doesn't exist")
}

// pointID returns id if it is a UUID, otherwise a UUID derived from it.
func pointID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(pointNamespace, []byte(id)).String()
}

// qdrantFilter converts f to a Qdrant filter. It returns ok=false when a condition has
// no values and so can match nothing. An empty f yields a nil filter.
func qdrantFilter(f Filter) (*qdrant.Filter, bool) {
	if len(f) == 0 {
		return nil, true
	}
	must := make([]*qdrant.Condition, 0, len(f))
	for _, c := range f {
		if len(c.Values) == 0 {
			return nil, false
		}
		// Keyword match covers string payloads; integral and boolean values also match
		// payloads of those types.
		should := []*qdrant.Condition{qdrant.NewMatchKeywords(c.Key, c.Values...)}
		for _, v := range c.Values {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				should = append(should, qdrant.NewMatchInt(c.Key, n))
			} else if v == "true" || v == "false" {
				should = append(should, qdrant.NewMatchBool(c.Key, v == "true"))
			}
		}
		if len(should) == 1 {
			must = append(must, should[0])
			continue
		}
		must = append(must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Filter{Filter: &qdrant.Filter{Should: should}},
		})
	}
	return &qdrant.Filter{Must: must}, true
}

func payloadToMap(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = fromValue(v)
	}
	return out
}

func fromValue(v *qdrant.Value) any {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	case *qdrant.Value_StructValue:
		return payloadToMap(k.StructValue.GetFields())
	case *qdrant.Value_ListValue:
		items := k.ListValue.GetValues()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = fromValue(item)
		}
		return out
	default:
		return nil
	}
}

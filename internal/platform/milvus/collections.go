package milvus

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type MetricType string

const (
	MetricL2     MetricType = "L2"
	MetricCosine MetricType = "COSINE"
	MetricIP     MetricType = "IP"
)

type IndexType string

const (
	IndexFlat      IndexType = "FLAT"
	IndexIVFFlat   IndexType = "IVF_FLAT"
	IndexHNSW      IndexType = "HNSW"
	IndexAutoIndex IndexType = "AUTOINDEX"
)

type CollectionConfig struct {
	CollectionName string
	Dimension      int
	MetricType     MetricType
	IndexType      IndexType
	NList          int
	M              int
	EfConstruction int
}

func (c CollectionConfig) withDefaults() CollectionConfig {
	if c.MetricType == "" {
		c.MetricType = MetricCosine
	}
	if c.IndexType == "" {
		c.IndexType = IndexAutoIndex
	}
	if c.NList <= 0 {
		c.NList = 128
	}
	if c.M <= 0 {
		c.M = 16
	}
	if c.EfConstruction <= 0 {
		c.EfConstruction = 200
	}
	return c
}

func (c CollectionConfig) indexParams() map[string]any {
	params := map[string]any{"index_type": string(c.IndexType)}
	switch c.IndexType {
	case IndexHNSW:
		params["M"] = c.M
		params["efConstruction"] = c.EfConstruction
	case IndexIVFFlat:
		params["nlist"] = c.NList
	}
	return params
}

type FieldSchema struct {
	Name      string
	DataType  string
	IsPrimary bool
	MaxLength int
	Dim       int
}

// Collection is a typed handle on one vector collection: schema creation,
// batched inserts, dedup lookups and filtered deletes.
type Collection struct {
	client *Client
	cfg    CollectionConfig
	fields []FieldSchema

	mu      sync.Mutex
	ensured bool
	loaded  bool
}

func NewCollection(client *Client, cfg CollectionConfig, fields []FieldSchema) *Collection {
	return &Collection{client: client, cfg: cfg.withDefaults(), fields: fields}
}

func (c *Collection) Name() string { return c.cfg.CollectionName }

func (c *Collection) HasCollection(ctx context.Context) (bool, error) {
	var out struct {
		Has bool `json:"has"`
	}
	err := c.client.doJSON(ctx, "has_collection", "/v2/vectordb/collections/has", map[string]any{
		"collectionName": c.cfg.CollectionName,
	}, &out)
	if err != nil {
		return false, err
	}
	return out.Has, nil
}

// EnsureCollection creates the collection and its index when absent.
// Creation is idempotent so racing writers are harmless.
func (c *Collection) EnsureCollection(ctx context.Context) error {
	c.mu.Lock()
	if c.ensured {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	has, err := c.HasCollection(ctx)
	if err != nil {
		return err
	}
	if !has {
		fields := make([]map[string]any, 0, len(c.fields))
		for _, f := range c.fields {
			entry := map[string]any{
				"fieldName": f.Name,
				"dataType":  f.DataType,
			}
			if f.IsPrimary {
				entry["isPrimary"] = true
			}
			params := map[string]any{}
			if f.MaxLength > 0 {
				params["max_length"] = fmt.Sprintf("%d", f.MaxLength)
			}
			if f.Dim > 0 {
				params["dim"] = fmt.Sprintf("%d", f.Dim)
			}
			if len(params) > 0 {
				entry["elementTypeParams"] = params
			}
			fields = append(fields, entry)
		}

		req := map[string]any{
			"collectionName": c.cfg.CollectionName,
			"schema": map[string]any{
				"autoId":             false,
				"enableDynamicField": false,
				"fields":             fields,
			},
			"indexParams": []map[string]any{
				{
					"fieldName":  "embedding",
					"indexName":  "embedding",
					"metricType": string(c.cfg.MetricType),
					"params":     c.cfg.indexParams(),
				},
			},
		}
		if err := c.client.doJSON(ctx, "create_collection", "/v2/vectordb/collections/create", req, nil); err != nil {
			return err
		}
		c.client.log.Info("Milvus collection created", "collection", c.cfg.CollectionName, "dim", c.cfg.Dimension)
	}

	c.mu.Lock()
	c.ensured = true
	c.mu.Unlock()
	return nil
}

func (c *Collection) EnsureLoaded(ctx context.Context) error {
	c.mu.Lock()
	if c.loaded {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	err := c.client.doJSON(ctx, "load_collection", "/v2/vectordb/collections/load", map[string]any{
		"collectionName": c.cfg.CollectionName,
	}, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.loaded = true
	c.mu.Unlock()
	return nil
}

func (c *Collection) Insert(ctx context.Context, rows []map[string]any) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	var out struct {
		InsertCount int `json:"insertCount"`
	}
	err := c.client.doJSON(ctx, "insert", "/v2/vectordb/entities/insert", map[string]any{
		"collectionName": c.cfg.CollectionName,
		"data":           rows,
	}, &out)
	if err != nil {
		return 0, err
	}
	return out.InsertCount, nil
}

func (c *Collection) query(ctx context.Context, filter string, outputFields []string, limit int) ([]map[string]any, error) {
	if err := c.EnsureLoaded(ctx); err != nil {
		return nil, err
	}
	req := map[string]any{
		"collectionName": c.cfg.CollectionName,
		"filter":         filter,
		"outputFields":   outputFields,
	}
	if limit > 0 {
		req["limit"] = limit
	}
	var out []map[string]any
	if err := c.client.doJSON(ctx, "query", "/v2/vectordb/entities/query", req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExistsBy is the dedup probe used before every insert.
func (c *Collection) ExistsBy(ctx context.Context, id, relatedVideoID, userBucket string) (bool, error) {
	filter := fmt.Sprintf(
		`id == %q and related_video_id == %q and user_bucket == %q`,
		id, relatedVideoID, userBucket,
	)
	rows, err := c.query(ctx, filter, []string{"id"}, 1)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// countByFilter asks the server for the aggregate. Enumerating rows and
// counting client-side would be capped by the query endpoint's row limit.
func (c *Collection) countByFilter(ctx context.Context, filter string) (int, error) {
	rows, err := c.query(ctx, filter, []string{"count(*)"}, 0)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	count, ok := rows[0]["count(*)"].(float64)
	if !ok {
		return 0, fmt.Errorf("milvus %s: unexpected count payload %v", c.cfg.CollectionName, rows[0])
	}
	return int(count), nil
}

func (c *Collection) CountByVideo(ctx context.Context, relatedVideoID string) (int, error) {
	return c.countByFilter(ctx, fmt.Sprintf(`related_video_id == %q`, relatedVideoID))
}

func (c *Collection) DeleteByFilter(ctx context.Context, filter string) (int, error) {
	count, err := c.countByFilter(ctx, filter)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}
	err = c.client.doJSON(ctx, "delete", "/v2/vectordb/entities/delete", map[string]any{
		"collectionName": c.cfg.CollectionName,
		"filter":         filter,
	}, nil)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (c *Collection) DeleteByVideo(ctx context.Context, relatedVideoID string) (int, error) {
	return c.DeleteByFilter(ctx, fmt.Sprintf(`related_video_id == %q`, relatedVideoID))
}

func (c *Collection) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	quoted := make([]string, 0, len(ids))
	for _, id := range ids {
		quoted = append(quoted, fmt.Sprintf("%q", id))
	}
	return c.DeleteByFilter(ctx, fmt.Sprintf("id in [%s]", strings.Join(quoted, ", ")))
}

const (
	ImageEmbeddingCollection          = "image_embeddings"
	TextCaptionEmbeddingCollection    = "text_caption_embeddings"
	SegmentCaptionEmbeddingCollection = "segment_caption_embeddings"
)

func NewImageEmbeddingCollection(client *Client, dim int) *Collection {
	return NewCollection(client,
		CollectionConfig{CollectionName: ImageEmbeddingCollection, Dimension: dim, IndexType: IndexHNSW},
		[]FieldSchema{
			{Name: "id", DataType: "VarChar", IsPrimary: true, MaxLength: 128},
			{Name: "embedding", DataType: "FloatVector", Dim: dim},
			{Name: "related_video_id", DataType: "VarChar", MaxLength: 256},
			{Name: "minio_url", DataType: "VarChar", MaxLength: 512},
			{Name: "user_bucket", DataType: "VarChar", MaxLength: 512},
			{Name: "frame_index", DataType: "Int64"},
			{Name: "timestamp", DataType: "VarChar", MaxLength: 64},
		})
}

func NewTextCaptionEmbeddingCollection(client *Client, dim int) *Collection {
	return NewCollection(client,
		CollectionConfig{CollectionName: TextCaptionEmbeddingCollection, Dimension: dim, IndexType: IndexHNSW},
		[]FieldSchema{
			{Name: "id", DataType: "VarChar", IsPrimary: true, MaxLength: 128},
			{Name: "embedding", DataType: "FloatVector", Dim: dim},
			{Name: "frame_index", DataType: "Int64"},
			{Name: "timestamp", DataType: "VarChar", MaxLength: 64},
			{Name: "related_video_id", DataType: "VarChar", MaxLength: 256},
			{Name: "caption", DataType: "VarChar", MaxLength: 10000},
			{Name: "caption_minio_url", DataType: "VarChar", MaxLength: 512},
			{Name: "user_bucket", DataType: "VarChar", MaxLength: 512},
			{Name: "image_minio_url", DataType: "VarChar", MaxLength: 512},
		})
}

func NewSegmentCaptionEmbeddingCollection(client *Client, dim int) *Collection {
	return NewCollection(client,
		CollectionConfig{CollectionName: SegmentCaptionEmbeddingCollection, Dimension: dim, IndexType: IndexHNSW},
		[]FieldSchema{
			{Name: "id", DataType: "VarChar", IsPrimary: true, MaxLength: 128},
			{Name: "embedding", DataType: "FloatVector", Dim: dim},
			{Name: "start_frame", DataType: "Int64"},
			{Name: "end_frame", DataType: "Int64"},
			{Name: "start_time", DataType: "VarChar", MaxLength: 64},
			{Name: "end_time", DataType: "VarChar", MaxLength: 64},
			{Name: "related_video_id", DataType: "VarChar", MaxLength: 256},
			{Name: "caption", DataType: "VarChar", MaxLength: 10000},
			{Name: "segment_caption_minio_url", DataType: "VarChar", MaxLength: 512},
			{Name: "user_bucket", DataType: "VarChar", MaxLength: 512},
		})
}

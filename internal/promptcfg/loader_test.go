package promptcfg_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funddocs/funds-tracker/internal/cache"
	"github.com/funddocs/funds-tracker/internal/common"
	"github.com/funddocs/funds-tracker/internal/objstore"
	"github.com/funddocs/funds-tracker/internal/promptcfg"
)

const (
	bucket    = "config"
	promptKey = "config/prompt.txt"
	schemaKey = "config/schema.json"
)

type memCache struct {
	items map[string][]byte
}

func newMemCache() *memCache { return &memCache{items: make(map[string][]byte)} }

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.items[key] = value
	return nil
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.items[key]
	return v, ok, nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	delete(c.items, key)
	return nil
}

func (c *memCache) Ping(context.Context) error { return nil }

var _ cache.Cache = (*memCache)(nil)

func seed(t *testing.T, objects *objstore.MemoryStore, schema string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, objects.Put(ctx, bucket, promptKey, []byte("Extract fund fields."), "text/plain"))
	require.NoError(t, objects.Put(ctx, bucket, schemaKey, []byte(schema), "application/json"))
}

func TestLoad(t *testing.T) {
	objects := objstore.NewMemoryStore()
	seed(t, objects, `{"type":"object"}`)
	l := promptcfg.NewLoader(objects, nil, nil, bucket, promptKey, schemaKey, time.Minute)

	bundle, err := l.Load(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, "Extract fund fields.", bundle.Prompt)
	assert.JSONEq(t, `{"type":"object"}`, string(bundle.SchemaRaw))
}

func TestLoad_KeyOverrides(t *testing.T) {
	objects := objstore.NewMemoryStore()
	seed(t, objects, `{"type":"object"}`)
	ctx := context.Background()
	require.NoError(t, objects.Put(ctx, bucket, "config/alt-prompt.txt", []byte("Alternate."), "text/plain"))
	l := promptcfg.NewLoader(objects, nil, nil, bucket, promptKey, schemaKey, time.Minute)

	bundle, err := l.Load(ctx, "config/alt-prompt.txt", "")
	require.NoError(t, err)
	assert.Equal(t, "Alternate.", bundle.Prompt)
}

func TestLoad_ServesFromCache(t *testing.T) {
	objects := objstore.NewMemoryStore()
	seed(t, objects, `{"type":"object"}`)
	c := newMemCache()
	l := promptcfg.NewLoader(objects, c, nil, bucket, promptKey, schemaKey, time.Minute)
	ctx := context.Background()

	_, err := l.Load(ctx, "", "")
	require.NoError(t, err)

	// Remove the backing objects; a second load must be answered from the
	// cache alone.
	require.NoError(t, objects.DeleteMany(ctx, bucket, []string{promptKey, schemaKey}))
	bundle, err := l.Load(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, "Extract fund fields.", bundle.Prompt)
}

func TestLoad_MissingObjectIsConfigError(t *testing.T) {
	l := promptcfg.NewLoader(objstore.NewMemoryStore(), nil, nil, bucket, promptKey, schemaKey, time.Minute)
	_, err := l.Load(context.Background(), "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrConfig)
}

func TestLoad_InvalidSchemaJSON(t *testing.T) {
	objects := objstore.NewMemoryStore()
	seed(t, objects, `{"type":`)
	l := promptcfg.NewLoader(objects, nil, nil, bucket, promptKey, schemaKey, time.Minute)

	_, err := l.Load(context.Background(), "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrConfig)
}

// Package promptcfg loads the extraction prompt template and the JSON
// schema the pipeline validates against. Both live in the object store so
// they can change without a deploy; reads go through the cache.
package promptcfg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/funddocs/funds-tracker/internal/cache"
	"github.com/funddocs/funds-tracker/internal/common"
	"github.com/funddocs/funds-tracker/internal/objstore"
)

// Bundle is one loaded prompt + schema pair.
type Bundle struct {
	Prompt    string
	SchemaRaw []byte
}

type Loader struct {
	Objects objstore.Store
	Cache   cache.Cache
	Logger  *slog.Logger

	Bucket    string
	PromptKey string
	SchemaKey string
	TTL       time.Duration
}

func NewLoader(objects objstore.Store, c cache.Cache, logger *slog.Logger, bucket, promptKey, schemaKey string, ttl time.Duration) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		c = cache.NoopCache{}
	}
	return &Loader{
		Objects:   objects,
		Cache:     c,
		Logger:    logger,
		Bucket:    bucket,
		PromptKey: promptKey,
		SchemaKey: schemaKey,
		TTL:       ttl,
	}
}

// Load fetches the prompt template and schema text, honoring per-job key
// overrides. A missing object or schema text that is not valid JSON is a
// configuration error; it must never be silently retried.
func (l *Loader) Load(ctx context.Context, promptKeyOverride, schemaKeyOverride string) (*Bundle, error) {
	promptKey := l.PromptKey
	if promptKeyOverride != "" {
		promptKey = promptKeyOverride
	}
	schemaKey := l.SchemaKey
	if schemaKeyOverride != "" {
		schemaKey = schemaKeyOverride
	}

	prompt, err := l.fetch(ctx, cache.PromptKey(l.Bucket, promptKey), promptKey)
	if err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("load prompt template %q", promptKey), errors.Join(common.ErrConfig, err))
	}
	schemaRaw, err := l.fetch(ctx, cache.SchemaKey(l.Bucket, schemaKey), schemaKey)
	if err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("load schema %q", schemaKey), errors.Join(common.ErrConfig, err))
	}

	if !json.Valid(schemaRaw) {
		return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("schema %q is not valid JSON", schemaKey), common.ErrConfig)
	}

	return &Bundle{Prompt: string(prompt), SchemaRaw: schemaRaw}, nil
}

func (l *Loader) fetch(ctx context.Context, cacheKey, objectKey string) ([]byte, error) {
	if body, ok, err := l.Cache.Get(ctx, cacheKey); err == nil && ok {
		return body, nil
	} else if err != nil {
		l.Logger.Warn("promptcfg.cache.get_error", "key", cacheKey, "error", err)
	}

	body, err := l.Objects.Get(ctx, l.Bucket, objectKey)
	if err != nil {
		return nil, err
	}

	if err := l.Cache.Set(ctx, cacheKey, body, l.TTL); err != nil {
		l.Logger.Warn("promptcfg.cache.set_error", "key", cacheKey, "error", err)
	}
	return body, nil
}

package cache

import "fmt"

func PromptKey(bucket, key string) string {
	return fmt.Sprintf("extractcfg:prompt:%s:%s", bucket, key)
}

func SchemaKey(bucket, key string) string {
	return fmt.Sprintf("extractcfg:schema:%s:%s", bucket, key)
}

package utils

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/mmdatafocus/invoicing_backend/config"
)

func GetCacheLifespan() time.Duration {
	lifespan, err := strconv.Atoi(os.Getenv("CACHE_LIFESPAN"))
	if err != nil || lifespan <= 0 {
		lifespan = 1
	}
	return time.Duration(lifespan) * time.Hour
}

func cacheKey[T any](id string) string {
	return GetTypeName[T]() + ":" + id
}

// store instance under Type:id
func StoreRedis[T any](ctx context.Context, obj *T, id string) error {
	return config.SetRedisObject(ctx, cacheKey[T](id), obj, GetCacheLifespan())
}

// get from redis
// returns nil if does not exist
func RetrieveRedis[T any](ctx context.Context, id string) (*T, error) {
	var result T
	exists, err := config.GetRedisObject(ctx, cacheKey[T](id), &result)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return &result, nil
}

// remove an instance, Type:id
func RemoveRedisItem[T any](ctx context.Context, id string) error {
	return config.RemoveRedisKey(ctx, cacheKey[T](id))
}

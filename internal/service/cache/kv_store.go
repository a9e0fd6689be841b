package cache

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/kapu/astrofm-go/internal/constants"
	"github.com/kapu/astrofm-go/internal/service/storage"
	apperrors "github.com/kapu/astrofm-go/pkg/errors"
	"go.uber.org/zap"
)

// KVStore keeps cache entries as JSON envelopes in the persistent KV store.
type KVStore struct {
	kv     storage.KV
	clock  Clock
	prefix string
	logger *zap.Logger
}

func NewKVStore(kv storage.KV, clock Clock, logger *zap.Logger) *KVStore {
	return &KVStore{
		kv:     kv,
		clock:  clock,
		prefix: constants.StorageKeys.CachePrefix,
		logger: logger,
	}
}

func (s *KVStore) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.kv.Load(ctx, s.prefix+key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, apperrors.NewCacheError("get failed", "get", key, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		s.logger.Warn("Dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		s.evict(ctx, key)
		return nil, ErrMiss
	}

	if !entry.Validity.Fresh(entry.StoredAt, s.clock.now(), s.clock.location()) {
		s.logger.Debug("Cache entry expired", zap.String("key", key), zap.String("validity", string(entry.Validity)))
		s.evict(ctx, key)
		return nil, ErrMiss
	}

	return &entry, nil
}

func (s *KVStore) Put(ctx context.Context, key string, payload []byte, validity Validity) error {
	data, err := json.Marshal(Entry{
		Key:      key,
		Payload:  payload,
		Validity: validity,
		StoredAt: s.clock.now(),
	})
	if err != nil {
		return apperrors.NewCacheError("marshal failed", "put", key, err)
	}
	if err := s.kv.Save(ctx, s.prefix+key, data); err != nil {
		return apperrors.NewCacheError("put failed", "put", key, err)
	}
	return nil
}

func (s *KVStore) Invalidate(ctx context.Context, key string) error {
	if err := s.kv.Delete(ctx, s.prefix+key); err != nil {
		return apperrors.NewCacheError("invalidate failed", "invalidate", key, err)
	}
	return nil
}

// Clear drops every cache entry when the backing store can enumerate keys.
func (s *KVStore) Clear(ctx context.Context) (int, error) {
	lister, ok := s.kv.(storage.KeyLister)
	if !ok {
		return 0, errors.New("storage backend cannot list keys")
	}
	keys, err := lister.Keys(ctx, s.prefix)
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err := s.kv.Delete(ctx, k); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

func (s *KVStore) evict(ctx context.Context, key string) {
	if err := s.kv.Delete(ctx, s.prefix+key); err != nil {
		s.logger.Warn("Lazy eviction failed", zap.String("key", key), zap.Error(err))
	}
}

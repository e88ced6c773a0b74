package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/IliaW/propfirm-rules-scraper/config"
	"github.com/IliaW/propfirm-rules-scraper/internal/model"
	"github.com/bradfitz/gomemcache/memcache"
	jsoniter "github.com/json-iterator/go"
)

// CachedClient keeps the content of successful attempts so that re-runs inside the ttl
// skip the network.
type CachedClient interface {
	Get(url string, m model.Method) (*model.AcquisitionAttempt, bool)
	Put(*model.AcquisitionAttempt)
	Close()
}

type itemStore interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
	Close() error
}

type MemcachedClient struct {
	client itemStore
	cfg    *config.CacheConfig
	log    *slog.Logger
}

func NewMemcachedClient(cacheConfig *config.CacheConfig, log *slog.Logger) *MemcachedClient {
	log.Info("connecting to memcached...")
	ss := new(memcache.ServerList)
	servers := strings.Split(cacheConfig.Servers, ",")
	err := ss.SetServers(servers...)
	if err != nil {
		log.Error("failed to set memcached servers.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	client := memcache.NewFromSelector(ss)
	log.Info("pinging the memcached.")
	err = client.Ping()
	if err != nil {
		log.Error("connection to the memcached is failed.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	log.Info("connected to memcached!")

	return &MemcachedClient{client: client, cfg: cacheConfig, log: log}
}

func (mc *MemcachedClient) Get(url string, m model.Method) (*model.AcquisitionAttempt, bool) {
	key := contentKey(url, m)
	item, err := mc.client.Get(key)
	if err != nil {
		if !errors.Is(err, memcache.ErrCacheMiss) {
			mc.log.Warn("failed to read content from cache.", slog.String("key", key),
				slog.String("err", err.Error()))
		}
		return nil, false
	}
	var a model.AcquisitionAttempt
	if err = jsoniter.Unmarshal(item.Value, &a); err != nil {
		mc.log.Warn("broken cache entry.", slog.String("key", key), slog.String("err", err.Error()))
		return nil, false
	}
	if !a.Success || !a.HasContent() {
		return nil, false
	}
	mc.log.Debug("content served from cache.", slog.String("url", url), slog.String("method", m.String()))

	return &a, true
}

func (mc *MemcachedClient) Put(a *model.AcquisitionAttempt) {
	if a == nil || !a.Success || !a.HasContent() {
		return
	}
	key := contentKey(a.URL, a.Method)
	if err := mc.set(key, a, int32(mc.cfg.Ttl.Seconds())); err != nil {
		mc.log.Error("failed to save content to cache.", slog.String("key", key),
			slog.String("err", err.Error()))
		return
	}
	mc.log.Debug("content saved to cache.", slog.String("url", a.URL))
}

func (mc *MemcachedClient) Close() {
	mc.log.Info("closing memcached connection.")
	err := mc.client.Close()
	if err != nil {
		mc.log.Error("failed to close memcached connection.", slog.String("err", err.Error()))
	}
}

func (mc *MemcachedClient) set(key string, value any, expiration int32) error {
	byteValue, err := jsoniter.Marshal(value)
	if err != nil {
		return err
	}
	item := &memcache.Item{
		Key:        key,
		Value:      byteValue,
		Expiration: expiration,
	}

	return mc.client.Set(item)
}

// contentKey hashes the url so the key fits memcached's 250 byte limit.
func contentKey(url string, m model.Method) string {
	return m.String() + "-" + hashURL(url)
}

func hashURL(url string) string {
	hash := sha256.New()
	hash.Write([]byte(url))
	return hex.EncodeToString(hash.Sum(nil))
}

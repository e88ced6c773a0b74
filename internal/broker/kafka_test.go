package broker

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/IliaW/propfirm-rules-scraper/config"
	"github.com/IliaW/propfirm-rules-scraper/internal/model"
	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu      sync.Mutex
	batches [][]kafka.Message
	closed  bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, msgs)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestProduce_BatchesAndFlushes(t *testing.T) {
	cfg := &config.ProducerConfig{BatchSize: 2, BatchTimeout: time.Hour, WriteTimeout: time.Second}
	w := &fakeWriter{}
	records := make(chan model.Record, 3)
	for i := 0; i < 3; i++ {
		records <- model.Record{FirmName: "Firm", WebsiteURL: "https://firm.com", Block: i, Status: model.StatusOK}
	}
	close(records)

	wg := &sync.WaitGroup{}
	wg.Add(1)
	produce(wg, w, records, slog.New(slog.NewTextHandler(nopWriter{}, nil)), cfg)
	wg.Wait()

	require.Len(t, w.batches, 2)
	assert.Len(t, w.batches[0], 2)
	assert.Len(t, w.batches[1], 1, "the remainder is flushed when the channel closes")
	assert.True(t, w.closed)
	assert.Equal(t, "https://firm.com#2", string(w.batches[1][0].Key))
}

func TestRecordMessage(t *testing.T) {
	msg, err := recordMessage(model.Record{WebsiteURL: "https://firm.com", Block: 1, Status: model.StatusMissingData,
		Method: model.Browser})
	require.NoError(t, err)

	assert.Equal(t, "https://firm.com#1", string(msg.Key))
	assert.Equal(t, "MISSING_DATA", string(msg.Headers[0].Value))
	assert.Equal(t, "browser", jsoniter.Get(msg.Value, "method").ToString())
}

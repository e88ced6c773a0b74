package aws_s3

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IliaW/propfirm-rules-scraper/config"
	"github.com/IliaW/propfirm-rules-scraper/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestWriteAttempt(t *testing.T) {
	var (
		mu   sync.Mutex
		path string
		body string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		path, body = r.URL.Path, string(b)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &config.S3Config{
		AwsAccessKey:    "test",
		AwsSecretKey:    "test",
		AwsBaseEndpoint: srv.URL,
		Region:          "us-east-1",
		BucketName:      "snapshots",
		KeyPrefix:       "propfirm",
	}
	log := slog.New(slog.NewTextHandler(nopWriter{}, nil))
	client, err := newClient(context.Background(), cfg, log)
	require.NoError(t, err)
	bc := &S3BucketClient{client: client, cfg: cfg, log: log}

	a := &model.AcquisitionAttempt{Method: model.HTTP, URL: "https://firm.com", Success: true,
		Pages: []model.Page{{HTML: "<p>Profit target 8%</p>"}}, CompletedAt: time.Unix(1714564800, 0)}
	link := bc.WriteAttempt(context.Background(), a)

	require.NotEmpty(t, link)
	assert.True(t, strings.HasSuffix(link, "/http-1714564800.json"))
	mu.Lock()
	defer mu.Unlock()
	assert.True(t, strings.HasPrefix(path, "/snapshots/propfirm/"), path)
	assert.Contains(t, body, "Profit target 8%")
}

package crawler

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/IliaW/propfirm-rules-scraper/config"
	"github.com/IliaW/propfirm-rules-scraper/internal/model"
	jsoniter "github.com/json-iterator/go"
	"github.com/karust/gogetcrawl/common"
	"github.com/karust/gogetcrawl/commoncrawl"
	"github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
)

const indexListUrl = "https://index.commoncrawl.org/collinfo.json"

var ErrNoSnapshot = eris.New("no archived snapshot")

type Index struct {
	Id       string `json:"id"`
	Name     string `json:"name"`
	Timegate string `json:"timegate"`
	CdxAPI   string `json:"cdx-api"`
}

// CommonCrawlerService looks up the latest Common Crawl capture of a page.
type CommonCrawlerService struct {
	mu         sync.Mutex
	crawler    *commoncrawl.CommonCrawl
	cfg        *config.CrawlerConfig
	log        *slog.Logger
	localCache *cache.Cache
}

func NewCrawlService(cfg *config.CrawlerConfig, log *slog.Logger) *CommonCrawlerService {
	c, err := commoncrawl.New(cfg.RequestTimeout, cfg.Retries)
	if err != nil {
		log.Error("failed to create common crawl client.", slog.String("err", err.Error()))
	}
	return &CommonCrawlerService{
		crawler:    c,
		cfg:        cfg,
		log:        log,
		localCache: cache.New(72*time.Hour, 72*time.Hour), // indexes update every month
	}
}

// Snapshot returns the most recent capture of url from the last configured crawl indexes.
func (c *CommonCrawlerService) Snapshot(ctx context.Context, url string) (model.Page, error) {
	cc, err := c.client()
	if err != nil {
		return model.Page{}, err
	}
	indexList, err := c.getIndexes(cc)
	if err != nil {
		return model.Page{}, eris.Wrap(err, "can't load crawl indexes")
	}
	requestCfg := common.RequestConfig{
		URL:     url,
		Filters: []string{"statuscode:200", "mimetype:text/html"},
	}

	for i := 0; i < c.cfg.LastCrawlIndexes && i < len(indexList); i++ {
		if err := ctx.Err(); err != nil {
			return model.Page{}, err
		}
		p, _ := cc.GetPagesIndex(requestCfg, indexList[i].Id)
		if len(p) == 0 {
			c.log.Debug("no captures found.", slog.String("url", url), slog.String("index", indexList[i].Id))
			continue
		}
		resp, err := cc.GetFile(p[len(p)-1]) // last one is the most recent
		if err != nil {
			return model.Page{}, eris.Wrap(err, "failed to get capture")
		}
		body := string(resp)
		page := model.Page{URL: url, Title: extractTitle(body), HTML: extractHtml(body)}
		if page.HTML == "" {
			continue
		}
		c.log.Debug("capture found.", slog.String("url", url), slog.String("index", indexList[i].Id))
		return page, nil
	}

	return model.Page{}, eris.Wrap(ErrNoSnapshot, url)
}

// client connects lazily; Common Crawl rate limits may reject the first attempt at start up.
func (c *CommonCrawlerService) client() (*commoncrawl.CommonCrawl, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.crawler == nil {
		c.log.Info("connection retry to common crawl.")
		var err error
		c.crawler, err = commoncrawl.New(c.cfg.RequestTimeout, c.cfg.Retries)
		if err != nil {
			return nil, eris.Wrap(err, "connection to common crawl failed")
		}
	}
	return c.crawler, nil
}

func (c *CommonCrawlerService) getIndexes(cc *commoncrawl.CommonCrawl) ([]Index, error) {
	if i, ok := c.localCache.Get("indexes"); ok {
		return i.([]Index), nil
	}

	response, err := common.Get(indexListUrl, cc.MaxTimeout, cc.MaxRetries)
	if err != nil {
		return nil, err
	}

	indexes, err := parseIndexes(response)
	if err != nil {
		return nil, err
	}
	c.localCache.Set("indexes", indexes, cache.DefaultExpiration)

	return indexes, nil
}

func parseIndexes(data []byte) ([]Index, error) {
	var indexes []Index
	if err := jsoniter.Unmarshal(data, &indexes); err != nil {
		return nil, eris.Wrap(err, "can't decode index list")
	}
	return indexes, nil
}

var (
	titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	htmlRe  = regexp.MustCompile(`(?is)(?:<!doctype html[^>]*>\s*)?<html.*</html>`)
)

func extractTitle(body string) string {
	if match := titleRe.FindStringSubmatch(body); len(match) > 1 {
		return strings.TrimSpace(match[1])
	}
	return ""
}

// extractHtml cuts the document out of a WARC record, dropping the WARC and HTTP headers.
func extractHtml(body string) string {
	return htmlRe.FindString(body)
}

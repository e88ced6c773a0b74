package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/IliaW/propfirm-rules-scraper/config"
	"github.com/IliaW/propfirm-rules-scraper/internal/acquire"
	"github.com/IliaW/propfirm-rules-scraper/internal/assemble"
	"github.com/IliaW/propfirm-rules-scraper/internal/aws_s3"
	"github.com/IliaW/propfirm-rules-scraper/internal/broker"
	cacheClient "github.com/IliaW/propfirm-rules-scraper/internal/cache"
	"github.com/IliaW/propfirm-rules-scraper/internal/crawler"
	"github.com/IliaW/propfirm-rules-scraper/internal/currency"
	"github.com/IliaW/propfirm-rules-scraper/internal/export"
	"github.com/IliaW/propfirm-rules-scraper/internal/extract"
	"github.com/IliaW/propfirm-rules-scraper/internal/model"
	"github.com/IliaW/propfirm-rules-scraper/internal/normalize"
	"github.com/IliaW/propfirm-rules-scraper/internal/persistence"
	"github.com/IliaW/propfirm-rules-scraper/internal/sites"
	"github.com/IliaW/propfirm-rules-scraper/internal/worker"
	"github.com/go-resty/resty/v2"
	"github.com/go-sql-driver/mysql"
	"github.com/lmittmann/tint"
	_ "modernc.org/sqlite"
)

var (
	cfg        *config.Config
	log        *slog.Logger
	db         *sql.DB
	s3         aws_s3.BucketClient
	cache      cacheClient.CachedClient
	recordRepo persistence.RecordStorage
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg = config.MustLoad()
	log = setupLogger()
	log.Info("starting propfirm rules scraper.", slog.String("env", cfg.Env), slog.String("version", cfg.Version))

	targets, err := sites.Load(cfg.SitesFile, cfg.OverridesFile, log)
	if err != nil {
		log.Error("failed to load sites.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	if len(targets) == 0 {
		log.Warn("site list is empty, nothing to do.", slog.String("file", cfg.SitesFile))
		return
	}

	if cfg.DbSettings.Enabled {
		db = setupDatabase(ctx)
		defer closeDatabase()
		recordRepo = persistence.NewRecordRepository(db, log)
	}
	if cfg.S3Settings.Enabled {
		s3 = aws_s3.NewS3BucketClient(cfg.S3Settings, log)
	}

	norm := normalize.New(setupRates(ctx))
	engine := extract.New(norm)
	chain, closeChain := setupChain(engine)
	defer closeChain()
	pipeline := worker.NewPipeline(chain, assemble.New(norm, cfg.AssembleSettings.MaxMissingRequired, log), log)

	runner := &worker.Runner{
		Pipeline: pipeline,
		Cfg:      cfg.WorkerSettings,
		Log:      log,
		Db:       recordRepo,
		S3:       s3,
	}

	kafkaWg := &sync.WaitGroup{}
	var recordChan chan model.Record
	if cfg.KafkaSettings.Enabled {
		recordChan = make(chan model.Record, 100)
		runner.RecordChan = recordChan
		kafkaWg.Add(1)
		go broker.NewKafkaProducer(kafkaWg, recordChan, log, cfg.KafkaSettings)
	}

	records, summary := runner.Run(ctx, targets)

	// Graceful shutdown.
	// 1. Runner returns after all workers are done, records are complete and ordered
	// 2. Close recordChan and wait till Producer writes the rest to kafka
	// 3. Export files, close browser, database and memcached connections
	if recordChan != nil {
		close(recordChan)
		log.Info("close recordChan.")
		kafkaWg.Wait()
	}

	files, err := export.Files(cfg.ExportSettings, records, summary, log)
	if err != nil {
		log.Error("failed to export records.", slog.String("err", err.Error()))
	}
	for _, f := range files {
		log.Info("export written.", slog.String("file", f))
	}
	for _, s := range model.Statuses {
		log.Info("status total.", slog.String("status", string(s)), slog.Int("records", summary.ByStatus[s]))
	}

	if summary.Fatal != "" || err != nil {
		closeChain()
		if db != nil {
			closeDatabase()
		}
		os.Exit(1)
	}
}

func setupLogger() *slog.Logger {
	resolvedLogLevel := func() slog.Level {
		envLogLevel := strings.ToLower(cfg.LogLevel)
		switch envLogLevel {
		case "info":
			return slog.LevelInfo
		case "warn":
			return slog.LevelWarn
		case "error":
			return slog.LevelError
		default:
			return slog.LevelDebug
		}
	}

	replaceAttrs := func(groups []string, a slog.Attr) slog.Attr {
		if a.Key == slog.SourceKey {
			source := a.Value.Any().(*slog.Source)
			source.File = filepath.Base(source.File)
		}
		return a
	}

	var logger *slog.Logger
	if strings.ToLower(cfg.LogType) == "json" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			AddSource:   true,
			Level:       resolvedLogLevel(),
			ReplaceAttr: replaceAttrs}))
	} else {
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			AddSource:   true,
			Level:       resolvedLogLevel(),
			ReplaceAttr: replaceAttrs,
			NoColor:     false}))
	}

	slog.SetDefault(logger)
	logger.Debug("debug messages are enabled.")

	return logger
}

// setupRates returns the static rate table, refreshed from the configured endpoint when
// one is set. A failed refresh keeps the configured rates.
func setupRates(ctx context.Context) currency.RateLookup {
	client := resty.New().SetTimeout(cfg.CurrencySettings.RefreshTimeout)
	rates, err := currency.Refresh(ctx, client, cfg.CurrencySettings.Endpoint, cfg.CurrencySettings.Rates, log)
	if err != nil {
		log.Warn("using configured currency rates.", slog.String("err", err.Error()))
	}
	return currency.NewStaticRates(rates)
}

// setupChain builds the escalation chain from the enabled methods. The returned func
// releases the browser and the cache connection and is safe to call twice.
func setupChain(engine *extract.Engine) (*acquire.Chain, func()) {
	acq := cfg.AcquisitionSettings
	var archive acquire.Archive
	if cfg.CrawlerSettings.Enabled {
		archive = crawler.NewCrawlService(cfg.CrawlerSettings, log)
	}
	methods := []acquire.Acquirer{
		acquire.NewHTTPMethod(acq, acquire.NewHostLimiter(acq.RequestsPerSecond), archive, log),
	}

	var browser *acquire.BrowserEngine
	if cfg.BrowserSettings.Enabled || cfg.ChatbotSettings.Enabled {
		browser = acquire.NewBrowserEngine(cfg.BrowserSettings, acq.UserAgent, log)
	}
	if cfg.BrowserSettings.Enabled {
		methods = append(methods, acquire.NewBrowserMethod(browser, cfg.BrowserSettings, acq, log))
	}
	if cfg.ChatbotSettings.Enabled {
		methods = append(methods, acquire.NewChatbotMethod(browser, cfg.ChatbotSettings, cfg.BrowserSettings, log))
	}

	opts := []acquire.ChainOption{
		acquire.WithTimeout(model.HTTP, acq.HttpTimeout),
		acquire.WithTimeout(model.Browser, acq.BrowserTimeout),
		acquire.WithTimeout(model.Chatbot, acq.ChatbotTimeout),
	}
	if cfg.CacheSettings.Enabled {
		cache = cacheClient.NewMemcachedClient(cfg.CacheSettings, log)
		opts = append(opts, acquire.WithCache(cache))
	}

	var once sync.Once
	closeAll := func() {
		once.Do(func() {
			if browser != nil {
				browser.Close()
			}
			if cache != nil {
				cache.Close()
			}
		})
	}

	return acquire.NewChain(engine, acq.MinViableFields, log, methods, opts...), closeAll
}

func setupDatabase(ctx context.Context) *sql.DB {
	log.Info("connecting to the database...", slog.String("driver", cfg.DbSettings.Driver))
	driver, dsn := "sqlite", cfg.DbSettings.Dsn
	if strings.ToLower(cfg.DbSettings.Driver) == "mysql" {
		sqlCfg := mysql.Config{
			User:                 cfg.DbSettings.User,
			Passwd:               cfg.DbSettings.Password,
			Net:                  "tcp",
			Addr:                 fmt.Sprintf("%s:%s", cfg.DbSettings.Host, cfg.DbSettings.Port),
			DBName:               cfg.DbSettings.Name,
			AllowNativePasswords: true,
			ParseTime:            true,
		}
		driver, dsn = "mysql", sqlCfg.FormatDSN()
	}
	database, err := sql.Open(driver, dsn)
	if err != nil {
		log.Error("failed to establish database connection.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	database.SetConnMaxLifetime(cfg.DbSettings.ConnMaxLifetime)
	database.SetMaxOpenConns(cfg.DbSettings.MaxOpenConns)
	database.SetMaxIdleConns(cfg.DbSettings.MaxIdleConns)
	if driver == "sqlite" {
		database.SetMaxOpenConns(1) // sqlite allows a single writer
	}

	maxRetry := 6
	for i := 1; i <= maxRetry; i++ {
		log.Info("ping the database.", slog.String("attempt", fmt.Sprintf("%d/%d", i, maxRetry)))
		pingErr := database.PingContext(ctx)
		if pingErr != nil {
			log.Error("not responding.", slog.String("err", pingErr.Error()))
			if i == maxRetry || ctx.Err() != nil {
				log.Error("failed to establish database connection.")
				os.Exit(1)
			}
			log.Info(fmt.Sprintf("wait %d seconds", 5*i))
			time.Sleep(time.Duration(5*i) * time.Second)
		} else {
			break
		}
	}
	log.Info("connected to the database!")

	if err = persistence.NewRecordRepository(database, log).Migrate(ctx); err != nil {
		log.Error("failed to prepare database schema.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	return database
}

func closeDatabase() {
	log.Info("closing database connection.")
	err := db.Close()
	if err != nil {
		log.Error("failed to close database connection.", slog.String("err", err.Error()))
	}
}

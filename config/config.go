package config

import (
	"errors"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

type Config struct {
	Env                 string             `mapstructure:"env"`
	LogLevel            string             `mapstructure:"log_level"`
	LogType             string             `mapstructure:"log_type"`
	ServiceName         string             `mapstructure:"service_name"`
	Version             string             `mapstructure:"version"`
	SitesFile           string             `mapstructure:"sites_file"`
	OverridesFile       string             `mapstructure:"overrides_file"`
	WorkerSettings      *WorkerConfig      `mapstructure:"worker"`
	AcquisitionSettings *AcquisitionConfig `mapstructure:"acquisition"`
	BrowserSettings     *BrowserConfig     `mapstructure:"browser"`
	ChatbotSettings     *ChatbotConfig     `mapstructure:"chatbot"`
	AssembleSettings    *AssembleConfig    `mapstructure:"assemble"`
	CurrencySettings    *CurrencyConfig    `mapstructure:"currency"`
	CacheSettings       *CacheConfig       `mapstructure:"cache"`
	DbSettings          *DatabaseConfig    `mapstructure:"database"`
	KafkaSettings       *ProducerConfig    `mapstructure:"kafka"`
	S3Settings          *S3Config          `mapstructure:"s3"`
	CrawlerSettings     *CrawlerConfig     `mapstructure:"crawler"`
	ExportSettings      *ExportConfig      `mapstructure:"export"`
}

type WorkerConfig struct {
	MaxWorkers        int           `mapstructure:"max_workers"`
	RunTimeout        time.Duration `mapstructure:"run_timeout"`
	PanicRestartDelay time.Duration `mapstructure:"panic_restart_delay"`
}

// AcquisitionConfig holds the knobs of the escalation chain. The timeouts and the viability
// threshold are operational values, tune them per deployment.
type AcquisitionConfig struct {
	UserAgent         string        `mapstructure:"user_agent"`
	HttpTimeout       time.Duration `mapstructure:"http_timeout"`
	BrowserTimeout    time.Duration `mapstructure:"browser_timeout"`
	ChatbotTimeout    time.Duration `mapstructure:"chatbot_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	MinViableFields   int           `mapstructure:"min_viable_fields"`
	MinContentLength  int           `mapstructure:"min_content_length"`
}

type BrowserConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Headless      bool   `mapstructure:"headless"`
	SettleEvent   string `mapstructure:"settle_event"`
	ExtraPages    int    `mapstructure:"extra_pages"`
	ExpandContent bool   `mapstructure:"expand_content"`
}

type ChatbotConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ResponseWait   time.Duration `mapstructure:"response_wait"`
	MaxQuestions   int           `mapstructure:"max_questions"`
	SearchFallback bool          `mapstructure:"search_fallback"`
}

type AssembleConfig struct {
	MaxMissingRequired int `mapstructure:"max_missing_required"`
}

type CurrencyConfig struct {
	Rates          map[string]float64 `mapstructure:"rates"`
	Endpoint       string             `mapstructure:"endpoint"`
	RefreshTimeout time.Duration      `mapstructure:"refresh_timeout"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Servers string        `mapstructure:"servers"`
	Ttl     time.Duration `mapstructure:"ttl"`
}

type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Driver          string        `mapstructure:"driver"`
	Dsn             string        `mapstructure:"dsn"`
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
}

type ProducerConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Addr           string        `mapstructure:"addr"`
	WriteTopicName string        `mapstructure:"write_topic_name"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BatchSize      int           `mapstructure:"batch_size"`
	BatchTimeout   time.Duration `mapstructure:"batch_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequiredAcks   int           `mapstructure:"required_acks"`
	Async          bool          `mapstructure:"async"`
}

type S3Config struct {
	Enabled         bool   `mapstructure:"enabled"`
	AwsAccessKey    string `mapstructure:"aws_access_key"`
	AwsSecretKey    string `mapstructure:"aws_secret_key"`
	AwsBaseEndpoint string `mapstructure:"aws_base_endpoint"`
	Region          string `mapstructure:"region"`
	BucketName      string `mapstructure:"bucket_name"`
	KeyPrefix       string `mapstructure:"key_prefix"`
}

type CrawlerConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	RequestTimeout   int  `mapstructure:"request_timeout"`
	Retries          int  `mapstructure:"retries"`
	LastCrawlIndexes int  `mapstructure:"last_crawl_indexes"`
}

type ExportConfig struct {
	Dir  string `mapstructure:"dir"`
	Csv  bool   `mapstructure:"csv"`
	Xlsx bool   `mapstructure:"xlsx"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "local")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_type", "text")
	v.SetDefault("service_name", "propfirm-rules-scraper")
	v.SetDefault("version", "0.1.0")
	v.SetDefault("sites_file", "websites.txt")
	v.SetDefault("overrides_file", "sites.yaml")

	v.SetDefault("worker.max_workers", 2)
	v.SetDefault("worker.run_timeout", 30*time.Minute)
	v.SetDefault("worker.panic_restart_delay", 5*time.Second)

	v.SetDefault("acquisition.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("acquisition.http_timeout", 15*time.Second)
	v.SetDefault("acquisition.browser_timeout", 45*time.Second)
	v.SetDefault("acquisition.chatbot_timeout", 90*time.Second)
	v.SetDefault("acquisition.requests_per_second", 1.0)
	v.SetDefault("acquisition.min_viable_fields", 1)
	v.SetDefault("acquisition.min_content_length", 500)

	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.settle_event", "networkIdle")
	v.SetDefault("browser.extra_pages", 3)
	v.SetDefault("browser.expand_content", true)

	v.SetDefault("chatbot.enabled", true)
	v.SetDefault("chatbot.response_wait", 3*time.Second)
	v.SetDefault("chatbot.max_questions", 8)
	v.SetDefault("chatbot.search_fallback", true)

	v.SetDefault("assemble.max_missing_required", 1)

	v.SetDefault("currency.rates", map[string]float64{
		"USD": 1.0, "EUR": 1.08, "GBP": 1.25, "CAD": 0.74, "AUD": 0.63, "CHF": 1.12, "JPY": 0.0067,
	})
	v.SetDefault("currency.refresh_timeout", 10*time.Second)

	v.SetDefault("cache.servers", "localhost:11211")
	v.SetDefault("cache.ttl", 6*time.Hour)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "scraper.db")
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)

	v.SetDefault("kafka.max_attempts", 3)
	v.SetDefault("kafka.batch_size", 50)
	v.SetDefault("kafka.batch_timeout", 2*time.Second)
	v.SetDefault("kafka.read_timeout", 10*time.Second)
	v.SetDefault("kafka.write_timeout", 10*time.Second)
	v.SetDefault("kafka.required_acks", 1)

	v.SetDefault("s3.key_prefix", "propfirm")

	v.SetDefault("crawler.request_timeout", 30)
	v.SetDefault("crawler.retries", 1)
	v.SetDefault("crawler.last_crawl_indexes", 2)

	v.SetDefault("export.dir", "data")
	v.SetDefault("export.csv", true)
	v.SetDefault("export.xlsx", true)
}

// Load reads config.yaml from dir, overlays environment variables and fills in defaults.
// A missing config file is not an error.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path.Join(dir))
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "can't read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "error unmarshalling viper config")
	}
	if cfg.WorkerSettings.MaxWorkers < 1 {
		cfg.WorkerSettings.MaxWorkers = 1
	}
	if cfg.AcquisitionSettings.MinViableFields < 1 {
		cfg.AcquisitionSettings.MinViableFields = 1
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load(".")
	if err != nil {
		slog.Error("can't initialize config.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	return cfg
}

package config

import (
	"fmt"
	"log"
	"sync"

	"chartscan/entity"

	"github.com/ilyakaznacheev/cleanenv"
)

type Listen struct {
	BindIp string `yaml:"bind_ip" env-default:"0.0.0.0"`
	Port   string `yaml:"port" env-default:"8080"`
}

type Telegram struct {
	Enabled  bool    `yaml:"enabled" env-default:"false"`
	ApiKey   string  `yaml:"api_key" env:"TELEGRAM_API_KEY" env-default:""`
	BotName  string  `yaml:"bot_name" env-default:""`
	Admins   []int64 `yaml:"admins"`
	LogLevel string  `yaml:"log_level" env-default:"error"`
}

type Mongo struct {
	Enabled  bool   `yaml:"enabled" env-default:"false"`
	Host     string `yaml:"host" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env-default:"27017"`
	User     string `yaml:"user" env-default:""`
	Password string `yaml:"password" env:"MONGO_PASSWORD" env-default:""`
	Database string `yaml:"database" env-default:"chartscan"`
}

type MySQL struct {
	Enabled  bool   `yaml:"enabled" env-default:"false"`
	HostName string `yaml:"hostname" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env-default:"3306"`
	UserName string `yaml:"username" env-default:""`
	Password string `yaml:"password" env:"MYSQL_PASSWORD" env-default:""`
	Database string `yaml:"database" env-default:"chartscan"`
}

type Redis struct {
	Enabled    bool   `yaml:"enabled" env-default:"false"`
	Addr       string `yaml:"addr" env-default:"127.0.0.1:6379"`
	Password   string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
	DB         int    `yaml:"db" env-default:"0"`
	TTLSeconds int    `yaml:"ttl_seconds" env-default:"60"`
}

type StripeConfig struct {
	APIKey            string `yaml:"api_key" env:"STRIPE_API_KEY" env-default:""`
	WebhookSecret     string `yaml:"webhook_secret" env-default:""`
	TestMode          bool   `yaml:"test_mode" env-default:"false"`
	TestKey           string `yaml:"test_key" env-default:""`
	TestWebhookSecret string `yaml:"test_webhook_secret" env-default:""`
	SuccessURL        string `yaml:"success_url" env-default:""`
	Currency          string `yaml:"currency" env-default:"usd"`
}

type Analyzer struct {
	URL            string `yaml:"url" env-default:""`
	ApiKey         string `yaml:"api_key" env:"ANALYZER_API_KEY" env-default:""`
	TimeoutSeconds int    `yaml:"timeout_seconds" env-default:"60"`
}

// Market is the live pair data source used to enrich verdicts.
type Market struct {
	Enabled        bool   `yaml:"enabled" env-default:"true"`
	URL            string `yaml:"url" env-default:"https://api.dexscreener.com/latest/dex"`
	TimeoutSeconds int    `yaml:"timeout_seconds" env-default:"10"`
}

// Card controls the image report sent after each scan.
type Card struct {
	Enabled bool   `yaml:"enabled" env-default:"true"`
	Brand   string `yaml:"brand" env-default:"CHART SCANNER"`
	Handle  string `yaml:"handle" env-default:""`
}

// Ledger mirrors ledger.Config field for field so it converts directly.
type Ledger struct {
	FreeDailyLimit   int `yaml:"free_daily_limit" env-default:"3"`
	RefereeBonus     int `yaml:"referee_bonus" env-default:"3"`
	ReferrerBonus    int `yaml:"referrer_bonus" env-default:"5"`
	UTCOffsetMinutes int `yaml:"utc_offset_minutes" env-default:"0"`
}

type Pricing struct {
	RefillScans       int   `yaml:"refill_scans" env-default:"5"`
	RefillStars       int64 `yaml:"refill_stars" env-default:"5"`
	PremiumDays       int   `yaml:"premium_days" env-default:"30"`
	PremiumStars      int64 `yaml:"premium_stars" env-default:"150"`
	RefillPriceCents  int64 `yaml:"refill_price_cents" env-default:"199"`
	PremiumPriceCents int64 `yaml:"premium_price_cents" env-default:"999"`
}

type Report struct {
	Enabled bool   `yaml:"enabled" env-default:"true"`
	DailyAt string `yaml:"daily_at" env-default:"20:59"`
}

type Config struct {
	Env        string        `yaml:"env" env-default:"local"`
	Listen     Listen        `yaml:"listen"`
	Telegram   Telegram      `yaml:"telegram"`
	Mongo      Mongo         `yaml:"mongo"`
	MySQL      MySQL         `yaml:"mysql"`
	Redis      Redis         `yaml:"redis"`
	Stripe     StripeConfig  `yaml:"stripe"`
	Analyzer   Analyzer      `yaml:"analyzer"`
	Market     Market        `yaml:"market"`
	Card       Card          `yaml:"card"`
	Ledger     Ledger        `yaml:"ledger"`
	Pricing    Pricing       `yaml:"pricing"`
	Report     Report        `yaml:"report"`
	ApiClients []entity.User `yaml:"api_clients"`
}

var instance *Config
var once sync.Once

func MustLoad(path string) *Config {
	var err error
	once.Do(func() {
		instance, err = Load(path)
		if err != nil {
			log.Fatal(err)
		}
	})
	return instance
}

func Load(path string) (*Config, error) {
	conf := &Config{}
	if err := cleanenv.ReadConfig(path, conf); err != nil {
		desc, _ := cleanenv.GetDescription(conf, nil)
		return nil, fmt.Errorf("config: %s; %s", err, desc)
	}
	return conf, nil
}

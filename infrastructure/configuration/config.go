package configuration

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"social-publisher/infrastructure/logger"

	"github.com/spf13/viper"
)

type Config struct {
	Database    Database    `json:"database"`
	App         App         `json:"app"`
	Pubsub      Pubsub      `json:"pubsub"`
	ServiceBus  ServiceBus  `json:"serviceBus"`
	RedisClient RedisClient `json:"redisClient"`
	Queue       Queue       `json:"queue"`
	Scheduler   Scheduler   `json:"scheduler"`
	Retry       Retry       `json:"retry"`
	Publish     Publish     `json:"publish"`
	Platforms   Platforms   `json:"platforms"`
}

type App struct {
	Port        int    `json:"port"`
	SecretKey   string `json:"secretKey"`
	Mode        string `json:"mode"` // all | api | worker
	TLSEnabled  bool   `json:"tlsEnabled"`
	TLSCertFile string `json:"tlsCertFile"`
	TLSKeyFile  string `json:"tlsKeyFile"`
	// AllowOrigins lists the CORS origins of the dashboard.
	AllowOrigins []string `json:"allowOrigins"`
}

type Database struct {
	Psql  Db `json:"psql"`
	Mongo Db `json:"mongo"`
}

type Db struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	SSLMode  string `json:"sslMode"`
}

type Pubsub struct {
	ProjectID   string `json:"projectID"`
	ResultTopic string `json:"resultTopic"`
}

type ServiceBus struct {
	Namespace   string        `json:"namespace"`
	Queue       string        `json:"queue"`
	LockRenewal time.Duration `json:"lockRenewal"`
}

type RedisClient struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	Username string `json:"username"`
	DB       int    `json:"db"`
}

// Queue selects the task queue backend.
type Queue struct {
	Driver       string        `json:"driver"` // postgres | servicebus
	PollInterval time.Duration `json:"pollInterval"`
	Workers      int           `json:"workers"`
	StaleAfter   time.Duration `json:"staleAfter"`
	// MaxRedeliveries bounds how often a job that errored is handed out
	// again before it is left failed.
	MaxRedeliveries    int           `json:"maxRedeliveries"`
	RedeliveryDelay    time.Duration `json:"redeliveryDelay"`
	RedeliveryMaxDelay time.Duration `json:"redeliveryMaxDelay"`
}

type Scheduler struct {
	Interval  time.Duration `json:"interval"`
	BatchSize int           `json:"batchSize"`
}

type Retry struct {
	MaxAttempts int           `json:"maxAttempts"`
	BaseDelay   time.Duration `json:"baseDelay"`
	MaxDelay    time.Duration `json:"maxDelay"`
}

type Publish struct {
	MaxConcurrency int           `json:"maxConcurrency"`
	TextTimeout    time.Duration `json:"textTimeout"`
	MediaTimeout   time.Duration `json:"mediaTimeout"`
	VideoTimeout   time.Duration `json:"videoTimeout"`
	RefreshLockTTL time.Duration `json:"refreshLockTTL"`
}

type Platforms struct {
	Twitter   Twitter     `json:"twitter"`
	Facebook  Facebook    `json:"facebook"`
	LinkedIn  OAuthClient `json:"linkedin"`
	TikTok    OAuthClient `json:"tiktok"`
	YouTube   YouTube     `json:"youtube"`
	Instagram Instagram   `json:"instagram"`
}

type Twitter struct {
	ConsumerKey    string `json:"consumerKey"`
	ConsumerSecret string `json:"consumerSecret"`
}

type Facebook struct {
	AppID        string `json:"appId"`
	AppSecret    string `json:"appSecret"`
	GraphVersion string `json:"graphVersion"`
}

type Instagram struct {
	// Instagram publishing goes through the Facebook app; these override it.
	GraphVersion string `json:"graphVersion"`
}

type OAuthClient struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

type YouTube struct {
	ClientID      string `json:"clientId"`
	ClientSecret  string `json:"clientSecret"`
	ChunkSize     int    `json:"chunkSize"`
	ResumableFrom int64  `json:"resumableFrom"`
}

var C Config

func init() {
	LoadConfig()
	initDatabase(&C)
	initApp(&C)
	initPlatforms(&C)
	ApplyDefaults(&C)
}

func LoadConfig() {
	name := getConfig()
	viper.SetConfigName(name)
	viper.SetConfigType("json")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../")
	viper.AddConfigPath("../../")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.GetLogger().Warn("Config file not found")
		} else {
			logger.GetLogger().WithField("error", err).Error("Error reading config file")
		}
	}

	logger.GetLogger().WithField("config", name).Info("Config set up successfully")
	if err := viper.Unmarshal(&C); err != nil {
		logger.GetLogger().WithField("error", err).Error("Viper unable to decode into struct")
	}
}

func getConfig() string {
	name := "config"
	env := os.Getenv("ENV")
	if env != "" {
		name = fmt.Sprintf("%s-%s", name, env)
	}
	return name
}

func initDatabase(C *Config) {
	C.Database.Psql.Name = getConfigValue(C.Database.Psql.Name, "DB_NAME", "publisher")
	C.Database.Psql.Host = getConfigValue(C.Database.Psql.Host, "DB_HOST", "localhost")
	C.Database.Psql.Port = getConfigValue(C.Database.Psql.Port, "DB_PORT", "5432")
	C.Database.Psql.User = getConfigValue(C.Database.Psql.User, "DB_USER", "postgres")
	C.Database.Psql.Password = getConfigValue(C.Database.Psql.Password, "DB_PASSWORD", "")
	C.Database.Psql.SSLMode = getConfigValue(C.Database.Psql.SSLMode, "DB_SSLMODE", "disable")

	C.Database.Mongo.Host = getConfigValue(C.Database.Mongo.Host, "MONGO_HOST", "")
	C.Database.Mongo.Port = getConfigValue(C.Database.Mongo.Port, "MONGO_PORT", "27017")
	C.Database.Mongo.Name = getConfigValue(C.Database.Mongo.Name, "MONGO_DB_NAME", "publisher")
	C.Database.Mongo.User = getConfigValue(C.Database.Mongo.User, "MONGO_USER", "")
	C.Database.Mongo.Password = getConfigValue(C.Database.Mongo.Password, "MONGO_PASSWORD", "")

	C.RedisClient.Host = getConfigValue(C.RedisClient.Host, "REDIS_HOST", "localhost")
	C.RedisClient.Port = getConfigValue(C.RedisClient.Port, "REDIS_PORT", "6379")
	C.RedisClient.Password = getConfigValue(C.RedisClient.Password, "REDIS_PASSWORD", "")
}

func initApp(C *Config) {
	// Prefer SECRET_KEY from environment for JWT verification
	if v := os.Getenv("SECRET_KEY"); v != "" {
		C.App.SecretKey = v
	}
	// Port resolution order (env overrides config): APP_PORT -> PORT -> config -> default 10001
	if v := os.Getenv("APP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			C.App.Port = p
		}
	} else if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			C.App.Port = p
		}
	}
	C.App.Mode = getConfigValue(C.App.Mode, "APP_MODE", "all")
	if v := os.Getenv("TLS_ENABLED"); v != "" {
		switch v {
		case "1", "true", "TRUE", "True":
			C.App.TLSEnabled = true
		case "0", "false", "FALSE", "False":
			C.App.TLSEnabled = false
		}
	}
	if C.App.TLSCertFile == "" {
		C.App.TLSCertFile = os.Getenv("TLS_CERT_FILE")
	}
	if C.App.TLSKeyFile == "" {
		C.App.TLSKeyFile = os.Getenv("TLS_KEY_FILE")
	}
	if C.App.SecretKey == "" {
		logger.GetLogger().Warn("App.SecretKey not set; JWT authentication will fail. Provide SECRET_KEY via environment.")
	}
	C.Queue.Driver = getConfigValue(C.Queue.Driver, "QUEUE_DRIVER", "postgres")
	C.Pubsub.ProjectID = getConfigValue(C.Pubsub.ProjectID, "PUBSUB_PROJECT_ID", "")
	C.ServiceBus.Namespace = getConfigValue(C.ServiceBus.Namespace, "SERVICEBUS_NAMESPACE", "")
}

func initPlatforms(C *Config) {
	p := &C.Platforms
	p.Twitter.ConsumerKey = getConfigValue(p.Twitter.ConsumerKey, "TWITTER_CONSUMER_KEY", "")
	p.Twitter.ConsumerSecret = getConfigValue(p.Twitter.ConsumerSecret, "TWITTER_CONSUMER_SECRET", "")
	p.Facebook.AppID = getConfigValue(p.Facebook.AppID, "FACEBOOK_APP_ID", "")
	p.Facebook.AppSecret = getConfigValue(p.Facebook.AppSecret, "FACEBOOK_APP_SECRET", "")
	p.LinkedIn.ClientID = getConfigValue(p.LinkedIn.ClientID, "LINKEDIN_CLIENT_ID", "")
	p.LinkedIn.ClientSecret = getConfigValue(p.LinkedIn.ClientSecret, "LINKEDIN_CLIENT_SECRET", "")
	p.TikTok.ClientID = getConfigValue(p.TikTok.ClientID, "TIKTOK_CLIENT_KEY", "")
	p.TikTok.ClientSecret = getConfigValue(p.TikTok.ClientSecret, "TIKTOK_CLIENT_SECRET", "")
	p.YouTube.ClientID = getConfigValue(p.YouTube.ClientID, "YOUTUBE_CLIENT_ID", "")
	p.YouTube.ClientSecret = getConfigValue(p.YouTube.ClientSecret, "YOUTUBE_CLIENT_SECRET", "")
}

// ApplyDefaults fills every unset tunable with its default value.
func ApplyDefaults(C *Config) {
	if C.App.Port == 0 {
		C.App.Port = 10001
	}
	if C.Pubsub.ResultTopic == "" {
		C.Pubsub.ResultTopic = "publish-results"
	}
	if C.ServiceBus.Queue == "" {
		C.ServiceBus.Queue = "publish-tasks"
	}
	if C.ServiceBus.LockRenewal <= 0 {
		C.ServiceBus.LockRenewal = 20 * time.Second
	}
	if C.Queue.Driver == "" {
		C.Queue.Driver = "postgres"
	}
	if C.Queue.PollInterval <= 0 {
		C.Queue.PollInterval = 2 * time.Second
	}
	if C.Queue.Workers <= 0 {
		C.Queue.Workers = 4
	}
	if C.Queue.StaleAfter <= 0 {
		C.Queue.StaleAfter = 30 * time.Minute
	}
	if C.Queue.MaxRedeliveries <= 0 {
		C.Queue.MaxRedeliveries = 5
	}
	if C.Queue.RedeliveryDelay <= 0 {
		C.Queue.RedeliveryDelay = 10 * time.Second
	}
	if C.Queue.RedeliveryMaxDelay <= 0 {
		C.Queue.RedeliveryMaxDelay = 5 * time.Minute
	}
	if C.Scheduler.Interval <= 0 {
		C.Scheduler.Interval = time.Minute
	}
	if C.Scheduler.BatchSize <= 0 {
		C.Scheduler.BatchSize = 50
	}
	if C.Retry.MaxAttempts <= 0 {
		C.Retry.MaxAttempts = 3
	}
	if C.Retry.BaseDelay <= 0 {
		C.Retry.BaseDelay = 30 * time.Second
	}
	if C.Retry.MaxDelay <= 0 {
		C.Retry.MaxDelay = 10 * time.Minute
	}
	if C.Publish.MaxConcurrency <= 0 {
		C.Publish.MaxConcurrency = 6
	}
	if C.Publish.TextTimeout <= 0 {
		C.Publish.TextTimeout = 30 * time.Second
	}
	if C.Publish.MediaTimeout <= 0 {
		C.Publish.MediaTimeout = 2 * time.Minute
	}
	if C.Publish.VideoTimeout <= 0 {
		C.Publish.VideoTimeout = 10 * time.Minute
	}
	if C.Publish.RefreshLockTTL <= 0 {
		C.Publish.RefreshLockTTL = 30 * time.Second
	}
	if C.Platforms.Facebook.GraphVersion == "" {
		C.Platforms.Facebook.GraphVersion = "v19.0"
	}
	if C.Platforms.Instagram.GraphVersion == "" {
		C.Platforms.Instagram.GraphVersion = C.Platforms.Facebook.GraphVersion
	}
	if C.Platforms.YouTube.ChunkSize <= 0 {
		C.Platforms.YouTube.ChunkSize = 8 * 1024 * 1024
	}
	if C.Platforms.YouTube.ResumableFrom <= 0 {
		C.Platforms.YouTube.ResumableFrom = 16 * 1024 * 1024
	}
}

// getConfigValue gets value from environment first, then config, then default
func getConfigValue(configValue, envKey, defaultValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if configValue != "" {
		return configValue
	}
	return defaultValue
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cwrk-planet/board-service/internal/mongo"
	"github.com/cwrk-planet/board-service/internal/postgres"
	"github.com/cwrk-planet/board-service/internal/redis"
)

type GRPC struct {
	Addr string `yaml:"addr"` // пусто — gRPC health не поднимается
}

type HTTP struct {
	Addr            string        `yaml:"addr"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // board-service
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	Level     string `yaml:"level"`     // debug|info|warn|error
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type WS struct {
	PingInterval time.Duration `yaml:"pingInterval"`
	WriteWait    time.Duration `yaml:"writeWait"`
	ReadLimit    int64         `yaml:"readLimit"`  // байт на одно входящее сообщение
	SendBuffer   int           `yaml:"sendBuffer"` // очередь исходящих на соединение
}

type Identity struct {
	CookieName string `yaml:"cookieName"`
	QueryParam string `yaml:"queryParam"`
	Secret     string `yaml:"secret"` // HS256; пусто — токен принимается как есть
	Issuer     string `yaml:"issuer"`
}

type Room struct {
	MessageLimit int `yaml:"messageLimit"`
}

type Postgres struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns"`
	MinConns          int32         `yaml:"minConns"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
	ApplicationName   string        `yaml:"applicationName"`
}

func (p Postgres) ToPGConfig() postgres.Config {
	return postgres.Config{
		DSN:               p.DSN,
		MaxConns:          p.MaxConns,
		MinConns:          p.MinConns,
		MaxConnLifetime:   p.MaxConnLifetime,
		MaxConnIdleTime:   p.MaxConnIdleTime,
		HealthCheckPeriod: p.HealthCheckPeriod,
		ApplicationName:   p.ApplicationName,
	}
}

type Mongo struct {
	URI            string        `yaml:"uri"`
	Database       string        `yaml:"database"`
	Collection     string        `yaml:"collection"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
}

func (m Mongo) ToMongoConfig() mongo.Config {
	return mongo.Config{
		URI:            m.URI,
		Database:       m.Database,
		Collection:     m.Collection,
		ConnectTimeout: m.ConnectTimeout,
	}
}

type Redis struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	KeyPrefix   string        `yaml:"keyPrefix"`
	DialTimeout time.Duration `yaml:"dialTimeout"`
}

func (r Redis) ToRedisConfig() redis.Config {
	return redis.Config{
		Addr:        r.Addr,
		Password:    r.Password,
		DB:          r.DB,
		KeyPrefix:   r.KeyPrefix,
		DialTimeout: r.DialTimeout,
	}
}

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverRedis    = "redis"
)

type Storage struct {
	Driver   string   `yaml:"driver"` // memory|postgres|mongo|redis
	Postgres Postgres `yaml:"postgres"`
	Mongo    Mongo    `yaml:"mongo"`
	Redis    Redis    `yaml:"redis"`
}

type Sync struct {
	Interval        time.Duration `yaml:"interval"`
	CleanupInterval time.Duration `yaml:"cleanupInterval"`
	RoomLifetime    time.Duration `yaml:"roomLifetime"`
	SkipOccupied    bool          `yaml:"skipOccupied"`
}

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	GRPC     GRPC     `yaml:"grpc"`
	Logging  Logging  `yaml:"logging"`
	WS       WS       `yaml:"ws"`
	Identity Identity `yaml:"identity"`
	Room     Room     `yaml:"room"`
	Storage  Storage  `yaml:"storage"`
	Sync     Sync     `yaml:"sync"`
}

// LoadConfig читает .env (если есть), затем YAML из CONFIG_PATH.
// ${VAR} внутри YAML подставляются из окружения.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch c.Storage.Driver {
	case "":
		c.Storage.Driver = DriverMemory
	case DriverMemory:
	case DriverPostgres:
		if c.Storage.Postgres.DSN == "" {
			return errors.New("storage.postgres.dsn is required")
		}
	case DriverMongo:
		if c.Storage.Mongo.URI == "" {
			return errors.New("storage.mongo.uri is required")
		}
	case DriverRedis:
		if c.Storage.Redis.Addr == "" {
			return errors.New("storage.redis.addr is required")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}

	if c.Sync.Interval < 0 || c.Sync.CleanupInterval < 0 || c.Sync.RoomLifetime < 0 {
		return errors.New("sync durations must be >= 0")
	}

	// установка дефолтов, если значения не указаны
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "board-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if c.WS.PingInterval == 0 {
		c.WS.PingInterval = 30 * time.Second
	}
	if c.WS.WriteWait == 0 {
		c.WS.WriteWait = 10 * time.Second
	}
	if c.WS.ReadLimit == 0 {
		c.WS.ReadLimit = 1 << 20
	}
	if c.WS.SendBuffer == 0 {
		c.WS.SendBuffer = 256
	}
	if c.Identity.CookieName == "" {
		c.Identity.CookieName = "userId"
	}
	if c.Identity.QueryParam == "" {
		c.Identity.QueryParam = "token"
	}
	if c.Room.MessageLimit <= 0 {
		c.Room.MessageLimit = 100
	}
	if c.Storage.Mongo.Database == "" {
		c.Storage.Mongo.Database = "whiteboard"
	}
	if c.Storage.Mongo.Collection == "" {
		c.Storage.Mongo.Collection = "rooms"
	}
	if c.Storage.Redis.KeyPrefix == "" {
		c.Storage.Redis.KeyPrefix = "board:"
	}
	if c.Storage.Postgres.ApplicationName == "" {
		c.Storage.Postgres.ApplicationName = c.Logging.Service
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = 3 * time.Second
	}
	if c.Sync.CleanupInterval == 0 {
		c.Sync.CleanupInterval = time.Hour
	}
	if c.Sync.RoomLifetime == 0 {
		c.Sync.RoomLifetime = 24 * time.Hour
	}
	return nil
}

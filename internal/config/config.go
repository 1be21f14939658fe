package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultFeeBps      = 250
	defaultGracePeriod = 72 * time.Hour
)

type Config struct {
	CRDBDSN         string
	MongoURI        string
	RedisAddr       string
	RabbitURL       string
	OTLPEndpoint    string
	ListenAddr      string
	Arbiter         string
	PlatformAccount string
	FeeBps          int64
	GracePeriod     time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	feeBps, _ := strconv.ParseInt(os.Getenv("ESCROW_FEE_BPS"), 10, 64)
	if feeBps == 0 {
		feeBps = defaultFeeBps
	}

	gracePeriod, _ := time.ParseDuration(os.Getenv("ESCROW_GRACE_PERIOD"))
	if gracePeriod == 0 {
		gracePeriod = defaultGracePeriod
	}

	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	return &Config{
		CRDBDSN:         os.Getenv("CRDB_DSN"),
		MongoURI:        os.Getenv("MONGO_URI"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RabbitURL:       os.Getenv("RABBIT_URL"),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ListenAddr:      listenAddr,
		Arbiter:         os.Getenv("ESCROW_ARBITER"),
		PlatformAccount: os.Getenv("ESCROW_PLATFORM_ADDRESS"),
		FeeBps:          feeBps,
		GracePeriod:     gracePeriod,
	}, nil
}

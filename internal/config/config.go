package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	PlatformDiscord = "discord"
	PlatformMemory  = "memory"

	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

// Config holds service configuration.
type Config struct {
	ServerAddr string
	LogLevel   string

	DatabaseURL      string
	DatabaseMaxConns int32
	MigrationsDir    string

	Platform         string
	DiscordToken     string
	GuildID          string
	DealCategoryIDs  []string
	ListingChannelID string
	ApproverRoleIDs  []string
	ApproverUserIDs  []string

	SessionBackend string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	LedgerPath string

	WebhookURL        string
	WebhookSigningKey string
	WebhookTimeout    time.Duration

	ExpiryThreshold   time.Duration
	SweepInterval     time.Duration
	SweepInitialDelay time.Duration
	SweepBatchSize    int

	ClaimContextTTL    time.Duration
	ProofSessionTTL    time.Duration
	LabelSessionTTL    time.Duration
	ChannelDeleteGrace time.Duration
	EvidenceThreshold  int
	TrackingPrefix     string

	PaymentIBAN        string
	PaymentPayPalEmail string
	PaymentBeneficiary string
	CurrencySymbol     string

	IngestToken string
}

// Load reads configuration from environment.
func Load() (*Config, error) {
	token := os.Getenv("DISCORD_BOT_TOKEN")
	platform := PlatformMemory
	if token != "" {
		platform = PlatformDiscord
	}
	platform = strings.ToLower(getenv("PLATFORM", platform))
	switch platform {
	case PlatformMemory:
	case PlatformDiscord:
		if token == "" {
			return nil, fmt.Errorf("PLATFORM=discord requires DISCORD_BOT_TOKEN")
		}
	default:
		return nil, fmt.Errorf("unknown PLATFORM %q", platform)
	}

	backend := strings.ToLower(getenv("SESSION_BACKEND", SessionBackendMemory))
	if backend != SessionBackendMemory && backend != SessionBackendRedis {
		return nil, fmt.Errorf("unknown SESSION_BACKEND %q", backend)
	}

	return &Config{
		ServerAddr: getenv("SERVER_ADDR", ":8080"),
		LogLevel:   getenv("LOG_LEVEL", "info"),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		DatabaseMaxConns: int32(parseInt(os.Getenv("DATABASE_MAX_CONNS"), 10)),
		MigrationsDir:    os.Getenv("MIGRATIONS_DIR"),

		Platform:         platform,
		DiscordToken:     token,
		GuildID:          os.Getenv("GUILD_ID"),
		DealCategoryIDs:  parseList(os.Getenv("DEAL_CATEGORY_IDS")),
		ListingChannelID: os.Getenv("LISTING_CHANNEL_ID"),
		ApproverRoleIDs:  parseList(os.Getenv("APPROVER_ROLE_IDS")),
		ApproverUserIDs:  parseList(os.Getenv("APPROVER_USER_IDS")),

		SessionBackend: backend,
		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        parseInt(os.Getenv("REDIS_DB"), 0),

		LedgerPath: getenvAllowEmpty("LEDGER_PATH", "data/ledger.db"),

		WebhookURL:        os.Getenv("AUTOMATION_WEBHOOK_URL"),
		WebhookSigningKey: os.Getenv("WEBHOOK_SIGNING_KEY"),
		WebhookTimeout:    parseDuration(os.Getenv("WEBHOOK_TIMEOUT"), 10*time.Second),

		ExpiryThreshold:   parseDuration(os.Getenv("EXPIRY_THRESHOLD"), 24*time.Hour),
		SweepInterval:     parseDuration(os.Getenv("SWEEP_INTERVAL"), 10*time.Minute),
		SweepInitialDelay: parseDuration(os.Getenv("SWEEP_INITIAL_DELAY"), 15*time.Second),
		SweepBatchSize:    parseInt(os.Getenv("SWEEP_BATCH_SIZE"), 100),

		ClaimContextTTL:    parseDuration(os.Getenv("CLAIM_CONTEXT_TTL"), 6*time.Hour),
		ProofSessionTTL:    parseDuration(os.Getenv("PROOF_SESSION_TTL"), 15*time.Minute),
		LabelSessionTTL:    parseDuration(os.Getenv("LABEL_SESSION_TTL"), 15*time.Minute),
		ChannelDeleteGrace: parseDuration(os.Getenv("CHANNEL_DELETE_GRACE"), 2500*time.Millisecond),
		EvidenceThreshold:  parseInt(os.Getenv("EVIDENCE_THRESHOLD"), 6),
		TrackingPrefix:     getenv("TRACKING_PREFIX", "1Z"),

		PaymentIBAN:        os.Getenv("PAYMENT_IBAN"),
		PaymentPayPalEmail: os.Getenv("PAYMENT_PAYPAL_EMAIL"),
		PaymentBeneficiary: os.Getenv("PAYMENT_BENEFICIARY"),
		CurrencySymbol:     getenv("CURRENCY_SYMBOL", "€"),

		IngestToken: os.Getenv("INGEST_TOKEN"),
	}, nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

// getenvAllowEmpty returns def only when key is unset, so an explicit empty
// value can switch a feature off.
func getenvAllowEmpty(key, def string) string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil || d < 0 {
		return def
	}
	return d
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func parseList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

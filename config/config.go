package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/yourusername/escrow-demo/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Config struct {
	Port     string
	AppEnv   string
	LogLevel string
	LogFile  string

	RPCURL  string
	ChainID *big.Int

	EscrowAddress           string
	PreApprovalCollector    string
	OperatorRefundCollector string
	DemoToken               string
	Merchant                string
	Payer                   string
	Operator                string

	OperatorPrivateKey string
	PayerPrivateKey    string
	PaymentSalt        string

	DatabaseURL string

	JWTSecret        string
	JWTRefreshSecret string
	OperatorAPIKey   string

	FlowRatePerMinute int
	LookbackBlocks    uint64
	ReceiptTimeout    time.Duration
}

func LoadConfig() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		Port:     getEnvOrDefault("PORT", "8080"),
		AppEnv:   getEnvOrDefault("APP_ENV", "development"),
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:  os.Getenv("LOG_FILE"),

		RPCURL: os.Getenv("RPC_URL"),

		EscrowAddress:           os.Getenv("AUTH_CAPTURE_ESCROW"),
		PreApprovalCollector:    os.Getenv("PREAPPROVAL_COLLECTOR"),
		OperatorRefundCollector: os.Getenv("OPERATOR_REFUND_COLLECTOR"),
		DemoToken:               os.Getenv("DEMO_TOKEN"),
		Merchant:                os.Getenv("MERCHANT"),
		Payer:                   os.Getenv("PAYER"),
		Operator:                os.Getenv("OPERATOR"),

		OperatorPrivateKey: getEnvOrDefault("OPERATOR_PRIVATE_KEY", os.Getenv("RELAYER_PRIVATE_KEY")),
		PayerPrivateKey:    os.Getenv("PAYER_PRIVATE_KEY"),
		PaymentSalt:        os.Getenv("PAYMENT_SALT"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		JWTSecret:        os.Getenv("JWT_SECRET"),
		JWTRefreshSecret: os.Getenv("JWT_REFRESH_SECRET"),
		OperatorAPIKey:   os.Getenv("OPERATOR_API_KEY"),
	}

	if raw := strings.TrimSpace(os.Getenv("CHAIN_ID")); raw != "" {
		id, ok := new(big.Int).SetString(raw, 10)
		if !ok || id.Sign() <= 0 {
			return nil, fmt.Errorf("invalid CHAIN_ID %q", raw)
		}
		cfg.ChainID = id
	}

	rate, err := strconv.Atoi(getEnvOrDefault("FLOW_RATE_PER_MINUTE", "30"))
	if err != nil || rate < 0 {
		return nil, fmt.Errorf("invalid FLOW_RATE_PER_MINUTE: %q", os.Getenv("FLOW_RATE_PER_MINUTE"))
	}
	cfg.FlowRatePerMinute = rate

	lookback, err := strconv.ParseUint(getEnvOrDefault("LOOKBACK_BLOCKS", "5000"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid LOOKBACK_BLOCKS: %w", err)
	}
	cfg.LookbackBlocks = lookback

	timeout, err := time.ParseDuration(getEnvOrDefault("RECEIPT_TIMEOUT", "2m"))
	if err != nil || timeout <= 0 {
		return nil, fmt.Errorf("invalid RECEIPT_TIMEOUT: %q", os.Getenv("RECEIPT_TIMEOUT"))
	}
	cfg.ReceiptTimeout = timeout

	return cfg, nil
}

// Validate checks what every request needs before any chain call is made.
// Flow specific settings are checked when a flow starts.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.RPCURL) == "" {
		errs = append(errs, errors.New("RPC_URL is required"))
	}
	if strings.TrimSpace(c.EscrowAddress) == "" {
		errs = append(errs, errors.New("AUTH_CAPTURE_ESCROW is required"))
	}
	addresses := []struct{ key, value string }{
		{"AUTH_CAPTURE_ESCROW", c.EscrowAddress},
		{"PREAPPROVAL_COLLECTOR", c.PreApprovalCollector},
		{"OPERATOR_REFUND_COLLECTOR", c.OperatorRefundCollector},
		{"DEMO_TOKEN", c.DemoToken},
		{"MERCHANT", c.Merchant},
		{"PAYER", c.Payer},
		{"OPERATOR", c.Operator},
	}
	for _, a := range addresses {
		if v := strings.TrimSpace(a.value); v != "" && !common.IsHexAddress(v) {
			errs = append(errs, fmt.Errorf("%s is not a valid address: %q", a.key, v))
		}
	}
	return errors.Join(errs...)
}

// AuthEnabled reports whether operator routes require a bearer token.
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

// InitDB opens the dispute database. It returns nil without error when no
// DATABASE_URL is configured.
func InitDB(cfg *Config) (*gorm.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&models.Dispute{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

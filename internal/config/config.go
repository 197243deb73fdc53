package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// devCredentialMasterKey is a fixed 32-byte hex key used only when
// CREDENTIAL_MASTER_KEY is unset. Never rely on this outside local dev.
const devCredentialMasterKey = "0000000000000000000000000000000000000000000000000000000000000000000000000000"[:64]

type Config struct {
	DatabaseURL string
	JWTSecret   string
	Port        string
	Environment string

	// CredentialMasterKey encrypts/decrypts UserCredential fields at rest
	// (AES-GCM; the server requires it to hex-decode to exactly 32 bytes).
	CredentialMasterKey string
	// WorkflowMaxParallel bounds concurrent node workers per run (§4.4.1).
	WorkflowMaxParallel int
	// RunWatchdogMinutes cancels a run's context if it hasn't terminated
	// by then (§5), marking it failed with WatchdogTimeout.
	RunWatchdogMinutes int

	// AppURL is used to build links (password reset, invites) in system email.
	AppURL string

	// System email (password resets, invites) is separate from the
	// per-account EmailProviderSettings used by the Communication.Email
	// executor — it has its own provider config since it runs outside any
	// account's context.
	SystemEmailProvider     string
	SystemEmailFrom         string
	SystemEmailFromName     string
	SystemEmailResendAPIKey string
	SystemEmailSMTPHost     string
	SystemEmailSMTPPort     string
	SystemEmailSMTPUser     string
	SystemEmailSMTPPassword string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		Port:                 getEnvOrDefault("PORT", "3000"),
		Environment:          getEnvOrDefault("NODE_ENV", "development"),
		CredentialMasterKey:  getEnvOrDefault("CREDENTIAL_MASTER_KEY", devCredentialMasterKey),
		WorkflowMaxParallel:  getEnvIntOrDefault("WORKFLOW_MAX_PARALLEL", 4),
		RunWatchdogMinutes:   getEnvIntOrDefault("RUN_WATCHDOG_MINUTES", 10),

		AppURL: getEnvOrDefault("APP_URL", "http://localhost:5173"),

		SystemEmailProvider:     getEnvOrDefault("SYSTEM_EMAIL_PROVIDER", "resend"),
		SystemEmailFrom:         getEnvOrDefault("SYSTEM_EMAIL_FROM", "noreply@yantra.local"),
		SystemEmailFromName:     getEnvOrDefault("SYSTEM_EMAIL_FROM_NAME", "Yantra"),
		SystemEmailResendAPIKey: os.Getenv("SYSTEM_EMAIL_RESEND_API_KEY"),
		SystemEmailSMTPHost:     os.Getenv("SYSTEM_EMAIL_SMTP_HOST"),
		SystemEmailSMTPPort:     getEnvOrDefault("SYSTEM_EMAIL_SMTP_PORT", "587"),
		SystemEmailSMTPUser:     os.Getenv("SYSTEM_EMAIL_SMTP_USER"),
		SystemEmailSMTPPassword: os.Getenv("SYSTEM_EMAIL_SMTP_PASSWORD"),
	}

	// Validate required config
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

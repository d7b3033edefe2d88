package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"

	"github.com/teknolabs/vocameet-server/internal/util"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "nextauth-secret", "password",
}

var validStrategies = []string{"local_decode", "code_exchange", "hosted_session"}

var validPolicies = []string{"use-caller-identity", "anonymize-participant"}

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	RedisURL    string `env:"REDIS_URL,required,notEmpty"`

	Signing

	EncryptionKey string `env:"ENCRYPTION_KEY"`

	AuthStrategy       string `env:"AUTH_STRATEGY" envDefault:"code_exchange"`
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleJWKSURL      string `env:"GOOGLE_JWKS_URL" envDefault:"https://www.googleapis.com/oauth2/v3/certs"`
	HostedSessionURL   string `env:"HOSTED_SESSION_URL"`

	TranscriptWSURL string `env:"TRANSCRIPT_WS_URL"`
	AgentAPIKey     string `env:"AGENT_API_KEY"`

	AllowedOrigins       []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	CalendarMaxResults   int      `env:"CALENDAR_MAX_RESULTS" envDefault:"25"`
	GrantRateLimitPerMin int      `env:"GRANT_RATE_LIMIT_PER_MIN" envDefault:"30"`
	LogLevel             string   `env:"LOG_LEVEL" envDefault:"info"`
}

// Signing holds what is needed to mint session tokens and room grants.
type Signing struct {
	SessionSigningSecret string `env:"SESSION_SIGNING_SECRET"`

	LiveKitURL           string `env:"LIVEKIT_URL"`
	LiveKitAPIKey        string `env:"LIVEKIT_API_KEY"`
	LiveKitAPISecret     string `env:"LIVEKIT_API_SECRET"`
	LiveKitTokenEndpoint string `env:"LIVEKIT_TOKEN_ENDPOINT"`
	ParticipantPolicy    string `env:"PARTICIPANT_POLICY" envDefault:"use-caller-identity"`
}

// RoomIssuerConfigured reports whether a local grant can be signed.
func (s *Signing) RoomIssuerConfigured() bool {
	return s.LiveKitURL != "" && s.LiveKitAPIKey != "" && s.LiveKitAPISecret != ""
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) Validate(isProduction bool) error {
	if c.AuthStrategy == "" || !util.IsValidEnum(c.AuthStrategy, validStrategies) {
		return fmt.Errorf("AUTH_STRATEGY must be one of %s", strings.Join(validStrategies, ", "))
	}
	if c.ParticipantPolicy == "" || !util.IsValidEnum(c.ParticipantPolicy, validPolicies) {
		return fmt.Errorf("PARTICIPANT_POLICY must be one of %s", strings.Join(validPolicies, ", "))
	}

	switch c.AuthStrategy {
	case "local_decode":
		if c.GoogleClientID == "" {
			return fmt.Errorf("GOOGLE_CLIENT_ID is required for local_decode")
		}
	case "code_exchange":
		if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
			return fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required for code_exchange")
		}
	case "hosted_session":
		if c.HostedSessionURL == "" {
			return fmt.Errorf("HOSTED_SESSION_URL is required for hosted_session")
		}
	}

	if !c.RoomIssuerConfigured() && c.LiveKitTokenEndpoint == "" {
		log.Warn().Msg("LIVEKIT_URL, LIVEKIT_API_KEY or LIVEKIT_API_SECRET missing: room grants will fail")
	}

	if isProduction {
		if err := validateSecret("SESSION_SIGNING_SECRET", c.SessionSigningSecret); err != nil {
			return err
		}

		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.EncryptionKey == "" {
			log.Warn().Msg("ENCRYPTION_KEY is empty in production: delegated Google tokens will not be encrypted at rest")
		}
		if c.AgentAPIKey == "" {
			log.Warn().Msg("AGENT_API_KEY is empty in production: room data ingestion is disabled")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	// NEXTAUTH_SECRET is what the web front-end shares with us.
	if cfg.SessionSigningSecret == "" {
		cfg.SessionSigningSecret = os.Getenv("NEXTAUTH_SECRET")
	}
	return &cfg, nil
}

// LoadSigning reads only the signing and room settings, so tokenctl works
// without database or redis variables.
func LoadSigning() (*Signing, error) {
	var sig Signing
	if err := env.Parse(&sig); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if sig.SessionSigningSecret == "" {
		sig.SessionSigningSecret = os.Getenv("NEXTAUTH_SECRET")
	}
	return &sig, nil
}

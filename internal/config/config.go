// Package config defines the configuration contract and handles loading and
// validating environment configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// Canonical environment variable keys.
	KeyTelegramToken     = "TELEGRAM_TOKEN"
	KeyAdminChatID       = "ADMIN_CHAT_ID"
	KeyGroupChatID       = "GROUP_CHAT_ID"
	KeyMongoURI          = "MONGO_URI"
	KeyMongoDB           = "MONGO_DB"
	KeyGoogleCredentials = "GOOGLE_CREDENTIALS_FILE"
	KeyAllowedDomains    = "ALLOWED_EMAIL_DOMAINS"
	KeyAppEnv            = "APP_ENV"
	KeyLogLevel          = "LOG_LEVEL"
	KeyHTTPPort          = "HTTP_PORT"

	// Table link keys. Each maps one document category to a shareable link.
	KeyWebContentLink   = "WEB_CONTENT_TABLE_LINK"
	KeyWebAIContentLink = "WEB_AI_CONTENT_TABLE_LINK"
	KeySeoContentLink   = "SEO_CONTENT_TABLE_LINK"
	KeyBackupLink       = "BACKUP_TABLE_LINK"
	KeyGuideLink        = "GUIDE_LINK"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Defaults for optional settings.
	DefaultAppEnv         = EnvProduction
	DefaultLogLevel       = "info"
	DefaultHTTPPort       = 8080
	DefaultAllowedDomains = "gmail.com"

	// Recommended database names by environment.
	DefaultMongoDBProd = "access_share_bot"
	DefaultMongoDBDev  = "access_share_bot_dev"
)

// Document categories used as keys of Config.TableLinks. The table registry
// and keyboards depend on these exact names because they travel inside
// callback payloads.
const (
	CategoryWebContent   = "web_content"
	CategoryWebAIContent = "web_ai_content"
	CategorySeoContent   = "seo_content"
	CategoryBackup       = "backup"
	CategoryLinkToGuide  = "link_to_guide"
)

// tableLinkKeys maps each document category to its environment variable.
var tableLinkKeys = map[string]string{
	CategoryWebContent:   KeyWebContentLink,
	CategoryWebAIContent: KeyWebAIContentLink,
	CategorySeoContent:   KeySeoContentLink,
	CategoryBackup:       KeyBackupLink,
	CategoryLinkToGuide:  KeyGuideLink,
}

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the bot must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the bot.
// .env loading is only permitted when APP_ENV=development; production must
// rely on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeyTelegramToken,
		Example:     "123:ABC",
		Required:    true,
		Description: "Telegram Bot Token issued by BotFather.",
	},
	{
		Key:         KeyAdminChatID,
		Example:     "123456789",
		Required:    true,
		Description: "Chat id of the administrator who approves registrations and receives operator reports.",
	},
	{
		Key:         KeyGroupChatID,
		Example:     "-1001234567890",
		Required:    true,
		Description: "Chat id of the shared working group used for invite links and bans.",
	},
	{
		Key:         KeyMongoURI,
		Example:     "mongodb://localhost:27017",
		Required:    true,
		Description: "MongoDB connection string.",
	},
	{
		Key:         KeyMongoDB,
		Example:     DefaultMongoDBProd + " / " + DefaultMongoDBDev,
		Required:    true,
		Description: "MongoDB database name.",
		Notes:       "Recommended: production=" + DefaultMongoDBProd + ", development=" + DefaultMongoDBDev + ".",
	},
	{
		Key:         KeyGoogleCredentials,
		Example:     "credentials/service-account.json",
		Required:    true,
		Description: "Path to the Google service account JSON used for Drive permission management.",
	},
	{
		Key:         KeyAllowedDomains,
		Example:     "gmail.com,example.com",
		Default:     DefaultAllowedDomains,
		Description: "Comma-separated list of email domains allowed to register.",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "HTTP health/diagnostics port.",
	},
	{
		Key:         KeyWebContentLink,
		Example:     "https://docs.google.com/spreadsheets/d/abc123",
		Description: "Link to the web content table.",
	},
	{
		Key:         KeyWebAIContentLink,
		Example:     "https://docs.google.com/spreadsheets/d/def456",
		Description: "Link to the web AI content table.",
	},
	{
		Key:         KeySeoContentLink,
		Example:     "https://docs.google.com/spreadsheets/d/ghi789",
		Description: "Link to the SEO content table.",
	},
	{
		Key:         KeyBackupLink,
		Example:     "https://docs.google.com/spreadsheets/d/jkl012",
		Description: "Link to the backup table.",
	},
	{
		Key:         KeyGuideLink,
		Example:     "https://docs.google.com/document/d/mno345",
		Description: "Link to the onboarding guide document.",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	TelegramToken     string
	AdminChatID       int64
	GroupChatID       int64
	MongoURI          string
	MongoDB           string
	GoogleCredentials string
	AllowedDomains    []string
	AppEnv            string
	LogLevel          string
	HTTPPort          int
	TableLinks        map[string]string
}

// Load resolves configuration from the environment (with optional dotenv in
// development).
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:            firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		TelegramToken:     strings.TrimSpace(os.Getenv(KeyTelegramToken)),
		MongoURI:          strings.TrimSpace(os.Getenv(KeyMongoURI)),
		MongoDB:           strings.TrimSpace(os.Getenv(KeyMongoDB)),
		GoogleCredentials: strings.TrimSpace(os.Getenv(KeyGoogleCredentials)),
		LogLevel:          firstNonEmpty(strings.TrimSpace(os.Getenv(KeyLogLevel)), DefaultLogLevel),
		HTTPPort:          DefaultHTTPPort,
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	missing := make([]string, 0)

	if cfg.TelegramToken == "" {
		missing = append(missing, KeyTelegramToken)
	}

	adminRaw := strings.TrimSpace(os.Getenv(KeyAdminChatID))
	if adminRaw == "" {
		missing = append(missing, KeyAdminChatID)
	} else {
		adminID, parseErr := strconv.ParseInt(adminRaw, 10, 64)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyAdminChatID, parseErr)
		}
		cfg.AdminChatID = adminID
	}

	groupRaw := strings.TrimSpace(os.Getenv(KeyGroupChatID))
	if groupRaw == "" {
		missing = append(missing, KeyGroupChatID)
	} else {
		groupID, parseErr := strconv.ParseInt(groupRaw, 10, 64)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyGroupChatID, parseErr)
		}
		cfg.GroupChatID = groupID
	}

	if cfg.MongoURI == "" {
		missing = append(missing, KeyMongoURI)
	} else if !strings.HasPrefix(cfg.MongoURI, "mongodb://") && !strings.HasPrefix(cfg.MongoURI, "mongodb+srv://") {
		return Config{}, fmt.Errorf("invalid %s: must start with mongodb:// or mongodb+srv://", KeyMongoURI)
	}

	if cfg.MongoDB == "" {
		missing = append(missing, KeyMongoDB)
	}

	if cfg.GoogleCredentials == "" {
		missing = append(missing, KeyGoogleCredentials)
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	cfg.AllowedDomains = parseDomains(firstNonEmpty(os.Getenv(KeyAllowedDomains), DefaultAllowedDomains))
	if len(cfg.AllowedDomains) == 0 {
		return Config{}, fmt.Errorf("invalid %s: no usable domains", KeyAllowedDomains)
	}

	httpPortRaw := strings.TrimSpace(os.Getenv(KeyHTTPPort))
	if httpPortRaw != "" {
		port, parseErr := strconv.Atoi(httpPortRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyHTTPPort, parseErr)
		}
		if port <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyHTTPPort)
		}
		cfg.HTTPPort = port
	}

	cfg.TableLinks = make(map[string]string, len(tableLinkKeys))
	for category, key := range tableLinkKeys {
		if link := strings.TrimSpace(os.Getenv(key)); link != "" {
			cfg.TableLinks[category] = link
		}
	}

	return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// FormatRedacted renders the resolved configuration with secrets masked,
// suitable for the --config-only startup check.
func FormatRedacted(cfg Config) string {
	var b strings.Builder

	fmt.Fprintf(&b, "app_env: %s\n", cfg.AppEnv)
	fmt.Fprintf(&b, "telegram_token: %s\n", redactToken(cfg.TelegramToken))
	fmt.Fprintf(&b, "admin_chat_id: %d\n", cfg.AdminChatID)
	fmt.Fprintf(&b, "group_chat_id: %d\n", cfg.GroupChatID)
	fmt.Fprintf(&b, "mongo_uri: %s\n", redactMongoURI(cfg.MongoURI))
	fmt.Fprintf(&b, "mongo_db: %s\n", cfg.MongoDB)
	fmt.Fprintf(&b, "google_credentials_file: %s\n", cfg.GoogleCredentials)
	fmt.Fprintf(&b, "allowed_email_domains: %s\n", strings.Join(cfg.AllowedDomains, ","))
	fmt.Fprintf(&b, "log_level: %s\n", cfg.LogLevel)
	fmt.Fprintf(&b, "http_port: %d\n", cfg.HTTPPort)
	fmt.Fprintf(&b, "table_links: %d configured", len(cfg.TableLinks))

	return b.String()
}

func redactToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 4 {
		return "...redacted"
	}

	return token[:4] + "...redacted"
}

// redactMongoURI strips credentials from a connection string while keeping
// the host portion readable.
func redactMongoURI(uri string) string {
	schemeEnd := strings.Index(uri, "://")
	if schemeEnd < 0 {
		return uri
	}

	rest := uri[schemeEnd+len("://"):]
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return uri
	}

	return uri[:schemeEnd+len("://")] + rest[at+1:]
}

func parseDomains(raw string) []string {
	parts := strings.Split(raw, ",")
	domains := make([]string, 0, len(parts))
	for _, part := range parts {
		domain := strings.ToLower(strings.TrimSpace(part))
		if domain == "" {
			continue
		}
		domains = append(domains, domain)
	}

	return domains
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}

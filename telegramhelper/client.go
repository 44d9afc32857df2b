package telegramhelper

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/researchaccelerator-hub/telegram-outreach/crawler"
	"github.com/rs/zerolog/log"
	"github.com/zelenin/go-tdlib/client"
)

// TelegramService defines an interface for interacting with the Telegram client.
// This abstraction allows for both real implementations with TDLib and mock
// implementations for testing.
type TelegramService interface {
	// InitializeClient creates and authenticates a TDLib client whose session
	// lives under sessionDir.
	InitializeClient(sessionDir string) (crawler.TDLibClient, error)

	// GetMe retrieves information about the authenticated user.
	GetMe(libClient crawler.TDLibClient) (*client.User, error)
}

// RealTelegramService is the TDLib-backed TelegramService.
type RealTelegramService struct {
	Verbosity   int
	InitTimeout time.Duration
}

// Credentials stores Telegram API authentication details. They are read from
// .tdlib/credentials.json when present and from the environment otherwise.
type Credentials struct {
	APIId       string `json:"api_id" env:"TG_API_ID"`
	APIHash     string `json:"api_hash" env:"TG_API_HASH"`
	PhoneNumber string `json:"phone_number" env:"TG_PHONE_NUMBER"`
	PhoneCode   string `json:"phone_code" env:"TG_PHONE_CODE"`
}

// readCredentials loads credentials from "<dir>/.tdlib/credentials.json".
func readCredentials(dir string) (*Credentials, error) {
	credsPath := filepath.Join(dir, ".tdlib", "credentials.json")

	if _, err := os.Stat(credsPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("credentials file not found at %s", credsPath)
	}

	data, err := os.ReadFile(credsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials JSON: %w", err)
	}

	return &creds, nil
}

// LoadCredentials looks for a credentials file in the session directory, then
// in the working directory, and finally falls back to TG_* environment variables.
func LoadCredentials(sessionDir string) (*Credentials, error) {
	for _, dir := range []string{sessionDir, "."} {
		creds, err := readCredentials(dir)
		if err == nil {
			log.Info().Str("dir", dir).Msg("Using API credentials from stored file")
			return creds, nil
		}
		log.Debug().Err(err).Msg("No credentials file")
	}

	log.Info().Msg("Using API credentials from environment variables")
	var creds Credentials
	if err := env.Parse(&creds); err != nil {
		return nil, fmt.Errorf("failed to parse credential environment: %w", err)
	}
	if creds.APIId == "" || creds.APIHash == "" {
		return nil, fmt.Errorf("TG_API_ID and TG_API_HASH must be set")
	}
	return &creds, nil
}

// SetupAuth exports the phone number and code for the go-tdlib CLI
// interactor. Empty values leave the existing environment untouched.
func SetupAuth(phoneNumber, phoneCode string) {
	if phoneNumber != "" {
		os.Setenv("TG_PHONE_NUMBER", phoneNumber)
		log.Debug().
			Str("phone_number_masked", maskPhoneNumber(phoneNumber)).
			Msg("Set TG_PHONE_NUMBER environment variable for authentication")
	} else {
		log.Debug().Msg("No phone number provided, will use existing TG_PHONE_NUMBER or prompt user")
	}

	if phoneCode != "" {
		os.Setenv("TG_PHONE_CODE", phoneCode)
		log.Debug().Msg("Set TG_PHONE_CODE environment variable for authentication")
	} else {
		log.Debug().Msg("No phone code provided, will use existing TG_PHONE_CODE or prompt user")
	}
}

// maskPhoneNumber hides most digits of a phone number for security in logs
func maskPhoneNumber(phoneNumber string) string {
	if len(phoneNumber) <= 4 {
		return "***"
	}

	// Keep country code (first few digits) and last 2 digits
	visiblePrefix := 3
	if len(phoneNumber) > 10 {
		visiblePrefix = 4
	}

	masked := phoneNumber[:visiblePrefix]
	for i := visiblePrefix; i < len(phoneNumber)-2; i++ {
		masked += "*"
	}
	masked += phoneNumber[len(phoneNumber)-2:]

	return masked
}

// InitializeClient creates and authenticates a TDLib client. The database and
// files directories live under sessionDir so that every account keeps its own
// session. If the phone code is missing or invalid, the CLI interactor prompts.
func (s *RealTelegramService) InitializeClient(sessionDir string) (crawler.TDLibClient, error) {
	creds, err := LoadCredentials(sessionDir)
	if err != nil {
		return nil, err
	}
	apiID, err := strconv.Atoi(creds.APIId)
	if err != nil {
		return nil, fmt.Errorf("invalid API ID: %w", err)
	}

	dbDir := filepath.Join(sessionDir, ".tdlib", "database")
	filesDir := filepath.Join(sessionDir, ".tdlib", "files")
	for _, dir := range []string{dbDir, filesDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	log.Info().Str("database_dir", dbDir).Msg("Using TDLib database directory")

	authorizer := client.ClientAuthorizer()
	authorizer.TdlibParameters <- &client.SetTdlibParametersRequest{
		UseTestDc:           false,
		DatabaseDirectory:   dbDir,
		FilesDirectory:      filesDir,
		UseFileDatabase:     false,
		UseChatInfoDatabase: true,
		UseMessageDatabase:  false,
		UseSecretChats:      false,
		ApiId:               int32(apiID),
		ApiHash:             creds.APIHash,
		SystemLanguageCode:  "en",
		DeviceModel:         "Server",
		SystemVersion:       "1.0.0",
		ApplicationVersion:  "1.0.0",
	}

	SetupAuth(creds.PhoneNumber, creds.PhoneCode)
	go client.CliInteractor(authorizer)

	clientReady := make(chan *client.Client, 1)
	errChan := make(chan error, 1)

	go func() {
		tdlibClient, err := client.NewClient(authorizer)
		if err != nil {
			errChan <- fmt.Errorf("failed to initialize TDLib client: %w", err)
			return
		}
		verb := client.SetLogVerbosityLevelRequest{NewVerbosityLevel: int32(s.Verbosity)}
		if _, err := tdlibClient.SetLogVerbosityLevel(&verb); err != nil {
			log.Warn().Err(err).Msg("Failed to set TDLib verbosity")
		}
		clientReady <- tdlibClient
	}()

	timeout := s.InitTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	select {
	case tdlibClient := <-clientReady:
		log.Info().Str("session_dir", sessionDir).Msg("Client initialized successfully")
		return tdlibClient, nil
	case err := <-errChan:
		log.Error().Err(err).Msg("Error initializing client")
		return nil, err
	case <-time.After(timeout):
		return nil, fmt.Errorf("timeout initializing TDLib client")
	}
}

// GetMe retrieves the authenticated Telegram user
func (s *RealTelegramService) GetMe(tdlibClient crawler.TDLibClient) (*client.User, error) {
	user, err := tdlibClient.GetMe()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve authenticated user: %w", err)
	}
	log.Info().Msgf("Logged in as: %s %s", user.FirstName, user.LastName)
	return user, nil
}

// GenCode runs the interactive login for one session directory so that later
// runs can reuse the stored TDLib session.
func GenCode(service TelegramService, sessionDir string) error {
	tdclient, err := service.InitializeClient(sessionDir)
	if err != nil {
		return fmt.Errorf("failed to initialize TDLib client: %w", err)
	}
	defer closeClientSafe(tdclient)

	user, err := service.GetMe(tdclient)
	if err != nil {
		return err
	}

	log.Info().Msgf("Authenticated as: %s %s", user.FirstName, user.LastName)
	return nil
}

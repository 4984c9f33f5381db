package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/argon2"
)

// UserInfo is the identity an AuthProvider returns on a successful
// authentication or token validation.
type UserInfo map[string]any

// Credentials carries whatever fields a provider needs to authenticate —
// username/password for the basic provider, an api_key for the token
// provider.
type Credentials map[string]string

//go:generate mockgen -destination=mock_auth_provider_test.go -package=security . AuthProvider

// AuthProvider mirrors the original's AuthProvider ABC: authenticate,
// validate a previously-issued token, generate one, and revoke it.
type AuthProvider interface {
	Authenticate(credentials Credentials) (UserInfo, bool)
	ValidateToken(token string) (UserInfo, bool)
	GenerateToken(user UserInfo) (string, error)
	RevokeToken(token string) bool
}

type passwordRecord struct {
	Hash string `json:"hash"`
	Salt string `json:"salt"`
	// Scheme distinguishes the legacy sha256+salt digest from the argon2id
	// upgrade path; empty/"sha256" means legacy.
	Scheme string `json:"scheme,omitempty"`
}

// BasicAuthProvider authenticates username/password pairs loaded from a
// JSON users file and issues bearer tokens with a configurable lifetime.
type BasicAuthProvider struct {
	mu            sync.RWMutex
	usersFile     string
	users         map[string]map[string]any
	tokens        map[string]UserInfo
	tokenExpiry   map[string]time.Time
	tokenLifetime time.Duration
	logger        *slog.Logger
}

// NewBasicAuthProvider loads usersFile (if present) and starts tracking
// issued tokens in memory only — matching the original, which never
// persists its in-memory token table.
func NewBasicAuthProvider(usersFile string, tokenLifetime time.Duration, logger *slog.Logger) *BasicAuthProvider {
	if logger == nil {
		logger = slog.Default()
	}
	if tokenLifetime <= 0 {
		tokenLifetime = time.Hour
	}
	p := &BasicAuthProvider{
		usersFile:     usersFile,
		users:         make(map[string]map[string]any),
		tokens:        make(map[string]UserInfo),
		tokenExpiry:   make(map[string]time.Time),
		tokenLifetime: tokenLifetime,
		logger:        logger,
	}
	p.loadUsers()
	return p
}

func (p *BasicAuthProvider) loadUsers() {
	data, err := os.ReadFile(p.usersFile)
	if err != nil {
		if !os.IsNotExist(err) {
			p.logger.Error("failed to load users file", "path", p.usersFile, "error", err)
		}
		return
	}
	if err := json.Unmarshal(data, &p.users); err != nil {
		p.logger.Error("failed to parse users file", "path", p.usersFile, "error", err)
		return
	}
	p.logger.Info("loaded users", "path", p.usersFile, "count", len(p.users))
}

// hashLegacy reproduces the original's sha256(password || salt) digest.
func hashLegacy(password, salt string) string {
	h := sha256.New()
	h.Write([]byte(password))
	h.Write([]byte(salt))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// hashArgon2 is the upgrade path for newly minted password records.
func hashArgon2(password string, salt []byte) string {
	sum := argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)
	return base64.StdEncoding.EncodeToString(sum)
}

// HashPassword produces a new argon2id password record for a user file.
func HashPassword(password string) (passwordRecord, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return passwordRecord{}, err
	}
	saltB64 := base64.StdEncoding.EncodeToString(salt)
	return passwordRecord{Hash: hashArgon2(password, salt), Salt: saltB64, Scheme: "argon2id"}, nil
}

func verifyPassword(password string, record passwordRecord) bool {
	if record.Scheme == "argon2id" {
		salt, err := base64.StdEncoding.DecodeString(record.Salt)
		if err != nil {
			return false
		}
		computed := hashArgon2(password, salt)
		return subtle.ConstantTimeCompare([]byte(computed), []byte(record.Hash)) == 1
	}
	computed := hashLegacy(password, record.Salt)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(record.Hash)) == 1
}

// Authenticate checks a username/password pair against the loaded users
// file.
func (p *BasicAuthProvider) Authenticate(credentials Credentials) (UserInfo, bool) {
	username := credentials["username"]
	password := credentials["password"]
	if username == "" || password == "" {
		return nil, false
	}

	p.mu.RLock()
	user, ok := p.users[username]
	p.mu.RUnlock()
	if !ok {
		return nil, false
	}

	passwordField, ok := user["password"].(map[string]any)
	if !ok {
		return nil, false
	}
	record := passwordRecord{
		Hash:   fmt.Sprint(passwordField["hash"]),
		Salt:   fmt.Sprint(passwordField["salt"]),
		Scheme: fmt.Sprint(passwordField["scheme"]),
	}
	if record.Hash == "" || record.Salt == "" {
		return nil, false
	}
	if !verifyPassword(password, record) {
		return nil, false
	}

	info := make(UserInfo, len(user))
	for k, v := range user {
		if k == "password" {
			continue
		}
		info[k] = v
	}
	info["username"] = username
	return info, true
}

// ValidateToken looks up a previously issued token, revoking and rejecting
// it if it has expired.
func (p *BasicAuthProvider) ValidateToken(token string) (UserInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	info, ok := p.tokens[token]
	if !ok {
		return nil, false
	}
	if expiry, hasExpiry := p.tokenExpiry[token]; hasExpiry && time.Now().After(expiry) {
		delete(p.tokens, token)
		delete(p.tokenExpiry, token)
		return nil, false
	}
	return info, true
}

// GenerateToken mints a random hex bearer token for user.
func (p *BasicAuthProvider) GenerateToken(user UserInfo) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)

	p.mu.Lock()
	p.tokens[token] = user
	p.tokenExpiry[token] = time.Now().Add(p.tokenLifetime)
	p.mu.Unlock()
	return token, nil
}

// RevokeToken deletes a previously issued token.
func (p *BasicAuthProvider) RevokeToken(token string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.tokens[token]; !ok {
		return false
	}
	delete(p.tokens, token)
	delete(p.tokenExpiry, token)
	return true
}

type apiKeyRecord struct {
	UserInfo UserInfo   `json:"user_info"`
	Created  time.Time  `json:"created"`
	Expiry   *time.Time `json:"expiry,omitempty"`
}

// TokenAuthProvider authenticates requests by a long-lived "nxs_"-prefixed
// API key, persisted to a JSON tokens file.
type TokenAuthProvider struct {
	mu         sync.RWMutex
	tokensFile string
	tokens     map[string]apiKeyRecord
	logger     *slog.Logger
}

// NewTokenAuthProvider loads tokensFile (if present).
func NewTokenAuthProvider(tokensFile string, logger *slog.Logger) *TokenAuthProvider {
	if logger == nil {
		logger = slog.Default()
	}
	p := &TokenAuthProvider{tokensFile: tokensFile, tokens: make(map[string]apiKeyRecord), logger: logger}
	p.load()
	return p
}

func (p *TokenAuthProvider) load() {
	data, err := os.ReadFile(p.tokensFile)
	if err != nil {
		if !os.IsNotExist(err) {
			p.logger.Error("failed to load tokens file", "path", p.tokensFile, "error", err)
		}
		return
	}
	if err := json.Unmarshal(data, &p.tokens); err != nil {
		p.logger.Error("failed to parse tokens file", "path", p.tokensFile, "error", err)
		return
	}
	p.logger.Info("loaded api keys", "path", p.tokensFile, "count", len(p.tokens))
}

// save persists the table via temp-then-rename. Caller must hold p.mu.
func (p *TokenAuthProvider) save() error {
	if p.tokensFile == "" {
		return nil
	}
	data, err := json.MarshalIndent(p.tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling api keys: %w", err)
	}
	tmp := p.tokensFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing temp tokens file: %w", err)
	}
	if err := os.Rename(tmp, p.tokensFile); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming temp tokens file: %w", err)
	}
	return nil
}

// Authenticate validates an api_key credential.
func (p *TokenAuthProvider) Authenticate(credentials Credentials) (UserInfo, bool) {
	apiKey := credentials["api_key"]
	if apiKey == "" {
		return nil, false
	}
	return p.ValidateToken(apiKey)
}

// ValidateToken looks up an API key, revoking and rejecting it if expired.
func (p *TokenAuthProvider) ValidateToken(token string) (UserInfo, bool) {
	p.mu.Lock()
	record, ok := p.tokens[token]
	if !ok {
		p.mu.Unlock()
		return nil, false
	}
	if record.Expiry != nil && time.Now().After(*record.Expiry) {
		delete(p.tokens, token)
		_ = p.save()
		p.mu.Unlock()
		return nil, false
	}
	p.mu.Unlock()
	return record.UserInfo, true
}

// GenerateToken mints a new non-expiring "nxs_"-prefixed API key for user.
func (p *TokenAuthProvider) GenerateToken(user UserInfo) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	apiKey := "nxs_" + hex.EncodeToString(buf)

	p.mu.Lock()
	p.tokens[apiKey] = apiKeyRecord{UserInfo: user, Created: time.Now()}
	err := p.save()
	p.mu.Unlock()
	return apiKey, err
}

// RevokeToken deletes an API key.
func (p *TokenAuthProvider) RevokeToken(token string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.tokens[token]; !ok {
		return false
	}
	delete(p.tokens, token)
	_ = p.save()
	return true
}

// AuthManager fans authentication out across named providers, mirroring
// the original's AuthManager (register_provider/authenticate/
// validate_token/generate_token/revoke_token).
type AuthManager struct {
	mu              sync.RWMutex
	providers       map[string]AuthProvider
	defaultProvider string
}

// NewAuthManager creates an empty manager; callers register providers via
// RegisterProvider (mirrors the original's basic/token auto-registration,
// done explicitly here at the call site rather than inside the manager so
// the manager stays decoupled from file-path configuration).
func NewAuthManager() *AuthManager {
	return &AuthManager{providers: make(map[string]AuthProvider)}
}

// RegisterProvider adds or replaces a named provider. The first provider
// registered becomes the default.
func (m *AuthManager) RegisterProvider(name string, provider AuthProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[name] = provider
	if m.defaultProvider == "" {
		m.defaultProvider = name
	}
}

// Authenticate tries the named provider, or the default if name == "".
func (m *AuthManager) Authenticate(credentials Credentials, name string) (UserInfo, bool) {
	provider, ok := m.resolve(name)
	if !ok {
		return nil, false
	}
	return provider.Authenticate(credentials)
}

// ValidateToken tries the named provider, or every provider in turn if
// name == "".
func (m *AuthManager) ValidateToken(token string, name string) (UserInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if name != "" {
		provider, ok := m.providers[name]
		if !ok {
			return nil, false
		}
		return provider.ValidateToken(token)
	}
	for _, provider := range m.providers {
		if info, ok := provider.ValidateToken(token); ok {
			return info, true
		}
	}
	return nil, false
}

// GenerateToken issues a token via the named provider, or the default.
func (m *AuthManager) GenerateToken(user UserInfo, name string) (string, error) {
	provider, ok := m.resolve(name)
	if !ok {
		return "", fmt.Errorf("authentication provider not found: %s", name)
	}
	return provider.GenerateToken(user)
}

// RevokeToken revokes via the named provider, or every provider if
// name == "".
func (m *AuthManager) RevokeToken(token string, name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if name != "" {
		provider, ok := m.providers[name]
		if !ok {
			return false
		}
		return provider.RevokeToken(token)
	}
	revoked := false
	for _, provider := range m.providers {
		if provider.RevokeToken(token) {
			revoked = true
		}
	}
	return revoked
}

func (m *AuthManager) resolve(name string) (AuthProvider, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if name == "" {
		name = m.defaultProvider
	}
	provider, ok := m.providers[name]
	return provider, ok
}

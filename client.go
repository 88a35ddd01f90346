// odoograph/client.go
package odoograph

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/kolo/xmlrpc"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerEnv define los tipos de entorno para la configuración del logger.
type LoggerEnv string

const (
	// EnvDevelopment configura el logger para un entorno de desarrollo (salida legible).
	EnvDevelopment LoggerEnv = "development"
	// EnvProduction configura el logger para un entorno de producción (salida JSON estructurada).
	EnvProduction LoggerEnv = "production"
)

// Client is an Odoo XML-RPC client. It authenticates lazily, keeps the
// session for authTimeout and is safe for concurrent use.
type Client struct {
	url           string
	db            string
	username      string
	password      string
	authTimeout   time.Duration
	skipTLSVerify bool
	httpClient    *http.Client
	logger        *zap.Logger

	mu      sync.Mutex
	session *session
}

// session is one authenticated object endpoint. A retired session is closed
// once its last in-flight call returns: closing the xmlrpc client under a
// running call would block that call forever.
type session struct {
	uid      int64
	rpc      *xmlrpc.Client
	lastAuth time.Time
	users    int
	retired  bool
}

// NewLogger crea una instancia de Zap logger basada en el entorno especificado.
func NewLogger(env LoggerEnv) *zap.Logger {
	var cfg zap.Config
	if env == EnvDevelopment {
		cfg = zap.NewDevelopmentConfig()
		// Sin "caller" ni stacktrace para logs más limpios en desarrollo.
		cfg.EncoderConfig.CallerKey = ""
		cfg.DisableStacktrace = true
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.LevelKey = "level"
		cfg.EncoderConfig.TimeKey = "time"
		cfg.EncoderConfig.CallerKey = "caller"
		cfg.DisableStacktrace = false
	}

	logger, err := cfg.Build()
	if err != nil {
		log.Printf("Failed to build Zap logger for env '%s', falling back to no-op logger: %v", env, err)
		return zap.NewNop()
	}
	return logger
}

// Option es una función que configura un Client.
type Option func(*Client)

// WithAuthTimeout establece cuánto tiempo se reutiliza una sesión autenticada.
func WithAuthTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.authTimeout = d
	}
}

// WithSkipTLSVerify establece si se debe omitir la verificación de certificados TLS.
// ADVERTENCIA: No usar en producción.
func WithSkipTLSVerify(skip bool) Option {
	return func(c *Client) {
		c.skipTLSVerify = skip
	}
}

// WithHTTPClient establece un *http.Client personalizado. Only its Transport
// is used; XML-RPC requests are built by the xmlrpc package.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger establece un logger de Zap personalizado.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithLoggerEnv establece el logger de Zap según el entorno.
// Si WithLogger se usa después, WithLogger tendrá prioridad.
func WithLoggerEnv(env LoggerEnv) Option {
	return func(c *Client) {
		c.logger = NewLogger(env)
	}
}

// New creates a Client. No network call is made until the first request.
func New(urlStr, db, username, password string, opts ...Option) (*Client, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Odoo URL: %w", err)
	}
	if parsedURL.Scheme != "https" && parsedURL.Scheme != "http" {
		return nil, fmt.Errorf("invalid Odoo URL scheme: %s, must be http or https", parsedURL.Scheme)
	}

	client := &Client{
		url:         strings.TrimRight(urlStr, "/"),
		db:          db,
		username:    username,
		password:    password,
		authTimeout: 6 * time.Hour,
		httpClient:  &http.Client{},
		logger:      NewLogger(EnvProduction),
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.skipTLSVerify {
		client.logger.Warn("ODOO_SKIP_TLS_VERIFY is enabled. TLS certificate verification will be skipped for Odoo connections. DO NOT USE IN PRODUCTION.",
			zap.String("component", "Client"),
			zap.String("action", "New"),
		)
		if client.httpClient.Transport == nil {
			client.httpClient.Transport = &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			}
		} else if tr, ok := client.httpClient.Transport.(*http.Transport); ok {
			tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		} else {
			client.logger.Warn("Cannot apply skipTLSVerify to a custom HTTP client's non-http.Transport. Manual configuration might be needed.",
				zap.String("component", "Client"),
				zap.String("action", "New"),
				zap.String("transport_type", fmt.Sprintf("%T", client.httpClient.Transport)),
			)
		}
	}

	return client, nil
}

// DB returns the database name the client authenticates against.
func (c *Client) DB() string {
	return c.db
}

func (c *Client) transport() http.RoundTripper {
	if c.httpClient != nil && c.httpClient.Transport != nil {
		return c.httpClient.Transport
	}
	return http.DefaultTransport
}

// authenticate logs in through /xmlrpc/2/common and opens the object
// endpoint. Callers hold c.mu.
func (c *Client) authenticate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		c.logger.Debug("Authentication cancelled before starting due to context",
			zap.Error(err),
			zap.String("op", "authenticate"),
		)
		return err
	}

	// The xmlrpc package has no context support; ctx is honoured between calls.
	commonURL := fmt.Sprintf("%s/xmlrpc/2/common", c.url)
	commonRPCClient, err := xmlrpc.NewClient(commonURL, c.transport())
	if err != nil {
		c.logger.Error("Failed to connect to Odoo common endpoint during authentication",
			zap.Error(err),
			zap.String("url", commonURL),
			zap.String("op", "authenticate"),
		)
		return fmt.Errorf("failed to connect to Odoo common endpoint: %w", err)
	}
	defer commonRPCClient.Close()

	var uid any
	err = commonRPCClient.Call("authenticate", []any{c.db, c.username, c.password, map[string]any{}}, &uid)
	if err != nil {
		c.logger.Error("Odoo authentication failed",
			zap.Error(err),
			zap.String("db", c.db),
			zap.String("username", c.username),
			zap.String("op", "authenticate"),
		)
		return fmt.Errorf("%w: %s", ErrAuthenticationFailed, err.Error())
	}
	// Odoo answers false instead of a fault when the credentials are wrong.
	id, ok := uid.(int64)
	if !ok || id == 0 {
		c.logger.Error("Odoo rejected the credentials",
			zap.String("db", c.db),
			zap.String("username", c.username),
			zap.String("op", "authenticate"),
		)
		return fmt.Errorf("%w: invalid credentials for %s", ErrAuthenticationFailed, c.username)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	objectURL := fmt.Sprintf("%s/xmlrpc/2/object", c.url)
	objectRPCClient, err := xmlrpc.NewClient(objectURL, c.transport())
	if err != nil {
		c.logger.Error("Failed to connect to Odoo object endpoint after authentication",
			zap.Error(err),
			zap.String("url", objectURL),
			zap.String("op", "authenticate"),
		)
		return fmt.Errorf("failed to connect to Odoo object endpoint: %w", err)
	}

	c.session = &session{uid: id, rpc: objectRPCClient, lastAuth: time.Now()}
	c.logger.Info("Successfully authenticated with Odoo",
		zap.Int64("uid", id),
		zap.String("db", c.db),
		zap.String("op", "authenticate"),
	)
	return nil
}

func (c *Client) isAuthValid() bool {
	return c.session != nil && time.Since(c.session.lastAuth) < c.authTimeout
}

// acquire returns the current session, authenticating if necessary. The
// caller must release it when its call returns.
func (c *Client) acquire(ctx context.Context) (*session, error) {
	if err := ctx.Err(); err != nil {
		c.logger.Debug("Context cancelled before getting Odoo connection", zap.Error(err))
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isAuthValid() {
		c.retireLocked()
		if err := c.authenticate(ctx); err != nil {
			return nil, err
		}
	}
	c.session.users++
	return c.session, nil
}

func (c *Client) release(s *session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s.users--
	if s.retired && s.users == 0 {
		s.rpc.Close()
	}
}

// refresh drops stale so the next acquire logs in again. When another caller
// already replaced stale, the newer session is kept.
func (c *Client) refresh(stale *session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == stale {
		c.retireLocked()
	}
}

func (c *Client) retireLocked() {
	s := c.session
	if s == nil {
		return
	}
	c.session = nil
	s.retired = true
	if s.users == 0 {
		s.rpc.Close()
	}
}

// Close releases the object endpoint connection.
// Calls still in flight finish on the old session.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retireLocked()
	return nil
}

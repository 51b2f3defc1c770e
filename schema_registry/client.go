package schema_registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aalemi-dev/kafka-workers/observability"
)

const contentType = "application/vnd.schemaregistry.v1+json"

// Confluent error codes carried in 404 response bodies.
const (
	errorCodeSubjectNotFound = 40401
	errorCodeVersionNotFound = 40402
	errorCodeSchemaNotFound  = 40403
)

// Defaults applied by NewClient.
const (
	// DefaultTimeout bounds each HTTP request.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxRetries is the number of retries after the first request.
	DefaultMaxRetries = 3

	// DefaultRetryInterval is the first backoff interval; it grows exponentially.
	DefaultRetryInterval = 200 * time.Millisecond

	// SchemaTypeAvro is the registry's default schema type.
	SchemaTypeAvro = "AVRO"
)

// Registry is the subset of the Confluent Schema Registry API used by workers.
type Registry interface {
	// GetSchemaByID returns the raw schema registered under id.
	GetSchemaByID(ctx context.Context, id int) (string, error)

	// GetLatestSchema returns the latest version registered for subject.
	GetLatestSchema(ctx context.Context, subject string) (*Metadata, error)

	// RegisterSchema registers schema under subject and returns its id. Registering
	// content that already exists returns the existing id without a new version.
	RegisterSchema(ctx context.Context, subject, schema, schemaType string) (int, error)

	// LookupSchema returns the version of subject holding exactly schema.
	LookupSchema(ctx context.Context, subject, schema, schemaType string) (*Metadata, error)

	// CheckCompatibility reports whether schema is compatible with the latest version
	// of subject. A subject with no versions accepts any schema.
	CheckCompatibility(ctx context.Context, subject, schema, schemaType string) (bool, error)
}

// Metadata describes one registered schema version.
type Metadata struct {
	// ID is the global schema ID written into the wire header
	ID int `json:"id"`

	// Version counts the versions of Subject from 1
	Version int `json:"version"`

	// Schema is the raw schema text
	Schema string `json:"schema"`

	Subject string `json:"subject"`

	// Type is empty for Avro, which the registry omits
	Type string `json:"schemaType,omitempty"`
}

// Config holds the registry connection settings.
type Config struct {
	// URL is the registry endpoint, e.g. "http://localhost:8081". Required.
	URL string `mapstructure:"url"`

	// Username enables basic auth when set.
	Username string `mapstructure:"username"`

	// Password is never serialized.
	Password string `mapstructure:"password" json:"-"` //nolint:gosec

	// Timeout bounds each HTTP request. Defaults to DefaultTimeout.
	Timeout time.Duration `mapstructure:"timeout"`

	// MaxRetries is how many times a retryable failure is retried. Defaults to
	// DefaultMaxRetries; a negative value disables retries.
	MaxRetries int `mapstructure:"max_retries"`

	// RetryInterval is the initial exponential backoff interval. Defaults to DefaultRetryInterval.
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// Logger is the logging subset the client needs. *logger.LoggerClient satisfies it.
type Logger interface {
	InfoWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
}

// Client talks to a Confluent Schema Registry over HTTP and caches schemas by id and
// ids by (subject, type, schema). It is safe for concurrent use, but every worker
// builds its own.
type Client struct {
	// url has no trailing slash
	url        string
	httpClient *http.Client

	// username and password are sent as basic auth when username is set
	username string
	password string

	maxRetries    int
	retryInterval time.Duration

	// schemaCache maps schema ids to raw schemas; ids are immutable in the registry
	schemaCache      map[int]string
	schemaCacheMutex sync.RWMutex

	// idCache maps subject, type and schema text to the registered id
	idCache      map[string]int
	idCacheMutex sync.RWMutex

	observer observability.Observer
	logger   Logger
}

// NewClient validates config and returns a client with defaults applied. No request
// is made until the first call.
//
// Parameters:
//   - config: The registry connection settings. URL is required.
//
// Returns:
//   - *Client: A client with empty caches
//   - error: When URL is empty
//
// Example:
//
//	client, err := schema_registry.NewClient(schema_registry.Config{
//	    URL:        "http://localhost:8081",
//	    MaxRetries: 5,
//	})
//	if err != nil {
//	    return err
//	}
//	raw, err := client.GetSchemaByID(ctx, 42)
func NewClient(config Config) (*Client, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("schema registry URL is required")
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = DefaultMaxRetries
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RetryInterval == 0 {
		config.RetryInterval = DefaultRetryInterval
	}

	return &Client{
		url:           strings.TrimRight(config.URL, "/"),
		httpClient:    &http.Client{Timeout: config.Timeout},
		username:      config.Username,
		password:      config.Password,
		maxRetries:    config.MaxRetries,
		retryInterval: config.RetryInterval,
		schemaCache:   make(map[int]string),
		idCache:       make(map[string]int),
	}, nil
}

// WithObserver sets the operation observer and returns the client.
func (c *Client) WithObserver(observer observability.Observer) *Client {
	c.observer = observer
	return c
}

// WithLogger sets the logger and returns the client.
func (c *Client) WithLogger(logger Logger) *Client {
	c.logger = logger
	return c
}

// GetSchemaByID returns the raw schema for id, from cache when possible.
func (c *Client) GetSchemaByID(ctx context.Context, id int) (string, error) {
	start := time.Now()
	idStr := strconv.Itoa(id)

	c.schemaCacheMutex.RLock()
	schema, ok := c.schemaCache[id]
	c.schemaCacheMutex.RUnlock()
	if ok {
		c.observe("get_schema_by_id", "", idStr, start, nil, cacheHit(true))
		return schema, nil
	}

	var result struct {
		Schema string `json:"schema"`
	}
	err := c.call(ctx, "get_schema_by_id", "", http.MethodGet, "/schemas/ids/"+idStr, nil, &result)
	c.observe("get_schema_by_id", "", idStr, start, err, cacheHit(false))
	if err != nil {
		return "", err
	}

	c.cacheSchema(id, result.Schema)
	return result.Schema, nil
}

// GetLatestSchema returns the latest version of subject. A subject without versions
// yields an error matching ErrSubjectNotFound.
func (c *Client) GetLatestSchema(ctx context.Context, subject string) (*Metadata, error) {
	start := time.Now()

	var metadata Metadata
	err := c.call(ctx, "get_latest_schema", subject, http.MethodGet, subjectPath(subject)+"/versions/latest", nil, &metadata)
	if err != nil {
		c.observe("get_latest_schema", subject, "latest", start, err, nil)
		return nil, err
	}

	metadata.Subject = subject
	c.cacheSchema(metadata.ID, metadata.Schema)

	c.observe("get_latest_schema", subject, "latest", start, nil, map[string]interface{}{
		"schema_id": metadata.ID,
		"version":   metadata.Version,
	})
	return &metadata, nil
}

// RegisterSchema registers schema under subject and returns its id.
func (c *Client) RegisterSchema(ctx context.Context, subject, schema, schemaType string) (int, error) {
	start := time.Now()

	key := cacheKey(subject, schema, schemaType)
	c.idCacheMutex.RLock()
	id, ok := c.idCache[key]
	c.idCacheMutex.RUnlock()
	if ok {
		c.observe("register_schema", subject, schemaRef(id), start, nil, cacheHit(true))
		return id, nil
	}

	var result struct {
		ID int `json:"id"`
	}
	err := c.call(ctx, "register_schema", subject, http.MethodPost, subjectPath(subject)+"/versions", schemaPayload(schema, schemaType), &result)
	if err != nil {
		c.observe("register_schema", subject, "", start, err, cacheHit(false))
		return 0, err
	}

	c.idCacheMutex.Lock()
	c.idCache[key] = result.ID
	c.idCacheMutex.Unlock()
	c.cacheSchema(result.ID, schema)

	c.logInfo(ctx, "schema registered", map[string]interface{}{"subject": subject, "schema_id": result.ID})
	c.observe("register_schema", subject, schemaRef(result.ID), start, nil, cacheHit(false))
	return result.ID, nil
}

// LookupSchema returns the version of subject holding exactly schema. It returns an
// error matching ErrSchemaNotFound or ErrSubjectNotFound when there is none.
func (c *Client) LookupSchema(ctx context.Context, subject, schema, schemaType string) (*Metadata, error) {
	start := time.Now()

	var metadata Metadata
	err := c.call(ctx, "lookup_schema", subject, http.MethodPost, subjectPath(subject), schemaPayload(schema, schemaType), &metadata)
	c.observe("lookup_schema", subject, "", start, err, nil)
	if err != nil {
		return nil, err
	}

	metadata.Subject = subject
	c.idCacheMutex.Lock()
	c.idCache[cacheKey(subject, schema, schemaType)] = metadata.ID
	c.idCacheMutex.Unlock()
	return &metadata, nil
}

// CheckCompatibility tests schema against the latest version of subject.
func (c *Client) CheckCompatibility(ctx context.Context, subject, schema, schemaType string) (bool, error) {
	start := time.Now()

	var result struct {
		IsCompatible bool `json:"is_compatible"`
	}
	err := c.call(ctx, "check_compatibility", subject, http.MethodPost,
		"/compatibility"+subjectPath(subject)+"/versions/latest", schemaPayload(schema, schemaType), &result)
	if errors.Is(err, ErrSubjectNotFound) {
		c.observe("check_compatibility", subject, "latest", start, nil, map[string]interface{}{"is_compatible": true})
		return true, nil
	}
	if err != nil {
		c.observe("check_compatibility", subject, "latest", start, err, nil)
		return false, err
	}

	c.observe("check_compatibility", subject, "latest", start, nil, map[string]interface{}{"is_compatible": result.IsCompatible})
	return result.IsCompatible, nil
}

// call performs one logical request, retrying retryable failures with exponential backoff.
func (c *Client) call(ctx context.Context, op, subject, method, path string, payload, out interface{}) error {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	retrying := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxRetries)), ctx) //nolint:gosec

	return backoff.RetryNotify(func() error {
		err := c.roundTrip(ctx, op, subject, method, path, body, out)
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, retrying, func(err error, wait time.Duration) {
		c.logWarn(ctx, "schema registry request failed, retrying", map[string]interface{}{
			"operation": op,
			"subject":   subject,
			"error":     err.Error(),
			"wait":      wait.String(),
		})
	})
}

func (c *Client) roundTrip(ctx context.Context, op, subject, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	req.Header.Set("Accept", contentType)
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec
	if err != nil {
		return &SchemaRegistryError{Op: op, Subject: subject, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(op, subject, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &SchemaRegistryError{Op: op, Subject: subject, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

func statusError(op, subject string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var body struct {
		ErrorCode int    `json:"error_code"`
		Message   string `json:"message"`
	}
	_ = json.Unmarshal(raw, &body)
	if body.Message == "" {
		body.Message = strings.TrimSpace(string(raw))
	}

	cause := errors.New(body.Message)
	if resp.StatusCode == http.StatusNotFound {
		switch body.ErrorCode {
		case errorCodeSchemaNotFound, errorCodeVersionNotFound:
			cause = fmt.Errorf("%w: %s", ErrSchemaNotFound, body.Message)
		case errorCodeSubjectNotFound:
			cause = fmt.Errorf("%w: %s", ErrSubjectNotFound, body.Message)
		default:
			if subject == "" {
				cause = fmt.Errorf("%w: %s", ErrSchemaNotFound, body.Message)
			} else {
				cause = fmt.Errorf("%w: %s", ErrSubjectNotFound, body.Message)
			}
		}
	}

	return &SchemaRegistryError{Op: op, Subject: subject, StatusCode: resp.StatusCode, Err: cause}
}

func (c *Client) cacheSchema(id int, schema string) {
	c.schemaCacheMutex.Lock()
	c.schemaCache[id] = schema
	c.schemaCacheMutex.Unlock()
}

func subjectPath(subject string) string {
	return "/subjects/" + url.PathEscape(subject)
}

func cacheKey(subject, schema, schemaType string) string {
	return subject + ":" + normalizeType(schemaType) + ":" + schema
}

func normalizeType(schemaType string) string {
	if schemaType == "" {
		return SchemaTypeAvro
	}
	return strings.ToUpper(schemaType)
}

func schemaPayload(schema, schemaType string) map[string]interface{} {
	payload := map[string]interface{}{"schema": schema}
	if t := normalizeType(schemaType); t != SchemaTypeAvro {
		payload["schemaType"] = t
	}
	return payload
}

func (c *Client) logInfo(ctx context.Context, msg string, fields map[string]interface{}) {
	if c.logger != nil {
		c.logger.InfoWithContext(ctx, msg, nil, fields)
	}
}

func (c *Client) logWarn(ctx context.Context, msg string, fields map[string]interface{}) {
	if c.logger != nil {
		c.logger.WarnWithContext(ctx, msg, nil, fields)
	}
}

package testutil

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/net/http2"

	"example.com/assethttp/internal/app"
	"example.com/assethttp/internal/config"
	"example.com/assethttp/internal/logger"
)

// TestRequest models an HTTP request for E2E testing.
type TestRequest struct {
	Method  string
	Path    string // Should include query string if any, e.g., "/path?query=value"
	Headers http.Header
	Body    []byte
}

// HeaderMatcher defines a way to match headers.
type HeaderMatcher map[string]string // Key: header name, Value: expected value (exact match)

// BodyMatcher defines a way to match the response body.
type BodyMatcher interface {
	Match(body []byte) (bool, string) // Returns match status and a description of mismatch
}

// ExactBodyMatcher matches the body exactly.
type ExactBodyMatcher struct {
	ExpectedBody []byte
}

// Match implements BodyMatcher for ExactBodyMatcher.
func (m *ExactBodyMatcher) Match(body []byte) (bool, string) {
	if bytes.Equal(m.ExpectedBody, body) {
		return true, ""
	}
	return false, fmt.Sprintf("bodies do not match exactly. Expected: %q, Got: %q", string(m.ExpectedBody), string(body))
}

// StringContainsBodyMatcher checks if the body contains a specific substring.
type StringContainsBodyMatcher struct {
	Substring string
}

// Match implements BodyMatcher for StringContainsBodyMatcher.
func (m *StringContainsBodyMatcher) Match(body []byte) (bool, string) {
	if bytes.Contains(body, []byte(m.Substring)) {
		return true, ""
	}
	return false, fmt.Sprintf("body does not contain substring: %q. Body: %q", m.Substring, string(body))
}

// JSONListBodyMatcher decodes the body as a JSON array of strings and
// compares it element by element, order included.
type JSONListBodyMatcher struct {
	Expected []string
}

// Match implements BodyMatcher for JSONListBodyMatcher.
func (m *JSONListBodyMatcher) Match(body []byte) (bool, string) {
	var got []string
	if err := json.Unmarshal(body, &got); err != nil {
		return false, fmt.Sprintf("body is not a JSON string array: %v. Body: %q", err, string(body))
	}
	if got == nil {
		return false, fmt.Sprintf("body decoded to null, expected an array. Body: %q", string(body))
	}
	if len(got) != len(m.Expected) {
		return false, fmt.Sprintf("list length mismatch. Expected: %v, Got: %v", m.Expected, got)
	}
	for i := range got {
		if got[i] != m.Expected[i] {
			return false, fmt.Sprintf("list mismatch at index %d. Expected: %v, Got: %v", i, m.Expected, got)
		}
	}
	return true, ""
}

// ExpectedResponse models the expected outcome of an HTTP request.
type ExpectedResponse struct {
	StatusCode   int
	Headers      HeaderMatcher // Optional: map of headers to expected values
	BodyMatcher  BodyMatcher   // Optional: for matching the response body
	ExpectNoBody bool          // If true, BodyMatcher is ignored and body must be empty
}

// ActualResponse stores the actual outcome of an HTTP request from a client.
type ActualResponse struct {
	StatusCode int
	Proto      string
	Headers    http.Header
	Body       []byte
	Error      error // Any error that occurred during the request execution
}

// Verify compares actual against expected and returns one line per mismatch.
func Verify(expected ExpectedResponse, actual ActualResponse) []string {
	var problems []string
	if actual.Error != nil {
		return []string{fmt.Sprintf("request failed: %v", actual.Error)}
	}
	if expected.StatusCode != 0 && actual.StatusCode != expected.StatusCode {
		problems = append(problems, fmt.Sprintf("status: expected %d, got %d", expected.StatusCode, actual.StatusCode))
	}
	for name, want := range expected.Headers {
		if got := actual.Headers.Get(name); got != want {
			problems = append(problems, fmt.Sprintf("header %s: expected %q, got %q", name, want, got))
		}
	}
	if expected.ExpectNoBody {
		if len(actual.Body) != 0 {
			problems = append(problems, fmt.Sprintf("expected empty body, got %q", string(actual.Body)))
		}
	} else if expected.BodyMatcher != nil {
		if ok, why := expected.BodyMatcher.Match(actual.Body); !ok {
			problems = append(problems, why)
		}
	}
	return problems
}

// SyncBuffer is a bytes.Buffer safe for the concurrent writes of the error
// and access logs.
type SyncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *SyncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *SyncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// ServerInstance encapsulates a server assembled and running in this process.
type ServerInstance struct {
	Config    *config.Config // The configuration after defaults were applied
	Address   string         // The bound address, e.g. "127.0.0.1:54321"
	ErrorLog  *SyncBuffer    // Captured error log (JSON lines)
	AccessLog *SyncBuffer    // Captured access log (JSON lines)

	mu           sync.Mutex
	cleanupFuncs []func() error
	cancel       context.CancelFunc
	done         chan error
}

// GetFreePort asks the kernel for a free open port that is ready to use.
func GetFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// WriteTempConfig creates a temporary configuration file in JSON or TOML format.
// It returns the path to the file and a cleanup function to remove it.
func WriteTempConfig(configData interface{}, format string) (filePath string, cleanupFunc func(), err error) {
	var data []byte
	var ext string

	switch strings.ToLower(format) {
	case "json":
		data, err = json.MarshalIndent(configData, "", "  ")
		ext = ".json"
	case "toml":
		buf := new(bytes.Buffer)
		if err = toml.NewEncoder(buf).Encode(configData); err == nil {
			data = buf.Bytes()
		}
		ext = ".toml"
	default:
		err = fmt.Errorf("unsupported config format: %s", format)
	}

	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal config data to %s: %w", format, err)
	}

	tmpFile, err := os.CreateTemp("", "testconfig-*"+ext)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp config file: %w", err)
	}

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return "", nil, fmt.Errorf("failed to write to temp config file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpFile.Name())
		return "", nil, fmt.Errorf("failed to close temp config file: %w", err)
	}

	filePath = tmpFile.Name()
	cleanupFunc = func() { os.Remove(filePath) }
	return filePath, cleanupFunc, nil
}

// WriteTree creates files (slash-separated relative path -> content) below root.
func WriteTree(root string, files map[string]string) error {
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("mkdir for %s: %w", name, err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

// StartTestServer loads configFile exactly as cmd/server does, assembles the
// server with logs captured in memory and waits until it is listening.
func StartTestServer(configFile string) (*ServerInstance, error) {
	if configFile == "" {
		return nil, fmt.Errorf("configFile cannot be empty")
	}
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", configFile, err)
	}

	instance := &ServerInstance{
		Config:    cfg,
		ErrorLog:  &SyncBuffer{},
		AccessLog: &SyncBuffer{},
		done:      make(chan error, 1),
	}

	var accessOut io.Writer
	if cfg.Logging.AccessLog.Enabled != nil && *cfg.Logging.AccessLog.Enabled {
		accessOut = instance.AccessLog
	}
	lg, err := logger.New(cfg.Logging, instance.ErrorLog, accessOut)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	a, err := app.New(cfg, lg)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	instance.cancel = cancel
	go func() { instance.done <- a.Run(ctx) }()

	select {
	case <-a.Ready():
		instance.Address = a.Addr().String()
		return instance, nil
	case err := <-instance.done:
		cancel()
		return nil, fmt.Errorf("server exited during startup: %v. Logs captured:\n%s", err, instance.ErrorLog.String())
	case <-time.After(10 * time.Second):
		cancel()
		return nil, fmt.Errorf("server not ready after 10s. Logs captured:\n%s", instance.ErrorLog.String())
	}
}

// AddCleanupFunc adds a function to be called when the server instance is stopped.
func (s *ServerInstance) AddCleanupFunc(f func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupFuncs = append(s.cleanupFuncs, f)
}

// Stop cancels the server context, waits for graceful shutdown and runs the
// registered cleanup functions.
func (s *ServerInstance) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []string
	if s.cancel != nil {
		s.cancel()
		select {
		case err := <-s.done:
			if err != nil {
				errs = append(errs, fmt.Sprintf("server run: %v", err))
			}
		case <-time.After(10 * time.Second):
			errs = append(errs, "server did not stop within 10s")
		}
		s.cancel = nil
	}
	for i := len(s.cleanupFuncs) - 1; i >= 0; i-- {
		if err := s.cleanupFuncs[i](); err != nil {
			errs = append(errs, err.Error())
		}
	}
	s.cleanupFuncs = nil

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// HTTPClientType identifies the type of HTTP client used for a test.
type HTTPClientType string

const (
	GoHTTPClient HTTPClientType = "go_http_client"
	H2CClient    HTTPClientType = "h2c_client"
)

// HTTPTestClient defines an interface for making HTTP requests for testing purposes.
type HTTPTestClient interface {
	Do(serverAddr string, request TestRequest) (ActualResponse, error)
	Type() HTTPClientType
}

// GoClient sends requests with net/http over HTTP/1.1 or, for H2CClient,
// with HTTP/2 prior knowledge over cleartext.
type GoClient struct {
	client *http.Client
	kind   HTTPClientType
}

// NewGoHTTPClient returns an HTTP/1.1 client.
func NewGoHTTPClient() *GoClient {
	return &GoClient{
		client: &http.Client{
			Timeout: 10 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		kind: GoHTTPClient,
	}
}

// NewH2CClient returns a client that speaks HTTP/2 without TLS.
func NewH2CClient() *GoClient {
	tr := &http2.Transport{
		AllowHTTP: true,
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
	}
	return &GoClient{
		client: &http.Client{
			Transport: tr,
			Timeout:   10 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		kind: H2CClient,
	}
}

// Type returns the client type.
func (c *GoClient) Type() HTTPClientType {
	return c.kind
}

// Do executes request against serverAddr (host:port).
func (c *GoClient) Do(serverAddr string, request TestRequest) (ActualResponse, error) {
	actualRes := ActualResponse{Headers: make(http.Header)}

	method := request.Method
	if method == "" {
		method = http.MethodGet
	}
	path := request.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var body io.Reader
	if len(request.Body) > 0 {
		body = bytes.NewReader(request.Body)
	}
	req, err := http.NewRequest(method, "http://"+serverAddr+path, body)
	if err != nil {
		actualRes.Error = fmt.Errorf("failed to build request: %w", err)
		return actualRes, actualRes.Error
	}
	for name, values := range request.Headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		actualRes.Error = fmt.Errorf("request %s %s failed: %w", method, path, err)
		return actualRes, actualRes.Error
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		actualRes.Error = fmt.Errorf("failed to read response body: %w", err)
		return actualRes, actualRes.Error
	}
	actualRes.StatusCode = resp.StatusCode
	actualRes.Proto = resp.Proto
	actualRes.Headers = resp.Header
	actualRes.Body = data
	return actualRes, nil
}

package delivery

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"basegraph.co/distributor/core/config"
)

const (
	TransportJSON  = "json"
	TransportTyped = "typed"

	hubEventIDField = "ceh_event_id"
	maxErrorBody    = 256
)

// HubResponse is a successful (2xx) Hub reply. HubEventID is empty when the
// body did not carry one.
type HubResponse struct {
	StatusCode int
	HubEventID string
}

// Transport posts one payload to the Hub. Non-2xx replies come back as *HTTPStatusError.
type Transport interface {
	Post(ctx context.Context, payload Payload) (*HubResponse, error)
}

// NewTransport picks the transport implementation by name.
func NewTransport(kind string, client *http.Client, endpoint string) (Transport, error) {
	switch kind {
	case TransportJSON, "":
		return &jsonTransport{client: client, endpoint: endpoint}, nil
	case TransportTyped:
		return &typedTransport{client: client, endpoint: endpoint}, nil
	default:
		return nil, fmt.Errorf("unknown hub transport %q", kind)
	}
}

// NewHTTPClient builds the Hub client with optional mutual TLS. The per-request
// deadline is enforced by the caller's context, not by http.Client.Timeout.
func NewHTTPClient(cfg config.HubConfig) (*http.Client, error) {
	tlsCfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.TLSSkipVerify, //nolint:gosec // opt-in for test environments
	}

	if cfg.TLSCertFile != "" || cfg.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading hub client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	if cfg.TLSCAFile != "" {
		pem, err := os.ReadFile(cfg.TLSCAFile)
		if err != nil {
			return nil, fmt.Errorf("reading hub CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.TLSCAFile)
		}
		tlsCfg.RootCAs = pool
	}

	maxIdle := cfg.MaxIdleConnsHost
	if maxIdle <= 0 {
		maxIdle = 50
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}).DialContext,
		TLSClientConfig:       tlsCfg,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          maxIdle * 2,
		MaxIdleConnsPerHost:   maxIdle,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	return &http.Client{Transport: transport}, nil
}

// jsonTransport decodes the reply into a generic map, tolerating empty bodies
// and a hub id sent as either a JSON number or string.
type jsonTransport struct {
	client   *http.Client
	endpoint string
}

func (t *jsonTransport) Post(ctx context.Context, payload Payload) (*HubResponse, error) {
	resp, err := post(ctx, t.client, t.endpoint, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp)
	}

	body := map[string]any{}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding hub response: %w", err)
	}

	return &HubResponse{StatusCode: resp.StatusCode, HubEventID: stringID(body[hubEventIDField])}, nil
}

// typedTransport decodes the reply into a fixed struct.
type typedTransport struct {
	client   *http.Client
	endpoint string
}

type typedResponse struct {
	CehEventID json.Number `json:"ceh_event_id"`
}

func (t *typedTransport) Post(ctx context.Context, payload Payload) (*HubResponse, error) {
	resp, err := post(ctx, t.client, t.endpoint, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp)
	}

	// An empty body decodes to a zero id, which the client records as NO_CEH_EVENT_ID.
	var body typedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding hub response: %w", err)
	}

	return &HubResponse{StatusCode: resp.StatusCode, HubEventID: body.CehEventID.String()}, nil
}

func post(ctx context.Context, client *http.Client, endpoint string, payload Payload) (*http.Response, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("building hub request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return client.Do(req)
}

func statusError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
}

func stringID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case json.Number:
		return id.String()
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(id)
	}
}

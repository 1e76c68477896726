// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package federation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/keystone-hs/keystone/lib/canonicaljson"
	"github.com/keystone-hs/keystone/lib/errkind"
	"github.com/keystone-hs/keystone/lib/netutil"
	"github.com/keystone-hs/keystone/lib/ref"
	"github.com/keystone-hs/keystone/lib/signing"
	"github.com/keystone-hs/keystone/lib/version"
)

// Scheme is the logical URI scheme for federation endpoints.
const Scheme = "matrix"

// DefaultTimeout bounds every outbound call unless Config.Timeout is
// set.
const DefaultTimeout = 30 * time.Second

// Config configures a Transport.
type Config struct {
	// Signer signs every request; its domain is the request origin.
	// Required.
	Signer signing.Signer

	// Resolver maps destinations to host and port. Defaults to
	// DefaultResolver.
	Resolver Resolver

	// HTTPClient sends the requests. Defaults to a client with
	// Timeout set.
	HTTPClient *http.Client

	// Timeout bounds each call, including rate-limit waits.
	Timeout time.Duration

	// WireScheme replaces matrix:// at send time. Defaults to "https".
	WireScheme string

	RateLimit  RateLimit
	Logger     *slog.Logger
	Registerer prometheus.Registerer
}

// Transport signs and sends federation requests. It is safe for
// concurrent use.
type Transport struct {
	signer     signing.Signer
	resolver   Resolver
	client     *http.Client
	timeout    time.Duration
	wireScheme string
	limiter    *destinationLimiter
	logger     *slog.Logger
	metrics    *metrics
}

// New builds a Transport.
func New(config Config) (*Transport, error) {
	if config.Signer == nil {
		return nil, errors.New("federation: Signer is required")
	}
	if config.Resolver == nil {
		config.Resolver = DefaultResolver{}
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: config.Timeout}
	}
	if config.WireScheme == "" {
		config.WireScheme = "https"
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	metrics, err := newMetrics(config.Registerer)
	if err != nil {
		return nil, fmt.Errorf("federation: %w", err)
	}
	return &Transport{
		signer:     config.Signer,
		resolver:   config.Resolver,
		client:     config.HTTPClient,
		timeout:    config.Timeout,
		wireScheme: config.WireScheme,
		limiter:    newDestinationLimiter(config.RateLimit),
		logger:     config.Logger,
		metrics:    metrics,
	}, nil
}

// Origin returns the server name requests are sent from.
func (t *Transport) Origin() ref.ServerName { return t.signer.Domain() }

// EndpointURI builds the matrix:// URI for an already escaped path on
// destination.
func EndpointURI(destination ref.ServerName, escapedPath string, query url.Values) string {
	uri := Scheme + "://" + destination.String() + escapedPath
	if len(query) > 0 {
		uri += "?" + query.Encode()
	}
	return uri
}

// Resolve turns a matrix:// URI into the wire URL and the destination
// it names. Other schemes fail with InvalidArgument.
func (t *Transport) Resolve(ctx context.Context, uri string) (*url.URL, ref.ServerName, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, ref.ServerName{}, fmt.Errorf("federation: parsing %q: %w", uri, errkind.InvalidArgument)
	}
	if parsed.Scheme != Scheme {
		return nil, ref.ServerName{}, fmt.Errorf("federation: unsupported scheme %q in %s: %w", parsed.Scheme, uri, errkind.InvalidArgument)
	}
	destination, err := ref.ParseServerName(parsed.Host)
	if err != nil {
		return nil, ref.ServerName{}, fmt.Errorf("federation: destination in %s: %w", uri, errkind.InvalidArgument)
	}
	host, port, err := t.resolver.Resolve(ctx, destination)
	if err != nil {
		return nil, ref.ServerName{}, &TransportError{Method: "RESOLVE", URI: uri, Err: err}
	}
	wire := *parsed
	wire.Scheme = t.wireScheme
	wire.Host = net.JoinHostPort(host, strconv.Itoa(port))
	return &wire, destination, nil
}

// Do sends a signed request to a matrix:// URI and returns the response
// body on 2xx. body is JSON-encoded when not nil. verb labels metrics
// and logs.
func (t *Transport) Do(ctx context.Context, verb, method, uri string, body any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	responseBody, err := t.do(ctx, method, uri, body)
	t.metrics.duration.WithLabelValues(verb).Observe(time.Since(start).Seconds())

	var remote *Error
	switch {
	case err == nil:
		t.metrics.requests.WithLabelValues(verb, outcomeOK).Inc()
		t.logger.Debug("federation request", "verb", verb, "method", method, "uri", uri, "duration", time.Since(start))
	case errors.As(err, &remote):
		t.metrics.requests.WithLabelValues(verb, outcomeRemote).Inc()
		t.logger.Info("federation request rejected", "verb", verb, "uri", uri, "status", remote.StatusCode, "errcode", remote.Code)
	default:
		t.metrics.requests.WithLabelValues(verb, outcomeTransport).Inc()
		t.logger.Info("federation request failed", "verb", verb, "uri", uri, "error", err)
	}
	return responseBody, err
}

func (t *Transport) do(ctx context.Context, method, uri string, body any) ([]byte, error) {
	wire, destination, err := t.Resolve(ctx, uri)
	if err != nil {
		return nil, err
	}

	var content any
	var bodyReader io.Reader
	if body != nil {
		encoded, err := canonicaljson.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("federation: encoding %s body: %w", uri, err)
		}
		bodyReader = bytes.NewReader(encoded)
		content = json.RawMessage(encoded)
	}

	auth, err := SignRequest(t.signer, method, wire.RequestURI(), destination, content)
	if err != nil {
		return nil, fmt.Errorf("federation: signing %s: %w", uri, err)
	}

	if err := t.limiter.wait(ctx, destination.String()); err != nil {
		return nil, &TransportError{Method: method, URI: uri, Err: err}
	}

	request, err := http.NewRequestWithContext(ctx, method, wire.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("federation: building request for %s: %w", uri, err)
	}
	request.Host = destination.String()
	request.Header.Set("Authorization", auth.String())
	request.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := t.client.Do(request)
	if err != nil {
		return nil, &TransportError{Method: method, URI: uri, Err: err}
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, &TransportError{Method: method, URI: uri, Err: err}
	}
	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	remote := &Error{Method: method, URI: uri, StatusCode: response.StatusCode, Body: responseBody}
	_ = json.Unmarshal(responseBody, remote)
	return nil, remote
}

// decodeJSON decodes a response body, keeping numbers as json.Number.
func decodeJSON(data []byte, v any) error {
	return netutil.DecodeResponse(bytes.NewReader(data), v)
}

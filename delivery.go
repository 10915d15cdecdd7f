package ddpush

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// DeliveryErrorKind classifies delivery failures
type DeliveryErrorKind int

const (
	// DeliveryInit means the request could not be built
	DeliveryInit DeliveryErrorKind = iota
	// DeliveryTransport covers network, TLS and timeout failures
	DeliveryTransport
	// DeliveryStatus means the endpoint answered with a non-success status
	DeliveryStatus
)

func (k DeliveryErrorKind) String() string {
	switch k {
	case DeliveryInit:
		return "init"
	case DeliveryTransport:
		return "transport"
	case DeliveryStatus:
		return "status"
	default:
		return "unknown"
	}
}

// DeliveryError describes a failed delivery. StatusCode is set for
// DeliveryStatus only.
type DeliveryError struct {
	Kind       DeliveryErrorKind
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	switch e.Kind {
	case DeliveryStatus:
		return fmt.Sprintf("HTTP api returned non-200 response code: %d", e.StatusCode)
	case DeliveryInit:
		return fmt.Sprintf("unable to initialize request: %v", e.Err)
	default:
		return fmt.Sprintf("error sending metrics: %v", e.Err)
	}
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsDeliveryError reports whether err is a DeliveryError of the given kind.
func IsDeliveryError(err error, kind DeliveryErrorKind) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Kind == kind
}

// Deliverer sends one encoded payload to one destination.
type Deliverer interface {
	Deliver(ctx context.Context, url string, payload []byte) (int, error)
}

// DeliveryClient posts payloads over HTTP(S). Connect and total timeouts are
// both bounded by the socket timeout.
type DeliveryClient struct {
	client *http.Client
}

// NewDeliveryClient creates a client with the given socket timeout.
// insecureSkipVerify disables certificate and hostname verification.
func NewDeliveryClient(timeout time.Duration, insecureSkipVerify bool) *DeliveryClient {
	dialer := &net.Dialer{Timeout: timeout}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: timeout,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: insecureSkipVerify, //nolint:gosec // opt-in, see Config.InsecureSkipVerify
		},
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
	}
	return &DeliveryClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}
}

// Deliver issues exactly one POST. Any of 200, 201 and 202 is success; the
// response body is drained without being kept.
func (c *DeliveryClient) Deliver(ctx context.Context, url string, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, &DeliveryError{Kind: DeliveryInit, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, &DeliveryError{Kind: DeliveryTransport, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		return resp.StatusCode, nil
	default:
		return resp.StatusCode, &DeliveryError{Kind: DeliveryStatus, StatusCode: resp.StatusCode}
	}
}

// CloseIdleConnections releases pooled connections
func (c *DeliveryClient) CloseIdleConnections() {
	c.client.CloseIdleConnections()
}

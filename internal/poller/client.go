package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/robofleet/fleetwatch/telemetry"
)

const maxResponseBodySize = 1 << 20 // 1MB

// connection pooling limits to prevent resource exhaustion under
// high-frequency motor polling
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// ErrorKind classifies a failed fetch.
type ErrorKind int

const (
	// ErrNetwork means the request never completed: connection refused,
	// DNS failure, timeout, or a truncated body.
	ErrNetwork ErrorKind = iota

	// ErrProtocol means the server answered with a non-success HTTP status.
	ErrProtocol

	// ErrDecode means the payload was not parseable or was missing the
	// expected top-level key for the requested fetch kind.
	ErrDecode
)

// String returns the kind's display name.
func (k ErrorKind) String() string {
	switch k {
	case ErrNetwork:
		return "network"
	case ErrProtocol:
		return "protocol"
	case ErrDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// FetchError is the error type returned by all Client fetch methods.
// Match it with errors.As to branch on [ErrorKind].
type FetchError struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// GeneralUpdate is the decoded result of a general-status fetch.
type GeneralUpdate struct {
	Connectivity map[string]bool
	RobotStatus  map[string]telemetry.StatusRecord
	DeviceStatus map[string]telemetry.DeviceRecord
	FetchedAt    time.Time
}

// MotorUpdate is the decoded result of a motor telemetry fetch.
type MotorUpdate struct {
	Connectivity map[string]bool
	Motors       map[string]telemetry.MotorRecord
	FetchedAt    time.Time
}

// statusPayload is the wire shape of /api/robot-status. Fields are raw so
// that an absent key can be told apart from an empty map: the fetch kind
// decides which keys are required.
type statusPayload struct {
	PingStatus   json.RawMessage `json:"ping_status"`
	RobotStatus  json.RawMessage `json:"robot_status"`
	DeviceStatus json.RawMessage `json:"cleaning_device_status"`
	MotorData    json.RawMessage `json:"motor_data"`
}

// Client fetches robot telemetry from the fleet API.
//
// Client uses per-request timeouts via context and appends a cache-busting
// timestamp parameter to every request so intermediaries can never serve a
// stale snapshot to the high-frequency loop.
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	now        func() time.Time // injectable for tests
}

// NewClient creates a fleet API [Client] for the given base URL.
//
// timeout bounds each individual fetch; zero means no per-request bound
// beyond the caller's context. The client pools connections with
// conservative limits suitable for continuous polling of a single host.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
		baseURL: baseURL,
		timeout: timeout,
		now:     time.Now,
	}
}

// FetchGeneral fetches the general fleet status: connectivity, per-robot
// status, and cleaning device status. Motor data is not requested.
func (c *Client) FetchGeneral(ctx context.Context) (*GeneralUpdate, error) {
	payload, fetchedAt, err := c.fetch(ctx, "general")
	if err != nil {
		return nil, err
	}

	// robot_status is the load-bearing key of a general response
	if payload.RobotStatus == nil {
		return nil, &FetchError{Kind: ErrDecode, Err: errors.New("payload missing robot_status")}
	}

	upd := &GeneralUpdate{FetchedAt: fetchedAt}
	if err := decodeField(payload.PingStatus, &upd.Connectivity); err != nil {
		return nil, err
	}
	if err := decodeField(payload.RobotStatus, &upd.RobotStatus); err != nil {
		return nil, err
	}
	if err := decodeField(payload.DeviceStatus, &upd.DeviceStatus); err != nil {
		return nil, err
	}
	if upd.Connectivity == nil {
		upd.Connectivity = map[string]bool{}
	}
	if upd.RobotStatus == nil {
		upd.RobotStatus = map[string]telemetry.StatusRecord{}
	}
	if upd.DeviceStatus == nil {
		upd.DeviceStatus = map[string]telemetry.DeviceRecord{}
	}
	return upd, nil
}

// FetchMotor fetches the motor-only response: connectivity plus per-robot
// motor readings.
func (c *Client) FetchMotor(ctx context.Context) (*MotorUpdate, error) {
	payload, fetchedAt, err := c.fetch(ctx, "motor")
	if err != nil {
		return nil, err
	}

	if payload.MotorData == nil {
		return nil, &FetchError{Kind: ErrDecode, Err: errors.New("payload missing motor_data")}
	}

	upd := &MotorUpdate{FetchedAt: fetchedAt}
	if err := decodeField(payload.PingStatus, &upd.Connectivity); err != nil {
		return nil, err
	}
	if err := decodeField(payload.MotorData, &upd.Motors); err != nil {
		return nil, err
	}
	if upd.Connectivity == nil {
		upd.Connectivity = map[string]bool{}
	}
	if upd.Motors == nil {
		upd.Motors = map[string]telemetry.MotorRecord{}
	}
	return upd, nil
}

// fetch performs the HTTP round trip and the first decode pass.
func (c *Client) fetch(ctx context.Context, kind string) (*statusPayload, time.Time, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	fetchedAt := c.now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.statusURL(kind, fetchedAt), nil)
	if err != nil {
		return nil, fetchedAt, &FetchError{Kind: ErrNetwork, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fetchedAt, &FetchError{Kind: ErrNetwork, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, fetchedAt, &FetchError{Kind: ErrNetwork, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fetchedAt, &FetchError{
			Kind: ErrProtocol,
			Err:  fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	var payload statusPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fetchedAt, &FetchError{Kind: ErrDecode, Err: err}
	}
	return &payload, fetchedAt, nil
}

// statusURL builds the /api/robot-status URL for a fetch kind, including
// the cache-busting timestamp parameter.
func (c *Client) statusURL(kind string, at time.Time) string {
	q := url.Values{}
	q.Set("type", kind)
	q.Set("_", strconv.FormatInt(at.UnixMilli(), 10))
	return c.baseURL + "/api/robot-status?" + q.Encode()
}

// decodeField unmarshals a present raw field into dst. Absent fields are
// left alone; the caller substitutes empty maps.
func decodeField(raw json.RawMessage, dst any) error {
	if raw == nil {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &FetchError{Kind: ErrDecode, Err: err}
	}
	return nil
}

// Close releases idle connections in the client's pool. The client remains
// usable afterwards; new connections are established as needed.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

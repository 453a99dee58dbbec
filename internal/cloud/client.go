package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/nerrad567/yarbo-bridge/internal/infrastructure/config"
)

const (
	// successCode is the envelope code of a successful API call.
	successCode = "00000"

	// maxResponseSize caps API and token response bodies (16MB; maps are large).
	maxResponseSize = 16 << 20

	// errorBodyLen caps response text quoted in errors.
	errorBodyLen = 300

	// cacheSize bounds each cache; keys are per serial.
	cacheSize = 64

	defaultTimeout = 15 * time.Second
)

// API paths.
const (
	pathDevices  = "/yarbo/robot-service/commonUser/userRobotBind/getUserRobotBindVos"
	pathMap      = "/yarbo/commonUser/getUploadMap"
	pathRaster   = "/yarbo/robot/rasterBackground/get"
	pathMessages = "/yarbo/msg/userDeviceMsg"
	pathFirmware = "/yarbo/commonUser/getLatestPubVersion"
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// envelope is the response wrapper of every API call.
type envelope struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client reads account data from the Yarbo cloud API.
//
// Responses are cached per endpoint with the TTLs from config. Invalidate
// drops every cache.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	base       string
	tokens     *TokenManager
	httpClient *http.Client

	devices  *expirable.LRU[string, []map[string]any]
	maps     *expirable.LRU[string, map[string]any]
	rasters  *expirable.LRU[string, any]
	messages *expirable.LRU[string, []any]
	firmware *expirable.LRU[string, any]

	logger Logger
}

// New creates a cloud API client.
//
// Parameters:
//   - cfg: Cloud settings (API base, credentials, cache TTLs)
//   - logger: Optional logger (may be nil)
//
// Returns:
//   - *Client: Ready client
//   - error: ErrNotConfigured if cloud access is disabled or has no credentials
func New(cfg config.CloudConfig, logger Logger) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrNotConfigured
	}
	if cfg.AccessToken == "" && cfg.RefreshToken == "" && (cfg.Email == "" || cfg.Password == "") {
		return nil, ErrNotConfigured
	}

	httpClient := &http.Client{Timeout: timeout(cfg.Timeout)}
	return &Client{
		base:       strings.TrimRight(cfg.APIBase, "/"),
		tokens:     NewTokenManager(cfg, httpClient, logger),
		httpClient: httpClient,
		devices:    expirable.NewLRU[string, []map[string]any](1, nil, ttl(cfg.Cache.Devices)),
		maps:       expirable.NewLRU[string, map[string]any](cacheSize, nil, ttl(cfg.Cache.Map)),
		rasters:    expirable.NewLRU[string, any](cacheSize, nil, ttl(cfg.Cache.Map)),
		messages:   expirable.NewLRU[string, []any](cacheSize, nil, ttl(cfg.Cache.Messages)),
		firmware:   expirable.NewLRU[string, any](1, nil, ttl(cfg.Cache.Firmware)),
		logger:     logger,
	}, nil
}

// GetDevices returns the robots bound to the account.
func (c *Client) GetDevices(ctx context.Context) ([]map[string]any, error) {
	if v, ok := c.devices.Get(""); ok {
		return v, nil
	}

	var data struct {
		DeviceList []map[string]any `json:"deviceList"`
	}
	if err := c.get(ctx, pathDevices, nil, &data); err != nil {
		return nil, err
	}
	if data.DeviceList == nil {
		data.DeviceList = []map[string]any{}
	}
	c.devices.Add("", data.DeviceList)
	return data.DeviceList, nil
}

// DetectSerial returns the serial number of the first bound robot.
func (c *Client) DetectSerial(ctx context.Context) (string, error) {
	devices, err := c.GetDevices(ctx)
	if err != nil {
		return "", err
	}
	for _, d := range devices {
		if sn, _ := d["serialNum"].(string); sn != "" {
			return sn, nil
		}
	}
	return "", ErrNoDevices
}

// GetMap returns the uploaded map of robot sn. The API returns the map as
// a JSON string inside the first mapList entry; an account without maps
// yields an empty object.
func (c *Client) GetMap(ctx context.Context, sn string) (map[string]any, error) {
	if v, ok := c.maps.Get(sn); ok {
		return v, nil
	}

	var data struct {
		MapList []struct {
			MapJSON string `json:"mapJson"`
		} `json:"mapList"`
	}
	if err := c.get(ctx, pathMap, url.Values{"sn": {sn}}, &data); err != nil {
		return nil, err
	}
	if len(data.MapList) == 0 {
		return map[string]any{}, nil
	}

	out := map[string]any{}
	if raw := data.MapList[0].MapJSON; raw != "" {
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return nil, fmt.Errorf("%w: decoding map: %w", ErrAPIError, err)
		}
	}
	c.maps.Add(sn, out)
	return out, nil
}

// GetRasterBackground returns the satellite background of robot sn's map.
func (c *Client) GetRasterBackground(ctx context.Context, sn string) (any, error) {
	if v, ok := c.rasters.Get(sn); ok {
		return v, nil
	}

	var data any
	if err := c.get(ctx, pathRaster, url.Values{"sn": {sn}}, &data); err != nil {
		return nil, err
	}
	c.rasters.Add(sn, data)
	return data, nil
}

// GetMessages returns the notification messages of robot sn, flattened
// across message groups.
func (c *Client) GetMessages(ctx context.Context, sn string) ([]any, error) {
	if v, ok := c.messages.Get(sn); ok {
		return v, nil
	}

	var data struct {
		DeviceMsg []struct {
			Msgs []any `json:"msgs"`
		} `json:"deviceMsg"`
	}
	if err := c.get(ctx, pathMessages, url.Values{"sn": {sn}}, &data); err != nil {
		return nil, err
	}

	msgs := []any{}
	for _, group := range data.DeviceMsg {
		msgs = append(msgs, group.Msgs...)
	}
	c.messages.Add(sn, msgs)
	return msgs, nil
}

// GetFirmware returns the latest published firmware versions.
func (c *Client) GetFirmware(ctx context.Context) (any, error) {
	if v, ok := c.firmware.Get(""); ok {
		return v, nil
	}

	var data any
	if err := c.get(ctx, pathFirmware, nil, &data); err != nil {
		return nil, err
	}
	c.firmware.Add("", data)
	return data, nil
}

// Invalidate empties every cache.
func (c *Client) Invalidate() {
	c.devices.Purge()
	c.maps.Purge()
	c.rasters.Purge()
	c.messages.Purge()
	c.firmware.Purge()
}

// get calls the API and decodes the envelope data into out. A 401 renews
// the token and retries once.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	status, body, err := c.do(ctx, target)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		c.tokens.Invalidate()
		if status, body, err = c.do(ctx, target); err != nil {
			return err
		}
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: %s: status %d: %s", ErrRequestFailed, path, status, truncate(body, errorBodyLen))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%w: %s: decoding response: %w", ErrRequestFailed, path, err)
	}
	if env.Code != successCode {
		msg := env.Message
		if msg == "" {
			msg = "API error"
		}
		return fmt.Errorf("%w: %s: %s (code %s)", ErrAPIError, path, msg, env.Code)
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: %s: decoding data: %w", ErrAPIError, path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, target string) (int, []byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: reading response: %w", ErrRequestFailed, err)
	}
	return resp.StatusCode, body, nil
}

// ttl converts a cache lifetime in seconds. Zero disables expiry in the
// LRU, so it is clamped to one second.
func ttl(seconds int) time.Duration {
	if seconds <= 0 {
		return time.Second
	}
	return time.Duration(seconds) * time.Second
}

func timeout(seconds int) time.Duration {
	if seconds <= 0 {
		return defaultTimeout
	}
	return time.Duration(seconds) * time.Second
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}

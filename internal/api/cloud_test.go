package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nerrad567/yarbo-bridge/internal/cloud"
)

const (
	testRefLat = 51.5
	testRefLon = -0.1
)

// mockCloud serves a map with a GPS reference and records the serial it
// was asked about.
type mockCloud struct {
	err         error
	raster      any
	lastSerial  string
	invalidated bool
}

func newMockCloud() *mockCloud {
	return &mockCloud{raster: map[string]any{"url": "https://tiles.example/bg.png"}}
}

func (c *mockCloud) GetDevices(context.Context) ([]map[string]any, error) {
	if c.err != nil {
		return nil, c.err
	}
	return []map[string]any{{"serialNum": "SN123"}}, nil
}

func (c *mockCloud) GetMap(_ context.Context, sn string) (map[string]any, error) {
	c.lastSerial = sn
	if c.err != nil {
		return nil, c.err
	}
	return map[string]any{
		"ref": map[string]any{
			"ref": map[string]any{"latitude": testRefLat, "longitude": testRefLon},
		},
	}, nil
}

func (c *mockCloud) GetRasterBackground(_ context.Context, sn string) (any, error) {
	c.lastSerial = sn
	return c.raster, c.err
}

func (c *mockCloud) GetMessages(_ context.Context, sn string) ([]any, error) {
	c.lastSerial = sn
	if c.err != nil {
		return nil, c.err
	}
	return []any{map[string]any{"msg": "Blade worn"}}, nil
}

func (c *mockCloud) GetFirmware(context.Context) (any, error) {
	return map[string]any{"version": "3.9.1"}, c.err
}

func (c *mockCloud) Invalidate() { c.invalidated = true }

// httptestBody runs one request and returns the trimmed response body.
func httptestBody(t *testing.T, srv *Server, method, target string) string {
	t.Helper()
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return strings.TrimSpace(w.Body.String())
}

// =============================================================================
// Cloud Route Tests
// =============================================================================

func TestCloud_NotConfigured(t *testing.T) {
	srv := testServer(t, newMockRobot(), nil, nil)

	paths := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/cloud/devices"},
		{http.MethodGet, "/api/v1/cloud/map"},
		{http.MethodGet, "/api/v1/cloud/raster"},
		{http.MethodGet, "/api/v1/cloud/messages"},
		{http.MethodGet, "/api/v1/cloud/firmware"},
		{http.MethodPost, "/api/v1/cloud/cache/clear"},
	}
	for _, p := range paths {
		w, resp := do(t, srv, p.method, p.path, "")
		if w.Code != http.StatusServiceUnavailable || resp["message"] != cloudUnavailable {
			t.Errorf("%s: got %d %v, want 503", p.path, w.Code, resp)
		}
	}
}

func TestCloud_SerialDefaultsToRobot(t *testing.T) {
	c := newMockCloud()
	srv := testServer(t, newMockRobot(), c, nil)

	do(t, srv, http.MethodGet, "/api/v1/cloud/messages", "")
	if c.lastSerial != "SN123" {
		t.Errorf("serial = %q, want robot serial", c.lastSerial)
	}

	do(t, srv, http.MethodGet, "/api/v1/cloud/map?sn=OTHER", "")
	if c.lastSerial != "OTHER" {
		t.Errorf("serial = %q, want OTHER", c.lastSerial)
	}
}

func TestCloud_Responses(t *testing.T) {
	srv := testServer(t, newMockRobot(), newMockCloud(), nil)

	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/cloud/devices", `[{"serialNum":"SN123"}]`},
		{"/api/v1/cloud/messages", `[{"msg":"Blade worn"}]`},
		{"/api/v1/cloud/firmware", `{"version":"3.9.1"}`},
		{"/api/v1/cloud/raster", `{"url":"https://tiles.example/bg.png"}`},
	}
	for _, tt := range tests {
		if got := httptestBody(t, srv, http.MethodGet, tt.path); got != tt.want {
			t.Errorf("%s = %s, want %s", tt.path, got, tt.want)
		}
	}
}

func TestCloud_NoRaster(t *testing.T) {
	c := newMockCloud()
	c.raster = nil
	srv := testServer(t, newMockRobot(), c, nil)

	w, _ := do(t, srv, http.MethodGet, "/api/v1/cloud/raster", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestCloud_ErrorMapping(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
	}{
		{cloud.ErrNotConfigured, http.StatusServiceUnavailable},
		{cloud.ErrNoDevices, http.StatusNotFound},
		{fmt.Errorf("%w: status 500", cloud.ErrRequestFailed), http.StatusBadGateway},
		{fmt.Errorf("%w: token expired (code A0230)", cloud.ErrAPIError), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			c := newMockCloud()
			c.err = tt.err
			srv := testServer(t, newMockRobot(), c, nil)

			w, _ := do(t, srv, http.MethodGet, "/api/v1/cloud/devices", "")
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestCloud_CacheClear(t *testing.T) {
	c := newMockCloud()
	srv := testServer(t, newMockRobot(), c, nil)

	w, resp := do(t, srv, http.MethodPost, "/api/v1/cloud/cache/clear", "")
	if w.Code != http.StatusOK || resp["message"] != "Cache cleared" || !c.invalidated {
		t.Errorf("clear = %d %v", w.Code, resp)
	}
}

func TestMapReference_ErrorMeansNoGPS(t *testing.T) {
	c := newMockCloud()
	c.err = cloud.ErrAPIError
	srv := testServer(t, newMockRobot(), c, nil)

	if _, _, ok := srv.mapReference(context.Background()); ok {
		t.Error("mapReference should fail when the cloud errors")
	}
}

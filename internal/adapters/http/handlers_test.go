package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	handler "github.com/samirrijal/streetblock/internal/adapters/http"
	"github.com/samirrijal/streetblock/internal/core/domain"
	"github.com/samirrijal/streetblock/internal/core/query"
	"github.com/samirrijal/streetblock/internal/core/usecases"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// ---- Mock Overpass client ----

type mockOverpass struct {
	mu      sync.Mutex
	calls   int
	queryFn func(ctx context.Context, endpoint domain.Endpoint, q string) (domain.FeatureCollection, error)
}

func (m *mockOverpass) Query(ctx context.Context, endpoint domain.Endpoint, q string) (domain.FeatureCollection, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.queryFn != nil {
		return m.queryFn(ctx, endpoint, q)
	}
	return domain.FeatureCollection{}, nil
}

type stubEvents struct{ connected bool }

func (s stubEvents) Connected() bool { return s.connected }

type stubUpstream map[domain.Endpoint]error

func (s stubUpstream) LastFailure(ep domain.Endpoint) error { return s[ep] }

// ---- Fixtures ----

func lineWay(id string, coords ...domain.Position) domain.Feature {
	return domain.Feature{ID: id, Geometry: domain.NewLineString(coords...)}
}

func pointNode(id string, lon, lat float64) domain.Feature {
	return domain.Feature{ID: id, Geometry: domain.NewPoint(domain.Position{lon, lat})}
}

var (
	grandWays = []domain.Feature{
		lineWay("way/1", domain.Position{-122.260, 37.809}, domain.Position{-122.259, 37.809}),
		lineWay("way/2", domain.Position{-122.259, 37.809}, domain.Position{-122.258, 37.809}),
		lineWay("way/3", domain.Position{-122.258, 37.809}, domain.Position{-122.257, 37.809}),
		lineWay("way/4", domain.Position{-122.257, 37.809}, domain.Position{-122.256, 37.809}),
	}
	grandNodes = []domain.Feature{
		pointNode("node/10", -122.259, 37.809),
		pointNode("node/11", -122.257, 37.809),
	}
)

const grandBody = `{
	"intersections": [
		{"streets": ["Grand Avenue", "Perkins Street"]},
		{"streets": ["Grand Avenue", "Bellevue Avenue"]}
	],
	"area": {"country": "USA", "state": "California", "city": "Oakland", "osm_id": "2833530"}
}`

func blockResponder(ways, nodes []domain.Feature) func(context.Context, domain.Endpoint, string) (domain.FeatureCollection, error) {
	return func(_ context.Context, _ domain.Endpoint, q string) (domain.FeatureCollection, error) {
		if strings.Contains(q, "(.ways;)") {
			return domain.FeatureCollection{Features: ways}, nil
		}
		return domain.FeatureCollection{Features: nodes}, nil
	}
}

// ---- Test helpers ----

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func makeDeps(client *mockOverpass, opts ...func(*handler.Dependencies)) *handler.Dependencies {
	sel, err := query.NewEndpointSelector([]domain.Endpoint{
		"https://a.overpass.test/api/interpreter",
		"https://b.overpass.test/api/interpreter",
	})
	if err != nil {
		panic(err)
	}
	health := query.NewEndpointHealth()
	exec := query.NewExecutor(sel, query.WithLogger(quietLogger), query.WithHooks(health.Hooks(query.Hooks{})))
	d := &handler.Dependencies{
		Upstream: health,
		Blocks:   usecases.NewBlockService(exec, client, nil, usecases.WithBlockLogger(quietLogger)),
		Features: usecases.NewFeatureService(exec, query.NewTiler(query.WithTilerLogger(quietLogger)), client,
			usecases.FeatureSettings{MaxCells: query.DefaultMaxCells}, quietLogger),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func post(t *testing.T, app *fiber.App, path, body string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, b
}

func decodeError(t *testing.T, body []byte) handler.APIError {
	t.Helper()
	var apiErr handler.APIError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		t.Fatalf("decode error body %s: %v", body, err)
	}
	return apiErr
}

// ---- Block handler tests ----

func TestResolveBlock_Success(t *testing.T) {
	app := setupApp(makeDeps(&mockOverpass{queryFn: blockResponder(grandWays, grandNodes)}))

	status, body := post(t, app, "/v1/blocks", grandBody)
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}

	var result struct {
		Block struct {
			ID           string       `json:"id"`
			WayIDs       []string     `json:"way_ids"`
			NodeIDs      []string     `json:"node_ids"`
			LengthMeters float64      `json:"length_meters"`
			Scope        domain.Scope `json:"scope"`
		} `json:"block"`
		GeoJSON domain.FeatureCollection `json:"geojson"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.Join(result.Block.WayIDs, ",") != "way/2,way/3" {
		t.Errorf("expected way/2,way/3, got %v", result.Block.WayIDs)
	}
	if len(result.Block.NodeIDs) != 2 {
		t.Errorf("expected 2 nodes, got %v", result.Block.NodeIDs)
	}
	if result.Block.Scope.AreaID != "3602833530" {
		t.Errorf("expected area id 3602833530, got %q", result.Block.Scope.AreaID)
	}
	if result.Block.LengthMeters <= 0 {
		t.Errorf("expected positive length, got %v", result.Block.LengthMeters)
	}
	if result.Block.ID == "" {
		t.Error("expected block id")
	}
	if result.GeoJSON.Len() != 4 {
		t.Errorf("expected 2 nodes + 2 ways in geojson, got %d", result.GeoJSON.Len())
	}
}

func TestResolveBlock_Validation(t *testing.T) {
	app := setupApp(makeDeps(&mockOverpass{}))

	tests := []struct {
		name string
		body string
		want string
	}{
		{"not json", `{`, "invalid request body"},
		{"one intersection", `{"intersections":[{"streets":["A Street","B Street"]}],"area":{"city":"Oakland"}}`, "intersections"},
		{"one street", `{"intersections":[{"streets":["A Street"]},{"streets":["A Street","C Street"]}],"area":{"city":"Oakland"}}`, "streets"},
		{"no area", `{"intersections":[{"streets":["A Street","B Street"]},{"streets":["A Street","C Street"]}]}`, "city"},
		{"bad osm id", `{"intersections":[{"streets":["A Street","B Street"]},{"streets":["A Street","C Street"]}],"area":{"osm_id":"abc"}}`, "osm_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := post(t, app, "/v1/blocks", tt.body)
			if status != 400 {
				t.Fatalf("expected 400, got %d: %s", status, body)
			}
			apiErr := decodeError(t, body)
			if apiErr.Code != "bad_request" {
				t.Errorf("expected bad_request, got %q", apiErr.Code)
			}
			if !strings.Contains(apiErr.Message, tt.want) {
				t.Errorf("expected message mentioning %q, got %q", tt.want, apiErr.Message)
			}
		})
	}
}

func TestResolveBlock_NoCommonStreet(t *testing.T) {
	client := &mockOverpass{}
	app := setupApp(makeDeps(client))

	status, body := post(t, app, "/v1/blocks",
		`{"intersections":[{"streets":["A Street","B Street"]},{"streets":["C Street","D Street"]}],"area":{"osm_id":"1"}}`)
	if status != 400 {
		t.Fatalf("expected 400, got %d: %s", status, body)
	}
	if client.calls != 0 {
		t.Errorf("expected no overpass calls, got %d", client.calls)
	}
}

func TestResolveBlock_Ambiguous(t *testing.T) {
	app := setupApp(makeDeps(&mockOverpass{queryFn: blockResponder(grandWays, grandNodes[:1])}))

	status, body := post(t, app, "/v1/blocks", grandBody)
	if status != 422 {
		t.Fatalf("expected 422, got %d: %s", status, body)
	}
	apiErr := decodeError(t, body)
	if apiErr.Code != "ambiguous_intersection" {
		t.Errorf("expected ambiguous_intersection, got %q", apiErr.Code)
	}
	attempts, ok := apiErr.Details.([]interface{})
	if !ok || len(attempts) != 1 {
		t.Errorf("expected one scope attempt in details, got %v", apiErr.Details)
	}
}

func TestResolveBlock_MalformedChain(t *testing.T) {
	gap := []domain.Feature{
		lineWay("way/1", domain.Position{-122.259, 37.809}, domain.Position{-122.258, 37.809}),
		lineWay("way/2", domain.Position{-122.250, 37.800}, domain.Position{-122.257, 37.809}),
	}
	app := setupApp(makeDeps(&mockOverpass{queryFn: blockResponder(gap, grandNodes)}))

	status, body := post(t, app, "/v1/blocks", grandBody)
	if status != 422 {
		t.Fatalf("expected 422, got %d: %s", status, body)
	}
	if code := decodeError(t, body).Code; code != "malformed_chain" {
		t.Errorf("expected malformed_chain, got %q", code)
	}
}

func TestResolveBlock_UpstreamExhausted(t *testing.T) {
	client := &mockOverpass{queryFn: func(ctx context.Context, ep domain.Endpoint, q string) (domain.FeatureCollection, error) {
		return domain.FeatureCollection{}, errors.New("504 gateway timeout")
	}}
	app := setupApp(makeDeps(client))

	status, body := post(t, app, "/v1/blocks", grandBody)
	if status != 502 {
		t.Fatalf("expected 502, got %d: %s", status, body)
	}
	apiErr := decodeError(t, body)
	if apiErr.Code != "upstream_exhausted" {
		t.Errorf("expected upstream_exhausted, got %q", apiErr.Code)
	}
	if client.calls != 2 {
		t.Errorf("expected one attempt per endpoint, got %d", client.calls)
	}
	if !strings.Contains(string(body), "a.overpass.test") || !strings.Contains(string(body), "b.overpass.test") {
		t.Errorf("expected both endpoints in details, got %s", body)
	}
}

func TestResolveBlock_RequestTimeout(t *testing.T) {
	client := &mockOverpass{queryFn: func(ctx context.Context, ep domain.Endpoint, q string) (domain.FeatureCollection, error) {
		select {
		case <-ctx.Done():
			return domain.FeatureCollection{}, ctx.Err()
		case <-time.After(500 * time.Millisecond):
			return domain.FeatureCollection{}, errors.New("too slow")
		}
	}}
	app := setupApp(makeDeps(client, func(d *handler.Dependencies) {
		d.RequestTimeout = 50 * time.Millisecond
	}))

	status, body := post(t, app, "/v1/blocks", grandBody)
	if status != 504 {
		t.Fatalf("expected 504, got %d: %s", status, body)
	}
	if code := decodeError(t, body).Code; code != "timeout" {
		t.Errorf("expected timeout, got %q", code)
	}
}

func TestLinkBlock_Success(t *testing.T) {
	app := setupApp(makeDeps(&mockOverpass{}))

	payload, _ := json.Marshal(map[string]interface{}{
		"ways":  []domain.Feature{grandWays[3], grandWays[1], grandWays[0], grandWays[2]},
		"nodes": grandNodes,
	})
	status, body := post(t, app, "/v1/blocks/link", string(payload))
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	var fc domain.FeatureCollection
	if err := json.Unmarshal(body, &fc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fc.Len() != 2 || fc.Features[0].ID != "way/2" || fc.Features[1].ID != "way/3" {
		t.Errorf("expected [way/2 way/3], got %+v", fc.Features)
	}
}

func TestLinkBlock_RequiresTwoNodes(t *testing.T) {
	app := setupApp(makeDeps(&mockOverpass{}))

	payload, _ := json.Marshal(map[string]interface{}{
		"ways":  grandWays,
		"nodes": grandNodes[:1],
	})
	status, body := post(t, app, "/v1/blocks/link", string(payload))
	if status != 400 {
		t.Fatalf("expected 400, got %d: %s", status, body)
	}
}

// ---- Feature handler tests ----

func TestFetchFeatures_Success(t *testing.T) {
	var seen string
	client := &mockOverpass{queryFn: func(ctx context.Context, ep domain.Endpoint, q string) (domain.FeatureCollection, error) {
		seen = q
		return domain.FeatureCollection{Features: grandWays[:2]}, nil
	}}
	app := setupApp(makeDeps(client))

	req := httptest.NewRequest("POST", "/v1/features", strings.NewReader(`{"bounds":[34.04,-118.24,34.06,-118.21],"kinds":["way"]}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/geo+json") {
		t.Errorf("expected geo+json content type, got %q", ct)
	}
	var fc domain.FeatureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fc.Len() != 2 {
		t.Errorf("expected 2 features, got %d", fc.Len())
	}
	if !strings.Contains(seen, "way[highway]") || strings.Contains(seen, "node[highway]") {
		t.Errorf("expected a way-only query, got %s", seen)
	}
}

func TestFetchFeatures_Validation(t *testing.T) {
	app := setupApp(makeDeps(&mockOverpass{}))

	tests := []struct {
		name string
		body string
	}{
		{"no region", `{}`},
		{"short bounds", `{"bounds":[1,2,3]}`},
		{"unknown kind", `{"bounds":[0,0,1,1],"kinds":["area"]}`},
		{"inverted bounds", `{"bounds":[1,1,0,0]}`},
		{"zero radius", `{"around":{"lat":43.26,"lon":-2.93,"radius_meters":0}}`},
		{"cell too small", `{"bounds":[37.80,-122.30,37.90,-122.20],"cell_size_km":0.01}`},
		{"too many cells", `{"bounds":[37.80,-122.30,37.90,-122.20],"cell_size_km":0.1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := post(t, app, "/v1/features", tt.body)
			if status != 400 {
				t.Errorf("expected 400, got %d: %s", status, body)
			}
		})
	}
}

// ---- Servers, health, readiness ----

func TestListServers(t *testing.T) {
	app := setupApp(makeDeps(&mockOverpass{}))

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/servers", nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var result struct {
		Servers []string `json:"servers"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if len(result.Servers) != 2 || result.Servers[0] != "https://a.overpass.test/api/interpreter" {
		t.Errorf("unexpected servers %v", result.Servers)
	}
}

func TestHealth_Returns200(t *testing.T) {
	app := setupApp(makeDeps(&mockOverpass{}))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/health", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	if result["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", result["status"])
	}
}

func TestReady(t *testing.T) {
	const (
		a = domain.Endpoint("https://a.overpass.test/api/interpreter")
		b = domain.Endpoint("https://b.overpass.test/api/interpreter")
	)
	tests := []struct {
		name     string
		events   handler.EventStatus
		upstream handler.UpstreamStatus
		want     int
	}{
		{"events disabled", nil, stubUpstream{}, 200},
		{"nats connected", stubEvents{connected: true}, stubUpstream{}, 200},
		{"nats down", stubEvents{connected: false}, stubUpstream{}, 503},
		{"upstream untracked", nil, nil, 200},
		{"one server failing", nil, stubUpstream{a: errors.New("429 too many requests")}, 200},
		{"every server failing", nil, stubUpstream{a: errors.New("429 too many requests"), b: errors.New("504 gateway timeout")}, 503},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := setupApp(makeDeps(&mockOverpass{}, func(d *handler.Dependencies) {
				d.Events = tt.events
				d.Upstream = tt.upstream
			}))
			resp, _ := app.Test(httptest.NewRequest("GET", "/v1/ready", nil), -1)
			if resp.StatusCode != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestReady_AfterUpstreamExhausted(t *testing.T) {
	client := &mockOverpass{queryFn: func(ctx context.Context, ep domain.Endpoint, q string) (domain.FeatureCollection, error) {
		return domain.FeatureCollection{}, errors.New("504 gateway timeout")
	}}
	app := setupApp(makeDeps(client))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/ready", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 before any attempt, got %d", resp.StatusCode)
	}

	if status, body := post(t, app, "/v1/blocks", grandBody); status != 502 {
		t.Fatalf("expected 502, got %d: %s", status, body)
	}

	resp, _ = app.Test(httptest.NewRequest("GET", "/v1/ready", nil), -1)
	if resp.StatusCode != 503 {
		t.Fatalf("expected 503 once every server failed, got %d", resp.StatusCode)
	}
	var result struct {
		Checks map[string]string `json:"checks"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if got := result.Checks["overpass"]; got != "all 2 servers failing" {
		t.Errorf("unexpected overpass check %q", got)
	}
}

func TestDocs(t *testing.T) {
	app := setupApp(makeDeps(&mockOverpass{}))

	get := func(path string) (int, string, []byte) {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil), -1)
		if err != nil {
			t.Fatalf("request %s failed: %v", path, err)
		}
		b, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, resp.Header.Get("Content-Type"), b
	}

	status, _, page := get("/docs")
	if status != 200 || !strings.Contains(string(page), "StreetBlock API reference") {
		t.Errorf("unexpected reference page (%d): %.80s", status, page)
	}

	status, ctype, yamlDoc := get("/docs/openapi.yaml")
	if status != 200 || ctype != "application/yaml" || !strings.HasPrefix(string(yamlDoc), "openapi: 3.0.3") {
		t.Errorf("unexpected yaml document (%d, %s): %.40s", status, ctype, yamlDoc)
	}

	status, _, jsonDoc := get("/docs/openapi.json")
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, jsonDoc)
	}
	var doc struct {
		Info  struct{ Title string } `json:"info"`
		Paths map[string]any         `json:"paths"`
	}
	if err := json.Unmarshal(jsonDoc, &doc); err != nil {
		t.Fatalf("decode json document: %v", err)
	}
	if doc.Info.Title != "StreetBlock API" {
		t.Errorf("unexpected title %q", doc.Info.Title)
	}
	if _, ok := doc.Paths["/v1/blocks"]; !ok {
		t.Error("expected /v1/blocks in the json document")
	}
}

func TestSecurityHeaders(t *testing.T) {
	app := setupApp(makeDeps(&mockOverpass{}))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/health", nil), -1)
	if got := resp.Header.Get("X-API-Version"); got != "1.0.0" {
		t.Errorf("expected X-API-Version 1.0.0, got %q", got)
	}
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("expected nosniff, got %q", got)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Error("expected a request id header")
	}
}

func TestRateLimit(t *testing.T) {
	app := setupApp(makeDeps(&mockOverpass{}, func(d *handler.Dependencies) {
		d.RateLimit = 2
	}))

	var last int
	for i := 0; i < 3; i++ {
		resp, _ := app.Test(httptest.NewRequest("GET", "/v1/servers", nil), -1)
		last = resp.StatusCode
	}
	if last != 429 {
		t.Errorf("expected 429 after the limit, got %d", last)
	}

	// Probes are not limited.
	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/health", nil), -1)
	if resp.StatusCode != 200 {
		t.Errorf("expected health to bypass the limiter, got %d", resp.StatusCode)
	}
}

// ---- GraphQL ----

func TestGraphQL_Block(t *testing.T) {
	app := setupApp(makeDeps(&mockOverpass{queryFn: blockResponder(grandWays, grandNodes)}))

	q := `{ block(intersections: [["Grand Avenue", "Perkins Street"], ["Grand Avenue", "Bellevue Avenue"]], osmId: "2833530") { wayIds nodeIds scope { areaId } geojson } }`
	payload, _ := json.Marshal(map[string]string{"query": q})
	status, body := post(t, app, "/graphql", string(payload))
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}

	var result struct {
		Data struct {
			Block struct {
				WayIDs  []string `json:"wayIds"`
				NodeIDs []string `json:"nodeIds"`
				Scope   struct {
					AreaID string `json:"areaId"`
				} `json:"scope"`
				GeoJSON string `json:"geojson"`
			} `json:"block"`
		} `json:"data"`
		Errors []interface{} `json:"errors"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if strings.Join(result.Data.Block.WayIDs, ",") != "way/2,way/3" {
		t.Errorf("expected way/2,way/3, got %v", result.Data.Block.WayIDs)
	}
	if result.Data.Block.Scope.AreaID != "3602833530" {
		t.Errorf("unexpected area id %q", result.Data.Block.Scope.AreaID)
	}
	if !strings.Contains(result.Data.Block.GeoJSON, `"FeatureCollection"`) {
		t.Errorf("expected geojson string, got %q", result.Data.Block.GeoJSON)
	}
}

func TestGraphQL_BlockError(t *testing.T) {
	app := setupApp(makeDeps(&mockOverpass{queryFn: blockResponder(grandWays, nil)}))

	q := `{ block(intersections: [["Grand Avenue", "Perkins Street"], ["Grand Avenue", "Bellevue Avenue"]], osmId: "2833530") { wayIds } }`
	payload, _ := json.Marshal(map[string]string{"query": q})
	_, body := post(t, app, "/graphql", string(payload))
	if !strings.Contains(string(body), "ambiguous intersection") {
		t.Errorf("expected ambiguous intersection error, got %s", body)
	}
}

func TestGraphQL_Servers(t *testing.T) {
	app := setupApp(makeDeps(&mockOverpass{}))

	payload, _ := json.Marshal(map[string]string{"query": `{ servers }`})
	status, body := post(t, app, "/graphql", string(payload))
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	if !strings.Contains(string(body), "b.overpass.test") {
		t.Errorf("expected servers in response, got %s", body)
	}
}

// TestAccessLogMiddleware verifies the access log passes responses through.
func TestAccessLogMiddleware(t *testing.T) {
	app := fiber.New()

	app.Use(handler.AccessLogMiddleware())

	app.Get("/test", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", "test-req-123")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "ok") {
		t.Errorf("expected response body to contain 'ok', got %s", string(body))
	}
}

func TestRequestIDLogMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("requestid", "req-42")
		return c.Next()
	})
	app.Use(handler.RequestIDLogMiddleware())

	var got string
	app.Get("/test", func(c *fiber.Ctx) error {
		got = handler.RequestIDFromCtx(c.UserContext())
		if handler.LoggerFromCtx(c.UserContext()) == nil {
			t.Error("expected a request logger")
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	if _, err := app.Test(httptest.NewRequest("GET", "/test", nil)); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if got != "req-42" {
		t.Errorf("expected req-42, got %q", got)
	}
}

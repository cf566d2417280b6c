package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/assethttp/e2e/testutil"
	"example.com/assethttp/internal/config"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

// gameTree is the asset layout every test server starts with.
var gameTree = map[string]string{
	"index.html":                          "<html>viewer</html>",
	"app.js":                              "start()",
	"list_unknown":                        "literal list_unknown",
	"overrides.json":                      `{"fog":false}`,
	"ocean.obj":                           "v 0 0 0",
	"skybox.png":                          "PNGSKY",
	"manifests/android_manifest.json":     `{"version":3}`,
	"manifests/all_hlod_manifest.json":    `{"tiles":[]}`,
	"game_data/secret.obj":                "top secret",
	"game_data/hlod/tile_b.obj":           "hlod b",
	"game_data/hlod/tile_a.obj":           "hlod a",
	"game_data/hlod/readme.txt":           "not listed",
	"game_data/hlod/nested/deep.obj":      "nested",
	"game_data/terrain/ground.obj":        "terrain",
	"game_data/textures/grass.png":        "PNGGRASS",
	"game_data/textures/grass.png.import": "import metadata",
}

// startServer writes the game tree and a config anchored at it in the given
// format, then starts the assembled server.
func startServer(t *testing.T, format string, mutate func(*config.Config)) *testutil.ServerInstance {
	t.Helper()
	base := t.TempDir()
	if err := testutil.WriteTree(base, gameTree); err != nil {
		t.Fatalf("Failed to write game tree: %v", err)
	}

	cfg := config.Config{
		Server: &config.ServerConfig{
			Address:                 strPtr("127.0.0.1:0"),
			BaseDir:                 strPtr(base),
			GracefulShutdownTimeout: strPtr("2s"),
		},
		Logging: &config.LoggingConfig{
			LogLevel:  config.LogLevelDebug,
			AccessLog: &config.AccessLogConfig{Enabled: boolPtr(true), Target: strPtr("stdout"), Format: "json"},
			ErrorLog:  &config.ErrorLogConfig{Target: strPtr("stderr")},
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	path, cleanup, err := testutil.WriteTempConfig(cfg, format)
	if err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	instance, err := testutil.StartTestServer(path)
	if err != nil {
		cleanup()
		t.Fatalf("Failed to start server: %v", err)
	}
	instance.AddCleanupFunc(func() error {
		cleanup()
		return nil
	})
	t.Cleanup(func() {
		if err := instance.Stop(); err != nil {
			t.Errorf("Error stopping server: %v", err)
		}
	})
	return instance
}

type testCase struct {
	name     string
	request  testutil.TestRequest
	expected testutil.ExpectedResponse
}

func runCases(t *testing.T, instance *testutil.ServerInstance, client testutil.HTTPTestClient, cases []testCase) {
	t.Helper()
	for _, tc := range cases {
		t.Run(string(client.Type())+"/"+tc.name, func(t *testing.T) {
			actual, _ := client.Do(instance.Address, tc.request)
			for _, problem := range testutil.Verify(tc.expected, actual) {
				t.Errorf("%s %s: %s", tc.request.Method, tc.request.Path, problem)
			}
		})
	}
}

func assetSurfaceCases() []testCase {
	fileHeaders := func(contentType string) testutil.HeaderMatcher {
		return testutil.HeaderMatcher{
			"Content-Type":                contentType,
			"Cache-Control":               "public, max-age=3600",
			"Access-Control-Allow-Origin": "*",
		}
	}
	jsonHeaders := testutil.HeaderMatcher{
		"Content-Type":                "application/json",
		"Access-Control-Allow-Origin": "*",
	}
	notFound := testutil.ExpectedResponse{
		StatusCode:   http.StatusNotFound,
		Headers:      testutil.HeaderMatcher{"Access-Control-Allow-Origin": "*"},
		ExpectNoBody: true,
	}
	get := func(path string) testutil.TestRequest {
		return testutil.TestRequest{Method: http.MethodGet, Path: path}
	}

	return []testCase{
		{"singleton manifest", get("/manifest"), testutil.ExpectedResponse{
			StatusCode:  http.StatusOK,
			Headers:     fileHeaders("application/json"),
			BodyMatcher: &testutil.ExactBodyMatcher{ExpectedBody: []byte(`{"version":3}`)},
		}},
		{"singleton all_hlod_manifest", get("/all_hlod_manifest"), testutil.ExpectedResponse{
			StatusCode:  http.StatusOK,
			BodyMatcher: &testutil.ExactBodyMatcher{ExpectedBody: []byte(`{"tiles":[]}`)},
		}},
		{"singleton ocean.obj", get("/ocean.obj"), testutil.ExpectedResponse{
			StatusCode:  http.StatusOK,
			Headers:     fileHeaders("model/obj"),
			BodyMatcher: &testutil.ExactBodyMatcher{ExpectedBody: []byte("v 0 0 0")},
		}},
		{"singleton skybox.png", get("/skybox.png"), testutil.ExpectedResponse{
			StatusCode: http.StatusOK,
			Headers:    fileHeaders("image/png"),
		}},
		{"singleton missing file", get("/ocean.glb"), notFound},
		{"list hlod", get("/list_hlod"), testutil.ExpectedResponse{
			StatusCode:  http.StatusOK,
			Headers:     jsonHeaders,
			BodyMatcher: &testutil.JSONListBodyMatcher{Expected: []string{"tile_a.obj", "tile_b.obj"}},
		}},
		{"list textures excludes look-alike suffix", get("/list_textures"), testutil.ExpectedResponse{
			StatusCode:  http.StatusOK,
			BodyMatcher: &testutil.JSONListBodyMatcher{Expected: []string{"grass.png"}},
		}},
		{"list missing directory", get("/list_hlod_all"), testutil.ExpectedResponse{
			StatusCode:  http.StatusOK,
			Headers:     jsonHeaders,
			BodyMatcher: &testutil.ExactBodyMatcher{ExpectedBody: []byte("[]")},
		}},
		{"list unknown falls through to static file", get("/list_unknown"), testutil.ExpectedResponse{
			StatusCode:  http.StatusOK,
			BodyMatcher: &testutil.ExactBodyMatcher{ExpectedBody: []byte("literal list_unknown")},
		}},
		{"asset hlod", get("/hlod/tile_a.obj"), testutil.ExpectedResponse{
			StatusCode:  http.StatusOK,
			Headers:     fileHeaders("model/obj"),
			BodyMatcher: &testutil.ExactBodyMatcher{ExpectedBody: []byte("hlod a")},
		}},
		{"asset nested", get("/hlod/nested/deep.obj"), testutil.ExpectedResponse{
			StatusCode:  http.StatusOK,
			BodyMatcher: &testutil.ExactBodyMatcher{ExpectedBody: []byte("nested")},
		}},
		{"asset texture", get("/textures/grass.png"), testutil.ExpectedResponse{
			StatusCode: http.StatusOK,
			Headers:    fileHeaders("image/png"),
		}},
		{"asset missing", get("/terrain/nope.obj"), notFound},
		{"asset root directory", get("/hlod/"), notFound},
		{"asset traversal encoded", get("/hlod/..%2f..%2fsecret.obj"), notFound},
		{"asset traversal to sibling root", get("/hlod/..%2fterrain%2fground.obj"), testutil.ExpectedResponse{
			StatusCode: http.StatusNotFound,
		}},
		{"default document", get("/"), testutil.ExpectedResponse{
			StatusCode:  http.StatusOK,
			Headers:     testutil.HeaderMatcher{"Access-Control-Allow-Origin": "*"},
			BodyMatcher: &testutil.ExactBodyMatcher{ExpectedBody: []byte("<html>viewer</html>")},
		}},
		{"static directory listing", get("/game_data/"), testutil.ExpectedResponse{
			StatusCode:  http.StatusOK,
			BodyMatcher: &testutil.StringContainsBodyMatcher{Substring: "secret.obj"},
		}},
		{"static file", get("/app.js"), testutil.ExpectedResponse{
			StatusCode:  http.StatusOK,
			BodyMatcher: &testutil.ExactBodyMatcher{ExpectedBody: []byte("start()")},
		}},
		{"static missing", get("/missing.html"), testutil.ExpectedResponse{
			StatusCode: http.StatusNotFound,
			Headers:    testutil.HeaderMatcher{"Access-Control-Allow-Origin": "*"},
		}},
		{"post goes to fallback", testutil.TestRequest{Method: http.MethodPost, Path: "/manifest", Body: []byte("x")}, testutil.ExpectedResponse{
			StatusCode:  http.StatusMethodNotAllowed,
			Headers:     testutil.HeaderMatcher{"Allow": "GET, HEAD, OPTIONS", "Access-Control-Allow-Origin": "*"},
			BodyMatcher: &testutil.StringContainsBodyMatcher{Substring: "Method Not Allowed"},
		}},
		{"options goes to fallback", testutil.TestRequest{Method: http.MethodOptions, Path: "/hlod/tile_a.obj"}, testutil.ExpectedResponse{
			StatusCode:   http.StatusNoContent,
			Headers:      testutil.HeaderMatcher{"Allow": "GET, HEAD, OPTIONS", "Access-Control-Allow-Origin": "*"},
			ExpectNoBody: true,
		}},
	}
}

func TestAssetSurface_TOMLConfig_HTTP1(t *testing.T) {
	instance := startServer(t, "toml", nil)
	runCases(t, instance, testutil.NewGoHTTPClient(), assetSurfaceCases())
}

func TestAssetSurface_JSONConfig_H2C(t *testing.T) {
	instance := startServer(t, "json", nil)
	client := testutil.NewH2CClient()
	runCases(t, instance, client, assetSurfaceCases())

	actual, err := client.Do(instance.Address, testutil.TestRequest{Path: "/manifest"})
	require.NoError(t, err)
	require.Equal(t, "HTTP/2.0", actual.Proto)
}

func TestListing_ReflectsFilesystemChanges(t *testing.T) {
	instance := startServer(t, "toml", nil)
	client := testutil.NewGoHTTPClient()
	terrain := filepath.Join(*instance.Config.Server.BaseDir, "game_data", "terrain")

	list := func() []string {
		t.Helper()
		actual, err := client.Do(instance.Address, testutil.TestRequest{Path: "/list_terrain"})
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, actual.StatusCode)
		var names []string
		require.NoError(t, json.Unmarshal(actual.Body, &names))
		return names
	}

	require.Equal(t, []string{"ground.obj"}, list())
	require.NoError(t, os.WriteFile(filepath.Join(terrain, "coast.obj"), []byte("c"), 0o644))
	require.Equal(t, []string{"coast.obj", "ground.obj"}, list())
	require.NoError(t, os.Remove(filepath.Join(terrain, "ground.obj")))
	require.Equal(t, []string{"coast.obj"}, list())
}

func TestCustomRoutes(t *testing.T) {
	instance := startServer(t, "toml", func(cfg *config.Config) {
		cfg.Assets = []config.AssetRouteConfig{
			{Name: "tiles", Dir: "game_data/hlod", Extension: ".obj", ContentType: "model/obj"},
		}
		cfg.Singletons = []config.SingletonRouteConfig{
			{Path: "/tiles/tile_a.obj", File: "overrides.json", ContentType: "application/json"},
		}
	})
	client := testutil.NewGoHTTPClient()

	runCases(t, instance, client, []testCase{
		{"custom list", testutil.TestRequest{Path: "/list_tiles"}, testutil.ExpectedResponse{
			StatusCode:  http.StatusOK,
			BodyMatcher: &testutil.JSONListBodyMatcher{Expected: []string{"tile_a.obj", "tile_b.obj"}},
		}},
		{"singleton shadows asset prefix", testutil.TestRequest{Path: "/tiles/tile_a.obj"}, testutil.ExpectedResponse{
			StatusCode:  http.StatusOK,
			Headers:     testutil.HeaderMatcher{"Content-Type": "application/json"},
			BodyMatcher: &testutil.ExactBodyMatcher{ExpectedBody: []byte(`{"fog":false}`)},
		}},
		{"custom asset", testutil.TestRequest{Path: "/tiles/tile_b.obj"}, testutil.ExpectedResponse{
			StatusCode:  http.StatusOK,
			BodyMatcher: &testutil.ExactBodyMatcher{ExpectedBody: []byte("hlod b")},
		}},
		{"default routes replaced", testutil.TestRequest{Path: "/list_hlod"}, testutil.ExpectedResponse{
			StatusCode: http.StatusNotFound,
		}},
	})
}

func TestAccessLog_SkipsNotFound(t *testing.T) {
	instance := startServer(t, "toml", nil)
	client := testutil.NewGoHTTPClient()

	for _, path := range []string{"/hlod/tile_a.obj", "/hlod/missing.obj", "/hlod/..%2f..%2fsecret.obj", "/list_hlod"} {
		if _, err := client.Do(instance.Address, testutil.TestRequest{Path: path}); err != nil {
			t.Fatalf("request %s failed: %v", path, err)
		}
	}
	// Stop flushes in-flight handlers before the log is inspected.
	require.NoError(t, instance.Stop())

	var statuses []float64
	var uris []string
	for _, line := range strings.Split(strings.TrimSpace(instance.AccessLog.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		statuses = append(statuses, entry["status"].(float64))
		uris = append(uris, entry["uri"].(string))
	}
	require.Equal(t, []float64{200, 200}, statuses)
	require.Equal(t, []string{"/hlod/tile_a.obj", "/list_hlod"}, uris)

	errLog := instance.ErrorLog.String()
	require.Contains(t, errLog, "Serving game assets")
	require.Contains(t, errLog, "hlod: 2 | terrain: 1 | hlod_all: 0 | textures: 1")
	require.Contains(t, errLog, "Asset path rejected")
}

func TestFixedPortAddress(t *testing.T) {
	port, err := testutil.GetFreePort()
	if err != nil {
		t.Fatalf("Failed to get a free port: %v", err)
	}
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	instance := startServer(t, "json", func(cfg *config.Config) {
		cfg.Server.Address = strPtr(addr)
		cfg.Server.EnableH2C = boolPtr(false)
	})
	require.Equal(t, addr, instance.Address)

	client := testutil.NewGoHTTPClient()
	runCases(t, instance, client, []testCase{
		{"manifest on fixed port", testutil.TestRequest{Path: "/manifest"}, testutil.ExpectedResponse{
			StatusCode:  http.StatusOK,
			BodyMatcher: &testutil.StringContainsBodyMatcher{Substring: `"version"`},
		}},
	})

	_, err = testutil.NewH2CClient().Do(instance.Address, testutil.TestRequest{Path: "/manifest"})
	require.Error(t, err, "prior-knowledge HTTP/2 must fail when h2c is disabled")
}

// Package assets holds the static route table (asset families and singleton
// files) and the directory lister used to enumerate asset roots.
package assets

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// AssetRoute exposes one directory of same-typed files. Name is used both as
// the listing suffix (/list_<name>) and the file prefix (/<name>/<file>).
type AssetRoute struct {
	Name        string
	RootDir     string
	Extension   string
	ContentType string
}

// SingletonRoute exposes one file at an exact URL path.
type SingletonRoute struct {
	URLPath     string
	File        string
	ContentType string
}

// Table is the immutable, process-wide route configuration. It is built once
// by NewTable and only read afterwards, so it is safe for concurrent use.
type Table struct {
	assets     []AssetRoute
	assetIndex map[string]int
	singletons map[string]SingletonRoute
}

// NewTable validates the given routes and freezes them into a Table.
// Asset routes keep their declaration order.
func NewTable(assetRoutes []AssetRoute, singletonRoutes []SingletonRoute) (*Table, error) {
	t := &Table{
		assets:     make([]AssetRoute, 0, len(assetRoutes)),
		assetIndex: make(map[string]int, len(assetRoutes)),
		singletons: make(map[string]SingletonRoute, len(singletonRoutes)),
	}

	for i, ar := range assetRoutes {
		if err := validateAsset(ar); err != nil {
			return nil, fmt.Errorf("asset route #%d: %w", i, err)
		}
		if _, dup := t.assetIndex[ar.Name]; dup {
			return nil, fmt.Errorf("asset route #%d: duplicate name %q", i, ar.Name)
		}
		t.assetIndex[ar.Name] = len(t.assets)
		t.assets = append(t.assets, ar)
	}

	for i, sr := range singletonRoutes {
		if err := validateSingleton(sr); err != nil {
			return nil, fmt.Errorf("singleton route #%d: %w", i, err)
		}
		if _, dup := t.singletons[sr.URLPath]; dup {
			return nil, fmt.Errorf("singleton route #%d: duplicate path %q", i, sr.URLPath)
		}
		t.singletons[sr.URLPath] = sr
	}

	return t, nil
}

func validateAsset(ar AssetRoute) error {
	switch {
	case ar.Name == "":
		return fmt.Errorf("name cannot be empty")
	case strings.ContainsAny(ar.Name, "/\\"):
		return fmt.Errorf("name %q must not contain path separators", ar.Name)
	case ar.RootDir == "":
		return fmt.Errorf("%q: root directory cannot be empty", ar.Name)
	case !strings.HasPrefix(ar.Extension, ".") || len(ar.Extension) < 2:
		return fmt.Errorf("%q: extension %q must start with '.'", ar.Name, ar.Extension)
	case ar.ContentType == "":
		return fmt.Errorf("%q: content type cannot be empty", ar.Name)
	}
	return nil
}

func validateSingleton(sr SingletonRoute) error {
	switch {
	case !strings.HasPrefix(sr.URLPath, "/"):
		return fmt.Errorf("path %q must start with '/'", sr.URLPath)
	case sr.File == "":
		return fmt.Errorf("%q: file cannot be empty", sr.URLPath)
	case sr.ContentType == "":
		return fmt.Errorf("%q: content type cannot be empty", sr.URLPath)
	}
	return nil
}

// Asset looks up an asset route by name.
func (t *Table) Asset(name string) (AssetRoute, bool) {
	i, ok := t.assetIndex[name]
	if !ok {
		return AssetRoute{}, false
	}
	return t.assets[i], true
}

// Singleton looks up a singleton route by its exact URL path.
func (t *Table) Singleton(urlPath string) (SingletonRoute, bool) {
	sr, ok := t.singletons[urlPath]
	return sr, ok
}

// Assets returns a copy of the asset routes in declaration order.
func (t *Table) Assets() []AssetRoute {
	out := make([]AssetRoute, len(t.assets))
	copy(out, t.assets)
	return out
}

// Singletons returns a copy of the singleton routes sorted by URL path.
func (t *Table) Singletons() []SingletonRoute {
	out := make([]SingletonRoute, 0, len(t.singletons))
	for _, sr := range t.singletons {
		out = append(out, sr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URLPath < out[j].URLPath })
	return out
}

// DefaultAssetRoutes returns the built-in asset families rooted at
// <baseDir>/game_data.
func DefaultAssetRoutes(baseDir string) []AssetRoute {
	game := filepath.Join(baseDir, "game_data")
	return []AssetRoute{
		{Name: "hlod", RootDir: filepath.Join(game, "hlod"), Extension: ".obj", ContentType: "model/obj"},
		{Name: "terrain", RootDir: filepath.Join(game, "terrain"), Extension: ".obj", ContentType: "model/obj"},
		{Name: "hlod_all", RootDir: filepath.Join(game, "hlod_all"), Extension: ".obj", ContentType: "model/obj"},
		{Name: "textures", RootDir: filepath.Join(game, "textures"), Extension: ".png", ContentType: "image/png"},
	}
}

// DefaultSingletonRoutes returns the built-in singleton files under baseDir.
func DefaultSingletonRoutes(baseDir string) []SingletonRoute {
	manifests := filepath.Join(baseDir, "manifests")
	return []SingletonRoute{
		{URLPath: "/manifest", File: filepath.Join(manifests, "android_manifest.json"), ContentType: "application/json"},
		{URLPath: "/all_hlod_manifest", File: filepath.Join(manifests, "all_hlod_manifest.json"), ContentType: "application/json"},
		{URLPath: "/ocean.obj", File: filepath.Join(baseDir, "ocean.obj"), ContentType: "model/obj"},
		{URLPath: "/ocean.glb", File: filepath.Join(baseDir, "ocean.glb"), ContentType: "model/gltf-binary"},
		{URLPath: "/skybox.png", File: filepath.Join(baseDir, "skybox.png"), ContentType: "image/png"},
		{URLPath: "/overrides.json", File: filepath.Join(baseDir, "overrides.json"), ContentType: "application/json"},
	}
}

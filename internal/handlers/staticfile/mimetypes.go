package staticfile

import (
	"fmt"
	"mime"
	"strings"
)

// defaultMimeTypes covers asset formats that Go's mime package does not know
// or maps inconsistently across platforms. Custom mappings from the config
// take precedence over these.
var defaultMimeTypes = map[string]string{
	".basis": "image/basis",
	".bin":   "application/octet-stream",
	".dds":   "image/vnd-ms.dds",
	".fbx":   "application/octet-stream",
	".glb":   "model/gltf-binary",
	".gltf":  "model/gltf+json",
	".hdr":   "image/vnd.radiance",
	".json":  "application/json",
	".ktx":   "image/ktx",
	".ktx2":  "image/ktx2",
	".mtl":   "model/mtl",
	".obj":   "model/obj",
	".ply":   "application/octet-stream",
	".stl":   "model/stl",
	".wasm":  "application/wasm",
}

const defaultOctetStreamMimeType = "application/octet-stream"

// buildMimeTypes merges the built-in table with custom mappings. Keys are
// lowercased; extensions must start with '.' and types must be non-empty.
func buildMimeTypes(custom map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(defaultMimeTypes)+len(custom))
	for ext, t := range defaultMimeTypes {
		out[ext] = t
	}
	for ext, t := range custom {
		if !strings.HasPrefix(ext, ".") {
			return nil, fmt.Errorf("invalid extension %q in mime types: must start with a '.'", ext)
		}
		if t == "" {
			return nil, fmt.Errorf("empty MIME type for extension %q", ext)
		}
		out[strings.ToLower(ext)] = t
	}
	return out, nil
}

// ResolveMimeType determines the MIME type for a file extension (with its
// leading dot). Precedence: mappings, then Go's mime.TypeByExtension, then
// application/octet-stream.
func ResolveMimeType(extension string, mappings map[string]string) string {
	if extension == "" {
		return defaultOctetStreamMimeType
	}
	ext := strings.ToLower(extension)
	if t, ok := mappings[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return defaultOctetStreamMimeType
}

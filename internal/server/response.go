package server

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strconv"
)

// CacheControl is the advisory freshness hint sent with every file response.
const CacheControl = "public, max-age=3600"

// jsonMarshalFunc allows swapping out json.Marshal for testing.
var jsonMarshalFunc = json.Marshal

// WriteJSON serializes v and writes it with status 200 and an exact
// Content-Length. A value that cannot be marshalled degrades to 404.
func WriteJSON(w http.ResponseWriter, v interface{}) {
	body, err := jsonMarshalFunc(v)
	if err != nil {
		WriteNotFound(w)
		return
	}
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// WriteFile streams the file at path with the given content type, which is
// used verbatim. Missing files, directories, other non-regular files and any
// open/stat failure all produce a bare 404.
func WriteFile(w http.ResponseWriter, path, contentType string) error {
	// Stat before open: opening a FIFO for reading blocks until a writer appears.
	fi, err := os.Stat(path)
	if err != nil {
		WriteNotFound(w)
		return err
	}
	if err := checkRegular(path, fi); err != nil {
		WriteNotFound(w)
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		WriteNotFound(w)
		return err
	}
	defer f.Close()

	// The path may have been swapped between Stat and Open.
	fi, err = f.Stat()
	if err != nil {
		WriteNotFound(w)
		return err
	}
	if err := checkRegular(path, fi); err != nil {
		WriteNotFound(w)
		return err
	}

	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.FormatInt(fi.Size(), 10))
	h.Set("Cache-Control", CacheControl)
	w.WriteHeader(http.StatusOK)
	_, err = io.Copy(w, f)
	return err
}

func checkRegular(path string, fi os.FileInfo) error {
	switch {
	case fi.IsDir():
		return &os.PathError{Op: "open", Path: path, Err: errIsDirectory}
	case !fi.Mode().IsRegular():
		return &os.PathError{Op: "open", Path: path, Err: errNotRegular}
	}
	return nil
}

// WriteNotFound emits a bare 404 with no body.
func WriteNotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusNotFound)
}

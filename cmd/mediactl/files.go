package main

import (
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrymomot/mediakit/pkg/media"
)

type localFile struct {
	path     string
	name     string
	mimeType string
	body     []byte
}

func readLocalFile(path string) (localFile, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return localFile{}, err
	}
	name := filepath.Base(path)
	return localFile{path: path, name: name, mimeType: detectMIME(name, body), body: body}, nil
}

// detectMIME prefers the extension and falls back to content sniffing.
func detectMIME(name string, body []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		if mt, _, err := mime.ParseMediaType(t); err == nil {
			return mt
		}
	}
	t := http.DetectContentType(body)
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return t
}

func (f localFile) request(folder string, provider media.Provider) media.Request {
	return media.Request{
		Body:     f.body,
		Filename: f.name,
		MIMEType: f.mimeType,
		Folder:   folder,
		Provider: provider,
	}
}

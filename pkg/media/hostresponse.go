package media

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// HostImage is the image object decoded from an image host response.
type HostImage struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	DisplayURL   string `json:"display_url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	MediumURL    string `json:"medium_url,omitempty"`
	DeleteURL    string `json:"delete_url,omitempty"`
	Filename     string `json:"filename,omitempty"`
	Size         int64  `json:"size,omitempty"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	MIMEType     string `json:"mime_type,omitempty"`
}

// RelayError is the error half of the relay envelope.
type RelayError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RelayResponse is the normalized JSON envelope returned by the relay endpoint.
type RelayResponse struct {
	Success bool        `json:"success"`
	Data    *HostImage  `json:"data,omitempty"`
	Error   *RelayError `json:"error,omitempty"`
}

// extraction is one candidate location for a value inside a host image object.
type extraction []string

// Ordered candidates; the first non-empty match wins.
var (
	displayURLPaths = []extraction{
		{"display_url"},
		{"url"},
		{"image", "url"},
		{"medium", "url"},
		{"thumb", "url"},
	}
	directURLPaths = []extraction{
		{"url"},
		{"image", "url"},
		{"display_url"},
	}
	thumbnailURLPaths = []extraction{{"thumb", "url"}, {"thumbnail_url"}}
	mediumURLPaths    = []extraction{{"medium", "url"}, {"medium_url"}}
	idPaths           = []extraction{{"id_encoded"}, {"id"}}
	filenamePaths     = []extraction{{"filename"}, {"image", "filename"}, {"original_filename"}, {"name"}}
	mimePaths         = []extraction{{"mime"}, {"image", "mime"}, {"mime_type"}}
	sizePaths         = []extraction{{"size"}, {"image", "size"}}

	// statusCodeFields are the spellings hosts use for the numeric status.
	statusCodeFields = []string{"status_code", "statusCode", "status"}
)

// ParseHostResponse decodes an upstream image host body such as
//
//	{"status_code":200,"status_txt":"OK","image":{"display_url":"..."}}
//
// The host is considered successful when a numeric status under either known
// field name is 2xx, or, when no numeric status is present, when status_txt is "OK".
// A successful body without any URL candidate yields KindNoURL.
func ParseHostResponse(provider Provider, status int, body []byte) (*HostImage, error) {
	var doc map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		kind := KindFromStatus(status)
		if kind == "" {
			kind = KindUploadFailed
		}
		return nil, &Error{Kind: kind, Provider: provider, Message: "malformed host response", RawCode: strconv.Itoa(status), Err: err}
	}

	code, hasCode := hostStatusCode(doc)
	ok := false
	switch {
	case hasCode:
		ok = code >= 200 && code < 300
	case status >= 300:
		ok = false
	default:
		txt, _ := doc["status_txt"].(string)
		ok = strings.EqualFold(strings.TrimSpace(txt), "OK")
		if !ok {
			if b, isBool := doc["success"].(bool); isBool {
				ok = b
			}
		}
	}
	if !ok {
		return nil, hostFailure(provider, doc, code, hasCode, status)
	}

	obj, _ := doc["image"].(map[string]any)
	if obj == nil {
		obj, _ = doc["data"].(map[string]any)
	}
	if obj == nil {
		return nil, newError(KindNoURL, provider, "host response carries no image object")
	}
	return decodeHostImage(provider, obj)
}

// decodeHostImage applies the extraction lists to a host image object.
func decodeHostImage(provider Provider, obj map[string]any) (*HostImage, error) {
	img := &HostImage{
		DisplayURL:   firstString(obj, displayURLPaths),
		URL:          firstString(obj, directURLPaths),
		ThumbnailURL: firstString(obj, thumbnailURLPaths),
		MediumURL:    firstString(obj, mediumURLPaths),
		DeleteURL:    firstString(obj, []extraction{{"delete_url"}}),
		ID:           firstString(obj, idPaths),
		Filename:     firstString(obj, filenamePaths),
		MIMEType:     firstString(obj, mimePaths),
		Size:         firstInt(obj, sizePaths),
		Width:        int(firstInt(obj, []extraction{{"width"}})),
		Height:       int(firstInt(obj, []extraction{{"height"}})),
	}
	if img.DisplayURL == "" {
		return nil, newError(KindNoURL, provider, "host reported success but no image URL could be resolved")
	}
	if img.URL == "" {
		img.URL = img.DisplayURL
	}
	return img, nil
}

func hostFailure(provider Provider, doc map[string]any, code int, hasCode bool, status int) *Error {
	e := &Error{Kind: KindUploadFailed, Provider: provider, Message: "image host rejected the upload"}

	switch ev := doc["error"].(type) {
	case map[string]any:
		if msg, _ := ev["message"].(string); msg != "" {
			e.Message = msg
		}
		if c := scalarString(ev["code"]); c != "" {
			e.RawCode = c
		}
	case string:
		if ev != "" {
			e.Message = ev
		}
	}

	if hasCode {
		if e.RawCode == "" {
			e.RawCode = strconv.Itoa(code)
		}
		if code == 401 || code == 403 || code == 413 || code == 429 {
			e.Kind = KindFromStatus(code)
		}
	} else if status >= 300 {
		if e.RawCode == "" {
			e.RawCode = strconv.Itoa(status)
		}
		if k := KindFromStatus(status); k != "" && k != KindNotFound {
			e.Kind = k
		}
	}
	return e
}

func hostStatusCode(doc map[string]any) (int, bool) {
	for _, field := range statusCodeFields {
		if v, ok := toInt(doc[field]); ok {
			return int(v), true
		}
	}
	return 0, false
}

func lookup(obj map[string]any, path extraction) any {
	var cur any = obj
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}

func firstString(obj map[string]any, paths []extraction) string {
	for _, p := range paths {
		if s := strings.TrimSpace(scalarString(lookup(obj, p))); s != "" {
			return s
		}
	}
	return ""
}

func firstInt(obj map[string]any, paths []extraction) int64 {
	for _, p := range paths {
		if v, ok := toInt(lookup(obj, p)); ok {
			return v
		}
	}
	return 0
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case nil:
		return ""
	case bool, map[string]any, []any:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func toInt(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, true
		}
		if f, err := t.Float64(); err == nil {
			return int64(f), true
		}
	case float64:
		return int64(t), true
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

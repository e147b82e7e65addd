package media

import (
	"context"
	"time"
)

// Provider identifies a remote hosting backend.
type Provider string

const (
	// ProviderLegacy is the direct-upload image host kept for previously stored references.
	ProviderLegacy Provider = "legacy"
	// ProviderRelay uploads through the first-party relay endpoint.
	ProviderRelay Provider = "relay"
	// ProviderStorage is the resumable object-storage backend.
	ProviderStorage Provider = "storage"
)

func (p Provider) String() string { return string(p) }

// ParseProvider maps a configuration or CLI value to a Provider.
func ParseProvider(s string) (Provider, bool) {
	switch Provider(s) {
	case ProviderLegacy, ProviderRelay, ProviderStorage:
		return Provider(s), true
	case "s3":
		return ProviderStorage, true
	}
	return "", false
}

// DefaultFolder is used when a request does not name a destination folder.
const DefaultFolder = "media"

// Request describes a single upload. It is passed by value and never mutated.
type Request struct {
	Body     []byte
	Filename string
	MIMEType string
	// Size is optional. When set it must equal len(Body).
	Size       int64
	Folder     string
	CustomName string
	Provider   Provider
	// OnProgress is optional; only resumable adapters invoke it.
	OnProgress ProgressFunc
}

// FileInfo is the subset of a request the validator looks at.
type FileInfo struct {
	Name     string
	Size     int64
	MIMEType string
}

// Info returns the validator view of the request. The size is measured from
// Body whenever one is attached.
func (r Request) Info() FileInfo {
	size := r.Size
	if r.Body != nil {
		size = int64(len(r.Body))
	}
	return FileInfo{Name: r.Filename, Size: size, MIMEType: r.MIMEType}
}

// Payload is what an adapter receives once validation and naming are done.
type Payload struct {
	Body     []byte
	Name     string
	Path     string
	MIMEType string
	Size     int64
}

// ProgressEvent reports resumable transfer progress after each chunk.
type ProgressEvent struct {
	BytesTransferred int64
	TotalBytes       int64
	Fraction         float64
}

// ProgressFunc receives progress events. A nil ProgressFunc is valid.
type ProgressFunc func(ProgressEvent)

func (fn ProgressFunc) emit(done, total int64) {
	if fn == nil {
		return
	}
	ev := ProgressEvent{BytesTransferred: done, TotalBytes: total}
	if total > 0 {
		ev.Fraction = float64(done) / float64(total)
	}
	fn(ev)
}

// Result is the only value handed back across the subsystem boundary.
// Exactly one of the success fields or Err is populated.
type Result struct {
	Success      bool      `json:"success"`
	Provider     Provider  `json:"provider,omitempty"`
	RemoteID     string    `json:"remote_id,omitempty"`
	URL          string    `json:"url,omitempty"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	MediumURL    string    `json:"medium_url,omitempty"`
	DeleteURL    string    `json:"delete_url,omitempty"`
	Path         string    `json:"path,omitempty"`
	Size         int64     `json:"size,omitempty"`
	MIMEType     string    `json:"mime_type,omitempty"`
	Width        int       `json:"width,omitempty"`
	Height       int       `json:"height,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitzero"`
	Err          *Error    `json:"error,omitempty"`
}

// Succeeded builds a success result. Any error field on r is cleared.
func Succeeded(r Result) Result {
	r.Success = true
	r.Err = nil
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return r
}

// Failed builds a failure result from a normalized error.
func Failed(provider Provider, err error) Result {
	return Result{Provider: provider, Err: Normalize(provider, err)}
}

// Object is a stored file reference returned by listings.
type Object struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified,omitzero"`
}

// Folder is a prefix reference returned by listings.
type Folder struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Listing holds the direct children of a folder. Files and Folders are disjoint.
type Listing struct {
	Files   []Object `json:"files"`
	Folders []Folder `json:"folders"`
}

// Adapter is implemented by every provider.
type Adapter interface {
	Provider() Provider
	Send(ctx context.Context, p Payload) (*Result, error)
}

// ProgressSender is implemented by adapters that report transfer progress.
type ProgressSender interface {
	SendWithProgress(ctx context.Context, p Payload, fn ProgressFunc) (*Result, error)
}

// Starter is implemented by adapters whose transfers can be canceled mid-flight.
type Starter interface {
	Start(ctx context.Context, p Payload, fn ProgressFunc) *Transfer
}

// Deleter removes a stored object.
type Deleter interface {
	Delete(ctx context.Context, path string) error
}

// Lister lists the direct children of a folder.
type Lister interface {
	List(ctx context.Context, folder string) (*Listing, error)
}

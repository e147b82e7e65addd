package media

import (
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

// Constraint names a single validation rule.
type Constraint string

const (
	ConstraintSize      Constraint = "size"
	ConstraintMIME      Constraint = "mime"
	ConstraintExtension Constraint = "extension"
	ConstraintFilename  Constraint = "filename"
)

// DefaultMaxSize is the reference upload ceiling.
const DefaultMaxSize int64 = 50 * units.MiB

// filenamePattern allows word characters, hyphen, period and space only.
var filenamePattern = regexp.MustCompile(`^[\w\-. ]+$`)

var (
	defaultMIMETypes = []string{
		"image/jpeg",
		"image/jpg",
		"image/png",
		"image/gif",
		"image/webp",
		"image/svg+xml",
		"image/bmp",
		"image/avif",
		"image/heic",
		"image/heif",
	}

	defaultExtensions = []string{
		"jpg", "jpeg", "png", "gif", "webp", "svg", "bmp", "avif", "heic", "heif",
	}
)

// Violation is one failed constraint with a human-readable reason.
type Violation struct {
	Constraint Constraint `json:"constraint"`
	Reason     string     `json:"reason"`
}

// ValidationOutcome is the full result of checking a file against a Policy.
type ValidationOutcome struct {
	Passed     bool        `json:"passed"`
	Violations []Violation `json:"violations,omitempty"`
}

// Err returns the first violation as a normalized error, or nil when the file passed.
func (o ValidationOutcome) Err() error {
	if o.Passed || len(o.Violations) == 0 {
		return nil
	}
	v := o.Violations[0]
	return &Error{Kind: KindValidation, Message: v.Reason, Constraint: v.Constraint}
}

// Policy holds the static upload constraints.
type Policy struct {
	MaxSize           int64    `yaml:"max_size"`
	AllowedMIMETypes  []string `yaml:"allowed_mime_types"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// DefaultPolicy returns the reference image policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxSize:           DefaultMaxSize,
		AllowedMIMETypes:  slices.Clone(defaultMIMETypes),
		AllowedExtensions: slices.Clone(defaultExtensions),
	}
}

// normalized fills unset fields with defaults and lower-cases the allow-lists.
func (p Policy) normalized() Policy {
	if p.MaxSize <= 0 {
		p.MaxSize = DefaultMaxSize
	}
	if len(p.AllowedMIMETypes) == 0 {
		p.AllowedMIMETypes = defaultMIMETypes
	}
	if len(p.AllowedExtensions) == 0 {
		p.AllowedExtensions = defaultExtensions
	}
	mimes := make([]string, 0, len(p.AllowedMIMETypes))
	for _, m := range p.AllowedMIMETypes {
		mimes = append(mimes, strings.ToLower(strings.TrimSpace(m)))
	}
	exts := make([]string, 0, len(p.AllowedExtensions))
	for _, e := range p.AllowedExtensions {
		exts = append(exts, strings.TrimPrefix(strings.ToLower(strings.TrimSpace(e)), "."))
	}
	p.AllowedMIMETypes = mimes
	p.AllowedExtensions = exts
	return p
}

// LoadPolicy reads a YAML policy document. Missing fields fall back to defaults.
// max_size accepts either a byte count or a human size such as "20MiB".
//
//	max_size: 20MiB
//	allowed_mime_types: [image/png, image/jpeg]
//	allowed_extensions: [png, jpg, jpeg]
func LoadPolicy(r io.Reader) (Policy, error) {
	var doc struct {
		MaxSize           string   `yaml:"max_size"`
		AllowedMIMETypes  []string `yaml:"allowed_mime_types"`
		AllowedExtensions []string `yaml:"allowed_extensions"`
	}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return Policy{}, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}

	p := Policy{
		AllowedMIMETypes:  doc.AllowedMIMETypes,
		AllowedExtensions: doc.AllowedExtensions,
	}
	if doc.MaxSize != "" {
		size, err := units.RAMInBytes(doc.MaxSize)
		if err != nil {
			return Policy{}, fmt.Errorf("%w: max_size: %v", ErrInvalidPolicy, err)
		}
		p.MaxSize = size
	}
	return p.normalized(), nil
}

// Validate checks f against the default policy.
func Validate(f FileInfo) error {
	return DefaultPolicy().Validate(f)
}

// Validate runs the checks in order and returns the first violation as a
// *Error of kind KindValidation.
func (p Policy) Validate(f FileInfo) error {
	return p.run(f, true).Err()
}

// Check runs every check and reports all violations.
// A missing or empty file short-circuits since nothing else can be judged.
func (p Policy) Check(f FileInfo) ValidationOutcome {
	return p.run(f, false)
}

func (p Policy) run(f FileInfo, failFast bool) ValidationOutcome {
	p = p.normalized()
	out := ValidationOutcome{}
	add := func(c Constraint, format string, args ...any) bool {
		out.Violations = append(out.Violations, Violation{Constraint: c, Reason: fmt.Sprintf(format, args...)})
		return failFast
	}

	if f.Size <= 0 {
		add(ConstraintSize, "file is empty")
		return out
	}
	if f.Size > p.MaxSize {
		if add(ConstraintSize, "file size %s exceeds the %s limit",
			units.BytesSize(float64(f.Size)), units.BytesSize(float64(p.MaxSize))) {
			return out
		}
	}

	mimeType := strings.ToLower(strings.TrimSpace(f.MIMEType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if !slices.Contains(p.AllowedMIMETypes, mimeType) {
		if mimeType == "" {
			mimeType = "(none)"
		}
		if add(ConstraintMIME, "MIME type %s is not allowed", mimeType) {
			return out
		}
	}

	ext := Extension(f.Name)
	if ext == "" || !slices.Contains(p.AllowedExtensions, ext) {
		if ext == "" {
			ext = "(none)"
		}
		if add(ConstraintExtension, "file extension %s is not allowed", ext) {
			return out
		}
	}

	if !filenamePattern.MatchString(f.Name) {
		add(ConstraintFilename, "filename %q contains characters outside [A-Za-z0-9_-. ]", f.Name)
	}

	out.Passed = len(out.Violations) == 0
	return out
}

// Extension returns the lower-cased extension after the last dot, without the dot.
func Extension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

package media

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	maxNameLength = 200
	tokenLength   = 6
	tokenAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	fallbackName  = "file"
	maxExtLength  = 5
)

// GeneratedName is the synthesized remote filename, split into its parts.
type GeneratedName struct {
	Base      string
	Sanitized string
	Suffix    string
	Extension string
}

// String renders the final filename.
func (g GeneratedName) String() string {
	name := g.Base
	if g.Extension != "" {
		name += "." + g.Extension
	}
	return name
}

// Namer synthesizes collision-resistant filenames. The zero value is ready to use.
type Namer struct {
	// Now defaults to time.Now.
	Now func() time.Time
	// Token defaults to a crypto/rand base36 token.
	Token func(n int) string
}

// Generate builds the remote filename. A custom name is sanitized and used
// without a uniquing suffix; otherwise the sanitized original name gets
// _{unixMillis}_{token} appended before the extension.
func (n Namer) Generate(original, custom string) GeneratedName {
	origBase, ext := splitName(original)
	if custom != "" {
		base, customExt := splitName(custom)
		if customExt != "" {
			ext = customExt
		}
		sanitized := sanitizeBase(base, maxNameLength-len(ext)-1)
		return GeneratedName{
			Base:      sanitized,
			Sanitized: sanitized,
			Extension: ext,
		}
	}

	sanitized := sanitizeBase(origBase, maxNameLength)
	suffix := strconv.FormatInt(n.now().UnixMilli(), 10) + "_" + n.token(tokenLength)

	// Keep the whole name within the length cap by trimming the original part.
	room := maxNameLength - len(suffix) - 1
	if ext != "" {
		room -= len(ext) + 1
	}
	if len(sanitized) > room {
		sanitized = strings.TrimRight(sanitized[:room], "_-.")
	}

	return GeneratedName{
		Base:      sanitized + "_" + suffix,
		Sanitized: sanitized,
		Suffix:    suffix,
		Extension: ext,
	}
}

func (n Namer) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now()
}

func (n Namer) token(size int) string {
	if n.Token != nil {
		return n.Token(size)
	}
	return randomToken(size)
}

// GenerateUniqueFilename returns a suffixed, sanitized filename for original.
func GenerateUniqueFilename(original string) string {
	return Namer{}.Generate(original, "").String()
}

// SanitizeFilename rewrites name so it only contains word characters, hyphens
// and periods, with a lower-cased extension.
//
//	SanitizeFilename("My Shirt!!.PNG") // "my_shirt.png"
func SanitizeFilename(name string) string {
	base, ext := splitName(name)
	g := GeneratedName{Base: sanitizeBase(base, maxNameLength), Extension: ext}
	if ext != "" && len(g.Base)+len(ext)+1 > maxNameLength {
		g.Base = strings.TrimRight(g.Base[:maxNameLength-len(ext)-1], "_-.")
	}
	return g.String()
}

// splitName separates the base from a lower-cased, sanitized extension.
// Leading path components are dropped.
func splitName(name string) (string, string) {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	name = strings.ReplaceAll(name, "\x00", "")

	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return strings.TrimSuffix(name, "."), ""
	}
	ext := strings.ToLower(strings.TrimSpace(name[i+1:]))
	if len(ext) > maxExtLength {
		return name, ""
	}
	for _, r := range ext {
		if r >= unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return name, ""
		}
	}
	return name[:i], ext
}

var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// sanitizeBase folds accents, replaces disallowed characters with "_",
// collapses separator runs and lower-cases the result.
func sanitizeBase(base string, limit int) string {
	if folded, _, err := transform.String(foldDiacritics, base); err == nil {
		base = folded
	}

	var b strings.Builder
	b.Grow(len(base))
	lastSep := true
	for _, r := range strings.ToLower(base) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			lastSep = false
		case r == '-' || r == '.':
			if !lastSep {
				b.WriteRune(r)
				lastSep = true
			}
		default:
			// spaces, underscores and anything outside the class
			if !lastSep {
				b.WriteByte('_')
				lastSep = true
			}
		}
	}

	out := strings.Trim(b.String(), "_-.")
	if limit > 0 && len(out) > limit {
		out = strings.TrimRight(out[:limit], "_-.")
	}
	if out == "" {
		return fallbackName
	}
	return out
}

func randomToken(n int) string {
	buf := make([]byte, n)
	alphabet := big.NewInt(int64(len(tokenAlphabet)))
	for i := range buf {
		v, err := rand.Int(rand.Reader, alphabet)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(err)
		}
		buf[i] = tokenAlphabet[v.Int64()]
	}
	return string(buf)
}

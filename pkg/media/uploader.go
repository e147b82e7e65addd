package media

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/mediakit/pkg/logger"
)

// Uploader composes validation, naming and a selected provider adapter.
// It holds no mutable state after construction and is safe for concurrent use.
type Uploader struct {
	adapters        map[Provider]Adapter
	policy          Policy
	namer           Namer
	logger          *slog.Logger
	observer        Observer
	folder          string
	defaultProvider Provider
}

// Option configures the Uploader.
type Option func(*Uploader)

// WithAdapter registers an adapter under its own provider, replacing any previous one.
func WithAdapter(a Adapter) Option {
	if a == nil {
		panic("WithAdapter: nil adapter")
	}
	return func(u *Uploader) { u.adapters[a.Provider()] = a }
}

// WithPolicy sets the validation policy. Unset fields fall back to defaults.
func WithPolicy(p Policy) Option {
	return func(u *Uploader) { u.policy = p.normalized() }
}

// WithNamer replaces the filename generator. Useful for deterministic tests.
func WithNamer(n Namer) Option {
	return func(u *Uploader) { u.namer = n }
}

// WithLogger supplies an slog.Logger. If nil, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(u *Uploader) {
		if l != nil {
			u.logger = l
		}
	}
}

// WithObserver records operation telemetry, e.g. through a PrometheusObserver.
func WithObserver(o Observer) Option {
	return func(u *Uploader) {
		if o != nil {
			u.observer = o
		}
	}
}

// WithDefaultFolder sets the folder used when a request names none.
func WithDefaultFolder(folder string) Option {
	return func(u *Uploader) {
		if f := strings.Trim(folder, "/"); f != "" {
			u.folder = f
		}
	}
}

// WithDefaultProvider sets the provider used when a request names none.
// The legacy host can only be selected explicitly per request.
func WithDefaultProvider(p Provider) Option {
	if p == ProviderLegacy {
		panic("WithDefaultProvider: the legacy host cannot be the default provider")
	}
	return func(u *Uploader) { u.defaultProvider = p }
}

// New creates an Uploader. Adapters are injected once at process start.
func New(opts ...Option) *Uploader {
	u := &Uploader{
		adapters:        make(map[Provider]Adapter, 3),
		policy:          DefaultPolicy(),
		logger:          logger.Discard(),
		observer:        nopObserver{},
		folder:          DefaultFolder,
		defaultProvider: ProviderStorage,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Policy returns the validation policy in effect.
func (u *Uploader) Policy() Policy { return u.policy }

// Upload validates, names and sends a single file. Validation failures are
// returned before any network call. Every error is a normalized *Error.
func (u *Uploader) Upload(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	provider := u.providerFor(req)

	res, err := u.upload(ctx, provider, req)
	if err != nil {
		e := Normalize(provider, err)
		u.observer.RecordUpload(provider, time.Since(start), 0, e)
		u.logger.WarnContext(ctx, "upload failed",
			logger.Provider(provider),
			slog.String("filename", req.Filename),
			logger.Kind(e.Kind),
			logger.Error(e),
		)
		return nil, e
	}

	u.observer.RecordUpload(provider, time.Since(start), res.Size, nil)
	u.logger.InfoContext(ctx, "upload completed",
		logger.Provider(provider),
		logger.Path(res.Path),
		logger.Size(res.Size),
		logger.Duration(time.Since(start)),
	)
	return res, nil
}

func (u *Uploader) upload(ctx context.Context, provider Provider, req Request) (*Result, error) {
	adapter, p, err := u.prepare(provider, req)
	if err != nil {
		return nil, err
	}
	if req.OnProgress != nil {
		if ps, ok := adapter.(ProgressSender); ok {
			return ps.SendWithProgress(ctx, p, req.OnProgress)
		}
	}
	return adapter.Send(ctx, p)
}

// prepare runs every local step of an upload: presence and policy checks,
// adapter selection and naming.
func (u *Uploader) prepare(provider Provider, req Request) (Adapter, Payload, error) {
	if req.Body == nil {
		return nil, Payload{}, newError(KindNoFile, provider, "no file attached")
	}
	if req.Size != 0 && req.Size != int64(len(req.Body)) {
		return nil, Payload{}, newError(KindValidation, provider, "declared size %d does not match body length %d", req.Size, len(req.Body))
	}
	if err := u.policy.Validate(req.Info()); err != nil {
		return nil, Payload{}, err
	}

	adapter, ok := u.adapters[provider]
	if !ok {
		return nil, Payload{}, newError(KindInternal, provider, "provider %q is not configured", provider)
	}

	name := u.namer.Generate(req.Filename, req.CustomName).String()
	folder := strings.Trim(req.Folder, "/")
	if folder == "" {
		folder = u.folder
	}

	return adapter, Payload{
		Body:     req.Body,
		Name:     name,
		Path:     folder + "/" + name,
		MIMEType: req.MIMEType,
		Size:     req.Info().Size,
	}, nil
}

// BatchOptions controls UploadMany.
type BatchOptions struct {
	// Sequential uploads one file at a time; the next starts only after the previous settled.
	Sequential bool
	// NamePrefix names items without a custom name {prefix}-{index}{ext}, index starting at 1.
	NamePrefix string
	// MaxConcurrency bounds parallel uploads. Zero means unbounded.
	MaxConcurrency int
}

// UploadMany uploads every request and returns one result per request, in
// input order. A failed item occupies its slot and never cancels its siblings.
func (u *Uploader) UploadMany(ctx context.Context, reqs []Request, opts BatchOptions) []Result {
	results := make([]Result, len(reqs))

	run := func(i int) {
		req := reqs[i]
		if opts.NamePrefix != "" && req.CustomName == "" {
			req.CustomName = batchName(opts.NamePrefix, i, req.Filename)
		}
		res, err := u.Upload(ctx, req)
		if err != nil {
			results[i] = Failed(u.providerFor(req), err)
			return
		}
		results[i] = *res
	}

	if opts.Sequential {
		for i := range reqs {
			run(i)
		}
		return results
	}

	var g errgroup.Group
	if opts.MaxConcurrency > 0 {
		g.SetLimit(opts.MaxConcurrency)
	}
	for i := range reqs {
		g.Go(func() error {
			run(i)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func batchName(prefix string, i int, filename string) string {
	name := prefix + "-" + strconv.Itoa(i+1)
	if ext := Extension(filename); ext != "" {
		name += "." + ext
	}
	return name
}

// Start begins a cancellable upload on an adapter that supports it.
// Local failures are returned immediately; remote ones surface from Transfer.Wait.
func (u *Uploader) Start(ctx context.Context, req Request) (*Transfer, error) {
	start := time.Now()
	provider := u.providerFor(req)

	tr, path, err := u.start(ctx, provider, req)
	if err != nil {
		e := Normalize(provider, err)
		u.observer.RecordUpload(provider, time.Since(start), 0, e)
		u.logger.WarnContext(ctx, "transfer rejected",
			logger.Provider(provider),
			slog.String("filename", req.Filename),
			logger.Kind(e.Kind),
			logger.Error(e),
		)
		return nil, e
	}

	u.logger.DebugContext(ctx, "transfer started", logger.Provider(provider), logger.Path(path))
	go u.watch(context.WithoutCancel(ctx), provider, path, start, tr)
	return tr, nil
}

func (u *Uploader) start(ctx context.Context, provider Provider, req Request) (*Transfer, string, error) {
	adapter, p, err := u.prepare(provider, req)
	if err != nil {
		return nil, "", err
	}
	starter, ok := adapter.(Starter)
	if !ok {
		return nil, "", newError(KindInternal, provider, "provider %q does not support cancellable uploads", provider)
	}
	return starter.Start(ctx, p, req.OnProgress), p.Path, nil
}

// watch records the outcome of a transfer once it settles, including cancellation.
func (u *Uploader) watch(ctx context.Context, provider Provider, path string, start time.Time, tr *Transfer) {
	res, err := tr.Wait()
	if err != nil {
		e := Normalize(provider, err)
		u.observer.RecordUpload(provider, time.Since(start), 0, e)
		u.logger.WarnContext(ctx, "transfer failed", logger.Provider(provider), logger.Path(path), logger.Kind(e.Kind), logger.Error(e))
		return
	}
	u.observer.RecordUpload(provider, time.Since(start), res.Size, nil)
	u.logger.InfoContext(ctx, "transfer completed",
		logger.Provider(provider),
		logger.Path(res.Path),
		logger.Size(res.Size),
		logger.Duration(time.Since(start)),
	)
}

// Delete removes a stored object through a provider that supports deletion.
func (u *Uploader) Delete(ctx context.Context, provider Provider, path string) error {
	start := time.Now()
	provider = u.orDefault(provider)

	err := func() error {
		d, ok := u.adapters[provider].(Deleter)
		if !ok {
			return newError(KindInternal, provider, "provider %q does not support deletion", provider)
		}
		return d.Delete(ctx, path)
	}()
	if err != nil {
		e := Normalize(provider, err)
		u.observer.RecordDelete(provider, time.Since(start), e)
		u.logger.WarnContext(ctx, "delete failed", logger.Provider(provider), logger.Path(path), logger.Kind(e.Kind))
		return e
	}

	u.observer.RecordDelete(provider, time.Since(start), nil)
	u.logger.InfoContext(ctx, "object deleted", logger.Provider(provider), logger.Path(path))
	return nil
}

// List returns the direct files and sub-folders of folder.
func (u *Uploader) List(ctx context.Context, provider Provider, folder string) (*Listing, error) {
	start := time.Now()
	provider = u.orDefault(provider)

	l, ok := u.adapters[provider].(Lister)
	if !ok {
		e := newError(KindInternal, provider, "provider %q does not support listing", provider)
		u.observer.RecordList(provider, time.Since(start), e)
		return nil, e
	}

	listing, err := l.List(ctx, folder)
	if err != nil {
		e := Normalize(provider, err)
		u.observer.RecordList(provider, time.Since(start), e)
		u.logger.WarnContext(ctx, "list failed", logger.Provider(provider), slog.String("folder", folder), logger.Kind(e.Kind))
		return nil, e
	}
	u.observer.RecordList(provider, time.Since(start), nil)
	return listing, nil
}

func (u *Uploader) providerFor(req Request) Provider {
	return u.orDefault(req.Provider)
}

func (u *Uploader) orDefault(p Provider) Provider {
	if p == "" {
		return u.defaultProvider
	}
	return p
}

// Package media implements storefront image ingestion: local validation,
// collision-resistant naming, and upload through one of several remote providers
// behind a single call shape.
//
// # Architecture
//
// An Uploader is built once per process with the adapters it may use:
//   - LegacyAdapter: direct multipart POST to the legacy image host with a client-side key.
//     Kept for previously stored references and only used when a request asks for it.
//   - RelayAdapter: base64 upload to the first-party relay endpoint (see package relay),
//     which holds the image host key server-side.
//   - S3Adapter: resumable multipart upload to S3-compatible storage with progress
//     callbacks, cancellation, deletion and folder listing.
//
// Every failure is normalized into an *Error carrying one ErrorKind from a fixed
// taxonomy, so callers never branch on provider identity. The provider's own
// code is kept in Error.RawCode for diagnostics only. Nothing is retried.
//
// # Usage
//
//	store, err := media.NewS3Adapter(ctx, media.S3Config{
//		Bucket: "catalog",
//		Region: "eu-central-1",
//	})
//	if err != nil {
//		return err
//	}
//
//	uploader := media.New(
//		media.WithAdapter(store),
//		media.WithLogger(logger),
//	)
//
//	res, err := uploader.Upload(ctx, media.Request{
//		Body:     data,
//		Filename: "shirt.jpg",
//		MIMEType: "image/jpeg",
//		Folder:   "products",
//	})
//	if errors.Is(err, media.ErrValidation) {
//		// rejected locally, nothing was sent
//	}
//
// Batches keep input order and never abort on a single failure:
//
//	results := uploader.UploadMany(ctx, reqs, media.BatchOptions{NamePrefix: "look"})
//
// Cancellable transfers are available on the storage provider:
//
//	t, err := uploader.Start(ctx, req)
//	if err != nil {
//		return err
//	}
//	defer t.Cancel()
//	res, err := t.Wait()
//
// # Known limitation
//
// A provider may accept an object even though the local call later fails, for
// example when the connection drops before the response is read. The object is
// left behind and is not reconciled by this package.
package media

package media

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// Normalize converts any adapter failure into a *Error.
// Already-normalized errors pass through, gaining the provider if they lack one.
func Normalize(provider Provider, err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		if e.Provider == "" && provider != "" {
			cp := *e
			cp.Provider = provider
			return &cp
		}
		return e
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Provider: provider, Message: "request exceeded the time budget", Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindCanceled, Provider: provider, Message: "upload canceled", Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Provider: provider, Message: "request exceeded the time budget", Err: err}
	}

	if provider == ProviderStorage {
		if se := normalizeS3Error(err); se != nil {
			return se
		}
	}

	return &Error{Kind: KindInternal, Provider: provider, Message: err.Error(), Err: err}
}

// KindFromStatus maps an HTTP status code returned by a remote host.
func KindFromStatus(status int) ErrorKind {
	switch {
	case status >= 200 && status < 300:
		return ""
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return KindTimeout
	case status == http.StatusRequestEntityTooLarge:
		return KindFileTooLarge
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	default:
		return KindUploadFailed
	}
}

// KindFromCode maps an error code string reported by the relay or an upstream host.
// Unknown codes become KindUploadFailed since the host did report a failure.
func KindFromCode(code string) ErrorKind {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "":
		return ""
	case string(KindValidation):
		return KindValidation
	case string(KindNoFile), "NO_SOURCE":
		return KindNoFile
	case string(KindUnauthorized), "INVALID_API_KEY":
		return KindUnauthorized
	case string(KindFileTooLarge), "PAYLOAD_TOO_LARGE", "SIZE_TOO_LARGE":
		return KindFileTooLarge
	case string(KindRateLimit), "RATE_LIMITED", "TOO_MANY_REQUESTS":
		return KindRateLimit
	case string(KindNoURL):
		return KindNoURL
	case string(KindTimeout):
		return KindTimeout
	case string(KindNotFound):
		return KindNotFound
	case string(KindInternal), "NO_API_KEY":
		return KindInternal
	default:
		return KindUploadFailed
	}
}

// normalizeS3Error classifies smithy API errors returned by the object store.
func normalizeS3Error(err error) *Error {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return &Error{Kind: KindNotFound, Provider: ProviderStorage, Message: "object not found", RawCode: "NoSuchKey", Err: err}
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return &Error{Kind: KindNotFound, Provider: ProviderStorage, Message: "object not found", RawCode: "NotFound", Err: err}
	}
	var nsu *types.NoSuchUpload
	if errors.As(err, &nsu) {
		return &Error{Kind: KindUploadFailed, Provider: ProviderStorage, Message: "multipart upload no longer exists", RawCode: "NoSuchUpload", Err: err}
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		var respErr *smithyhttp.ResponseError
		if errors.As(err, &respErr) {
			kind := KindFromStatus(respErr.HTTPStatusCode())
			if kind == "" {
				kind = KindUploadFailed
			}
			return &Error{Kind: kind, Provider: ProviderStorage, Message: err.Error(), Err: err}
		}
		return nil
	}

	code := apiErr.ErrorCode()
	e := &Error{Provider: ProviderStorage, Message: apiErr.ErrorMessage(), RawCode: code, Err: err}
	if e.Message == "" {
		e.Message = code
	}
	switch code {
	case "NoSuchKey", "NotFound", "NoSuchBucket":
		e.Kind = KindNotFound
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "Forbidden":
		e.Kind = KindUnauthorized
	case "EntityTooLarge":
		e.Kind = KindFileTooLarge
	case "SlowDown", "Throttling", "ThrottlingException", "RequestLimitExceeded", "TooManyRequests":
		e.Kind = KindRateLimit
	case "RequestTimeout":
		e.Kind = KindTimeout
	default:
		e.Kind = KindUploadFailed
	}
	return e
}

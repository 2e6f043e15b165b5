package commerce

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Kind классифицирует ошибку обращения к магазину.
type Kind int

const (
	KindUpstream Kind = iota
	KindConfiguration
	KindAuth
	KindRateLimit
	KindNotFound
	KindTransient
)

var (
	// ErrConfiguration возвращается, если учётные данные магазина не заданы.
	ErrConfiguration = errors.New("store is not configured")
	// ErrAuth возвращается при ответах 401 и 403.
	ErrAuth = errors.New("store rejected credentials")
	// ErrRateLimited возвращается при ответе 429 после исчерпания повторов.
	ErrRateLimited = errors.New("store rate limit exceeded")
	// ErrNotFound возвращается при ответе 404.
	ErrNotFound = errors.New("store resource not found")
	// ErrTransient возвращается при ошибках сети и ответах 5xx.
	ErrTransient = errors.New("store temporarily unavailable")
	// ErrUpstream возвращается при прочих ответах 4xx.
	ErrUpstream = errors.New("store request failed")
)

// APIError описывает неуспешное обращение к магазину.
type APIError struct {
	Kind       Kind
	StatusCode int
	Code       string
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("store api: status %d: %s", e.StatusCode, e.Message)
	}
	return "store api: " + e.Message
}

// Unwrap позволяет сравнивать ошибку с сентинелами пакета и исходной причиной.
func (e *APIError) Unwrap() []error {
	errs := []error{e.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (e *APIError) sentinel() error {
	switch e.Kind {
	case KindConfiguration:
		return ErrConfiguration
	case KindAuth:
		return ErrAuth
	case KindRateLimit:
		return ErrRateLimited
	case KindNotFound:
		return ErrNotFound
	case KindTransient:
		return ErrTransient
	default:
		return ErrUpstream
	}
}

// Retryable сообщает, имеет ли смысл повторять запрос.
func (e *APIError) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindTransient, KindUpstream:
		return true
	}
	return false
}

// KindFromStatus сопоставляет HTTP-статус виду ошибки.
func KindFromStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusNotFound:
		return KindNotFound
	case code == http.StatusTooManyRequests:
		return KindRateLimit
	case code >= 500:
		return KindTransient
	default:
		return KindUpstream
	}
}

type wooError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newStatusError(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		Kind:       KindFromStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
	}

	var we wooError
	if err := json.Unmarshal(body, &we); err == nil && we.Message != "" {
		apiErr.Code = we.Code
		apiErr.Message = we.Message
	}

	if v := resp.Header.Get("Retry-After"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil {
			apiErr.RetryAfter = time.Duration(seconds) * time.Second
		}
	}

	return apiErr
}

func configurationError(msg string) *APIError {
	return &APIError{Kind: KindConfiguration, Message: msg}
}

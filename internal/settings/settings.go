// Package settings loads the company details shown on the site from a
// key-value store, merged over built-in defaults.
//
// The loader only reads. Every failure (no store, missing key, read error,
// malformed value) degrades to the defaults.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pkglog "github.com/theroutercompany/devdirect_website/pkg/log"
)

// StorageKey is the key company settings are stored under.
const StorageKey = "nimli-company-settings"

// Fallback reasons reported to a FallbackRecorder.
const (
	ReasonUnavailable = "unavailable"
	ReasonMissing     = "missing"
	ReasonReadError   = "read_error"
	ReasonParseError  = "parse_error"
)

// CompanySettings describes the operating business.
type CompanySettings struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Siret   string `json:"siret"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	VAT     string `json:"vat"`
}

// Defaults returns the settings used when nothing usable is stored.
func Defaults() CompanySettings {
	return CompanySettings{
		Name:  "Nimli",
		Email: "contact@nimli.fr",
	}
}

// FallbackRecorder is notified whenever Load returns defaults.
type FallbackRecorder func(reason string)

// Loader reads CompanySettings from a Storage on every call.
type Loader struct {
	storage  Storage
	logger   pkglog.Logger
	fallback FallbackRecorder
}

// LoaderOption customises a Loader.
type LoaderOption func(*Loader)

// WithLogger overrides the logger used to report fallbacks.
func WithLogger(logger pkglog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithFallbackRecorder registers a hook invoked on every fallback.
func WithFallbackRecorder(fn FallbackRecorder) LoaderOption {
	return func(l *Loader) {
		l.fallback = fn
	}
}

// NewLoader builds a loader over storage. A nil storage behaves as Unavailable.
func NewLoader(storage Storage, opts ...LoaderOption) *Loader {
	if storage == nil {
		storage = Unavailable{}
	}
	l := &Loader{storage: storage, logger: pkglog.Shared()}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Load returns the stored settings merged over Defaults. Keys are matched
// exactly and stored fields win, including empty strings. A null field is
// read as an empty string. Unknown keys are ignored.
func (l *Loader) Load(ctx context.Context) CompanySettings {
	defaults := Defaults()

	if !Available(l.storage) {
		l.recordFallback(ReasonUnavailable)
		return defaults
	}

	raw, ok, err := l.storage.GetItem(ctx, StorageKey)
	if err != nil {
		l.logger.Warnw("company settings read failed", "key", StorageKey, "error", err)
		l.recordFallback(ReasonReadError)
		return defaults
	}
	if !ok {
		l.recordFallback(ReasonMissing)
		return defaults
	}

	merged, err := mergeStored(defaults, raw)
	if err != nil {
		l.logger.Warnw("company settings malformed", "key", StorageKey, "error", err)
		l.recordFallback(ReasonParseError)
		return defaults
	}
	return merged
}

func mergeStored(base CompanySettings, raw string) (CompanySettings, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return base, err
	}
	if doc == nil {
		return base, errors.New("settings document is null")
	}

	fields := []struct {
		key string
		dst *string
	}{
		{"name", &base.Name},
		{"address", &base.Address},
		{"siret", &base.Siret},
		{"email", &base.Email},
		{"phone", &base.Phone},
		{"vat", &base.VAT},
	}
	for _, f := range fields {
		value, ok := doc[f.key]
		if !ok {
			continue
		}
		if string(value) == "null" {
			*f.dst = ""
			continue
		}
		if err := json.Unmarshal(value, f.dst); err != nil {
			return base, fmt.Errorf("settings field %q: %w", f.key, err)
		}
	}
	return base, nil
}

func (l *Loader) recordFallback(reason string) {
	if l.fallback != nil {
		l.fallback(reason)
	}
}

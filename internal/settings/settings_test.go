package settings

import (
	"context"
	"errors"
	"testing"

	pkglog "github.com/theroutercompany/devdirect_website/pkg/log"
)

type failingStorage struct{}

func (failingStorage) GetItem(context.Context, string) (string, bool, error) {
	return "", false, errors.New("disk on fire")
}

func newTestLoader(t *testing.T, storage Storage) (*Loader, *[]string) {
	t.Helper()
	var reasons []string
	l := NewLoader(storage,
		WithLogger(pkglog.Nop()),
		WithFallbackRecorder(func(reason string) { reasons = append(reasons, reason) }),
	)
	return l, &reasons
}

func TestDefaults(t *testing.T) {
	want := CompanySettings{Name: "Nimli", Email: "contact@nimli.fr"}
	if got := Defaults(); got != want {
		t.Fatalf("unexpected defaults: %+v", got)
	}
}

func TestLoadWithoutStorageReturnsDefaults(t *testing.T) {
	l, reasons := newTestLoader(t, Unavailable{})
	if got := l.Load(context.Background()); got != Defaults() {
		t.Fatalf("expected defaults, got %+v", got)
	}
	if len(*reasons) != 1 || (*reasons)[0] != ReasonUnavailable {
		t.Fatalf("unexpected fallback reasons: %v", *reasons)
	}

	if got := NewLoader(nil, WithLogger(pkglog.Nop())).Load(context.Background()); got != Defaults() {
		t.Fatalf("expected defaults for nil storage, got %+v", got)
	}
}

func TestLoadWithNoStoredValueReturnsDefaults(t *testing.T) {
	l, reasons := newTestLoader(t, NewMemory(nil))
	if got := l.Load(context.Background()); got != Defaults() {
		t.Fatalf("expected defaults, got %+v", got)
	}
	if (*reasons)[0] != ReasonMissing {
		t.Fatalf("unexpected fallback reason: %v", *reasons)
	}
}

func TestLoadMalformedValueReturnsDefaults(t *testing.T) {
	for _, raw := range []string{"{not json", "", "[1,2]", "null", `{"name": 42}`, `{"email": {"x": 1}}`} {
		l, reasons := newTestLoader(t, NewMemory(map[string]string{StorageKey: raw}))
		if got := l.Load(context.Background()); got != Defaults() {
			t.Fatalf("expected defaults for %q, got %+v", raw, got)
		}
		if (*reasons)[0] != ReasonParseError {
			t.Fatalf("unexpected fallback reason for %q: %v", raw, *reasons)
		}
	}
}

func TestLoadReadErrorReturnsDefaults(t *testing.T) {
	l, reasons := newTestLoader(t, failingStorage{})
	if got := l.Load(context.Background()); got != Defaults() {
		t.Fatalf("expected defaults, got %+v", got)
	}
	if (*reasons)[0] != ReasonReadError {
		t.Fatalf("unexpected fallback reason: %v", *reasons)
	}
}

func TestLoadMergesPartialDocument(t *testing.T) {
	l, reasons := newTestLoader(t, NewMemory(map[string]string{StorageKey: `{"email":"a@b.com"}`}))

	got := l.Load(context.Background())
	want := Defaults()
	want.Email = "a@b.com"
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	if len(*reasons) != 0 {
		t.Fatalf("expected no fallback, got %v", *reasons)
	}
}

func TestLoadStoredFieldsWin(t *testing.T) {
	raw := `{"name":"","address":"1 rue de Paris","siret":"12345678900011","phone":"+33 1 23 45 67 89","vat":"FR00123456789","email":null,"extra":"ignored"}`
	l, _ := newTestLoader(t, NewMemory(map[string]string{StorageKey: raw}))

	got := l.Load(context.Background())
	want := CompanySettings{
		Name:    "",
		Address: "1 rue de Paris",
		Siret:   "12345678900011",
		Email:   "",
		Phone:   "+33 1 23 45 67 89",
		VAT:     "FR00123456789",
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestLoadMatchesKeysExactly(t *testing.T) {
	raw := `{"EMAIL":"x@y.z","Name":"Other","Phone":"0600000000"}`
	l, reasons := newTestLoader(t, NewMemory(map[string]string{StorageKey: raw}))

	if got := l.Load(context.Background()); got != Defaults() {
		t.Fatalf("expected defaults for differently cased keys, got %+v", got)
	}
	if len(*reasons) != 0 {
		t.Fatalf("expected no fallback, got %v", *reasons)
	}

	l, _ = newTestLoader(t, NewMemory(map[string]string{StorageKey: `{"Name":"Other","name":"Nimli SAS"}`}))
	if got := l.Load(context.Background()); got.Name != "Nimli SAS" {
		t.Fatalf("expected exact key to win, got %+v", got)
	}
}

func TestLoadReadsOnEveryCall(t *testing.T) {
	mem := NewMemory(nil)
	l, _ := newTestLoader(t, mem)

	if got := l.Load(context.Background()); got != Defaults() {
		t.Fatalf("expected defaults first, got %+v", got)
	}
	mem.SetItem(StorageKey, `{"phone":"0102030405"}`)
	if got := l.Load(context.Background()); got.Phone != "0102030405" {
		t.Fatalf("expected fresh read, got %+v", got)
	}
}

func TestAvailable(t *testing.T) {
	if Available(nil) || Available(Unavailable{}) {
		t.Fatalf("expected unavailable storages")
	}
	if !Available(NewMemory(nil)) || !Available(NewFileStore("x.json")) {
		t.Fatalf("expected available storages")
	}
}

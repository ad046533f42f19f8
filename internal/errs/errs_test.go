package errs

import (
	"errors"
	"testing"
)

func TestProviderClassification(t *testing.T) {
	cases := []struct {
		reason ProviderReason
		want   Retryability
	}{
		{ProviderNetworkTimeout, Transient},
		{ProviderRateLimited, Transient},
		{ProviderNotFound, Permanent},
		{ProviderMalformed, Permanent},
	}
	for _, tc := range cases {
		err := NewProvider(tc.reason, "resolve_series", "boom", nil)
		_, retry := Classify(err)
		if retry != tc.want {
			t.Errorf("reason %s: got %v, want %v", tc.reason, retry, tc.want)
		}
	}
}

func TestStoragePermanentOverride(t *testing.T) {
	err := NewStorage("upsert", "unique constraint", nil, true)
	if err.Retryable() {
		t.Fatalf("expected permanent storage error to be non-retryable")
	}
}

func TestClassifyUnknownErrorIsPermanentInvariant(t *testing.T) {
	kind, retry := Classify(errors.New("boom"))
	if kind != KindInvariant || retry != Permanent {
		t.Fatalf("expected invariant/permanent for unrecognized error, got %v/%v", kind, retry)
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := New(KindFilesystem, "list_dir", "failed", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find wrapped cause")
	}
}

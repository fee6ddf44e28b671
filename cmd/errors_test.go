package cmd

import "testing"

func TestConfigValueError(t *testing.T) {
	err := &ConfigValueError{Key: "storage.driver", Value: "mongo", Reason: "want sqlite or json"}
	want := `invalid value "mongo" for storage.driver: want sqlite or json`
	if err.Error() != want {
		t.Fatalf("expected %s, got %s", want, err.Error())
	}

	err = &ConfigValueError{Key: "history.limit", Value: "-1"}
	want = `invalid value "-1" for history.limit`
	if err.Error() != want {
		t.Fatalf("expected %s, got %s", want, err.Error())
	}
}

func TestInvalidOriginError(t *testing.T) {
	err := &InvalidOriginError{Origin: "http://example.com", Reason: "must start with https://"}
	want := "origin http://example.com rejected: must start with https://"
	if err.Error() != want {
		t.Fatalf("expected %s, got %s", want, err.Error())
	}

	err = &InvalidOriginError{}
	if err.Error() != "origin is empty" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}

	err = &InvalidOriginError{Origin: "https://x"}
	if err.Error() != "origin https://x rejected" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
}

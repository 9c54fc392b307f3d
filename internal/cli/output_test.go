package cli

import (
	"errors"
	"testing"

	"maestro/internal/api"
)

func TestValidateOutputFormat(t *testing.T) {
	for _, format := range []string{"table", "wide", "json", "yaml"} {
		if err := ValidateOutputFormat(format); err != nil {
			t.Errorf("%q should be valid: %v", format, err)
		}
	}
	if err := ValidateOutputFormat("csv"); err == nil {
		t.Error("csv should be rejected")
	}
}

func TestResolveEndpointPrecedence(t *testing.T) {
	t.Setenv(EndpointEnvVar, "")
	if got := ResolveEndpoint(""); got != DefaultEndpoint {
		t.Fatalf("default: got %q", got)
	}

	t.Setenv(EndpointEnvVar, "http://env:8090")
	if got := ResolveEndpoint(""); got != "http://env:8090" {
		t.Fatalf("env: got %q", got)
	}
	if got := ResolveEndpoint("http://flag:8090"); got != "http://flag:8090" {
		t.Fatalf("flag must win: got %q", got)
	}
}

func TestExitCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{errors.New("boom"), ExitError},
		{api.NewValidationError("name", "required"), ExitValidation},
		{api.NewInstanceNotFoundError("inst-1"), ExitNotFound},
		{api.NewConflictError("inst-1", "wrong state"), ExitConflict},
		{api.NewTimeoutError("instance.commands.process", 0), ExitTimeout},
		{api.NewTransportError("publish", "status.events", errors.New("closed")), ExitTransport},
	}
	for _, tc := range cases {
		if got := ExitCode(tc.err); got != tc.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

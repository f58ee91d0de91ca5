// TEST TYPE: Unit Tests
// DEPENDENCIES: None
// PURPOSE: Verify error kinds, wrapping of raw causes and exit code mapping

package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/arthur-debert/modkeeper/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	cause := stderrors.New("permission denied")

	tests := []struct {
		name string
		err  *errors.ModkeeperError
		want string
	}{
		{"plain", errors.New(errors.ErrNotFound, "package better-ui not found"), "[NOT_FOUND] package better-ui not found"},
		{"formatted", errors.Newf(errors.ErrExtractionTimeout, "no fingerprint after %s", "30m0s"), "[EXTRACTION_TIMEOUT] no fingerprint after 30m0s"},
		{"wrapped keeps raw cause", errors.Wrap(cause, errors.ErrFileSystem, "cannot copy Data/items.json"), "[FILESYSTEM] cannot copy Data/items.json: permission denied"},
		{"wrapf", errors.Wrapf(cause, errors.ErrExternalProcess, "launch %s", "game.exe"), "[EXTERNAL_PROCESS] launch game.exe: permission denied"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
			assert.NotNil(t, tt.err.Details)
		})
	}
}

func TestWrap_Nil(t *testing.T) {
	assert.Nil(t, errors.Wrap(nil, errors.ErrInternal, "x"))
	assert.Nil(t, errors.Wrapf(nil, errors.ErrInternal, "x %d", 1))
}

func TestWrap_CauseReachable(t *testing.T) {
	cause := stderrors.New("disk full")
	err := fmt.Errorf("deploy alpha: %w", errors.Wrap(cause, errors.ErrFileSystem, "write failed"))

	assert.ErrorIs(t, err, cause)
	assert.True(t, errors.IsErrorCode(err, errors.ErrFileSystem))
	assert.Equal(t, errors.ErrFileSystem, errors.GetErrorCode(err))
	assert.ErrorIs(t, err, errors.New(errors.ErrFileSystem, ""), "kinds compare by code")
	assert.NotErrorIs(t, err, errors.New(errors.ErrNotFound, ""))
}

func TestErrorCodeLookup(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code errors.ErrorCode
		want bool
	}{
		{"same code", errors.New(errors.ErrNotFound, "x"), errors.ErrNotFound, true},
		{"other code", errors.New(errors.ErrNotFound, "x"), errors.ErrInternal, false},
		{"outer code wins", errors.Wrap(errors.New(errors.ErrNotFound, "x"), errors.ErrInvalidState, "y"), errors.ErrInvalidState, true},
		{"plain error", stderrors.New("x"), errors.ErrNotFound, false},
		{"nil", nil, errors.ErrNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.IsErrorCode(tt.err, tt.code))
		})
	}

	assert.Equal(t, errors.ErrUnknown, errors.GetErrorCode(stderrors.New("x")))
	assert.Nil(t, errors.GetErrorDetails(stderrors.New("x")))
}

func TestDomainErrors(t *testing.T) {
	cycle := errors.NewCycleError([]string{"b", "a"})
	require.True(t, errors.IsErrorCode(cycle, errors.ErrCycleDetected))
	assert.Equal(t, []string{"a", "b"}, errors.CyclePackages(cycle))
	assert.Equal(t, []string{"a", "b"}, errors.CyclePackages(fmt.Errorf("resolve: %w", cycle)))
	assert.Nil(t, errors.CyclePackages(stderrors.New("other")))

	missing := errors.NewMissingDependency("better-ui", "core-lib")
	details := errors.GetErrorDetails(missing)
	assert.Equal(t, "better-ui", details[errors.DetailPackage])
	assert.Equal(t, "core-lib", details[errors.DetailDependency])
	assert.Contains(t, missing.Error(), "requires core-lib")

	withPath := (&errors.ModkeeperError{Code: errors.ErrFileSystem}).WithDetail(errors.DetailPath, "Data/a.txt")
	assert.Equal(t, "Data/a.txt", withPath.Details[errors.DetailPath])
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, errors.ExitOK},
		{"cycle", errors.NewCycleError([]string{"a"}), errors.ExitCycleDetected},
		{"missing dependency", errors.NewMissingDependency("a", "b"), errors.ExitMissingDependency},
		{"filesystem", errors.New(errors.ErrFileSystem, "x"), errors.ExitFileSystem},
		{"external", errors.New(errors.ErrExternalProcess, "x"), errors.ExitExternalProcessFailure},
		{"timeout", errors.New(errors.ErrExtractionTimeout, "x"), errors.ExitExtractionTimeout},
		{"concurrent", errors.New(errors.ErrConcurrentOperation, "x"), errors.ExitConcurrentOperation},
		{"usage", errors.New(errors.ErrInvalidInput, "x"), errors.ExitUsage},
		{"wrapped usage", fmt.Errorf("flags: %w", errors.New(errors.ErrInvalidInput, "x")), errors.ExitUsage},
		{"other kind", errors.New(errors.ErrInternal, "x"), errors.ExitGeneric},
		{"plain", stderrors.New("plain"), errors.ExitGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.ExitCode(tt.err))
		})
	}
}

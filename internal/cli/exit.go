package cli

import (
	"errors"

	"github.com/cwygoda/shotgrab/internal/domain"
)

// Exit codes returned by Execute.
const (
	ExitOK             = 0
	ExitFailure        = 1
	ExitAuthentication = 2
	ExitRejected       = 3
	ExitRemoteJob      = 4
	ExitNetwork        = 5
	ExitDownload       = 6
	ExitMalformed      = 7
	ExitPollLimit      = 8
)

var exitCodes = []struct {
	kind error
	code int
}{
	{domain.ErrAuthentication, ExitAuthentication},
	{domain.ErrRequestRejected, ExitRejected},
	{domain.ErrRemoteJob, ExitRemoteJob},
	{domain.ErrDownload, ExitDownload},
	{domain.ErrMalformedResponse, ExitMalformed},
	{domain.ErrPollLimit, ExitPollLimit},
	{domain.ErrNetwork, ExitNetwork},
}

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	for _, c := range exitCodes {
		if errors.Is(err, c.kind) {
			return c.code
		}
	}
	return ExitFailure
}

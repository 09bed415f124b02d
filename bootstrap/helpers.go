package bootstrap

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"reqtrace/backend"
	"reqtrace/core"
	"reqtrace/tables"
)

// ClassifyBackendError turns a failed report or table check into a message
// with remediation hints for the operator.
func ClassifyBackendError(err error, baseURL string) string {
	if err == nil {
		return ""
	}

	var verr *tables.ValidationError
	if errors.As(err, &verr) {
		msg := fmt.Sprintf("External table %s was rejected: %v", verr.Source, verr.Err)
		if len(verr.Missing) > 0 {
			msg += fmt.Sprintf("\n  Missing columns: %s", strings.Join(verr.Missing, ", "))
			msg += "\n  Remediation:\n  - Put the header on row 1 or row 3 of the first sheet"
		}
		if errors.Is(err, tables.ErrSourceNotAllowed) {
			msg += "\n  Remediation:\n  - Add the bucket to tables.allowed_buckets or place the file under tables.local_root"
		}
		return msg
	}

	var statusErr *backend.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode() {
		case 401, 403:
			return fmt.Sprintf("Backend at %s rejected the credentials (HTTP %d).\n"+
				"  Remediation:\n"+
				"  - Check the personal access token in REQTRACE_BACKEND_TOKEN or backend.token\n"+
				"  - Verify the token has read access to work items and test plans", baseURL, statusErr.StatusCode())
		case 404:
			return fmt.Sprintf("Backend at %s returned not found for %s.\n"+
				"  Remediation:\n"+
				"  - Verify backend.organization and backend.project\n"+
				"  - Verify the plan and suite ids exist", baseURL, statusErr.Endpoint)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("Connection to backend at %s timed out.\n"+
			"  Remediation:\n"+
			"  - Raise backend.timeout or fetch.timeout\n"+
			"  - Lower fetch.max_concurrency if the backend is throttling", baseURL)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" && errors.Is(opErr.Err, syscall.ECONNREFUSED) {
		return fmt.Sprintf("Connection refused by backend at %s.\n"+
			"  Remediation:\n"+
			"  - Verify backend.base_url", baseURL)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Sprintf("Cannot resolve backend hostname in %s.\n"+
			"  Remediation:\n"+
			"  - Verify backend.base_url and DNS configuration", baseURL)
	}

	if errors.Is(err, core.ErrInvalidRequest) {
		return fmt.Sprintf("Invalid request: %v", err)
	}

	return fmt.Sprintf("Report failed: %v", err)
}

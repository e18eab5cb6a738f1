package version

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rxtech-lab/pairs-ledger/pkg/errors"
)

// CheckCompatibility checks if a client built against clientVersion can read the reports of a
// ledger running serverVersion. Returns nil if compatible, error with details if not.
//
// Compatibility Rules:
//   - If either version is "main" (development build), compatibility check is skipped
//   - Major versions must match exactly
//   - Minor versions must match exactly
//   - Patch versions can differ (e.g., 1.2.0 is compatible with 1.2.5)
func CheckCompatibility(serverVersion, clientVersion string) error {
	serverVersion = strings.TrimPrefix(serverVersion, "v")
	clientVersion = strings.TrimPrefix(clientVersion, "v")

	if serverVersion == "main" || clientVersion == "main" {
		return nil
	}

	server, err := semver.NewVersion(serverVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeIncompatibleVersion, err, "invalid ledger version '%s'", serverVersion)
	}

	client, err := semver.NewVersion(clientVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeIncompatibleVersion, err, "invalid client version '%s'", clientVersion)
	}

	if server.Major() != client.Major() {
		return errors.Newf(errors.ErrCodeIncompatibleVersion,
			"major version mismatch: ledger is %d.x.x but client requires %d.x.x",
			server.Major(), client.Major())
	}

	if server.Minor() != client.Minor() {
		return errors.Newf(errors.ErrCodeIncompatibleVersion,
			"minor version mismatch: ledger is %d.%d.x but client requires %d.%d.x",
			server.Major(), server.Minor(), client.Major(), client.Minor())
	}

	return nil
}

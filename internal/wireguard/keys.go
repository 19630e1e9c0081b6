package wireguard

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	nymerrors "go.nymvpn.network/core/internal/errors"
	"go.nymvpn.network/core/internal/logging"
)

// Role names one of the four on-disk keypairs (free/paid x entry/exit)
// named in spec §4.2 "Key persistence".
type Role struct {
	Paid      bool
	Direction string // "entry" or "exit"
}

func (r Role) filename() string {
	tier := "free"
	if r.Paid {
		tier = "paid"
	}
	return fmt.Sprintf("wg-%s-%s.key", tier, r.Direction)
}

// LoadOrGenerateKey reads the keypair for role from dir, generating and
// persisting one if missing. Unreadable (but present) files fall back to
// an ephemeral key with a logged error, per spec §4.2.
func LoadOrGenerateKey(dir string, role Role, logger *logging.Logger) (wgtypes.Key, error) {
	if logger == nil {
		logger = logging.Default().WithComponent("wireguard")
	}
	path := filepath.Join(dir, role.filename())

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		key, kerr := wgtypes.ParseKey(string(data))
		if kerr != nil {
			logger.Error("unreadable wireguard keypair file, using ephemeral key", "path", path, "error", kerr)
			return wgtypes.GeneratePrivateKey()
		}
		return key, nil
	case os.IsNotExist(err):
		key, gerr := wgtypes.GeneratePrivateKey()
		if gerr != nil {
			return wgtypes.Key{}, nymerrors.Wrap(gerr, nymerrors.KindInternal, "generate wireguard keypair")
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return wgtypes.Key{}, nymerrors.Wrap(err, nymerrors.KindInternal, "create wireguard key directory")
		}
		if err := os.WriteFile(path, []byte(key.String()), 0o600); err != nil {
			logger.Error("failed to persist generated wireguard keypair", "path", path, "error", err)
		}
		return key, nil
	default:
		logger.Error("unreadable wireguard keypair file, using ephemeral key", "path", path, "error", err)
		return wgtypes.GeneratePrivateKey()
	}
}

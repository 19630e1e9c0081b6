//go:build linux

package firewall

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/google/nftables"

	nymerrors "go.nymvpn.network/core/internal/errors"
)

// LinuxBackend applies policy via nft(8), using the same "build the full
// script as text, push it in one `nft -f -` transaction" idiom as
// grimm-is-flywall/internal/firewall/atomic.go's AtomicRulesetUpdate, and
// uses github.com/google/nftables purely to confirm the table landed (an
// independent, structured read-path check rather than re-deriving the
// rule text through the byte-level expression API, which the upstream
// Manager itself mostly avoids too by pushing pre-rendered scripts).
type LinuxBackend struct {
	conn *nftables.Conn
}

// NewLinuxBackend opens a netlink connection to the kernel nftables
// subsystem.
func NewLinuxBackend() (*LinuxBackend, error) {
	conn, err := nftables.New()
	if err != nil {
		return nil, nymerrors.Wrap(err, nymerrors.KindUnavailable, "open nftables connection")
	}
	return &LinuxBackend{conn: conn}, nil
}

func (b *LinuxBackend) Apply(p Policy) error {
	script := renderScript(p)
	if err := runNft(script); err != nil {
		return nymerrors.Wrap(err, nymerrors.KindInternal, "apply firewall policy")
	}
	return b.verifyTablePresent()
}

func (b *LinuxBackend) Reset() error {
	if err := runNft(resetScript()); err != nil {
		return nymerrors.Wrap(err, nymerrors.KindInternal, "reset firewall policy")
	}
	return nil
}

func (b *LinuxBackend) verifyTablePresent() error {
	tables, err := b.conn.ListTables()
	if err != nil {
		return nymerrors.Wrap(err, nymerrors.KindUnavailable, "list nftables tables after apply")
	}
	for _, t := range tables {
		if t.Name == tableName {
			return nil
		}
	}
	return nymerrors.Errorf(nymerrors.KindInternal, "table %s missing immediately after apply", tableName)
}

func runNft(script string) error {
	cmd := exec.Command("nft", "-f", "-")
	cmd.Stdin = strings.NewReader(script)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("nft apply failed: %w\noutput: %s", err, string(out))
	}
	return nil
}

package tun

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedDAD struct {
	tentativeFor int
	calls        int
}

func (d *scriptedDAD) IsTentative(string, netip.Addr) (bool, error) {
	d.calls++
	return d.calls <= d.tentativeFor, nil
}

func TestWaitDAD_ReturnsImmediatelyForIPv4(t *testing.T) {
	err := WaitDAD(context.Background(), "nymtun0", netip.MustParseAddr("10.0.0.2"), NoDAD{}, nil)
	require.NoError(t, err)
}

func TestWaitDAD_PollsUntilResolved(t *testing.T) {
	d := &scriptedDAD{tentativeFor: 2}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := WaitDAD(ctx, "nymtun0", netip.MustParseAddr("fd00::2"), d, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, d.calls, 3)
}

type alwaysTentative struct{}

func (alwaysTentative) IsTentative(string, netip.Addr) (bool, error) { return true, nil }

func TestWaitDAD_TimesOutIfNeverResolved(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := WaitDAD(ctx, "nymtun0", netip.MustParseAddr("fd00::2"), alwaysTentative{}, nil)
	require.Error(t, err)
}

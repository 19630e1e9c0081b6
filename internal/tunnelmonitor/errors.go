package tunnelmonitor

import nymerrors "go.nymvpn.network/core/internal/errors"

var errReplyTimeout = nymerrors.Errorf(nymerrors.KindTimeout, "state machine did not acknowledge tunnel monitor event within %s", replyAckTimeout)

package ipc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nymerrors "go.nymvpn.network/core/internal/errors"
	"go.nymvpn.network/core/internal/tunnelstate"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestJSONCodec_RoundTrips(t *testing.T) {
	c := jsonCodec{}
	want := ConnectRequest{CredentialsMode: true, DNS: []string{"1.1.1.1"}}

	data, err := c.Marshal(&want)
	require.NoError(t, err)

	var got ConnectRequest
	require.NoError(t, c.Unmarshal(data, &got))
	assert.Equal(t, want, got)
}

func TestJSONCodec_Name(t *testing.T) {
	assert.Equal(t, "json", jsonCodec{}.Name())
}

func TestStatusFromPublicState_FlattensReason(t *testing.T) {
	s := tunnelstate.PublicState{Case: tunnelstate.CaseError, Reason: nymerrors.New(nymerrors.KindUnavailable, "gateway down")}
	r := statusFromPublicState(s)
	assert.Equal(t, "Error", r.Case)
	assert.Equal(t, "gateway down", r.Reason)
}

func TestToGRPCError_MapsKindsToCodes(t *testing.T) {
	cases := []struct {
		kind nymerrors.Kind
		want codes.Code
	}{
		{nymerrors.KindNotFound, codes.NotFound},
		{nymerrors.KindValidation, codes.InvalidArgument},
		{nymerrors.KindConflict, codes.FailedPrecondition},
		{nymerrors.KindPermission, codes.PermissionDenied},
		{nymerrors.KindUnavailable, codes.Unavailable},
		{nymerrors.KindTimeout, codes.DeadlineExceeded},
		{nymerrors.KindInternal, codes.Internal},
	}
	for _, c := range cases {
		err := toGRPCError(nymerrors.New(c.kind, "boom"))
		st, ok := status.FromError(err)
		require.True(t, ok)
		assert.Equal(t, c.want, st.Code())
	}
}

func TestToGRPCError_Nil(t *testing.T) {
	assert.NoError(t, toGRPCError(nil))
}

func TestDirectionFilter(t *testing.T) {
	assert.Equal(t, "/entry", string(directionFilter(FilterEntry)))
	assert.Equal(t, "/exit", string(directionFilter(FilterExit)))
	assert.Equal(t, "", string(directionFilter(FilterVPN)))
}

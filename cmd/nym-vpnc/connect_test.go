package main

import (
	"strings"
	"testing"

	"go.nymvpn.network/core/internal/ipc"
	"go.nymvpn.network/core/internal/model"
)

func TestStyleCaseKnownStatesContainTheStateName(t *testing.T) {
	for _, state := range []string{"Connected", "Error", "Offline", "Connecting", "Disconnecting"} {
		if out := styleCase(state); !strings.Contains(out, state) {
			t.Errorf("styleCase(%q) = %q, want it to still contain %q", state, out, state)
		}
	}
}

func TestStyleCaseUnknownStatePassesThrough(t *testing.T) {
	if got := styleCase("Disconnected"); got != "Disconnected" {
		t.Errorf("styleCase(Disconnected) = %q, want unstyled passthrough", got)
	}
}

func TestPrintStatusDoesNotPanicOnEmptyResponse(t *testing.T) {
	printStatus(ipc.StatusResponse{Case: "Disconnected"})
}

func TestPrintStatusWithGatewaysAndReason(t *testing.T) {
	printStatus(ipc.StatusResponse{
		Case:         "Error",
		RetryAttempt: 2,
		Gateways:     &model.SelectedGateways{Entry: model.Gateway{Identity: "entry-gw"}, Exit: model.Gateway{Identity: "exit-gw"}},
		Reason:       "gateway unreachable",
	})
}

package ipc

import (
	"context"
	"fmt"
	"runtime"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// SocketPath returns the per-OS IPC socket path from spec §6. Windows uses
// a named pipe address recognized by grpc's pipe-aware dialer rather than a
// filesystem path.
func SocketPath() string {
	switch runtime.GOOS {
	case "darwin":
		return "/var/run/nym-vpn.sock"
	case "windows":
		return `\\.\pipe\nym-vpn`
	default:
		return "/run/nym-vpn.sock"
	}
}

// Dial opens a grpc.ClientConn to the daemon over the platform socket,
// using jsonCodec for every call (grpc.CallContentSubtype forces it per
// RPC since ForceCodec isn't available on the dial options used here).
func Dial(ctx context.Context, socketPath string) (*grpc.ClientConn, error) {
	target := "unix://" + socketPath
	if runtime.GOOS == "windows" {
		target = "passthrough:" + socketPath
	}
	conn, err := grpc.NewClient(
		target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("ipc: dial %s: %w", socketPath, err)
	}
	return conn, nil
}

// Call invokes one unary RPC by method name against conn, encoding req and
// decoding into resp via jsonCodec.
func Call(ctx context.Context, conn *grpc.ClientConn, method string, req, resp any) error {
	fullMethod := "/" + ServiceName + "/" + method
	return conn.Invoke(ctx, fullMethod, req, resp, grpc.CallContentSubtype(codecName))
}

// StatusStream opens the `status --listen` server-stream and returns a
// channel of every StatusResponse the daemon publishes until ctx is
// cancelled or the stream ends.
func StatusStream(ctx context.Context, conn *grpc.ClientConn) (<-chan StatusResponse, error) {
	desc := &grpc.StreamDesc{StreamName: "StatusStream", ServerStreams: true}
	stream, err := conn.NewStream(ctx, desc, "/"+ServiceName+"/StatusStream", grpc.CallContentSubtype(codecName))
	if err != nil {
		return nil, fmt.Errorf("ipc: open status stream: %w", err)
	}
	if err := stream.SendMsg(&Empty{}); err != nil {
		return nil, fmt.Errorf("ipc: send status stream request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fmt.Errorf("ipc: close status stream send: %w", err)
	}

	ch := make(chan StatusResponse)
	go func() {
		defer close(ch)
		for {
			var resp StatusResponse
			if err := stream.RecvMsg(&resp); err != nil {
				return
			}
			select {
			case ch <- resp:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/conveyor-foundation/conveyor/lib/codec"
)

// dialTimeout covers only the connect phase; the daemon accepts
// immediately when healthy.
const dialTimeout = 5 * time.Second

// responseReadTimeout is how long the client waits for the response
// after writing the request. Matched to the server's readTimeout plus
// writeTimeout to allow for handler execution.
const responseReadTimeout = 45 * time.Second

// maxResponseSize matches the server's maxRequestSize. Run snapshots
// for wide pipelines dominate response size and stay well under it.
const maxResponseSize = 1024 * 1024

// CallError is returned by Call when the daemon responds with
// ok=false.
type CallError struct {
	Action  string
	Message string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("daemon error on %q: %s", e.Action, e.Message)
}

// Client sends control requests to a Conveyor daemon socket. Each
// Call opens a new connection, matching the server's
// one-request-per-connection model.
type Client struct {
	socketPath string
}

// NewClient creates a client for the daemon socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Call sends one request and decodes the response.
//
// The fields map carries action-specific request fields; the client
// adds "action" itself. Pass nil for actions without parameters. On
// ok=true, response data (if any) is decoded into result when result
// is non-nil. On ok=false, returns a *CallError with the daemon's
// message. Connection and encoding failures are plain errors.
func (c *Client) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	request := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		request[key] = value
	}
	request["action"] = action

	response, err := c.send(ctx, request)
	if err != nil {
		return fmt.Errorf("calling %q on %s: %w", action, c.socketPath, err)
	}

	if !response.OK {
		return &CallError{
			Action:  action,
			Message: response.Error,
		}
	}

	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding response data for %q: %w", action, err)
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, request any) (*Response, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}

	// Half-close the write side so the server's read sees a clean EOF.
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	conn.SetReadDeadline(time.Now().Add(responseReadTimeout))
	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &response, nil
}

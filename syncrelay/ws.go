// Copyright 2025 The syncrelay Authors
// SPDX-License-Identifier: Apache-2.0

package syncrelay

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"golang.org/x/net/websocket"
)

// DeviceChannel returns the websocket attach endpoint. A device connects,
// authenticates, is registered in the DeviceRegistry with a send capability
// bound to the socket, and then streams deltas in while broadcasts flow out
// on the same connection. Disconnecting unregisters the device; a reconnect
// registers it again with the new socket.
func (h *HTTPHandlers) DeviceChannel() http.Handler {
	return websocket.Handler(h.serveDeviceSocket)
}

func (h *HTTPHandlers) serveDeviceSocket(conn *websocket.Conn) {
	defer conn.Close()

	r := conn.Request()
	userID, err := h.authenticator.GetUserID(r)
	if err == nil {
		var deviceID string
		if deviceID, err = h.authenticator.GetDeviceID(r); err == nil {
			h.runDeviceSocket(conn, userID, deviceID)
			return
		}
	}

	h.logger.Debug("Device channel auth failed", "error", err)
	_ = websocket.JSON.Send(conn, ErrorResponse{Error: "authentication_failed", Message: err.Error()})
}

func (h *HTTPHandlers) runDeviceSocket(conn *websocket.Conn, userID, deviceID string) {
	dc := &deviceConn{conn: conn}

	h.relay.RegisterDevice(userID, deviceID, dc.send)
	defer h.relay.UnregisterDevice(userID, deviceID)

	h.logger.Info("Device attached", "user_id", userID, "device_id", deviceID)
	defer h.logger.Info("Device detached", "user_id", userID, "device_id", deviceID)

	ctx := conn.Request().Context()
	for {
		var delta DeltaChange
		if err := websocket.JSON.Receive(conn, &delta); err != nil {
			if !errors.Is(err, io.EOF) {
				h.logger.Debug("Device channel read failed",
					"error", err, "user_id", userID, "device_id", deviceID)
			}
			return
		}

		if _, err := h.relay.HandleDeltaChange(ctx, userID, deviceID, &delta); err != nil {
			// Report the rejection on the same channel; the loop keeps
			// serving so one bad delta does not drop the device.
			dc.sendJSON(ErrorResponse{Error: deltaErrorCode(err), Message: err.Error()})
		}
	}
}

func deltaErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "invalid_delta"
	case errors.Is(err, ErrStorage):
		return "storage_failed"
	default:
		return "delta_failed"
	}
}

// deviceConn wraps a websocket connection with a write lock: broadcast
// goroutines and the read loop's error replies share the socket.
type deviceConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (dc *deviceConn) send(ctx context.Context, msg *BroadcastMessage) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		if err := dc.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}
	return websocket.JSON.Send(dc.conn, msg)
}

func (dc *deviceConn) sendJSON(v any) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	_ = websocket.JSON.Send(dc.conn, v)
}

package server

import (
	"encoding/json"
	"log"
	"path/filepath"

	apperrors "github.com/safedit/host/internal/errors"
)

// handleWorkspace processes workspace.set and workspace.get.
// A successful set is broadcast to every client so each can refresh its
// view of the workspace.
func (c *Client) handleWorkspace(reqType MessageType, reqID string, data []byte) {
	var msg struct {
		Type    MessageType      `json:"type"`
		ID      string           `json:"id,omitempty"`
		Payload WorkspacePayload `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("server: failed to parse %s payload: %v", reqType, err)
		c.sendWorkspaceError(reqType, reqID, apperrors.InvalidMessage("invalid message format"))
		return
	}

	switch reqType {
	case MessageTypeWorkspaceSet:
		name := msg.Payload.Name
		if name == "" {
			c.sendWorkspaceError(reqType, reqID, apperrors.InvalidMessage("name is required"))
			return
		}
		prev, next, err := c.server.guard.Set(name)
		if err != nil {
			c.sendWorkspaceError(reqType, reqID, err)
			return
		}
		if prev != next {
			log.Printf("server: workspace switched from %q to %q", prev, next)
		}
		c.sendResult(NewResultMessage(reqType, reqID, WorkspaceResultPayload{
			OK:     true,
			Name:   filepath.Base(next),
			Root:   next,
			Exists: true,
		}))
		c.server.Broadcast(NewWorkspaceStatusMessage(filepath.Base(next), next))

	case MessageTypeWorkspaceGet:
		info, err := c.server.guard.Info()
		if err != nil {
			c.sendWorkspaceError(reqType, reqID, err)
			return
		}
		c.sendResult(NewResultMessage(reqType, reqID, WorkspaceResultPayload{
			OK:     true,
			Name:   filepath.Base(info.Root),
			Root:   info.Root,
			Exists: info.Exists && info.IsDir,
		}))
	}
}

func (c *Client) sendWorkspaceError(reqType MessageType, reqID string, err error) {
	code, message := apperrors.ToCodeAndMessage(err)
	log.Printf("server: %s failed: %v", reqType, err)
	c.sendResult(NewResultMessage(reqType, reqID, WorkspaceResultPayload{
		OK:      false,
		Code:    code,
		Message: message,
	}))
}

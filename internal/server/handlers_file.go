package server

import (
	"encoding/json"
	"log"

	apperrors "github.com/safedit/host/internal/errors"
	"github.com/safedit/host/internal/fsops"
)

// defaultLineCount is used for file.head and file.tail when the request
// does not specify one.
const defaultLineCount = 10

// handleFile processes the read-only file.* request family.
func (c *Client) handleFile(reqType MessageType, reqID string, data []byte) {
	var msg struct {
		Type    MessageType `json:"type"`
		ID      string      `json:"id,omitempty"`
		Payload FilePayload `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("server: failed to parse %s payload: %v", reqType, err)
		c.sendFileError(reqType, reqID, apperrors.InvalidMessage("invalid message format"))
		return
	}

	p := msg.Payload

	switch reqType {
	case MessageTypeFileList:
		var (
			entries []fsops.Entry
			err     error
		)
		if p.Recursive {
			entries, err = c.server.files.ListRecursive(p.Path)
		} else {
			entries, err = c.server.files.List(p.Path)
		}
		if err != nil {
			c.sendFileError(reqType, reqID, err)
			return
		}
		c.sendResult(NewResultMessage(reqType, reqID, FileResultPayload{OK: true, Entries: entries}))

	case MessageTypeFileHead:
		n := p.Count
		if n == 0 {
			n = defaultLineCount
		}
		lines, err := c.server.files.Head(p.Path, n)
		if err != nil {
			c.sendFileError(reqType, reqID, err)
			return
		}
		c.sendResult(NewResultMessage(reqType, reqID, FileResultPayload{OK: true, Lines: lines, Start: 1}))

	case MessageTypeFileTail:
		n := p.Count
		if n == 0 {
			n = defaultLineCount
		}
		lines, err := c.server.files.Tail(p.Path, n)
		if err != nil {
			c.sendFileError(reqType, reqID, err)
			return
		}
		c.sendResult(NewResultMessage(reqType, reqID, FileResultPayload{OK: true, Lines: lines}))

	case MessageTypeFileLines:
		lines, err := c.server.files.Lines(p.Path, p.Start, p.End)
		if err != nil {
			c.sendFileError(reqType, reqID, err)
			return
		}
		c.sendResult(NewResultMessage(reqType, reqID, FileResultPayload{OK: true, Lines: lines, Start: p.Start}))
	}
}

func (c *Client) sendFileError(reqType MessageType, reqID string, err error) {
	code, message := apperrors.ToCodeAndMessage(err)
	log.Printf("server: %s failed: %v", reqType, err)
	c.sendResult(NewResultMessage(reqType, reqID, FileResultPayload{
		OK:      false,
		Code:    code,
		Message: message,
	}))
}

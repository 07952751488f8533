package hub

import (
	"log"

	"board-realtime/internal/protocol"
)

// broadcast sends msg to every connection on the board except exclude. The
// frame is encoded once and written outside the registry lock. A failed
// send is terminal for that peer: it goes through the normal disconnect path
// after the loop, so other peers still get this frame.
func (h *Hub) broadcast(boardID string, msg protocol.Message, exclude *Client, strokeID string) {
	data, err := protocol.Encode(msg)
	if err != nil {
		log.Printf("[Board %s] Failed to encode %s: %v", boardID, msg.EventType, err)
		return
	}

	var dead []*Client
	for _, peer := range h.registry.Peers(boardID, exclude) {
		if err := peer.Send(data, strokeID); err != nil {
			dead = append(dead, peer)
		}
	}

	for _, peer := range dead {
		h.disconnect(peer, "send failed")
	}
}

// sendTo writes msg to one connection.
func (h *Hub) sendTo(c *Client, msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return c.Send(data, "")
}

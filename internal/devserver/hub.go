package devserver

import (
	"context"

	"github.com/matheus3301/pchat/internal/live"
)

// client is one WebSocket connection as seen by the hub.
type client struct {
	id     string
	events chan live.Envelope
	rooms  map[string]struct{}
}

func newClient(id string) *client {
	return &client{
		id:     id,
		events: make(chan live.Envelope, 32),
		rooms:  make(map[string]struct{}),
	}
}

type commandKind int

const (
	cmdRegister commandKind = iota
	cmdUnregister
	cmdJoin
	cmdLeave
	cmdBroadcast
)

type command struct {
	kind   commandKind
	client *client
	room   string
	env    live.Envelope
}

// Hub tracks room membership and fans events out to room members. All state
// is owned by the Run goroutine.
type Hub struct {
	cmds    chan command
	done    chan struct{}
	clients map[*client]struct{}
	rooms   map[string]map[*client]struct{}
}

// NewHub creates an idle hub; call Run to start it.
func NewHub() *Hub {
	return &Hub{
		cmds:    make(chan command, 64),
		done:    make(chan struct{}),
		clients: make(map[*client]struct{}),
		rooms:   make(map[string]map[*client]struct{}),
	}
}

// Run processes commands until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case cmd := <-h.cmds:
			h.handle(cmd)
		case <-ctx.Done():
			for c := range h.clients {
				close(c.events)
			}
			h.clients = map[*client]struct{}{}
			h.rooms = map[string]map[*client]struct{}{}
			return
		}
	}
}

// send hands cmd to the Run goroutine. It is a no-op once Run returned.
func (h *Hub) send(cmd command) {
	select {
	case h.cmds <- cmd:
	case <-h.done:
	}
}

func (h *Hub) register(c *client)   { h.send(command{kind: cmdRegister, client: c}) }
func (h *Hub) unregister(c *client) { h.send(command{kind: cmdUnregister, client: c}) }

func (h *Hub) join(c *client, room string) {
	h.send(command{kind: cmdJoin, client: c, room: room})
}

func (h *Hub) leave(c *client, room string) {
	h.send(command{kind: cmdLeave, client: c, room: room})
}

// broadcast delivers env to every member of room, the sender included.
func (h *Hub) broadcast(room string, env live.Envelope) {
	h.send(command{kind: cmdBroadcast, room: room, env: env})
}

func (h *Hub) handle(cmd command) {
	switch cmd.kind {
	case cmdRegister:
		h.clients[cmd.client] = struct{}{}
	case cmdUnregister:
		c := cmd.client
		if _, ok := h.clients[c]; !ok {
			return
		}
		for room := range c.rooms {
			h.removeMember(room, c)
		}
		delete(h.clients, c)
		close(c.events)
	case cmdJoin:
		if _, ok := h.clients[cmd.client]; !ok {
			return
		}
		members, ok := h.rooms[cmd.room]
		if !ok {
			members = make(map[*client]struct{})
			h.rooms[cmd.room] = members
		}
		members[cmd.client] = struct{}{}
		cmd.client.rooms[cmd.room] = struct{}{}
	case cmdLeave:
		h.removeMember(cmd.room, cmd.client)
		delete(cmd.client.rooms, cmd.room)
	case cmdBroadcast:
		for c := range h.rooms[cmd.room] {
			select {
			case c.events <- cmd.env:
			default:
				// Drop if slow consumer.
			}
		}
	}
}

func (h *Hub) removeMember(room string, c *client) {
	members := h.rooms[room]
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

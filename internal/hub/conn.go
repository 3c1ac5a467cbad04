package hub

import (
	"github.com/google/uuid"
)

// Conn is one live connection as seen by the hub. The transport reads frames
// from Send() and writes them out, the hub is the only writer and closes the
// channel when the connection is dropped.
type Conn struct {
	ID     string
	UserID int64

	send chan []byte

	// owned by the hub loop
	rooms map[Room]struct{}
}

func NewConn(userID int64, buffer int) *Conn {
	if buffer <= 0 {
		buffer = 256
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	return &Conn{
		ID:     id.String(),
		UserID: userID,
		send:   make(chan []byte, buffer),
		rooms:  make(map[Room]struct{}),
	}
}

func (c *Conn) Send() <-chan []byte {
	return c.send
}

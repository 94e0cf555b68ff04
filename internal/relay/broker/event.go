package broker

import (
	"time"

	"github.com/wtask/relay/internal/relay/frame"
)

// Message - text accepted for broadcasting along with its wire representation.
type Message struct {
	// Origin - identity of source connection, empty for messages published by server.
	Origin     string
	Text       string
	OriginTime time.Time

	frame []byte
}

func newMessage(origin, text string) (Message, error) {
	f, err := frame.Encode(text)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Origin:     origin,
		Text:       text,
		OriginTime: time.Now().UTC(),
		frame:      f,
	}, nil
}

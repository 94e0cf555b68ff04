package broker

import "context"

// queue - inbound messages from all connection readers, drained by the broadcast loop only.
type queue struct {
	messages chan Message
}

func newQueue(size int) *queue {
	return &queue{messages: make(chan Message, size)}
}

// push - waits for free space in queue or until ctx is done.
func (q *queue) push(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.messages <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain - takes messages which are queued at the moment of call, in order of pushing.
// Messages pushed during drain are left for the next call.
func (q *queue) drain() []Message {
	n := len(q.messages)
	if n == 0 {
		return nil
	}
	messages := make([]Message, n)
	for i := range messages {
		messages[i] = <-q.messages
	}
	return messages
}

package broker

import (
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// peer - kept connection. Reader task owns reading, broadcast loop owns writing.
type peer struct {
	id   string
	conn net.Conn
	log  logrus.FieldLogger
	once sync.Once
	done chan struct{} // closed when reader task is terminated
}

func newPeer(id string, conn net.Conn, logger logrus.FieldLogger) *peer {
	return &peer{
		id:   id,
		conn: conn,
		log:  logger.WithFields(logrus.Fields{"conn": id, "addr": remoteAddr(conn)}),
		done: make(chan struct{}),
	}
}

func remoteAddr(conn net.Conn) string {
	if a := conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}

func (p *peer) close() {
	p.once.Do(func() {
		p.conn.Close()
	})
}

func (p *peer) terminated() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// registry - ordered list of live peers.
// It is accessed from the broadcast loop only, so there is no lock.
type registry struct {
	list []*peer
}

func newRegistry() *registry {
	return &registry{}
}

func (r *registry) len() int {
	return len(r.list)
}

func (r *registry) add(p *peer) {
	r.list = append(r.list, p)
}

// filter - keeps order of peers for which keep returns true and drops the rest.
// Returns num of dropped peers.
func (r *registry) filter(keep func(*peer) bool) int {
	kept := r.list[:0]
	for _, p := range r.list {
		if keep(p) {
			kept = append(kept, p)
		}
	}
	dropped := len(r.list) - len(kept)
	for i := len(kept); i < len(r.list); i++ {
		r.list[i] = nil
	}
	r.list = kept
	return dropped
}

func (r *registry) scan(f func(*peer)) {
	for _, p := range r.list {
		f(p)
	}
}

func (r *registry) reset() {
	r.list = nil
}

// Package addrlist keeps the peer addresses that are not connected yet.
package addrlist

import (
	"net"

	"github.com/google/btree"
)

// AddrList holds at most maxItems addresses. The most recently pushed address is popped first.
// It is not safe for concurrent use.
type AddrList struct {
	byKey map[string]*entry
	// ordered by seq, oldest first
	order *btree.BTreeG[*entry]
	seq   uint64

	maxItems   int
	listenPort int
}

type entry struct {
	addr *net.TCPAddr
	seq  uint64
}

func lessEntry(a, b *entry) bool { return a.seq < b.seq }

// New returns an empty AddrList. Loopback addresses on listenPort are never added.
func New(maxItems, listenPort int) *AddrList {
	return &AddrList{
		byKey:      make(map[string]*entry),
		order:      btree.NewG(8, lessEntry),
		maxItems:   maxItems,
		listenPort: listenPort,
	}
}

// Len returns the number of addresses in the list.
func (l *AddrList) Len() int {
	return l.order.Len()
}

// Pop removes and returns the most recently pushed address. It returns nil if the list is empty.
func (l *AddrList) Pop() *net.TCPAddr {
	e, ok := l.order.DeleteMax()
	if !ok {
		return nil
	}
	delete(l.byKey, e.addr.String())
	return e.addr
}

// Push adds addrs to the list. Addresses already in the list are moved to the top.
// The oldest addresses are dropped when the list is full.
func (l *AddrList) Push(addrs []*net.TCPAddr) {
	for _, addr := range addrs {
		if addr.Port == 0 {
			continue
		}
		// Our own listener
		if addr.IP.IsLoopback() && addr.Port == l.listenPort {
			continue
		}
		l.seq++
		key := addr.String()
		if e, ok := l.byKey[key]; ok {
			l.order.Delete(e)
			e.seq = l.seq
			l.order.ReplaceOrInsert(e)
			continue
		}
		e := &entry{addr: addr, seq: l.seq}
		l.byKey[key] = e
		l.order.ReplaceOrInsert(e)
	}
	for l.order.Len() > l.maxItems {
		e, _ := l.order.DeleteMin()
		delete(l.byKey, e.addr.String())
	}
}

package handler

import (
	"github.com/scenebind/host/internal/net"
	"github.com/scenebind/host/internal/net/packet"
)

// BroadcastPrint sends script output to every open console session.
func BroadcastPrint(store *net.SessionStore, text string) {
	w := packet.NewWriter(packet.S_OPCODE_PRINT)
	w.WriteString(text)
	data := w.Bytes()
	store.Each(func(sess *net.Session) {
		sess.Send(data)
	})
}

// sendPrint writes one line of output to a single session.
func sendPrint(sess *net.Session, text string) {
	w := packet.NewWriter(packet.S_OPCODE_PRINT)
	w.WriteString(text)
	sess.Send(w.Bytes())
}

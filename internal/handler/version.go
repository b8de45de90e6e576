package handler

import (
	"github.com/scenebind/host/internal/net"
	"github.com/scenebind/host/internal/net/packet"
	"github.com/scenebind/host/internal/scripting"
)

// SendHello greets a newly accepted console session with the host name and
// binding API version.
func SendHello(sess *net.Session, deps *Deps) {
	w := packet.NewWriter(packet.S_OPCODE_HELLO)
	w.WriteString(deps.Config.Runtime.Name)
	w.WriteString(scripting.APIVersion)
	sess.Send(w.Bytes())
}

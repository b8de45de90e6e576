package packet

// Console opcodes. Field notation: [str] u16 length + UTF-8 bytes, [bool] one
// byte, [u32] little-endian.

// Client → host.
const (
	C_OPCODE_COMMAND byte = 0x01 // [str line]
	C_OPCODE_PING    byte = 0x02 // [u32 token]
)

// Host → client.
const (
	S_OPCODE_HELLO  byte = 0x80 // [str host name][str api version]
	S_OPCODE_PRINT  byte = 0x81 // [str text]
	S_OPCODE_RESULT byte = 0x82 // [bool ok][str message]
	S_OPCODE_PONG   byte = 0x83 // [u32 token]
)

var opcodeNames = map[byte]string{
	C_OPCODE_COMMAND: "COMMAND",
	C_OPCODE_PING:    "PING",
	S_OPCODE_HELLO:   "HELLO",
	S_OPCODE_PRINT:   "PRINT",
	S_OPCODE_RESULT:  "RESULT",
	S_OPCODE_PONG:    "PONG",
}

// OpcodeName returns a printable name for op.
func OpcodeName(op byte) string {
	if n, ok := opcodeNames[op]; ok {
		return n
	}
	return "UNKNOWN"
}

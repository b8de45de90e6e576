package scripting

import (
	"fmt"
	"strings"

	"github.com/minio/highwayhash"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

var chunkKey = []byte("scenehost/chunk-cache/0123456789")

// maxChunks bounds the cache; the oldest prototype is evicted first.
const maxChunks = 256

// chunkCache keeps compiled prototypes keyed by a hash of chunk name and
// source, so console lines and Atomic.script calls repeating the same text
// are parsed once and errors keep pointing at the right chunk.
type chunkCache struct {
	protos map[uint64]*lua.FunctionProto
	order  []uint64
	hits   int
}

func newChunkCache() *chunkCache {
	return &chunkCache{protos: make(map[uint64]*lua.FunctionProto)}
}

func chunkHash(name, src string) (uint64, error) {
	h, err := highwayhash.New64(chunkKey)
	if err != nil {
		return 0, err
	}
	h.Write([]byte(name))
	h.Write([]byte{0})
	_, err = h.Write([]byte(src))
	return h.Sum64(), err
}

func (c *chunkCache) compile(src, name string) (*lua.FunctionProto, error) {
	key, err := chunkHash(name, src)
	if err != nil {
		return nil, fmt.Errorf("hash chunk %s: %w", name, err)
	}
	if p, ok := c.protos[key]; ok {
		c.hits++
		return p, nil
	}
	stmts, err := parse.Parse(strings.NewReader(src), name)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", strings.TrimLeft(name, "=@"), err)
	}
	p, err := lua.Compile(stmts, name)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", strings.TrimLeft(name, "=@"), err)
	}
	if len(c.order) >= maxChunks {
		delete(c.protos, c.order[0])
		c.order = c.order[1:]
	}
	c.protos[key] = p
	c.order = append(c.order, key)
	return p, nil
}

func (c *chunkCache) len() int { return len(c.protos) }

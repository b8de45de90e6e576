package subsystem

import (
	"context"
	"time"

	"github.com/scenebind/host/internal/config"
	"github.com/scenebind/host/internal/net"
	"github.com/scenebind/host/internal/resource"
	"github.com/scenebind/host/internal/scene"
)

// Engine tracks frame timing and exit requests.
type Engine struct {
	base
	frames  uint64
	elapsed time.Duration
	exit    bool
}

func NewEngine(ctx *scene.Context) *Engine {
	e := &Engine{}
	e.init(ctx, e, NameEngine)
	return e
}

// Advance records one frame of dt.
func (e *Engine) Advance(dt time.Duration) {
	e.frames++
	e.elapsed += dt
}

func (e *Engine) Frames() uint64         { return e.frames }
func (e *Engine) Elapsed() time.Duration { return e.elapsed }
func (e *Engine) Exit()                  { e.exit = true }
func (e *Engine) ExitRequested() bool    { return e.exit }

// VM describes the script runtime.
type VM struct {
	base
	APIVersion string
	ScriptsDir string
}

func NewVM(ctx *scene.Context, apiVersion, scriptsDir string) *VM {
	v := &VM{APIVersion: apiVersion, ScriptsDir: scriptsDir}
	v.init(ctx, v, NameVM)
	return v
}

// Renderer keeps the viewport count; drawing itself is not modelled.
type Renderer struct {
	base
	viewports int
}

func NewRenderer(ctx *scene.Context) *Renderer {
	r := &Renderer{viewports: 1}
	r.init(ctx, r, NameRenderer)
	return r
}

func (r *Renderer) NumViewports() int { return r.viewports }

func (r *Renderer) SetNumViewports(n int) {
	if n < 0 {
		n = 0
	}
	r.viewports = n
}

// Graphics exposes the configured window.
type Graphics struct {
	base
	cfg config.GraphicsConfig
}

func NewGraphics(ctx *scene.Context, cfg config.GraphicsConfig) *Graphics {
	g := &Graphics{cfg: cfg}
	g.init(ctx, g, NameGraphics)
	return g
}

func (g *Graphics) Width() int    { return g.cfg.Width }
func (g *Graphics) Height() int   { return g.cfg.Height }
func (g *Graphics) Title() string { return g.cfg.Title }

// Input holds key state fed by the host.
type Input struct {
	base
	keys map[string]bool
}

func NewInput(ctx *scene.Context) *Input {
	in := &Input{keys: make(map[string]bool)}
	in.init(ctx, in, NameInput)
	return in
}

func (in *Input) SetKeyDown(key string, down bool) {
	if down {
		in.keys[key] = true
		return
	}
	delete(in.keys, key)
}

func (in *Input) KeyDown(key string) bool { return in.keys[key] }

// FileSystem answers existence queries against the resource root.
type FileSystem struct {
	base
	cache *resource.Cache
}

func NewFileSystem(ctx *scene.Context, cache *resource.Cache) *FileSystem {
	fs := &FileSystem{cache: cache}
	fs.init(ctx, fs, NameFileSystem)
	return fs
}

func (fs *FileSystem) FileExists(ctx context.Context, path string) bool {
	return fs.cache.Exists(ctx, path) && !fs.cache.IsDir(ctx, path)
}

func (fs *FileSystem) DirExists(ctx context.Context, path string) bool {
	return fs.cache.IsDir(ctx, path)
}

// ResourceCache is the script-facing view of the resource service.
type ResourceCache struct {
	base
	cache *resource.Cache
}

func NewResourceCache(ctx *scene.Context, cache *resource.Cache) *ResourceCache {
	rc := &ResourceCache{cache: cache}
	rc.init(ctx, rc, NameResourceCache)
	return rc
}

func (rc *ResourceCache) Cache() *resource.Cache { return rc.cache }

// GetFile returns the text of path.
func (rc *ResourceCache) GetFile(ctx context.Context, path string) (string, error) {
	return rc.cache.ReadText(ctx, path)
}

// Network is the remote console endpoint.
type Network struct {
	base
	server   *net.Server
	sessions *net.SessionStore
}

func NewNetwork(ctx *scene.Context, server *net.Server, sessions *net.SessionStore) *Network {
	n := &Network{server: server, sessions: sessions}
	n.init(ctx, n, NameNetwork)
	return n
}

func (n *Network) Server() *net.Server         { return n.server }
func (n *Network) Sessions() *net.SessionStore { return n.sessions }
func (n *Network) NumConnections() int         { return n.sessions.Count() }

// Address returns the listen address, or "" when there is no server.
func (n *Network) Address() string {
	if n.server == nil {
		return ""
	}
	return n.server.Addr().String()
}

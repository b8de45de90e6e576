// Package scripting binds the native scene graph to a gopher-lua VM.
//
// Every native object a script can see is represented by one userdata proxy
// that carries only the object's id. Proxies are de-duplicated through the
// lifecycle registry and resolve through the scene context on every call, so
// a proxy outliving its object simply stops resolving.
package scripting

import (
	"context"
	"errors"
	"fmt"
	"path"
	"runtime"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/scenebind/host/internal/config"
	"github.com/scenebind/host/internal/lifecycle"
	"github.com/scenebind/host/internal/resource"
	"github.com/scenebind/host/internal/scene"
	"github.com/scenebind/host/internal/subsystem"
)

// APIVersion is the binding version reported as Atomic.apiVersion.
const APIVersion = "v1.2.0"

// Options configures an Engine.
type Options struct {
	Runtime    config.RuntimeConfig
	Resources  *resource.Cache
	Subsystems *subsystem.Set
}

// Engine wraps a single gopher-lua VM bound to one scene context.
// Single-goroutine access only (tick loop).
type Engine struct {
	vm         *lua.LState
	ctx        *scene.Context
	registry   *lifecycle.Registry
	cascade    *lifecycle.Cascade
	res        *resource.Cache
	subs       *subsystem.Set
	scriptsDir string
	platform   string
	chunks     *chunkCache
	scenes     []*scene.Scene // each holds one reference
	closed     bool
	log        *zap.Logger
}

// NewEngine creates the VM and installs the binding surface.
func NewEngine(sctx *scene.Context, cascade *lifecycle.Cascade, opts Options, log *zap.Logger) (*Engine, error) {
	if opts.Resources == nil {
		return nil, errors.New("scripting: resource service is required")
	}
	if opts.Subsystems == nil {
		opts.Subsystems = subsystem.NewSet()
	}

	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	e := &Engine{
		vm:         vm,
		ctx:        sctx,
		registry:   cascade.Registry(),
		cascade:    cascade,
		res:        opts.Resources,
		subs:       opts.Subsystems,
		scriptsDir: strings.Trim(opts.Runtime.ScriptsDir, "/"),
		platform:   platformName(opts.Runtime.Platform),
		log:        log,
	}
	e.chunks = newChunkCache()

	e.registerMetatables()
	e.openGlobals()
	e.openAtomic()
	e.installLoader()

	return e, nil
}

// VM exposes the underlying state for hosts that add their own globals.
func (e *Engine) VM() *lua.LState { return e.vm }

// Platform returns the value of Atomic.platform.
func (e *Engine) Platform() string { return e.platform }

// ExecuteScript compiles (or reuses) src and runs it.
func (e *Engine) ExecuteScript(src string) error {
	return e.run(src, "=script")
}

// ExecuteFile runs the script at p, relative to the resource root.
func (e *Engine) ExecuteFile(p string) error {
	src, err := e.res.ReadText(e.context(), p)
	if err != nil {
		return err
	}
	return e.run(src, "@"+p)
}

func (e *Engine) run(src, name string) error {
	proto, err := e.chunks.compile(src, name)
	if err != nil {
		return err
	}
	fn := e.vm.NewFunctionFromProto(proto)
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}); err != nil {
		return fmt.Errorf("run %s: %w", strings.TrimLeft(name, "=@"), err)
	}
	return nil
}

// Scenes returns the scenes owned by the engine.
func (e *Engine) Scenes() []*scene.Scene {
	return append([]*scene.Scene(nil), e.scenes...)
}

// CreateScene creates an empty scene owned by the engine.
func (e *Engine) CreateScene(name string) *scene.Scene {
	s := scene.NewScene(e.ctx, name)
	s.AddRef()
	e.scenes = append(e.scenes, s)
	return s
}

// Destroy runs the destruction cascade on target exactly like Atomic.destroy.
// An ownership violation inside the cascade is fatal.
func (e *Engine) Destroy(target scene.Object) {
	if target == nil || target.Expired() {
		return
	}
	target.AddRef()
	defer target.ReleaseRef()
	defer func() {
		if r := recover(); r != nil {
			if inv, ok := lifecycle.AsInvariant(r); ok {
				e.log.Fatal("ownership invariant violated",
					zap.String("op", inv.Op),
					zap.Uint64("object", uint64(inv.Object)),
					zap.Int("refs", inv.Refs),
					zap.Error(inv.Err),
				)
			}
			panic(r)
		}
	}()

	e.cascade.Destroy(target)
	if s, ok := target.(*scene.Scene); ok {
		e.dropScene(s)
	}
}

func (e *Engine) dropScene(s *scene.Scene) {
	for i, o := range e.scenes {
		if o == s {
			e.scenes = append(e.scenes[:i:i], e.scenes[i+1:]...)
			s.ReleaseRef()
			return
		}
	}
}

// Close releases every scene, empties the proxy registry and shuts down
// the VM.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.closed = true
	for _, s := range e.scenes {
		s.ReleaseRef()
	}
	e.scenes = nil
	e.registry.Reset()
	e.vm.Close()
}

func (e *Engine) context() context.Context {
	if c := e.vm.Context(); c != nil {
		return c
	}
	return context.Background()
}

// modulePath maps a require name ("actors.player") to a resource path.
func (e *Engine) modulePath(name string) string {
	p := strings.ReplaceAll(name, ".", "/") + ".lua"
	if e.scriptsDir == "" {
		return p
	}
	return path.Join(e.scriptsDir, p)
}

// platformName returns the cosmetic platform constant.
func platformName(override string) string {
	if override != "" {
		return override
	}
	switch runtime.GOOS {
	case "darwin":
		return "MacOSX"
	case "windows":
		return "Windows"
	case "linux":
		return "Linux"
	case "android":
		return "Android"
	case "ios":
		return "iOS"
	default:
		return runtime.GOOS
	}
}

// callMethod calls obj[name](obj, args...) when it is a function. Missing
// methods are not an error.
func (e *Engine) callMethod(obj *lua.LTable, name string, args ...lua.LValue) error {
	fn, ok := e.vm.GetField(obj, name).(*lua.LFunction)
	if !ok {
		return nil
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, append([]lua.LValue{obj}, args...)...); err != nil {
		return fmt.Errorf("call %s: %w", name, err)
	}
	return nil
}

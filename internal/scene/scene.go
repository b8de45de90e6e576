package scene

// Scene is the distinguished root node of a hierarchy.
type Scene struct {
	Node
}

// NewScene creates a scene with no references; the owner takes a hold.
func NewScene(ctx *Context, name string) *Scene {
	s := &Scene{}
	s.kind = KindScene
	s.name = name
	s.outer = s
	s.Init(ctx, s, s.release)
	return s
}

// Root returns the scene's node.
func (s *Scene) Root() *Node { return &s.Node }

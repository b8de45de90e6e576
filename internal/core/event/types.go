package event

// Type names an event channel.
type Type string

// Data carries event parameters keyed by the P* names below.
type Data map[string]any

const (
	Update           Type = "Update"
	PostUpdate       Type = "PostUpdate"
	ScriptPrint      Type = "ScriptPrint"
	Unsubscribed     Type = "Unsubscribed"
	ComponentRemoved Type = "ComponentRemoved"
	NodeRemoved      Type = "NodeRemoved"
	ConsoleCommand   Type = "ConsoleCommand"
)

// Parameter names.
const (
	PSender    = "sender"
	PEvent     = "event"
	PText      = "text"
	PTimeStep  = "timestep"
	PNode      = "node"
	PParent    = "parent"
	PComponent = "component"
	PSession   = "session"
)

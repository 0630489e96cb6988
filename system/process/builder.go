package process

import (
	"fmt"
)

// Builder accumulates nodes and edges for a Definition. Methods return the
// builder so calls chain; Build validates the invariants (exactly one
// start, at least one end reachable from it) and returns the Definition.
type Builder struct {
	id        string
	nodes     map[string]*Node
	edges     []Edge
	branches  map[string][]Branch
	startID   string
	cursor    string // node most recently added, target of the next moveTo-free chain step
	otherwise map[string]bool
	err       error
}

// NewBuilder starts a new process definition with the given id.
func NewBuilder(id string) *Builder {
	return &Builder{
		id:        id,
		nodes:     make(map[string]*Node),
		branches:  make(map[string][]Branch),
		otherwise: make(map[string]bool),
	}
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// addNode registers n, auto-chaining an edge from the cursor unless the
// cursor is an exclusive gateway — those only route through explicit
// When/Otherwise branches, never an implicit "next node added" edge.
func (b *Builder) addNode(n *Node) {
	b.nodes[n.ID] = n
	if b.cursor != "" {
		if cur := b.nodes[b.cursor]; cur == nil || cur.Kind != ExclusiveGateway {
			b.edges = append(b.edges, Edge{From: b.cursor, To: n.ID})
		}
	}
	b.cursor = n.ID
}

// StartEvent adds the single start node. Must be called first.
func (b *Builder) StartEvent(id string) *Builder {
	if b.err != nil {
		return b
	}
	if b.startID != "" {
		return b.fail(fmt.Errorf("process %s: duplicate start event %s (already have %s)", b.id, id, b.startID))
	}
	b.startID = id
	b.addNode(&Node{ID: id, Kind: StartEvent})
	return b
}

// EndEvent adds an end node, chained from the current cursor.
func (b *Builder) EndEvent(id string) *Builder {
	if b.err != nil {
		return b
	}
	b.addNode(&Node{ID: id, Kind: EndEvent})
	return b
}

// ServiceTask adds a service task executed by the engine (optionally
// scripted via goja) with a fixed-delay retry policy.
func (b *Builder) ServiceTask(id, script, entryPoint string, retry *RetryPolicy) *Builder {
	if b.err != nil {
		return b
	}
	b.addNode(&Node{ID: id, Kind: ServiceTask, Script: script, EntryPoint: entryPoint, Retry: retry})
	return b
}

// UserTask adds a task that blocks the instance until completeTask is called.
func (b *Builder) UserTask(id, assignee string, priority int) *Builder {
	if b.err != nil {
		return b
	}
	b.addNode(&Node{ID: id, Kind: UserTask, Assignee: assignee, Priority: priority})
	return b
}

// SendTask adds a fire-and-forget outbound task (engine-completed like a service task).
func (b *Builder) SendTask(id string) *Builder {
	if b.err != nil {
		return b
	}
	b.addNode(&Node{ID: id, Kind: SendTask})
	return b
}

// ReceiveTask adds a task that blocks until a matching message/signal arrives.
func (b *Builder) ReceiveTask(id string) *Builder {
	if b.err != nil {
		return b
	}
	b.addNode(&Node{ID: id, Kind: ReceiveTask})
	return b
}

// ManualTask adds a task representing work performed outside the system,
// externally completed like a user task but carrying no assignee semantics.
func (b *Builder) ManualTask(id string) *Builder {
	if b.err != nil {
		return b
	}
	b.addNode(&Node{ID: id, Kind: ManualTask})
	return b
}

// BusinessRuleTask adds a scripted decision task, engine-completed like a service task.
func (b *Builder) BusinessRuleTask(id, script, entryPoint string) *Builder {
	if b.err != nil {
		return b
	}
	b.addNode(&Node{ID: id, Kind: BusinessRuleTask, Script: script, EntryPoint: entryPoint})
	return b
}

// ExclusiveGateway opens a gateway node; chain When/Otherwise calls to add
// its branches, then MoveTo or further chaining to continue past it.
func (b *Builder) ExclusiveGateway(id string) *Builder {
	if b.err != nil {
		return b
	}
	b.addNode(&Node{ID: id, Kind: ExclusiveGateway})
	return b
}

// ParallelGateway opens a fork/join gateway node.
func (b *Builder) ParallelGateway(id string) *Builder {
	if b.err != nil {
		return b
	}
	b.addNode(&Node{ID: id, Kind: ParallelGateway})
	return b
}

// When adds a conditional branch from gateway gatewayID to target.
func (b *Builder) When(gatewayID, name, expr, target string) *Builder {
	if b.err != nil {
		return b
	}
	if _, ok := b.nodes[gatewayID]; !ok {
		return b.fail(fmt.Errorf("process %s: when() references unknown gateway %s", b.id, gatewayID))
	}
	b.branches[gatewayID] = append(b.branches[gatewayID], Branch{Target: target, Condition: expr, Name: name})
	return b
}

// Otherwise adds the default branch for a gateway. At most one per gateway.
func (b *Builder) Otherwise(gatewayID, target string) *Builder {
	if b.err != nil {
		return b
	}
	if b.otherwise[gatewayID] {
		return b.fail(fmt.Errorf("process %s: gateway %s already has an otherwise branch", b.id, gatewayID))
	}
	b.otherwise[gatewayID] = true
	b.branches[gatewayID] = append(b.branches[gatewayID], Branch{Target: target, IsOtherwise: true})
	return b
}

// MoveTo repositions the builder's cursor to an existing node id, so the
// next chained node attaches there instead of after the last-added node.
// Used for branches re-entering a common downstream node.
func (b *Builder) MoveTo(nodeID string) *Builder {
	if b.err != nil {
		return b
	}
	if _, ok := b.nodes[nodeID]; !ok {
		return b.fail(fmt.Errorf("process %s: moveTo references unknown node %s", b.id, nodeID))
	}
	b.cursor = nodeID
	return b
}

// Build validates the accumulated graph and returns the Definition.
func (b *Builder) Build() (*Definition, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.startID == "" {
		return nil, fmt.Errorf("process %s: no start event defined", b.id)
	}

	def := &Definition{
		ID:          b.id,
		StartNodeID: b.startID,
		Nodes:       b.nodes,
		Edges:       b.edges,
		Branches:    b.branches,
	}

	if err := validateReachableEnd(def); err != nil {
		return nil, err
	}
	if err := validateGatewayBranches(def); err != nil {
		return nil, err
	}
	return def, nil
}

func validateReachableEnd(def *Definition) error {
	visited := map[string]bool{}
	queue := []string{def.StartNodeID}
	foundEnd := false

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		if n := def.Nodes[id]; n != nil && n.Kind == EndEvent {
			foundEnd = true
		}
		for _, e := range def.Edges {
			if e.From == id {
				queue = append(queue, e.To)
			}
		}
		for _, br := range def.Branches[id] {
			queue = append(queue, br.Target)
		}
	}

	if !foundEnd {
		return fmt.Errorf("process %s: no end event reachable from start", def.ID)
	}
	return nil
}

func validateGatewayBranches(def *Definition) error {
	for gatewayID, branches := range def.Branches {
		node := def.Nodes[gatewayID]
		if node == nil || node.Kind != ExclusiveGateway {
			continue
		}
		otherwiseCount := 0
		for _, br := range branches {
			if br.IsOtherwise {
				otherwiseCount++
			}
		}
		if otherwiseCount > 1 {
			return fmt.Errorf("process %s: gateway %s has %d otherwise branches, want at most 1", def.ID, gatewayID, otherwiseCount)
		}
	}
	return nil
}

package topology

// Node is a named endpoint of the graph.
type Node struct {
	Name string
	// Address is where the node accepts inbound channels on transports that
	// need one (tcp). Empty otherwise.
	Address string
}

// Edge is a directed channel between two nodes.
type Edge struct {
	From string
	To   string
}

func (e Edge) ID() string {
	return e.From + "->" + e.To
}

func (e Edge) String() string {
	return e.ID()
}

type NodeOption func(*Node)

func WithAddress(address string) NodeOption {
	return func(n *Node) {
		n.Address = address
	}
}

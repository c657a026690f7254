package commerce

// Edge wraps one node of a relay-style connection.
type Edge[T any] struct {
	Node T `json:"node"`
}

// PageInfo carries the cursor state of a paginated connection.
type PageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

// Connection is the remote API's pagination envelope.
type Connection[T any] struct {
	Edges    []Edge[T] `json:"edges"`
	PageInfo PageInfo  `json:"pageInfo"`
}

// Nodes flattens the connection into a plain slice, in edge order.
func (c Connection[T]) Nodes() []T {
	if len(c.Edges) == 0 {
		return nil
	}
	nodes := make([]T, len(c.Edges))
	for i, e := range c.Edges {
		nodes[i] = e.Node
	}
	return nodes
}

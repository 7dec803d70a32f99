package fanout

import "fmt"

// NodeError records the failure of a single node attempt. Status is zero
// when the node never produced an HTTP response (connect error, timeout).
type NodeError struct {
	Node    string `json:"node"`
	Status  int    `json:"status,omitempty"`
	Message string `json:"error"`
}

// AllNodesFailedError reports that every configured node failed. Errors
// holds one entry per node in the order they were tried.
type AllNodesFailedError struct {
	Op     string
	Errors []NodeError
}

func (e *AllNodesFailedError) Error() string {
	return fmt.Sprintf("fanout: %s failed on all %d nodes", e.Op, len(e.Errors))
}

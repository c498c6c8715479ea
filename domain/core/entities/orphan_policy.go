package entities

import "fmt"

// OrphanPolicy decides what happens to the children of a deleted node
type OrphanPolicy string

const (
	// OrphanKeep leaves children in place with a dangling parentId. They stay
	// out of every reachable view until re-parented.
	OrphanKeep OrphanPolicy = "keep"
	// OrphanReparent moves children to the root canvas
	OrphanReparent OrphanPolicy = "reparent"
	// OrphanSubtree deletes every descendant together with the node
	OrphanSubtree OrphanPolicy = "subtree"
)

// ParseOrphanPolicy maps a config value to a policy; empty means keep.
func ParseOrphanPolicy(s string) (OrphanPolicy, error) {
	switch p := OrphanPolicy(s); p {
	case "":
		return OrphanKeep, nil
	case OrphanKeep, OrphanReparent, OrphanSubtree:
		return p, nil
	default:
		return "", fmt.Errorf("unknown orphan policy %q", s)
	}
}

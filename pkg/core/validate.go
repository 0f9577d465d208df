package core

import (
	"errors"
	"fmt"
)

// Errors for lineage input that violates the documented node/edge shape.
var (
	ErrMalformedNode = errors.New("malformed node")
	ErrMalformedEdge = errors.New("malformed edge")
)

// ValidateGraph checks the documented node/edge shape: nodes need an ID and
// a type, edges need both endpoints and a relationship.
//
// Edges whose endpoints are absent from the node list are NOT rejected here;
// dangling references are tolerated and ignored during classification.
func ValidateGraph(g LineageGraph) error {
	for i, n := range g.Nodes {
		if n.ID == "" {
			return fmt.Errorf("%w: node %d has empty id", ErrMalformedNode, i)
		}
		if n.Type == "" {
			return fmt.Errorf("%w: node %q has empty type", ErrMalformedNode, n.ID)
		}
	}
	for i, e := range g.Edges {
		if e.Source == "" || e.Target == "" {
			return fmt.Errorf("%w: edge %d is missing an endpoint", ErrMalformedEdge, i)
		}
		if e.Relationship == "" {
			return fmt.Errorf("%w: edge %s->%s has empty relationship", ErrMalformedEdge, e.Source, e.Target)
		}
	}
	return nil
}

package analysisclient

import (
	"fmt"
	"strconv"

	"github.com/kiranshivaraju/fuzzjobs/internal/analysis"
	"github.com/kiranshivaraju/fuzzjobs/pkg/models"
)

// NodeResolver maps a node's primary key to the id the editor client gave it.
type NodeResolver func(nodeID int64) (int64, error)

// NodeMap resolves nodes from a fixed primary key to client id table.
func NodeMap(ids map[int64]int64) NodeResolver {
	return func(nodeID int64) (int64, error) {
		clientID, ok := ids[nodeID]
		if !ok {
			return 0, fmt.Errorf("%w: %d", ErrUnknownNode, nodeID)
		}
		return clientID, nil
	}
}

// ResolveNodes rewrites every node reference in the report from the server's
// primary keys to client ids: issue element ids, choice keys and the node
// picked by a feature choice. Issues without an element are left alone.
func (r *Report) ResolveNodes(resolve NodeResolver) error {
	for _, issues := range [][]models.Issue{r.Issues.Errors, r.Issues.Warnings} {
		for i := range issues {
			if issues[i].ElementID == "" {
				continue
			}
			id, err := resolveRef(resolve, "elementId", issues[i].ElementID)
			if err != nil {
				return err
			}
			issues[i].ElementID = id
		}
	}

	for c := range r.Configurations {
		choices := r.Configurations[c].Choices
		for i := range choices {
			key, err := resolveRef(resolve, "choice key", choices[i].Key)
			if err != nil {
				return err
			}
			choices[i].Key = key
			if choices[i].Type != models.ChoiceFeature {
				continue
			}
			feature, err := resolveRef(resolve, "featureId", choices[i].FeatureID)
			if err != nil {
				return err
			}
			choices[i].FeatureID = feature
		}
	}
	return nil
}

func resolveRef(resolve NodeResolver, field, ref string) (string, error) {
	nodeID, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: %s %q", analysis.ErrMalformedNumber, field, ref)
	}
	clientID, err := resolve(nodeID)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(clientID, 10), nil
}

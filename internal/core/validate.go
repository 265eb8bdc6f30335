package core

import "strings"

// MaxChainDepth bounds how deep Success/Fail continuations may nest.
const MaxChainDepth = 32

// ValidateJobGraph checks root and every continuation reachable through
// Success and Fail. Nodes are checked in pre-order, success before fail, and
// the first failing node decides the error.
//
// Only the root needs a JobName; when it is empty it is derived from the last
// path segment of the root's Url, which mutates root. On success the same
// pointer is returned with its continuations untouched.
func ValidateJobGraph(root *JobDefinition) (*JobDefinition, error) {
	if root == nil {
		return nil, NewValidationError("job definition is empty", nil)
	}

	nodes, err := flattenChain(root)
	if err != nil {
		return nil, err
	}

	for i, node := range nodes {
		if err := validateNode(node, i == 0); err != nil {
			return nil, err
		}
	}
	return root, nil
}

type chainEntry struct {
	node  *JobDefinition
	depth int
}

// flattenChain lists the tree in pre-order with an explicit stack. Fail is
// pushed before Success so Success pops first.
func flattenChain(root *JobDefinition) ([]*JobDefinition, error) {
	var nodes []*JobDefinition
	seen := make(map[*JobDefinition]struct{})
	stack := []chainEntry{{node: root, depth: 1}}

	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if e.depth > MaxChainDepth {
			return nil, NewValidationError("chain too deep", map[string]any{"max_depth": MaxChainDepth})
		}
		if _, ok := seen[e.node]; ok {
			return nil, NewValidationError("chain contains a cycle", nil)
		}
		seen[e.node] = struct{}{}
		nodes = append(nodes, e.node)

		if e.node.Fail != nil {
			stack = append(stack, chainEntry{node: e.node.Fail, depth: e.depth + 1})
		}
		if e.node.Success != nil {
			stack = append(stack, chainEntry{node: e.node.Success, depth: e.depth + 1})
		}
	}
	return nodes, nil
}

func validateNode(node *JobDefinition, isRoot bool) error {
	if node.Url == "" || strings.EqualFold(node.Url, "http://") {
		return NewValidationError("Url invalid", map[string]any{"url": node.Url})
	}
	if node.ContentType == "" {
		return NewValidationError("ContentType invalid", nil)
	}
	if !isRoot {
		return nil
	}
	if node.JobName == "" {
		node.JobName = lastPathSegment(node.Url)
	}
	if node.JobName == "" {
		return NewValidationError("JobName invalid", nil)
	}
	return nil
}

func lastPathSegment(url string) string {
	if i := strings.LastIndex(url, "/"); i >= 0 {
		return url[i+1:]
	}
	return url
}

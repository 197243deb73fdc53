package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/patali/yantra/internal/executors"
)

// executeLoop drives a Loop node: resolves its input array, runs the body
// subgraph once per item (sequentially, or in batches of values.batchSize),
// and emits the aggregated result on the node's "done" handle (§4.4.4).
func (e *Engine) executeLoop(ctx context.Context, node *Node, queue *readyQueue) error {
	input := e.assembleInput(node)
	resolved := e.resolver.ResolveValues(node.Values, input)

	items, err := e.loopItems(resolved, input)
	if err != nil {
		e.markExecuted(node.ID, map[string]interface{}{"done": []interface{}{}})
		e.routeLoopDone(node, []interface{}{}, queue)
		return nil
	}

	bodyStarts := e.loopBodyStarts(node.ID)

	batchSize := 1
	if bs, ok := resolved["batchSize"].(float64); ok && bs >= 1 {
		batchSize = int(bs)
	}
	throttleMs := 0
	if t, ok := resolved["throttleMs"].(float64); ok {
		throttleMs = int(t)
	}

	accumulated := make([]interface{}, len(items))
	errorHandling, _ := resolved["errorHandling"].(string)
	if errorHandling == "" {
		errorHandling = "skip"
	}

	for batchStart := 0; batchStart < len(items); batchStart += batchSize {
		batchEnd := batchStart + batchSize
		if batchEnd > len(items) {
			batchEnd = len(items)
		}

		type iterResult struct {
			index  int
			output interface{}
			err    error
		}
		results := make(chan iterResult, batchEnd-batchStart)

		for i := batchStart; i < batchEnd; i++ {
			i := i
			go func() {
				out, err := e.runLoopIteration(ctx, node, bodyStarts, items, i)
				results <- iterResult{index: i, output: out, err: err}
			}()
		}

		for i := batchStart; i < batchEnd; i++ {
			r := <-results
			if r.err != nil {
				if errorHandling == "fail" {
					return fmt.Errorf("loop %s failed at iteration %d: %w", node.ID, r.index, r.err)
				}
				accumulated[r.index] = nil
				continue
			}
			accumulated[r.index] = r.output
		}

		if throttleMs > 0 && batchEnd < len(items) {
			time.Sleep(time.Duration(throttleMs) * time.Millisecond)
		}
	}

	e.markExecuted(node.ID, map[string]interface{}{"done": accumulated, "iterationCount": len(items)})
	e.routeLoopDone(node, accumulated, queue)
	return nil
}

// loopItems resolves the array this Loop iterates over: an explicit
// inputArray template, the flattened feedback-edge buffer, or a bare-array
// upstream input, in that preference order.
func (e *Engine) loopItems(resolved, input map[string]interface{}) ([]interface{}, error) {
	if arr, ok := resolved["inputArray"].([]interface{}); ok {
		return arr, nil
	}
	if flat, ok := input["aggregatedData"].([]interface{}); ok && len(flat) > 0 {
		return flat, nil
	}
	for _, key := range []string{"data", "items"} {
		if arr, ok := input[key].([]interface{}); ok {
			return arr, nil
		}
	}
	return nil, fmt.Errorf("loop node has no resolvable input array")
}

// loopBodyStarts returns node IDs directly downstream of this Loop node on
// its "loop" handle (the body subgraph's entry points).
func (e *Engine) loopBodyStarts(loopID string) []string {
	var starts []string
	for _, edge := range e.g.out[loopID] {
		if edge.SourceHandle == "loop" || edge.SourceHandle == "loop-output" {
			starts = append(starts, edge.Target)
		}
	}
	return starts
}

// runLoopIteration executes the body subgraph once for items[index],
// chaining output node-to-node and stopping at any edge that feeds back
// into the loop node itself (that's the feedback edge the loop aggregates
// from, not a node to execute again).
func (e *Engine) runLoopIteration(ctx context.Context, loopNode *Node, bodyStarts []string, items []interface{}, index int) (interface{}, error) {
	e.mu.Lock()
	for _, start := range bodyStarts {
		e.markLoopContextRecursive(start, loopNode.ID, loopContext{item: items[index], index: index, items: items})
	}
	e.mu.Unlock()

	var lastOutput map[string]interface{}
	visited := make(map[string]bool)
	queue := append([]string{}, bodyStarts...)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] || id == loopNode.ID {
			continue
		}
		visited[id] = true

		node := e.nodes[id]
		if node == nil {
			continue
		}

		if executors.IsSkippableNode(node.Type) || isLoopNode(node.Type) {
			e.markExecuted(id, map[string]interface{}{})
			for _, edge := range e.g.out[id] {
				if edge.Target != loopNode.ID {
					queue = append(queue, edge.Target)
				}
			}
			continue
		}

		out, err := e.runNodeOnce(ctx, node, e.assembleInput(node), loopNode.ID)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = map[string]interface{}{}
		}
		lastOutput = out

		// markExecuted (not a bare nodeResults write) so the body node is
		// registered in executedNodes: workerLoop's total-node termination
		// check otherwise never sees a Loop's body nodes as done.
		e.markExecuted(id, out)

		if executors.IsBranchingType(node.Type) {
			handle := normalizeHandle(out)
			e.mu.RLock()
			targets := e.conditionalMap[id][handle]
			e.mu.RUnlock()
			for _, t := range targets {
				if t != loopNode.ID {
					queue = append(queue, t)
				}
			}
			continue
		}

		for _, edge := range e.g.out[id] {
			if edge.Target != loopNode.ID {
				queue = append(queue, edge.Target)
			}
		}
	}

	e.mu.Lock()
	for _, start := range bodyStarts {
		delete(e.loopContexts, start)
	}
	e.mu.Unlock()

	return lastOutput, nil
}

// markLoopContextRecursive propagates the loop context to a body entry
// point; downstream body nodes pick it up transitively via assembleInput
// reading nodeResults from the immediately preceding body node instead, so
// only the entry points need the context injected directly.
func (e *Engine) markLoopContextRecursive(nodeID, loopNodeID string, lc loopContext) {
	e.loopContexts[nodeID] = lc
}

// routeLoopDone enqueues the nodes downstream of the Loop's "done" handle
// with the aggregated result available as that loop node's own output.
func (e *Engine) routeLoopDone(node *Node, accumulated []interface{}, queue *readyQueue) {
	for _, edge := range e.g.out[node.ID] {
		if edge.SourceHandle == "done" || edge.SourceHandle == "output" || edge.SourceHandle == "" {
			queue.enqueue(edge.Target, time.Now())
		}
	}
}

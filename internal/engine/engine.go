// Package engine implements the workflow graph execution engine: dependency
// gating, branch routing, loop aggregation via edge buffers, retry and
// continue-on-error policy, and reference resolution of node parameters.
package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/patali/yantra/internal/executors"
)

const (
	defaultMaxParallel     = 4
	dependencyRetryDelay   = 100 * time.Millisecond
	failureRetryDelay      = 500 * time.Millisecond
	dependencyStallBound   = 100
	dequeuePollInterval    = 50 * time.Millisecond
)

// Registry dispatches a node type to its executor. *executors.ExecutorFactory
// satisfies this.
type Registry interface {
	GetExecutor(nodeType string) (executors.Executor, error)
}

// AuditSink persists the per-attempt NodeExecution lifecycle (§4.7).
type AuditSink interface {
	RecordNodeStart(runID, nodeID, nodeType string, attempt int, parentLoopNodeID string, input map[string]interface{}) (recordID string, err error)
	RecordNodeSuccess(recordID string, output map[string]interface{}) error
	RecordNodeFailure(recordID string, errMsg string) error
}

// OutboxSink creates the durable side-effect record for an outbox-routed
// node. The engine calls Enqueue after its running audit row has been
// written; the two writes are separate, not one transaction (§4.4.2).
type OutboxSink interface {
	Enqueue(ctx context.Context, recordID, runID, accountID, nodeID, nodeType, eventType string, config, input map[string]interface{}) error
	PendingCount(ctx context.Context, runID string) (int, error)
}

// PersistentStateStore is the workflow-scoped key/value bag (§3, §4.6).
type PersistentStateStore interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}) error
}

// Result is what Run returns: the terminal per-node output map plus
// whatever pending-outbox status the caller needs to decide final run
// status.
type Result struct {
	NodeOutputs    map[string]interface{}
	PendingOutbox  int
}

// Engine executes one workflow run against its node/edge graph.
type Engine struct {
	registry      Registry
	audit         AuditSink
	outbox        OutboxSink
	state         PersistentStateStore
	maxParallel   int

	runID     string
	accountID string

	mu             sync.RWMutex
	nodes          map[string]*Node
	g              *graph
	conditionalMap map[string]map[string][]string // sourceID -> handle -> targets
	executedNodes  map[string]bool
	nodeResults    map[string]map[string]interface{}
	nodeAttempts   map[string]int
	dependencyTries map[string]int
	edgeBuffers    map[string]map[string]interface{} // loopID -> edgeID -> payload
	loopContexts   map[string]loopContext

	resolver *Resolver
}

type loopContext struct {
	item  interface{}
	index int
	items []interface{}
}

// New builds an Engine for a single run. maxParallel <= 0 uses the default.
func New(registry Registry, audit AuditSink, outbox OutboxSink, state PersistentStateStore, maxParallel int) *Engine {
	if maxParallel <= 0 {
		maxParallel = defaultMaxParallel
	}
	return &Engine{
		registry:    registry,
		audit:       audit,
		outbox:      outbox,
		state:       state,
		maxParallel: maxParallel,
	}
}

// Run executes the graph to completion (every node executed, or a fatal
// error propagates) and returns the accumulated per-node results. If ctx is
// cancelled or its deadline passes first, Run returns ctx's error.
func (e *Engine) Run(ctx context.Context, runID, accountID string, nodes []Node, edges []Edge, input map[string]interface{}) (*Result, error) {
	if err := validateAcyclic(nodes, edges); err != nil {
		return nil, err
	}

	e.runID = runID
	e.accountID = accountID
	e.g = buildGraph(nodes, edges)
	e.nodes = make(map[string]*Node, len(nodes))
	for i := range nodes {
		n := nodes[i]
		e.nodes[n.ID] = &n
	}
	e.executedNodes = make(map[string]bool, len(nodes))
	e.nodeResults = make(map[string]map[string]interface{}, len(nodes))
	e.nodeAttempts = make(map[string]int, len(nodes))
	e.dependencyTries = make(map[string]int, len(nodes))
	e.edgeBuffers = make(map[string]map[string]interface{})
	e.loopContexts = make(map[string]loopContext)
	e.conditionalMap = buildConditionalMap(nodes, edges)
	e.resolver = NewResolver(e.lookupNode)

	sources := e.g.sourceNodes()
	if len(sources) == 0 {
		return nil, ErrNoSources
	}

	queue := newReadyQueue()
	for _, s := range sources {
		queue.enqueue(s, time.Now())
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, e.maxParallel)

	for i := 0; i < e.maxParallel; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.workerLoop(runCtx, queue, cancel, errCh, len(nodes))
		}()
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	outputs := make(map[string]interface{}, len(e.nodeResults))
	for k, v := range e.nodeResults {
		outputs[k] = v
	}
	e.mu.RUnlock()

	pending := 0
	if e.outbox != nil {
		if p, err := e.outbox.PendingCount(ctx, runID); err == nil {
			pending = p
		}
	}

	return &Result{NodeOutputs: outputs, PendingOutbox: pending}, nil
}

// workerLoop is one worker pool goroutine: dequeue, gate, execute, route.
func (e *Engine) workerLoop(ctx context.Context, queue *readyQueue, cancel context.CancelFunc, errCh chan<- error, totalNodes int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		e.mu.RLock()
		done := len(e.executedNodes) >= totalNodes
		e.mu.RUnlock()
		if done {
			queue.close()
			return
		}

		nodeID, ok := queue.dequeue(dequeuePollInterval)
		if !ok {
			continue
		}

		e.mu.RLock()
		already := e.executedNodes[nodeID]
		e.mu.RUnlock()
		if already {
			continue
		}

		ready, reason := e.isReady(nodeID)
		if !ready {
			e.mu.Lock()
			e.dependencyTries[nodeID]++
			tries := e.dependencyTries[nodeID]
			e.mu.Unlock()
			if tries > dependencyStallBound {
				err := fmt.Errorf("%w: node %s stuck on %s", ErrDependencyStall, nodeID, reason)
				select {
				case errCh <- err:
				default:
				}
				cancel()
				return
			}
			queue.enqueue(nodeID, time.Now().Add(dependencyRetryDelay))
			continue
		}

		if err := e.executeAndRoute(ctx, nodeID, queue); err != nil {
			select {
			case errCh <- err:
			default:
			}
			cancel()
			return
		}
	}
}

// isReady implements the dependency gate (§4.4.2 step 1): every upstream
// node must have executed before nodeID can fire. (The children-done gate
// §4.4.2 also describes is deliberately not enforced here — see DESIGN.md.)
func (e *Engine) isReady(nodeID string) (bool, string) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, edge := range e.g.in[nodeID] {
		if !e.executedNodes[edge.Source] {
			return false, fmt.Sprintf("upstream %s not executed", edge.Source)
		}
	}
	return true, ""
}

func isLoopNode(t string) bool { return t == "loop" || t == "loop-accumulator" }

// buildConditionalMap precomputes sourceID -> handle -> targets for every
// edge whose source is a branching node type.
func buildConditionalMap(nodes []Node, edges []Edge) map[string]map[string][]string {
	branching := make(map[string]bool)
	for _, n := range nodes {
		if executors.IsBranchingType(n.Type) {
			branching[n.ID] = true
		}
	}
	m := make(map[string]map[string][]string)
	for _, e := range edges {
		if !branching[e.Source] {
			continue
		}
		if m[e.Source] == nil {
			m[e.Source] = make(map[string][]string)
		}
		handle := e.SourceHandle
		if handle == "" {
			handle = "default"
		}
		m[e.Source][handle] = append(m[e.Source][handle], e.Target)
	}
	return m
}

// lookupNode resolves a reference name (node ID, or label/type fallback)
// to that node's last output, for the Reference Resolver. A node without a
// label is matched by its type.
func (e *Engine) lookupNode(name string) (interface{}, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if out, ok := e.nodeResults[name]; ok {
		return out, true
	}
	for id, n := range e.nodes {
		label, _ := n.Values["label"].(string)
		if label == "" {
			label = n.Type
		}
		if label == name {
			if out, ok := e.nodeResults[id]; ok {
				return out, true
			}
		}
	}
	return nil, false
}

// executeAndRoute runs one node to completion (including retries per its
// own policy) and then routes its result downstream.
func (e *Engine) executeAndRoute(ctx context.Context, nodeID string, queue *readyQueue) error {
	node := e.nodes[nodeID]
	if node == nil {
		return fmt.Errorf("unknown node %s", nodeID)
	}

	if executors.IsSkippableNode(node.Type) {
		e.markExecuted(nodeID, map[string]interface{}{})
		e.enqueueDownstream(nodeID, queue)
		return nil
	}

	if isLoopNode(node.Type) {
		return e.executeLoop(ctx, node, queue)
	}

	result, execErr := e.runNodeOnce(ctx, node, e.assembleInput(node), "")
	if execErr != nil {
		return execErr
	}
	if result == nil {
		// An executor that succeeded with a nil Output leaves no result map;
		// store an error-shaped placeholder so branch routing can react to it.
		result = map[string]interface{}{"success": false}
	}

	e.markExecuted(nodeID, result)

	if executors.IsBranchingType(node.Type) {
		return e.routeBranch(nodeID, result, queue)
	}

	e.enqueueDownstream(nodeID, queue)
	e.bufferFeedback(nodeID, result, queue)
	return nil
}

// assembleInput merges upstream results into this node's view per §4.4.2
// step 3: defaults from the node's own values, overridden by each upstream
// node's last result in upstream-edge order. With a loop context the
// upstream results are not merged: the input is the node's own values plus
// loopItem/loopIndex/loopItems.
func (e *Engine) assembleInput(node *Node) map[string]interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if lc, ok := e.loopContexts[node.ID]; ok {
		view := make(map[string]interface{}, len(node.Values)+3)
		for k, v := range node.Values {
			view[k] = v
		}
		view["loopItem"] = lc.item
		view["loopIndex"] = lc.index
		view["loopItems"] = lc.items
		return view
	}

	merged := make(map[string]interface{})
	for k, v := range node.Values {
		merged[k] = v
	}
	for _, edge := range e.g.in[node.ID] {
		if out, ok := e.nodeResults[edge.Source]; ok {
			for k, v := range out {
				merged[k] = v
			}
		}
	}

	if isLoopNode(node.Type) {
		if buf, ok := e.edgeBuffers[node.ID]; ok {
			flat := flattenBuffer(buf)
			merged["_edgeBuf"] = buf
			merged["aggregatedData"] = flat
		}
	}

	return merged
}

func flattenBuffer(buf map[string]interface{}) []interface{} {
	keys := make([]string, 0, len(buf))
	for k := range buf {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]interface{}, 0, len(buf))
	for _, k := range keys {
		out = append(out, buf[k])
	}
	return out
}

// runNodeOnce executes a node's executor, honoring its maxAttempts /
// continueOnError policy (§4.4.2 step 6). When a failure is absorbed by
// continueOnError it returns {success:false, error:<last error>} and a nil error.
func (e *Engine) runNodeOnce(ctx context.Context, node *Node, input map[string]interface{}, parentLoopNodeID string) (map[string]interface{}, error) {
	resolved := e.resolver.ResolveValues(node.Values, input)

	maxAttempts := 1
	if ma, ok := node.Values["maxAttempts"].(float64); ok && ma >= 1 {
		maxAttempts = int(ma)
	}
	continueOnError, _ := node.Values["continueOnError"].(bool)

	var lastErr string
	for {
		e.mu.Lock()
		e.nodeAttempts[node.ID]++
		attempt := e.nodeAttempts[node.ID]
		e.mu.Unlock()

		recordID, auditErr := e.audit.RecordNodeStart(e.runID, node.ID, node.Type, attempt, parentLoopNodeID, input)
		if auditErr != nil {
			log.Printf("⚠️  failed to record node start for %s: %v", node.ID, auditErr)
		}

		if executors.NodeRequiresOutbox(node.Type) {
			eventType := node.Type + ".send"
			if node.Type == "http" {
				eventType = "http.request"
			}
			if err := e.outbox.Enqueue(ctx, recordID, e.runID, e.accountID, node.ID, node.Type, eventType, resolved, input); err != nil {
				if recordID != "" {
					_ = e.audit.RecordNodeFailure(recordID, err.Error())
				}
				return nil, fmt.Errorf("%w: %v", ErrTransientIntegration, err)
			}
			return map[string]interface{}{"status": "queued", "nodeId": node.ID}, nil
		}

		executor, err := e.registry.GetExecutor(node.Type)
		if err != nil {
			if recordID != "" {
				_ = e.audit.RecordNodeFailure(recordID, err.Error())
			}
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedCategory, err)
		}

		execCtx := executors.ExecutionContext{
			NodeID:      node.ID,
			NodeConfig:  resolved,
			Input:       input,
			ExecutionID: e.runID,
			AccountID:   e.accountID,
		}
		if e.state != nil {
			execCtx.GetState = e.state.Get
			execCtx.SetState = e.state.Set
		}

		result, execErr := executor.Execute(ctx, execCtx)
		if execErr == nil && result != nil && result.Success {
			if recordID != "" {
				_ = e.audit.RecordNodeSuccess(recordID, result.Output)
			}
			return result.Output, nil
		}

		if execErr != nil {
			lastErr = execErr.Error()
		} else if result != nil {
			lastErr = result.Error
		} else {
			lastErr = "node returned no result"
		}
		if recordID != "" {
			_ = e.audit.RecordNodeFailure(recordID, lastErr)
		}

		if attempt < maxAttempts {
			time.Sleep(failureRetryDelay)
			continue
		}

		if continueOnError {
			return map[string]interface{}{"success": false, "error": lastErr}, nil
		}
		return nil, fmt.Errorf("%w: node %s: %s", ErrUnrecoverableNode, node.ID, lastErr)
	}
}

func (e *Engine) markExecuted(nodeID string, result map[string]interface{}) {
	e.mu.Lock()
	e.executedNodes[nodeID] = true
	e.nodeResults[nodeID] = result
	e.mu.Unlock()
}

func (e *Engine) enqueueDownstream(nodeID string, queue *readyQueue) {
	e.mu.RLock()
	targets := e.g.out[nodeID]
	e.mu.RUnlock()
	for _, edge := range targets {
		e.mu.RLock()
		executed := e.executedNodes[edge.Target]
		e.mu.RUnlock()
		if !executed {
			queue.enqueue(edge.Target, time.Now())
		}
	}
}

// bufferFeedback aggregates nodeID's result into any Loop node's edge
// buffer for which this edge is classified as a feedback edge.
func (e *Engine) bufferFeedback(nodeID string, result map[string]interface{}, queue *readyQueue) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, edge := range e.g.out[nodeID] {
		target := e.nodes[edge.Target]
		if target == nil || !isLoopNode(target.Type) {
			continue
		}
		if !e.g.isFeedbackEdge(edge, target.ID) {
			continue
		}
		if e.edgeBuffers[target.ID] == nil {
			e.edgeBuffers[target.ID] = make(map[string]interface{})
		}
		e.edgeBuffers[target.ID][edge.ID] = result
	}
}

// routeBranch routes a branching node's result to exactly one handle's
// target set, per the normalisation rules in §4.4.3. A Loop target gets the
// branching node's original input in its edge buffer, not the result.
func (e *Engine) routeBranch(nodeID string, result map[string]interface{}, queue *readyQueue) error {
	handle := normalizeHandle(result)

	e.mu.RLock()
	targets := e.conditionalMap[nodeID][handle]
	e.mu.RUnlock()

	input := e.assembleInput(e.nodes[nodeID])
	for _, t := range targets {
		e.mu.RLock()
		tn := e.nodes[t]
		e.mu.RUnlock()
		if tn != nil && isLoopNode(tn.Type) {
			e.mu.Lock()
			if e.edgeBuffers[t] == nil {
				e.edgeBuffers[t] = make(map[string]interface{})
			}
			e.edgeBuffers[t][nodeID+"->"+t] = input
			e.mu.Unlock()
		}
		queue.enqueue(t, time.Now())
	}
	return nil
}

// normalizeHandle reduces a branching node's result to a handle key per
// §4.4.3: boolean -> "true"/"false"; an object's "true"/"false" field;
// an object's "result" or "output" field; otherwise the textual form.
func normalizeHandle(result map[string]interface{}) string {
	if b, ok := result["success"].(bool); ok && len(result) == 1 {
		return boolHandle(b)
	}
	if v, ok := result["true"]; ok {
		if truthy(v) {
			return "true"
		}
	}
	if v, ok := result["false"]; ok {
		if truthy(v) {
			return "false"
		}
	}
	if r, ok := result["result"]; ok {
		return handleFromValue(r)
	}
	if o, ok := result["output"]; ok {
		return handleFromValue(o)
	}
	return fmt.Sprintf("%v", result)
}

func handleFromValue(v interface{}) string {
	switch val := v.(type) {
	case bool:
		return boolHandle(val)
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

func boolHandle(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func truthy(v interface{}) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != "" && val != "false"
	case nil:
		return false
	default:
		return true
	}
}

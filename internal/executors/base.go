package executors

import "context"

// ExecutionContext carries everything an executor needs to run a single node once.
type ExecutionContext struct {
	NodeID       string                 `json:"node_id"`
	NodeConfig   map[string]interface{} `json:"node_config"`
	Input        map[string]interface{} `json:"input"`
	WorkflowData map[string]interface{} `json:"workflow_data"`
	ExecutionID  string                 `json:"execution_id"`
	AccountID    string                 `json:"account_id"`

	// GetState/SetState expose the workflow's persistent key/value state
	// (flushed to the workflows.persistent_state column on every write),
	// nil when the engine was constructed without a state store.
	GetState func(key string) (interface{}, bool)      `json:"-"`
	SetState func(key string, value interface{}) error `json:"-"`
}

// ExecutionResult is what an executor hands back to the engine.
type ExecutionResult struct {
	Success bool
	Output  map[string]interface{}
	Error   string

	// NeedsSleep/WakeUpAt describe a wake-up time for a suspended run. No
	// executor in this package sets them and the engine does not read them.
	NeedsSleep bool
	WakeUpAt   *int64 // unix seconds
}

// Executor is the single operation every node category implements.
type Executor interface {
	Execute(ctx context.Context, execCtx ExecutionContext) (*ExecutionResult, error)
}

// Category groups node types for registry dispatch and for deciding whether
// a node's side effects go through the outbox.
type Category string

const (
	CategoryDataSource  Category = "DataSource"
	CategoryIndicator   Category = "Indicator"
	CategoryBroker      Category = "Broker"
	CategoryComm        Category = "Communication"
	CategoryControlFlow Category = "ControlFlow"
	CategoryUtility     Category = "Utility"
	CategoryHTTP        Category = "HTTP"
)

// asyncNodeTypes are node types whose executors talk to an external system
// and are therefore routed through the outbox rather than executed inline.
var asyncNodeTypes = map[string]bool{
	"email":    true,
	"slack":    true,
	"whatsapp": true,
	"webhook":  true,
}

// NodeRequiresOutbox reports whether a node type's side effects must be
// recorded via the outbox pattern rather than executed synchronously.
func NodeRequiresOutbox(nodeType string) bool {
	return asyncNodeTypes[nodeType]
}

// IsAsyncNode is an alias kept for call sites that predate the outbox
// terminology settling on NodeRequiresOutbox.
func IsAsyncNode(nodeType string) bool {
	return NodeRequiresOutbox(nodeType)
}

// categoryByType maps a node's declared type to its dispatch category when
// the node definition doesn't carry an explicit category field.
var categoryByType = map[string]Category{
	"if":              CategoryControlFlow,
	"switch":          CategoryControlFlow,
	"loop":            CategoryControlFlow,
	"loop-accumulator": CategoryControlFlow,
	"edit-fields":     CategoryControlFlow,
	"conditional":     CategoryControlFlow,
	"transform":       CategoryControlFlow,
	"math":            CategoryControlFlow,
	"json":            CategoryControlFlow,
	"json_to_csv":     CategoryControlFlow,
	"json-array":      CategoryControlFlow,

	"scheduler":   CategoryUtility,
	"trigger":     CategoryUtility,
	"delay":       CategoryUtility,
	"webhook":     CategoryUtility,
	"httprequest": CategoryUtility,
	"http":        CategoryHTTP,

	"email":    CategoryComm,
	"slack":    CategoryComm,
	"whatsapp": CategoryComm,
	"gmail":    CategoryComm,

	"finnhub":       CategoryDataSource,
	"yahoofinance":  CategoryDataSource,

	"rsi": CategoryIndicator,
	"sma": CategoryIndicator,
	"ema": CategoryIndicator,
	"macd": CategoryIndicator,

	"alpaca":      CategoryBroker,
	"ordersubmit": CategoryBroker,
}

// CategoryForType derives a node's dispatch category from its type when the
// node definition itself doesn't declare one.
func CategoryForType(nodeType string) Category {
	if c, ok := categoryByType[nodeType]; ok {
		return c
	}
	return CategoryUtility
}

// IsBranchingType reports whether a node type routes its output by handle
// key rather than firing every downstream edge.
func IsBranchingType(nodeType string) bool {
	return nodeType == "if" || nodeType == "switch" || nodeType == "conditional"
}

// IsLoopType reports whether a node type drives a child subgraph iteratively.
func IsLoopType(nodeType string) bool {
	return nodeType == "loop" || nodeType == "loop-accumulator"
}

// IsSkippableNode reports node types the engine walks through but never
// dispatches to an executor (start/end markers in the authored graph).
func IsSkippableNode(nodeType string) bool {
	return nodeType == "start" || nodeType == "end"
}

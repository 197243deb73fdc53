package executors

import (
	"fmt"

	"github.com/patali/yantra/internal/credential"
	"gorm.io/gorm"
)

// ExecutorFactory is the node executor registry: a node type -> Executor
// map, populated once at startup and read-only thereafter. Loop and
// loop-accumulator node types are deliberately never registered here —
// the engine drives their subgraph iteration itself (internal/engine)
// rather than dispatching them through a single Execute call.
type ExecutorFactory struct {
	executors map[string]Executor
}

// NewExecutorFactory builds the registry with every domain-stack executor
// wired in. creds may be nil in environments with no credential store
// configured; credential-backed executors then fall back to node-level
// config overrides only.
func NewExecutorFactory(db *gorm.DB, creds *credential.Store) *ExecutorFactory {
	factory := &ExecutorFactory{
		executors: make(map[string]Executor),
	}

	// Control flow
	factory.Register("conditional", NewConditionalExecutor())
	factory.Register("if", NewConditionalExecutor())
	factory.Register("switch", NewSwitchExecutor())
	factory.Register("transform", NewTransformExecutor())
	factory.Register("edit-fields", NewTransformExecutor())
	factory.Register("json", NewJSONExecutor())

	// Utility
	factory.Register("delay", NewDelayExecutor())
	factory.Register("http", NewHTTPExecutor())
	factory.Register("httprequest", NewHTTPExecutor())
	factory.Register("webhook", NewWebhookExecutor())

	// Communication (outbox-routed)
	factory.Register("email", NewEmailExecutor(db))
	factory.Register("slack", NewSlackExecutor())
	factory.Register("whatsapp", NewWhatsAppExecutor())

	// DataSource
	factory.Register("finnhub", NewFinnHubExecutor(creds))
	factory.Register("yahoofinance", NewYahooFinanceExecutor())

	// Indicator
	factory.Register("sma", NewSMAExecutor())
	factory.Register("ema", NewEMAExecutor())
	factory.Register("rsi", NewRSIExecutor())

	// Broker
	factory.Register("alpaca", NewBrokerExecutor())
	factory.Register("ordersubmit", NewBrokerExecutor())

	return factory
}

// SetEmailService sets the email service for the email executor
func (f *ExecutorFactory) SetEmailService(service EmailServiceInterface) {
	if emailExecutor, ok := f.executors["email"].(*EmailExecutor); ok {
		emailExecutor.SetEmailService(service)
	}
}

// Register registers an executor for a node type
func (f *ExecutorFactory) Register(nodeType string, executor Executor) {
	f.executors[nodeType] = executor
}

// GetExecutor returns an executor for a node type
func (f *ExecutorFactory) GetExecutor(nodeType string) (Executor, error) {
	executor, exists := f.executors[nodeType]
	if !exists {
		return nil, fmt.Errorf("no executor registered for node type %q", nodeType)
	}
	return executor, nil
}

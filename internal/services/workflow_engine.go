package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/patali/yantra/internal/credential"
	"github.com/patali/yantra/internal/engine"
	"github.com/patali/yantra/internal/executors"
	"github.com/patali/yantra/internal/models"
	"gorm.io/gorm"
)

// WorkflowEngineService loads a workflow run's persisted definition and
// state, delegates graph traversal to internal/engine.Engine, and
// persists the resulting run/node-execution/outbox records. It is the
// thin DB-interaction shell around the engine package's pure traversal
// algorithm: the engine decides what runs when, this service decides how
// that gets written to Postgres.
type WorkflowEngineService struct {
	db              *gorm.DB
	executorFactory *executors.ExecutorFactory
	outboxService   *OutboxService
	maxParallel     int
	watchdogTimeout time.Duration
}

func NewWorkflowEngineService(db *gorm.DB) *WorkflowEngineService {
	var creds *credential.Store
	return &WorkflowEngineService{
		db:              db,
		executorFactory: executors.NewExecutorFactory(db, creds),
		outboxService:   NewOutboxService(db),
	}
}

// SetMaxParallel overrides the per-run worker pool size (0 keeps the
// engine package's own default).
func (s *WorkflowEngineService) SetMaxParallel(n int) {
	s.maxParallel = n
}

// SetWatchdogTimeout bounds how long a single run may execute before the
// engine's context is cancelled and the run is marked failed with
// WatchdogTimeout (§5). Zero disables the watchdog.
func (s *WorkflowEngineService) SetWatchdogTimeout(d time.Duration) {
	s.watchdogTimeout = d
}

// SetCredentialStore rewires the executor registry's credential-backed
// executors once a master key is available (called from main after config
// load; NewWorkflowEngineService alone runs without credential lookups).
func (s *WorkflowEngineService) SetCredentialStore(creds *credential.Store) {
	s.executorFactory = executors.NewExecutorFactory(s.db, creds)
}

// SetEmailService injects the email delivery collaborator into the email executor.
func (s *WorkflowEngineService) SetEmailService(service executors.EmailServiceInterface) {
	s.executorFactory.SetEmailService(service)
}

// ExecuteWorkflow executes a workflow (called by the River worker).
func (s *WorkflowEngineService) ExecuteWorkflow(ctx context.Context, workflowID, executionID, inputJSON, triggerType string) error {
	log.Printf("🔄 Starting workflow execution: %s (execution: %s)", workflowID, executionID)

	var workflow models.Workflow
	if err := s.db.First(&workflow, "id = ?", workflowID).Error; err != nil {
		return fmt.Errorf("workflow not found: %w", err)
	}
	if !workflow.IsActive {
		return fmt.Errorf("workflow is not active: %s", workflowID)
	}

	var latestVersion models.WorkflowVersion
	if err := s.db.Where("workflow_id = ?", workflowID).
		Order("version DESC").
		First(&latestVersion).Error; err != nil {
		return fmt.Errorf("no version found for workflow: %w", err)
	}
	log.Printf("📖 Using workflow version %d", latestVersion.Version)

	var input map[string]interface{}
	if inputJSON != "" {
		if err := json.Unmarshal([]byte(inputJSON), &input); err != nil {
			return fmt.Errorf("failed to parse input: %w", err)
		}
	}

	var execution models.WorkflowExecution
	if err := s.db.First(&execution, "id = ?", executionID).Error; err != nil {
		return fmt.Errorf("execution record not found: %w", err)
	}
	s.db.Model(&execution).Update("status", "running")

	nodes, edges, err := parseDefinition(latestVersion.Definition)
	if err != nil {
		return fmt.Errorf("failed to parse workflow definition: %w", err)
	}

	accountID := ""
	if workflow.AccountID != nil {
		accountID = *workflow.AccountID
	}

	eng := engine.New(
		s.executorFactory,
		newGormAuditSink(s.db, execution.ID),
		newGormOutboxSink(s.db),
		newGormStateStore(s.db, workflow.ID),
		s.maxParallel,
	)

	runCtx := ctx
	if s.watchdogTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.watchdogTimeout)
		defer cancel()
	}

	result, runErr := eng.Run(runCtx, execution.ID, accountID, nodes, edges, input)
	if runErr != nil && runCtx.Err() == context.DeadlineExceeded {
		runErr = fmt.Errorf("%w: run exceeded %s", engine.ErrWatchdogTimeout, s.watchdogTimeout)
	}

	now := time.Now()
	if runErr != nil {
		errMsg := runErr.Error()
		s.db.Model(&execution).Updates(map[string]interface{}{
			"status":       "error",
			"error":        errMsg,
			"completed_at": now,
		})
		return runErr
	}

	if result.PendingOutbox > 0 {
		s.db.Model(&execution).Update("status", "running")
		log.Printf("✅ Workflow execution completed with %d pending async operations: %s", result.PendingOutbox, workflowID)
	} else {
		outputJSON, _ := json.Marshal(result.NodeOutputs)
		outputStr := string(outputJSON)
		s.db.Model(&execution).Updates(map[string]interface{}{
			"status":       "success",
			"output":       &outputStr,
			"completed_at": now,
		})
		log.Printf("✅ Workflow execution completed: %s", workflowID)
	}

	return nil
}

// parseDefinition decodes a WorkflowVersion's {"nodes":[...],"edges":[...]}
// JSON blob into the engine package's Node/Edge value types.
func parseDefinition(definitionJSON string) ([]engine.Node, []engine.Edge, error) {
	var raw struct {
		Nodes []struct {
			ID       string                 `json:"id"`
			Type     string                 `json:"type"`
			Category string                 `json:"category"`
			Data     map[string]interface{} `json:"data"`
		} `json:"nodes"`
		Edges []struct {
			ID           string `json:"id"`
			Source       string `json:"source"`
			Target       string `json:"target"`
			SourceHandle string `json:"sourceHandle"`
			TargetHandle string `json:"targetHandle"`
		} `json:"edges"`
	}
	if err := json.Unmarshal([]byte(definitionJSON), &raw); err != nil {
		return nil, nil, err
	}

	nodes := make([]engine.Node, 0, len(raw.Nodes))
	for _, n := range raw.Nodes {
		category := n.Category
		if category == "" {
			category = string(executors.CategoryForType(n.Type))
		}
		nodes = append(nodes, engine.Node{
			ID:       n.ID,
			Type:     n.Type,
			Category: category,
			Values:   n.Data,
		})
	}

	edges := make([]engine.Edge, 0, len(raw.Edges))
	for _, e := range raw.Edges {
		edges = append(edges, engine.Edge{
			ID:           e.ID,
			Source:       e.Source,
			Target:       e.Target,
			SourceHandle: e.SourceHandle,
			TargetHandle: e.TargetHandle,
		})
	}

	return nodes, edges, nil
}

// gormAuditSink implements engine.AuditSink against the
// workflow_node_executions table.
type gormAuditSink struct {
	db          *gorm.DB
	executionID string
}

func newGormAuditSink(db *gorm.DB, executionID string) *gormAuditSink {
	return &gormAuditSink{db: db, executionID: executionID}
}

func (a *gormAuditSink) RecordNodeStart(runID, nodeID, nodeType string, attempt int, parentLoopNodeID string, input map[string]interface{}) (string, error) {
	inputJSON, _ := json.Marshal(input)
	inputStr := string(inputJSON)

	row := models.WorkflowNodeExecution{
		ExecutionID: runID,
		NodeID:      nodeID,
		NodeType:    nodeType,
		Status:      "running",
		Attempt:     attempt,
		Input:       &inputStr,
	}
	if parentLoopNodeID != "" {
		row.ParentLoopNodeID = &parentLoopNodeID
	}

	if err := a.db.Create(&row).Error; err != nil {
		return "", fmt.Errorf("failed to record node start: %w", err)
	}
	return row.ID, nil
}

func (a *gormAuditSink) RecordNodeSuccess(recordID string, output map[string]interface{}) error {
	outputJSON, _ := json.Marshal(output)
	outputStr := string(outputJSON)
	now := time.Now()
	return a.db.Model(&models.WorkflowNodeExecution{}).Where("id = ?", recordID).Updates(map[string]interface{}{
		"status":       "success",
		"output":       &outputStr,
		"completed_at": now,
	}).Error
}

func (a *gormAuditSink) RecordNodeFailure(recordID, errMsg string) error {
	now := time.Now()
	return a.db.Model(&models.WorkflowNodeExecution{}).Where("id = ?", recordID).Updates(map[string]interface{}{
		"status":       "error",
		"error":        &errMsg,
		"completed_at": now,
	}).Error
}

// gormOutboxSink implements engine.OutboxSink by writing an OutboxMessage
// row against the audit row the engine already created for this attempt.
type gormOutboxSink struct {
	db *gorm.DB
}

func newGormOutboxSink(db *gorm.DB) *gormOutboxSink {
	return &gormOutboxSink{db: db}
}

func (o *gormOutboxSink) Enqueue(ctx context.Context, recordID, runID, accountID, nodeID, nodeType, eventType string, config, input map[string]interface{}) error {
	payload := map[string]interface{}{
		"node_id":       nodeID,
		"node_config":   config,
		"input":         input,
		"workflow_data": map[string]interface{}{},
		"execution_id":  runID,
		"account_id":    accountID,
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	now := time.Now()
	msg := models.OutboxMessage{
		NodeExecutionID: recordID,
		EventType:       eventType,
		Payload:         string(payloadJSON),
		Status:          "pending",
		IdempotencyKey:  fmt.Sprintf("%s-%s-%s", runID, nodeID, recordID),
		NextRetryAt:     &now, // Process immediately
	}
	if err := o.db.Create(&msg).Error; err != nil {
		return fmt.Errorf("failed to enqueue outbox message: %w", err)
	}
	return nil
}

func (o *gormOutboxSink) PendingCount(ctx context.Context, runID string) (int, error) {
	var count int64
	err := o.db.Model(&models.OutboxMessage{}).
		Joins("JOIN workflow_node_executions ON workflow_node_executions.id = outbox_messages.node_execution_id").
		Where("workflow_node_executions.execution_id = ? AND outbox_messages.status IN ?",
			runID, []string{"pending", "processing"}).
		Count(&count).Error
	return int(count), err
}

// gormStateStore implements engine.PersistentStateStore against a single
// workflow's persistent_state jsonb column, serializing writes per workflow
// with an in-process mutex so two concurrent runs of the same workflow
// don't race on read-modify-write.
type gormStateStore struct {
	db         *gorm.DB
	workflowID string
}

var workflowStateLocks sync.Map // workflowID -> *sync.Mutex

func newGormStateStore(db *gorm.DB, workflowID string) *gormStateStore {
	return &gormStateStore{db: db, workflowID: workflowID}
}

func (s *gormStateStore) lock() *sync.Mutex {
	l, _ := workflowStateLocks.LoadOrStore(s.workflowID, &sync.Mutex{})
	return l.(*sync.Mutex)
}

func (s *gormStateStore) load() (map[string]interface{}, error) {
	var workflow models.Workflow
	if err := s.db.Select("persistent_state").First(&workflow, "id = ?", s.workflowID).Error; err != nil {
		return nil, err
	}
	state := map[string]interface{}{}
	if workflow.PersistentState != "" {
		if err := json.Unmarshal([]byte(workflow.PersistentState), &state); err != nil {
			return nil, err
		}
	}
	return state, nil
}

func (s *gormStateStore) Get(key string) (interface{}, bool) {
	mu := s.lock()
	mu.Lock()
	defer mu.Unlock()

	state, err := s.load()
	if err != nil {
		return nil, false
	}
	v, ok := state[key]
	return v, ok
}

func (s *gormStateStore) Set(key string, value interface{}) error {
	mu := s.lock()
	mu.Lock()
	defer mu.Unlock()

	state, err := s.load()
	if err != nil {
		return fmt.Errorf("failed to load persistent state: %w", err)
	}
	state[key] = value

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal persistent state: %w", err)
	}
	return s.db.Model(&models.Workflow{}).Where("id = ?", s.workflowID).
		Update("persistent_state", string(stateJSON)).Error
}

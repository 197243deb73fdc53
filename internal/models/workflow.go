package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TriggerType enumerates how a WorkflowExecution came to be queued.
type TriggerType string

const (
	TriggerTypeManual       TriggerType = "manual"
	TriggerTypeScheduled    TriggerType = "scheduled"
	TriggerTypeWebhook      TriggerType = "webhook"
	TriggerTypeResumeSleep  TriggerType = "resume_from_sleep"
)

var AllTriggerTypes = []TriggerType{
	TriggerTypeManual,
	TriggerTypeScheduled,
	TriggerTypeWebhook,
	TriggerTypeResumeSleep,
}

func IsValidTriggerType(t string) bool {
	for _, v := range AllTriggerTypes {
		if string(v) == t {
			return true
		}
	}
	return false
}

// Workflow is the user-authored graph definition plus its scheduling state.
type Workflow struct {
	ID             string            `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name           string            `gorm:"not null" json:"name"`
	Description    *string           `json:"description,omitempty"`
	IsActive       bool              `gorm:"default:false" json:"isActive"`
	Schedule       *string           `json:"schedule,omitempty"` // 5-field cron, or raw Scheduler-node config derivation
	Timezone       string            `gorm:"default:UTC" json:"timezone"`
	CurrentVersion int               `gorm:"default:0" json:"currentVersion"`
	AccountID      *string           `gorm:"type:uuid" json:"accountId,omitempty"`
	CreatedBy      *string           `gorm:"type:uuid" json:"createdBy,omitempty"`
	PersistentState string           `gorm:"type:jsonb;default:'{}'" json:"-"`
	CreatedAt      time.Time         `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time         `gorm:"autoUpdateTime" json:"updatedAt"`

	Versions []WorkflowVersion `gorm:"-" json:"versions,omitempty"`
}

func (Workflow) TableName() string { return "workflows" }

func (w *Workflow) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	if w.PersistentState == "" {
		w.PersistentState = "{}"
	}
	return nil
}

// WorkflowVersion is an immutable snapshot of a workflow's nodes/edges.
// A run executes the highest-numbered version at the time it starts; it is
// not pinned to the version current when it was enqueued.
type WorkflowVersion struct {
	ID         string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	WorkflowID string    `gorm:"type:uuid;not null;index" json:"workflowId"`
	Version    int       `gorm:"not null" json:"version"`
	Definition string    `gorm:"type:jsonb;not null" json:"definition"` // {"nodes":[...],"edges":[...]}
	ChangeLog  *string   `json:"changeLog,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (WorkflowVersion) TableName() string { return "workflow_versions" }

func (v *WorkflowVersion) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	return nil
}

// WorkflowExecution is one run of a workflow.
type WorkflowExecution struct {
	ID          string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	WorkflowID  string     `gorm:"type:uuid;not null;index" json:"workflowId"`
	Version     int        `json:"version"`
	Status      string     `gorm:"not null;default:queued" json:"status"` // queued|running|success|error
	TriggerType string     `gorm:"not null" json:"triggerType"`
	InitiatedBy *string    `gorm:"type:uuid" json:"initiatedBy,omitempty"`
	Input       *string    `gorm:"type:jsonb" json:"input,omitempty"`
	Output      *string    `gorm:"type:jsonb" json:"output,omitempty"`
	Error       *string    `json:"error,omitempty"`
	StartedAt   time.Time  `gorm:"autoCreateTime" json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func (WorkflowExecution) TableName() string { return "workflow_executions" }

func (e *WorkflowExecution) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

// WorkflowNodeExecution is one attempt of one node within one run.
type WorkflowNodeExecution struct {
	ID               string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ExecutionID      string     `gorm:"type:uuid;not null;index" json:"executionId"`
	NodeID           string     `gorm:"not null" json:"nodeId"`
	NodeType         string     `gorm:"not null" json:"nodeType"`
	Status           string     `gorm:"not null" json:"status"` // running|pending|success|error
	Attempt          int        `gorm:"default:1" json:"attempt"`
	Input            *string    `gorm:"type:jsonb" json:"input,omitempty"`
	Output           *string    `gorm:"type:jsonb" json:"output,omitempty"`
	Error            *string    `json:"error,omitempty"`
	ParentLoopNodeID *string    `json:"parentLoopNodeId,omitempty"`
	IdempotencyKey   *string    `gorm:"index" json:"idempotencyKey,omitempty"`
	StartedAt        time.Time  `gorm:"autoCreateTime" json:"startedAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`

	Execution WorkflowExecution `gorm:"foreignKey:ExecutionID;constraint:OnDelete:CASCADE" json:"-"`
}

func (WorkflowNodeExecution) TableName() string { return "workflow_node_executions" }

func (e *WorkflowNodeExecution) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Attempt == 0 {
		e.Attempt = 1
	}
	return nil
}

// OutboxMessage is a durable side-effect record for a node execution row,
// drained by a dedicated worker. The engine writes it right after the
// running row, in a separate write.
type OutboxMessage struct {
	ID              string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	NodeExecutionID string     `gorm:"type:uuid;not null;index" json:"nodeExecutionId"`
	EventType       string     `gorm:"not null" json:"eventType"`
	Payload         string     `gorm:"type:jsonb;not null" json:"payload"`
	Status          string     `gorm:"not null;default:pending" json:"status"` // pending|processing|completed|dead_letter
	IdempotencyKey  string     `gorm:"index" json:"idempotencyKey"`
	Attempts        int        `gorm:"default:0" json:"attempts"`
	MaxAttempts     int        `gorm:"default:3" json:"maxAttempts"`
	LastError       *string    `json:"lastError,omitempty"`
	LastAttemptAt   *time.Time `json:"lastAttemptAt,omitempty"`
	NextRetryAt     *time.Time `json:"nextRetryAt,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	ProcessedAt     *time.Time `json:"processedAt,omitempty"`

	NodeExecution WorkflowNodeExecution `gorm:"foreignKey:NodeExecutionID;constraint:OnDelete:CASCADE" json:"-"`
}

func (OutboxMessage) TableName() string { return "outbox_messages" }

func (m *OutboxMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// Webhook is a user-registered outbound endpoint, distinct from a workflow's
// own Utility.Webhook node, with its own signing secret and retry policy.
type Webhook struct {
	ID            string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID        string    `gorm:"type:uuid;not null;index" json:"userId"`
	Name          string    `gorm:"not null" json:"name"`
	URL           string    `gorm:"not null" json:"url"`
	Secret        *string   `json:"-"`
	Events        string    `gorm:"type:jsonb;default:'[]'" json:"events"` // JSON array of event names
	Headers       string    `gorm:"type:jsonb;default:'{}'" json:"headers"`
	Active        bool      `gorm:"default:true" json:"active"`
	RetryAttempts int       `gorm:"default:3" json:"retryAttempts"`
	TimeoutSec    int       `gorm:"default:10" json:"timeoutSeconds"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Webhook) TableName() string { return "webhooks" }

func (w *Webhook) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	return nil
}

// WebhookDelivery is the per-attempt audit trail for a Webhook dispatch.
type WebhookDelivery struct {
	ID           string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	WebhookID    string    `gorm:"type:uuid;not null;index" json:"webhookId"`
	Payload      string    `gorm:"type:jsonb;not null" json:"payload"`
	Success      bool      `json:"success"`
	StatusCode   int       `json:"statusCode"`
	ErrorMessage *string   `json:"errorMessage,omitempty"`
	Attempts     int       `gorm:"default:1" json:"attempts"`
	DeliveredAt  time.Time `gorm:"autoCreateTime" json:"deliveredAt"`
}

func (WebhookDelivery) TableName() string { return "webhook_deliveries" }

func (d *WebhookDelivery) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return nil
}

// UserCredential stores per-account integration secrets. Plaintext fields
// are kept out of the struct's JSON encoding; the Credential Store
// collaborator is responsible for decrypting ClientJSON/TokenJSON.
type UserCredential struct {
	ID          string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	AccountID   string    `gorm:"type:uuid;not null;index" json:"accountId"`
	ServiceType string    `gorm:"not null" json:"serviceType"`
	Name        string    `gorm:"not null" json:"name"`
	ClientJSON  string    `gorm:"type:jsonb" json:"-"`
	TokenJSON   string    `gorm:"type:jsonb" json:"-"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (UserCredential) TableName() string { return "user_credentials" }

func (c *UserCredential) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// SleepSchedule is a one-time wake-up record for a run; the scheduler polls
// for due rows and re-queues the execution with trigger resume_from_sleep.
// No executor suspends a run to create one (DelayExecutor sleeps inline).
type SleepSchedule struct {
	ID          string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ExecutionID string    `gorm:"type:uuid;not null;index" json:"executionId"`
	WorkflowID  string    `gorm:"type:uuid;not null;index" json:"workflowId"`
	NodeID      string    `gorm:"not null" json:"nodeId"`
	WakeUpAt    time.Time `gorm:"not null;index" json:"wakeUpAt"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (SleepSchedule) TableName() string { return "sleep_schedules" }

func (s *SleepSchedule) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/patali/yantra/internal/models"
	"gorm.io/gorm"
)

// CleanupService repairs run state left behind by a crash or restart: runs
// stuck in "running" with no further progress, and outbox messages whose
// parent node execution has gone missing. Run once at startup.
type CleanupService struct {
	db *gorm.DB
}

func NewCleanupService(db *gorm.DB) *CleanupService {
	return &CleanupService{db: db}
}

type stuckExecutionInfo struct {
	ExecutionID     string
	WorkflowID      string
	TotalNodes      int64
	FailedNodes     int64
	SuccessNodes    int64
	RunningNodes    int64
	PendingMessages int64
	HasEndNode      bool
}

// FixStuckExecutions reconciles workflow_executions rows left in "running"
// by a server crash: node executions still "running" are marked "error",
// and the run itself is resolved deterministically from what its nodes
// actually did rather than from a time-based heuristic.
func (s *CleanupService) FixStuckExecutions(ctx context.Context) error {
	log.Println("🧹 Starting cleanup: checking for stuck workflow executions...")

	var infos []stuckExecutionInfo
	err := s.db.Raw(`
		SELECT
			we.id as execution_id,
			we.workflow_id as workflow_id,
			COUNT(DISTINCT wne.id) as total_nodes,
			SUM(CASE WHEN wne.status = 'error' THEN 1 ELSE 0 END) as failed_nodes,
			SUM(CASE WHEN wne.status = 'success' THEN 1 ELSE 0 END) as success_nodes,
			SUM(CASE WHEN wne.status = 'running' THEN 1 ELSE 0 END) as running_nodes,
			COUNT(DISTINCT CASE WHEN om.status IN ('pending', 'processing') THEN om.id END) as pending_messages,
			BOOL_OR(wne.node_type = 'end' AND wne.status = 'success') as has_end_node
		FROM workflow_executions we
		LEFT JOIN workflow_node_executions wne ON wne.execution_id = we.id
		LEFT JOIN outbox_messages om ON om.node_execution_id = wne.id
		WHERE we.status = 'running'
		GROUP BY we.id, we.workflow_id
	`).Scan(&infos).Error
	if err != nil {
		return fmt.Errorf("failed to query execution stats: %w", err)
	}

	if len(infos) == 0 {
		log.Println("✅ No running executions found")
		return nil
	}
	log.Printf("🔍 Found %d running executions, checking if any are stuck...", len(infos))

	fixed, interrupted := 0, 0
	for _, info := range infos {
		if info.PendingMessages > 0 {
			log.Printf("  ⏳ Execution %s has %d pending outbox messages, skipping", info.ExecutionID, info.PendingMessages)
			continue
		}

		var newStatus, errMsg string
		switch {
		case info.RunningNodes > 0:
			s.db.Model(&models.WorkflowNodeExecution{}).
				Where("execution_id = ? AND status = ?", info.ExecutionID, "running").
				Updates(map[string]interface{}{
					"status":       "error",
					"error":        "node execution interrupted by server restart",
					"completed_at": time.Now(),
				})
			newStatus = "interrupted"
			errMsg = fmt.Sprintf("workflow interrupted by server restart with %d node(s) stuck in running state", info.RunningNodes)
			interrupted++
		case info.HasEndNode:
			switch {
			case info.FailedNodes > 0 && info.SuccessNodes > 0:
				newStatus = "partially_failed"
				errMsg = fmt.Sprintf("%d out of %d nodes failed", info.FailedNodes, info.TotalNodes)
			case info.FailedNodes > 0:
				newStatus = "error"
				errMsg = fmt.Sprintf("%d out of %d nodes failed", info.FailedNodes, info.TotalNodes)
			default:
				newStatus = "success"
			}
		default:
			newStatus = "interrupted"
			switch {
			case info.TotalNodes == 0:
				errMsg = "workflow interrupted before any nodes executed"
			case info.FailedNodes > 0:
				errMsg = fmt.Sprintf("workflow interrupted after %d node failures", info.FailedNodes)
			default:
				errMsg = fmt.Sprintf("workflow interrupted mid-execution with %d/%d nodes completed", info.SuccessNodes, info.TotalNodes)
			}
			interrupted++
		}

		updates := map[string]interface{}{"status": newStatus, "error": errMsg}
		if newStatus != "interrupted" {
			updates["completed_at"] = time.Now()
		}
		if err := s.db.Model(&models.WorkflowExecution{}).Where("id = ?", info.ExecutionID).Updates(updates).Error; err != nil {
			log.Printf("  ❌ Failed to update execution %s: %v", info.ExecutionID, err)
			continue
		}
		fixed++
		log.Printf("  ✅ Fixed execution %s → %s", info.ExecutionID, newStatus)
	}

	log.Printf("✅ Cleanup complete: fixed %d stuck executions (%d marked interrupted)", fixed, interrupted)
	return nil
}

// FixOrphanedOutboxMessages dead-letters outbox rows whose node execution
// no longer exists (deleted workflow, truncated table, etc).
func (s *CleanupService) FixOrphanedOutboxMessages(ctx context.Context) error {
	log.Println("🧹 Starting cleanup: checking for orphaned outbox messages...")

	var orphaned int64
	err := s.db.Model(&models.OutboxMessage{}).
		Joins("LEFT JOIN workflow_node_executions ON workflow_node_executions.id = outbox_messages.node_execution_id").
		Where("workflow_node_executions.id IS NULL").
		Count(&orphaned).Error
	if err != nil {
		return fmt.Errorf("failed to count orphaned messages: %w", err)
	}

	if orphaned == 0 {
		log.Println("✅ No orphaned outbox messages found")
		return nil
	}

	log.Printf("⚠️  Found %d orphaned outbox messages, marking as dead_letter", orphaned)
	err = s.db.Model(&models.OutboxMessage{}).
		Joins("LEFT JOIN workflow_node_executions ON workflow_node_executions.id = outbox_messages.node_execution_id").
		Where("workflow_node_executions.id IS NULL AND outbox_messages.status NOT IN ?", []string{"dead_letter", "completed"}).
		Updates(map[string]interface{}{
			"status":     "dead_letter",
			"last_error": "node execution not found (orphaned message)",
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update orphaned messages: %w", err)
	}
	log.Printf("✅ Marked %d orphaned messages as dead_letter", orphaned)
	return nil
}

// RunAllCleanups runs every cleanup routine, logging but not failing on
// individual errors so one bad routine never blocks startup.
func (s *CleanupService) RunAllCleanups(ctx context.Context) error {
	log.Println("🧹 Starting all cleanup routines...")
	if err := s.FixStuckExecutions(ctx); err != nil {
		log.Printf("⚠️  Error in FixStuckExecutions: %v", err)
	}
	if err := s.FixOrphanedOutboxMessages(ctx); err != nil {
		log.Printf("⚠️  Error in FixOrphanedOutboxMessages: %v", err)
	}
	log.Println("🧹 All cleanup routines completed")
	return nil
}

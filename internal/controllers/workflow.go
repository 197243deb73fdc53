package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patali/yantra/internal/middleware"
	"github.com/patali/yantra/internal/services"
)

type WorkflowController struct {
	workflowService *services.WorkflowService
}

func NewWorkflowController(workflowService *services.WorkflowService) *WorkflowController {
	return &WorkflowController{
		workflowService: workflowService,
	}
}

func (ctrl *WorkflowController) RegisterRoutes(rg *gin.RouterGroup, authService *services.AuthService) {
	workflows := rg.Group("/workflows")
	workflows.Use(middleware.AuthMiddleware(authService))
	{
		workflows.GET("", ctrl.GetAllWorkflows)
		workflows.GET("/", ctrl.GetAllWorkflows)
		workflows.POST("", ctrl.CreateWorkflow)
		workflows.POST("/", ctrl.CreateWorkflow)
		workflows.GET("/:id", ctrl.GetWorkflowById)
		workflows.PUT("/:id", ctrl.UpdateWorkflow)
		workflows.DELETE("/:id", ctrl.DeleteWorkflow)
		workflows.POST("/:id/execute", ctrl.ExecuteWorkflow)
		workflows.PUT("/:id/schedule", ctrl.UpdateSchedule)
		workflows.GET("/:id/versions", ctrl.GetVersionHistory)
		workflows.POST("/:id/versions/restore", ctrl.RestoreVersion)
		workflows.GET("/:id/executions", ctrl.GetWorkflowExecutions)
		workflows.GET("/:id/executions/:executionId", ctrl.GetWorkflowExecutionById)
		workflows.GET("/:id/executions/:executionId/stream", ctrl.StreamWorkflowExecution)
		workflows.POST("/:id/executions/:executionId/cancel", ctrl.CancelWorkflowExecution)
	}
}

// GetAllWorkflows returns all workflows for the current account.
// GET /api/workflows
func (ctrl *WorkflowController) GetAllWorkflows(c *gin.Context) {
	accountID, exists := middleware.GetAccountID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	workflows, err := ctrl.workflowService.GetAllWorkflows(accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, workflows)
}

// GetWorkflowById returns a workflow by ID.
// GET /api/workflows/:id
func (ctrl *WorkflowController) GetWorkflowById(c *gin.Context) {
	id := c.Param("id")
	accountID, _ := middleware.GetAccountID(c)

	workflow, err := ctrl.workflowService.GetWorkflowByIdAndAccount(id, accountID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Workflow not found"})
		return
	}

	c.JSON(http.StatusOK, workflow)
}

// CreateWorkflow creates a new workflow.
// POST /api/workflows
func (ctrl *WorkflowController) CreateWorkflow(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	accountID, _ := middleware.GetAccountID(c)

	var req services.CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	workflow, err := ctrl.workflowService.CreateWorkflow(c.Request.Context(), req, userID, accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, workflow)
}

// UpdateWorkflow updates a workflow's definition, creating a new version.
// PUT /api/workflows/:id
func (ctrl *WorkflowController) UpdateWorkflow(c *gin.Context) {
	id := c.Param("id")
	accountID, _ := middleware.GetAccountID(c)

	var req services.UpdateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	workflow, err := ctrl.workflowService.UpdateWorkflowByAccount(id, accountID, req)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Workflow not found"})
		return
	}

	c.JSON(http.StatusOK, workflow)
}

// DeleteWorkflow deletes a workflow.
// DELETE /api/workflows/:id
func (ctrl *WorkflowController) DeleteWorkflow(c *gin.Context) {
	id := c.Param("id")
	accountID, _ := middleware.GetAccountID(c)

	if err := ctrl.workflowService.DeleteWorkflowByAccount(c.Request.Context(), id, accountID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Workflow not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Workflow deleted successfully"})
}

// ExecuteWorkflow queues a manual run of a workflow.
// POST /api/workflows/:id/execute
func (ctrl *WorkflowController) ExecuteWorkflow(c *gin.Context) {
	id := c.Param("id")

	var req services.ExecuteWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobID, executionID, err := ctrl.workflowService.ExecuteWorkflow(c.Request.Context(), id, req.Input)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id":       jobID,
		"execution_id": executionID,
		"message":      "Workflow execution queued",
	})
}

// UpdateSchedule sets, updates or clears a workflow's cron schedule.
// PUT /api/workflows/:id/schedule
func (ctrl *WorkflowController) UpdateSchedule(c *gin.Context) {
	id := c.Param("id")

	var req services.UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := ctrl.workflowService.UpdateSchedule(c.Request.Context(), id, req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Schedule updated successfully"})
}

// GetVersionHistory returns version history for a workflow.
// GET /api/workflows/:id/versions
func (ctrl *WorkflowController) GetVersionHistory(c *gin.Context) {
	accountID, exists := middleware.GetAccountID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	id := c.Param("id")

	if _, err := ctrl.workflowService.GetWorkflowByIdAndAccount(id, accountID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Workflow not found or access denied"})
		return
	}

	versions, err := ctrl.workflowService.GetVersionHistory(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, versions)
}

// RestoreVersion rolls a workflow's definition back to a prior version.
// POST /api/workflows/:id/versions/restore
func (ctrl *WorkflowController) RestoreVersion(c *gin.Context) {
	accountID, exists := middleware.GetAccountID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	id := c.Param("id")

	if _, err := ctrl.workflowService.GetWorkflowByIdAndAccount(id, accountID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Workflow not found or access denied"})
		return
	}

	var req struct {
		Version int `json:"version" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := ctrl.workflowService.RestoreWorkflowVersion(id, req.Version); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Version restored successfully"})
}

// GetWorkflowExecutions returns all execution runs for a workflow.
// GET /api/workflows/:id/executions
func (ctrl *WorkflowController) GetWorkflowExecutions(c *gin.Context) {
	accountID, exists := middleware.GetAccountID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	id := c.Param("id")

	if _, err := ctrl.workflowService.GetWorkflowByIdAndAccount(id, accountID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Workflow not found or access denied"})
		return
	}

	executions, err := ctrl.workflowService.GetWorkflowExecutions(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, executions)
}

// GetWorkflowExecutionById returns a single execution with its node trail,
// plus recovery hints the admin UI uses to offer per-node retries.
// GET /api/workflows/:id/executions/:executionId
func (ctrl *WorkflowController) GetWorkflowExecutionById(c *gin.Context) {
	accountID, exists := middleware.GetAccountID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	workflowId := c.Param("id")
	executionId := c.Param("executionId")
	includeRecovery := c.Query("includeRecovery") == "true"

	if _, err := ctrl.workflowService.GetWorkflowByIdAndAccount(workflowId, accountID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Workflow not found or access denied"})
		return
	}

	execution, err := ctrl.workflowService.GetWorkflowExecutionById(executionId)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Execution not found"})
		return
	}

	if execution.WorkflowID != workflowId {
		c.JSON(http.StatusNotFound, gin.H{"error": "Execution not found or access denied"})
		return
	}

	if !includeRecovery {
		c.JSON(http.StatusOK, execution)
		return
	}

	response := gin.H{
		"execution": execution,
		"recoveryOptions": gin.H{
			"canRestartWorkflow": execution.Status == "error" || execution.Status == "partially_failed",
			"canRetryNodes":      getRetryableNodes(execution.NodeExecutions),
			"deadLetterMessages": []gin.H{},
		},
	}

	c.JSON(http.StatusOK, response)
}

// StreamWorkflowExecution streams execution updates via Server-Sent Events.
// GET /api/workflows/:id/executions/:executionId/stream?token=<jwt>
// The auth middleware accepts the token as a query param since EventSource
// can't set custom headers.
func (ctrl *WorkflowController) StreamWorkflowExecution(c *gin.Context) {
	executionID := c.Param("executionId")
	workflowID := c.Param("id")

	accountID, exists := middleware.GetAccountID(c)
	if !exists {
		c.SSEvent("error", gin.H{"error": "Unauthorized"})
		c.Writer.Flush()
		return
	}

	workflow, err := ctrl.workflowService.GetWorkflowByIdAndAccount(workflowID, accountID)
	if err != nil {
		c.SSEvent("error", gin.H{"error": "Workflow not found or access denied"})
		c.Writer.Flush()
		return
	}

	execution, err := ctrl.workflowService.GetWorkflowExecutionById(executionID)
	if err != nil || execution.WorkflowID != workflow.ID {
		c.SSEvent("error", gin.H{"error": "Execution not found or access denied"})
		c.Writer.Flush()
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	var lastExecution *services.ExecutionResponse
	var lastNodeCount int

	c.SSEvent("connected", gin.H{"message": "Connected to execution stream"})
	c.Writer.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			execution, err := ctrl.workflowService.GetWorkflowExecutionById(executionID)
			if err != nil {
				c.SSEvent("error", gin.H{"error": "Execution not found"})
				c.Writer.Flush()
				return
			}

			hasChanged := false
			if lastExecution == nil {
				hasChanged = true
			} else {
				if lastExecution.Status != execution.Status {
					hasChanged = true
				}
				if len(execution.NodeExecutions) != lastNodeCount {
					hasChanged = true
				}
				if len(execution.NodeExecutions) > 0 && len(lastExecution.NodeExecutions) > 0 {
					latestLastNode := lastExecution.NodeExecutions[0]
					for _, newNode := range execution.NodeExecutions {
						if newNode.ID == latestLastNode.ID {
							if newNode.Status != latestLastNode.Status {
								hasChanged = true
								break
							}
						} else {
							hasChanged = true
							break
						}
					}
				}
			}

			if hasChanged {
				c.SSEvent("update", execution)
				c.Writer.Flush()

				lastExecution = execution
				lastNodeCount = len(execution.NodeExecutions)

				if execution.Status == "success" || execution.Status == "error" || execution.Status == "partially_failed" || execution.Status == "cancelled" {
					c.SSEvent("complete", gin.H{"status": execution.Status})
					c.Writer.Flush()
					time.Sleep(2 * time.Second)
					return
				}
			}

			c.SSEvent("heartbeat", gin.H{"timestamp": time.Now().Unix()})
			c.Writer.Flush()
		}
	}
}

// CancelWorkflowExecution marks a running execution as cancelled.
// POST /api/workflows/:id/executions/:executionId/cancel
func (ctrl *WorkflowController) CancelWorkflowExecution(c *gin.Context) {
	accountID, exists := middleware.GetAccountID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	workflowID := c.Param("id")
	executionID := c.Param("executionId")

	if _, err := ctrl.workflowService.GetWorkflowByIdAndAccount(workflowID, accountID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Workflow not found or access denied"})
		return
	}

	execution, err := ctrl.workflowService.GetWorkflowExecutionById(executionID)
	if err != nil || execution.WorkflowID != workflowID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Execution not found or access denied"})
		return
	}

	if err := ctrl.workflowService.CancelWorkflowExecution(executionID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Workflow execution cancelled"})
}

// getRetryableNodes returns IDs of failed email, http and slack nodes, the types that allow a per-node retry.
func getRetryableNodes(nodeExecutions []services.NodeExecutionResponse) []string {
	var retryableNodes []string

	for _, nodeExec := range nodeExecutions {
		if nodeExec.Status == "error" {
			switch nodeExec.NodeType {
			case "email", "http", "slack":
				retryableNodes = append(retryableNodes, nodeExec.NodeID)
			}
		}
	}

	return retryableNodes
}

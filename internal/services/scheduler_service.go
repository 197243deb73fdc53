package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/patali/yantra/internal/models"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// SchedulerService manages cron-based workflow scheduling: it loads active
// scheduled workflows at startup, registers them against robfig/cron,
// periodically resyncs against the workflows table, and polls for due
// SleepSchedule wake-up rows (no executor suspends a run to create them).
type SchedulerService struct {
	db           *gorm.DB
	queueService *QueueService
	cron         *cron.Cron
	schedules    map[string]cron.EntryID // workflowID -> cron entryID
	cronExprs    map[string]string       // workflowID -> last-registered cron expr, for resync diffing
	mu           sync.RWMutex
	running      bool
}

// TimezoneSchedule wraps a cron.Schedule to fire in a specific timezone.
type TimezoneSchedule struct {
	schedule cron.Schedule
	location *time.Location
}

func (ts *TimezoneSchedule) Next(t time.Time) time.Time {
	return ts.schedule.Next(t.In(ts.location))
}

func NewSchedulerService(db *gorm.DB, queueService *QueueService) *SchedulerService {
	return &SchedulerService{
		db:           db,
		queueService: queueService,
		cron:         cron.New(cron.WithSeconds()),
		schedules:    make(map[string]cron.EntryID),
		cronExprs:    make(map[string]string),
	}
}

// Start loads active scheduled workflows, starts the cron engine, and
// launches the resync and sleep-wakeup background loops.
func (s *SchedulerService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	if err := s.loadSchedules(); err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}

	s.cron.Start()
	s.running = true

	go s.syncSchedulesLoop(ctx)
	go s.pollSleepSchedules(ctx)

	return nil
}

// Shutdown cancels all entries; call on SIGINT/SIGTERM.
func (s *SchedulerService) Shutdown(ctx context.Context) error {
	return s.Stop(ctx)
}

func (s *SchedulerService) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	cronCtx := s.cron.Stop()
	<-cronCtx.Done()

	s.running = false
	return nil
}

func (s *SchedulerService) loadSchedules() error {
	var workflows []models.Workflow
	err := s.db.Where("schedule IS NOT NULL AND schedule <> '' AND is_active = ?", true).Find(&workflows).Error
	if err != nil {
		return err
	}

	for _, workflow := range workflows {
		if err := s.addWorkflowSchedule(workflow.ID, *workflow.Schedule, workflow.Timezone); err != nil {
			log.Printf("⚠️  Failed to schedule workflow %s (%s): %v", workflow.ID, workflow.Name, err)
		}
	}

	return nil
}

func (s *SchedulerService) addWorkflowSchedule(workflowID, cronExpr, timezone string) error {
	s.removeWorkflowSchedule(workflowID)

	if !s.hasSixFields(cronExpr) {
		cronExpr = "0 " + cronExpr
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}

	job := func() {
		jobCtx := context.Background()

		var workflow models.Workflow
		if err := s.db.First(&workflow, "id = ?", workflowID).Error; err != nil {
			log.Printf("❌ Failed to find workflow %s: %v", workflowID, err)
			return
		}

		var latestVersion models.WorkflowVersion
		if err := s.db.Where("workflow_id = ?", workflowID).
			Order("version DESC").
			First(&latestVersion).Error; err != nil {
			log.Printf("❌ Failed to find version for workflow %s: %v", workflowID, err)
			return
		}

		execution := models.WorkflowExecution{
			WorkflowID:  workflowID,
			Version:     latestVersion.Version,
			Status:      "queued",
			TriggerType: string(models.TriggerTypeScheduled),
		}
		if err := s.db.Create(&execution).Error; err != nil {
			log.Printf("❌ Failed to create execution record for workflow %s: %v", workflowID, err)
			return
		}

		_, err := s.queueService.QueueWorkflowExecution(jobCtx, workflowID, execution.ID, map[string]interface{}{}, string(models.TriggerTypeScheduled))
		if err != nil {
			log.Printf("❌ Failed to queue scheduled workflow %s: %v", workflowID, err)
			s.db.Model(&execution).Updates(map[string]interface{}{
				"status": "error",
				"error":  "failed to queue for execution",
			})
		}
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	tzSchedule := &TimezoneSchedule{schedule: schedule, location: loc}
	entryID := s.cron.Schedule(tzSchedule, cron.FuncJob(job))

	s.schedules[workflowID] = entryID
	s.cronExprs[workflowID] = cronExpr
	return nil
}

func (s *SchedulerService) removeWorkflowSchedule(workflowID string) {
	if entryID, exists := s.schedules[workflowID]; exists {
		s.cron.Remove(entryID)
		delete(s.schedules, workflowID)
		delete(s.cronExprs, workflowID)
	}
}

// Schedule registers workflowID against cron, cancelling any existing
// entry first. Validates the cron expression by computing its next fire
// time and rejecting expressions whose next fire is already in the past
// relative to the process clock (a malformed expression parses but never
// advances, which NewParser.Parse alone won't catch).
func (s *SchedulerService) Schedule(workflowID, cronExpr, timezone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return fmt.Errorf("scheduler not running")
	}

	sixField := cronExpr
	if !s.hasSixFields(sixField) {
		sixField = "0 " + sixField
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	parsed, err := parser.Parse(sixField)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	if parsed.Next(time.Now()).Before(time.Now()) {
		return fmt.Errorf("cron expression %q has no future fire time", cronExpr)
	}

	return s.addWorkflowSchedule(workflowID, cronExpr, timezone)
}

// AddSchedule is kept as an alias for Schedule for callers written against
// the teacher's original naming.
func (s *SchedulerService) AddSchedule(workflowID, cronExpr, timezone string) error {
	return s.Schedule(workflowID, cronExpr, timezone)
}

// Unschedule cancels and removes workflowID's cron entry, if any.
func (s *SchedulerService) Unschedule(workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeWorkflowSchedule(workflowID)
	return nil
}

// RemoveSchedule is an alias for Unschedule.
func (s *SchedulerService) RemoveSchedule(workflowID string) error {
	return s.Unschedule(workflowID)
}

// Update re-registers workflowID's schedule; an empty cronExpr unschedules.
func (s *SchedulerService) Update(workflowID, cronExpr, timezone string) error {
	if cronExpr == "" {
		return s.Unschedule(workflowID)
	}
	return s.Schedule(workflowID, cronExpr, timezone)
}

// UpdateSchedule is an alias for Update.
func (s *SchedulerService) UpdateSchedule(workflowID, cronExpr, timezone string) error {
	return s.Update(workflowID, cronExpr, timezone)
}

// ScheduleEntry is one row of List()'s output.
type ScheduleEntry struct {
	WorkflowID   string
	Cron         string
	NextFireTime time.Time
}

// List enumerates every currently scheduled workflow.
func (s *SchedulerService) List() []ScheduleEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]ScheduleEntry, 0, len(s.schedules))
	for workflowID, entryID := range s.schedules {
		next := time.Time{}
		for _, e := range s.cron.Entries() {
			if e.ID == entryID {
				next = e.Next
				break
			}
		}
		entries = append(entries, ScheduleEntry{
			WorkflowID:   workflowID,
			Cron:         s.cronExprs[workflowID],
			NextFireTime: next,
		})
	}
	return entries
}

// GetScheduledWorkflows returns just the workflow IDs, kept for callers
// written against the teacher's original naming.
func (s *SchedulerService) GetScheduledWorkflows() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workflowIDs := make([]string, 0, len(s.schedules))
	for workflowID := range s.schedules {
		workflowIDs = append(workflowIDs, workflowID)
	}
	return workflowIDs
}

func (s *SchedulerService) syncSchedulesLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.syncSchedules(); err != nil {
				log.Printf("❌ Error syncing schedules: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *SchedulerService) syncSchedules() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var workflows []models.Workflow
	err := s.db.Where("schedule IS NOT NULL AND schedule <> '' AND is_active = ?", true).Find(&workflows).Error
	if err != nil {
		return err
	}

	dbWorkflows := make(map[string]models.Workflow, len(workflows))
	for _, w := range workflows {
		dbWorkflows[w.ID] = w
	}

	for workflowID := range s.schedules {
		if _, exists := dbWorkflows[workflowID]; !exists {
			s.removeWorkflowSchedule(workflowID)
		}
	}

	for workflowID, workflow := range dbWorkflows {
		cronExpr := ""
		if workflow.Schedule != nil {
			cronExpr = *workflow.Schedule
		}
		if _, exists := s.schedules[workflowID]; !exists || s.cronExprs[workflowID] != cronExpr {
			if err := s.addWorkflowSchedule(workflowID, cronExpr, workflow.Timezone); err != nil {
				log.Printf("❌ Failed to sync schedule for workflow %s: %v", workflowID, err)
			}
		}
	}

	return nil
}

func (s *SchedulerService) hasSixFields(cronExpr string) bool {
	fields := 0
	inField := false
	for _, char := range cronExpr {
		if char == ' ' {
			if inField {
				fields++
				inField = false
			}
		} else {
			inField = true
		}
	}
	if inField {
		fields++
	}
	return fields >= 6
}

// ScheduleSleepWakeUp records a one-time wake-up for a run. Nothing in this
// repository calls it; DelayExecutor sleeps inline instead.
func (s *SchedulerService) ScheduleSleepWakeUp(executionID, workflowID, nodeID string, wakeUpAt time.Time) error {
	sleepSchedule := models.SleepSchedule{
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		NodeID:      nodeID,
		WakeUpAt:    wakeUpAt,
	}
	if err := s.db.Create(&sleepSchedule).Error; err != nil {
		return fmt.Errorf("failed to create sleep schedule: %w", err)
	}
	return nil
}

func (s *SchedulerService) pollSleepSchedules(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.processSleepSchedules(ctx); err != nil {
				log.Printf("❌ Error processing sleep schedules: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *SchedulerService) processSleepSchedules(ctx context.Context) error {
	now := time.Now().UTC()

	var schedules []models.SleepSchedule
	if err := s.db.Where("wake_up_at <= ?", now).Find(&schedules).Error; err != nil {
		return fmt.Errorf("failed to query sleep schedules: %w", err)
	}
	if len(schedules) == 0 {
		return nil
	}

	for _, schedule := range schedules {
		if err := s.resumeWorkflowFromSleep(ctx, schedule.ExecutionID, schedule.WorkflowID); err != nil {
			log.Printf("❌ Failed to resume execution %s: %v", schedule.ExecutionID, err)
			continue
		}
		if err := s.db.Delete(&schedule).Error; err != nil {
			log.Printf("⚠️  Failed to delete sleep schedule %s: %v", schedule.ID, err)
		}
	}

	return nil
}

func (s *SchedulerService) resumeWorkflowFromSleep(ctx context.Context, executionID, workflowID string) error {
	var execution models.WorkflowExecution
	if err := s.db.First(&execution, "id = ?", executionID).Error; err != nil {
		return fmt.Errorf("failed to find execution: %w", err)
	}
	if execution.Status != "sleeping" {
		return nil
	}

	var input map[string]interface{}
	if execution.Input != nil && *execution.Input != "" {
		if err := json.Unmarshal([]byte(*execution.Input), &input); err != nil {
			input = map[string]interface{}{}
		}
	} else {
		input = map[string]interface{}{}
	}

	if _, err := s.queueService.QueueWorkflowExecution(ctx, workflowID, executionID, input, string(models.TriggerTypeResumeSleep)); err != nil {
		return fmt.Errorf("failed to queue execution: %w", err)
	}

	if err := s.db.Model(&execution).Update("status", "running").Error; err != nil {
		log.Printf("⚠️  Failed to mark resumed execution %s running: %v", executionID, err)
	}

	return nil
}

// DeriveCronFromScheduler locates the single Scheduler-type node among
// nodes and emits a 5-field cron expression from its values, per §4.5's
// derivation rules. Returns an error if there is not exactly one
// Scheduler node, or its values describe an invalid combination.
func DeriveCronFromScheduler(nodes []map[string]interface{}) (string, error) {
	var schedulerValues map[string]interface{}
	count := 0
	for _, n := range nodes {
		nodeType, _ := n["type"].(string)
		if nodeType == "scheduler" || nodeType == "Scheduler" {
			count++
			if v, ok := n["data"].(map[string]interface{}); ok {
				schedulerValues = v
			} else if v, ok := n["values"].(map[string]interface{}); ok {
				schedulerValues = v
			}
		}
	}
	if count == 0 {
		return "", fmt.Errorf("no Scheduler node found in workflow")
	}
	if count > 1 {
		return "", fmt.Errorf("exactly one Scheduler node is required, found %d", count)
	}
	if schedulerValues == nil {
		return "", fmt.Errorf("Scheduler node has no configuration values")
	}

	mode, _ := schedulerValues["mode"].(string)
	if mode == "" {
		mode, _ = schedulerValues["interval"].(string)
	}

	minute := intFromValue(schedulerValues["minute"], 0)
	hour := intFromValue(schedulerValues["hour"], 0)
	dom := intFromValue(schedulerValues["dom"], 1)
	count2 := intFromValue(schedulerValues["count"], 1)
	if count2 < 1 {
		return "", fmt.Errorf("count must be >= 1")
	}

	switch mode {
	case "minutes":
		return fmt.Sprintf("*/%d * * * *", count2), nil
	case "hours":
		return fmt.Sprintf("%d */%d * * *", minute, count2), nil
	case "days":
		return fmt.Sprintf("%d %d */%d * *", minute, hour, count2), nil
	case "weeks":
		if count2 != 1 {
			return "", fmt.Errorf("weeks mode only supports an interval of 1 (cron has no every-N-weeks field)")
		}
		dowList, ok := schedulerValues["dow"].([]interface{})
		if !ok || len(dowList) == 0 {
			return "", fmt.Errorf("weeks mode requires a non-empty dow list")
		}
		days := make([]string, 0, len(dowList))
		for _, d := range dowList {
			days = append(days, fmt.Sprintf("%v", d))
		}
		return fmt.Sprintf("%d %d * * %s", minute, hour, joinComma(days)), nil
	case "months":
		return fmt.Sprintf("%d %d %d */%d *", minute, hour, dom, count2), nil
	case "daily":
		return fmt.Sprintf("%d %d * * *", minute, hour), nil
	case "weekly":
		dowList, ok := schedulerValues["dow"].([]interface{})
		if !ok || len(dowList) == 0 {
			return "", fmt.Errorf("weekly mode requires a non-empty dow list")
		}
		days := make([]string, 0, len(dowList))
		for _, d := range dowList {
			days = append(days, fmt.Sprintf("%v", d))
		}
		return fmt.Sprintf("%d %d * * %s", minute, hour, joinComma(days)), nil
	case "monthly":
		return fmt.Sprintf("%d %d %d * *", minute, hour, dom), nil
	case "cron":
		raw, _ := schedulerValues["cron"].(string)
		if raw == "" {
			return "", fmt.Errorf("cron mode requires a cron expression in values.cron")
		}
		return raw, nil
	default:
		return "", fmt.Errorf("unrecognised scheduler mode %q", mode)
	}
}

func intFromValue(v interface{}, def int) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return def
	}
}

func joinComma(items []string) string {
	out := ""
	for i, it := range items {
		if i > 0 {
			out += ","
		}
		out += it
	}
	return out
}

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/drewmudry/cadence-api/internal/clock"
	"github.com/drewmudry/cadence-api/internal/metrics"
	"github.com/drewmudry/cadence-api/models"
	"github.com/drewmudry/cadence-api/tasks"
)

// ErrEmpty is returned by Queue.Pop when nothing arrived before the timeout.
var ErrEmpty = errors.New("queue empty")

// Queue moves task ids between the API and the worker.
type Queue interface {
	Push(ctx context.Context, queue, id string) error
	Pop(ctx context.Context, timeout time.Duration, queues ...string) (queue, id string, err error)
}

// RedisQueue keeps one redis list per queue name.
type RedisQueue struct {
	RDB *redis.Client
}

func (q RedisQueue) Push(ctx context.Context, queue, id string) error {
	return q.RDB.LPush(ctx, queue, id).Err()
}

func (q RedisQueue) Pop(ctx context.Context, timeout time.Duration, queues ...string) (string, string, error) {
	// BRPop blocks until a task is available on any of the listed queues.
	result, err := q.RDB.BRPop(ctx, timeout, queues...).Result()
	if errors.Is(err, redis.Nil) {
		return "", "", ErrEmpty
	}
	if err != nil {
		return "", "", err
	}
	// result[0] is the queue name, result[1] is the task id
	return result[0], result[1], nil
}

// TaskHandler processes a task payload. The returned value is stored as the
// task result.
type TaskHandler func(ctx context.Context, payload []byte) (any, error)

// Processor holds dependencies and registered task handlers.
type Processor struct {
	DB       *gorm.DB
	Queue    Queue
	Clock    clock.Clock
	handlers map[string]TaskHandler
}

// NewProcessor creates a new worker processor.
func NewProcessor(db *gorm.DB, q Queue) *Processor {
	return &Processor{
		DB:       db,
		Queue:    q,
		Clock:    clock.Real{},
		handlers: make(map[string]TaskHandler),
	}
}

// Register maps a queue name (task type) to a handler function.
func (p *Processor) Register(queueName string, handler TaskHandler) {
	p.handlers[queueName] = handler
	logrus.WithField("queue", queueName).Info("[WORKER] registered handler")
}

// Queues returns the names of every registered queue.
func (p *Processor) Queues() []string {
	out := make([]string, 0, len(p.handlers))
	for _, q := range tasks.All {
		if _, ok := p.handlers[q]; ok {
			out = append(out, q)
		}
	}
	return out
}

func kindOf(queueName string) string {
	return strings.TrimPrefix(queueName, "q_")
}

// Enqueue persists a task row and pushes its id onto queueName.
func (p *Processor) Enqueue(ctx context.Context, queueName string, payload interface{}) (models.BackgroundTask, error) {
	body, err := tasks.Marshal(payload)
	if err != nil {
		return models.BackgroundTask{}, err
	}

	task := models.BackgroundTask{
		ID:      uuid.NewString(),
		Kind:    kindOf(queueName),
		Queue:   queueName,
		Payload: datatypes.JSON(body),
		Status:  models.TaskStatusQueued,
	}
	if err := p.DB.WithContext(ctx).Create(&task).Error; err != nil {
		return task, fmt.Errorf("create task: %w", err)
	}

	if err := p.Queue.Push(ctx, queueName, task.ID); err != nil {
		p.finish(context.WithoutCancel(ctx), &task, nil, fmt.Errorf("enqueue: %w", err))
		return task, fmt.Errorf("push task %s: %w", task.ID, err)
	}
	metrics.BackgroundTasks.WithLabelValues(task.Kind, string(models.TaskStatusQueued)).Inc()
	return task, nil
}

// Listen consumes the given queues until ctx is cancelled.
func (p *Processor) Listen(ctx context.Context, queueNames ...string) {
	logrus.WithField("queues", queueNames).Info("[WORKER] listening")

	for {
		if ctx.Err() != nil {
			logrus.Info("[WORKER] stopping")
			return
		}

		queueName, id, err := p.Queue.Pop(ctx, 5*time.Second, queueNames...)
		if errors.Is(err, ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logrus.WithError(err).Error("[WORKER] error popping from queue")
			time.Sleep(time.Second)
			continue
		}

		p.Process(ctx, queueName, id)
	}
}

// Process runs one task by id. A task that is no longer queued was already
// picked up and is skipped.
func (p *Processor) Process(ctx context.Context, queueName, id string) {
	entry := logrus.WithFields(logrus.Fields{"queue": queueName, "task_id": id})

	handler, ok := p.handlers[queueName]
	if !ok {
		entry.Error("[WORKER] no handler registered for queue")
		return
	}

	var task models.BackgroundTask
	if err := p.DB.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		entry.WithError(err).Error("[WORKER] task not found")
		return
	}

	started := p.Clock.Now()
	claim := p.DB.WithContext(ctx).Model(&models.BackgroundTask{}).
		Where("id = ? AND status = ?", id, models.TaskStatusQueued).
		Updates(map[string]any{"status": models.TaskStatusRunning, "started_at": started})
	if claim.Error != nil {
		entry.WithError(claim.Error).Error("[WORKER] failed to claim task")
		return
	}
	if claim.RowsAffected == 0 {
		entry.WithField("status", task.Status).Warn("[WORKER] task already claimed, skipping")
		return
	}
	task.Status = models.TaskStatusRunning
	task.StartedAt = &started
	metrics.BackgroundTasks.WithLabelValues(task.Kind, string(models.TaskStatusRunning)).Inc()

	entry.Info("[WORKER] running task")
	result, err := handler(ctx, task.Payload)
	p.finish(context.WithoutCancel(ctx), &task, result, err)
}

// finish stores the terminal status with either the result or the error.
func (p *Processor) finish(ctx context.Context, task *models.BackgroundTask, result any, runErr error) {
	now := p.Clock.Now()
	updates := map[string]any{"finished_at": now}
	entry := logrus.WithFields(logrus.Fields{"task_id": task.ID, "kind": task.Kind})

	if runErr != nil {
		msg := runErr.Error()
		task.Status, task.Error = models.TaskStatusFailed, &msg
		updates["status"], updates["error"] = models.TaskStatusFailed, msg
		entry.WithError(runErr).Error("[WORKER] task failed")
	} else {
		task.Status = models.TaskStatusSucceeded
		updates["status"] = models.TaskStatusSucceeded
		if result != nil {
			b, err := json.Marshal(result)
			if err != nil {
				entry.WithError(err).Warn("[WORKER] result not serializable, dropping")
			} else {
				task.Result = datatypes.JSON(b)
				updates["result"] = task.Result
			}
		}
		entry.Info("[WORKER] task succeeded")
	}
	task.FinishedAt = &now

	if err := p.DB.WithContext(ctx).Model(&models.BackgroundTask{}).Where("id = ?", task.ID).Updates(updates).Error; err != nil {
		entry.WithError(err).Error("[WORKER] failed to store task outcome")
	}
	metrics.BackgroundTasks.WithLabelValues(task.Kind, string(task.Status)).Inc()
}

package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/config"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/events"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/llm"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/models"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/services"
)

// Error codes carried by error events.
const (
	errCodeTargeting  = "TARGETING_ERROR"
	errCodeNoModel    = "NO_MODEL_AVAILABLE"
	errCodeProcessing = "PROCESSING_ERROR"
)

// genericQuestion is used when the output hedges without forming an
// extractable question.
const genericQuestion = "Model požaduje upřesnění zadání. Doplňte prosím podrobnosti k tomuto pokynu."

// Executor runs one queued prompt end to end: target resolution, chunk
// planning, model calls, output combination, clarification detection and
// session completion. It implements queue.Executor.
type Executor struct {
	sessions     *services.SessionService
	files        *services.FileService
	prompts      *services.PromptService
	conversation *services.ConversationService
	results      *services.ResultService
	factory      *llm.Factory
	publisher    *events.Publisher
	chunking     config.ChunkingConfig
}

// NewExecutor wires the executor.
func NewExecutor(
	sessions *services.SessionService,
	files *services.FileService,
	prompts *services.PromptService,
	conversation *services.ConversationService,
	results *services.ResultService,
	factory *llm.Factory,
	publisher *events.Publisher,
	chunking config.ChunkingConfig,
) *Executor {
	return &Executor{
		sessions:     sessions,
		files:        files,
		prompts:      prompts,
		conversation: conversation,
		results:      results,
		factory:      factory,
		publisher:    publisher,
		chunking:     chunking,
	}
}

// ExecutePrompt processes one claimed prompt. It never returns an error:
// failures are recorded on the prompt and session and published as error
// events.
func (e *Executor) ExecutePrompt(ctx context.Context, job models.Job) {
	log := slog.With("session_id", job.SessionID, "prompt_id", job.PromptID)

	if _, err := e.sessions.Get(ctx, job.SessionID); err != nil {
		log.Warn("Dropping job, session unavailable", "error", err)
		return
	}
	if _, err := e.sessions.UpdateStatus(ctx, job.SessionID, models.SessionProcessing); err != nil {
		log.Warn("Dropping job, session cannot enter processing", "error", err)
		return
	}

	e.progress(ctx, job, events.ProgressPayload{Stage: events.StageStarted})

	prompt, err := e.prompts.Get(ctx, job.PromptID)
	if err != nil {
		log.Error("Claimed prompt disappeared", "error", err)
		return
	}

	files, err := e.files.List(ctx, job.SessionID)
	if err != nil {
		e.failPrompt(ctx, job, errCodeProcessing, err)
		return
	}
	targets, err := ResolveTargets(prompt, files)
	if err != nil {
		e.failPrompt(ctx, job, errCodeTargeting, err)
		return
	}
	e.progress(ctx, job, events.ProgressPayload{Stage: events.StageContext})

	completed, err := e.prompts.CompletedInOrder(ctx, job.SessionID)
	if err != nil {
		e.failPrompt(ctx, job, errCodeProcessing, err)
		return
	}
	previous := carriedResults(completed, prompt.Priority)

	gateway, err := e.factory.NewGateway(ctx)
	if err != nil {
		code := errCodeProcessing
		if llm.IsNoModel(err) {
			code = errCodeNoModel
		}
		e.failPrompt(ctx, job, code, err)
		return
	}

	plan := BuildPlan(targets, prompt.Content, gateway.Model().ContextWindow, e.chunking)
	log.Info("Prompt execution planned",
		"model", gateway.Model().Name, "calls", plan.Calls(), "single", plan.Single)

	final, err := e.executePlan(ctx, job, gateway, prompt, plan, previous)
	if err != nil {
		e.failPrompt(ctx, job, errCodeProcessing, err)
		return
	}
	e.progress(ctx, job, events.ProgressPayload{Stage: events.StageCombined})

	// Write-back gate: results of work that outlived its session are
	// discarded, not persisted.
	wctx := context.WithoutCancel(ctx)
	current, err := e.sessions.Peek(wctx, job.SessionID)
	if err != nil || !current.Status.CanTransitionTo(models.SessionCompleted) || current.ExpiredAt(time.Now()) {
		log.Info("Discarding output, session no longer accepts results")
		return
	}

	if err := e.prompts.Complete(wctx, job.SessionID, job.PromptID, final); err != nil {
		log.Error("Failed to store prompt result", "error", err)
		return
	}
	if err := e.publisher.ModelResult(wctx, job.SessionID, events.ModelResultPayload{
		PromptID: job.PromptID,
		Model:    gateway.Model().Name,
		Content:  final,
	}); err != nil {
		log.Warn("Failed to publish model result", "error", err)
	}

	if NeedsClarification(final) {
		e.raiseClarifications(wctx, job, final)
	}

	if err := e.EvaluateCompletion(wctx, job.SessionID); err != nil {
		log.Error("Completion evaluation failed", "error", err)
	}
}

// executePlan runs the planned model calls sequentially and combines their
// outputs. Each call's output is logged to the conversation as it happens;
// those entries stay even when the prompt later fails or is discarded.
func (e *Executor) executePlan(ctx context.Context, job models.Job, gateway *llm.Gateway, prompt *models.Prompt, plan Plan, previous []string) (string, error) {
	if plan.Single {
		e.progress(ctx, job, events.ProgressPayload{Stage: events.StageChunk, Chunk: 1, ChunkCount: 1})
		return e.call(ctx, job, gateway, callInput{
			Instructions: prompt.Content,
			Content:      plan.Combined,
			Previous:     previous,
		})
	}

	outputs := make([]FileOutput, 0, len(plan.Files))
	for _, file := range plan.Files {
		chunkOutputs := make([]string, 0, len(file.Chunks))
		prevTail := ""
		for _, chunk := range file.Chunks {
			e.progress(ctx, job, events.ProgressPayload{
				Stage:      events.StageChunk,
				Filename:   file.Filename,
				Chunk:      chunk.Index,
				ChunkCount: chunk.Count,
			})
			out, err := e.call(ctx, job, gateway, callInput{
				Instructions: prompt.Content,
				Content:      chunk.Content,
				Previous:     previous,
				PriorFiles:   outputs,
				ChunkNote:    chunkNote(file.Filename, chunk.Index, chunk.Count),
				PrevTail:     prevTail,
			})
			if err != nil {
				return "", err
			}
			chunkOutputs = append(chunkOutputs, out)
			prevTail = tail(out, e.chunking.OverlapChars)
		}
		outputs = append(outputs, FileOutput{
			Filename: file.Filename,
			Content:  CombineChunks(chunkOutputs),
		})
	}
	return CombineFiles(outputs), nil
}

// call issues one model call and appends its output to the conversation with
// token usage and timing.
func (e *Executor) call(ctx context.Context, job models.Job, gateway *llm.Gateway, in callInput) (string, error) {
	start := time.Now()
	out, usage, err := gateway.Complete(ctx, systemPrompt, renderCall(in))
	if err != nil {
		return "", err
	}
	if _, err := e.conversation.Append(ctx, &models.ConversationMessage{
		SessionID: job.SessionID,
		Type:      models.MessageGeneral,
		Role:      models.RoleAssistant,
		Content:   out,
		Context:   callContext(job.PromptID, usage, time.Since(start)),
	}); err != nil {
		slog.Warn("Failed to append model output to conversation",
			"session_id", job.SessionID, "prompt_id", job.PromptID, "error", err)
	}
	return out, nil
}

// callContext is the conversation context recorded with each model call.
func callContext(promptID string, usage llm.Usage, elapsed time.Duration) map[string]any {
	return map[string]any{
		"promptId":       promptID,
		"tokensUsed":     usage.TotalTokens,
		"processingTime": elapsed.Milliseconds(),
	}
}

// raiseClarifications appends one CLARIFICATION message per extracted
// question and publishes the clarification event.
func (e *Executor) raiseClarifications(ctx context.Context, job models.Job, output string) {
	log := slog.With("session_id", job.SessionID, "prompt_id", job.PromptID)

	questions := ExtractQuestions(output)
	if len(questions) == 0 {
		questions = []string{genericQuestion}
	}

	messageIDs := make([]string, 0, len(questions))
	for _, question := range questions {
		msg, err := e.conversation.Append(ctx, &models.ConversationMessage{
			SessionID: job.SessionID,
			Type:      models.MessageClarification,
			Role:      models.RoleAssistant,
			Content:   question,
			Context:   map[string]any{"promptId": job.PromptID},
		})
		if err != nil {
			log.Error("Failed to append clarification", "error", err)
			continue
		}
		messageIDs = append(messageIDs, msg.ID)
	}
	if len(messageIDs) == 0 {
		return
	}

	log.Info("Clarification requested", "questions", len(messageIDs))
	if err := e.publisher.Clarification(ctx, job.SessionID, events.ClarificationPayload{
		PromptID:   job.PromptID,
		MessageIDs: messageIDs,
		Questions:  questions,
	}); err != nil {
		log.Warn("Failed to publish clarification", "error", err)
	}
}

// EvaluateCompletion moves a session forward once its prompts stop: it
// assembles the result when all prompts have finished, fails the session
// when any prompt failed, and completes it once no clarification is left
// pending. Also called by the API after clarification responses, so it is
// idempotent — re-evaluating a settled session changes nothing.
func (e *Executor) EvaluateCompletion(ctx context.Context, sessionID string) error {
	log := slog.With("session_id", sessionID)

	prompts, err := e.prompts.List(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(prompts) == 0 {
		return nil
	}

	settled, anyFailed, lastFinished := promptsSettled(prompts)
	if !settled {
		return nil // still work in flight or queued
	}

	if anyFailed {
		if _, err := e.sessions.UpdateStatus(ctx, sessionID, models.SessionFailed); err != nil &&
			!errors.Is(err, services.ErrInvalidTransition) {
			return err
		}
		return nil
	}

	result, err := e.currentResult(ctx, sessionID, prompts, lastFinished)
	if err != nil {
		return err
	}

	pending, err := e.conversation.PendingClarifications(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		log.Info("Completion withheld, clarifications pending", "pending", len(pending))
		return nil
	}

	if _, err := e.sessions.UpdateStatus(ctx, sessionID, models.SessionCompleted); err != nil {
		if errors.Is(err, services.ErrInvalidTransition) {
			return nil // already settled elsewhere
		}
		return err
	}
	log.Info("Session completed", "result_version", result.Version)
	if err := e.publisher.Completed(ctx, sessionID, events.CompletedPayload{
		ResultID: result.ID,
		Version:  result.Version,
	}); err != nil {
		log.Warn("Failed to publish completion", "error", err)
	}
	return nil
}

// promptsSettled reports whether every prompt reached a terminal status,
// whether any of them failed, and when the last one finished.
func promptsSettled(prompts []*models.Prompt) (settled, anyFailed bool, lastFinished time.Time) {
	for _, prompt := range prompts {
		if !prompt.Status.Finished() {
			return false, false, time.Time{}
		}
		if prompt.Status == models.PromptFailed {
			anyFailed = true
		}
		if prompt.CompletedAt != nil && prompt.CompletedAt.After(lastFinished) {
			lastFinished = *prompt.CompletedAt
		}
	}
	return true, anyFailed, lastFinished
}

// currentResult returns the session result covering the latest prompt run,
// assembling a new version only when none exists yet. The freshness check
// keeps repeated evaluations (clarification responses) from stacking up
// identical versions.
func (e *Executor) currentResult(ctx context.Context, sessionID string, prompts []*models.Prompt, lastFinished time.Time) (*models.Result, error) {
	latest, err := e.results.Latest(ctx, sessionID)
	if err == nil && !latest.CreatedAt.Before(lastFinished) {
		return latest, nil
	}
	if err != nil && !errors.Is(err, services.ErrNotFound) {
		return nil, err
	}

	completed := make([]*models.Prompt, 0, len(prompts))
	for _, prompt := range prompts {
		if prompt.Status == models.PromptCompleted {
			completed = append(completed, prompt)
		}
	}
	return e.results.Create(ctx, sessionID, AssembleResult(completed), "markdown",
		models.ResultPendingConfirmation, map[string]any{
			"promptCount": len(completed),
			"assembledAt": time.Now().UTC().Format(time.RFC3339),
		})
}

func (e *Executor) failPrompt(ctx context.Context, job models.Job, code string, cause error) {
	log := slog.With("session_id", job.SessionID, "prompt_id", job.PromptID)
	log.Error("Prompt execution failed", "code", code, "error", cause)

	wctx := context.WithoutCancel(ctx)
	if err := e.prompts.Fail(wctx, job.SessionID, job.PromptID, cause.Error()); err != nil {
		log.Error("Failed to record prompt failure", "error", err)
	}
	if _, err := e.sessions.UpdateStatus(wctx, job.SessionID, models.SessionFailed); err != nil &&
		!errors.Is(err, services.ErrInvalidTransition) {
		log.Error("Failed to fail session", "error", err)
	}
	if err := e.publisher.Error(wctx, job.SessionID, events.ErrorPayload{
		PromptID: job.PromptID,
		Code:     code,
		Message:  cause.Error(),
	}); err != nil {
		log.Warn("Failed to publish error event", "error", err)
	}
}

func (e *Executor) progress(ctx context.Context, job models.Job, payload events.ProgressPayload) {
	payload.PromptID = job.PromptID
	if err := e.publisher.Progress(ctx, job.SessionID, payload); err != nil {
		slog.Debug("Failed to publish progress", "session_id", job.SessionID, "error", err)
	}
}

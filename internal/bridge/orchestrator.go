package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quickcall/quickcall/internal/config"
	"github.com/quickcall/quickcall/internal/ctxlog"
)

// ErrNotFound is returned when a call ID is unknown.
var ErrNotFound = errors.New("bridge: call not found")

// ErrNoWorker is returned when no agent-worker command is configured.
var ErrNoWorker = errors.New("bridge: worker.command is not configured")

// GatewayAPI is the slice of the gateway client the orchestrator needs.
type GatewayAPI interface {
	EnsureRoom(ctx context.Context, name, metadata string) error
	DeleteRoom(ctx context.Context, name string) error
	ListParticipants(ctx context.Context, room string) ([]string, error)
	DialSIP(ctx context.Context, room, number, identity string) error
}

// Config holds the orchestration settings.
type Config struct {
	SettleDelay   time.Duration // worker warm-up before dialing
	DialMode      string        // config.DialModeCLI or config.DialModeAPI
	CLIPath       string
	SIPTrunkID    string
	WorkerCommand []string
	WorkerDir     string
}

// Orchestrator drives the outbound call sequence: ensure room, spawn the
// agent worker, wait for it to settle, place the SIP leg, then follow the
// worker until the call ends.
type Orchestrator struct {
	cfg    Config
	gw     GatewayAPI
	runner Runner
	store  *Store
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]*activeCall
	wg     sync.WaitGroup
}

// activeCall holds the live resources of a non-terminal call.
type activeCall struct {
	cancel context.CancelFunc
	proc   Process
}

// NewOrchestrator wires the orchestrator. The store may be shared with the
// HTTP layer for read access.
func NewOrchestrator(cfg Config, gw GatewayAPI, runner Runner, store *Store, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		gw:     gw,
		runner: runner,
		store:  store,
		logger: logger,
		active: make(map[string]*activeCall),
	}
}

// roomMetadata is attached to the gateway room so the worker can recover
// the agent binding from room metadata if its arguments are lost.
type roomMetadata struct {
	AgentID     string `json:"agent_id"`
	PhoneNumber string `json:"phone_number"`
}

// Start accepts an outbound call request and runs the call sequence in the
// background. The returned snapshot is in StatePending.
func (o *Orchestrator) Start(ctx context.Context, agentID, phoneNumber string) (Call, error) {
	if agentID == "" || phoneNumber == "" {
		return Call{}, errors.New("bridge: agent_id and phone_number are required")
	}
	if len(o.cfg.WorkerCommand) == 0 {
		return Call{}, ErrNoWorker
	}

	call := o.store.Create(agentID, phoneNumber)

	// The call outlives the HTTP request that started it.
	callCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	callCtx = ctxlog.WithLogger(callCtx, o.logger.With("call_id", call.ID, "room", call.Room))

	o.mu.Lock()
	o.active[call.ID] = &activeCall{cancel: cancel}
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(callCtx, call)
	}()

	return call, nil
}

// run executes the call sequence for one call.
func (o *Orchestrator) run(ctx context.Context, call Call) {
	logger := ctxlog.FromContext(ctx)

	metadata, _ := json.Marshal(roomMetadata{AgentID: call.AgentID, PhoneNumber: call.PhoneNumber})
	if err := o.gw.EnsureRoom(ctx, call.Room, string(metadata)); err != nil {
		o.fail(ctx, call.ID, nil, err)
		return
	}

	proc, err := o.runner.Start(ctx, o.workerSpec(call))
	if err != nil {
		o.fail(ctx, call.ID, nil, fmt.Errorf("spawn agent worker: %w", err))
		return
	}
	o.mu.Lock()
	if ac, ok := o.active[call.ID]; ok {
		ac.proc = proc
	}
	o.mu.Unlock()

	// Give the worker time to join the room before the callee answers. The
	// worker has no readiness signal, so this stays a plain delay.
	select {
	case <-time.After(o.cfg.SettleDelay):
	case <-ctx.Done():
		o.fail(ctx, call.ID, proc, ctx.Err())
		return
	}

	o.store.SetState(call.ID, StateRinging)
	logger.Info("Dialing callee.", "number", call.PhoneNumber, "mode", o.cfg.DialMode)

	if err := o.dial(ctx, call); err != nil {
		o.fail(ctx, call.ID, proc, err)
		return
	}

	o.store.SetState(call.ID, StateActive)
	if participants, err := o.gw.ListParticipants(ctx, call.Room); err != nil {
		logger.Info("Call is active.")
	} else {
		logger.Info("Call is active.", "participants", participants)
	}

	// The worker owns the conversation from here; its exit ends the call.
	if err := proc.Wait(); err != nil {
		logger.Debug("Worker exited.", "error", err)
	}
	o.finish(ctx, call.ID)
}

// workerSpec builds the agent-worker command. The worker receives the
// binding as arguments and, like the original, again via environment.
func (o *Orchestrator) workerSpec(call Call) CommandSpec {
	cmd := o.cfg.WorkerCommand
	return CommandSpec{
		Path: cmd[0],
		Args: append(append([]string{}, cmd[1:]...), call.AgentID, call.Room, call.PhoneNumber),
		Dir:  o.cfg.WorkerDir,
		Env: []string{
			"LETTA_AGENT_ID=" + call.AgentID,
			"LIVEKIT_ROOM=" + call.Room,
		},
	}
}

// dial places the SIP leg, either through the gateway CLI or its API.
func (o *Orchestrator) dial(ctx context.Context, call Call) error {
	if o.cfg.DialMode == config.DialModeAPI {
		return o.gw.DialSIP(ctx, call.Room, call.PhoneNumber, call.PhoneNumber)
	}
	out, err := o.runner.Run(ctx, CommandSpec{
		Path: o.cfg.CLIPath,
		Args: []string{
			"sip", "participant", "create",
			"--trunk", o.cfg.SIPTrunkID,
			"--call-to", call.PhoneNumber,
			"--room", call.Room,
			"--identity", call.PhoneNumber,
			"--wait-until-answered",
		},
	})
	if err != nil {
		return fmt.Errorf("sip dial via cli: %w", err)
	}
	if out != "" {
		ctxlog.FromContext(ctx).Debug("CLI dial output.", "output", out)
	}
	return nil
}

// fail tears down the call's resources and records the failure.
func (o *Orchestrator) fail(ctx context.Context, id string, proc Process, cause error) {
	ctxlog.FromContext(ctx).Error("Call sequence failed.", "error", cause)
	if proc != nil {
		_ = proc.Kill()
	}
	o.release(id)
	// Cleanup must proceed even when the call context was canceled.
	cleanupCtx := context.WithoutCancel(ctx)
	if call, ok := o.store.Get(id); ok {
		if err := o.gw.DeleteRoom(cleanupCtx, call.Room); err != nil {
			ctxlog.FromContext(ctx).Warn("Failed to delete room after failure.", "error", err)
		}
	}
	o.store.Fail(id, cause)
}

// finish marks a call ended after its worker exited and removes the room.
func (o *Orchestrator) finish(ctx context.Context, id string) {
	o.release(id)
	cleanupCtx := context.WithoutCancel(ctx)
	if call, ok := o.store.Get(id); ok {
		if err := o.gw.DeleteRoom(cleanupCtx, call.Room); err != nil {
			ctxlog.FromContext(ctx).Debug("Room already gone.", "error", err)
		}
	}
	o.store.SetState(id, StateEnded)
	ctxlog.FromContext(ctx).Info("Call ended.")
}

// release drops the call from the active set and cancels its context.
func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ac, ok := o.active[id]; ok {
		ac.cancel()
		delete(o.active, id)
	}
}

// Hangup ends a call: kill the worker, delete the room. Hanging up a call
// that already ended is a no-op; an unknown ID is ErrNotFound.
func (o *Orchestrator) Hangup(ctx context.Context, id string) (Call, error) {
	call, ok := o.store.Get(id)
	if !ok {
		return Call{}, ErrNotFound
	}
	if call.State.terminal() {
		return call, nil
	}

	o.mu.Lock()
	ac := o.active[id]
	o.mu.Unlock()
	if ac != nil {
		ac.cancel()
		if ac.proc != nil {
			_ = ac.proc.Kill()
		}
	}

	if err := o.gw.DeleteRoom(ctx, call.Room); err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to delete room on hangup.", "call_id", id, "error", err)
	}

	call, _ = o.store.SetState(id, StateEnded)
	ctxlog.FromContext(ctx).Info("Call hung up.", "call_id", id)
	return call, nil
}

// Close cancels every active call and waits for their goroutines.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	for _, ac := range o.active {
		ac.cancel()
		if ac.proc != nil {
			_ = ac.proc.Kill()
		}
	}
	o.mu.Unlock()
	o.wg.Wait()
}

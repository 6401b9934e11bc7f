package actor

import (
	"fmt"
	"time"

	"sigenbridge/internal/core/domain"
	"sigenbridge/internal/core/port"
	"sigenbridge/internal/events"
	. "sigenbridge/internal/util/actorutil"
	"sigenbridge/pkg/sigenergy"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// DeviceActor polls one device through its endpoint actor. It owns the
// device's capability set and last snapshot; a poll cycle replaces the
// snapshot as a whole, never register by register.
type DeviceActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	ref              domain.DeviceRef
	endpointActor    *actor.PID
	interval         time.Duration
	wireTimeout      time.Duration
	failureThreshold uint32
	gate             port.WriteGate
	eventStream      *eventstream.EventStream

	caps     *sigenergy.CapabilitySet
	plan     []sigenergy.ReadBatch
	state    domain.DeviceState
	failures uint32
	online   bool

	logger *zap.Logger
}

type deviceTick struct {
}

type retryProbe struct {
}

type pendingWrite struct {
	respondTo    *actor.PID
	makeResponse func(err error) domain.ControlResponse
	control      string
}

func DeviceActorID(name string) string {
	return domain.ACTOR_ID_DEVICE_PREFIX + "_" + name
}

func NewDeviceActor(ref domain.DeviceRef, endpointActor *actor.PID, interval time.Duration,
	wireTimeout time.Duration, failureThreshold uint32, gate port.WriteGate,
	eventStream *eventstream.EventStream, logger *zap.Logger) *DeviceActor {
	act := &DeviceActor{
		ref:              ref,
		endpointActor:    endpointActor,
		interval:         interval,
		wireTimeout:      wireTimeout,
		failureThreshold: failureThreshold,
		gate:             gate,
		eventStream:      eventStream,
		behavior:         actor.NewBehavior(),
		stash:            &Stash{},
		logger:           ActorLogger(DeviceActorID(ref.Name), logger),
		state: domain.DeviceState{
			Device: ref.Name,
			Kind:   ref.Kind,
			Health: domain.HealthUnknown,
		},
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *DeviceActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *DeviceActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("device@starting started",
			zap.String("kind", state.ref.Kind.String()), zap.Uint8("unit", state.ref.SlaveID))
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.requestProbe(ctx)
		state.behavior.Become(state.WaitingProbeReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("device@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *DeviceActor) WaitingProbeReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ProbeDeviceResponse:
		if msg.HasResponseError() {
			state.logger.Error("device@probing probe failed", zap.Error(msg.GetResponseError()))
			state.markFailure(ctx)
			// device unreachable, retry the probe on the poll interval
			state.scheduler.RequestOnce(state.interval, ctx.Self(), retryProbe{})
			state.behavior.Become(state.DefaultReceive)
			state.stash.UnstashAll(ctx)
			return
		}
		state.logger.Debug("device@probing probed", zap.Int("registers", msg.Capabilities.Len()))
		state.caps = msg.Capabilities
		state.plan = sigenergy.PlanReads(msg.Capabilities.Specs())
		ctx.Send(ctx.Parent(), domain.DeviceProbed{
			Device:       state.ref.Name,
			Ref:          state.ref,
			Capabilities: msg.Capabilities,
		})
		ctx.Send(ctx.Self(), deviceTick{})
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.announceOffline(ctx)
	default:
		state.logger.Debug("device@probing: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *DeviceActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      DeviceActorID(state.ref.Name),
			Healthy: state.state.Health == domain.HealthReachable,
			State:   state.state.Health.String(),
		})
	case retryProbe:
		state.logger.Debug("device@default retryProbe")
		state.requestProbe(ctx)
		state.behavior.Become(state.WaitingProbeReceive)
	case deviceTick:
		if state.caps == nil {
			return
		}
		state.logger.Debug("device@default tick")
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.endpointActor, domain.ReadCycleRequest{
			SlaveID: state.ref.SlaveID,
			Plan:    state.plan,
		}, state.readDeadline()), func(err error) any {
			return domain.ReadCycleResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
		// schedule next tick
		state.scheduler.RequestOnce(state.interval, ctx.Self(), deviceTick{})
		state.behavior.BecomeStacked(state.WaitingReadReceive)
	case domain.GetDeviceStateRequest:
		ForRequest(msg).Respond(ctx, domain.GetDeviceStateResponse{State: state.state})
	case domain.GetDeviceInfoRequest:
		ForRequest(msg).Respond(ctx, domain.GetDeviceInfoResponse{
			Ref:          state.ref,
			Capabilities: state.caps,
			State:        state.state,
		})
	case domain.SetControlNumberRequest:
		spec, words, err := state.gate.PrepareNumber(state.caps, state.state, msg.Control, msg.Value)
		state.submitWrite(ctx, msg, spec, words, err, msg.Control, func(err error) domain.ControlResponse {
			return domain.SetControlNumberResponse{ControlResponseMixIn: controlResult(err)}
		})
	case domain.SetControlOptionRequest:
		spec, words, err := state.gate.PrepareOption(state.caps, state.state, msg.Control, msg.Option)
		state.submitWrite(ctx, msg, spec, words, err, msg.Control, func(err error) domain.ControlResponse {
			return domain.SetControlOptionResponse{ControlResponseMixIn: controlResult(err)}
		})
	case domain.SetControlSwitchRequest:
		spec, words, err := state.gate.PrepareSwitch(state.caps, state.state, msg.Control, msg.Enable)
		state.submitWrite(ctx, msg, spec, words, err, msg.Control, func(err error) domain.ControlResponse {
			return domain.SetControlSwitchResponse{ControlResponseMixIn: controlResult(err)}
		})
	case *actor.Stopping:
		state.announceOffline(ctx)
	default:
		state.logger.Debug("device@default: ignored", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *DeviceActor) WaitingReadReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ReadCycleResponse:
		if msg.HasResponseError() {
			state.logger.Error("device@reading read cycle failed", zap.Error(msg.GetResponseError()))
			state.markFailure(ctx)
		} else {
			state.applySnapshot(ctx, msg.Batches)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.announceOffline(ctx)
	default:
		state.logger.Debug("device@reading: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// WaitingWriteReceive holds the device until the single in-flight write is
// acknowledged. Writes are never retried.
func (state *DeviceActor) WaitingWriteReceive(pending pendingWrite) actor.ReceiveFunc {
	return func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case domain.WriteRegisterResponse:
			if msg.HasResponseError() {
				state.logger.Error("device@writing write failed",
					zap.String("control", pending.control), zap.Error(msg.GetResponseError()))
			} else {
				state.logger.Info("device@writing write applied", zap.String("control", pending.control))
				// refresh soon so entity states reflect the change
				ctx.Send(ctx.Self(), deviceTick{})
			}
			if pending.respondTo != nil {
				ctx.Send(pending.respondTo, pending.makeResponse(msg.GetResponseError()))
			}
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		case *actor.Stopping:
			state.announceOffline(ctx)
		default:
			state.logger.Debug("device@writing: stash", zap.String("type", fmt.Sprintf("%T", msg)))
			state.stash.Stash(ctx, msg)
		}
	}
}

// readDeadline outlives the endpoint's own read cycle budget so a cycle
// error arrives before the future gives up.
func (state *DeviceActor) readDeadline() time.Duration {
	deadline := time.Duration(len(state.plan)+2)*state.wireTimeout + 5*time.Second
	if deadline < 15*time.Second {
		deadline = 15 * time.Second
	}
	return deadline
}

func (state *DeviceActor) requestProbe(ctx actor.Context) {
	// outlive the endpoint's own probe budget so its error arrives first
	deadline := sigenergy.ProbeBudget(state.ref.Kind, state.wireTimeout) + 5*time.Second
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.endpointActor, domain.ProbeDeviceRequest{
		SlaveID: state.ref.SlaveID,
		Kind:    state.ref.Kind,
	}, deadline), func(err error) any {
		return domain.ProbeDeviceResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
		}
	})
}

func (state *DeviceActor) submitWrite(ctx actor.Context, req domain.ActorRequest,
	spec sigenergy.RegisterSpec, words []uint16, err error, control string,
	makeResponse func(err error) domain.ControlResponse) {

	respondTo := ForRequest(req).ReplyTo(ctx)
	if err != nil {
		state.logger.Warn("device@default control rejected", zap.String("control", control), zap.Error(err))
		if respondTo != nil {
			ctx.Send(respondTo, makeResponse(err))
		}
		return
	}
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.endpointActor, domain.WriteRegisterRequest{
		SlaveID: state.ref.SlaveID,
		Address: spec.Address,
		Words:   words,
	}, 15*time.Second), func(err error) any {
		return domain.WriteRegisterResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
		}
	})
	state.behavior.BecomeStacked(state.WaitingWriteReceive(pendingWrite{
		respondTo:    respondTo,
		makeResponse: makeResponse,
		control:      control,
	}))
}

func controlResult(err error) domain.ControlResponseMixIn {
	return domain.ControlResponseMixIn{ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err}}
}

// applySnapshot decodes a completed read cycle and replaces the whole
// snapshot atomically.
func (state *DeviceActor) applySnapshot(ctx actor.Context, batches [][]uint16) {
	if len(batches) != len(state.plan) {
		state.logger.Error("device@reading malformed cycle",
			zap.Int("want", len(state.plan)), zap.Int("got", len(batches)))
		state.markFailure(ctx)
		return
	}
	readings := make(map[string]domain.RegisterReading, state.caps.Len())
	for i, batch := range state.plan {
		values, err := sigenergy.DecodeBatch(batch, batches[i])
		if err != nil {
			state.logger.Error("device@reading batch decode failed", zap.Error(err))
			state.markFailure(ctx)
			return
		}
		for name, value := range values {
			spec, _ := state.caps.Lookup(name)
			readings[name] = domain.RegisterReading{Value: value, Unit: spec.Unit}
		}
	}
	state.failures = 0
	state.state = domain.DeviceState{
		Device:    state.ref.Name,
		Kind:      state.ref.Kind,
		Readings:  readings,
		Health:    domain.HealthReachable,
		UpdatedAt: time.Now(),
	}
	if !state.online {
		state.online = true
		state.eventStream.Publish(events.AvailabilityEvent(state.ref.Name, true))
		ctx.Send(ctx.Parent(), domain.DeviceHealthChanged{Device: state.ref.Name, Health: domain.HealthReachable})
	}
	for _, ev := range events.StateToEvents(state.state, state.caps) {
		state.eventStream.Publish(ev)
	}
}

// markFailure degrades health. The last snapshot is kept but marked stale;
// after failureThreshold consecutive failures the device goes offline.
func (state *DeviceActor) markFailure(ctx actor.Context) {
	state.failures++
	health := domain.HealthStale
	if state.failures >= state.failureThreshold {
		health = domain.HealthError
	}
	state.state.Health = health
	if health == domain.HealthError && state.online {
		state.online = false
		state.eventStream.Publish(events.AvailabilityEvent(state.ref.Name, false))
	}
	ctx.Send(ctx.Parent(), domain.DeviceHealthChanged{Device: state.ref.Name, Health: health})
}

func (state *DeviceActor) announceOffline(ctx actor.Context) {
	if state.online {
		state.online = false
		state.eventStream.Publish(events.AvailabilityEvent(state.ref.Name, false))
	}
}

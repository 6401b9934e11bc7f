package actor

import (
	"fmt"
	"strings"
	"time"

	"sigenbridge/internal/core/domain"
	"sigenbridge/internal/util/actorutil"
	"sigenbridge/pkg/sigenergy"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/reugn/go-quartz/logger"
	"go.uber.org/zap"
)

const (
	ENDPOINT_ACTOR_ID_PREFIX = "endpoint"

	wireTaskTimeout = 10 * time.Second
)

// EndpointActorID derives the actor name for a host:port endpoint.
func EndpointActorID(endpoint string) string {
	return ENDPOINT_ACTOR_ID_PREFIX + "_" + strings.NewReplacer(":", "_", ".", "_").Replace(endpoint)
}

// EndpointActor owns the Modbus session to one host:port. All wire traffic
// to that endpoint flows through its mailbox, so requests from different
// device actors can never interleave on the socket.
type EndpointActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	session  sigenergy.Session
	logger   *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewEndpointActor(session sigenergy.Session, lg *zap.Logger) *EndpointActor {
	act := &EndpointActor{
		session:  session,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(EndpointActorID(session.Endpoint()), lg),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *EndpointActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *EndpointActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("endpoint@default started", zap.String("endpoint", state.session.Endpoint()))
	case domain.ActorHealthRequest:
		state.logger.Debug("endpoint@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      EndpointActorID(state.session.Endpoint()),
			Healthy: true,
			State:   "idle",
		})
	case domain.ReadCycleRequest:
		state.logger.Debug("endpoint@default: ReadCycleRequest", zap.Uint8("unit", msg.SlaveID))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.ReadCycleResponse, error) {
			return state.readCycle(msg.SlaveID, msg.Plan)
		}), mapTaskResult[domain.ReadCycleResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.ReadCycleResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(state.cycleBudget(len(msg.Plan))).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.ProbeDeviceRequest:
		state.logger.Debug("endpoint@default: ProbeDeviceRequest",
			zap.Uint8("unit", msg.SlaveID), zap.String("kind", msg.Kind.String()))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.ProbeDeviceResponse, error) {
			return state.probeDevice(msg.SlaveID, msg.Kind)
		}), mapTaskResult[domain.ProbeDeviceResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.ProbeDeviceResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(sigenergy.ProbeBudget(msg.Kind, state.session.ReadTimeout())).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.WriteRegisterRequest:
		state.logger.Debug("endpoint@default: WriteRegisterRequest",
			zap.Uint8("unit", msg.SlaveID), zap.Uint16("address", msg.Address))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.WriteRegisterResponse, error) {
			return state.writeRegister(msg.SlaveID, msg.Address, msg.Words)
		}), mapTaskResult[domain.WriteRegisterResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.WriteRegisterResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(wireTaskTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case *actor.Stopping:
		state.session.Close()
	default:
		state.logger.Debug("endpoint@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// WaitingModbus keeps the socket single-flight: while a wire task runs, any
// new request is stashed until the result comes back.
func (state *EndpointActor) WaitingModbus(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("endpoint@waiting backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.session.Close()
	default:
		state.logger.Debug("endpoint@waiting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// cycleBudget bounds a read cycle: one sequential read per planned batch,
// each bounded by the session's per-operation timeout.
func (state *EndpointActor) cycleBudget(batches int) time.Duration {
	budget := time.Duration(batches+2) * state.session.ReadTimeout()
	if budget < wireTaskTimeout {
		budget = wireTaskTimeout
	}
	return budget
}

func (a *EndpointActor) readCycle(slaveID uint8, plan []sigenergy.ReadBatch) (*domain.ReadCycleResponse, error) {
	batches := make([][]uint16, 0, len(plan))
	for _, batch := range plan {
		words, err := a.session.Read(slaveID, batch.Table, batch.Address, batch.Words)
		if err != nil {
			logger.Error(err)
			return nil, err
		}
		batches = append(batches, words)
	}
	return &domain.ReadCycleResponse{Batches: batches}, nil
}

func (a *EndpointActor) probeDevice(slaveID uint8, kind sigenergy.DeviceKind) (*domain.ProbeDeviceResponse, error) {
	caps, err := sigenergy.Probe(a.session, slaveID, kind)
	if err != nil {
		logger.Error(err)
		return nil, err
	}
	return &domain.ProbeDeviceResponse{Capabilities: &caps}, nil
}

func (a *EndpointActor) writeRegister(slaveID uint8, address uint16, words []uint16) (*domain.WriteRegisterResponse, error) {
	if err := a.session.Write(slaveID, address, words); err != nil {
		logger.Error(err)
		return nil, err
	}
	return &domain.WriteRegisterResponse{}, nil
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}

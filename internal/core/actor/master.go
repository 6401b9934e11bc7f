package actor

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	adactor "sigenbridge/internal/adapter/actor"
	"sigenbridge/internal/config"
	"sigenbridge/internal/core/domain"
	"sigenbridge/internal/core/service"
	"sigenbridge/internal/events"
	"sigenbridge/internal/mqtt"
	. "sigenbridge/internal/util/actorutil"
	"sigenbridge/pkg/sigenergy"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/carlmjohnson/versioninfo"
	"go.uber.org/zap"
)

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

// EndpointActorProvider builds the endpoint actor owning the wire to one
// host:port.
type EndpointActorProvider func(endpoint string) *adactor.EndpointActor

type deviceEntry struct {
	ref    domain.DeviceRef
	pid    *actor.PID
	caps   *sigenergy.CapabilitySet
	health domain.Health
}

// FleetMasterActor supervises the whole actor tree: one MQTT actor, one
// endpoint actor per distinct host:port and one device actor per fleet
// device. It owns the topology and routes control commands.
type FleetMasterActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	eventStream      *eventstream.EventStream
	topology         *domain.Topology
	mqttActor        *actor.PID
	endpointActors   map[string]*actor.PID
	devices          map[string]*deviceEntry
	bridgeDevice     domain.Device
	bridgeAnnounced  bool
	endpointProvider EndpointActorProvider
	mqttProvider     MQTTActorProvider

	currentHealthCheck healthCheckResult
	currentStateQuery  fleetStateQuery

	logger *zap.Logger
}

type healthCheckResult struct {
	expected       int
	checksReceived int
	unhealthy      int
	respondTo      *actor.PID
}

type fleetStateQuery struct {
	pending   int
	received  int
	states    []domain.DeviceState
	respondTo *actor.PID
}

func NewFleetMasterActor(config config.Config, endpointProvider EndpointActorProvider,
	mqttProvider MQTTActorProvider, logger *zap.Logger) *FleetMasterActor {
	act := &FleetMasterActor{
		config:           config,
		behavior:         actor.NewBehavior(),
		stash:            &Stash{},
		logger:           ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:      &eventstream.EventStream{},
		endpointActors:   map[string]*actor.PID{},
		devices:          map[string]*deviceEntry{},
		bridgeDevice:     events.BridgeDevice(config.MQTT.BaseTopic),
		endpointProvider: endpointProvider,
		mqttProvider:     mqttProvider,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *FleetMasterActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *FleetMasterActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		topo, err := FleetTopology(state.config.Fleet)
		if err != nil {
			panic(err)
		}
		state.topology = topo

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// one endpoint actor per distinct host:port
		for _, endpoint := range topo.Endpoints() {
			pid, err := state.startEndpointActor(ctx, endpoint)
			if err != nil {
				panic(err)
			}
			state.endpointActors[endpoint] = pid
		}

		// one device actor per fleet device
		for _, ref := range topo.Devices() {
			if err := state.startDeviceActor(ctx, ref); err != nil {
				panic(err)
			}
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *FleetMasterActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.startHealthCheck(ctx)
	case domain.DeviceProbed:
		state.logger.Info("master@default device probed", zap.String("device", msg.Device),
			zap.Int("registers", msg.Capabilities.Len()))
		if entry, ok := state.devices[msg.Device]; ok {
			entry.caps = msg.Capabilities
		}
		if state.config.MQTT.HADiscoveryEnable {
			state.publishDiscovery(ctx, msg.Ref, msg.Capabilities)
		}
	case domain.DeviceHealthChanged:
		if entry, ok := state.devices[msg.Device]; ok {
			entry.health = msg.Health
		}
	case adactor.ParsedCommand:
		// redirect command from MQTT to the target device actor
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			state.routeParsedCommand(ctx, *msg.Command)
		}
	case domain.ControlRequest:
		state.routeControl(ctx, msg)
	case domain.GetTopologyRequest:
		ForRequest(msg).Respond(ctx, domain.GetTopologyResponse{Devices: state.summaries()})
	case domain.GetFleetStateRequest:
		state.startFleetStateQuery(ctx, msg)
	case domain.AddDeviceRequest:
		state.addDevice(ctx, msg)
	case domain.RemoveDeviceRequest:
		state.removeDevice(ctx, msg)
	case *actor.Terminated:
		// if the MQTT actor gives up, terminate
		if msg.Who.Id == fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_MQTT) {
			state.logger.Error("master@default mqtt terminated")
			panic(errors.New("mqtt terminated"))
		}
	default:
		state.logger.Debug("master@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// health check

func (state *FleetMasterActor) startHealthCheck(ctx actor.Context) {
	state.currentHealthCheck = healthCheckResult{
		expected:  1 + len(state.endpointActors) + len(state.devices),
		respondTo: ctx.Sender(),
	}
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
		return domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: false,
		}
	})
	for endpoint, pid := range state.endpointActors {
		id := adactor.EndpointActorID(endpoint)
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      id,
				Healthy: false,
			}
		})
	}
	for _, entry := range state.devices {
		id := DeviceActorID(entry.ref.Name)
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(entry.pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      id,
				Healthy: false,
			}
		})
	}
	ctx.SetReceiveTimeout(1 * time.Second)
	state.behavior.BecomeStacked(state.HealthCheckReceive)
}

func (state *FleetMasterActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// a silent child counts as unhealthy
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if !msg.Healthy {
			state.currentHealthCheck.unhealthy++
		}
		if state.currentHealthCheck.allReceived() {
			state.currentHealthCheck.respond(ctx)
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// fleet state query

func (state *FleetMasterActor) startFleetStateQuery(ctx actor.Context, msg domain.GetFleetStateRequest) {
	respondTo := ForRequest(msg).ReplyTo(ctx)
	var targets []*deviceEntry
	if msg.Device != "" {
		entry, ok := state.devices[msg.Device]
		if !ok {
			if respondTo != nil {
				ctx.Send(respondTo, domain.GetFleetStateResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: fmt.Errorf("%w: %s", domain.ErrUnknownDevice, msg.Device),
					},
				})
			}
			return
		}
		targets = []*deviceEntry{entry}
	} else {
		for _, ref := range state.topology.Devices() {
			if entry, ok := state.devices[ref.Name]; ok {
				targets = append(targets, entry)
			}
		}
	}
	if len(targets) == 0 {
		if respondTo != nil {
			ctx.Send(respondTo, domain.GetFleetStateResponse{})
		}
		return
	}
	state.currentStateQuery = fleetStateQuery{
		pending:   len(targets),
		respondTo: respondTo,
	}
	for _, entry := range targets {
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(entry.pid, domain.GetDeviceStateRequest{}, 2*time.Second), func(err error) any {
			return domain.GetDeviceStateResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
	}
	ctx.SetReceiveTimeout(3 * time.Second)
	state.behavior.BecomeStacked(state.FleetStateReceive)
}

func (state *FleetMasterActor) FleetStateReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		state.currentStateQuery.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.GetDeviceStateResponse:
		state.currentStateQuery.received++
		if !msg.HasResponseError() {
			state.currentStateQuery.states = append(state.currentStateQuery.states, msg.State)
		}
		if state.currentStateQuery.received >= state.currentStateQuery.pending {
			state.currentStateQuery.respond(ctx)
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(3 * time.Second)
		}
	default:
		state.logger.Debug("master@fleetstate stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// command routing

func (state *FleetMasterActor) routeParsedCommand(ctx actor.Context, cmd mqtt.ParsedMQTTCommand) {
	req, err := ParsedMQTTCommandToControl(cmd)
	if err != nil {
		state.logger.Warn("master@default unroutable command", zap.Any("command", cmd), zap.Error(err))
		return
	}
	state.routeControl(ctx, req)
}

func (state *FleetMasterActor) routeControl(ctx actor.Context, req domain.ControlRequest) {
	entry, ok := state.devices[req.TargetDevice()]
	if !ok {
		state.logger.Warn("master@default control for unknown device", zap.String("device", req.TargetDevice()))
		replyTo := ForRequest(req).ReplyTo(ctx)
		if replyTo != nil {
			ctx.Send(replyTo, domain.SetControlSwitchResponse{
				ControlResponseMixIn: controlResult(fmt.Errorf("%w: %s", domain.ErrUnknownDevice, req.TargetDevice())),
			})
		}
		return
	}
	// preserve the original sender so the device responds directly
	ctx.RequestWithCustomSender(entry.pid, req, ctx.Sender())
}

// ParsedMQTTCommandToControl maps a parsed MQTT command to a control
// request for the target device.
func ParsedMQTTCommandToControl(cmd mqtt.ParsedMQTTCommand) (domain.ControlRequest, error) {
	mixin := domain.ControlRequestMixIn{Device: cmd.Device}
	switch cmd.Command {
	case "switch":
		return domain.SetControlSwitchRequest{
			ControlRequestMixIn: mixin,
			Control:             cmd.Control,
			Enable:              strings.EqualFold(cmd.Payload, mqtt.MQTT_PAYLOAD_ON),
		}, nil
	case "number":
		value, err := strconv.ParseFloat(cmd.Payload, 64)
		if err != nil {
			return nil, err
		}
		return domain.SetControlNumberRequest{
			ControlRequestMixIn: mixin,
			Control:             cmd.Control,
			Value:               value,
		}, nil
	case "select":
		return domain.SetControlOptionRequest{
			ControlRequestMixIn: mixin,
			Control:             cmd.Control,
			Option:              cmd.Payload,
		}, nil
	default:
		return nil, fmt.Errorf("unknown command type %s", cmd.Command)
	}
}

// topology management

func (state *FleetMasterActor) addDevice(ctx actor.Context, msg domain.AddDeviceRequest) {
	ref := msg.Ref
	if err := state.topology.Add(ref); err != nil {
		ForRequest(msg).Respond(ctx, domain.AddDeviceResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		})
		return
	}
	// Add resolves inherited identity for child devices
	ref, _ = state.topology.Get(ref.Name)
	endpoint := ref.Endpoint()
	if _, ok := state.endpointActors[endpoint]; !ok {
		pid, err := state.startEndpointActor(ctx, endpoint)
		if err != nil {
			state.topology.Remove(ref.Name)
			ForRequest(msg).Respond(ctx, domain.AddDeviceResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			})
			return
		}
		state.endpointActors[endpoint] = pid
	}
	if err := state.startDeviceActor(ctx, ref); err != nil {
		state.topology.Remove(ref.Name)
		ForRequest(msg).Respond(ctx, domain.AddDeviceResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		})
		return
	}
	state.logger.Info("master@default device added", zap.String("device", ref.Name),
		zap.String("kind", ref.Kind.String()))
	ForRequest(msg).Respond(ctx, domain.AddDeviceResponse{})
}

func (state *FleetMasterActor) removeDevice(ctx actor.Context, msg domain.RemoveDeviceRequest) {
	removed := state.topology.Remove(msg.Name)
	if len(removed) == 0 {
		ForRequest(msg).Respond(ctx, domain.RemoveDeviceResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: fmt.Errorf("%w: %s", domain.ErrUnknownDevice, msg.Name),
			},
		})
		return
	}
	for _, name := range removed {
		if entry, ok := state.devices[name]; ok {
			ctx.Stop(entry.pid)
			delete(state.devices, name)
		}
	}
	state.stopOrphanEndpoints(ctx)
	state.logger.Info("master@default devices removed", zap.Strings("devices", removed))
	ForRequest(msg).Respond(ctx, domain.RemoveDeviceResponse{Removed: removed})
}

// stopOrphanEndpoints stops endpoint actors no device uses anymore.
func (state *FleetMasterActor) stopOrphanEndpoints(ctx actor.Context) {
	inUse := map[string]bool{}
	for _, endpoint := range state.topology.Endpoints() {
		inUse[endpoint] = true
	}
	for endpoint, pid := range state.endpointActors {
		if !inUse[endpoint] {
			ctx.Stop(pid)
			delete(state.endpointActors, endpoint)
		}
	}
}

// discovery

func (state *FleetMasterActor) publishDiscovery(ctx actor.Context, ref domain.DeviceRef, caps *sigenergy.CapabilitySet) {
	dev := events.FleetDevice(ref, versioninfo.Short(), state.bridgeDevice)
	sensors, switches, numbers, selects := events.DeviceComponents(dev, caps)
	if !state.bridgeAnnounced {
		state.bridgeAnnounced = true
		sensors = append(sensors, events.BridgeSensors(state.bridgeDevice)...)
	}
	ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{
		Sensors:      sensors,
		Switches:     switches,
		InputNumbers: numbers,
		Selects:      selects,
	})
}

func (state *FleetMasterActor) summaries() []domain.DeviceSummary {
	refs := state.topology.Devices()
	summaries := make([]domain.DeviceSummary, 0, len(refs))
	for _, ref := range refs {
		summary := domain.DeviceSummary{Ref: ref}
		if entry, ok := state.devices[ref.Name]; ok {
			summary.Health = entry.health
			if entry.caps != nil {
				summary.Registers = entry.caps.Names()
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

// child spawning

func (state *FleetMasterActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}

func (state *FleetMasterActor) startEndpointActor(ctx actor.Context, endpoint string) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	endpointProps := actor.PropsFromProducer(func() actor.Actor {
		return state.endpointProvider(endpoint)
	}, actor.WithSupervisor(supervisor))
	endpointActorPID, err := ctx.SpawnNamed(endpointProps, adactor.EndpointActorID(endpoint))
	if err != nil {
		return nil, err
	}

	return endpointActorPID, nil
}

func (state *FleetMasterActor) startDeviceActor(ctx actor.Context, ref domain.DeviceRef) error {

	endpointPID, ok := state.endpointActors[ref.Endpoint()]
	if !ok {
		return fmt.Errorf("no endpoint actor for %s", ref.Endpoint())
	}

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	gate := &service.DefaultWriteGate{
		ReadOnlyMode: state.config.ReadOnly,
		Logger:       state.logger,
	}
	wireTimeout := time.Duration(state.config.Modbus.TimeoutMillis) * time.Millisecond
	deviceProps := actor.PropsFromProducer(func() actor.Actor {
		return NewDeviceActor(ref, endpointPID, state.pollInterval(ref.Kind), wireTimeout,
			state.config.Fleet.Poll.FailureThreshold, gate, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	devicePID, err := ctx.SpawnNamed(deviceProps, DeviceActorID(ref.Name))
	if err != nil {
		return err
	}

	state.devices[ref.Name] = &deviceEntry{
		ref:    ref,
		pid:    devicePID,
		health: domain.HealthUnknown,
	}
	return nil
}

func (state *FleetMasterActor) pollInterval(kind sigenergy.DeviceKind) time.Duration {
	poll := state.config.Fleet.Poll
	switch kind {
	case sigenergy.KindPlant:
		return time.Duration(poll.PlantIntervalMillis) * time.Millisecond
	case sigenergy.KindInverter:
		return time.Duration(poll.InverterIntervalMillis) * time.Millisecond
	default:
		return time.Duration(poll.ChargerIntervalMillis) * time.Millisecond
	}
}

// FleetTopology builds the admitted device topology from config.
func FleetTopology(cfg config.FleetConfig) (*domain.Topology, error) {
	topo := domain.NewTopology()
	if cfg.Plant != nil {
		err := topo.Add(domain.DeviceRef{
			Kind:    sigenergy.KindPlant,
			Name:    cfg.Plant.Name,
			Host:    cfg.Plant.Host,
			Port:    cfg.Plant.Port,
			SlaveID: cfg.Plant.SlaveId,
		})
		if err != nil {
			return nil, err
		}
	}
	for _, inv := range cfg.Inverters {
		err := topo.Add(domain.DeviceRef{
			Kind:    sigenergy.KindInverter,
			Name:    inv.Name,
			Host:    inv.Host,
			Port:    inv.Port,
			SlaveID: inv.SlaveId,
		})
		if err != nil {
			return nil, err
		}
	}
	for _, ac := range cfg.ACChargers {
		err := topo.Add(domain.DeviceRef{
			Kind:    sigenergy.KindACCharger,
			Name:    ac.Name,
			Host:    ac.Host,
			Port:    ac.Port,
			SlaveID: ac.SlaveId,
		})
		if err != nil {
			return nil, err
		}
	}
	for _, dc := range cfg.DCChargers {
		err := topo.Add(domain.DeviceRef{
			Kind:   sigenergy.KindDCCharger,
			Name:   dc.Name,
			Parent: dc.Inverter,
		})
		if err != nil {
			return nil, err
		}
	}
	if topo.Len() == 0 {
		return nil, errors.New("fleet has no devices")
	}
	return topo, nil
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived >= state.expected
}

func (state *healthCheckResult) allHealthy() bool {
	return state.unhealthy == 0 && state.checksReceived >= state.expected
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}

func (state *fleetStateQuery) respond(ctx actor.Context) {
	if state.respondTo != nil {
		ctx.Send(state.respondTo, domain.GetFleetStateResponse{States: state.states})
	}
}

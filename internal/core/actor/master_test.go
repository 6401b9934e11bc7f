package actor

import (
	"testing"
	"time"

	adactor "sigenbridge/internal/adapter/actor"
	"sigenbridge/internal/core/domain"
	"sigenbridge/internal/util"
	"sigenbridge/pkg/sigenergy"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func spawnTestMaster(t *testing.T, fake *sigenergy.FakeSession) (*actor.ActorSystem, *actor.PID) {
	t.Helper()

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewFleetMasterActor(cfg, func(endpoint string) *adactor.EndpointActor {
			return adactor.NewEndpointActor(fake, logger)
		}, func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, es, logger)
		}, logger)
	})
	pid, err := context.SpawnNamed(props, "master")
	require.NoError(t, err)
	return as, pid
}

func testFleetSession() *sigenergy.FakeSession {
	fake := sigenergy.NewFakeSession("-.-.-.-:502")
	fake.LoadKind(247, sigenergy.KindPlant)
	fake.LoadKind(1, sigenergy.KindInverter)
	return fake
}

func TestMasterActorHealthCheck(t *testing.T) {

	as, pid := spawnTestMaster(t, testFleetSession())
	defer as.Shutdown()
	context := as.Root

	// let probes and the first poll cycle complete
	time.Sleep(2 * time.Second)

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	require.NoError(t, err)
	healthResp, ok := res.(domain.ActorHealthResponse)
	require.True(t, ok)

	assert.True(t, healthResp.Healthy, "healthy is true")

	context.Stop(pid)
}

func TestMasterActorTopologyAndState(t *testing.T) {

	as, pid := spawnTestMaster(t, testFleetSession())
	defer as.Shutdown()
	context := as.Root

	time.Sleep(2 * time.Second)

	res, err := context.RequestFuture(pid, domain.GetTopologyRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	topoResp, ok := res.(domain.GetTopologyResponse)
	require.True(t, ok)
	require.Len(t, topoResp.Devices, 2)

	byName := map[string]domain.DeviceSummary{}
	for _, dev := range topoResp.Devices {
		byName[dev.Ref.Name] = dev
	}
	plant := byName["plant"]
	assert.Equal(t, domain.HealthReachable, plant.Health)
	assert.Contains(t, plant.Registers, "plant_ess_soc")
	inverter := byName["inverter_1"]
	assert.Contains(t, inverter.Registers, "inverter_running_state")

	res, err = context.RequestFuture(pid, domain.GetFleetStateRequest{}, 10*time.Second).Result()
	require.NoError(t, err)
	stateResp, ok := res.(domain.GetFleetStateResponse)
	require.True(t, ok)
	require.Len(t, stateResp.States, 2)
	for _, st := range stateResp.States {
		assert.Equal(t, domain.HealthReachable, st.Health)
		assert.NotEmpty(t, st.Readings)
	}

	res, err = context.RequestFuture(pid, domain.GetFleetStateRequest{Device: "plant"}, 10*time.Second).Result()
	require.NoError(t, err)
	stateResp, ok = res.(domain.GetFleetStateResponse)
	require.True(t, ok)
	require.Len(t, stateResp.States, 1)
	assert.Equal(t, "plant", stateResp.States[0].Device)

	res, err = context.RequestFuture(pid, domain.GetFleetStateRequest{Device: "ghost"}, 5*time.Second).Result()
	require.NoError(t, err)
	stateResp, ok = res.(domain.GetFleetStateResponse)
	require.True(t, ok)
	assert.ErrorIs(t, stateResp.GetResponseError(), domain.ErrUnknownDevice)

	context.Stop(pid)
}

func TestMasterActorControlRouting(t *testing.T) {

	fake := testFleetSession()
	as, pid := spawnTestMaster(t, fake)
	defer as.Shutdown()
	context := as.Root

	time.Sleep(2 * time.Second)

	res, err := context.RequestFuture(pid, domain.SetControlSwitchRequest{
		ControlRequestMixIn: domain.ControlRequestMixIn{Device: "plant"},
		Control:             "plant_start_stop",
		Enable:              true,
	}, 10*time.Second).Result()
	require.NoError(t, err)
	ctrlResp, ok := res.(domain.SetControlSwitchResponse)
	require.True(t, ok)
	assert.NoError(t, ctrlResp.GetResponseError())
	assert.Equal(t, 1, fake.WriteCount())

	// unknown control never reaches the wire
	res, err = context.RequestFuture(pid, domain.SetControlNumberRequest{
		ControlRequestMixIn: domain.ControlRequestMixIn{Device: "plant"},
		Control:             "plant_warp_drive",
		Value:               1,
	}, 10*time.Second).Result()
	require.NoError(t, err)
	numResp, ok := res.(domain.SetControlNumberResponse)
	require.True(t, ok)
	assert.ErrorIs(t, numResp.GetResponseError(), domain.ErrUnsupportedControl)
	assert.Equal(t, 1, fake.WriteCount())

	context.Stop(pid)
}

func TestMasterActorAddRemoveDevice(t *testing.T) {

	as, pid := spawnTestMaster(t, testFleetSession())
	defer as.Shutdown()
	context := as.Root

	time.Sleep(1 * time.Second)

	res, err := context.RequestFuture(pid, domain.AddDeviceRequest{
		Ref: domain.DeviceRef{
			Kind:   sigenergy.KindDCCharger,
			Name:   "dc_1",
			Parent: "inverter_1",
		},
	}, 5*time.Second).Result()
	require.NoError(t, err)
	addResp, ok := res.(domain.AddDeviceResponse)
	require.True(t, ok)
	require.NoError(t, addResp.GetResponseError())

	// duplicate admission is rejected
	res, err = context.RequestFuture(pid, domain.AddDeviceRequest{
		Ref: domain.DeviceRef{
			Kind:   sigenergy.KindDCCharger,
			Name:   "dc_1",
			Parent: "inverter_1",
		},
	}, 5*time.Second).Result()
	require.NoError(t, err)
	addResp, ok = res.(domain.AddDeviceResponse)
	require.True(t, ok)
	assert.ErrorIs(t, addResp.GetResponseError(), domain.ErrDuplicateID)

	// removing the inverter cascades to its DC charger
	res, err = context.RequestFuture(pid, domain.RemoveDeviceRequest{Name: "inverter_1"}, 5*time.Second).Result()
	require.NoError(t, err)
	removeResp, ok := res.(domain.RemoveDeviceResponse)
	require.True(t, ok)
	require.NoError(t, removeResp.GetResponseError())
	assert.ElementsMatch(t, []string{"inverter_1", "dc_1"}, removeResp.Removed)

	res, err = context.RequestFuture(pid, domain.GetTopologyRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	topoResp, ok := res.(domain.GetTopologyResponse)
	require.True(t, ok)
	require.Len(t, topoResp.Devices, 1)
	assert.Equal(t, "plant", topoResp.Devices[0].Ref.Name)

	context.Stop(pid)
}

package actor

import (
	"sync"
	"testing"
	"time"

	"sigenbridge/internal/core/domain"
	"sigenbridge/internal/util/actorutil"
	"sigenbridge/pkg/sigenergy"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func spawnEndpointActor(t *testing.T, fake *sigenergy.FakeSession) (*actor.ActorSystem, *actor.RootContext, *actor.PID) {
	t.Helper()

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor { return NewEndpointActor(fake, logger) })
	pid := context.Spawn(props)
	return as, context, pid
}

func TestEndpointActorReadCycle(t *testing.T) {

	assert := assert.New(t)

	fake := sigenergy.NewFakeSession("10.0.0.2:502")
	fake.LoadKind(247, sigenergy.KindPlant)
	as, context, pid := spawnEndpointActor(t, fake)

	caps, err := sigenergy.Probe(fake, 247, sigenergy.KindPlant)
	if err != nil {
		t.Error(err)
		return
	}
	plan := sigenergy.PlanReads(caps.Specs())

	result, err := context.RequestFuture(pid, domain.ReadCycleRequest{SlaveID: 247, Plan: plan}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.ReadCycleResponse)

	assert.False(resp.HasResponseError(), "read cycle error")
	assert.Equal(len(plan), len(resp.Batches), "one word block per batch")
	for i, batch := range plan {
		assert.Equal(int(batch.Words), len(resp.Batches[i]), "batch word count")
	}

	context.Stop(pid)
	as.Shutdown()
}

func TestEndpointActorProbe(t *testing.T) {

	assert := assert.New(t)

	fake := sigenergy.NewFakeSession("10.0.0.2:502")
	fake.LoadKind(1, sigenergy.KindInverter, "inverter_ess_battery_soh")
	as, context, pid := spawnEndpointActor(t, fake)

	result, err := context.RequestFuture(pid, domain.ProbeDeviceRequest{SlaveID: 1, Kind: sigenergy.KindInverter}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.ProbeDeviceResponse)

	assert.False(resp.HasResponseError(), "probe error")
	assert.True(resp.Capabilities.Supports("inverter_running_state"), "running state supported")
	assert.False(resp.Capabilities.Supports("inverter_ess_battery_soh"), "missing register excluded")

	context.Stop(pid)
	as.Shutdown()
}

func TestEndpointActorProbeUnreachable(t *testing.T) {

	assert := assert.New(t)

	fake := sigenergy.NewFakeSession("10.0.0.2:502")
	fake.FailWith(sigenergy.ErrUnreachable)
	as, context, pid := spawnEndpointActor(t, fake)

	result, err := context.RequestFuture(pid, domain.ProbeDeviceRequest{SlaveID: 1, Kind: sigenergy.KindInverter}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.ProbeDeviceResponse)

	assert.True(resp.HasResponseError(), "probe should fail")
	assert.ErrorIs(resp.GetResponseError(), sigenergy.ErrUnreachable)

	context.Stop(pid)
	as.Shutdown()
}

func TestEndpointActorWrite(t *testing.T) {

	assert := assert.New(t)

	fake := sigenergy.NewFakeSession("10.0.0.2:502")
	fake.LoadKind(247, sigenergy.KindPlant)
	as, context, pid := spawnEndpointActor(t, fake)

	result, err := context.RequestFuture(pid, domain.WriteRegisterRequest{SlaveID: 247, Address: 40032, Words: []uint16{0, 7500}}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.WriteRegisterResponse)

	assert.False(resp.HasResponseError(), "write error")
	assert.Equal(1, fake.WriteCount(), "one wire write")

	context.Stop(pid)
	as.Shutdown()
}

// Concurrent requests from several devices on the same endpoint must be
// served one at a time.
func TestEndpointActorSerializesWire(t *testing.T) {

	assert := assert.New(t)

	fake := sigenergy.NewFakeSession("10.0.0.2:502")
	fake.LoadKind(1, sigenergy.KindInverter)
	fake.LoadKind(2, sigenergy.KindInverter)
	fake.Latency = 2 * time.Millisecond
	as, context, pid := spawnEndpointActor(t, fake)

	caps, err := sigenergy.Probe(fake, 1, sigenergy.KindInverter)
	if err != nil {
		t.Error(err)
		return
	}
	plan := sigenergy.PlanReads(caps.Specs())

	var wg sync.WaitGroup
	for _, unit := range []uint8{1, 2, 1, 2} {
		wg.Add(1)
		go func(unit uint8) {
			defer wg.Done()
			result, err := context.RequestFuture(pid, domain.ReadCycleRequest{SlaveID: unit, Plan: plan}, 15*time.Second).Result()
			if err != nil {
				t.Error(err)
				return
			}
			assert.False(result.(domain.ReadCycleResponse).HasResponseError())
		}(unit)
	}
	wg.Wait()

	assert.False(fake.Overlapped(), "wire ops overlapped")

	context.Stop(pid)
	as.Shutdown()
}

// Different endpoints run on independent actors: traffic to one never waits
// on the other.
func TestEndpointActorsIndependent(t *testing.T) {

	assert := assert.New(t)

	fakeA := sigenergy.NewFakeSession("10.0.0.2:502")
	fakeA.LoadKind(1, sigenergy.KindInverter)
	fakeB := sigenergy.NewFakeSession("10.0.0.3:502")
	fakeB.LoadKind(1, sigenergy.KindInverter)

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	pidA := context.Spawn(actor.PropsFromProducer(func() actor.Actor { return NewEndpointActor(fakeA, logger) }))
	pidB := context.Spawn(actor.PropsFromProducer(func() actor.Actor { return NewEndpointActor(fakeB, logger) }))

	caps, err := sigenergy.Probe(fakeA, 1, sigenergy.KindInverter)
	if err != nil {
		t.Error(err)
		return
	}
	plan := sigenergy.PlanReads(caps.Specs())

	var wg sync.WaitGroup
	for _, pid := range []*actor.PID{pidA, pidB} {
		wg.Add(1)
		go func(pid *actor.PID) {
			defer wg.Done()
			result, err := context.RequestFuture(pid, domain.ReadCycleRequest{SlaveID: 1, Plan: plan}, 15*time.Second).Result()
			if err != nil {
				t.Error(err)
				return
			}
			assert.False(result.(domain.ReadCycleResponse).HasResponseError())
		}(pid)
	}
	wg.Wait()

	readsA, readsB := 0, 0
	for _, op := range fakeA.Ops() {
		if op.Op == "read" {
			readsA++
		}
	}
	for _, op := range fakeB.Ops() {
		if op.Op == "read" {
			readsB++
		}
	}
	// the probe above also reads fakeA; the cycle itself adds len(plan) each
	assert.Equal(len(plan), readsB, "endpoint B served only its own cycle")
	assert.Greater(readsA, readsB, "endpoint A served probe plus cycle")

	context.Stop(pidA)
	context.Stop(pidB)
	as.Shutdown()
}

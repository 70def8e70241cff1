package resource

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simkern/simkern/sim"
	"github.com/simkern/simkern/sim/internal/testutil"
)

const tol = 1e-9

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	}
	os.Exit(m.Run())
}

func newCPU(t *testing.T, hosts ...sim.HostSpec) *CPUModel {
	t.Helper()
	m, err := NewCPUModel(sim.NewConfig())
	require.NoError(t, err)
	for _, h := range hosts {
		_, err := m.AddHost(h)
		require.NoError(t, err)
	}
	return m
}

// step advances m to its next event and returns the new date.
func step(t *testing.T, m sim.ResourceModel, now float64) float64 {
	t.Helper()
	dt, ok := m.NextOccurringEvent(now)
	require.True(t, ok, "model has no next event")
	m.Advance(now+dt, dt)
	return now + dt
}

func TestCPU_TwoExecutions_ShareHost(t *testing.T) {
	// GIVEN a 100 flop/s host running 100 and 300 flops
	m := newCPU(t, sim.HostSpec{Name: "h", Speed: 100})
	a, err := m.Execute(0, "h", 100, sim.ExecOptions{})
	require.NoError(t, err)
	b, err := m.Execute(0, "h", 300, sim.ExecOptions{})
	require.NoError(t, err)

	// WHEN advancing to the first event
	now := step(t, m, 0)

	// THEN the small one finishes at t=2 (50 flop/s each)
	testutil.AssertFloat64Equal(t, "first event", 2, now, tol)
	assert.Equal(t, sim.ActionDone, a.State())
	assert.Equal(t, 0.0, a.Remaining())
	assert.Equal(t, []*sim.Action{a}, m.ExtractTerminated())

	// WHEN advancing again
	now = step(t, m, now)

	// THEN the big one gets the whole host: 200 flops left at 100 flop/s
	testutil.AssertFloat64Equal(t, "second event", 4, now, tol)
	assert.Equal(t, sim.ActionDone, b.State())
	testutil.AssertFloat64Equal(t, "finish time", 4, b.FinishTime(), tol)
}

func TestCPU_Priority_SkewsShare(t *testing.T) {
	m := newCPU(t, sim.HostSpec{Name: "h", Speed: 100})
	low, _ := m.Execute(0, "h", 1000, sim.ExecOptions{Priority: 1})
	high, _ := m.Execute(0, "h", 1000, sim.ExecOptions{Priority: 3})

	m.Advance(1, 1)

	testutil.AssertFloat64Equal(t, "low", 975, low.Remaining(), tol)
	testutil.AssertFloat64Equal(t, "high", 925, high.Remaining(), tol)
}

func TestCPU_MultiCore_OneExecutionUsesOneCore(t *testing.T) {
	// GIVEN a 4-core host and a single execution
	m := newCPU(t, sim.HostSpec{Name: "h", Speed: 10, Cores: 4})
	_, err := m.Execute(0, "h", 100, sim.ExecOptions{})
	require.NoError(t, err)

	// WHEN asking for the next event
	dt, ok := m.NextOccurringEvent(0)

	// THEN the execution runs at one core's speed
	require.True(t, ok)
	testutil.AssertFloat64Equal(t, "dt", 10, dt, tol)
	assert.True(t, m.IsUsed(m.Host("h")))
}

func TestCPU_UserBound_CapsRate(t *testing.T) {
	m := newCPU(t, sim.HostSpec{Name: "h", Speed: 100})
	m.Execute(0, "h", 100, sim.ExecOptions{Bound: 20})
	dt, _ := m.NextOccurringEvent(0)
	testutil.AssertFloat64Equal(t, "dt", 5, dt, tol)
}

func TestCPU_TimeStepInvariance(t *testing.T) {
	// GIVEN two identical models with the same contended executions
	build := func() (*CPUModel, []*sim.Action) {
		m := newCPU(t, sim.HostSpec{Name: "h", Speed: 100, Cores: 2})
		var acts []*sim.Action
		for i, flops := range []float64{500, 800, 1200} {
			a, err := m.Execute(0, "h", flops, sim.ExecOptions{Priority: float64(i + 1)})
			require.NoError(t, err)
			acts = append(acts, a)
		}
		return m, acts
	}
	whole, wholeActs := build()
	halves, halfActs := build()
	dt, ok := whole.NextOccurringEvent(0)
	require.True(t, ok)

	// WHEN one advances by dt and the other by dt/2 twice
	whole.Advance(dt, dt)
	halves.NextOccurringEvent(0)
	halves.Advance(dt/2, dt/2)
	halves.NextOccurringEvent(dt / 2)
	halves.Advance(dt, dt/2)

	// THEN they end in the same state
	for i := range wholeActs {
		assert.Equal(t, wholeActs[i].State(), halfActs[i].State(), "action %d", i)
		testutil.AssertFloat64Equal(t, "remaining", wholeActs[i].Remaining(), halfActs[i].Remaining(), 1e-9)
	}
}

func TestCPU_RemainingNonIncreasing(t *testing.T) {
	m := newCPU(t, sim.HostSpec{Name: "h", Speed: 7})
	a, _ := m.Execute(0, "h", 100, sim.ExecOptions{})
	series := []float64{a.Remaining()}
	now := 0.0
	for a.State() == sim.ActionRunning {
		now += 1.3
		m.Advance(now, 1.3)
		series = append(series, a.Remaining())
	}
	testutil.AssertNonIncreasing(t, "remaining", series)
	assert.Equal(t, sim.ActionDone, a.State())
	assert.Equal(t, 0.0, a.Remaining())
}

func TestCPU_Advance_SameDateTwice_IsNoOp(t *testing.T) {
	m := newCPU(t, sim.HostSpec{Name: "h", Speed: 10})
	a, _ := m.Execute(0, "h", 100, sim.ExecOptions{})

	m.Advance(1, 1)
	m.Advance(1, 1)

	testutil.AssertFloat64Equal(t, "remaining", 90, a.Remaining(), tol)
}

func TestCPU_Advance_RemainderBelowClockResolution_Finishes(t *testing.T) {
	tests := []struct {
		name     string
		date     float64
		wantDone bool
	}{
		{"small date keeps the remainder", 10, false},
		{"large date finishes it", 1e10, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// GIVEN 100 flops on a 10 flop/s host advanced to leave 1e-6 flops
			m := newCPU(t, sim.HostSpec{Name: "h", Speed: 10})
			a, err := m.Execute(0, "h", 100, sim.ExecOptions{})
			require.NoError(t, err)

			// WHEN the model is advanced to the given date
			m.Advance(tc.date, 9.9999999)

			// THEN the leftover 1e-7 s only counts when the clock can resolve it
			if tc.wantDone {
				assert.Equal(t, sim.ActionDone, a.State())
				assert.Equal(t, 0.0, a.Remaining())
				return
			}
			assert.Equal(t, sim.ActionRunning, a.State())
			assert.Greater(t, a.Remaining(), 0.0)
		})
	}
}

func TestCPU_ZeroCost_DoneOnAcceptance(t *testing.T) {
	// GIVEN several zero-cost executions
	m := newCPU(t, sim.HostSpec{Name: "h", Speed: 10})
	var acts []*sim.Action
	for i := 0; i < 3; i++ {
		a, err := m.Execute(0, "h", 0, sim.ExecOptions{})
		require.NoError(t, err)
		acts = append(acts, a)
	}

	// THEN they are done without any clock tick and the model is idle
	for _, a := range acts {
		assert.Equal(t, sim.ActionDone, a.State())
	}
	assert.Equal(t, acts, m.ExtractTerminated())
	_, ok := m.NextOccurringEvent(0)
	assert.False(t, ok)
	assert.Equal(t, 0, m.Table().Len())
	assert.Equal(t, 0, m.System().NumVariables())
	assert.False(t, m.IsUsed(m.Host("h")))
}

func TestCPU_HostOff_FailsRunningActions(t *testing.T) {
	// GIVEN an execution and a sleep on a host
	m := newCPU(t, sim.HostSpec{Name: "h", Speed: 10}, sim.HostSpec{Name: "other", Speed: 10})
	exec, _ := m.Execute(0, "h", 100, sim.ExecOptions{})
	sleep, _ := m.Sleep(0, "h", 50)
	elsewhere, _ := m.Execute(0, "other", 100, sim.ExecOptions{})
	m.Advance(1, 1)

	// WHEN the host turns off
	m.UpdateResourceState(m.Host("h"), sim.StateEvent{Kind: sim.StateOff}, 1)

	// THEN both fail, never done, and the other host is untouched
	assert.Equal(t, sim.ActionFailed, exec.State())
	assert.Equal(t, sim.ActionFailed, sleep.State())
	assert.Greater(t, exec.Remaining(), 0.0)
	assert.Equal(t, sim.ActionRunning, elsewhere.State())
	assert.Equal(t, []*sim.Action{exec, sleep}, m.ExtractTerminated())
	assert.False(t, m.Host("h").IsOn())
}

func TestCPU_ExecuteOnOffHost_FailsImmediately(t *testing.T) {
	m := newCPU(t, sim.HostSpec{Name: "h", Speed: 10})
	m.UpdateResourceState(m.Host("h"), sim.StateEvent{Kind: sim.StateOff}, 0)

	a, err := m.Execute(0, "h", 10, sim.ExecOptions{})

	require.NoError(t, err)
	assert.Equal(t, sim.ActionFailed, a.State())

	m.UpdateResourceState(m.Host("h"), sim.StateEvent{Kind: sim.StateOn}, 0)
	b, _ := m.Execute(0, "h", 10, sim.ExecOptions{})
	assert.Equal(t, sim.ActionRunning, b.State())
}

func TestCPU_SpeedEvent_ScalesRate(t *testing.T) {
	m := newCPU(t, sim.HostSpec{Name: "h", Speed: 10})
	m.Execute(0, "h", 100, sim.ExecOptions{})

	m.UpdateResourceState(m.Host("h"), sim.StateEvent{Kind: sim.StateSpeed, Value: 0.5}, 0)
	dt, _ := m.NextOccurringEvent(0)

	testutil.AssertFloat64Equal(t, "dt", 20, dt, tol)
	testutil.AssertFloat64Equal(t, "speed", 5, m.Host("h").Speed(), tol)
}

func TestCPU_Suspend_FreezesRemaining(t *testing.T) {
	// GIVEN two executions, one suspended
	m := newCPU(t, sim.HostSpec{Name: "h", Speed: 10})
	a, _ := m.Execute(0, "h", 100, sim.ExecOptions{})
	b, _ := m.Execute(0, "h", 100, sim.ExecOptions{})
	a.Suspend()

	// WHEN time advances
	now := step(t, m, 0)

	// THEN the suspended one kept its amount and the other had the whole host
	testutil.AssertFloat64Equal(t, "date", 10, now, tol)
	assert.Equal(t, 100.0, a.Remaining())
	assert.Equal(t, sim.ActionDone, b.State())

	// WHEN resumed
	a.Resume()
	now = step(t, m, now)

	// THEN it finishes at full speed
	testutil.AssertFloat64Equal(t, "date", 20, now, tol)
	assert.Equal(t, sim.ActionDone, a.State())
}

func TestCPU_Sleep_FinishesAfterDuration(t *testing.T) {
	m := newCPU(t, sim.HostSpec{Name: "h", Speed: 10})
	a, _ := m.Sleep(0, "h", 3)
	now := step(t, m, 0)
	testutil.AssertFloat64Equal(t, "date", 3, now, tol)
	assert.Equal(t, sim.ActionDone, a.State())
	assert.False(t, m.IsUsed(m.Host("h")))
}

func TestCPU_Errors(t *testing.T) {
	m := newCPU(t, sim.HostSpec{Name: "h", Speed: 10})
	_, err := m.Execute(0, "nowhere", 1, sim.ExecOptions{})
	assert.Error(t, err)
	_, err = m.Sleep(0, "h", -1)
	assert.Error(t, err)
	_, err = m.AddHost(sim.HostSpec{Name: "h", Speed: 10})
	assert.Error(t, err)
	_, err = m.AddHost(sim.HostSpec{Name: "slow", Speed: 0})
	assert.Error(t, err)
}

func newNetwork(t *testing.T, links ...sim.LinkSpec) (*NetworkModel, *StaticRouter) {
	t.Helper()
	r := NewStaticRouter()
	m, err := NewNetworkModel(sim.NewConfig(), r)
	require.NoError(t, err)
	for _, l := range links {
		_, err := m.AddLink(l)
		require.NoError(t, err)
	}
	return m, r
}

func TestNetwork_LatencyThenBandwidth(t *testing.T) {
	// GIVEN a 100 B/s link with 1s latency and a 100 B transfer
	m, r := newNetwork(t, sim.LinkSpec{Name: "l", Bandwidth: 100, Latency: 1})
	r.Add("a", "b", []string{"l"}, true)
	c, err := m.Communicate(0, "a", "b", 100, 0)
	require.NoError(t, err)

	// WHEN stepping
	now := step(t, m, 0)

	// THEN the latency phase ends first with the whole amount left
	testutil.AssertFloat64Equal(t, "latency end", 1, now, tol)
	assert.Equal(t, 100.0, c.Remaining())
	assert.Equal(t, 0.0, c.Latency())

	now = step(t, m, now)

	// THEN the transfer takes one more second
	testutil.AssertFloat64Equal(t, "done", 2, now, tol)
	assert.Equal(t, sim.ActionDone, c.State())
}

func TestNetwork_SharedAndFatPipe(t *testing.T) {
	// GIVEN two transfers crossing a shared link and a fat pipe
	m, r := newNetwork(t,
		sim.LinkSpec{Name: "shared", Bandwidth: 100},
		sim.LinkSpec{Name: "fat", Bandwidth: 100, FatPipe: true})
	r.Add("a", "b", []string{"shared"}, false)
	r.Add("c", "d", []string{"fat"}, false)
	s1, _ := m.Communicate(0, "a", "b", 100, 0)
	m.Communicate(0, "a", "b", 100, 0)
	f1, _ := m.Communicate(0, "c", "d", 100, 0)
	m.Communicate(0, "c", "d", 100, 0)

	// WHEN advancing one second
	m.Advance(1, 1)

	// THEN the fat pipe transfers are done and the shared ones half way
	assert.Equal(t, sim.ActionDone, f1.State())
	testutil.AssertFloat64Equal(t, "shared", 50, s1.Remaining(), tol)
}

func TestNetwork_EmptyRoute_PaysNothing(t *testing.T) {
	m, _ := newNetwork(t)
	c, err := m.Communicate(0, "a", "a", 1e6, 0)
	require.NoError(t, err)
	assert.Equal(t, sim.ActionDone, c.State())
}

func TestNetwork_NoRoute_Errors(t *testing.T) {
	m, _ := newNetwork(t)
	_, err := m.Communicate(0, "a", "b", 1, 0)
	assert.Error(t, err)
}

func TestNetwork_LinkOff_FailsTransfer(t *testing.T) {
	m, r := newNetwork(t, sim.LinkSpec{Name: "l", Bandwidth: 10})
	r.Add("a", "b", []string{"l"}, false)
	c, _ := m.Communicate(0, "a", "b", 100, 0)

	m.UpdateResourceState(m.Link("l"), sim.StateEvent{Kind: sim.StateOff}, 0.5)

	assert.Equal(t, sim.ActionFailed, c.State())
	testutil.AssertFloat64Equal(t, "finish", 0.5, c.FinishTime(), tol)
}

func TestStaticRouter_Symmetric_ReversesLinks(t *testing.T) {
	r := NewStaticRouter()
	r.Add("a", "b", []string{"l1", "l2"}, true)
	links, err := r.Route("b", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"l2", "l1"}, links)
}

func TestStorage_ReadAndWrite_UseSeparateBandwidths(t *testing.T) {
	// GIVEN a disk reading at 10 B/s and writing at 5 B/s
	m, err := NewStorageModel(sim.NewConfig())
	require.NoError(t, err)
	_, err = m.AddDisk(sim.DiskSpec{Name: "d", ReadBandwidth: 10, WriteBandwidth: 5})
	require.NoError(t, err)
	rd, _ := m.Read(0, "d", 10)
	wr, _ := m.Write(0, "d", 10)

	// WHEN advancing to the first event
	now := step(t, m, 0)

	// THEN the read finishes at 1s, the write is half done
	testutil.AssertFloat64Equal(t, "date", 1, now, tol)
	assert.Equal(t, sim.ActionDone, rd.State())
	testutil.AssertFloat64Equal(t, "write", 5, wr.Remaining(), tol)
	assert.Equal(t, sim.KindIOWrite, wr.Kind())
}

func TestNewPlatform_BuildsModelsInOrder(t *testing.T) {
	models, err := NewPlatform(sim.NewConfig(), sim.PlatformSpec{
		Hosts:  []sim.HostSpec{{Name: "a", Speed: 1}, {Name: "b", Speed: 1}},
		Links:  []sim.LinkSpec{{Name: "l", Bandwidth: 1}},
		Disks:  []sim.DiskSpec{{Name: "d", Host: "a", ReadBandwidth: 1, WriteBandwidth: 1}},
		Routes: []sim.RouteSpec{{Src: "a", Dst: "b", Links: []string{"l"}, Symmetric: true}},
	})
	require.NoError(t, err)
	require.Len(t, models, 3)
	assert.Equal(t, "cpu", models[0].Name())
	assert.Equal(t, "network", models[1].Name())
	assert.Equal(t, "storage", models[2].Name())
}

func TestNewPlatform_UnknownLinkInRoute_Errors(t *testing.T) {
	_, err := NewPlatform(sim.NewConfig(), sim.PlatformSpec{
		Hosts:  []sim.HostSpec{{Name: "a", Speed: 1}, {Name: "b", Speed: 1}},
		Routes: []sim.RouteSpec{{Src: "a", Dst: "b", Links: []string{"ghost"}}},
	})
	assert.ErrorContains(t, err, "ghost")
}

func TestNewPlatform_UnknownPolicy_Errors(t *testing.T) {
	cfg := sim.NewConfig()
	cfg.SharingPolicy = "lottery"
	_, err := NewPlatform(cfg, sim.PlatformSpec{})
	assert.Error(t, err)
}

package diagnostics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarkyaio/tarka/pkg/models"
)

func TestRegistry_IsDeterministicAndNonEmpty(t *testing.T) {
	ids := make([]string, 0, len(Registry()))
	for _, m := range Registry() {
		ids = append(ids, m.ID())
	}
	require.NotEmpty(t, ids)

	seen := make(map[string]bool)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate module id %q", id)
		seen[id] = true
	}
}

func TestRun_CrashLoopBackOffOOMKilled(t *testing.T) {
	ev := &models.Evidence{
		K8s: models.K8sContextSlot{
			Status: models.SlotOK,
			Phase:  "Running",
			ContainerStates: []models.ContainerState{
				{
					Name:           "app",
					RestartCount:   15,
					WaitingReason:  "CrashLoopBackOff",
					LastTermReason: "OOMKilled",
					LastExitCode:   137,
				},
			},
		},
	}

	findings := Run(ev)
	require.NotEmpty(t, findings)

	var sawCrashLoop, sawOOM, sawRestartStorm bool
	for _, f := range findings {
		switch f.ModuleID {
		case "container.crash_loop_backoff":
			sawCrashLoop = true
		case "container.oom_killed":
			sawOOM = true
			assert.Contains(t, f.Summary, "exit 137")
		case "container.restart_storm":
			sawRestartStorm = true
		}
	}
	assert.True(t, sawCrashLoop)
	assert.True(t, sawOOM)
	assert.True(t, sawRestartStorm)
}

func TestRun_LogsUnavailableVsEmpty(t *testing.T) {
	unavailable := &models.Evidence{Logs: models.LogsSlot{Status: models.SlotUnavailable, Reason: "http_error:503"}}
	findings := Run(unavailable)
	require.Len(t, findings, 1)
	assert.Equal(t, "logs.unavailable", findings[0].ModuleID)
	assert.Contains(t, findings[0].Summary, "http_error:503")

	empty := &models.Evidence{Logs: models.LogsSlot{Status: models.SlotEmpty}}
	findings = Run(empty)
	require.Len(t, findings, 1)
	assert.Equal(t, "logs.empty", findings[0].ModuleID)
}

func TestRun_NoFindingsOnEmptyEvidence(t *testing.T) {
	findings := Run(&models.Evidence{})
	assert.Empty(t, findings)
}

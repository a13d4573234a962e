package artifact

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tarkyaio/tarka/pkg/models"
)

func TestKey_IsStableForSameInvestigation(t *testing.T) {
	s := &Store{prefix: "reports"}
	inv := &models.Investigation{
		Identity:    models.Identity{Kind: "Pod", Namespace: "prod", Name: "api-7f9"},
		Family:      models.FamilyOOMKilled,
		CompletedAt: time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC),
	}

	a := s.key(inv, "md")
	b := s.key(inv, "md")
	assert.Equal(t, a, b)
	assert.Contains(t, a, "reports/2026-07-31/")
	assert.Contains(t, a, "-oom_killed-")
	assert.True(t, len(a) > len("reports/2026-07-31/.md"))
}

func TestKey_DiffersByIdentityAndFamily(t *testing.T) {
	s := &Store{prefix: "reports"}
	base := models.Investigation{
		Identity:    models.Identity{Kind: "Pod", Namespace: "prod", Name: "api-7f9"},
		Family:      models.FamilyOOMKilled,
		CompletedAt: time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC),
	}
	other := base
	other.Identity.Name = "api-abc"

	assert.NotEqual(t, s.key(&base, "md"), s.key(&other, "md"))

	otherFamily := base
	otherFamily.Family = models.FamilyCrashLoopBackOff
	assert.NotEqual(t, s.key(&base, "md"), s.key(&otherFamily, "md"))
}

func TestFamilySlug_LowercasesAndStripsSpaces(t *testing.T) {
	assert.Equal(t, "oom_killed", familySlug(models.FamilyOOMKilled))
}

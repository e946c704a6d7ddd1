package repository

import (
	"context"
	"testing"
	"time"

	deploymentdomain "github.com/smallbiznis/computeledger/internal/deployment/domain"
	dbpkg "github.com/smallbiznis/computeledger/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListBillable(t *testing.T) {
	db, err := dbpkg.NewTest()
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&deploymentdomain.Deployment{}))

	periodStart := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	periodEnd := periodStart.Add(time.Hour)
	stoppedInside := periodStart.Add(20 * time.Minute)
	stoppedBefore := periodStart.Add(-time.Minute)

	rows := []deploymentdomain.Deployment{
		{ID: "running", TenantID: "t1", PresetID: 1, DesiredReplicas: 1, Status: deploymentdomain.StatusRunning, CreatedAt: periodStart.Add(-time.Hour)},
		{ID: "stopped-inside", TenantID: "t1", PresetID: 1, DesiredReplicas: 1, Status: deploymentdomain.StatusStopped, CreatedAt: periodStart.Add(-time.Hour), StoppedAt: &stoppedInside},
		{ID: "stopped-before", TenantID: "t1", PresetID: 1, DesiredReplicas: 1, Status: deploymentdomain.StatusStopped, CreatedAt: periodStart.Add(-time.Hour), StoppedAt: &stoppedBefore},
		{ID: "created-after", TenantID: "t2", PresetID: 1, DesiredReplicas: 1, Status: deploymentdomain.StatusRunning, CreatedAt: periodEnd.Add(time.Minute)},
		{ID: "pending", TenantID: "t2", PresetID: 1, DesiredReplicas: 1, Status: deploymentdomain.StatusPending, CreatedAt: periodStart},
		{ID: "degraded", TenantID: "t2", PresetID: 1, DesiredReplicas: 2, Status: deploymentdomain.StatusDegraded, CreatedAt: periodStart.Add(30 * time.Minute)},
	}
	require.NoError(t, db.Create(&rows).Error)

	items, err := NewRepository(db).ListBillable(context.Background(), periodStart, periodEnd)
	require.NoError(t, err)

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	assert.ElementsMatch(t, []string{"running", "stopped-inside", "degraded"}, ids)
}

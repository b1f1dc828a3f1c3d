package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dewei/DocRadar/pkg/config"
	"github.com/dewei/DocRadar/pkg/logger"
	"github.com/dewei/DocRadar/pkg/model"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                 logger.NewGormLogger(logger.Discard(), 0),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	d := New(db)
	require.NoError(t, d.AutoMigrate())
	return d
}

func pendingAlert(docID string, typ model.AlertType, at time.Time) model.AlertInstance {
	return model.AlertInstance{
		DocumentID:  docID,
		UserID:      "user-1",
		AlertType:   typ,
		ScheduledAt: at,
		Status:      model.AlertStatusPending,
	}
}

func TestReplacePendingAndListDue(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	alerts := d.Alerts()
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	first := []model.AlertInstance{
		pendingAlert("doc-1", model.AlertType7Day, base),
		pendingAlert("doc-1", model.AlertType1Day, base.AddDate(0, 0, 6)),
	}
	cancelled, err := alerts.ReplacePending(ctx, "doc-1", first)
	require.NoError(t, err)
	assert.Zero(t, cancelled)
	for _, a := range first {
		assert.NotEmpty(t, a.ID, "BeforeCreate should assign an id")
	}

	due, err := alerts.ListDueAlerts(ctx, base.Add(time.Minute), 100)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, first[0].ID, due[0].ID)

	// 重建后旧的 pending 提醒全部作废
	second := []model.AlertInstance{pendingAlert("doc-1", model.AlertTypeExpired, base.AddDate(0, 0, 10))}
	cancelled, err = alerts.ReplacePending(ctx, "doc-1", second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cancelled)

	due, err = alerts.ListDueAlerts(ctx, base.AddDate(0, 1, 0), 100)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, model.AlertTypeExpired, due[0].AlertType)

	stats, err := alerts.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats[model.AlertStatusAcknowledged])
	assert.Equal(t, int64(1), stats[model.AlertStatusPending])
}

func TestListDueAlertsRespectsLimitAndOrder(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	var batch []model.AlertInstance
	for i := 5; i > 0; i-- {
		batch = append(batch, pendingAlert("doc-2", model.AlertType30Day, base.Add(time.Duration(i)*time.Hour)))
	}
	_, err := d.Alerts().ReplacePending(ctx, "doc-2", batch)
	require.NoError(t, err)

	due, err := d.Alerts().ListDueAlerts(ctx, base.AddDate(0, 0, 1), 3)
	require.NoError(t, err)
	require.Len(t, due, 3)
	assert.True(t, due[0].ScheduledAt.Before(due[1].ScheduledAt))
	assert.True(t, due[1].ScheduledAt.Before(due[2].ScheduledAt))
}

func TestTransitionAlertIsConditional(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	at := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	batch := []model.AlertInstance{pendingAlert("doc-3", model.AlertType1Day, at)}
	_, err := d.Alerts().ReplacePending(ctx, "doc-3", batch)
	require.NoError(t, err)
	id := batch[0].ID

	sentAt := at.Add(2 * time.Minute)
	err = d.Alerts().TransitionAlert(ctx, id, model.AlertStatusPending, model.AlertUpdate{
		Status:      model.AlertStatusSent,
		ScheduledAt: at,
		SentAt:      &sentAt,
	})
	require.NoError(t, err)

	// 第二次以 pending 为前提的更新必须失败
	err = d.Alerts().TransitionAlert(ctx, id, model.AlertStatusPending, model.AlertUpdate{
		Status:      model.AlertStatusSent,
		ScheduledAt: at,
		SentAt:      &sentAt,
	})
	assert.ErrorIs(t, err, model.ErrStaleAlert)

	err = d.Alerts().TransitionAlert(ctx, "missing", model.AlertStatusPending, model.AlertUpdate{Status: model.AlertStatusSent})
	assert.ErrorIs(t, err, model.ErrStaleAlert)

	got, err := d.Alerts().GetAlert(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.AlertStatusSent, got.Status)
	require.NotNil(t, got.SentAt)
	assert.True(t, got.SentAt.Equal(sentAt))
}

func TestClaimAlertOnlyOneWinner(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	at := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	batch := []model.AlertInstance{pendingAlert("doc-4", model.AlertType7Day, at)}
	_, err := d.Alerts().ReplacePending(ctx, "doc-4", batch)
	require.NoError(t, err)

	due, err := d.Alerts().ListDueAlerts(ctx, at, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	lease := at.Add(10 * time.Second)
	require.NoError(t, d.Alerts().ClaimAlert(ctx, due[0].ID, due[0].ScheduledAt, lease))
	// 另一个 tick 拿着同一份读取结果认领，必须失败
	assert.ErrorIs(t, d.Alerts().ClaimAlert(ctx, due[0].ID, due[0].ScheduledAt, lease), model.ErrStaleAlert)

	due, err = d.Alerts().ListDueAlerts(ctx, at, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	got, err := d.Alerts().GetAlert(ctx, batch[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.AlertStatusPending, got.Status)
	assert.True(t, got.ScheduledAt.Equal(lease))
}

func TestAlertInstanceRoundTrip(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	at := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	batch := []model.AlertInstance{pendingAlert("doc-4", model.AlertType7Day, at)}
	_, err := d.Alerts().ReplacePending(ctx, "doc-4", batch)
	require.NoError(t, err)

	msg := "queue unavailable"
	retryAt := at.Add(25 * time.Minute)
	require.NoError(t, d.Alerts().TransitionAlert(ctx, batch[0].ID, model.AlertStatusPending, model.AlertUpdate{
		Status:      model.AlertStatusPending,
		ScheduledAt: retryAt,
		RetryCount:  2,
		LastError:   &msg,
	}))

	got, err := d.Alerts().GetAlert(ctx, batch[0].ID)
	require.NoError(t, err)
	assert.Equal(t, batch[0].ID, got.ID)
	assert.Equal(t, "doc-4", got.DocumentID)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, model.AlertType7Day, got.AlertType)
	assert.True(t, got.ScheduledAt.Equal(retryAt))
	assert.Equal(t, model.AlertStatusPending, got.Status)
	assert.Equal(t, 2, got.RetryCount)
	require.NotNil(t, got.LastError)
	assert.Equal(t, msg, *got.LastError)
	assert.Nil(t, got.SentAt)

	_, err = d.Alerts().GetAlert(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDocumentsAndSettings(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)

	expiry := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	doc := &model.Document{ID: "doc-5", UserID: "user-1", BikeID: "bike-1", Title: "交强险", ExpiryDate: &expiry}
	require.NoError(t, d.Documents().SaveDocument(ctx, doc))
	require.NoError(t, d.Documents().SaveBike(ctx, &model.Bike{ID: "bike-1", UserID: "user-1", Name: "CB400"}))

	got, err := d.Documents().GetDocument(ctx, "doc-5")
	require.NoError(t, err)
	require.NotNil(t, got.ExpiryDate)
	assert.Equal(t, 2026, got.ExpiryDate.Year())
	assert.Equal(t, time.September, got.ExpiryDate.Month())
	assert.Equal(t, 1, got.ExpiryDate.Day())

	bike, err := d.Documents().GetBike(ctx, "bike-1")
	require.NoError(t, err)
	assert.Equal(t, "CB400", bike.DisplayName())

	require.NoError(t, d.Documents().DeleteDocument(ctx, "doc-5"))
	_, err = d.Documents().GetDocument(ctx, "doc-5")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, d.Documents().DeleteDocument(ctx, "doc-5"), model.ErrNotFound)

	// 没有配置时返回默认偏好
	settings, err := d.Users().GetSettings(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, settings.DocumentAlerts)
	_, _, ok := settings.QuietHours()
	assert.False(t, ok)

	start, end := "22:00", "06:00"
	require.NoError(t, d.Users().SaveSettings(ctx, &model.NotificationSettings{
		UserID:          "user-1",
		DocumentAlerts:  false,
		QuietHoursStart: &start,
		QuietHoursEnd:   &end,
	}))
	settings, err = d.Users().GetSettings(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, settings.DocumentAlerts)
	s, e, ok := settings.QuietHours()
	assert.True(t, ok)
	assert.Equal(t, "22:00", s)
	assert.Equal(t, "06:00", e)
}

func TestQueueEnqueue(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)

	entry := &model.NotificationQueueEntry{
		UserID:   "user-1",
		Title:    "证件今日到期",
		Body:     "body",
		Category: model.CategoryDocument,
		Priority: model.PriorityCritical,
		Payload: model.NotificationPayload{
			AlertID:    "alert-1",
			DocumentID: "doc-1",
			BikeID:     "bike-1",
			AlertType:  model.AlertTypeExpired,
		},
	}
	require.NoError(t, d.Queue().Enqueue(ctx, entry))
	assert.NotEmpty(t, entry.ID)

	var pending []model.NotificationQueueEntry
	require.NoError(t, d.db.Where("status = ?", model.QueueStatusPending).Find(&pending).Error)
	require.Len(t, pending, 1)
	assert.Equal(t, model.QueueStatusPending, pending[0].Status)
	assert.Equal(t, entry.Payload, pending[0].Payload)
	assert.Equal(t, model.PriorityCritical, pending[0].Priority)
}

func TestOpenSQLiteFile(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = "sqlite"
	cfg.Database.SQLite.Path = t.TempDir() + "/radar.db"

	d, err := Open(cfg, logger.Discard())
	require.NoError(t, err)
	defer d.Close()

	assert.NoError(t, d.Ping(context.Background()))

	cfg.Database.Driver = "memory"
	_, err = Open(cfg, logger.Discard())
	assert.Error(t, err)
}

func TestPostgresStatements(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 logger.NewGormLogger(logger.Discard(), 0),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	alerts := New(gdb).Alerts()
	ctx := context.Background()

	// 条件更新：没有命中行时返回 ErrStaleAlert
	mock.ExpectExec(`UPDATE "alert_instances" SET .+ WHERE id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = alerts.TransitionAlert(ctx, "a-1", model.AlertStatusPending, model.AlertUpdate{Status: model.AlertStatusSent})
	assert.ErrorIs(t, err, model.ErrStaleAlert)

	mock.ExpectExec(`UPDATE "alert_instances" SET .+ WHERE id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	err = alerts.TransitionAlert(ctx, "a-1", model.AlertStatusPending, model.AlertUpdate{Status: model.AlertStatusSent})
	assert.NoError(t, err)

	mock.ExpectExec(`UPDATE "alert_instances" SET .+ WHERE id = \$\d+ AND status = \$\d+ AND scheduled_at = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = alerts.ClaimAlert(ctx, "a-1", time.Now(), time.Now().Add(time.Minute))
	assert.ErrorIs(t, err, model.ErrStaleAlert)

	// 批量查询失败时错误向上传递
	mock.ExpectQuery(`SELECT \* FROM "alert_instances" WHERE status = \$1 AND scheduled_at <= \$2 ORDER BY scheduled_at ASC LIMIT`).
		WillReturnError(errors.New("connection reset"))
	_, err = alerts.ListDueAlerts(ctx, time.Now(), 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	assert.NoError(t, mock.ExpectationsWereMet())
}

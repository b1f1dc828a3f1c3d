package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dewei/DocRadar/pkg/engine"
	"github.com/dewei/DocRadar/pkg/logger"
	"github.com/dewei/DocRadar/pkg/model"
	"github.com/dewei/DocRadar/pkg/repository"
	"github.com/dewei/DocRadar/pkg/schedule"
)

func verifyCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "在内存存储上走一遍生成、顺延、投递流程，验证系统行为",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			return verifySystem(cmd.Context(), cmd.OutOrStdout(), loc, cfg.Processor.AlertHour)
		},
	}
}

// verifySystem 证件8天后到期：生成计划，在免打扰时段内顺延，之后逐档投递
func verifySystem(ctx context.Context, out io.Writer, loc *time.Location, hour int) error {
	repo := repository.NewRepository()
	start := time.Date(2026, 1, 1, 8, 0, 0, 0, loc)
	now := start
	clock := func() time.Time { return now }

	expiry := start.AddDate(0, 0, 8)
	doc := model.Document{ID: "verify-doc", UserID: "verify-user", BikeID: "verify-bike", Title: "交强险", ExpiryDate: &expiry}
	repo.PutDocument(doc)
	repo.PutBike(model.Bike{ID: "verify-bike", UserID: "verify-user", Name: "测试车辆"})
	quietStart, quietEnd := fmt.Sprintf("%02d:00", hour), fmt.Sprintf("%02d:30", hour)
	repo.PutSettings(model.NotificationSettings{
		UserID:          "verify-user",
		DocumentAlerts:  true,
		QuietHoursStart: &quietStart,
		QuietHoursEnd:   &quietEnd,
	})

	gen := schedule.NewGenerator(repo, logger.Discard(),
		schedule.WithLocation(loc), schedule.WithAlertHour(hour), schedule.WithClock(clock))
	planned, err := gen.Regenerate(ctx, &doc)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "生成提醒 %d 条\n", len(planned))

	proc := engine.NewAlertProcessor(repo, repo, engine.DefaultConfig(), logger.Discard(),
		engine.WithLocation(loc), engine.WithClock(clock))

	for _, alert := range planned {
		now = alert.ScheduledAt
		res, err := proc.Tick(ctx)
		if err != nil {
			return err
		}
		if res.Deferred != 1 {
			return fmt.Errorf("%s: 免打扰时段内应顺延，实际 %+v", alert.AlertType, res)
		}

		current, err := repo.GetAlert(ctx, alert.ID)
		if err != nil {
			return err
		}
		now = current.ScheduledAt
		res, err = proc.Tick(ctx)
		if err != nil {
			return err
		}
		if res.Sent != 1 {
			return fmt.Errorf("%s: 顺延后应投递，实际 %+v", alert.AlertType, res)
		}
		fmt.Fprintf(out, "%s\t顺延至 %s 后投递\n", alert.AlertType, now.Format("2006-01-02 15:04"))
	}

	queued := repo.QueuedNotifications()
	if len(queued) != len(planned) {
		return fmt.Errorf("应入队 %d 条通知，实际 %d 条", len(planned), len(queued))
	}
	for _, n := range queued {
		fmt.Fprintf(out, "%s\t%s\n", n.Priority, n.Title)
	}
	fmt.Fprintln(out, "验证通过")
	return nil
}

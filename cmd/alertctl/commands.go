package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dewei/DocRadar/pkg/app"
	"github.com/dewei/DocRadar/pkg/config"
	"github.com/dewei/DocRadar/pkg/logger"
	"github.com/dewei/DocRadar/pkg/model"
	"github.com/dewei/DocRadar/pkg/schedule"
)

type options struct {
	configPath string
	logLevel   string
}

// rootCommand 运维命令入口
func rootCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "alertctl",
		Short:         "证件到期提醒运维工具",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "配置文件路径，默认读取 CONFIG_PATH")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "日志级别")

	rootCmd.AddCommand(
		tickCommand(opts),
		previewCommand(opts),
		regenerateCommand(opts),
		cancelCommand(opts),
		statsCommand(opts),
		tailCommand(opts),
		verifyCommand(opts),
	)
	return rootCmd
}

func (o *options) load() (*config.Config, *logrus.Entry, error) {
	if o.configPath != "" {
		os.Setenv("CONFIG_PATH", o.configPath)
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	level := o.logLevel
	if level == "" {
		level = cfg.App.LogLevel
	}
	return cfg, logger.New("alertctl", level), nil
}

// withApp 组装组件后执行 fn，结束时关闭连接
func (o *options) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, log, err := o.load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		stop()
		a.Monitor.Wait()
		a.Close()
	}()

	return fn(ctx, a)
}

func tickCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "处理一批到期提醒后退出，供外部编排定时调用",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Processor.Tick(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
}

func previewCommand(opts *options) *cobra.Command {
	var nowFlag string

	cmd := &cobra.Command{
		Use:   "preview <YYYY-MM-DD>",
		Short: "预览某个到期日会生成的提醒",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			expiry, err := time.ParseInLocation("2006-01-02", args[0], loc)
			if err != nil {
				return fmt.Errorf("到期日格式错误: %w", err)
			}
			now := time.Now().In(loc)
			if nowFlag != "" {
				if now, err = time.ParseInLocation(time.RFC3339, nowFlag, loc); err != nil {
					return fmt.Errorf("--now 格式错误: %w", err)
				}
			}

			gen := schedule.NewGenerator(nil, log, schedule.WithLocation(loc), schedule.WithAlertHour(cfg.Processor.AlertHour))
			alerts := gen.Plan(&model.Document{ID: "preview", ExpiryDate: &expiry}, now)
			return printSchedule(cmd, expiry, now, alerts)
		},
	}
	cmd.Flags().StringVar(&nowFlag, "now", "", "以指定时间（RFC3339）作为当前时间")
	return cmd
}

func regenerateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "regenerate <document-id>",
		Short: "按证件当前到期日重建提醒计划",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				doc, err := a.Store.GetDocument(ctx, args[0])
				if err != nil {
					if errors.Is(err, model.ErrNotFound) {
						return fmt.Errorf("证件 %s 不存在", args[0])
					}
					return err
				}
				alerts, err := a.Generator.Regenerate(ctx, doc)
				if err != nil {
					return err
				}
				return printJSON(cmd, alerts)
			})
		},
	}
}

func cancelCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <document-id>",
		Short: "取消证件所有待发送的提醒",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				cancelled, err := a.Generator.Cancel(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "已取消 %d 条提醒\n", cancelled)
				return nil
			})
		},
	}
}

func statsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "按状态统计提醒数量",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				counts, err := a.Store.CountByStatus(ctx)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "状态\t数量")
				for _, status := range []model.AlertStatus{
					model.AlertStatusPending,
					model.AlertStatusSent,
					model.AlertStatusFailed,
					model.AlertStatusAcknowledged,
				} {
					fmt.Fprintf(w, "%s\t%d\n", status, counts[status])
				}
				return w.Flush()
			})
		},
	}
}

func tailCommand(opts *options) *cobra.Command {
	var consumer string

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "打印 JetStream 通知队列中的消息",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				client := a.NATS()
				if client == nil {
					return errors.New("未启用 NATS，请设置 nats.enabled 或 NATS_URL")
				}

				out := cmd.OutOrStdout()
				err := client.Subscribe(ctx, a.Config.NATS.Stream, consumer, a.Config.NATS.Subject, func(data []byte) error {
					var entry model.NotificationQueueEntry
					if err := json.Unmarshal(data, &entry); err != nil {
						return err
					}
					fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", entry.CreatedAt.Format(time.RFC3339), entry.Priority, entry.UserID, entry.Title)
					return nil
				})
				if err != nil {
					return err
				}

				<-ctx.Done()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&consumer, "consumer", "alertctl-tail", "消费者名称")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSchedule(cmd *cobra.Command, expiry, now time.Time, alerts []model.AlertInstance) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "到期日\t%s\n", expiry.Format("2006-01-02"))
	fmt.Fprintf(w, "当前时间\t%s\n", now.Format(time.RFC3339))
	fmt.Fprintln(w, "档位\t触发时间")
	for _, a := range alerts {
		fmt.Fprintf(w, "%s\t%s\n", a.AlertType, a.ScheduledAt.Format("2006-01-02 15:04 MST"))
	}
	if len(alerts) == 0 {
		fmt.Fprintln(w, "(无)\t")
	}
	return w.Flush()
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"TradeGP/internal/di"
	"TradeGP/internal/usecase"
	pkgkafka "TradeGP/pkg/kafka"
	applogger "TradeGP/pkg/logger"

	"github.com/spf13/cobra"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Consume reported outcomes from Kafka into ClickHouse",
	Long: `Collect consumes the observations the prediction service publishes on
kafka.topics.observations and journals them in the ClickHouse observation
table, from where "run --from-source" can retrain on them. Requires
kafka.enabled and clickhouse.enabled. Runs until interrupted.`,
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)
}

func runCollect(cmd *cobra.Command, _ []string) error {
	tk, err := loadToolkit()
	if err != nil {
		return err
	}
	defer tk.Close()

	cfg := tk.Config
	if !cfg.Kafka.Enabled || tk.Observations == nil {
		return errors.New("collect requires kafka.enabled and clickhouse.enabled")
	}

	consumer, err := di.ProvideKafkaConsumer(cfg, tk.Prometheus, tk.Logger)
	if err != nil {
		return err
	}
	consumer.WithConsumerHook(pkgkafka.NoopHook{})
	consumer.RegisterHandler(usecase.NewKafkaObservationsHandler(cfg.Kafka.Topics.Observations, tk.Observations, tk.Metrics))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := consumer.Start(); err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	tk.Logger.Info("collecting observations",
		applogger.String("topic", cfg.Kafka.Topics.Observations),
		applogger.String("table", cfg.ClickHouse.Table),
	)

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return consumer.Stop(stopCtx)
}

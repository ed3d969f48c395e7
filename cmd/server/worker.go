package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/warp/tour-engine/notify"
)

func newWorkerCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume assignment notices from the Redis queue",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			defer log.Sync()

			if !cfg.Redis.Enabled() {
				return errors.New("worker: redis.addr is not configured")
			}
			w := notify.NewWorker(redisOpt(cfg.Redis), cfg.Notifications.Concurrency, notify.LogSender{Log: log}, log)
			return w.Run()
		},
	}
}

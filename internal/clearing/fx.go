package clearing

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("clearing.scheduler",
	fx.Provide(New),
	fx.Invoke(runSweep),
)

func runSweep(lc fx.Lifecycle, sched *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go sched.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}

// Command api-server runs the order lifecycle HTTP API.
package main

import (
	"context"

	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	commerce "github.com/tokoku/commerce/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, t *app.Telemetry) error {
		cfg, err := commerce.LoadConfig()
		if err != nil {
			return err
		}
		return commerce.Run(ctx, lg, t, cfg)
	})
}

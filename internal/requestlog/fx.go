package requestlog

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("request.log",
	fx.Provide(provideWriter),
)

func provideWriter(lc fx.Lifecycle, db *gorm.DB, gen *snowflake.Node, log *zap.Logger) *Writer {
	w := NewWriter(db, gen, log)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return w.Close(ctx)
		},
	})
	return w
}

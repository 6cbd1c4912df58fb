package coupon

import (
	"github.com/shorelabs/textgate/internal/coupon/repository"
	"github.com/shorelabs/textgate/internal/coupon/service"
	"go.uber.org/fx"
)

var Module = fx.Module("coupon.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

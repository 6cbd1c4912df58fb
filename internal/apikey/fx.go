package apikey

import (
	"github.com/shorelabs/textgate/internal/apikey/repository"
	"github.com/shorelabs/textgate/internal/apikey/service"
	"go.uber.org/fx"
)

var Module = fx.Module("apikey.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

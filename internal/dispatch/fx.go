package dispatch

import "go.uber.org/fx"

var Module = fx.Module("dispatch",
	fx.Provide(
		New,
		fx.Annotate(NewTemplateRenderer, fx.As(new(Renderer))),
		NewStaticResolver,
	),
)

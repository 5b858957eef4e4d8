package mirror

// ServoEventRoute is the field route servo services publish position on.
var ServoEventRoute = FieldRoute{Method: "onServoEvent", Field: "pos", Path: "pos"}

// Factory builds mirrors with the field routes configured for their service type.
type Factory struct {
	byType   map[string][]FieldRoute
	defaults []FieldRoute
}

// FactoryParams holds parameters for NewFactory.
type FactoryParams struct {
	// RoutesByType maps a service type to its field routes.
	RoutesByType map[string][]FieldRoute
	// DefaultRoutes apply to types without an entry in RoutesByType.
	DefaultRoutes []FieldRoute
}

// NewFactory creates a Factory.
func NewFactory(params FactoryParams) *Factory {
	byType := make(map[string][]FieldRoute, len(params.RoutesByType))
	for typ, routes := range params.RoutesByType {
		byType[typ] = append([]FieldRoute(nil), routes...)
	}
	return &Factory{
		byType:   byType,
		defaults: append([]FieldRoute(nil), params.DefaultRoutes...),
	}
}

// DefaultFactory routes servo events for the Servo service type.
func DefaultFactory() *Factory {
	return NewFactory(FactoryParams{
		RoutesByType: map[string][]FieldRoute{
			"Servo":    {ServoEventRoute},
			"DiyServo": {ServoEventRoute},
		},
	})
}

// RoutesFor returns the field routes for a service type.
func (f *Factory) RoutesFor(serviceType string) []FieldRoute {
	if routes, ok := f.byType[serviceType]; ok {
		return routes
	}
	return f.defaults
}

// New builds a fresh, detached mirror for name.
func (f *Factory) New(name, serviceType string) *Mirror {
	return New(name, serviceType, f.RoutesFor(serviceType))
}

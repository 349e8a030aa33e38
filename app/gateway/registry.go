package gateway

import (
	"errors"

	"github.com/condoflow/ms-go-reconciliation/app/types"
)

var ErrGatewayNotSupported = errors.New("gateway is not supported")

type Registry struct {
	adapters map[types.Gateway]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	items := make(map[types.Gateway]Adapter, len(adapters))
	for _, a := range adapters {
		items[a.Gateway()] = a
	}
	return &Registry{adapters: items}
}

func (r *Registry) Get(code types.Gateway) (Adapter, error) {
	adapter, ok := r.adapters[code]
	if !ok {
		return nil, ErrGatewayNotSupported
	}
	return adapter, nil
}

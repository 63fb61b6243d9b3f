package httpapi

import (
	"github.com/mistakeknot/hivewatch/internal/core"
	"github.com/mistakeknot/hivewatch/internal/storage"
)

// Broadcaster receives a typed notification after every successful write.
// Delivery is best-effort; implementations must never return control-flow
// errors to the write path.
type Broadcaster interface {
	Publish(n core.Notification)
}

type Service struct {
	store storage.Store
	bus   Broadcaster
}

func NewService(store storage.Store) *Service {
	return &Service{store: store}
}

func (s *Service) WithBroadcaster(b Broadcaster) *Service {
	s.bus = b
	return s
}

func (s *Service) publish(n core.Notification) {
	if s.bus != nil {
		s.bus.Publish(n)
	}
}

package server

import (
	"errors"
	"net/http"
	"time"

	"sigenbridge/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/devices", s.DevicesHandler)
	e.GET("/state", s.FleetStateHandler)
	e.GET("/state/:device", s.FleetStateHandler)

	return e
}

type deviceDocument struct {
	Name      string   `json:"name"`
	Kind      string   `json:"kind"`
	Host      string   `json:"host"`
	Port      uint16   `json:"port"`
	SlaveID   uint8    `json:"slave_id"`
	Parent    string   `json:"parent,omitempty"`
	Health    string   `json:"health"`
	Registers []string `json:"registers,omitempty"`
}

type readingDocument struct {
	Value any    `json:"value"`
	Unit  string `json:"unit,omitempty"`
}

type stateDocument struct {
	Device    string                     `json:"device"`
	Kind      string                     `json:"kind"`
	Health    string                     `json:"health"`
	UpdatedAt time.Time                  `json:"updated_at"`
	Readings  map[string]readingDocument `json:"readings"`
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) DevicesHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetTopologyRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.GetTopologyResponse)
	if !ok {
		return c.String(http.StatusInternalServerError, "unexpected response")
	}
	docs := make([]deviceDocument, 0, len(response.Devices))
	for _, dev := range response.Devices {
		docs = append(docs, deviceDocument{
			Name:      dev.Ref.Name,
			Kind:      dev.Ref.Kind.String(),
			Host:      dev.Ref.Host,
			Port:      dev.Ref.Port,
			SlaveID:   dev.Ref.SlaveID,
			Parent:    dev.Ref.Parent,
			Health:    dev.Health.String(),
			Registers: dev.Registers,
		})
	}
	return c.JSON(http.StatusOK, docs)
}

func (s *Server) FleetStateHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetFleetStateRequest{
		Device: c.Param("device"),
	}, 15*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.GetFleetStateResponse)
	if !ok {
		return c.String(http.StatusInternalServerError, "unexpected response")
	}
	if response.HasResponseError() {
		err := response.GetResponseError()
		if errors.Is(err, domain.ErrUnknownDevice) {
			return c.String(http.StatusNotFound, err.Error())
		}
		return c.String(http.StatusServiceUnavailable, err.Error())
	}
	docs := make([]stateDocument, 0, len(response.States))
	for _, state := range response.States {
		readings := make(map[string]readingDocument, len(state.Readings))
		for name, reading := range state.Readings {
			doc := readingDocument{Unit: reading.Unit}
			if reading.Value.IsText() {
				doc.Value = reading.Value.Text
			} else {
				doc.Value = reading.Value.Float
			}
			readings[name] = doc
		}
		docs = append(docs, stateDocument{
			Device:    state.Device,
			Kind:      state.Kind.String(),
			Health:    state.Health.String(),
			UpdatedAt: state.UpdatedAt,
			Readings:  readings,
		})
	}
	return c.JSON(http.StatusOK, docs)
}

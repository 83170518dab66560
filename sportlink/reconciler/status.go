package reconciler

import (
	"encoding/json"
	"strings"
)

// Status is a booking lifecycle state as the backend names it.
type Status string

const (
	StatusPendiente  Status = "Pendiente"
	StatusConfirmada Status = "Confirmada"
	StatusActiva     Status = "Activa"
	StatusCompletada Status = "Completada"
	StatusFinalizada Status = "Finalizada"
	StatusCancelada  Status = "Cancelada"
	StatusCalificado Status = "Calificado"
)

var knownStatuses = []Status{
	StatusPendiente,
	StatusConfirmada,
	StatusActiva,
	StatusCompletada,
	StatusFinalizada,
	StatusCancelada,
	StatusCalificado,
}

// ParseStatus matches s case-insensitively against the known states.
func ParseStatus(s string) (Status, bool) {
	s = strings.TrimSpace(s)
	for _, st := range knownStatuses {
		if strings.EqualFold(s, string(st)) {
			return st, true
		}
	}
	return "", false
}

// UnmarshalJSON canonicalizes known states and keeps unknown ones verbatim.
func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if st, ok := ParseStatus(raw); ok {
		*s = st
		return nil
	}
	*s = Status(strings.TrimSpace(raw))
	return nil
}

func (s Status) Known() bool {
	_, ok := ParseStatus(string(s))
	return ok
}

// Terminal states close the session's chat.
func (s Status) Terminal() bool {
	switch s {
	case StatusFinalizada, StatusCompletada, StatusCancelada, StatusCalificado:
		return true
	}
	return false
}

// Label is the text shown on status badges.
func (s Status) Label() string {
	if s == "" {
		return "Desconocido"
	}
	return string(s)
}

// Category groups statuses for filtering and dashboard counters.
type Category string

const (
	CategoryPending   Category = "pending"
	CategoryConfirmed Category = "confirmed"
	CategoryFinished  Category = "finished"
	CategoryRated     Category = "rated"
	CategoryCancelled Category = "cancelled"
)

func (s Status) Category() Category {
	switch s {
	case StatusConfirmada, StatusActiva:
		return CategoryConfirmed
	case StatusFinalizada, StatusCompletada:
		return CategoryFinished
	case StatusCalificado:
		return CategoryRated
	case StatusCancelada:
		return CategoryCancelled
	}
	return CategoryPending
}

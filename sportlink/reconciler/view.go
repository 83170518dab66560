package reconciler

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"sportlink/sportlink/types"
	"sportlink/sportlink/utils/locale"
)

var ErrUnknownView = errors.New("unknown session view")

// Order decides both date filtering and sort direction of a view.
type Order int

const (
	// Upcoming keeps sessions from today on, soonest first.
	Upcoming Order = iota
	// History keeps every date, most recent first.
	History
)

// View is a named page query: which statuses to merge for which role.
type View struct {
	Name     string
	Role     types.Role
	Statuses []Status
	Order    Order
}

var views = map[string]View{
	"client-upcoming": {
		Name:     "client-upcoming",
		Role:     types.RoleCliente,
		Statuses: []Status{StatusPendiente, StatusConfirmada, StatusActiva},
		Order:    Upcoming,
	},
	"client-history": {
		Name:     "client-history",
		Role:     types.RoleCliente,
		Statuses: []Status{StatusCompletada, StatusFinalizada},
		Order:    History,
	},
	"client-sessions": {
		Name:     "client-sessions",
		Role:     types.RoleCliente,
		Statuses: []Status{StatusPendiente, StatusConfirmada, StatusFinalizada, StatusCalificado},
		Order:    History,
	},
	"trainer-upcoming": {
		Name:     "trainer-upcoming",
		Role:     types.RoleEntrenador,
		Statuses: []Status{StatusPendiente, StatusConfirmada, StatusActiva},
		Order:    Upcoming,
	},
	"trainer-sessions": {
		Name:     "trainer-sessions",
		Role:     types.RoleEntrenador,
		Statuses: []Status{StatusPendiente, StatusConfirmada, StatusFinalizada},
		Order:    History,
	},
}

// LookupView returns a built-in view by name.
func LookupView(name string) (View, error) {
	v, ok := views[name]
	if !ok {
		return View{}, fmt.Errorf("%w: %q", ErrUnknownView, name)
	}
	return v, nil
}

func ViewNames() []string {
	names := make([]string, 0, len(views))
	for name := range views {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const (
	defaultTitle    = "Sesión de Entrenamiento"
	defaultLocation = "Ubicación no especificada"
	defaultDuration = 60
)

// SessionView is a session as the session pages render it.
type SessionView struct {
	ID                ID        `json:"id"`
	Title             string    `json:"title"`
	CounterpartID     ID        `json:"counterpartId,omitempty"`
	CounterpartName   string    `json:"counterpartName"`
	CounterpartEmail  string    `json:"counterpartEmail,omitempty"`
	CounterpartPhone  string    `json:"counterpartPhone,omitempty"`
	CounterpartAvatar string    `json:"counterpartAvatar,omitempty"`
	Location          string    `json:"location"`
	Date              string    `json:"date"`
	DateLabel         string    `json:"dateLabel"`
	Time              string    `json:"time"`
	DateTime          time.Time `json:"dateTime"`
	Price             float64   `json:"price"`
	Sport             string    `json:"sport"`
	Duration          int       `json:"duration"`
	Description       string    `json:"description"`
	Status            Status    `json:"status"`
	StatusLabel       string    `json:"statusLabel"`
	Category          Category  `json:"category"`
	ServiceID         ID        `json:"servicioId,omitempty"`
	HasReview         bool      `json:"hasReview"`
	Rating            float64   `json:"rating"`
	Review            *string   `json:"review"`
}

// mapRecord builds the view of r for a viewer holding role. at is the
// resolved fechaHora.
func mapRecord(r SessionRecord, role types.Role, at time.Time) SessionView {
	v := SessionView{
		ID:          r.ID,
		Title:       defaultTitle,
		Location:    defaultLocation,
		Date:        locale.ISODate(at),
		DateLabel:   locale.ShortDate(at),
		Time:        locale.Clock(at),
		DateTime:    at,
		Duration:    defaultDuration,
		Status:      r.Estado,
		StatusLabel: r.Estado.Label(),
		Category:    r.Estado.Category(),
		HasReview:   r.Estado == StatusCalificado,
	}
	if s := r.Servicio; s != nil {
		if s.Nombre != "" {
			v.Title = s.Nombre
		}
		if s.Ubicacion != "" {
			v.Location = s.Ubicacion
		}
		if s.Duracion > 0 {
			v.Duration = s.Duracion
		}
		v.Price = s.Precio
		v.Sport = s.Deporte
		v.Description = s.Descripcion
		v.ServiceID = s.ID
	}
	if role == types.RoleEntrenador {
		v.CounterpartName = "Cliente no especificado"
		if c := r.Cliente; c != nil {
			v.CounterpartID = c.ID
			v.CounterpartName = fullName(c.Nombres, c.Apellidos, v.CounterpartName)
			v.CounterpartEmail = c.Correo
			v.CounterpartPhone = c.Telefono
			v.CounterpartAvatar = c.FotoPerfil
		}
	} else {
		v.CounterpartName = "Entrenador"
		if e := r.Entrenador; e != nil {
			v.CounterpartID = e.ID
			v.CounterpartName = fullName(e.Nombres, e.Apellidos, v.CounterpartName)
			v.CounterpartEmail = e.Correo
			v.CounterpartPhone = e.Telefono
			v.CounterpartAvatar = e.FotoPerfil
		}
	}
	if rv := r.Resenia; rv != nil {
		v.Rating = rv.Calificacion
		if rv.Comentario != "" {
			comment := rv.Comentario
			v.Review = &comment
		}
	}
	return v
}

func fullName(first, last, fallback string) string {
	name := strings.TrimSpace(first + " " + last)
	if name == "" {
		return fallback
	}
	return name
}

// sortViews orders by instant in the view's direction, then by ascending id.
func sortViews(out []SessionView, order Order) {
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.DateTime.Equal(b.DateTime) {
			if order == History {
				return a.DateTime.After(b.DateTime)
			}
			return a.DateTime.Before(b.DateTime)
		}
		return lessID(a.ID, b.ID)
	})
}

// Summary holds the dashboard counters of a session list.
type Summary struct {
	Total     int `json:"total"`
	Upcoming  int `json:"upcoming"`
	Pending   int `json:"pending"`
	Confirmed int `json:"confirmed"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
}

func Summarize(sessions []SessionView) Summary {
	s := Summary{Total: len(sessions)}
	for _, v := range sessions {
		switch v.Category {
		case CategoryPending:
			s.Pending++
			s.Upcoming++
		case CategoryConfirmed:
			s.Confirmed++
			s.Upcoming++
		case CategoryFinished, CategoryRated:
			s.Completed++
		case CategoryCancelled:
			s.Cancelled++
		}
	}
	return s
}

// FilterByCategory applies the page filters: "upcoming", "completed", a single
// category name, or "all"/"" for everything.
func FilterByCategory(sessions []SessionView, filter string) []SessionView {
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" || filter == "all" {
		return append([]SessionView(nil), sessions...)
	}
	out := []SessionView{}
	for _, v := range sessions {
		if matchesFilter(v.Category, filter) {
			out = append(out, v)
		}
	}
	return out
}

func matchesFilter(c Category, filter string) bool {
	switch filter {
	case "upcoming":
		return c == CategoryPending || c == CategoryConfirmed
	case "completed":
		return c == CategoryFinished || c == CategoryRated
	}
	return string(c) == filter
}

// SortViews re-orders a list by one of the page sort keys: date-asc,
// date-desc, price-asc, price-desc or counterpart. Unknown keys keep the order.
func SortViews(sessions []SessionView, key string) []SessionView {
	out := append([]SessionView(nil), sessions...)
	var less func(a, b SessionView) bool
	switch strings.ToLower(key) {
	case "date-asc":
		less = func(a, b SessionView) bool { return a.DateTime.Before(b.DateTime) }
	case "date-desc":
		less = func(a, b SessionView) bool { return a.DateTime.After(b.DateTime) }
	case "price-asc":
		less = func(a, b SessionView) bool { return a.Price < b.Price }
	case "price-desc":
		less = func(a, b SessionView) bool { return a.Price > b.Price }
	case "counterpart", "trainer", "client":
		less = func(a, b SessionView) bool {
			return strings.ToLower(a.CounterpartName) < strings.ToLower(b.CounterpartName)
		}
	default:
		return out
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

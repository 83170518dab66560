package reconciler

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"sportlink/sportlink/chatstore"
)

// ID accepts the backend's numeric ids as well as strings.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON writes numeric ids back as numbers.
func (id ID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id ID) String() string { return string(id) }

// lessID orders numerically when both ids are integers.
func lessID(a, b ID) bool {
	na, errA := strconv.ParseInt(string(a), 10, 64)
	nb, errB := strconv.ParseInt(string(b), 10, 64)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}

var dateTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// DateTime is the backend's fechaHora. Values without an offset are wall
// clock times in the caller's location, so parsing is deferred until In.
type DateTime struct {
	Raw string
}

func (d *DateTime) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		d.Raw = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	d.Raw = strings.TrimSpace(s)
	return nil
}

func (d DateTime) MarshalJSON() ([]byte, error) {
	if d.Raw == "" {
		return []byte("null"), nil
	}
	return json.Marshal(d.Raw)
}

// In resolves the timestamp in loc. ok is false for empty or unparsable values.
func (d DateTime) In(loc *time.Location) (time.Time, bool) {
	if d.Raw == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.Parse(time.RFC3339Nano, d.Raw); err == nil {
		return t.In(loc), true
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, d.Raw, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NewDateTime formats t the way the backend stores local timestamps.
func NewDateTime(t time.Time) DateTime {
	return DateTime{Raw: t.Format("2006-01-02T15:04:05")}
}

type ClienteRef struct {
	ID         ID     `json:"idCliente,omitempty"`
	Nombres    string `json:"nombres,omitempty"`
	Apellidos  string `json:"apellidos,omitempty"`
	Correo     string `json:"correo,omitempty"`
	Telefono   string `json:"telefono,omitempty"`
	FotoPerfil string `json:"fotoPerfil,omitempty"`
}

type EntrenadorRef struct {
	ID         ID     `json:"idEntrenador,omitempty"`
	Nombres    string `json:"nombres,omitempty"`
	Apellidos  string `json:"apellidos,omitempty"`
	Correo     string `json:"correo,omitempty"`
	Telefono   string `json:"telefono,omitempty"`
	FotoPerfil string `json:"fotoPerfil,omitempty"`
}

type ServicioRef struct {
	ID          ID      `json:"idServicio,omitempty"`
	Nombre      string  `json:"nombre,omitempty"`
	Descripcion string  `json:"descripcion,omitempty"`
	Precio      float64 `json:"precio,omitempty"`
	Ubicacion   string  `json:"ubicacion,omitempty"`
	Deporte     string  `json:"deporte,omitempty"`
	Duracion    int     `json:"duracion,omitempty"`
}

type ReseniaRef struct {
	ID           ID      `json:"idResenia,omitempty"`
	Calificacion float64 `json:"calificacion,omitempty"`
	Comentario   string  `json:"comentario,omitempty"`
}

// SessionRecord is a booking as returned by the backend.
type SessionRecord struct {
	ID         ID             `json:"idSesion"`
	FechaHora  DateTime       `json:"fechaHora"`
	Estado     Status         `json:"estado"`
	Cliente    *ClienteRef    `json:"cliente,omitempty"`
	Entrenador *EntrenadorRef `json:"entrenador,omitempty"`
	Servicio   *ServicioRef   `json:"servicio,omitempty"`
	Resenia    *ReseniaRef    `json:"resenia,omitempty"`
}

// ChatSeed builds the participant and service snapshots for a new chat thread.
func (r SessionRecord) ChatSeed() chatstore.SessionData {
	var data chatstore.SessionData
	if c := r.Cliente; c != nil {
		data.Cliente = chatstore.Profile{
			ID:         c.ID.String(),
			Nombres:    c.Nombres,
			Apellidos:  c.Apellidos,
			Correo:     c.Correo,
			Telefono:   c.Telefono,
			FotoPerfil: c.FotoPerfil,
		}
	}
	if e := r.Entrenador; e != nil {
		data.Entrenador = chatstore.Profile{
			ID:         e.ID.String(),
			Nombres:    e.Nombres,
			Apellidos:  e.Apellidos,
			Correo:     e.Correo,
			Telefono:   e.Telefono,
			FotoPerfil: e.FotoPerfil,
		}
	}
	if s := r.Servicio; s != nil {
		data.Servicio = chatstore.ServiceSnapshot{
			ID:          s.ID.String(),
			Nombre:      s.Nombre,
			Descripcion: s.Descripcion,
			Precio:      s.Precio,
			Ubicacion:   s.Ubicacion,
			Deporte:     s.Deporte,
			Duracion:    s.Duracion,
		}
	}
	return data
}

// SessionUpdate is the body of PUT /Sesion/actualizar.
type SessionUpdate struct {
	ID         ID            `json:"idSesion"`
	FechaHora  DateTime      `json:"fechaHora"`
	Estado     Status        `json:"estado"`
	Cliente    ClienteRef    `json:"cliente"`
	Entrenador EntrenadorRef `json:"entrenador"`
	Servicio   ServicioRef   `json:"servicio"`
}

// UpdateFor carries over the references of r with a new status and time.
func UpdateFor(r SessionRecord, estado Status, fechaHora DateTime) SessionUpdate {
	u := SessionUpdate{ID: r.ID, FechaHora: fechaHora, Estado: estado}
	if r.Cliente != nil {
		u.Cliente.ID = r.Cliente.ID
	}
	if r.Entrenador != nil {
		u.Entrenador.ID = r.Entrenador.ID
	}
	if r.Servicio != nil {
		u.Servicio.ID = r.Servicio.ID
	}
	return u
}

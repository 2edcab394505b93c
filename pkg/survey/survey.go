package survey

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/igolaizola/goatmusic/pkg/metrics"
	"github.com/igolaizola/goatmusic/pkg/storage"
)

// Form is the lead capture form as submitted by the kiosk.
type Form struct {
	Nombre   string `json:"nombre"`
	Telefono string `json:"telefono"`
	Correo   string `json:"correo"`
	Empresa  string `json:"empresa"`
	Cargo    string `json:"cargo"`
	TaskID   string `json:"taskId,omitempty"`
}

// Record is a stored survey as returned to clients.
type Record struct {
	ID        string    `json:"id"`
	Nombre    string    `json:"nombre"`
	Telefono  string    `json:"telefono"`
	Correo    string    `json:"correo"`
	Empresa   string    `json:"empresa"`
	Cargo     string    `json:"cargo"`
	TaskID    string    `json:"taskId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type row struct {
	Nombre   string `csv:"Nombre"`
	Telefono string `csv:"Teléfono"`
	Correo   string `csv:"Correo"`
	Empresa  string `csv:"Empresa"`
	Cargo    string `csv:"Cargo"`
	Fecha    string `csv:"Fecha"`
}

type Service struct {
	store    *storage.Store
	metrics  *metrics.Metrics
	location *time.Location
}

func New(store *storage.Store, m *metrics.Metrics, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		store:    store,
		metrics:  m,
		location: loc,
	}
}

// Create validates and stores a survey. Validation failures are returned as
// FieldErrors.
func (s *Service) Create(ctx context.Context, f *Form) (*Record, error) {
	if errs := Validate(f); errs != nil {
		return nil, errs
	}
	v := &storage.Survey{
		Nombre:   strings.TrimSpace(f.Nombre),
		Telefono: strings.TrimSpace(f.Telefono),
		Correo:   strings.TrimSpace(f.Correo),
		Empresa:  strings.TrimSpace(f.Empresa),
		Cargo:    strings.TrimSpace(f.Cargo),
		TaskID:   strings.TrimSpace(f.TaskID),
	}
	if err := s.store.CreateSurvey(ctx, v); err != nil {
		return nil, fmt.Errorf("survey: couldn't save survey: %w", err)
	}
	s.metrics.SurveyCreated()
	return toRecord(v), nil
}

// List returns surveys newest first. A size of zero returns every record.
func (s *Service) List(ctx context.Context, page, size int) ([]*Record, error) {
	vs, err := s.store.ListSurveys(ctx, page, size)
	if err != nil {
		return nil, fmt.Errorf("survey: couldn't list surveys: %w", err)
	}
	out := make([]*Record, 0, len(vs))
	for _, v := range vs {
		out = append(out, toRecord(v))
	}
	return out, nil
}

// Get returns a single survey. Missing records return storage.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	v, err := s.store.GetSurvey(ctx, id)
	if err != nil {
		return nil, err
	}
	return toRecord(v), nil
}

// Delete removes a survey, for instance when the lead asks to be forgotten.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.store.GetSurvey(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteSurvey(ctx, id); err != nil {
		return fmt.Errorf("survey: couldn't delete survey: %w", err)
	}
	return nil
}

func (s *Service) Count(ctx context.Context) (int64, error) {
	n, err := s.store.CountSurveys(ctx)
	if err != nil {
		return 0, fmt.Errorf("survey: couldn't count surveys: %w", err)
	}
	return n, nil
}

// Export writes every survey as CSV, newest first.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	vs, err := s.store.ListSurveys(ctx, 1, 0)
	if err != nil {
		return fmt.Errorf("survey: couldn't list surveys: %w", err)
	}
	rows := make([]*row, 0, len(vs))
	for _, v := range vs {
		fecha := "N/A"
		if !v.CreatedAt.IsZero() {
			fecha = v.CreatedAt.In(s.location).Format("2006-01-02 15:04:05")
		}
		rows = append(rows, &row{
			Nombre:   v.Nombre,
			Telefono: v.Telefono,
			Correo:   v.Correo,
			Empresa:  v.Empresa,
			Cargo:    v.Cargo,
			Fecha:    fecha,
		})
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("survey: couldn't marshal csv: %w", err)
	}
	return nil
}

// Filename returns the export file name for the given day.
func Filename(t time.Time) string {
	return fmt.Sprintf("encuestas_%s.csv", t.Format("2006-01-02"))
}

func toRecord(v *storage.Survey) *Record {
	return &Record{
		ID:        v.ID,
		Nombre:    v.Nombre,
		Telefono:  v.Telefono,
		Correo:    v.Correo,
		Empresa:   v.Empresa,
		Cargo:     v.Cargo,
		TaskID:    v.TaskID,
		CreatedAt: v.CreatedAt,
	}
}

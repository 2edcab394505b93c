package survey

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/igolaizola/goatmusic/pkg/storage"
)

func TestValidate(t *testing.T) {
	valid := Form{
		Nombre:   "José Núñez",
		Telefono: "(300) 123-4567",
		Correo:   "jose@goat.CO",
	}
	tests := []struct {
		name   string
		mutate func(f *Form)
		field  string
		want   string
	}{
		{name: "valid"},
		{name: "empty name", mutate: func(f *Form) { f.Nombre = "  " }, field: "nombre", want: "El nombre es obligatorio"},
		{name: "short name", mutate: func(f *Form) { f.Nombre = "J" }, field: "nombre", want: "al menos 2"},
		{name: "name with digits", mutate: func(f *Form) { f.Nombre = "R2D2" }, field: "nombre", want: "solo puede contener letras"},
		{name: "empty phone", mutate: func(f *Form) { f.Telefono = "" }, field: "telefono", want: "obligatorio"},
		{name: "phone letters", mutate: func(f *Form) { f.Telefono = "300-abc-1234" }, field: "telefono", want: "solo puede contener números"},
		{name: "short phone", mutate: func(f *Form) { f.Telefono = "12 34 5" }, field: "telefono", want: "entre 7 y 10"},
		{name: "long phone", mutate: func(f *Form) { f.Telefono = "123456789012" }, field: "telefono", want: "entre 7 y 10"},
		{name: "empty email", mutate: func(f *Form) { f.Correo = "" }, field: "correo", want: "obligatorio"},
		{name: "bad email", mutate: func(f *Form) { f.Correo = "jose@goat" }, field: "correo", want: "correo válido"},
		{name: "bad extension", mutate: func(f *Form) { f.Correo = "jose@goat.io" }, field: "correo", want: "extensión válida"},
		{name: "short company", mutate: func(f *Form) { f.Empresa = "X" }, field: "empresa", want: "Si ingresas empresa"},
		{name: "short role", mutate: func(f *Form) { f.Cargo = " Y " }, field: "cargo", want: "Si ingresas cargo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := valid
			if tt.mutate != nil {
				tt.mutate(&f)
			}
			errs := Validate(&f)
			if tt.field == "" {
				if errs != nil {
					t.Fatalf("Validate() = %v; want nil", errs)
				}
				return
			}
			if len(errs) != 1 {
				t.Fatalf("Validate() = %v; want one error on %s", errs, tt.field)
			}
			if msg := errs[tt.field]; !strings.Contains(msg, tt.want) {
				t.Fatalf("Validate()[%s] = %q; want %q", tt.field, msg, tt.want)
			}
		})
	}
}

func newService(t *testing.T) *Service {
	t.Helper()
	ctx := context.Background()
	store, err := storage.New("sqlite", filepath.Join(t.TempDir(), "survey.db"), false)
	if err != nil {
		t.Fatalf("storage.New() err = %v", err)
	}
	if err := store.Start(ctx); err != nil {
		t.Fatalf("Start() err = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() err = %v", err)
	}
	return New(store, nil, time.UTC)
}

func TestCreateListExport(t *testing.T) {
	ctx := context.Background()
	s := newService(t)

	if _, err := s.Create(ctx, &Form{Nombre: "A"}); err == nil {
		t.Fatalf("Create() err = nil; want validation error")
	} else {
		var fe FieldErrors
		if !errors.As(err, &fe) || fe["correo"] == "" {
			t.Fatalf("Create() err = %v; want field errors", err)
		}
	}

	forms := []Form{
		{Nombre: " Ana ", Telefono: "3001234567", Correo: "ana@goat.com", Empresa: "Goat, Inc"},
		{Nombre: "Bruno", Telefono: "3007654321", Correo: "bruno@goat.org", TaskID: "t-1"},
	}
	for i := range forms {
		rec, err := s.Create(ctx, &forms[i])
		if err != nil {
			t.Fatalf("Create() err = %v", err)
		}
		if rec.ID == "" || rec.CreatedAt.IsZero() {
			t.Fatalf("Create() = %+v; want id and date", rec)
		}
		time.Sleep(5 * time.Millisecond)
	}

	n, err := s.Count(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Count() = %d, %v; want 2, nil", n, err)
	}
	list, err := s.List(ctx, 1, 10)
	if err != nil {
		t.Fatalf("List() err = %v", err)
	}
	if len(list) != 2 || list[0].Nombre != "Bruno" || list[1].Nombre != "Ana" {
		t.Fatalf("List() = %+v; want newest first with trimmed names", list)
	}

	var buf bytes.Buffer
	if err := s.Export(ctx, &buf); err != nil {
		t.Fatalf("Export() err = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("Export() lines = %d; want 3:\n%s", len(lines), buf.String())
	}
	if lines[0] != "Nombre,Teléfono,Correo,Empresa,Cargo,Fecha" {
		t.Fatalf("Export() header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[2], `Ana,3001234567,ana@goat.com,"Goat, Inc",,`) {
		t.Fatalf("Export() row = %q; want quoted company", lines[2])
	}
}

func TestFilename(t *testing.T) {
	d := time.Date(2025, 9, 30, 23, 0, 0, 0, time.UTC)
	if got := Filename(d); got != "encuestas_2025-09-30.csv" {
		t.Fatalf("Filename() = %q; want %q", got, "encuestas_2025-09-30.csv")
	}
}

func TestGetDelete(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	rec, err := s.Create(ctx, &Form{Nombre: "Ana", Telefono: "3001234567", Correo: "ana@goat.com"})
	if err != nil {
		t.Fatalf("Create() err = %v", err)
	}
	got, err := s.Get(ctx, rec.ID)
	if err != nil || got.Nombre != "Ana" {
		t.Fatalf("Get() = %+v, %v; want Ana", got, err)
	}
	if err := s.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete() err = %v", err)
	}
	if err := s.Delete(ctx, rec.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Delete() twice err = %v; want %v", err, storage.ErrNotFound)
	}
	if _, err := s.Get(ctx, rec.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Get() after delete err = %v; want %v", err, storage.ErrNotFound)
	}
}

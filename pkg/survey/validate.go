package survey

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

var (
	nameRegex   = regexp.MustCompile(`^[a-zA-ZáéíóúÁÉÍÓÚñÑ\s]+$`)
	digitsRegex = regexp.MustCompile(`^\d+$`)
	phoneStrip  = regexp.MustCompile(`[\s\-\(\)]`)
	emailRegex  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	emailExt    = regexp.MustCompile(`(?i)\.(com|co|net|org)$`)
)

// FieldErrors maps form fields to their validation message.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e[k]))
	}
	return "survey: " + strings.Join(parts, "; ")
}

// Validate checks every field of the form and returns nil when it is valid.
func Validate(f *Form) FieldErrors {
	errs := FieldErrors{}
	check := func(field, msg string) {
		if msg != "" {
			errs[field] = msg
		}
	}
	check("nombre", ValidateNombre(f.Nombre))
	check("telefono", ValidateTelefono(f.Telefono))
	check("correo", ValidateCorreo(f.Correo))
	check("empresa", ValidateOptional(f.Empresa, "empresa"))
	check("cargo", ValidateOptional(f.Cargo, "cargo"))
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func ValidateNombre(v string) string {
	t := strings.TrimSpace(v)
	switch {
	case t == "":
		return "El nombre es obligatorio"
	case utf8.RuneCountInString(t) < 2:
		return "El nombre debe tener al menos 2 caracteres"
	case !nameRegex.MatchString(v):
		return "El nombre solo puede contener letras y espacios"
	}
	return ""
}

func ValidateTelefono(v string) string {
	if strings.TrimSpace(v) == "" {
		return "El teléfono es obligatorio"
	}
	clean := phoneStrip.ReplaceAllString(v, "")
	if !digitsRegex.MatchString(clean) {
		return "El teléfono solo puede contener números"
	}
	if n := len(clean); n < 7 || n > 10 {
		return "El teléfono debe tener entre 7 y 10 dígitos"
	}
	return ""
}

func ValidateCorreo(v string) string {
	switch {
	case strings.TrimSpace(v) == "":
		return "El correo es obligatorio"
	case !emailRegex.MatchString(v):
		return "Ingresa un correo válido (ejemplo@dominio.com)"
	case !emailExt.MatchString(v):
		return "El correo debe tener una extensión válida (.com, .co, .net, .org)"
	}
	return ""
}

// ValidateOptional checks an optional field: empty is fine, otherwise it
// needs at least two characters.
func ValidateOptional(v, name string) string {
	t := strings.TrimSpace(v)
	if t != "" && utf8.RuneCountInString(t) < 2 {
		return fmt.Sprintf("Si ingresas %s, debe tener al menos 2 caracteres", name)
	}
	return ""
}

package http

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/pos-multitienda/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func init() {
	// Los errores usan el nombre JSON (o query) del campo.
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query"} {
			name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
}

// parseBody decodifica el JSON del cuerpo en out y lo valida.
func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "cuerpo inválido")
	}
	return validateStruct(out)
}

// parseQuery decodifica los parámetros de query en out y los valida.
func parseQuery(c *fiber.Ctx, out any) error {
	if err := c.QueryParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "parámetros inválidos")
	}
	return validateStruct(out)
}

// validateStruct devuelve INVALID_INPUT con el tag que falló por campo.
func validateStruct(out any) error {
	err := validate.Struct(out)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe.Namespace())] = fe.Tag()
	}
	return withDetails(domain.Invalid("datos inválidos"), fiber.Map{"fields": fields})
}

// fieldPath quita el nombre del struct raíz: "ApplySaleRequest.lines[0].quantity" -> "lines[0].quantity".
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

package report

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/jhoicas/pos-multitienda/internal/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Page pide una página; Token vacío es la primera.
type Page struct {
	Limit int
	Token string
}

// cursor posición de continuación: desplazamiento y el asOf fijado por la primera página.
type cursor struct {
	offset int
	asOf   time.Time
}

func encodeToken(c cursor) string {
	raw := strconv.Itoa(c.offset) + ":" + strconv.FormatInt(c.asOf.UnixNano(), 10)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeToken(token string) (cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return cursor{}, domain.Invalid("token de página inválido")
	}
	offsetPart, asOfPart, ok := strings.Cut(string(raw), ":")
	if !ok {
		return cursor{}, domain.Invalid("token de página inválido")
	}
	offset, err := strconv.Atoi(offsetPart)
	if err != nil || offset < 0 {
		return cursor{}, domain.Invalid("token de página inválido")
	}
	nanos, err := strconv.ParseInt(asOfPart, 10, 64)
	if err != nil {
		return cursor{}, domain.Invalid("token de página inválido")
	}
	return cursor{offset: offset, asOf: time.Unix(0, nanos).UTC()}, nil
}

func (p Page) size() int {
	switch {
	case p.Limit <= 0:
		return defaultPageSize
	case p.Limit > maxPageSize:
		return maxPageSize
	default:
		return p.Limit
	}
}

// window recorta items a la página y devuelve el token de la siguiente (vacío si no hay más).
func window[T any](items []T, c cursor, size int) ([]T, string) {
	if c.offset >= len(items) {
		return []T{}, ""
	}
	end := c.offset + size
	next := ""
	if end < len(items) {
		next = encodeToken(cursor{offset: end, asOf: c.asOf})
	} else {
		end = len(items)
	}
	return items[c.offset:end], next
}

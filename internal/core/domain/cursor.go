package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const cursorSep = "|"

// CursorKind décrit la forme d'une position de pagination
type CursorKind int

const (
	// CursorInstant : forme historique, epoch en millisecondes, sans id
	CursorInstant CursorKind = iota + 1
	// CursorCompound : "<RFC3339Nano>|<id>"
	CursorCompound
	// CursorRanked : "<score>|<RFC3339Nano>|<id>" pour l'ordre explore
	CursorRanked
)

// Position est le point de reprise décodé d'un cursor.
// Un cursor n'est jamais persisté : il est frappé depuis la dernière ligne d'une page.
type Position struct {
	Kind      CursorKind
	CreatedAt time.Time
	ID        string
	Score     int64
}

func InstantPosition(t time.Time) Position {
	return Position{Kind: CursorInstant, CreatedAt: time.UnixMilli(t.UnixMilli()).UTC()}
}

func CompoundPosition(t time.Time, id string) Position {
	return Position{Kind: CursorCompound, CreatedAt: t.UTC(), ID: id}
}

func RankedPosition(score int64, t time.Time, id string) Position {
	return Position{Kind: CursorRanked, CreatedAt: t.UTC(), ID: id, Score: score}
}

// EncodeCursor transforme une position en token opaque.
func EncodeCursor(p Position) string {
	switch p.Kind {
	case CursorInstant:
		return strconv.FormatInt(p.CreatedAt.UnixMilli(), 10)
	case CursorRanked:
		return strings.Join([]string{
			strconv.FormatInt(p.Score, 10),
			p.CreatedAt.UTC().Format(time.RFC3339Nano),
			p.ID,
		}, cursorSep)
	default:
		return p.CreatedAt.UTC().Format(time.RFC3339Nano) + cursorSep + p.ID
	}
}

// DecodeCursor est strict : un token corrompu est une erreur client,
// jamais un retour silencieux à la première page.
func DecodeCursor(token string) (Position, error) {
	parts := strings.Split(token, cursorSep)

	switch len(parts) {
	case 1:
		ms, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil || ms <= 0 {
			return Position{}, invalidCursor("expected epoch milliseconds")
		}
		return Position{Kind: CursorInstant, CreatedAt: time.UnixMilli(ms).UTC()}, nil

	case 2:
		t, id, err := parseTimeAndID(parts[0], parts[1])
		if err != nil {
			return Position{}, err
		}
		return Position{Kind: CursorCompound, CreatedAt: t, ID: id}, nil

	case 3:
		score, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil || score < 0 {
			return Position{}, invalidCursor("malformed score")
		}
		t, id, err := parseTimeAndID(parts[1], parts[2])
		if err != nil {
			return Position{}, err
		}
		return Position{Kind: CursorRanked, CreatedAt: t, ID: id, Score: score}, nil

	default:
		return Position{}, invalidCursor("wrong number of components")
	}
}

func parseTimeAndID(rawTime, rawID string) (time.Time, string, error) {
	t, err := time.Parse(time.RFC3339Nano, rawTime)
	if err != nil {
		return time.Time{}, "", invalidCursor("malformed timestamp")
	}
	if _, err := uuid.Parse(rawID); err != nil {
		return time.Time{}, "", invalidCursor("malformed id")
	}
	return t.UTC(), rawID, nil
}

func invalidCursor(reason string) *ValidationError {
	return NewValidationError("cursor", reason)
}

package domain

import (
	"strings"

	"github.com/google/uuid"
)

type FeedType string

const (
	FeedFollowing FeedType = "following"
	FeedProfile   FeedType = "profile"
	FeedExplore   FeedType = "explore"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 50
)

func ParseFeedType(raw string) (FeedType, error) {
	switch t := FeedType(strings.ToLower(strings.TrimSpace(raw))); t {
	case FeedFollowing, FeedProfile, FeedExplore:
		return t, nil
	case "":
		return "", NewValidationError("type", "feed type is required")
	default:
		return "", NewValidationError("type", "unknown feed type")
	}
}

// RequiresViewer : le feed following n'a pas de sens sans identité
func (t FeedType) RequiresViewer() bool {
	return t == FeedFollowing
}

// Cacheable : following est toujours lu en direct
func (t FeedType) Cacheable() bool {
	return t == FeedProfile || t == FeedExplore
}

// FeedRequest encapsule une demande de page, après résolution de l'identité.
type FeedRequest struct {
	Type     FeedType
	OwnerID  string // profile uniquement
	Cursor   string // token opaque, vide = première page
	PageSize int    // 0 = défaut
	ViewerID string // vide = anonyme
	ClientIP string // identité de repli pour le rate limit
}

func (r FeedRequest) Anonymous() bool {
	return r.ViewerID == ""
}

// Normalize valide la requête et applique les bornes de pagination.
// Les erreurs retournées sont toujours des *ValidationError ou ErrAuthRequired.
func (r FeedRequest) Normalize(defaultSize, maxSize int) (FeedRequest, error) {
	t, err := ParseFeedType(string(r.Type))
	if err != nil {
		return r, err
	}
	r.Type = t

	if r.Type == FeedProfile {
		if r.OwnerID == "" {
			return r, NewValidationError("ownerId", "owner id is required for profile feed")
		}
		if _, err := uuid.Parse(r.OwnerID); err != nil {
			return r, NewValidationError("ownerId", "malformed owner id")
		}
	} else {
		r.OwnerID = ""
	}

	if err := ValidateViewerID(r.ViewerID); err != nil {
		return r, err
	}

	if r.Type.RequiresViewer() && r.Anonymous() {
		return r, ErrAuthRequired
	}

	switch {
	case r.PageSize <= 0:
		r.PageSize = defaultSize
	case r.PageSize > maxSize:
		r.PageSize = maxSize
	}
	return r, nil
}

// ValidateViewerID : vide = anonyme, sinon un uuid (l'id sert de clé de cache et de paramètre SQL)
func ValidateViewerID(id string) error {
	if id == "" {
		return nil
	}
	if _, err := uuid.Parse(id); err != nil {
		return NewValidationError("viewerId", "malformed viewer id")
	}
	return nil
}

// Owner est l'état du propriétaire d'un profil, nécessaire à la résolution de visibilité
type Owner struct {
	ID        string
	Exists    bool
	IsPrivate bool
	IsBanned  bool // banned ou shadow_banned
}

// Relation décrit le lien viewer -> owner
type Relation struct {
	Follows    bool // follow accepté viewer -> owner
	Blocked    bool // blocage dans un sens ou dans l'autre
	Subscribed bool // abonnement actif viewer -> owner
}

package domain

// Decision est le résultat du Visibility Resolver
type Decision struct {
	// Deny : page vide (et non une erreur) pour un contenu que le viewer ne peut pas voir
	Deny       bool
	Visibility []Visibility
}

// VisibilityInput regroupe ce qu'il faut savoir du couple viewer / owner
type VisibilityInput struct {
	ViewerID string // vide = anonyme
	Owner    Owner
	Relation Relation
}

// ResolveVisibility applique les règles dans l'ordre :
//  1. l'owner voit tout sauf hidden
//  2. blocage (un sens ou l'autre) -> refus
//  3. compte privé sans follow accepté -> refus
//  4. public + fans (si follow) + subscribers (si abonnement actif)
//
// Un owner inconnu, ou banni vu par quelqu'un d'autre, est traité comme un refus.
func ResolveVisibility(in VisibilityInput) Decision {
	if in.ViewerID != "" && in.ViewerID == in.Owner.ID {
		return Decision{Visibility: []Visibility{
			VisibilityPublic, VisibilityFans, VisibilitySubscribers, VisibilityPrivate,
		}}
	}

	if !in.Owner.Exists || in.Owner.IsBanned {
		return Decision{Deny: true}
	}

	anonymous := in.ViewerID == ""
	// Un anonyme n'a aucune relation, quoi qu'on lui passe
	rel := in.Relation
	if anonymous {
		rel = Relation{}
	}

	if rel.Blocked {
		return Decision{Deny: true}
	}

	if in.Owner.IsPrivate && !rel.Follows {
		return Decision{Deny: true}
	}

	set := []Visibility{VisibilityPublic}
	if rel.Follows {
		set = append(set, VisibilityFans)
	}
	if rel.Subscribed {
		set = append(set, VisibilitySubscribers)
	}
	return Decision{Visibility: set}
}
